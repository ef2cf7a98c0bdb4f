package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. CT_DATABASE_DIR.
const EnvPrefix = "CT"

// Loader handles loading configuration from multiple sources
type Loader struct {
	v          *viper.Viper
	envFile    string
	configFile string
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithEnvFile sets the dotenv file read before the environment. A missing file is ignored.
func WithEnvFile(path string) LoaderOption {
	return func(l *Loader) {
		l.envFile = path
	}
}

// WithConfigFile sets an explicit YAML config file, which must exist.
func WithConfigFile(path string) LoaderOption {
	return func(l *Loader) {
		l.configFile = path
	}
}

// NewLoader creates a new configuration loader
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{v: viper.New(), envFile: ".env"}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load loads configuration using the cascading strategy:
// 1. Start with defaults
// 2. Override with the YAML config file
// 3. Override with .env entries and environment variables
// 4. Override with command line flags (LoadWithOverrides)
func (l *Loader) Load() (*Config, error) {
	if l.envFile != "" {
		if err := godotenv.Load(l.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", l.envFile, err)
		}
	}

	setDefaults(l.v, NewConfig())

	l.v.SetEnvPrefix(EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if err := l.readConfigFile(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (l *Loader) readConfigFile() error {
	path := l.configFile
	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path == "" {
		return nil
	}

	l.v.SetConfigFile(path)
	l.v.SetConfigType("yaml")
	if err := l.v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return nil
}

// setDefaults registers every key so AutomaticEnv can find it on Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("database.dir", d.Database.Dir)
	v.SetDefault("database.filename", d.Database.Filename)
	v.SetDefault("database.query_timeout", d.Database.QueryTimeout)
	v.SetDefault("database.write_timeout", d.Database.WriteTimeout)
	v.SetDefault("database.dir_permissions", d.Database.DirPermissions)

	v.SetDefault("engine.position_base", d.Engine.PositionBase)
	v.SetDefault("engine.position_gap", d.Engine.PositionGap)

	v.SetDefault("validation.task_name_min_length", d.Validation.TaskNameMinLength)
	v.SetDefault("validation.task_name_max_length", d.Validation.TaskNameMaxLength)

	v.SetDefault("ambient.refresh_interval", d.Ambient.RefreshInterval)
	v.SetDefault("ambient.notify_check_interval", d.Ambient.NotifyCheckInterval)
	v.SetDefault("ambient.notify_every", d.Ambient.NotifyEvery)
	v.SetDefault("ambient.notifications_enabled", d.Ambient.NotificationsEnabled)
	v.SetDefault("ambient.default_title", d.Ambient.DefaultTitle)
	v.SetDefault("ambient.target_hours", d.Ambient.TargetHours)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)

	v.SetDefault("display.default_format", d.Display.DefaultFormat)
	v.SetDefault("display.time_format", d.Display.TimeFormat)
	v.SetDefault("display.running_status", d.Display.RunningStatus)

	v.SetDefault("application.timeout", d.Application.Timeout)
	v.SetDefault("application.user", d.Application.User)
	v.SetDefault("application.env", d.Application.Env)
}

// LoadWithOverrides loads configuration and applies command line overrides
func (l *Loader) LoadWithOverrides(overrides *ConfigOverrides) (*Config, error) {
	config, err := l.Load()
	if err != nil {
		return nil, err
	}

	if overrides != nil {
		ApplyOverrides(config, overrides)
	}

	// Re-validate after applying overrides
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// ConfigOverrides holds command line flag overrides
type ConfigOverrides struct {
	DBDir          *string
	DBFilename     *string
	DBWriteTimeout *time.Duration

	User          *string
	Timeout       *time.Duration
	DefaultFormat *string
	LogLevel      *string
	TargetHours   *float64
	Notifications *bool
}

// ApplyOverrides applies command line overrides to the configuration
func ApplyOverrides(config *Config, overrides *ConfigOverrides) {
	if overrides.DBDir != nil {
		config.Database.Dir = *overrides.DBDir
	}
	if overrides.DBFilename != nil {
		config.Database.Filename = *overrides.DBFilename
	}
	if overrides.DBWriteTimeout != nil {
		config.Database.WriteTimeout = *overrides.DBWriteTimeout
	}

	if overrides.User != nil {
		config.Application.User = *overrides.User
	}
	if overrides.Timeout != nil {
		config.Application.Timeout = *overrides.Timeout
	}
	if overrides.DefaultFormat != nil {
		config.Display.DefaultFormat = *overrides.DefaultFormat
	}
	if overrides.LogLevel != nil {
		config.Logging.Level = *overrides.LogLevel
	}
	if overrides.TargetHours != nil {
		config.Ambient.TargetHours = *overrides.TargetHours
	}
	if overrides.Notifications != nil {
		config.Ambient.NotificationsEnabled = *overrides.Notifications
	}
}
