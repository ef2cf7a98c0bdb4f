package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config holds all configuration options for the task tracker
type Config struct {
	Database    DatabaseConfig    `mapstructure:"database"`
	Engine      EngineConfig      `mapstructure:"engine"`
	Validation  ValidationConfig  `mapstructure:"validation"`
	Ambient     AmbientConfig     `mapstructure:"ambient"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Display     DisplayConfig     `mapstructure:"display"`
	Application ApplicationConfig `mapstructure:"application"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Dir            string        `mapstructure:"dir"`
	Filename       string        `mapstructure:"filename"`
	QueryTimeout   time.Duration `mapstructure:"query_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	DirPermissions uint32        `mapstructure:"dir_permissions"`
}

// EngineConfig holds ordering key allocation settings
type EngineConfig struct {
	PositionBase int64 `mapstructure:"position_base"`
	PositionGap  int64 `mapstructure:"position_gap"`
}

// ValidationConfig holds validation rules configuration
type ValidationConfig struct {
	TaskNameMinLength int `mapstructure:"task_name_min_length"`
	TaskNameMaxLength int `mapstructure:"task_name_max_length"`
}

// AmbientConfig holds settings of the observers that follow running timers
type AmbientConfig struct {
	RefreshInterval      time.Duration `mapstructure:"refresh_interval"`
	NotifyCheckInterval  time.Duration `mapstructure:"notify_check_interval"`
	NotifyEvery          time.Duration `mapstructure:"notify_every"`
	NotificationsEnabled bool          `mapstructure:"notifications_enabled"`
	DefaultTitle         string        `mapstructure:"default_title"`
	TargetHours          float64       `mapstructure:"target_hours"` // 0 disables the daily target
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// DisplayConfig holds display formatting configuration
type DisplayConfig struct {
	DefaultFormat string `mapstructure:"default_format"`
	TimeFormat    string `mapstructure:"time_format"`
	RunningStatus string `mapstructure:"running_status"`
}

// ApplicationConfig holds application-level configuration
type ApplicationConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	User    string        `mapstructure:"user"`
	Env     string        `mapstructure:"env"`
}

// NewConfig creates a new configuration with sensible defaults
func NewConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultDBDir := filepath.Join(homeDir, ".chronotask")

	return &Config{
		Database: DatabaseConfig{
			Dir:            defaultDBDir,
			Filename:       "chronotask.db",
			QueryTimeout:   10 * time.Second,
			WriteTimeout:   10 * time.Second,
			DirPermissions: 0755,
		},
		Engine: EngineConfig{
			PositionBase: 1000,
			PositionGap:  1000,
		},
		Validation: ValidationConfig{
			TaskNameMinLength: 1,
			TaskNameMaxLength: 255,
		},
		Ambient: AmbientConfig{
			RefreshInterval:     time.Second,
			NotifyCheckInterval: time.Minute,
			NotifyEvery:         30 * time.Minute,
			DefaultTitle:        "chronotask",
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "console",
			Output: "stderr",
		},
		Display: DisplayConfig{
			DefaultFormat: "table",
			TimeFormat:    "15:04:05",
			RunningStatus: "running",
		},
		Application: ApplicationConfig{
			Timeout: 60 * time.Second,
			Env:     "development",
		},
	}
}

// GetDatabasePath returns the full path to the database file
func (c *Config) GetDatabasePath() string {
	if c.Database.Filename == ":memory:" {
		return c.Database.Filename
	}
	return filepath.Join(c.Database.Dir, c.Database.Filename)
}

// GetQueryTimeout returns the database query timeout
func (c *Config) GetQueryTimeout() time.Duration {
	return c.Database.QueryTimeout
}

// GetWriteTimeout returns the bound on a single optimistic store call
func (c *Config) GetWriteTimeout() time.Duration {
	return c.Database.WriteTimeout
}

var (
	validFormats   = map[string]bool{"table": true, "json": true, "yaml": true}
	validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
)

// Validate validates the configuration and returns any errors
func (c *Config) Validate() error {
	// Validate database configuration
	if c.Database.Dir == "" {
		return &ConfigError{Field: "database.dir", Message: "database directory cannot be empty"}
	}
	if c.Database.Filename == "" {
		return &ConfigError{Field: "database.filename", Message: "database filename cannot be empty"}
	}
	if c.Database.QueryTimeout <= 0 {
		return &ConfigError{Field: "database.query_timeout", Message: "query timeout must be positive"}
	}
	if c.Database.WriteTimeout <= 0 {
		return &ConfigError{Field: "database.write_timeout", Message: "write timeout must be positive"}
	}

	// Validate engine configuration
	if c.Engine.PositionBase <= 0 {
		return &ConfigError{Field: "engine.position_base", Message: "position base must be positive"}
	}
	if c.Engine.PositionGap <= 0 {
		return &ConfigError{Field: "engine.position_gap", Message: "position gap must be positive"}
	}

	// Validate validation configuration
	if c.Validation.TaskNameMinLength < 1 {
		return &ConfigError{Field: "validation.task_name_min_length", Message: "task name minimum length must be at least 1"}
	}
	if c.Validation.TaskNameMaxLength < c.Validation.TaskNameMinLength {
		return &ConfigError{Field: "validation.task_name_max_length", Message: "task name maximum length must be greater than minimum length"}
	}

	// Validate ambient configuration
	if c.Ambient.RefreshInterval <= 0 {
		return &ConfigError{Field: "ambient.refresh_interval", Message: "refresh interval must be positive"}
	}
	if c.Ambient.NotifyCheckInterval <= 0 {
		return &ConfigError{Field: "ambient.notify_check_interval", Message: "notification check interval must be positive"}
	}
	if c.Ambient.NotifyEvery < c.Ambient.NotifyCheckInterval {
		return &ConfigError{Field: "ambient.notify_every", Message: "notification interval must not be shorter than the check interval"}
	}
	if c.Ambient.TargetHours < 0 || c.Ambient.TargetHours > 24 {
		return &ConfigError{Field: "ambient.target_hours", Message: "target hours must be between 0 and 24"}
	}

	// Validate logging configuration
	if !validLogLevels[c.Logging.Level] {
		return &ConfigError{Field: "logging.level", Message: "log level must be one of debug, info, warn, error"}
	}

	// Validate display configuration
	if !validFormats[c.Display.DefaultFormat] {
		return &ConfigError{Field: "display.default_format", Message: "default format must be table, json or yaml"}
	}
	if c.Display.TimeFormat == "" {
		return &ConfigError{Field: "display.time_format", Message: "time format cannot be empty"}
	}
	if c.Display.RunningStatus == "" {
		return &ConfigError{Field: "display.running_status", Message: "running status text cannot be empty"}
	}

	// Validate application configuration
	if c.Application.Timeout <= 0 {
		return &ConfigError{Field: "application.timeout", Message: "application timeout must be positive"}
	}

	return nil
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
