package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"chronotask/internal/config"
	"chronotask/internal/domain"
)

// AppFactory builds the application once flags have been applied to cfg.
// The returned function releases its resources.
type AppFactory func(ctx context.Context, cfg *config.Config) (*App, func(), error)

// RootCommand represents the base command when called without any subcommands
type RootCommand struct {
	cmd     *cobra.Command
	config  *config.Config
	factory AppFactory

	app     *App
	cleanup func()

	day, from, to, last string
}

// NewRootCommand creates the root cobra command with global flags
func NewRootCommand(cfg *config.Config, factory AppFactory) *RootCommand {
	root := &RootCommand{
		config:  cfg,
		factory: factory,
	}

	root.cmd = &cobra.Command{
		Use:   "chronotask",
		Short: "Plan your days and track time per task",
		Long: `chronotask keeps a list of tasks per day and times the ones you work on.

EXAMPLES:
  chronotask add "Write report" "Review PR"   # Add two tasks to today
  chronotask list --last 7d                    # Tasks of the last week
  chronotask toggle 12                         # Start or pause task 12
  chronotask postpone 9 --day yesterday        # Carry yesterday's task 9 over to today
  chronotask move 12 tomorrow 1                # Make task 12 the first one tomorrow
  chronotask report --from 2024-03-01 --to 2024-03-31
  chronotask watch --metrics-addr :9090        # Follow running timers

CONFIGURATION:
  Priority order: command-line flags > environment variables (.env included) > config file > defaults.
  Environment variables are the config keys upper-cased with a CT_ prefix, e.g.
    CT_APPLICATION_USER                      Active user (required)
    CT_DATABASE_DIR                          Database directory (default: ~/.chronotask)
    CT_DATABASE_WRITE_TIMEOUT                Bound on each store call (default: 10s)
    CT_AMBIENT_NOTIFICATIONS_ENABLED         Long-running task reminders (default: false)
    CT_AMBIENT_TARGET_HOURS                  Daily target shown by report (default: unset)
    CT_DISPLAY_DEFAULT_FORMAT                table, json or yaml (default: table)
    CT_CONFIG                                Path of a YAML config file`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return root.setup(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			root.teardown()
		},
	}

	root.addGlobalFlags()
	root.addSubcommands()

	return root
}

// Execute runs the root command
func (r *RootCommand) Execute(ctx context.Context) error {
	defer r.teardown()
	return r.cmd.ExecuteContext(ctx)
}

// Command exposes the underlying cobra command, mainly for tests.
func (r *RootCommand) Command() *cobra.Command {
	return r.cmd
}

// addGlobalFlags adds global configuration flags
func (r *RootCommand) addGlobalFlags() {
	flags := r.cmd.PersistentFlags()

	flags.String("user", "", "Active user (overrides CT_APPLICATION_USER)")
	flags.String("db-dir", "", "Database directory (overrides CT_DATABASE_DIR)")
	flags.String("db-filename", "", "Database filename (overrides CT_DATABASE_FILENAME)")
	flags.Duration("db-write-timeout", 0, "Store call timeout (overrides CT_DATABASE_WRITE_TIMEOUT)")
	flags.Duration("app-timeout", 0, "Application timeout (overrides CT_APPLICATION_TIMEOUT)")
	flags.StringP("output", "o", "", "Output format: table, json or yaml (overrides CT_DISPLAY_DEFAULT_FORMAT)")
	flags.String("log-level", "", "Log level (overrides CT_LOGGING_LEVEL)")

	flags.StringVar(&r.day, "day", "", "Work on a single day: today, yesterday, tomorrow or YYYY-MM-DD")
	flags.StringVar(&r.from, "from", "", "First day of the range")
	flags.StringVar(&r.to, "to", "", "Last day of the range")
	flags.StringVar(&r.last, "last", "", "Range ending today: 3d, 2w, 1mo, 1y")
}

// addSubcommands adds all CLI subcommands to the root command
func (r *RootCommand) addSubcommands() {
	add := &AddCommand{}
	addCmd := &cobra.Command{
		Use:   "add [task name]...",
		Short: "Add one task per argument",
		Long:  "Add tasks to today, or to --on. Blank names are ignored; the whole batch is saved at once.",
		Args:  cobra.MinimumNArgs(1),
		RunE: r.run(func(app *App) Command {
			add.app = app
			return add
		}),
	}
	addCmd.Flags().StringVar(&add.Day, "on", "", "Day to file the tasks under")
	addCmd.Flags().BoolVar(&add.Lines, "lines", false, "Split arguments on newlines")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks grouped by day",
		Args:  cobra.NoArgs,
		RunE:  r.run(func(app *App) Command { return NewListCommand(app) }),
	}

	toggleCmd := &cobra.Command{
		Use:   "toggle <task id>",
		Short: "Start or pause a task",
		Args:  cobra.ExactArgs(1),
		RunE:  r.run(func(app *App) Command { return NewToggleCommand(app) }),
	}

	completeCmd := &cobra.Command{
		Use:   "complete <task id>",
		Short: "Mark a task completed, stopping its timer",
		Args:  cobra.ExactArgs(1),
		RunE:  r.run(func(app *App) Command { return NewCompleteCommand(app) }),
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <task id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE:  r.run(func(app *App) Command { return NewDeleteCommand(app) }),
	}

	postponeCmd := &cobra.Command{
		Use:   "postpone <task id>",
		Short: "Carry a task over to today",
		Long:  "Stop the task, mark it postponed and create a fresh copy on today's list.",
		Args:  cobra.ExactArgs(1),
		RunE:  r.run(func(app *App) Command { return NewPostponeCommand(app) }),
	}

	renameCmd := &cobra.Command{
		Use:   "rename <task id> <new name>",
		Short: "Rename a task",
		Args:  cobra.MinimumNArgs(2),
		RunE:  r.run(func(app *App) Command { return NewRenameCommand(app) }),
	}

	moveCmd := &cobra.Command{
		Use:   "move <task id> <day> <position>",
		Short: "Move a task within its day or to another day",
		Args:  cobra.ExactArgs(3),
		RunE:  r.run(func(app *App) Command { return NewMoveCommand(app) }),
	}

	report := &ReportCommand{}
	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Show hours per day, task counts and time per task",
		Long:  "Report on the selected range, the current month by default. --for picks the day broken down per task.",
		Args:  cobra.NoArgs,
		RunE: r.run(func(app *App) Command {
			report.app = app
			return report
		}),
	}
	reportCmd.Flags().StringVar(&report.Day, "for", "", "Day broken down per task (default today)")

	watch := &WatchCommand{}
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow running timers and remind about long-running tasks",
		Args:  cobra.NoArgs,
		RunE: r.run(func(app *App) Command {
			watch.app = app
			return watch
		}),
	}
	watchCmd.Flags().StringVar(&watch.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	watchCmd.Flags().DurationVar(&watch.Duration, "for", 0, "Stop after this long (default until interrupted)")

	r.cmd.AddCommand(
		addCmd,
		listCmd,
		toggleCmd,
		completeCmd,
		deleteCmd,
		postponeCmd,
		renameCmd,
		moveCmd,
		reportCmd,
		watchCmd,
	)
}

// run adapts a command handler to cobra. watch is not bounded by the
// application timeout.
func (r *RootCommand) run(build func(app *App) Command) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if cmd.Name() != "watch" {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.getAppTimeout())
			defer cancel()
		}
		return build(r.app).Execute(ctx, args)
	}
}

// setup applies flag overrides, then builds the application.
func (r *RootCommand) setup(ctx context.Context) error {
	if err := r.getConfigFromFlags(); err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	app, cleanup, err := r.factory(ctx, r.config)
	if err != nil {
		return err
	}
	r.app = app
	r.cleanup = cleanup

	scope, err := parseScope(r.day, r.from, r.to, r.last, domain.DayOf(app.engine.Now()))
	if err != nil {
		return app.errors.HandleSimple(err)
	}
	app.SetScope(scope)
	return nil
}

func (r *RootCommand) teardown() {
	if r.cleanup != nil {
		r.cleanup()
		r.cleanup = nil
	}
}

// getAppTimeout returns the configured application timeout
func (r *RootCommand) getAppTimeout() time.Duration {
	if r.config != nil && r.config.Application.Timeout > 0 {
		return r.config.Application.Timeout
	}
	return 60 * time.Second
}

// getConfigFromFlags updates the configuration with values from command-line flags
func (r *RootCommand) getConfigFromFlags() error {
	if r.config == nil {
		return fmt.Errorf("configuration not initialized")
	}

	flags := r.cmd.PersistentFlags()
	overrides := &config.ConfigOverrides{}

	if user, _ := flags.GetString("user"); user != "" {
		overrides.User = &user
	}
	if dbDir, _ := flags.GetString("db-dir"); dbDir != "" {
		overrides.DBDir = &dbDir
	}
	if dbFilename, _ := flags.GetString("db-filename"); dbFilename != "" {
		overrides.DBFilename = &dbFilename
	}
	if writeTimeout, _ := flags.GetDuration("db-write-timeout"); writeTimeout > 0 {
		overrides.DBWriteTimeout = &writeTimeout
	}
	if appTimeout, _ := flags.GetDuration("app-timeout"); appTimeout > 0 {
		overrides.Timeout = &appTimeout
	}
	if format, _ := flags.GetString("output"); format != "" {
		overrides.DefaultFormat = &format
	}
	if level, _ := flags.GetString("log-level"); level != "" {
		overrides.LogLevel = &level
	}

	config.ApplyOverrides(r.config, overrides)
	return r.config.Validate()
}
