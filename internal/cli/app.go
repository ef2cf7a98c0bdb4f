package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"chronotask/internal/ambient"
	"chronotask/internal/config"
	"chronotask/internal/domain"
	"chronotask/internal/engine"
	"chronotask/internal/errors"
	"chronotask/internal/logging"
	"chronotask/internal/services"
)

// App represents the main CLI application
type App struct {
	engine   *engine.Engine
	reports  services.ReportingService
	config   *config.Config
	gatherer prometheus.Gatherer
	notifier ambient.Notifier
	logger   *logging.Logger
	out      io.Writer
	errors   *ErrorHandler
	registry *CommandRegistry

	// scope is the range of days commands load and act on; nil means today.
	scope *domain.DateRange
}

// AppOption configures an App.
type AppOption func(*App)

// WithOutput redirects command output, stdout by default.
func WithOutput(w io.Writer) AppOption {
	return func(a *App) {
		a.out = w
	}
}

// WithGatherer sets the metrics source served by watch --metrics-addr.
func WithGatherer(g prometheus.Gatherer) AppOption {
	return func(a *App) {
		a.gatherer = g
	}
}

// WithNotifier replaces the sink of long-running task reminders.
func WithNotifier(n ambient.Notifier) AppOption {
	return func(a *App) {
		a.notifier = n
	}
}

// WithAppLogger sets the logger.
func WithAppLogger(l *logging.Logger) AppOption {
	return func(a *App) {
		a.logger = l
	}
}

// NewApp creates a new CLI application instance with dependency injection
func NewApp(eng *engine.Engine, reports services.ReportingService, cfg *config.Config, opts ...AppOption) *App {
	app := &App{
		engine:  eng,
		reports: reports,
		config:  cfg,
		logger:  logging.Nop(),
		out:     os.Stdout,
		errors:  NewErrorHandler(),
	}
	for _, opt := range opts {
		opt(app)
	}
	if app.notifier == nil {
		app.notifier = ambient.NotifierFunc(func(n ambient.Notification) error {
			_, err := fmt.Fprintf(app.out, "\n%s. %s\n", n.Title, n.Body)
			return err
		})
	}
	app.registry = NewCommandRegistry(app)
	return app
}

// Run executes the named command through the registry.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%s", a.registry.GetUsage())
	}
	return a.registry.Execute(ctx, args[0], args[1:])
}

// SetScope sets the range of days commands load. Nil means today.
func (a *App) SetScope(r *domain.DateRange) {
	a.scope = r
}

// Close stops the engine after its in-flight store calls finish.
func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), a.config.GetWriteTimeout())
	defer cancel()
	if err := a.engine.Wait(ctx); err != nil {
		a.logger.WithError(err).Warnw("store calls still in flight at exit")
	}
	a.engine.Close()
}

// load fetches the configured user's tasks for the current scope.
func (a *App) load(ctx context.Context) error {
	user := a.config.Application.User
	if user == "" {
		return errors.NewNoUserError("load tasks")
	}
	return a.engine.Load(ctx, user, a.scope)
}

// await reports a skipped operation or waits for the store's verdict.
func (a *App) await(ctx context.Context, action string, op *engine.Operation, err error) error {
	if err != nil {
		return a.errors.Handle(action, err)
	}
	if op.Skipped() {
		fmt.Fprintf(a.out, "Nothing to %s: %s\n", action, op.SkipReason())
		return nil
	}
	if err := op.Wait(ctx); err != nil {
		return a.errors.Handle(action, err)
	}
	return nil
}

// printer builds a printer for the configured output format.
func (a *App) printer() *Printer {
	return NewPrinter(a.out, a.config.Display)
}

// resolveTask parses a task reference and checks it is loaded.
func (a *App) resolveTask(ref string) (domain.Key, error) {
	key, ok := domain.ParseKey(ref)
	if !ok {
		return "", errors.NewInvalidInputError("task", ref, "must be a task id or a local: reference")
	}
	if _, ok := a.engine.Task(key); !ok {
		return "", errors.NewNotFoundError("task", ref)
	}
	return key, nil
}

// parseDay accepts today, yesterday, tomorrow or a YYYY-MM-DD date.
func parseDay(s string, today domain.Day) (domain.Day, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "today":
		return today, nil
	case "yesterday":
		return today.AddDays(-1), nil
	case "tomorrow":
		return today.AddDays(1), nil
	}
	day, err := domain.ParseDay(strings.TrimSpace(s))
	if err != nil {
		return "", errors.NewInvalidInputError("day", s, "must be today, yesterday, tomorrow or YYYY-MM-DD")
	}
	return day, nil
}

var shorthandPattern = regexp.MustCompile(`^(\d+)(d|w|mo|y)$`)

// parseDayShorthand turns "3d", "2w", "1mo" or "1y" into the range of that
// many days ending today.
func parseDayShorthand(shorthand string, today domain.Day) (domain.DateRange, error) {
	matches := shorthandPattern.FindStringSubmatch(shorthand)
	if matches == nil {
		return domain.DateRange{}, fmt.Errorf("invalid range format: %s", shorthand)
	}

	value, err := strconv.Atoi(matches[1])
	if err != nil || value < 1 {
		return domain.DateRange{}, fmt.Errorf("invalid number in range format: %s", shorthand)
	}

	var days int
	switch matches[2] {
	case "d":
		days = value
	case "w":
		days = value * 7
	case "mo":
		days = value * 30
	case "y":
		days = value * 365
	}

	return domain.DateRange{From: today.AddDays(1 - days), To: today}, nil
}

// parseScope combines the --day, --from/--to and --last flags into a range.
func parseScope(day, from, to, last string, today domain.Day) (*domain.DateRange, error) {
	set := 0
	for _, s := range []string{day, from + to, last} {
		if s != "" {
			set++
		}
	}
	if set > 1 {
		return nil, errors.NewInvalidInputError("scope", nil, "use only one of --day, --from/--to and --last")
	}

	switch {
	case day != "":
		d, err := parseDay(day, today)
		if err != nil {
			return nil, err
		}
		r := domain.SingleDay(d)
		return &r, nil
	case last != "":
		r, err := parseDayShorthand(last, today)
		if err != nil {
			return nil, errors.NewInvalidInputError("last", last, err.Error())
		}
		return &r, nil
	case from != "" || to != "":
		r := domain.DateRange{From: today, To: today}
		var err error
		if from != "" {
			if r.From, err = parseDay(from, today); err != nil {
				return nil, err
			}
		}
		if to != "" {
			if r.To, err = parseDay(to, today); err != nil {
				return nil, err
			}
		}
		if err := r.Validate(); err != nil {
			return nil, errors.NewInvalidInputError("range", r, err.Error())
		}
		return &r, nil
	}
	return nil, nil
}
