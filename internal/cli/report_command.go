package cli

import (
	"context"

	"chronotask/internal/domain"
	"chronotask/internal/errors"
)

// ReportCommand prints totals for a range of days
type ReportCommand struct {
	app *App
	// Day selects the day broken down per task, today by default.
	Day string
}

// NewReportCommand creates a new report command handler
func NewReportCommand(app *App) *ReportCommand {
	return &ReportCommand{app: app}
}

// Execute runs the report command. Without a scope it covers the current month.
func (c *ReportCommand) Execute(ctx context.Context, args []string) error {
	user := c.app.config.Application.User
	if user == "" {
		return c.app.errors.Handle("build report", errors.NewNoUserError("report"))
	}

	now := c.app.engine.Now()
	today := domain.DayOf(now)
	rng := c.app.scope
	if rng == nil {
		month := domain.MonthRange(now.Year(), now.Month())
		rng = &month
	}

	day := today
	if c.Day != "" {
		d, err := parseDay(c.Day, today)
		if err != nil {
			return c.app.errors.Handle("build report", err)
		}
		day = d
	}

	report, err := c.app.reports.BuildReport(ctx, user, rng, day)
	if err != nil {
		return c.app.errors.Handle("build report", err)
	}
	view := ReportView{Report: *report}

	dayTime := day.Time()
	view.IncompleteDays, err = c.app.reports.IncompleteDays(ctx, user, dayTime.Year(), dayTime.Month())
	if err != nil {
		return c.app.errors.Handle("build report", err)
	}

	if target := c.app.config.Ambient.TargetHours; target > 0 {
		if err := c.app.engine.Load(ctx, user, nil); err != nil {
			return c.app.errors.Handle("build report", err)
		}
		progress := c.app.reports.TargetProgress(c.app.engine.Tasks(), target, now)
		view.Progress = &progress
	}

	return c.app.printer().PrintReport(view)
}
