package cli

import (
	"context"
	"fmt"
	"strings"

	"chronotask/internal/domain"
	"chronotask/internal/errors"
)

// AddCommand handles the add command
type AddCommand struct {
	app *App
	// Day files the new tasks under a day other than today.
	Day string
	// Lines splits every argument on newlines, one task per line.
	Lines bool
}

// NewAddCommand creates a new add command handler
func NewAddCommand(app *App) *AddCommand {
	return &AddCommand{app: app}
}

// Execute runs the add command
func (c *AddCommand) Execute(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.NewInvalidInputError("command", "add", "usage: chronotask add \"task name\" [\"another task\" ...]")
	}

	names := args
	if c.Lines {
		names = nil
		for _, arg := range args {
			names = append(names, strings.Split(arg, "\n")...)
		}
	}

	if err := c.app.load(ctx); err != nil {
		return c.app.errors.Handle("add tasks", err)
	}

	var day *domain.Day
	if c.Day != "" {
		d, err := parseDay(c.Day, c.app.engine.Today())
		if err != nil {
			return c.app.errors.Handle("add tasks", err)
		}
		day = &d
	}

	op, err := c.app.engine.Add(ctx, names, day)
	if err := c.app.await(ctx, "add tasks", op, err); err != nil || op.Skipped() {
		return err
	}

	for _, key := range op.Keys() {
		if t, ok := c.app.engine.Task(key); ok {
			fmt.Fprintf(c.app.out, "Added task %s: %s (%s)\n", t.Key(), t.Name, t.Day)
		}
	}
	return nil
}
