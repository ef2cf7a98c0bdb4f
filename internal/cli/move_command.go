package cli

import (
	"context"
	"fmt"
	"strconv"

	"chronotask/internal/domain"
	"chronotask/internal/errors"
)

// MoveCommand reorders a task within its day or moves it to another day
type MoveCommand struct {
	app *App
}

// NewMoveCommand creates a new move command handler
func NewMoveCommand(app *App) *MoveCommand {
	return &MoveCommand{app: app}
}

// Execute runs the move command. The index is 1-based on the command line.
func (c *MoveCommand) Execute(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return errors.NewInvalidInputError("command", "move", "usage: chronotask move <task id> <day> <position>")
	}

	index, err := strconv.Atoi(args[2])
	if err != nil || index < 1 {
		return c.app.errors.Handle("move task", errors.NewInvalidInputError("position", args[2], "must be a positive number"))
	}

	if err := c.app.load(ctx); err != nil {
		return c.app.errors.Handle("move task", err)
	}
	key, err := c.app.resolveTask(args[0])
	if err != nil {
		return c.app.errors.Handle("move task", err)
	}
	day, err := parseDay(args[1], c.app.engine.Today())
	if err != nil {
		return c.app.errors.Handle("move task", err)
	}
	if err := c.widenScope(ctx, key, day); err != nil {
		return c.app.errors.Handle("move task", err)
	}

	op, err := c.app.engine.Move(ctx, key, day, index-1)
	if err := c.app.await(ctx, "move task", op, err); err != nil || op.Skipped() {
		return err
	}

	fmt.Fprintf(c.app.out, "Moved task %s to %s at position %d\n", key, day, index)
	return nil
}

// widenScope reloads a range covering both the task's day and the
// destination so positions are allocated against the whole destination day.
func (c *MoveCommand) widenScope(ctx context.Context, key domain.Key, dest domain.Day) error {
	current := domain.SingleDay(c.app.engine.Today())
	if f := c.app.engine.Filter(); f != nil {
		current = *f
	}
	if current.Contains(dest) {
		return nil
	}

	t, _ := c.app.engine.Task(key)
	r := domain.DateRange{From: min(t.Day, dest), To: max(t.Day, dest)}
	c.app.SetScope(&r)
	return c.app.load(ctx)
}
