package cli

import (
	"context"
	"fmt"
	"strings"

	"chronotask/internal/errors"
)

// RenameCommand handles the rename command
type RenameCommand struct {
	app *App
}

// NewRenameCommand creates a new rename command handler
func NewRenameCommand(app *App) *RenameCommand {
	return &RenameCommand{app: app}
}

// Execute runs the rename command
func (c *RenameCommand) Execute(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.NewInvalidInputError("command", "rename", "usage: chronotask rename <task id> \"new name\"")
	}

	if err := c.app.load(ctx); err != nil {
		return c.app.errors.Handle("rename task", err)
	}
	key, err := c.app.resolveTask(args[0])
	if err != nil {
		return c.app.errors.Handle("rename task", err)
	}

	name := strings.Join(args[1:], " ")
	op, err := c.app.engine.Rename(ctx, key, name)
	if err := c.app.await(ctx, "rename task", op, err); err != nil || op.Skipped() {
		return err
	}

	t, _ := c.app.engine.Task(key)
	fmt.Fprintf(c.app.out, "Renamed task %s to %s\n", key, t.Name)
	return nil
}
