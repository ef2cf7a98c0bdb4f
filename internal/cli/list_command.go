package cli

import (
	"context"
)

// ListCommand handles the list command
type ListCommand struct {
	app *App
}

// NewListCommand creates a new list command handler
func NewListCommand(app *App) *ListCommand {
	return &ListCommand{app: app}
}

// Execute lists the tasks in scope grouped by day
func (c *ListCommand) Execute(ctx context.Context, args []string) error {
	if err := c.app.load(ctx); err != nil {
		return c.app.errors.Handle("list tasks", err)
	}
	return c.app.printer().PrintDays(c.app.engine.Grouped(), c.app.engine.Now())
}
