package cli

import (
	"context"
	"fmt"

	"chronotask/internal/domain"
	"chronotask/internal/engine"
	"chronotask/internal/errors"
)

// TaskCommand runs one engine operation against a single task reference.
// toggle, complete, delete and postpone share it.
type TaskCommand struct {
	app    *App
	name   string
	action string
	done   string
	run    func(ctx context.Context, key domain.Key) (*engine.Operation, error)
}

// NewToggleCommand starts a paused task or pauses a running one
func NewToggleCommand(app *App) *TaskCommand {
	return &TaskCommand{app: app, name: "toggle", action: "start or pause task", done: "Toggled", run: app.engine.StartPause}
}

// NewCompleteCommand marks a task completed
func NewCompleteCommand(app *App) *TaskCommand {
	return &TaskCommand{app: app, name: "complete", action: "complete task", done: "Completed", run: app.engine.Complete}
}

// NewDeleteCommand removes a task
func NewDeleteCommand(app *App) *TaskCommand {
	return &TaskCommand{app: app, name: "delete", action: "delete task", done: "Deleted", run: app.engine.Delete}
}

// NewPostponeCommand carries a task over to today
func NewPostponeCommand(app *App) *TaskCommand {
	return &TaskCommand{app: app, name: "postpone", action: "postpone task", done: "Postponed", run: app.engine.Postpone}
}

// Execute runs the command
func (c *TaskCommand) Execute(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.NewInvalidInputError("command", c.name, fmt.Sprintf("usage: chronotask %s <task id>", c.name))
	}

	if err := c.app.load(ctx); err != nil {
		return c.app.errors.Handle(c.action, err)
	}
	key, err := c.app.resolveTask(args[0])
	if err != nil {
		return c.app.errors.Handle(c.action, err)
	}

	op, err := c.run(ctx, key)
	if err := c.app.await(ctx, c.action, op, err); err != nil || op.Skipped() {
		return err
	}

	fmt.Fprintf(c.app.out, "%s task %s\n", c.done, key)
	for _, k := range op.Keys() {
		if t, ok := c.app.engine.Task(k); ok {
			if err := c.app.printer().PrintTask(t, c.app.engine.Now()); err != nil {
				return err
			}
		}
	}
	return nil
}
