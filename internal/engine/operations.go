package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chronotask/internal/domain"
	apperrors "chronotask/internal/errors"
)

// Add creates one task per non-blank name on day, today when day is nil.
// Blank names are dropped; if none remain the operation is skipped. The batch
// is inserted with a single store call and removed as a whole if it fails.
// A day outside the loaded window is fetched first so the new positions
// follow every task already on it.
func (e *Engine) Add(ctx context.Context, names []string, day *domain.Day) (*Operation, error) {
	if day != nil {
		if _, err := domain.ParseDay(day.String()); err == nil {
			if err := e.coverDays(ctx, *day); err != nil {
				return nil, err
			}
		}
	} else if err := e.coverDays(ctx, e.Today()); err != nil {
		return nil, err
	}

	return e.mutate(ctx, OpAdd, func(now time.Time) (*plan, string) {
		target := domain.DayOf(now)
		if day != nil {
			if _, err := domain.ParseDay(day.String()); err != nil {
				return nil, "invalid day"
			}
			target = *day
		}
		if !e.coversLocked(target) {
			return nil, "day not loaded"
		}

		cleaned := e.validator.CleanNames(names)
		positions := e.alloc.Next(e.tasksLocked(), target, len(cleaned))

		var (
			edits  []edit
			keys   []domain.Key
			fields []domain.NewTask
		)
		for i, name := range cleaned {
			t := domain.Task{
				LocalID:   e.newID(),
				Owner:     e.userID,
				Name:      name,
				Day:       target,
				Position:  positions[i],
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := e.validator.ValidateNewTask(t.Fields()); err != nil {
				e.logger.Debugw("dropping invalid task name", "error", err)
				continue
			}
			edits = append(edits, edit{key: t.Key(), next: &t})
			keys = append(keys, t.Key())
			fields = append(fields, t.Fields())
		}
		if len(edits) == 0 {
			return nil, "no task names"
		}

		userID := e.userID
		return &plan{
			edits: edits,
			persist: func(ctx context.Context) outcome {
				stored, err := e.store.InsertTasks(ctx, userID, fields)
				if err != nil {
					return outcome{err: err}
				}
				if len(stored) != len(keys) {
					return outcome{err: fmt.Errorf("store returned %d tasks for %d inserts", len(stored), len(keys))}
				}
				records := make(map[domain.Key]domain.Task, len(keys))
				for i, k := range keys {
					records[k] = stored[i]
				}
				return outcome{records: records}
			},
		}, ""
	})
}

// StartPause starts an idle task or pauses a running one, folding the
// running span into the accumulated time.
func (e *Engine) StartPause(ctx context.Context, key domain.Key) (*Operation, error) {
	return e.mutate(ctx, OpStartPause, func(now time.Time) (*plan, string) {
		t, reason := e.operableLocked(key)
		if reason != "" {
			return nil, reason
		}

		next := t.Started(now)
		if t.IsRunning {
			next = t.Stopped(now)
		}
		timer := next.Timer()
		return e.updatePlan(t, next, domain.Patch{Timer: &timer}), ""
	})
}

// Complete stops the task if running and marks it completed. A second call is
// a no-op. EventTaskCompleted fires once the store accepted the change.
func (e *Engine) Complete(ctx context.Context, key domain.Key) (*Operation, error) {
	return e.mutate(ctx, OpComplete, func(now time.Time) (*plan, string) {
		t, reason := e.operableLocked(key)
		if reason != "" {
			return nil, reason
		}

		next := t.Stopped(now)
		next.IsCompleted = true
		timer := next.Timer()
		completed := true
		p := e.updatePlan(t, next, domain.Patch{Timer: &timer, IsCompleted: &completed})
		p.succeeded = func() []Event {
			return []Event{{Type: EventTaskCompleted, Op: OpComplete, Key: t.Key()}}
		}
		return p, ""
	})
}

// Delete removes the task in any state. A task the store no longer knows is
// treated as deleted.
func (e *Engine) Delete(ctx context.Context, key domain.Key) (*Operation, error) {
	return e.mutate(ctx, OpDelete, func(now time.Time) (*plan, string) {
		ent, ok := e.lookupLocked(key)
		if !ok {
			return nil, "unknown task"
		}
		t := ent.task.Clone()
		if t.IsPending() {
			return nil, "task not saved yet"
		}

		return &plan{
			edits: []edit{{key: t.Key()}},
			persist: func(ctx context.Context) outcome {
				err := e.store.DeleteTask(ctx, t.ID)
				if apperrors.IsNotFound(err) {
					e.logger.Debugw("deleted task already gone from store", "key", t.Key())
					err = nil
				}
				return outcome{err: err}
			},
		}, ""
	})
}

// Postpone freezes the task on its day, marked as postponed to today, and
// creates a fresh copy on today. If the copy cannot be inserted after the
// original was updated, the original keeps its stored state and the
// operation fails with a partial batch error.
func (e *Engine) Postpone(ctx context.Context, key domain.Key) (*Operation, error) {
	if err := e.coverDays(ctx, e.Today()); err != nil {
		return nil, err
	}

	return e.mutate(ctx, OpPostpone, func(now time.Time) (*plan, string) {
		t, reason := e.operableLocked(key)
		if reason != "" {
			return nil, reason
		}

		today := domain.DayOf(now)
		if !e.coversLocked(today) {
			return nil, "day not loaded"
		}
		original := t.Stopped(now)
		original.PostponedTo = today.Ptr()

		sibling := domain.Task{
			LocalID:   e.newID(),
			Owner:     e.userID,
			Name:      t.Name,
			Day:       today,
			Position:  e.alloc.Next(e.tasksLocked(), today, 1)[0],
			CreatedAt: now,
			UpdatedAt: now,
		}

		timer := original.Timer()
		patch := domain.Patch{Timer: &timer, PostponedTo: today.Ptr()}
		fields := []domain.NewTask{sibling.Fields()}
		userID := e.userID
		return &plan{
			edits: []edit{
				{key: t.Key(), next: &original},
				{key: sibling.Key(), next: &sibling},
			},
			persist: func(ctx context.Context) outcome {
				stored, err := e.store.UpdateTask(ctx, t.ID, patch)
				if err != nil {
					return outcome{err: err}
				}
				records := map[domain.Key]domain.Task{t.Key(): stored}

				inserted, err := e.store.InsertTasks(ctx, userID, fields)
				if err == nil && len(inserted) != 1 {
					err = fmt.Errorf("store returned %d tasks for 1 insert", len(inserted))
				}
				if err != nil {
					return outcome{
						records: records,
						err:     apperrors.NewPartialBatchError(OpPostpone, []string{"update original"}, apperrors.NewStoreError(OpPostpone, err)),
					}
				}
				records[sibling.Key()] = inserted[0]
				return outcome{records: records}
			},
		}, ""
	})
}

// Rename changes the name of an idle or running task. Blank and unchanged
// names are skipped.
func (e *Engine) Rename(ctx context.Context, key domain.Key, name string) (*Operation, error) {
	return e.mutate(ctx, OpRename, func(now time.Time) (*plan, string) {
		t, reason := e.operableLocked(key)
		if reason != "" {
			return nil, reason
		}

		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			return nil, "blank name"
		}
		if trimmed == t.Name {
			return nil, "name unchanged"
		}
		if err := e.validator.ValidateTaskName(trimmed); err != nil {
			return nil, "invalid name"
		}

		next := t.Clone()
		next.Name = trimmed
		return e.updatePlan(t, next, domain.Patch{Name: &trimmed}), ""
	})
}

// Move places the task at destIndex of destDay and renumbers the affected
// days. All new positions are written in one store call; on failure every
// affected task returns to its previous day and position.
func (e *Engine) Move(ctx context.Context, key domain.Key, destDay domain.Day, destIndex int) (*Operation, error) {
	if _, err := domain.ParseDay(destDay.String()); err == nil {
		if err := e.coverDays(ctx, destDay); err != nil {
			return nil, err
		}
	}

	return e.mutate(ctx, OpMove, func(now time.Time) (*plan, string) {
		t, reason := e.operableLocked(key)
		if reason != "" {
			return nil, reason
		}
		if _, err := domain.ParseDay(destDay.String()); err != nil {
			return nil, "invalid day"
		}
		if !e.coversLocked(t.Day) || !e.coversLocked(destDay) {
			return nil, "day not loaded"
		}

		tasks := e.tasksLocked()
		for _, other := range tasks {
			if (other.Day == t.Day || other.Day == destDay) && other.IsPending() {
				return nil, "affected day has unsaved tasks"
			}
		}

		placements, changed := e.alloc.Move(tasks, t.Key(), destDay, destIndex)
		if !changed {
			return nil, "position unchanged"
		}

		edits := make([]edit, 0, len(placements))
		updates := make([]domain.PositionUpdate, 0, len(placements))
		for _, p := range placements {
			ent, ok := e.lookupLocked(p.Key)
			if !ok {
				return nil, "unknown task"
			}
			next := ent.task.Clone()
			next.Position = p.Position
			next.Day = p.Day
			edits = append(edits, edit{key: p.Key, next: &next})
			updates = append(updates, domain.PositionUpdate{ID: next.ID, Position: p.Position, Day: p.Day})
		}

		return &plan{
			edits: edits,
			persist: func(ctx context.Context) outcome {
				return outcome{err: e.store.UpdatePositions(ctx, updates)}
			},
		}, ""
	})
}

// operableLocked resolves key to a saved task that is neither completed nor
// postponed, or returns why it is not.
func (e *Engine) operableLocked(key domain.Key) (domain.Task, string) {
	ent, ok := e.lookupLocked(key)
	if !ok {
		return domain.Task{}, "unknown task"
	}
	t := ent.task.Clone()
	switch {
	case t.IsPending():
		return t, "task not saved yet"
	case t.IsCompleted:
		return t, "task completed"
	case t.IsPostponed():
		return t, "task postponed"
	}
	return t, ""
}

func (e *Engine) updatePlan(t, next domain.Task, patch domain.Patch) *plan {
	return &plan{
		edits: []edit{{key: t.Key(), next: &next}},
		persist: func(ctx context.Context) outcome {
			stored, err := e.store.UpdateTask(ctx, t.ID, patch)
			if err != nil {
				return outcome{err: err}
			}
			return outcome{records: map[domain.Key]domain.Task{t.Key(): stored}}
		},
	}
}
