package engine

import (
	"context"
	"slices"
	"time"

	"chronotask/internal/domain"
	apperrors "chronotask/internal/errors"
)

// entry is one task slot in memory. The task is nil while a delete waits for
// the store; the slot is dropped once nothing is pending on it.
type entry struct {
	key     domain.Key
	task    *domain.Task
	pending []*change
}

// change records one optimistic edit of an entry. before is the state to
// restore if the store rejects the edit. Store calls for the same entry run
// in the order the edits were applied, so responses settle in that order too.
type change struct {
	key     domain.Key
	ent     *entry
	before  *domain.Task
	after   *domain.Task
	settled chan struct{}
}

// edit is a requested in-memory write. A nil next removes the task.
type edit struct {
	key  domain.Key
	next *domain.Task
}

// plan is what an operation wants to do once its preconditions hold.
type plan struct {
	edits     []edit
	persist   func(ctx context.Context) outcome
	succeeded func() []Event
}

// outcome is the store's answer. records holds authoritative tasks keyed by
// the edit key they reconcile; keys absent from records are committed as
// applied on success and rolled back on failure.
type outcome struct {
	records map[domain.Key]domain.Task
	err     error
}

// mutate runs the optimistic template: check preconditions and apply under
// the lock, publish, then settle against the store in the background.
func (e *Engine) mutate(ctx context.Context, name string, build func(now time.Time) (*plan, string)) (*Operation, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	if e.userID == "" {
		e.mu.Unlock()
		e.metrics.observe(name, outcomeRejected)
		return nil, apperrors.NewNoUserError(name)
	}

	p, reason := build(e.clock())
	if p == nil {
		e.mu.Unlock()
		e.metrics.observe(name, outcomeSkipped)
		e.logger.Debugw("operation skipped", "op", name, "reason", reason)
		return skippedOperation(name, reason), nil
	}

	epoch := e.epoch
	changes, waits := e.applyLocked(p.edits)
	e.changedLocked()
	e.inflight.Add(1)
	e.mu.Unlock()

	keys := make([]domain.Key, len(changes))
	for i, c := range changes {
		keys[i] = c.key
	}
	op := newOperation(name, keys)

	e.flush()
	go e.settle(context.WithoutCancel(ctx), op, epoch, changes, waits, p)
	return op, nil
}

// applyLocked writes the edits to memory. It returns the changes and the
// settlement signals of earlier changes the store call must wait for.
func (e *Engine) applyLocked(edits []edit) ([]*change, []<-chan struct{}) {
	changes := make([]*change, 0, len(edits))
	var waits []<-chan struct{}
	for _, ed := range edits {
		key := e.resolveLocked(ed.key)
		ent, ok := e.entries[key]
		if !ok {
			ent = &entry{key: key}
			e.entries[key] = ent
		}
		if n := len(ent.pending); n > 0 {
			waits = append(waits, ent.pending[n-1].settled)
		}
		c := &change{
			key:     key,
			ent:     ent,
			before:  clonePtr(ent.task),
			after:   clonePtr(ed.next),
			settled: make(chan struct{}),
		}
		ent.task = clonePtr(ed.next)
		ent.pending = append(ent.pending, c)
		changes = append(changes, c)
	}
	return changes, waits
}

func (e *Engine) settle(ctx context.Context, op *Operation, epoch uint64, changes []*change, waits []<-chan struct{}, p *plan) {
	defer e.inflight.Done()

	for _, w := range waits {
		<-w
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	res := p.persist(callCtx)
	cancel()
	err := classify(op.name, res.err)

	e.mu.Lock()
	if e.epoch == epoch {
		for _, c := range changes {
			if rec, ok := res.records[c.key]; ok {
				e.confirmLocked(c, &rec)
			} else if res.err == nil {
				e.confirmLocked(c, c.after)
			} else {
				e.revertLocked(c)
			}
		}
	}
	for _, c := range changes {
		close(c.settled)
	}
	e.changedLocked()
	if err == nil && p.succeeded != nil {
		e.queueLocked(p.succeeded()...)
	}
	if err != nil {
		e.queueLocked(Event{Type: EventStoreFailed, Op: op.name, Err: err})
	}
	userID := e.userID
	e.mu.Unlock()

	if err == nil {
		e.metrics.observe(op.name, outcomeSucceeded)
	} else {
		result := outcomeFailed
		if apperrors.IsErrorType(err, apperrors.ErrorTypePartialBatch) {
			result = outcomePartial
		}
		e.metrics.observe(op.name, result)
		e.logger.WithUserID(userID).WithError(err).Warnw("store call failed", "op", op.name, "keys", op.keys, "outcome", result)
	}

	e.flush()
	op.finish(err)
}

// confirmLocked commits c with the authoritative record rec (nil for a
// delete). When a later edit of the task is still in flight, memory keeps
// showing that edit and the record becomes its rollback point.
func (e *Engine) confirmLocked(c *change, rec *domain.Task) {
	ent := c.ent
	idx := slices.Index(ent.pending, c)
	if idx < 0 {
		return
	}
	ent.pending = slices.Delete(ent.pending, idx, idx+1)
	defer e.dropIfEmptyLocked(ent)

	var authoritative *domain.Task
	if rec != nil {
		t := rec.Clone()
		if t.LocalID == "" && c.after != nil {
			t.LocalID = c.after.LocalID
		}
		authoritative = &t
	}

	if idx < len(ent.pending) {
		ent.pending[idx].before = clonePtr(authoritative)
	} else {
		ent.task = authoritative
	}

	if authoritative != nil {
		e.rekeyLocked(ent, authoritative.Key())
	}
}

// revertLocked undoes c. When a later edit of the same task is still in
// flight, that edit inherits c's snapshot instead.
func (e *Engine) revertLocked(c *change) {
	ent := c.ent
	idx := slices.Index(ent.pending, c)
	if idx < 0 {
		return
	}
	ent.pending = slices.Delete(ent.pending, idx, idx+1)
	defer e.dropIfEmptyLocked(ent)

	if idx < len(ent.pending) {
		ent.pending[idx].before = clonePtr(c.before)
		return
	}
	ent.task = clonePtr(c.before)
}

// rekeyLocked moves a pending entry to its persisted key, leaving the old
// key as an alias.
func (e *Engine) rekeyLocked(ent *entry, key domain.Key) {
	if ent.key == key || e.entries[ent.key] != ent {
		return
	}
	delete(e.entries, ent.key)
	e.aliases[ent.key] = key
	ent.key = key
	e.entries[key] = ent
}

func (e *Engine) dropIfEmptyLocked(ent *entry) {
	if ent.task != nil || len(ent.pending) > 0 {
		return
	}
	if e.entries[ent.key] == ent {
		delete(e.entries, ent.key)
	}
}

func (e *Engine) resolveLocked(key domain.Key) domain.Key {
	if alias, ok := e.aliases[key]; ok {
		return alias
	}
	return key
}

// changedLocked queues the derived signals after memory changed.
func (e *Engine) changedLocked() {
	var running int
	for _, ent := range e.entries {
		if ent.task != nil && ent.task.IsRunning {
			running++
		}
	}
	e.metrics.setRunning(running)

	e.queueLocked(Event{Type: EventTasksChanged})
	if (running > 0) != e.running {
		e.running = running > 0
		e.queueLocked(Event{Type: EventRunningChanged, Running: e.running})
	}
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if apperrors.IsErrorType(err, apperrors.ErrorTypePartialBatch) {
		return err
	}
	return apperrors.NewStoreError(op, err)
}

func clonePtr(t *domain.Task) *domain.Task {
	if t == nil {
		return nil
	}
	c := t.Clone()
	return &c
}
