package engine

import (
	"context"

	"chronotask/internal/domain"
)

// Operation names, also used as metric labels.
const (
	OpAdd        = "add"
	OpStartPause = "start_pause"
	OpComplete   = "complete"
	OpDelete     = "delete"
	OpPostpone   = "postpone"
	OpRename     = "rename"
	OpMove       = "move"
)

// Operation is the handle of one mutation. The in-memory change is already
// visible when the handle is returned; Wait observes the store's verdict.
type Operation struct {
	name    string
	keys    []domain.Key
	skipped bool
	reason  string
	done    chan struct{}
	err     error
}

func newOperation(name string, keys []domain.Key) *Operation {
	return &Operation{name: name, keys: keys, done: make(chan struct{})}
}

func skippedOperation(name, reason string) *Operation {
	op := &Operation{name: name, skipped: true, reason: reason, done: make(chan struct{})}
	close(op.done)
	return op
}

func (o *Operation) finish(err error) {
	o.err = err
	close(o.done)
}

// Name returns the operation name.
func (o *Operation) Name() string {
	return o.name
}

// Keys returns the keys the operation touched, as known when it was applied.
// Temporary keys keep resolving through Engine.Task after reconciliation.
func (o *Operation) Keys() []domain.Key {
	return o.keys
}

// Skipped reports whether preconditions did not hold and nothing was applied.
func (o *Operation) Skipped() bool {
	return o.skipped
}

// SkipReason explains a skipped operation.
func (o *Operation) SkipReason() string {
	return o.reason
}

// Done is closed once the store call settled.
func (o *Operation) Done() <-chan struct{} {
	return o.done
}

// Err returns the store failure, nil while in flight or on success.
func (o *Operation) Err() error {
	select {
	case <-o.done:
		return o.err
	default:
		return nil
	}
}

// Wait blocks until the operation settled or ctx ends.
func (o *Operation) Wait(ctx context.Context) error {
	select {
	case <-o.done:
		return o.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
