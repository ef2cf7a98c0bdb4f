package engine

import (
	"slices"

	"chronotask/internal/domain"
)

// EventType identifies a derived signal.
type EventType int

const (
	// EventTasksChanged fires after any change to the in-memory collection.
	EventTasksChanged EventType = iota
	// EventRunningChanged fires when HasRunningTasks flips.
	EventRunningChanged
	// EventTaskCompleted fires once per completion the store accepted.
	EventTaskCompleted
	// EventStoreFailed fires when a store call failed and memory was rolled back.
	EventStoreFailed
)

func (t EventType) String() string {
	switch t {
	case EventTasksChanged:
		return "tasks_changed"
	case EventRunningChanged:
		return "running_changed"
	case EventTaskCompleted:
		return "task_completed"
	case EventStoreFailed:
		return "store_failed"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers in the order it happened.
type Event struct {
	Type    EventType
	Op      string
	Key     domain.Key
	Running bool
	Err     error
}

// Subscribe registers fn for every event and returns a function removing it.
// Handlers run one at a time outside the engine lock; they may read from the
// engine but must not issue mutations synchronously.
func (e *Engine) Subscribe(fn func(Event)) (unsubscribe func()) {
	e.subsMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	e.subsMu.Unlock()

	return func() {
		e.subsMu.Lock()
		delete(e.subs, id)
		e.subsMu.Unlock()
	}
}

// queueLocked appends events to the outbox. Events are queued under the
// engine lock, so the outbox holds them in the order they happened.
func (e *Engine) queueLocked(events ...Event) {
	e.outbox = append(e.outbox, events...)
}

// flush delivers every queued event in queue order. Concurrent callers
// serialize on pubMu; whichever drains first delivers the others' events too.
func (e *Engine) flush() {
	e.pubMu.Lock()
	defer e.pubMu.Unlock()

	e.mu.Lock()
	events := e.outbox
	e.outbox = nil
	e.mu.Unlock()
	if len(events) == 0 {
		return
	}

	e.subsMu.Lock()
	ids := make([]int, 0, len(e.subs))
	for id := range e.subs {
		ids = append(ids, id)
	}
	handlers := make([]func(Event), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		handlers = append(handlers, e.subs[id])
	}
	e.subsMu.Unlock()

	for _, ev := range events {
		for _, h := range handlers {
			h(ev)
		}
	}
}
