package domain

import (
	"strconv"
	"strings"
	"time"
)

// State is the operability of a task at an instant.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StatePostponed
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StatePostponed:
		return "postponed"
	default:
		return "unknown"
	}
}

// Key identifies a task in memory. A task is addressed by its local id until
// the store assigns a permanent one.
type Key string

const pendingPrefix = "local:"

// PersistedKey is the key of a task the store has assigned id to.
func PersistedKey(id int64) Key {
	return Key(strconv.FormatInt(id, 10))
}

// PendingKey is the key of a task that only exists locally.
func PendingKey(localID string) Key {
	return Key(pendingPrefix + localID)
}

// ParseKey accepts either a numeric store id or a "local:" prefixed id.
func ParseKey(s string) (Key, bool) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, pendingPrefix) && len(s) > len(pendingPrefix) {
		return Key(s), true
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return "", false
	}
	return PersistedKey(id), true
}

// IsPending reports whether the key refers to a task without a store id.
func (k Key) IsPending() bool {
	return strings.HasPrefix(string(k), pendingPrefix)
}

// Task is the single entity of the tracker.
type Task struct {
	ID                 int64     `json:"id" yaml:"id"`
	LocalID            string    `json:"local_id,omitempty" yaml:"local_id,omitempty"`
	Owner              string    `json:"owner" yaml:"owner"`
	Name               string    `json:"name" yaml:"name"`
	AccumulatedSeconds int64     `json:"accumulated_seconds" yaml:"accumulated_seconds"`
	RunningSince       *int64    `json:"running_since,omitempty" yaml:"running_since,omitempty"` // ms since epoch
	IsRunning          bool      `json:"is_running" yaml:"is_running"`
	IsCompleted        bool      `json:"is_completed" yaml:"is_completed"`
	Day                Day       `json:"day" yaml:"day"`
	PostponedTo        *Day      `json:"postponed_to,omitempty" yaml:"postponed_to,omitempty"`
	Position           int64     `json:"position" yaml:"position"`
	CreatedAt          time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" yaml:"updated_at"`
}

// Key returns the persisted key when the store has assigned an id, the pending key otherwise.
func (t Task) Key() Key {
	if t.ID > 0 {
		return PersistedKey(t.ID)
	}
	return PendingKey(t.LocalID)
}

// IsPending reports whether the task is still waiting for a store id.
func (t Task) IsPending() bool {
	return t.ID <= 0
}

// IsPostponed reports whether the task was superseded by a copy on a later day.
func (t Task) IsPostponed() bool {
	return t.PostponedTo != nil
}

// IsActive reports whether the task still accepts timer, rename and reorder operations.
func (t Task) IsActive() bool {
	return !t.IsCompleted && !t.IsPostponed()
}

// State derives the task's state machine position.
func (t Task) State() State {
	switch {
	case t.IsCompleted:
		return StateCompleted
	case t.IsPostponed():
		return StatePostponed
	case t.IsRunning:
		return StateRunning
	default:
		return StateIdle
	}
}

// Valid checks the record invariants.
func (t Task) Valid() bool {
	if t.IsRunning != (t.RunningSince != nil) {
		return false
	}
	if t.IsRunning && !t.IsActive() {
		return false
	}
	return t.AccumulatedSeconds >= 0
}

// Clone returns a deep copy so snapshots never share pointer fields with live records.
func (t Task) Clone() Task {
	c := t
	if t.RunningSince != nil {
		since := *t.RunningSince
		c.RunningSince = &since
	}
	if t.PostponedTo != nil {
		day := *t.PostponedTo
		c.PostponedTo = &day
	}
	return c
}

// Timer returns the timer triple as written to the store.
func (t Task) Timer() TimerState {
	return TimerState{AccumulatedSeconds: t.AccumulatedSeconds, RunningSince: t.RunningSince}
}

// WithTimer replaces the timer triple, keeping IsRunning in step with RunningSince.
func (t Task) WithTimer(timer TimerState) Task {
	t.AccumulatedSeconds = timer.AccumulatedSeconds
	t.RunningSince = timer.RunningSince
	t.IsRunning = timer.RunningSince != nil
	return t
}

// Started returns a copy running from now.
func (t Task) Started(now time.Time) Task {
	since := now.UnixMilli()
	return t.WithTimer(TimerState{AccumulatedSeconds: t.AccumulatedSeconds, RunningSince: &since})
}

// Stopped returns a copy with the running span folded into AccumulatedSeconds.
// Stopping an idle task returns it unchanged.
func (t Task) Stopped(now time.Time) Task {
	if !t.IsRunning {
		return t
	}
	return t.WithTimer(TimerState{AccumulatedSeconds: ElapsedSeconds(t, now)})
}

// TimerState is the persisted timer triple; IsRunning is derived from RunningSince.
type TimerState struct {
	AccumulatedSeconds int64
	RunningSince       *int64
}

// IsRunning reports whether the timer has a start timestamp.
func (ts TimerState) IsRunning() bool {
	return ts.RunningSince != nil
}

// NewTask holds the fields supplied when inserting a task. The store assigns
// id and timestamps.
type NewTask struct {
	Name               string `validate:"required,max=255"`
	AccumulatedSeconds int64  `validate:"gte=0"`
	RunningSince       *int64
	IsCompleted        bool
	Day                Day `validate:"required,datetime=2006-01-02"`
	PostponedTo        *Day
	Position           int64
}

// Fields returns the insertable part of a task.
func (t Task) Fields() NewTask {
	return NewTask{
		Name:               t.Name,
		AccumulatedSeconds: t.AccumulatedSeconds,
		RunningSince:       t.RunningSince,
		IsCompleted:        t.IsCompleted,
		Day:                t.Day,
		PostponedTo:        t.PostponedTo,
		Position:           t.Position,
	}
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Name        *string
	Timer       *TimerState
	IsCompleted *bool
	Day         *Day
	PostponedTo *Day
	Position    *int64
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Name == nil && p.Timer == nil && p.IsCompleted == nil &&
		p.Day == nil && p.PostponedTo == nil && p.Position == nil
}

// Apply returns a copy of t with the patch applied.
func (p Patch) Apply(t Task) Task {
	t = t.Clone()
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.Timer != nil {
		t = t.WithTimer(*p.Timer)
	}
	if p.IsCompleted != nil {
		t.IsCompleted = *p.IsCompleted
	}
	if p.Day != nil {
		t.Day = *p.Day
	}
	if p.PostponedTo != nil {
		day := *p.PostponedTo
		t.PostponedTo = &day
	}
	if p.Position != nil {
		t.Position = *p.Position
	}
	return t
}

// PositionUpdate is one row of a bulk ordering write. Day is the day the
// task belongs to after the write.
type PositionUpdate struct {
	ID       int64
	Position int64
	Day      Day
}
