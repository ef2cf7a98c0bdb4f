package engine

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"chronotask/internal/domain"
	apperrors "chronotask/internal/errors"
	"chronotask/internal/logging"
	"chronotask/internal/validation"
)

// DefaultStoreTimeout bounds each store call when no timeout is configured.
const DefaultStoreTimeout = 10 * time.Second

// ErrClosed is returned by mutations issued after Close.
var ErrClosed = errors.New("engine closed")

// Store is the task persistence contract the engine depends on.
type Store interface {
	FetchTasks(ctx context.Context, userID string, r *domain.DateRange) ([]domain.Task, error)
	InsertTasks(ctx context.Context, userID string, fields []domain.NewTask) ([]domain.Task, error)
	UpdateTask(ctx context.Context, id int64, patch domain.Patch) (domain.Task, error)
	DeleteTask(ctx context.Context, id int64) error
	UpdatePositions(ctx context.Context, updates []domain.PositionUpdate) error
}

// Engine holds the active user's tasks in memory and applies every mutation
// optimistically, reconciling or rolling back once the store answers.
type Engine struct {
	store     Store
	clock     func() time.Time
	alloc     domain.Allocator
	logger    *logging.Logger
	metrics   *Metrics
	timeout   time.Duration
	newID     func() string
	validator *validation.TaskValidator

	mu      sync.Mutex
	userID  string
	loading bool
	filter  *domain.DateRange
	window  *domain.DateRange
	covered map[domain.Day]bool
	entries map[domain.Key]*entry
	aliases map[domain.Key]domain.Key
	epoch   uint64
	running bool
	closed  bool
	outbox  []Event

	inflight sync.WaitGroup

	pubMu   sync.Mutex
	subsMu  sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithAllocator sets the ordering key base and gap.
func WithAllocator(a domain.Allocator) Option {
	return func(e *Engine) {
		e.alloc = a
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMetrics records operation outcomes and the running task count.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithStoreTimeout bounds every store call made on behalf of a mutation.
func WithStoreTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithIDGenerator replaces the temporary id generator.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) {
		e.newID = gen
	}
}

// WithTaskValidator sets the name rules applied by add and rename.
func WithTaskValidator(v *validation.TaskValidator) Option {
	return func(e *Engine) {
		e.validator = v
	}
}

// New creates an engine with no active user.
func New(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		clock:     time.Now,
		alloc:     domain.NewAllocator(0, 0),
		logger:    logging.Nop(),
		timeout:   DefaultStoreTimeout,
		newID:     uuid.NewString,
		validator: validation.NewTaskValidator(),
		covered:   make(map[domain.Day]bool),
		entries:   make(map[domain.Key]*entry),
		aliases:   make(map[domain.Key]domain.Key),
		subs:      make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.WithComponent("engine")
	return e
}

// Load replaces the collection with the user's tasks in r, or today's tasks
// when r is nil. An empty userID signs the session out and clears memory.
func (e *Engine) Load(ctx context.Context, userID string, r *domain.DateRange) error {
	if r != nil {
		if err := r.Validate(); err != nil {
			return err
		}
		rc := *r
		r = &rc
	}

	e.mu.Lock()
	e.epoch++
	epoch := e.epoch
	e.userID = userID
	e.filter = r
	e.window = nil
	e.covered = make(map[domain.Day]bool)
	e.entries = make(map[domain.Key]*entry)
	e.aliases = make(map[domain.Key]domain.Key)
	e.loading = userID != ""
	e.changedLocked()
	window := domain.SingleDay(domain.DayOf(e.clock()))
	e.mu.Unlock()
	e.flush()

	if userID == "" {
		return nil
	}
	if r != nil {
		window = *r
	}

	fetchCtx, cancel := context.WithTimeout(ctx, e.timeout)
	tasks, err := e.store.FetchTasks(fetchCtx, userID, &window)
	cancel()

	e.mu.Lock()
	if e.epoch != epoch {
		// a later Load replaced this one
		e.mu.Unlock()
		return err
	}
	e.loading = false
	if err == nil {
		e.window = &window
		for _, t := range tasks {
			if !t.Valid() {
				e.logger.Warnw("loaded task violates invariants", "key", t.Key(), "state", t.State().String())
			}
			task := t.Clone()
			e.entries[t.Key()] = &entry{key: t.Key(), task: &task}
		}
	}
	e.changedLocked()
	e.mu.Unlock()
	e.flush()

	if err != nil {
		e.logger.WithUserID(userID).WithError(err).Warnw("fetch tasks failed")
		return err
	}
	e.logger.WithUserID(userID).Debugw("tasks loaded", "count", len(tasks), "from", window.From, "to", window.End())
	return nil
}

// UserID returns the active user, empty when signed out.
func (e *Engine) UserID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.userID
}

// coverDays fetches the tasks of every day outside the loaded window, so
// positions allocated on those days account for the whole day. Fetched tasks
// stay in memory but outside the active filter.
func (e *Engine) coverDays(ctx context.Context, days ...domain.Day) error {
	e.mu.Lock()
	if e.closed || e.userID == "" {
		e.mu.Unlock()
		return nil
	}
	var missing []domain.Day
	for _, d := range days {
		if !e.coversLocked(d) && !slices.Contains(missing, d) {
			missing = append(missing, d)
		}
	}
	epoch, userID := e.epoch, e.userID
	e.mu.Unlock()

	for _, day := range missing {
		r := domain.SingleDay(day)
		fetchCtx, cancel := context.WithTimeout(ctx, e.timeout)
		tasks, err := e.store.FetchTasks(fetchCtx, userID, &r)
		cancel()
		if err != nil {
			e.logger.WithUserID(userID).WithError(err).Warnw("fetch day failed", "day", day)
			return apperrors.NewStoreError("fetch day", err)
		}

		e.mu.Lock()
		if e.epoch != epoch {
			e.mu.Unlock()
			return nil
		}
		if !e.coversLocked(day) {
			for _, t := range tasks {
				if _, ok := e.entries[e.resolveLocked(t.Key())]; ok {
					continue
				}
				task := t.Clone()
				e.entries[t.Key()] = &entry{key: t.Key(), task: &task}
			}
			e.covered[day] = true
			e.changedLocked()
		}
		e.mu.Unlock()
		e.flush()
		e.logger.WithUserID(userID).Debugw("day fetched outside filter", "day", day, "count", len(tasks))
	}
	return nil
}

// coversLocked reports whether every stored task of day is in memory.
func (e *Engine) coversLocked(day domain.Day) bool {
	return e.covered[day] || (e.window != nil && e.window.Contains(day))
}

// Loading reports whether a Load is waiting for the store.
func (e *Engine) Loading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loading
}

// Filter returns the active date range, nil meaning today.
func (e *Engine) Filter() *domain.DateRange {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.filter == nil {
		return nil
	}
	r := *e.filter
	return &r
}

// Today returns the current local day.
func (e *Engine) Today() domain.Day {
	return domain.DayOf(e.clock())
}

// Now returns the engine clock's current instant.
func (e *Engine) Now() time.Time {
	return e.clock()
}

// Tasks returns a snapshot of every task in memory, ordered by day and position.
func (e *Engine) Tasks() []domain.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tasksLocked()
}

// Task looks a task up by persisted or temporary key.
func (e *Engine) Task(key domain.Key) (domain.Task, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.lookupLocked(key)
	if !ok {
		return domain.Task{}, false
	}
	return ent.task.Clone(), true
}

// Grouped returns the tasks visible under the active filter, grouped by day.
func (e *Engine) Grouped() map[domain.Day][]domain.Task {
	e.mu.Lock()
	tasks := e.tasksLocked()
	filter := e.filter
	e.mu.Unlock()
	return domain.GroupByDay(domain.Filter(tasks, filter, e.Today()))
}

// HasRunningTasks reports whether any task in memory is running.
func (e *Engine) HasRunningTasks() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return domain.HasRunning(e.tasksLocked())
}

// Wait blocks until every in-flight store call has settled or ctx ends.
func (e *Engine) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close rejects further mutations and drops all subscribers. In-flight store
// calls still settle; use Wait first to observe them.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	e.subsMu.Lock()
	e.subs = make(map[int]func(Event))
	e.subsMu.Unlock()
}

func (e *Engine) tasksLocked() []domain.Task {
	tasks := make([]domain.Task, 0, len(e.entries))
	for _, ent := range e.entries {
		if ent.task != nil {
			tasks = append(tasks, ent.task.Clone())
		}
	}
	tasks = domain.SortByPosition(tasks)
	slices.SortStableFunc(tasks, func(x, y domain.Task) int {
		switch {
		case x.Day < y.Day:
			return -1
		case x.Day > y.Day:
			return 1
		}
		return 0
	})
	return tasks
}

func (e *Engine) lookupLocked(key domain.Key) (*entry, bool) {
	if alias, ok := e.aliases[key]; ok {
		key = alias
	}
	ent, ok := e.entries[key]
	if !ok || ent.task == nil {
		return nil, false
	}
	return ent, true
}
