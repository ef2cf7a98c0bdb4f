package engine

import (
	"context"
	"strconv"
	"sync"
	"time"

	"chronotask/internal/domain"
	apperrors "chronotask/internal/errors"
)

// fakeStore is an in-memory Store. Calls can be failed or held per method.
type fakeStore struct {
	mu       sync.Mutex
	nextID   int64
	tasks    map[int64]domain.Task
	failures map[string]error
	holds    map[string]chan struct{}
	calls    []string
	now      func() time.Time
}

func newFakeStore(now func() time.Time) *fakeStore {
	return &fakeStore{
		nextID:   100,
		tasks:    make(map[int64]domain.Task),
		failures: make(map[string]error),
		holds:    make(map[string]chan struct{}),
		now:      now,
	}
}

func (s *fakeStore) seed(tasks ...domain.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tasks {
		s.tasks[t.ID] = t.Clone()
	}
}

// failNext makes the next call of method return err.
func (s *fakeStore) failNext(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = err
}

// hold blocks calls of method until the returned release function runs.
func (s *fakeStore) hold(method string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.holds[method] = ch
	s.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (s *fakeStore) enter(ctx context.Context, method string) error {
	s.mu.Lock()
	s.calls = append(s.calls, method)
	ch := s.holds[method]
	delete(s.holds, method)
	s.mu.Unlock()

	if ch != nil {
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.failures[method]
	delete(s.failures, method)
	return err
}

func (s *fakeStore) callCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == method {
			n++
		}
	}
	return n
}

func (s *fakeStore) stored(id int64) (domain.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return t, ok
}

func (s *fakeStore) FetchTasks(ctx context.Context, userID string, r *domain.DateRange) ([]domain.Task, error) {
	if err := s.enter(ctx, "FetchTasks"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Task
	for _, t := range s.tasks {
		if t.Owner == userID && (r == nil || r.Contains(t.Day)) {
			out = append(out, t.Clone())
		}
	}
	return domain.SortByPosition(out), nil
}

func (s *fakeStore) InsertTasks(ctx context.Context, userID string, fields []domain.NewTask) ([]domain.Task, error) {
	if err := s.enter(ctx, "InsertTasks"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Task, 0, len(fields))
	for _, f := range fields {
		s.nextID++
		t := domain.Task{
			ID:                 s.nextID,
			Owner:              userID,
			Name:               f.Name,
			AccumulatedSeconds: f.AccumulatedSeconds,
			IsCompleted:        f.IsCompleted,
			Day:                f.Day,
			PostponedTo:        f.PostponedTo,
			Position:           f.Position,
			CreatedAt:          s.now(),
			UpdatedAt:          s.now(),
		}
		t = t.WithTimer(domain.TimerState{AccumulatedSeconds: f.AccumulatedSeconds, RunningSince: f.RunningSince})
		s.tasks[t.ID] = t
		out = append(out, t.Clone())
	}
	return out, nil
}

func (s *fakeStore) UpdateTask(ctx context.Context, id int64, patch domain.Patch) (domain.Task, error) {
	if err := s.enter(ctx, "UpdateTask"); err != nil {
		return domain.Task{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return domain.Task{}, apperrors.NewNotFoundError("task", strconv.FormatInt(id, 10))
	}
	t = patch.Apply(t)
	t.UpdatedAt = s.now()
	s.tasks[id] = t
	return t.Clone(), nil
}

func (s *fakeStore) DeleteTask(ctx context.Context, id int64) error {
	if err := s.enter(ctx, "DeleteTask"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return apperrors.NewNotFoundError("task", strconv.FormatInt(id, 10))
	}
	delete(s.tasks, id)
	return nil
}

func (s *fakeStore) UpdatePositions(ctx context.Context, updates []domain.PositionUpdate) error {
	if err := s.enter(ctx, "UpdatePositions"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range updates {
		if _, ok := s.tasks[u.ID]; !ok {
			return apperrors.NewNotFoundError("task", strconv.FormatInt(u.ID, 10))
		}
	}
	for _, u := range updates {
		t := s.tasks[u.ID]
		t.Position = u.Position
		if u.Day != "" {
			t.Day = u.Day
		}
		s.tasks[u.ID] = t
	}
	return nil
}

// fakeClock is a settable wall clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
