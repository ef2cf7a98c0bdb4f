package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronotask/internal/domain"
	apperrors "chronotask/internal/errors"
)

const testUser = "user-1"

var (
	errBackend = errors.New("backend unavailable")
	allDays    = &domain.DateRange{From: "2024-01-01", To: "2024-12-31"}
)

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) record(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) count(typ EventType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func (l *eventLog) ofType(typ EventType) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, ev := range l.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

type harness struct {
	engine *Engine
	store  *fakeStore
	clock  *fakeClock
	events *eventLog
}

func setupAt(t *testing.T, now time.Time, seed ...domain.Task) *harness {
	t.Helper()

	clock := &fakeClock{now: now}
	store := newFakeStore(clock.Now)
	store.seed(seed...)

	var ids int
	e := New(store,
		WithClock(clock.Now),
		WithStoreTimeout(time.Second),
		WithIDGenerator(func() string {
			ids++
			return fmt.Sprintf("tmp-%d", ids)
		}),
	)
	log := &eventLog{}
	t.Cleanup(e.Subscribe(log.record))
	t.Cleanup(e.Close)

	require.NoError(t, e.Load(context.Background(), testUser, allDays))
	return &harness{engine: e, store: store, clock: clock, events: log}
}

func setup(t *testing.T, seed ...domain.Task) *harness {
	return setupAt(t, time.Date(2024, 3, 5, 10, 0, 0, 0, time.Local), seed...)
}

func seeded(id int64, name string, day domain.Day, position int64) domain.Task {
	created := time.Date(2024, 1, 1, 8, 0, 0, 0, time.Local)
	return domain.Task{
		ID:        id,
		Owner:     testUser,
		Name:      name,
		Day:       day,
		Position:  position,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func runningSeed(id int64, name string, day domain.Day, since time.Time, accumulated int64) domain.Task {
	t := seeded(id, name, day, 1000)
	return t.WithTimer(domain.TimerState{AccumulatedSeconds: accumulated, RunningSince: ptr(since.UnixMilli())})
}

func ptr(v int64) *int64 {
	return &v
}

func wait(t *testing.T, op *Operation) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := op.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "operation %s did not settle", op.Name())
	return err
}

func mustTask(t *testing.T, e *Engine, key domain.Key) domain.Task {
	t.Helper()
	task, ok := e.Task(key)
	require.True(t, ok, "task %s not in memory", key)
	return task
}

func assertInvariants(t *testing.T, e *Engine) {
	t.Helper()
	for _, task := range e.Tasks() {
		assert.True(t, task.Valid(), "task %s violates invariants: %+v", task.Key(), task)
	}
}

func onDay(tasks []domain.Task, day domain.Day) []domain.Task {
	var out []domain.Task
	for _, t := range tasks {
		if t.Day == day {
			out = append(out, t)
		}
	}
	return out
}

func TestEngine_RejectsMutationsWithoutUser(t *testing.T) {
	store := newFakeStore(time.Now)
	e := New(store)

	ops := map[string]func() (*Operation, error){
		OpAdd:        func() (*Operation, error) { return e.Add(context.Background(), []string{"x"}, nil) },
		OpStartPause: func() (*Operation, error) { return e.StartPause(context.Background(), "1") },
		OpComplete:   func() (*Operation, error) { return e.Complete(context.Background(), "1") },
		OpDelete:     func() (*Operation, error) { return e.Delete(context.Background(), "1") },
		OpPostpone:   func() (*Operation, error) { return e.Postpone(context.Background(), "1") },
		OpRename:     func() (*Operation, error) { return e.Rename(context.Background(), "1", "y") },
		OpMove:       func() (*Operation, error) { return e.Move(context.Background(), "1", "2024-03-05", 0) },
	}
	for name, call := range ops {
		t.Run(name, func(t *testing.T) {
			op, err := call()
			assert.Nil(t, op)
			assert.ErrorIs(t, err, apperrors.ErrNoUser)
		})
	}
	assert.Empty(t, store.calls)
}

func TestEngine_Load(t *testing.T) {
	h := setup(t,
		seeded(1, "today", "2024-03-05", 1000),
		seeded(2, "earlier", "2024-03-01", 1000),
	)
	assert.Len(t, h.engine.Tasks(), 2)
	assert.False(t, h.engine.Loading())
	assert.Equal(t, testUser, h.engine.UserID())

	t.Run("nil range loads today only", func(t *testing.T) {
		require.NoError(t, h.engine.Load(context.Background(), testUser, nil))
		tasks := h.engine.Tasks()
		require.Len(t, tasks, 1)
		assert.Equal(t, "today", tasks[0].Name)
		assert.Nil(t, h.engine.Filter())

		grouped := h.engine.Grouped()
		assert.Equal(t, []domain.Day{"2024-03-05"}, domain.SortedDays(grouped))
	})

	t.Run("sign out clears memory", func(t *testing.T) {
		require.NoError(t, h.engine.Load(context.Background(), "", nil))
		assert.Empty(t, h.engine.Tasks())
		_, err := h.engine.StartPause(context.Background(), "1")
		assert.ErrorIs(t, err, apperrors.ErrNoUser)
	})

	t.Run("fetch failure", func(t *testing.T) {
		h.store.failNext("FetchTasks", errBackend)
		err := h.engine.Load(context.Background(), testUser, nil)
		assert.ErrorIs(t, err, errBackend)
		assert.False(t, h.engine.Loading())
		assert.Empty(t, h.engine.Tasks())
	})

	t.Run("invalid range", func(t *testing.T) {
		err := h.engine.Load(context.Background(), testUser, &domain.DateRange{From: "2024-03-05", To: "2024-03-01"})
		assert.Error(t, err)
	})
}

func TestEngine_Add(t *testing.T) {
	t.Run("blank lines are dropped", func(t *testing.T) {
		h := setup(t, seeded(1, "existing", "2024-03-04", 5000))

		op, err := h.engine.Add(context.Background(), []string{"  ", "Write report", ""}, nil)
		require.NoError(t, err)
		require.False(t, op.Skipped())
		require.NoError(t, wait(t, op))

		today := onDay(h.engine.Tasks(), "2024-03-05")
		require.Len(t, today, 1)
		assert.Equal(t, "Write report", today[0].Name)
		assert.Greater(t, today[0].ID, int64(0))
		assert.Equal(t, int64(1000), today[0].Position)
		assert.Equal(t, int64(0), today[0].AccumulatedSeconds)

		require.Len(t, op.Keys(), 1)
		assert.True(t, op.Keys()[0].IsPending())
		resolved := mustTask(t, h.engine, op.Keys()[0])
		assert.Equal(t, today[0].ID, resolved.ID)
		assert.Equal(t, "tmp-1", resolved.LocalID)
		assertInvariants(t, h.engine)
	})

	t.Run("positions follow the day maximum", func(t *testing.T) {
		h := setup(t, seeded(1, "a", "2024-03-05", 2000))

		day := domain.Day("2024-03-05")
		op, err := h.engine.Add(context.Background(), []string{"b", "c"}, &day)
		require.NoError(t, err)
		require.NoError(t, wait(t, op))

		tasks := onDay(h.engine.Tasks(), day)
		require.Len(t, tasks, 3)
		assert.Equal(t, []int64{2000, 3000, 4000}, []int64{tasks[0].Position, tasks[1].Position, tasks[2].Position})
		assert.Equal(t, 1, h.store.callCount("InsertTasks"))
	})

	t.Run("explicit day", func(t *testing.T) {
		h := setup(t)
		day := domain.Day("2024-03-09")
		op, err := h.engine.Add(context.Background(), []string{"later"}, &day)
		require.NoError(t, err)
		require.NoError(t, wait(t, op))
		assert.Len(t, onDay(h.engine.Tasks(), day), 1)
	})

	t.Run("nothing but blanks is skipped", func(t *testing.T) {
		h := setup(t)
		op, err := h.engine.Add(context.Background(), []string{"", "   "}, nil)
		require.NoError(t, err)
		assert.True(t, op.Skipped())
		assert.NoError(t, wait(t, op))
		assert.Zero(t, h.store.callCount("InsertTasks"))
	})

	t.Run("store failure removes the batch", func(t *testing.T) {
		h := setup(t, seeded(1, "existing", "2024-03-05", 1000))
		release := h.store.hold("InsertTasks")
		h.store.failNext("InsertTasks", errBackend)

		op, err := h.engine.Add(context.Background(), []string{"a", "b"}, nil)
		require.NoError(t, err)
		assert.Len(t, h.engine.Tasks(), 3, "optimistic tasks are visible before the store answers")

		release()
		err = wait(t, op)
		assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeStore))
		assert.ErrorIs(t, err, errBackend)

		tasks := h.engine.Tasks()
		require.Len(t, tasks, 1)
		assert.Equal(t, "existing", tasks[0].Name)
		_, ok := h.engine.Task(op.Keys()[0])
		assert.False(t, ok)
		assert.Equal(t, 1, h.events.count(EventStoreFailed))
	})
}

func TestEngine_StartPause(t *testing.T) {
	t.Run("start then pause folds elapsed time", func(t *testing.T) {
		h := setup(t, seeded(7, "focus", "2024-03-05", 1000))

		op, err := h.engine.StartPause(context.Background(), "7")
		require.NoError(t, err)
		require.NoError(t, wait(t, op))

		task := mustTask(t, h.engine, "7")
		assert.True(t, task.IsRunning)
		require.NotNil(t, task.RunningSince)
		assert.Equal(t, h.clock.Now().UnixMilli(), *task.RunningSince)
		assert.True(t, h.engine.HasRunningTasks())

		h.clock.Advance(90*time.Second + 600*time.Millisecond)
		op, err = h.engine.StartPause(context.Background(), "7")
		require.NoError(t, err)
		require.NoError(t, wait(t, op))

		task = mustTask(t, h.engine, "7")
		assert.False(t, task.IsRunning)
		assert.Nil(t, task.RunningSince)
		assert.Equal(t, int64(91), task.AccumulatedSeconds)
		assert.False(t, h.engine.HasRunningTasks())

		stored, ok := h.store.stored(7)
		require.True(t, ok)
		assert.Equal(t, stored, task)
		assertInvariants(t, h.engine)

		running := h.events.ofType(EventRunningChanged)
		require.Len(t, running, 2)
		assert.True(t, running[0].Running)
		assert.False(t, running[1].Running)
	})

	t.Run("store failure restores the snapshot exactly", func(t *testing.T) {
		h := setup(t, seeded(7, "focus", "2024-03-05", 1000))
		before := mustTask(t, h.engine, "7")

		release := h.store.hold("UpdateTask")
		h.store.failNext("UpdateTask", errBackend)

		op, err := h.engine.StartPause(context.Background(), "7")
		require.NoError(t, err)

		optimistic := mustTask(t, h.engine, "7")
		assert.True(t, optimistic.IsRunning)
		require.NotNil(t, optimistic.RunningSince)
		assertInvariants(t, h.engine)

		release()
		err = wait(t, op)
		assert.ErrorIs(t, err, errBackend)

		assert.Equal(t, before, mustTask(t, h.engine, "7"))
		assert.False(t, h.engine.HasRunningTasks())
		assertInvariants(t, h.engine)
	})

	t.Run("skips", func(t *testing.T) {
		completed := seeded(2, "done", "2024-03-05", 2000)
		completed.IsCompleted = true
		postponed := seeded(3, "moved", "2024-03-04", 1000)
		postponed.PostponedTo = domain.Day("2024-03-05").Ptr()
		h := setup(t, completed, postponed)

		for _, key := range []domain.Key{"2", "3", "99"} {
			op, err := h.engine.StartPause(context.Background(), key)
			require.NoError(t, err)
			assert.True(t, op.Skipped(), "key %s", key)
		}
		assert.Zero(t, h.store.callCount("UpdateTask"))
	})
}

func TestEngine_Complete(t *testing.T) {
	t.Run("running task is folded and completed once", func(t *testing.T) {
		now := time.Date(2024, 3, 5, 10, 0, 0, 0, time.Local)
		h := setupAt(t, now, runningSeed(4, "deep work", "2024-03-05", now.Add(-2*time.Minute), 30))

		op, err := h.engine.Complete(context.Background(), "4")
		require.NoError(t, err)
		require.NoError(t, wait(t, op))

		first := mustTask(t, h.engine, "4")
		assert.True(t, first.IsCompleted)
		assert.False(t, first.IsRunning)
		assert.Nil(t, first.RunningSince)
		assert.Equal(t, int64(150), first.AccumulatedSeconds)
		assert.Equal(t, domain.StateCompleted, first.State())

		op, err = h.engine.Complete(context.Background(), "4")
		require.NoError(t, err)
		assert.True(t, op.Skipped())
		assert.Equal(t, first, mustTask(t, h.engine, "4"))

		completed := h.events.ofType(EventTaskCompleted)
		require.Len(t, completed, 1)
		assert.Equal(t, domain.Key("4"), completed[0].Key)
		assert.Equal(t, 1, h.store.callCount("UpdateTask"))
		assertInvariants(t, h.engine)
	})

	t.Run("failure rolls back without the completion cue", func(t *testing.T) {
		h := setup(t, seeded(4, "deep work", "2024-03-05", 1000))
		before := mustTask(t, h.engine, "4")
		h.store.failNext("UpdateTask", errBackend)

		op, err := h.engine.Complete(context.Background(), "4")
		require.NoError(t, err)
		assert.Error(t, wait(t, op))

		assert.Equal(t, before, mustTask(t, h.engine, "4"))
		assert.Zero(t, h.events.count(EventTaskCompleted))
		assert.Equal(t, 1, h.events.count(EventStoreFailed))
	})
}

func TestEngine_Delete(t *testing.T) {
	t.Run("removes the task", func(t *testing.T) {
		h := setup(t, seeded(5, "scratch", "2024-03-05", 1000))

		op, err := h.engine.Delete(context.Background(), "5")
		require.NoError(t, err)
		_, ok := h.engine.Task("5")
		assert.False(t, ok, "removed before the store answers")

		require.NoError(t, wait(t, op))
		_, ok = h.store.stored(5)
		assert.False(t, ok)
	})

	t.Run("completed tasks can be deleted", func(t *testing.T) {
		done := seeded(5, "scratch", "2024-03-05", 1000)
		done.IsCompleted = true
		h := setup(t, done)

		op, err := h.engine.Delete(context.Background(), "5")
		require.NoError(t, err)
		require.NoError(t, wait(t, op))
		assert.Empty(t, h.engine.Tasks())
	})

	t.Run("failure re-inserts the record", func(t *testing.T) {
		h := setup(t, seeded(5, "scratch", "2024-03-05", 1000))
		before := mustTask(t, h.engine, "5")
		h.store.failNext("DeleteTask", errBackend)

		op, err := h.engine.Delete(context.Background(), "5")
		require.NoError(t, err)
		assert.ErrorIs(t, wait(t, op), errBackend)
		assert.Equal(t, before, mustTask(t, h.engine, "5"))
	})

	t.Run("unknown to the store counts as deleted", func(t *testing.T) {
		h := setup(t, seeded(5, "scratch", "2024-03-05", 1000))
		h.store.failNext("DeleteTask", apperrors.NewNotFoundError("task", "5"))

		op, err := h.engine.Delete(context.Background(), "5")
		require.NoError(t, err)
		assert.NoError(t, wait(t, op))
		_, ok := h.engine.Task("5")
		assert.False(t, ok)
	})
}

func TestEngine_Postpone(t *testing.T) {
	jan2 := time.Date(2024, 1, 2, 9, 0, 0, 0, time.Local)

	t.Run("spawns exactly one sibling", func(t *testing.T) {
		h := setupAt(t, jan2, seeded(3, "Draft", "2024-01-01", 1000))

		op, err := h.engine.Postpone(context.Background(), "3")
		require.NoError(t, err)
		require.NoError(t, wait(t, op))

		original := mustTask(t, h.engine, "3")
		require.NotNil(t, original.PostponedTo)
		assert.Equal(t, domain.Day("2024-01-02"), *original.PostponedTo)
		assert.Equal(t, domain.Day("2024-01-01"), original.Day)
		assert.Equal(t, domain.StatePostponed, original.State())

		siblings := onDay(h.engine.Tasks(), "2024-01-02")
		require.Len(t, siblings, 1)
		assert.Equal(t, "Draft", siblings[0].Name)
		assert.Equal(t, int64(0), siblings[0].AccumulatedSeconds)
		assert.Nil(t, siblings[0].PostponedTo)
		assert.False(t, siblings[0].IsRunning)
		assert.Greater(t, siblings[0].ID, int64(0))
		assertInvariants(t, h.engine)

		op, err = h.engine.StartPause(context.Background(), "3")
		require.NoError(t, err)
		assert.True(t, op.Skipped())
	})

	t.Run("running original is stopped first", func(t *testing.T) {
		h := setupAt(t, jan2, runningSeed(3, "Draft", "2024-01-01", jan2.Add(-time.Minute), 10))

		op, err := h.engine.Postpone(context.Background(), "3")
		require.NoError(t, err)
		require.NoError(t, wait(t, op))

		original := mustTask(t, h.engine, "3")
		assert.False(t, original.IsRunning)
		assert.Equal(t, int64(70), original.AccumulatedSeconds)
		assert.False(t, h.engine.HasRunningTasks())
	})

	t.Run("update failure reverts everything", func(t *testing.T) {
		h := setupAt(t, jan2, seeded(3, "Draft", "2024-01-01", 1000))
		before := h.engine.Tasks()
		h.store.failNext("UpdateTask", errBackend)

		op, err := h.engine.Postpone(context.Background(), "3")
		require.NoError(t, err)
		err = wait(t, op)
		assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeStore))

		assert.Equal(t, before, h.engine.Tasks())
		assert.Zero(t, h.store.callCount("InsertTasks"))
	})

	t.Run("sibling insert failure keeps the stored original", func(t *testing.T) {
		h := setupAt(t, jan2, seeded(3, "Draft", "2024-01-01", 1000))
		h.store.failNext("InsertTasks", errBackend)

		op, err := h.engine.Postpone(context.Background(), "3")
		require.NoError(t, err)
		err = wait(t, op)
		require.Error(t, err)
		assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypePartialBatch))
		assert.ErrorIs(t, err, errBackend)

		stored, ok := h.store.stored(3)
		require.True(t, ok)
		assert.Equal(t, stored, mustTask(t, h.engine, "3"))
		assert.True(t, mustTask(t, h.engine, "3").IsPostponed())
		assert.Empty(t, onDay(h.engine.Tasks(), "2024-01-02"))
		assertInvariants(t, h.engine)
	})

	t.Run("skips completed and postponed tasks", func(t *testing.T) {
		done := seeded(1, "done", "2024-01-01", 1000)
		done.IsCompleted = true
		moved := seeded(2, "moved", "2024-01-01", 2000)
		moved.PostponedTo = domain.Day("2024-01-02").Ptr()
		h := setupAt(t, jan2, done, moved)

		for _, key := range []domain.Key{"1", "2", "42"} {
			op, err := h.engine.Postpone(context.Background(), key)
			require.NoError(t, err)
			assert.True(t, op.Skipped())
		}
	})
}

func TestEngine_Rename(t *testing.T) {
	done := seeded(2, "done", "2024-03-05", 2000)
	done.IsCompleted = true
	h := setup(t, seeded(1, "old", "2024-03-05", 1000), done)

	tests := []struct {
		name    string
		key     domain.Key
		input   string
		skipped bool
	}{
		{"blank", "1", "   ", true},
		{"unchanged", "1", " old ", true},
		{"completed", "2", "new", true},
		{"control characters", "1", "a\nb", true},
		{"renamed", "1", "  new name ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, err := h.engine.Rename(context.Background(), tt.key, tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.skipped, op.Skipped())
			require.NoError(t, wait(t, op))
		})
	}

	assert.Equal(t, "new name", mustTask(t, h.engine, "1").Name)
	assert.Equal(t, 1, h.store.callCount("UpdateTask"))
}

func TestEngine_Move(t *testing.T) {
	day := domain.Day("2024-03-05")
	other := domain.Day("2024-03-04")
	seed := []domain.Task{
		seeded(1, "a", day, 1000),
		seeded(2, "b", day, 2000),
		seeded(3, "c", day, 3000),
		seeded(4, "d", other, 1000),
	}

	t.Run("reorder within a day", func(t *testing.T) {
		h := setup(t, seed...)

		op, err := h.engine.Move(context.Background(), "3", day, 0)
		require.NoError(t, err)
		require.NoError(t, wait(t, op))

		tasks := onDay(h.engine.Tasks(), day)
		require.Len(t, tasks, 3)
		assert.Equal(t, "c", tasks[0].Name)
		assert.Equal(t, []int64{1000, 2000, 3000}, []int64{tasks[0].Position, tasks[1].Position, tasks[2].Position})
		assert.Equal(t, int64(1000), mustTask(t, h.engine, "4").Position)
		assert.Equal(t, 1, h.store.callCount("UpdatePositions"))

		stored, _ := h.store.stored(3)
		assert.Equal(t, int64(1000), stored.Position)
		assertInvariants(t, h.engine)
	})

	t.Run("move across days", func(t *testing.T) {
		h := setup(t, seed...)

		op, err := h.engine.Move(context.Background(), "1", other, 1)
		require.NoError(t, err)
		require.NoError(t, wait(t, op))

		dest := onDay(h.engine.Tasks(), other)
		require.Len(t, dest, 2)
		assert.Equal(t, []string{"d", "a"}, []string{dest[0].Name, dest[1].Name})
		assert.Equal(t, int64(2000), dest[1].Position)

		source := onDay(h.engine.Tasks(), day)
		require.Len(t, source, 2)
		assert.Equal(t, []int64{1000, 2000}, []int64{source[0].Position, source[1].Position})

		stored, _ := h.store.stored(1)
		assert.Equal(t, other, stored.Day)
		assert.Equal(t, 1, h.store.callCount("UpdatePositions"))
	})

	t.Run("failure reverts every affected task", func(t *testing.T) {
		h := setup(t, seed...)
		before := h.engine.Tasks()
		h.store.failNext("UpdatePositions", errBackend)

		op, err := h.engine.Move(context.Background(), "1", other, 0)
		require.NoError(t, err)
		assert.ErrorIs(t, wait(t, op), errBackend)
		assert.Equal(t, before, h.engine.Tasks())
	})

	t.Run("skips", func(t *testing.T) {
		done := seeded(5, "done", day, 4000)
		done.IsCompleted = true
		h := setup(t, append(seed, done)...)

		op, err := h.engine.Move(context.Background(), "5", day, 0)
		require.NoError(t, err)
		assert.True(t, op.Skipped(), "completed")

		op, err = h.engine.Move(context.Background(), "2", day, 1)
		require.NoError(t, err)
		assert.True(t, op.Skipped(), "same index")

		op, err = h.engine.Move(context.Background(), "2", "not-a-day", 0)
		require.NoError(t, err)
		assert.True(t, op.Skipped(), "invalid day")
	})

	t.Run("days with unsaved tasks cannot be reordered", func(t *testing.T) {
		h := setup(t, seed...)
		release := h.store.hold("InsertTasks")
		defer release()

		add, err := h.engine.Add(context.Background(), []string{"new"}, nil)
		require.NoError(t, err)

		op, err := h.engine.Move(context.Background(), "1", day, 2)
		require.NoError(t, err)
		assert.True(t, op.Skipped())

		release()
		require.NoError(t, wait(t, add))
	})
}

func TestEngine_PositionsOutsideLoadedWindow(t *testing.T) {
	yesterday := &domain.DateRange{From: "2024-03-04"}

	t.Run("postponed copy follows today's tasks", func(t *testing.T) {
		h := setup(t,
			seeded(1, "today", "2024-03-05", 1000),
			seeded(2, "old", "2024-03-04", 1000),
		)
		require.NoError(t, h.engine.Load(context.Background(), testUser, yesterday))

		op, err := h.engine.Postpone(context.Background(), "2")
		require.NoError(t, err)
		require.NoError(t, wait(t, op))

		today := onDay(h.engine.Tasks(), "2024-03-05")
		require.Len(t, today, 2)
		assert.Equal(t, "today", today[0].Name)
		assert.Equal(t, int64(1000), today[0].Position)
		assert.Equal(t, "old", today[1].Name)
		assert.Equal(t, int64(2000), today[1].Position)

		assert.Equal(t, []domain.Day{"2024-03-04"}, domain.SortedDays(h.engine.Grouped()), "fetched day stays outside the filter")
	})

	t.Run("add on an unloaded day", func(t *testing.T) {
		h := setup(t, seeded(1, "planned", "2024-03-06", 3000))
		require.NoError(t, h.engine.Load(context.Background(), testUser, nil))

		day := domain.Day("2024-03-06")
		op, err := h.engine.Add(context.Background(), []string{"extra"}, &day)
		require.NoError(t, err)
		require.NoError(t, wait(t, op))

		tasks := onDay(h.engine.Tasks(), day)
		require.Len(t, tasks, 2)
		assert.Equal(t, int64(4000), tasks[1].Position)
		assert.Equal(t, 3, h.store.callCount("FetchTasks"), "two loads, then the day")

		op, err = h.engine.Add(context.Background(), []string{"again"}, &day)
		require.NoError(t, err)
		require.NoError(t, wait(t, op))
		assert.Equal(t, 3, h.store.callCount("FetchTasks"), "a fetched day is not fetched twice")
	})

	t.Run("move into an unloaded day", func(t *testing.T) {
		h := setup(t,
			seeded(1, "mover", "2024-03-05", 1000),
			seeded(2, "waiting", "2024-03-06", 1000),
		)
		require.NoError(t, h.engine.Load(context.Background(), testUser, nil))

		op, err := h.engine.Move(context.Background(), "1", "2024-03-06", 1)
		require.NoError(t, err)
		require.NoError(t, wait(t, op))

		moved, _ := h.store.stored(1)
		waiting, _ := h.store.stored(2)
		assert.Equal(t, domain.Day("2024-03-06"), moved.Day)
		assert.Less(t, waiting.Position, moved.Position)
	})

	t.Run("day fetch failure", func(t *testing.T) {
		h := setup(t)
		require.NoError(t, h.engine.Load(context.Background(), testUser, nil))
		h.store.failNext("FetchTasks", errBackend)

		day := domain.Day("2024-03-06")
		op, err := h.engine.Add(context.Background(), []string{"extra"}, &day)

		assert.Nil(t, op)
		assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeStore))
		assert.ErrorIs(t, err, errBackend)
		assert.Zero(t, h.store.callCount("InsertTasks"))
	})
}

func TestEngine_StaleResponses(t *testing.T) {
	tests := []struct {
		name       string
		failUpdate bool
	}{
		{"earlier update succeeds after delete applied", false},
		{"earlier update fails after delete applied", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := setup(t, seeded(7, "focus", "2024-03-05", 1000))
			release := h.store.hold("UpdateTask")
			if tt.failUpdate {
				h.store.failNext("UpdateTask", errBackend)
			}

			start, err := h.engine.StartPause(context.Background(), "7")
			require.NoError(t, err)
			del, err := h.engine.Delete(context.Background(), "7")
			require.NoError(t, err)

			_, ok := h.engine.Task("7")
			assert.False(t, ok)

			release()
			startErr := wait(t, start)
			assert.Equal(t, tt.failUpdate, startErr != nil)
			_, ok = h.engine.Task("7")
			assert.False(t, ok, "settled start must not resurrect a deleted task")

			require.NoError(t, wait(t, del))
			_, ok = h.engine.Task("7")
			assert.False(t, ok)
			assert.Empty(t, h.engine.Tasks())
		})
	}

	t.Run("failed edit followed by a successful edit ends on the stored record", func(t *testing.T) {
		h := setup(t, seeded(7, "focus", "2024-03-05", 1000))
		before := mustTask(t, h.engine, "7")

		release := h.store.hold("UpdateTask")
		h.store.failNext("UpdateTask", errBackend)
		start, err := h.engine.StartPause(context.Background(), "7")
		require.NoError(t, err)
		rename, err := h.engine.Rename(context.Background(), "7", "renamed")
		require.NoError(t, err)

		release()
		assert.Error(t, wait(t, start))
		assert.Equal(t, "renamed", mustTask(t, h.engine, "7").Name, "later edit stays visible")

		require.NoError(t, wait(t, rename))
		final := mustTask(t, h.engine, "7")
		stored, _ := h.store.stored(7)
		assert.Equal(t, stored, final)
		assert.False(t, final.IsRunning)
		assert.Equal(t, "renamed", final.Name)
		assert.NotEqual(t, before.Name, final.Name)
	})
}

func TestEngine_ReloadDiscardsInFlightResults(t *testing.T) {
	h := setup(t, seeded(7, "focus", "2024-03-05", 1000))
	release := h.store.hold("UpdateTask")
	h.store.failNext("UpdateTask", errBackend)

	op, err := h.engine.StartPause(context.Background(), "7")
	require.NoError(t, err)

	go release()
	// reload reads the store, which still has the idle task
	require.NoError(t, h.engine.Load(context.Background(), testUser, allDays))
	assert.Error(t, wait(t, op))

	task := mustTask(t, h.engine, "7")
	assert.False(t, task.IsRunning)
}

func TestEngine_WaitAndClose(t *testing.T) {
	h := setup(t, seeded(7, "focus", "2024-03-05", 1000))
	release := h.store.hold("UpdateTask")

	_, err := h.engine.StartPause(context.Background(), "7")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.engine.Wait(ctx), context.DeadlineExceeded)

	release()
	require.NoError(t, h.engine.Wait(context.Background()))

	h.engine.Close()
	_, err = h.engine.StartPause(context.Background(), "7")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestEngine_Subscribe(t *testing.T) {
	h := setup(t, seeded(7, "focus", "2024-03-05", 1000))

	var mine []EventType
	unsubscribe := h.engine.Subscribe(func(ev Event) { mine = append(mine, ev.Type) })

	op, err := h.engine.StartPause(context.Background(), "7")
	require.NoError(t, err)
	require.NoError(t, wait(t, op))
	unsubscribe()

	assert.Equal(t, []EventType{EventTasksChanged, EventRunningChanged, EventTasksChanged}, mine)

	op, err = h.engine.StartPause(context.Background(), "7")
	require.NoError(t, err)
	require.NoError(t, wait(t, op))
	assert.Len(t, mine, 3)
}

func TestEngine_RunningSignalsStayOrdered(t *testing.T) {
	h := setup(t,
		seeded(1, "a", "2024-03-05", 1000),
		seeded(2, "b", "2024-03-05", 2000),
	)

	var wg sync.WaitGroup
	for _, key := range []domain.Key{"1", "2"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if i%7 == 0 {
					h.store.failNext("UpdateTask", errBackend)
				}
				op, err := h.engine.StartPause(context.Background(), key)
				if err != nil {
					return
				}
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				_ = op.Wait(ctx)
				cancel()
			}
		}()
	}
	wg.Wait()
	require.NoError(t, h.engine.Wait(context.Background()))

	signals := h.events.ofType(EventRunningChanged)
	require.NotEmpty(t, signals)
	for i, ev := range signals {
		assert.Equal(t, i%2 == 0, ev.Running, "signal %d out of order", i)
	}
	assert.Equal(t, h.engine.HasRunningTasks(), signals[len(signals)-1].Running)
}

func TestEngine_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)

	clock := &fakeClock{now: time.Date(2024, 3, 5, 10, 0, 0, 0, time.Local)}
	store := newFakeStore(clock.Now)
	store.seed(seeded(7, "focus", "2024-03-05", 1000))
	e := New(store, WithClock(clock.Now), WithMetrics(metrics))
	require.NoError(t, e.Load(context.Background(), testUser, nil))

	op, err := e.StartPause(context.Background(), "7")
	require.NoError(t, err)
	require.NoError(t, wait(t, op))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.running))

	store.failNext("UpdateTask", errBackend)
	op, err = e.StartPause(context.Background(), "7")
	require.NoError(t, err)
	assert.Error(t, wait(t, op))

	_, err = e.Complete(context.Background(), "99")
	require.NoError(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.operations.WithLabelValues(OpStartPause, outcomeSucceeded)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.operations.WithLabelValues(OpStartPause, outcomeFailed)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.operations.WithLabelValues(OpComplete, outcomeSkipped)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.running))

	_, err = NewMetrics(reg)
	assert.Error(t, err, "collectors register once per registry")
}
