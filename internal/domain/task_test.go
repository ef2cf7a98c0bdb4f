package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ms(v int64) *int64 { return &v }

func TestKeys(t *testing.T) {
	t.Run("persisted task keyed by id", func(t *testing.T) {
		task := Task{ID: 42, LocalID: "abc"}
		assert.Equal(t, Key("42"), task.Key())
		assert.False(t, task.Key().IsPending())
	})

	t.Run("pending task keyed by local id", func(t *testing.T) {
		task := Task{LocalID: "abc"}
		assert.Equal(t, Key("local:abc"), task.Key())
		assert.True(t, task.Key().IsPending())
		assert.True(t, task.IsPending())
	})

	t.Run("parse", func(t *testing.T) {
		tests := []struct {
			input string
			want  Key
			ok    bool
		}{
			{"7", PersistedKey(7), true},
			{" 12 ", PersistedKey(12), true},
			{"local:xyz", PendingKey("xyz"), true},
			{"local:", "", false},
			{"0", "", false},
			{"-3", "", false},
			{"seven", "", false},
		}
		for _, tt := range tests {
			got, ok := ParseKey(tt.input)
			assert.Equal(t, tt.ok, ok, tt.input)
			assert.Equal(t, tt.want, got, tt.input)
		}
	})
}

func TestTask_State(t *testing.T) {
	tomorrow := Day("2024-01-02")
	tests := []struct {
		name string
		task Task
		want State
	}{
		{"idle", Task{}, StateIdle},
		{"running", Task{IsRunning: true, RunningSince: ms(1)}, StateRunning},
		{"completed", Task{IsCompleted: true}, StateCompleted},
		{"postponed", Task{PostponedTo: &tomorrow}, StatePostponed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.task.State())
			assert.Equal(t, tt.name, tt.want.String())
		})
	}
}

func TestTask_Valid(t *testing.T) {
	day := Day("2024-01-02")
	assert.True(t, Task{}.Valid())
	assert.True(t, Task{IsRunning: true, RunningSince: ms(5)}.Valid())
	assert.False(t, Task{IsRunning: true}.Valid(), "running without start timestamp")
	assert.False(t, Task{RunningSince: ms(5)}.Valid(), "start timestamp while idle")
	assert.False(t, Task{IsRunning: true, RunningSince: ms(5), IsCompleted: true}.Valid())
	assert.False(t, Task{IsRunning: true, RunningSince: ms(5), PostponedTo: &day}.Valid())
	assert.False(t, Task{AccumulatedSeconds: -1}.Valid())
}

func TestTask_StartedStopped(t *testing.T) {
	start := time.UnixMilli(1_700_000_000_000)
	task := Task{AccumulatedSeconds: 10}

	running := task.Started(start)
	require.True(t, running.IsRunning)
	require.NotNil(t, running.RunningSince)
	assert.Equal(t, start.UnixMilli(), *running.RunningSince)
	assert.True(t, running.Valid())

	stopped := running.Stopped(start.Add(90*time.Second + 600*time.Millisecond))
	assert.False(t, stopped.IsRunning)
	assert.Nil(t, stopped.RunningSince)
	assert.Equal(t, int64(10+91), stopped.AccumulatedSeconds, "rounds to nearest second")
	assert.True(t, stopped.Valid())

	assert.Equal(t, task, task.Stopped(start), "stopping an idle task is a no-op")
}

func TestTask_Clone(t *testing.T) {
	day := Day("2024-03-01")
	original := Task{RunningSince: ms(100), IsRunning: true, PostponedTo: &day}
	clone := original.Clone()

	*clone.RunningSince = 200
	*clone.PostponedTo = "2030-01-01"

	assert.Equal(t, int64(100), *original.RunningSince)
	assert.Equal(t, Day("2024-03-01"), *original.PostponedTo)
}

func TestPatch_Apply(t *testing.T) {
	name := "Renamed"
	done := true
	day := Day("2024-05-06")
	pos := int64(3000)
	base := Task{ID: 1, Name: "Old", Day: "2024-05-05", Position: 1000, IsRunning: true, RunningSince: ms(9)}

	t.Run("empty patch", func(t *testing.T) {
		assert.True(t, Patch{}.IsEmpty())
		assert.Equal(t, base, Patch{}.Apply(base))
	})

	t.Run("all fields", func(t *testing.T) {
		p := Patch{
			Name:        &name,
			Timer:       &TimerState{AccumulatedSeconds: 30},
			IsCompleted: &done,
			Day:         &day,
			PostponedTo: &day,
			Position:    &pos,
		}
		assert.False(t, p.IsEmpty())

		got := p.Apply(base)
		assert.Equal(t, "Renamed", got.Name)
		assert.Equal(t, int64(30), got.AccumulatedSeconds)
		assert.False(t, got.IsRunning)
		assert.Nil(t, got.RunningSince)
		assert.True(t, got.IsCompleted)
		assert.Equal(t, day, got.Day)
		require.NotNil(t, got.PostponedTo)
		assert.Equal(t, day, *got.PostponedTo)
		assert.Equal(t, pos, got.Position)

		assert.Equal(t, "Old", base.Name, "original untouched")
	})
}

func TestTask_Fields(t *testing.T) {
	task := Task{ID: 9, Owner: "u", Name: "Write", Day: "2024-01-01", Position: 2000}
	fields := task.Fields()
	assert.Equal(t, NewTask{Name: "Write", Day: "2024-01-01", Position: 2000}, fields)
}
