package sqlite

import (
	"database/sql"
	"fmt"

	"chronotask/internal/domain"
)

// taskColumns is the column list every task query selects, in scan order.
const taskColumns = `id, user_id, name, total_time, start_time, is_running, is_completed,
	current_day, postponed_to, position, created_at, updated_at`

// TaskRecord is a tasks row as stored.
type TaskRecord struct {
	ID          int64
	UserID      string
	Name        string
	TotalTime   int64
	StartTime   sql.NullInt64
	IsRunning   bool
	IsCompleted bool
	CurrentDay  string
	PostponedTo sql.NullString
	Position    int64
	CreatedAt   string
	UpdatedAt   string
}

// ToDomain converts the row into a domain task.
func (r *TaskRecord) ToDomain() (domain.Task, error) {
	createdAt, err := ParseTimeFromDB(r.CreatedAt)
	if err != nil {
		return domain.Task{}, fmt.Errorf("task %d created_at: %w", r.ID, err)
	}
	updatedAt, err := ParseTimeFromDB(r.UpdatedAt)
	if err != nil {
		return domain.Task{}, fmt.Errorf("task %d updated_at: %w", r.ID, err)
	}

	return domain.Task{
		ID:                 r.ID,
		Owner:              r.UserID,
		Name:               r.Name,
		AccumulatedSeconds: r.TotalTime,
		RunningSince:       millisFromDB(r.StartTime),
		IsRunning:          r.IsRunning,
		IsCompleted:        r.IsCompleted,
		Day:                domain.Day(r.CurrentDay),
		PostponedTo:        dayFromDB(r.PostponedTo),
		Position:           r.Position,
		CreatedAt:          createdAt,
		UpdatedAt:          updatedAt,
	}, nil
}

// RecordsToDomain converts scanned rows, stopping at the first malformed one.
func RecordsToDomain(records []*TaskRecord) ([]domain.Task, error) {
	tasks := make([]domain.Task, 0, len(records))
	for _, r := range records {
		t, err := r.ToDomain()
		if err != nil {
			return nil, HandleDatabaseError("decode task", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}
