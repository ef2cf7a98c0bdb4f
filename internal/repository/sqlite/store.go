package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"chronotask/internal/domain"
	"chronotask/internal/errors"
	"chronotask/internal/repository/sqlite/migrations"

	_ "modernc.org/sqlite"
)

var timeNow = time.Now

// Store persists tasks in SQLite. It satisfies the engine's store contract
// and the reporting reader.
type Store struct {
	db           *sql.DB
	queryTimeout time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithQueryTimeout bounds every statement the store runs. Zero disables the bound.
func WithQueryTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.queryTimeout = d
	}
}

// New opens the database at dbPath and applies pending migrations.
func New(ctx context.Context, dbPath string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.NewDatabaseError("open database", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	if err := migrations.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, errors.NewDatabaseError("run migrations", err)
	}

	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.queryTimeout)
}

// FetchTasks returns the user's tasks ordered by day, then position. A nil
// range returns every task.
func (s *Store) FetchTasks(ctx context.Context, userID string, r *domain.DateRange) ([]domain.Task, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = ?`
	args := []interface{}{userID}
	if r != nil {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		query += ` AND current_day BETWEEN ? AND ?`
		args = append(args, r.From.String(), r.End().String())
	}
	query += ` ORDER BY current_day ASC, position ASC, created_at ASC, id ASC`

	records, err := QueryMultiple(ctx, s.db, query, ScanTasks, "tasks", args...)
	if err != nil {
		return nil, err
	}
	return RecordsToDomain(records)
}

// InsertTasks inserts the batch in one transaction and returns the stored
// records in input order.
func (s *Store) InsertTasks(ctx context.Context, userID string, fields []domain.NewTask) ([]domain.Task, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	query := `
	INSERT INTO tasks (user_id, name, total_time, start_time, is_running, is_completed,
		current_day, postponed_to, position, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var inserted []domain.Task
	err := InTx(ctx, s.db, "insert tasks", func(tx *sql.Tx) error {
		for _, f := range fields {
			now := FormatTimeForDB(timeNow())
			id, err := ExecuteWithLastInsertID(ctx, tx, query,
				userID, f.Name, f.AccumulatedSeconds, FormatMillisPtrForDB(f.RunningSince),
				FormatBoolForDB(f.RunningSince != nil), FormatBoolForDB(f.IsCompleted),
				f.Day.String(), FormatDayPtrForDB(f.PostponedTo), f.Position, now, now)
			if err != nil {
				return err
			}
			task, err := s.getTask(ctx, tx, id)
			if err != nil {
				return err
			}
			inserted = append(inserted, task)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

// UpdateTask applies patch to the task and returns the stored record.
func (s *Store) UpdateTask(ctx context.Context, id int64, patch domain.Patch) (domain.Task, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	if patch.IsEmpty() {
		return s.getTask(ctx, s.db, id)
	}

	sets, args := patchAssignments(patch)
	sets = append(sets, "updated_at = ?")
	args = append(args, FormatTimeForDB(timeNow()), id)
	query := `UPDATE tasks SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`

	var updated domain.Task
	err := InTx(ctx, s.db, "update task", func(tx *sql.Tx) error {
		if err := ExecuteWithRowsAffected(ctx, tx, query, "task", strconv.FormatInt(id, 10), args...); err != nil {
			return err
		}
		var err error
		updated, err = s.getTask(ctx, tx, id)
		return err
	})
	return updated, err
}

// DeleteTask removes the task. Unknown ids report NOT_FOUND.
func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	query := `DELETE FROM tasks WHERE id = ?`
	return ExecuteWithRowsAffected(ctx, s.db, query, "task", strconv.FormatInt(id, 10), id)
}

// UpdatePositions writes every position (and day, when set) in one
// transaction. Any unknown id rolls the whole batch back.
func (s *Store) UpdatePositions(ctx context.Context, updates []domain.PositionUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	query := `
	UPDATE tasks
	SET position = ?, current_day = COALESCE(NULLIF(?, ''), current_day), updated_at = ?
	WHERE id = ?`

	return InTx(ctx, s.db, "update positions", func(tx *sql.Tx) error {
		now := FormatTimeForDB(timeNow())
		for _, u := range updates {
			if err := ExecuteWithRowsAffected(ctx, tx, query, "task", strconv.FormatInt(u.ID, 10),
				u.Position, u.Day.String(), now, u.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

// IncompleteDays lists the days of the month holding at least one task that
// is neither completed nor postponed.
func (s *Store) IncompleteDays(ctx context.Context, userID string, year int, month time.Month) ([]domain.Day, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	r := domain.MonthRange(year, month)
	query := `
	SELECT DISTINCT current_day FROM tasks
	WHERE user_id = ? AND current_day BETWEEN ? AND ?
		AND is_completed = 0 AND postponed_to IS NULL
	ORDER BY current_day ASC`

	rows, err := s.db.QueryContext(ctx, query, userID, r.From.String(), r.End().String())
	if err != nil {
		return nil, HandleDatabaseError("query incomplete days", err)
	}
	defer rows.Close()

	var days []domain.Day
	for rows.Next() {
		var day string
		if err := rows.Scan(&day); err != nil {
			return nil, HandleDatabaseError("scan incomplete days", err)
		}
		days = append(days, domain.Day(day))
	}
	if err := rows.Err(); err != nil {
		return nil, HandleDatabaseError("scan incomplete days", err)
	}
	return days, nil
}

func (s *Store) getTask(ctx context.Context, q Querier, id int64) (domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`
	record, err := QuerySingle(ctx, q, query, ScanTask, "task", strconv.FormatInt(id, 10), id)
	if err != nil {
		return domain.Task{}, err
	}
	task, err := record.ToDomain()
	if err != nil {
		return domain.Task{}, HandleDatabaseError("decode task", err)
	}
	return task, nil
}

// patchAssignments renders the SET clause for the non-nil patch fields. The
// timer triple is always written together.
func patchAssignments(p domain.Patch) ([]string, []interface{}) {
	var (
		sets []string
		args []interface{}
	)
	add := func(column string, value interface{}) {
		sets = append(sets, fmt.Sprintf("%s = ?", column))
		args = append(args, value)
	}

	if p.Name != nil {
		add("name", *p.Name)
	}
	if p.Timer != nil {
		add("total_time", p.Timer.AccumulatedSeconds)
		add("start_time", FormatMillisPtrForDB(p.Timer.RunningSince))
		add("is_running", FormatBoolForDB(p.Timer.IsRunning()))
	}
	if p.IsCompleted != nil {
		add("is_completed", FormatBoolForDB(*p.IsCompleted))
	}
	if p.Day != nil {
		add("current_day", p.Day.String())
	}
	if p.PostponedTo != nil {
		add("postponed_to", p.PostponedTo.String())
	}
	if p.Position != nil {
		add("position", *p.Position)
	}
	return sets, args
}
