package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

const (
	backfillBase int64 = 1000
	backfillGap  int64 = 1000
)

func init() {
	RegisterGoMigration(3, upBackfillPositions, downBackfillPositions)
}

// upBackfillPositions numbers rows imported without an ordering key. Within
// each user and day, unpositioned rows are appended after the positioned ones
// in creation order.
func upBackfillPositions(ctx context.Context, tx *sql.Tx) error {
	type row struct {
		id     int64
		userID string
		day    string
	}

	rows, err := tx.QueryContext(ctx, `
	SELECT id, user_id, current_day FROM tasks
	WHERE position = 0
	ORDER BY user_id, current_day, created_at, id`)
	if err != nil {
		return fmt.Errorf("failed to query unpositioned tasks: %w", err)
	}
	var pending []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.userID, &r.day); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan task: %w", err)
		}
		pending = append(pending, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("error iterating tasks: %w", err)
	}
	rows.Close()

	if len(pending) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, "UPDATE tasks SET position = ? WHERE id = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare position update: %w", err)
	}
	defer stmt.Close()

	var (
		group string
		next  int64
	)
	for _, r := range pending {
		if key := r.userID + "\x00" + r.day; key != group {
			group = key
			var highest sql.NullInt64
			if err := tx.QueryRowContext(ctx,
				"SELECT MAX(position) FROM tasks WHERE user_id = ? AND current_day = ?",
				r.userID, r.day).Scan(&highest); err != nil {
				return fmt.Errorf("failed to read max position: %w", err)
			}
			next = highest.Int64
			if next < backfillBase-backfillGap {
				next = backfillBase - backfillGap
			}
		}
		next += backfillGap
		if _, err := stmt.ExecContext(ctx, next, r.id); err != nil {
			return fmt.Errorf("failed to set position for task %d: %w", r.id, err)
		}
	}
	return nil
}

// downBackfillPositions is a no-op: assigned positions stay valid orderings.
func downBackfillPositions(ctx context.Context, tx *sql.Tx) error {
	return nil
}
