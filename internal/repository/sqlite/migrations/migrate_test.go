package migrations

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunMigrations(t *testing.T) {
	db := openMemory(t)
	ctx := context.Background()

	require.NoError(t, RunMigrations(ctx, db))

	versions, err := AppliedVersions(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, versions)

	var name string
	err = db.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'tasks'`).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "tasks", name)

	// running again is a no-op
	require.NoError(t, RunMigrations(ctx, db))
}

func TestTasksTable_RunningCheck(t *testing.T) {
	db := openMemory(t)
	ctx := context.Background()
	require.NoError(t, RunMigrations(ctx, db))

	_, err := db.ExecContext(ctx, `
	INSERT INTO tasks (user_id, name, is_running, start_time, current_day, created_at, updated_at)
	VALUES ('u', 'bad', 1, NULL, '2024-03-05', 'x', 'x')`)
	assert.Error(t, err)
}

func TestBackfillPositions(t *testing.T) {
	db := openMemory(t)
	ctx := context.Background()
	require.NoError(t, createMigrationsTable(ctx, db))

	migrations, err := loadMigrations()
	require.NoError(t, err)
	for _, m := range migrations[:2] {
		require.NoError(t, applyMigration(ctx, db, m))
	}

	_, err = db.ExecContext(ctx, `
	INSERT INTO tasks (user_id, name, current_day, position, created_at, updated_at) VALUES
		('u', 'kept', '2024-03-05', 1000, '2024-03-05T08:00:00Z', '2024-03-05T08:00:00Z'),
		('u', 'second', '2024-03-05', 0, '2024-03-05T10:00:00Z', '2024-03-05T10:00:00Z'),
		('u', 'first', '2024-03-05', 0, '2024-03-05T09:00:00Z', '2024-03-05T09:00:00Z'),
		('u', 'other day', '2024-03-06', 0, '2024-03-06T09:00:00Z', '2024-03-06T09:00:00Z')`)
	require.NoError(t, err)

	require.NoError(t, RunMigrations(ctx, db))

	rows, err := db.QueryContext(ctx, `SELECT name, position FROM tasks ORDER BY current_day, position`)
	require.NoError(t, err)
	defer rows.Close()

	got := map[string]int64{}
	for rows.Next() {
		var name string
		var pos int64
		require.NoError(t, rows.Scan(&name, &pos))
		got[name] = pos
	}
	require.NoError(t, rows.Err())

	assert.Equal(t, map[string]int64{
		"kept":      1000,
		"first":     2000,
		"second":    3000,
		"other day": 1000,
	}, got)
}

func TestExtractVersion(t *testing.T) {
	assert.Equal(t, 1, extractVersion("000001_create_tasks.up.sql"))
	assert.Equal(t, 0, extractVersion("readme.txt"))
}
