package sqlite

import (
	"database/sql"
	"time"

	"chronotask/internal/domain"
)

// FormatTimeForDB formats a time.Time value as RFC3339 string for consistent database storage.
// Sub-second precision is kept so rows created in the same second still order by creation.
func FormatTimeForDB(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTimeFromDB parses an RFC3339 formatted time string from the database
func ParseTimeFromDB(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// FormatMillisPtrForDB returns nil for a stopped timer.
func FormatMillisPtrForDB(ms *int64) interface{} {
	if ms == nil {
		return nil
	}
	return *ms
}

// FormatDayPtrForDB returns nil when the day is unset.
func FormatDayPtrForDB(d *domain.Day) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

// FormatBoolForDB stores booleans as 0/1 integers.
func FormatBoolForDB(b bool) int {
	if b {
		return 1
	}
	return 0
}

func millisFromDB(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	ms := v.Int64
	return &ms
}

func dayFromDB(v sql.NullString) *domain.Day {
	if !v.Valid || v.String == "" {
		return nil
	}
	d := domain.Day(v.String)
	return &d
}
