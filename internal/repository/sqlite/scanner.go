package sqlite

// Scanner interface defines the common scanning behavior for both sql.Row and sql.Rows
type Scanner interface {
	Scan(dest ...interface{}) error
}

// Rows interface defines the common behavior for sql.Rows
type Rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// ScanTask scans a single task from a database row selected with taskColumns
func ScanTask(scanner Scanner) (*TaskRecord, error) {
	record := &TaskRecord{}
	err := scanner.Scan(
		&record.ID,
		&record.UserID,
		&record.Name,
		&record.TotalTime,
		&record.StartTime,
		&record.IsRunning,
		&record.IsCompleted,
		&record.CurrentDay,
		&record.PostponedTo,
		&record.Position,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ScanTasks scans multiple tasks from database rows
func ScanTasks(rows Rows) ([]*TaskRecord, error) {
	var records []*TaskRecord
	for rows.Next() {
		record, err := ScanTask(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}
