package services

import (
	"context"
	"time"

	"chronotask/internal/domain"
)

// TaskReader is the read side of the task store used by reports.
type TaskReader interface {
	FetchTasks(ctx context.Context, userID string, r *domain.DateRange) ([]domain.Task, error)
	IncompleteDays(ctx context.Context, userID string, year int, month time.Month) ([]domain.Day, error)
}

// DailyTotal is the logged time of one day.
type DailyTotal struct {
	Day   domain.Day `json:"day" yaml:"day"`
	Hours float64    `json:"hours" yaml:"hours"`
}

// DailyTaskCount is the number of tasks filed under one day.
type DailyTaskCount struct {
	Day   domain.Day `json:"day" yaml:"day"`
	Count int        `json:"count" yaml:"count"`
}

// TaskTime is the time spent on one task name within a day. Postponed
// copies share a name, so their time is summed.
type TaskTime struct {
	Name       string  `json:"name" yaml:"name"`
	Hours      float64 `json:"hours" yaml:"hours"`
	Incomplete bool    `json:"incomplete" yaml:"incomplete"`
}

// Progress compares the time logged today against a daily target.
type Progress struct {
	CurrentHours float64 `json:"current_hours" yaml:"current_hours"`
	TargetHours  float64 `json:"target_hours" yaml:"target_hours"`
	Percent      float64 `json:"percent" yaml:"percent"`
	Reached      bool    `json:"reached" yaml:"reached"`
}

// Report bundles every view of a reporting period.
type Report struct {
	Range       domain.DateRange `json:"range" yaml:"range"`
	Day         domain.Day       `json:"day" yaml:"day"`
	DailyTotals []DailyTotal     `json:"daily_totals" yaml:"daily_totals"`
	TaskCounts  []DailyTaskCount `json:"task_counts" yaml:"task_counts"`
	TimePerTask []TaskTime       `json:"time_per_task" yaml:"time_per_task"`
}

// ReportingService handles analytics and reporting operations
type ReportingService interface {
	// Aggregations over an already fetched task list
	DailyTotals(tasks []domain.Task) []DailyTotal
	DailyTaskCounts(tasks []domain.Task) []DailyTaskCount
	TimePerTask(tasks []domain.Task, day domain.Day) []TaskTime
	TargetProgress(tasks []domain.Task, targetHours float64, now time.Time) Progress

	// Store backed reports
	BuildReport(ctx context.Context, userID string, r *domain.DateRange, day domain.Day) (*Report, error)
	IncompleteDays(ctx context.Context, userID string, year int, month time.Month) ([]domain.Day, error)
}
