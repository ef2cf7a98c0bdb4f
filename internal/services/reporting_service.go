package services

import (
	"context"
	"math"
	"slices"
	"strings"
	"time"

	"chronotask/internal/domain"
	"chronotask/internal/errors"
	"chronotask/internal/logging"
)

// reportingServiceImpl implements the ReportingService interface
type reportingServiceImpl struct {
	reader TaskReader
	logger *logging.Logger
}

// NewReportingService creates a new ReportingService instance
func NewReportingService(reader TaskReader, logger *logging.Logger) ReportingService {
	if logger == nil {
		logger = logging.Nop()
	}
	return &reportingServiceImpl{
		reader: reader,
		logger: logger.WithComponent("reporting"),
	}
}

// DailyTotals sums the accumulated time per day, skipping days without logged time.
func (r *reportingServiceImpl) DailyTotals(tasks []domain.Task) []DailyTotal {
	seconds := make(map[domain.Day]int64)
	for _, t := range tasks {
		if t.AccumulatedSeconds > 0 {
			seconds[t.Day] += t.AccumulatedSeconds
		}
	}

	totals := make([]DailyTotal, 0, len(seconds))
	for day, s := range seconds {
		totals = append(totals, DailyTotal{Day: day, Hours: toHours(s)})
	}
	slices.SortFunc(totals, func(a, b DailyTotal) int { return strings.Compare(string(a.Day), string(b.Day)) })
	return totals
}

// DailyTaskCounts counts the tasks filed under each day.
func (r *reportingServiceImpl) DailyTaskCounts(tasks []domain.Task) []DailyTaskCount {
	counts := make(map[domain.Day]int)
	for _, t := range tasks {
		counts[t.Day]++
	}

	result := make([]DailyTaskCount, 0, len(counts))
	for day, n := range counts {
		result = append(result, DailyTaskCount{Day: day, Count: n})
	}
	slices.SortFunc(result, func(a, b DailyTaskCount) int { return strings.Compare(string(a.Day), string(b.Day)) })
	return result
}

// TimePerTask aggregates the day's logged time by task name, longest first.
// A name is incomplete if any task carrying it is not completed.
func (r *reportingServiceImpl) TimePerTask(tasks []domain.Task, day domain.Day) []TaskTime {
	type agg struct {
		seconds    int64
		incomplete bool
	}
	byName := make(map[string]*agg)
	var order []string
	for _, t := range tasks {
		if t.Day != day || t.AccumulatedSeconds <= 0 {
			continue
		}
		a, ok := byName[t.Name]
		if !ok {
			a = &agg{}
			byName[t.Name] = a
			order = append(order, t.Name)
		}
		a.seconds += t.AccumulatedSeconds
		a.incomplete = a.incomplete || !t.IsCompleted
	}

	result := make([]TaskTime, 0, len(order))
	for _, name := range order {
		a := byName[name]
		result = append(result, TaskTime{Name: name, Hours: toHours(a.seconds), Incomplete: a.incomplete})
	}
	slices.SortStableFunc(result, func(a, b TaskTime) int {
		switch {
		case a.Hours > b.Hours:
			return -1
		case a.Hours < b.Hours:
			return 1
		}
		return 0
	})
	return result
}

// TargetProgress measures today's displayed time, running timers included,
// against targetHours. Percent is capped at 100.
func (r *reportingServiceImpl) TargetProgress(tasks []domain.Task, targetHours float64, now time.Time) Progress {
	today := domain.DayOf(now)
	var total time.Duration
	for _, t := range tasks {
		if t.Day == today {
			total += domain.Elapsed(t, now)
		}
	}

	p := Progress{CurrentHours: total.Hours(), TargetHours: targetHours}
	if targetHours <= 0 {
		return p
	}
	p.Percent = math.Min(p.CurrentHours/targetHours*100, 100)
	p.Reached = p.Percent >= 100
	return p
}

// BuildReport fetches the period once and derives every aggregate from it.
func (r *reportingServiceImpl) BuildReport(ctx context.Context, userID string, rng *domain.DateRange, day domain.Day) (*Report, error) {
	if userID == "" {
		return nil, errors.NewNoUserError("report")
	}
	if rng != nil {
		if err := rng.Validate(); err != nil {
			return nil, errors.NewInvalidInputError("range", rng, err.Error())
		}
	}

	tasks, err := r.reader.FetchTasks(ctx, userID, rng)
	if err != nil {
		r.logger.WithUserID(userID).WithError(err).Warnw("fetch tasks for report failed")
		return nil, err
	}

	report := &Report{
		Day:         day,
		DailyTotals: r.DailyTotals(tasks),
		TaskCounts:  r.DailyTaskCounts(tasks),
		TimePerTask: r.TimePerTask(tasks, day),
	}
	if rng != nil {
		report.Range = *rng
	}
	return report, nil
}

// IncompleteDays lists the month's days that still hold open tasks.
func (r *reportingServiceImpl) IncompleteDays(ctx context.Context, userID string, year int, month time.Month) ([]domain.Day, error) {
	if userID == "" {
		return nil, errors.NewNoUserError("incomplete days")
	}
	if month < time.January || month > time.December {
		return nil, errors.NewInvalidInputError("month", int(month), "must be between 1 and 12")
	}
	return r.reader.IncompleteDays(ctx, userID, year, month)
}

// toHours converts seconds to hours rounded to two decimals.
func toHours(seconds int64) float64 {
	return math.Round(float64(seconds)/3600*100) / 100
}
