package domain

import (
	"slices"
)

// GroupByDay partitions tasks into day sections, each in display order.
func GroupByDay(tasks []Task) map[Day][]Task {
	grouped := make(map[Day][]Task)
	for _, t := range tasks {
		grouped[t.Day] = append(grouped[t.Day], t)
	}
	for day, section := range grouped {
		grouped[day] = SortByPosition(section)
	}
	return grouped
}

// SortedDays returns the day keys of grouped in ascending order.
func SortedDays(grouped map[Day][]Task) []Day {
	days := make([]Day, 0, len(grouped))
	for day := range grouped {
		days = append(days, day)
	}
	slices.Sort(days)
	return days
}

// Filter keeps the tasks whose day is within r, or only today's tasks when r is nil.
func Filter(tasks []Task, r *DateRange, today Day) []Task {
	window := SingleDay(today)
	if r != nil {
		window = *r
	}
	var out []Task
	for _, t := range tasks {
		if window.Contains(t.Day) {
			out = append(out, t)
		}
	}
	return out
}

// HasRunning reports whether any task is running.
func HasRunning(tasks []Task) bool {
	return slices.ContainsFunc(tasks, func(t Task) bool { return t.IsRunning })
}
