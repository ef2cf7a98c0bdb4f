package domain

import (
	"fmt"
	"time"
)

// Elapsed is the displayed duration of a task at now: the accumulated time
// plus the current running span. The running span is clamped at zero so a
// start timestamp from a skewed clock never counts backwards.
func Elapsed(t Task, now time.Time) time.Duration {
	total := time.Duration(t.AccumulatedSeconds) * time.Second
	if !t.IsRunning || t.RunningSince == nil {
		return total
	}
	span := now.UnixMilli() - *t.RunningSince
	if span < 0 {
		span = 0
	}
	return total + time.Duration(span)*time.Millisecond
}

// ElapsedSeconds is Elapsed rounded to the nearest whole second, the unit
// accumulated time is stored in.
func ElapsedSeconds(t Task, now time.Time) int64 {
	if !t.IsRunning || t.RunningSince == nil {
		return t.AccumulatedSeconds
	}
	span := now.UnixMilli() - *t.RunningSince
	if span < 0 {
		span = 0
	}
	return t.AccumulatedSeconds + (span+500)/1000
}

// FormatClock renders d as HH:MM:SS. Negative durations render as zero.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}
