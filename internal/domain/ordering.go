package domain

import (
	"cmp"
	"slices"
)

const (
	DefaultPositionBase int64 = 1000
	DefaultPositionGap  int64 = 1000
)

// Allocator hands out sparse ordering keys within a day. New tasks go after
// the current maximum; reorders renumber only the days they touch.
type Allocator struct {
	Base int64
	Gap  int64
}

// NewAllocator returns an allocator, substituting defaults for non-positive values.
func NewAllocator(base, gap int64) Allocator {
	if base <= 0 {
		base = DefaultPositionBase
	}
	if gap <= 0 {
		gap = DefaultPositionGap
	}
	return Allocator{Base: base, Gap: gap}
}

// Placement is the ordering a task ends up with after a reorder.
type Placement struct {
	Key      Key
	Position int64
	Day      Day
}

// Next returns n positions after the highest position currently used in day.
func (a Allocator) Next(tasks []Task, day Day, n int) []int64 {
	var highest int64
	for _, t := range tasks {
		if t.Day == day && t.Position > highest {
			highest = t.Position
		}
	}
	positions := make([]int64, n)
	for i := range positions {
		positions[i] = highest + int64(i+1)*a.Gap
	}
	return positions
}

// Move computes the placements for moving the task with key to destIndex of
// destDay. Every task of the destination day is renumbered Base + i*Gap and,
// for a cross-day move, so is every remaining task of the source day. The
// boolean is false when the key is unknown or the move changes nothing.
func (a Allocator) Move(tasks []Task, key Key, destDay Day, destIndex int) ([]Placement, bool) {
	var moved *Task
	for i := range tasks {
		if tasks[i].Key() == key {
			moved = &tasks[i]
			break
		}
	}
	if moved == nil {
		return nil, false
	}
	sourceDay := moved.Day

	source := dayOrder(tasks, sourceDay, key)
	dest := source
	if destDay != sourceDay {
		dest = dayOrder(tasks, destDay, key)
	}

	destIndex = max(0, min(destIndex, len(dest)))
	if destDay == sourceDay {
		current := slices.IndexFunc(SortByPosition(dayTasks(tasks, sourceDay)), func(t Task) bool {
			return t.Key() == key
		})
		if current == destIndex {
			return nil, false
		}
	}

	dest = slices.Insert(slices.Clone(dest), destIndex, key)

	placements := a.renumber(dest, destDay)
	if destDay != sourceDay {
		placements = append(placements, a.renumber(source, sourceDay)...)
	}
	return placements, true
}

func (a Allocator) renumber(keys []Key, day Day) []Placement {
	placements := make([]Placement, len(keys))
	for i, k := range keys {
		placements[i] = Placement{Key: k, Position: a.Base + int64(i)*a.Gap, Day: day}
	}
	return placements
}

// dayOrder lists the keys of day in display order, leaving out skip.
func dayOrder(tasks []Task, day Day, skip Key) []Key {
	var keys []Key
	for _, t := range SortByPosition(dayTasks(tasks, day)) {
		if t.Key() != skip {
			keys = append(keys, t.Key())
		}
	}
	return keys
}

func dayTasks(tasks []Task, day Day) []Task {
	var out []Task
	for _, t := range tasks {
		if t.Day == day {
			out = append(out, t)
		}
	}
	return out
}

// SortByPosition returns a copy of tasks in display order: ascending
// position, ties broken by creation and then id so the order is stable.
func SortByPosition(tasks []Task) []Task {
	sorted := slices.Clone(tasks)
	slices.SortStableFunc(sorted, func(x, y Task) int {
		if c := cmp.Compare(x.Position, y.Position); c != 0 {
			return c
		}
		if c := x.CreatedAt.Compare(y.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(x.ID, y.ID)
	})
	return sorted
}
