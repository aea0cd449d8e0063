package persistence

import "time"

// Entry models one stored timetable row belonging to a schedule. Times are
// minutes from midnight; Day is the time.Weekday ordinal (0 = Sunday).
type Entry struct {
	Subject     string
	Teacher     string
	Group       string
	Room        string
	Day         int
	StartMinute int
	EndMinute   int
}

// Schedule models a stored schedule with its ordered entries. The ID is
// assigned by the storage layer on creation and is never reused, even after
// deletion.
type Schedule struct {
	ID              int64
	Name            string
	Status          string
	CreatedAt       time.Time
	LastOptimizedAt *time.Time
	Entries         []Entry
}
