package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/timetable-scheduler/internal/application"
	"github.com/example/timetable-scheduler/internal/scheduler"
)

var scheduleCounter uint64

var referenceTime = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// Lesson returns one detector entry with sensible defaults. Overrides mutate
// the entry before it is returned.
func Lesson(overrides ...func(*scheduler.Entry)) scheduler.Entry {
	entry := scheduler.Entry{
		Subject: "Mathematics",
		Teacher: "Smith",
		Group:   "10A",
		Room:    "Room101",
		Day:     time.Monday,
		Start:   9 * 60,
		End:     10 * 60,
	}
	for _, override := range overrides {
		override(&entry)
	}
	return entry
}

// ApplicationEntry returns an application layer entry mirroring Lesson.
func ApplicationEntry(overrides ...func(*application.Entry)) application.Entry {
	entry := application.Entry{
		Subject: "Mathematics",
		Teacher: "Smith",
		Group:   "10A",
		Room:    "Room101",
		Day:     time.Monday,
		Start:   9 * 60,
		End:     10 * 60,
	}
	for _, override := range overrides {
		override(&entry)
	}
	return entry
}

// EntryInput returns caller-shaped input mirroring Lesson.
func EntryInput(overrides ...func(*application.EntryInput)) application.EntryInput {
	input := application.EntryInput{
		Subject: "Mathematics",
		Teacher: "Smith",
		Group:   "10A",
		Room:    "Room101",
		Day:     int(time.Monday),
		Start:   9 * 60,
		End:     10 * 60,
	}
	for _, override := range overrides {
		override(&input)
	}
	return input
}

// ScheduleInput returns a uniquely named single-entry schedule input.
func ScheduleInput(entries ...application.EntryInput) application.ScheduleInput {
	if len(entries) == 0 {
		entries = []application.EntryInput{EntryInput()}
	}
	n := atomic.AddUint64(&scheduleCounter, 1)
	return application.ScheduleInput{
		Name:    fmt.Sprintf("Schedule %d", n),
		Entries: entries,
	}
}
