package application

import (
	"time"

	"github.com/example/timetable-scheduler/internal/scheduler"
)

// Status is the schedule lifecycle state machine:
// Draft → Optimizing → Optimized, Draft|Optimized → Published, and any state
// → Archived. Archived is declared but not exercised by the current flows.
type Status string

const (
	StatusDraft      Status = "Draft"
	StatusOptimizing Status = "Optimizing"
	StatusOptimized  Status = "Optimized"
	StatusPublished  Status = "Published"
	StatusArchived   Status = "Archived"
)

// Entry is one timetabled class occurrence as exposed by the application
// services. Start and End are minutes from midnight.
type Entry struct {
	Subject string
	Teacher string
	Group   string
	Room    string
	Day     time.Weekday
	Start   int
	End     int
}

// Schedule represents a persisted schedule. Entry order is semantically
// meaningful after optimization.
type Schedule struct {
	ID              int64
	Name            string
	Status          Status
	CreatedAt       time.Time
	LastOptimizedAt *time.Time
	Entries         []Entry
}

// EntryInput captures caller provided entry fields. Start and End carry -1
// when the caller supplied an unparseable or missing time so validation can
// report the field.
type EntryInput struct {
	Subject string
	Teacher string
	Group   string
	Room    string
	Day     int
	Start   int
	End     int
}

// ScheduleInput captures caller provided schedule fields.
type ScheduleInput struct {
	Name    string
	Entries []EntryInput
}

// OptimizationResult summarizes one completed optimizer run.
type OptimizationResult struct {
	RunID             string
	WindowsReduced    int
	ConflictsResolved int
	LoadBalanceScore  float64
	Duration          time.Duration
}

func toDetectorEntry(entry Entry) scheduler.Entry {
	return scheduler.Entry{
		Subject: entry.Subject,
		Teacher: entry.Teacher,
		Group:   entry.Group,
		Room:    entry.Room,
		Day:     entry.Day,
		Start:   entry.Start,
		End:     entry.End,
	}
}

func toDetectorEntries(entries []Entry) []scheduler.Entry {
	out := make([]scheduler.Entry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, toDetectorEntry(entry))
	}
	return out
}

func fromDetectorEntries(entries []scheduler.Entry) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, Entry{
			Subject: entry.Subject,
			Teacher: entry.Teacher,
			Group:   entry.Group,
			Room:    entry.Room,
			Day:     entry.Day,
			Start:   entry.Start,
			End:     entry.End,
		})
	}
	return out
}

func cloneEntries(entries []Entry) []Entry {
	if len(entries) == 0 {
		return nil
	}
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

func cloneSchedule(schedule Schedule) Schedule {
	clone := schedule
	clone.Entries = cloneEntries(schedule.Entries)
	if schedule.LastOptimizedAt != nil {
		at := *schedule.LastOptimizedAt
		clone.LastOptimizedAt = &at
	}
	return clone
}
