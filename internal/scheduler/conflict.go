package scheduler

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Entry is one timetabled class occurrence. Times are minutes from midnight;
// the interval is half-open, so an entry ending at 10:30 does not collide
// with one starting at 10:30.
type Entry struct {
	Subject string
	Teacher string
	Group   string
	Room    string
	Day     time.Weekday
	Start   int
	End     int
}

// ConflictKind describes the shared resource that is double-booked.
type ConflictKind string

const (
	// ConflictKindTeacher indicates a teacher is double-booked.
	ConflictKindTeacher ConflictKind = "teacher"
	// ConflictKindGroup indicates a student group is double-booked.
	ConflictKindGroup ConflictKind = "group"
	// ConflictKindRoom indicates a room is double-booked.
	ConflictKindRoom ConflictKind = "room"
)

// ConflictScope distinguishes overlaps inside one schedule from overlaps
// against other stored schedules.
type ConflictScope string

const (
	// ScopeInternal marks a conflict between two entries of the same schedule.
	ScopeInternal ConflictScope = "Internal"
	// ScopeGlobal marks a conflict between a candidate entry and an entry of
	// a different stored schedule.
	ScopeGlobal ConflictScope = "Global"
)

// Conflict details one pairwise violation that callers can present to users.
// A single overlapping pair yields up to three conflicts, one per shared
// attribute.
type Conflict struct {
	Kind           ConflictKind
	Scope          ConflictScope
	WithScheduleID int64
	First          Entry
	Second         Entry
	Day            time.Weekday
	OverlapStart   int
	OverlapEnd     int
	Description    string
}

// StoredSchedule is the baseline view of an already accepted schedule used by
// the cross-schedule check.
type StoredSchedule struct {
	ID      int64
	Name    string
	Entries []Entry
}

// Overlaps reports whether two entries collide in time on the same day using
// half-open interval semantics.
func Overlaps(a, b Entry) bool {
	return a.Day == b.Day && a.Start < b.End && b.Start < a.End
}

// DetectIntraConflicts scans every unordered pair of entries within one
// candidate schedule and reports each shared-resource overlap.
//
// Entries are first sorted by (day, start) so the enumeration order, and
// therefore the order and wording of the returned conflicts, is deterministic
// for identical input sets. The scan is O(n²); schedules carry at most a few
// dozen entries so this is an accepted scaling limit rather than something to
// optimize away.
func DetectIntraConflicts(entries []Entry) []Conflict {
	ordered := sortedEntries(entries)

	var conflicts []Conflict
	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			conflicts = append(conflicts, pairConflicts(ordered[i], ordered[j], ScopeInternal, 0)...)
		}
	}
	return conflicts
}

// DetectCrossConflicts checks every candidate entry against every entry of
// every other stored schedule. The schedule identified by candidateID is
// skipped so an update never conflicts with the state it replaces. The scan
// is O(n·m) over candidate and baseline entries; like the intra check this is
// a documented scaling limit.
func DetectCrossConflicts(candidate []Entry, candidateID int64, others []StoredSchedule) []Conflict {
	ordered := sortedEntries(candidate)

	var conflicts []Conflict
	for _, entry := range ordered {
		for _, other := range others {
			if candidateID != 0 && other.ID == candidateID {
				continue
			}
			for _, existing := range other.Entries {
				conflicts = append(conflicts, pairConflicts(entry, existing, ScopeGlobal, other.ID)...)
			}
		}
	}
	return conflicts
}

func pairConflicts(a, b Entry, scope ConflictScope, withID int64) []Conflict {
	if !Overlaps(a, b) {
		return nil
	}

	overlapStart := maxInt(a.Start, b.Start)
	overlapEnd := minInt(a.End, b.End)

	var conflicts []Conflict
	if sameIdentity(a.Teacher, b.Teacher) {
		conflicts = append(conflicts, newConflict(ConflictKindTeacher, scope, withID, a, b, overlapStart, overlapEnd))
	}
	if sameIdentity(a.Group, b.Group) {
		conflicts = append(conflicts, newConflict(ConflictKindGroup, scope, withID, a, b, overlapStart, overlapEnd))
	}
	if sameIdentity(a.Room, b.Room) {
		conflicts = append(conflicts, newConflict(ConflictKindRoom, scope, withID, a, b, overlapStart, overlapEnd))
	}
	return conflicts
}

func newConflict(kind ConflictKind, scope ConflictScope, withID int64, a, b Entry, overlapStart, overlapEnd int) Conflict {
	return Conflict{
		Kind:           kind,
		Scope:          scope,
		WithScheduleID: withID,
		First:          a,
		Second:         b,
		Day:            a.Day,
		OverlapStart:   overlapStart,
		OverlapEnd:     overlapEnd,
		Description:    describeConflict(kind, a, b, overlapStart, overlapEnd),
	}
}

func describeConflict(kind ConflictKind, a, b Entry, overlapStart, overlapEnd int) string {
	resource := ""
	switch kind {
	case ConflictKindTeacher:
		resource = a.Teacher
	case ConflictKindGroup:
		resource = a.Group
	case ConflictKindRoom:
		resource = a.Room
	}
	return fmt.Sprintf("%s conflict: %q is double-booked on %s %s-%s (%s vs %s)",
		titleKind(kind), resource, a.Day, FormatClock(overlapStart), FormatClock(overlapEnd), a.Subject, b.Subject)
}

func titleKind(kind ConflictKind) string {
	switch kind {
	case ConflictKindTeacher:
		return "Teacher"
	case ConflictKindGroup:
		return "Group"
	case ConflictKindRoom:
		return "Room"
	}
	return string(kind)
}

// Descriptions extracts the human-readable messages from a conflict list.
func Descriptions(conflicts []Conflict) []string {
	if len(conflicts) == 0 {
		return nil
	}
	out := make([]string, 0, len(conflicts))
	for _, conflict := range conflicts {
		out = append(out, conflict.Description)
	}
	return out
}

func sameIdentity(a, b string) bool {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" || b == "" {
		return false
	}
	return strings.EqualFold(a, b)
}

func sortedEntries(entries []Entry) []Entry {
	ordered := make([]Entry, len(entries))
	copy(ordered, entries)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Day != ordered[j].Day {
			return ordered[i].Day < ordered[j].Day
		}
		if ordered[i].Start != ordered[j].Start {
			return ordered[i].Start < ordered[j].Start
		}
		return ordered[i].End < ordered[j].End
	})
	return ordered
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
