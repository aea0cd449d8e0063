package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/example/timetable-scheduler/internal/messaging"
	"github.com/example/timetable-scheduler/internal/persistence"
	"github.com/example/timetable-scheduler/internal/scheduler"
)

// ScheduleRepository captures the persistence interactions needed by the
// schedule store.
type ScheduleRepository interface {
	CreateSchedule(ctx context.Context, schedule Schedule) (Schedule, error)
	GetSchedule(ctx context.Context, id int64) (Schedule, error)
	UpdateSchedule(ctx context.Context, schedule Schedule) error
	UpdateStatus(ctx context.Context, id int64, status Status) error
	ApplyOptimization(ctx context.Context, id int64, entries []Entry, status Status, optimizedAt time.Time) error
	DeleteSchedule(ctx context.Context, id int64) error
	ListSchedules(ctx context.Context) ([]Schedule, error)
}

// EventPublisher emits domain events for committed mutations and rejected
// conflicts. Publishing is best-effort at runtime: a publish failure never
// rolls back a committed store mutation.
type EventPublisher interface {
	Publish(ctx context.Context, event messaging.DomainEvent) error
}

// ScheduleService owns the authoritative schedule collection. Every
// validate-then-commit sequence runs inside one mutual-exclusion domain so
// concurrent writers can never commit a jointly conflicting pair.
type ScheduleService struct {
	mu        sync.Mutex
	schedules ScheduleRepository
	events    EventPublisher
	now       func() time.Time
	logger    *slog.Logger
}

// NewScheduleService wires dependencies for schedule operations.
func NewScheduleService(schedules ScheduleRepository, events EventPublisher, now func() time.Time, logger *slog.Logger) *ScheduleService {
	if now == nil {
		now = time.Now
	}
	return &ScheduleService{
		schedules: schedules,
		events:    events,
		now:       now,
		logger:    defaultLogger(logger),
	}
}

// Create validates the candidate schedule, rejects it on any conflict, and
// otherwise commits it with the next sequential id and Draft status. A
// rejection still emits a ConflictDetected event carrying the sentinel id 0,
// since the schedule was never stored.
func (s *ScheduleService) Create(ctx context.Context, input ScheduleInput) (Schedule, error) {
	if vErr := validateScheduleInput(input); vErr.HasErrors() {
		return Schedule{}, vErr
	}

	candidate := Schedule{
		Name:    strings.TrimSpace(input.Name),
		Status:  StatusDraft,
		Entries: entriesFromInput(input.Entries),
	}

	persisted, conflictErr, err := s.createLocked(ctx, candidate)
	if err != nil {
		return Schedule{}, mapScheduleRepoError(err)
	}
	if conflictErr != nil {
		s.emitConflict(ctx, 0, conflictErr)
		return Schedule{}, conflictErr
	}

	s.emitUpdated(ctx, persisted.ID, messaging.ChangeCreated, fmt.Sprintf("schedule %q created", persisted.Name))
	return persisted, nil
}

func (s *ScheduleService) createLocked(ctx context.Context, candidate Schedule) (Schedule, *ConflictError, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	detectorEntries := toDetectorEntries(candidate.Entries)

	if conflicts := scheduler.DetectIntraConflicts(detectorEntries); len(conflicts) > 0 {
		return Schedule{}, &ConflictError{Scope: scheduler.ScopeInternal, Conflicts: conflicts}, nil
	}

	baseline, err := s.baselineLocked(ctx)
	if err != nil {
		return Schedule{}, nil, err
	}
	if conflicts := scheduler.DetectCrossConflicts(detectorEntries, 0, baseline); len(conflicts) > 0 {
		return Schedule{}, &ConflictError{Scope: scheduler.ScopeGlobal, Conflicts: conflicts}, nil
	}

	candidate.CreatedAt = s.now()
	persisted, err := s.schedules.CreateSchedule(ctx, candidate)
	if err != nil {
		return Schedule{}, nil, err
	}
	return persisted, nil, nil
}

// Update runs the same validation pipeline as Create, excluding the schedule
// being replaced from the cross-schedule baseline, and replaces the stored
// schedule atomically.
func (s *ScheduleService) Update(ctx context.Context, id int64, input ScheduleInput) (Schedule, error) {
	if vErr := validateScheduleInput(input); vErr.HasErrors() {
		return Schedule{}, vErr
	}

	updated, conflictErr, err := s.updateLocked(ctx, id, input)
	if err != nil {
		return Schedule{}, mapScheduleRepoError(err)
	}
	if conflictErr != nil {
		s.emitConflict(ctx, id, conflictErr)
		return Schedule{}, conflictErr
	}

	s.emitUpdated(ctx, id, messaging.ChangeUpdated, fmt.Sprintf("schedule %q updated", updated.Name))
	return updated, nil
}

func (s *ScheduleService) updateLocked(ctx context.Context, id int64, input ScheduleInput) (Schedule, *ConflictError, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.schedules.GetSchedule(ctx, id)
	if err != nil {
		return Schedule{}, nil, err
	}

	entries := entriesFromInput(input.Entries)
	detectorEntries := toDetectorEntries(entries)

	if conflicts := scheduler.DetectIntraConflicts(detectorEntries); len(conflicts) > 0 {
		return Schedule{}, &ConflictError{Scope: scheduler.ScopeInternal, Conflicts: conflicts}, nil
	}

	baseline, err := s.baselineLocked(ctx)
	if err != nil {
		return Schedule{}, nil, err
	}
	if conflicts := scheduler.DetectCrossConflicts(detectorEntries, id, baseline); len(conflicts) > 0 {
		return Schedule{}, &ConflictError{Scope: scheduler.ScopeGlobal, Conflicts: conflicts}, nil
	}

	updated := existing
	updated.Name = strings.TrimSpace(input.Name)
	updated.Entries = entries
	if err := s.schedules.UpdateSchedule(ctx, updated); err != nil {
		return Schedule{}, nil, err
	}
	return updated, nil, nil
}

// Delete removes a schedule by id.
func (s *ScheduleService) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	err := s.schedules.DeleteSchedule(ctx, id)
	s.mu.Unlock()
	if err != nil {
		return mapScheduleRepoError(err)
	}

	s.emitUpdated(ctx, id, messaging.ChangeDeleted, fmt.Sprintf("schedule %d deleted", id))
	return nil
}

// Get retrieves a schedule by id.
func (s *ScheduleService) Get(ctx context.Context, id int64) (Schedule, error) {
	schedule, err := s.schedules.GetSchedule(ctx, id)
	if err != nil {
		return Schedule{}, mapScheduleRepoError(err)
	}
	return schedule, nil
}

// List returns every stored schedule ordered by id.
func (s *ScheduleService) List(ctx context.Context) ([]Schedule, error) {
	schedules, err := s.schedules.ListSchedules(ctx)
	if err != nil {
		return nil, mapScheduleRepoError(err)
	}
	return schedules, nil
}

// CheckConflicts evaluates a stored schedule against itself and against every
// other stored schedule, without mutating anything or emitting events.
func (s *ScheduleService) CheckConflicts(ctx context.Context, id int64) ([]scheduler.Conflict, error) {
	schedule, err := s.schedules.GetSchedule(ctx, id)
	if err != nil {
		return nil, mapScheduleRepoError(err)
	}

	detectorEntries := toDetectorEntries(schedule.Entries)
	conflicts := scheduler.DetectIntraConflicts(detectorEntries)

	all, err := s.schedules.ListSchedules(ctx)
	if err != nil {
		return nil, mapScheduleRepoError(err)
	}
	conflicts = append(conflicts, scheduler.DetectCrossConflicts(detectorEntries, id, toBaseline(all))...)

	return conflicts, nil
}

// MarkOptimizing transitions a schedule into the Optimizing state and returns
// its current content. Used exclusively by the optimizer flow.
func (s *ScheduleService) MarkOptimizing(ctx context.Context, id int64) (Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedule, err := s.schedules.GetSchedule(ctx, id)
	if err != nil {
		return Schedule{}, mapScheduleRepoError(err)
	}
	if err := s.schedules.UpdateStatus(ctx, id, StatusOptimizing); err != nil {
		return Schedule{}, mapScheduleRepoError(err)
	}
	schedule.Status = StatusOptimizing
	return schedule, nil
}

// ApplyOptimizationResult replaces a schedule's entries with the optimizer's
// output and records the new status and optimization timestamp.
func (s *ScheduleService) ApplyOptimizationResult(ctx context.Context, id int64, entries []Entry, status Status, optimizedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.schedules.ApplyOptimization(ctx, id, cloneEntries(entries), status, optimizedAt); err != nil {
		return mapScheduleRepoError(err)
	}
	return nil
}

func (s *ScheduleService) baselineLocked(ctx context.Context) ([]scheduler.StoredSchedule, error) {
	all, err := s.schedules.ListSchedules(ctx)
	if err != nil {
		return nil, err
	}
	return toBaseline(all), nil
}

func toBaseline(schedules []Schedule) []scheduler.StoredSchedule {
	baseline := make([]scheduler.StoredSchedule, 0, len(schedules))
	for _, schedule := range schedules {
		baseline = append(baseline, scheduler.StoredSchedule{
			ID:      schedule.ID,
			Name:    schedule.Name,
			Entries: toDetectorEntries(schedule.Entries),
		})
	}
	return baseline
}

func (s *ScheduleService) emitUpdated(ctx context.Context, id int64, change messaging.ChangeKind, details string) {
	if s.events == nil {
		return
	}
	event := messaging.NewUpdatedEvent(id, change, details, s.now())
	if err := s.events.Publish(ctx, event); err != nil {
		serviceLogger(ctx, s.logger, "schedule", "emit_updated").Warn(
			"failed to publish updated event", "schedule_id", id, "change", change, "error", err)
	}
}

func (s *ScheduleService) emitConflict(ctx context.Context, id int64, conflictErr *ConflictError) {
	if s.events == nil {
		return
	}
	event := messaging.NewConflictEvent(id, string(conflictErr.Scope), conflictErr.Messages(), s.now())
	if err := s.events.Publish(ctx, event); err != nil {
		serviceLogger(ctx, s.logger, "schedule", "emit_conflict").Warn(
			"failed to publish conflict event", "schedule_id", id, "scope", conflictErr.Scope, "error", err)
	}
}

func validateScheduleInput(input ScheduleInput) *ValidationError {
	vErr := &ValidationError{}

	if strings.TrimSpace(input.Name) == "" {
		vErr.add("name", "name is required")
	}

	for i, entry := range input.Entries {
		prefix := fmt.Sprintf("entries[%d].", i)
		if strings.TrimSpace(entry.Subject) == "" {
			vErr.add(prefix+"subject", "subject is required")
		}
		if strings.TrimSpace(entry.Teacher) == "" {
			vErr.add(prefix+"teacher", "teacher is required")
		}
		if strings.TrimSpace(entry.Group) == "" {
			vErr.add(prefix+"group", "group is required")
		}
		if strings.TrimSpace(entry.Room) == "" {
			vErr.add(prefix+"room", "room is required")
		}
		if entry.Day < 0 || entry.Day > 6 {
			vErr.add(prefix+"dayOfWeek", "day of week must be between 0 and 6")
		}
		startValid := entry.Start >= 0 && entry.Start < scheduler.MinutesPerDay
		endValid := entry.End > 0 && entry.End <= scheduler.MinutesPerDay
		if !startValid {
			vErr.add(prefix+"startTime", "a valid HH:MM start time is required")
		}
		if !endValid {
			vErr.add(prefix+"endTime", "a valid HH:MM end time is required")
		}
		if startValid && endValid && entry.End <= entry.Start {
			vErr.add(prefix+"time", "end time must be after start time")
		}
	}

	return vErr
}

func entriesFromInput(inputs []EntryInput) []Entry {
	entries := make([]Entry, 0, len(inputs))
	for _, input := range inputs {
		entries = append(entries, Entry{
			Subject: strings.TrimSpace(input.Subject),
			Teacher: strings.TrimSpace(input.Teacher),
			Group:   strings.TrimSpace(input.Group),
			Room:    strings.TrimSpace(input.Room),
			Day:     time.Weekday(input.Day),
			Start:   input.Start,
			End:     input.End,
		})
	}
	return entries
}

func mapScheduleRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
