package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/example/timetable-scheduler/internal/messaging"
	"github.com/example/timetable-scheduler/internal/persistence"
	"github.com/example/timetable-scheduler/internal/scheduler"
)

type scheduleRepoStub struct {
	mu        sync.Mutex
	nextID    int64
	schedules map[int64]Schedule

	createErr error
	listErr   error
}

func newScheduleRepoStub() *scheduleRepoStub {
	return &scheduleRepoStub{schedules: map[int64]Schedule{}}
}

func (s *scheduleRepoStub) CreateSchedule(_ context.Context, schedule Schedule) (Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return Schedule{}, s.createErr
	}
	s.nextID++
	schedule.ID = s.nextID
	s.schedules[schedule.ID] = schedule
	return schedule, nil
}

func (s *scheduleRepoStub) GetSchedule(_ context.Context, id int64) (Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	schedule, ok := s.schedules[id]
	if !ok {
		return Schedule{}, persistence.ErrNotFound
	}
	return schedule, nil
}

func (s *scheduleRepoStub) UpdateSchedule(_ context.Context, schedule Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[schedule.ID]; !ok {
		return persistence.ErrNotFound
	}
	s.schedules[schedule.ID] = schedule
	return nil
}

func (s *scheduleRepoStub) UpdateStatus(_ context.Context, id int64, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	schedule, ok := s.schedules[id]
	if !ok {
		return persistence.ErrNotFound
	}
	schedule.Status = status
	s.schedules[id] = schedule
	return nil
}

func (s *scheduleRepoStub) ApplyOptimization(_ context.Context, id int64, entries []Entry, status Status, optimizedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	schedule, ok := s.schedules[id]
	if !ok {
		return persistence.ErrNotFound
	}
	schedule.Entries = entries
	schedule.Status = status
	schedule.LastOptimizedAt = &optimizedAt
	s.schedules[id] = schedule
	return nil
}

func (s *scheduleRepoStub) DeleteSchedule(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.schedules, id)
	return nil
}

func (s *scheduleRepoStub) ListSchedules(_ context.Context) ([]Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	schedules := make([]Schedule, 0, len(s.schedules))
	for _, schedule := range s.schedules {
		schedules = append(schedules, schedule)
	}
	return schedules, nil
}

func (s *scheduleRepoStub) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.schedules)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []messaging.DomainEvent
	err    error
}

func (r *eventRecorder) Publish(_ context.Context, event messaging.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) recorded() []messaging.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]messaging.DomainEvent, len(r.events))
	copy(out, r.events)
	return out
}

func entryInput(overrides ...func(*EntryInput)) EntryInput {
	input := EntryInput{
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

func scheduleInput(name string, entries ...EntryInput) ScheduleInput {
	if len(entries) == 0 {
		entries = []EntryInput{entryInput()}
	}
	return ScheduleInput{Name: name, Entries: entries}
}

func newServiceForTest() (*ScheduleService, *scheduleRepoStub, *eventRecorder) {
	repo := newScheduleRepoStub()
	events := &eventRecorder{}
	now := func() time.Time { return time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC) }
	return NewScheduleService(repo, events, now, nil), repo, events
}

func TestScheduleServiceCreate(t *testing.T) {
	t.Run("stores a valid schedule as draft", func(t *testing.T) {
		service, repo, events := newServiceForTest()

		created, err := service.Create(context.Background(), scheduleInput("Autumn"))
		if err != nil {
			t.Fatalf("Create returned error: %v", err)
		}
		if created.ID != 1 {
			t.Fatalf("expected id 1, got %d", created.ID)
		}
		if created.Status != StatusDraft {
			t.Fatalf("expected draft status, got %s", created.Status)
		}
		if created.CreatedAt.IsZero() {
			t.Fatal("expected CreatedAt to be set")
		}
		if repo.count() != 1 {
			t.Fatalf("expected 1 stored schedule, got %d", repo.count())
		}

		recorded := events.recorded()
		if len(recorded) != 1 {
			t.Fatalf("expected 1 event, got %d", len(recorded))
		}
		event := recorded[0]
		if event.Type != messaging.EventTypeUpdated || event.Updated == nil || event.Updated.Change != messaging.ChangeCreated {
			t.Fatalf("unexpected event: %+v", event)
		}
		if event.ScheduleID != 1 {
			t.Fatalf("expected event for schedule 1, got %d", event.ScheduleID)
		}
	})

	t.Run("ids are never reused after delete", func(t *testing.T) {
		service, _, _ := newServiceForTest()
		ctx := context.Background()

		first, err := service.Create(ctx, scheduleInput("First"))
		if err != nil {
			t.Fatalf("Create returned error: %v", err)
		}
		if err := service.Delete(ctx, first.ID); err != nil {
			t.Fatalf("Delete returned error: %v", err)
		}

		second, err := service.Create(ctx, scheduleInput("Second"))
		if err != nil {
			t.Fatalf("Create returned error: %v", err)
		}
		if second.ID <= first.ID {
			t.Fatalf("expected a fresh id greater than %d, got %d", first.ID, second.ID)
		}
	})

	t.Run("rejects invalid input with field errors", func(t *testing.T) {
		service, repo, events := newServiceForTest()

		input := ScheduleInput{
			Name: " ",
			Entries: []EntryInput{entryInput(func(e *EntryInput) {
				e.Teacher = ""
				e.Day = 9
				e.Start = -1
				e.End = 8 * 60
			})},
		}

		_, err := service.Create(context.Background(), input)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected validation error, got %v", err)
		}
		for _, field := range []string{"name", "entries[0].teacher", "entries[0].dayOfWeek", "entries[0].startTime"} {
			if _, ok := vErr.FieldErrors[field]; !ok {
				t.Fatalf("expected field error for %s, got %v", field, vErr.FieldErrors)
			}
		}
		if repo.count() != 0 {
			t.Fatal("invalid schedule must not be stored")
		}
		if len(events.recorded()) != 0 {
			t.Fatal("invalid schedule must not emit events")
		}
	})

	t.Run("rejects end not after start", func(t *testing.T) {
		service, _, _ := newServiceForTest()

		input := scheduleInput("Autumn", entryInput(func(e *EntryInput) {
			e.Start = 10 * 60
			e.End = 10 * 60
		}))

		_, err := service.Create(context.Background(), input)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected validation error, got %v", err)
		}
		if _, ok := vErr.FieldErrors["entries[0].time"]; !ok {
			t.Fatalf("expected time ordering error, got %v", vErr.FieldErrors)
		}
	})

	t.Run("rejects internally conflicting schedule without storing it", func(t *testing.T) {
		service, repo, events := newServiceForTest()

		input := scheduleInput("Autumn",
			entryInput(),
			entryInput(func(e *EntryInput) {
				e.Subject = "Physics"
				e.Teacher = "Jones"
				e.Group = "10B"
				e.Start = 9*60 + 30
				e.End = 10*60 + 30
			}),
		)

		_, err := service.Create(context.Background(), input)
		var cErr *ConflictError
		if !errors.As(err, &cErr) {
			t.Fatalf("expected conflict error, got %v", err)
		}
		if cErr.Scope != scheduler.ScopeInternal {
			t.Fatalf("expected internal scope, got %s", cErr.Scope)
		}
		if repo.count() != 0 {
			t.Fatal("conflicting schedule must not be stored")
		}

		recorded := events.recorded()
		if len(recorded) != 1 || recorded[0].Type != messaging.EventTypeConflict {
			t.Fatalf("expected a conflict event, got %+v", recorded)
		}
		if recorded[0].ScheduleID != 0 {
			t.Fatalf("rejected create must carry sentinel id 0, got %d", recorded[0].ScheduleID)
		}
	})

	t.Run("rejects schedule conflicting with stored baseline", func(t *testing.T) {
		service, repo, events := newServiceForTest()
		ctx := context.Background()

		if _, err := service.Create(ctx, scheduleInput("Existing")); err != nil {
			t.Fatalf("Create returned error: %v", err)
		}

		_, err := service.Create(ctx, scheduleInput("Candidate", entryInput(func(e *EntryInput) {
			e.Subject = "Physics"
			e.Teacher = "Jones"
			e.Group = "10B"
		})))
		var cErr *ConflictError
		if !errors.As(err, &cErr) {
			t.Fatalf("expected conflict error, got %v", err)
		}
		if cErr.Scope != scheduler.ScopeGlobal {
			t.Fatalf("expected global scope, got %s", cErr.Scope)
		}
		if repo.count() != 1 {
			t.Fatalf("expected only the first schedule stored, got %d", repo.count())
		}

		recorded := events.recorded()
		last := recorded[len(recorded)-1]
		if last.Type != messaging.EventTypeConflict || last.Conflict == nil {
			t.Fatalf("expected conflict event, got %+v", last)
		}
		if len(last.Conflict.Conflicts) == 0 {
			t.Fatal("conflict event must carry descriptions")
		}
	})

	t.Run("publish failure does not roll back the create", func(t *testing.T) {
		service, repo, events := newServiceForTest()
		events.err = errors.New("broker down")

		created, err := service.Create(context.Background(), scheduleInput("Autumn"))
		if err != nil {
			t.Fatalf("Create returned error: %v", err)
		}
		if created.ID == 0 || repo.count() != 1 {
			t.Fatal("schedule must stay committed when publishing fails")
		}
	})

	t.Run("concurrent conflicting creates commit at most one", func(t *testing.T) {
		service, repo, _ := newServiceForTest()
		ctx := context.Background()

		const attempts = 8
		errs := make([]error, attempts)
		var wg sync.WaitGroup
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = service.Create(ctx, scheduleInput("Racing"))
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			var cErr *ConflictError
			if !errors.As(err, &cErr) {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if succeeded != 1 {
			t.Fatalf("expected exactly one winner, got %d", succeeded)
		}
		if repo.count() != 1 {
			t.Fatalf("expected exactly one stored schedule, got %d", repo.count())
		}
	})

	t.Run("concurrent creates over disjoint resources all commit", func(t *testing.T) {
		service, repo, _ := newServiceForTest()
		ctx := context.Background()

		const attempts = 4
		errs := make([]error, attempts)
		var wg sync.WaitGroup
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				suffix := fmt.Sprintf("%d", i)
				_, errs[i] = service.Create(ctx, scheduleInput("Disjoint "+suffix, entryInput(func(e *EntryInput) {
					e.Teacher = "Teacher " + suffix
					e.Group = "Group " + suffix
					e.Room = "Room " + suffix
				})))
			}(i)
		}
		wg.Wait()

		for i, err := range errs {
			if err != nil {
				t.Fatalf("create %d returned error: %v", i, err)
			}
		}
		if repo.count() != attempts {
			t.Fatalf("expected %d stored schedules, got %d", attempts, repo.count())
		}
	})
}

func TestScheduleServiceUpdate(t *testing.T) {
	t.Run("unknown id maps to ErrNotFound", func(t *testing.T) {
		service, _, _ := newServiceForTest()

		_, err := service.Update(context.Background(), 42, scheduleInput("Ghost"))
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("replacement does not conflict with its own previous state", func(t *testing.T) {
		service, _, events := newServiceForTest()
		ctx := context.Background()

		created, err := service.Create(ctx, scheduleInput("Autumn"))
		if err != nil {
			t.Fatalf("Create returned error: %v", err)
		}

		// Same slot as before: only the stored copy of this schedule occupies
		// it, so the update must pass.
		updated, err := service.Update(ctx, created.ID, scheduleInput("Autumn v2"))
		if err != nil {
			t.Fatalf("Update returned error: %v", err)
		}
		if updated.Name != "Autumn v2" {
			t.Fatalf("expected renamed schedule, got %q", updated.Name)
		}

		recorded := events.recorded()
		last := recorded[len(recorded)-1]
		if last.Type != messaging.EventTypeUpdated || last.Updated.Change != messaging.ChangeUpdated {
			t.Fatalf("expected updated event, got %+v", last)
		}
	})

	t.Run("update conflicting with another schedule is rejected", func(t *testing.T) {
		service, _, _ := newServiceForTest()
		ctx := context.Background()

		if _, err := service.Create(ctx, scheduleInput("First")); err != nil {
			t.Fatalf("Create returned error: %v", err)
		}
		second, err := service.Create(ctx, scheduleInput("Second", entryInput(func(e *EntryInput) {
			e.Day = int(time.Tuesday)
		})))
		if err != nil {
			t.Fatalf("Create returned error: %v", err)
		}

		// Move the second schedule onto the first one's slot.
		_, err = service.Update(ctx, second.ID, scheduleInput("Second"))
		var cErr *ConflictError
		if !errors.As(err, &cErr) {
			t.Fatalf("expected conflict error, got %v", err)
		}
		if cErr.Scope != scheduler.ScopeGlobal {
			t.Fatalf("expected global scope, got %s", cErr.Scope)
		}

		// The stored schedule keeps its previous state.
		stored, err := service.Get(ctx, second.ID)
		if err != nil {
			t.Fatalf("Get returned error: %v", err)
		}
		if stored.Entries[0].Day != time.Tuesday {
			t.Fatal("rejected update must not modify the stored schedule")
		}
	})
}

func TestScheduleServiceDelete(t *testing.T) {
	service, repo, events := newServiceForTest()
	ctx := context.Background()

	created, err := service.Create(ctx, scheduleInput("Autumn"))
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := service.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if repo.count() != 0 {
		t.Fatal("expected schedule to be removed")
	}

	recorded := events.recorded()
	last := recorded[len(recorded)-1]
	if last.Type != messaging.EventTypeUpdated || last.Updated.Change != messaging.ChangeDeleted {
		t.Fatalf("expected deleted event, got %+v", last)
	}

	if err := service.Delete(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for second delete, got %v", err)
	}
	if len(events.recorded()) != len(recorded) {
		t.Fatal("failed delete must not emit events")
	}
}

func TestScheduleServiceCheckConflicts(t *testing.T) {
	service, _, events := newServiceForTest()
	ctx := context.Background()

	first, err := service.Create(ctx, scheduleInput("First"))
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	second, err := service.Create(ctx, scheduleInput("Second", entryInput(func(e *EntryInput) {
		e.Day = int(time.Tuesday)
	})))
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	t.Run("reports no conflicts for disjoint schedules", func(t *testing.T) {
		conflicts, err := service.CheckConflicts(ctx, second.ID)
		if err != nil {
			t.Fatalf("CheckConflicts returned error: %v", err)
		}
		if len(conflicts) != 0 {
			t.Fatalf("expected no conflicts, got %v", scheduler.Descriptions(conflicts))
		}
	})

	t.Run("unknown id maps to ErrNotFound", func(t *testing.T) {
		if _, err := service.CheckConflicts(ctx, 99); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("read-only check emits no events", func(t *testing.T) {
		before := len(events.recorded())
		if _, err := service.CheckConflicts(ctx, first.ID); err != nil {
			t.Fatalf("CheckConflicts returned error: %v", err)
		}
		if after := len(events.recorded()); after != before {
			t.Fatalf("expected no new events, got %d", after-before)
		}
	})
}

func TestScheduleServiceMarkOptimizing(t *testing.T) {
	service, _, _ := newServiceForTest()
	ctx := context.Background()

	created, err := service.Create(ctx, scheduleInput("Autumn"))
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	marked, err := service.MarkOptimizing(ctx, created.ID)
	if err != nil {
		t.Fatalf("MarkOptimizing returned error: %v", err)
	}
	if marked.Status != StatusOptimizing {
		t.Fatalf("expected optimizing status, got %s", marked.Status)
	}

	stored, err := service.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if stored.Status != StatusOptimizing {
		t.Fatalf("expected stored status optimizing, got %s", stored.Status)
	}
}
