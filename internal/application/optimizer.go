package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/timetable-scheduler/internal/messaging"
	"github.com/example/timetable-scheduler/internal/scheduler"
)

// scheduleStore is the slice of the schedule service the optimizer depends
// on.
type scheduleStore interface {
	Get(ctx context.Context, id int64) (Schedule, error)
	MarkOptimizing(ctx context.Context, id int64) (Schedule, error)
	ApplyOptimizationResult(ctx context.Context, id int64, entries []Entry, status Status, optimizedAt time.Time) error
}

// OptimizerService runs the asynchronous optimization flow. A call to
// Optimize returns once the Started event is issued; the remaining work runs
// detached and is observable only through the emitted lifecycle events:
// Started, then InProgress, then exactly one of Completed or Failed. The
// optimizer never lets an error escape its own boundary.
type OptimizerService struct {
	store    scheduleStore
	events   EventPublisher
	now      func() time.Time
	newRunID func() string
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewOptimizerService wires dependencies for the optimization flow.
func NewOptimizerService(store scheduleStore, events EventPublisher, now func() time.Time, logger *slog.Logger) *OptimizerService {
	if now == nil {
		now = time.Now
	}
	return &OptimizerService{
		store:    store,
		events:   events,
		now:      now,
		newRunID: uuid.NewString,
		logger:   defaultLogger(logger),
	}
}

// Optimize triggers an optimization run for the schedule. It fails fast with
// ErrNotFound for an unknown id; once the Started event has been issued the
// caller observes nothing further directly.
func (o *OptimizerService) Optimize(ctx context.Context, id int64) error {
	if _, err := o.store.Get(ctx, id); err != nil {
		return err
	}

	runID := o.newRunID()
	startedAt := o.now()
	o.emit(ctx, id, messaging.OptimizedPayload{Status: messaging.OptimizationStarted, RunID: runID},
		fmt.Sprintf("optimization %s started", runID))

	// The run outlives the triggering request.
	detached := context.WithoutCancel(ctx)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run(detached, id, runID, startedAt)
	}()

	return nil
}

// Wait blocks until all in-flight optimization runs have terminated.
func (o *OptimizerService) Wait() {
	o.wg.Wait()
}

func (o *OptimizerService) run(ctx context.Context, id int64, runID string, startedAt time.Time) {
	defer func() {
		if r := recover(); r != nil {
			o.fail(ctx, id, runID, fmt.Sprintf("optimization panicked: %v", r))
		}
	}()

	o.emit(ctx, id, messaging.OptimizedPayload{Status: messaging.OptimizationInProgress, RunID: runID},
		fmt.Sprintf("optimization %s in progress", runID))

	schedule, err := o.store.MarkOptimizing(ctx, id)
	if err != nil {
		o.fail(ctx, id, runID, fmt.Sprintf("failed to load schedule: %v", err))
		return
	}

	result, optimized := optimizeEntries(schedule.Entries)

	optimizedAt := o.now()
	if err := o.store.ApplyOptimizationResult(ctx, id, optimized, StatusOptimized, optimizedAt); err != nil {
		o.fail(ctx, id, runID, fmt.Sprintf("failed to apply optimization: %v", err))
		return
	}

	result.RunID = runID
	result.Duration = optimizedAt.Sub(startedAt)
	o.emit(ctx, id, messaging.OptimizedPayload{
		Status:            messaging.OptimizationCompleted,
		RunID:             runID,
		DurationMillis:    result.Duration.Milliseconds(),
		WindowsReduced:    result.WindowsReduced,
		ConflictsResolved: result.ConflictsResolved,
		LoadBalanceScore:  result.LoadBalanceScore,
	}, fmt.Sprintf("optimization %s completed: %d window(s) reduced, %d conflict(s) resolved", runID, result.WindowsReduced, result.ConflictsResolved))
}

// optimizeEntries applies the deterministic reorder and measures windows and
// conflicts before and after.
func optimizeEntries(entries []Entry) (OptimizationResult, []Entry) {
	before := toDetectorEntries(entries)
	windowsBefore := scheduler.CountWindows(before)
	conflictsBefore := len(scheduler.DetectIntraConflicts(before))

	after := scheduler.SortEntries(before)
	windowsAfter := scheduler.CountWindows(after)
	conflictsAfter := len(scheduler.DetectIntraConflicts(after))

	return OptimizationResult{
		WindowsReduced:    maxZero(windowsBefore - windowsAfter),
		ConflictsResolved: maxZero(conflictsBefore - conflictsAfter),
		LoadBalanceScore:  scheduler.LoadBalanceScore(after),
	}, fromDetectorEntries(after)
}

func (o *OptimizerService) fail(ctx context.Context, id int64, runID, details string) {
	serviceLogger(ctx, o.logger, "optimizer", "run").Error("optimization failed",
		"schedule_id", id, "run_id", runID, "details", details)
	o.emit(ctx, id, messaging.OptimizedPayload{Status: messaging.OptimizationFailed, RunID: runID}, details)
}

func (o *OptimizerService) emit(ctx context.Context, id int64, payload messaging.OptimizedPayload, details string) {
	if o.events == nil {
		return
	}
	event := messaging.NewOptimizedEvent(id, payload, details, o.now())
	if err := o.events.Publish(ctx, event); err != nil {
		serviceLogger(ctx, o.logger, "optimizer", "emit").Warn("failed to publish optimized event",
			"schedule_id", id, "status", payload.Status, "error", err)
	}
}

func maxZero(value int) int {
	if value < 0 {
		return 0
	}
	return value
}
