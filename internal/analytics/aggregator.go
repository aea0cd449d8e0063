package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/timetable-scheduler/internal/messaging"
)

// Statistics is the aggregate view over the consumed event stream.
// TotalSchedules is derived from the set of currently active schedule ids, so
// create/delete asymmetry can never make the count drift.
type Statistics struct {
	TotalSchedules            int       `json:"totalSchedules"`
	TotalOptimizations        int64     `json:"totalOptimizations"`
	TotalConflicts            int64     `json:"totalConflicts"`
	TotalUpdates              int64     `json:"totalUpdates"`
	AverageOptimizationMillis float64   `json:"averageOptimizationMs"`
	LastUpdated               time.Time `json:"lastUpdated"`
}

// ScheduleMetrics accumulates per-schedule counters. An entry is created
// lazily when the schedule's Created event arrives.
type ScheduleMetrics struct {
	ScheduleID    int64     `json:"scheduleId"`
	Updates       int64     `json:"updates"`
	Optimizations int64     `json:"optimizations"`
	Conflicts     int64     `json:"conflicts"`
	LastEventAt   time.Time `json:"lastEventAt"`
}

// Aggregator folds the event stream into running counters. It owns its state
// outright: the only mutation path is Apply, driven by the single consumer
// loop, and reads go through the snapshot methods.
//
// Duplicate deliveries are not deduplicated; the counters count deliveries,
// not distinct events. Only the active-id set is idempotent by construction.
type Aggregator struct {
	mu     sync.RWMutex
	logger *slog.Logger
	now    func() time.Time

	active  map[int64]struct{}
	metrics map[int64]*ScheduleMetrics

	totalOptimizations int64
	totalConflicts     int64
	totalUpdates       int64

	optimizationSamples     int64
	optimizationMillisTotal int64

	lastUpdated time.Time
}

// NewAggregator builds an empty aggregator.
func NewAggregator(now func() time.Time, logger *slog.Logger) *Aggregator {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		logger:  logger,
		now:     now,
		active:  make(map[int64]struct{}),
		metrics: make(map[int64]*ScheduleMetrics),
	}
}

// Handle adapts Apply to the messaging consumer contract.
func (a *Aggregator) Handle(_ context.Context, event messaging.DomainEvent) {
	a.Apply(event)
}

// Apply folds one decoded event into the counters.
func (a *Aggregator) Apply(event messaging.DomainEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.lastUpdated = a.now()

	switch event.Type {
	case messaging.EventTypeUpdated:
		a.applyUpdatedLocked(event)
	case messaging.EventTypeOptimized:
		a.applyOptimizedLocked(event)
	case messaging.EventTypeConflict:
		a.totalConflicts++
		if metrics := a.metrics[event.ScheduleID]; metrics != nil {
			metrics.Conflicts++
			metrics.LastEventAt = a.lastUpdated
		}
	default:
		a.logger.Warn("ignoring event with unknown type", "type", event.Type, "message_id", event.MessageID)
	}
}

func (a *Aggregator) applyUpdatedLocked(event messaging.DomainEvent) {
	a.totalUpdates++

	if event.Updated == nil {
		return
	}
	switch event.Updated.Change {
	case messaging.ChangeCreated:
		// Idempotent add: a redelivered Created never double-counts.
		a.active[event.ScheduleID] = struct{}{}
		if _, ok := a.metrics[event.ScheduleID]; !ok {
			a.metrics[event.ScheduleID] = &ScheduleMetrics{ScheduleID: event.ScheduleID}
		}
	case messaging.ChangeDeleted:
		delete(a.active, event.ScheduleID)
	}

	if metrics := a.metrics[event.ScheduleID]; metrics != nil {
		metrics.Updates++
		metrics.LastEventAt = a.lastUpdated
	}
}

func (a *Aggregator) applyOptimizedLocked(event messaging.DomainEvent) {
	a.totalOptimizations++

	if metrics := a.metrics[event.ScheduleID]; metrics != nil {
		metrics.Optimizations++
		metrics.LastEventAt = a.lastUpdated
	}

	if event.Optimized != nil && event.Optimized.Status == messaging.OptimizationCompleted {
		a.optimizationSamples++
		a.optimizationMillisTotal += event.Optimized.DurationMillis
	}
}

// Snapshot returns a copy of the aggregate statistics.
func (a *Aggregator) Snapshot() Statistics {
	a.mu.RLock()
	defer a.mu.RUnlock()

	average := 0.0
	if a.optimizationSamples > 0 {
		average = float64(a.optimizationMillisTotal) / float64(a.optimizationSamples)
	}

	return Statistics{
		TotalSchedules:            len(a.active),
		TotalOptimizations:        a.totalOptimizations,
		TotalConflicts:            a.totalConflicts,
		TotalUpdates:              a.totalUpdates,
		AverageOptimizationMillis: average,
		LastUpdated:               a.lastUpdated,
	}
}

// MetricsFor returns a copy of the per-schedule metrics when they exist.
func (a *Aggregator) MetricsFor(scheduleID int64) (ScheduleMetrics, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	metrics, ok := a.metrics[scheduleID]
	if !ok {
		return ScheduleMetrics{}, false
	}
	return *metrics, true
}
