package persistence

import (
	"context"
	"time"
)

// ScheduleRepository is the storage contract for schedules and their entries.
type ScheduleRepository interface {
	// CreateSchedule stores a new schedule and returns the assigned id.
	CreateSchedule(ctx context.Context, schedule Schedule) (int64, error)
	// GetSchedule retrieves a schedule with its entries by id.
	GetSchedule(ctx context.Context, id int64) (Schedule, error)
	// UpdateSchedule replaces the name and entries of an existing schedule.
	UpdateSchedule(ctx context.Context, schedule Schedule) error
	// UpdateStatus transitions the status of an existing schedule.
	UpdateStatus(ctx context.Context, id int64, status string) error
	// ApplyOptimization replaces the entries of a schedule and records the
	// resulting status and optimization timestamp atomically.
	ApplyOptimization(ctx context.Context, id int64, entries []Entry, status string, optimizedAt time.Time) error
	// DeleteSchedule removes a schedule and its entries by id.
	DeleteSchedule(ctx context.Context, id int64) error
	// ListSchedules returns every stored schedule ordered by id.
	ListSchedules(ctx context.Context) ([]Schedule, error)
}
