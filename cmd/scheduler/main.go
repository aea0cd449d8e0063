package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/timetable-scheduler/internal/application"
	"github.com/example/timetable-scheduler/internal/config"
	httptransport "github.com/example/timetable-scheduler/internal/http"
	"github.com/example/timetable-scheduler/internal/logging"
	"github.com/example/timetable-scheduler/internal/messaging"
	"github.com/example/timetable-scheduler/internal/persistence"
	"github.com/example/timetable-scheduler/internal/persistence/sqlite"
)

func main() {
	logger := logging.New("scheduler")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	storage, err := sqlite.Open(cfg.SQLiteDSN)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := storage.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	if err := storage.Migrate(context.Background()); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	publisher := messaging.NewPublisher(messaging.Config{
		URL:           cfg.Broker.URL(),
		RetryAttempts: cfg.Broker.RetryAttempts,
		RetryDelay:    cfg.Broker.RetryDelay,
	}, logger)
	if err := publisher.Connect(ctx); err != nil {
		logger.Error("failed to connect to broker", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := publisher.Close(); cerr != nil {
			logger.Error("failed to close broker connection", "error", cerr)
		}
	}()

	scheduleRepo := newScheduleRepositoryAdapter(storage)
	scheduleService := application.NewScheduleService(scheduleRepo, publisher, time.Now, logger)
	optimizerService := application.NewOptimizerService(scheduleService, publisher, time.Now, logger)

	scheduleHandler := httptransport.NewScheduleHandler(scheduleService, optimizerService, logger)
	handler := httptransport.NewRouter(httptransport.RouterConfig{
		Schedules:  scheduleHandler,
		Middleware: []func(http.Handler) http.Handler{httptransport.RequestLogger(logger)},
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("scheduler API listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server encountered error", "error", err)
		os.Exit(1)
	}

	// Let in-flight optimization runs emit their terminal events.
	optimizerService.Wait()
}

type scheduleRepositoryAdapter struct {
	repo persistence.ScheduleRepository
}

func newScheduleRepositoryAdapter(repo persistence.ScheduleRepository) *scheduleRepositoryAdapter {
	return &scheduleRepositoryAdapter{repo: repo}
}

func (a *scheduleRepositoryAdapter) CreateSchedule(ctx context.Context, schedule application.Schedule) (application.Schedule, error) {
	id, err := a.repo.CreateSchedule(ctx, toPersistenceSchedule(schedule))
	if err != nil {
		return application.Schedule{}, err
	}
	stored, err := a.repo.GetSchedule(ctx, id)
	if err != nil {
		return application.Schedule{}, err
	}
	return toApplicationSchedule(stored), nil
}

func (a *scheduleRepositoryAdapter) GetSchedule(ctx context.Context, id int64) (application.Schedule, error) {
	stored, err := a.repo.GetSchedule(ctx, id)
	if err != nil {
		return application.Schedule{}, err
	}
	return toApplicationSchedule(stored), nil
}

func (a *scheduleRepositoryAdapter) UpdateSchedule(ctx context.Context, schedule application.Schedule) error {
	return a.repo.UpdateSchedule(ctx, toPersistenceSchedule(schedule))
}

func (a *scheduleRepositoryAdapter) UpdateStatus(ctx context.Context, id int64, status application.Status) error {
	return a.repo.UpdateStatus(ctx, id, string(status))
}

func (a *scheduleRepositoryAdapter) ApplyOptimization(ctx context.Context, id int64, entries []application.Entry, status application.Status, optimizedAt time.Time) error {
	return a.repo.ApplyOptimization(ctx, id, toPersistenceEntries(entries), string(status), optimizedAt)
}

func (a *scheduleRepositoryAdapter) DeleteSchedule(ctx context.Context, id int64) error {
	return a.repo.DeleteSchedule(ctx, id)
}

func (a *scheduleRepositoryAdapter) ListSchedules(ctx context.Context) ([]application.Schedule, error) {
	stored, err := a.repo.ListSchedules(ctx)
	if err != nil {
		return nil, err
	}
	schedules := make([]application.Schedule, 0, len(stored))
	for _, schedule := range stored {
		schedules = append(schedules, toApplicationSchedule(schedule))
	}
	return schedules, nil
}

func toPersistenceSchedule(schedule application.Schedule) persistence.Schedule {
	return persistence.Schedule{
		ID:              schedule.ID,
		Name:            schedule.Name,
		Status:          string(schedule.Status),
		CreatedAt:       schedule.CreatedAt,
		LastOptimizedAt: schedule.LastOptimizedAt,
		Entries:         toPersistenceEntries(schedule.Entries),
	}
}

func toPersistenceEntries(entries []application.Entry) []persistence.Entry {
	converted := make([]persistence.Entry, 0, len(entries))
	for _, entry := range entries {
		converted = append(converted, persistence.Entry{
			Subject:     entry.Subject,
			Teacher:     entry.Teacher,
			Group:       entry.Group,
			Room:        entry.Room,
			Day:         int(entry.Day),
			StartMinute: entry.Start,
			EndMinute:   entry.End,
		})
	}
	return converted
}

func toApplicationSchedule(schedule persistence.Schedule) application.Schedule {
	converted := application.Schedule{
		ID:              schedule.ID,
		Name:            schedule.Name,
		Status:          application.Status(schedule.Status),
		CreatedAt:       schedule.CreatedAt,
		LastOptimizedAt: schedule.LastOptimizedAt,
		Entries:         make([]application.Entry, 0, len(schedule.Entries)),
	}
	for _, entry := range schedule.Entries {
		converted.Entries = append(converted.Entries, application.Entry{
			Subject: entry.Subject,
			Teacher: entry.Teacher,
			Group:   entry.Group,
			Room:    entry.Room,
			Day:     time.Weekday(entry.Day),
			Start:   entry.StartMinute,
			End:     entry.EndMinute,
		})
	}
	return converted
}
