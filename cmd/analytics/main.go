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

	"github.com/robfig/cron/v3"

	"github.com/example/timetable-scheduler/internal/analytics"
	"github.com/example/timetable-scheduler/internal/config"
	httptransport "github.com/example/timetable-scheduler/internal/http"
	"github.com/example/timetable-scheduler/internal/logging"
	"github.com/example/timetable-scheduler/internal/messaging"
)

func main() {
	logger := logging.New("analytics")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	aggregator := analytics.NewAggregator(time.Now, logger)

	consumer := messaging.NewConsumer(messaging.Config{
		URL:           cfg.Broker.URL(),
		RetryAttempts: cfg.Broker.RetryAttempts,
		RetryDelay:    cfg.Broker.RetryDelay,
	}, "analytics", nil, logger)

	consumerErr := make(chan error, 1)
	go func() {
		consumerErr <- consumer.Run(ctx, aggregator.Handle)
	}()

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.StatsLogSchedule, func() {
		stats := aggregator.Snapshot()
		logger.Info("analytics summary",
			"total_schedules", stats.TotalSchedules,
			"total_optimizations", stats.TotalOptimizations,
			"total_conflicts", stats.TotalConflicts,
			"total_updates", stats.TotalUpdates,
			"average_optimization_ms", stats.AverageOptimizationMillis,
		)
	}); err != nil {
		logger.Error("invalid stats log schedule", "schedule", cfg.StatsLogSchedule, "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	statsHandler := httptransport.NewStatsHandler(aggregator, logger)
	handler := httptransport.NewRouter(httptransport.RouterConfig{
		Stats:      statsHandler,
		Middleware: []func(http.Handler) http.Handler{httptransport.RequestLogger(logger)},
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.AnalyticsPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		select {
		case <-ctx.Done():
		case err := <-consumerErr:
			if err != nil {
				logger.Error("consumer terminated", "error", err)
			}
			stop()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("analytics API listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server encountered error", "error", err)
		os.Exit(1)
	}
}
