package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/timetable-scheduler/internal/config"
	"github.com/example/timetable-scheduler/internal/logging"
	"github.com/example/timetable-scheduler/internal/messaging"
	"github.com/example/timetable-scheduler/internal/notify"
)

func main() {
	logger := logging.New("notifier")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	sink := notify.NewFileSink(cfg.NotificationLog)
	notifier := notify.NewNotifier(sink, time.Now, logger)

	consumer := messaging.NewConsumer(messaging.Config{
		URL:           cfg.Broker.URL(),
		RetryAttempts: cfg.Broker.RetryAttempts,
		RetryDelay:    cfg.Broker.RetryDelay,
	}, "notifier", nil, logger)

	logger.Info("notifier consuming", "sink", cfg.NotificationLog)
	if err := consumer.Run(ctx, notifier.Handle); err != nil {
		logger.Error("consumer terminated", "error", err)
		os.Exit(1)
	}
}
