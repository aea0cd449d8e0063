package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Config carries the broker connection settings shared by publishers and
// consumers. The target is always externally supplied; nothing in this
// package hardcodes a broker address.
type Config struct {
	URL           string
	RetryAttempts int
	RetryDelay    time.Duration
}

func (c Config) withDefaults() Config {
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 15
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}
	return c
}

// brokerConnection and brokerChannel narrow the amqp client surface used
// here, so connection handling can be exercised in tests without a broker.
// *amqp.Channel satisfies brokerChannel as-is.
type brokerConnection interface {
	Channel() (brokerChannel, error)
	IsClosed() bool
	Close() error
}

type brokerChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

type dialFunc func(url string) (brokerConnection, error)

type amqpConnection struct {
	conn *amqp.Connection
}

func (c *amqpConnection) Channel() (brokerChannel, error) {
	return c.conn.Channel()
}

func (c *amqpConnection) IsClosed() bool {
	return c.conn.IsClosed()
}

func (c *amqpConnection) Close() error {
	return c.conn.Close()
}

func amqpDial(url string) (brokerConnection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return &amqpConnection{conn: conn}, nil
}

// connectWithRetry dials the broker under a bounded retry budget with a fixed
// delay between attempts. Exhausting the budget is a setup failure the caller
// must treat as fatal; callers cancel via ctx.
func connectWithRetry(ctx context.Context, cfg Config, dial dialFunc, logger *slog.Logger) (brokerConnection, error) {
	var lastErr error
	for attempt := 1; attempt <= cfg.RetryAttempts; attempt++ {
		conn, err := dial(cfg.URL)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		logger.Warn("broker connection attempt failed",
			"attempt", attempt, "max_attempts", cfg.RetryAttempts, "error", err)

		if attempt == cfg.RetryAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cfg.RetryDelay):
		}
	}
	return nil, fmt.Errorf("broker unreachable after %d attempts: %w", cfg.RetryAttempts, lastErr)
}

func declareExchange(ch brokerChannel) error {
	return ch.ExchangeDeclare(ExchangeName, "topic", true, false, false, false, nil)
}
