package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// HandlerFunc processes one decoded domain event. Deliveries are
// auto-acknowledged before the handler runs, so a handler failure never
// causes redelivery; the effective delivery guarantee is at-most-once per
// consumer even though the transport itself is at-least-once.
type HandlerFunc func(ctx context.Context, event DomainEvent)

// Consumer binds a private queue to the shared exchange and feeds decoded
// events to a handler. The loop reconnects under the same bounded-retry
// policy as the publisher and runs until the context is cancelled.
type Consumer struct {
	cfg      Config
	name     string
	patterns []string
	logger   *slog.Logger
	dial     dialFunc
}

// NewConsumer wires a consumer that binds the given routing patterns, for
// example BindingPatternAll or individual routing keys.
func NewConsumer(cfg Config, name string, patterns []string, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	if len(patterns) == 0 {
		patterns = []string{BindingPatternAll}
	}
	return &Consumer{
		cfg:      cfg.withDefaults(),
		name:     name,
		patterns: append([]string(nil), patterns...),
		logger:   logger.With("consumer", name),
		dial:     amqpDial,
	}
}

// Run consumes until ctx is cancelled, returning nil on cancellation. A
// connection that cannot be established within the retry budget is an
// unrecoverable setup error and is returned to the caller.
func (c *Consumer) Run(ctx context.Context, handle HandlerFunc) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		err := c.consumeOnce(ctx, handle)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		// Delivery stream closed underneath us: the broker went away. Loop
		// back into the bounded reconnect.
		c.logger.Warn("broker connection lost, reconnecting")
	}
}

func (c *Consumer) consumeOnce(ctx context.Context, handle HandlerFunc) error {
	conn, err := connectWithRetry(ctx, c.cfg, c.dial, c.logger)
	if err != nil {
		return fmt.Errorf("consumer setup failed: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("consumer setup failed: %w", err)
	}
	defer ch.Close()

	if err := declareExchange(ch); err != nil {
		return fmt.Errorf("consumer setup failed: %w", err)
	}

	// Private queue: broker-named, exclusive to this connection, removed when
	// the consumer goes away.
	queue, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("consumer setup failed: %w", err)
	}
	for _, pattern := range c.patterns {
		if err := ch.QueueBind(queue.Name, pattern, ExchangeName, false, nil); err != nil {
			return fmt.Errorf("consumer setup failed: %w", err)
		}
	}

	deliveries, err := ch.Consume(queue.Name, c.name, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consumer setup failed: %w", err)
	}

	c.logger.Info("consuming schedule events", "queue", queue.Name, "patterns", c.patterns)

	for {
		select {
		case <-ctx.Done():
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.dispatch(ctx, delivery, handle)
		}
	}
}

// dispatch decodes the envelope once and hands the tagged event to the
// handler. Decode and handler failures are logged and the message counts as
// handled.
func (c *Consumer) dispatch(ctx context.Context, delivery amqp.Delivery, handle HandlerFunc) {
	event, err := DecodeEvent(delivery.Body)
	if err != nil {
		c.logger.Error("discarding undecodable event", "routing_key", delivery.RoutingKey, "error", err)
		return
	}
	if key := event.Type.RoutingKey(); key != delivery.RoutingKey {
		c.logger.Warn("event type does not match routing key", "routing_key", delivery.RoutingKey, "type", event.Type)
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("event handler panicked", "routing_key", delivery.RoutingKey, "message_id", event.MessageID, "panic", r)
		}
	}()
	handle(ctx, event)
}
