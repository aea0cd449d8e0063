package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// PublishError reports that an event could not be handed to the broker. The
// triggering store mutation stays committed; eventing is best-effort at
// runtime.
type PublishError struct {
	RoutingKey string
	Err        error
}

// Error implements the error interface.
func (e *PublishError) Error() string {
	return fmt.Sprintf("failed to publish %s: %v", e.RoutingKey, e.Err)
}

// Unwrap exposes the underlying transport error.
func (e *PublishError) Unwrap() error {
	return e.Err
}

// Publisher emits domain events on the shared topic exchange. Construction is
// cheap and never touches the network; callers run the explicit Connect phase
// before serving so readiness stays observable.
type Publisher struct {
	cfg    Config
	logger *slog.Logger
	dial   dialFunc

	mu   sync.Mutex
	conn brokerConnection
	ch   brokerChannel
}

// NewPublisher wires a publisher for the given broker configuration.
func NewPublisher(cfg Config, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{cfg: cfg.withDefaults(), logger: logger, dial: amqpDial}
}

// Connect establishes the broker connection under the bounded retry policy
// and declares the durable topic exchange. A publisher-owning service must
// treat a Connect failure as fatal: it may not silently run without
// messaging.
func (p *Publisher) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initLocked(ctx)
}

func (p *Publisher) initLocked(ctx context.Context) error {
	conn, err := connectWithRetry(ctx, p.cfg, p.dial, p.logger)
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open broker channel: %w", err)
	}
	if err := declareExchange(ch); err != nil {
		conn.Close()
		return fmt.Errorf("failed to declare exchange %s: %w", ExchangeName, err)
	}

	p.conn = conn
	p.ch = ch
	return nil
}

// Publish serializes the event and sends it under its routing key. When the
// channel has gone stale the publisher re-initializes once before giving up;
// a failure after that surfaces as *PublishError. Publish serializes senders,
// so events issued by one logical flow keep their issuance order.
func (p *Publisher) Publish(ctx context.Context, event DomainEvent) error {
	key := event.Type.RoutingKey()

	body, err := event.Encode()
	if err != nil {
		return &PublishError{RoutingKey: key, Err: err}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stale() {
		p.logger.Warn("broker channel unusable at publish time, reconnecting", "routing_key", key)
		if err := p.reinitLocked(ctx); err != nil {
			return &PublishError{RoutingKey: key, Err: err}
		}
	}

	if err := p.sendLocked(ctx, key, event, body); err != nil {
		// One re-initialization, then give up.
		if reinitErr := p.reinitLocked(ctx); reinitErr != nil {
			return &PublishError{RoutingKey: key, Err: reinitErr}
		}
		if err := p.sendLocked(ctx, key, event, body); err != nil {
			return &PublishError{RoutingKey: key, Err: err}
		}
	}

	p.logger.Debug("event published", "routing_key", key, "schedule_id", event.ScheduleID, "message_id", event.MessageID)
	return nil
}

func (p *Publisher) sendLocked(ctx context.Context, key string, event DomainEvent, body []byte) error {
	return p.ch.PublishWithContext(ctx, ExchangeName, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.MessageID,
		Timestamp:    event.Timestamp,
		Body:         body,
	})
}

func (p *Publisher) stale() bool {
	return p.conn == nil || p.ch == nil || p.conn.IsClosed() || p.ch.IsClosed()
}

func (p *Publisher) reinitLocked(ctx context.Context) error {
	p.closeLocked()
	// Re-publish path uses a single attempt; the bounded budget applies only
	// to the startup Connect phase.
	single := p.cfg
	single.RetryAttempts = 1
	conn, err := connectWithRetry(ctx, single, p.dial, p.logger)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open broker channel: %w", err)
	}
	if err := declareExchange(ch); err != nil {
		conn.Close()
		return fmt.Errorf("failed to declare exchange %s: %w", ExchangeName, err)
	}
	p.conn = conn
	p.ch = ch
	return nil
}

// Close tears down the channel and connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
	return nil
}

func (p *Publisher) closeLocked() {
	if p.ch != nil && !p.ch.IsClosed() {
		if err := p.ch.Close(); err != nil {
			p.logger.Debug("failed to close broker channel", "error", err)
		}
	}
	if p.conn != nil && !p.conn.IsClosed() {
		if err := p.conn.Close(); err != nil {
			p.logger.Debug("failed to close broker connection", "error", err)
		}
	}
	p.conn = nil
	p.ch = nil
}
