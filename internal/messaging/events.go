package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ExchangeName is the durable topic exchange all schedule events flow through.
const ExchangeName = "schedule.events"

// Routing keys published to the exchange, one per event type. Consumers may
// bind exact keys or the wildcard pattern.
const (
	RoutingKeyUpdated   = "schedule.updated"
	RoutingKeyOptimized = "schedule.optimized"
	RoutingKeyConflict  = "schedule.conflict"
	BindingPatternAll   = "schedule.*"
)

// EventType discriminates the DomainEvent union. It maps one-to-one onto the
// trailing routing key segment.
type EventType string

const (
	// EventTypeUpdated marks a committed create/update/delete of a schedule.
	EventTypeUpdated EventType = "updated"
	// EventTypeOptimized marks an optimization lifecycle transition.
	EventTypeOptimized EventType = "optimized"
	// EventTypeConflict marks a rejected mutation with detected conflicts.
	EventTypeConflict EventType = "conflict"
)

// RoutingKey returns the topic routing key for the event type.
func (t EventType) RoutingKey() string {
	return "schedule." + string(t)
}

// ChangeKind classifies an updated event.
type ChangeKind string

const (
	ChangeCreated ChangeKind = "Created"
	ChangeUpdated ChangeKind = "Updated"
	ChangeDeleted ChangeKind = "Deleted"
)

// OptimizationStatus is the lifecycle marker carried by optimized events.
// Within one run Started precedes InProgress, which precedes exactly one of
// Completed or Failed.
type OptimizationStatus string

const (
	OptimizationStarted    OptimizationStatus = "Started"
	OptimizationInProgress OptimizationStatus = "InProgress"
	OptimizationCompleted  OptimizationStatus = "Completed"
	OptimizationFailed     OptimizationStatus = "Failed"
)

// UpdatedPayload carries the change classifier of an updated event.
type UpdatedPayload struct {
	Change ChangeKind `json:"change"`
}

// OptimizedPayload carries the lifecycle marker and, on completion, the run
// metrics of an optimization.
type OptimizedPayload struct {
	Status            OptimizationStatus `json:"status"`
	RunID             string             `json:"runId,omitempty"`
	DurationMillis    int64              `json:"durationMs,omitempty"`
	WindowsReduced    int                `json:"windowsReduced"`
	ConflictsResolved int                `json:"conflictsResolved"`
	LoadBalanceScore  float64            `json:"loadBalanceScore"`
}

// ConflictPayload carries the rejection scope and rendered conflict messages.
type ConflictPayload struct {
	Scope     string   `json:"scope"`
	Conflicts []string `json:"conflicts"`
}

// DomainEvent is the tagged union published on every state transition. The
// Type tag selects exactly one payload; the tag is decoded once at the
// transport boundary and consumers switch over it exhaustively.
//
// A ScheduleID of zero is the sentinel for "not yet created" and appears only
// on conflict events raised while validating a new schedule.
type DomainEvent struct {
	Type       EventType         `json:"type"`
	MessageID  string            `json:"messageId"`
	ScheduleID int64             `json:"scheduleId"`
	Details    string            `json:"details,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	Updated    *UpdatedPayload   `json:"updated,omitempty"`
	Optimized  *OptimizedPayload `json:"optimized,omitempty"`
	Conflict   *ConflictPayload  `json:"conflict,omitempty"`
}

// NewUpdatedEvent builds the event emitted after a committed store mutation.
func NewUpdatedEvent(scheduleID int64, change ChangeKind, details string, at time.Time) DomainEvent {
	return DomainEvent{
		Type:       EventTypeUpdated,
		MessageID:  uuid.NewString(),
		ScheduleID: scheduleID,
		Details:    details,
		Timestamp:  at,
		Updated:    &UpdatedPayload{Change: change},
	}
}

// NewOptimizedEvent builds an optimization lifecycle event.
func NewOptimizedEvent(scheduleID int64, payload OptimizedPayload, details string, at time.Time) DomainEvent {
	return DomainEvent{
		Type:       EventTypeOptimized,
		MessageID:  uuid.NewString(),
		ScheduleID: scheduleID,
		Details:    details,
		Timestamp:  at,
		Optimized:  &payload,
	}
}

// NewConflictEvent builds the event emitted when a mutation is rejected with
// conflicts. scheduleID is zero when the rejected schedule was never stored.
func NewConflictEvent(scheduleID int64, scope string, conflicts []string, at time.Time) DomainEvent {
	details := ""
	if len(conflicts) > 0 {
		details = conflicts[0]
	}
	return DomainEvent{
		Type:       EventTypeConflict,
		MessageID:  uuid.NewString(),
		ScheduleID: scheduleID,
		Details:    details,
		Timestamp:  at,
		Conflict:   &ConflictPayload{Scope: scope, Conflicts: append([]string(nil), conflicts...)},
	}
}

// Encode serializes the event for the wire.
func (e DomainEvent) Encode() ([]byte, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", e.Type, err)
	}
	return body, nil
}

// DecodeEvent parses a wire message back into a DomainEvent and verifies the
// tag selects a matching payload.
func DecodeEvent(body []byte) (DomainEvent, error) {
	var event DomainEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return DomainEvent{}, fmt.Errorf("failed to decode event: %w", err)
	}
	if err := event.validate(); err != nil {
		return DomainEvent{}, err
	}
	return event, nil
}

func (e DomainEvent) validate() error {
	switch e.Type {
	case EventTypeUpdated:
		if e.Updated == nil {
			return fmt.Errorf("updated event without updated payload")
		}
	case EventTypeOptimized:
		if e.Optimized == nil {
			return fmt.Errorf("optimized event without optimized payload")
		}
	case EventTypeConflict:
		if e.Conflict == nil {
			return fmt.Errorf("conflict event without conflict payload")
		}
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	return nil
}
