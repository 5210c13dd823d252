package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// DomainEventType names a fact emitted by the lifecycle.
type DomainEventType string

const (
	EventCreated          DomainEventType = "event.created"
	EventPublished        DomainEventType = "event.published"
	PreferencesOpened     DomainEventType = "event.preferences_opened"
	RecommendationStarted DomainEventType = "event.recommendation_started"
	VotingOpened          DomainEventType = "event.voting_opened"
	EventConfirmed        DomainEventType = "event.confirmed"
	EventCompleted        DomainEventType = "event.completed"
	EventCancelled        DomainEventType = "event.cancelled"
	ParticipantsInvited   DomainEventType = "participant.invited"
	ParticipantResponded  DomainEventType = "participant.responded"
	ParticipantRemoved    DomainEventType = "participant.removed"
	WaitlistJoined        DomainEventType = "waitlist.joined"
	WaitlistPromoted      DomainEventType = "waitlist.promoted"
)

// SystemActor is recorded as the actor of transitions driven by the sweeper or callbacks.
const SystemActor = "system"

// DomainEvent is an outbox row. Key is unique, so appending the same fact twice stores it once.
// swagger:model DomainEvent
type DomainEvent struct {
	ID          string          `json:"id"`
	EventID     string          `json:"event_id"`
	Type        DomainEventType `json:"type"`
	Key         string          `json:"key"`
	ActorID     string          `json:"actor_id"`
	Payload     json.RawMessage `json:"payload"`
	OccurredAt  time.Time       `json:"occurred_at"`
	DeliveredAt *time.Time      `json:"delivered_at,omitempty"`
	Attempts    int             `json:"attempts"`
	LastError   string          `json:"last_error,omitempty"`
}

// NewDomainEvent marshals payload into a new event. id is supplied by the caller.
func NewDomainEvent(id, eventID string, typ DomainEventType, key, actorID string, payload any, at time.Time) (*DomainEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return &DomainEvent{
		ID:         id,
		EventID:    eventID,
		Type:       typ,
		Key:        key,
		ActorID:    actorID,
		Payload:    raw,
		OccurredAt: at,
	}, nil
}

// TransitionKey is the dedupe key of a status transition: a version is committed at most once.
func TransitionKey(eventID string, typ DomainEventType, version int64) string {
	return fmt.Sprintf("%s:%s:v%d", eventID, typ, version)
}

// Payloads.

type StatusChangedPayload struct {
	EventID string      `json:"event_id"`
	From    EventStatus `json:"from"`
	To      EventStatus `json:"to"`
}

type VotingOpenedPayload struct {
	EventID        string     `json:"event_id"`
	VotingDeadline *time.Time `json:"voting_deadline,omitempty"`
	ScoredOptions  int        `json:"scored_options"`
}

type EventConfirmedPayload struct {
	EventID  string `json:"event_id"`
	OptionID string `json:"option_id"`
	Source   string `json:"source"`
}

type EventCancelledPayload struct {
	EventID        string      `json:"event_id"`
	PreviousStatus EventStatus `json:"previous_status"`
	Reason         string      `json:"reason"`
}

type ParticipantsInvitedPayload struct {
	EventID string   `json:"event_id"`
	UserIDs []string `json:"user_ids"`
}

type ParticipantRespondedPayload struct {
	EventID string           `json:"event_id"`
	UserID  string           `json:"user_id"`
	From    InvitationStatus `json:"from"`
	To      InvitationStatus `json:"to"`
}

type ParticipantRemovedPayload struct {
	EventID        string           `json:"event_id"`
	UserID         string           `json:"user_id"`
	PreviousStatus InvitationStatus `json:"previous_status"`
	RemovedBy      string           `json:"removed_by"`
}

type WaitlistPayload struct {
	EventID string `json:"event_id"`
	UserID  string `json:"user_id"`
}

// DomainEventRepository is the outbox.
type DomainEventRepository interface {
	// Append stores events, skipping any whose Key already exists.
	Append(ctx context.Context, events ...*DomainEvent) error
	// ListUndelivered returns undelivered events with fewer than maxAttempts attempts, oldest first.
	ListUndelivered(ctx context.Context, limit, maxAttempts int) ([]*DomainEvent, error)
	MarkDelivered(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id, lastError string) error
	ListByEvent(ctx context.Context, eventID string) ([]*DomainEvent, error)
}

// Announce builds the domain events stored in the same atomic step as a storage change, from the
// outcome of that change. A nil Announce stores nothing.
type Announce[T any] func(outcome T) ([]*DomainEvent, error)

// Build calls a; a nil a yields no events.
func (a Announce[T]) Build(outcome T) ([]*DomainEvent, error) {
	if a == nil {
		return nil, nil
	}
	return a(outcome)
}

// DomainEventPublisher delivers a domain event downstream. Consumers must tolerate redelivery.
type DomainEventPublisher interface {
	Publish(ctx context.Context, ev *DomainEvent) error
}
