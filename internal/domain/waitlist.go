package domain

import (
	"context"
	"time"
)

// WaitlistEntry is a user's place in the FIFO queue of a full event.
// swagger:model WaitlistEntry
type WaitlistEntry struct {
	EventID  string    `json:"event_id"`
	UserID   string    `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
	Seq      int64     `json:"seq"`
}

// WaitlistRepository defines the interface for waitlist storage.
type WaitlistRepository interface {
	// Join records the user as Waitlisted and enqueues them. created is false when the user was
	// already queued; events are stored only when created.
	Join(ctx context.Context, eventID, userID string, at time.Time, events ...*DomainEvent) (entry *WaitlistEntry, created bool, err error)
	// PromoteNext dequeues the oldest entry and marks the user Accepted, provided accepted
	// participants are below capacity. It returns nil when the queue is empty or the event is full.
	// announce runs only for a promotion, in the same atomic step.
	PromoteNext(ctx context.Context, eventID string, capacity int, at time.Time, announce Announce[*WaitlistEntry]) (*WaitlistEntry, error)
	ListByEvent(ctx context.Context, eventID string) ([]*WaitlistEntry, error)
}

// WaitlistService manages the waitlist of full events.
type WaitlistService interface {
	Join(ctx context.Context, eventID, userID string) (*WaitlistEntry, error)
	PromoteNext(ctx context.Context, eventID string) (*WaitlistEntry, error)
	List(ctx context.Context, eventID string) ([]*WaitlistEntry, error)
}
