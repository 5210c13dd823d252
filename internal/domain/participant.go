package domain

import (
	"context"
	"time"
)

// InvitationStatus is a participant's response state for one event.
type InvitationStatus string

const (
	InvitationInvited    InvitationStatus = "invited"
	InvitationAccepted   InvitationStatus = "accepted"
	InvitationDeclined   InvitationStatus = "declined"
	InvitationWaitlisted InvitationStatus = "waitlisted"
)

// Participant links a user to an event they were invited to or asked to join.
// swagger:model Participant
type Participant struct {
	EventID   string           `json:"event_id"`
	UserID    string           `json:"user_id"`
	Status    InvitationStatus `json:"status"`
	InvitedAt time.Time        `json:"invited_at"`
	RSVPAt    *time.Time       `json:"rsvp_at,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// RosterCounts aggregates participants by status.
type RosterCounts struct {
	Invited    int `json:"invited"`
	Accepted   int `json:"accepted"`
	Declined   int `json:"declined"`
	Waitlisted int `json:"waitlisted"`
}

// Responded is the number of participants that are part of the invitation pool
// (invited, accepted or declined). Waitlisted participants are excluded.
func (c RosterCounts) Responded() int {
	return c.Invited + c.Accepted + c.Declined
}

// AcceptanceRatio is accepted / (invited + accepted + declined), or 0 with no participants.
func (c RosterCounts) AcceptanceRatio() float64 {
	total := c.Responded()
	if total == 0 {
		return 0
	}
	return float64(c.Accepted) / float64(total)
}

// Full reports whether accepted participants already fill capacity. A capacity of zero or
// less means unlimited.
func (c RosterCounts) Full(capacity int) bool {
	return capacity > 0 && c.Accepted >= capacity
}

// ParticipantRepository defines the interface for participant storage.
type ParticipantRepository interface {
	// InviteMany inserts Invited rows for users not yet on the roster and returns only the new rows.
	// announce runs only when at least one row was created.
	InviteMany(ctx context.Context, eventID string, userIDs []string, at time.Time, announce Announce[[]*Participant]) ([]*Participant, error)
	Get(ctx context.Context, eventID, userID string) (*Participant, error)
	ListByEvent(ctx context.Context, eventID string) ([]*Participant, error)
	Counts(ctx context.Context, eventID string) (RosterCounts, error)
	// UpdateStatus moves a participant from one status to another and stores events with the change;
	// ErrConflict when the stored status is not from. Leaving Waitlisted also drops the queue entry.
	UpdateStatus(ctx context.Context, eventID, userID string, from, to InvitationStatus, at time.Time, events ...*DomainEvent) error
	// Accept moves an invited participant to Accepted while capacity allows it, otherwise to
	// Waitlisted with a waitlist entry. The capacity check, the write and the announced events are atomic.
	Accept(ctx context.Context, eventID, userID string, capacity int, at time.Time, announce Announce[InvitationStatus]) (InvitationStatus, error)
}

// RespondResult is the outcome of a participant response.
type RespondResult struct {
	Participant *Participant   `json:"participant"`
	Applied     bool           `json:"applied"`
	Promoted    *WaitlistEntry `json:"promoted,omitempty"`
}

// RosterService manages invitations and RSVP responses.
type RosterService interface {
	Invite(ctx context.Context, eventID, actorID string, userIDs []string) ([]*Participant, error)
	Respond(ctx context.Context, eventID, userID string, accept bool) (*RespondResult, error)
	Remove(ctx context.Context, eventID, actorID, userID string) error
	ListParticipants(ctx context.Context, eventID string) ([]*Participant, error)
	Counts(ctx context.Context, eventID string) (RosterCounts, error)
	AcceptanceRatio(ctx context.Context, eventID string) (float64, error)
}
