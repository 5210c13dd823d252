package domain

import (
	"context"
	"time"
)

// DefaultAcceptanceThreshold is used when an event is created without an explicit threshold.
const DefaultAcceptanceThreshold = 0.7

// MinCancellationReasonLength is the minimum trimmed length of an organizer's cancellation reason.
const MinCancellationReasonLength = 10

// Reasons recorded when the system, not the organizer, cancels an event.
const (
	CancelReasonInsufficientParticipants = "InsufficientParticipants"
	CancelReasonNoScoredOptions          = "NoScoredOptions"
	CancelReasonNoCandidates             = "NoCandidates"
)

// Privacy controls who may ask to join an event.
type Privacy string

const (
	PrivacyPublic  Privacy = "public"
	PrivacyPrivate Privacy = "private"
)

// Valid reports whether p is a known privacy setting.
func (p Privacy) Valid() bool {
	return p == PrivacyPublic || p == PrivacyPrivate
}

// Event is the aggregate root of a planned gathering.
// swagger:model Event
type Event struct {
	ID                     string      `json:"id"`
	OrganizerID            string      `json:"organizer_id"`
	Title                  string      `json:"title"`
	Description            string      `json:"description,omitempty"`
	ScheduledAt            time.Time   `json:"scheduled_at"`
	Timezone               string      `json:"timezone"`
	DurationMinutes        int         `json:"duration_minutes"`
	ExpectedAttendees      int         `json:"expected_attendees"`
	AcceptanceThreshold    float64     `json:"acceptance_threshold"`
	BudgetTotal            *float64    `json:"budget_total,omitempty"`
	BudgetPerPerson        *float64    `json:"budget_per_person,omitempty"`
	Status                 EventStatus `json:"status"`
	Privacy                Privacy     `json:"privacy"`
	RSVPDeadline           *time.Time  `json:"rsvp_deadline,omitempty"`
	PreferenceDeadline     *time.Time  `json:"preference_deadline,omitempty"`
	RecommendationDeadline *time.Time  `json:"recommendation_deadline,omitempty"`
	VotingDeadline         *time.Time  `json:"voting_deadline,omitempty"`
	FinalVenueOptionID     *string     `json:"final_venue_option_id,omitempty"`
	CancellationReason     string      `json:"cancellation_reason,omitempty"`
	RecurringSeriesID      *string     `json:"recurring_series_id,omitempty"`
	Version                int64       `json:"version"`
	CreatedAt              time.Time   `json:"created_at"`
	UpdatedAt              time.Time   `json:"updated_at"`
	ConfirmedAt            *time.Time  `json:"confirmed_at,omitempty"`
	CompletedAt            *time.Time  `json:"completed_at,omitempty"`
	CancelledAt            *time.Time  `json:"cancelled_at,omitempty"`
}

// ScheduledEnd is the moment after which a confirmed event is considered over.
func (e *Event) ScheduledEnd() time.Time {
	return e.ScheduledAt.Add(time.Duration(e.DurationMinutes) * time.Minute)
}

// RSVPClosed reports whether the RSVP deadline has passed at now.
func (e *Event) RSVPClosed(now time.Time) bool {
	return e.RSVPDeadline != nil && !now.Before(*e.RSVPDeadline)
}

// VotingClosed reports whether the voting deadline has passed at now.
func (e *Event) VotingClosed(now time.Time) bool {
	return e.VotingDeadline != nil && !now.Before(*e.VotingDeadline)
}

// CheckVenueInvariant verifies that a final venue is set if and only if the event is confirmed or completed.
func (e *Event) CheckVenueInvariant() error {
	if e.Status.HasVenue() != (e.FinalVenueOptionID != nil) {
		return InvalidStatef("event %s in status %s has inconsistent final venue", e.ID, e.Status)
	}
	return nil
}

// Clone returns a deep copy of the event.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	c := *e
	c.BudgetTotal = cloneFloat(e.BudgetTotal)
	c.BudgetPerPerson = cloneFloat(e.BudgetPerPerson)
	c.RSVPDeadline = cloneTime(e.RSVPDeadline)
	c.PreferenceDeadline = cloneTime(e.PreferenceDeadline)
	c.RecommendationDeadline = cloneTime(e.RecommendationDeadline)
	c.VotingDeadline = cloneTime(e.VotingDeadline)
	c.FinalVenueOptionID = cloneString(e.FinalVenueOptionID)
	c.RecurringSeriesID = cloneString(e.RecurringSeriesID)
	c.ConfirmedAt = cloneTime(e.ConfirmedAt)
	c.CompletedAt = cloneTime(e.CompletedAt)
	c.CancelledAt = cloneTime(e.CancelledAt)
	return &c
}

// StatusTransition is a compare-and-swap update of an event. Event holds the new state; the
// repository writes it only if the stored version still equals ExpectedVersion, and appends
// Events in the same atomic step.
type StatusTransition struct {
	ExpectedVersion int64
	Event           *Event
	Events          []*DomainEvent
}

// TransitionResult reports the outcome of a lifecycle command. Applied is false when the
// transition had already happened (or a concurrent caller won the race); that is not an error.
type TransitionResult struct {
	Event   *Event `json:"event"`
	Applied bool   `json:"applied"`
}

// Deadline names a time column the sweeper can query on.
type Deadline string

const (
	DeadlineRSVP           Deadline = "rsvp_deadline"
	DeadlinePreference     Deadline = "preference_deadline"
	DeadlineRecommendation Deadline = "recommendation_deadline"
	DeadlineVoting         Deadline = "voting_deadline"
	DeadlineScheduledEnd   Deadline = "scheduled_end"
)

// DueQuery selects events in Status whose Deadline is at or before Before.
type DueQuery struct {
	Status   EventStatus
	Deadline Deadline
	Before   time.Time
	Limit    int
}

// EventRepository defines the interface for event storage.
type EventRepository interface {
	Create(ctx context.Context, e *Event, events []*DomainEvent) error
	GetByID(ctx context.Context, id string) (*Event, error)
	ListByOrganizer(ctx context.Context, organizerID string, params PaginationParams) ([]*Event, int, error)
	// ApplyTransition returns ErrConflict when the stored version differs from t.ExpectedVersion.
	ApplyTransition(ctx context.Context, t *StatusTransition) error
	ListDue(ctx context.Context, q DueQuery) ([]*Event, error)
}

// NewEventInput carries the organizer-supplied fields of a new event.
type NewEventInput struct {
	Title               string
	Description         string
	ScheduledAt         time.Time
	Timezone            string
	DurationMinutes     int
	ExpectedAttendees   int
	AcceptanceThreshold *float64
	BudgetTotal         *float64
	BudgetPerPerson     *float64
	Privacy             Privacy
	RSVPDeadline        *time.Time
	PreferenceDeadline  *time.Time
	VotingDeadline      *time.Time
	RecurringSeriesID   *string
	// FinalVenue, when set, confirms the event immediately and skips recommendation and voting.
	FinalVenue *VenueOptionInput
}

// LifecycleService drives an event through its status machine.
type LifecycleService interface {
	// CreateEvent stores a Draft. With FinalVenue set the Draft is confirmed right away; if that
	// step fails the stored Draft is returned together with the error.
	CreateEvent(ctx context.Context, organizerID string, in NewEventInput) (*Event, error)
	GetEvent(ctx context.Context, eventID string) (*Event, error)
	ListEventsByOrganizer(ctx context.Context, organizerID string, params PaginationParams) ([]*Event, int, error)
	Publish(ctx context.Context, eventID, actorID string) (*TransitionResult, error)
	CheckAcceptance(ctx context.Context, eventID string) (*TransitionResult, error)
	StartRecommendation(ctx context.Context, eventID, actorID string) (*TransitionResult, error)
	MarkScoresReady(ctx context.Context, eventID string) (*TransitionResult, error)
	ResolveRecommendation(ctx context.Context, eventID string) (*TransitionResult, error)
	Finalize(ctx context.Context, eventID, actorID string) (*TransitionResult, error)
	ConfirmWithVenue(ctx context.Context, eventID, actorID string, venue VenueOptionInput) (*TransitionResult, error)
	CloseVoting(ctx context.Context, eventID string) (*TransitionResult, error)
	Complete(ctx context.Context, eventID string) (*TransitionResult, error)
	Cancel(ctx context.Context, eventID, actorID, reason string) (*TransitionResult, error)
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
