package domain

import (
	"context"
	"time"
)

// Frequency is the cadence of a recurring series.
type Frequency string

const (
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// RecurringSeries is a template that produces Draft events ahead of each occurrence.
// swagger:model RecurringSeries
type RecurringSeries struct {
	ID                  string        `json:"id"`
	OrganizerID         string        `json:"organizer_id"`
	Title               string        `json:"title"`
	Description         string        `json:"description,omitempty"`
	Timezone            string        `json:"timezone"`
	Frequency           Frequency     `json:"frequency"`
	Interval            int           `json:"interval"`
	NextOccurrence      time.Time     `json:"next_occurrence"`
	Until               *time.Time    `json:"until,omitempty"`
	LeadTime            time.Duration `json:"lead_time"`
	RSVPOffset          time.Duration `json:"rsvp_offset"`
	DurationMinutes     int           `json:"duration_minutes"`
	ExpectedAttendees   int           `json:"expected_attendees"`
	AcceptanceThreshold float64       `json:"acceptance_threshold"`
	Privacy             Privacy       `json:"privacy"`
	Active              bool          `json:"active"`
	CreatedAt           time.Time     `json:"created_at"`
}

// Step returns the occurrence that follows t.
func (s *RecurringSeries) Step(t time.Time) time.Time {
	n := s.Interval
	if n < 1 {
		n = 1
	}
	if s.Frequency == FrequencyMonthly {
		return t.AddDate(0, n, 0)
	}
	return t.AddDate(0, 0, 7*n)
}

// Due reports whether the next occurrence is within the lead time at now.
func (s *RecurringSeries) Due(now time.Time) bool {
	if !s.Active || s.Ended(s.NextOccurrence) {
		return false
	}
	return !now.Before(s.NextOccurrence.Add(-s.LeadTime))
}

// Ended reports whether t lies after the series' last allowed occurrence.
func (s *RecurringSeries) Ended(t time.Time) bool {
	return s.Until != nil && t.After(*s.Until)
}

// NextAfter returns the first occurrence of the series strictly after now, starting from
// NextOccurrence.
func (s *RecurringSeries) NextAfter(now time.Time) time.Time {
	t := s.NextOccurrence
	for !t.After(now) {
		t = s.Step(t)
	}
	return t
}

// Validate checks the series definition.
func (s *RecurringSeries) Validate() error {
	if s.Frequency != FrequencyWeekly && s.Frequency != FrequencyMonthly {
		return InvalidInputf("unknown frequency %q", s.Frequency)
	}
	if s.Interval < 1 {
		return InvalidInputf("interval must be at least 1")
	}
	if s.NextOccurrence.IsZero() {
		return InvalidInputf("next_occurrence is required")
	}
	if s.LeadTime < 0 || s.RSVPOffset < 0 {
		return InvalidInputf("lead_time and rsvp_offset must not be negative")
	}
	return nil
}

// RecurringSeriesRepository defines the interface for recurring series storage.
type RecurringSeriesRepository interface {
	Create(ctx context.Context, s *RecurringSeries) error
	GetByID(ctx context.Context, id string) (*RecurringSeries, error)
	// ListDue returns active series whose next occurrence minus lead time is at or before now.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*RecurringSeries, error)
	// Advance moves the series from expectedNext to next; ErrConflict when another worker advanced it first.
	Advance(ctx context.Context, id string, expectedNext, next time.Time, active bool) error
}

// RecurringExpander turns due series into Draft events.
type RecurringExpander interface {
	CreateSeries(ctx context.Context, s *RecurringSeries) (*RecurringSeries, error)
	ExpandDue(ctx context.Context, now time.Time, limit int) ([]*Event, error)
}
