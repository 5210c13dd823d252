package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"gatherplan/internal/domain"
)

// Settings holds the timing knobs shared by the services.
type Settings struct {
	ContextTimeout        time.Duration
	PreferenceWindow      time.Duration
	RecommendationWindow  time.Duration
	RecommendationTimeout time.Duration
	VotingWindow          time.Duration
	DefaultDuration       time.Duration
	// Now is the clock; time.Now when nil.
	Now func() time.Time
}

func (s Settings) withDefaults() Settings {
	if s.ContextTimeout <= 0 {
		s.ContextTimeout = 10 * time.Second
	}
	if s.PreferenceWindow <= 0 {
		s.PreferenceWindow = 24 * time.Hour
	}
	if s.RecommendationTimeout <= 0 {
		s.RecommendationTimeout = 2 * time.Minute
	}
	if s.RecommendationWindow < s.RecommendationTimeout {
		s.RecommendationWindow = 5 * s.RecommendationTimeout
	}
	if s.VotingWindow <= 0 {
		s.VotingWindow = 48 * time.Hour
	}
	if s.DefaultDuration <= 0 {
		s.DefaultDuration = 3 * time.Hour
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	return s
}

func (s Settings) now() time.Time {
	return s.Now().UTC()
}

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return logger
}

func newID() string {
	return uuid.New().String()
}

// auditEvent builds a non-transition domain event; its key is its own id.
func auditEvent(eventID string, typ domain.DomainEventType, actorID string, payload any, at time.Time) (*domain.DomainEvent, error) {
	id := newID()
	return domain.NewDomainEvent(id, eventID, typ, id, actorID, payload, at)
}

// isSystem reports whether actorID denotes an automated caller.
func isSystem(actorID string) bool {
	return actorID == "" || actorID == domain.SystemActor
}

func requireOrganizer(ev *domain.Event, actorID string) error {
	if isSystem(actorID) || ev.OrganizerID == actorID {
		return nil
	}
	return domain.Forbiddenf("only the organizer may change event %s", ev.ID)
}

func loadEvent(ctx context.Context, repo domain.EventRepository, id string) (*domain.Event, error) {
	ev, err := repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NotFoundf("event %s not found", id)
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return ev, nil
}

// auditEvents wraps auditEvent for repository calls that store their events with the change.
func auditEvents(eventID string, typ domain.DomainEventType, actorID string, payload any, at time.Time) ([]*domain.DomainEvent, error) {
	de, err := auditEvent(eventID, typ, actorID, payload, at)
	if err != nil {
		return nil, err
	}
	return []*domain.DomainEvent{de}, nil
}
