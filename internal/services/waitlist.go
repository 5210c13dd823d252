package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gatherplan/internal/domain"
)

var waitlistOpen = []domain.EventStatus{
	domain.StatusPlanning,
	domain.StatusGatheringPreferences,
	domain.StatusVoting,
}

type waitlistService struct {
	eventRepo       domain.EventRepository
	participantRepo domain.ParticipantRepository
	waitlistRepo    domain.WaitlistRepository
	settings        Settings
	logger          *slog.Logger
}

// NewWaitlistService returns the waitlist manager.
func NewWaitlistService(
	eventRepo domain.EventRepository,
	participantRepo domain.ParticipantRepository,
	waitlistRepo domain.WaitlistRepository,
	settings Settings,
	logger *slog.Logger,
) domain.WaitlistService {
	return &waitlistService{
		eventRepo:       eventRepo,
		participantRepo: participantRepo,
		waitlistRepo:    waitlistRepo,
		settings:        settings.withDefaults(),
		logger:          orDiscard(logger),
	}
}

// Join queues the user for a full event. Joining twice returns the existing entry.
func (s *waitlistService) Join(ctx context.Context, eventID, userID string) (*domain.WaitlistEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.settings.ContextTimeout)
	defer cancel()

	ev, err := loadEvent(ctx, s.eventRepo, eventID)
	if err != nil {
		return nil, err
	}
	if !ev.Status.In(waitlistOpen...) {
		return nil, domain.InvalidStatef("waitlist of event %s is closed in status %s", eventID, ev.Status)
	}

	p, err := s.participantRepo.Get(ctx, eventID, userID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		if ev.Privacy == domain.PrivacyPrivate {
			return nil, domain.Forbiddenf("event %s is private and user %s is not invited", eventID, userID)
		}
	case err != nil:
		return nil, fmt.Errorf("get participant: %w", err)
	case p.Status == domain.InvitationAccepted:
		return nil, domain.InvalidStatef("user %s already attends event %s", userID, eventID)
	case p.Status == domain.InvitationDeclined:
		return nil, domain.InvalidStatef("user %s declined event %s", userID, eventID)
	}

	if p == nil || p.Status != domain.InvitationWaitlisted {
		counts, err := s.participantRepo.Counts(ctx, eventID)
		if err != nil {
			return nil, fmt.Errorf("count participants: %w", err)
		}
		if !counts.Full(ev.ExpectedAttendees) {
			return nil, domain.InvalidStatef("event %s still has free places", eventID)
		}
	}

	now := s.settings.now()
	joined, err := auditEvent(eventID, domain.WaitlistJoined, userID, domain.WaitlistPayload{EventID: eventID, UserID: userID}, now)
	if err != nil {
		return nil, err
	}
	entry, created, err := s.waitlistRepo.Join(ctx, eventID, userID, now, joined)
	if errors.Is(err, domain.ErrConflict) {
		return nil, domain.InvalidStatef("user %s cannot join the waitlist of event %s", userID, eventID)
	}
	if err != nil {
		return nil, fmt.Errorf("join waitlist: %w", err)
	}
	if created {
		s.logger.Info("waitlist joined", "event_id", eventID, "user_id", userID)
	}
	return entry, nil
}

// PromoteNext moves the oldest waitlisted user onto the roster if a place is free. It returns
// nil when the queue is empty, the event is full or the event is over.
func (s *waitlistService) PromoteNext(ctx context.Context, eventID string) (*domain.WaitlistEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.settings.ContextTimeout)
	defer cancel()

	ev, err := loadEvent(ctx, s.eventRepo, eventID)
	if err != nil {
		return nil, err
	}
	if ev.Status.IsTerminal() {
		return nil, nil
	}
	now := s.settings.now()
	entry, err := s.waitlistRepo.PromoteNext(ctx, eventID, ev.ExpectedAttendees, now, func(head *domain.WaitlistEntry) ([]*domain.DomainEvent, error) {
		return auditEvents(eventID, domain.WaitlistPromoted, domain.SystemActor,
			domain.WaitlistPayload{EventID: eventID, UserID: head.UserID}, now)
	})
	if err != nil {
		return nil, fmt.Errorf("promote from waitlist: %w", err)
	}
	if entry == nil {
		return nil, nil
	}
	s.logger.Info("waitlist promoted", "event_id", eventID, "user_id", entry.UserID)
	return entry, nil
}

func (s *waitlistService) List(ctx context.Context, eventID string) ([]*domain.WaitlistEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.settings.ContextTimeout)
	defer cancel()
	if _, err := loadEvent(ctx, s.eventRepo, eventID); err != nil {
		return nil, err
	}
	entries, err := s.waitlistRepo.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list waitlist: %w", err)
	}
	return entries, nil
}
