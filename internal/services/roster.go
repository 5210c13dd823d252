package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gatherplan/internal/domain"
)

// respondable lists the event statuses in which participants may RSVP. Unlike waitlistOpen it
// includes AIRecommending, so an accept on a full event then still queues the invitee.
var respondable = []domain.EventStatus{
	domain.StatusPlanning,
	domain.StatusGatheringPreferences,
	domain.StatusAIRecommending,
	domain.StatusVoting,
	domain.StatusConfirmed,
}

type rosterService struct {
	eventRepo       domain.EventRepository
	participantRepo domain.ParticipantRepository
	waitlist        domain.WaitlistService
	settings        Settings
	logger          *slog.Logger
}

// NewRosterService returns the participant roster.
func NewRosterService(
	eventRepo domain.EventRepository,
	participantRepo domain.ParticipantRepository,
	waitlist domain.WaitlistService,
	settings Settings,
	logger *slog.Logger,
) domain.RosterService {
	return &rosterService{
		eventRepo:       eventRepo,
		participantRepo: participantRepo,
		waitlist:        waitlist,
		settings:        settings.withDefaults(),
		logger:          orDiscard(logger),
	}
}

// Invite adds users as Invited. Users already on the roster are skipped; only new rows are returned.
func (s *rosterService) Invite(ctx context.Context, eventID, actorID string, userIDs []string) ([]*domain.Participant, error) {
	ctx, cancel := context.WithTimeout(ctx, s.settings.ContextTimeout)
	defer cancel()

	ids := dedupeIDs(userIDs)
	if len(ids) == 0 {
		return nil, domain.InvalidInputf("at least one user id is required")
	}
	ev, err := loadEvent(ctx, s.eventRepo, eventID)
	if err != nil {
		return nil, err
	}
	if err := requireOrganizer(ev, actorID); err != nil {
		return nil, err
	}
	if ev.Status.IsTerminal() {
		return nil, domain.InvalidStatef("cannot invite to event %s in status %s", eventID, ev.Status)
	}

	now := s.settings.now()
	created, err := s.participantRepo.InviteMany(ctx, eventID, ids, now, func(created []*domain.Participant) ([]*domain.DomainEvent, error) {
		invited := make([]string, 0, len(created))
		for _, p := range created {
			invited = append(invited, p.UserID)
		}
		return auditEvents(eventID, domain.ParticipantsInvited, actorID,
			domain.ParticipantsInvitedPayload{EventID: eventID, UserIDs: invited}, now)
	})
	if err != nil {
		return nil, fmt.Errorf("invite participants: %w", err)
	}
	if len(created) > 0 {
		s.logger.Info("participants invited", "event_id", eventID, "count", len(created))
	}
	return created, nil
}

// Respond records an RSVP. Invited users may accept or decline before the RSVP deadline; an
// accept on a full event lands on the waitlist. Accepted users may later decline, which frees a
// seat for the waitlist. Declined users cannot answer again.
func (s *rosterService) Respond(ctx context.Context, eventID, userID string, accept bool) (*domain.RespondResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.settings.ContextTimeout)
	defer cancel()

	ev, err := loadEvent(ctx, s.eventRepo, eventID)
	if err != nil {
		return nil, err
	}
	if !ev.Status.In(respondable...) {
		return nil, domain.InvalidStatef("event %s does not accept responses in status %s", eventID, ev.Status)
	}
	p, err := s.getParticipant(ctx, eventID, userID)
	if err != nil {
		return nil, err
	}
	now := s.settings.now()
	from := p.Status
	responded := func(to domain.InvitationStatus) ([]*domain.DomainEvent, error) {
		return auditEvents(eventID, domain.ParticipantResponded, userID, domain.ParticipantRespondedPayload{
			EventID: eventID, UserID: userID, From: from, To: to,
		}, now)
	}

	to := domain.InvitationDeclined
	switch {
	case from == domain.InvitationDeclined:
		return nil, domain.InvalidStatef("user %s already declined event %s", userID, eventID)
	case from == domain.InvitationInvited && ev.RSVPClosed(now):
		return nil, domain.InvalidStatef("rsvp deadline for event %s has passed", eventID)
	case from == domain.InvitationInvited && accept:
		to, err = s.participantRepo.Accept(ctx, eventID, userID, ev.ExpectedAttendees, now, responded)
	case from != domain.InvitationInvited && accept:
		// Accepted or Waitlisted users re-accepting: nothing to do.
		return &domain.RespondResult{Participant: p, Applied: false}, nil
	default:
		var events []*domain.DomainEvent
		if events, err = responded(to); err == nil {
			err = s.participantRepo.UpdateStatus(ctx, eventID, userID, from, to, now, events...)
		}
	}
	if errors.Is(err, domain.ErrConflict) {
		// A concurrent response won; report the stored state.
		latest, gerr := s.getParticipant(ctx, eventID, userID)
		if gerr != nil {
			return nil, gerr
		}
		return &domain.RespondResult{Participant: latest, Applied: false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("record response: %w", err)
	}
	s.logger.Info("participant responded", "event_id", eventID, "user_id", userID, "from", from, "to", to)

	res := &domain.RespondResult{Applied: true}
	if from == domain.InvitationAccepted {
		promoted, err := s.waitlist.PromoteNext(ctx, eventID)
		if err != nil {
			// The decline itself is committed; the next departure or a manual promote retries.
			s.logger.Error("promote after decline failed", "event_id", eventID, "err", err)
		}
		res.Promoted = promoted
	}
	res.Participant, err = s.getParticipant(ctx, eventID, userID)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Remove takes a participant off the roster. Rows are never deleted: the participant becomes
// Declined and an audit event records who removed them. Losing a race to a concurrent change is
// retried once against the re-read status; a participant already Declined is a no-op.
func (s *rosterService) Remove(ctx context.Context, eventID, actorID, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.settings.ContextTimeout)
	defer cancel()

	ev, err := loadEvent(ctx, s.eventRepo, eventID)
	if err != nil {
		return err
	}
	if err := requireOrganizer(ev, actorID); err != nil {
		return err
	}
	if ev.Status.IsTerminal() {
		return domain.InvalidStatef("cannot change roster of event %s in status %s", eventID, ev.Status)
	}

	for attempt := 0; attempt < 2; attempt++ {
		p, err := s.getParticipant(ctx, eventID, userID)
		if err != nil {
			return err
		}
		if p.Status == domain.InvitationDeclined {
			return nil
		}
		now := s.settings.now()
		de, err := auditEvent(eventID, domain.ParticipantRemoved, actorID, domain.ParticipantRemovedPayload{
			EventID: eventID, UserID: userID, PreviousStatus: p.Status, RemovedBy: actorID,
		}, now)
		if err != nil {
			return err
		}
		err = s.participantRepo.UpdateStatus(ctx, eventID, userID, p.Status, domain.InvitationDeclined, now, de)
		if errors.Is(err, domain.ErrConflict) {
			continue
		}
		if err != nil {
			return fmt.Errorf("remove participant: %w", err)
		}
		s.logger.Info("participant removed", "event_id", eventID, "user_id", userID, "previous", p.Status)
		if p.Status == domain.InvitationAccepted {
			if _, err := s.waitlist.PromoteNext(ctx, eventID); err != nil {
				s.logger.Error("promote after removal failed", "event_id", eventID, "err", err)
			}
		}
		return nil
	}
	s.logger.Warn("participant removal lost repeated races", "event_id", eventID, "user_id", userID)
	return nil
}

func (s *rosterService) ListParticipants(ctx context.Context, eventID string) ([]*domain.Participant, error) {
	ctx, cancel := context.WithTimeout(ctx, s.settings.ContextTimeout)
	defer cancel()
	if _, err := loadEvent(ctx, s.eventRepo, eventID); err != nil {
		return nil, err
	}
	ps, err := s.participantRepo.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return ps, nil
}

func (s *rosterService) Counts(ctx context.Context, eventID string) (domain.RosterCounts, error) {
	ctx, cancel := context.WithTimeout(ctx, s.settings.ContextTimeout)
	defer cancel()
	if _, err := loadEvent(ctx, s.eventRepo, eventID); err != nil {
		return domain.RosterCounts{}, err
	}
	c, err := s.participantRepo.Counts(ctx, eventID)
	if err != nil {
		return domain.RosterCounts{}, fmt.Errorf("count participants: %w", err)
	}
	return c, nil
}

func (s *rosterService) AcceptanceRatio(ctx context.Context, eventID string) (float64, error) {
	c, err := s.Counts(ctx, eventID)
	if err != nil {
		return 0, err
	}
	return c.AcceptanceRatio(), nil
}

func (s *rosterService) getParticipant(ctx context.Context, eventID, userID string) (*domain.Participant, error) {
	p, err := s.participantRepo.Get(ctx, eventID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NotFoundf("user %s is not a participant of event %s", userID, eventID)
		}
		return nil, fmt.Errorf("get participant: %w", err)
	}
	return p, nil
}

func dedupeIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
