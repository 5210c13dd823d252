package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"gatherplan/internal/domain"
)

const maxTitleLength = 200

// errSkip tells transition that the guard no longer holds and the call is a no-op.
var errSkip = errors.New("transition skipped")

var nonTerminal = []domain.EventStatus{
	domain.StatusDraft,
	domain.StatusPlanning,
	domain.StatusGatheringPreferences,
	domain.StatusAIRecommending,
	domain.StatusVoting,
	domain.StatusConfirmed,
}

type lifecycleService struct {
	eventRepo       domain.EventRepository
	participantRepo domain.ParticipantRepository
	optionRepo      domain.VenueOptionRepository
	voteRepo        domain.VoteRepository
	settings        Settings
	logger          *slog.Logger
}

// NewLifecycleService returns the event state machine.
func NewLifecycleService(
	eventRepo domain.EventRepository,
	participantRepo domain.ParticipantRepository,
	optionRepo domain.VenueOptionRepository,
	voteRepo domain.VoteRepository,
	settings Settings,
	logger *slog.Logger,
) domain.LifecycleService {
	return &lifecycleService{
		eventRepo:       eventRepo,
		participantRepo: participantRepo,
		optionRepo:      optionRepo,
		voteRepo:        voteRepo,
		settings:        settings.withDefaults(),
		logger:          orDiscard(logger),
	}
}

// step describes one guarded transition. apply mutates next and returns the domain event to emit.
type step struct {
	name    string
	target  domain.EventStatus
	from    []domain.EventStatus
	actorID string
	apply   func(ctx context.Context, cur, next *domain.Event, now time.Time) (domain.DomainEventType, any, error)
}

func alreadyAt(status, target domain.EventStatus) bool {
	if target == domain.StatusCancelled {
		return status.IsTerminal()
	}
	return status.Reached(target)
}

func noop(ev *domain.Event) *domain.TransitionResult {
	return &domain.TransitionResult{Event: ev, Applied: false}
}

// transition reads the event, checks the guard and commits with compare-and-swap on version.
// A lost race is retried once; losing again reports the winner's state as a no-op.
func (s *lifecycleService) transition(ctx context.Context, eventID string, st step) (*domain.TransitionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.settings.ContextTimeout)
	defer cancel()

	actor := st.actorID
	if isSystem(actor) {
		actor = domain.SystemActor
	}
	for attempt := 0; attempt < 2; attempt++ {
		cur, err := loadEvent(ctx, s.eventRepo, eventID)
		if err != nil {
			return nil, err
		}
		if err := requireOrganizer(cur, st.actorID); err != nil {
			return nil, err
		}
		if alreadyAt(cur.Status, st.target) {
			return noop(cur), nil
		}
		if !cur.Status.In(st.from...) {
			return nil, domain.InvalidStatef("cannot %s event %s in status %s", st.name, eventID, cur.Status)
		}

		now := s.settings.now()
		next := cur.Clone()
		typ, payload, err := st.apply(ctx, cur, next, now)
		if errors.Is(err, errSkip) {
			return noop(cur), nil
		}
		if err != nil {
			return nil, err
		}
		if !domain.CanTransition(cur.Status, next.Status) {
			return nil, fmt.Errorf("%s: illegal transition %s -> %s", st.name, cur.Status, next.Status)
		}
		if err := next.CheckVenueInvariant(); err != nil {
			return nil, err
		}
		next.UpdatedAt = now

		key := domain.TransitionKey(eventID, typ, cur.Version+1)
		de, err := domain.NewDomainEvent(newID(), eventID, typ, key, actor, payload, now)
		if err != nil {
			return nil, err
		}
		err = s.eventRepo.ApplyTransition(ctx, &domain.StatusTransition{
			ExpectedVersion: cur.Version,
			Event:           next,
			Events:          []*domain.DomainEvent{de},
		})
		if errors.Is(err, domain.ErrConflict) {
			s.logger.Debug("transition lost compare-and-swap", "event_id", eventID, "step", st.name, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s: apply transition: %w", st.name, err)
		}
		s.logger.Info("event transitioned",
			"event_id", eventID,
			"from", cur.Status,
			"to", next.Status,
			"actor", actor,
		)
		return &domain.TransitionResult{Event: next, Applied: true}, nil
	}

	latest, err := loadEvent(ctx, s.eventRepo, eventID)
	if err != nil {
		return nil, err
	}
	return noop(latest), nil
}

func (s *lifecycleService) CreateEvent(ctx context.Context, organizerID string, in domain.NewEventInput) (*domain.Event, error) {
	if strings.TrimSpace(organizerID) == "" {
		return nil, domain.InvalidInputf("organizer is required")
	}
	now := s.settings.now()
	ev, err := s.newEvent(organizerID, in, now)
	if err != nil {
		return nil, err
	}

	created, err := domain.NewDomainEvent(newID(), ev.ID, domain.EventCreated,
		domain.TransitionKey(ev.ID, domain.EventCreated, 0), organizerID,
		domain.StatusChangedPayload{EventID: ev.ID, To: domain.StatusDraft}, now)
	if err != nil {
		return nil, err
	}

	createCtx, cancel := context.WithTimeout(ctx, s.settings.ContextTimeout)
	err = s.eventRepo.Create(createCtx, ev, []*domain.DomainEvent{created})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	s.logger.Info("event created", "event_id", ev.ID, "organizer_id", organizerID)

	if in.FinalVenue == nil {
		return ev, nil
	}
	res, err := s.ConfirmWithVenue(ctx, ev.ID, organizerID, *in.FinalVenue)
	if err != nil {
		s.logger.Error("confirm with organizer venue failed; event left in draft", "event_id", ev.ID, "err", err)
		return ev, fmt.Errorf("confirm with organizer venue: %w", err)
	}
	return res.Event, nil
}

func (s *lifecycleService) newEvent(organizerID string, in domain.NewEventInput, now time.Time) (*domain.Event, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, domain.InvalidInputf("title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return nil, domain.InvalidInputf("title must be at most %d characters", maxTitleLength)
	}
	if in.ScheduledAt.IsZero() {
		return nil, domain.InvalidInputf("scheduled_at is required")
	}
	tz := in.Timezone
	if tz == "" {
		tz = "UTC"
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return nil, domain.InvalidInputf("unknown timezone %q", tz)
	}
	duration := in.DurationMinutes
	if duration == 0 {
		duration = int(s.settings.DefaultDuration / time.Minute)
	}
	if duration < 0 {
		return nil, domain.InvalidInputf("duration_minutes must be positive")
	}
	if in.ExpectedAttendees < 0 {
		return nil, domain.InvalidInputf("expected_attendees must not be negative")
	}
	threshold := domain.DefaultAcceptanceThreshold
	if in.AcceptanceThreshold != nil {
		threshold = *in.AcceptanceThreshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, domain.InvalidInputf("acceptance_threshold must be within [0, 1]")
	}
	if (in.BudgetTotal != nil && *in.BudgetTotal < 0) || (in.BudgetPerPerson != nil && *in.BudgetPerPerson < 0) {
		return nil, domain.InvalidInputf("budget must not be negative")
	}
	privacy := in.Privacy
	if privacy == "" {
		privacy = domain.PrivacyPublic
	}
	if !privacy.Valid() {
		return nil, domain.InvalidInputf("unknown privacy %q", privacy)
	}
	for name, d := range map[string]*time.Time{"rsvp_deadline": in.RSVPDeadline, "voting_deadline": in.VotingDeadline} {
		if d != nil && d.After(in.ScheduledAt) {
			return nil, domain.InvalidInputf("%s must not be after scheduled_at", name)
		}
	}
	if in.FinalVenue != nil {
		if err := in.FinalVenue.Source.Validate(); err != nil {
			return nil, err
		}
	}

	return &domain.Event{
		ID:                  newID(),
		OrganizerID:         organizerID,
		Title:               title,
		Description:         strings.TrimSpace(in.Description),
		ScheduledAt:         in.ScheduledAt.UTC(),
		Timezone:            tz,
		DurationMinutes:     duration,
		ExpectedAttendees:   in.ExpectedAttendees,
		AcceptanceThreshold: threshold,
		BudgetTotal:         in.BudgetTotal,
		BudgetPerPerson:     in.BudgetPerPerson,
		Status:              domain.StatusDraft,
		Privacy:             privacy,
		RSVPDeadline:        in.RSVPDeadline,
		PreferenceDeadline:  in.PreferenceDeadline,
		VotingDeadline:      in.VotingDeadline,
		RecurringSeriesID:   in.RecurringSeriesID,
		CreatedAt:           now,
		UpdatedAt:           now,
	}, nil
}

func (s *lifecycleService) GetEvent(ctx context.Context, eventID string) (*domain.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.settings.ContextTimeout)
	defer cancel()
	return loadEvent(ctx, s.eventRepo, eventID)
}

func (s *lifecycleService) ListEventsByOrganizer(ctx context.Context, organizerID string, params domain.PaginationParams) ([]*domain.Event, int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.settings.ContextTimeout)
	defer cancel()
	events, total, err := s.eventRepo.ListByOrganizer(ctx, organizerID, params.Normalize())
	if err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}
	return events, total, nil
}

func (s *lifecycleService) Publish(ctx context.Context, eventID, actorID string) (*domain.TransitionResult, error) {
	return s.transition(ctx, eventID, step{
		name:    "publish",
		target:  domain.StatusPlanning,
		from:    []domain.EventStatus{domain.StatusDraft},
		actorID: actorID,
		apply: func(_ context.Context, cur, next *domain.Event, _ time.Time) (domain.DomainEventType, any, error) {
			next.Status = domain.StatusPlanning
			return domain.EventPublished, statusChanged(cur, next), nil
		},
	})
}

// CheckAcceptance opens preference gathering once enough invitees accepted, and cancels the
// event when the RSVP deadline passed without reaching the threshold.
func (s *lifecycleService) CheckAcceptance(ctx context.Context, eventID string) (*domain.TransitionResult, error) {
	return s.transition(ctx, eventID, step{
		name:   "check acceptance",
		target: domain.StatusGatheringPreferences,
		from:   []domain.EventStatus{domain.StatusPlanning},
		apply: func(ctx context.Context, cur, next *domain.Event, now time.Time) (domain.DomainEventType, any, error) {
			counts, err := s.participantRepo.Counts(ctx, cur.ID)
			if err != nil {
				return "", nil, fmt.Errorf("count participants: %w", err)
			}
			ratio := counts.AcceptanceRatio()
			if ratio >= cur.AcceptanceThreshold {
				next.Status = domain.StatusGatheringPreferences
				if next.PreferenceDeadline == nil || !next.PreferenceDeadline.After(now) {
					d := now.Add(s.settings.PreferenceWindow)
					next.PreferenceDeadline = &d
				}
				return domain.PreferencesOpened, statusChanged(cur, next), nil
			}
			if !cur.RSVPClosed(now) {
				return "", nil, errSkip
			}
			s.logger.Info("acceptance threshold missed",
				"event_id", cur.ID,
				"ratio", ratio,
				"threshold", cur.AcceptanceThreshold,
			)
			typ, payload := cancelInto(next, domain.CancelReasonInsufficientParticipants, now)
			return typ, payload, nil
		},
	})
}

func (s *lifecycleService) StartRecommendation(ctx context.Context, eventID, actorID string) (*domain.TransitionResult, error) {
	return s.transition(ctx, eventID, step{
		name:    "start recommendation",
		target:  domain.StatusAIRecommending,
		from:    []domain.EventStatus{domain.StatusGatheringPreferences},
		actorID: actorID,
		apply: func(_ context.Context, cur, next *domain.Event, now time.Time) (domain.DomainEventType, any, error) {
			next.Status = domain.StatusAIRecommending
			d := now.Add(s.settings.RecommendationWindow)
			next.RecommendationDeadline = &d
			return domain.RecommendationStarted, statusChanged(cur, next), nil
		},
	})
}

// MarkScoresReady is the explicit signal that scoring finished. It requires at least one scored option.
func (s *lifecycleService) MarkScoresReady(ctx context.Context, eventID string) (*domain.TransitionResult, error) {
	return s.transition(ctx, eventID, step{
		name:   "open voting",
		target: domain.StatusVoting,
		from:   []domain.EventStatus{domain.StatusAIRecommending},
		apply: func(ctx context.Context, cur, next *domain.Event, now time.Time) (domain.DomainEventType, any, error) {
			scored, err := s.countScored(ctx, cur.ID)
			if err != nil {
				return "", nil, err
			}
			if scored == 0 {
				return "", nil, domain.InvalidStatef("event %s has no scored venue option", cur.ID)
			}
			typ, payload := s.openVotingInto(next, scored, now)
			return typ, payload, nil
		},
	})
}

// ResolveRecommendation ends the recommendation phase after the engine returned or timed out:
// voting opens over whatever options got scored, or the event is cancelled when none did.
func (s *lifecycleService) ResolveRecommendation(ctx context.Context, eventID string) (*domain.TransitionResult, error) {
	return s.transition(ctx, eventID, step{
		name:   "resolve recommendation",
		target: domain.StatusVoting,
		from:   []domain.EventStatus{domain.StatusAIRecommending},
		apply: func(ctx context.Context, cur, next *domain.Event, now time.Time) (domain.DomainEventType, any, error) {
			scored, err := s.countScored(ctx, cur.ID)
			if err != nil {
				return "", nil, err
			}
			if scored == 0 {
				typ, payload := cancelInto(next, domain.CancelReasonNoScoredOptions, now)
				return typ, payload, nil
			}
			typ, payload := s.openVotingInto(next, scored, now)
			return typ, payload, nil
		},
	})
}

// Finalize lets the organizer close voting early. It fails with NoCandidates when nobody voted.
func (s *lifecycleService) Finalize(ctx context.Context, eventID, actorID string) (*domain.TransitionResult, error) {
	return s.transition(ctx, eventID, step{
		name:    "finalize",
		target:  domain.StatusConfirmed,
		from:    []domain.EventStatus{domain.StatusVoting},
		actorID: actorID,
		apply: func(ctx context.Context, cur, next *domain.Event, now time.Time) (domain.DomainEventType, any, error) {
			winner, err := s.winner(ctx, cur.ID)
			if err != nil {
				return "", nil, err
			}
			typ, payload := confirmInto(next, winner.ID, "vote", now)
			return typ, payload, nil
		},
	})
}

// CloseVoting is the deadline-driven counterpart of Finalize; with no votes at all the event is cancelled.
func (s *lifecycleService) CloseVoting(ctx context.Context, eventID string) (*domain.TransitionResult, error) {
	return s.transition(ctx, eventID, step{
		name:   "close voting",
		target: domain.StatusConfirmed,
		from:   []domain.EventStatus{domain.StatusVoting},
		apply: func(ctx context.Context, cur, next *domain.Event, now time.Time) (domain.DomainEventType, any, error) {
			if !cur.VotingClosed(now) {
				return "", nil, errSkip
			}
			winner, err := s.winner(ctx, cur.ID)
			if errors.Is(err, domain.ErrNoCandidates) {
				typ, payload := cancelInto(next, domain.CancelReasonNoCandidates, now)
				return typ, payload, nil
			}
			if err != nil {
				return "", nil, err
			}
			typ, payload := confirmInto(next, winner.ID, "vote", now)
			return typ, payload, nil
		},
	})
}

// ConfirmWithVenue is the fast path: the organizer names the venue and recommendation and voting are skipped.
func (s *lifecycleService) ConfirmWithVenue(ctx context.Context, eventID, actorID string, venue domain.VenueOptionInput) (*domain.TransitionResult, error) {
	if err := venue.Source.Validate(); err != nil {
		return nil, err
	}
	return s.transition(ctx, eventID, step{
		name:    "confirm",
		target:  domain.StatusConfirmed,
		from:    []domain.EventStatus{domain.StatusDraft, domain.StatusPlanning},
		actorID: actorID,
		apply: func(ctx context.Context, cur, next *domain.Event, now time.Time) (domain.DomainEventType, any, error) {
			opt, _, err := s.optionRepo.Add(ctx, &domain.VenueOption{
				ID:              newID(),
				EventID:         cur.ID,
				Source:          venue.Source,
				Snapshot:        venue.Snapshot,
				DistanceMeters:  venue.DistanceMeters,
				DurationSeconds: venue.DurationSeconds,
				CreatedAt:       now,
			})
			if err != nil {
				return "", nil, fmt.Errorf("add final venue: %w", err)
			}
			typ, payload := confirmInto(next, opt.ID, "organizer", now)
			return typ, payload, nil
		},
	})
}

func (s *lifecycleService) Complete(ctx context.Context, eventID string) (*domain.TransitionResult, error) {
	return s.transition(ctx, eventID, step{
		name:   "complete",
		target: domain.StatusCompleted,
		from:   []domain.EventStatus{domain.StatusConfirmed},
		apply: func(_ context.Context, cur, next *domain.Event, now time.Time) (domain.DomainEventType, any, error) {
			if now.Before(cur.ScheduledEnd()) {
				return "", nil, domain.InvalidStatef("event %s has not ended yet", cur.ID)
			}
			next.Status = domain.StatusCompleted
			next.CompletedAt = &now
			return domain.EventCompleted, statusChanged(cur, next), nil
		},
	})
}

// Cancel is accepted from every non-terminal status; on a terminal event it is a no-op.
func (s *lifecycleService) Cancel(ctx context.Context, eventID, actorID, reason string) (*domain.TransitionResult, error) {
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) < domain.MinCancellationReasonLength {
		return nil, domain.InvalidInputf("cancellation reason must be at least %d characters", domain.MinCancellationReasonLength)
	}
	return s.transition(ctx, eventID, step{
		name:    "cancel",
		target:  domain.StatusCancelled,
		from:    nonTerminal,
		actorID: actorID,
		apply: func(_ context.Context, _, next *domain.Event, now time.Time) (domain.DomainEventType, any, error) {
			typ, payload := cancelInto(next, reason, now)
			return typ, payload, nil
		},
	})
}

func (s *lifecycleService) countScored(ctx context.Context, eventID string) (int, error) {
	opts, err := s.optionRepo.ListByEvent(ctx, eventID)
	if err != nil {
		return 0, fmt.Errorf("list venue options: %w", err)
	}
	n := 0
	for _, o := range opts {
		if o.Scored() {
			n++
		}
	}
	return n, nil
}

func (s *lifecycleService) winner(ctx context.Context, eventID string) (*domain.VenueOption, error) {
	opts, err := s.optionRepo.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list venue options: %w", err)
	}
	votes, err := s.voteRepo.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	return domain.DetermineWinner(opts, votes)
}

func (s *lifecycleService) openVotingInto(next *domain.Event, scored int, now time.Time) (domain.DomainEventType, any) {
	next.Status = domain.StatusVoting
	if next.VotingDeadline == nil || !next.VotingDeadline.After(now) {
		d := now.Add(s.settings.VotingWindow)
		next.VotingDeadline = &d
	}
	return domain.VotingOpened, domain.VotingOpenedPayload{
		EventID:        next.ID,
		VotingDeadline: next.VotingDeadline,
		ScoredOptions:  scored,
	}
}

func confirmInto(next *domain.Event, optionID, source string, now time.Time) (domain.DomainEventType, any) {
	next.Status = domain.StatusConfirmed
	next.FinalVenueOptionID = &optionID
	next.ConfirmedAt = &now
	return domain.EventConfirmed, domain.EventConfirmedPayload{EventID: next.ID, OptionID: optionID, Source: source}
}

func cancelInto(next *domain.Event, reason string, now time.Time) (domain.DomainEventType, any) {
	prev := next.Status
	next.Status = domain.StatusCancelled
	next.CancellationReason = reason
	next.CancelledAt = &now
	next.FinalVenueOptionID = nil
	return domain.EventCancelled, domain.EventCancelledPayload{EventID: next.ID, PreviousStatus: prev, Reason: reason}
}

func statusChanged(cur, next *domain.Event) domain.StatusChangedPayload {
	return domain.StatusChangedPayload{EventID: cur.ID, From: cur.Status, To: next.Status}
}
