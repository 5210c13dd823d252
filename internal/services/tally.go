package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gatherplan/internal/domain"
)

const maxCommentLength = 1000

type tallyService struct {
	eventRepo       domain.EventRepository
	participantRepo domain.ParticipantRepository
	optionRepo      domain.VenueOptionRepository
	voteRepo        domain.VoteRepository
	settings        Settings
	logger          *slog.Logger
}

// NewTallyService returns the vote tally.
func NewTallyService(
	eventRepo domain.EventRepository,
	participantRepo domain.ParticipantRepository,
	optionRepo domain.VenueOptionRepository,
	voteRepo domain.VoteRepository,
	settings Settings,
	logger *slog.Logger,
) domain.TallyService {
	return &tallyService{
		eventRepo:       eventRepo,
		participantRepo: participantRepo,
		optionRepo:      optionRepo,
		voteRepo:        voteRepo,
		settings:        settings.withDefaults(),
		logger:          orDiscard(logger),
	}
}

// CastVote records or overwrites the voter's vote on an option.
func (s *tallyService) CastVote(ctx context.Context, eventID, optionID, voterID string, value int, comment string) (*domain.Vote, error) {
	ctx, cancel := context.WithTimeout(ctx, s.settings.ContextTimeout)
	defer cancel()

	if err := domain.ValidateVoteValue(value); err != nil {
		return nil, err
	}
	comment = strings.TrimSpace(comment)
	if len(comment) > maxCommentLength {
		return nil, domain.InvalidInputf("comment must be at most %d bytes", maxCommentLength)
	}
	ev, err := loadEvent(ctx, s.eventRepo, eventID)
	if err != nil {
		return nil, err
	}
	now := s.settings.now()
	if ev.Status != domain.StatusVoting {
		return nil, domain.InvalidStatef("event %s is not open for voting (status %s)", eventID, ev.Status)
	}
	if ev.VotingClosed(now) {
		return nil, domain.InvalidStatef("voting for event %s has closed", eventID)
	}

	p, err := s.participantRepo.Get(ctx, eventID, voterID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("get participant: %w", err)
	}
	if p == nil || p.Status != domain.InvitationAccepted {
		return nil, domain.Forbiddenf("user %s is not an accepted participant of event %s", voterID, eventID)
	}

	opt, err := s.optionRepo.GetByID(ctx, optionID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("get venue option: %w", err)
	}
	if opt == nil || opt.EventID != eventID {
		return nil, domain.NotFoundf("venue option %s not found in event %s", optionID, eventID)
	}

	v := &domain.Vote{
		EventID:   eventID,
		OptionID:  optionID,
		VoterID:   voterID,
		Value:     value,
		Comment:   comment,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.voteRepo.Upsert(ctx, v); err != nil {
		return nil, fmt.Errorf("upsert vote: %w", err)
	}
	s.logger.Debug("vote cast", "event_id", eventID, "option_id", optionID, "user_id", voterID, "value", value)
	return v, nil
}

func (s *tallyService) GetStatistics(ctx context.Context, eventID string) (*domain.VoteStatistics, error) {
	ctx, cancel := context.WithTimeout(ctx, s.settings.ContextTimeout)
	defer cancel()

	ev, err := loadEvent(ctx, s.eventRepo, eventID)
	if err != nil {
		return nil, err
	}
	opts, votes, err := s.ballot(ctx, eventID)
	if err != nil {
		return nil, err
	}
	participants, err := s.participantRepo.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	accepted := make([]string, 0, len(participants))
	for _, p := range participants {
		if p.Status == domain.InvitationAccepted {
			accepted = append(accepted, p.UserID)
		}
	}
	stats := domain.ComputeStatistics(eventID, opts, votes, accepted, ev.VotingDeadline, s.settings.now())
	return &stats, nil
}

// DetermineWinner previews the current winner without changing the event.
func (s *tallyService) DetermineWinner(ctx context.Context, eventID string) (*domain.VenueOption, error) {
	ctx, cancel := context.WithTimeout(ctx, s.settings.ContextTimeout)
	defer cancel()

	if _, err := loadEvent(ctx, s.eventRepo, eventID); err != nil {
		return nil, err
	}
	opts, votes, err := s.ballot(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return domain.DetermineWinner(opts, votes)
}

func (s *tallyService) ballot(ctx context.Context, eventID string) ([]*domain.VenueOption, []*domain.Vote, error) {
	opts, err := s.optionRepo.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, nil, fmt.Errorf("list venue options: %w", err)
	}
	votes, err := s.voteRepo.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, nil, fmt.Errorf("list votes: %w", err)
	}
	return opts, votes, nil
}
