package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gatherplan/internal/domain"
)

var optionsOpen = []domain.EventStatus{
	domain.StatusPlanning,
	domain.StatusGatheringPreferences,
	domain.StatusAIRecommending,
}

type registryService struct {
	eventRepo  domain.EventRepository
	optionRepo domain.VenueOptionRepository
	settings   Settings
	logger     *slog.Logger
}

// NewRegistryService returns the venue option registry.
func NewRegistryService(eventRepo domain.EventRepository, optionRepo domain.VenueOptionRepository, settings Settings, logger *slog.Logger) domain.RegistryService {
	return &registryService{
		eventRepo:  eventRepo,
		optionRepo: optionRepo,
		settings:   settings.withDefaults(),
		logger:     orDiscard(logger),
	}
}

// AddOption registers a candidate venue. Adding the same source twice returns the first option.
func (s *registryService) AddOption(ctx context.Context, eventID string, in domain.VenueOptionInput) (*domain.VenueOption, error) {
	ctx, cancel := context.WithTimeout(ctx, s.settings.ContextTimeout)
	defer cancel()

	if err := in.Source.Validate(); err != nil {
		return nil, err
	}
	if in.Source.Kind == domain.VenueSourceExternal && (in.Snapshot == nil || strings.TrimSpace(in.Snapshot.Name) == "") {
		return nil, domain.InvalidInputf("external venue requires a snapshot with a name")
	}
	ev, err := loadEvent(ctx, s.eventRepo, eventID)
	if err != nil {
		return nil, err
	}
	if !ev.Status.In(optionsOpen...) {
		return nil, domain.InvalidStatef("cannot add venue options to event %s in status %s", eventID, ev.Status)
	}

	opt, created, err := s.optionRepo.Add(ctx, &domain.VenueOption{
		ID:              newID(),
		EventID:         eventID,
		Source:          in.Source,
		Snapshot:        in.Snapshot,
		DistanceMeters:  in.DistanceMeters,
		DurationSeconds: in.DurationSeconds,
		CreatedAt:       s.settings.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("add venue option: %w", err)
	}
	if created {
		s.logger.Info("venue option added", "event_id", eventID, "option_id", opt.ID, "source", opt.Source.DedupKey())
	}
	return opt, nil
}

// SetAiScore overwrites the score of an option. It never changes the event status.
func (s *registryService) SetAiScore(ctx context.Context, optionID string, u domain.AIScoreUpdate) (*domain.VenueOption, error) {
	ctx, cancel := context.WithTimeout(ctx, s.settings.ContextTimeout)
	defer cancel()

	if err := u.Validate(); err != nil {
		return nil, err
	}
	opt, err := s.optionRepo.SetAIScore(ctx, optionID, u)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NotFoundf("venue option %s not found", optionID)
		}
		return nil, fmt.Errorf("set ai score: %w", err)
	}
	s.logger.Debug("venue option scored", "event_id", opt.EventID, "option_id", optionID, "score", u.Score)
	return opt, nil
}

func (s *registryService) GetOptions(ctx context.Context, eventID string) ([]*domain.VenueOption, error) {
	ctx, cancel := context.WithTimeout(ctx, s.settings.ContextTimeout)
	defer cancel()

	if _, err := loadEvent(ctx, s.eventRepo, eventID); err != nil {
		return nil, err
	}
	opts, err := s.optionRepo.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list venue options: %w", err)
	}
	return opts, nil
}
