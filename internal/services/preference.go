package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gatherplan/internal/domain"
)

const maxCuisines = 10

var preferencesOpen = []domain.EventStatus{
	domain.StatusPlanning,
	domain.StatusGatheringPreferences,
}

type preferenceService struct {
	eventRepo       domain.EventRepository
	participantRepo domain.ParticipantRepository
	preferenceRepo  domain.PreferenceRepository
	settings        Settings
	logger          *slog.Logger
}

// NewPreferenceService returns the preference collector.
func NewPreferenceService(
	eventRepo domain.EventRepository,
	participantRepo domain.ParticipantRepository,
	preferenceRepo domain.PreferenceRepository,
	settings Settings,
	logger *slog.Logger,
) domain.PreferenceService {
	return &preferenceService{
		eventRepo:       eventRepo,
		participantRepo: participantRepo,
		preferenceRepo:  preferenceRepo,
		settings:        settings.withDefaults(),
		logger:          orDiscard(logger),
	}
}

// Submit stores the participant's preferences, replacing earlier ones.
func (s *preferenceService) Submit(ctx context.Context, p *domain.Preference) (*domain.Preference, error) {
	ctx, cancel := context.WithTimeout(ctx, s.settings.ContextTimeout)
	defer cancel()

	if p == nil {
		return nil, domain.InvalidInputf("preference is required")
	}
	if len(p.Cuisines) > maxCuisines {
		return nil, domain.InvalidInputf("at most %d cuisines", maxCuisines)
	}
	if (p.MaxBudgetPerPerson != nil && *p.MaxBudgetPerPerson < 0) || (p.MaxDistanceKm != nil && *p.MaxDistanceKm < 0) {
		return nil, domain.InvalidInputf("limits must not be negative")
	}
	ev, err := loadEvent(ctx, s.eventRepo, p.EventID)
	if err != nil {
		return nil, err
	}
	if !ev.Status.In(preferencesOpen...) {
		return nil, domain.InvalidStatef("event %s is not collecting preferences (status %s)", ev.ID, ev.Status)
	}
	part, err := s.participantRepo.Get(ctx, p.EventID, p.UserID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("get participant: %w", err)
	}
	if part == nil || part.Status != domain.InvitationAccepted {
		return nil, domain.Forbiddenf("user %s is not an accepted participant of event %s", p.UserID, p.EventID)
	}

	stored := *p
	stored.Cuisines = make([]string, 0, len(p.Cuisines))
	for _, c := range p.Cuisines {
		if c = strings.TrimSpace(c); c != "" {
			stored.Cuisines = append(stored.Cuisines, c)
		}
	}
	stored.Notes = strings.TrimSpace(p.Notes)
	stored.UpdatedAt = s.settings.now()
	if err := s.preferenceRepo.Upsert(ctx, &stored); err != nil {
		return nil, fmt.Errorf("upsert preference: %w", err)
	}
	s.logger.Debug("preference submitted", "event_id", p.EventID, "user_id", p.UserID)
	return &stored, nil
}

func (s *preferenceService) Group(ctx context.Context, eventID string) (*domain.GroupPreferences, error) {
	ctx, cancel := context.WithTimeout(ctx, s.settings.ContextTimeout)
	defer cancel()

	if _, err := loadEvent(ctx, s.eventRepo, eventID); err != nil {
		return nil, err
	}
	prefs, err := s.preferenceRepo.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list preferences: %w", err)
	}
	g := domain.AggregatePreferences(prefs)
	return &g, nil
}
