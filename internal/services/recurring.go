package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gatherplan/internal/domain"
)

type recurringExpander struct {
	seriesRepo domain.RecurringSeriesRepository
	lifecycle  domain.LifecycleService
	settings   Settings
	logger     *slog.Logger
}

// NewRecurringExpander returns the service that turns recurring series into Draft events.
func NewRecurringExpander(seriesRepo domain.RecurringSeriesRepository, lifecycle domain.LifecycleService, settings Settings, logger *slog.Logger) domain.RecurringExpander {
	return &recurringExpander{
		seriesRepo: seriesRepo,
		lifecycle:  lifecycle,
		settings:   settings.withDefaults(),
		logger:     orDiscard(logger),
	}
}

func (s *recurringExpander) CreateSeries(ctx context.Context, in *domain.RecurringSeries) (*domain.RecurringSeries, error) {
	ctx, cancel := context.WithTimeout(ctx, s.settings.ContextTimeout)
	defer cancel()

	if in == nil {
		return nil, domain.InvalidInputf("series is required")
	}
	if strings.TrimSpace(in.OrganizerID) == "" || strings.TrimSpace(in.Title) == "" {
		return nil, domain.InvalidInputf("organizer and title are required")
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	series := *in
	series.ID = newID()
	series.Active = true
	series.CreatedAt = s.settings.now()
	if series.AcceptanceThreshold == 0 {
		series.AcceptanceThreshold = domain.DefaultAcceptanceThreshold
	}
	if series.Privacy == "" {
		series.Privacy = domain.PrivacyPublic
	}
	if err := s.seriesRepo.Create(ctx, &series); err != nil {
		return nil, fmt.Errorf("create series: %w", err)
	}
	s.logger.Info("recurring series created", "series_id", series.ID, "organizer_id", series.OrganizerID)
	return &series, nil
}

// ExpandDue creates one Draft event per due series. The series is advanced before the event is
// created, so concurrent expanders never produce the same occurrence twice. Occurrences already
// in the past are skipped.
func (s *recurringExpander) ExpandDue(ctx context.Context, now time.Time, limit int) ([]*domain.Event, error) {
	due, err := s.seriesRepo.ListDue(ctx, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due series: %w", err)
	}
	created := make([]*domain.Event, 0, len(due))
	var errs []error
	for _, series := range due {
		occurrence := series.NextOccurrence
		var next time.Time
		if occurrence.After(now) {
			next = series.Step(occurrence)
		} else {
			next = series.NextAfter(now)
		}
		err := s.seriesRepo.Advance(ctx, series.ID, occurrence, next, !series.Ended(next))
		if errors.Is(err, domain.ErrConflict) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("advance series %s: %w", series.ID, err))
			continue
		}
		if !occurrence.After(now) {
			s.logger.Warn("skipped past occurrence", "series_id", series.ID, "occurrence", occurrence, "next", next)
			continue
		}

		ev, err := s.lifecycle.CreateEvent(ctx, series.OrganizerID, draftFor(series, occurrence))
		if err != nil {
			errs = append(errs, fmt.Errorf("create occurrence of series %s: %w", series.ID, err))
			continue
		}
		s.logger.Info("recurring occurrence created", "series_id", series.ID, "event_id", ev.ID, "scheduled_at", occurrence)
		created = append(created, ev)
	}
	return created, errors.Join(errs...)
}

func draftFor(series *domain.RecurringSeries, occurrence time.Time) domain.NewEventInput {
	threshold := series.AcceptanceThreshold
	seriesID := series.ID
	in := domain.NewEventInput{
		Title:               series.Title,
		Description:         series.Description,
		ScheduledAt:         occurrence,
		Timezone:            series.Timezone,
		DurationMinutes:     series.DurationMinutes,
		ExpectedAttendees:   series.ExpectedAttendees,
		AcceptanceThreshold: &threshold,
		Privacy:             series.Privacy,
		RecurringSeriesID:   &seriesID,
	}
	if series.RSVPOffset > 0 {
		d := occurrence.Add(-series.RSVPOffset)
		in.RSVPDeadline = &d
	}
	return in
}
