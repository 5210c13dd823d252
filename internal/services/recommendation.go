package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"gatherplan/internal/domain"
)

// RecommendationCoordinator drives the reasoning engine for events in AIRecommending. It is fed by
// the outbox: a RecommendationStarted event starts a background run. No lock is held while the
// engine works, so an organizer cancel simply wins and the late resolve becomes a no-op.
type RecommendationCoordinator struct {
	eventRepo  domain.EventRepository
	optionRepo domain.VenueOptionRepository
	prefs      domain.PreferenceService
	registry   domain.RegistryService
	lifecycle  domain.LifecycleService
	engine     domain.ReasoningEngine
	settings   Settings
	logger     *slog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup
	baseCtx  context.Context
}

var (
	_ domain.RecommendationCoordinator = (*RecommendationCoordinator)(nil)
	_ domain.DomainEventPublisher      = (*RecommendationCoordinator)(nil)
)

// NewRecommendationCoordinator returns a coordinator whose background runs stop when ctx is done.
func NewRecommendationCoordinator(
	ctx context.Context,
	eventRepo domain.EventRepository,
	optionRepo domain.VenueOptionRepository,
	prefs domain.PreferenceService,
	registry domain.RegistryService,
	lifecycle domain.LifecycleService,
	engine domain.ReasoningEngine,
	settings Settings,
	logger *slog.Logger,
) *RecommendationCoordinator {
	return &RecommendationCoordinator{
		eventRepo:  eventRepo,
		optionRepo: optionRepo,
		prefs:      prefs,
		registry:   registry,
		lifecycle:  lifecycle,
		engine:     engine,
		settings:   settings.withDefaults(),
		logger:     orDiscard(logger),
		inflight:   make(map[string]struct{}),
		baseCtx:    ctx,
	}
}

// Publish starts a run for RecommendationStarted events and ignores everything else.
func (c *RecommendationCoordinator) Publish(_ context.Context, ev *domain.DomainEvent) error {
	if ev.Type == domain.RecommendationStarted {
		c.Trigger(ev.EventID)
	}
	return nil
}

// Trigger starts a run unless one is already in flight for the event.
func (c *RecommendationCoordinator) Trigger(eventID string) {
	c.mu.Lock()
	if _, busy := c.inflight[eventID]; busy {
		c.mu.Unlock()
		return
	}
	c.inflight[eventID] = struct{}{}
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			delete(c.inflight, eventID)
			c.mu.Unlock()
		}()
		if err := c.Run(c.baseCtx, eventID); err != nil {
			c.logger.Error("recommendation run failed", "event_id", eventID, "err", err)
		}
	}()
}

// Wait blocks until background runs finish.
func (c *RecommendationCoordinator) Wait() {
	c.wg.Wait()
}

// Run scores the event's options and resolves the recommendation phase with whatever the engine
// returned before the timeout. When the engine finishes cleanly without scoring anything the event
// stays in AIRecommending: scores may still arrive through callbacks, and the recommendation
// deadline resolves it otherwise.
func (c *RecommendationCoordinator) Run(ctx context.Context, eventID string) error {
	ev, err := loadEvent(ctx, c.eventRepo, eventID)
	if err != nil {
		return err
	}
	if ev.Status != domain.StatusAIRecommending {
		return nil
	}
	opts, err := c.optionRepo.ListByEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("list venue options: %w", err)
	}
	group, err := c.prefs.Group(ctx, eventID)
	if err != nil {
		return fmt.Errorf("group preferences: %w", err)
	}

	known := make(map[string]bool, len(opts))
	for _, o := range opts {
		known[o.ID] = true
	}
	scored := 0
	var engineErr error
	if len(opts) > 0 {
		runCtx, cancel := context.WithTimeout(ctx, c.settings.RecommendationTimeout)
		err = c.engine.ScoreVenues(runCtx, domain.ScoreRequest{Event: ev, Options: opts, Preferences: *group}, func(vs domain.VenueScore) error {
			if !known[vs.OptionID] {
				c.logger.Warn("reasoning engine scored unknown option", "event_id", eventID, "option_id", vs.OptionID)
				return nil
			}
			_, serr := c.registry.SetAiScore(runCtx, vs.OptionID, domain.AIScoreUpdate{
				Score:     vs.Score,
				Reasoning: vs.Reasoning,
				Pros:      vs.Pros,
				Cons:      vs.Cons,
			})
			if errors.Is(serr, domain.ErrInvalidInput) {
				c.logger.Warn("reasoning engine returned invalid score", "event_id", eventID, "option_id", vs.OptionID, "err", serr)
				return nil
			}
			if serr == nil {
				scored++
			}
			return serr
		})
		cancel()
		engineErr = err
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			c.logger.Warn("reasoning engine timed out", "event_id", eventID, "scored", scored)
		case err != nil:
			c.logger.Error("reasoning engine failed", "event_id", eventID, "scored", scored, "err", err)
		}
	}
	if scored == 0 && engineErr == nil {
		c.logger.Info("no scores from reasoning engine; waiting for callbacks or the deadline", "event_id", eventID)
		return nil
	}

	res, err := c.lifecycle.ResolveRecommendation(ctx, eventID)
	if err != nil {
		return fmt.Errorf("resolve recommendation: %w", err)
	}
	c.logger.Info("recommendation resolved", "event_id", eventID, "status", res.Event.Status, "scored", scored)
	return nil
}
