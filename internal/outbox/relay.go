// Package outbox relays stored domain events to downstream publishers.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gatherplan/internal/domain"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultBatchSize    = 50
	DefaultMaxAttempts  = 10
)

type Config struct {
	PollInterval time.Duration
	BatchSize    int
	// MaxAttempts is how often an event is tried before the relay leaves it for manual inspection.
	MaxAttempts int
}

func (c Config) normalized() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	return c
}

// Sink is a named downstream consumer.
type Sink struct {
	Name      string
	Publisher domain.DomainEventPublisher
}

// Relay polls the outbox and hands every undelivered event to all sinks. Delivery is at least
// once: an event is retried as a whole when any sink fails.
type Relay struct {
	repo   domain.DomainEventRepository
	sinks  []Sink
	cfg    Config
	now    func() time.Time
	logger *slog.Logger
}

func New(repo domain.DomainEventRepository, sinks []Sink, cfg Config, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Relay{
		repo:   repo,
		sinks:  sinks,
		cfg:    cfg.normalized(),
		now:    time.Now,
		logger: logger,
	}
}

// Start flushes the outbox every poll interval until ctx is done.
func (r *Relay) Start(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	r.logger.Info("outbox relay started", "interval", r.cfg.PollInterval, "sinks", len(r.sinks))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil {
				r.logger.Error("outbox flush failed", "err", err)
			}
		}
	}
}

// Flush delivers one batch and returns how many events were delivered. Once an event of an
// aggregate fails, its later events wait for the next flush so consumers see them in order.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	events, err := r.repo.ListUndelivered(ctx, r.cfg.BatchSize, r.cfg.MaxAttempts)
	if err != nil {
		return 0, fmt.Errorf("list undelivered events: %w", err)
	}
	delivered := 0
	blocked := make(map[string]bool)
	for _, ev := range events {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}
		if blocked[ev.EventID] {
			continue
		}
		if err := r.deliver(ctx, ev); err != nil {
			blocked[ev.EventID] = true
			r.logger.Warn("domain event delivery failed",
				"event_id", ev.EventID,
				"domain_event_id", ev.ID,
				"type", ev.Type,
				"attempt", ev.Attempts+1,
				"err", err,
			)
			if ev.Attempts+1 >= r.cfg.MaxAttempts {
				r.logger.Error("domain event gave up", "event_id", ev.EventID, "domain_event_id", ev.ID, "type", ev.Type)
			}
			if merr := r.repo.MarkFailed(ctx, ev.ID, err.Error()); merr != nil {
				return delivered, fmt.Errorf("mark event %s failed: %w", ev.ID, merr)
			}
			continue
		}
		if err := r.repo.MarkDelivered(ctx, ev.ID, r.now().UTC()); err != nil {
			return delivered, fmt.Errorf("mark event %s delivered: %w", ev.ID, err)
		}
		delivered++
	}
	return delivered, nil
}

func (r *Relay) deliver(ctx context.Context, ev *domain.DomainEvent) error {
	var errs []error
	for _, s := range r.sinks {
		if err := s.Publisher.Publish(ctx, ev); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}
