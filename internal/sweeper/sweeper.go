// Package sweeper advances events whose deadlines have passed.
package sweeper

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"gatherplan/internal/domain"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultInterval    = time.Minute
	DefaultBatchSize   = 100
	DefaultConcurrency = 8
)

// Config controls the sweep cadence and fan-out.
type Config struct {
	Interval    time.Duration
	BatchSize   int
	Concurrency int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	return c
}

// rule maps one (status, deadline) query onto the transition that handles it.
type rule struct {
	name     string
	status   domain.EventStatus
	deadline domain.Deadline
	advance  func(ctx context.Context, eventID string) (*domain.TransitionResult, error)
}

// Report counts what one sweep did.
type Report struct {
	Due      int
	Advanced int
	Failed   int
	Created  int
}

type Sweeper struct {
	events    domain.EventRepository
	lifecycle domain.LifecycleService
	recurring domain.RecurringExpander
	rules     []rule
	cfg       Config
	now       func() time.Time
	logger    *slog.Logger
}

// New returns a sweeper. recurring may be nil when series expansion runs elsewhere.
func New(
	events domain.EventRepository,
	lifecycle domain.LifecycleService,
	recurring domain.RecurringExpander,
	cfg Config,
	now func() time.Time,
	logger *slog.Logger,
) *Sweeper {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Sweeper{
		events:    events,
		lifecycle: lifecycle,
		recurring: recurring,
		cfg:       cfg.withDefaults(),
		now:       now,
		logger:    logger,
	}
	s.rules = []rule{
		{name: "rsvp expiry", status: domain.StatusPlanning, deadline: domain.DeadlineRSVP, advance: lifecycle.CheckAcceptance},
		{name: "preference window", status: domain.StatusGatheringPreferences, deadline: domain.DeadlinePreference,
			advance: func(ctx context.Context, id string) (*domain.TransitionResult, error) {
				return lifecycle.StartRecommendation(ctx, id, domain.SystemActor)
			}},
		{name: "recommendation timeout", status: domain.StatusAIRecommending, deadline: domain.DeadlineRecommendation, advance: lifecycle.ResolveRecommendation},
		{name: "voting expiry", status: domain.StatusVoting, deadline: domain.DeadlineVoting, advance: lifecycle.CloseVoting},
		{name: "completion", status: domain.StatusConfirmed, deadline: domain.DeadlineScheduledEnd, advance: lifecycle.Complete},
	}
	return s
}

// Start sweeps every interval until ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("sweeper started", "interval", s.cfg.Interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	report := s.Sweep(ctx, s.now().UTC())
	if report.Due == 0 && report.Created == 0 {
		return
	}
	s.logger.Info("sweep finished",
		"due", report.Due,
		"advanced", report.Advanced,
		"failed", report.Failed,
		"created", report.Created,
	)
}

// Sweep runs every rule once for deadlines at or before now. Failures are logged per event and
// left for the next sweep; they never stop the other events.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) Report {
	var report Report
	for _, r := range s.rules {
		due, advanced, failed := s.sweepRule(ctx, r, now)
		report.Due += due
		report.Advanced += advanced
		report.Failed += failed
	}
	if s.recurring != nil {
		created, err := s.recurring.ExpandDue(ctx, now, s.cfg.BatchSize)
		if err != nil {
			s.logger.Error("recurring expansion failed", "err", err)
		}
		report.Created = len(created)
	}
	return report
}

func (s *Sweeper) sweepRule(ctx context.Context, r rule, now time.Time) (due, advanced, failed int) {
	events, err := s.events.ListDue(ctx, domain.DueQuery{
		Status:   r.status,
		Deadline: r.deadline,
		Before:   now,
		Limit:    s.cfg.BatchSize,
	})
	if err != nil {
		s.logger.Error("list due events failed", "rule", r.name, "err", err)
		return 0, 0, 1
	}

	var nAdvanced, nFailed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, ev := range events {
		g.Go(func() error {
			res, err := r.advance(gctx, ev.ID)
			if err != nil {
				nFailed.Add(1)
				s.logger.Error("sweep transition failed", "rule", r.name, "event_id", ev.ID, "err", err)
				return nil
			}
			if res.Applied {
				nAdvanced.Add(1)
				s.logger.Info("event advanced", "rule", r.name, "event_id", ev.ID, "status", res.Event.Status)
			}
			return nil
		})
	}
	_ = g.Wait()
	return len(events), int(nAdvanced.Load()), int(nFailed.Load())
}
