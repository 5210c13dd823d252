package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"gatherplan/internal/domain"
	"gatherplan/internal/repository/memory"
	"gatherplan/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

const organizer = "org-1"

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type env struct {
	store     *memory.Store
	clock     *clock
	lifecycle domain.LifecycleService
	roster    domain.RosterService
	registry  domain.RegistryService
	tally     domain.TallyService
	recurring domain.RecurringExpander
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := memory.New()
	c := &clock{now: start}
	settings := services.Settings{
		ContextTimeout:        time.Second,
		PreferenceWindow:      24 * time.Hour,
		RecommendationTimeout: time.Second,
		RecommendationWindow:  time.Hour,
		VotingWindow:          24 * time.Hour,
		Now:                   c.Now,
	}
	lifecycle := services.NewLifecycleService(store.Events(), store.Participants(), store.VenueOptions(), store.Votes(), settings, nil)
	waitlist := services.NewWaitlistService(store.Events(), store.Participants(), store.Waitlist(), settings, nil)
	return &env{
		store:     store,
		clock:     c,
		lifecycle: lifecycle,
		roster:    services.NewRosterService(store.Events(), store.Participants(), waitlist, settings, nil),
		registry:  services.NewRegistryService(store.Events(), store.VenueOptions(), settings, nil),
		tally:     services.NewTallyService(store.Events(), store.Participants(), store.VenueOptions(), store.Votes(), settings, nil),
		recurring: services.NewRecurringExpander(store.RecurringSeries(), lifecycle, settings, nil),
	}
}

func (e *env) sweeper(lifecycle domain.LifecycleService) *Sweeper {
	if lifecycle == nil {
		lifecycle = e.lifecycle
	}
	return New(e.store.Events(), lifecycle, e.recurring, Config{Concurrency: 4}, e.clock.Now, nil)
}

// plannedEvent creates a published event with invited users of whom the first accepted accept.
func (e *env) plannedEvent(t *testing.T, invited, accepted int) *domain.Event {
	t.Helper()
	ctx := context.Background()
	rsvp := start.Add(48 * time.Hour)
	threshold := 0.7
	ev, err := e.lifecycle.CreateEvent(ctx, organizer, domain.NewEventInput{
		Title:               "Board game night",
		ScheduledAt:         start.Add(7 * 24 * time.Hour),
		DurationMinutes:     120,
		AcceptanceThreshold: &threshold,
		RSVPDeadline:        &rsvp,
	})
	require.NoError(t, err)
	_, err = e.lifecycle.Publish(ctx, ev.ID, organizer)
	require.NoError(t, err)

	users := make([]string, invited)
	for i := range users {
		users[i] = fmt.Sprintf("user-%d", i)
	}
	_, err = e.roster.Invite(ctx, ev.ID, organizer, users)
	require.NoError(t, err)
	for _, u := range users[:accepted] {
		_, err := e.roster.Respond(ctx, ev.ID, u, true)
		require.NoError(t, err)
	}
	return ev
}

func (e *env) status(t *testing.T, id string) *domain.Event {
	t.Helper()
	ev, err := e.lifecycle.GetEvent(context.Background(), id)
	require.NoError(t, err)
	return ev
}

func TestSweep_RSVPExpiry(t *testing.T) {
	tests := []struct {
		name     string
		accepted int
		want     domain.EventStatus
		reason   string
	}{
		{name: "insufficient participants cancel", accepted: 6, want: domain.StatusCancelled, reason: domain.CancelReasonInsufficientParticipants},
		{name: "threshold met opens preferences", accepted: 8, want: domain.StatusGatheringPreferences},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			ev := e.plannedEvent(t, 10, tt.accepted)
			sw := e.sweeper(nil)
			ctx := context.Background()

			if tt.want == domain.StatusCancelled {
				report := sw.Sweep(ctx, e.clock.Now())
				assert.Zero(t, report.Due)
				assert.Equal(t, domain.StatusPlanning, e.status(t, ev.ID).Status)
			}

			e.clock.Set(start.Add(49 * time.Hour))
			report := sw.Sweep(ctx, e.clock.Now())
			assert.Equal(t, 1, report.Advanced)
			assert.Zero(t, report.Failed)

			got := e.status(t, ev.ID)
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, tt.reason, got.CancellationReason)

			// A second sweep finds nothing left to do for this rule.
			report = sw.Sweep(ctx, e.clock.Now())
			assert.Zero(t, report.Advanced)
		})
	}
}

func TestSweep_VotingExpiry(t *testing.T) {
	ctx := context.Background()

	drive := func(t *testing.T, e *env) (*domain.Event, []*domain.VenueOption) {
		ev := e.plannedEvent(t, 2, 2)
		_, err := e.lifecycle.CheckAcceptance(ctx, ev.ID)
		require.NoError(t, err)
		var opts []*domain.VenueOption
		for _, place := range []string{"cafe", "pub"} {
			opt, err := e.registry.AddOption(ctx, ev.ID, domain.VenueOptionInput{
				Source: domain.VenueSource{Kind: domain.VenueSourceInternal, PlaceID: place},
			})
			require.NoError(t, err)
			_, err = e.registry.SetAiScore(ctx, opt.ID, domain.AIScoreUpdate{Score: 70})
			require.NoError(t, err)
			opts = append(opts, opt)
		}
		_, err = e.lifecycle.StartRecommendation(ctx, ev.ID, organizer)
		require.NoError(t, err)
		res, err := e.lifecycle.MarkScoresReady(ctx, ev.ID)
		require.NoError(t, err)
		require.Equal(t, domain.StatusVoting, res.Event.Status)
		return res.Event, opts
	}

	t.Run("no votes cancels", func(t *testing.T) {
		e := newEnv(t)
		ev, _ := drive(t, e)
		e.clock.Set(ev.VotingDeadline.Add(time.Second))

		e.sweeper(nil).Sweep(ctx, e.clock.Now())
		got := e.status(t, ev.ID)
		assert.Equal(t, domain.StatusCancelled, got.Status)
		assert.Equal(t, domain.CancelReasonNoCandidates, got.CancellationReason)
		assert.Nil(t, got.FinalVenueOptionID)
	})

	t.Run("votes confirm the winner then completion", func(t *testing.T) {
		e := newEnv(t)
		ev, opts := drive(t, e)
		_, err := e.tally.CastVote(ctx, ev.ID, opts[1].ID, "user-0", 4, "")
		require.NoError(t, err)

		e.clock.Set(ev.VotingDeadline.Add(time.Second))
		sw := e.sweeper(nil)
		sw.Sweep(ctx, e.clock.Now())
		got := e.status(t, ev.ID)
		require.Equal(t, domain.StatusConfirmed, got.Status)
		require.NotNil(t, got.FinalVenueOptionID)
		assert.Equal(t, opts[1].ID, *got.FinalVenueOptionID)

		e.clock.Set(got.ScheduledEnd().Add(time.Minute))
		sw.Sweep(ctx, e.clock.Now())
		assert.Equal(t, domain.StatusCompleted, e.status(t, ev.ID).Status)
	})
}

func TestSweep_SkipsCancelledEvents(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	ev := e.plannedEvent(t, 10, 9)
	_, err := e.lifecycle.Cancel(ctx, ev.ID, organizer, "organizer moved abroad")
	require.NoError(t, err)

	e.clock.Set(start.Add(49 * time.Hour))
	report := e.sweeper(nil).Sweep(ctx, e.clock.Now())
	assert.Zero(t, report.Due)
	assert.Equal(t, domain.StatusCancelled, e.status(t, ev.ID).Status)
}

type flakyLifecycle struct {
	domain.LifecycleService
	failFor string
}

func (f *flakyLifecycle) CheckAcceptance(ctx context.Context, id string) (*domain.TransitionResult, error) {
	if id == f.failFor {
		return nil, errors.New("connection reset")
	}
	return f.LifecycleService.CheckAcceptance(ctx, id)
}

func TestSweep_FailureDoesNotBlockOtherEvents(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	broken := e.plannedEvent(t, 10, 8)
	healthy := e.plannedEvent(t, 10, 8)
	flaky := &flakyLifecycle{LifecycleService: e.lifecycle, failFor: broken.ID}

	e.clock.Set(start.Add(49 * time.Hour))
	report := e.sweeper(flaky).Sweep(ctx, e.clock.Now())
	assert.Equal(t, 2, report.Due)
	assert.Equal(t, 1, report.Advanced)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, domain.StatusGatheringPreferences, e.status(t, healthy.ID).Status)
	assert.Equal(t, domain.StatusPlanning, e.status(t, broken.ID).Status)

	// The failed event is picked up again once the store recovers.
	flaky.failFor = ""
	report = e.sweeper(flaky).Sweep(ctx, e.clock.Now())
	assert.Equal(t, 1, report.Advanced)
	assert.Equal(t, domain.StatusGatheringPreferences, e.status(t, broken.ID).Status)
}

func TestSweep_ExpandsRecurringSeries(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	_, err := e.recurring.CreateSeries(ctx, &domain.RecurringSeries{
		OrganizerID:    organizer,
		Title:          "Monthly pub quiz",
		Frequency:      domain.FrequencyMonthly,
		Interval:       1,
		NextOccurrence: start.Add(5 * 24 * time.Hour),
		LeadTime:       14 * 24 * time.Hour,
	})
	require.NoError(t, err)

	report := e.sweeper(nil).Sweep(ctx, e.clock.Now())
	assert.Equal(t, 1, report.Created)

	events, total, err := e.lifecycle.ListEventsByOrganizer(ctx, organizer, domain.PaginationParams{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, domain.StatusDraft, events[0].Status)
}

func TestSweeper_StopsOnContextCancel(t *testing.T) {
	e := newEnv(t)
	sw := New(e.store.Events(), e.lifecycle, nil, Config{Interval: time.Hour}, e.clock.Now, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sw.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on context cancel")
	}
}
