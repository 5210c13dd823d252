package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"gatherplan/internal/domain"
	"gatherplan/internal/repository/memory"

	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	store     *memory.Store
	clock     *testClock
	settings  Settings
	lifecycle domain.LifecycleService
	roster    domain.RosterService
	waitlist  domain.WaitlistService
	registry  domain.RegistryService
	tally     domain.TallyService
	prefs     domain.PreferenceService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.New()
	clock := &testClock{now: baseTime}
	settings := Settings{
		ContextTimeout:        time.Second,
		PreferenceWindow:      24 * time.Hour,
		RecommendationTimeout: time.Second,
		RecommendationWindow:  time.Hour,
		VotingWindow:          48 * time.Hour,
		Now:                   clock.Now,
	}
	waitlist := NewWaitlistService(store.Events(), store.Participants(), store.Waitlist(), settings, nil)
	return &harness{
		store:     store,
		clock:     clock,
		settings:  settings,
		lifecycle: NewLifecycleService(store.Events(), store.Participants(), store.VenueOptions(), store.Votes(), settings, nil),
		roster:    NewRosterService(store.Events(), store.Participants(), waitlist, settings, nil),
		waitlist:  waitlist,
		registry:  NewRegistryService(store.Events(), store.VenueOptions(), settings, nil),
		tally:     NewTallyService(store.Events(), store.Participants(), store.VenueOptions(), store.Votes(), settings, nil),
		prefs:     NewPreferenceService(store.Events(), store.Participants(), store.Preferences(), settings, nil),
	}
}

const organizer = "org-1"

// newEvent creates and publishes an event scheduled a week after baseTime.
func (h *harness) newEvent(t *testing.T, expected int, threshold float64) *domain.Event {
	t.Helper()
	ctx := context.Background()
	rsvp := baseTime.Add(48 * time.Hour)
	ev, err := h.lifecycle.CreateEvent(ctx, organizer, domain.NewEventInput{
		Title:               "Team dinner",
		ScheduledAt:         baseTime.Add(7 * 24 * time.Hour),
		ExpectedAttendees:   expected,
		AcceptanceThreshold: &threshold,
		RSVPDeadline:        &rsvp,
	})
	require.NoError(t, err)
	res, err := h.lifecycle.Publish(ctx, ev.ID, organizer)
	require.NoError(t, err)
	require.True(t, res.Applied)
	return res.Event
}

func (h *harness) inviteAndAccept(t *testing.T, eventID string, invited []string, accepting []string) {
	t.Helper()
	ctx := context.Background()
	_, err := h.roster.Invite(ctx, eventID, organizer, invited)
	require.NoError(t, err)
	for _, u := range accepting {
		_, err := h.roster.Respond(ctx, eventID, u, true)
		require.NoError(t, err)
	}
}

// toVoting drives a published event with accepted participants into Voting with the given
// internal place ids as options, all scored.
func (h *harness) toVoting(t *testing.T, eventID string, places ...string) []*domain.VenueOption {
	t.Helper()
	ctx := context.Background()
	res, err := h.lifecycle.CheckAcceptance(ctx, eventID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusGatheringPreferences, res.Event.Status)

	var opts []*domain.VenueOption
	for _, place := range places {
		opt, err := h.registry.AddOption(ctx, eventID, domain.VenueOptionInput{
			Source: domain.VenueSource{Kind: domain.VenueSourceInternal, PlaceID: place},
		})
		require.NoError(t, err)
		opts = append(opts, opt)
		h.clock.Advance(time.Second)
	}
	_, err = h.lifecycle.StartRecommendation(ctx, eventID, organizer)
	require.NoError(t, err)
	for i, opt := range opts {
		_, err := h.registry.SetAiScore(ctx, opt.ID, domain.AIScoreUpdate{Score: float64(50 + i)})
		require.NoError(t, err)
	}
	res, err = h.lifecycle.MarkScoresReady(ctx, eventID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusVoting, res.Event.Status)
	return opts
}

func countType(t *testing.T, store *memory.Store, eventID string, typ domain.DomainEventType) int {
	t.Helper()
	events, err := store.DomainEvents().ListByEvent(context.Background(), eventID)
	require.NoError(t, err)
	n := 0
	for _, ev := range events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}
