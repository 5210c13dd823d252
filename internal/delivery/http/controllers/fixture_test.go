package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gatherplan/internal/delivery/http/helpers"
	"gatherplan/internal/delivery/http/middleware"
	"gatherplan/internal/domain"
	"gatherplan/internal/repository/memory"
	"gatherplan/internal/services"

	"github.com/stretchr/testify/require"
)

// testLogger is a no-op logger for controller tests so we don't assert on log output.
var testLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

var baseTime = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

const organizer = "org-1"

type fixture struct {
	store     *memory.Store
	lifecycle domain.LifecycleService
	roster    domain.RosterService
	registry  domain.RegistryService
	events    *EventController
	rosterCtl *RosterController
	venues    *VenueController
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	settings := services.Settings{
		ContextTimeout: time.Second,
		VotingWindow:   48 * time.Hour,
		Now:            func() time.Time { return baseTime },
	}
	lifecycle := services.NewLifecycleService(store.Events(), store.Participants(), store.VenueOptions(), store.Votes(), settings, testLogger)
	waitlist := services.NewWaitlistService(store.Events(), store.Participants(), store.Waitlist(), settings, testLogger)
	roster := services.NewRosterService(store.Events(), store.Participants(), waitlist, settings, testLogger)
	registry := services.NewRegistryService(store.Events(), store.VenueOptions(), settings, testLogger)
	tally := services.NewTallyService(store.Events(), store.Participants(), store.VenueOptions(), store.Votes(), settings, testLogger)
	prefs := services.NewPreferenceService(store.Events(), store.Participants(), store.Preferences(), settings, testLogger)
	recurring := services.NewRecurringExpander(store.RecurringSeries(), lifecycle, settings, testLogger)
	return &fixture{
		store:     store,
		lifecycle: lifecycle,
		roster:    roster,
		registry:  registry,
		events:    NewEventController(testLogger, lifecycle, recurring),
		rosterCtl: NewRosterController(testLogger, roster, waitlist, prefs),
		venues:    NewVenueController(testLogger, registry, tally),
	}
}

// publishedEvent creates a planning event with the given capacity (0 means unlimited).
func (f *fixture) publishedEvent(t *testing.T, capacity int) *domain.Event {
	t.Helper()
	ctx := context.Background()
	threshold := 0.5
	ev, err := f.lifecycle.CreateEvent(ctx, organizer, domain.NewEventInput{
		Title:               "Team dinner",
		ScheduledAt:         baseTime.Add(7 * 24 * time.Hour),
		ExpectedAttendees:   capacity,
		AcceptanceThreshold: &threshold,
	})
	require.NoError(t, err)
	res, err := f.lifecycle.Publish(ctx, ev.ID, organizer)
	require.NoError(t, err)
	return res.Event
}

type call struct {
	method string
	target string
	body   any
	userID string
	path   map[string]string
}

func serve(t *testing.T, handler http.HandlerFunc, c call) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader = http.NoBody
	switch b := c.body.(type) {
	case nil:
	case string:
		body = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(c.method, "http://test"+c.target, body)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.path {
		req.SetPathValue(k, v)
	}
	if c.userID != "" {
		req = req.WithContext(middleware.SetUserID(req.Context(), c.userID))
	}
	rr := httptest.NewRecorder()
	handler(rr, req)
	return rr
}

// decodeData unmarshals the data field of a success envelope.
func decodeData[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var envelope struct {
		Data  T                 `json:"data"`
		Error *helpers.APIError `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&envelope))
	require.Nil(t, envelope.Error)
	return envelope.Data
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope helpers.APIResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&envelope))
	require.NotNil(t, envelope.Error)
	return envelope.Error.Code
}
