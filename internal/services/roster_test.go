package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"gatherplan/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRosterService_Invite(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ev := h.newEvent(t, 10, 0.7)

	created, err := h.roster.Invite(ctx, ev.ID, organizer, []string{"a", "b", "a", " "})
	require.NoError(t, err)
	assert.Len(t, created, 2)

	created, err = h.roster.Invite(ctx, ev.ID, organizer, []string{"b", "c"})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "c", created[0].UserID)

	_, err = h.roster.Invite(ctx, ev.ID, "a", []string{"d"})
	require.ErrorIs(t, err, domain.ErrForbidden)

	_, err = h.roster.Invite(ctx, ev.ID, organizer, nil)
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	counts, err := h.roster.Counts(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RosterCounts{Invited: 3}, counts)
	assert.Equal(t, 2, countType(t, h.store, ev.ID, domain.ParticipantsInvited))
}

func TestRosterService_Respond(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		setup   func(t *testing.T, h *harness, eventID string)
		user    string
		accept  bool
		wantErr error
		want    domain.InvitationStatus
		applied bool
	}{
		{
			name:    "accept",
			user:    "a",
			accept:  true,
			want:    domain.InvitationAccepted,
			applied: true,
		},
		{
			name:    "decline",
			user:    "a",
			accept:  false,
			want:    domain.InvitationDeclined,
			applied: true,
		},
		{
			name: "declined cannot answer again",
			setup: func(t *testing.T, h *harness, eventID string) {
				_, err := h.roster.Respond(ctx, eventID, "a", false)
				require.NoError(t, err)
			},
			user:    "a",
			accept:  true,
			wantErr: domain.ErrInvalidState,
		},
		{
			name: "accepting twice is a no-op",
			setup: func(t *testing.T, h *harness, eventID string) {
				_, err := h.roster.Respond(ctx, eventID, "a", true)
				require.NoError(t, err)
			},
			user:    "a",
			accept:  true,
			want:    domain.InvitationAccepted,
			applied: false,
		},
		{
			name: "after rsvp deadline",
			setup: func(t *testing.T, h *harness, eventID string) {
				h.clock.Advance(49 * time.Hour)
			},
			user:    "a",
			accept:  true,
			wantErr: domain.ErrInvalidState,
		},
		{
			name: "decline after accept is allowed after the deadline",
			setup: func(t *testing.T, h *harness, eventID string) {
				_, err := h.roster.Respond(ctx, eventID, "a", true)
				require.NoError(t, err)
				h.clock.Advance(49 * time.Hour)
			},
			user:    "a",
			accept:  false,
			want:    domain.InvitationDeclined,
			applied: true,
		},
		{
			name: "full roster puts the acceptor on the waitlist",
			setup: func(t *testing.T, h *harness, eventID string) {
				_, err := h.roster.Respond(ctx, eventID, "b", true)
				require.NoError(t, err)
				_, err = h.roster.Respond(ctx, eventID, "c", true)
				require.NoError(t, err)
			},
			user:    "a",
			accept:  true,
			want:    domain.InvitationWaitlisted,
			applied: true,
		},
		{
			name:    "not a participant",
			user:    "stranger",
			accept:  true,
			wantErr: domain.ErrNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ev := h.newEvent(t, 2, 0.5)
			_, err := h.roster.Invite(ctx, ev.ID, organizer, []string{"a", "b", "c"})
			require.NoError(t, err)
			if tt.setup != nil {
				tt.setup(t, h, ev.ID)
			}
			res, err := h.roster.Respond(ctx, ev.ID, tt.user, tt.accept)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Participant.Status)
			assert.Equal(t, tt.applied, res.Applied)
		})
	}
}

func TestRosterService_RespondOnDraftIsInvalid(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ev, err := h.lifecycle.CreateEvent(ctx, organizer, domain.NewEventInput{Title: "Draft", ScheduledAt: baseTime.Add(time.Hour)})
	require.NoError(t, err)
	_, err = h.roster.Invite(ctx, ev.ID, organizer, []string{"a"})
	require.NoError(t, err)

	_, err = h.roster.Respond(ctx, ev.ID, "a", true)
	require.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestRosterService_AcceptanceRatioIsMonotonic(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ev := h.newEvent(t, 0, 0.7)
	invited := []string{"a", "b", "c", "d", "e"}
	_, err := h.roster.Invite(ctx, ev.ID, organizer, invited)
	require.NoError(t, err)

	prev := -1.0
	for _, u := range invited {
		_, err := h.roster.Respond(ctx, ev.ID, u, true)
		require.NoError(t, err)
		ratio, err := h.roster.AcceptanceRatio(ctx, ev.ID)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, ratio, prev)
		prev = ratio
	}
	assert.Equal(t, 1.0, prev)
}

// An accepted participant declining frees a seat for the earliest waitlisted user.
func TestRosterService_DeclineAfterAcceptPromotesWaitlist(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ev := h.newEvent(t, 2, 0.5)
	h.inviteAndAccept(t, ev.ID, []string{"a", "b"}, []string{"a", "b"})

	first, err := h.waitlist.Join(ctx, ev.ID, "w1")
	require.NoError(t, err)
	h.clock.Advance(time.Minute)
	_, err = h.waitlist.Join(ctx, ev.ID, "w2")
	require.NoError(t, err)

	res, err := h.roster.Respond(ctx, ev.ID, "a", false)
	require.NoError(t, err)
	require.NotNil(t, res.Promoted)
	assert.Equal(t, first.UserID, res.Promoted.UserID)

	participants, err := h.roster.ListParticipants(ctx, ev.ID)
	require.NoError(t, err)
	statuses := map[string]domain.InvitationStatus{}
	for _, p := range participants {
		statuses[p.UserID] = p.Status
	}
	assert.Equal(t, domain.InvitationDeclined, statuses["a"])
	assert.Equal(t, domain.InvitationAccepted, statuses["w1"])
	assert.Equal(t, domain.InvitationWaitlisted, statuses["w2"])
	assert.Equal(t, 1, countType(t, h.store, ev.ID, domain.WaitlistPromoted))
}

func TestRosterService_Remove(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ev := h.newEvent(t, 1, 0.5)
	h.inviteAndAccept(t, ev.ID, []string{"a", "b"}, []string{"a", "b"})

	_, err := h.waitlist.List(ctx, ev.ID)
	require.NoError(t, err)

	require.ErrorIs(t, h.roster.Remove(ctx, ev.ID, "b", "a"), domain.ErrForbidden)
	require.NoError(t, h.roster.Remove(ctx, ev.ID, organizer, "a"))
	require.NoError(t, h.roster.Remove(ctx, ev.ID, organizer, "a"))

	counts, err := h.roster.Counts(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RosterCounts{Accepted: 1, Declined: 1}, counts)

	queue, err := h.waitlist.List(ctx, ev.ID)
	require.NoError(t, err)
	assert.Empty(t, queue)
	assert.Equal(t, 1, countType(t, h.store, ev.ID, domain.ParticipantRemoved))
}

// RSVP and waitlist events are written with the roster change itself.
func TestRosterService_DeclineAfterAcceptRecordsEvents(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ev := h.newEvent(t, 1, 0.5)
	h.inviteAndAccept(t, ev.ID, []string{"a", "b"}, []string{"a", "b"})

	res, err := h.roster.Respond(ctx, ev.ID, "a", false)
	require.NoError(t, err)
	require.NotNil(t, res.Promoted)
	assert.Equal(t, "b", res.Promoted.UserID)

	assert.Equal(t, 1, countType(t, h.store, ev.ID, domain.ParticipantsInvited))
	assert.Equal(t, 3, countType(t, h.store, ev.ID, domain.ParticipantResponded))
	assert.Equal(t, 1, countType(t, h.store, ev.ID, domain.WaitlistPromoted))
}

// failingAnnounce makes every Accept fail while building its domain events.
type failingAnnounce struct {
	domain.ParticipantRepository
}

func (f failingAnnounce) Accept(ctx context.Context, eventID, userID string, capacity int, at time.Time, announce domain.Announce[domain.InvitationStatus]) (domain.InvitationStatus, error) {
	return f.ParticipantRepository.Accept(ctx, eventID, userID, capacity, at, func(domain.InvitationStatus) ([]*domain.DomainEvent, error) {
		return nil, errors.New("outbox unavailable")
	})
}

func TestRosterService_RespondWithoutEventIsNotApplied(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ev := h.newEvent(t, 2, 0.5)
	_, err := h.roster.Invite(ctx, ev.ID, organizer, []string{"a"})
	require.NoError(t, err)

	roster := NewRosterService(h.store.Events(), failingAnnounce{h.store.Participants()}, h.waitlist, h.settings, nil)
	_, err = roster.Respond(ctx, ev.ID, "a", true)
	require.Error(t, err)

	p, err := h.store.Participants().Get(ctx, ev.ID, "a")
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationInvited, p.Status)
	assert.Zero(t, countType(t, h.store, ev.ID, domain.ParticipantResponded))
}

// racingParticipants runs race once, right after the first Get, so the caller holds a stale row.
type racingParticipants struct {
	domain.ParticipantRepository
	race func()
}

func (r *racingParticipants) Get(ctx context.Context, eventID, userID string) (*domain.Participant, error) {
	p, err := r.ParticipantRepository.Get(ctx, eventID, userID)
	if race := r.race; race != nil {
		r.race = nil
		race()
	}
	return p, err
}

func TestRosterService_RemoveRacingResponse(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		accept      bool
		race        func(t *testing.T, h *harness, eventID string)
		wantRemoved int
	}{
		{
			name:   "participant declined first",
			accept: true,
			race: func(t *testing.T, h *harness, eventID string) {
				require.NoError(t, h.store.Participants().UpdateStatus(ctx, eventID, "a",
					domain.InvitationAccepted, domain.InvitationDeclined, baseTime))
			},
			wantRemoved: 0,
		},
		{
			name:   "participant accepted first",
			accept: false,
			race: func(t *testing.T, h *harness, eventID string) {
				_, err := h.store.Participants().Accept(ctx, eventID, "a", 0, baseTime, nil)
				require.NoError(t, err)
			},
			wantRemoved: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ev := h.newEvent(t, 5, 0.5)
			accepting := []string{}
			if tt.accept {
				accepting = append(accepting, "a")
			}
			h.inviteAndAccept(t, ev.ID, []string{"a"}, accepting)

			participants := &racingParticipants{ParticipantRepository: h.store.Participants()}
			participants.race = func() { tt.race(t, h, ev.ID) }
			roster := NewRosterService(h.store.Events(), participants, h.waitlist, h.settings, nil)

			require.NoError(t, roster.Remove(ctx, ev.ID, organizer, "a"))

			p, err := h.store.Participants().Get(ctx, ev.ID, "a")
			require.NoError(t, err)
			assert.Equal(t, domain.InvitationDeclined, p.Status)
			assert.Equal(t, tt.wantRemoved, countType(t, h.store, ev.ID, domain.ParticipantRemoved))
		})
	}
}

// While venues are being scored an invited user's accept on a full event still queues them,
// but nobody can join the waitlist on their own.
func TestRosterService_AcceptWhileRecommendingQueues(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ev := h.newEvent(t, 1, 0.5)
	h.inviteAndAccept(t, ev.ID, []string{"a", "b"}, []string{"a"})
	_, err := h.lifecycle.CheckAcceptance(ctx, ev.ID)
	require.NoError(t, err)
	_, err = h.registry.AddOption(ctx, ev.ID, domain.VenueOptionInput{
		Source: domain.VenueSource{Kind: domain.VenueSourceInternal, PlaceID: "place-1"},
	})
	require.NoError(t, err)
	started, err := h.lifecycle.StartRecommendation(ctx, ev.ID, organizer)
	require.NoError(t, err)
	require.Equal(t, domain.StatusAIRecommending, started.Event.Status)

	res, err := h.roster.Respond(ctx, ev.ID, "b", true)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, domain.InvitationWaitlisted, res.Participant.Status)

	_, err = h.waitlist.Join(ctx, ev.ID, "stranger")
	require.ErrorIs(t, err, domain.ErrInvalidState)
}
