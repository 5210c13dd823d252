package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"gatherplan/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func weeklySeries(next time.Time, lead time.Duration) *domain.RecurringSeries {
	return &domain.RecurringSeries{
		OrganizerID:       organizer,
		Title:             "Friday lunch",
		Timezone:          "UTC",
		Frequency:         domain.FrequencyWeekly,
		Interval:          1,
		NextOccurrence:    next,
		LeadTime:          lead,
		RSVPOffset:        24 * time.Hour,
		ExpectedAttendees: 6,
	}
}

func TestRecurringExpander_CreateSeries(t *testing.T) {
	h := newHarness(t)
	exp := NewRecurringExpander(h.store.RecurringSeries(), h.lifecycle, h.settings, nil)
	ctx := context.Background()

	s, err := exp.CreateSeries(ctx, weeklySeries(baseTime.Add(72*time.Hour), 7*24*time.Hour))
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.True(t, s.Active)
	assert.Equal(t, domain.DefaultAcceptanceThreshold, s.AcceptanceThreshold)
	assert.Equal(t, domain.PrivacyPublic, s.Privacy)

	bad := weeklySeries(baseTime, 0)
	bad.Frequency = "daily"
	_, err = exp.CreateSeries(ctx, bad)
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	noTitle := weeklySeries(baseTime, 0)
	noTitle.Title = " "
	_, err = exp.CreateSeries(ctx, noTitle)
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRecurringExpander_ExpandDue(t *testing.T) {
	ctx := context.Background()

	t.Run("creates one draft per occurrence", func(t *testing.T) {
		h := newHarness(t)
		exp := NewRecurringExpander(h.store.RecurringSeries(), h.lifecycle, h.settings, nil)
		occurrence := baseTime.Add(72 * time.Hour)
		s, err := exp.CreateSeries(ctx, weeklySeries(occurrence, 7*24*time.Hour))
		require.NoError(t, err)

		created, err := exp.ExpandDue(ctx, baseTime, 10)
		require.NoError(t, err)
		require.Len(t, created, 1)
		ev := created[0]
		assert.Equal(t, domain.StatusDraft, ev.Status)
		assert.Equal(t, occurrence, ev.ScheduledAt)
		require.NotNil(t, ev.RSVPDeadline)
		assert.Equal(t, occurrence.Add(-24*time.Hour), *ev.RSVPDeadline)
		require.NotNil(t, ev.RecurringSeriesID)
		assert.Equal(t, s.ID, *ev.RecurringSeriesID)

		stored, err := h.store.RecurringSeries().GetByID(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, occurrence.Add(7*24*time.Hour), stored.NextOccurrence)

		created, err = exp.ExpandDue(ctx, baseTime, 10)
		require.NoError(t, err)
		assert.Empty(t, created)
	})

	t.Run("past occurrences are skipped", func(t *testing.T) {
		h := newHarness(t)
		exp := NewRecurringExpander(h.store.RecurringSeries(), h.lifecycle, h.settings, nil)
		s, err := exp.CreateSeries(ctx, weeklySeries(baseTime.Add(-24*time.Hour), 0))
		require.NoError(t, err)

		created, err := exp.ExpandDue(ctx, baseTime, 10)
		require.NoError(t, err)
		assert.Empty(t, created)

		stored, err := h.store.RecurringSeries().GetByID(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, baseTime.Add(6*24*time.Hour), stored.NextOccurrence)
	})

	t.Run("series ends after until", func(t *testing.T) {
		h := newHarness(t)
		exp := NewRecurringExpander(h.store.RecurringSeries(), h.lifecycle, h.settings, nil)
		occurrence := baseTime.Add(72 * time.Hour)
		in := weeklySeries(occurrence, 7*24*time.Hour)
		in.Until = &occurrence
		s, err := exp.CreateSeries(ctx, in)
		require.NoError(t, err)

		created, err := exp.ExpandDue(ctx, baseTime, 10)
		require.NoError(t, err)
		require.Len(t, created, 1)

		stored, err := h.store.RecurringSeries().GetByID(ctx, s.ID)
		require.NoError(t, err)
		assert.False(t, stored.Active)
	})

	t.Run("concurrent expanders create the occurrence once", func(t *testing.T) {
		h := newHarness(t)
		exp := NewRecurringExpander(h.store.RecurringSeries(), h.lifecycle, h.settings, nil)
		_, err := exp.CreateSeries(ctx, weeklySeries(baseTime.Add(72*time.Hour), 7*24*time.Hour))
		require.NoError(t, err)

		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			total int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				created, err := exp.ExpandDue(ctx, baseTime, 10)
				assert.NoError(t, err)
				mu.Lock()
				total += len(created)
				mu.Unlock()
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, total)
	})
}
