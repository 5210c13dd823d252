package postgres

import (
	"context"
	"testing"

	"gatherplan/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func venueOptionRows() *sqlmock.Rows {
	return sqlmock.NewRows(columnNames(venueOptionColumns))
}

func TestVenueOptionRepository_Add(t *testing.T) {
	ctx := context.Background()
	opt := &domain.VenueOption{
		ID:        "opt-2",
		EventID:   "ev-1",
		Source:    domain.VenueSource{Kind: domain.VenueSourceExternal, Provider: "osm", ExternalPlaceID: "node/42"},
		Snapshot:  &domain.VenueSnapshot{Name: "Trattoria"},
		CreatedAt: baseTime,
	}

	t.Run("new source", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(`INSERT INTO venue_options .+ ON CONFLICT \(event_id, dedup_key\) DO NOTHING`).
			WithArgs("opt-2", "ev-1", "external", "", "osm", "node/42", "external:osm:node/42",
				[]byte(`{"name":"Trattoria"}`), nil, nil, baseTime).
			WillReturnRows(venueOptionRows().AddRow("opt-2", "ev-1", "external", "", "osm", "node/42",
				[]byte(`{"name":"Trattoria"}`), nil, nil, nil, "", "{}", "{}", baseTime, 1))

		stored, created, err := NewVenueOptionRepository(db).Add(ctx, opt)
		require.NoError(t, err)
		require.True(t, created)
		require.Equal(t, "Trattoria", stored.Snapshot.Name)
		require.Nil(t, stored.AIScore)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate source returns the stored option", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(`INSERT INTO venue_options`).WillReturnRows(venueOptionRows())
		mock.ExpectQuery(`FROM venue_options WHERE event_id = \$1 AND dedup_key = \$2`).
			WithArgs("ev-1", "external:osm:node/42").
			WillReturnRows(venueOptionRows().AddRow("opt-1", "ev-1", "external", "", "osm", "node/42",
				nil, 800, 600, 72.5, "close by", "{cheap,quiet}", "{}", baseTime, 1))

		stored, created, err := NewVenueOptionRepository(db).Add(ctx, opt)
		require.NoError(t, err)
		require.False(t, created)
		require.Equal(t, "opt-1", stored.ID)
		require.Equal(t, 800, *stored.DistanceMeters)
		require.Equal(t, 72.5, *stored.AIScore)
		require.Equal(t, []string{"cheap", "quiet"}, stored.Pros)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestVenueOptionRepository_SetAIScore(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown option", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(`UPDATE venue_options`).WillReturnRows(venueOptionRows())

		_, err = NewVenueOptionRepository(db).SetAIScore(ctx, "nope", domain.AIScoreUpdate{Score: 50})
		require.ErrorIs(t, err, domain.ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("scored", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(`UPDATE venue_options\s+SET ai_score = \$2`).
			WithArgs("opt-1", 88.0, "fits the budget", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(venueOptionRows().AddRow("opt-1", "ev-1", "internal", "place-1", "", "",
				nil, nil, nil, 88.0, "fits the budget", "{}", "{}", baseTime, 1))

		o, err := NewVenueOptionRepository(db).SetAIScore(ctx, "opt-1", domain.AIScoreUpdate{Score: 88, Reasoning: "fits the budget"})
		require.NoError(t, err)
		require.Equal(t, 88.0, *o.AIScore)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
