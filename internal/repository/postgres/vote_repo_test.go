package postgres

import (
	"context"
	"testing"
	"time"

	"gatherplan/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestVoteRepository_UpsertKeepsCreatedAt(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	firstCast := baseTime.Add(-time.Hour)
	mock.ExpectQuery(`INSERT INTO votes .+ ON CONFLICT \(option_id, voter_id\) DO UPDATE`).
		WithArgs("ev-1", "opt-1", "u-1", 4, "", baseTime, baseTime).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(firstCast))

	v := &domain.Vote{EventID: "ev-1", OptionID: "opt-1", VoterID: "u-1", Value: 4, CreatedAt: baseTime, UpdatedAt: baseTime}
	require.NoError(t, NewVoteRepository(db).Upsert(context.Background(), v))
	require.Equal(t, firstCast, v.CreatedAt)
	require.Equal(t, baseTime, v.UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}
