package postgres

import (
	"context"
	"errors"
	"testing"

	"gatherplan/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreferenceRepository_Upsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	budget := 40.0
	mock.ExpectExec(`INSERT INTO preferences .* ON CONFLICT \(event_id, user_id\) DO UPDATE`).
		WithArgs("ev-1", "u-1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "no stairs", baseTime).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewPreferenceRepository(db).Upsert(context.Background(), &domain.Preference{
		EventID:            "ev-1",
		UserID:             "u-1",
		Cuisines:           []string{"thai"},
		MaxBudgetPerPerson: &budget,
		Notes:              "no stairs",
		UpdatedAt:          baseTime,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPreferenceRepository_ListByEvent(t *testing.T) {
	cols := []string{"event_id", "user_id", "cuisines", "max_budget_per_person", "max_distance_km", "notes", "updated_at"}

	tests := []struct {
		name    string
		mock    func(mock sqlmock.Sqlmock)
		want    int
		wantErr bool
	}{
		{
			name: "rows with and without limits",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`FROM preferences\s+WHERE event_id = \$1`).WithArgs("ev-1").
					WillReturnRows(sqlmock.NewRows(cols).
						AddRow("ev-1", "u-1", "{thai,sushi}", 35.5, nil, "", baseTime).
						AddRow("ev-1", "u-2", "{}", nil, 3.0, "vegan", baseTime))
			},
			want: 2,
		},
		{
			name: "query error",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`FROM preferences`).WillReturnError(errors.New("connection reset"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			tt.mock(mock)
			got, err := NewPreferenceRepository(db).ListByEvent(context.Background(), "ev-1")
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, got, tt.want)
			assert.Equal(t, []string{"thai", "sushi"}, got[0].Cuisines)
			require.NotNil(t, got[0].MaxBudgetPerPerson)
			assert.InDelta(t, 35.5, *got[0].MaxBudgetPerPerson, 1e-9)
			assert.Nil(t, got[0].MaxDistanceKm)
			assert.Empty(t, got[1].Cuisines)
			require.NotNil(t, got[1].MaxDistanceKm)
			assert.Equal(t, "vegan", got[1].Notes)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
