package postgres

import (
	"context"
	"database/sql"

	"gatherplan/internal/domain"

	"github.com/lib/pq"
)

type preferenceRepository struct {
	DB *sql.DB
}

func NewPreferenceRepository(db *sql.DB) domain.PreferenceRepository {
	return &preferenceRepository{
		DB: db,
	}
}

func (r *preferenceRepository) Upsert(ctx context.Context, p *domain.Preference) error {
	query := `
		INSERT INTO preferences (event_id, user_id, cuisines, max_budget_per_person, max_distance_km, notes, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (event_id, user_id) DO UPDATE
		SET cuisines = EXCLUDED.cuisines,
			max_budget_per_person = EXCLUDED.max_budget_per_person,
			max_distance_km = EXCLUDED.max_distance_km,
			notes = EXCLUDED.notes,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.DB.ExecContext(ctx, query,
		p.EventID, p.UserID, pq.Array(nonNil(p.Cuisines)),
		nullFloat(p.MaxBudgetPerPerson), nullFloat(p.MaxDistanceKm), p.Notes, p.UpdatedAt,
	)
	return err
}

func (r *preferenceRepository) ListByEvent(ctx context.Context, eventID string) ([]*domain.Preference, error) {
	query := `
		SELECT event_id, user_id, cuisines, max_budget_per_person, max_distance_km, notes, updated_at
		FROM preferences
		WHERE event_id = $1
		ORDER BY user_id
	`
	rows, err := r.DB.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*domain.Preference, 0)
	for rows.Next() {
		p := &domain.Preference{}
		var (
			cuisines         pq.StringArray
			budget, distance sql.NullFloat64
		)
		if err := rows.Scan(&p.EventID, &p.UserID, &cuisines, &budget, &distance, &p.Notes, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Cuisines = cuisines
		p.MaxBudgetPerPerson = floatPtr(budget)
		p.MaxDistanceKm = floatPtr(distance)
		out = append(out, p)
	}
	return out, rows.Err()
}
