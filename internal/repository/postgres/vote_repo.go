package postgres

import (
	"context"
	"database/sql"

	"gatherplan/internal/domain"
)

type voteRepository struct {
	DB *sql.DB
}

func NewVoteRepository(db *sql.DB) domain.VoteRepository {
	return &voteRepository{
		DB: db,
	}
}

// Upsert keeps the original created_at of a re-cast vote and writes it back into v.
func (r *voteRepository) Upsert(ctx context.Context, v *domain.Vote) error {
	query := `
		INSERT INTO votes (event_id, option_id, voter_id, value, comment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (option_id, voter_id) DO UPDATE
		SET value = EXCLUDED.value, comment = EXCLUDED.comment, updated_at = EXCLUDED.updated_at
		RETURNING created_at
	`
	return r.DB.QueryRowContext(ctx, query,
		v.EventID, v.OptionID, v.VoterID, v.Value, v.Comment, v.CreatedAt, v.UpdatedAt,
	).Scan(&v.CreatedAt)
}

func (r *voteRepository) ListByEvent(ctx context.Context, eventID string) ([]*domain.Vote, error) {
	query := `
		SELECT event_id, option_id, voter_id, value, comment, created_at, updated_at
		FROM votes
		WHERE event_id = $1
		ORDER BY created_at, option_id, voter_id
	`
	rows, err := r.DB.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*domain.Vote, 0)
	for rows.Next() {
		v := &domain.Vote{}
		if err := rows.Scan(&v.EventID, &v.OptionID, &v.VoterID, &v.Value, &v.Comment, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
