package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"gatherplan/internal/domain"

	"github.com/lib/pq"
)

const venueOptionColumns = `id, event_id, source_kind, place_id, provider, external_place_id, snapshot,
	distance_meters, duration_seconds, ai_score, ai_reasoning, pros, cons, created_at, seq`

type venueOptionRepository struct {
	DB *sql.DB
}

func NewVenueOptionRepository(db *sql.DB) domain.VenueOptionRepository {
	return &venueOptionRepository{
		DB: db,
	}
}

func scanVenueOption(row rowScanner) (*domain.VenueOption, error) {
	o := &domain.VenueOption{}
	var (
		snapshot         []byte
		distance, travel sql.NullInt64
		score            sql.NullFloat64
		pros, cons       pq.StringArray
	)
	err := row.Scan(&o.ID, &o.EventID, &o.Source.Kind, &o.Source.PlaceID, &o.Source.Provider, &o.Source.ExternalPlaceID,
		&snapshot, &distance, &travel, &score, &o.AIReasoning, &pros, &cons, &o.CreatedAt, &o.Seq)
	if err != nil {
		return nil, err
	}
	if len(snapshot) > 0 {
		o.Snapshot = &domain.VenueSnapshot{}
		if err := json.Unmarshal(snapshot, o.Snapshot); err != nil {
			return nil, fmt.Errorf("decode snapshot of option %s: %w", o.ID, err)
		}
	}
	o.DistanceMeters = intPtr(distance)
	o.DurationSeconds = intPtr(travel)
	o.AIScore = floatPtr(score)
	o.Pros = pros
	o.Cons = cons
	return o, nil
}

// Add inserts opt unless the event already holds an option with the same source, in which case
// the stored option is returned with created=false.
func (r *venueOptionRepository) Add(ctx context.Context, opt *domain.VenueOption) (*domain.VenueOption, bool, error) {
	var snapshot []byte
	if opt.Snapshot != nil {
		raw, err := json.Marshal(opt.Snapshot)
		if err != nil {
			return nil, false, fmt.Errorf("encode snapshot: %w", err)
		}
		snapshot = raw
	}
	query := `
		INSERT INTO venue_options (id, event_id, source_kind, place_id, provider, external_place_id, dedup_key,
			snapshot, distance_meters, duration_seconds, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (event_id, dedup_key) DO NOTHING
		RETURNING ` + venueOptionColumns
	stored, err := scanVenueOption(r.DB.QueryRowContext(ctx, query,
		opt.ID, opt.EventID, opt.Source.Kind, opt.Source.PlaceID, opt.Source.Provider, opt.Source.ExternalPlaceID,
		opt.Source.DedupKey(), snapshot, nullInt(opt.DistanceMeters), nullInt(opt.DurationSeconds), opt.CreatedAt,
	))
	if err == nil {
		return stored, true, nil
	}
	if isUniqueViolation(err) {
		return nil, false, domain.ErrConflict
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, err
	}
	existing, err := scanVenueOption(r.DB.QueryRowContext(ctx,
		`SELECT `+venueOptionColumns+` FROM venue_options WHERE event_id = $1 AND dedup_key = $2`,
		opt.EventID, opt.Source.DedupKey(),
	))
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *venueOptionRepository) GetByID(ctx context.Context, id string) (*domain.VenueOption, error) {
	o, err := scanVenueOption(r.DB.QueryRowContext(ctx, `SELECT `+venueOptionColumns+` FROM venue_options WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return o, nil
}

func (r *venueOptionRepository) ListByEvent(ctx context.Context, eventID string) ([]*domain.VenueOption, error) {
	query := `
		SELECT ` + venueOptionColumns + `
		FROM venue_options
		WHERE event_id = $1
		ORDER BY ai_score DESC NULLS LAST, created_at, seq, id
	`
	rows, err := r.DB.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*domain.VenueOption, 0)
	for rows.Next() {
		o, err := scanVenueOption(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *venueOptionRepository) SetAIScore(ctx context.Context, id string, u domain.AIScoreUpdate) (*domain.VenueOption, error) {
	query := `
		UPDATE venue_options
		SET ai_score = $2, ai_reasoning = $3, pros = $4, cons = $5
		WHERE id = $1
		RETURNING ` + venueOptionColumns
	o, err := scanVenueOption(r.DB.QueryRowContext(ctx, query, id, u.Score, u.Reasoning, pq.Array(nonNil(u.Pros)), pq.Array(nonNil(u.Cons))))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return o, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
