package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"gatherplan/internal/domain"
)

const seriesColumns = `id, organizer_id, title, description, timezone, frequency, interval_count, next_occurrence,
	until, lead_time_seconds, rsvp_offset_seconds, duration_minutes, expected_attendees, acceptance_threshold,
	privacy, active, created_at`

type recurringSeriesRepository struct {
	DB *sql.DB
}

func NewRecurringSeriesRepository(db *sql.DB) domain.RecurringSeriesRepository {
	return &recurringSeriesRepository{
		DB: db,
	}
}

func scanSeries(row rowScanner) (*domain.RecurringSeries, error) {
	s := &domain.RecurringSeries{}
	var (
		until             sql.NullTime
		leadTime, rsvpOff int64
	)
	err := row.Scan(&s.ID, &s.OrganizerID, &s.Title, &s.Description, &s.Timezone, &s.Frequency, &s.Interval,
		&s.NextOccurrence, &until, &leadTime, &rsvpOff, &s.DurationMinutes, &s.ExpectedAttendees,
		&s.AcceptanceThreshold, &s.Privacy, &s.Active, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	s.Until = timePtr(until)
	s.LeadTime = time.Duration(leadTime) * time.Second
	s.RSVPOffset = time.Duration(rsvpOff) * time.Second
	return s, nil
}

func (r *recurringSeriesRepository) Create(ctx context.Context, s *domain.RecurringSeries) error {
	query := `
		INSERT INTO recurring_series (` + seriesColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err := r.DB.ExecContext(ctx, query,
		s.ID, s.OrganizerID, s.Title, s.Description, s.Timezone, s.Frequency, s.Interval, s.NextOccurrence,
		nullTime(s.Until), int64(s.LeadTime/time.Second), int64(s.RSVPOffset/time.Second), s.DurationMinutes,
		s.ExpectedAttendees, s.AcceptanceThreshold, s.Privacy, s.Active, s.CreatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrConflict
	}
	return err
}

func (r *recurringSeriesRepository) GetByID(ctx context.Context, id string) (*domain.RecurringSeries, error) {
	s, err := scanSeries(r.DB.QueryRowContext(ctx, `SELECT `+seriesColumns+` FROM recurring_series WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return s, nil
}

func (r *recurringSeriesRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.RecurringSeries, error) {
	if limit <= 0 {
		limit = domain.MaxPageSize
	}
	query := `
		SELECT ` + seriesColumns + `
		FROM recurring_series
		WHERE active
			AND next_occurrence - make_interval(secs => lead_time_seconds) <= $1
			AND (until IS NULL OR next_occurrence <= until)
		ORDER BY next_occurrence, id
		LIMIT $2
	`
	rows, err := r.DB.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*domain.RecurringSeries, 0)
	for rows.Next() {
		s, err := scanSeries(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *recurringSeriesRepository) Advance(ctx context.Context, id string, expectedNext, next time.Time, active bool) error {
	query := `
		UPDATE recurring_series
		SET next_occurrence = $3, active = $4
		WHERE id = $1 AND next_occurrence = $2
	`
	result, err := r.DB.ExecContext(ctx, query, id, expectedNext, next, active)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		return nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return domain.ErrConflict
}
