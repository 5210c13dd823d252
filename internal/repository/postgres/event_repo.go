package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gatherplan/internal/domain"
)

const eventColumns = `id, organizer_id, title, description, scheduled_at, timezone, duration_minutes,
	expected_attendees, acceptance_threshold, budget_total, budget_per_person, status, privacy,
	rsvp_deadline, preference_deadline, recommendation_deadline, voting_deadline,
	final_venue_option_id, cancellation_reason, recurring_series_id, version,
	created_at, updated_at, confirmed_at, completed_at, cancelled_at`

// deadlineExpr maps a sweeper deadline to its SQL expression.
var deadlineExpr = map[domain.Deadline]string{
	domain.DeadlineRSVP:           "rsvp_deadline",
	domain.DeadlinePreference:     "preference_deadline",
	domain.DeadlineRecommendation: "recommendation_deadline",
	domain.DeadlineVoting:         "voting_deadline",
	domain.DeadlineScheduledEnd:   "scheduled_at + make_interval(mins => duration_minutes)",
}

type eventRepository struct {
	DB *sql.DB
}

func NewEventRepository(db *sql.DB) domain.EventRepository {
	return &eventRepository{
		DB: db,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*domain.Event, error) {
	e := &domain.Event{}
	var (
		budgetTotal, budgetPerPerson             sql.NullFloat64
		rsvp, preference, recommendation, voting sql.NullTime
		finalVenue, seriesID                     sql.NullString
		confirmedAt, completedAt, cancelledAt    sql.NullTime
	)
	err := row.Scan(
		&e.ID, &e.OrganizerID, &e.Title, &e.Description, &e.ScheduledAt, &e.Timezone, &e.DurationMinutes,
		&e.ExpectedAttendees, &e.AcceptanceThreshold, &budgetTotal, &budgetPerPerson, &e.Status, &e.Privacy,
		&rsvp, &preference, &recommendation, &voting,
		&finalVenue, &e.CancellationReason, &seriesID, &e.Version,
		&e.CreatedAt, &e.UpdatedAt, &confirmedAt, &completedAt, &cancelledAt,
	)
	if err != nil {
		return nil, err
	}
	e.BudgetTotal = floatPtr(budgetTotal)
	e.BudgetPerPerson = floatPtr(budgetPerPerson)
	e.RSVPDeadline = timePtr(rsvp)
	e.PreferenceDeadline = timePtr(preference)
	e.RecommendationDeadline = timePtr(recommendation)
	e.VotingDeadline = timePtr(voting)
	e.FinalVenueOptionID = stringPtr(finalVenue)
	e.RecurringSeriesID = stringPtr(seriesID)
	e.ConfirmedAt = timePtr(confirmedAt)
	e.CompletedAt = timePtr(completedAt)
	e.CancelledAt = timePtr(cancelledAt)
	return e, nil
}

func (r *eventRepository) Create(ctx context.Context, e *domain.Event, events []*domain.DomainEvent) error {
	query := `
		INSERT INTO events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)
	`
	return withTx(ctx, r.DB, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query,
			e.ID, e.OrganizerID, e.Title, e.Description, e.ScheduledAt, e.Timezone, e.DurationMinutes,
			e.ExpectedAttendees, e.AcceptanceThreshold, nullFloat(e.BudgetTotal), nullFloat(e.BudgetPerPerson), e.Status, e.Privacy,
			nullTime(e.RSVPDeadline), nullTime(e.PreferenceDeadline), nullTime(e.RecommendationDeadline), nullTime(e.VotingDeadline),
			nullString(e.FinalVenueOptionID), e.CancellationReason, nullString(e.RecurringSeriesID), e.Version,
			e.CreatedAt, e.UpdatedAt, nullTime(e.ConfirmedAt), nullTime(e.CompletedAt), nullTime(e.CancelledAt),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrConflict
			}
			return err
		}
		return insertDomainEvents(ctx, tx, events)
	})
}

func (r *eventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	e, err := scanEvent(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

func (r *eventRepository) ListByOrganizer(ctx context.Context, organizerID string, params domain.PaginationParams) ([]*domain.Event, int, error) {
	params = params.Normalize()
	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE organizer_id = $1`, organizerID).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `
		SELECT ` + eventColumns + `
		FROM events
		WHERE organizer_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`
	rows, err := r.DB.QueryContext(ctx, query, organizerID, params.PageSize, params.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	events := make([]*domain.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, e)
	}
	return events, total, rows.Err()
}

// ApplyTransition writes the transitioned event if its version is still ExpectedVersion and appends
// the transition's domain events in the same transaction.
func (r *eventRepository) ApplyTransition(ctx context.Context, t *domain.StatusTransition) error {
	query := `
		UPDATE events SET
			status = $3,
			preference_deadline = $4,
			recommendation_deadline = $5,
			voting_deadline = $6,
			final_venue_option_id = $7,
			cancellation_reason = $8,
			updated_at = $9,
			confirmed_at = $10,
			completed_at = $11,
			cancelled_at = $12,
			version = version + 1
		WHERE id = $1 AND version = $2
	`
	e := t.Event
	err := withTx(ctx, r.DB, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query,
			e.ID, t.ExpectedVersion, e.Status,
			nullTime(e.PreferenceDeadline), nullTime(e.RecommendationDeadline), nullTime(e.VotingDeadline),
			nullString(e.FinalVenueOptionID), e.CancellationReason, e.UpdatedAt,
			nullTime(e.ConfirmedAt), nullTime(e.CompletedAt), nullTime(e.CancelledAt),
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			var exists bool
			if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`, e.ID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return domain.ErrNotFound
			}
			return domain.ErrConflict
		}
		return insertDomainEvents(ctx, tx, t.Events)
	})
	if err != nil {
		return err
	}
	e.Version = t.ExpectedVersion + 1
	return nil
}

func (r *eventRepository) ListDue(ctx context.Context, q domain.DueQuery) ([]*domain.Event, error) {
	expr, ok := deadlineExpr[q.Deadline]
	if !ok {
		return nil, fmt.Errorf("unknown deadline %q", q.Deadline)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = domain.MaxPageSize
	}
	query := fmt.Sprintf(`
		SELECT %s
		FROM events
		WHERE status = $1 AND %s IS NOT NULL AND %s <= $2
		ORDER BY %s, id
		LIMIT $3
	`, eventColumns, expr, expr, expr)
	rows, err := r.DB.QueryContext(ctx, query, q.Status, q.Before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	events := make([]*domain.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
