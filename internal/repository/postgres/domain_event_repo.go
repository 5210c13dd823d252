package postgres

import (
	"context"
	"database/sql"
	"time"

	"gatherplan/internal/domain"
)

const domainEventColumns = `id, event_id, type, key, actor_id, payload, occurred_at, delivered_at, attempts, last_error`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// insertDomainEvents appends events, skipping keys that are already stored.
func insertDomainEvents(ctx context.Context, db execer, events []*domain.DomainEvent) error {
	query := `
		INSERT INTO domain_events (id, event_id, type, key, actor_id, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (key) DO NOTHING
	`
	for _, ev := range events {
		if _, err := db.ExecContext(ctx, query,
			ev.ID, ev.EventID, ev.Type, ev.Key, ev.ActorID, []byte(ev.Payload), ev.OccurredAt,
		); err != nil {
			return err
		}
	}
	return nil
}

type domainEventRepository struct {
	DB *sql.DB
}

func NewDomainEventRepository(db *sql.DB) domain.DomainEventRepository {
	return &domainEventRepository{
		DB: db,
	}
}

func scanDomainEvent(row rowScanner) (*domain.DomainEvent, error) {
	ev := &domain.DomainEvent{}
	var (
		payload   []byte
		delivered sql.NullTime
	)
	if err := row.Scan(&ev.ID, &ev.EventID, &ev.Type, &ev.Key, &ev.ActorID, &payload, &ev.OccurredAt,
		&delivered, &ev.Attempts, &ev.LastError); err != nil {
		return nil, err
	}
	ev.Payload = payload
	ev.DeliveredAt = timePtr(delivered)
	return ev, nil
}

func (r *domainEventRepository) Append(ctx context.Context, events ...*domain.DomainEvent) error {
	return insertDomainEvents(ctx, r.DB, events)
}

func (r *domainEventRepository) ListUndelivered(ctx context.Context, limit, maxAttempts int) ([]*domain.DomainEvent, error) {
	query := `
		SELECT ` + domainEventColumns + `
		FROM domain_events
		WHERE delivered_at IS NULL AND ($2 <= 0 OR attempts < $2)
		ORDER BY seq
		LIMIT $1
	`
	if limit <= 0 {
		limit = domain.MaxPageSize
	}
	return r.list(ctx, query, limit, maxAttempts)
}

func (r *domainEventRepository) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE domain_events
		SET delivered_at = $2, attempts = attempts + 1, last_error = ''
		WHERE id = $1
	`
	return r.update(ctx, query, id, at)
}

func (r *domainEventRepository) MarkFailed(ctx context.Context, id, lastError string) error {
	query := `
		UPDATE domain_events
		SET attempts = attempts + 1, last_error = $2
		WHERE id = $1
	`
	return r.update(ctx, query, id, lastError)
}

func (r *domainEventRepository) ListByEvent(ctx context.Context, eventID string) ([]*domain.DomainEvent, error) {
	query := `
		SELECT ` + domainEventColumns + `
		FROM domain_events
		WHERE event_id = $1
		ORDER BY seq
	`
	return r.list(ctx, query, eventID)
}

func (r *domainEventRepository) update(ctx context.Context, query string, args ...any) error {
	result, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *domainEventRepository) list(ctx context.Context, query string, args ...any) ([]*domain.DomainEvent, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*domain.DomainEvent, 0)
	for rows.Next() {
		ev, err := scanDomainEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
