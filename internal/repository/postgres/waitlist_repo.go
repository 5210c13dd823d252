package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"gatherplan/internal/domain"
)

type waitlistRepository struct {
	DB *sql.DB
}

func NewWaitlistRepository(db *sql.DB) domain.WaitlistRepository {
	return &waitlistRepository{
		DB: db,
	}
}

// enqueue inserts a waitlist entry unless the user is already queued, in which case the existing
// entry is returned with created=false.
func enqueue(ctx context.Context, tx *sql.Tx, eventID, userID string, at time.Time) (*domain.WaitlistEntry, bool, error) {
	e := &domain.WaitlistEntry{EventID: eventID, UserID: userID}
	err := tx.QueryRowContext(ctx, `
		INSERT INTO waitlist_entries (event_id, user_id, joined_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id, user_id) DO NOTHING
		RETURNING joined_at, seq
	`, eventID, userID, at).Scan(&e.JoinedAt, &e.Seq)
	if err == nil {
		return e, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, err
	}
	err = tx.QueryRowContext(ctx,
		`SELECT joined_at, seq FROM waitlist_entries WHERE event_id = $1 AND user_id = $2`,
		eventID, userID,
	).Scan(&e.JoinedAt, &e.Seq)
	if err != nil {
		return nil, false, err
	}
	return e, false, nil
}

func (r *waitlistRepository) Join(ctx context.Context, eventID, userID string, at time.Time, events ...*domain.DomainEvent) (*domain.WaitlistEntry, bool, error) {
	var (
		entry   *domain.WaitlistEntry
		created bool
	)
	err := withTx(ctx, r.DB, func(tx *sql.Tx) error {
		if err := lockEvent(ctx, tx, eventID); err != nil {
			return err
		}
		var status domain.InvitationStatus
		err := tx.QueryRowContext(ctx,
			`SELECT status FROM participants WHERE event_id = $1 AND user_id = $2 FOR UPDATE`,
			eventID, userID,
		).Scan(&status)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO participants (event_id, user_id, status, invited_at, updated_at)
				VALUES ($1, $2, 'waitlisted', $3, $3)
			`, eventID, userID, at); err != nil {
				return err
			}
		case err != nil:
			return err
		case status == domain.InvitationInvited || status == domain.InvitationWaitlisted:
			if _, err := tx.ExecContext(ctx,
				`UPDATE participants SET status = 'waitlisted', updated_at = $3 WHERE event_id = $1 AND user_id = $2`,
				eventID, userID, at,
			); err != nil {
				return err
			}
		default:
			return domain.ErrConflict
		}
		entry, created, err = enqueue(ctx, tx, eventID, userID, at)
		if err != nil || !created {
			return err
		}
		return insertDomainEvents(ctx, tx, events)
	})
	if err != nil {
		return nil, false, err
	}
	return entry, created, nil
}

// PromoteNext pops queue heads in (joined_at, seq) order until one still waitlisted participant is
// accepted, or the roster is full, or the queue is empty.
func (r *waitlistRepository) PromoteNext(ctx context.Context, eventID string, capacity int, at time.Time, announce domain.Announce[*domain.WaitlistEntry]) (*domain.WaitlistEntry, error) {
	var promoted *domain.WaitlistEntry
	err := withTx(ctx, r.DB, func(tx *sql.Tx) error {
		if err := lockEvent(ctx, tx, eventID); err != nil {
			return err
		}
		for {
			full, err := rosterFull(ctx, tx, eventID, capacity)
			if err != nil || full {
				return err
			}
			head := &domain.WaitlistEntry{EventID: eventID}
			err = tx.QueryRowContext(ctx, `
				DELETE FROM waitlist_entries
				WHERE (event_id, user_id) = (
					SELECT event_id, user_id FROM waitlist_entries
					WHERE event_id = $1
					ORDER BY joined_at, seq
					LIMIT 1
				)
				RETURNING user_id, joined_at, seq
			`, eventID).Scan(&head.UserID, &head.JoinedAt, &head.Seq)
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			if err != nil {
				return err
			}
			result, err := tx.ExecContext(ctx, `
				UPDATE participants SET status = 'accepted', rsvp_at = $3, updated_at = $3
				WHERE event_id = $1 AND user_id = $2 AND status = 'waitlisted'
			`, eventID, head.UserID, at)
			if err != nil {
				return err
			}
			if n, _ := result.RowsAffected(); n > 0 {
				promoted = head
				events, err := announce.Build(head)
				if err != nil {
					return err
				}
				return insertDomainEvents(ctx, tx, events)
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return promoted, nil
}

func (r *waitlistRepository) ListByEvent(ctx context.Context, eventID string) ([]*domain.WaitlistEntry, error) {
	query := `
		SELECT event_id, user_id, joined_at, seq
		FROM waitlist_entries
		WHERE event_id = $1
		ORDER BY joined_at, seq
	`
	rows, err := r.DB.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*domain.WaitlistEntry, 0)
	for rows.Next() {
		e := &domain.WaitlistEntry{}
		if err := rows.Scan(&e.EventID, &e.UserID, &e.JoinedAt, &e.Seq); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
