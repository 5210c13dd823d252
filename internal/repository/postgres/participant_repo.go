package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"gatherplan/internal/domain"

	"github.com/lib/pq"
)

type participantRepository struct {
	DB *sql.DB
}

func NewParticipantRepository(db *sql.DB) domain.ParticipantRepository {
	return &participantRepository{
		DB: db,
	}
}

func scanParticipant(row rowScanner) (*domain.Participant, error) {
	p := &domain.Participant{}
	var rsvp sql.NullTime
	if err := row.Scan(&p.EventID, &p.UserID, &p.Status, &p.InvitedAt, &rsvp, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.RSVPAt = timePtr(rsvp)
	return p, nil
}

func (r *participantRepository) InviteMany(ctx context.Context, eventID string, userIDs []string, at time.Time, announce domain.Announce[[]*domain.Participant]) ([]*domain.Participant, error) {
	query := `
		INSERT INTO participants (event_id, user_id, status, invited_at, updated_at)
		SELECT $1, u, 'invited', $3, $3 FROM unnest($2::text[]) AS u
		ON CONFLICT (event_id, user_id) DO NOTHING
		RETURNING user_id
	`
	var created []*domain.Participant
	err := withTx(ctx, r.DB, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, eventID, pq.Array(userIDs), at)
		if err != nil {
			return err
		}
		created = make([]*domain.Participant, 0, len(userIDs))
		for rows.Next() {
			p := &domain.Participant{
				EventID:   eventID,
				Status:    domain.InvitationInvited,
				InvitedAt: at,
				UpdatedAt: at,
			}
			if err := rows.Scan(&p.UserID); err != nil {
				rows.Close()
				return err
			}
			created = append(created, p)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if len(created) == 0 {
			return nil
		}
		events, err := announce.Build(created)
		if err != nil {
			return err
		}
		return insertDomainEvents(ctx, tx, events)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *participantRepository) Get(ctx context.Context, eventID, userID string) (*domain.Participant, error) {
	query := `
		SELECT event_id, user_id, status, invited_at, rsvp_at, updated_at
		FROM participants
		WHERE event_id = $1 AND user_id = $2
	`
	p, err := scanParticipant(r.DB.QueryRowContext(ctx, query, eventID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *participantRepository) ListByEvent(ctx context.Context, eventID string) ([]*domain.Participant, error) {
	query := `
		SELECT event_id, user_id, status, invited_at, rsvp_at, updated_at
		FROM participants
		WHERE event_id = $1
		ORDER BY invited_at, user_id
	`
	rows, err := r.DB.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*domain.Participant, 0)
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *participantRepository) Counts(ctx context.Context, eventID string) (domain.RosterCounts, error) {
	query := `SELECT status, COUNT(*) FROM participants WHERE event_id = $1 GROUP BY status`
	var c domain.RosterCounts
	rows, err := r.DB.QueryContext(ctx, query, eventID)
	if err != nil {
		return c, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status domain.InvitationStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return c, err
		}
		switch status {
		case domain.InvitationInvited:
			c.Invited = n
		case domain.InvitationAccepted:
			c.Accepted = n
		case domain.InvitationDeclined:
			c.Declined = n
		case domain.InvitationWaitlisted:
			c.Waitlisted = n
		}
	}
	return c, rows.Err()
}

func (r *participantRepository) UpdateStatus(ctx context.Context, eventID, userID string, from, to domain.InvitationStatus, at time.Time, events ...*domain.DomainEvent) error {
	query := `
		UPDATE participants SET
			status = $4::text,
			updated_at = $5,
			rsvp_at = CASE WHEN $4::text IN ('accepted', 'declined') THEN $5 ELSE rsvp_at END
		WHERE event_id = $1 AND user_id = $2 AND status = $3
	`
	return withTx(ctx, r.DB, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, query, eventID, userID, from, to, at)
		if err != nil {
			return err
		}
		if n, _ := result.RowsAffected(); n == 0 {
			var current domain.InvitationStatus
			err := tx.QueryRowContext(ctx,
				`SELECT status FROM participants WHERE event_id = $1 AND user_id = $2`, eventID, userID,
			).Scan(&current)
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrNotFound
			}
			if err != nil {
				return err
			}
			return domain.ErrConflict
		}
		if from == domain.InvitationWaitlisted && to != domain.InvitationWaitlisted {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM waitlist_entries WHERE event_id = $1 AND user_id = $2`, eventID, userID,
			); err != nil {
				return err
			}
		}
		return insertDomainEvents(ctx, tx, events)
	})
}

// Accept moves an invited participant to accepted, or to the waitlist when the event is full.
// The event row lock serializes capacity checks of concurrent acceptors.
func (r *participantRepository) Accept(ctx context.Context, eventID, userID string, capacity int, at time.Time, announce domain.Announce[domain.InvitationStatus]) (domain.InvitationStatus, error) {
	var status domain.InvitationStatus
	err := withTx(ctx, r.DB, func(tx *sql.Tx) error {
		if err := lockEvent(ctx, tx, eventID); err != nil {
			return err
		}
		var current domain.InvitationStatus
		err := tx.QueryRowContext(ctx,
			`SELECT status FROM participants WHERE event_id = $1 AND user_id = $2 FOR UPDATE`,
			eventID, userID,
		).Scan(&current)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrNotFound
			}
			return err
		}
		if current != domain.InvitationInvited {
			return domain.ErrConflict
		}

		full, err := rosterFull(ctx, tx, eventID, capacity)
		if err != nil {
			return err
		}
		status = domain.InvitationAccepted
		if full {
			status = domain.InvitationWaitlisted
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE participants SET status = $3, rsvp_at = $4, updated_at = $4 WHERE event_id = $1 AND user_id = $2`,
			eventID, userID, status, at,
		); err != nil {
			return err
		}
		if full {
			if _, _, err := enqueue(ctx, tx, eventID, userID, at); err != nil {
				return err
			}
		}
		events, err := announce.Build(status)
		if err != nil {
			return err
		}
		return insertDomainEvents(ctx, tx, events)
	})
	if err != nil {
		return "", err
	}
	return status, nil
}

func lockEvent(ctx context.Context, tx *sql.Tx, eventID string) error {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM events WHERE id = $1 FOR UPDATE`, eventID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

func rosterFull(ctx context.Context, tx *sql.Tx, eventID string, capacity int) (bool, error) {
	if capacity <= 0 {
		return false, nil
	}
	var accepted int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM participants WHERE event_id = $1 AND status = 'accepted'`, eventID,
	).Scan(&accepted)
	if err != nil {
		return false, err
	}
	return accepted >= capacity, nil
}
