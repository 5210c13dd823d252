package postgres

import (
	"context"
	"testing"

	"gatherplan/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestParticipantRepository_Accept(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		capacity   int
		announce   domain.Announce[domain.InvitationStatus]
		mock       func(mock sqlmock.Sqlmock)
		wantStatus domain.InvitationStatus
		wantErr    error
	}{
		{
			name:     "room left",
			capacity: 5,
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(`SELECT id FROM events WHERE id = \$1 FOR UPDATE`).WithArgs("ev-1").
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("ev-1"))
				mock.ExpectQuery(`SELECT status FROM participants .+ FOR UPDATE`).WithArgs("ev-1", "u-1").
					WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("invited"))
				mock.ExpectQuery(`SELECT COUNT\(\*\) FROM participants`).WithArgs("ev-1").
					WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
				mock.ExpectExec(`UPDATE participants SET status`).
					WithArgs("ev-1", "u-1", "accepted", baseTime).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
			wantStatus: domain.InvitationAccepted,
		},
		{
			name:     "full roster queues the participant",
			capacity: 5,
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(`FROM events WHERE id = \$1 FOR UPDATE`).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("ev-1"))
				mock.ExpectQuery(`SELECT status FROM participants`).
					WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("invited"))
				mock.ExpectQuery(`SELECT COUNT\(\*\) FROM participants`).
					WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
				mock.ExpectExec(`UPDATE participants SET status`).
					WithArgs("ev-1", "u-1", "waitlisted", baseTime).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectQuery(`INSERT INTO waitlist_entries`).WithArgs("ev-1", "u-1", baseTime).
					WillReturnRows(sqlmock.NewRows([]string{"joined_at", "seq"}).AddRow(baseTime, 7))
				mock.ExpectCommit()
			},
			wantStatus: domain.InvitationWaitlisted,
		},
		{
			name:     "announced event is stored in the same transaction",
			capacity: 5,
			announce: func(status domain.InvitationStatus) ([]*domain.DomainEvent, error) {
				de, err := domain.NewDomainEvent("de-1", "ev-1", domain.ParticipantResponded, "de-1", "u-1",
					domain.ParticipantRespondedPayload{EventID: "ev-1", UserID: "u-1", From: domain.InvitationInvited, To: status}, baseTime)
				return []*domain.DomainEvent{de}, err
			},
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(`FROM events WHERE id = \$1 FOR UPDATE`).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("ev-1"))
				mock.ExpectQuery(`SELECT status FROM participants`).
					WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("invited"))
				mock.ExpectQuery(`SELECT COUNT\(\*\) FROM participants`).
					WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
				mock.ExpectExec(`UPDATE participants SET status`).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec(`INSERT INTO domain_events .+ ON CONFLICT \(key\) DO NOTHING`).
					WithArgs("de-1", "ev-1", "participant.responded", "de-1", "u-1", sqlmock.AnyArg(), baseTime).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
			wantStatus: domain.InvitationAccepted,
		},
		{
			name:     "already answered",
			capacity: 0,
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(`FROM events WHERE id = \$1 FOR UPDATE`).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("ev-1"))
				mock.ExpectQuery(`SELECT status FROM participants`).
					WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("declined"))
				mock.ExpectRollback()
			},
			wantErr: domain.ErrConflict,
		},
		{
			name:     "not on the roster",
			capacity: 0,
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(`FROM events WHERE id = \$1 FOR UPDATE`).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("ev-1"))
				mock.ExpectQuery(`SELECT status FROM participants`).
					WillReturnRows(sqlmock.NewRows([]string{"status"}))
				mock.ExpectRollback()
			},
			wantErr: domain.ErrNotFound,
		},
		{
			name:     "unknown event",
			capacity: 0,
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(`FROM events WHERE id = \$1 FOR UPDATE`).
					WillReturnRows(sqlmock.NewRows([]string{"id"}))
				mock.ExpectRollback()
			},
			wantErr: domain.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			tt.mock(mock)
			status, err := NewParticipantRepository(db).Accept(ctx, "ev-1", "u-1", tt.capacity, baseTime, tt.announce)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				require.Equal(t, tt.wantStatus, status)
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestParticipantRepository_InviteMany(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO participants .+ FROM unnest\(\$2::text\[\]\)`).
		WithArgs("ev-1", sqlmock.AnyArg(), baseTime).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u-2"))
	mock.ExpectExec(`INSERT INTO domain_events`).
		WithArgs("de-1", "ev-1", "participant.invited", "de-1", "org", sqlmock.AnyArg(), baseTime).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var announced []string
	announce := func(created []*domain.Participant) ([]*domain.DomainEvent, error) {
		for _, p := range created {
			announced = append(announced, p.UserID)
		}
		de, err := domain.NewDomainEvent("de-1", "ev-1", domain.ParticipantsInvited, "de-1", "org",
			domain.ParticipantsInvitedPayload{EventID: "ev-1", UserIDs: announced}, baseTime)
		return []*domain.DomainEvent{de}, err
	}
	created, err := NewParticipantRepository(db).InviteMany(context.Background(), "ev-1", []string{"u-1", "u-2"}, baseTime, announce)
	require.NoError(t, err)
	require.Len(t, created, 1)
	require.Equal(t, "u-2", created[0].UserID)
	require.Equal(t, domain.InvitationInvited, created[0].Status)
	require.Equal(t, []string{"u-2"}, announced)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestParticipantRepository_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	removed, err := domain.NewDomainEvent("de-1", "ev-1", domain.ParticipantRemoved, "de-1", "org",
		domain.ParticipantRemovedPayload{EventID: "ev-1", UserID: "u-1", PreviousStatus: domain.InvitationWaitlisted, RemovedBy: "org"}, baseTime)
	require.NoError(t, err)

	tests := []struct {
		name    string
		from    domain.InvitationStatus
		events  []*domain.DomainEvent
		mock    func(mock sqlmock.Sqlmock)
		wantErr error
	}{
		{
			name: "moved",
			from: domain.InvitationInvited,
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`UPDATE participants SET`).
					WithArgs("ev-1", "u-1", "invited", "declined", baseTime).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
		},
		{
			name:   "leaving the waitlist drops the entry and stores the event",
			from:   domain.InvitationWaitlisted,
			events: []*domain.DomainEvent{removed},
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`UPDATE participants SET`).
					WithArgs("ev-1", "u-1", "waitlisted", "declined", baseTime).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec(`DELETE FROM waitlist_entries`).WithArgs("ev-1", "u-1").
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec(`INSERT INTO domain_events`).
					WithArgs("de-1", "ev-1", "participant.removed", "de-1", "org", sqlmock.AnyArg(), baseTime).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
		},
		{
			name: "status changed underneath",
			from: domain.InvitationInvited,
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`UPDATE participants SET`).WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(`SELECT status FROM participants WHERE event_id = \$1 AND user_id = \$2`).
					WithArgs("ev-1", "u-1").
					WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("accepted"))
				mock.ExpectRollback()
			},
			wantErr: domain.ErrConflict,
		},
		{
			name: "not invited",
			from: domain.InvitationInvited,
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`UPDATE participants SET`).WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(`SELECT status FROM participants`).WillReturnRows(sqlmock.NewRows([]string{"status"}))
				mock.ExpectRollback()
			},
			wantErr: domain.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			tt.mock(mock)
			err = NewParticipantRepository(db).UpdateStatus(ctx, "ev-1", "u-1", tt.from, domain.InvitationDeclined, baseTime, tt.events...)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestParticipantRepository_Counts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`GROUP BY status`).WithArgs("ev-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("invited", 3).
			AddRow("accepted", 5).
			AddRow("waitlisted", 1))

	c, err := NewParticipantRepository(db).Counts(context.Background(), "ev-1")
	require.NoError(t, err)
	require.Equal(t, domain.RosterCounts{Invited: 3, Accepted: 5, Waitlisted: 1}, c)
}
