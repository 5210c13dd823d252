package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gatherplan/internal/domain"
)

const emailTimeLayout = "Mon, 02 Jan 2006 15:04 MST"

type notificationService struct {
	eventRepo       domain.EventRepository
	participantRepo domain.ParticipantRepository
	optionRepo      domain.VenueOptionRepository
	userRepo        domain.UserRepository
	mailer          domain.Mailer
	renderer        domain.EmailTemplateRenderer
	logger          *slog.Logger
}

// NewNotificationService returns a publisher that emails participants about lifecycle events.
func NewNotificationService(
	eventRepo domain.EventRepository,
	participantRepo domain.ParticipantRepository,
	optionRepo domain.VenueOptionRepository,
	userRepo domain.UserRepository,
	mailer domain.Mailer,
	renderer domain.EmailTemplateRenderer,
	logger *slog.Logger,
) domain.DomainEventPublisher {
	return &notificationService{
		eventRepo:       eventRepo,
		participantRepo: participantRepo,
		optionRepo:      optionRepo,
		userRepo:        userRepo,
		mailer:          mailer,
		renderer:        renderer,
		logger:          orDiscard(logger),
	}
}

// Publish emails the recipients of ev. Types without a template are ignored.
func (s *notificationService) Publish(ctx context.Context, de *domain.DomainEvent) error {
	var (
		template   string
		recipients []string
		err        error
	)
	ev, err := loadEvent(ctx, s.eventRepo, de.EventID)
	if err != nil {
		return err
	}
	data := domain.EventEmailData{
		EventID: ev.ID,
		Title:   ev.Title,
		When:    formatInZone(ev.ScheduledAt, ev.Timezone),
	}

	switch de.Type {
	case domain.ParticipantsInvited:
		var p domain.ParticipantsInvitedPayload
		if err := json.Unmarshal(de.Payload, &p); err != nil {
			return fmt.Errorf("decode %s payload: %w", de.Type, err)
		}
		template, recipients = "invitation", p.UserIDs
		if ev.RSVPDeadline != nil {
			data.Deadline = formatInZone(*ev.RSVPDeadline, ev.Timezone)
		}
	case domain.WaitlistPromoted:
		var p domain.WaitlistPayload
		if err := json.Unmarshal(de.Payload, &p); err != nil {
			return fmt.Errorf("decode %s payload: %w", de.Type, err)
		}
		template, recipients = "waitlist_promoted", []string{p.UserID}
	case domain.VotingOpened:
		template = "voting_opened"
		if ev.VotingDeadline != nil {
			data.Deadline = formatInZone(*ev.VotingDeadline, ev.Timezone)
		}
		recipients, err = s.participantsIn(ctx, ev.ID, domain.InvitationAccepted)
	case domain.EventConfirmed:
		template = "event_confirmed"
		data.VenueName = s.venueName(ctx, ev)
		recipients, err = s.participantsIn(ctx, ev.ID, domain.InvitationAccepted)
	case domain.EventCancelled:
		template = "event_cancelled"
		data.Reason = ev.CancellationReason
		recipients, err = s.participantsIn(ctx, ev.ID, domain.InvitationInvited, domain.InvitationAccepted, domain.InvitationWaitlisted)
	default:
		return nil
	}
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		return nil
	}

	users, err := s.userRepo.ListByIDs(ctx, recipients)
	if err != nil {
		return fmt.Errorf("list recipients: %w", err)
	}
	var errs []error
	for _, u := range users {
		if u.Email == "" {
			continue
		}
		d := data
		d.Email, d.Name = u.Email, u.Name
		subject, htmlBody, textBody, err := s.renderer.Render(template, d)
		if err != nil {
			return fmt.Errorf("render %s template: %w", template, err)
		}
		if err := s.mailer.Send(ctx, u.Email, subject, htmlBody, textBody); err != nil {
			errs = append(errs, fmt.Errorf("send %s to %s: %w", template, u.ID, err))
			continue
		}
	}
	s.logger.Info("notification sent", "event_id", ev.ID, "type", de.Type, "recipients", len(users), "failed", len(errs))
	return errors.Join(errs...)
}

func (s *notificationService) participantsIn(ctx context.Context, eventID string, statuses ...domain.InvitationStatus) ([]string, error) {
	ps, err := s.participantRepo.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	want := make(map[domain.InvitationStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	ids := make([]string, 0, len(ps))
	for _, p := range ps {
		if want[p.Status] {
			ids = append(ids, p.UserID)
		}
	}
	return ids, nil
}

func (s *notificationService) venueName(ctx context.Context, ev *domain.Event) string {
	if ev.FinalVenueOptionID == nil {
		return ""
	}
	opt, err := s.optionRepo.GetByID(ctx, *ev.FinalVenueOptionID)
	if err != nil {
		s.logger.Warn("final venue lookup failed", "event_id", ev.ID, "option_id", *ev.FinalVenueOptionID, "err", err)
		return ""
	}
	if opt.Snapshot != nil && opt.Snapshot.Name != "" {
		return opt.Snapshot.Name
	}
	return opt.Source.PlaceID
}

func formatInZone(t time.Time, tz string) string {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	return t.In(loc).Format(emailTimeLayout)
}
