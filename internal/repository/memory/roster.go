package memory

import (
	"context"
	"sort"
	"time"

	"gatherplan/internal/domain"
)

type participantRepo struct{ s *Store }

var _ domain.ParticipantRepository = (*participantRepo)(nil)

func cloneParticipant(p *domain.Participant) *domain.Participant {
	c := *p
	if p.RSVPAt != nil {
		t := *p.RSVPAt
		c.RSVPAt = &t
	}
	return &c
}

func (r *participantRepo) rosterLocked(eventID string) map[string]*domain.Participant {
	m, ok := r.s.participants[eventID]
	if !ok {
		m = make(map[string]*domain.Participant)
		r.s.participants[eventID] = m
	}
	return m
}

func (r *participantRepo) InviteMany(ctx context.Context, eventID string, userIDs []string, at time.Time, announce domain.Announce[[]*domain.Participant]) ([]*domain.Participant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	roster := r.rosterLocked(eventID)
	created := make([]*domain.Participant, 0, len(userIDs))
	for _, id := range userIDs {
		if _, ok := roster[id]; ok {
			continue
		}
		created = append(created, &domain.Participant{
			EventID:   eventID,
			UserID:    id,
			Status:    domain.InvitationInvited,
			InvitedAt: at,
			UpdatedAt: at,
		})
	}
	if len(created) == 0 {
		return created, nil
	}
	events, err := announce.Build(created)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Participant, 0, len(created))
	for _, p := range created {
		roster[p.UserID] = p
		out = append(out, cloneParticipant(p))
	}
	r.s.appendEventsLocked(events)
	return out, nil
}

func (r *participantRepo) Get(ctx context.Context, eventID, userID string) (*domain.Participant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.participants[eventID][userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneParticipant(p), nil
}

func (r *participantRepo) ListByEvent(ctx context.Context, eventID string) ([]*domain.Participant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*domain.Participant, 0, len(r.s.participants[eventID]))
	for _, p := range r.s.participants[eventID] {
		out = append(out, cloneParticipant(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].InvitedAt.Equal(out[j].InvitedAt) {
			return out[i].InvitedAt.Before(out[j].InvitedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (r *participantRepo) Counts(ctx context.Context, eventID string) (domain.RosterCounts, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var c domain.RosterCounts
	for _, p := range r.s.participants[eventID] {
		switch p.Status {
		case domain.InvitationInvited:
			c.Invited++
		case domain.InvitationAccepted:
			c.Accepted++
		case domain.InvitationDeclined:
			c.Declined++
		case domain.InvitationWaitlisted:
			c.Waitlisted++
		}
	}
	return c, nil
}

func (r *participantRepo) UpdateStatus(ctx context.Context, eventID, userID string, from, to domain.InvitationStatus, at time.Time, events ...*domain.DomainEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.participants[eventID][userID]
	if !ok {
		return domain.ErrNotFound
	}
	if p.Status != from {
		return domain.ErrConflict
	}
	p.Status = to
	p.UpdatedAt = at
	if to == domain.InvitationAccepted || to == domain.InvitationDeclined {
		rsvp := at
		p.RSVPAt = &rsvp
	}
	if from == domain.InvitationWaitlisted && to != domain.InvitationWaitlisted {
		r.s.dequeueLocked(eventID, userID)
	}
	r.s.appendEventsLocked(events)
	return nil
}

func (r *participantRepo) Accept(ctx context.Context, eventID, userID string, capacity int, at time.Time, announce domain.Announce[domain.InvitationStatus]) (domain.InvitationStatus, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.participants[eventID][userID]
	if !ok {
		return "", domain.ErrNotFound
	}
	if p.Status != domain.InvitationInvited {
		return "", domain.ErrConflict
	}
	status := domain.InvitationAccepted
	if capacity > 0 && r.s.acceptedCountLocked(eventID) >= capacity {
		status = domain.InvitationWaitlisted
	}
	events, err := announce.Build(status)
	if err != nil {
		return "", err
	}
	p.Status = status
	p.UpdatedAt = at
	rsvp := at
	p.RSVPAt = &rsvp
	if status == domain.InvitationWaitlisted {
		r.s.enqueueLocked(eventID, userID, at)
	}
	r.s.appendEventsLocked(events)
	return status, nil
}

type waitlistRepo struct{ s *Store }

var _ domain.WaitlistRepository = (*waitlistRepo)(nil)

// enqueueLocked appends the user to the queue unless already present. Caller holds s.mu.
func (s *Store) enqueueLocked(eventID, userID string, at time.Time) (*domain.WaitlistEntry, bool) {
	for _, e := range s.waitlist[eventID] {
		if e.UserID == userID {
			c := *e
			return &c, false
		}
	}
	s.waitlistSeq++
	e := &domain.WaitlistEntry{EventID: eventID, UserID: userID, JoinedAt: at, Seq: s.waitlistSeq}
	q := append(s.waitlist[eventID], e)
	sort.SliceStable(q, func(i, j int) bool {
		if !q[i].JoinedAt.Equal(q[j].JoinedAt) {
			return q[i].JoinedAt.Before(q[j].JoinedAt)
		}
		return q[i].Seq < q[j].Seq
	})
	s.waitlist[eventID] = q
	c := *e
	return &c, true
}

func (r *waitlistRepo) Join(ctx context.Context, eventID, userID string, at time.Time, events ...*domain.DomainEvent) (*domain.WaitlistEntry, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	roster := (&participantRepo{r.s}).rosterLocked(eventID)
	p, ok := roster[userID]
	switch {
	case !ok:
		roster[userID] = &domain.Participant{
			EventID:   eventID,
			UserID:    userID,
			Status:    domain.InvitationWaitlisted,
			InvitedAt: at,
			UpdatedAt: at,
		}
	case p.Status == domain.InvitationInvited || p.Status == domain.InvitationWaitlisted:
		p.Status = domain.InvitationWaitlisted
		p.UpdatedAt = at
	default:
		return nil, false, domain.ErrConflict
	}
	e, created := r.s.enqueueLocked(eventID, userID, at)
	if created {
		r.s.appendEventsLocked(events)
	}
	return e, created, nil
}

func (r *waitlistRepo) PromoteNext(ctx context.Context, eventID string, capacity int, at time.Time, announce domain.Announce[*domain.WaitlistEntry]) (*domain.WaitlistEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for len(r.s.waitlist[eventID]) > 0 {
		if capacity > 0 && r.s.acceptedCountLocked(eventID) >= capacity {
			return nil, nil
		}
		head := r.s.waitlist[eventID][0]
		p, ok := r.s.participants[eventID][head.UserID]
		if !ok || p.Status != domain.InvitationWaitlisted {
			r.s.waitlist[eventID] = r.s.waitlist[eventID][1:]
			continue
		}
		c := *head
		events, err := announce.Build(&c)
		if err != nil {
			return nil, err
		}
		r.s.waitlist[eventID] = r.s.waitlist[eventID][1:]
		p.Status = domain.InvitationAccepted
		p.UpdatedAt = at
		rsvp := at
		p.RSVPAt = &rsvp
		r.s.appendEventsLocked(events)
		return &c, nil
	}
	return nil, nil
}

// dequeueLocked drops the user's queue entry, if any. Caller holds s.mu.
func (s *Store) dequeueLocked(eventID, userID string) {
	q := s.waitlist[eventID]
	for i, e := range q {
		if e.UserID == userID {
			s.waitlist[eventID] = append(q[:i:i], q[i+1:]...)
			return
		}
	}
}

func (r *waitlistRepo) ListByEvent(ctx context.Context, eventID string) ([]*domain.WaitlistEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*domain.WaitlistEntry, 0, len(r.s.waitlist[eventID]))
	for _, e := range r.s.waitlist[eventID] {
		c := *e
		out = append(out, &c)
	}
	return out, nil
}
