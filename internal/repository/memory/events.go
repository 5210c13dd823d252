package memory

import (
	"context"
	"sort"
	"time"

	"gatherplan/internal/domain"
)

type eventRepo struct{ s *Store }

var _ domain.EventRepository = (*eventRepo)(nil)

func (r *eventRepo) Create(ctx context.Context, e *domain.Event, events []*domain.DomainEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.events[e.ID]; ok {
		return domain.ErrConflict
	}
	r.s.events[e.ID] = e.Clone()
	r.s.appendEventsLocked(events)
	return nil
}

func (r *eventRepo) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.events[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return e.Clone(), nil
}

func (r *eventRepo) ListByOrganizer(ctx context.Context, organizerID string, params domain.PaginationParams) ([]*domain.Event, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var all []*domain.Event
	for _, e := range r.s.events {
		if e.OrganizerID == organizerID {
			all = append(all, e)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})
	params = params.Normalize()
	total := len(all)
	start := params.Offset()
	if start > total {
		start = total
	}
	end := start + params.PageSize
	if end > total {
		end = total
	}
	out := make([]*domain.Event, 0, end-start)
	for _, e := range all[start:end] {
		out = append(out, e.Clone())
	}
	return out, total, nil
}

func (r *eventRepo) ApplyTransition(ctx context.Context, t *domain.StatusTransition) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.events[t.Event.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Version != t.ExpectedVersion {
		return domain.ErrConflict
	}
	t.Event.Version = t.ExpectedVersion + 1
	r.s.events[t.Event.ID] = t.Event.Clone()
	r.s.appendEventsLocked(t.Events)
	return nil
}

func (r *eventRepo) ListDue(ctx context.Context, q domain.DueQuery) ([]*domain.Event, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	type due struct {
		e  *domain.Event
		at time.Time
	}
	var found []due
	for _, e := range r.s.events {
		if e.Status != q.Status {
			continue
		}
		at, ok := deadlineOf(e, q.Deadline)
		if !ok || at.After(q.Before) {
			continue
		}
		found = append(found, due{e: e, at: at})
	}
	sort.Slice(found, func(i, j int) bool {
		if !found[i].at.Equal(found[j].at) {
			return found[i].at.Before(found[j].at)
		}
		return found[i].e.ID < found[j].e.ID
	})
	if q.Limit > 0 && len(found) > q.Limit {
		found = found[:q.Limit]
	}
	out := make([]*domain.Event, 0, len(found))
	for _, d := range found {
		out = append(out, d.e.Clone())
	}
	return out, nil
}

func deadlineOf(e *domain.Event, d domain.Deadline) (time.Time, bool) {
	var p *time.Time
	switch d {
	case domain.DeadlineRSVP:
		p = e.RSVPDeadline
	case domain.DeadlinePreference:
		p = e.PreferenceDeadline
	case domain.DeadlineRecommendation:
		p = e.RecommendationDeadline
	case domain.DeadlineVoting:
		p = e.VotingDeadline
	case domain.DeadlineScheduledEnd:
		return e.ScheduledEnd(), true
	}
	if p == nil {
		return time.Time{}, false
	}
	return *p, true
}
