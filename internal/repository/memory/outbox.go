package memory

import (
	"context"
	"time"

	"gatherplan/internal/domain"
)

type domainEventRepo struct{ s *Store }

var _ domain.DomainEventRepository = (*domainEventRepo)(nil)

func (r *domainEventRepo) Append(ctx context.Context, events ...*domain.DomainEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.appendEventsLocked(events)
	return nil
}

func (r *domainEventRepo) ListUndelivered(ctx context.Context, limit, maxAttempts int) ([]*domain.DomainEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*domain.DomainEvent, 0)
	for _, ev := range r.s.outbox {
		if ev.DeliveredAt != nil || (maxAttempts > 0 && ev.Attempts >= maxAttempts) {
			continue
		}
		c := *ev
		out = append(out, &c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *domainEventRepo) find(id string) *domain.DomainEvent {
	for _, ev := range r.s.outbox {
		if ev.ID == id {
			return ev
		}
	}
	return nil
}

func (r *domainEventRepo) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ev := r.find(id)
	if ev == nil {
		return domain.ErrNotFound
	}
	ev.Attempts++
	ev.DeliveredAt = &at
	ev.LastError = ""
	return nil
}

func (r *domainEventRepo) MarkFailed(ctx context.Context, id, lastError string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ev := r.find(id)
	if ev == nil {
		return domain.ErrNotFound
	}
	ev.Attempts++
	ev.LastError = lastError
	return nil
}

func (r *domainEventRepo) ListByEvent(ctx context.Context, eventID string) ([]*domain.DomainEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*domain.DomainEvent, 0)
	for _, ev := range r.s.outbox {
		if ev.EventID == eventID {
			c := *ev
			out = append(out, &c)
		}
	}
	return out, nil
}
