package memory

import (
	"context"
	"sort"
	"time"

	"gatherplan/internal/domain"
)

type seriesRepo struct{ s *Store }

var _ domain.RecurringSeriesRepository = (*seriesRepo)(nil)

func cloneSeries(in *domain.RecurringSeries) *domain.RecurringSeries {
	c := *in
	if in.Until != nil {
		u := *in.Until
		c.Until = &u
	}
	return &c
}

func (r *seriesRepo) Create(ctx context.Context, s *domain.RecurringSeries) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.series[s.ID]; ok {
		return domain.ErrConflict
	}
	r.s.series[s.ID] = cloneSeries(s)
	return nil
}

func (r *seriesRepo) GetByID(ctx context.Context, id string) (*domain.RecurringSeries, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	s, ok := r.s.series[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneSeries(s), nil
}

func (r *seriesRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.RecurringSeries, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*domain.RecurringSeries, 0)
	for _, s := range r.s.series {
		if s.Due(now) {
			out = append(out, cloneSeries(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].NextOccurrence.Equal(out[j].NextOccurrence) {
			return out[i].NextOccurrence.Before(out[j].NextOccurrence)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *seriesRepo) Advance(ctx context.Context, id string, expectedNext, next time.Time, active bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	s, ok := r.s.series[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !s.NextOccurrence.Equal(expectedNext) {
		return domain.ErrConflict
	}
	s.NextOccurrence = next
	s.Active = active
	return nil
}

type userRepo struct{ s *Store }

var _ domain.UserRepository = (*userRepo)(nil)

func (r *userRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (r *userRepo) ListByIDs(ctx context.Context, ids []string) ([]*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*domain.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := r.s.users[id]; ok {
			c := *u
			out = append(out, &c)
		}
	}
	return out, nil
}
