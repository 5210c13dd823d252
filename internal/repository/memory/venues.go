package memory

import (
	"context"
	"sort"

	"gatherplan/internal/domain"
)

type venueOptionRepo struct{ s *Store }

var _ domain.VenueOptionRepository = (*venueOptionRepo)(nil)

func cloneOption(o *domain.VenueOption) *domain.VenueOption {
	c := *o
	if o.Snapshot != nil {
		snap := *o.Snapshot
		c.Snapshot = &snap
	}
	if o.AIScore != nil {
		score := *o.AIScore
		c.AIScore = &score
	}
	c.Pros = append([]string(nil), o.Pros...)
	c.Cons = append([]string(nil), o.Cons...)
	return &c
}

func (r *venueOptionRepo) Add(ctx context.Context, opt *domain.VenueOption) (*domain.VenueOption, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := opt.Source.DedupKey()
	for _, existing := range r.s.options {
		if existing.EventID == opt.EventID && existing.Source.DedupKey() == key {
			return cloneOption(existing), false, nil
		}
	}
	if _, ok := r.s.options[opt.ID]; ok {
		return nil, false, domain.ErrConflict
	}
	r.s.optionSeq++
	stored := cloneOption(opt)
	stored.Seq = r.s.optionSeq
	r.s.options[opt.ID] = stored
	return cloneOption(stored), true, nil
}

func (r *venueOptionRepo) GetByID(ctx context.Context, id string) (*domain.VenueOption, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.options[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneOption(o), nil
}

func (r *venueOptionRepo) ListByEvent(ctx context.Context, eventID string) ([]*domain.VenueOption, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*domain.VenueOption, 0)
	for _, o := range r.s.options {
		if o.EventID == eventID {
			out = append(out, cloneOption(o))
		}
	}
	domain.SortOptions(out)
	return out, nil
}

func (r *venueOptionRepo) SetAIScore(ctx context.Context, id string, u domain.AIScoreUpdate) (*domain.VenueOption, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.options[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	score := u.Score
	o.AIScore = &score
	o.AIReasoning = u.Reasoning
	o.Pros = append([]string(nil), u.Pros...)
	o.Cons = append([]string(nil), u.Cons...)
	return cloneOption(o), nil
}

type voteRepo struct{ s *Store }

var _ domain.VoteRepository = (*voteRepo)(nil)

func (r *voteRepo) Upsert(ctx context.Context, v *domain.Vote) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := voteKey{optionID: v.OptionID, voterID: v.VoterID}
	if cur, ok := r.s.votes[k]; ok {
		cur.Value = v.Value
		cur.Comment = v.Comment
		cur.UpdatedAt = v.UpdatedAt
		v.CreatedAt = cur.CreatedAt
		return nil
	}
	c := *v
	r.s.votes[k] = &c
	return nil
}

func (r *voteRepo) ListByEvent(ctx context.Context, eventID string) ([]*domain.Vote, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*domain.Vote, 0)
	for _, v := range r.s.votes {
		if v.EventID == eventID {
			c := *v
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OptionID != out[j].OptionID {
			return out[i].OptionID < out[j].OptionID
		}
		return out[i].VoterID < out[j].VoterID
	})
	return out, nil
}

type preferenceRepo struct{ s *Store }

var _ domain.PreferenceRepository = (*preferenceRepo)(nil)

func (r *preferenceRepo) Upsert(ctx context.Context, p *domain.Preference) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.preferences[p.EventID]
	if !ok {
		m = make(map[string]*domain.Preference)
		r.s.preferences[p.EventID] = m
	}
	c := *p
	c.Cuisines = append([]string(nil), p.Cuisines...)
	m[p.UserID] = &c
	return nil
}

func (r *preferenceRepo) ListByEvent(ctx context.Context, eventID string) ([]*domain.Preference, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*domain.Preference, 0, len(r.s.preferences[eventID]))
	for _, p := range r.s.preferences[eventID] {
		c := *p
		c.Cuisines = append([]string(nil), p.Cuisines...)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}
