package domain

import (
	"context"
	"sort"
	"strings"
	"time"
)

// Preference is one participant's venue wishes.
// swagger:model Preference
type Preference struct {
	EventID            string    `json:"event_id"`
	UserID             string    `json:"user_id"`
	Cuisines           []string  `json:"cuisines,omitempty"`
	MaxBudgetPerPerson *float64  `json:"max_budget_per_person,omitempty"`
	MaxDistanceKm      *float64  `json:"max_distance_km,omitempty"`
	Notes              string    `json:"notes,omitempty"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// CuisineCount is how many respondents asked for a cuisine.
type CuisineCount struct {
	Cuisine string `json:"cuisine"`
	Count   int    `json:"count"`
}

// GroupPreferences is the aggregate handed to the reasoning engine.
type GroupPreferences struct {
	Respondents int            `json:"respondents"`
	Cuisines    []CuisineCount `json:"cuisines"`
	// The tightest limits any respondent gave.
	MaxBudgetPerPerson *float64 `json:"max_budget_per_person,omitempty"`
	MaxDistanceKm      *float64 `json:"max_distance_km,omitempty"`
	Notes              []string `json:"notes,omitempty"`
}

// AggregatePreferences folds individual preferences into a group view. Cuisines are
// case-folded and ordered by count, then name.
func AggregatePreferences(prefs []*Preference) GroupPreferences {
	g := GroupPreferences{Respondents: len(prefs), Cuisines: []CuisineCount{}}
	counts := make(map[string]int)
	for _, p := range prefs {
		seen := make(map[string]bool)
		for _, c := range p.Cuisines {
			c = strings.ToLower(strings.TrimSpace(c))
			if c == "" || seen[c] {
				continue
			}
			seen[c] = true
			counts[c]++
		}
		g.MaxBudgetPerPerson = minPtr(g.MaxBudgetPerPerson, p.MaxBudgetPerPerson)
		g.MaxDistanceKm = minPtr(g.MaxDistanceKm, p.MaxDistanceKm)
		if n := strings.TrimSpace(p.Notes); n != "" {
			g.Notes = append(g.Notes, n)
		}
	}
	for c, n := range counts {
		g.Cuisines = append(g.Cuisines, CuisineCount{Cuisine: c, Count: n})
	}
	sort.Slice(g.Cuisines, func(i, j int) bool {
		if g.Cuisines[i].Count != g.Cuisines[j].Count {
			return g.Cuisines[i].Count > g.Cuisines[j].Count
		}
		return g.Cuisines[i].Cuisine < g.Cuisines[j].Cuisine
	})
	return g
}

func minPtr(cur, v *float64) *float64 {
	if v == nil {
		return cur
	}
	if cur == nil || *v < *cur {
		x := *v
		return &x
	}
	return cur
}

// PreferenceRepository defines the interface for preference storage.
type PreferenceRepository interface {
	Upsert(ctx context.Context, p *Preference) error
	ListByEvent(ctx context.Context, eventID string) ([]*Preference, error)
}

// PreferenceService collects participant preferences.
type PreferenceService interface {
	Submit(ctx context.Context, p *Preference) (*Preference, error)
	Group(ctx context.Context, eventID string) (*GroupPreferences, error)
}
