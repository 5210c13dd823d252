package domain

import (
	"context"
	"sort"
	"strings"
	"time"
)

// AI score bounds accepted by SetAiScore.
const (
	MinAIScore = 0
	MaxAIScore = 100
)

// VenueSourceKind tells whether an option references an internal place or an external provider.
type VenueSourceKind string

const (
	VenueSourceInternal VenueSourceKind = "internal"
	VenueSourceExternal VenueSourceKind = "external"
)

// VenueSource identifies where a venue option came from.
type VenueSource struct {
	Kind            VenueSourceKind `json:"kind"`
	PlaceID         string          `json:"place_id,omitempty"`
	Provider        string          `json:"provider,omitempty"`
	ExternalPlaceID string          `json:"external_place_id,omitempty"`
}

// Validate checks that the source carries the identifiers its kind requires.
func (s VenueSource) Validate() error {
	switch s.Kind {
	case VenueSourceInternal:
		if strings.TrimSpace(s.PlaceID) == "" {
			return InvalidInputf("internal venue source requires place_id")
		}
	case VenueSourceExternal:
		if strings.TrimSpace(s.Provider) == "" || strings.TrimSpace(s.ExternalPlaceID) == "" {
			return InvalidInputf("external venue source requires provider and external_place_id")
		}
	default:
		return InvalidInputf("unknown venue source kind %q", s.Kind)
	}
	return nil
}

// DedupKey identifies the source within one event.
func (s VenueSource) DedupKey() string {
	if s.Kind == VenueSourceInternal {
		return "internal:" + s.PlaceID
	}
	return "external:" + s.Provider + ":" + s.ExternalPlaceID
}

// VenueSnapshot is an immutable copy of provider data taken when the option was added.
type VenueSnapshot struct {
	Name      string   `json:"name"`
	Address   string   `json:"address,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Rating    *float64 `json:"rating,omitempty"`
}

// VenueOption is a candidate venue for an event.
// swagger:model VenueOption
type VenueOption struct {
	ID              string         `json:"id"`
	EventID         string         `json:"event_id"`
	Source          VenueSource    `json:"source"`
	Snapshot        *VenueSnapshot `json:"snapshot,omitempty"`
	DistanceMeters  *int           `json:"distance_meters,omitempty"`
	DurationSeconds *int           `json:"duration_seconds,omitempty"`
	AIScore         *float64       `json:"ai_score,omitempty"`
	AIReasoning     string         `json:"ai_reasoning,omitempty"`
	Pros            []string       `json:"pros,omitempty"`
	Cons            []string       `json:"cons,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	Seq             int64          `json:"-"`
}

// Scored reports whether the reasoning engine has scored this option.
func (o *VenueOption) Scored() bool {
	return o.AIScore != nil
}

// VenueOptionInput is what callers supply when adding an option.
type VenueOptionInput struct {
	Source          VenueSource
	Snapshot        *VenueSnapshot
	DistanceMeters  *int
	DurationSeconds *int
}

// AIScoreUpdate is one scoring result for an option.
type AIScoreUpdate struct {
	Score     float64
	Reasoning string
	Pros      []string
	Cons      []string
}

// Validate checks the score range.
func (u AIScoreUpdate) Validate() error {
	if u.Score < MinAIScore || u.Score > MaxAIScore {
		return InvalidInputf("ai score %.2f outside [%d, %d]", u.Score, MinAIScore, MaxAIScore)
	}
	return nil
}

// SortOptions orders options by AI score descending with unscored options last, then by creation.
func SortOptions(opts []*VenueOption) {
	sort.SliceStable(opts, func(i, j int) bool {
		a, b := opts[i], opts[j]
		if a.Scored() != b.Scored() {
			return a.Scored()
		}
		if a.Scored() && *a.AIScore != *b.AIScore {
			return *a.AIScore > *b.AIScore
		}
		return createdBefore(a, b)
	})
}

func createdBefore(a, b *VenueOption) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	if a.Seq != b.Seq {
		return a.Seq < b.Seq
	}
	return a.ID < b.ID
}

// VenueOptionRepository defines the interface for venue option storage.
type VenueOptionRepository interface {
	// Add inserts opt unless the event already has an option with the same source; in that case
	// the existing option is returned with created=false.
	Add(ctx context.Context, opt *VenueOption) (stored *VenueOption, created bool, err error)
	GetByID(ctx context.Context, id string) (*VenueOption, error)
	// ListByEvent returns options in SortOptions order.
	ListByEvent(ctx context.Context, eventID string) ([]*VenueOption, error)
	SetAIScore(ctx context.Context, id string, u AIScoreUpdate) (*VenueOption, error)
}

// RegistryService manages candidate venues.
type RegistryService interface {
	AddOption(ctx context.Context, eventID string, in VenueOptionInput) (*VenueOption, error)
	SetAiScore(ctx context.Context, optionID string, u AIScoreUpdate) (*VenueOption, error)
	GetOptions(ctx context.Context, eventID string) ([]*VenueOption, error)
}
