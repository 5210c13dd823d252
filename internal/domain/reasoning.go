package domain

import "context"

// VenueScore is one result streamed by the reasoning engine.
type VenueScore struct {
	OptionID  string   `json:"option_id"`
	Score     float64  `json:"score"`
	Reasoning string   `json:"reasoning"`
	Pros      []string `json:"pros"`
	Cons      []string `json:"cons"`
}

// ScoreRequest is the input of a scoring run.
type ScoreRequest struct {
	Event       *Event           `json:"event"`
	Options     []*VenueOption   `json:"options"`
	Preferences GroupPreferences `json:"preferences"`
}

// ReasoningEngine scores venue options. Results are delivered to emit one at a time, in arrival
// order; a non-nil error from emit aborts the run.
type ReasoningEngine interface {
	ScoreVenues(ctx context.Context, req ScoreRequest, emit func(VenueScore) error) error
}

// RecommendationCoordinator runs a scoring pass for an event that entered AIRecommending.
type RecommendationCoordinator interface {
	// Trigger starts the pass in the background and returns immediately.
	Trigger(eventID string)
	// Run performs the pass synchronously.
	Run(ctx context.Context, eventID string) error
}
