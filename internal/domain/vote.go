package domain

import (
	"context"
	"sort"
	"time"
)

// Vote value bounds: -1 is a downvote, 0 neutral, 1..5 a star rating.
const (
	MinVoteValue = -1
	MaxVoteValue = 5
)

// Vote is one participant's rating of one venue option.
// swagger:model Vote
type Vote struct {
	EventID   string    `json:"event_id"`
	OptionID  string    `json:"option_id"`
	VoterID   string    `json:"voter_id"`
	Value     int       `json:"value"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ValidateVoteValue checks the vote range.
func ValidateVoteValue(v int) error {
	if v < MinVoteValue || v > MaxVoteValue {
		return InvalidInputf("vote value %d outside [%d, %d]", v, MinVoteValue, MaxVoteValue)
	}
	return nil
}

// VoteRepository defines the interface for vote storage.
type VoteRepository interface {
	// Upsert inserts the vote or overwrites value and comment of the existing (option, voter) row.
	Upsert(ctx context.Context, v *Vote) error
	ListByEvent(ctx context.Context, eventID string) ([]*Vote, error)
}

// OptionTally is the aggregate of votes on one option.
type OptionTally struct {
	OptionID  string `json:"option_id"`
	VoteScore int    `json:"vote_score"`
	VoteCount int    `json:"vote_count"`
}

// VoteStatistics summarizes voting progress for an event.
// swagger:model VoteStatistics
type VoteStatistics struct {
	EventID           string        `json:"event_id"`
	TotalParticipants int           `json:"total_participants"`
	VotedCount        int           `json:"voted_count"`
	VoteProgress      float64       `json:"vote_progress"`
	Options           []OptionTally `json:"options"`
	// TimeRemaining is nil when the event has no voting deadline.
	TimeRemaining *time.Duration `json:"time_remaining,omitempty"`
}

// ComputeStatistics aggregates votes. Options without votes appear with zero tallies, in the
// order given. Progress counts only voters who are still accepted, so it never exceeds 1.
func ComputeStatistics(eventID string, options []*VenueOption, votes []*Vote, accepted []string, deadline *time.Time, now time.Time) VoteStatistics {
	stats := VoteStatistics{
		EventID:           eventID,
		TotalParticipants: len(accepted),
		Options:           make([]OptionTally, 0, len(options)),
	}
	tallies := tallyVotes(votes)
	for _, opt := range options {
		t := tallies[opt.ID]
		stats.Options = append(stats.Options, OptionTally{OptionID: opt.ID, VoteScore: t.score, VoteCount: t.nonNeutral})
	}
	attending := make(map[string]bool, len(accepted))
	for _, id := range accepted {
		attending[id] = true
	}
	voters := make(map[string]struct{})
	for _, v := range votes {
		if attending[v.VoterID] {
			voters[v.VoterID] = struct{}{}
		}
	}
	stats.VotedCount = len(voters)
	if len(accepted) > 0 {
		stats.VoteProgress = float64(stats.VotedCount) / float64(len(accepted))
	}
	if deadline != nil {
		remaining := deadline.Sub(now)
		if remaining < 0 {
			remaining = 0
		}
		stats.TimeRemaining = &remaining
	}
	return stats
}

type tally struct {
	score      int
	nonNeutral int
	rows       int
}

func tallyVotes(votes []*Vote) map[string]tally {
	out := make(map[string]tally)
	for _, v := range votes {
		t := out[v.OptionID]
		t.score += v.Value
		t.rows++
		if v.Value != 0 {
			t.nonNeutral++
		}
		out[v.OptionID] = t
	}
	return out
}

// DetermineWinner picks the option with the highest vote score among options that received at
// least one vote. Ties go to the higher AI score (unscored lowest), then the earliest created
// option. It returns ErrNoCandidates when no option has a vote.
func DetermineWinner(options []*VenueOption, votes []*Vote) (*VenueOption, error) {
	tallies := tallyVotes(votes)
	candidates := make([]*VenueOption, 0, len(options))
	for _, opt := range options {
		if tallies[opt.ID].rows > 0 {
			candidates = append(candidates, opt)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if sa, sb := tallies[a.ID].score, tallies[b.ID].score; sa != sb {
			return sa > sb
		}
		if aa, ab := aiScoreOrMin(a), aiScoreOrMin(b); aa != ab {
			return aa > ab
		}
		return createdBefore(a, b)
	})
	return candidates[0], nil
}

func aiScoreOrMin(o *VenueOption) float64 {
	if o.AIScore == nil {
		return MinAIScore - 1
	}
	return *o.AIScore
}

// TallyService records votes and computes results.
type TallyService interface {
	CastVote(ctx context.Context, eventID, optionID, voterID string, value int, comment string) (*Vote, error)
	GetStatistics(ctx context.Context, eventID string) (*VoteStatistics, error)
	DetermineWinner(ctx context.Context, eventID string) (*VenueOption, error)
}
