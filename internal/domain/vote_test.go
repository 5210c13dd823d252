package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func option(id string, created time.Time, score *float64) *VenueOption {
	return &VenueOption{ID: id, EventID: "ev", CreatedAt: created, AIScore: score}
}

func votesFor(optionID string, values ...int) []*Vote {
	out := make([]*Vote, 0, len(values))
	for i, v := range values {
		out = append(out, &Vote{EventID: "ev", OptionID: optionID, VoterID: string(rune('a' + i)), Value: v})
	}
	return out
}

func score(v float64) *float64 { return &v }

func TestDetermineWinner(t *testing.T) {
	tests := []struct {
		name    string
		options []*VenueOption
		votes   []*Vote
		want    string
		wantErr error
	}{
		{
			name:    "highest sum wins",
			options: []*VenueOption{option("A", t0, score(40)), option("B", t0, score(90))},
			votes:   append(votesFor("A", 5, 4, -1), votesFor("B", 3, 3)...),
			want:    "A",
		},
		{
			name:    "tie goes to higher ai score",
			options: []*VenueOption{option("A", t0, score(40)), option("B", t0, score(90))},
			votes:   append(votesFor("A", 3), votesFor("B", 3)...),
			want:    "B",
		},
		{
			name:    "unscored loses the ai tie break",
			options: []*VenueOption{option("A", t0, nil), option("B", t0.Add(time.Hour), score(0))},
			votes:   append(votesFor("A", 2), votesFor("B", 2)...),
			want:    "B",
		},
		{
			name:    "then earliest created",
			options: []*VenueOption{option("late", t0.Add(time.Minute), score(50)), option("early", t0, score(50))},
			votes:   append(votesFor("late", 1), votesFor("early", 1)...),
			want:    "early",
		},
		{
			name:    "option without votes is not a candidate",
			options: []*VenueOption{option("A", t0, score(99)), option("B", t0, score(1))},
			votes:   votesFor("B", -1),
			want:    "B",
		},
		{
			name:    "neutral votes still make a candidate",
			options: []*VenueOption{option("A", t0, score(10))},
			votes:   votesFor("A", 0, 0),
			want:    "A",
		},
		{
			name:    "no votes",
			options: []*VenueOption{option("A", t0, score(99))},
			wantErr: ErrNoCandidates,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetermineWinner(tt.options, tt.votes)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.ID)
		})
	}
}

func TestComputeStatistics(t *testing.T) {
	options := []*VenueOption{option("A", t0, nil), option("B", t0, nil), option("C", t0, nil)}
	votes := append(votesFor("A", 5, 0, -1), votesFor("B", 2)...)
	deadline := t0.Add(90 * time.Minute)

	stats := ComputeStatistics("ev", options, votes, []string{"a", "b", "c", "d"}, &deadline, t0)
	assert.Equal(t, 4, stats.TotalParticipants)
	assert.Equal(t, 3, stats.VotedCount)
	assert.InDelta(t, 0.75, stats.VoteProgress, 1e-9)
	assert.Equal(t, []OptionTally{
		{OptionID: "A", VoteScore: 4, VoteCount: 2},
		{OptionID: "B", VoteScore: 2, VoteCount: 1},
		{OptionID: "C"},
	}, stats.Options)
	require.NotNil(t, stats.TimeRemaining)
	assert.Equal(t, 90*time.Minute, *stats.TimeRemaining)

	// b and c declined after voting
	left := ComputeStatistics("ev", options, votes, []string{"a", "d"}, &deadline, t0)
	assert.Equal(t, 2, left.TotalParticipants)
	assert.Equal(t, 1, left.VotedCount)
	assert.InDelta(t, 0.5, left.VoteProgress, 1e-9)

	past := ComputeStatistics("ev", options, nil, nil, &deadline, deadline.Add(time.Hour))
	assert.Zero(t, past.VoteProgress)
	assert.Equal(t, time.Duration(0), *past.TimeRemaining)

	none := ComputeStatistics("ev", nil, nil, nil, nil, t0)
	assert.Nil(t, none.TimeRemaining)
	assert.Empty(t, none.Options)
}

func TestValidateVoteValue(t *testing.T) {
	for v := MinVoteValue; v <= MaxVoteValue; v++ {
		assert.NoError(t, ValidateVoteValue(v))
	}
	assert.ErrorIs(t, ValidateVoteValue(-2), ErrInvalidInput)
	assert.ErrorIs(t, ValidateVoteValue(6), ErrInvalidInput)
}

func TestSortOptions(t *testing.T) {
	opts := []*VenueOption{
		option("unscored-early", t0, nil),
		option("low", t0.Add(time.Minute), score(10)),
		option("high", t0.Add(2*time.Minute), score(80)),
		option("unscored-late", t0.Add(3*time.Minute), nil),
	}
	SortOptions(opts)
	ids := make([]string, 0, len(opts))
	for _, o := range opts {
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []string{"high", "low", "unscored-early", "unscored-late"}, ids)
}
