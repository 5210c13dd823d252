package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gatherplan/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPEngine_ScoreVenues(t *testing.T) {
	var got domain.ScoreRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/score", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"option_id":"opt-1","score":81,"reasoning":"close","pros":["near"],"cons":[]}`)
		w.(http.Flusher).Flush()
		fmt.Fprintln(w, `{"option_id":"opt-2","score":40,"reasoning":"pricey"}`)
	}))
	defer srv.Close()

	engine := NewHTTPEngine(srv.Client(), srv.URL+"/")
	req := domain.ScoreRequest{
		Event:       &domain.Event{ID: "ev-1", Title: "Team dinner"},
		Options:     []*domain.VenueOption{{ID: "opt-1"}, {ID: "opt-2"}},
		Preferences: domain.GroupPreferences{Respondents: 2},
	}

	var scores []domain.VenueScore
	err := engine.ScoreVenues(context.Background(), req, func(s domain.VenueScore) error {
		scores = append(scores, s)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Equal(t, "opt-1", scores[0].OptionID)
	assert.Equal(t, 81.0, scores[0].Score)
	assert.Equal(t, []string{"near"}, scores[0].Pros)
	assert.Equal(t, "opt-2", scores[1].OptionID)
	assert.Equal(t, "ev-1", got.Event.ID)
	assert.Len(t, got.Options, 2)
}

func TestHTTPEngine_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		emitErr error
		wantErr string
	}{
		{
			name: "non-200",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			wantErr: "status: 502",
		},
		{
			name: "malformed line",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprintln(w, `{"option_id":"opt-1","score":10}`)
				fmt.Fprintln(w, `{"option_id":`)
			},
			wantErr: "decode venue score",
		},
		{
			name: "emit aborts the stream",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprintln(w, `{"option_id":"opt-1","score":10}`)
				fmt.Fprintln(w, `{"option_id":"opt-2","score":20}`)
			},
			emitErr: errors.New("event cancelled"),
			wantErr: "event cancelled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			calls := 0
			err := NewHTTPEngine(srv.Client(), srv.URL).ScoreVenues(context.Background(), domain.ScoreRequest{}, func(domain.VenueScore) error {
				calls++
				return tt.emitErr
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			if tt.emitErr != nil {
				assert.Equal(t, 1, calls)
			}
		})
	}
}

func TestHTTPEngine_ContextDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"option_id":"opt-1","score":55}`)
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var scores []domain.VenueScore
	err := NewHTTPEngine(srv.Client(), srv.URL).ScoreVenues(ctx, domain.ScoreRequest{}, func(s domain.VenueScore) error {
		scores = append(scores, s)
		return nil
	})
	require.Error(t, err)
	require.Len(t, scores, 1)
}
