package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"gatherplan/internal/domain"
)

const scorePath = "/v1/score"

type httpEngine struct {
	client  *http.Client
	baseURL string
}

// NewHTTPEngine returns a reasoning engine that POSTs the scoring request to baseURL and reads the
// scores back as newline-delimited JSON, one VenueScore per line.
func NewHTTPEngine(client *http.Client, baseURL string) domain.ReasoningEngine {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpEngine{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (e *httpEngine) ScoreVenues(ctx context.Context, req domain.ScoreRequest, emit func(domain.VenueScore) error) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode score request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+scorePath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to call reasoning engine: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reasoning engine returned status: %d", resp.StatusCode)
	}

	dec := json.NewDecoder(resp.Body)
	for {
		var score domain.VenueScore
		if err := dec.Decode(&score); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to decode venue score: %w", err)
		}
		if err := emit(score); err != nil {
			return err
		}
	}
}

// NoopEngine scores nothing. Events stay in AIRecommending until scores arrive through the
// callback or the recommendation deadline resolves them.
type NoopEngine struct{}

func (NoopEngine) ScoreVenues(context.Context, domain.ScoreRequest, func(domain.VenueScore) error) error {
	return nil
}
