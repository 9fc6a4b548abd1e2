// Package agent holds HTTP clients for the puzzle and landmark metadata services.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/landmarkhunt/hunt/internal/round"
)

// DefaultTimeout applies when a client is created with a non-positive timeout.
const DefaultTimeout = 10 * time.Second

// ErrNoRiddle is returned when the puzzle service answers without a riddle.
var ErrNoRiddle = errors.New("response has no riddle")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Endpoint string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Endpoint, e.Code)
}

// PuzzleClient talks to the puzzle generation service.
type PuzzleClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewPuzzleClient creates a new puzzle client.
func NewPuzzleClient(baseURL string, timeout time.Duration) *PuzzleClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &PuzzleClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type riddleRequest struct {
	SessionID  string   `json:"sessionId,omitempty"`
	LandmarkID string   `json:"landmarkId"`
	Difficulty float64  `json:"difficulty"`
	Language   string   `json:"language"`
	Style      string   `json:"style"`
	PuzzlePool []string `json:"puzzlePool"`
}

type riddleResponse struct {
	Riddle *string `json:"riddle"`
}

// Generate requests a riddle for one landmark.
func (c *PuzzleClient) Generate(ctx context.Context, req round.PuzzleRequest) (string, error) {
	body := riddleRequest{
		SessionID:  req.SessionID,
		LandmarkID: req.LandmarkID,
		Difficulty: req.Difficulty,
		Language:   req.Language,
		Style:      req.Style,
		PuzzlePool: req.PoolIDs,
	}

	var out riddleResponse
	if err := postJSON(ctx, c.httpClient, c.baseURL+"/generate-riddle", body, &out); err != nil {
		return "", err
	}
	if out.Riddle == nil {
		return "", ErrNoRiddle
	}
	return *out.Riddle, nil
}

// Reset drops the puzzle service's state for a session.
func (c *PuzzleClient) Reset(ctx context.Context, sessionID string) error {
	body := map[string]string{"session_id": sessionID}
	return postJSON(ctx, c.httpClient, c.baseURL+"/reset-session", body, nil)
}

// postJSON sends body as JSON and decodes the response into out when out is not nil.
func postJSON(ctx context.Context, client *http.Client, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{Endpoint: url, Code: resp.StatusCode}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", url, err)
	}
	return nil
}
