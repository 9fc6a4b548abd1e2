package agent

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// MetaResult is the landmark metadata service's batch summary.
type MetaResult struct {
	Status    string `json:"status"`
	Generated int    `json:"generated"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}

// LandmarkMetaClient asks the metadata service to describe landmarks.
type LandmarkMetaClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewLandmarkMetaClient creates a new metadata client.
func NewLandmarkMetaClient(baseURL string, timeout time.Duration, logger *slog.Logger) *LandmarkMetaClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LandmarkMetaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Generate requests metadata for a batch of landmark ids.
// Empty and duplicate ids are dropped; an empty batch makes no request.
func (c *LandmarkMetaClient) Generate(ctx context.Context, ids []string) (MetaResult, error) {
	batch := dedupe(ids)
	if len(batch) == 0 {
		return MetaResult{Status: "empty"}, nil
	}

	var out MetaResult
	body := map[string][]string{"landmarkIds": batch}
	if err := postJSON(ctx, c.httpClient, c.baseURL+"/generate-landmark-meta", body, &out); err != nil {
		return MetaResult{}, err
	}
	return out, nil
}

// EnsureMeta implements round.MetaEnsurer.
func (c *LandmarkMetaClient) EnsureMeta(ctx context.Context, ids []string) error {
	res, err := c.Generate(ctx, ids)
	if err != nil {
		return err
	}
	c.logger.Debug("landmark meta batch",
		"size", len(ids),
		"status", res.Status,
		"generated", res.Generated,
		"skipped", res.Skipped,
		"failed", res.Failed,
	)
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
