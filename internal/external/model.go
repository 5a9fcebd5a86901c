package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"roadrisk/internal/types"
)

// ModelClientConfig holds the configuration for creating a ModelHTTPClient.
type ModelClientConfig struct {
	BaseURL string
	Logger  *slog.Logger
}

// modelRowPayload is one row on the overlay wire: the feature row fields
// flattened alongside the sample id the service echoes back.
type modelRowPayload struct {
	types.FeatureRow
	SegmentID string `json:"segment_id"`
}

// modelOverlayRequest is the batched scoring request envelope.
type modelOverlayRequest struct {
	Rows []modelRowPayload `json:"rows"`
}

// modelOverlayResponse is the batched scoring response. Each result carries
// the echoed segment_id used to match predictions back to samples.
type modelOverlayResponse struct {
	Count   int `json:"count"`
	Results []struct {
		Index     int    `json:"index"`
		SegmentID string `json:"segment_id"`
		ModelScore
	} `json:"results"`
}

// modelExplainRequest wraps a row with the requested number of attribution
// entries.
type modelExplainRequest struct {
	Row  types.FeatureRow `json:"row"`
	TopK int              `json:"top_k,omitempty"`
}

// ModelHTTPClient implements ModelClient against the risk model service
// through BaseClient. Unlike the geodata clients, the model client keeps a
// retry policy: a model failure has no fallback and is surfaced to the
// caller, so transient 5xx/429 are worth retrying.
type ModelHTTPClient struct {
	base    *BaseClient
	baseURL string
	logger  *slog.Logger
}

// NewModelClient creates a ModelHTTPClient. The httpClient timeout should
// carry the configured model timeout (default 15s).
func NewModelClient(httpClient *http.Client, cfg ModelClientConfig) *ModelHTTPClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(httpClient, "risk-model", DefaultRetryPolicy(), "roadrisk/1.0")

	return &ModelHTTPClient{
		base:    base,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:  logger,
	}
}

// NewModelClientWithBase creates a ModelHTTPClient with a pre-configured
// BaseClient.
func NewModelClientWithBase(base *BaseClient, cfg ModelClientConfig) *ModelHTTPClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ModelHTTPClient{
		base:    base,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:  logger,
	}
}

// ScoreRow scores a single feature row via the model's single-row endpoint.
func (c *ModelHTTPClient) ScoreRow(ctx context.Context, row types.FeatureRow) (*ModelScore, error) {
	var score ModelScore
	if err := c.post(ctx, "/risk/current", row, &score); err != nil {
		return nil, err
	}
	return &score, nil
}

// ScoreBatch submits all rows in one overlay call and returns the scores
// keyed by sample id. Ids the model did not return are absent from the map;
// the orchestrator treats those samples as unscored.
func (c *ModelHTTPClient) ScoreBatch(ctx context.Context, rows []BatchRow) (map[string]ModelScore, error) {
	payload := modelOverlayRequest{Rows: make([]modelRowPayload, 0, len(rows))}
	for _, r := range rows {
		payload.Rows = append(payload.Rows, modelRowPayload{FeatureRow: r.Row, SegmentID: r.ID})
	}

	var body modelOverlayResponse
	if err := c.post(ctx, "/risk/overlay", payload, &body); err != nil {
		return nil, err
	}

	scores := make(map[string]ModelScore, len(body.Results))
	for _, r := range body.Results {
		if r.SegmentID == "" {
			continue
		}
		scores[r.SegmentID] = r.ModelScore
	}

	c.logger.DebugContext(ctx, "model overlay scored",
		"submitted", len(rows),
		"returned", len(scores),
	)

	return scores, nil
}

// Explain scores a row and returns the model's feature-attribution payload.
func (c *ModelHTTPClient) Explain(ctx context.Context, row types.FeatureRow, topK int) (*Explanation, error) {
	var exp Explanation
	if err := c.post(ctx, "/risk/explain", modelExplainRequest{Row: row, TopK: topK}, &exp); err != nil {
		return nil, err
	}
	return &exp, nil
}

// post runs one JSON round-trip against the model service and decodes the
// response into out. All failure modes map to the surfaced model error code.
func (c *ModelHTTPClient) post(ctx context.Context, path string, payload any, out any) error {
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to serialize model request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create model request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		var appErr *types.AppError
		if isAppError(err, &appErr) {
			return types.NewAppError(
				types.ErrCodeUpstreamModel,
				fmt.Sprintf("model service %s: %s", path, appErr.Message),
				appErr.Err,
			)
		}
		return types.NewAppError(types.ErrCodeUpstreamModel, fmt.Sprintf("model service %s failed", path), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error("model service error",
			"path", path,
			"status_code", resp.StatusCode,
			"response_body", string(errBody),
		)
		return types.NewAppError(
			types.ErrCodeUpstreamModel,
			fmt.Sprintf("model service %s returned %d", path, resp.StatusCode),
			fmt.Errorf("model %s returned %d: %s", path, resp.StatusCode, string(errBody)),
		)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamModel, "failed to decode model response", err)
	}

	return nil
}

// Compile-time interface compliance check.
var _ ModelClient = (*ModelHTTPClient)(nil)
