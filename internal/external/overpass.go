package external

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"roadrisk/internal/types"
)

// overpassBase is the default map-tag query API endpoint.
// Overridable in tests via OverpassClientConfig.BaseURL.
const overpassBase = "https://overpass-api.de/api/interpreter"

// Query radii in meters, per tag family. At-grade features (signals, stops,
// crossings) only matter right at the point; rail and junction geometry is
// coarser; amenities and stations influence a wider area.
const (
	radiusAtGradeM = 35
	radiusRailM    = 60
	radiusAmenityM = 120
)

// OverpassClientConfig holds the configuration for creating an
// OverpassHTTPClient.
type OverpassClientConfig struct {
	BaseURL string // Override for testing; defaults to overpassBase
	Logger  *slog.Logger
}

// overpassResponse mirrors the JSON output of an `[out:json]` query.
type overpassResponse struct {
	Elements []TaggedElement `json:"elements"`
}

// OverpassHTTPClient implements MapTagClient against an Overpass
// interpreter through BaseClient. Queries POST the QL source as the `data`
// form field. Never retried; the caller falls back to all-zero flags.
type OverpassHTTPClient struct {
	base    *BaseClient
	baseURL string
	logger  *slog.Logger
}

// NewOverpassClient creates an OverpassHTTPClient.
func NewOverpassClient(httpClient *http.Client, cfg OverpassClientConfig) *OverpassHTTPClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = overpassBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(httpClient, "overpass", NoRetryPolicy(), "roadrisk/1.0")

	return &OverpassHTTPClient{
		base:    base,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// NewOverpassClientWithBase creates an OverpassHTTPClient with a
// pre-configured BaseClient.
func NewOverpassClientWithBase(base *BaseClient, cfg OverpassClientConfig) *OverpassHTTPClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = overpassBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &OverpassHTTPClient{
		base:    base,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// buildQuery assembles the radius-bounded QL query for one point. Each tag
// family uses its own radius.
func buildQuery(p types.Point) string {
	var b strings.Builder
	b.WriteString("[out:json][timeout:10];(")
	write := func(radius int, tag string) {
		fmt.Fprintf(&b, "node(around:%d,%f,%f)[%s];", radius, p.Lat, p.Lng, tag)
	}
	for _, tag := range []string{"highway", "traffic_calming", "crossing", "noexit"} {
		write(radiusAtGradeM, tag)
	}
	for _, tag := range []string{"railway", "junction"} {
		write(radiusRailM, tag)
	}
	for _, tag := range []string{"amenity", "public_transport"} {
		write(radiusAmenityM, tag)
	}
	b.WriteString(");out tags;")
	return b.String()
}

// ElementsNear queries tagged map features around the point. Returns the
// raw elements; flag derivation lives in the enrichment layer.
func (c *OverpassHTTPClient) ElementsNear(ctx context.Context, p types.Point) ([]TaggedElement, error) {
	form := url.Values{}
	form.Set("data", buildQuery(p))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create map-tag request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.base.Do(req)
	if err != nil {
		var appErr *types.AppError
		if isAppError(err, &appErr) {
			return nil, types.NewAppError(types.ErrCodeUpstreamGeodata, "map-tag API: "+appErr.Message, appErr.Err)
		}
		return nil, types.NewAppError(types.ErrCodeUpstreamGeodata, "map-tag API request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamGeodata,
			fmt.Sprintf("map-tag API returned %d", resp.StatusCode),
			nil,
		)
	}

	var body overpassResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamGeodata, "failed to decode map-tag response", err)
	}

	return body.Elements, nil
}

// Compile-time interface compliance check.
var _ MapTagClient = (*OverpassHTTPClient)(nil)
