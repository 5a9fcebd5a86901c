package external

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"roadrisk/internal/types"
)

// osrmBase is the default routing API endpoint.
// Overridable in tests via OSRMClientConfig.BaseURL.
const osrmBase = "https://router.project-osrm.org"

// OSRMClientConfig holds the configuration for creating an OSRMClient.
type OSRMClientConfig struct {
	BaseURL string // Override for testing; defaults to osrmBase
	Logger  *slog.Logger
}

// osrmResponse mirrors the subset of the route API payload we consume.
// Geometry is requested as GeoJSON, so coordinates are [lng, lat] pairs.
type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"` // meters
		Duration float64 `json:"duration"` // seconds
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

// OSRMClient implements RoutingClient against an OSRM route API through
// BaseClient. Routing failures are absorbed upstream into a straight-line
// fallback, so this client never retries.
type OSRMClient struct {
	base    *BaseClient
	baseURL string
	logger  *slog.Logger
}

// NewOSRMClient creates an OSRMClient.
func NewOSRMClient(httpClient *http.Client, cfg OSRMClientConfig) *OSRMClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = osrmBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(httpClient, "osrm", NoRetryPolicy(), "roadrisk/1.0")

	return &OSRMClient{
		base:    base,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// NewOSRMClientWithBase creates an OSRMClient with a pre-configured
// BaseClient.
func NewOSRMClientWithBase(base *BaseClient, cfg OSRMClientConfig) *OSRMClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = osrmBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &OSRMClient{
		base:    base,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// Route resolves the best driving path from origin to dest. A response code
// other than "Ok", or an empty route list, is a routing failure.
func (c *OSRMClient) Route(ctx context.Context, origin, dest types.Point) (*Route, error) {
	url := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?overview=full&geometries=geojson",
		c.baseURL, origin.Lng, origin.Lat, dest.Lng, dest.Lat)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create routing request", err)
	}

	resp, err := c.base.Do(req)
	if err != nil {
		var appErr *types.AppError
		if isAppError(err, &appErr) {
			return nil, types.NewAppError(types.ErrCodeUpstreamRouting, "routing API: "+appErr.Message, appErr.Err)
		}
		return nil, types.NewAppError(types.ErrCodeUpstreamRouting, "routing API request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamRouting,
			fmt.Sprintf("routing API returned %d", resp.StatusCode),
			nil,
		)
	}

	var body osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamRouting, "failed to decode routing response", err)
	}

	if body.Code != "Ok" || len(body.Routes) == 0 {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamRouting,
			fmt.Sprintf("routing API status %q with %d routes", body.Code, len(body.Routes)),
			nil,
		)
	}

	best := body.Routes[0]
	path := make([]types.Point, 0, len(best.Geometry.Coordinates))
	for _, coord := range best.Geometry.Coordinates {
		if len(coord) < 2 {
			continue
		}
		path = append(path, types.Point{Lat: coord[1], Lng: coord[0]})
	}
	if len(path) < 2 {
		return nil, types.NewAppError(types.ErrCodeUpstreamRouting, "routing API returned a degenerate geometry", nil)
	}

	return &Route{
		Path:        path,
		DistanceKm:  best.Distance / 1000,
		DurationMin: best.Duration / 60,
	}, nil
}

// Compile-time interface compliance check.
var _ RoutingClient = (*OSRMClient)(nil)
