package external

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"roadrisk/internal/types"
)

// sunTimesBase is the default sun-times API endpoint.
// Overridable in tests via SunTimesClientConfig.BaseURL.
const sunTimesBase = "https://api.sunrise-sunset.org/json"

// SunTimesClientConfig holds the configuration for creating a
// SunTimesHTTPClient.
type SunTimesClientConfig struct {
	BaseURL string // Override for testing; defaults to sunTimesBase
	Logger  *slog.Logger
}

// sunTimesResponse mirrors the formatted=0 payload: RFC3339 UTC instants
// plus a status string that must read "OK".
type sunTimesResponse struct {
	Status  string `json:"status"`
	Results struct {
		Sunrise                   string `json:"sunrise"`
		Sunset                    string `json:"sunset"`
		CivilTwilightBegin        string `json:"civil_twilight_begin"`
		CivilTwilightEnd          string `json:"civil_twilight_end"`
		NauticalTwilightBegin     string `json:"nautical_twilight_begin"`
		NauticalTwilightEnd       string `json:"nautical_twilight_end"`
		AstronomicalTwilightBegin string `json:"astronomical_twilight_begin"`
		AstronomicalTwilightEnd   string `json:"astronomical_twilight_end"`
	} `json:"results"`
}

// SunTimesHTTPClient implements SunTimesClient against the sunrise-sunset.org
// API through BaseClient. Like all geodata clients it never retries.
type SunTimesHTTPClient struct {
	base    *BaseClient
	baseURL string
	logger  *slog.Logger
}

// NewSunTimesClient creates a SunTimesHTTPClient.
func NewSunTimesClient(httpClient *http.Client, cfg SunTimesClientConfig) *SunTimesHTTPClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = sunTimesBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(httpClient, "sun-times", NoRetryPolicy(), "roadrisk/1.0")

	return &SunTimesHTTPClient{
		base:    base,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// NewSunTimesClientWithBase creates a SunTimesHTTPClient with a
// pre-configured BaseClient.
func NewSunTimesClientWithBase(base *BaseClient, cfg SunTimesClientConfig) *SunTimesHTTPClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = sunTimesBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &SunTimesHTTPClient{
		base:    base,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// Windows fetches the twilight windows for the given point and calendar
// date. formatted=0 requests machine-readable RFC3339 instants; any status
// other than "OK" is a provider failure.
func (c *SunTimesHTTPClient) Windows(ctx context.Context, p types.Point, date time.Time) (*TwilightWindows, error) {
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%f", p.Lat))
	q.Set("lng", fmt.Sprintf("%f", p.Lng))
	q.Set("date", date.Format("2006-01-02"))
	q.Set("formatted", "0")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create sun-times request", err)
	}

	resp, err := c.base.Do(req)
	if err != nil {
		var appErr *types.AppError
		if isAppError(err, &appErr) {
			return nil, types.NewAppError(types.ErrCodeUpstreamGeodata, "sun-times API: "+appErr.Message, appErr.Err)
		}
		return nil, types.NewAppError(types.ErrCodeUpstreamGeodata, "sun-times API request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamGeodata,
			fmt.Sprintf("sun-times API returned %d", resp.StatusCode),
			nil,
		)
	}

	var body sunTimesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamGeodata, "failed to decode sun-times response", err)
	}

	if body.Status != "OK" {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamGeodata,
			fmt.Sprintf("sun-times API status %q", body.Status),
			nil,
		)
	}

	w := &TwilightWindows{}
	fields := []struct {
		raw string
		dst *time.Time
	}{
		{body.Results.Sunrise, &w.Sunrise},
		{body.Results.Sunset, &w.Sunset},
		{body.Results.CivilTwilightBegin, &w.CivilBegin},
		{body.Results.CivilTwilightEnd, &w.CivilEnd},
		{body.Results.NauticalTwilightBegin, &w.NauticalBegin},
		{body.Results.NauticalTwilightEnd, &w.NauticalEnd},
		{body.Results.AstronomicalTwilightBegin, &w.AstronomicalBegin},
		{body.Results.AstronomicalTwilightEnd, &w.AstronomicalEnd},
	}
	for _, f := range fields {
		t, err := time.Parse(time.RFC3339, f.raw)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeUpstreamGeodata, "malformed sun-times timestamp", err)
		}
		*f.dst = t
	}

	return w, nil
}

// Compile-time interface compliance check.
var _ SunTimesClient = (*SunTimesHTTPClient)(nil)
