package external

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"roadrisk/internal/types"
)

// openMeteoBase is the default forecast API endpoint.
// Overridable in tests via OpenMeteoClientConfig.BaseURL.
const openMeteoBase = "https://api.open-meteo.com/v1/forecast"

// Unit conversion factors. Temperature, wind speed and precipitation are
// requested in US customary units at the call site; pressure and visibility
// are only served metric and converted here.
const (
	hPaPerInHg    = 33.8639
	metersPerMile = 1609.344
)

// OpenMeteoClientConfig holds the configuration for creating an
// OpenMeteoClient.
type OpenMeteoClientConfig struct {
	BaseURL string // Override for testing; defaults to openMeteoBase
	Logger  *slog.Logger
}

// openMeteoResponse mirrors the subset of the forecast payload we consume.
type openMeteoResponse struct {
	Current struct {
		Time             string   `json:"time"`
		Temperature2m    *float64 `json:"temperature_2m"`
		RelativeHumidity *float64 `json:"relative_humidity_2m"`
		PressureMsl      *float64 `json:"pressure_msl"`
		Precipitation    *float64 `json:"precipitation"`
		WindSpeed10m     *float64 `json:"wind_speed_10m"`
		WindDirection10m *float64 `json:"wind_direction_10m"`
		WeatherCode      *int     `json:"weather_code"`
	} `json:"current"`
	Hourly struct {
		Time       []string   `json:"time"`
		Visibility []*float64 `json:"visibility"`
	} `json:"hourly"`
}

// OpenMeteoClient implements WeatherClient against the Open-Meteo forecast
// API through BaseClient. Geodata calls are never retried: every failure has
// a documented fallback upstream, so the client uses NoRetryPolicy.
type OpenMeteoClient struct {
	base    *BaseClient
	baseURL string
	logger  *slog.Logger
}

// NewOpenMeteoClient creates an OpenMeteoClient. The httpClient timeout
// should carry the configured per-provider timeout (default 8s).
func NewOpenMeteoClient(httpClient *http.Client, cfg OpenMeteoClientConfig) *OpenMeteoClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openMeteoBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(httpClient, "open-meteo", NoRetryPolicy(), "roadrisk/1.0")

	return &OpenMeteoClient{
		base:    base,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// NewOpenMeteoClientWithBase creates an OpenMeteoClient with a
// pre-configured BaseClient, for tests that control breaker behavior.
func NewOpenMeteoClientWithBase(base *BaseClient, cfg OpenMeteoClientConfig) *OpenMeteoClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openMeteoBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &OpenMeteoClient{
		base:    base,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// Current fetches current conditions plus the hourly visibility series and
// selects the visibility sample nearest to the requested instant (ties go to
// the first occurrence). Units are fixed to US customary at the call site;
// pressure and visibility arrive metric and are converted locally.
func (c *OpenMeteoClient) Current(ctx context.Context, p types.Point, at time.Time) (*WeatherObservation, error) {
	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%f", p.Lat))
	q.Set("longitude", fmt.Sprintf("%f", p.Lng))
	q.Set("current", strings.Join([]string{
		"temperature_2m",
		"relative_humidity_2m",
		"pressure_msl",
		"precipitation",
		"wind_speed_10m",
		"wind_direction_10m",
		"weather_code",
	}, ","))
	q.Set("hourly", "visibility")
	q.Set("forecast_days", "1")
	q.Set("timezone", "auto")
	q.Set("temperature_unit", "fahrenheit")
	q.Set("wind_speed_unit", "mph")
	q.Set("precipitation_unit", "inch")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create weather request", err)
	}

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, c.wrapError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamGeodata,
			fmt.Sprintf("weather API returned %d", resp.StatusCode),
			nil,
		)
	}

	var body openMeteoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamGeodata, "failed to decode weather response", err)
	}

	obs := &WeatherObservation{
		TemperatureF:     body.Current.Temperature2m,
		HumidityPct:      body.Current.RelativeHumidity,
		PrecipitationIn:  body.Current.Precipitation,
		WindSpeedMph:     body.Current.WindSpeed10m,
		WindDirectionDeg: body.Current.WindDirection10m,
		WeatherCode:      body.Current.WeatherCode,
	}

	if hpa := body.Current.PressureMsl; hpa != nil {
		inHg := *hpa / hPaPerInHg
		obs.PressureInHg = &inHg
	}

	// Prefer the provider's own current-observation time as the reference
	// for the nearest-hour match; it shares the hourly series' timezone.
	ref := at
	if t, ok := parseProviderTime(body.Current.Time); ok {
		ref = t
	}
	if m := nearestVisibility(body.Hourly.Time, body.Hourly.Visibility, ref); m != nil {
		mi := *m / metersPerMile
		obs.VisibilityMi = &mi
	}

	return obs, nil
}

// nearestVisibility picks the visibility sample whose timestamp is nearest
// to ref. Strict less-than keeps the first occurrence on ties. Returns nil
// when no sample is usable.
func nearestVisibility(times []string, values []*float64, ref time.Time) *float64 {
	bestDiff := time.Duration(math.MaxInt64)
	var best *float64
	for i, ts := range times {
		if i >= len(values) || values[i] == nil {
			continue
		}
		t, ok := parseProviderTime(ts)
		if !ok {
			continue
		}
		diff := t.Sub(ref)
		if diff < 0 {
			diff = -diff
		}
		if diff < bestDiff {
			bestDiff = diff
			best = values[i]
		}
	}
	return best
}

// parseProviderTime parses the minute-resolution local timestamps the
// forecast API emits, falling back to RFC3339.
func parseProviderTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse("2006-01-02T15:04", s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// wrapError converts BaseClient errors into geodata provider errors. The
// caller absorbs these into row-level defaults; the code exists so provider
// failures report uniformly in logs and metrics.
func (c *OpenMeteoClient) wrapError(err error) error {
	var appErr *types.AppError
	if isAppError(err, &appErr) {
		return types.NewAppError(types.ErrCodeUpstreamGeodata, "weather API: "+appErr.Message, appErr.Err)
	}
	return types.NewAppError(types.ErrCodeUpstreamGeodata, "weather API request failed", err)
}

// Compile-time interface compliance check.
var _ WeatherClient = (*OpenMeteoClient)(nil)
