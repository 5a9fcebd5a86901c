package enrich

import (
	"context"
	"log/slog"
	"math"
	"time"

	"roadrisk/internal/cache"
	"roadrisk/internal/external"
	"roadrisk/internal/observability"
	"roadrisk/internal/types"
)

// compassLabels are the 16 compass points in clockwise order from north.
var compassLabels = [16]string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// calmThresholdMph is the wind speed below which direction is reported as
// CALM regardless of the measured bearing.
const calmThresholdMph = 0.5

// WMO weather code memberships. Codes outside every set but still present
// map to "Other"; a missing code maps to "Unknown".
var (
	wmoFog          = map[int]bool{45: true, 48: true}
	wmoDrizzle      = map[int]bool{51: true, 53: true, 55: true, 56: true, 57: true}
	wmoRain         = map[int]bool{61: true, 63: true, 65: true, 66: true, 67: true, 80: true, 81: true, 82: true}
	wmoSnow         = map[int]bool{71: true, 73: true, 75: true, 77: true, 85: true, 86: true}
	wmoThunderstorm = map[int]bool{95: true, 96: true, 99: true}
)

// WeatherProvider resolves the weather slice of a feature row: current
// conditions plus nearest-hour visibility, normalized to canonical units and
// categorical labels, cached per 3-decimal cell and calendar hour.
type WeatherProvider struct {
	client  external.WeatherClient
	caches  *cache.Service
	vocab   *Vocab
	logger  *slog.Logger
	metrics *observability.Collector
}

// NewWeatherProvider creates a WeatherProvider.
func NewWeatherProvider(
	client external.WeatherClient,
	caches *cache.Service,
	vocab *Vocab,
	logger *slog.Logger,
	metrics *observability.Collector,
) *WeatherProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &WeatherProvider{
		client:  client,
		caches:  caches,
		vocab:   vocab,
		logger:  logger,
		metrics: metrics,
	}
}

// Features fetches the weather features for a point and instant, consulting
// the cache first. On any upstream failure it returns the provider error;
// the row builder absorbs it into the documented field defaults.
func (p *WeatherProvider) Features(ctx context.Context, pt types.Point, at time.Time) (types.WeatherFeatures, error) {
	key := cache.WeatherKey(pt, at)
	if cached, ok := p.caches.Weather.Get(key); ok {
		p.metrics.CacheHit("weather")
		return cached, nil
	}
	p.metrics.CacheMiss("weather")

	obs, err := p.client.Current(ctx, pt, at)
	if err != nil {
		p.metrics.ProviderFailure("weather")
		p.logger.WarnContext(ctx, "weather provider failed",
			"lat", pt.Lat, "lng", pt.Lng, "error", err,
		)
		return types.WeatherFeatures{}, err
	}

	features := types.WeatherFeatures{
		TemperatureF:    obs.TemperatureF,
		HumidityPct:     obs.HumidityPct,
		PressureInHg:    obs.PressureInHg,
		VisibilityMi:    obs.VisibilityMi,
		WindSpeedMph:    obs.WindSpeedMph,
		PrecipitationIn: obs.PrecipitationIn,
		WindDirection: p.vocab.Clamp("Wind_Direction",
			windDirectionLabel(obs.WindDirectionDeg, obs.WindSpeedMph), "Unknown"),
		WeatherCondition: p.vocab.Clamp("Weather_Condition",
			weatherConditionLabel(obs.WeatherCode), "Other"),
	}

	p.caches.Weather.Set(key, features)
	return features, nil
}

// windDirectionLabel maps a wind bearing to one of the 16 compass points.
// Speeds under the calm threshold force "CALM"; a missing bearing is
// "Unknown".
func windDirectionLabel(deg, speedMph *float64) string {
	if speedMph != nil && *speedMph < calmThresholdMph {
		return "CALM"
	}
	if deg == nil {
		return "Unknown"
	}
	idx := int(math.Round(*deg/22.5)) % 16
	if idx < 0 {
		idx += 16
	}
	return compassLabels[idx]
}

// weatherConditionLabel maps a WMO weather code to the canonical label set.
func weatherConditionLabel(code *int) string {
	if code == nil {
		return "Unknown"
	}
	switch {
	case *code == 0:
		return "Clear"
	case *code == 1:
		return "Fair"
	case *code == 2:
		return "Partly Cloudy"
	case *code == 3:
		return "Overcast"
	case wmoFog[*code]:
		return "Fog"
	case wmoDrizzle[*code]:
		return "Drizzle"
	case wmoRain[*code]:
		return "Rain"
	case wmoSnow[*code]:
		return "Snow"
	case wmoThunderstorm[*code]:
		return "Thunderstorm"
	default:
		return "Other"
	}
}
