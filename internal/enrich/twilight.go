package enrich

import (
	"context"
	"log/slog"
	"time"

	"roadrisk/internal/cache"
	"roadrisk/internal/external"
	"roadrisk/internal/observability"
	"roadrisk/internal/types"
)

// Heuristic daylight window used when the sun-times API cannot answer:
// local hour in [6,18) counts as Day.
const (
	heuristicDayStartHour = 6
	heuristicDayEndHour   = 18
)

// TwilightProvider resolves the four Day/Night twilight fields for a point
// and date, cached per 3-decimal cell and calendar date. Unlike the weather
// provider it absorbs its own failures: any upstream problem yields the
// hour-of-day heuristic, cached under the same key as a success so a broken
// upstream is not re-queried for the same point and date.
type TwilightProvider struct {
	client  external.SunTimesClient
	caches  *cache.Service
	logger  *slog.Logger
	metrics *observability.Collector
}

// NewTwilightProvider creates a TwilightProvider.
func NewTwilightProvider(
	client external.SunTimesClient,
	caches *cache.Service,
	logger *slog.Logger,
	metrics *observability.Collector,
) *TwilightProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &TwilightProvider{
		client:  client,
		caches:  caches,
		logger:  logger,
		metrics: metrics,
	}
}

// Fields returns the four twilight indicators for a point and instant.
// It never fails.
func (p *TwilightProvider) Fields(ctx context.Context, pt types.Point, at time.Time) types.TwilightFields {
	key := cache.TwilightKey(pt, at)
	if cached, ok := p.caches.Twilight.Get(key); ok {
		p.metrics.CacheHit("twilight")
		return cached
	}
	p.metrics.CacheMiss("twilight")

	windows, err := p.client.Windows(ctx, pt, at)
	if err != nil {
		p.metrics.ProviderFailure("suntimes")
		p.logger.WarnContext(ctx, "sun-times provider failed, using hour heuristic",
			"lat", pt.Lat, "lng", pt.Lng, "error", err,
		)
		fallback := heuristicTwilight(at)
		p.caches.Twilight.Set(key, fallback)
		return fallback
	}

	fields := types.TwilightFields{
		SunriseSunset:        dayOrNight(at, windows.Sunrise, windows.Sunset),
		CivilTwilight:        dayOrNight(at, windows.CivilBegin, windows.CivilEnd),
		NauticalTwilight:     dayOrNight(at, windows.NauticalBegin, windows.NauticalEnd),
		AstronomicalTwilight: dayOrNight(at, windows.AstronomicalBegin, windows.AstronomicalEnd),
	}

	p.caches.Twilight.Set(key, fields)
	return fields
}

// dayOrNight reports "Day" when at falls within [begin, end] inclusive.
func dayOrNight(at, begin, end time.Time) string {
	if !at.Before(begin) && !at.After(end) {
		return "Day"
	}
	return "Night"
}

// heuristicTwilight applies the hour-of-day fallback identically to all
// four fields.
func heuristicTwilight(at time.Time) types.TwilightFields {
	value := "Night"
	if h := at.Hour(); h >= heuristicDayStartHour && h < heuristicDayEndHour {
		value = "Day"
	}
	return types.TwilightFields{
		SunriseSunset:        value,
		CivilTwilight:        value,
		NauticalTwilight:     value,
		AstronomicalTwilight: value,
	}
}
