package enrich

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"roadrisk/internal/cache"
	"roadrisk/internal/external"
	"roadrisk/internal/observability"
	"roadrisk/internal/types"
)

// bumpValues are the traffic_calming values that additionally set Bump.
var bumpValues = map[string]bool{"hump": true, "bump": true, "table": true, "yes": true}

// RoadFlagProvider resolves the 13-flag road-infrastructure vector for a
// point. Caller-supplied flags pass through untouched; otherwise the cache
// is consulted and, on a miss, the map-tag API is queried. Any query failure
// falls back to all-zero flags, never an error.
//
// Queries against the shared map-tag service are throttled with a rate
// limiter so only real network calls pay the delay. Cache hits, supplied
// flags, and the disabled path return immediately.
type RoadFlagProvider struct {
	client  external.MapTagClient
	caches  *cache.Service
	enabled bool
	logger  *slog.Logger
	metrics *observability.Collector
	waitFn  func(context.Context) error // for testability; defaults to limiter.Wait
}

// RoadFlagProviderOption is a functional option for configuring a
// RoadFlagProvider.
type RoadFlagProviderOption func(*RoadFlagProvider)

// WithWaitFunc overrides the pre-query throttle wait. This is intended for
// tests that assert on throttling behavior without real delays.
func WithWaitFunc(fn func(context.Context) error) RoadFlagProviderOption {
	return func(p *RoadFlagProvider) {
		p.waitFn = fn
	}
}

// NewRoadFlagProvider creates a RoadFlagProvider throttled to one map-tag
// query per throttleDelay.
func NewRoadFlagProvider(
	client external.MapTagClient,
	caches *cache.Service,
	enabled bool,
	throttleDelay time.Duration,
	logger *slog.Logger,
	metrics *observability.Collector,
	opts ...RoadFlagProviderOption,
) *RoadFlagProvider {
	if logger == nil {
		logger = slog.Default()
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if throttleDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(throttleDelay), 1)
	}

	p := &RoadFlagProvider{
		client:  client,
		caches:  caches,
		enabled: enabled,
		logger:  logger,
		metrics: metrics,
		waitFn:  limiter.Wait,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Flags resolves the flag vector for a point. Supplied flags win over any
// lookup; a disabled provider returns all zeros. Never fails.
func (p *RoadFlagProvider) Flags(ctx context.Context, pt types.Point, supplied map[string]any) types.RoadFlags {
	if supplied != nil {
		return types.CoerceRoadFlags(supplied)
	}
	if !p.enabled {
		return types.RoadFlags{}
	}

	key := p.caches.FlagKey(pt)
	if cached, ok := p.caches.RoadFlags.Get(key); ok {
		p.metrics.CacheHit("roadflags")
		return cached
	}
	p.metrics.CacheMiss("roadflags")

	// Throttle only real network queries; a canceled wait counts as a
	// query failure and falls back to zero flags.
	if err := p.waitFn(ctx); err != nil {
		p.metrics.ProviderFailure("overpass")
		return types.RoadFlags{}
	}

	elements, err := p.client.ElementsNear(ctx, pt)
	if err != nil {
		p.metrics.ProviderFailure("overpass")
		p.logger.WarnContext(ctx, "map-tag provider failed, using zero flags",
			"lat", pt.Lat, "lng", pt.Lng, "error", err,
		)
		return types.RoadFlags{}
	}

	flags := parseFlags(elements)
	p.caches.RoadFlags.Set(key, flags)
	return flags
}

// parseFlags reduces tagged map elements to the fixed binary flag vector.
func parseFlags(elements []external.TaggedElement) types.RoadFlags {
	var f types.RoadFlags

	for _, el := range elements {
		tags := el.Tags
		if len(tags) == 0 {
			continue
		}

		switch tags["highway"] {
		case "traffic_signals":
			f.TrafficSignal = 1
		case "stop":
			f.Stop = 1
		case "give_way":
			f.GiveWay = 1
		case "turning_loop":
			f.TurningLoop = 1
		case "crossing":
			f.Crossing = 1
		case "motorway_junction":
			f.Junction = 1
		}

		// A crossing tag marks a crossing even without highway=crossing.
		if _, ok := tags["crossing"]; ok {
			f.Crossing = 1
		}

		if junction, ok := tags["junction"]; ok {
			f.Junction = 1
			if junction == "roundabout" {
				f.Roundabout = 1
			}
		}

		if calming, ok := tags["traffic_calming"]; ok {
			f.TrafficCalming = 1
			if bumpValues[calming] {
				f.Bump = 1
			}
		}

		if railway, ok := tags["railway"]; ok {
			f.Railway = 1
			if railway == "station" {
				f.Station = 1
			}
		}

		if amenity, ok := tags["amenity"]; ok {
			f.Amenity = 1
			if amenity == "bus_station" {
				f.Station = 1
			}
		}
		if tags["public_transport"] == "station" {
			f.Station = 1
		}

		if tags["noexit"] == "yes" {
			f.NoExit = 1
		}
	}

	// A roundabout is always a junction.
	if f.Roundabout == 1 {
		f.Junction = 1
	}

	return f
}
