package enrich

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"roadrisk/internal/types"
)

// Builder assembles the canonical feature row for one point and instant by
// fanning out to the three providers concurrently and merging the results.
// It never fails: provider errors collapse into the documented per-field
// defaults, so the caller always receives a fully-populated row.
type Builder struct {
	weather   *WeatherProvider
	twilight  *TwilightProvider
	roadFlags *RoadFlagProvider
	logger    *slog.Logger
}

// NewBuilder creates a Builder over the three providers.
func NewBuilder(weather *WeatherProvider, twilight *TwilightProvider, roadFlags *RoadFlagProvider, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		weather:   weather,
		twilight:  twilight,
		roadFlags: roadFlags,
		logger:    logger,
	}
}

// BuildRow fans out the three provider lookups, waits for all of them, and
// merges the results. Each goroutine swallows its provider's failure so a
// broken upstream never cancels its siblings; the twilight and road-flag
// providers additionally carry their own internal fallbacks.
func (b *Builder) BuildRow(ctx context.Context, pt types.Point, at time.Time, suppliedFlags map[string]any) types.FeatureRow {
	var (
		weather  types.WeatherFeatures
		twilight types.TwilightFields
		flags    types.RoadFlags
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		w, err := b.weather.Features(gctx, pt, at)
		if err == nil {
			weather = w
		}
		return nil
	})
	g.Go(func() error {
		twilight = b.twilight.Fields(gctx, pt, at)
		return nil
	})
	g.Go(func() error {
		flags = b.roadFlags.Flags(gctx, pt, suppliedFlags)
		return nil
	})
	_ = g.Wait()

	row := types.FeatureRow{
		StartTime:            at.Format(time.RFC3339),
		TemperatureF:         floatOrZero(weather.TemperatureF),
		HumidityPct:          floatOrZero(weather.HumidityPct),
		PressureInHg:         floatOrZero(weather.PressureInHg),
		VisibilityMi:         floatOrZero(weather.VisibilityMi),
		WindSpeedMph:         floatOrZero(weather.WindSpeedMph),
		PrecipitationIn:      floatOrZero(weather.PrecipitationIn),
		WindDirection:        labelOrUnknown(weather.WindDirection),
		WeatherCondition:     labelOrUnknown(weather.WeatherCondition),
		SunriseSunset:        labelOrNight(twilight.SunriseSunset),
		CivilTwilight:        labelOrNight(twilight.CivilTwilight),
		NauticalTwilight:     labelOrNight(twilight.NauticalTwilight),
		AstronomicalTwilight: labelOrNight(twilight.AstronomicalTwilight),
		RoadFlags:            flags,
	}

	return row
}

// floatOrZero applies the numeric row default exactly once, here.
func floatOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// labelOrUnknown applies the categorical row default.
func labelOrUnknown(label string) string {
	if label == "" {
		return "Unknown"
	}
	return label
}

// labelOrNight applies the twilight row default.
func labelOrNight(label string) string {
	if label == "" {
		return "Night"
	}
	return label
}
