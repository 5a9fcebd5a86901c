package enrich

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roadrisk/internal/cache"
	"roadrisk/internal/external"
	"roadrisk/internal/types"
)

// testWindows builds a plausible set of twilight windows around local noon.
func testWindows(day time.Time) *external.TwilightWindows {
	at := func(h, m int) time.Time {
		return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, time.UTC)
	}
	return &external.TwilightWindows{
		Sunrise:           at(6, 12),
		Sunset:            at(17, 58),
		CivilBegin:        at(5, 47),
		CivilEnd:          at(18, 23),
		NauticalBegin:     at(5, 17),
		NauticalEnd:       at(18, 53),
		AstronomicalBegin: at(4, 47),
		AstronomicalEnd:   at(19, 23),
	}
}

func newTwilightProvider(t *testing.T, client external.SunTimesClient) (*TwilightProvider, *cache.Service) {
	t.Helper()
	caches := cache.NewService(cache.Limits{}, nil)
	return NewTwilightProvider(client, caches, nil, nil), caches
}

func TestTwilightProvider_DeriveDayNightPerWindow(t *testing.T) {
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	client := &fakeSunClient{windows: testWindows(day)}
	provider, _ := newTwilightProvider(t, client)

	tests := []struct {
		name string
		at   time.Time
		want types.TwilightFields
	}{
		{
			"midday is day everywhere",
			day.Add(12 * time.Hour),
			types.TwilightFields{SunriseSunset: "Day", CivilTwilight: "Day", NauticalTwilight: "Day", AstronomicalTwilight: "Day"},
		},
		{
			"civil dusk after sunset",
			day.Add(18*time.Hour + 10*time.Minute),
			types.TwilightFields{SunriseSunset: "Night", CivilTwilight: "Day", NauticalTwilight: "Day", AstronomicalTwilight: "Day"},
		},
		{
			"deep night",
			day.Add(2 * time.Hour),
			types.TwilightFields{SunriseSunset: "Night", CivilTwilight: "Night", NauticalTwilight: "Night", AstronomicalTwilight: "Night"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Distinct cells per case so the date-bucketed cache does not
			// serve a previous case's answer.
			pt := types.Point{Lat: 36.75 + float64(len(tt.name))*0.01, Lng: 3.06}
			assert.Equal(t, tt.want, provider.Fields(context.Background(), pt, tt.at))
		})
	}
}

func TestTwilightProvider_FallbackIsHeuristicAndCached(t *testing.T) {
	client := &fakeSunClient{err: errors.New("dns failure")}
	provider, caches := newTwilightProvider(t, client)

	pt := types.Point{Lat: 36.75, Lng: 3.06}
	noon := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	fields := provider.Fields(context.Background(), pt, noon)
	want := types.TwilightFields{SunriseSunset: "Day", CivilTwilight: "Day", NauticalTwilight: "Day", AstronomicalTwilight: "Day"}
	assert.Equal(t, want, fields)

	// The fallback is cached under the success key: same point and date
	// must not trigger a second upstream call.
	_, ok := caches.Twilight.Get(cache.TwilightKey(pt, noon))
	require.True(t, ok, "fallback should be cached")

	provider.Fields(context.Background(), pt, noon.Add(time.Hour))
	assert.Equal(t, int32(1), client.calls.Load())
}

func TestHeuristicTwilight_HourBoundaries(t *testing.T) {
	tests := []struct {
		hour int
		want string
	}{
		{5, "Night"},
		{6, "Day"},
		{17, "Day"},
		{18, "Night"},
		{23, "Night"},
	}

	for _, tt := range tests {
		at := time.Date(2026, 3, 14, tt.hour, 30, 0, 0, time.UTC)
		fields := heuristicTwilight(at)
		assert.Equal(t, tt.want, fields.SunriseSunset, "hour %d", tt.hour)
		assert.Equal(t, fields.SunriseSunset, fields.AstronomicalTwilight, "all four fields match")
	}
}
