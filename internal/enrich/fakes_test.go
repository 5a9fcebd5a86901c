package enrich

import (
	"context"
	"sync/atomic"
	"time"

	"roadrisk/internal/external"
	"roadrisk/internal/types"
)

// fakeWeatherClient is a configurable WeatherClient double.
type fakeWeatherClient struct {
	obs   *external.WeatherObservation
	err   error
	calls atomic.Int32
}

func (f *fakeWeatherClient) Current(_ context.Context, _ types.Point, _ time.Time) (*external.WeatherObservation, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.obs, nil
}

// fakeSunClient is a configurable SunTimesClient double.
type fakeSunClient struct {
	windows *external.TwilightWindows
	err     error
	calls   atomic.Int32
}

func (f *fakeSunClient) Windows(_ context.Context, _ types.Point, _ time.Time) (*external.TwilightWindows, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.windows, nil
}

// fakeMapTagClient is a configurable MapTagClient double.
type fakeMapTagClient struct {
	elements []external.TaggedElement
	err      error
	calls    atomic.Int32
}

func (f *fakeMapTagClient) ElementsNear(_ context.Context, _ types.Point) ([]external.TaggedElement, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.elements, nil
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }
