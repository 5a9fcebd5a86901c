package risk

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"roadrisk/internal/cache"
	"roadrisk/internal/enrich"
	"roadrisk/internal/external"
	"roadrisk/internal/types"
)

// The enrichment providers are exercised in their own package; here they run
// against dead upstreams so every row carries the documented defaults and
// the orchestration logic is what the assertions see.
type deadWeather struct{}

func (deadWeather) Current(context.Context, types.Point, time.Time) (*external.WeatherObservation, error) {
	return nil, errors.New("weather down")
}

type deadSun struct{}

func (deadSun) Windows(context.Context, types.Point, time.Time) (*external.TwilightWindows, error) {
	return nil, errors.New("sun down")
}

type fakeRouting struct {
	route *external.Route
	err   error
	calls atomic.Int32
}

func (f *fakeRouting) Route(ctx context.Context, origin, dest types.Point) (*external.Route, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.route, nil
}

type fakeModel struct {
	mu sync.Mutex

	score    *external.ModelScore
	scoreErr error

	batchFn  func(rows []external.BatchRow) map[string]external.ModelScore
	batchErr error

	explanation *external.Explanation
	explainErr  error

	scoreCalls  atomic.Int32
	batchCalls  atomic.Int32
	lastRow     types.FeatureRow
	lastBatch   []external.BatchRow
	lastTopK    int
	explainRows []types.FeatureRow
}

func (f *fakeModel) ScoreRow(ctx context.Context, row types.FeatureRow) (*external.ModelScore, error) {
	f.scoreCalls.Add(1)
	f.mu.Lock()
	f.lastRow = row
	f.mu.Unlock()
	if f.scoreErr != nil {
		return nil, f.scoreErr
	}
	return f.score, nil
}

func (f *fakeModel) ScoreBatch(ctx context.Context, rows []external.BatchRow) (map[string]external.ModelScore, error) {
	f.batchCalls.Add(1)
	f.mu.Lock()
	f.lastBatch = rows
	f.mu.Unlock()
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	if f.batchFn == nil {
		return map[string]external.ModelScore{}, nil
	}
	return f.batchFn(rows), nil
}

func (f *fakeModel) Explain(ctx context.Context, row types.FeatureRow, topK int) (*external.Explanation, error) {
	f.mu.Lock()
	f.explainRows = append(f.explainRows, row)
	f.lastTopK = topK
	f.mu.Unlock()
	if f.explainErr != nil {
		return nil, f.explainErr
	}
	return f.explanation, nil
}

// scoreAll returns a batch function scoring every submitted id with the
// given percentages cycled in order.
func scoreAll(percents ...float64) func(rows []external.BatchRow) map[string]external.ModelScore {
	return func(rows []external.BatchRow) map[string]external.ModelScore {
		out := make(map[string]external.ModelScore, len(rows))
		for i, r := range rows {
			out[r.ID] = external.ModelScore{Percent: percents[i%len(percents)], Level: "", Quality: "high"}
		}
		return out
	}
}

var testNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, routing external.RoutingClient, model external.ModelClient) (*Service, *cache.Service) {
	t.Helper()
	caches := cache.NewService(cache.Limits{}, nil)
	builder := enrich.NewBuilder(
		enrich.NewWeatherProvider(deadWeather{}, caches, nil, nil, nil),
		enrich.NewTwilightProvider(deadSun{}, caches, nil, nil),
		enrich.NewRoadFlagProvider(nil, caches, false, 0, nil, nil),
		nil,
	)
	svc := NewService(routing, model, builder, caches, nil, nil, Options{
		Now: func() time.Time { return testNow },
	})
	return svc, caches
}

func floatPtr(v float64) *float64 { return &v }
