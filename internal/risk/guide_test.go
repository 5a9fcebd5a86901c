package risk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roadrisk/internal/external"
	"roadrisk/internal/geo"
	"roadrisk/internal/types"
)

func linePath(n int) []types.Point {
	path := make([]types.Point, n)
	for i := range path {
		path[i] = types.Point{Lat: 36.75 - float64(i)*0.005, Lng: 3.06 - float64(i)*0.006}
	}
	return path
}

func TestGuide_RoutedPath(t *testing.T) {
	routing := &fakeRouting{route: &external.Route{
		Path:        linePath(11),
		DistanceKm:  12.3456,
		DurationMin: 18.25,
	}}
	model := &fakeModel{batchFn: scoreAll(10, 30, 55, 80)}
	svc, caches := newTestService(t, routing, model)

	guide, err := svc.Guide(context.Background(), types.Point{Lat: 36.75, Lng: 3.06}, types.Point{Lat: 36.70, Lng: 3.00}, "", 4)
	require.NoError(t, err)

	assert.Equal(t, SourceRouter, guide.RoutingSource)
	assert.Equal(t, 12.35, guide.DistanceKm)
	assert.Equal(t, 18.3, guide.DurationMin)
	assert.Len(t, guide.Path, 11)

	require.Len(t, guide.Samples, 4)
	assert.Equal(t, guide.Path[0], guide.Samples[0].Point)
	assert.Equal(t, guide.Path[10], guide.Samples[3].Point)

	// Sample ids share a deterministic prefix and enumerate in order; each
	// row is stored for later explanation.
	prefix := strings.TrimSuffix(guide.Samples[0].ID, "-0")
	for i, sm := range guide.Samples {
		assert.Equal(t, fmt.Sprintf("%s-%d", prefix, i), sm.ID)
		cached, ok := caches.Rows.Get(context.Background(), sm.ID)
		require.True(t, ok, "sample row must be stored")
		assert.Equal(t, sm.Row, cached)
	}

	// One segment per consecutive sample pair, carrying the trailing
	// sample's prediction.
	require.Len(t, guide.Segments, 3)
	for i, seg := range guide.Segments {
		assert.Equal(t, seg.Path[0], guide.Samples[i].Point)
		assert.Equal(t, seg.Path[len(seg.Path)-1], guide.Samples[i+1].Point)
		assert.Equal(t, guide.Samples[i+1].Prediction, seg.Prediction)
	}

	// 0.6*80 + 0.4*mean(10,30,55,80) = 65.5
	assert.Equal(t, Summary{Percentage: 65.5, Level: types.RiskHigh}, guide.Summary)
	assert.Equal(t, int32(1), model.batchCalls.Load(), "exactly one model batch per guide")
}

func TestGuide_StraightLineFallback(t *testing.T) {
	origin := types.Point{Lat: 36.75, Lng: 3.06}
	dest := types.Point{Lat: 36.70, Lng: 3.00}

	routing := &fakeRouting{err: errors.New("router down")}
	model := &fakeModel{batchFn: scoreAll(20, 80)}
	svc, _ := newTestService(t, routing, model)

	guide, err := svc.Guide(context.Background(), origin, dest, "", 6)
	require.NoError(t, err)

	assert.Equal(t, SourceStraightLine, guide.RoutingSource)
	assert.Equal(t, []types.Point{origin, dest}, guide.Path)
	assert.InDelta(t, geo.DistanceKm(origin, dest), guide.DistanceKm, 0.01)
	assert.Zero(t, guide.DurationMin)

	// Two path points cap the samples at two regardless of the request.
	require.Len(t, guide.Samples, 2)
	require.Len(t, guide.Segments, 1)
	assert.Equal(t, Summary{Percentage: 68, Level: types.RiskHigh}, guide.Summary)
}

func TestGuide_UnmatchedIDsStayUnscored(t *testing.T) {
	routing := &fakeRouting{err: errors.New("router down")}
	model := &fakeModel{batchFn: func(rows []external.BatchRow) map[string]external.ModelScore {
		// Only the first sample comes back scored.
		return map[string]external.ModelScore{
			rows[0].ID: {Percent: 50, Level: "high"},
		}
	}}
	svc, _ := newTestService(t, routing, model)

	guide, err := svc.Guide(context.Background(), types.Point{Lat: 36.75, Lng: 3.06}, types.Point{Lat: 36.70, Lng: 3.00}, "", 2)
	require.NoError(t, err)

	assert.Equal(t, types.UnscoredPrediction(), guide.Samples[1].Prediction)
	// 0.6*50 + 0.4*25 = 40
	assert.Equal(t, Summary{Percentage: 40, Level: types.RiskModerate}, guide.Summary)
}

func TestGuide_ModelFailureIsSurfaced(t *testing.T) {
	routing := &fakeRouting{err: errors.New("router down")}
	model := &fakeModel{batchErr: types.NewAppError(types.ErrCodeUpstreamModel, "model unavailable", nil)}
	svc, _ := newTestService(t, routing, model)

	_, err := svc.Guide(context.Background(), types.Point{Lat: 36.75, Lng: 3.06}, types.Point{Lat: 36.70, Lng: 3.00}, "", 2)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamModel, appErr.Code)
}

func TestGuide_InvalidCoordinatesRejectedBeforeProviders(t *testing.T) {
	routing := &fakeRouting{}
	model := &fakeModel{}
	svc, _ := newTestService(t, routing, model)

	_, err := svc.Guide(context.Background(), types.Point{Lat: 999, Lng: 3.06}, types.Point{Lat: 36.70, Lng: 3.00}, "", 2)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationInvalidLat, appErr.Code)
	assert.Zero(t, routing.calls.Load(), "no provider may be contacted")
	assert.Zero(t, model.batchCalls.Load())
}

func TestGuide_DegenerateRouteRejected(t *testing.T) {
	pt := types.Point{Lat: 36.75, Lng: 3.06}
	routing := &fakeRouting{err: errors.New("router down")}
	svc, _ := newTestService(t, routing, &fakeModel{})

	_, err := svc.Guide(context.Background(), pt, pt, "", 4)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationRouteSamples, appErr.Code)
}

func TestGuide_InvalidTimestampRejected(t *testing.T) {
	svc, _ := newTestService(t, &fakeRouting{}, &fakeModel{})

	_, err := svc.Guide(context.Background(), types.Point{Lat: 36.75, Lng: 3.06}, types.Point{Lat: 36.70, Lng: 3.00}, "yesterday", 2)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationInvalidTime, appErr.Code)
}
