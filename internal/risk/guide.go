package risk

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"roadrisk/internal/external"
	"roadrisk/internal/geo"
	"roadrisk/internal/types"
)

// Routing source values reported on a guide.
const (
	SourceRouter       = "router"
	SourceStraightLine = "straight_line"
)

// RouteSample is one scored point along a route.
type RouteSample struct {
	ID         string           `json:"id"`
	Point      types.Point      `json:"point"`
	Row        types.FeatureRow `json:"row"`
	Prediction types.Prediction `json:"prediction"`
}

// RouteSegment is the stretch of path between two consecutive samples. Its
// risk is the trailing sample's prediction.
type RouteSegment struct {
	ID         string           `json:"id"`
	Path       []types.Point    `json:"path"`
	Prediction types.Prediction `json:"prediction"`
}

// RouteGuide is the full scored route between two points.
type RouteGuide struct {
	Path          []types.Point  `json:"path"`
	Samples       []RouteSample  `json:"samples"`
	Segments      []RouteSegment `json:"segments"`
	Summary       Summary        `json:"summary"`
	DistanceKm    float64        `json:"distance_km"`
	DurationMin   float64        `json:"duration_min"`
	RoutingSource string         `json:"routing_source"`
}

// Guide resolves a route between origin and destination, scores evenly
// spread samples along it in one model batch, and aggregates the results.
func (s *Service) Guide(ctx context.Context, origin, destination types.Point, timestamp string, samples int) (*RouteGuide, error) {
	if err := validatePoint(origin); err != nil {
		return nil, err
	}
	if err := validatePoint(destination); err != nil {
		return nil, err
	}
	if samples < 0 {
		return nil, types.NewAppError(types.ErrCodeValidationSampleCount, "samples must not be negative", nil)
	}
	at, err := types.ParseTimestamp(timestamp, s.opts.Now)
	if err != nil {
		return nil, err
	}
	if samples == 0 {
		samples = s.opts.RouteDefaultSamples
	}

	plan := s.planRoute(ctx, origin, destination, at)
	plan.indices = SampleIndices(len(plan.path), samples, s.opts.RouteMaxSamples)
	if len(plan.indices) < 2 {
		return nil, types.NewAppError(types.ErrCodeValidationRouteSamples,
			"route collapsed to fewer than 2 distinct points", nil)
	}

	s.buildSamples(ctx, plan, at)

	scores, err := s.model.ScoreBatch(ctx, plan.batchRows())
	s.metrics.ModelCall("overlay", err)
	if err != nil {
		return nil, err
	}

	return plan.finish(scores), nil
}

// routePlan is the intermediate state of one route orchestration: path and
// sample positions resolved, predictions pending until the batch returns.
type routePlan struct {
	idPrefix    string
	path        []types.Point
	indices     []int
	samples     []RouteSample
	distanceKm  float64
	durationMin float64
	source      string
}

// planRoute resolves a drivable path, falling back to the straight line
// between the endpoints when the router is unavailable. The fallback is a
// degraded answer, not an error.
func (s *Service) planRoute(ctx context.Context, origin, destination types.Point, at time.Time) *routePlan {
	plan := &routePlan{idPrefix: sampleBaseID(origin, destination, at)}

	route, err := s.routing.Route(ctx, origin, destination)
	if err != nil {
		s.metrics.ProviderFailure("routing")
		s.logger.WarnContext(ctx, "routing unavailable, falling back to straight line",
			slog.Any("error", err))
		plan.path = geo.StraightLine(origin, destination)
		plan.distanceKm = geo.Round(geo.DistanceKm(origin, destination), 2)
		plan.source = SourceStraightLine
	} else {
		plan.path = route.Path
		plan.distanceKm = geo.Round(route.DistanceKm, 2)
		plan.durationMin = geo.Round(route.DurationMin, 1)
		plan.source = SourceRouter
	}

	plan.path = geo.DedupPath(plan.path)
	return plan
}

// buildSamples enriches every sampled point concurrently and stores each row
// under its deterministic id so it can be re-explained later.
func (s *Service) buildSamples(ctx context.Context, plan *routePlan, at time.Time) {
	plan.samples = make([]RouteSample, len(plan.indices))

	g, gctx := errgroup.WithContext(ctx)
	for i, idx := range plan.indices {
		i, idx := i, idx
		g.Go(func() error {
			pt := plan.path[idx]
			row := s.builder.BuildRow(gctx, pt, at, nil)
			id := fmt.Sprintf("%s-%d", plan.idPrefix, i)
			s.caches.Rows.Set(gctx, id, row)
			plan.samples[i] = RouteSample{ID: id, Point: pt, Row: row}
			return nil
		})
	}
	_ = g.Wait()
}

func (p *routePlan) batchRows() []external.BatchRow {
	rows := make([]external.BatchRow, len(p.samples))
	for i, sm := range p.samples {
		rows[i] = external.BatchRow{ID: sm.ID, Row: sm.Row}
	}
	return rows
}

// finish attaches the batch predictions, derives segments from consecutive
// sample pairs, and aggregates the route summary. Ids the model did not
// return stay unscored.
func (p *routePlan) finish(scores map[string]external.ModelScore) *RouteGuide {
	percentages := make([]float64, len(p.samples))
	for i := range p.samples {
		if score, ok := scores[p.samples[i].ID]; ok {
			p.samples[i].Prediction = predictionFromScore(score)
		} else {
			p.samples[i].Prediction = types.UnscoredPrediction()
		}
		percentages[i] = p.samples[i].Prediction.Percentage
	}

	segments := make([]RouteSegment, 0, len(p.samples)-1)
	for i := 1; i < len(p.samples); i++ {
		segments = append(segments, RouteSegment{
			ID:         fmt.Sprintf("%s-seg-%d", p.idPrefix, i-1),
			Path:       p.path[p.indices[i-1] : p.indices[i]+1],
			Prediction: p.samples[i].Prediction,
		})
	}

	return &RouteGuide{
		Path:          p.path,
		Samples:       p.samples,
		Segments:      segments,
		Summary:       Aggregate(percentages),
		DistanceKm:    p.distanceKm,
		DurationMin:   p.durationMin,
		RoutingSource: p.source,
	}
}

// sampleBaseID derives the deterministic id prefix for a route's samples
// from its endpoints and instant.
func sampleBaseID(origin, destination types.Point, at time.Time) string {
	seed := fmt.Sprintf("%v,%v|%v,%v|%s",
		origin.Lat, origin.Lng, destination.Lat, destination.Lng, at.Format(time.RFC3339))
	sum := sha1.Sum([]byte(seed))
	return hex.EncodeToString(sum[:])[:8]
}
