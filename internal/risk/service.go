package risk

import (
	"context"
	"log/slog"
	"time"

	"roadrisk/internal/cache"
	"roadrisk/internal/enrich"
	"roadrisk/internal/external"
	"roadrisk/internal/observability"
	"roadrisk/internal/types"
)

// defaultExplainTopK is applied when the caller does not bound the
// attribution list.
const defaultExplainTopK = 5

// defaultNearbyRadiusKm is the search radius applied when the caller omits
// one.
const defaultNearbyRadiusKm = 30.0

// maxNearbyRadiusKm bounds the nearby search radius.
const maxNearbyRadiusKm = 500.0

// Options holds the sampling bounds for the orchestrators. Zero values fall
// back to the production defaults.
type Options struct {
	RouteMaxSamples     int
	RouteDefaultSamples int
	NearbyMaxZones      int
	NearbyZonePoints    int
	Now                 func() time.Time
}

func (o Options) withDefaults() Options {
	if o.RouteMaxSamples <= 0 {
		o.RouteMaxSamples = 12
	}
	if o.RouteDefaultSamples <= 0 {
		o.RouteDefaultSamples = 6
	}
	if o.NearbyMaxZones <= 0 {
		o.NearbyMaxZones = 8
	}
	if o.NearbyZonePoints <= 0 {
		o.NearbyZonePoints = 3
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	return o
}

// Service is the scoring orchestrator: it validates inputs, drives the
// enrichment builder, resolves routes, and talks to the risk model.
type Service struct {
	routing external.RoutingClient
	model   external.ModelClient
	builder *enrich.Builder
	caches  *cache.Service
	logger  *slog.Logger
	metrics *observability.Collector
	opts    Options
}

// NewService creates the orchestrator.
func NewService(
	routing external.RoutingClient,
	model external.ModelClient,
	builder *enrich.Builder,
	caches *cache.Service,
	logger *slog.Logger,
	metrics *observability.Collector,
	opts Options,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		routing: routing,
		model:   model,
		builder: builder,
		caches:  caches,
		logger:  logger,
		metrics: metrics,
		opts:    opts.withDefaults(),
	}
}

// validatePoint rejects out-of-range coordinates before any provider is
// contacted.
func validatePoint(p types.Point) error {
	if p.Lat < -90 || p.Lat > 90 {
		return types.NewAppError(types.ErrCodeValidationInvalidLat, "latitude must be between -90 and 90", nil)
	}
	if p.Lng < -180 || p.Lng > 180 {
		return types.NewAppError(types.ErrCodeValidationInvalidLon, "longitude must be between -180 and 180", nil)
	}
	return nil
}

// BuildRow enriches a single point into the canonical feature row without
// scoring it.
func (s *Service) BuildRow(ctx context.Context, p types.Point, timestamp string, flags map[string]any) (types.FeatureRow, error) {
	if err := validatePoint(p); err != nil {
		return types.FeatureRow{}, err
	}
	at, err := types.ParseTimestamp(timestamp, s.opts.Now)
	if err != nil {
		return types.FeatureRow{}, err
	}
	return s.builder.BuildRow(ctx, p, at, flags), nil
}

// PointAssessment is the scored result for a single point.
type PointAssessment struct {
	Point      types.Point      `json:"point"`
	Row        types.FeatureRow `json:"row"`
	Prediction types.Prediction `json:"prediction"`
}

// ScorePoint enriches a point and submits the row for a single-row score.
// Unlike enrichment failures, model failures are surfaced to the caller.
func (s *Service) ScorePoint(ctx context.Context, p types.Point, timestamp string, flags map[string]any) (*PointAssessment, error) {
	row, err := s.BuildRow(ctx, p, timestamp, flags)
	if err != nil {
		return nil, err
	}

	score, err := s.model.ScoreRow(ctx, row)
	s.metrics.ModelCall("current", err)
	if err != nil {
		return nil, err
	}

	return &PointAssessment{
		Point:      p,
		Row:        row,
		Prediction: predictionFromScore(*score),
	}, nil
}

// ExplainInput identifies the row to explain: an inline row, the id of a
// previously scored sample, or a point to enrich on the fly. Exactly one
// source is used, in that order of precedence.
type ExplainInput struct {
	Row       *types.FeatureRow
	RowID     string
	Point     *types.Point
	Timestamp string
	TopK      int
}

// ExplainResult is a prediction plus the model's opaque attribution payload.
type ExplainResult struct {
	Row        types.FeatureRow `json:"row"`
	Prediction types.Prediction `json:"prediction"`
	XAI        any              `json:"xai"`
}

// Explain resolves the requested row and asks the model for a scored
// explanation.
func (s *Service) Explain(ctx context.Context, in ExplainInput) (*ExplainResult, error) {
	row, err := s.resolveExplainRow(ctx, in)
	if err != nil {
		return nil, err
	}

	topK := in.TopK
	if topK <= 0 {
		topK = defaultExplainTopK
	}

	expl, err := s.model.Explain(ctx, row, topK)
	s.metrics.ModelCall("explain", err)
	if err != nil {
		return nil, err
	}

	return &ExplainResult{
		Row:        row,
		Prediction: predictionFromScore(expl.ModelScore),
		XAI:        expl.XAI,
	}, nil
}

func (s *Service) resolveExplainRow(ctx context.Context, in ExplainInput) (types.FeatureRow, error) {
	switch {
	case in.Row != nil:
		return *in.Row, nil
	case in.RowID != "":
		return s.LookupRow(ctx, in.RowID)
	case in.Point != nil:
		return s.BuildRow(ctx, *in.Point, in.Timestamp, nil)
	}
	return types.FeatureRow{}, types.NewAppError(types.ErrCodeValidationMissingField,
		"one of row, row_id, or lat/lng is required", nil)
}

// LookupRow returns a previously scored sample row by id.
func (s *Service) LookupRow(ctx context.Context, id string) (types.FeatureRow, error) {
	row, ok := s.caches.Rows.Get(ctx, id)
	if !ok {
		s.metrics.CacheMiss("rows")
		return types.FeatureRow{}, types.NewAppError(types.ErrCodeNotFoundRow, "no scored row with that id", nil)
	}
	s.metrics.CacheHit("rows")
	return row, nil
}
