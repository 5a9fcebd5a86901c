package risk

import (
	"context"

	"golang.org/x/sync/errgroup"

	"roadrisk/internal/external"
	"roadrisk/internal/types"
)

// NearbyRoute is one scored route from the origin to a nearby zone.
type NearbyRoute struct {
	Destination types.Destination `json:"destination"`
	Guide       RouteGuide        `json:"guide"`
}

// NearbyAssessment is the scored set of routes radiating from an origin.
type NearbyAssessment struct {
	Origin types.Point   `json:"origin"`
	Routes []NearbyRoute `json:"routes"`
}

// Nearby selects up to maxZones destinations around the origin, plans a
// route to each concurrently, and scores every sample across all routes in
// a single model batch before redistributing the predictions per route.
func (s *Service) Nearby(ctx context.Context, origin types.Point, radiusKm float64, maxZones, samplesPerRoute int, timestamp string) (*NearbyAssessment, error) {
	if err := validatePoint(origin); err != nil {
		return nil, err
	}
	if radiusKm < 0 || radiusKm > maxNearbyRadiusKm {
		return nil, types.NewAppError(types.ErrCodeValidationRadius, "radius_km must be between 0 and 500", nil)
	}
	if samplesPerRoute < 0 {
		return nil, types.NewAppError(types.ErrCodeValidationSampleCount, "samples_per_route must not be negative", nil)
	}
	at, err := types.ParseTimestamp(timestamp, s.opts.Now)
	if err != nil {
		return nil, err
	}

	if radiusKm == 0 {
		radiusKm = defaultNearbyRadiusKm
	}
	if maxZones <= 0 || maxZones > s.opts.NearbyMaxZones {
		maxZones = s.opts.NearbyMaxZones
	}
	if samplesPerRoute == 0 {
		samplesPerRoute = s.opts.NearbyZonePoints
	}

	dests := Destinations(origin, radiusKm, maxZones)
	if len(dests) == 0 {
		return &NearbyAssessment{Origin: origin, Routes: []NearbyRoute{}}, nil
	}

	// Plan and enrich every route first; the model sees one combined batch.
	plans := make([]*routePlan, len(dests))
	g, gctx := errgroup.WithContext(ctx)
	for i, dest := range dests {
		i, dest := i, dest
		g.Go(func() error {
			plan := s.planRoute(gctx, origin, dest.Point, at)
			plan.idPrefix = dest.ID + "-" + plan.idPrefix
			plan.indices = EvenIndices(len(plan.path), samplesPerRoute)
			s.buildSamples(gctx, plan, at)
			plans[i] = plan
			return nil
		})
	}
	_ = g.Wait()

	var batch []external.BatchRow
	for _, plan := range plans {
		batch = append(batch, plan.batchRows()...)
	}

	scores, err := s.model.ScoreBatch(ctx, batch)
	s.metrics.ModelCall("overlay", err)
	if err != nil {
		return nil, err
	}

	routes := make([]NearbyRoute, len(dests))
	for i, plan := range plans {
		routes[i] = NearbyRoute{Destination: dests[i], Guide: *plan.finish(scores)}
	}

	return &NearbyAssessment{Origin: origin, Routes: routes}, nil
}
