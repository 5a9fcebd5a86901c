// Package handlers contains the HTTP handler implementations for the
// road-risk API:
//   - Feature-row enrichment (POST /v1/risk/row)
//   - Single-point scoring (POST /v1/risk/point)
//   - Prediction explanation (POST /v1/risk/explain)
//   - Route guides (POST /v1/risk/route)
//   - Nearby-zone assessment (POST /v1/risk/nearby)
//   - Scored-row retrieval (GET /v1/risk/rows/{id})
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"roadrisk/internal/core"
	"roadrisk/internal/risk"
	"roadrisk/internal/types"
)

// RiskServiceInterface is the service contract for the risk handler, defined
// locally so the handler depends on behavior rather than the concrete
// orchestrator.
type RiskServiceInterface interface {
	BuildRow(ctx context.Context, p types.Point, timestamp string, flags map[string]any) (types.FeatureRow, error)
	ScorePoint(ctx context.Context, p types.Point, timestamp string, flags map[string]any) (*risk.PointAssessment, error)
	Explain(ctx context.Context, in risk.ExplainInput) (*risk.ExplainResult, error)
	Guide(ctx context.Context, origin, destination types.Point, timestamp string, samples int) (*risk.RouteGuide, error)
	Nearby(ctx context.Context, origin types.Point, radiusKm float64, maxZones, samplesPerRoute int, timestamp string) (*risk.NearbyAssessment, error)
	LookupRow(ctx context.Context, id string) (types.FeatureRow, error)
}

// RiskHandler maps HTTP requests to the scoring orchestrator.
type RiskHandler struct {
	service RiskServiceInterface
	logger  *slog.Logger
}

// NewRiskHandler creates the handler.
func NewRiskHandler(svc RiskServiceInterface, logger *slog.Logger) *RiskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RiskHandler{service: svc, logger: logger}
}

// RegisterRoutes mounts the risk endpoints onto the /v1 mux.
func (h *RiskHandler) RegisterRoutes(r chi.Router) {
	r.Route("/risk", func(r chi.Router) {
		r.Post("/row", h.HandleBuildRow)
		r.Post("/point", h.HandleScorePoint)
		r.Post("/explain", h.HandleExplain)
		r.Post("/route", h.HandleRouteGuide)
		r.Post("/nearby", h.HandleNearby)
		r.Get("/rows/{id}", h.HandleGetRow)
	})
}

// pointRequest is the shared body of the row and point endpoints. Lat and
// lng are pointers so a missing coordinate is distinguishable from zero.
type pointRequest struct {
	Lat       *float64       `json:"lat"`
	Lng       *float64       `json:"lng"`
	Timestamp string         `json:"timestamp,omitempty"`
	RoadFlags map[string]any `json:"road_flags,omitempty"`
}

func (req *pointRequest) point() (types.Point, error) {
	if req.Lat == nil {
		return types.Point{}, types.NewAppError(types.ErrCodeValidationMissingField, "lat is required", nil)
	}
	if req.Lng == nil {
		return types.Point{}, types.NewAppError(types.ErrCodeValidationMissingField, "lng is required", nil)
	}
	return types.Point{Lat: *req.Lat, Lng: *req.Lng}, nil
}

// HandleBuildRow handles POST /v1/risk/row: enrich a point into the
// canonical feature row without scoring it.
func (h *RiskHandler) HandleBuildRow(w http.ResponseWriter, r *http.Request) {
	var req pointRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	pt, err := req.point()
	if err != nil {
		core.Error(w, r, err)
		return
	}

	row, err := h.service.BuildRow(r.Context(), pt, req.Timestamp, req.RoadFlags)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]any{"row": row}})
}

// HandleScorePoint handles POST /v1/risk/point: enrich and score one point.
func (h *RiskHandler) HandleScorePoint(w http.ResponseWriter, r *http.Request) {
	var req pointRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	pt, err := req.point()
	if err != nil {
		core.Error(w, r, err)
		return
	}

	assessment, err := h.service.ScorePoint(r.Context(), pt, req.Timestamp, req.RoadFlags)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: assessment})
}

// explainRequest identifies the row to explain: inline row, stored row id,
// or a point to enrich on the fly.
type explainRequest struct {
	Row       *types.FeatureRow `json:"row,omitempty"`
	RowID     string            `json:"row_id,omitempty"`
	Lat       *float64          `json:"lat,omitempty"`
	Lng       *float64          `json:"lng,omitempty"`
	Timestamp string            `json:"timestamp,omitempty"`
	TopK      int               `json:"top_k,omitempty"`
}

// HandleExplain handles POST /v1/risk/explain.
func (h *RiskHandler) HandleExplain(w http.ResponseWriter, r *http.Request) {
	var req explainRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	in := risk.ExplainInput{
		Row:       req.Row,
		RowID:     req.RowID,
		Timestamp: req.Timestamp,
		TopK:      req.TopK,
	}
	if req.Lat != nil && req.Lng != nil {
		in.Point = &types.Point{Lat: *req.Lat, Lng: *req.Lng}
	}

	result, err := h.service.Explain(r.Context(), in)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: result})
}

// routeRequest is the body of POST /v1/risk/route.
type routeRequest struct {
	Origin      *types.Point `json:"origin"`
	Destination *types.Point `json:"destination"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Samples     int          `json:"samples,omitempty"`
}

// HandleRouteGuide handles POST /v1/risk/route.
func (h *RiskHandler) HandleRouteGuide(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if req.Origin == nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "origin is required", nil))
		return
	}
	if req.Destination == nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "destination is required", nil))
		return
	}

	guide, err := h.service.Guide(r.Context(), *req.Origin, *req.Destination, req.Timestamp, req.Samples)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: guide})
}

// nearbyRequest is the body of POST /v1/risk/nearby.
type nearbyRequest struct {
	Origin          *types.Point `json:"origin"`
	RadiusKm        float64      `json:"radius_km,omitempty"`
	MaxZones        int          `json:"max_zones,omitempty"`
	SamplesPerRoute int          `json:"samples_per_route,omitempty"`
	Timestamp       string       `json:"timestamp,omitempty"`
}

// HandleNearby handles POST /v1/risk/nearby.
func (h *RiskHandler) HandleNearby(w http.ResponseWriter, r *http.Request) {
	var req nearbyRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if req.Origin == nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "origin is required", nil))
		return
	}

	assessment, err := h.service.Nearby(r.Context(), *req.Origin, req.RadiusKm, req.MaxZones, req.SamplesPerRoute, req.Timestamp)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: assessment})
}

// HandleGetRow handles GET /v1/risk/rows/{id}: retrieve a previously scored
// sample row by its deterministic id.
func (h *RiskHandler) HandleGetRow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "row id is required", nil))
		return
	}

	row, err := h.service.LookupRow(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]any{"id": id, "row": row}})
}
