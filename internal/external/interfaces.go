package external

import (
	"context"
	"encoding/json"
	"time"

	"roadrisk/internal/types"
)

// WeatherObservation is the normalized output of the forecast API, already
// converted to the canonical schema units (Fahrenheit, inHg, miles, mph,
// inches). Pointer fields distinguish "provider omitted the value" from a
// real zero; label mapping happens downstream in the enrichment layer.
type WeatherObservation struct {
	TemperatureF     *float64
	HumidityPct      *float64
	PressureInHg     *float64
	VisibilityMi     *float64
	WindSpeedMph     *float64
	PrecipitationIn  *float64
	WindDirectionDeg *float64
	WeatherCode      *int
}

// TwilightWindows holds the four [begin,end] windows reported by the
// sun-times API for one point and date. All instants are UTC.
type TwilightWindows struct {
	Sunrise           time.Time
	Sunset            time.Time
	CivilBegin        time.Time
	CivilEnd          time.Time
	NauticalBegin     time.Time
	NauticalEnd       time.Time
	AstronomicalBegin time.Time
	AstronomicalEnd   time.Time
}

// TaggedElement is one map feature returned by the map-tag query API.
// Only the tags matter for flag derivation.
type TaggedElement struct {
	Tags map[string]string `json:"tags"`
}

// Route is a resolved path between two points.
type Route struct {
	Path        []types.Point
	DistanceKm  float64
	DurationMin float64
}

// ModelScore is the per-row result of the risk model service.
type ModelScore struct {
	Percent    float64  `json:"danger_percent"`
	Level      string   `json:"danger_level"`
	Confidence *float64 `json:"confidence"`
	Quality    string   `json:"quality"`
}

// Explanation is a score plus the model's feature-attribution payload.
// The xai structure is model-defined and passed through opaquely.
type Explanation struct {
	ModelScore
	XAI json.RawMessage `json:"xai"`
}

// BatchRow pairs a feature row with the deterministic sample id used to
// match the model's prediction back to its sample.
type BatchRow struct {
	ID  string
	Row types.FeatureRow
}

// WeatherClient fetches current conditions plus nearest-hour visibility for
// a point and instant.
type WeatherClient interface {
	Current(ctx context.Context, p types.Point, at time.Time) (*WeatherObservation, error)
}

// SunTimesClient fetches the twilight windows for a point and date.
type SunTimesClient interface {
	Windows(ctx context.Context, p types.Point, date time.Time) (*TwilightWindows, error)
}

// MapTagClient queries tagged map features around a point.
type MapTagClient interface {
	ElementsNear(ctx context.Context, p types.Point) ([]TaggedElement, error)
}

// RoutingClient resolves a drivable path between two points.
type RoutingClient interface {
	Route(ctx context.Context, origin, dest types.Point) (*Route, error)
}

// ModelClient is the contract with the downstream risk model service.
// ScoreBatch keys results by sample id; ids the model did not return are
// simply absent from the map, never an error.
type ModelClient interface {
	ScoreRow(ctx context.Context, row types.FeatureRow) (*ModelScore, error)
	ScoreBatch(ctx context.Context, rows []BatchRow) (map[string]ModelScore, error)
	Explain(ctx context.Context, row types.FeatureRow, topK int) (*Explanation, error)
}
