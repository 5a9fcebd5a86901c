// Package types defines the shared domain model for the road-risk enrichment
// service: geographic points, the canonical feature row consumed by the risk
// model, road-infrastructure flags, and model predictions.
package types

import (
	"strconv"
	"strings"
	"time"
)

// Point is an immutable geographic coordinate pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the point lies within the WGS84 coordinate range.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// RiskLevel is one of the four danger tiers returned by the risk model.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
	RiskExtreme  RiskLevel = "extreme"
)

// ValidRiskLevel reports whether s is one of the four known tiers,
// ignoring case.
func ValidRiskLevel(s string) (RiskLevel, bool) {
	switch RiskLevel(strings.ToLower(s)) {
	case RiskLow:
		return RiskLow, true
	case RiskModerate:
		return RiskModerate, true
	case RiskHigh:
		return RiskHigh, true
	case RiskExtreme:
		return RiskExtreme, true
	}
	return "", false
}

// RoadFlagNames lists the 13 binary road-infrastructure flags in the fixed
// order the risk model was trained on. The order is part of the model
// contract and must not change.
var RoadFlagNames = []string{
	"Amenity",
	"Bump",
	"Crossing",
	"Give_Way",
	"Junction",
	"No_Exit",
	"Railway",
	"Roundabout",
	"Station",
	"Stop",
	"Traffic_Calming",
	"Traffic_Signal",
	"Turning_Loop",
}

// RoadFlags is the fixed binary flag vector describing road infrastructure
// near a point. Every field is 0 or 1.
type RoadFlags struct {
	Amenity        int `json:"Amenity"`
	Bump           int `json:"Bump"`
	Crossing       int `json:"Crossing"`
	GiveWay        int `json:"Give_Way"`
	Junction       int `json:"Junction"`
	NoExit         int `json:"No_Exit"`
	Railway        int `json:"Railway"`
	Roundabout     int `json:"Roundabout"`
	Station        int `json:"Station"`
	Stop           int `json:"Stop"`
	TrafficCalming int `json:"Traffic_Calming"`
	TrafficSignal  int `json:"Traffic_Signal"`
	TurningLoop    int `json:"Turning_Loop"`
}

// trueStrings are the string spellings accepted as a set flag when coercing
// caller-supplied values. Mirrors the vocabulary the model service accepts.
var trueStrings = map[string]bool{
	"1": true, "true": true, "t": true, "yes": true, "y": true, "on": true,
}

// flagValue coerces a loosely-typed caller-supplied value to 0 or 1.
// Numbers are set when non-zero; strings when they spell a truthy token or
// parse to a non-zero number; anything else is 0.
func flagValue(v any) int {
	switch t := v.(type) {
	case bool:
		if t {
			return 1
		}
	case float64:
		if t != 0 {
			return 1
		}
	case int:
		if t != 0 {
			return 1
		}
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		if trueStrings[s] {
			return 1
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil && n != 0 {
			return 1
		}
	}
	return 0
}

// CoerceRoadFlags converts a loosely-typed flag object (as decoded from
// request JSON) into the fixed binary vector. Unknown keys are ignored;
// missing keys stay 0.
func CoerceRoadFlags(raw map[string]any) RoadFlags {
	var f RoadFlags
	for name, v := range raw {
		set := flagValue(v)
		if set == 0 {
			continue
		}
		switch name {
		case "Amenity":
			f.Amenity = 1
		case "Bump":
			f.Bump = 1
		case "Crossing":
			f.Crossing = 1
		case "Give_Way":
			f.GiveWay = 1
		case "Junction":
			f.Junction = 1
		case "No_Exit":
			f.NoExit = 1
		case "Railway":
			f.Railway = 1
		case "Roundabout":
			f.Roundabout = 1
		case "Station":
			f.Station = 1
		case "Stop":
			f.Stop = 1
		case "Traffic_Calming":
			f.TrafficCalming = 1
		case "Traffic_Signal":
			f.TrafficSignal = 1
		case "Turning_Loop":
			f.TurningLoop = 1
		}
	}
	return f
}

// FeatureRow is the canonical enrichment row submitted to the risk model.
// The JSON field names match the model's training schema exactly. A row is
// always fully populated: numeric fields default to 0 and categorical fields
// to "Unknown"/"Night" when a provider could not be resolved.
type FeatureRow struct {
	StartTime            string  `json:"Start_Time"`
	TemperatureF         float64 `json:"Temperature(F)"`
	HumidityPct          float64 `json:"Humidity(%)"`
	PressureInHg         float64 `json:"Pressure(in)"`
	VisibilityMi         float64 `json:"Visibility(mi)"`
	WindSpeedMph         float64 `json:"Wind_Speed(mph)"`
	PrecipitationIn      float64 `json:"Precipitation(in)"`
	WindDirection        string  `json:"Wind_Direction"`
	WeatherCondition     string  `json:"Weather_Condition"`
	SunriseSunset        string  `json:"Sunrise_Sunset"`
	CivilTwilight        string  `json:"Civil_Twilight"`
	NauticalTwilight     string  `json:"Nautical_Twilight"`
	AstronomicalTwilight string  `json:"Astronomical_Twilight"`

	RoadFlags
}

// WeatherFeatures is the normalized output of the weather provider.
// Numeric fields are pointers so that "provider answered but omitted the
// field" is distinguishable from a real zero; the row builder applies the
// documented default exactly once when merging.
type WeatherFeatures struct {
	TemperatureF     *float64
	HumidityPct      *float64
	PressureInHg     *float64
	VisibilityMi     *float64
	WindSpeedMph     *float64
	PrecipitationIn  *float64
	WindDirection    string
	WeatherCondition string
}

// TwilightFields holds the four Day/Night indicators for a point and date.
type TwilightFields struct {
	SunriseSunset        string
	CivilTwilight        string
	NauticalTwilight     string
	AstronomicalTwilight string
}

// Prediction is the per-row output of the risk model.
type Prediction struct {
	Percentage float64   `json:"percentage"`
	Level      RiskLevel `json:"level"`
	Confidence *float64  `json:"confidence"`
	Quality    string    `json:"quality,omitempty"`
}

// UnscoredPrediction is the default applied to any sample the model did not
// return a prediction for. Unmatched ids are "unscored", never an error.
func UnscoredPrediction() Prediction {
	return Prediction{Percentage: 0, Level: RiskLow, Confidence: nil}
}

// Destination is a candidate endpoint for nearby-zone scoring: either a
// reference city or a synthesized point projected from the origin.
type Destination struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Point      Point   `json:"point"`
	DistanceKm float64 `json:"distance_km"`
}

// ParseTimestamp parses a caller-supplied timestamp, accepting RFC3339.
// A zero input yields the current time; this is the single place a default
// timestamp is applied.
func ParseTimestamp(s string, now func() time.Time) (time.Time, error) {
	if s == "" {
		return now(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, NewAppError(ErrCodeValidationInvalidTime, "timestamp must be a valid RFC3339 value", err)
	}
	return t, nil
}
