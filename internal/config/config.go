// Package config defines the global configuration structure for the road-risk
// service. Configuration is loaded once at process initialization and is
// immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup.
package config

import (
	"time"
)

// Config is the top-level configuration struct. It is populated once during
// process initialization and never modified. Sub-components receive only the
// specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"roadrisk-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server    ServerConfig
	Providers ProviderConfig
	Model     ModelConfig
	Cache     CacheConfig
	RoadFlags RoadFlagConfig
	Sampling  SamplingConfig
	Redis     RedisConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port               string        `envconfig:"PORT" default:"8080"`
	ReadTimeout        time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout       time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"60s"`
	ShutdownGrace      time.Duration `envconfig:"SERVER_SHUTDOWN_GRACE" default:"10s"`
	CorsAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// ProviderConfig holds the base URLs and timeouts of the external geodata
// providers. Each endpoint is overridable so tests and self-hosted mirrors
// can swap the public services out.
type ProviderConfig struct {
	WeatherURL     string        `envconfig:"WEATHER_API_URL" default:"https://api.open-meteo.com/v1/forecast" validate:"url"`
	WeatherTimeout time.Duration `envconfig:"WEATHER_TIMEOUT" default:"8s"`

	SunTimesURL     string        `envconfig:"SUNTIMES_API_URL" default:"https://api.sunrise-sunset.org/json" validate:"url"`
	SunTimesTimeout time.Duration `envconfig:"SUNTIMES_TIMEOUT" default:"8s"`

	OverpassURL     string        `envconfig:"OVERPASS_API_URL" default:"https://overpass-api.de/api/interpreter" validate:"url"`
	OverpassTimeout time.Duration `envconfig:"OVERPASS_TIMEOUT" default:"10s"`

	RoutingURL     string        `envconfig:"ROUTING_API_URL" default:"https://router.project-osrm.org" validate:"url"`
	RoutingTimeout time.Duration `envconfig:"ROUTING_TIMEOUT" default:"10s"`
}

// ModelConfig holds the risk model service endpoint and its startup vocabulary.
type ModelConfig struct {
	URL     string        `envconfig:"MODEL_API_URL" default:"http://localhost:5000" validate:"url"`
	Timeout time.Duration `envconfig:"MODEL_TIMEOUT" default:"15s"`
	// VocabJSON is a JSON object mapping categorical feature names to the
	// category lists the model was trained on, e.g.
	// {"Weather_Condition": ["Clear", "Rain", ...], "Wind_Direction": [...]}.
	// Empty disables vocabulary clamping.
	VocabJSON string `envconfig:"MODEL_VOCAB_JSON" validate:"omitempty,json"`
}

// CacheConfig holds the bounds of the in-process geodata caches.
type CacheConfig struct {
	WeatherMax    int `envconfig:"CACHE_WEATHER_MAX" default:"2000" validate:"min=1"`
	TwilightMax   int `envconfig:"CACHE_TWILIGHT_MAX" default:"2000" validate:"min=1"`
	RoadFlagsMax  int `envconfig:"CACHE_ROADFLAGS_MAX" default:"4000" validate:"min=1"`
	RowsMax       int `envconfig:"CACHE_ROWS_MAX" default:"2000" validate:"min=1"`
	FlagPrecision int `envconfig:"CACHE_FLAG_PRECISION" default:"3" validate:"min=1,max=6"`
}

// RoadFlagConfig controls the road-infrastructure flag provider.
type RoadFlagConfig struct {
	Enabled bool `envconfig:"ROADFLAGS_ENABLED" default:"true"`
	// ThrottleDelay is the pause inserted after each real Overpass call to
	// stay under the public instance's rate policy. Cache hits skip it.
	ThrottleDelay time.Duration `envconfig:"ROADFLAGS_THROTTLE_DELAY" default:"1s"`
}

// SamplingConfig bounds how many points a route or nearby-zone request may
// fan out into.
type SamplingConfig struct {
	RouteMaxSamples  int `envconfig:"ROUTE_MAX_SAMPLES" default:"12" validate:"min=2"`
	RouteDefault     int `envconfig:"ROUTE_DEFAULT_SAMPLES" default:"6" validate:"min=2"`
	NearbyMaxZones   int `envconfig:"NEARBY_MAX_ZONES" default:"8" validate:"min=1"`
	NearbyZonePoints int `envconfig:"NEARBY_ZONE_POINTS" default:"3" validate:"min=1"`
}

// RedisConfig holds the optional Redis backend for the scored-row cache.
// An empty Addr keeps the in-memory store.
type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
