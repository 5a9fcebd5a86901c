// Package enrich turns a raw point and timestamp into the canonical feature
// row the risk model consumes. Three providers (weather, twilight, road
// flags) resolve their slice of the row behind bounded caches, each with a
// documented fallback, and the builder fans them out concurrently and merges
// the results. The builder never fails: a fully-populated row always comes
// back, with defaults standing in for anything unresolvable.
package enrich

import (
	"encoding/json"
	"fmt"
)

// Vocab holds the categorical levels the risk model was trained on, keyed by
// feature name. Labels derived from provider data are clamped to these lists
// so the model never sees a category it cannot encode. An empty Vocab
// disables clamping.
type Vocab struct {
	levels map[string][]string
}

// ParseVocab decodes the startup vocabulary JSON: an object mapping feature
// names to category lists. An empty input yields a vocab that clamps
// nothing.
func ParseVocab(raw string) (*Vocab, error) {
	v := &Vocab{levels: map[string][]string{}}
	if raw == "" {
		return v, nil
	}
	if err := json.Unmarshal([]byte(raw), &v.levels); err != nil {
		return nil, fmt.Errorf("malformed model vocabulary: %w", err)
	}
	return v, nil
}

// Clamp returns label unchanged when the feature has no level list or the
// label is a member. Otherwise it substitutes the fallback token ("Other"
// for weather condition, "Unknown" for wind direction).
func (v *Vocab) Clamp(feature, label, fallback string) string {
	if v == nil {
		return label
	}
	levels, ok := v.levels[feature]
	if !ok || len(levels) == 0 {
		return label
	}
	for _, l := range levels {
		if l == label {
			return label
		}
	}
	return fallback
}
