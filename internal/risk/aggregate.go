package risk

import (
	"math"

	"roadrisk/internal/external"
	"roadrisk/internal/types"
)

// Summary is the aggregate risk of a whole route.
type Summary struct {
	Percentage float64         `json:"percentage"`
	Level      types.RiskLevel `json:"level"`
}

// Aggregate folds per-sample percentages into a route summary weighted
// toward the worst sample: 0.6*max + 0.4*mean, rounded to two decimals.
// An empty input aggregates to zero risk.
func Aggregate(percentages []float64) Summary {
	if len(percentages) == 0 {
		return Summary{Percentage: 0, Level: types.RiskLow}
	}

	max := percentages[0]
	sum := 0.0
	for _, p := range percentages {
		if p > max {
			max = p
		}
		sum += p
	}
	mean := sum / float64(len(percentages))

	pct := math.Round((0.6*max+0.4*mean)*100) / 100
	return Summary{Percentage: pct, Level: LevelFromPercent(pct)}
}

// LevelFromPercent maps a danger percentage to its tier.
func LevelFromPercent(p float64) types.RiskLevel {
	switch {
	case p < 25:
		return types.RiskLow
	case p < 50:
		return types.RiskModerate
	case p < 75:
		return types.RiskHigh
	default:
		return types.RiskExtreme
	}
}

// resolveLevel trusts the model's level when it names a known tier
// (case-insensitively) and recomputes it from the percentage otherwise.
func resolveLevel(level string, percent float64) types.RiskLevel {
	if lvl, ok := types.ValidRiskLevel(level); ok {
		return lvl
	}
	return LevelFromPercent(percent)
}

// predictionFromScore normalizes one model score into the API prediction.
func predictionFromScore(score external.ModelScore) types.Prediction {
	return types.Prediction{
		Percentage: score.Percent,
		Level:      resolveLevel(score.Level, score.Percent),
		Confidence: score.Confidence,
		Quality:    score.Quality,
	}
}
