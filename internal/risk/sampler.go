// Package risk orchestrates risk scoring over routes and nearby zones:
// route resolution with straight-line fallback, deterministic path sampling,
// concurrent feature-row enrichment, one batched model call per
// orchestration, and aggregation of per-sample predictions into route
// summaries and segments.
package risk

import (
	"math"
)

// SampleIndices selects an ordered, deduplicated subset of indices across a
// path of n points. The requested count is clamped to [2, min(n, max)];
// indices are spread evenly by rounding i*(n-1)/(target-1), adjacent
// duplicates are collapsed, and the first and last path indices are always
// present. Degenerate paths: n=0 yields an empty list, n=1 yields [0].
func SampleIndices(n, requested, max int) []int {
	if n <= 0 {
		return []int{}
	}
	if n == 1 {
		return []int{0}
	}

	target := requested
	if target < 2 {
		target = 2
	}
	if upper := min(n, max); target > upper {
		target = upper
	}
	if target < 2 {
		target = 2
	}

	indices := make([]int, 0, target)
	for i := 0; i < target; i++ {
		idx := int(math.Round(float64(i) * float64(n-1) / float64(target-1)))
		if len(indices) > 0 && indices[len(indices)-1] == idx {
			continue
		}
		indices = append(indices, idx)
	}

	if indices[0] != 0 {
		indices = append([]int{0}, indices...)
	}
	if indices[len(indices)-1] != n-1 {
		indices = append(indices, n-1)
	}

	return indices
}

// EvenIndices is the simpler fixed-count sampler used for nearby-zone
// routes: integer-arithmetic even spacing with no dedup pass.
func EvenIndices(n, count int) []int {
	if n <= 0 {
		return []int{}
	}
	if n == 1 {
		return []int{0}
	}
	if count < 2 {
		count = 2
	}

	indices := make([]int, count)
	for i := 0; i < count; i++ {
		indices[i] = i * (n - 1) / (count - 1)
	}
	return indices
}
