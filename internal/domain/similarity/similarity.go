// Package similarity implements the scoring policy between photo descriptors:
// cosine distance on unit-normalized vectors mapped to a bounded confidence.
package similarity

import (
	"fmt"
	"math"

	"github.com/kailas-cloud/petmatch/internal/domain"
)

// Distance returns the cosine distance between two unit-normalized vectors,
// in [0, 2]. Identical vectors are at distance 0.
func Distance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf(
			"got %d and %d dimensions: %w",
			len(a), len(b), domain.ErrDescriptorShapeMismatch,
		)
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("empty descriptors: %w", domain.ErrDescriptorShapeMismatch)
	}

	// Float32 quantization leaves the self-dot of a normalized vector just
	// under 1, so element-wise equal inputs are distance 0 by definition
	// rather than by arithmetic.
	identical := true
	var dot float64
	for i := range a {
		if a[i] != b[i] {
			identical = false
		}
		dot += float64(a[i]) * float64(b[i])
	}
	if identical {
		return 0, nil
	}
	// Normalized inputs keep dot in [-1, 1]; clamp against float drift.
	dot = math.Max(-1, math.Min(1, dot))
	return 1 - dot, nil
}

// Confidence maps a cosine distance to a score in [0, 1]. Monotonically
// decreasing in distance; distance 0 maps to exactly 1.
func Confidence(distance float64) float64 {
	c := 1 - distance/2
	return math.Max(0, math.Min(1, c))
}

// Score computes the confidence between two descriptors. Symmetric,
// Score(v, v) == 1 for any normalized v.
func Score(a, b []float32) (float64, error) {
	d, err := Distance(a, b)
	if err != nil {
		return 0, err
	}
	return Confidence(d), nil
}

// Normalize scales v to unit L2 length in place and returns it.
// A zero vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}
