package similarity

import (
	"errors"
	"math"
	"testing"

	"github.com/kailas-cloud/petmatch/internal/domain"
)

func TestDistance_ShapeMismatch(t *testing.T) {
	_, err := Distance([]float32{1, 0}, []float32{1, 0, 0})
	if !errors.Is(err, domain.ErrDescriptorShapeMismatch) {
		t.Fatalf("expected ErrDescriptorShapeMismatch, got %v", err)
	}
}

func TestDistance_Empty(t *testing.T) {
	_, err := Distance(nil, nil)
	if !errors.Is(err, domain.ErrDescriptorShapeMismatch) {
		t.Fatalf("expected ErrDescriptorShapeMismatch, got %v", err)
	}
}

func TestScore_SelfSimilarityIsOne(t *testing.T) {
	// Full model dimensionality: the self-dot of a normalized float32 vector
	// lands slightly under 1, which must not leak into the score.
	wide := make([]float32, 1280)
	for i := range wide {
		wide[i] = float32(math.Sin(float64(i) + 0.5))
	}

	vectors := [][]float32{
		{1, 0, 0},
		Normalize([]float32{0.3, -0.5, 0.81}),
		Normalize([]float32{-2, 4, 8, -1}),
		Normalize(wide),
	}
	for _, v := range vectors {
		d, err := Distance(v, v)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d != 0 {
			t.Errorf("Distance(v, v) = %v, want exactly 0", d)
		}
		got, err := Score(v, v)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != 1.0 {
			t.Errorf("Score(v, v) = %v, want exactly 1.0", got)
		}
	}
}

func TestScore_Symmetry(t *testing.T) {
	a := Normalize([]float32{0.2, 0.9, -0.1})
	b := Normalize([]float32{-0.5, 0.4, 0.7})

	ab, err := Score(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ba, err := Score(b, a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ab != ba {
		t.Errorf("Score not symmetric: %v != %v", ab, ba)
	}
}

func TestConfidence_MonotoneAndBounded(t *testing.T) {
	tests := []struct {
		distance float64
		want     float64
	}{
		{0, 1.0},
		{0.5, 0.75},
		{1, 0.5},
		{2, 0.0},
		{-0.1, 1.0}, // drift below zero clamps
		{2.5, 0.0},  // drift above two clamps
	}
	for _, tt := range tests {
		if got := Confidence(tt.distance); got != tt.want {
			t.Errorf("Confidence(%v) = %v, want %v", tt.distance, got, tt.want)
		}
	}

	prev := math.Inf(1)
	for d := 0.0; d <= 2.0; d += 0.05 {
		c := Confidence(d)
		if c > prev {
			t.Fatalf("Confidence not monotonically decreasing at d=%v", d)
		}
		prev = c
	}
}

func TestConfidence_OppositeVectorsAreZero(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{-1, 0}
	got, err := Score(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 0 {
		t.Errorf("Score(opposite) = %v, want 0", got)
	}
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if math.Abs(sum-1) > 1e-6 {
		t.Errorf("normalized length^2 = %v, want 1", sum)
	}

	zero := Normalize([]float32{0, 0})
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector should stay zero, got %v", zero)
	}
}
