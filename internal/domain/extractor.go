package domain

import (
	"context"

	"github.com/kailas-cloud/petmatch/internal/imaging"
)

// Extractor is the shared image vectorization contract between layers.
// The underlying model is frozen at deployment time: loaded once at process
// start, safe for concurrent read-only invocation, never fine-tuned here.
type Extractor interface {
	Extract(ctx context.Context, t *imaging.Tensor) (ExtractionResult, error)
	// ModelVersion identifies the frozen artifact. Descriptors built with a
	// different version are not comparable and must be re-indexed.
	ModelVersion() string
}

// HealthChecker verifies model availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ExtractionResult carries the descriptor vector through the decorator chain.
type ExtractionResult struct {
	Vector       []float32
	ModelVersion string
}
