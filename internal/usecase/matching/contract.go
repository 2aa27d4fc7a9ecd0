package matching

import (
	"context"

	"github.com/kailas-cloud/petmatch/internal/domain"
)

// DescriptorSearcher defines the storage contract for candidate retrieval.
type DescriptorSearcher interface {
	Nearest(ctx context.Context, category string, vector []float32, k int) ([]domain.Descriptor, error)
	CountActive(ctx context.Context, category string) (int, error)
}
