package indexing

import (
	"context"

	"github.com/kailas-cloud/petmatch/internal/domain"
)

// DescriptorWriter defines the storage contract for descriptor lifecycle.
type DescriptorWriter interface {
	Put(ctx context.Context, d *domain.Descriptor) error
	Delete(ctx context.Context, photoID string) error
	Retire(ctx context.Context, reportID string) (int, error)
	CountByModelVersion(ctx context.Context) (map[string]int, error)
}
