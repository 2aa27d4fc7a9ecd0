// Package indexing builds photo descriptors and manages their lifecycle:
// preprocess, extract, persist; retire when the owning report leaves matching.
package indexing

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/petmatch/internal/domain"
	"github.com/kailas-cloud/petmatch/internal/imaging"
)

// Service handles the descriptor ingestion pipeline.
type Service struct {
	repo      DescriptorWriter
	extractor domain.Extractor
	logger    *zap.Logger
}

// New creates an indexing service.
func New(repo DescriptorWriter, extractor domain.Extractor, logger *zap.Logger) *Service {
	return &Service{repo: repo, extractor: extractor, logger: logger}
}

// IndexRequest describes one photo to index.
type IndexRequest struct {
	PhotoID      string
	ReportID     string
	ReportStatus string // lost, found, resolved, withdrawn
	Category     string // species tag, may be empty
	Photo        []byte
}

// IndexPhoto runs the full ingestion pipeline for one photo. Re-indexing the
// same photo id replaces the stored descriptor, so retries are safe.
func (s *Service) IndexPhoto(ctx context.Context, req *IndexRequest) (domain.Descriptor, error) {
	if req.PhotoID == "" || req.ReportID == "" {
		return domain.Descriptor{}, fmt.Errorf("photo id and report id are required: %w", domain.ErrInvalidRequest)
	}
	if domain.RetiredStatus(req.ReportStatus) {
		return domain.Descriptor{}, fmt.Errorf(
			"report %s has status %q: %w", req.ReportID, req.ReportStatus, domain.ErrReportRetired,
		)
	}

	tensor, err := imaging.Preprocess(req.Photo)
	if err != nil {
		return domain.Descriptor{}, fmt.Errorf("preprocess photo %s: %w", req.PhotoID, err)
	}

	result, err := s.extractor.Extract(ctx, tensor)
	if err != nil {
		return domain.Descriptor{}, fmt.Errorf("extract photo %s: %w", req.PhotoID, err)
	}

	d := domain.Descriptor{
		PhotoID:      req.PhotoID,
		ReportID:     req.ReportID,
		Category:     req.Category,
		Vector:       result.Vector,
		ModelVersion: result.ModelVersion,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.repo.Put(ctx, &d); err != nil {
		return domain.Descriptor{}, fmt.Errorf("store descriptor %s: %w", req.PhotoID, err)
	}

	s.logger.Info("photo indexed",
		zap.String("photo_id", req.PhotoID),
		zap.String("report_id", req.ReportID),
		zap.String("category", req.Category),
		zap.String("model_version", d.ModelVersion),
	)
	return d, nil
}

// RetireReport deactivates every descriptor of a report. Called when the
// report transitions to resolved or withdrawn. Idempotent.
func (s *Service) RetireReport(ctx context.Context, reportID string) (int, error) {
	if reportID == "" {
		return 0, fmt.Errorf("report id is required: %w", domain.ErrInvalidRequest)
	}

	retired, err := s.repo.Retire(ctx, reportID)
	if err != nil {
		return retired, fmt.Errorf("retire report %s: %w", reportID, err)
	}

	s.logger.Info("report retired",
		zap.String("report_id", reportID),
		zap.Int("descriptors", retired),
	)
	return retired, nil
}

// ModelVersions tallies stored descriptors per model version. More than one
// version in the result means part of the index needs re-extraction before it
// participates in matching again.
func (s *Service) ModelVersions(ctx context.Context) (map[string]int, error) {
	counts, err := s.repo.CountByModelVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("count model versions: %w", err)
	}
	return counts, nil
}

// RemovePhoto deletes the descriptor of a photo entirely.
func (s *Service) RemovePhoto(ctx context.Context, photoID string) error {
	if photoID == "" {
		return fmt.Errorf("photo id is required: %w", domain.ErrInvalidRequest)
	}
	if err := s.repo.Delete(ctx, photoID); err != nil {
		return fmt.Errorf("remove photo %s: %w", photoID, err)
	}
	return nil
}
