// Package matching turns a query photo into a ranked list of candidate
// reports. The acceptance policy (top-K, confidence threshold) is fixed
// service configuration so results stay auditable across requests.
package matching

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/kailas-cloud/petmatch/internal/domain"
	"github.com/kailas-cloud/petmatch/internal/domain/similarity"
	"github.com/kailas-cloud/petmatch/internal/imaging"
	"github.com/kailas-cloud/petmatch/internal/metrics"
)

// Policy is the fixed acceptance configuration.
type Policy struct {
	TopK          int
	MinConfidence float64
	// Oversample widens the ANN fetch so exclusion and per-report collapsing
	// still leave TopK survivors.
	Oversample int
}

// Service executes match queries against the active descriptor population.
type Service struct {
	repo      DescriptorSearcher
	extractor domain.Extractor
	policy    Policy
	logger    *zap.Logger
}

// New creates a matching service.
func New(repo DescriptorSearcher, extractor domain.Extractor, policy Policy, logger *zap.Logger) *Service {
	if policy.Oversample <= 0 {
		policy.Oversample = 4
	}
	return &Service{repo: repo, extractor: extractor, policy: policy, logger: logger}
}

// Query describes one match request.
type Query struct {
	Photo []byte
	// ExcludeReportID removes the querying report's own descriptors from the
	// candidate set; a report never matches itself.
	ExcludeReportID string
	// Category restricts candidates to one species tag. Empty searches across
	// all categories.
	Category string
}

// FindMatches runs the query pipeline: preprocess, extract, retrieve
// oversampled neighbors, re-score exactly, collapse to the best photo per
// report, then apply the acceptance policy. Results are ordered by descending
// confidence; equal confidence favors the older descriptor. An empty result
// is a valid outcome, not an error.
func (s *Service) FindMatches(ctx context.Context, q *Query) ([]domain.MatchCandidate, error) {
	tensor, err := imaging.Preprocess(q.Photo)
	if err != nil {
		metrics.MatchQueriesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("preprocess query photo: %w", err)
	}

	result, err := s.extractor.Extract(ctx, tensor)
	if err != nil {
		metrics.MatchQueriesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("extract query photo: %w", err)
	}

	fetch := s.policy.TopK * s.policy.Oversample
	neighbors, err := s.repo.Nearest(ctx, q.Category, result.Vector, fetch)
	if err != nil {
		metrics.MatchQueriesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("retrieve candidates: %w", err)
	}

	candidates, err := s.rank(ctx, result, q.ExcludeReportID, neighbors)
	if err != nil {
		metrics.MatchQueriesTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	if len(candidates) == 0 {
		metrics.MatchQueriesTotal.WithLabelValues("empty").Inc()
	} else {
		metrics.MatchQueriesTotal.WithLabelValues("hit").Inc()
	}
	metrics.MatchCandidates.Observe(float64(len(candidates)))

	s.logger.Debug("match query completed",
		zap.String("exclude_report_id", q.ExcludeReportID),
		zap.String("category", q.Category),
		zap.Int("neighbors", len(neighbors)),
		zap.Int("candidates", len(candidates)),
	)
	return candidates, nil
}

// rank re-scores neighbors exactly, drops incomparable or self candidates,
// collapses to the best photo per report, and applies the acceptance policy.
func (s *Service) rank(
	ctx context.Context, query domain.ExtractionResult,
	excludeReportID string, neighbors []domain.Descriptor,
) ([]domain.MatchCandidate, error) {
	best := make(map[string]domain.MatchCandidate)

	for _, d := range neighbors {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("ranking canceled: %w", err)
		}
		if d.ReportID == excludeReportID {
			continue
		}
		// Descriptors from a different model version live in an incomparable
		// space; skip them rather than produce a bogus score.
		if d.ModelVersion != query.ModelVersion {
			continue
		}

		dist, err := similarity.Distance(query.Vector, d.Vector)
		if err != nil {
			return nil, fmt.Errorf("score candidate %s: %w", d.PhotoID, err)
		}

		c := domain.MatchCandidate{
			ReportID:   d.ReportID,
			PhotoID:    d.PhotoID,
			Distance:   dist,
			Confidence: similarity.Confidence(dist),
			CreatedAt:  d.CreatedAt,
		}

		prev, seen := best[d.ReportID]
		if !seen || closer(c, prev) {
			best[d.ReportID] = c
		}
	}

	candidates := make([]domain.MatchCandidate, 0, len(best))
	for _, c := range best {
		if c.Confidence >= s.policy.MinConfidence {
			candidates = append(candidates, c)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return closer(candidates[i], candidates[j])
	})

	if len(candidates) > s.policy.TopK {
		candidates = candidates[:s.policy.TopK]
	}
	for i := range candidates {
		candidates[i].Rank = i + 1
	}
	return candidates, nil
}

// closer orders candidates by ascending distance; equal distance favors the
// older descriptor so rankings are stable across repeated queries.
func closer(a, b domain.MatchCandidate) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// PopulationSize reports the active candidate population for a category.
func (s *Service) PopulationSize(ctx context.Context, category string) (int, error) {
	n, err := s.repo.CountActive(ctx, category)
	if err != nil {
		return 0, fmt.Errorf("count population: %w", err)
	}
	return n, nil
}
