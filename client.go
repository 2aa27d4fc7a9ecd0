// Package petmatch embeds the pet photo matching pipeline in-process:
// descriptor extraction, vector storage, ranked matching, and deduplicated
// match events over a Redis 8+ query-engine backend.
package petmatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/petmatch/internal/db"
	dbRedis "github.com/kailas-cloud/petmatch/internal/db/redis"
	"github.com/kailas-cloud/petmatch/internal/domain"
	"github.com/kailas-cloud/petmatch/internal/domain/similarity"
	"github.com/kailas-cloud/petmatch/internal/imaging"
	descriptorrepo "github.com/kailas-cloud/petmatch/internal/repository/descriptor"
	matcheventrepo "github.com/kailas-cloud/petmatch/internal/repository/matchevent"
	onnxExt "github.com/kailas-cloud/petmatch/internal/transport/onnx"
	openaiExt "github.com/kailas-cloud/petmatch/internal/transport/openai"
	"github.com/kailas-cloud/petmatch/internal/transport/webhook"
	indexinguc "github.com/kailas-cloud/petmatch/internal/usecase/indexing"
	matchinguc "github.com/kailas-cloud/petmatch/internal/usecase/matching"
	notifyuc "github.com/kailas-cloud/petmatch/internal/usecase/notify"
)

const defaultReadinessTimeout = 10 * time.Second

// Client is the petmatch SDK entry point.
type Client struct {
	store    db.Store
	indexing *indexinguc.Service
	matching *matchinguc.Service
	notify   *notifyuc.Service
	cleanup  func()
}

// New creates a petmatch Client, connects to the database, and ensures the
// descriptor index exists.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		keyPrefix:     "petmatch:",
		dimensions:    1280,
		topK:          5,
		minConfidence: 0.75,
		oversample:    4,
		logger:        zap.NewNop(),
	}
	for _, o := range opts {
		o(cfg)
	}

	if len(cfg.addrs) == 0 {
		return nil, errors.New("petmatch: database address required (use WithRedis)")
	}

	extractor, cleanup, err := createExtractor(cfg)
	if err != nil {
		return nil, err
	}

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.addrs,
		Username: cfg.username,
		Password: cfg.password,
	})
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("petmatch: create redis store: %w", err)
	}

	ctx := context.Background()
	if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		cleanup()
		store.Close()
		return nil, fmt.Errorf("petmatch: database not ready: %w", err)
	}

	return wireClient(ctx, store, extractor, cleanup, cfg)
}

func createExtractor(cfg *clientConfig) (domain.Extractor, func(), error) {
	switch {
	case cfg.extractor != nil:
		return &extractorAdapter{inner: cfg.extractor, dim: cfg.dimensions}, func() {}, nil
	case cfg.onnxModelPath != "":
		ext, err := onnxExt.NewExtractor(&onnxExt.Config{
			ModelPath:    cfg.onnxModelPath,
			LibraryPath:  cfg.onnxLibraryPath,
			ModelVersion: cfg.modelVersion,
			Dimensions:   cfg.dimensions,
			InputName:    "input",
			OutputName:   "features",
			PoolSize:     cfg.onnxPoolSize,
			Logger:       cfg.logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("petmatch: load onnx model: %w", err)
		}
		return ext, ext.Close, nil
	case cfg.remoteBaseURL != "":
		ext := openaiExt.NewExtractor(&openaiExt.Config{
			APIKey:       cfg.remoteAPIKey,
			BaseURL:      cfg.remoteBaseURL,
			Model:        cfg.remoteModel,
			ModelVersion: cfg.modelVersion,
			Dimensions:   cfg.dimensions,
			Timeout:      cfg.remoteTimeout,
			Logger:       cfg.logger,
		})
		return ext, func() {}, nil
	default:
		return nil, nil, errors.New(
			"petmatch: extraction driver required (use WithONNXModel, WithRemoteEmbedding, or WithExtractor)",
		)
	}
}

func wireClient(
	ctx context.Context, store db.Store,
	extractor domain.Extractor, cleanup func(), cfg *clientConfig,
) (*Client, error) {
	descRepo := descriptorrepo.New(store, cfg.keyPrefix, cfg.dimensions)
	if cfg.hnswM > 0 || cfg.hnswEFConstruct > 0 {
		descRepo = descRepo.WithHNSW(descriptorrepo.HNSWConfig{
			M:           cfg.hnswM,
			EFConstruct: cfg.hnswEFConstruct,
		})
	}
	if err := descRepo.EnsureIndex(ctx); err != nil {
		cleanup()
		store.Close()
		return nil, fmt.Errorf("petmatch: ensure descriptor index: %w", err)
	}
	eventRepo := matcheventrepo.New(store, cfg.keyPrefix)

	policy := matchinguc.Policy{
		TopK:          cfg.topK,
		MinConfidence: cfg.minConfidence,
		Oversample:    cfg.oversample,
	}

	return &Client{
		store:    store,
		indexing: indexinguc.New(descRepo, extractor, cfg.logger),
		matching: matchinguc.New(descRepo, extractor, policy, cfg.logger),
		notify:   notifyuc.New(eventRepo, webhook.NewLogDeliverer(cfg.logger), cfg.minConfidence, cfg.logger),
		cleanup:  cleanup,
	}, nil
}

// Close releases all resources.
func (c *Client) Close() {
	if c.cleanup != nil {
		c.cleanup()
	}
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks database connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// IndexPhoto runs the ingestion pipeline for one photo.
func (c *Client) IndexPhoto(ctx context.Context, p Photo) (Descriptor, error) {
	d, err := c.indexing.IndexPhoto(ctx, &indexinguc.IndexRequest{
		PhotoID:      p.PhotoID,
		ReportID:     p.ReportID,
		ReportStatus: p.ReportStatus,
		Category:     p.Category,
		Photo:        p.Data,
	})
	if err != nil {
		return Descriptor{}, err
	}
	return Descriptor{
		PhotoID:      d.PhotoID,
		ReportID:     d.ReportID,
		Category:     d.Category,
		ModelVersion: d.ModelVersion,
		Dimensions:   len(d.Vector),
		Active:       d.Active,
		CreatedAt:    d.CreatedAt,
	}, nil
}

// RemovePhoto deletes the descriptor of a photo.
func (c *Client) RemovePhoto(ctx context.Context, photoID string) error {
	return c.indexing.RemovePhoto(ctx, photoID)
}

// RetireReport deactivates every descriptor of a report and returns the count.
func (c *Client) RetireReport(ctx context.Context, reportID string) (int, error) {
	return c.indexing.RetireReport(ctx, reportID)
}

// ModelVersions tallies stored descriptors per model version.
func (c *Client) ModelVersions(ctx context.Context) (map[string]int, error) {
	return c.indexing.ModelVersions(ctx)
}

// FindMatches runs a match query. With Notify set, accepted candidates are
// recorded as deduplicated match events.
func (c *Client) FindMatches(ctx context.Context, q MatchQuery) (MatchResult, error) {
	candidates, err := c.matching.FindMatches(ctx, &matchinguc.Query{
		Photo:           q.Photo,
		ExcludeReportID: q.ReportID,
		Category:        q.Category,
	})
	if err != nil {
		return MatchResult{}, err
	}

	result := MatchResult{Matches: make([]Match, len(candidates))}
	for i, cand := range candidates {
		result.Matches[i] = Match{
			Rank:       cand.Rank,
			ReportID:   cand.ReportID,
			PhotoID:    cand.PhotoID,
			Confidence: cand.Confidence,
			Distance:   cand.Distance,
		}
	}

	if q.Notify {
		events, err := c.notify.OnMatches(ctx, q.ReportID, candidates)
		if err != nil {
			return result, err
		}
		result.Events = make([]MatchEvent, len(events))
		for i, ev := range events {
			result.Events[i] = MatchEvent{
				ID:                ev.ID,
				PairKey:           ev.PairKey,
				QueryReportID:     ev.QueryReportID,
				CandidateReportID: ev.CandidateReportID,
				Confidence:        ev.Confidence,
				CreatedAt:         ev.CreatedAt,
			}
		}
	}

	return result, nil
}

// extractorAdapter wraps the public Extractor to satisfy internal
// domain.Extractor. The preprocessed tensor is handed over as a canonical PNG.
type extractorAdapter struct {
	inner Extractor
	dim   int
}

func (a *extractorAdapter) Extract(ctx context.Context, t *imaging.Tensor) (domain.ExtractionResult, error) {
	frame, err := t.EncodePNG()
	if err != nil {
		return domain.ExtractionResult{}, fmt.Errorf("encode frame: %w", err)
	}

	vector, err := a.inner.ExtractPhoto(ctx, frame)
	if err != nil {
		return domain.ExtractionResult{}, fmt.Errorf("extract photo: %w", err)
	}
	if a.dim > 0 && len(vector) != a.dim {
		return domain.ExtractionResult{}, fmt.Errorf(
			"driver produced %d dimensions, configured %d: %w",
			len(vector), a.dim, domain.ErrDescriptorShapeMismatch,
		)
	}

	return domain.ExtractionResult{
		Vector:       similarity.Normalize(vector),
		ModelVersion: a.inner.ModelVersion(),
	}, nil
}

func (a *extractorAdapter) ModelVersion() string { return a.inner.ModelVersion() }
