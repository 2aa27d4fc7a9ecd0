// Package descriptor persists photo descriptors in Redis hashes behind an
// FT.SEARCH vector index. This repository is the only writer of the
// descriptor population.
package descriptor

import (
	"context"
	"errors"
	"fmt"

	"github.com/kailas-cloud/petmatch/internal/db"
	"github.com/kailas-cloud/petmatch/internal/domain"
)

// scanPageSize is the FT.SEARCH page size for enumeration scans.
const scanPageSize = 256

// store is the consumer interface over db primitives (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, key string) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchList(ctx context.Context, index, query string, offset, limit int, fields []string) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
}

// HNSWConfig holds index build parameters.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Repo implements the descriptor store contract.
type Repo struct {
	store  store
	prefix string
	dim    int
	hnsw   HNSWConfig
}

// New creates a descriptor repository. dim is the descriptor dimensionality
// of the currently deployed model.
func New(s store, prefix string, dim int) *Repo {
	return &Repo{store: s, prefix: prefix, dim: dim}
}

// WithHNSW sets HNSW build parameters for EnsureIndex.
func (r *Repo) WithHNSW(cfg HNSWConfig) *Repo {
	r.hnsw = cfg
	return r
}

// EnsureIndex creates the descriptor vector index if it does not exist yet.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, r.indexName())
	if err != nil {
		return storeErr("probe descriptor index", err)
	}
	if exists {
		return nil
	}

	def := &db.IndexDefinition{
		Name:     r.indexName(),
		Prefixes: []string{r.prefix + "desc:"},
		Fields: []db.IndexField{
			{Name: fieldReportID, Type: db.IndexFieldTag},
			{Name: fieldCategory, Type: db.IndexFieldTag},
			{Name: fieldActive, Type: db.IndexFieldTag},
			{Name: fieldModelVersion, Type: db.IndexFieldTag},
			{Name: fieldCreatedAt, Type: db.IndexFieldNumeric},
			{
				Name:              fieldVector,
				Type:              db.IndexFieldVector,
				VectorAlgo:        db.VectorHNSW,
				VectorDim:         r.dim,
				VectorDistance:    db.DistanceCosine,
				VectorM:           r.hnsw.M,
				VectorEFConstruct: r.hnsw.EFConstruct,
			},
		},
	}

	// Tolerate a concurrent creator racing the existence probe.
	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return storeErr("create descriptor index", err)
	}
	return nil
}

// Put inserts or replaces the descriptor for its photo id. Idempotent under
// repeated identical input: the hash key is derived from the photo id and a
// single HSET writes every field, so there is never a partial descriptor.
func (r *Repo) Put(ctx context.Context, d *domain.Descriptor) error {
	if d.PhotoID == "" || d.ReportID == "" {
		return fmt.Errorf("photo id and report id are required: %w", domain.ErrInvalidRequest)
	}
	if len(d.Vector) != r.dim {
		return fmt.Errorf(
			"descriptor has %d dimensions, index expects %d: %w",
			len(d.Vector), r.dim, domain.ErrDescriptorShapeMismatch,
		)
	}

	key := r.descKey(d.PhotoID)
	if err := r.store.HSet(ctx, key, buildHashFields(d)); err != nil {
		return storeErr("hset "+key, err)
	}
	return nil
}

// Get returns the descriptor for a photo id.
func (r *Repo) Get(ctx context.Context, photoID string) (domain.Descriptor, error) {
	key := r.descKey(photoID)
	m, err := r.store.HGetAll(ctx, key)
	if err != nil {
		return domain.Descriptor{}, storeErr("hgetall "+key, err)
	}
	if len(m) == 0 {
		return domain.Descriptor{}, domain.ErrDescriptorNotFound
	}
	return parseHashFields(photoID, m), nil
}

// Delete removes the descriptor for a photo id entirely. Retire is preferred
// for lifecycle transitions; Delete exists for photo removal.
func (r *Repo) Delete(ctx context.Context, photoID string) error {
	key := r.descKey(photoID)
	if err := r.store.Del(ctx, key); err != nil {
		return storeErr("del "+key, err)
	}
	return nil
}

// Retire marks every descriptor owned by the report as inactive, excluding
// them from scoring without deleting the stored vectors. Returns the number
// of retired descriptors.
func (r *Repo) Retire(ctx context.Context, reportID string) (int, error) {
	query := fmt.Sprintf("@%s:{%s}", fieldReportID, escapeTag(reportID))

	retired := 0
	for offset := 0; ; offset += scanPageSize {
		res, err := r.store.SearchList(ctx, r.indexName(), query, offset, scanPageSize, []string{fieldActive})
		if err != nil {
			return retired, storeErr("search report "+reportID, err)
		}
		if len(res.Entries) == 0 {
			break
		}

		for _, entry := range res.Entries {
			if err := ctx.Err(); err != nil {
				return retired, fmt.Errorf("retire canceled: %w", err)
			}
			if entry.Fields[fieldActive] == activeFalse {
				continue
			}
			if err := r.store.HSet(ctx, entry.Key, map[string]string{fieldActive: activeFalse}); err != nil {
				return retired, storeErr("retire "+entry.Key, err)
			}
			retired++
		}

		if len(res.Entries) < scanPageSize {
			break
		}
	}
	return retired, nil
}

// Active enumerates the active descriptor population, optionally restricted
// to a category. The walk is paged and restartable; fn returning false stops
// the enumeration early. Order is not guaranteed.
func (r *Repo) Active(ctx context.Context, category string, fn func(domain.Descriptor) bool) error {
	query := activeFilter(category)

	for offset := 0; ; offset += scanPageSize {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("scan canceled: %w", err)
		}

		res, err := r.store.SearchList(ctx, r.indexName(), query, offset, scanPageSize, allFields())
		if err != nil {
			return storeErr("scan active descriptors", err)
		}
		if len(res.Entries) == 0 {
			return nil
		}

		for _, entry := range res.Entries {
			if !fn(parseHashFields(r.photoID(entry.Key), entry.Fields)) {
				return nil
			}
		}

		if len(res.Entries) < scanPageSize {
			return nil
		}
	}
}

// Nearest returns up to k active descriptors closest to the query vector,
// optionally restricted to a category. This is the ANN path behind the
// Active contract: same population, sublinear lookup.
func (r *Repo) Nearest(ctx context.Context, category string, vector []float32, k int) ([]domain.Descriptor, error) {
	if len(vector) != r.dim {
		return nil, fmt.Errorf(
			"query vector has %d dimensions, index expects %d: %w",
			len(vector), r.dim, domain.ErrDescriptorShapeMismatch,
		)
	}

	res, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.indexName(),
		Filter:       activeFilter(category),
		Vector:       vector,
		K:            k,
		ReturnFields: allFields(),
	})
	if err != nil {
		return nil, storeErr("knn search", err)
	}

	out := make([]domain.Descriptor, 0, len(res.Entries))
	for _, entry := range res.Entries {
		out = append(out, parseHashFields(r.photoID(entry.Key), entry.Fields))
	}
	return out, nil
}

// CountActive returns the size of the active population for a category
// (empty category counts everything active).
func (r *Repo) CountActive(ctx context.Context, category string) (int, error) {
	n, err := r.store.SearchCount(ctx, r.indexName(), activeFilter(category))
	if err != nil {
		return 0, storeErr("count active descriptors", err)
	}
	return n, nil
}

// CountByModelVersion tallies stored descriptors per model version tag.
// A second key in the result means the index holds descriptors that are not
// comparable with the deployed model and need re-indexing.
func (r *Repo) CountByModelVersion(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)

	for offset := 0; ; offset += scanPageSize {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("scan canceled: %w", err)
		}

		res, err := r.store.SearchList(ctx, r.indexName(), "*", offset, scanPageSize, []string{fieldModelVersion})
		if err != nil {
			return nil, storeErr("scan model versions", err)
		}
		if len(res.Entries) == 0 {
			return counts, nil
		}
		for _, entry := range res.Entries {
			counts[entry.Fields[fieldModelVersion]]++
		}
		if len(res.Entries) < scanPageSize {
			return counts, nil
		}
	}
}

func (r *Repo) indexName() string {
	return r.prefix + "desc-idx"
}

func (r *Repo) descKey(photoID string) string {
	return r.prefix + "desc:" + photoID
}

// photoID extracts the photo id back out of a hash key.
func (r *Repo) photoID(key string) string {
	prefix := r.prefix + "desc:"
	if len(key) > len(prefix) {
		return key[len(prefix):]
	}
	return key
}

// activeFilter builds the FT prefilter for the active population.
func activeFilter(category string) string {
	q := fmt.Sprintf("@%s:{%s}", fieldActive, activeTrue)
	if category != "" {
		q += fmt.Sprintf(" @%s:{%s}", fieldCategory, escapeTag(category))
	}
	return q
}

// storeErr wraps a storage failure so callers can match domain.ErrStoreUnavailable.
func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
