package descriptor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/petmatch/internal/db"
	"github.com/kailas-cloud/petmatch/internal/domain"
)

// fakeStore keeps hashes in memory and serves canned search pages.
type fakeStore struct {
	hashes     map[string]map[string]string
	listPages  [][]db.SearchEntry
	listCalls  int
	knnResult  *db.SearchResult
	knnQuery   *db.KNNQuery
	failOp     string
	idxExists  bool
	createdIdx *db.IndexDefinition
}

var errBoom = errors.New("boom")

func newFakeStore() *fakeStore {
	return &fakeStore{hashes: make(map[string]map[string]string)}
}

func (f *fakeStore) HSet(_ context.Context, key string, fields map[string]string) error {
	if f.failOp == "hset" {
		return errBoom
	}
	h, ok := f.hashes[key]
	if !ok {
		h = make(map[string]string)
		f.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (f *fakeStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	if f.failOp == "hgetall" {
		return nil, errBoom
	}
	return f.hashes[key], nil
}

func (f *fakeStore) Del(_ context.Context, key string) error {
	delete(f.hashes, key)
	return nil
}

func (f *fakeStore) CreateIndex(_ context.Context, def *db.IndexDefinition) error {
	f.createdIdx = def
	return nil
}

func (f *fakeStore) IndexExists(_ context.Context, _ string) (bool, error) {
	if f.failOp == "indexexists" {
		return false, errBoom
	}
	return f.idxExists, nil
}

func (f *fakeStore) SearchKNN(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if f.failOp == "knn" {
		return nil, errBoom
	}
	f.knnQuery = q
	if f.knnResult == nil {
		return &db.SearchResult{}, nil
	}
	return f.knnResult, nil
}

func (f *fakeStore) SearchList(
	_ context.Context, _, _ string, _, _ int, _ []string,
) (*db.SearchResult, error) {
	if f.failOp == "list" {
		return nil, errBoom
	}
	if f.listCalls >= len(f.listPages) {
		return &db.SearchResult{}, nil
	}
	page := f.listPages[f.listCalls]
	f.listCalls++
	return &db.SearchResult{Total: len(page), Entries: page}, nil
}

func (f *fakeStore) SearchCount(_ context.Context, _, _ string) (int, error) {
	if f.failOp == "count" {
		return 0, errBoom
	}
	return len(f.hashes), nil
}

func testDescriptor() *domain.Descriptor {
	return &domain.Descriptor{
		PhotoID:      "p1",
		ReportID:     "r1",
		Category:     "dog",
		Vector:       []float32{0.6, 0.8},
		ModelVersion: "mobilenet-v2-1",
		Active:       true,
		CreatedAt:    time.Unix(0, 1700000000000000000).UTC(),
	}
}

func TestEnsureIndex_CreatesWhenMissing(t *testing.T) {
	fs := newFakeStore()
	repo := New(fs, "petmatch:", 2).WithHNSW(HNSWConfig{M: 16, EFConstruct: 200})

	if err := repo.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("ensure index: %v", err)
	}
	if fs.createdIdx == nil {
		t.Fatal("index was not created")
	}
	if fs.createdIdx.Name != "petmatch:desc-idx" {
		t.Errorf("index name = %q", fs.createdIdx.Name)
	}
	vec := fs.createdIdx.Fields[len(fs.createdIdx.Fields)-1]
	if vec.Type != db.IndexFieldVector || vec.VectorDim != 2 || vec.VectorM != 16 {
		t.Errorf("vector field mismatch: %+v", vec)
	}
}

func TestEnsureIndex_SkipsExistingIndex(t *testing.T) {
	fs := newFakeStore()
	fs.idxExists = true
	repo := New(fs, "petmatch:", 2)

	if err := repo.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("ensure index: %v", err)
	}
	if fs.createdIdx != nil {
		t.Fatal("FT.CREATE issued for an existing index")
	}
}

func TestEnsureIndex_ProbeFailure(t *testing.T) {
	fs := newFakeStore()
	fs.failOp = "indexexists"
	repo := New(fs, "petmatch:", 2)

	err := repo.EnsureIndex(context.Background())
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestPut_Idempotent(t *testing.T) {
	fs := newFakeStore()
	repo := New(fs, "petmatch:", 2)

	d := testDescriptor()
	for i := 0; i < 2; i++ {
		if err := repo.Put(context.Background(), d); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}

	if len(fs.hashes) != 1 {
		t.Fatalf("expected exactly one descriptor hash, got %d", len(fs.hashes))
	}

	got, err := repo.Get(context.Background(), "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ReportID != "r1" || got.Category != "dog" || !got.Active {
		t.Errorf("roundtrip mismatch: %+v", got)
	}
	if got.ModelVersion != d.ModelVersion {
		t.Errorf("model version lost: %q", got.ModelVersion)
	}
	if !got.CreatedAt.Equal(d.CreatedAt) {
		t.Errorf("created_at lost precision: %v != %v", got.CreatedAt, d.CreatedAt)
	}
	if len(got.Vector) != 2 || got.Vector[0] != 0.6 || got.Vector[1] != 0.8 {
		t.Errorf("vector roundtrip mismatch: %v", got.Vector)
	}
}

func TestPut_DimMismatch(t *testing.T) {
	repo := New(newFakeStore(), "petmatch:", 4)
	d := testDescriptor() // 2-dim vector against a 4-dim index
	err := repo.Put(context.Background(), d)
	if !errors.Is(err, domain.ErrDescriptorShapeMismatch) {
		t.Fatalf("expected ErrDescriptorShapeMismatch, got %v", err)
	}
}

func TestPut_StoreFailure(t *testing.T) {
	fs := newFakeStore()
	fs.failOp = "hset"
	repo := New(fs, "petmatch:", 2)

	err := repo.Put(context.Background(), testDescriptor())
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo := New(newFakeStore(), "petmatch:", 2)
	_, err := repo.Get(context.Background(), "missing")
	if !errors.Is(err, domain.ErrDescriptorNotFound) {
		t.Fatalf("expected ErrDescriptorNotFound, got %v", err)
	}
}

func TestRetire_FlipsActive(t *testing.T) {
	fs := newFakeStore()
	repo := New(fs, "petmatch:", 2)

	d := testDescriptor()
	if err := repo.Put(context.Background(), d); err != nil {
		t.Fatalf("put: %v", err)
	}
	fs.listPages = [][]db.SearchEntry{{
		{Key: "petmatch:desc:p1", Fields: map[string]string{fieldActive: activeTrue}},
	}}

	n, err := repo.Retire(context.Background(), "r1")
	if err != nil {
		t.Fatalf("retire: %v", err)
	}
	if n != 1 {
		t.Fatalf("retired %d descriptors, want 1", n)
	}
	if fs.hashes["petmatch:desc:p1"][fieldActive] != activeFalse {
		t.Error("descriptor still active after retire")
	}
}

func TestRetire_SkipsAlreadyInactive(t *testing.T) {
	fs := newFakeStore()
	fs.listPages = [][]db.SearchEntry{{
		{Key: "petmatch:desc:p1", Fields: map[string]string{fieldActive: activeFalse}},
	}}
	repo := New(fs, "petmatch:", 2)

	n, err := repo.Retire(context.Background(), "r1")
	if err != nil {
		t.Fatalf("retire: %v", err)
	}
	if n != 0 {
		t.Fatalf("retired %d descriptors, want 0", n)
	}
}

func TestNearest_DimCheck(t *testing.T) {
	repo := New(newFakeStore(), "petmatch:", 4)
	_, err := repo.Nearest(context.Background(), "dog", []float32{1, 0}, 5)
	if !errors.Is(err, domain.ErrDescriptorShapeMismatch) {
		t.Fatalf("expected ErrDescriptorShapeMismatch, got %v", err)
	}
}

func TestNearest_BuildsActiveFilter(t *testing.T) {
	fs := newFakeStore()
	repo := New(fs, "petmatch:", 2)

	_, err := repo.Nearest(context.Background(), "dog", []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("nearest: %v", err)
	}
	want := "@active:{1} @category:{dog}"
	if fs.knnQuery.Filter != want {
		t.Errorf("filter = %q, want %q", fs.knnQuery.Filter, want)
	}
	if fs.knnQuery.K != 5 {
		t.Errorf("k = %d, want 5", fs.knnQuery.K)
	}
}

func TestActive_EarlyStop(t *testing.T) {
	fs := newFakeStore()
	fs.listPages = [][]db.SearchEntry{{
		{Key: "petmatch:desc:p1", Fields: buildHashFields(testDescriptor())},
		{Key: "petmatch:desc:p2", Fields: buildHashFields(testDescriptor())},
	}}
	repo := New(fs, "petmatch:", 2)

	seen := 0
	err := repo.Active(context.Background(), "", func(domain.Descriptor) bool {
		seen++
		return false
	})
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if seen != 1 {
		t.Fatalf("enumerated %d descriptors after early stop, want 1", seen)
	}
}

func TestActive_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	repo := New(newFakeStore(), "petmatch:", 2)
	err := repo.Active(ctx, "", func(domain.Descriptor) bool { return true })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestCountByModelVersion(t *testing.T) {
	fs := newFakeStore()
	fs.listPages = [][]db.SearchEntry{{
		{Key: "a", Fields: map[string]string{fieldModelVersion: "v1"}},
		{Key: "b", Fields: map[string]string{fieldModelVersion: "v1"}},
		{Key: "c", Fields: map[string]string{fieldModelVersion: "v2"}},
	}}
	repo := New(fs, "petmatch:", 2)

	counts, err := repo.CountByModelVersion(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts["v1"] != 2 || counts["v2"] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}

func TestEscapeTag(t *testing.T) {
	got := escapeTag("report-42:a b")
	want := "report\\-42\\:a\\ b"
	if got != want {
		t.Errorf("escapeTag = %q, want %q", got, want)
	}
}
