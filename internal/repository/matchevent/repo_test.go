package matchevent

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/petmatch/internal/db"
	"github.com/kailas-cloud/petmatch/internal/domain"
)

type fakeKV struct {
	data map[string][]byte
	err  error
}

func newFakeKV() *fakeKV { return &fakeKV{data: make(map[string][]byte)} }

func (f *fakeKV) Get(_ context.Context, key string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (f *fakeKV) SetNX(_ context.Context, key string, value []byte) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if _, exists := f.data[key]; exists {
		return false, nil
	}
	f.data[key] = value
	return true, nil
}

func TestCreate_DeduplicatesUnorderedPair(t *testing.T) {
	kv := newFakeKV()
	repo := New(kv, "petmatch:")

	first := domain.NewMatchEvent("found-9", "lost-1", 0.92)
	created, err := repo.Create(context.Background(), &first)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created {
		t.Fatal("first create should succeed")
	}

	// Symmetric query from the matched side: same unordered pair.
	second := domain.NewMatchEvent("lost-1", "found-9", 0.95)
	created, err = repo.Create(context.Background(), &second)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created {
		t.Fatal("symmetric create must be suppressed")
	}
	if len(kv.data) != 1 {
		t.Fatalf("expected one stored event, got %d", len(kv.data))
	}
}

func TestCreate_StoreFailure(t *testing.T) {
	kv := newFakeKV()
	kv.err = errors.New("connection refused")
	repo := New(kv, "petmatch:")

	ev := domain.NewMatchEvent("a", "b", 0.8)
	_, err := repo.Create(context.Background(), &ev)
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestGet_Roundtrip(t *testing.T) {
	kv := newFakeKV()
	repo := New(kv, "petmatch:")

	ev := domain.NewMatchEvent("found-9", "lost-1", 0.92)
	if _, err := repo.Create(context.Background(), &ev); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, ok, err := repo.Get(context.Background(), ev.PairKey)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatal("expected event to exist")
	}
	if got.ID != ev.ID || got.Confidence != 0.92 || got.QueryReportID != "found-9" {
		t.Errorf("roundtrip mismatch: %+v", got)
	}
}

func TestGet_Missing(t *testing.T) {
	repo := New(newFakeKV(), "petmatch:")
	_, ok, err := repo.Get(context.Background(), "a:b")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatal("expected missing event")
	}
}
