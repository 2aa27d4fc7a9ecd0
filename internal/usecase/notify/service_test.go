package notify

import (
	"context"
	"errors"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/petmatch/internal/domain"
	"github.com/kailas-cloud/petmatch/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterMatchingMetrics()
	os.Exit(m.Run())
}

// --- Mocks ---

type mockEvents struct {
	seen      map[string]bool
	createErr error
	created   []domain.MatchEvent
}

func newMockEvents() *mockEvents {
	return &mockEvents{seen: make(map[string]bool)}
}

func (m *mockEvents) Create(_ context.Context, ev *domain.MatchEvent) (bool, error) {
	if m.createErr != nil {
		return false, m.createErr
	}
	if m.seen[ev.PairKey] {
		return false, nil
	}
	m.seen[ev.PairKey] = true
	m.created = append(m.created, *ev)
	return true, nil
}

type mockDeliverer struct {
	delivered []domain.MatchEvent
	err       error
}

func (m *mockDeliverer) Deliver(_ context.Context, ev domain.MatchEvent) error {
	if m.err != nil {
		return m.err
	}
	m.delivered = append(m.delivered, ev)
	return nil
}

func candidate(reportID string, confidence float64) domain.MatchCandidate {
	return domain.MatchCandidate{ReportID: reportID, PhotoID: "p-" + reportID, Confidence: confidence}
}

// --- Tests ---

func TestOnMatches_CreatesAndDelivers(t *testing.T) {
	events := newMockEvents()
	deliverer := &mockDeliverer{}
	svc := New(events, deliverer, 0.75, zap.NewNop())

	created, err := svc.OnMatches(context.Background(), "r-query", []domain.MatchCandidate{
		candidate("r-a", 0.9),
		candidate("r-b", 0.8),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("expected 2 events, got %d", len(created))
	}
	if len(deliverer.delivered) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(deliverer.delivered))
	}
	for _, ev := range created {
		if ev.QueryReportID != "r-query" {
			t.Errorf("query report = %q", ev.QueryReportID)
		}
		if ev.PairKey != domain.PairKey("r-query", ev.CandidateReportID) {
			t.Errorf("pair key = %q", ev.PairKey)
		}
	}
}

func TestOnMatches_SymmetricQueryDeduplicated(t *testing.T) {
	events := newMockEvents()
	svc := New(events, &mockDeliverer{}, 0.75, zap.NewNop())

	first, err := svc.OnMatches(context.Background(), "r-lost", []domain.MatchCandidate{
		candidate("r-found", 0.9),
	})
	if err != nil || len(first) != 1 {
		t.Fatalf("first direction: events=%d err=%v", len(first), err)
	}

	// Same pair queried from the other side must not produce a second event.
	second, err := svc.OnMatches(context.Background(), "r-found", []domain.MatchCandidate{
		candidate("r-lost", 0.9),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("expected symmetric query to be suppressed, got %d events", len(second))
	}
}

func TestOnMatches_BelowThresholdSkipped(t *testing.T) {
	events := newMockEvents()
	svc := New(events, &mockDeliverer{}, 0.75, zap.NewNop())

	created, err := svc.OnMatches(context.Background(), "r-query", []domain.MatchCandidate{
		candidate("r-weak", 0.6),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(created) != 0 {
		t.Fatalf("expected no events under threshold, got %d", len(created))
	}
}

func TestOnMatches_SelfPairSkipped(t *testing.T) {
	events := newMockEvents()
	svc := New(events, &mockDeliverer{}, 0.75, zap.NewNop())

	created, err := svc.OnMatches(context.Background(), "r-query", []domain.MatchCandidate{
		candidate("r-query", 0.99),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(created) != 0 {
		t.Fatal("self pair must never produce an event")
	}
}

func TestOnMatches_DeliveryFailureKeepsEvent(t *testing.T) {
	events := newMockEvents()
	deliverer := &mockDeliverer{err: errors.New("webhook down")}
	svc := New(events, deliverer, 0.75, zap.NewNop())

	created, err := svc.OnMatches(context.Background(), "r-query", []domain.MatchCandidate{
		candidate("r-a", 0.9),
	})
	if err != nil {
		t.Fatalf("delivery failure must not fail the call: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("event should stand despite failed delivery, got %d", len(created))
	}
}

func TestOnMatches_StoreFailureReported(t *testing.T) {
	events := newMockEvents()
	events.createErr = domain.ErrStoreUnavailable
	svc := New(events, &mockDeliverer{}, 0.75, zap.NewNop())

	created, err := svc.OnMatches(context.Background(), "r-query", []domain.MatchCandidate{
		candidate("r-a", 0.9),
	})
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if len(created) != 0 {
		t.Fatalf("no events should be reported created, got %d", len(created))
	}
}

func TestOnMatches_EmptyQueryReport(t *testing.T) {
	svc := New(newMockEvents(), &mockDeliverer{}, 0.75, zap.NewNop())
	if _, err := svc.OnMatches(context.Background(), "", nil); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}
