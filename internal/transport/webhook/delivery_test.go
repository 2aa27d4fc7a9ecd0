package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/petmatch/internal/domain"
)

func testEvent() domain.MatchEvent {
	return domain.MatchEvent{
		ID:                "evt-1",
		PairKey:           "report-a:report-b",
		QueryReportID:     "report-b",
		CandidateReportID: "report-a",
		Confidence:        0.91,
		CreatedAt:         time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestDeliver_PostsEvent(t *testing.T) {
	var got eventPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	d := NewDeliverer(server.URL, 5*time.Second, zap.NewNop())
	if err := d.Deliver(context.Background(), testEvent()); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	if got.PairKey != "report-a:report-b" {
		t.Errorf("pair_key = %q", got.PairKey)
	}
	if got.Confidence != 0.91 {
		t.Errorf("confidence = %v", got.Confidence)
	}
}

func TestDeliver_Non2xxFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	d := NewDeliverer(server.URL, 5*time.Second, zap.NewNop())
	if err := d.Deliver(context.Background(), testEvent()); err == nil {
		t.Fatal("expected error for 502 response")
	}
}

func TestDeliver_Unreachable(t *testing.T) {
	d := NewDeliverer("http://127.0.0.1:1/hook", time.Second, zap.NewNop())
	if err := d.Deliver(context.Background(), testEvent()); err == nil {
		t.Fatal("expected error for unreachable endpoint")
	}
}

func TestLogDeliverer_AlwaysSucceeds(t *testing.T) {
	d := NewLogDeliverer(zap.NewNop())
	if err := d.Deliver(context.Background(), testEvent()); err != nil {
		t.Fatalf("log delivery should not fail: %v", err)
	}
}
