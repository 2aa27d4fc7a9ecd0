// Package matchevent persists match events keyed by the unordered report-id
// pair. Creation is check-or-create via SETNX, so at most one event ever
// exists per pair regardless of which side queried first.
package matchevent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/petmatch/internal/db"
	"github.com/kailas-cloud/petmatch/internal/domain"
)

// store is the consumer interface over db primitives (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetNX(ctx context.Context, key string, value []byte) (bool, error)
}

// Repo implements match-event persistence.
type Repo struct {
	store  store
	prefix string
}

// New creates a match-event repository.
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix}
}

// eventRecord is the stored JSON shape. Events are immutable; the external
// delivery collaborator owns any delivered state outside this record.
type eventRecord struct {
	ID                string    `json:"id"`
	QueryReportID     string    `json:"query_report_id"`
	CandidateReportID string    `json:"candidate_report_id"`
	Confidence        float64   `json:"confidence"`
	CreatedAt         time.Time `json:"created_at"`
}

// Create persists the event unless one already exists for its pair key.
// Returns true when the event was created, false when the pair was already
// recorded (either query direction).
func (r *Repo) Create(ctx context.Context, ev *domain.MatchEvent) (bool, error) {
	data, err := json.Marshal(eventRecord{
		ID:                ev.ID,
		QueryReportID:     ev.QueryReportID,
		CandidateReportID: ev.CandidateReportID,
		Confidence:        ev.Confidence,
		CreatedAt:         ev.CreatedAt,
	})
	if err != nil {
		return false, fmt.Errorf("marshal event: %w", err)
	}

	created, err := r.store.SetNX(ctx, r.eventKey(ev.PairKey), data)
	if err != nil {
		return false, fmt.Errorf("setnx event %s: %w: %w", ev.PairKey, domain.ErrStoreUnavailable, err)
	}
	return created, nil
}

// Get returns the stored event for an unordered pair key. The second return
// is false when no event exists for the pair.
func (r *Repo) Get(ctx context.Context, pairKey string) (domain.MatchEvent, bool, error) {
	raw, err := r.store.Get(ctx, r.eventKey(pairKey))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domain.MatchEvent{}, false, nil
		}
		return domain.MatchEvent{}, false, fmt.Errorf("get event %s: %w: %w", pairKey, domain.ErrStoreUnavailable, err)
	}

	var rec eventRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.MatchEvent{}, false, fmt.Errorf("unmarshal event %s: %w", pairKey, err)
	}
	return domain.MatchEvent{
		ID:                rec.ID,
		PairKey:           pairKey,
		QueryReportID:     rec.QueryReportID,
		CandidateReportID: rec.CandidateReportID,
		Confidence:        rec.Confidence,
		CreatedAt:         rec.CreatedAt,
	}, true, nil
}

func (r *Repo) eventKey(pairKey string) string {
	return r.prefix + "event:" + pairKey
}
