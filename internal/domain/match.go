package domain

import (
	"time"

	"github.com/google/uuid"
)

// MatchCandidate pairs a query photo with a candidate report. Request-scoped:
// produced per FindMatches call, never shared across requests.
type MatchCandidate struct {
	ReportID   string
	PhotoID    string
	Distance   float64
	Confidence float64
	Rank       int
	CreatedAt  time.Time // descriptor creation time, used for tie-breaking
}

// MatchEvent records that a candidate pair cleared the acceptance policy and
// was handed to notification delivery. Identified by the unordered report-id
// pair: at most one event per pair ever exists, regardless of query direction.
// Never mutated after creation; the delivered flag lives with the external
// delivery collaborator.
type MatchEvent struct {
	ID                string
	PairKey           string
	QueryReportID     string
	CandidateReportID string
	Confidence        float64
	CreatedAt         time.Time
}

// NewMatchEvent creates a match event for the given pair.
func NewMatchEvent(queryReportID, candidateReportID string, confidence float64) MatchEvent {
	return MatchEvent{
		ID:                uuid.NewString(),
		PairKey:           PairKey(queryReportID, candidateReportID),
		QueryReportID:     queryReportID,
		CandidateReportID: candidateReportID,
		Confidence:        confidence,
		CreatedAt:         time.Now().UTC(),
	}
}

// PairKey builds the canonical unordered key for two report ids, so that
// (a,b) and (b,a) collapse to the same event.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}
