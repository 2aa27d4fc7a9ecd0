package petmatch

import (
	"context"
	"time"
)

// Extractor is the public contract for a pluggable extraction driver. The
// photo argument is a canonical PNG of the preprocessed frame.
type Extractor interface {
	ExtractPhoto(ctx context.Context, photo []byte) (vector []float32, err error)
	ModelVersion() string
}

// Photo describes one photo to index.
type Photo struct {
	PhotoID      string
	ReportID     string
	ReportStatus string // lost, found, resolved, withdrawn
	Category     string
	Data         []byte
}

// Descriptor summarizes a stored photo descriptor.
type Descriptor struct {
	PhotoID      string
	ReportID     string
	Category     string
	ModelVersion string
	Dimensions   int
	Active       bool
	CreatedAt    time.Time
}

// MatchQuery describes one match request.
type MatchQuery struct {
	ReportID string // the querying report, excluded from candidates
	Category string
	Photo    []byte
	// Notify records and delivers match events for accepted candidates.
	Notify bool
}

// Match is one ranked candidate.
type Match struct {
	Rank       int
	ReportID   string
	PhotoID    string
	Confidence float64
	Distance   float64
}

// MatchEvent records a newly accepted pair.
type MatchEvent struct {
	ID                string
	PairKey           string
	QueryReportID     string
	CandidateReportID string
	Confidence        float64
	CreatedAt         time.Time
}

// MatchResult carries the outcome of a match query.
type MatchResult struct {
	Matches []Match
	Events  []MatchEvent
}
