package domain

import "time"

// Report lifecycle states, owned by the external CRUD collaborator.
// Only read here: lost/found participate in matching, resolved/withdrawn retire descriptors.
const (
	StatusLost      = "lost"
	StatusFound     = "found"
	StatusResolved  = "resolved"
	StatusWithdrawn = "withdrawn"
)

// RetiredStatus reports whether a report status excludes its photos from matching.
func RetiredStatus(status string) bool {
	return status == StatusResolved || status == StatusWithdrawn
}

// Descriptor is the fixed-length vector representation of one indexed photo.
// At most one live descriptor exists per PhotoID; retired descriptors stay
// stored but are excluded from scoring.
type Descriptor struct {
	PhotoID      string
	ReportID     string
	Category     string
	Vector       []float32 // L2-normalized, dimensionality fixed by the model
	ModelVersion string
	Active       bool
	CreatedAt    time.Time
}
