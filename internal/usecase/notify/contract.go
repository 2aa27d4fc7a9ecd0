package notify

import (
	"context"

	"github.com/kailas-cloud/petmatch/internal/domain"
)

// EventStore defines the persistence contract for match events.
type EventStore interface {
	Create(ctx context.Context, ev *domain.MatchEvent) (bool, error)
}

// Deliverer hands a recorded event to the external delivery collaborator.
type Deliverer interface {
	Deliver(ctx context.Context, event domain.MatchEvent) error
}
