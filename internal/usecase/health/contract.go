package health

import "context"

// StorePinger checks descriptor store availability.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// ModelChecker checks embedding model availability.
type ModelChecker interface {
	HealthCheck(ctx context.Context) error
}
