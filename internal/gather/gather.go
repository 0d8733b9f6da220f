package gather

import (
	"context"

	"taxitrend/internal/domain"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run fills every missing period. Per-period failures are logged and
	// skipped; only listing errors and cancellation are returned.
	Run(ctx context.Context) error
}

// Report summarises one gap-filling pass.
type Report struct {
	Missing []domain.Period
	Fetched []domain.Period
	Failed  []domain.Period
}
