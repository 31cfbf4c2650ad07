package driven

import (
	"context"

	"github.com/ericfisherdev/autorevert/internal/domain/model"
)

// RunStore defines the driven port for analysis cycle summaries.
type RunStore interface {
	Record(ctx context.Context, run model.RunSummary) error
	ListRecent(ctx context.Context, limit int) ([]model.RunSummary, error)
}
