package jobs

import (
	"context"

	"github.com/knoguchi/ingestor/internal/batch"
)

// trackedProcessor wraps a batch.Processor so that every item's lifecycle
// also updates its JobItem status and the owning Job's progress counters —
// the bridge between C5 (BatchEngine) and C6 (JobRegistry) spec.md §4.6
// describes ("Progress counters are updated atomically together with item
// status updates"). JobItem.ID is used directly as the batch.Item.ID so no
// separate mapping table is needed.
type trackedProcessor struct {
	registry *Registry
	jobID    string
	inner    batch.Processor
}

// NewTrackedProcessor adapts inner into a batch.Processor that reports every
// item's start/completion/failure back to registry under jobID.
func NewTrackedProcessor(registry *Registry, jobID string, inner batch.Processor) batch.Processor {
	return &trackedProcessor{registry: registry, jobID: jobID, inner: inner}
}

func (p *trackedProcessor) ProcessItem(ctx context.Context, item batch.Item) (any, error) {
	if err := p.registry.StartItem(ctx, p.jobID, item.ID); err != nil {
		return nil, err
	}

	output, err := p.inner.ProcessItem(ctx, item)
	if err != nil {
		if trackErr := p.registry.FailItem(ctx, p.jobID, item.ID, err.Error()); trackErr != nil {
			return nil, trackErr
		}
		return nil, err
	}

	if err := p.registry.CompleteItem(ctx, p.jobID, item.ID, ""); err != nil {
		return nil, err
	}
	return output, nil
}
