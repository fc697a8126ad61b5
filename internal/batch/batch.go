// Package batch implements C5, the parallel worker pool that drives
// ContentProcessor invocations across a batch of items with dynamic
// concurrency, priority scheduling, progress/resource telemetry, and
// failure isolation (spec.md §4.5).
package batch

import (
	"context"
	"time"
)

// Item is one unit of work submitted to ProcessBatch. Payload is opaque to
// the engine — it is whatever the Processor needs (a file path, inline
// bytes, a crawl URL).
type Item struct {
	ID       string
	Priority int
	Payload  any
}

// Processor is what the engine delegates per-item work to — C4's
// ContentProcessor in production, a fake in tests.
type Processor interface {
	ProcessItem(ctx context.Context, item Item) (any, error)
}

// Status is the terminal state of one item.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// ItemResult is one item's outcome within a Result.
type ItemResult struct {
	ID               string
	Status           Status
	Output           any
	Error            error
	ProcessingTimeMs int64
}

// Result is the outcome of one ProcessBatch run (spec.md §4.5 BatchResult).
type Result struct {
	BatchID     string
	Processed   int
	Successful  int
	Failed      int
	Items       []ItemResult
	TotalTimeMs int64
}

// ProgressEvent is emitted after each item completion.
type ProgressEvent struct {
	ProcessedFiles           int
	TotalFiles               int
	PercentComplete          float64
	CurrentFile              string
	EstimatedTimeRemainingMs int64
}

// ResourceEvent is emitted on every dynamic-concurrency sampling tick.
type ResourceEvent struct {
	CPUUsage        float64
	AvailableMemory uint64
	TotalMemory     uint64
	MemoryUsagePct  float64
}

// Events is the drop-on-overflow event stream a caller subscribes to
// (spec.md §5: "event subscribers that cannot keep up are dropped").
type Events struct {
	Progress  chan ProgressEvent
	Resources chan ResourceEvent
}

func newEvents() *Events {
	return &Events{
		Progress:  make(chan ProgressEvent, 64),
		Resources: make(chan ResourceEvent, 16),
	}
}

func (e *Events) emitProgress(ev ProgressEvent) {
	select {
	case e.Progress <- ev:
	default:
	}
}

func (e *Events) emitResources(ev ResourceEvent) {
	select {
	case e.Resources <- ev:
	default:
	}
}

// Options controls one ProcessBatch run (spec.md §4.5/§7 batch config block).
type Options struct {
	MaxConcurrency     int
	DynamicConcurrency bool
	ContinueOnError    bool
	ItemTimeout        time.Duration
}

// DefaultOptions matches spec.md's stated defaults.
func DefaultOptions() Options {
	return Options{
		MaxConcurrency:     4,
		DynamicConcurrency: true,
		ContinueOnError:    true,
		ItemTimeout:        60 * time.Second,
	}
}

func applyDefaults(opts Options) Options {
	def := DefaultOptions()
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = def.MaxConcurrency
	}
	if opts.ItemTimeout <= 0 {
		opts.ItemTimeout = def.ItemTimeout
	}
	return opts
}
