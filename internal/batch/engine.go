package batch

import (
	"container/heap"
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

// samplingInterval is how often the dynamic-concurrency sampler checks
// load/memory (spec.md §4.5: "every 500ms").
const samplingInterval = 500 * time.Millisecond

// queueBoundFactor bounds the internal queue at 4x maxConcurrency
// (spec.md §4.5 Suspension and ordering).
const queueBoundFactor = 4

// Engine runs one batch at a time: a bounded priority queue feeding a pool of
// workers that invoke a Processor per item, with dynamic concurrency,
// cancellation, per-item timeouts, and failure isolation (C5, spec.md §4.5).
type Engine struct {
	processor Processor

	mu     sync.Mutex
	cond   *sync.Cond
	queue  priorityQueue
	seq    int64
	closed bool

	cancelled atomic.Bool

	permits       chan struct{}
	currentIssued atomic.Int64
	target        atomic.Int64
}

// NewEngine builds an Engine that delegates item work to processor.
func NewEngine(processor Processor) *Engine {
	e := &Engine{processor: processor}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// Handle is returned by ProcessBatch: the live event stream, the channel the
// final Result arrives on, and a Cancel func implementing cancelBatch.
type Handle struct {
	BatchID string
	Events  *Events
	Done    <-chan Result

	cancelFn func()
}

// Cancel transitions the batch to cancelled (spec.md §4.5 Cancellation).
// Idempotent.
func (h *Handle) Cancel() { h.cancelFn() }

// ProcessBatch starts processing items and returns immediately with a Handle;
// the batch runs on background goroutines, feeding Handle.Events until
// Handle.Done receives the final Result (spec.md §4.5/§6 processBatch
// contract; §4.4's seven-step processing order happens inside the
// Processor).
func (e *Engine) ProcessBatch(ctx context.Context, batchID string, items []Item, opts Options) *Handle {
	opts = applyDefaults(opts)
	runCtx, cancel := context.WithCancel(ctx)

	events := newEvents()
	done := make(chan Result, 1)

	go e.run(runCtx, batchID, items, opts, events, done)

	cancelAndMark := func() {
		e.mu.Lock()
		e.cancelled.Store(true)
		e.cond.Broadcast()
		e.mu.Unlock()
		cancel()
	}

	return &Handle{BatchID: batchID, Events: events, Done: done, cancelFn: cancelAndMark}
}

type runStats struct {
	mu        sync.Mutex
	results   map[string]ItemResult
	order     []string
	completed int
	durations []time.Duration
}

func newRunStats(total int) *runStats {
	return &runStats{results: make(map[string]ItemResult, total)}
}

func (s *runStats) record(res ItemResult, dur time.Duration) (completed, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.results[res.ID]; !exists {
		s.order = append(s.order, res.ID)
	}
	s.results[res.ID] = res
	s.completed++
	s.durations = append(s.durations, dur)
	return s.completed, len(s.order)
}

func (s *runStats) avgDuration() (time.Duration, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.durations) == 0 {
		return 0, 0
	}
	var total time.Duration
	for _, d := range s.durations {
		total += d
	}
	return total / time.Duration(len(s.durations)), len(s.durations)
}

func (s *runStats) snapshot() []ItemResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ItemResult, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.results[id])
	}
	return out
}

func (e *Engine) run(ctx context.Context, batchID string, items []Item, opts Options, events *Events, done chan<- Result) {
	start := time.Now()
	defer close(done)

	e.mu.Lock()
	e.queue = nil
	e.closed = false
	e.cancelled.Store(false)
	e.mu.Unlock()

	e.currentIssued.Store(int64(opts.MaxConcurrency))
	e.target.Store(int64(opts.MaxConcurrency))
	e.permits = make(chan struct{}, opts.MaxConcurrency)
	for i := 0; i < opts.MaxConcurrency; i++ {
		e.permits <- struct{}{}
	}

	stats := newRunStats(len(items))
	total := len(items)

	bound := queueBoundFactor * opts.MaxConcurrency
	go e.feed(ctx, items, bound)

	if opts.DynamicConcurrency {
		go e.sample(ctx, opts, events)
	}

	numWorkers := opts.MaxConcurrency
	if numWorkers > total {
		numWorkers = total
	}
	if numWorkers < 1 {
		numWorkers = 1
	}

	var wg sync.WaitGroup
	haltOnError := make(chan struct{})
	var haltOnce sync.Once
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.worker(ctx, opts, stats, total, events, func() {
				if !opts.ContinueOnError {
					haltOnce.Do(func() { close(haltOnError) })
				}
			}, haltOnError)
		}()
	}
	wg.Wait()

	results := stats.snapshot()
	successful, failed := 0, 0
	for _, r := range results {
		switch r.Status {
		case StatusSuccess:
			successful++
		case StatusFailed:
			failed++
		}
	}

	done <- Result{
		BatchID:     batchID,
		Processed:   len(results),
		Successful:  successful,
		Failed:      failed,
		Items:       results,
		TotalTimeMs: time.Since(start).Milliseconds(),
	}
}

// feed pushes items into the bounded queue, applying backpressure to itself
// (not to an external producer, since ProcessBatch takes a fixed slice) once
// the queue reaches bound, matching the bound named in spec.md §4.5.
func (e *Engine) feed(ctx context.Context, items []Item, bound int) {
	for _, item := range items {
		e.mu.Lock()
		for len(e.queue) >= bound && !e.cancelled.Load() {
			e.cond.Wait()
		}
		if e.cancelled.Load() {
			e.mu.Unlock()
			break
		}
		e.seq++
		heap.Push(&e.queue, &queueEntry{item: item, seq: e.seq})
		e.cond.Broadcast()
		e.mu.Unlock()

		if ctx.Err() != nil {
			break
		}
	}
	e.mu.Lock()
	e.closed = true
	e.cond.Broadcast()
	e.mu.Unlock()
}

func (e *Engine) dequeue() (*queueEntry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for len(e.queue) == 0 {
		if e.closed || e.cancelled.Load() {
			return nil, false
		}
		e.cond.Wait()
	}
	entry := heap.Pop(&e.queue).(*queueEntry)
	e.cond.Broadcast()
	return entry, true
}

func (e *Engine) worker(ctx context.Context, opts Options, stats *runStats, total int, events *Events, onHaltableError func(), haltOnError <-chan struct{}) {
	for {
		select {
		case <-e.permits:
		case <-ctx.Done():
			return
		}

		entry, ok := e.dequeue()
		if !ok {
			e.returnPermit()
			return
		}

		select {
		case <-haltOnError:
			e.finishAsCancelled(entry.item, stats, total, events)
			e.returnPermit()
			continue
		default:
		}

		if e.cancelled.Load() {
			e.finishAsCancelled(entry.item, stats, total, events)
			e.returnPermit()
			continue
		}

		res, dur := e.processOne(ctx, entry.item, opts)
		e.returnPermit()

		completed, _ := stats.record(res, dur)
		e.emitProgress(events, stats, completed, total, entry.item.ID)

		if res.Status == StatusFailed && !opts.ContinueOnError {
			e.cancelled.Store(true)
			e.mu.Lock()
			e.cond.Broadcast()
			e.mu.Unlock()
			onHaltableError()
		}
	}
}

func (e *Engine) finishAsCancelled(item Item, stats *runStats, total int, events *Events) {
	res := ItemResult{ID: item.ID, Status: StatusCancelled}
	completed, _ := stats.record(res, 0)
	e.emitProgress(events, stats, completed, total, item.ID)
}

func (e *Engine) processOne(ctx context.Context, item Item, opts Options) (ItemResult, time.Duration) {
	itemCtx, cancel := context.WithTimeout(ctx, opts.ItemTimeout)
	defer cancel()

	start := time.Now()
	output, err := e.processor.ProcessItem(itemCtx, item)
	dur := time.Since(start)

	if err != nil {
		if e.cancelled.Load() {
			return ItemResult{ID: item.ID, Status: StatusCancelled, ProcessingTimeMs: dur.Milliseconds()}, dur
		}
		return ItemResult{ID: item.ID, Status: StatusFailed, Error: err, ProcessingTimeMs: dur.Milliseconds()}, dur
	}
	return ItemResult{ID: item.ID, Status: StatusSuccess, Output: output, ProcessingTimeMs: dur.Milliseconds()}, dur
}

func (e *Engine) emitProgress(events *Events, stats *runStats, completed, total int, currentFile string) {
	avg, n := stats.avgDuration()
	var etaMs int64
	if n >= 3 {
		remaining := total - completed
		etaMs = int64(avg) * int64(remaining) / int64(time.Millisecond)
	}
	pct := float64(0)
	if total > 0 {
		pct = float64(completed) / float64(total) * 100
	}
	events.emitProgress(ProgressEvent{
		ProcessedFiles:           completed,
		TotalFiles:               total,
		PercentComplete:          pct,
		CurrentFile:              currentFile,
		EstimatedTimeRemainingMs: etaMs,
	})
}

// returnPermit returns a worker's permit to the pool, unless the dynamic
// concurrency sampler has lowered the target below the number currently in
// circulation, in which case this permit is destroyed instead (spec.md §4.5
// Dynamic concurrency: "reduce the active worker count by 1").
func (e *Engine) returnPermit() {
	for {
		issued := e.currentIssued.Load()
		target := e.target.Load()
		if issued > target {
			if e.currentIssued.CompareAndSwap(issued, issued-1) {
				return
			}
			continue
		}
		break
	}
	e.permits <- struct{}{}
}

// sample implements spec.md §4.5's dynamic concurrency adjustment: every
// 500ms, read 1-minute load average and free memory, raise or lower the
// worker count by 1 within [1, maxConcurrency], and emit a resources event.
func (e *Engine) sample(ctx context.Context, opts Options, events *Events) {
	ticker := time.NewTicker(samplingInterval)
	defer ticker.Stop()

	numCPU := float64(runtime.NumCPU())

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		avgStat, err := load.Avg()
		if err != nil {
			continue
		}
		vm, err := mem.VirtualMemory()
		if err != nil {
			continue
		}

		freeMemPct := 0.0
		if vm.Total > 0 {
			freeMemPct = float64(vm.Available) / float64(vm.Total)
		}

		target := e.target.Load()
		switch {
		case avgStat.Load1 > 0.75*numCPU || freeMemPct < 0.20:
			if target > 1 {
				target--
			}
		case avgStat.Load1 < 0.4*numCPU && freeMemPct > 0.40:
			if target < int64(opts.MaxConcurrency) {
				target++
			}
		}

		issued := e.currentIssued.Load()
		if target > issued {
			for i := issued; i < target; i++ {
				e.currentIssued.Add(1)
				e.permits <- struct{}{}
			}
		}
		e.target.Store(target)

		events.emitResources(ResourceEvent{
			CPUUsage:        avgStat.Load1,
			AvailableMemory: vm.Available,
			TotalMemory:     vm.Total,
			MemoryUsagePct:  vm.UsedPercent,
		})
	}
}
