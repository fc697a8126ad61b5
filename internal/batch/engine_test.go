package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeProcessor struct {
	mu       sync.Mutex
	calls    []string
	failIDs  map[string]bool
	delay    time.Duration
	blockCh  chan struct{} // closed to release a held ProcessItem, if set
}

func (f *fakeProcessor) ProcessItem(ctx context.Context, item Item) (any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, item.ID)
	f.mu.Unlock()

	if f.blockCh != nil {
		select {
		case <-f.blockCh:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.failIDs[item.ID] {
		return nil, errors.New("item failed")
	}
	return item.ID, nil
}

func itemsOf(ids ...string) []Item {
	items := make([]Item, len(ids))
	for i, id := range ids {
		items[i] = Item{ID: id, Payload: id}
	}
	return items
}

func TestEngine_ProcessBatch_AllSucceed(t *testing.T) {
	proc := &fakeProcessor{}
	engine := NewEngine(proc)

	handle := engine.ProcessBatch(context.Background(), "b1", itemsOf("a", "b", "c"), Options{
		MaxConcurrency: 2, DynamicConcurrency: false, ContinueOnError: true, ItemTimeout: time.Second,
	})

	result := <-handle.Done
	if result.Processed != 3 || result.Successful != 3 || result.Failed != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestEngine_ProcessBatch_FailureIsolation(t *testing.T) {
	proc := &fakeProcessor{failIDs: map[string]bool{"b": true}}
	engine := NewEngine(proc)

	handle := engine.ProcessBatch(context.Background(), "b2", itemsOf("a", "b", "c"), Options{
		MaxConcurrency: 1, DynamicConcurrency: false, ContinueOnError: true, ItemTimeout: time.Second,
	})

	result := <-handle.Done
	if result.Processed != 3 {
		t.Fatalf("expected all 3 items processed despite one failure, got %d", result.Processed)
	}
	if result.Successful != 2 || result.Failed != 1 {
		t.Fatalf("expected 2 successful, 1 failed; got successful=%d failed=%d", result.Successful, result.Failed)
	}
}

func TestEngine_ProcessBatch_HaltsOnErrorWhenContinueOnErrorFalse(t *testing.T) {
	proc := &fakeProcessor{failIDs: map[string]bool{"a": true}, delay: 20 * time.Millisecond}
	engine := NewEngine(proc)

	handle := engine.ProcessBatch(context.Background(), "b3", itemsOf("a", "b", "c", "d", "e"), Options{
		MaxConcurrency: 1, DynamicConcurrency: false, ContinueOnError: false, ItemTimeout: time.Second,
	})

	result := <-handle.Done
	if result.Failed != 1 {
		t.Fatalf("expected exactly 1 failed item, got %d", result.Failed)
	}
	sawCancelled := false
	for _, r := range result.Items {
		if r.Status == StatusCancelled {
			sawCancelled = true
		}
	}
	if !sawCancelled {
		t.Error("expected remaining items to be marked cancelled once continueOnError=false halted the batch")
	}
}

func TestEngine_ProcessBatch_Cancel(t *testing.T) {
	block := make(chan struct{})
	proc := &fakeProcessor{blockCh: block}
	engine := NewEngine(proc)

	handle := engine.ProcessBatch(context.Background(), "b4", itemsOf("a", "b", "c", "d"), Options{
		MaxConcurrency: 1, DynamicConcurrency: false, ContinueOnError: true, ItemTimeout: time.Second,
	})

	// Let the first item start, then cancel before it (or anything after it)
	// completes.
	time.Sleep(10 * time.Millisecond)
	handle.Cancel()
	close(block)

	select {
	case result := <-handle.Done:
		sawCancelled := false
		for _, r := range result.Items {
			if r.Status == StatusCancelled {
				sawCancelled = true
			}
		}
		if !sawCancelled && result.Processed < len(itemsOf("a", "b", "c", "d")) {
			t.Error("expected cancellation to be reflected in the result")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("batch did not finish after cancellation")
	}
}

func TestEngine_ProcessBatch_ItemTimeout(t *testing.T) {
	proc := &fakeProcessor{delay: 100 * time.Millisecond}
	engine := NewEngine(proc)

	handle := engine.ProcessBatch(context.Background(), "b5", itemsOf("a"), Options{
		MaxConcurrency: 1, DynamicConcurrency: false, ContinueOnError: true, ItemTimeout: 10 * time.Millisecond,
	})

	result := <-handle.Done
	if result.Failed != 1 {
		t.Fatalf("expected the slow item to fail on timeout, got failed=%d", result.Failed)
	}
}
