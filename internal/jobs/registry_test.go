package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"

	"github.com/knoguchi/ingestor/internal/domain"
	"github.com/knoguchi/ingestor/internal/ingerrors"
)

// fakeStorage is an in-memory stand-in for *storage.Engine, exercising only
// the Job/JobItem surface Registry needs.
type fakeStorage struct {
	mu    sync.Mutex
	jobs  map[string]*domain.Job
	items map[string]*domain.JobItem
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{jobs: make(map[string]*domain.Job), items: make(map[string]*domain.JobItem)}
}

func (f *fakeStorage) Transaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return fn(ctx, nil)
}

func (f *fakeStorage) CreateJob(ctx context.Context, j *domain.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copyJob := *j
	f.jobs[j.ID] = &copyJob
	return nil
}

func (f *fakeStorage) UpdateJob(ctx context.Context, j *domain.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copyJob := *j
	f.jobs[j.ID] = &copyJob
	return nil
}

func (f *fakeStorage) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, ingerrors.New(ingerrors.NotFound, "job not found")
	}
	copyJob := *job
	return &copyJob, nil
}

func (f *fakeStorage) CreateJobItem(ctx context.Context, it *domain.JobItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copyItem := *it
	f.items[it.ID] = &copyItem
	return nil
}

func (f *fakeStorage) UpdateJobItem(ctx context.Context, it *domain.JobItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copyItem := *it
	f.items[it.ID] = &copyItem
	return nil
}

func (f *fakeStorage) ListJobItems(ctx context.Context, jobID string) ([]*domain.JobItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.JobItem
	for _, it := range f.items {
		if it.JobID == jobID {
			copyItem := *it
			out = append(out, &copyItem)
		}
	}
	return out, nil
}

func (f *fakeStorage) CancelJob(ctx context.Context, tx pgx.Tx, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return ingerrors.New(ingerrors.NotFound, "job not found")
	}
	job.Status = domain.JobStatusCancelled
	for _, it := range f.items {
		if it.JobID == jobID && it.Status != domain.JobStatusCompleted && it.Status != domain.JobStatusFailed {
			it.Status = domain.JobStatusCancelled
		}
	}
	return nil
}

func TestRegistry_CreateSeedsInitialProgress(t *testing.T) {
	r := NewRegistry(newFakeStorage())

	job, items, err := r.Create(context.Background(), domain.JobTypeFolderImport, "owner-1", nil, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if job.Status != domain.JobStatusPending {
		t.Errorf("expected new job status pending, got %s", job.Status)
	}
	if job.Progress.Total != 3 || job.Progress.Pending != 3 {
		t.Errorf("expected progress total=3 pending=3, got %+v", job.Progress)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 job items, got %d", len(items))
	}
	for _, it := range items {
		if it.Status != domain.JobStatusPending {
			t.Errorf("expected item status pending, got %s", it.Status)
		}
	}
}

func TestRegistry_StartTransitionsPendingToRunning(t *testing.T) {
	r := NewRegistry(newFakeStorage())
	job, _, _ := r.Create(context.Background(), domain.JobTypeFolderImport, "owner-1", nil, []string{"a"})

	if err := r.Start(context.Background(), job.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	got, _, _ := r.Get(context.Background(), job.ID)
	if got.Status != domain.JobStatusRunning {
		t.Errorf("expected status running, got %s", got.Status)
	}
	if got.StartedAt == nil {
		t.Error("expected StartedAt to be set")
	}
}

func TestRegistry_StartRejectsNonPendingJob(t *testing.T) {
	r := NewRegistry(newFakeStorage())
	job, _, _ := r.Create(context.Background(), domain.JobTypeFolderImport, "owner-1", nil, []string{"a"})
	if err := r.Start(context.Background(), job.ID); err != nil {
		t.Fatalf("first Start: %v", err)
	}

	err := r.Start(context.Background(), job.ID)
	if err == nil {
		t.Fatal("expected an error starting an already-running job")
	}
	var kerr *ingerrors.Error
	if !errors.As(err, &kerr) || kerr.Kind != ingerrors.Conflict {
		t.Errorf("expected a Conflict error, got %v", err)
	}
}

func TestRegistry_ItemTransitions_UpdateProgressCounters(t *testing.T) {
	r := NewRegistry(newFakeStorage())
	job, items, _ := r.Create(context.Background(), domain.JobTypeFolderImport, "owner-1", nil, []string{"a", "b", "c"})
	_ = r.Start(context.Background(), job.ID)

	if err := r.StartItem(context.Background(), job.ID, items[0].ID); err != nil {
		t.Fatalf("StartItem: %v", err)
	}
	got, _, _ := r.Get(context.Background(), job.ID)
	if got.Progress.Pending != 2 || got.Progress.Processing != 1 {
		t.Fatalf("after StartItem: expected pending=2 processing=1, got %+v", got.Progress)
	}

	if err := r.CompleteItem(context.Background(), job.ID, items[0].ID, "ref-a"); err != nil {
		t.Fatalf("CompleteItem: %v", err)
	}
	got, _, _ = r.Get(context.Background(), job.ID)
	if got.Progress.Processing != 0 || got.Progress.Completed != 1 {
		t.Fatalf("after CompleteItem: expected processing=0 completed=1, got %+v", got.Progress)
	}

	if err := r.StartItem(context.Background(), job.ID, items[1].ID); err != nil {
		t.Fatalf("StartItem b: %v", err)
	}
	if err := r.FailItem(context.Background(), job.ID, items[1].ID, "boom"); err != nil {
		t.Fatalf("FailItem: %v", err)
	}
	got, _, _ = r.Get(context.Background(), job.ID)
	if got.Progress.Failed != 1 {
		t.Fatalf("after FailItem: expected failed=1, got %+v", got.Progress)
	}

	if err := r.SkipItem(context.Background(), job.ID, items[2].ID); err != nil {
		t.Fatalf("SkipItem: %v", err)
	}
	got, _, _ = r.Get(context.Background(), job.ID)
	if got.Progress.Skipped != 1 || got.Progress.Pending != 0 {
		t.Fatalf("after SkipItem: expected skipped=1 pending=0, got %+v", got.Progress)
	}
	if pct := got.Progress.Percentage(); pct != 100 {
		t.Errorf("expected 100%% complete (completed+failed+skipped=total), got %.1f", pct)
	}
}

func TestRegistry_Finish(t *testing.T) {
	r := NewRegistry(newFakeStorage())
	job, _, _ := r.Create(context.Background(), domain.JobTypeFolderImport, "owner-1", nil, []string{"a"})
	_ = r.Start(context.Background(), job.ID)

	if err := r.Finish(context.Background(), job.ID, domain.JobStatusCompleted); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	got, _, _ := r.Get(context.Background(), job.ID)
	if got.Status != domain.JobStatusCompleted {
		t.Errorf("expected status completed, got %s", got.Status)
	}
	if got.FinishedAt == nil {
		t.Error("expected FinishedAt to be set")
	}
}

func TestRegistry_Cancel(t *testing.T) {
	r := NewRegistry(newFakeStorage())
	job, items, _ := r.Create(context.Background(), domain.JobTypeFolderImport, "owner-1", nil, []string{"a", "b"})
	_ = r.Start(context.Background(), job.ID)
	_ = r.StartItem(context.Background(), job.ID, items[0].ID)
	_ = r.CompleteItem(context.Background(), job.ID, items[0].ID, "ref")

	if err := r.Cancel(context.Background(), job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	got, gotItems, _ := r.Get(context.Background(), job.ID)
	if got.Status != domain.JobStatusCancelled {
		t.Errorf("expected job status cancelled, got %s", got.Status)
	}
	for _, it := range gotItems {
		if it.ID == items[0].ID && it.Status != domain.JobStatusCompleted {
			t.Errorf("expected the already-completed item to remain completed, got %s", it.Status)
		}
		if it.ID == items[1].ID && it.Status != domain.JobStatusCancelled {
			t.Errorf("expected the unfinished item to be cancelled, got %s", it.Status)
		}
	}
}

func TestRegistry_TransitionItem_DoesNotRegressATerminalItem(t *testing.T) {
	r := NewRegistry(newFakeStorage())
	job, items, _ := r.Create(context.Background(), domain.JobTypeFolderImport, "owner-1", nil, []string{"a"})
	_ = r.Start(context.Background(), job.ID)
	_ = r.StartItem(context.Background(), job.ID, items[0].ID)

	// Simulate a job cancellation racing with an in-flight worker: the item
	// is force-cancelled directly (as CancelJob would), then the worker
	// finishes its now-stale processing and tries to report failure.
	if err := r.Cancel(context.Background(), job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := r.FailItem(context.Background(), job.ID, items[0].ID, "stale failure"); err != nil {
		t.Fatalf("FailItem: %v", err)
	}

	got, gotItems, _ := r.Get(context.Background(), job.ID)
	for _, it := range gotItems {
		if it.ID == items[0].ID && it.Status != domain.JobStatusCancelled {
			t.Errorf("expected cancelled item to stay cancelled, not regress to %s", it.Status)
		}
	}
	if got.Progress.Failed != 0 {
		t.Errorf("expected the stale FailItem to not double-count progress, got Failed=%d", got.Progress.Failed)
	}
}
