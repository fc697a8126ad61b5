// Package jobs implements C6, the JobRegistry: durable Job/JobItem records
// with a pending -> running -> (completed | failed | cancelled) state
// machine and progress counters updated atomically with item status changes
// (spec.md §4.6).
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/knoguchi/ingestor/internal/domain"
	"github.com/knoguchi/ingestor/internal/ingerrors"
	"github.com/knoguchi/ingestor/internal/storage"
)

// storageEngine is the subset of *storage.Engine the registry needs.
type storageEngine interface {
	Transaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error
	CreateJob(ctx context.Context, j *domain.Job) error
	UpdateJob(ctx context.Context, j *domain.Job) error
	GetJob(ctx context.Context, id string) (*domain.Job, error)
	CreateJobItem(ctx context.Context, it *domain.JobItem) error
	UpdateJobItem(ctx context.Context, it *domain.JobItem) error
	ListJobItems(ctx context.Context, jobID string) ([]*domain.JobItem, error)
	CancelJob(ctx context.Context, tx pgx.Tx, jobID string) error
}

var _ storageEngine = (*storage.Engine)(nil)

// Registry owns the Job/JobItem state machine. Progress counters on a given
// job are only ever mutated while holding that job's lock, matching spec.md
// §4.6's "updated atomically together with item status updates" — the lock
// here plays the role the orchestrator's progress mutex plays inside C5.
type Registry struct {
	storage storageEngine

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRegistry builds a Registry backed by engine.
func NewRegistry(engine storageEngine) *Registry {
	return &Registry{storage: engine, locks: make(map[string]*sync.Mutex)}
}

func (r *Registry) lockFor(jobID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[jobID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[jobID] = l
	}
	return l
}

// Create persists a new Job in status=pending together with one JobItem per
// inputRef, also pending.
func (r *Registry) Create(ctx context.Context, jobType domain.JobType, createdBy string, options map[string]any, inputRefs []string) (*domain.Job, []*domain.JobItem, error) {
	now := time.Now().UTC()
	job := &domain.Job{
		ID:        uuid.NewString(),
		Type:      jobType,
		Status:    domain.JobStatusPending,
		Progress:  domain.Progress{Total: len(inputRefs), Pending: len(inputRefs)},
		Options:   options,
		CreatedBy: createdBy,
		CreatedAt: now,
	}
	if err := r.storage.CreateJob(ctx, job); err != nil {
		return nil, nil, err
	}

	items := make([]*domain.JobItem, 0, len(inputRefs))
	for _, ref := range inputRefs {
		item := &domain.JobItem{
			ID:       uuid.NewString(),
			JobID:    job.ID,
			Status:   domain.JobStatusPending,
			InputRef: ref,
		}
		if err := r.storage.CreateJobItem(ctx, item); err != nil {
			return nil, nil, err
		}
		items = append(items, item)
	}
	return job, items, nil
}

// Start transitions a job from pending to running.
func (r *Registry) Start(ctx context.Context, jobID string) error {
	lock := r.lockFor(jobID)
	lock.Lock()
	defer lock.Unlock()

	job, err := r.storage.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != domain.JobStatusPending {
		return ingerrors.New(ingerrors.Conflict, "job is not pending").WithContext(ingerrors.Context{ItemID: jobID})
	}
	now := time.Now().UTC()
	job.Status = domain.JobStatusRunning
	job.StartedAt = &now
	return r.storage.UpdateJob(ctx, job)
}

// StartItem transitions one item from pending to running and moves its unit
// from Progress.Pending to Progress.Processing.
func (r *Registry) StartItem(ctx context.Context, jobID, itemID string) error {
	return r.transitionItem(ctx, jobID, itemID, domain.JobStatusRunning, "", "", func(p *domain.Progress) {
		if p.Pending > 0 {
			p.Pending--
		}
		p.Processing++
	})
}

// CompleteItem transitions one item to completed.
func (r *Registry) CompleteItem(ctx context.Context, jobID, itemID, resultRef string) error {
	return r.transitionItem(ctx, jobID, itemID, domain.JobStatusCompleted, resultRef, "", func(p *domain.Progress) {
		if p.Processing > 0 {
			p.Processing--
		}
		p.Completed++
	})
}

// FailItem transitions one item to failed.
func (r *Registry) FailItem(ctx context.Context, jobID, itemID, errMsg string) error {
	return r.transitionItem(ctx, jobID, itemID, domain.JobStatusFailed, "", errMsg, func(p *domain.Progress) {
		if p.Processing > 0 {
			p.Processing--
		}
		p.Failed++
	})
}

// SkipItem transitions one item to skipped (e.g. deduplicated content).
func (r *Registry) SkipItem(ctx context.Context, jobID, itemID string) error {
	return r.transitionItem(ctx, jobID, itemID, domain.JobStatusSkipped, "", "", func(p *domain.Progress) {
		if p.Pending > 0 {
			p.Pending--
		}
		if p.Processing > 0 {
			p.Processing--
		}
		p.Skipped++
	})
}

// terminalItemStatus reports whether s is a terminal JobItem status: once an
// item reaches one of these (including the pending/running -> cancelled
// shortcut CancelJob applies directly in storage), transitionItem must not
// overwrite it. Status is append-only-monotonic (spec.md §3) other than that
// one shortcut, so an in-flight worker finishing after a job was cancelled
// must not regress a cancelled item back to running/failed/completed.
func terminalItemStatus(s domain.JobStatus) bool {
	switch s {
	case domain.JobStatusCompleted, domain.JobStatusFailed, domain.JobStatusCancelled, domain.JobStatusSkipped:
		return true
	default:
		return false
	}
}

func (r *Registry) transitionItem(ctx context.Context, jobID, itemID string, status domain.JobStatus, resultRef, errMsg string, adjust func(*domain.Progress)) error {
	lock := r.lockFor(jobID)
	lock.Lock()
	defer lock.Unlock()

	job, err := r.storage.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	existing, err := r.storage.ListJobItems(ctx, jobID)
	if err != nil {
		return err
	}
	for _, it := range existing {
		if it.ID == itemID && terminalItemStatus(it.Status) {
			return nil
		}
	}

	now := time.Now().UTC()
	item := &domain.JobItem{ID: itemID, JobID: jobID, Status: status, ResultRef: resultRef, ErrorMessage: errMsg, FinishedAt: &now}
	if status == domain.JobStatusRunning {
		item.FinishedAt = nil
		item.StartedAt = &now
	}
	if err := r.storage.UpdateJobItem(ctx, item); err != nil {
		return err
	}

	adjust(&job.Progress)
	return r.storage.UpdateJob(ctx, job)
}

// Finish transitions a job to a terminal status (completed or failed) and
// timestamps it.
func (r *Registry) Finish(ctx context.Context, jobID string, status domain.JobStatus) error {
	lock := r.lockFor(jobID)
	lock.Lock()
	defer lock.Unlock()

	job, err := r.storage.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	job.Status = status
	job.FinishedAt = &now
	return r.storage.UpdateJob(ctx, job)
}

// Cancel marks a job and its unfinished items cancelled (the
// pending/running -> cancelled shortcut spec.md §3 allows). The caller is
// responsible for also cancelling the job's live batch.Handle, if any
// (spec.md §5: "cancelling a job cancels its batch").
func (r *Registry) Cancel(ctx context.Context, jobID string) error {
	lock := r.lockFor(jobID)
	lock.Lock()
	defer lock.Unlock()

	return r.storage.Transaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return r.storage.CancelJob(ctx, tx, jobID)
	})
}

// Get fetches a job and its items.
func (r *Registry) Get(ctx context.Context, jobID string) (*domain.Job, []*domain.JobItem, error) {
	job, err := r.storage.GetJob(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	items, err := r.storage.ListJobItems(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	return job, items, nil
}
