package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/knoguchi/ingestor/internal/domain"
	"github.com/knoguchi/ingestor/internal/ingerrors"
)

// CreateJob persists a new Job row (C6 JobRegistry, spec.md §4.6).
func (e *Engine) CreateJob(ctx context.Context, j *domain.Job) error {
	progress, err := json.Marshal(j.Progress)
	if err != nil {
		return ingerrors.Wrap(ingerrors.Validation, "marshal job progress", err)
	}
	options, err := json.Marshal(j.Options)
	if err != nil {
		return ingerrors.Wrap(ingerrors.Validation, "marshal job options", err)
	}
	_, err = e.pool.Exec(ctx, `
		INSERT INTO jobs (id, type, status, progress, options, created_by, created_at, started_at, finished_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		j.ID, j.Type, j.Status, progress, options, j.CreatedBy, j.CreatedAt, j.StartedAt, j.FinishedAt)
	if err != nil {
		return mapWriteErr(err, "create job")
	}
	return nil
}

// UpdateJob persists status/progress/timestamp changes for an existing Job.
// Every state change timestamps the record (spec.md §4.6).
func (e *Engine) UpdateJob(ctx context.Context, j *domain.Job) error {
	progress, err := json.Marshal(j.Progress)
	if err != nil {
		return ingerrors.Wrap(ingerrors.Validation, "marshal job progress", err)
	}
	tag, err := e.pool.Exec(ctx, `
		UPDATE jobs SET status = $2, progress = $3, started_at = $4, finished_at = $5
		WHERE id = $1`, j.ID, j.Status, progress, j.StartedAt, j.FinishedAt)
	if err != nil {
		return ingerrors.Wrap(ingerrors.Transient, "update job", err)
	}
	if tag.RowsAffected() == 0 {
		return ingerrors.New(ingerrors.NotFound, "job not found").WithContext(ingerrors.Context{ItemID: j.ID})
	}
	return nil
}

// GetJob fetches a Job by ID.
func (e *Engine) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	row := e.pool.QueryRow(ctx, `
		SELECT id, type, status, progress, options, created_by, created_at, started_at, finished_at
		FROM jobs WHERE id = $1`, id)
	var j domain.Job
	var progress, options []byte
	err := row.Scan(&j.ID, &j.Type, &j.Status, &progress, &options, &j.CreatedBy, &j.CreatedAt, &j.StartedAt, &j.FinishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ingerrors.New(ingerrors.NotFound, "job not found").WithContext(ingerrors.Context{ItemID: id})
		}
		return nil, ingerrors.Wrap(ingerrors.Transient, "scan job", err)
	}
	if err := json.Unmarshal(progress, &j.Progress); err != nil {
		return nil, ingerrors.Wrap(ingerrors.Corruption, "unmarshal job progress", err)
	}
	if len(options) > 0 {
		_ = json.Unmarshal(options, &j.Options)
	}
	return &j, nil
}

// CreateJobItem persists a new JobItem row.
func (e *Engine) CreateJobItem(ctx context.Context, it *domain.JobItem) error {
	_, err := e.pool.Exec(ctx, `
		INSERT INTO job_items (id, job_id, status, input_ref, result_ref, error_message, started_at, finished_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		it.ID, it.JobID, it.Status, it.InputRef, it.ResultRef, it.ErrorMessage, it.StartedAt, it.FinishedAt)
	if err != nil {
		return mapWriteErr(err, "create job item")
	}
	return nil
}

// UpdateJobItem persists a JobItem's status/result/timestamp changes.
func (e *Engine) UpdateJobItem(ctx context.Context, it *domain.JobItem) error {
	tag, err := e.pool.Exec(ctx, `
		UPDATE job_items SET status = $2, result_ref = $3, error_message = $4, started_at = $5, finished_at = $6
		WHERE id = $1`, it.ID, it.Status, it.ResultRef, it.ErrorMessage, it.StartedAt, it.FinishedAt)
	if err != nil {
		return ingerrors.Wrap(ingerrors.Transient, "update job item", err)
	}
	if tag.RowsAffected() == 0 {
		return ingerrors.New(ingerrors.NotFound, "job item not found")
	}
	return nil
}

// ListJobItems returns all items for a job, ordered by physical row position
// (ctid). UpdateJobItem rewrites a row, so once items have been updated the
// order need not match insertion order.
func (e *Engine) ListJobItems(ctx context.Context, jobID string) ([]*domain.JobItem, error) {
	rows, err := e.pool.Query(ctx, `
		SELECT id, job_id, status, input_ref, result_ref, error_message, started_at, finished_at
		FROM job_items WHERE job_id = $1 ORDER BY ctid`, jobID)
	if err != nil {
		return nil, ingerrors.Wrap(ingerrors.Transient, "list job items", err)
	}
	defer rows.Close()

	var out []*domain.JobItem
	for rows.Next() {
		var it domain.JobItem
		if err := rows.Scan(&it.ID, &it.JobID, &it.Status, &it.InputRef, &it.ResultRef,
			&it.ErrorMessage, &it.StartedAt, &it.FinishedAt); err != nil {
			return nil, ingerrors.Wrap(ingerrors.Transient, "scan job item", err)
		}
		out = append(out, &it)
	}
	return out, nil
}

// CancelJob marks a job and all of its unfinished items cancelled (spec.md
// §3 "cancelling a job marks unfinished items as cancelled").
func (e *Engine) CancelJob(ctx context.Context, tx pgx.Tx, jobID string) error {
	now := time.Now().UTC()
	_, err := tx.Exec(ctx, `UPDATE jobs SET status = $2, finished_at = $3 WHERE id = $1`,
		jobID, domain.JobStatusCancelled, now)
	if err != nil {
		return ingerrors.Wrap(ingerrors.Transient, "cancel job", err)
	}
	_, err = tx.Exec(ctx, `
		UPDATE job_items SET status = $2, finished_at = $3
		WHERE job_id = $1 AND status IN ($4, $5)`,
		jobID, domain.JobStatusCancelled, now, domain.JobStatusPending, domain.JobStatusRunning)
	if err != nil {
		return ingerrors.Wrap(ingerrors.Transient, "cancel job items", err)
	}
	return nil
}
