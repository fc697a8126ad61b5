package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/knoguchi/ingestor/internal/domain"
	"github.com/knoguchi/ingestor/internal/ingerrors"
)

// Transaction runs fn inside BEGIN/COMMIT, rolling back on any error
// (spec.md §4.1 executeBatch: "BEGIN -> exec*N -> COMMIT", ROLLBACK on error).
// This is the unit of atomicity for content+chunks+mentions in one ingest
// (spec.md §4.4 processContent steps 2-6).
func (e *Engine) Transaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return ingerrors.Wrap(ingerrors.Transient, "begin transaction", err)
	}
	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return ingerrors.Wrap(ingerrors.Fatal, "rollback after error", rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return ingerrors.Wrap(ingerrors.Transient, "commit transaction", err)
	}
	return nil
}

// StoreContent inserts a Content row within tx.
func (e *Engine) StoreContent(ctx context.Context, tx pgx.Tx, c *domain.Content) error {
	meta, err := json.Marshal(c.Metadata)
	if err != nil {
		return ingerrors.Wrap(ingerrors.Validation, "marshal content metadata", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO content (id, content_type, title, description, source, file_path, hash, size, owner_id, metadata, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		c.ID, c.ContentType, c.Title, c.Description, c.Source, c.FilePath, c.Hash, c.Size,
		c.OwnerID, meta, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return mapWriteErr(err, "store content")
	}
	return nil
}

// StoreChunk inserts a ContentChunk row within tx.
func (e *Engine) StoreChunk(ctx context.Context, tx pgx.Tx, c *domain.Chunk) error {
	meta, err := json.Marshal(c.Metadata)
	if err != nil {
		return ingerrors.Wrap(ingerrors.Validation, "marshal chunk metadata", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO content_chunks (id, content_id, chunk_index, text, metadata, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		c.ID, c.ContentID, c.Index, c.Text, meta, c.CreatedAt)
	if err != nil {
		return mapWriteErr(err, "store chunk")
	}
	return nil
}

// GetContentByHash looks up a Content row by the (source, hash) unique key —
// the dedup short-circuit of spec.md §4.4 step 1. Returns nil, nil when not found.
func (e *Engine) GetContentByHash(ctx context.Context, source, hash string) (*domain.Content, error) {
	row := e.pool.QueryRow(ctx, `
		SELECT id, content_type, title, description, source, file_path, hash, size, owner_id, metadata, created_at, updated_at
		FROM content WHERE source = $1 AND hash = $2`, source, hash)
	return scanContent(row)
}

// GetContent fetches a Content row by ID.
func (e *Engine) GetContent(ctx context.Context, id string) (*domain.Content, error) {
	row := e.pool.QueryRow(ctx, `
		SELECT id, content_type, title, description, source, file_path, hash, size, owner_id, metadata, created_at, updated_at
		FROM content WHERE id = $1`, id)
	c, err := scanContent(row)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ingerrors.New(ingerrors.NotFound, "content not found").WithContext(ingerrors.Context{ContentID: id})
	}
	return c, nil
}

// ContentFilter narrows ListContent.
type ContentFilter struct {
	OwnerID     string
	ContentType string
}

// ListContent returns a page of content ordered by created_at descending.
func (e *Engine) ListContent(ctx context.Context, filter ContentFilter, limit, offset int) ([]*domain.Content, int, error) {
	where := "WHERE ($1 = '' OR owner_id = $1) AND ($2 = '' OR content_type = $2)"
	rows, err := e.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, content_type, title, description, source, file_path, hash, size, owner_id, metadata, created_at, updated_at
		FROM content %s ORDER BY created_at DESC LIMIT $3 OFFSET $4`, where),
		filter.OwnerID, filter.ContentType, limit, offset)
	if err != nil {
		return nil, 0, ingerrors.Wrap(ingerrors.Transient, "list content", err)
	}
	defer rows.Close()

	var out []*domain.Content
	for rows.Next() {
		c, err := scanContentRow(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}

	var total int
	err = e.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM content %s`, where),
		filter.OwnerID, filter.ContentType).Scan(&total)
	if err != nil {
		return nil, 0, ingerrors.Wrap(ingerrors.Transient, "count content", err)
	}
	return out, total, nil
}

// UpdateContentMetadata updates title/description/metadata for an existing
// Content row. This runs in its own single-statement transaction, which is
// the serialization point for the FTS-consistency Open Question (see
// DESIGN.md): the content_title_fts_sync trigger fires synchronously as part
// of this UPDATE.
func (e *Engine) UpdateContentMetadata(ctx context.Context, id, title, description string, metadata map[string]string) error {
	meta, err := json.Marshal(metadata)
	if err != nil {
		return ingerrors.Wrap(ingerrors.Validation, "marshal metadata", err)
	}
	tag, err := e.pool.Exec(ctx, `
		UPDATE content SET title = $2, description = $3, metadata = $4, updated_at = $5
		WHERE id = $1`, id, title, description, meta, time.Now().UTC())
	if err != nil {
		return ingerrors.Wrap(ingerrors.Transient, "update content metadata", err)
	}
	if tag.RowsAffected() == 0 {
		return ingerrors.New(ingerrors.NotFound, "content not found").WithContext(ingerrors.Context{ContentID: id})
	}
	return nil
}

// SearchContentFTS runs a full-text search across chunk search_vector,
// ranked by ts_rank, matching spec.md §6 searchContentFTS.
func (e *Engine) SearchContentFTS(ctx context.Context, query string, limit int) ([]domain.SearchHit, error) {
	rows, err := e.pool.Query(ctx, `
		SELECT cc.id, cc.content_id, c.title, c.description, cc.text,
			ts_rank(cc.search_vector, plainto_tsquery('english', $1)) AS rank
		FROM content_chunks cc
		JOIN content c ON c.id = cc.content_id
		WHERE cc.search_vector @@ plainto_tsquery('english', $1)
		ORDER BY rank DESC
		LIMIT $2`, query, limit)
	if err != nil {
		return nil, ingerrors.Wrap(ingerrors.Transient, "search fts", err)
	}
	defer rows.Close()

	var hits []domain.SearchHit
	for rows.Next() {
		var h domain.SearchHit
		if err := rows.Scan(&h.ChunkID, &h.ContentID, &h.Title, &h.Description, &h.Text, &h.Score); err != nil {
			return nil, ingerrors.Wrap(ingerrors.Transient, "scan fts row", err)
		}
		hits = append(hits, h)
	}
	return hits, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanContent(row pgx.Row) (*domain.Content, error) {
	c, err := scanContentRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

func scanContentRow(row scannable) (*domain.Content, error) {
	var c domain.Content
	var meta []byte
	if err := row.Scan(&c.ID, &c.ContentType, &c.Title, &c.Description, &c.Source, &c.FilePath,
		&c.Hash, &c.Size, &c.OwnerID, &meta, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, ingerrors.Wrap(ingerrors.Transient, "scan content", err)
	}
	if err := json.Unmarshal(meta, &c.Metadata); err != nil {
		return nil, ingerrors.Wrap(ingerrors.Corruption, "unmarshal content metadata", err)
	}
	if c.Metadata == nil {
		c.Metadata = map[string]string{}
	}
	return &c, nil
}

// mapWriteErr classifies a write error: unique-constraint violations become
// Conflict (spec.md §7), everything else Transient.
func mapWriteErr(err error, msg string) error {
	if isUniqueViolation(err) {
		return ingerrors.Wrap(ingerrors.Conflict, msg, err)
	}
	return ingerrors.Wrap(ingerrors.Transient, msg, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
