package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/knoguchi/ingestor/internal/domain"
	"github.com/knoguchi/ingestor/internal/extraction"
	"github.com/knoguchi/ingestor/internal/ingerrors"
)

// StoreEntity inserts or reuses an Entity row, matching spec.md §4.1/§4.3:
// the by-(name,type) cache short-circuits with the cached id when present and
// not expired; otherwise it falls through to the unique-constraint-backed
// insert-or-get path. storeEntity(name, type, desc) called twice returns the
// same id, and the description is never overwritten to a shorter value
// (spec.md §8 round-trip law).
func (e *Engine) StoreEntity(ctx context.Context, tx pgx.Tx, name string, t domain.EntityType, description string) (string, error) {
	t, _ = extraction.ValidateType(t)
	normalized := extraction.NormalizeName(name, t)
	key := nameTypeKey{normalizedName: normalized, entityType: t}

	if id, ok := e.byNameType.Get(key); ok {
		return id, nil
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	meta := []byte(`{}`)
	_, err := tx.Exec(ctx, `
		INSERT INTO entities (id, name, normalized_name, type, description, metadata, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
		ON CONFLICT (normalized_name, type) DO NOTHING`,
		id, name, normalized, t, description, meta, now)
	if err != nil {
		return "", mapWriteErr(err, "store entity")
	}

	// ON CONFLICT DO NOTHING means id above may not be the row that exists;
	// re-read to get the authoritative id (and to honor "description not
	// overwritten to a shorter value" by never overwriting on conflict).
	var existingID, existingDesc string
	err = tx.QueryRow(ctx, `SELECT id, description FROM entities WHERE normalized_name = $1 AND type = $2`,
		normalized, t).Scan(&existingID, &existingDesc)
	if err != nil {
		return "", ingerrors.Wrap(ingerrors.Transient, "read back entity", err)
	}

	if len(description) > len(existingDesc) {
		if _, err := tx.Exec(ctx, `UPDATE entities SET description = $2, updated_at = $3 WHERE id = $1`,
			existingID, description, now); err != nil {
			return "", ingerrors.Wrap(ingerrors.Transient, "update entity description", err)
		}
	}

	e.byNameType.Add(key, existingID)
	e.byID.Remove(existingID)
	return existingID, nil
}

// GetEntity fetches an Entity by ID, consulting the by-id cache first.
func (e *Engine) GetEntity(ctx context.Context, id string) (*domain.Entity, error) {
	if cached, ok := e.byID.Get(id); ok {
		return cached, nil
	}

	row := e.pool.QueryRow(ctx, `
		SELECT id, name, normalized_name, type, description, metadata, created_at, updated_at
		FROM entities WHERE id = $1`, id)
	ent, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ingerrors.New(ingerrors.NotFound, "entity not found").WithContext(ingerrors.Context{ItemID: id})
		}
		return nil, err
	}
	e.byID.Add(id, ent)
	return ent, nil
}

// GetEntityByNameAndType looks up an Entity by its dedup key directly,
// bypassing the cache (used by readers that need authoritative freshness).
func (e *Engine) GetEntityByNameAndType(ctx context.Context, name string, t domain.EntityType) (*domain.Entity, error) {
	normalized := extraction.NormalizeName(name, t)
	row := e.pool.QueryRow(ctx, `
		SELECT id, name, normalized_name, type, description, metadata, created_at, updated_at
		FROM entities WHERE normalized_name = $1 AND type = $2`, normalized, t)
	ent, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ingerrors.New(ingerrors.NotFound, "entity not found")
		}
		return nil, err
	}
	return ent, nil
}

// LinkEntityToContent inserts an EntityMention row linking an already-stored
// entity to a content item with per-mention relevance/context/position.
func (e *Engine) LinkEntityToContent(ctx context.Context, tx pgx.Tx, m *domain.Mention) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO entity_mentions (id, entity_id, content_id, content_type, relevance, context, position, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		m.ID, m.EntityID, m.ContentID, m.ContentType, m.Relevance, m.Context, m.Position, m.CreatedAt)
	if err != nil {
		return mapWriteErr(err, "link entity to content")
	}
	// Only the by-id cache entry is dropped; the by-(name,type) entry is
	// kept, since a new mention does not change which id that key maps to.
	e.byID.Remove(m.EntityID)
	return nil
}

// EntityFilter narrows ListEntities.
type EntityFilter struct {
	Type domain.EntityType
}

// ListEntities returns a page of entities.
func (e *Engine) ListEntities(ctx context.Context, filter EntityFilter, limit, offset int) ([]*domain.Entity, int, error) {
	rows, err := e.pool.Query(ctx, `
		SELECT id, name, normalized_name, type, description, metadata, created_at, updated_at
		FROM entities WHERE ($1 = '' OR type = $1) ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		string(filter.Type), limit, offset)
	if err != nil {
		return nil, 0, ingerrors.Wrap(ingerrors.Transient, "list entities", err)
	}
	defer rows.Close()

	var out []*domain.Entity
	for rows.Next() {
		ent, err := scanEntity(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, ent)
	}

	var total int
	if err := e.pool.QueryRow(ctx, `SELECT count(*) FROM entities WHERE ($1 = '' OR type = $1)`,
		string(filter.Type)).Scan(&total); err != nil {
		return nil, 0, ingerrors.Wrap(ingerrors.Transient, "count entities", err)
	}
	return out, total, nil
}

// GetRelatedEntities returns entities related to id, optionally filtered by
// relationshipType.
func (e *Engine) GetRelatedEntities(ctx context.Context, id string, relationshipType string) ([]*domain.Entity, error) {
	rows, err := e.pool.Query(ctx, `
		SELECT e.id, e.name, e.normalized_name, e.type, e.description, e.metadata, e.created_at, e.updated_at
		FROM entity_relationships r
		JOIN entities e ON e.id = r.target_entity_id
		WHERE r.source_entity_id = $1 AND ($2 = '' OR r.relationship_type = $2)`,
		id, relationshipType)
	if err != nil {
		return nil, ingerrors.Wrap(ingerrors.Transient, "get related entities", err)
	}
	defer rows.Close()

	var out []*domain.Entity
	for rows.Next() {
		ent, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ent)
	}
	return out, nil
}

// GetEntityContent returns the content IDs an entity is mentioned in.
func (e *Engine) GetEntityContent(ctx context.Context, id string) ([]string, error) {
	rows, err := e.pool.Query(ctx, `SELECT DISTINCT content_id FROM entity_mentions WHERE entity_id = $1`, id)
	if err != nil {
		return nil, ingerrors.Wrap(ingerrors.Transient, "get entity content", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var cid string
		if err := rows.Scan(&cid); err != nil {
			return nil, ingerrors.Wrap(ingerrors.Transient, "scan entity content", err)
		}
		out = append(out, cid)
	}
	return out, nil
}

func scanEntity(row scannable) (*domain.Entity, error) {
	var ent domain.Entity
	var meta []byte
	if err := row.Scan(&ent.ID, &ent.Name, &ent.NormalizedName, &ent.Type, &ent.Description,
		&meta, &ent.CreatedAt, &ent.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, ingerrors.Wrap(ingerrors.Transient, "scan entity", err)
	}
	if err := json.Unmarshal(meta, &ent.Metadata); err != nil {
		return nil, ingerrors.Wrap(ingerrors.Corruption, "unmarshal entity metadata", err)
	}
	return &ent, nil
}
