package storage

import (
	"context"
	"fmt"
)

// schema is the idempotent DDL for the ingestor store. It creates content,
// chunks, entities, mentions, relationships, aliases, and jobs, plus the
// tsvector-backed FTS column/index and the triggers that mirror chunk/content
// changes into it (spec.md §4.1, §3 FTS index).
const schema = `
CREATE TABLE IF NOT EXISTS db_metadata (
	schema_version    TEXT NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	ingestor_version  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS content (
	id            UUID PRIMARY KEY,
	content_type  TEXT NOT NULL,
	title         TEXT NOT NULL DEFAULT '',
	description   TEXT NOT NULL DEFAULT '',
	source        TEXT NOT NULL DEFAULT '',
	file_path     TEXT NOT NULL DEFAULT '',
	hash          TEXT NOT NULL,
	size          BIGINT NOT NULL DEFAULT 0,
	owner_id      TEXT NOT NULL DEFAULT '',
	metadata      JSONB NOT NULL DEFAULT '{}',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (source, hash)
);

CREATE TABLE IF NOT EXISTS content_chunks (
	id           UUID PRIMARY KEY,
	content_id   UUID NOT NULL REFERENCES content(id) ON DELETE CASCADE,
	chunk_index  INT NOT NULL,
	text         TEXT NOT NULL,
	metadata     JSONB NOT NULL DEFAULT '{}',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	search_vector tsvector,
	UNIQUE (content_id, chunk_index)
);

CREATE INDEX IF NOT EXISTS idx_content_chunks_content_id ON content_chunks(content_id);
CREATE INDEX IF NOT EXISTS idx_content_chunks_search ON content_chunks USING GIN (search_vector);

CREATE TABLE IF NOT EXISTS entities (
	id               UUID PRIMARY KEY,
	name             TEXT NOT NULL,
	normalized_name  TEXT NOT NULL,
	type             TEXT NOT NULL CHECK (type IN ('person','organization','location','date','product','technology','event','other')),
	description      TEXT NOT NULL DEFAULT '',
	metadata         JSONB NOT NULL DEFAULT '{}',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (normalized_name, type)
);

CREATE TABLE IF NOT EXISTS entity_mentions (
	id            UUID PRIMARY KEY,
	entity_id     UUID NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	content_id    UUID NOT NULL REFERENCES content(id) ON DELETE CASCADE,
	content_type  TEXT NOT NULL,
	relevance     DOUBLE PRECISION NOT NULL CHECK (relevance >= 0 AND relevance <= 1),
	context       TEXT NOT NULL DEFAULT '',
	position      INT NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_entity_mentions_entity_id ON entity_mentions(entity_id);
CREATE INDEX IF NOT EXISTS idx_entity_mentions_content_id ON entity_mentions(content_id);

CREATE TABLE IF NOT EXISTS entity_aliases (
	id          UUID PRIMARY KEY,
	entity_id   UUID NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	alias       TEXT NOT NULL,
	confidence  DOUBLE PRECISION NOT NULL DEFAULT 1.0
);

CREATE INDEX IF NOT EXISTS idx_entity_aliases_entity_id ON entity_aliases(entity_id);

CREATE TABLE IF NOT EXISTS entity_relationships (
	id                 UUID PRIMARY KEY,
	source_entity_id   UUID NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	target_entity_id   UUID NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	relationship_type  TEXT NOT NULL,
	strength           DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (strength >= 0 AND strength <= 1),
	CHECK (source_entity_id <> target_entity_id),
	UNIQUE (source_entity_id, target_entity_id, relationship_type)
);

CREATE TABLE IF NOT EXISTS search_cache (
	search_hash  TEXT PRIMARY KEY,
	query        TEXT NOT NULL,
	params       JSONB NOT NULL DEFAULT '{}',
	results      JSONB NOT NULL DEFAULT '[]',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS jobs (
	id           UUID PRIMARY KEY,
	type         TEXT NOT NULL,
	status       TEXT NOT NULL,
	progress     JSONB NOT NULL DEFAULT '{}',
	options      JSONB NOT NULL DEFAULT '{}',
	created_by   TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at   TIMESTAMPTZ,
	finished_at  TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS job_items (
	id             UUID PRIMARY KEY,
	job_id         UUID NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
	status         TEXT NOT NULL,
	input_ref      TEXT NOT NULL DEFAULT '',
	result_ref     TEXT NOT NULL DEFAULT '',
	error_message  TEXT NOT NULL DEFAULT '',
	started_at     TIMESTAMPTZ,
	finished_at    TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_job_items_job_id ON job_items(job_id);

-- FTS sync: mirror content_chunks.text, and content.title/description, into
-- each chunk's search_vector so that searchContentFTS sees title/description
-- hits alongside chunk text, matching the FTS index's virtual (chunkId,
-- title, description, text) shape described in spec.md §3.
CREATE OR REPLACE FUNCTION content_chunks_fts_sync() RETURNS trigger AS $$
DECLARE
	c_title TEXT;
	c_desc  TEXT;
BEGIN
	IF TG_OP = 'DELETE' THEN
		RETURN OLD;
	END IF;
	SELECT title, description INTO c_title, c_desc FROM content WHERE id = NEW.content_id;
	NEW.search_vector := setweight(to_tsvector('english', coalesce(c_title, '')), 'A') ||
		setweight(to_tsvector('english', coalesce(c_desc, '')), 'B') ||
		setweight(to_tsvector('english', coalesce(NEW.text, '')), 'C');
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS trg_content_chunks_fts ON content_chunks;
CREATE TRIGGER trg_content_chunks_fts
	BEFORE INSERT OR UPDATE ON content_chunks
	FOR EACH ROW EXECUTE FUNCTION content_chunks_fts_sync();

CREATE OR REPLACE FUNCTION content_title_fts_sync() RETURNS trigger AS $$
BEGIN
	IF NEW.title IS DISTINCT FROM OLD.title OR NEW.description IS DISTINCT FROM OLD.description THEN
		UPDATE content_chunks
		SET search_vector = setweight(to_tsvector('english', coalesce(NEW.title, '')), 'A') ||
			setweight(to_tsvector('english', coalesce(NEW.description, '')), 'B') ||
			setweight(to_tsvector('english', coalesce(text, '')), 'C')
		WHERE content_id = NEW.id;
	END IF;
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS trg_content_title_fts ON content;
CREATE TRIGGER trg_content_title_fts
	AFTER UPDATE OF title, description ON content
	FOR EACH ROW EXECUTE FUNCTION content_title_fts_sync();
`

// initSchema creates all tables, indexes and triggers if they do not already
// exist, and seeds db_metadata on first run. It is safe to call repeatedly.
func (e *Engine) initSchema(ctx context.Context) error {
	if _, err := e.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}

	var count int
	if err := e.pool.QueryRow(ctx, `SELECT count(*) FROM db_metadata`).Scan(&count); err != nil {
		return fmt.Errorf("check db_metadata: %w", err)
	}
	if count == 0 {
		_, err := e.pool.Exec(ctx,
			`INSERT INTO db_metadata (schema_version, ingestor_version) VALUES ($1, $2)`,
			"1.0", "1.0.0")
		if err != nil {
			return fmt.Errorf("seed db_metadata: %w", err)
		}
	}
	return nil
}
