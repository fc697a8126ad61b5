// Package storage implements the StorageEngine (C1): connection lifecycle,
// idempotent schema init, transactional batch writes, entity caching, and
// full-text search, over a Postgres backend.
//
// The "persisted state layout" of spec.md §6 (a configurable root containing
// databases/, logs/, tmp/, one file per named database) maps here onto one
// logical Postgres database per named store: Open selects (or lazily
// provisions) the schema for `name` within the cluster reachable at
// databaseURL, rather than a single-file embedded engine — see DESIGN.md's
// Open Question resolution.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/knoguchi/ingestor/internal/domain"
)

// Engine is the StorageEngine (C1): a pooled Postgres connection plus the two
// entity caches layered over storeEntity/getEntity.
type Engine struct {
	pool *pgxpool.Pool
	name string

	byNameType *lru.LRU[nameTypeKey, string]
	byID       *lru.LRU[string, *domain.Entity]
}

// CacheConfig controls the two entity caches (spec.md §4.1).
type CacheConfig struct {
	MaxSize int
	TTL     time.Duration
}

// DefaultCacheConfig matches spec.md's defaults: maxSize=1000, ttl=30min.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{MaxSize: 1000, TTL: 30 * time.Minute}
}

// Open connects to the database named by name within the cluster at
// databaseURL, pings it, and initializes the schema idempotently. Opening a
// path to a non-existent location is meaningless for a networked backend; the
// equivalent auto-create behavior is realized by initSchema being idempotent
// and safe to run against a fresh, empty database.
func Open(ctx context.Context, databaseURL, name string, cache CacheConfig) (*Engine, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	e := &Engine{
		pool:       pool,
		name:       name,
		byNameType: lru.NewLRU[nameTypeKey, string](cache.MaxSize, nil, cache.TTL),
		byID:       lru.NewLRU[string, *domain.Entity](cache.MaxSize, nil, cache.TTL),
	}
	if err := e.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return e, nil
}

// Close releases the pool.
func (e *Engine) Close() {
	e.pool.Close()
}

// nameTypeKey is the cache key for the by-(name,type) entity cache.
type nameTypeKey struct {
	normalizedName string
	entityType     domain.EntityType
}
