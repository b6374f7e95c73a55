package pgx

import (
	"context"
	"errors"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/lodestar-hq/lodestar/pkg/embed"
	"github.com/lodestar-hq/lodestar/pkg/logger"
	"github.com/lodestar-hq/lodestar/pkg/store"
)

// GetCachedEmbedding reads an unexpired cache row. Expired rows read as
// absent; a background delete is unnecessary since writes upsert.
func (s *Store) GetCachedEmbedding(ctx context.Context, key string) ([]float32, bool, error) {
	var vec pgvector.Vector
	err := s.conn.QueryRow(ctx, `
		SELECT embedding
		FROM embedding_cache
		WHERE cache_key = $1 AND expires_at > now();
	`, key).Scan(&vec)
	if err != nil {
		if errors.Is(mapError(err), store.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, mapError(err)
	}
	return vec.Slice(), true, nil
}

func (s *Store) PutCachedEmbedding(ctx context.Context, key string, vec []float32, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	_, err := s.conn.Exec(ctx, `
		INSERT INTO embedding_cache (cache_key, embedding, expires_at)
		VALUES ($1, $2, now() + ($3::bigint * interval '1 millisecond'))
		ON CONFLICT (cache_key) DO UPDATE SET
			embedding  = EXCLUDED.embedding,
			expires_at = EXCLUDED.expires_at;
	`, key, pgvector.NewVector(vec), ttl.Milliseconds())
	return mapError(err)
}

// EmbedCache adapts the store's embedding cache table to the embed
// package's Cache interface so cached vectors survive worker restarts.
// Lookups use short internal timeouts; a failing database degrades to a
// cache miss, never an error.
type EmbedCache struct {
	store   *Store
	ttl     time.Duration
	timeout time.Duration
}

var _ embed.Cache = (*EmbedCache)(nil)

// NewEmbedCache creates a database-backed embedding cache. Non-positive
// ttl defaults to 7 days.
func NewEmbedCache(st *Store, ttl time.Duration) *EmbedCache {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &EmbedCache{store: st, ttl: ttl, timeout: 5 * time.Second}
}

func (c *EmbedCache) Get(key string) ([]float32, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	vec, ok, err := c.store.GetCachedEmbedding(ctx, key)
	if err != nil {
		logger.Debug("[Store] Embedding cache read failed", "err", err)
		return nil, false
	}
	return vec, ok
}

func (c *EmbedCache) Set(key string, vec []float32) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if err := c.store.PutCachedEmbedding(ctx, key, vec, c.ttl); err != nil {
		logger.Debug("[Store] Embedding cache write failed", "err", err)
	}
}

func (c *EmbedCache) Invalidate(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	_, err := c.store.conn.Exec(ctx, `DELETE FROM embedding_cache WHERE cache_key = $1;`, key)
	if err != nil {
		logger.Debug("[Store] Embedding cache invalidate failed", "err", err)
	}
}
