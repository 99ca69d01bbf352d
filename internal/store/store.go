// Package store provides the PostgreSQL-backed persistence layer: the face
// gallery, per-person conversation summaries, the person-memory semantic
// index, and todos.
//
// All tables share a single [pgxpool.Pool]. The pgvector extension must be
// available in the target database; [Migrate] installs it automatically via
// CREATE EXTENSION IF NOT EXISTS. Face centroids are stored as raw
// little-endian float32 bytes and compared in memory; only the person-memory
// index uses vector columns.
//
// Usage:
//
//	st, err := store.New(ctx, dsn, 1536)
//	if err != nil { … }
//	defer st.Close()
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/voxelware/aura/internal/vision"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Pool sizing per the deployment contract: at least one warm connection,
// never more than five concurrent ones.
const (
	poolMinConns = 1
	poolMaxConns = 5
)

// Store is the PostgreSQL persistence layer. Safe for concurrent use.
type Store struct {
	pool      *pgxpool.Pool
	embedDims int
}

// Compile-time check: the recognition worker's view of the store.
var _ vision.FaceStore = (*Store)(nil)

// New connects to PostgreSQL, verifies the connection, and runs migrations.
// embeddingDimensions is the person-memory vector dimension and must match
// the configured embeddings model (e.g., 1536 for text-embedding-3-small).
func New(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}
	cfg.MinConns = poolMinConns
	cfg.MaxConns = poolMaxConns
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{pool: pool, embedDims: embeddingDimensions}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
