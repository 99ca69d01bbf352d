package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/voxelware/aura/internal/vision"
)

// Memory is one extracted fact about a person.
type Memory struct {
	ID             int64
	PersonID       vision.PersonID
	Text           string
	Context        string
	ConversationID string
	CreatedAt      time.Time
}

// MemoryResult is a semantic search hit with its cosine distance.
type MemoryResult struct {
	Memory
	Distance float64
}

// AddMemory inserts a memory. embedding may be nil when no embeddings
// provider is configured; such rows are excluded from semantic search but
// still served by RecentMemories.
func (s *Store) AddMemory(ctx context.Context, m Memory, embedding []float32) error {
	const q = `
		INSERT INTO person_memories (person_id, text, context, conversation_id, embedding)
		VALUES ($1, $2, $3, $4, $5)`

	var vec any
	if len(embedding) > 0 {
		vec = pgvector.NewVector(embedding)
	}
	if _, err := s.pool.Exec(ctx, q, m.PersonID, m.Text, m.Context, m.ConversationID, vec); err != nil {
		return fmt.Errorf("store: add memory: %w", err)
	}
	return nil
}

// SearchMemories finds the topK memories for a person whose embeddings are
// closest (cosine distance) to the query embedding. Results are ordered by
// ascending distance (most similar first).
func (s *Store) SearchMemories(ctx context.Context, personID vision.PersonID, embedding []float32, topK int) ([]MemoryResult, error) {
	const q = `
		SELECT id, person_id, text, context, conversation_id, created_at,
		       embedding <=> $2 AS distance
		FROM   person_memories
		WHERE  person_id = $1
		  AND  embedding IS NOT NULL
		ORDER  BY distance
		LIMIT  $3`

	rows, err := s.pool.Query(ctx, q, personID, pgvector.NewVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("store: search memories: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (MemoryResult, error) {
		var mr MemoryResult
		err := row.Scan(
			&mr.ID,
			&mr.PersonID,
			&mr.Text,
			&mr.Context,
			&mr.ConversationID,
			&mr.CreatedAt,
			&mr.Distance,
		)
		return mr, err
	})
	if err != nil {
		return nil, fmt.Errorf("store: scan memory results: %w", err)
	}
	if results == nil {
		results = []MemoryResult{}
	}
	return results, nil
}

// RecentMemories returns the newest memories for a person regardless of
// embedding presence. Fallback path when semantic search is unavailable.
func (s *Store) RecentMemories(ctx context.Context, personID vision.PersonID, limit int) ([]Memory, error) {
	const q = `
		SELECT id, person_id, text, context, conversation_id, created_at
		FROM   person_memories
		WHERE  person_id = $1
		ORDER  BY created_at DESC, id DESC
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, personID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent memories: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Memory])
	if err != nil {
		return nil, fmt.Errorf("store: scan memories: %w", err)
	}
	return out, nil
}
