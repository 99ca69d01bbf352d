package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/voxelware/aura/internal/vision"
)

// Summary is one append-only conversation summary for a person.
type Summary struct {
	ID        int64
	PersonID  vision.PersonID
	Text      string
	CreatedAt time.Time
}

// AddSummary appends a summary row. Summaries are never updated.
func (s *Store) AddSummary(ctx context.Context, personID vision.PersonID, text string) error {
	const q = `INSERT INTO summaries (person_id, text) VALUES ($1, $2)`

	if _, err := s.pool.Exec(ctx, q, personID, text); err != nil {
		return fmt.Errorf("store: add summary: %w", err)
	}
	return nil
}

// ListSummaries returns all summaries for a person, most recent first.
func (s *Store) ListSummaries(ctx context.Context, personID vision.PersonID) ([]Summary, error) {
	const q = `
		SELECT id, person_id, text, created_at
		FROM   summaries
		WHERE  person_id = $1
		ORDER  BY created_at DESC, id DESC`

	rows, err := s.pool.Query(ctx, q, personID)
	if err != nil {
		return nil, fmt.Errorf("store: list summaries: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Summary])
	if err != nil {
		return nil, fmt.Errorf("store: scan summaries: %w", err)
	}
	return out, nil
}
