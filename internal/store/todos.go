package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/voxelware/aura/internal/vision"
)

// Todo statuses.
const (
	TodoOpen = "open"
	TodoDone = "done"
)

// Todo is one reminder captured by the agent or extracted from a summary.
type Todo struct {
	ID             int64
	Description    string
	Status         string
	PersonID       vision.PersonID
	ConversationID string
	CreatedAt      time.Time
	CompletedAt    *time.Time
}

// AddTodo inserts an open todo linked to the person and conversation it was
// captured in.
func (s *Store) AddTodo(ctx context.Context, description string, personID vision.PersonID, conversationID string) error {
	const q = `
		INSERT INTO todos (description, status, person_id, conversation_id)
		VALUES ($1, $2, $3, $4)`

	if _, err := s.pool.Exec(ctx, q, description, TodoOpen, personID, conversationID); err != nil {
		return fmt.Errorf("store: add todo: %w", err)
	}
	return nil
}

// ListOpenTodos returns open todos, newest first. personID narrows the list
// when non-empty.
func (s *Store) ListOpenTodos(ctx context.Context, personID vision.PersonID) ([]Todo, error) {
	q := `
		SELECT id, description, status, person_id, conversation_id, created_at, completed_at
		FROM   todos
		WHERE  status = $1`
	args := []any{TodoOpen}
	if personID != vision.NoPerson {
		q += ` AND person_id = $2`
		args = append(args, personID)
	}
	q += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list todos: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Todo])
	if err != nil {
		return nil, fmt.Errorf("store: scan todos: %w", err)
	}
	return out, nil
}

// CompleteTodo marks a todo done. Returns ErrNotFound for unknown ids.
func (s *Store) CompleteTodo(ctx context.Context, id int64) error {
	const q = `
		UPDATE todos
		SET    status = $2, completed_at = now()
		WHERE  id = $1 AND status <> $2`

	tag, err := s.pool.Exec(ctx, q, id, TodoDone)
	if err != nil {
		return fmt.Errorf("store: complete todo: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("store: complete todo %d: %w", id, ErrNotFound)
	}
	return nil
}
