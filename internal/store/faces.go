package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/voxelware/aura/internal/vision"
)

// Person is a full gallery row, recap and socials included.
type Person struct {
	ID      vision.PersonID
	Count   int
	Recap   *string
	Socials map[string]any
}

// ListGallery implements vision.FaceStore. Centroids are decoded from their
// raw little-endian float32 representation.
func (s *Store) ListGallery(ctx context.Context) ([]vision.GalleryEntry, error) {
	const q = `SELECT person_id, embedding, count FROM faces`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: list gallery: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (vision.GalleryEntry, error) {
		var (
			entry vision.GalleryEntry
			raw   []byte
		)
		if err := row.Scan(&entry.ID, &raw, &entry.Count); err != nil {
			return vision.GalleryEntry{}, err
		}
		entry.Embedding, err = vision.DecodeEmbedding(raw)
		return entry, err
	})
	if err != nil {
		return nil, fmt.Errorf("store: scan gallery: %w", err)
	}
	return entries, nil
}

// CreateFace implements vision.FaceStore.
func (s *Store) CreateFace(ctx context.Context, entry vision.GalleryEntry) error {
	const q = `
		INSERT INTO faces (person_id, embedding, count)
		VALUES ($1, $2, $3)`

	_, err := s.pool.Exec(ctx, q, entry.ID, vision.EncodeEmbedding(entry.Embedding), entry.Count)
	if err != nil {
		return fmt.Errorf("store: create face: %w", err)
	}
	return nil
}

// UpdateCentroid implements vision.FaceStore. It replaces the canonical
// embedding and observation count for id.
func (s *Store) UpdateCentroid(ctx context.Context, id vision.PersonID, embedding []float32, count int) error {
	const q = `
		UPDATE faces
		SET    embedding = $2, count = $3, updated_at = now()
		WHERE  person_id = $1`

	tag, err := s.pool.Exec(ctx, q, id, vision.EncodeEmbedding(embedding), count)
	if err != nil {
		return fmt.Errorf("store: update centroid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("store: update centroid %q: %w", id, ErrNotFound)
	}
	return nil
}

// GetPerson loads one gallery row. Returns ErrNotFound for unknown ids.
func (s *Store) GetPerson(ctx context.Context, id vision.PersonID) (Person, error) {
	const q = `SELECT person_id, count, recap, socials FROM faces WHERE person_id = $1`

	var (
		p   Person
		soc []byte
	)
	err := s.pool.QueryRow(ctx, q, id).Scan(&p.ID, &p.Count, &p.Recap, &soc)
	if errors.Is(err, pgx.ErrNoRows) {
		return Person{}, fmt.Errorf("store: person %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return Person{}, fmt.Errorf("store: get person: %w", err)
	}
	if len(soc) > 0 {
		if err := json.Unmarshal(soc, &p.Socials); err != nil {
			return Person{}, fmt.Errorf("store: decode socials: %w", err)
		}
	}
	return p, nil
}

// SetRecap overwrites the person's recap text.
func (s *Store) SetRecap(ctx context.Context, id vision.PersonID, recap string) error {
	const q = `UPDATE faces SET recap = $2, updated_at = now() WHERE person_id = $1`

	tag, err := s.pool.Exec(ctx, q, id, recap)
	if err != nil {
		return fmt.Errorf("store: set recap: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("store: set recap %q: %w", id, ErrNotFound)
	}
	return nil
}

// ListPersonIDs returns every known person id. Used for fuzzy rename fallback.
func (s *Store) ListPersonIDs(ctx context.Context) ([]vision.PersonID, error) {
	rows, err := s.pool.Query(ctx, `SELECT person_id FROM faces`)
	if err != nil {
		return nil, fmt.Errorf("store: list person ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (vision.PersonID, error) {
		var id vision.PersonID
		err := row.Scan(&id)
		return id, err
	})
	if err != nil {
		return nil, fmt.Errorf("store: scan person ids: %w", err)
	}
	return ids, nil
}

// RenamePerson changes a person's identifier everywhere it appears. The new
// id must not already exist. Runs in a transaction so a half-renamed person
// can never be observed.
func (s *Store) RenamePerson(ctx context.Context, from, to vision.PersonID) error {
	if from == vision.NoPerson || to == vision.NoPerson {
		return errors.New("store: rename: person ids must not be empty")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: rename begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE faces SET person_id = $2, updated_at = now() WHERE person_id = $1`, from, to)
	if err != nil {
		return fmt.Errorf("store: rename faces row: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("store: rename %q: %w", from, ErrNotFound)
	}

	for _, stmt := range []string{
		`UPDATE summaries SET person_id = $2 WHERE person_id = $1`,
		`UPDATE person_memories SET person_id = $2, updated_at = now() WHERE person_id = $1`,
		`UPDATE todos SET person_id = $2 WHERE person_id = $1`,
	} {
		if _, err := tx.Exec(ctx, stmt, from, to); err != nil {
			return fmt.Errorf("store: rename child rows: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: rename commit: %w", err)
	}
	return nil
}
