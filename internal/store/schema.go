package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ─────────────────────────────────────────────────────────────────────────────
// DDL — face gallery
// ─────────────────────────────────────────────────────────────────────────────

const ddlFaces = `
CREATE TABLE IF NOT EXISTS faces (
    person_id   TEXT         PRIMARY KEY,
    embedding   BYTEA        NOT NULL,
    count       INTEGER      NOT NULL DEFAULT 1,
    recap       TEXT,
    socials     JSONB        NOT NULL DEFAULT '{}',
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

// ─────────────────────────────────────────────────────────────────────────────
// DDL — summaries and todos
// ─────────────────────────────────────────────────────────────────────────────

const ddlSummaries = `
CREATE TABLE IF NOT EXISTS summaries (
    id          BIGSERIAL    PRIMARY KEY,
    person_id   TEXT         NOT NULL,
    text        TEXT         NOT NULL,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_summaries_person_created
    ON summaries (person_id, created_at DESC);
`

const ddlTodos = `
CREATE TABLE IF NOT EXISTS todos (
    id               BIGSERIAL    PRIMARY KEY,
    description      TEXT         NOT NULL,
    status           TEXT         NOT NULL DEFAULT 'open',
    person_id        TEXT         NOT NULL DEFAULT '',
    conversation_id  TEXT         NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ  NOT NULL DEFAULT now(),
    completed_at     TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_todos_person_id ON todos (person_id);
CREATE INDEX IF NOT EXISTS idx_todos_status ON todos (status);
`

// ddlMemories returns the person-memory DDL with the embedding dimension
// substituted. The vector dimension is baked into the column type at schema
// creation time.
func ddlMemories(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS person_memories (
    id               BIGSERIAL    PRIMARY KEY,
    person_id        TEXT         NOT NULL,
    text             TEXT         NOT NULL,
    context          TEXT         NOT NULL DEFAULT '',
    conversation_id  TEXT         NOT NULL DEFAULT '',
    embedding        vector(%d),
    created_at       TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_person_memories_person_id
    ON person_memories (person_id);

CREATE INDEX IF NOT EXISTS idx_person_memories_embedding
    ON person_memories USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures all required database tables and extensions
// exist. It is idempotent (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT
// EXISTS) and safe to call on every application start.
//
// embeddingDimensions must match the embeddings model configured for your
// deployment. Changing this value after the first migration requires a manual
// schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{
		ddlFaces,
		ddlSummaries,
		ddlMemories(embeddingDimensions),
		ddlTodos,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}
