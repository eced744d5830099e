package patchstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlPatchRequests = `
CREATE TABLE IF NOT EXISTS patch_requests (
    id                       BIGSERIAL    PRIMARY KEY,
    project_id               TEXT         NOT NULL,
    user_message             TEXT         NOT NULL,
    ops_json                 TEXT         NOT NULL DEFAULT '',
    source                   TEXT         NOT NULL DEFAULT '',
    status                   TEXT         NOT NULL,
    mode                     TEXT         NOT NULL DEFAULT '',
    mode_reason              TEXT         NOT NULL DEFAULT '',
    generated_video_build_id TEXT,
    created_at               TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_patch_requests_project_id
    ON patch_requests (project_id);

CREATE INDEX IF NOT EXISTS idx_patch_requests_project_created
    ON patch_requests (project_id, created_at);
`

// ddlEmbeddings returns the embedding-index DDL with the vector dimension
// baked in, matching the teacher's ddlL2 shape.
func ddlEmbeddings(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS patch_message_embeddings (
    id               BIGSERIAL    PRIMARY KEY,
    project_id       TEXT         NOT NULL,
    patch_request_id TEXT,
    message          TEXT         NOT NULL,
    embedding        vector(%d),
    created_at       TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_patch_message_embeddings_project_id
    ON patch_message_embeddings (project_id);

CREATE INDEX IF NOT EXISTS idx_patch_message_embeddings_embedding
    ON patch_message_embeddings USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures patch_requests and patch_message_embeddings
// exist. Idempotent and safe to call on every application start.
//
// embeddingDimensions must match the embedding model configured for the
// AI-parse fallback's few-shot retrieval.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{
		ddlPatchRequests,
		ddlEmbeddings(embeddingDimensions),
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("patch store migrate: %w", err)
		}
	}
	return nil
}
