// Package patchstore persists chat-edit patch requests and their structured
// explain records to PostgreSQL, and indexes past user messages by
// embedding so the AI-parse fallback can retrieve few-shot examples of
// similar phrasing.
package patchstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/MrWong99/kinoforge/pkg/types"
)

// Record is a durable patch request plus its retained explain metadata.
type Record struct {
	types.PatchRequest
	Mode       string
	ModeReason string
}

// SearchOpts filters patch history queries.
type SearchOpts struct {
	ProjectID string
	After     time.Time
	Before    time.Time
	Limit     int
}

// Store is the patch_requests table, backed by a pgxpool.Pool.
//
// Obtain one via New. All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Insert writes a draft patch request, returning its generated ID.
func (s *Store) Insert(ctx context.Context, projectID string, rec Record) (string, error) {
	const q = `
		INSERT INTO patch_requests
		    (project_id, user_message, ops_json, source, status, mode, mode_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		RETURNING id`

	var id string
	err := s.pool.QueryRow(ctx, q,
		projectID,
		rec.UserMessage,
		rec.OpsJSON,
		rec.Source,
		rec.Status,
		rec.Mode,
		rec.ModeReason,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("patch store: insert: %w", err)
	}
	return id, nil
}

// UpdateStatus transitions a patch request's status, optionally attaching
// the video build id produced by a successful apply.
func (s *Store) UpdateStatus(ctx context.Context, patchRequestID string, status types.PatchStatus, generatedVideoBuildID *string) error {
	const q = `
		UPDATE patch_requests
		SET    status = $2, generated_video_build_id = $3
		WHERE  id = $1`

	_, err := s.pool.Exec(ctx, q, patchRequestID, status, generatedVideoBuildID)
	if err != nil {
		return fmt.Errorf("patch store: update status: %w", err)
	}
	return nil
}

// Get fetches one patch request by id.
func (s *Store) Get(ctx context.Context, patchRequestID string) (Record, error) {
	const q = `
		SELECT id, user_message, ops_json, source, status, mode, mode_reason,
		       generated_video_build_id, created_at
		FROM   patch_requests
		WHERE  id = $1`

	row := s.pool.QueryRow(ctx, q, patchRequestID)
	rec, err := scanRecord(row)
	if err != nil {
		return Record{}, fmt.Errorf("patch store: get: %w", err)
	}
	return rec, nil
}

// List returns patch requests for a project, newest first, applying opts.
func (s *Store) List(ctx context.Context, projectID string, opts SearchOpts) ([]Record, error) {
	args := []any{projectID}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{"project_id = $1"}
	if !opts.After.IsZero() {
		conditions = append(conditions, "created_at > "+next(opts.After))
	}
	if !opts.Before.IsZero() {
		conditions = append(conditions, "created_at < "+next(opts.Before))
	}

	q := "SELECT id, user_message, ops_json, source, status, mode, mode_reason,\n" +
		"       generated_video_build_id, created_at\n" +
		"FROM   patch_requests\n" +
		"WHERE  " + strings.Join(conditions, "\n  AND  ") + "\n" +
		"ORDER  BY created_at DESC"

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		q += fmt.Sprintf("\nLIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("patch store: list: %w", err)
	}
	return collectRecords(rows)
}

// IndexMessage embeds and stores a user message for future few-shot
// retrieval by the AI-parse fallback. patchRequestID may be empty for
// messages indexed ahead of any successful parse.
func (s *Store) IndexMessage(ctx context.Context, projectID, patchRequestID, message string, embedding []float32) error {
	const q = `
		INSERT INTO patch_message_embeddings (project_id, patch_request_id, message, embedding)
		VALUES ($1, $2, $3, $4)`

	vec := pgvector.NewVector(embedding)
	_, err := s.pool.Exec(ctx, q, projectID, nullableString(patchRequestID), message, vec)
	if err != nil {
		return fmt.Errorf("patch store: index message: %w", err)
	}
	return nil
}

// SimilarExample is one retrieved few-shot candidate.
type SimilarExample struct {
	Message  string
	Distance float64
}

// FindSimilarMessages returns the topK past user messages whose embeddings
// are closest (cosine distance) to embedding, most similar first.
func (s *Store) FindSimilarMessages(ctx context.Context, projectID string, embedding []float32, topK int) ([]SimilarExample, error) {
	const q = `
		SELECT message, embedding <=> $2 AS distance
		FROM   patch_message_embeddings
		WHERE  project_id = $1
		ORDER  BY distance
		LIMIT  $3`

	queryVec := pgvector.NewVector(embedding)
	rows, err := s.pool.Query(ctx, q, projectID, queryVec, topK)
	if err != nil {
		return nil, fmt.Errorf("patch store: find similar messages: %w", err)
	}

	examples, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (SimilarExample, error) {
		var ex SimilarExample
		if err := row.Scan(&ex.Message, &ex.Distance); err != nil {
			return SimilarExample{}, err
		}
		return ex, nil
	})
	if err != nil {
		return nil, fmt.Errorf("patch store: scan similar messages: %w", err)
	}
	if examples == nil {
		examples = []SimilarExample{}
	}
	return examples, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	if err := row.Scan(
		&rec.ID,
		&rec.UserMessage,
		&rec.OpsJSON,
		&rec.Source,
		&rec.Status,
		&rec.Mode,
		&rec.ModeReason,
		&rec.GeneratedVideoBuildID,
		&rec.CreatedAt,
	); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func collectRecords(rows pgx.Rows) ([]Record, error) {
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		return scanRecord(row)
	})
	if err != nil {
		return nil, fmt.Errorf("patch store: scan rows: %w", err)
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
