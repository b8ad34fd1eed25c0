package chunks

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PGRepo implements Repo using Postgres. Embeddings are stored as JSONB
// arrays; similarity ranking happens in Go after the analysis-scoped fetch.
type PGRepo struct {
	DB *sql.DB
}

// Insert stores a batch of chunks. Re-indexing the same chunk updates its
// embedding in place.
func (r *PGRepo) Insert(ctx context.Context, items []Chunk) error {
	if len(items) == 0 {
		return nil
	}
	const query = `
INSERT INTO document_chunks (
	id, analysis_id, document_name, page_number, chunk_index,
	content, content_type, confidence_score, embedding, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (analysis_id, document_name, chunk_index)
DO UPDATE SET content = EXCLUDED.content, embedding = EXCLUDED.embedding`

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, c := range items {
		embedding, err := marshalEmbedding(c.Embedding)
		if err != nil {
			return fmt.Errorf("marshal embedding for chunk %d: %w", c.ChunkIndex, err)
		}
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := tx.ExecContext(ctx, query,
			c.ID,
			c.AnalysisID,
			c.DocumentName,
			c.PageNumber,
			c.ChunkIndex,
			c.Content,
			c.ContentType,
			c.Confidence,
			embedding,
			createdAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListEmbedded returns all chunks for one analysis that carry an embedding.
// The analysis filter happens in SQL so other analyses never enter ranking.
func (r *PGRepo) ListEmbedded(ctx context.Context, analysisID string) ([]Chunk, error) {
	const query = `
SELECT id, analysis_id, document_name, page_number, chunk_index,
       content, content_type, confidence_score, embedding, created_at
FROM document_chunks
WHERE analysis_id = $1 AND embedding IS NOT NULL
ORDER BY document_name, chunk_index`

	rows, err := r.DB.QueryContext(ctx, query, analysisID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		var c Chunk
		var contentType sql.NullString
		var embedding []byte
		if err := rows.Scan(
			&c.ID,
			&c.AnalysisID,
			&c.DocumentName,
			&c.PageNumber,
			&c.ChunkIndex,
			&c.Content,
			&contentType,
			&c.Confidence,
			&embedding,
			&c.CreatedAt,
		); err != nil {
			return nil, err
		}
		c.ContentType = contentType.String
		if len(embedding) > 0 {
			if err := json.Unmarshal(embedding, &c.Embedding); err != nil {
				return nil, fmt.Errorf("unmarshal embedding for chunk %s: %w", c.ID, err)
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteByAnalysis removes all chunks for an analysis.
func (r *PGRepo) DeleteByAnalysis(ctx context.Context, analysisID string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM document_chunks WHERE analysis_id = $1`, analysisID)
	return err
}

func marshalEmbedding(v []float32) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}

var _ Repo = (*PGRepo)(nil)
