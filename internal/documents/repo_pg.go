package documents

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a new document record.
func (r *PGRepo) Create(ctx context.Context, doc Document) error {
	const query = `
INSERT INTO analysis_documents (
    id, analysis_id, file_name, storage_key, mime_type, size_bytes, position, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.DB.ExecContext(ctx, query,
		doc.ID,
		doc.AnalysisID,
		doc.FileName,
		doc.StorageKey,
		doc.MimeType,
		doc.SizeBytes,
		doc.Position,
		doc.CreatedAt,
	)
	return err
}

// SetExtracted stores the ingestion stage's output for a document.
func (r *PGRepo) SetExtracted(ctx context.Context, documentID string, pageCount int, extractedText string, pages []PageInfo) error {
	meta, err := json.Marshal(pages)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx,
		`UPDATE analysis_documents SET page_count = $2, extracted_text = $3, page_meta = $4 WHERE id = $1`,
		documentID, pageCount, extractedText, meta)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return ErrNotFound
	}
	return err
}

// ListByAnalysis returns the analysis's documents in upload order.
func (r *PGRepo) ListByAnalysis(ctx context.Context, analysisID string) ([]Document, error) {
	const query = `
SELECT id, analysis_id, file_name, storage_key, mime_type, size_bytes, position, page_count, extracted_text, page_meta, created_at
FROM analysis_documents
WHERE analysis_id = $1
ORDER BY position`

	rows, err := r.DB.QueryContext(ctx, query, analysisID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var d Document
		var meta []byte
		if err := rows.Scan(
			&d.ID,
			&d.AnalysisID,
			&d.FileName,
			&d.StorageKey,
			&d.MimeType,
			&d.SizeBytes,
			&d.Position,
			&d.PageCount,
			&d.ExtractedText,
			&meta,
			&d.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &d.Pages); err != nil {
				return nil, fmt.Errorf("decode page meta for document %s: %w", d.ID, err)
			}
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeleteByAnalysis removes all document records for an analysis.
func (r *PGRepo) DeleteByAnalysis(ctx context.Context, analysisID string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM analysis_documents WHERE analysis_id = $1`, analysisID)
	return err
}

var _ Repo = (*PGRepo)(nil)
