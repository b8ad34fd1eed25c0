package analyses

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a new analysis.
func (r *PGRepo) Create(ctx context.Context, analysis Analysis) error {
	const query = `
INSERT INTO analyses (
	id, document_names, language, current_step, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6)`

	names, err := json.Marshal(analysis.DocumentNames)
	if err != nil {
		return err
	}
	now := analysis.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	_, err = r.DB.ExecContext(ctx, query,
		analysis.ID,
		names,
		analysis.Language,
		string(analysis.CurrentStep),
		now,
		now,
	)
	return err
}

// Save writes the whole pipeline-owned snapshot in one statement.
func (r *PGRepo) Save(ctx context.Context, analysis Analysis) error {
	const query = `
UPDATE analyses SET
	document_names = $2,
	language = $3,
	domain = $4,
	domain_confidence = $5,
	domain_reasoning = $6,
	selected_intent = $7,
	custom_intent = $8,
	current_step = $9,
	overall_score = $10,
	score_components = $11,
	document_summary = $12,
	executive_summary = $13,
	overall_assessment = $14,
	key_terms = $15,
	main_obligations = $16,
	red_flags = $17,
	positive_notes = $18,
	warnings = $19,
	error_message = $20,
	updated_at = $21,
	completed_at = $22
WHERE id = $1`

	names, err := json.Marshal(analysis.DocumentNames)
	if err != nil {
		return err
	}
	components, err := marshalNullable(analysis.ScoreComponents)
	if err != nil {
		return err
	}
	keyTerms, err := marshalList(analysis.KeyTerms)
	if err != nil {
		return err
	}
	obligations, err := marshalList(analysis.MainObligations)
	if err != nil {
		return err
	}
	redFlags, err := marshalList(analysis.RedFlags)
	if err != nil {
		return err
	}
	positives, err := marshalList(analysis.PositiveNotes)
	if err != nil {
		return err
	}
	warnings, err := marshalList(analysis.Warnings)
	if err != nil {
		return err
	}

	var errorMessage sql.NullString
	if analysis.ErrorMessage != "" {
		errorMessage = sql.NullString{String: analysis.ErrorMessage, Valid: true}
	}
	var completedAt sql.NullTime
	if analysis.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *analysis.CompletedAt, Valid: true}
	}
	var overallScore sql.NullInt64
	if analysis.OverallScore != nil {
		overallScore = sql.NullInt64{Int64: int64(*analysis.OverallScore), Valid: true}
	}

	res, err := r.DB.ExecContext(ctx, query,
		analysis.ID,
		names,
		analysis.Language,
		analysis.Domain,
		analysis.DomainConfidence,
		analysis.DomainReasoning,
		analysis.SelectedIntent,
		analysis.CustomIntent,
		string(analysis.CurrentStep),
		overallScore,
		components,
		analysis.DocumentSummary,
		analysis.ExecutiveSummary,
		analysis.OverallAssessment,
		keyTerms,
		obligations,
		redFlags,
		positives,
		warnings,
		errorMessage,
		time.Now().UTC(),
		completedAt,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return ErrNotFound
	}
	return err
}

// BeginAnalysis conditionally moves a paused analysis into the analyzing
// step. The WHERE clause on current_step makes a double intent submission
// lose the race instead of silently replacing the first selection.
func (r *PGRepo) BeginAnalysis(ctx context.Context, analysisID, domain, intent, customIntent string) error {
	const query = `
UPDATE analyses SET
	domain = $2,
	selected_intent = $3,
	custom_intent = $4,
	current_step = $5,
	updated_at = $6
WHERE id = $1 AND current_step = $7`

	res, err := r.DB.ExecContext(ctx, query,
		analysisID,
		domain,
		intent,
		customIntent,
		string(StepAnalyzing),
		time.Now().UTC(),
		string(StepAwaitingIntent),
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return ErrNotAwaitingIntent
	}
	return err
}

const analysisColumns = `
	id, document_names, language, domain, domain_confidence, domain_reasoning,
	selected_intent, custom_intent, current_step, overall_score, score_components,
	document_summary, executive_summary, overall_assessment,
	key_terms, main_obligations, red_flags, positive_notes, warnings,
	cancel_requested, error_message, created_at, updated_at, completed_at`

// GetByID returns an analysis by ID.
func (r *PGRepo) GetByID(ctx context.Context, analysisID string) (Analysis, error) {
	query := `SELECT` + analysisColumns + ` FROM analyses WHERE id = $1 LIMIT 1`
	analysis, err := scanAnalysis(r.DB.QueryRowContext(ctx, query, analysisID))
	if errors.Is(err, sql.ErrNoRows) {
		return Analysis{}, ErrNotFound
	}
	return analysis, err
}

// List returns analyses newest first.
func (r *PGRepo) List(ctx context.Context, limit, offset int) ([]Analysis, error) {
	query := `SELECT` + analysisColumns + ` FROM analyses ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.DB.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Analysis
	for rows.Next() {
		analysis, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, analysis)
	}
	return out, rows.Err()
}

// Delete removes an analysis; documents and chunks cascade.
func (r *PGRepo) Delete(ctx context.Context, analysisID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM analyses WHERE id = $1`, analysisID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return ErrNotFound
	}
	return err
}

// RequestCancel marks the analysis for cancellation without touching
// pipeline-owned fields.
func (r *PGRepo) RequestCancel(ctx context.Context, analysisID string) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE analyses SET cancel_requested = TRUE, updated_at = $2 WHERE id = $1`,
		analysisID, time.Now().UTC())
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return ErrNotFound
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row rowScanner) (Analysis, error) {
	var a Analysis
	var names, components, keyTerms, obligations, redFlags, positives, warnings []byte
	var step string
	var overallScore sql.NullInt64
	var errorMessage sql.NullString
	var completedAt sql.NullTime

	if err := row.Scan(
		&a.ID,
		&names,
		&a.Language,
		&a.Domain,
		&a.DomainConfidence,
		&a.DomainReasoning,
		&a.SelectedIntent,
		&a.CustomIntent,
		&step,
		&overallScore,
		&components,
		&a.DocumentSummary,
		&a.ExecutiveSummary,
		&a.OverallAssessment,
		&keyTerms,
		&obligations,
		&redFlags,
		&positives,
		&warnings,
		&a.CancelRequested,
		&errorMessage,
		&a.CreatedAt,
		&a.UpdatedAt,
		&completedAt,
	); err != nil {
		return Analysis{}, err
	}

	a.CurrentStep = Step(step)
	if overallScore.Valid {
		score := int(overallScore.Int64)
		a.OverallScore = &score
	}
	if errorMessage.Valid {
		a.ErrorMessage = errorMessage.String
	}
	if completedAt.Valid {
		t := completedAt.Time
		a.CompletedAt = &t
	}

	for _, field := range []struct {
		raw  []byte
		dest any
	}{
		{names, &a.DocumentNames},
		{components, &a.ScoreComponents},
		{keyTerms, &a.KeyTerms},
		{obligations, &a.MainObligations},
		{redFlags, &a.RedFlags},
		{positives, &a.PositiveNotes},
		{warnings, &a.Warnings},
	} {
		if len(field.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(field.raw, field.dest); err != nil {
			return Analysis{}, fmt.Errorf("decode analysis %s: %w", a.ID, err)
		}
	}
	return a, nil
}

func marshalNullable(v *ScoreComponents) (any, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func marshalList(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(b) == "null" {
		return []byte("[]"), nil
	}
	return b, nil
}

var _ Repo = (*PGRepo)(nil)
