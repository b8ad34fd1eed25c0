package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"clarify-backend/internal/analyses"
	"clarify-backend/internal/chunks"
	"clarify-backend/internal/documents"
	"clarify-backend/internal/domains"
	"clarify-backend/internal/extraction"
	"clarify-backend/internal/review"
	"clarify-backend/internal/scoring"
	"clarify-backend/internal/shared/telemetry"
)

// retrievalPerQuery is how many chunks each domain search query contributes
// to the analysis stage.
const retrievalPerQuery = 3

func (r *Runner) ingest(ctx context.Context, analysis *analyses.Analysis, state *runState) (analyses.Step, error) {
	docs, err := r.Docs.ListByAnalysis(ctx, analysis.ID)
	if err != nil {
		return "", fmt.Errorf("list documents: %w", err)
	}
	if len(docs) == 0 {
		return "", &extraction.ExtractionError{FileName: "", Cause: errors.New("analysis has no documents")}
	}

	var texts []string
	for _, doc := range docs {
		obj, err := r.Store.Open(ctx, doc.StorageKey)
		if err != nil {
			return "", fmt.Errorf("open %s: %w", doc.FileName, err)
		}
		data, err := io.ReadAll(obj)
		obj.Close()
		if err != nil {
			return "", fmt.Errorf("read %s: %w", doc.FileName, err)
		}

		result, err := r.Engine.Extract(ctx, doc.FileName, data)
		if err != nil {
			return "", err
		}
		text := result.Text()
		pages := make([]documents.PageInfo, len(result.Pages))
		for i, p := range result.Pages {
			pages[i] = documents.PageInfo{
				ContentType: strings.Join(p.ContentTypes, ","),
				Confidence:  p.Confidence,
			}
		}
		if err := r.Docs.SetExtracted(ctx, doc.ID, len(result.Pages), text, pages); err != nil {
			return "", fmt.Errorf("persist extraction for %s: %w", doc.FileName, err)
		}
		for _, w := range result.Warnings {
			analysis.Warnings = append(analysis.Warnings, doc.FileName+": "+w)
		}
		if result.OverallConfidence < 0.5 {
			analysis.Warnings = append(analysis.Warnings,
				fmt.Sprintf("%s: low extraction confidence (%.2f), results may be incomplete", doc.FileName, result.OverallConfidence))
		}
		texts = append(texts, text)
	}
	state.fullText = strings.Join(texts, documents.PageSeparator)
	return analyses.StepIndexing, nil
}

func (r *Runner) index(ctx context.Context, analysis *analyses.Analysis) (analyses.Step, error) {
	docs, err := r.Docs.ListByAnalysis(ctx, analysis.ID)
	if err != nil {
		return "", fmt.Errorf("list documents: %w", err)
	}

	var all []chunks.Chunk
	for _, doc := range docs {
		nextIndex := 0
		for pageOffset, pageText := range strings.Split(doc.ExtractedText, documents.PageSeparator) {
			if strings.TrimSpace(pageText) == "" || pageText == extraction.FailedPageSentinel {
				continue
			}
			var pageChunks []chunks.Chunk
			pageChunks, nextIndex = r.Splitter.SplitPage(pageText, analysis.ID, doc.FileName, pageOffset+1, nextIndex)
			if pageOffset < len(doc.Pages) {
				meta := doc.Pages[pageOffset]
				for i := range pageChunks {
					pageChunks[i].ContentType = meta.ContentType
					pageChunks[i].Confidence = meta.Confidence
				}
			}
			all = append(all, pageChunks...)
		}
	}
	if len(all) == 0 {
		analysis.Warnings = append(analysis.Warnings, "no indexable text found, retrieval disabled for this analysis")
		return analyses.StepDetecting, nil
	}

	if err := r.Index.IndexChunks(ctx, all); err != nil {
		var batchErr *chunks.BatchError
		if !errors.As(err, &batchErr) {
			return "", fmt.Errorf("index chunks: %w", err)
		}
		// Partial indexes still serve retrieval; record and move on.
		analysis.Warnings = append(analysis.Warnings,
			fmt.Sprintf("embedding failed for part of the document (batches %v), retrieval may miss some sections", batchErr.Batches))
		telemetry.Warn("chunk indexing degraded", map[string]any{
			"analysis_id": analysis.ID,
			"batches":     batchErr.Batches,
			"error":       batchErr.Error(),
		})
	}
	return analyses.StepDetecting, nil
}

func (r *Runner) detect(ctx context.Context, analysis *analyses.Analysis, state *runState) (analyses.Step, error) {
	fullText, err := r.loadFullText(ctx, analysis, state)
	if err != nil {
		return "", err
	}

	detection, err := r.Classifier.Detect(ctx, fullText)
	if err != nil {
		return "", fmt.Errorf("detect domain: %w", err)
	}
	analysis.Domain = detection.Domain
	analysis.DomainConfidence = detection.Confidence
	analysis.DomainReasoning = detection.Reasoning
	telemetry.Info("domain detected", map[string]any{
		"analysis_id": analysis.ID,
		"domain":      detection.Domain,
		"confidence":  detection.Confidence,
	})
	// Both supported and unsupported detections pause for the user: supported
	// ones need an intent, unsupported ones need a manual domain choice.
	return analyses.StepAwaitingIntent, nil
}

func (r *Runner) analyze(ctx context.Context, analysis *analyses.Analysis, state *runState) (analyses.Step, error) {
	fullText, err := r.loadFullText(ctx, analysis, state)
	if err != nil {
		return "", err
	}
	intent, err := domains.ResolveIntent(analysis.Domain, analysis.SelectedIntent, analysis.CustomIntent)
	if err != nil {
		return "", fmt.Errorf("resolve stored intent: %w", err)
	}

	retrieved := r.retrieve(ctx, analysis)

	out, err := r.Analyzer.Analyze(ctx, review.Input{
		FullText:  fullText,
		Domain:    analysis.Domain,
		Intent:    intent,
		Retrieved: retrieved,
		Language:  analysis.Language,
	})
	if err != nil {
		return "", err
	}

	analysis.DocumentSummary = out.DocumentSummary
	analysis.KeyTerms = out.KeyTerms
	analysis.MainObligations = out.MainObligations
	analysis.RedFlags = out.RedFlags
	analysis.PositiveNotes = out.PositiveNotes
	analysis.OverallAssessment = out.OverallAssessment
	analysis.Warnings = append(analysis.Warnings, out.Warnings...)
	return analyses.StepScoring, nil
}

// retrieve gathers relevant chunks for the analysis stage. Retrieval failures
// degrade the prompt, they never fail the pipeline.
func (r *Runner) retrieve(ctx context.Context, analysis *analyses.Analysis) []chunks.ScoredChunk {
	queries := append([]string(nil), domains.SearchQueries[analysis.Domain]...)
	if analysis.CustomIntent != "" {
		queries = append(queries, analysis.CustomIntent)
	}

	var retrieved []chunks.ScoredChunk
	for _, query := range queries {
		hits, err := r.Index.Search(ctx, analysis.ID, query, retrievalPerQuery)
		if err != nil {
			telemetry.Warn("retrieval query failed", map[string]any{
				"analysis_id": analysis.ID,
				"query":       query,
				"error":       err.Error(),
			})
			continue
		}
		retrieved = append(retrieved, hits...)
	}
	return retrieved
}

func (r *Runner) score(ctx context.Context, analysis *analyses.Analysis, state *runState) (analyses.Step, error) {
	fullText, err := r.loadFullText(ctx, analysis, state)
	if err != nil {
		return "", err
	}

	flags := make([]scoring.Flag, len(analysis.RedFlags))
	for i, rf := range analysis.RedFlags {
		flags[i] = scoring.Flag{Severity: rf.Severity}
	}
	result := scoring.Score(flags, fullText, analysis.Domain)

	overall := result.Overall
	analysis.OverallScore = &overall
	analysis.ScoreComponents = &analyses.ScoreComponents{
		RedFlag:      result.Components.RedFlag,
		Completeness: result.Components.Completeness,
		Clarity:      result.Components.Clarity,
		Fairness:     result.Components.Fairness,
	}
	analysis.ExecutiveSummary = buildExecutiveSummary(*analysis, result)
	return analyses.StepPersisting, nil
}

func (r *Runner) loadFullText(ctx context.Context, analysis *analyses.Analysis, state *runState) (string, error) {
	if state.fullText != "" {
		return state.fullText, nil
	}
	docs, err := r.Docs.ListByAnalysis(ctx, analysis.ID)
	if err != nil {
		return "", fmt.Errorf("list documents: %w", err)
	}
	texts := make([]string, 0, len(docs))
	for _, doc := range docs {
		if doc.ExtractedText != "" {
			texts = append(texts, doc.ExtractedText)
		}
	}
	if len(texts) == 0 {
		return "", errors.New("no extracted text available")
	}
	state.fullText = strings.Join(texts, documents.PageSeparator)
	return state.fullText, nil
}

// buildExecutiveSummary composes the one-paragraph top line shown on results.
func buildExecutiveSummary(analysis analyses.Analysis, result scoring.Result) string {
	counts := map[string]int{}
	for _, rf := range analysis.RedFlags {
		counts[rf.Severity]++
	}

	var b strings.Builder
	fmt.Fprintf(&b, "This document scored %d out of 100.", result.Overall)
	if len(analysis.RedFlags) == 0 {
		b.WriteString(" No red flags were found.")
	} else {
		parts := make([]string, 0, 5)
		for _, severity := range []string{"critical", "high", "medium", "low", "info"} {
			if n := counts[severity]; n > 0 {
				parts = append(parts, fmt.Sprintf("%d %s", n, severity))
			}
		}
		fmt.Fprintf(&b, " %d red flag(s) were found (%s).", len(analysis.RedFlags), strings.Join(parts, ", "))
	}
	if analysis.OverallAssessment != "" {
		b.WriteString(" " + analysis.OverallAssessment)
	}
	return b.String()
}
