package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clarify-backend/internal/analyses"
	"clarify-backend/internal/chunks"
	"clarify-backend/internal/documents"
	"clarify-backend/internal/domains"
	"clarify-backend/internal/extraction"
	"clarify-backend/internal/llm"
	"clarify-backend/internal/review"
	"clarify-backend/internal/shared/metrics"
	"clarify-backend/internal/shared/storage/object"
	"clarify-backend/internal/shared/telemetry"
)

// Runner drives an analysis through the pipeline state machine. The persisted
// analysis record is the only state that survives between invocations, so a
// run can stop at any stage boundary and be resumed by a later signal.
type Runner struct {
	Repo       analyses.Repo
	Docs       documents.Repo
	Store      object.ObjectStore
	Engine     *extraction.Engine
	Splitter   *chunks.Splitter
	Index      *chunks.Index
	Classifier *domains.Classifier
	Analyzer   *review.Analyzer

	locks *lockTable
}

// NewRunner wires the pipeline stages together.
func NewRunner(repo analyses.Repo, docs documents.Repo, store object.ObjectStore, engine *extraction.Engine, splitter *chunks.Splitter, index *chunks.Index, classifier *domains.Classifier, analyzer *review.Analyzer) *Runner {
	return &Runner{
		Repo:       repo,
		Docs:       docs,
		Store:      store,
		Engine:     engine,
		Splitter:   splitter,
		Index:      index,
		Classifier: classifier,
		Analyzer:   analyzer,
		locks:      newLockTable(),
	}
}

// Run advances the analysis until it pauses, finishes, or fails. Running an
// already-terminal or paused analysis is a no-op, which makes duplicate queue
// deliveries safe.
func (r *Runner) Run(ctx context.Context, analysisID string) error {
	release := r.locks.acquire(analysisID)
	defer release()

	state := &runState{}
	for {
		analysis, err := r.Repo.GetByID(ctx, analysisID)
		if err != nil {
			return fmt.Errorf("load analysis %s: %w", analysisID, err)
		}
		if analysis.CurrentStep.Terminal() {
			return nil
		}
		if analysis.CancelRequested {
			return r.finishCancelled(ctx, analysis)
		}
		if analysis.CurrentStep == analyses.StepAwaitingIntent {
			return nil
		}

		stageStart := time.Now()
		next, err := r.executeStep(ctx, &analysis, state)
		metrics.ObserveStageDurationMs(float64(time.Since(stageStart).Milliseconds()))
		if err != nil {
			return r.failAnalysis(ctx, analysis, err)
		}

		analysis.CurrentStep = next
		if next == analyses.StepComplete {
			now := time.Now().UTC()
			analysis.CompletedAt = &now
		}
		if err := r.Repo.Save(ctx, analysis); err != nil {
			return fmt.Errorf("save analysis %s: %w", analysisID, err)
		}
		telemetry.Info("pipeline step complete", map[string]any{
			"analysis_id": analysis.ID,
			"step":        string(next),
		})
		if next == analyses.StepComplete {
			metrics.IncPipelineCompleted()
			return nil
		}
	}
}

// runState caches data between stages of a single invocation so the common
// uninterrupted path does not re-read extracted text from the store.
type runState struct {
	fullText string
}

func (r *Runner) executeStep(ctx context.Context, analysis *analyses.Analysis, state *runState) (analyses.Step, error) {
	switch analysis.CurrentStep {
	case analyses.StepPending:
		metrics.IncPipelineStarted()
		return analyses.StepIngesting, nil
	case analyses.StepIngesting:
		return r.ingest(ctx, analysis, state)
	case analyses.StepIndexing:
		return r.index(ctx, analysis)
	case analyses.StepDetecting:
		return r.detect(ctx, analysis, state)
	case analyses.StepAnalyzing:
		return r.analyze(ctx, analysis, state)
	case analyses.StepScoring:
		return r.score(ctx, analysis, state)
	case analyses.StepPersisting:
		return analyses.StepComplete, nil
	default:
		return "", fmt.Errorf("no handler for step %q", analysis.CurrentStep)
	}
}

func (r *Runner) finishCancelled(ctx context.Context, analysis analyses.Analysis) error {
	analysis.CurrentStep = analyses.StepCancelled
	if err := r.Repo.Save(ctx, analysis); err != nil {
		return fmt.Errorf("save cancelled analysis %s: %w", analysis.ID, err)
	}
	metrics.IncPipelineCancelled()
	telemetry.Info("pipeline cancelled", map[string]any{"analysis_id": analysis.ID})
	return nil
}

// failAnalysis records the failure with a classified error code. Only the
// runner moves an analysis into the error state.
func (r *Runner) failAnalysis(ctx context.Context, analysis analyses.Analysis, cause error) error {
	code := classifyFailure(cause)
	analysis.CurrentStep = analyses.StepError
	analysis.ErrorMessage = fmt.Sprintf("%s: %v", code, cause)
	if err := r.Repo.Save(ctx, analysis); err != nil {
		telemetry.Error("save failed analysis", map[string]any{
			"analysis_id": analysis.ID,
			"error":       err.Error(),
		})
	}
	metrics.IncPipelineFailed()
	telemetry.Error("pipeline failed", map[string]any{
		"analysis_id": analysis.ID,
		"code":        code,
		"error":       cause.Error(),
	})
	return cause
}

func classifyFailure(err error) string {
	var extractionErr *extraction.ExtractionError
	switch {
	case errors.As(err, &extractionErr):
		return analyses.ErrorCodeExtraction
	case llm.IsSchemaError(err):
		return analyses.ErrorCodeLLMSchemaMismatch
	case errors.Is(err, context.DeadlineExceeded):
		return analyses.ErrorCodeLLMTimeout
	default:
		return analyses.ErrorCodeInternal
	}
}
