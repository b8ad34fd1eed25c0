package analyses

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"clarify-backend/internal/chunks"
	"clarify-backend/internal/documents"
	"clarify-backend/internal/domains"
	"clarify-backend/internal/queue"
	"clarify-backend/internal/shared/metrics"
	"clarify-backend/internal/shared/storage/object"
	"clarify-backend/internal/shared/telemetry"
)

const maxDocumentsPerAnalysis = 5

// Service contains business logic for analyses. The heavy pipeline work runs
// out of process; Service only owns submission, the intent pause, and reads.
type Service struct {
	Repo      Repo
	Docs      documents.Repo
	ChunkRepo chunks.Repo
	Store     object.ObjectStore
	Queue     queue.Client
}

// UploadFile is one uploaded document, transport-agnostic.
type UploadFile struct {
	FileName string
	Reader   io.Reader
}

// IntentChoices is what a client needs to render the intent selection screen.
type IntentChoices struct {
	AnalysisID string                 `json:"analysisId"`
	Domain     string                 `json:"domain"`
	Supported  bool                   `json:"supported"`
	Confidence float64                `json:"confidence,omitempty"`
	Intents    []domains.IntentOption `json:"intents,omitempty"`
	// Domains lists the full taxonomy when detection came back unsupported,
	// so the user can pick one manually.
	Domains []string `json:"domains,omitempty"`
}

// Submit stores the uploaded documents, creates a pending analysis and
// enqueues the start signal.
func (s *Service) Submit(ctx context.Context, files []UploadFile, language string) (Analysis, error) {
	if len(files) == 0 {
		return Analysis{}, ErrNoDocuments
	}
	if len(files) > maxDocumentsPerAnalysis {
		return Analysis{}, fmt.Errorf("%w: at most %d documents per analysis", ErrTooManyDocuments, maxDocumentsPerAnalysis)
	}
	for _, f := range files {
		if strings.ToLower(filepath.Ext(f.FileName)) != ".pdf" {
			return Analysis{}, fmt.Errorf("%w: %q, only PDF is accepted", ErrUnsupportedFileType, f.FileName)
		}
	}
	if language == "" {
		language = "en"
	}

	analysisID := uuid.NewString()
	names := make([]string, 0, len(files))
	for position, f := range files {
		storageKey, sizeBytes, mimeType, err := s.Store.Save(ctx, analysisID, f.FileName, f.Reader)
		if err != nil {
			return Analysis{}, fmt.Errorf("store %s: %w", f.FileName, err)
		}
		doc := documents.Document{
			ID:         uuid.NewString(),
			AnalysisID: analysisID,
			FileName:   f.FileName,
			StorageKey: storageKey,
			MimeType:   mimeType,
			SizeBytes:  sizeBytes,
			Position:   position,
			CreatedAt:  time.Now().UTC(),
		}
		if err := s.Docs.Create(ctx, doc); err != nil {
			return Analysis{}, err
		}
		names = append(names, f.FileName)
	}

	analysis := Analysis{
		ID:            analysisID,
		DocumentNames: names,
		Language:      language,
		CurrentStep:   StepPending,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.Repo.Create(ctx, analysis); err != nil {
		return Analysis{}, err
	}

	if err := s.enqueue(ctx, analysisID, queue.SignalStart); err != nil {
		return Analysis{}, err
	}
	metrics.IncAnalysesSubmitted()
	telemetry.Info("analysis submitted", map[string]any{
		"analysis_id": analysisID,
		"documents":   len(files),
	})
	return analysis, nil
}

// Get returns an analysis by ID.
func (s *Service) Get(ctx context.Context, analysisID string) (Analysis, error) {
	if analysisID == "" {
		return Analysis{}, errors.New("analysisID is required")
	}
	return s.Repo.GetByID(ctx, analysisID)
}

// History returns analyses newest-first.
func (s *Service) History(ctx context.Context, limit, offset int) ([]Analysis, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.Repo.List(ctx, limit, offset)
}

// IntentOptions returns the intent choices for an analysis that has reached
// the awaiting_intent pause.
func (s *Service) IntentOptions(ctx context.Context, analysisID string) (IntentChoices, error) {
	analysis, err := s.Repo.GetByID(ctx, analysisID)
	if err != nil {
		return IntentChoices{}, err
	}
	if analysis.CurrentStep != StepAwaitingIntent {
		return IntentChoices{}, ErrNotAwaitingIntent
	}
	choices := IntentChoices{
		AnalysisID: analysis.ID,
		Domain:     analysis.Domain,
		Confidence: analysis.DomainConfidence,
	}
	if domain, ok := domains.Get(analysis.Domain); ok {
		choices.Supported = true
		choices.Intents = domain.Intents
		return choices, nil
	}
	choices.Domains = domains.IDs()
	return choices, nil
}

// SubmitIntent records the user's goal and resumes the paused pipeline.
// For documents detected as unsupported, domainID selects the domain to
// analyze against; for supported detections it is ignored.
func (s *Service) SubmitIntent(ctx context.Context, analysisID, domainID, intentID, customIntent string) (Analysis, error) {
	analysis, err := s.Repo.GetByID(ctx, analysisID)
	if err != nil {
		return Analysis{}, err
	}
	if analysis.CurrentStep != StepAwaitingIntent {
		return Analysis{}, ErrNotAwaitingIntent
	}

	targetDomain := analysis.Domain
	if _, ok := domains.Get(targetDomain); !ok {
		if _, ok := domains.Get(domainID); !ok {
			return Analysis{}, domains.ErrInvalidIntent
		}
		targetDomain = domainID
	}
	resolved, err := domains.ResolveIntent(targetDomain, intentID, customIntent)
	if err != nil {
		return Analysis{}, err
	}

	// Conditional transition: a concurrent intent submission for the same
	// analysis comes back as ErrNotAwaitingIntent instead of overwriting
	// the selection that won.
	if err := s.Repo.BeginAnalysis(ctx, analysisID, targetDomain, resolved.Option.ID, resolved.CustomIntent); err != nil {
		return Analysis{}, err
	}
	analysis.Domain = targetDomain
	analysis.SelectedIntent = resolved.Option.ID
	analysis.CustomIntent = resolved.CustomIntent
	analysis.CurrentStep = StepAnalyzing

	if err := s.enqueue(ctx, analysisID, queue.SignalResume); err != nil {
		return Analysis{}, err
	}
	telemetry.Info("intent submitted", map[string]any{
		"analysis_id": analysisID,
		"domain":      targetDomain,
		"intent":      resolved.Option.ID,
	})
	return analysis, nil
}

// Result returns the analysis and whether the full result is ready.
func (s *Service) Result(ctx context.Context, analysisID string) (Analysis, bool, error) {
	analysis, err := s.Repo.GetByID(ctx, analysisID)
	if err != nil {
		return Analysis{}, false, err
	}
	return analysis, analysis.CurrentStep == StepComplete, nil
}

// Finding returns a single red flag by its ID.
func (s *Service) Finding(ctx context.Context, analysisID, flagID string) (RedFlag, error) {
	analysis, err := s.Repo.GetByID(ctx, analysisID)
	if err != nil {
		return RedFlag{}, err
	}
	for _, flag := range analysis.RedFlags {
		if flag.ID == flagID {
			return flag, nil
		}
	}
	return RedFlag{}, ErrNotFound
}

// Cancel requests cancellation. A run paused at awaiting_intent has no worker
// to observe the flag, so it moves to cancelled immediately.
func (s *Service) Cancel(ctx context.Context, analysisID string) (Analysis, error) {
	analysis, err := s.Repo.GetByID(ctx, analysisID)
	if err != nil {
		return Analysis{}, err
	}
	if analysis.CurrentStep.Terminal() {
		return Analysis{}, ErrAlreadyTerminal
	}
	if err := s.Repo.RequestCancel(ctx, analysisID); err != nil {
		return Analysis{}, err
	}
	if analysis.CurrentStep == StepAwaitingIntent || analysis.CurrentStep == StepPending {
		analysis.CurrentStep = StepCancelled
		if err := s.Repo.Save(ctx, analysis); err != nil {
			return Analysis{}, err
		}
	}
	telemetry.Info("analysis cancel requested", map[string]any{"analysis_id": analysisID})
	return s.Repo.GetByID(ctx, analysisID)
}

// Delete removes an analysis and everything derived from it.
func (s *Service) Delete(ctx context.Context, analysisID string) error {
	if _, err := s.Repo.GetByID(ctx, analysisID); err != nil {
		return err
	}
	if err := s.ChunkRepo.DeleteByAnalysis(ctx, analysisID); err != nil {
		return err
	}
	if err := s.Docs.DeleteByAnalysis(ctx, analysisID); err != nil {
		return err
	}
	return s.Repo.Delete(ctx, analysisID)
}

func (s *Service) enqueue(ctx context.Context, analysisID, signal string) error {
	if s.Queue == nil {
		return ErrJobQueueNotConfigured
	}
	msg := queue.Message{
		AnalysisID: analysisID,
		Signal:     signal,
		RequestID:  uuid.NewString(),
		EnqueuedAt: time.Now().UTC().Format(time.RFC3339),
		Version:    1,
	}
	if err := s.Queue.Send(ctx, msg); err != nil {
		return fmt.Errorf("enqueue %s: %w", signal, err)
	}
	return nil
}
