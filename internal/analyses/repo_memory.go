package analyses

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repo for local development and tests.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]Analysis
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]Analysis)}
}

func (r *MemoryRepo) Create(ctx context.Context, analysis Analysis) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if analysis.CreatedAt.IsZero() {
		analysis.CreatedAt = time.Now().UTC()
	}
	analysis.UpdatedAt = analysis.CreatedAt
	r.byID[analysis.ID] = cloneAnalysis(analysis)
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, analysisID string) (Analysis, error) {
	if err := ctx.Err(); err != nil {
		return Analysis{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	analysis, ok := r.byID[analysisID]
	if !ok {
		return Analysis{}, ErrNotFound
	}
	return cloneAnalysis(analysis), nil
}

func (r *MemoryRepo) Save(ctx context.Context, analysis Analysis) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.byID[analysis.ID]
	if !ok {
		return ErrNotFound
	}
	analysis.CreatedAt = existing.CreatedAt
	analysis.CancelRequested = existing.CancelRequested
	analysis.UpdatedAt = time.Now().UTC()
	r.byID[analysis.ID] = cloneAnalysis(analysis)
	return nil
}

func (r *MemoryRepo) BeginAnalysis(ctx context.Context, analysisID, domain, intent, customIntent string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	analysis, ok := r.byID[analysisID]
	if !ok {
		return ErrNotFound
	}
	if analysis.CurrentStep != StepAwaitingIntent {
		return ErrNotAwaitingIntent
	}
	analysis.Domain = domain
	analysis.SelectedIntent = intent
	analysis.CustomIntent = customIntent
	analysis.CurrentStep = StepAnalyzing
	analysis.UpdatedAt = time.Now().UTC()
	r.byID[analysisID] = analysis
	return nil
}

func (r *MemoryRepo) List(ctx context.Context, limit, offset int) ([]Analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]Analysis, 0, len(r.byID))
	for _, analysis := range r.byID {
		all = append(all, analysis)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	out := make([]Analysis, len(all))
	for i, analysis := range all {
		out[i] = cloneAnalysis(analysis)
	}
	return out, nil
}

func (r *MemoryRepo) Delete(ctx context.Context, analysisID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[analysisID]; !ok {
		return ErrNotFound
	}
	delete(r.byID, analysisID)
	return nil
}

func (r *MemoryRepo) RequestCancel(ctx context.Context, analysisID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	analysis, ok := r.byID[analysisID]
	if !ok {
		return ErrNotFound
	}
	analysis.CancelRequested = true
	analysis.UpdatedAt = time.Now().UTC()
	r.byID[analysisID] = analysis
	return nil
}

func cloneAnalysis(a Analysis) Analysis {
	out := a
	out.DocumentNames = append([]string(nil), a.DocumentNames...)
	out.KeyTerms = append([]KeyTerm(nil), a.KeyTerms...)
	out.MainObligations = append([]string(nil), a.MainObligations...)
	out.RedFlags = append([]RedFlag(nil), a.RedFlags...)
	out.PositiveNotes = append([]string(nil), a.PositiveNotes...)
	out.Warnings = append([]string(nil), a.Warnings...)
	if a.OverallScore != nil {
		score := *a.OverallScore
		out.OverallScore = &score
	}
	if a.ScoreComponents != nil {
		components := *a.ScoreComponents
		out.ScoreComponents = &components
	}
	if a.CompletedAt != nil {
		t := *a.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

var _ Repo = (*MemoryRepo)(nil)
