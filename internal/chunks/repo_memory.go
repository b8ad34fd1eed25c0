package chunks

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo stores chunks in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu         sync.RWMutex
	byAnalysis map[string][]Chunk
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byAnalysis: make(map[string][]Chunk)}
}

// Insert stores a batch of chunks, replacing any existing chunk with the same
// document name and index.
func (r *MemoryRepo) Insert(ctx context.Context, items []Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range items {
		existing := r.byAnalysis[c.AnalysisID]
		replaced := false
		for i, old := range existing {
			if old.DocumentName == c.DocumentName && old.ChunkIndex == c.ChunkIndex {
				existing[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, c)
		}
		r.byAnalysis[c.AnalysisID] = existing
	}
	return nil
}

// ListEmbedded returns embedded chunks for one analysis in stable order.
func (r *MemoryRepo) ListEmbedded(ctx context.Context, analysisID string) ([]Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Chunk
	for _, c := range r.byAnalysis[analysisID] {
		if len(c.Embedding) > 0 {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DocumentName != out[j].DocumentName {
			return out[i].DocumentName < out[j].DocumentName
		}
		return out[i].ChunkIndex < out[j].ChunkIndex
	})
	return out, nil
}

// DeleteByAnalysis removes all chunks for an analysis.
func (r *MemoryRepo) DeleteByAnalysis(ctx context.Context, analysisID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byAnalysis, analysisID)
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
