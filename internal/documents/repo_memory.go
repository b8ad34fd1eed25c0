package documents

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo stores documents in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu         sync.RWMutex
	byAnalysis map[string][]Document
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byAnalysis: make(map[string][]Document)}
}

// Create stores the document.
func (r *MemoryRepo) Create(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byAnalysis[doc.AnalysisID] = append(r.byAnalysis[doc.AnalysisID], doc)
	return nil
}

// ListByAnalysis returns the analysis's documents in upload order.
func (r *MemoryRepo) ListByAnalysis(ctx context.Context, analysisID string) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	docs := append([]Document(nil), r.byAnalysis[analysisID]...)
	sort.Slice(docs, func(i, j int) bool { return docs[i].Position < docs[j].Position })
	return docs, nil
}

// SetExtracted stores the ingestion stage's output for a document.
func (r *MemoryRepo) SetExtracted(ctx context.Context, documentID string, pageCount int, extractedText string, pages []PageInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for analysisID, docs := range r.byAnalysis {
		for i := range docs {
			if docs[i].ID == documentID {
				docs[i].PageCount = pageCount
				docs[i].ExtractedText = extractedText
				docs[i].Pages = append([]PageInfo(nil), pages...)
				r.byAnalysis[analysisID] = docs
				return nil
			}
		}
	}
	return ErrNotFound
}

// DeleteByAnalysis removes all documents for an analysis.
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
