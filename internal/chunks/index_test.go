package chunks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
)

type fakeEmbedder struct {
	dim      int
	failWhen func(texts []string) bool
}

func (f fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.failWhen != nil && f.failWhen(texts) {
		return nil, errors.New("embedding service unavailable")
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, f.dim)
		for j := range vec {
			vec[j] = float32(len(text)%7) + float32(j)
		}
		out[i] = vec
	}
	return out, nil
}

func (f fakeEmbedder) Dimensions() int { return f.dim }

func makeChunks(analysisID string, n int) []Chunk {
	out := make([]Chunk, n)
	for i := range out {
		out[i] = Chunk{
			ID:           fmt.Sprintf("c%d", i),
			AnalysisID:   analysisID,
			DocumentName: "lease.pdf",
			PageNumber:   1 + i/10,
			ChunkIndex:   i,
			Content:      fmt.Sprintf("chunk %d content", i),
		}
	}
	return out
}

func TestIndexChunksPersistsEmbeddings(t *testing.T) {
	repo := NewMemoryRepo()
	idx := NewIndex(repo, fakeEmbedder{dim: 4}, 10, 0)

	if err := idx.IndexChunks(context.Background(), makeChunks("a1", 25)); err != nil {
		t.Fatalf("IndexChunks() error = %v", err)
	}

	stored, err := repo.ListEmbedded(context.Background(), "a1")
	if err != nil {
		t.Fatalf("ListEmbedded() error = %v", err)
	}
	if len(stored) != 25 {
		t.Fatalf("stored = %d, want 25", len(stored))
	}
	for _, c := range stored {
		if len(c.Embedding) != 4 {
			t.Fatalf("chunk %d embedding dim = %d", c.ChunkIndex, len(c.Embedding))
		}
	}
}

func TestIndexChunksBatchFailureKeepsPartialProgress(t *testing.T) {
	repo := NewMemoryRepo()
	embedder := fakeEmbedder{
		dim: 4,
		failWhen: func(texts []string) bool {
			// last batch carries chunks 20..24
			return strings.Contains(texts[0], "chunk 20")
		},
	}
	idx := NewIndex(repo, embedder, 10, 0)

	err := idx.IndexChunks(context.Background(), makeChunks("a1", 25))
	var batchErr *BatchError
	if !errors.As(err, &batchErr) {
		t.Fatalf("IndexChunks() error = %v, want BatchError", err)
	}
	if len(batchErr.Batches) != 1 || batchErr.Batches[0] != 2 {
		t.Fatalf("Batches = %v, want [2]", batchErr.Batches)
	}

	stored, _ := repo.ListEmbedded(context.Background(), "a1")
	if len(stored) != 20 {
		t.Fatalf("embedded = %d, want the 20 chunks from healthy batches", len(stored))
	}
	for _, c := range stored {
		if c.ChunkIndex >= 20 {
			t.Fatalf("chunk %d from failed batch served retrieval", c.ChunkIndex)
		}
	}
	// The failed batch's chunks stay on record without embeddings.
	if total := len(repo.byAnalysis["a1"]); total != 25 {
		t.Fatalf("persisted = %d, want all 25 chunks retained", total)
	}
}

func TestIndexChunksRetriesTransientBatchFailure(t *testing.T) {
	repo := NewMemoryRepo()
	var failures atomic.Int32
	embedder := fakeEmbedder{
		dim: 4,
		failWhen: func(texts []string) bool {
			if strings.Contains(texts[0], "chunk 20") && failures.CompareAndSwap(0, 1) {
				return true
			}
			return false
		},
	}
	idx := NewIndex(repo, embedder, 10, 0)

	if err := idx.IndexChunks(context.Background(), makeChunks("a1", 25)); err != nil {
		t.Fatalf("IndexChunks() error = %v, want retry to recover", err)
	}
	stored, _ := repo.ListEmbedded(context.Background(), "a1")
	if len(stored) != 25 {
		t.Fatalf("embedded = %d, want all 25 after retry", len(stored))
	}
}

func TestIndexChunksReportsAllFailedBatches(t *testing.T) {
	repo := NewMemoryRepo()
	embedder := fakeEmbedder{
		dim: 4,
		failWhen: func(texts []string) bool {
			return strings.Contains(texts[0], "chunk 0 ") || strings.Contains(texts[0], "chunk 20")
		},
	}
	idx := NewIndex(repo, embedder, 10, 0)

	err := idx.IndexChunks(context.Background(), makeChunks("a1", 25))
	var batchErr *BatchError
	if !errors.As(err, &batchErr) {
		t.Fatalf("IndexChunks() error = %v, want BatchError", err)
	}
	if len(batchErr.Batches) != 2 || batchErr.Batches[0] != 0 || batchErr.Batches[1] != 2 {
		t.Fatalf("Batches = %v, want [0 2]", batchErr.Batches)
	}
	stored, _ := repo.ListEmbedded(context.Background(), "a1")
	if len(stored) != 10 {
		t.Fatalf("embedded = %d, want the 10 chunks from the healthy batch", len(stored))
	}
}

func TestSearchScopedToAnalysis(t *testing.T) {
	repo := NewMemoryRepo()
	same := []float32{1, 0, 0, 0}
	seed := func(analysisID string, n int) {
		items := makeChunks(analysisID, n)
		for i := range items {
			items[i].Embedding = same
		}
		if err := repo.Insert(context.Background(), items); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	seed("a1", 5)
	seed("a2", 5)

	idx := NewIndex(repo, fakeEmbedder{dim: 4}, 10, 0)
	results, err := idx.Search(context.Background(), "a1", "security deposit", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 5 {
		t.Fatalf("results = %d, want 5", len(results))
	}
	for _, r := range results {
		if r.Chunk.AnalysisID != "a1" {
			t.Fatalf("cross-analysis leak: got chunk from %s", r.Chunk.AnalysisID)
		}
	}
}

func TestSearchTiesBreakByChunkIndex(t *testing.T) {
	repo := NewMemoryRepo()
	items := makeChunks("a1", 6)
	for i := range items {
		// identical embeddings force a full tie on similarity
		items[i].Embedding = []float32{0.5, 0.5, 0.5, 0.5}
	}
	if err := repo.Insert(context.Background(), items); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	idx := NewIndex(repo, fakeEmbedder{dim: 4}, 10, 0)
	results, err := idx.Search(context.Background(), "a1", "query", 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	for i, r := range results {
		if r.Chunk.ChunkIndex != i {
			t.Fatalf("result %d has chunk index %d, want %d", i, r.Chunk.ChunkIndex, i)
		}
	}
}

func TestSearchEmptyIndexReturnsNothing(t *testing.T) {
	idx := NewIndex(NewMemoryRepo(), fakeEmbedder{dim: 4}, 10, 0)
	results, err := idx.Search(context.Background(), "a1", "anything", 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("results = %d, want 0", len(results))
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{1, 0}
	c := []float32{0, 1}
	if sim := cosineSimilarity(a, b); sim < 0.999 {
		t.Fatalf("identical vectors similarity = %f", sim)
	}
	if sim := cosineSimilarity(a, c); sim > 0.001 {
		t.Fatalf("orthogonal vectors similarity = %f", sim)
	}
	if sim := cosineSimilarity(a, []float32{1}); sim != 0 {
		t.Fatalf("mismatched dims similarity = %f, want 0", sim)
	}
}
