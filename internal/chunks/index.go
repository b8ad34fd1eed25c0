package chunks

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"clarify-backend/internal/llm"
	"clarify-backend/internal/shared/telemetry"
)

// DefaultBatchSize bounds how many chunks go to the embedding service per
// call.
const DefaultBatchSize = 20

const embedConcurrency = 2

// embedAttempts bounds how many times one batch is sent to the embedding
// service before its failure is attributed.
const embedAttempts = 2

// BatchError attributes embedding failures to specific batches. Every other
// batch is already persisted with its embeddings, and the failed batches'
// chunks are persisted without embeddings, so retrying the named batches is
// enough.
type BatchError struct {
	Batches []int
	Cause   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("embedding batches %v failed: %v", e.Batches, e.Cause)
}

func (e *BatchError) Unwrap() error { return e.Cause }

// Index embeds chunks and answers similarity queries scoped to one analysis.
type Index struct {
	repo      Repo
	embedder  llm.Embedder
	batchSize int
	limiter   *rate.Limiter
}

// NewIndex creates an index. ratePerSecond bounds embedding calls; 0 disables
// limiting.
func NewIndex(repo Repo, embedder llm.Embedder, batchSize int, ratePerSecond float64) *Index {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}
	return &Index{
		repo:      repo,
		embedder:  embedder,
		batchSize: batchSize,
		limiter:   rate.NewLimiter(limit, 1),
	}
}

// IndexChunks embeds and persists chunks in bounded batches. Batches are
// independent: a failed batch never rolls back or cancels its siblings, and
// its chunks are still persisted, without embeddings, so they stay visible
// for audit while ListEmbedded keeps them out of retrieval. The returned
// BatchError names every batch that failed after embedAttempts tries.
func (idx *Index) IndexChunks(ctx context.Context, items []Chunk) error {
	if len(items) == 0 {
		return nil
	}

	var (
		mu     sync.Mutex
		failed []int
		cause  error
	)
	// No errgroup.WithContext here: sibling batches must keep running when
	// one fails.
	var g errgroup.Group
	g.SetLimit(embedConcurrency)

	for batchIndex, start := 0, 0; start < len(items); batchIndex, start = batchIndex+1, start+idx.batchSize {
		end := start + idx.batchSize
		if end > len(items) {
			end = len(items)
		}
		batchIndex, batch := batchIndex, items[start:end]
		g.Go(func() error {
			embedErr := idx.embedBatchWithRetry(ctx, batch)
			if embedErr != nil {
				for i := range batch {
					batch[i].Embedding = nil
				}
			}
			insertErr := idx.repo.Insert(ctx, batch)
			err := embedErr
			if err == nil {
				err = insertErr
			}
			if err != nil {
				mu.Lock()
				failed = append(failed, batchIndex)
				if cause == nil {
					cause = err
				}
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failed) == 0 {
		return nil
	}
	sort.Ints(failed)
	return &BatchError{Batches: failed, Cause: cause}
}

func (idx *Index) embedBatchWithRetry(ctx context.Context, batch []Chunk) error {
	var err error
	for attempt := 0; attempt < embedAttempts; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err = idx.embedBatch(ctx, batch); err == nil {
			return nil
		}
	}
	return err
}

func (idx *Index) embedBatch(ctx context.Context, batch []Chunk) error {
	if err := idx.limiter.Wait(ctx); err != nil {
		return err
	}
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Content
	}
	vectors, err := idx.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(batch) {
		return fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(batch))
	}
	for i := range batch {
		batch[i].Embedding = vectors[i]
	}
	return nil
}

// Search returns the k nearest chunks for the query, scoped to analysisID.
// Similarity ties break toward the lower chunk index so retrieval stays
// deterministic.
func (idx *Index) Search(ctx context.Context, analysisID, query string, k int) ([]ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}
	if err := idx.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	queryVec, err := idx.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	candidates, err := idx.repo.ListEmbedded(ctx, analysisID)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		telemetry.Warn("search on empty index", map[string]any{"analysis_id": analysisID})
		return nil, nil
	}

	scored := make([]ScoredChunk, 0, len(candidates))
	for _, c := range candidates {
		scored = append(scored, ScoredChunk{
			Chunk:      c,
			Similarity: cosineSimilarity(queryVec, c.Embedding),
		})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}
		if scored[i].Chunk.DocumentName != scored[j].Chunk.DocumentName {
			return scored[i].Chunk.DocumentName < scored[j].Chunk.DocumentName
		}
		return scored[i].Chunk.ChunkIndex < scored[j].Chunk.ChunkIndex
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
