package chunks

import "context"

// Repo defines persistence operations for document chunks.
type Repo interface {
	Insert(ctx context.Context, items []Chunk) error
	ListEmbedded(ctx context.Context, analysisID string) ([]Chunk, error)
	DeleteByAnalysis(ctx context.Context, analysisID string) error
}
