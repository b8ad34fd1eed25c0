package chunks

import "time"

// Chunk is one indexed span of document text.
type Chunk struct {
	ID           string
	AnalysisID   string
	DocumentName string
	PageNumber   int
	ChunkIndex   int
	Content      string
	ContentType  string
	Confidence   float64
	Embedding    []float32
	CreatedAt    time.Time
}

// ScoredChunk pairs a chunk with its similarity to a query.
type ScoredChunk struct {
	Chunk      Chunk
	Similarity float64
}
