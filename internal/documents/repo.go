package documents

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// Repo defines persistence operations for analysis documents.
type Repo interface {
	Create(ctx context.Context, doc Document) error
	ListByAnalysis(ctx context.Context, analysisID string) ([]Document, error)
	SetExtracted(ctx context.Context, documentID string, pageCount int, extractedText string, pages []PageInfo) error
	DeleteByAnalysis(ctx context.Context, analysisID string) error
}
