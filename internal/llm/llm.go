package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Generator abstracts chat-style LLM providers that return structured JSON.
type Generator interface {
	Generate(ctx context.Context, input GenerateInput) (json.RawMessage, error)
}

// GenerateInput captures a single structured-output request.
type GenerateInput struct {
	Model      string
	System     string
	Prompt     string
	SchemaName string
	// Schema constrains the output; the raw response is validated against it
	// before being returned.
	Schema map[string]any
}

// Embedder turns text into dense vectors for similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// VisionReader extracts text from a rendered page image.
type VisionReader interface {
	ReadPage(ctx context.Context, pngData []byte, pageNumber int) (VisionResult, error)
}

// VisionResult is the outcome of reading one page image.
type VisionResult struct {
	Text       string
	Confidence float64
	Warnings   []string
}

// SchemaError reports model output that failed schema validation. It carries
// the raw output so callers can retry with a repair instruction.
type SchemaError struct {
	SchemaName string
	Raw        json.RawMessage
	Cause      error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("llm output does not match schema %s: %v", e.SchemaName, e.Cause)
}

func (e *SchemaError) Unwrap() error { return e.Cause }

// IsSchemaError reports whether err is a schema-validation failure as opposed
// to a transport or provider error.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

// ErrNotConfigured is returned when no provider credentials are available.
var ErrNotConfigured = errors.New("LLM provider not configured")
