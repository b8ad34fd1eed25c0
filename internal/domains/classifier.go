package domains

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"clarify-backend/internal/llm"
	"clarify-backend/internal/shared/util"
)

// Detection is the outcome of domain classification.
type Detection struct {
	Domain     string  `json:"domain"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Supported reports whether the detected domain is in the taxonomy.
func (d Detection) Supported() bool {
	_, ok := Taxonomy[d.Domain]
	return ok
}

// maxDetectionChars caps how much document text goes into the classifier
// prompt.
const maxDetectionChars = 12000

// Classifier detects a document's domain with an LLM against the closed
// taxonomy.
type Classifier struct {
	generator llm.Generator
	model     string
}

// NewClassifier builds a domain classifier.
func NewClassifier(generator llm.Generator, model string) *Classifier {
	return &Classifier{generator: generator, model: model}
}

func detectionSchema() map[string]any {
	allowed := append(IDs(), Unsupported)
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"domain":     map[string]any{"type": "string", "enum": allowed},
			"confidence": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
			"reasoning":  map[string]any{"type": "string"},
		},
		"required": []string{"domain", "confidence", "reasoning"},
	}
}

const detectionSystemPrompt = `You classify legal and contractual documents into a fixed set of domains.
If the document does NOT fit any allowed domain, respond with "unsupported".
Respond with JSON only.`

// Detect classifies the document text. An out-of-taxonomy document returns
// Detection{Domain: "unsupported"}, not an error.
func (c *Classifier) Detect(ctx context.Context, documentText string) (Detection, error) {
	if strings.TrimSpace(documentText) == "" {
		return Detection{}, fmt.Errorf("document text is empty")
	}
	text := util.TruncateUTF8(documentText, maxDetectionChars)

	var b strings.Builder
	b.WriteString("Analyze the following document text and determine its domain.\n\nDOCUMENT TEXT:\n")
	b.WriteString(text)
	b.WriteString("\n\nALLOWED DOMAINS:\n")
	for _, id := range IDs() {
		b.WriteString(fmt.Sprintf("- %s: %s\n", id, Taxonomy[id].Description))
	}
	b.WriteString("\nIf the document does NOT fit any of these domains, use \"unsupported\".")

	raw, err := c.generator.Generate(ctx, llm.GenerateInput{
		Model:      c.model,
		System:     detectionSystemPrompt,
		Prompt:     b.String(),
		SchemaName: "domain_detection",
		Schema:     detectionSchema(),
	})
	if err != nil {
		return Detection{}, fmt.Errorf("domain detection: %w", err)
	}

	var detection Detection
	if err := json.Unmarshal(raw, &detection); err != nil {
		return Detection{}, fmt.Errorf("decode detection: %w", err)
	}
	return detection, nil
}
