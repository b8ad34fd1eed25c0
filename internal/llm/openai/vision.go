package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"clarify-backend/internal/llm"
)

// VisionReader reads page images with a multimodal model. Used when the text
// layer of a page is missing or the page shows handwriting, charts or
// degradation.
type VisionReader struct {
	client *Client
	model  string
}

// NewVisionReader wraps an existing client with a vision model.
func NewVisionReader(client *Client, model string) *VisionReader {
	return &VisionReader{client: client, model: model}
}

var visionSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"properties": map[string]any{
		"text":       map[string]any{"type": "string"},
		"confidence": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
		"warnings": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
	},
	"required": []string{"text", "confidence"},
}

const visionSystemPrompt = `You transcribe document page images for contract review.
Transcribe ALL visible text exactly as written, preserving reading order.
Describe tables and charts in plain text where transcription is impossible.
Report a confidence between 0 and 1 for the transcription, and list warnings
for any illegible or ambiguous regions. Respond with JSON only.`

// ReadPage transcribes a rendered PNG page.
func (v *VisionReader) ReadPage(ctx context.Context, pngData []byte, pageNumber int) (llm.VisionResult, error) {
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngData)

	messages := []chatMessage{
		{Role: "system", Content: visionSystemPrompt},
		{Role: "user", Content: []map[string]any{
			{"type": "text", "text": fmt.Sprintf("Transcribe page %d of this document.", pageNumber)},
			{"type": "image_url", "image_url": map[string]any{"url": dataURL}},
		}},
		{Role: "system", Content: "Return ONLY JSON matching this schema:\n" + mustJSON(visionSchema)},
	}

	raw, err := v.client.chatOnce(ctx, v.model, messages)
	if err != nil {
		return llm.VisionResult{}, err
	}

	content := stripCodeFence(raw)
	if err := llm.ValidateAgainstSchema(visionSchema, content); err != nil {
		return llm.VisionResult{}, &llm.SchemaError{
			SchemaName: "page_transcription",
			Raw:        content,
			Cause:      err,
		}
	}

	var out struct {
		Text       string   `json:"text"`
		Confidence float64  `json:"confidence"`
		Warnings   []string `json:"warnings"`
	}
	if err := json.Unmarshal(content, &out); err != nil {
		return llm.VisionResult{}, fmt.Errorf("decode vision result: %w", err)
	}
	return llm.VisionResult{
		Text:       out.Text,
		Confidence: out.Confidence,
		Warnings:   out.Warnings,
	}, nil
}

var _ llm.VisionReader = (*VisionReader)(nil)
