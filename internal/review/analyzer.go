// Package review runs the structured document analysis stage: it composes
// full text, retrieved chunks and the user's intent into one LLM extraction
// and enforces the grounding contract on its findings.
package review

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"clarify-backend/internal/analyses"
	"clarify-backend/internal/chunks"
	"clarify-backend/internal/domains"
	"clarify-backend/internal/llm"
	"clarify-backend/internal/shared/telemetry"
)

// maxFullTextChars bounds the document text included in the prompt; retrieval
// covers what truncation drops.
const maxFullTextChars = 60000

// Output is the analysis stage result.
type Output struct {
	DocumentSummary   string             `json:"document_summary"`
	KeyTerms          []analyses.KeyTerm `json:"key_terms"`
	MainObligations   []string           `json:"main_obligations"`
	RedFlags          []analyses.RedFlag `json:"red_flags"`
	PositiveNotes     []string           `json:"positive_notes"`
	OverallAssessment string             `json:"overall_assessment"`
	Warnings          []string           `json:"-"`
}

// Input carries everything the stage needs.
type Input struct {
	FullText  string
	Domain    string
	Intent    domains.ResolvedIntent
	Retrieved []chunks.ScoredChunk
	Language  string
}

// Analyzer runs the analysis stage.
type Analyzer struct {
	generator     llm.Generator
	model         string
	schemaRetries int
}

// NewAnalyzer builds the stage. schemaRetries is how many times malformed
// structured output is retried with a stricter instruction before escalating.
func NewAnalyzer(generator llm.Generator, model string, schemaRetries int) *Analyzer {
	if schemaRetries < 0 {
		schemaRetries = 0
	}
	return &Analyzer{generator: generator, model: model, schemaRetries: schemaRetries}
}

// Analyze produces the structured analysis. Malformed model output is retried
// with a stricter instruction up to the configured count; ungrounded red
// flags survive one strict retry before being dropped with a warning. A clean
// document with no findings is a valid outcome.
func (a *Analyzer) Analyze(ctx context.Context, input Input) (Output, error) {
	prompt := a.buildPrompt(input, "")

	raw, err := a.generateWithSchemaRetries(ctx, prompt)
	if err != nil {
		return Output{}, err
	}

	out, err := decodeOutput(raw)
	if err != nil {
		return Output{}, err
	}

	ungrounded := ungroundedFlags(out.RedFlags, input)
	if len(ungrounded) > 0 {
		telemetry.Warn("ungrounded red flags, retrying with strict instruction", map[string]any{
			"count": len(ungrounded),
		})
		strict := a.buildPrompt(input, strictGroundingInstruction(ungrounded))
		if raw, err = a.generateWithSchemaRetries(ctx, strict); err == nil {
			if retried, decodeErr := decodeOutput(raw); decodeErr == nil {
				out = retried
			}
		}
		out.RedFlags, out.Warnings = dropUngrounded(out.RedFlags, input, out.Warnings)
	}

	normalizeFlagIDs(out.RedFlags)
	return out, nil
}

func (a *Analyzer) generateWithSchemaRetries(ctx context.Context, prompt string) (json.RawMessage, error) {
	input := llm.GenerateInput{
		Model:      a.model,
		System:     analysisSystemPrompt,
		Prompt:     prompt,
		SchemaName: "document_analysis",
		Schema:     analysisSchema(),
	}
	raw, err := a.generator.Generate(ctx, input)
	for attempt := 0; err != nil && llm.IsSchemaError(err) && attempt < a.schemaRetries; attempt++ {
		telemetry.Warn("analysis output malformed, retrying", map[string]any{"attempt": attempt + 1})
		strict := input
		strict.Prompt = prompt + "\n\nYour previous response did not match the required JSON schema. Respond with EXACTLY the schema shape, no extra fields, no prose."
		raw, err = a.generator.Generate(ctx, strict)
	}
	if err != nil {
		return nil, fmt.Errorf("analysis generation: %w", err)
	}
	return raw, nil
}

func decodeOutput(raw json.RawMessage) (Output, error) {
	var out Output
	if err := json.Unmarshal(raw, &out); err != nil {
		return Output{}, fmt.Errorf("decode analysis output: %w", err)
	}
	return out, nil
}

// ungroundedFlags returns the flags whose quotes cannot be located in the
// document or the retrieved chunks.
func ungroundedFlags(flags []analyses.RedFlag, input Input) []analyses.RedFlag {
	var out []analyses.RedFlag
	for _, f := range flags {
		if !isGrounded(f.SourceText, input) {
			out = append(out, f)
		}
	}
	return out
}

func dropUngrounded(flags []analyses.RedFlag, input Input, warnings []string) ([]analyses.RedFlag, []string) {
	kept := flags[:0]
	for _, f := range flags {
		if isGrounded(f.SourceText, input) {
			kept = append(kept, f)
			continue
		}
		warnings = append(warnings, fmt.Sprintf("dropped ungrounded finding: %s", f.Title))
	}
	return kept, warnings
}

// isGrounded checks that the quote is a verbatim span of the source,
// tolerating whitespace differences only.
func isGrounded(quote string, input Input) bool {
	normalized := normalizeSpace(quote)
	if normalized == "" {
		return false
	}
	if strings.Contains(normalizeSpace(input.FullText), normalized) {
		return true
	}
	for _, c := range input.Retrieved {
		if strings.Contains(normalizeSpace(c.Chunk.Content), normalized) {
			return true
		}
	}
	return false
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func normalizeFlagIDs(flags []analyses.RedFlag) {
	for i := range flags {
		if strings.TrimSpace(flags[i].ID) == "" {
			flags[i].ID = fmt.Sprintf("rf_%d", i+1)
		}
	}
}

func strictGroundingInstruction(ungrounded []analyses.RedFlag) string {
	titles := make([]string, 0, len(ungrounded))
	for _, f := range ungrounded {
		titles = append(titles, f.Title)
	}
	return fmt.Sprintf(
		"IMPORTANT: these findings cited text that does not appear in the document: %s. "+
			"Every source_text MUST be copied character-for-character from the document. "+
			"Remove any finding you cannot quote exactly.",
		strings.Join(titles, "; "))
}
