package review

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"clarify-backend/internal/chunks"
	"clarify-backend/internal/domains"
	"clarify-backend/internal/llm"
)

type scriptedGenerator struct {
	responses []json.RawMessage
	errs      []error
	calls     int
	prompts   []string
}

func (s *scriptedGenerator) Generate(ctx context.Context, input llm.GenerateInput) (json.RawMessage, error) {
	idx := s.calls
	s.calls++
	s.prompts = append(s.prompts, input.Prompt)
	if idx < len(s.errs) && s.errs[idx] != nil {
		return nil, s.errs[idx]
	}
	if idx < len(s.responses) {
		return s.responses[idx], nil
	}
	return s.responses[len(s.responses)-1], nil
}

const leaseText = "The tenant shall forfeit the entire security deposit upon any breach of this agreement. Rent is due on the first of each month."

func testInput() Input {
	intent, _ := domains.ResolveIntent("rental", "tenant", "")
	return Input{
		FullText: leaseText,
		Domain:   "rental",
		Intent:   intent,
		Retrieved: []chunks.ScoredChunk{
			{Chunk: chunks.Chunk{ID: "c1", DocumentName: "lease.pdf", PageNumber: 1, ChunkIndex: 0, Content: leaseText}, Similarity: 0.9},
		},
	}
}

func groundedResponse() json.RawMessage {
	return json.RawMessage(`{
		"document_summary": "A rental lease.",
		"key_terms": [{"term": "Security deposit", "explanation": "Money held by the landlord."}],
		"main_obligations": ["Pay rent on the first of each month"],
		"red_flags": [{
			"title": "Full deposit forfeiture on any breach",
			"severity": "high",
			"summary": "Any breach costs the whole deposit.",
			"source_text": "The tenant shall forfeit the entire security deposit upon any breach",
			"recommendation": "Negotiate proportional deductions."
		}],
		"positive_notes": ["Clear rent due date"],
		"overall_assessment": "One-sided deposit clause."
	}`)
}

func TestAnalyzeGroundedFlagsKept(t *testing.T) {
	gen := &scriptedGenerator{responses: []json.RawMessage{groundedResponse()}}
	analyzer := NewAnalyzer(gen, "test-model", 1)

	out, err := analyzer.Analyze(context.Background(), testInput())
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(out.RedFlags) != 1 {
		t.Fatalf("red flags = %d, want 1", len(out.RedFlags))
	}
	if out.RedFlags[0].ID == "" {
		t.Fatal("red flag missing generated id")
	}
	if gen.calls != 1 {
		t.Fatalf("generator calls = %d, want 1", gen.calls)
	}
}

func TestAnalyzeUngroundedFlagDroppedAfterRetry(t *testing.T) {
	fabricated := json.RawMessage(`{
		"document_summary": "A rental lease.",
		"key_terms": [],
		"main_obligations": [],
		"red_flags": [{
			"title": "Hidden arbitration clause",
			"severity": "critical",
			"summary": "Forces arbitration.",
			"source_text": "All disputes shall be settled by binding arbitration in a distant forum"
		}],
		"positive_notes": [],
		"overall_assessment": "Concerning."
	}`)
	gen := &scriptedGenerator{responses: []json.RawMessage{fabricated, fabricated}}
	analyzer := NewAnalyzer(gen, "test-model", 1)

	out, err := analyzer.Analyze(context.Background(), testInput())
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(out.RedFlags) != 0 {
		t.Fatalf("ungrounded flag survived: %+v", out.RedFlags)
	}
	if len(out.Warnings) == 0 {
		t.Fatal("expected a dropped-finding warning")
	}
	if gen.calls != 2 {
		t.Fatalf("generator calls = %d, want 2 (strict retry)", gen.calls)
	}
	if !strings.Contains(gen.prompts[1], "character-for-character") {
		t.Fatal("strict retry prompt missing grounding instruction")
	}
}

func TestAnalyzeSchemaErrorRetriedOnce(t *testing.T) {
	schemaErr := &llm.SchemaError{SchemaName: "document_analysis", Cause: errors.New("missing document_summary")}
	gen := &scriptedGenerator{
		errs:      []error{schemaErr, nil},
		responses: []json.RawMessage{nil, groundedResponse()},
	}
	analyzer := NewAnalyzer(gen, "test-model", 1)

	out, err := analyzer.Analyze(context.Background(), testInput())
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if out.DocumentSummary == "" {
		t.Fatal("summary missing after retry")
	}
	if gen.calls != 2 {
		t.Fatalf("generator calls = %d, want 2", gen.calls)
	}
}

func TestAnalyzeSchemaErrorEscalatesAfterRetries(t *testing.T) {
	schemaErr := &llm.SchemaError{SchemaName: "document_analysis", Cause: errors.New("bad shape")}
	gen := &scriptedGenerator{errs: []error{schemaErr, schemaErr}, responses: []json.RawMessage{nil, nil}}
	analyzer := NewAnalyzer(gen, "test-model", 1)

	_, err := analyzer.Analyze(context.Background(), testInput())
	if !llm.IsSchemaError(err) {
		t.Fatalf("Analyze() error = %v, want schema error", err)
	}
	if gen.calls != 2 {
		t.Fatalf("generator calls = %d, want 2", gen.calls)
	}
}

func TestAnalyzeCleanDocumentIsValid(t *testing.T) {
	clean := json.RawMessage(`{
		"document_summary": "A fair, standard lease.",
		"key_terms": [],
		"main_obligations": ["Pay rent on time"],
		"red_flags": [],
		"positive_notes": ["Balanced terms throughout"],
		"overall_assessment": "No significant issues found."
	}`)
	gen := &scriptedGenerator{responses: []json.RawMessage{clean}}
	analyzer := NewAnalyzer(gen, "test-model", 1)

	out, err := analyzer.Analyze(context.Background(), testInput())
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(out.RedFlags) != 0 {
		t.Fatalf("clean document produced flags: %+v", out.RedFlags)
	}
	if len(out.Warnings) != 0 {
		t.Fatalf("clean document produced warnings: %v", out.Warnings)
	}
}

func TestPromptIncludesIntentAndDedupesChunks(t *testing.T) {
	input := testInput()
	input.Retrieved = append(input.Retrieved, input.Retrieved[0]) // duplicate chunk
	analyzer := NewAnalyzer(&scriptedGenerator{responses: []json.RawMessage{groundedResponse()}}, "m", 0)

	prompt := analyzer.buildPrompt(input, "")
	if !strings.Contains(prompt, "tenant signing this lease") {
		t.Fatal("prompt missing intent context")
	}
	if strings.Count(prompt, "[lease.pdf p.1]") != 1 {
		t.Fatalf("duplicate chunk not deduplicated:\n%s", prompt)
	}
}
