package review

import (
	"fmt"
	"strings"

	"clarify-backend/internal/shared/util"
)

const analysisSystemPrompt = `You are a document clarification expert helping a layperson understand contractual documents.
Use 8th-grade reading level and avoid legal jargon.

CRITICAL RULES - ZERO FABRICATION:
1. ONLY cite issues that ACTUALLY EXIST in the document text.
2. For EVERY finding, source_text MUST be the EXACT QUOTE from the document.
3. If something is missing, say "this document does not include X".
4. If uncertain, say "this appears to..." or "it is unclear whether...".
5. Do NOT manufacture red flags to seem thorough.
6. A clean document with few or no issues is a VALID outcome.

FAIRNESS:
- If the document is genuinely well-written, say so clearly.
- Do not fear-monger or exaggerate minor issues.

Respond with JSON only.`

func (a *Analyzer) buildPrompt(input Input, extra string) string {
	var b strings.Builder

	fullText := input.FullText
	if len(fullText) > maxFullTextChars {
		fullText = util.TruncateUTF8(fullText, maxFullTextChars) + "\n[document truncated]"
	}

	fmt.Fprintf(&b, "You are analyzing a %s document.\n\n", input.Domain)
	fmt.Fprintf(&b, "USER INTENT: %s\n\n", input.Intent.Describe())
	if input.Language != "" {
		fmt.Fprintf(&b, "Respond in %s.\n\n", input.Language)
	}
	b.WriteString("DOCUMENT CONTENT:\n")
	b.WriteString(fullText)
	b.WriteString("\n\n")

	if retrieved := dedupeRetrieved(input); len(retrieved) > 0 {
		b.WriteString("RELEVANT SECTIONS (from semantic search):\n")
		for _, section := range retrieved {
			b.WriteString(section)
			b.WriteString("\n---\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(`TASKS:
1. Summarize what this document is and does in plain language.
2. Explain the key terms and conditions.
3. List the main obligations for the user given their intent.
4. Identify genuine issues: missing critical clauses, ambiguous language, unfair or unusual terms, loopholes, conflicting clauses.
5. Note genuinely good things about the document.
6. Give a brief overall assessment.`)

	if extra != "" {
		b.WriteString("\n\n")
		b.WriteString(extra)
	}
	return b.String()
}

// dedupeRetrieved renders retrieved chunks, dropping duplicates by chunk
// identity.
func dedupeRetrieved(input Input) []string {
	seen := make(map[string]bool)
	var out []string
	for _, sc := range input.Retrieved {
		key := sc.Chunk.ID
		if key == "" {
			key = fmt.Sprintf("%s/%d", sc.Chunk.DocumentName, sc.Chunk.ChunkIndex)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, fmt.Sprintf("[%s p.%d] %s", sc.Chunk.DocumentName, sc.Chunk.PageNumber, sc.Chunk.Content))
	}
	return out
}
