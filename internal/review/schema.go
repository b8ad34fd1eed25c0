package review

// analysisSchema constrains the stage's structured output. Passed to the
// provider and used to validate the response locally.
func analysisSchema() map[string]any {
	stringArray := map[string]any{
		"type":  "array",
		"items": map[string]any{"type": "string"},
	}
	redFlag := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"id":       map[string]any{"type": "string"},
			"title":    map[string]any{"type": "string", "minLength": 1},
			"severity": map[string]any{"type": "string", "enum": []string{"critical", "high", "medium", "low", "info"}},
			"summary":  map[string]any{"type": "string"},
			"explanation": map[string]any{
				"type": "string",
			},
			"source_text":         map[string]any{"type": "string", "minLength": 1},
			"page_number":         map[string]any{"type": "integer", "minimum": 0},
			"recommendation":      map[string]any{"type": "string"},
			"questions_to_ask":    stringArray,
			"suggested_changes":   stringArray,
			"professional_advice": map[string]any{"type": "string"},
		},
		"required": []string{"title", "severity", "summary", "source_text"},
	}
	keyTerm := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"term":        map[string]any{"type": "string", "minLength": 1},
			"explanation": map[string]any{"type": "string"},
		},
		"required": []string{"term", "explanation"},
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"document_summary":   map[string]any{"type": "string", "minLength": 1},
			"key_terms":          map[string]any{"type": "array", "items": keyTerm},
			"main_obligations":   stringArray,
			"red_flags":          map[string]any{"type": "array", "items": redFlag},
			"positive_notes":     stringArray,
			"overall_assessment": map[string]any{"type": "string"},
		},
		"required": []string{"document_summary", "key_terms", "main_obligations", "red_flags", "positive_notes", "overall_assessment"},
	}
}
