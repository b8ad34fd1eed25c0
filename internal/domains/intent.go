package domains

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidIntent means the selected intent is not an option for the domain.
var ErrInvalidIntent = errors.New("intent is not valid for this domain")

// ErrMissingCustomIntent means "other" was selected without the required free
// text.
var ErrMissingCustomIntent = errors.New("custom intent text is required when intent is \"other\"")

// ResolvedIntent is a validated intent selection.
type ResolvedIntent struct {
	Option       IntentOption
	CustomIntent string
}

// Describe renders the intent for prompt context.
func (r ResolvedIntent) Describe() string {
	if r.Option.ID == IntentOther {
		return fmt.Sprintf("Other: %s", r.CustomIntent)
	}
	return fmt.Sprintf("%s (%s)", r.Option.Label, r.Option.Description)
}

// ResolveIntent validates a selection against the domain's taxonomy.
func ResolveIntent(domainID, intentID, customIntent string) (ResolvedIntent, error) {
	d, ok := Taxonomy[domainID]
	if !ok {
		return ResolvedIntent{}, fmt.Errorf("unknown domain %q: %w", domainID, ErrInvalidIntent)
	}
	for _, opt := range d.Intents {
		if opt.ID != intentID {
			continue
		}
		if opt.ID == IntentOther {
			if strings.TrimSpace(customIntent) == "" {
				return ResolvedIntent{}, ErrMissingCustomIntent
			}
			return ResolvedIntent{Option: opt, CustomIntent: strings.TrimSpace(customIntent)}, nil
		}
		return ResolvedIntent{Option: opt}, nil
	}
	return ResolvedIntent{}, fmt.Errorf("intent %q in domain %q: %w", intentID, domainID, ErrInvalidIntent)
}
