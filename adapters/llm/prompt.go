package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/satriahrh/konsulta/domain/entities"
)

// systemPrompt instructs the model to answer with a bare suggestion object
const systemPrompt = `You are a clinical documentation assistant supporting a licensed physician.
Read the consultation transcript and propose possible diagnoses and medicines.
Your output is advisory only; the physician makes every decision.

Respond with a single JSON object and nothing else:
{"diagnosis": ["..."], "medicines": [{"name": "...", "dosage": "...", "frequency": "...", "duration": "..."}], "notes": "..."}

Rules:
- Use an empty array when you have nothing to suggest.
- Every medicine must have name, dosage, frequency and duration.
- Keep notes short; omit the field when there is nothing to add.`

// suggestionEnvelope matches both the bare object and {"suggestions": {...}}
type suggestionEnvelope struct {
	Suggestions *entities.SuggestionSet `json:"suggestions"`
	entities.SuggestionSet
}

// parseSuggestions decodes model or endpoint output into a SuggestionSet
func parseSuggestions(raw string) (*entities.SuggestionSet, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty suggestion response")
	}

	var envelope suggestionEnvelope
	if err := json.Unmarshal([]byte(text), &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode suggestions: %w", err)
	}

	set := envelope.Suggestions
	if set == nil {
		set = &envelope.SuggestionSet
	}
	if set.Diagnosis == nil {
		set.Diagnosis = []string{}
	}
	if set.Medicines == nil {
		set.Medicines = []entities.MedicineSuggestion{}
	}
	if set.Notes != nil && strings.TrimSpace(*set.Notes) == "" {
		set.Notes = nil
	}
	return set, nil
}
