package entities

import (
	"errors"
	"strings"
	"time"
)

// Transcript is the text rendering of one stopped recording session
type Transcript struct {
	Text      string    `json:"text" bson:"text"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// MedicineSuggestion is one AI-advised prescription line
type MedicineSuggestion struct {
	Name      string `json:"name" bson:"name"`
	Dosage    string `json:"dosage" bson:"dosage"`
	Frequency string `json:"frequency" bson:"frequency"`
	Duration  string `json:"duration" bson:"duration"`
}

// Validate checks that every field of the suggestion is present
func (m *MedicineSuggestion) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return errors.New("medicine name is required")
	}
	if strings.TrimSpace(m.Dosage) == "" {
		return errors.New("medicine dosage is required")
	}
	if strings.TrimSpace(m.Frequency) == "" {
		return errors.New("medicine frequency is required")
	}
	if strings.TrimSpace(m.Duration) == "" {
		return errors.New("medicine duration is required")
	}
	return nil
}

// SuggestionSet holds advisory diagnoses, medicines and notes derived from a transcript
type SuggestionSet struct {
	Diagnosis []string             `json:"diagnosis" bson:"diagnosis"`
	Medicines []MedicineSuggestion `json:"medicines" bson:"medicines"`
	Notes     *string              `json:"notes,omitempty" bson:"notes,omitempty"`
}

// Validate checks the medicines of the set; an empty set is valid
func (s *SuggestionSet) Validate() error {
	for i := range s.Medicines {
		if err := s.Medicines[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy so callers cannot mutate encounter state
func (s *SuggestionSet) Clone() *SuggestionSet {
	if s == nil {
		return nil
	}
	out := &SuggestionSet{
		Diagnosis: append([]string(nil), s.Diagnosis...),
		Medicines: append([]MedicineSuggestion(nil), s.Medicines...),
	}
	if s.Notes != nil {
		notes := *s.Notes
		out.Notes = &notes
	}
	return out
}
