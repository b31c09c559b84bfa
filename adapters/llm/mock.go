package llm

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/konsulta/domain/entities"
	"github.com/satriahrh/konsulta/domain/repositories"
)

// MockSuggester is a placeholder suggestion engine for local development
type MockSuggester struct {
	logger *zap.Logger
}

var _ repositories.SuggestionEngine = (*MockSuggester)(nil)

// NewMockSuggester creates a new mock suggestion engine
func NewMockSuggester(logger *zap.Logger) *MockSuggester {
	return &MockSuggester{logger: logger}
}

// Suggest implements repositories.SuggestionEngine
func (m *MockSuggester) Suggest(ctx context.Context, transcript string, authToken string) (*entities.SuggestionSet, error) {
	m.logger.Debug("Generating mock suggestions", zap.Int("transcriptLength", len(transcript)))

	lower := strings.ToLower(transcript)
	set := &entities.SuggestionSet{
		Diagnosis: []string{},
		Medicines: []entities.MedicineSuggestion{},
	}

	if strings.Contains(lower, "fever") || strings.Contains(lower, "cough") {
		set.Diagnosis = append(set.Diagnosis, "Acute upper respiratory infection")
		set.Medicines = append(set.Medicines, entities.MedicineSuggestion{
			Name: "Paracetamol", Dosage: "500mg", Frequency: "Every 6 hours as needed", Duration: "5 days",
		})
	}
	if strings.Contains(lower, "headache") {
		set.Diagnosis = append(set.Diagnosis, "Tension-type headache")
		set.Medicines = append(set.Medicines, entities.MedicineSuggestion{
			Name: "Ibuprofen", Dosage: "400mg", Frequency: "Twice daily after meals", Duration: "3 days",
		})
	}
	if len(set.Diagnosis) == 0 {
		notes := "No specific findings in the transcript."
		set.Notes = &notes
	}
	return set, nil
}
