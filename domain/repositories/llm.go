package repositories

import (
	"context"

	"github.com/satriahrh/konsulta/domain/entities"
)

// SuggestionEngine abstracts AI providers that derive clinical suggestions from a transcript
type SuggestionEngine interface {
	Suggest(ctx context.Context, transcript string, authToken string) (*entities.SuggestionSet, error)
}
