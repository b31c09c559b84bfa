package ai

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/konsulta/domain"
	"github.com/satriahrh/konsulta/domain/entities"
	"github.com/satriahrh/konsulta/domain/repositories"
)

// SuggestionClient asks the AI engine for advisory diagnoses and medicines.
// Its failures are never fatal to a consultation.
type SuggestionClient struct {
	engine repositories.SuggestionEngine
	logger *zap.Logger
}

// NewSuggestionClient creates a new suggestion client
func NewSuggestionClient(engine repositories.SuggestionEngine, logger *zap.Logger) *SuggestionClient {
	return &SuggestionClient{
		engine: engine,
		logger: logger,
	}
}

// Submit requests suggestions for a transcript. Every failure, including a
// malformed response, is reported as domain.ErrSuggestionFailed.
func (c *SuggestionClient) Submit(ctx context.Context, transcript string, authToken string) (*entities.SuggestionSet, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, fmt.Errorf("%w: transcript is empty", domain.ErrSuggestionFailed)
	}

	set, err := c.engine.Suggest(ctx, transcript, authToken)
	if err != nil {
		c.logger.Warn("Suggestion request failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", domain.ErrSuggestionFailed, err)
	}
	if set == nil {
		return nil, fmt.Errorf("%w: empty response", domain.ErrSuggestionFailed)
	}
	if err := set.Validate(); err != nil {
		c.logger.Warn("Suggestion response rejected", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", domain.ErrSuggestionFailed, err)
	}

	c.logger.Info("Suggestions received",
		zap.Int("diagnoses", len(set.Diagnosis)),
		zap.Int("medicines", len(set.Medicines)))

	return set, nil
}
