package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/konsulta/domain/entities"
	"github.com/satriahrh/konsulta/domain/repositories"
)

const (
	defaultGeminiModel = "gemini-2.0-flash"
	defaultTemperature = 0.2
	defaultMaxTokens   = 1024
)

// GeminiConfig holds configuration for the Gemini suggestion engine
type GeminiConfig struct {
	APIKey          string  // Required
	Model           string  // Optional: defaults to gemini-2.0-flash
	Temperature     float32 // Optional: between 0 and 1
	MaxOutputTokens int     // Optional
}

// ValidateGeminiConfig validates the GeminiConfig
func ValidateGeminiConfig(config GeminiConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("Google AI API key is required")
	}
	if config.Temperature != 0 && (config.Temperature < 0 || config.Temperature > 1) {
		return fmt.Errorf("temperature must be between 0 and 1, got %f", config.Temperature)
	}
	if config.MaxOutputTokens < 0 {
		return fmt.Errorf("max output tokens must be positive, got %d", config.MaxOutputTokens)
	}
	return nil
}

// GeminiSuggester implements repositories.SuggestionEngine using Google's Gemini API
type GeminiSuggester struct {
	client          *genai.Client
	logger          *zap.Logger
	model           string
	temperature     float32
	maxOutputTokens int
}

var _ repositories.SuggestionEngine = (*GeminiSuggester)(nil)

// NewGeminiSuggester creates a new Gemini suggestion engine
func NewGeminiSuggester(ctx context.Context, config GeminiConfig, logger *zap.Logger) (*GeminiSuggester, error) {
	if err := ValidateGeminiConfig(config); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := config.Model
	if model == "" {
		model = defaultGeminiModel
		logger.Info("Using default model", zap.String("model", model))
	}
	temperature := config.Temperature
	if temperature == 0 {
		temperature = defaultTemperature
	}
	maxOutputTokens := config.MaxOutputTokens
	if maxOutputTokens == 0 {
		maxOutputTokens = defaultMaxTokens
	}

	return &GeminiSuggester{
		client:          client,
		logger:          logger,
		model:           model,
		temperature:     temperature,
		maxOutputTokens: maxOutputTokens,
	}, nil
}

// Suggest implements repositories.SuggestionEngine. The Gemini API key is used
// instead of the clinician token.
func (g *GeminiSuggester) Suggest(ctx context.Context, transcript string, authToken string) (*entities.SuggestionSet, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr(g.temperature),
		MaxOutputTokens:   int32(g.maxOutputTokens),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    suggestionSchema,
	}
	contents := []*genai.Content{genai.NewContentFromText(transcript, genai.RoleUser)}

	response, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("failed to generate suggestions: %w", err)
	}
	if len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no content generated")
	}

	var responseText string
	for _, part := range response.Candidates[0].Content.Parts {
		if part.Text != "" {
			responseText += part.Text
		}
	}

	g.logger.Debug("Gemini suggestions generated",
		zap.Int("transcriptLength", len(transcript)),
		zap.Int("responseLength", len(responseText)))

	return parseSuggestions(responseText)
}

var suggestionSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"diagnosis": {
			Type:  genai.TypeArray,
			Items: &genai.Schema{Type: genai.TypeString},
		},
		"medicines": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"name":      {Type: genai.TypeString},
					"dosage":    {Type: genai.TypeString},
					"frequency": {Type: genai.TypeString},
					"duration":  {Type: genai.TypeString},
				},
				Required: []string{"name", "dosage", "frequency", "duration"},
			},
		},
		"notes": {Type: genai.TypeString},
	},
	Required: []string{"diagnosis", "medicines"},
}
