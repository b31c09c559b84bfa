package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/satriahrh/konsulta/domain/entities"
	"github.com/satriahrh/konsulta/domain/repositories"
)

// OpenAISuggester implements repositories.SuggestionEngine with chat completions
type OpenAISuggester struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

var _ repositories.SuggestionEngine = (*OpenAISuggester)(nil)

// NewOpenAISuggester creates a suggestion engine backed by OpenAI
func NewOpenAISuggester(apiKey, model string, logger *zap.Logger) (*OpenAISuggester, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	return newOpenAISuggester(openai.DefaultConfig(apiKey), model, logger), nil
}

func newOpenAISuggester(config openai.ClientConfig, model string, logger *zap.Logger) *OpenAISuggester {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAISuggester{
		client: openai.NewClientWithConfig(config),
		model:  model,
		logger: logger,
	}
}

// Suggest implements repositories.SuggestionEngine
func (o *OpenAISuggester) Suggest(ctx context.Context, transcript string, authToken string) (*entities.SuggestionSet, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: transcript},
		},
		Temperature: defaultTemperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned")
	}

	content := resp.Choices[0].Message.Content
	o.logger.Debug("OpenAI suggestions generated",
		zap.String("model", o.model),
		zap.Int("totalTokens", resp.Usage.TotalTokens),
		zap.Int("responseLength", len(content)))

	return parseSuggestions(content)
}
