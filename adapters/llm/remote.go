package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/konsulta/domain/entities"
	"github.com/satriahrh/konsulta/domain/repositories"
)

// RemoteSuggester posts {"transcript": "..."} to the suggestions endpoint
// and reads back {"suggestions": {...}}
type RemoteSuggester struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

var _ repositories.SuggestionEngine = (*RemoteSuggester)(nil)

// NewRemoteSuggester creates a new remote suggestion engine
func NewRemoteSuggester(url string, timeout time.Duration, logger *zap.Logger) (*RemoteSuggester, error) {
	if url == "" {
		return nil, fmt.Errorf("suggestion URL is required")
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &RemoteSuggester{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}, nil
}

// Suggest implements repositories.SuggestionEngine
func (r *RemoteSuggester) Suggest(ctx context.Context, transcript string, authToken string) (*entities.SuggestionSet, error) {
	body, err := json.Marshal(map[string]string{"transcript": transcript})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal suggestion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create suggestion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send suggestion request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read suggestion response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("suggestion endpoint returned status %d", resp.StatusCode)
	}

	r.logger.Debug("Suggestions received", zap.Int("bytes", len(payload)))
	return parseSuggestions(string(payload))
}
