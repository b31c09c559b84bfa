package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/konsulta/domain/repositories"
)

const defaultTimeout = 30 * time.Second

// Config holds configuration for the HTTP billing gateway
type Config struct {
	URL     string
	Timeout time.Duration
}

// Validate validates the gateway configuration
func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("billing URL is required")
	}
	return nil
}

// Gateway posts finished bills to the billing records endpoint
type Gateway struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

var _ repositories.BillingGateway = (*Gateway)(nil)

// recordResponse accepts the identifier field names used by the records API
type recordResponse struct {
	ID       string `json:"id"`
	RecordID string `json:"recordId"`
	MongoID  string `json:"_id"`
	Message  string `json:"message"`
}

func (r recordResponse) identifier() string {
	switch {
	case r.ID != "":
		return r.ID
	case r.RecordID != "":
		return r.RecordID
	default:
		return r.MongoID
	}
}

// NewGateway creates a new billing gateway
func NewGateway(config Config, logger *zap.Logger) (*Gateway, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Gateway{
		url:    config.URL,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}, nil
}

// SubmitBill implements repositories.BillingGateway
func (g *Gateway) SubmitBill(ctx context.Context, submission repositories.BillingSubmission, authToken string) (string, error) {
	body, err := json.Marshal(submission)
	if err != nil {
		return "", fmt.Errorf("failed to marshal billing submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create billing request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	g.logger.Info("Submitting bill",
		zap.String("appointmentID", submission.AppointmentID),
		zap.Float64("totalFee", submission.TotalFee))

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send billing request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read billing response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var failure recordResponse
		if json.Unmarshal(payload, &failure) == nil && failure.Message != "" {
			return "", fmt.Errorf("billing endpoint returned status %d: %s", resp.StatusCode, failure.Message)
		}
		return "", fmt.Errorf("billing endpoint returned status %d", resp.StatusCode)
	}

	// Any 2xx means the bill is stored; resubmitting would store it twice.
	var record recordResponse
	if err := json.Unmarshal(payload, &record); err != nil {
		g.logger.Warn("Bill accepted with undecodable response",
			zap.Int("status", resp.StatusCode), zap.Error(err))
		return "", nil
	}
	id := record.identifier()
	if id == "" {
		g.logger.Warn("Bill accepted without record identifier", zap.Int("status", resp.StatusCode))
		return "", nil
	}

	g.logger.Info("Bill stored", zap.String("recordID", id))
	return id, nil
}
