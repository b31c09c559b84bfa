package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/konsulta/domain/entities"
	"github.com/satriahrh/konsulta/domain/repositories"
)

// RemoteConfig holds configuration for the remote transcription endpoint
type RemoteConfig struct {
	URL     string
	Timeout time.Duration
}

// Validate validates the remote transcriber configuration
func (c RemoteConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("transcription URL is required")
	}
	return nil
}

// RemoteTranscriber uploads the recording as multipart form data and reads
// back {"transcript": "..."}
type RemoteTranscriber struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

var _ repositories.Transcriber = (*RemoteTranscriber)(nil)

type transcriptResponse struct {
	Transcript string `json:"transcript"`
	Message    string `json:"message"`
}

// NewRemoteTranscriber creates a new remote transcriber
func NewRemoteTranscriber(config RemoteConfig, logger *zap.Logger) (*RemoteTranscriber, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &RemoteTranscriber{
		url:    config.URL,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}, nil
}

// Transcribe implements repositories.Transcriber
func (r *RemoteTranscriber) Transcribe(ctx context.Context, audio *entities.AudioBlob, authToken string) (string, error) {
	body, contentType, err := encodeAudioForm(audio)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, body)
	if err != nil {
		return "", fmt.Errorf("failed to create transcription request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	r.logger.Info("Uploading recording for transcription",
		zap.Int("bytes", audio.Size()),
		zap.String("encoding", audio.Encoding))

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send transcription request: %w", err)
	}
	defer resp.Body.Close()

	var result transcriptResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&result); err != nil && resp.StatusCode < 300 {
		return "", fmt.Errorf("failed to decode transcription response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if result.Message != "" {
			return "", fmt.Errorf("transcription endpoint returned status %d: %s", resp.StatusCode, result.Message)
		}
		return "", fmt.Errorf("transcription endpoint returned status %d", resp.StatusCode)
	}
	return result.Transcript, nil
}

func encodeAudioForm(audio *entities.AudioBlob) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="audio"; filename="%s"`, audio.Filename()))
	header.Set("Content-Type", audio.ContentType())
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create audio part: %w", err)
	}
	if _, err := part.Write(audio.Data); err != nil {
		return nil, "", fmt.Errorf("failed to write audio part: %w", err)
	}

	fields := map[string]string{
		"encoding":         audio.Encoding,
		"sample_rate":      strconv.Itoa(audio.SampleRate),
		"duration_seconds": strconv.Itoa(audio.DurationSeconds),
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, "", fmt.Errorf("failed to write %s field: %w", name, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}
