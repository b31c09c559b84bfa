package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/konsulta/domain"
	"github.com/satriahrh/konsulta/domain/entities"
	"github.com/satriahrh/konsulta/domain/repositories"
)

// TranscriptionClient submits a finished recording to the transcription engine.
// It makes a single attempt; the caller decides how to proceed on failure.
type TranscriptionClient struct {
	engine repositories.Transcriber
	logger *zap.Logger
}

// NewTranscriptionClient creates a new transcription client
func NewTranscriptionClient(engine repositories.Transcriber, logger *zap.Logger) *TranscriptionClient {
	return &TranscriptionClient{
		engine: engine,
		logger: logger,
	}
}

// SupportsEncoding reports whether the engine can decode recordings in encoding
func (c *TranscriptionClient) SupportsEncoding(encoding string) bool {
	if filter, ok := c.engine.(repositories.EncodingFilter); ok {
		return filter.SupportsEncoding(encoding)
	}
	return true
}

// Submit transcribes the audio blob. Every failure is reported as domain.ErrTranscriptionFailed.
func (c *TranscriptionClient) Submit(ctx context.Context, audio *entities.AudioBlob, authToken string) (*entities.Transcript, error) {
	if audio.Size() == 0 {
		return nil, fmt.Errorf("%w: no audio to transcribe", domain.ErrTranscriptionFailed)
	}

	started := time.Now()
	text, err := c.engine.Transcribe(ctx, audio, authToken)
	if err != nil {
		c.logger.Warn("Transcription request failed",
			zap.Int("audioSize", audio.Size()),
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", domain.ErrTranscriptionFailed, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: no speech detected in audio", domain.ErrTranscriptionFailed)
	}

	c.logger.Info("Transcription completed",
		zap.Int("audioSize", audio.Size()),
		zap.Int("textLength", len(text)),
		zap.Duration("elapsed", time.Since(started)))

	return &entities.Transcript{
		Text:      text,
		CreatedAt: time.Now(),
	}, nil
}
