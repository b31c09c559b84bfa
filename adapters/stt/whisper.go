package stt

import (
	"bytes"
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/satriahrh/konsulta/domain/entities"
	"github.com/satriahrh/konsulta/domain/repositories"
)

// WhisperTranscriber implements repositories.Transcriber with the OpenAI
// audio transcription API
type WhisperTranscriber struct {
	client   *openai.Client
	language string
	logger   *zap.Logger
}

var (
	_ repositories.Transcriber    = (*WhisperTranscriber)(nil)
	_ repositories.EncodingFilter = (*WhisperTranscriber)(nil)
)

// NewWhisperTranscriber creates a transcriber for the given API key. language
// is an ISO-639-1 code or a BCP-47 tag such as en-US.
func NewWhisperTranscriber(apiKey, language string, logger *zap.Logger) (*WhisperTranscriber, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	return &WhisperTranscriber{
		client:   openai.NewClient(apiKey),
		language: isoLanguage(language),
		logger:   logger,
	}, nil
}

// Transcribe implements repositories.Transcriber
func (w *WhisperTranscriber) Transcribe(ctx context.Context, audio *entities.AudioBlob, authToken string) (string, error) {
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: audio.Filename(),
		Reader:   bytes.NewReader(audio.Data),
		Language: w.language,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("whisper transcription failed: %w", err)
	}

	w.logger.Debug("Whisper transcription finished", zap.Int("characters", len(resp.Text)))
	return resp.Text, nil
}

// SupportsEncoding implements repositories.EncodingFilter. The API needs a
// container format, so raw telephony codecs are rejected.
func (w *WhisperTranscriber) SupportsEncoding(encoding string) bool {
	switch encoding {
	case "LINEAR16", "FLAC", "OGG_OPUS", "WEBM_OPUS", "MP3", "MP4":
		return true
	default:
		return false
	}
}

func isoLanguage(tag string) string {
	if len(tag) >= 2 {
		return tag[:2]
	}
	return ""
}
