package stt

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/satriahrh/konsulta/domain/entities"
	"github.com/satriahrh/konsulta/domain/repositories"
)

// MockTranscriber returns canned transcripts for local development
type MockTranscriber struct {
	logger *zap.Logger
}

var _ repositories.Transcriber = (*MockTranscriber)(nil)

// NewMockTranscriber creates a new mock transcriber
func NewMockTranscriber(logger *zap.Logger) *MockTranscriber {
	return &MockTranscriber{logger: logger}
}

// Transcribe implements repositories.Transcriber
func (m *MockTranscriber) Transcribe(ctx context.Context, audio *entities.AudioBlob, authToken string) (string, error) {
	m.logger.Info("Processing mock transcription",
		zap.Int("audioSize", audio.Size()),
		zap.Int("sampleRate", audio.SampleRate),
		zap.String("encoding", audio.Encoding))

	if audio.Size() == 0 {
		return "", fmt.Errorf("no audio data received")
	}

	// Mock transcription based on audio size
	switch {
	case audio.Size() > 10000:
		return "Patient reports a dry cough and mild fever for three days. No known drug allergies.", nil
	case audio.Size() > 1000:
		return "Patient reports a headache since this morning.", nil
	default:
		return "Follow-up visit, patient feels better.", nil
	}
}
