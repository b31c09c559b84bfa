package repositories

import (
	"context"

	"github.com/satriahrh/konsulta/domain/entities"
)

// Transcriber abstracts remote transcription engines
type Transcriber interface {
	// Transcribe submits one finished audio artifact and returns its text
	Transcribe(ctx context.Context, audio *entities.AudioBlob, authToken string) (string, error)
}

// EncodingFilter is implemented by transcribers that decode only some of the
// encodings a microphone may stream
type EncodingFilter interface {
	SupportsEncoding(encoding string) bool
}

// AudioConfig represents audio configuration for speech recognition
type AudioConfig struct {
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
	Language   string `json:"language"`
}
