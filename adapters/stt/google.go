package stt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/konsulta/domain/entities"
	"github.com/satriahrh/konsulta/domain/repositories"
)

// maxInlineAudio is the largest recording sent inline with the recognize
// request. Larger recordings go through the staging bucket.
const maxInlineAudio = 10 * 1000 * 1000

// Staging stores recordings in the Cloud Storage bucket Speech-to-Text reads from
type Staging interface {
	PutObject(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	RemoveObject(ctx context.Context, key string) error
}

// GoogleConfig configures the Google Speech-to-Text transcriber
type GoogleConfig struct {
	Language string

	// StagingBucket names the Cloud Storage bucket behind Staging. Without
	// it, recordings over the inline limit cannot be transcribed.
	StagingBucket string
	Staging       Staging
}

// GoogleTranscriber implements repositories.Transcriber with Google Cloud Speech-to-Text.
// Credentials come from Application Default Credentials, so the clinician
// token is not forwarded.
type GoogleTranscriber struct {
	client *speech.Client
	config GoogleConfig
	logger *zap.Logger
}

var (
	_ repositories.Transcriber    = (*GoogleTranscriber)(nil)
	_ repositories.EncodingFilter = (*GoogleTranscriber)(nil)
)

// NewGoogleTranscriber creates a Google Cloud Speech client
func NewGoogleTranscriber(ctx context.Context, config GoogleConfig, logger *zap.Logger) (*GoogleTranscriber, error) {
	if (config.StagingBucket == "") != (config.Staging == nil) {
		return nil, fmt.Errorf("staging bucket and staging store must be set together")
	}
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	if config.Language == "" {
		config.Language = "en-US"
	}
	return &GoogleTranscriber{
		client: client,
		config: config,
		logger: logger,
	}, nil
}

// Close releases the underlying gRPC connection
func (g *GoogleTranscriber) Close() error {
	return g.client.Close()
}

// SupportsEncoding implements repositories.EncodingFilter
func (g *GoogleTranscriber) SupportsEncoding(encoding string) bool {
	_, err := getAudioEncoding(encoding)
	return err == nil
}

// Transcribe runs a long-running recognition over the finished recording and
// joins the results.
func (g *GoogleTranscriber) Transcribe(ctx context.Context, audio *entities.AudioBlob, authToken string) (string, error) {
	if audio.Size() == 0 {
		return "", errors.New("no audio data received")
	}

	encoding, err := getAudioEncoding(audio.Encoding)
	if err != nil {
		return "", err
	}

	source, cleanup, err := g.recognitionAudio(ctx, audio)
	if err != nil {
		return "", err
	}
	defer cleanup()

	op, err := g.client.LongRunningRecognize(ctx, &speechpb.LongRunningRecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   encoding,
			SampleRateHertz:            int32(audio.SampleRate),
			LanguageCode:               g.config.Language,
			EnableAutomaticPunctuation: true,
		},
		Audio: source,
	})
	if err != nil {
		return "", fmt.Errorf("failed to start recognition: %w", err)
	}

	resp, err := op.Wait(ctx)
	if err != nil {
		return "", fmt.Errorf("recognition failed: %w", err)
	}

	text := joinResults(resp.GetResults())
	g.logger.Debug("Google transcription finished",
		zap.Int("audioSeconds", audio.DurationSeconds),
		zap.Int("characters", len(text)))
	return text, nil
}

// recognitionAudio sends small recordings inline and stages larger ones in
// Cloud Storage. cleanup removes the staged object.
func (g *GoogleTranscriber) recognitionAudio(ctx context.Context, audio *entities.AudioBlob) (*speechpb.RecognitionAudio, func(), error) {
	noop := func() {}
	if audio.Size() <= maxInlineAudio {
		return &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio.Data},
		}, noop, nil
	}
	if g.config.Staging == nil {
		return nil, noop, fmt.Errorf("recording of %d bytes exceeds the inline limit and no staging bucket is configured", audio.Size())
	}

	key := "speech/" + uuid.New().String() + path.Ext(audio.Filename())
	if _, err := g.config.Staging.PutObject(ctx, key, bytes.NewReader(audio.Data), int64(audio.Size()), audio.ContentType()); err != nil {
		return nil, noop, fmt.Errorf("failed to stage recording: %w", err)
	}

	cleanup := func() {
		// The request context may already be done.
		if err := g.config.Staging.RemoveObject(context.Background(), key); err != nil {
			g.logger.Warn("Failed to remove staged recording", zap.String("key", key), zap.Error(err))
		}
	}
	return &speechpb.RecognitionAudio{
		AudioSource: &speechpb.RecognitionAudio_Uri{Uri: fmt.Sprintf("gs://%s/%s", g.config.StagingBucket, key)},
	}, cleanup, nil
}

func joinResults(results []*speechpb.SpeechRecognitionResult) string {
	var parts []string
	for _, result := range results {
		if len(result.Alternatives) == 0 {
			continue
		}
		if text := strings.TrimSpace(result.Alternatives[0].Transcript); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// getAudioEncoding converts string encoding to Google Speech API enum
func getAudioEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch encoding {
	case "WAV", "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW, nil
	case "AMR":
		return speechpb.RecognitionConfig_AMR, nil
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB, nil
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}
