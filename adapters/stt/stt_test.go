package stt

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/konsulta/domain/entities"
)

func testBlob() *entities.AudioBlob {
	return &entities.AudioBlob{
		Data:            []byte("fake-webm-audio"),
		Encoding:        "WEBM_OPUS",
		SampleRate:      48000,
		DurationSeconds: 12,
	}
}

func TestRemoteTranscriber_Transcribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer token-1" {
			t.Errorf("Unexpected authorization header %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("Failed to parse multipart form: %v", err)
			return
		}
		file, header, err := r.FormFile("audio")
		if err != nil {
			t.Errorf("Missing audio part: %v", err)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if string(data) != "fake-webm-audio" {
			t.Errorf("Unexpected audio %q", data)
		}
		if header.Filename != "recording.webm" {
			t.Errorf("Unexpected filename %q", header.Filename)
		}
		if r.FormValue("sample_rate") != "48000" {
			t.Errorf("Unexpected sample rate %q", r.FormValue("sample_rate"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"transcript":"Patient has a sore throat."}`))
	}))
	defer server.Close()

	transcriber, err := NewRemoteTranscriber(RemoteConfig{URL: server.URL}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to create transcriber: %v", err)
	}

	text, err := transcriber.Transcribe(context.Background(), testBlob(), "token-1")
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "Patient has a sore throat." {
		t.Errorf("Unexpected transcript %q", text)
	}
}

func TestRemoteTranscriber_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"message":"speech engine offline"}`))
	}))
	defer server.Close()

	transcriber, _ := NewRemoteTranscriber(RemoteConfig{URL: server.URL}, zaptest.NewLogger(t))
	_, err := transcriber.Transcribe(context.Background(), testBlob(), "token")
	if err == nil || !strings.Contains(err.Error(), "speech engine offline") {
		t.Errorf("Expected upstream message in error, got %v", err)
	}

	if _, err := NewRemoteTranscriber(RemoteConfig{}, zaptest.NewLogger(t)); err == nil {
		t.Error("Expected error when URL is not set")
	}
}

func TestGetAudioEncoding(t *testing.T) {
	for _, encoding := range []string{"LINEAR16", "WAV", "FLAC", "OGG_OPUS", "WEBM_OPUS"} {
		if _, err := getAudioEncoding(encoding); err != nil {
			t.Errorf("Expected %s to be supported: %v", encoding, err)
		}
	}
	if _, err := getAudioEncoding("AIFF"); err == nil {
		t.Error("Expected unsupported encoding error")
	}
}

func TestEncodingSupport(t *testing.T) {
	google := &GoogleTranscriber{}
	whisper := &WhisperTranscriber{}

	tests := []struct {
		encoding    string
		wantGoogle  bool
		wantWhisper bool
	}{
		{"WEBM_OPUS", true, true},
		{"LINEAR16", true, true},
		{"MULAW", true, false},
		{"MP3", false, true},
		{"MP4", false, true},
	}
	for _, tt := range tests {
		if got := google.SupportsEncoding(tt.encoding); got != tt.wantGoogle {
			t.Errorf("Google SupportsEncoding(%s) = %v, want %v", tt.encoding, got, tt.wantGoogle)
		}
		if got := whisper.SupportsEncoding(tt.encoding); got != tt.wantWhisper {
			t.Errorf("Whisper SupportsEncoding(%s) = %v, want %v", tt.encoding, got, tt.wantWhisper)
		}
	}
}

type fakeStaging struct {
	keys    []string
	removed []string
}

func (f *fakeStaging) PutObject(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	f.keys = append(f.keys, key)
	return "https://storage.local/" + key, nil
}

func (f *fakeStaging) RemoveObject(ctx context.Context, key string) error {
	f.removed = append(f.removed, key)
	return nil
}

func TestGoogleTranscriber_RecognitionAudio(t *testing.T) {
	staging := &fakeStaging{}
	g := &GoogleTranscriber{
		config: GoogleConfig{Language: "en-US", StagingBucket: "speech-staging", Staging: staging},
		logger: zaptest.NewLogger(t),
	}
	ctx := context.Background()

	source, cleanup, err := g.recognitionAudio(ctx, testBlob())
	if err != nil {
		t.Fatalf("recognitionAudio failed: %v", err)
	}
	cleanup()
	if string(source.GetContent()) != "fake-webm-audio" || len(staging.keys) != 0 {
		t.Errorf("Expected small recording inline, got %+v", source)
	}

	long := &entities.AudioBlob{
		Data:            make([]byte, maxInlineAudio+1),
		Encoding:        "WEBM_OPUS",
		SampleRate:      48000,
		DurationSeconds: 600,
	}
	source, cleanup, err = g.recognitionAudio(ctx, long)
	if err != nil {
		t.Fatalf("recognitionAudio failed: %v", err)
	}
	if len(staging.keys) != 1 || !strings.HasSuffix(staging.keys[0], ".webm") {
		t.Fatalf("Expected one staged .webm object, got %v", staging.keys)
	}
	if want := "gs://speech-staging/" + staging.keys[0]; source.GetUri() != want {
		t.Errorf("Expected uri %s, got %s", want, source.GetUri())
	}
	cleanup()
	if len(staging.removed) != 1 || staging.removed[0] != staging.keys[0] {
		t.Errorf("Expected staged object to be removed, got %v", staging.removed)
	}

	unstaged := &GoogleTranscriber{logger: zaptest.NewLogger(t)}
	if _, _, err := unstaged.recognitionAudio(ctx, long); err == nil {
		t.Error("Expected error for a long recording without a staging bucket")
	}
}

func TestJoinResults(t *testing.T) {
	results := []*speechpb.SpeechRecognitionResult{
		{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: " Fever since Monday. "}}},
		{},
		{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "No cough."}}},
	}
	if got := joinResults(results); got != "Fever since Monday. No cough." {
		t.Errorf("Unexpected transcript %q", got)
	}
}

func TestIsoLanguage(t *testing.T) {
	if got := isoLanguage("id-ID"); got != "id" {
		t.Errorf("Expected id, got %s", got)
	}
	if got := isoLanguage(""); got != "" {
		t.Errorf("Expected empty language, got %s", got)
	}
}

func TestMockTranscriber(t *testing.T) {
	m := NewMockTranscriber(zaptest.NewLogger(t))

	text, err := m.Transcribe(context.Background(), testBlob(), "")
	if err != nil || text == "" {
		t.Errorf("Expected canned transcript, got %q, %v", text, err)
	}
	if _, err := m.Transcribe(context.Background(), &entities.AudioBlob{}, ""); err == nil {
		t.Error("Expected error for empty audio")
	}
}
