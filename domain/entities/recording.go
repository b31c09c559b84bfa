package entities

import "time"

// RecordingState is the lifecycle state of a capture session
type RecordingState string

const (
	RecordingStateIdle      RecordingState = "idle"
	RecordingStateRecording RecordingState = "recording"
	RecordingStateStopped   RecordingState = "stopped"
)

// RecordingSession describes the capture lifecycle of one consultation
type RecordingSession struct {
	State           RecordingState `json:"state"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	DurationSeconds int            `json:"duration_seconds"`
}

// AudioBlob is the finalized, encoded audio artifact handed off after stop.
// The data slice must be treated as read-only by every holder.
type AudioBlob struct {
	Data            []byte `json:"-"`
	Encoding        string `json:"encoding"`
	SampleRate      int    `json:"sample_rate"`
	DurationSeconds int    `json:"duration_seconds"`
}

// Size returns the number of encoded bytes
func (b *AudioBlob) Size() int {
	if b == nil {
		return 0
	}
	return len(b.Data)
}

// Filename returns a file name suitable for multipart uploads and archives
func (b *AudioBlob) Filename() string {
	switch b.Encoding {
	case "WEBM_OPUS":
		return "recording.webm"
	case "OGG_OPUS":
		return "recording.ogg"
	case "FLAC":
		return "recording.flac"
	case "MP3":
		return "recording.mp3"
	case "MP4", "AAC":
		return "recording.m4a"
	default:
		return "recording.wav"
	}
}

// ContentType returns the MIME type matching Filename
func (b *AudioBlob) ContentType() string {
	switch b.Encoding {
	case "WEBM_OPUS":
		return "audio/webm"
	case "OGG_OPUS":
		return "audio/ogg"
	case "FLAC":
		return "audio/flac"
	case "MP3":
		return "audio/mpeg"
	case "MP4", "AAC":
		return "audio/mp4"
	default:
		return "audio/wav"
	}
}
