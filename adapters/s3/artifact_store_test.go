package s3

import (
	"testing"

	"github.com/satriahrh/konsulta/domain/repositories"
)

var _ repositories.ArtifactStore = &ArtifactStore{}

func TestBuildObjectURL(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want string
	}{
		{"plain key", "consultations/c1/recording.webm", "https://s3.local/audio/consultations/c1/recording.webm"},
		{"spaces are escaped", "consultations/c 1/recording.wav", "https://s3.local/audio/consultations/c%201/recording.wav"},
		{"duplicate slashes cleaned", "consultations//c1/recording.ogg", "https://s3.local/audio/consultations/c1/recording.ogg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildObjectURL("https://s3.local", "audio", tt.key); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}
