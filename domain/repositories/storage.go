package repositories

import (
	"context"
	"io"

	"github.com/satriahrh/konsulta/domain/entities"
)

// ConsultationRepository defines data access methods for completed consultations
type ConsultationRepository interface {
	Save(ctx context.Context, consultation *entities.Consultation) error
	GetByID(ctx context.Context, id string) (*entities.Consultation, error)
	ListByPatientID(ctx context.Context, patientID string, limit int) ([]*entities.Consultation, error)
}

// ArtifactStore archives recorded audio and returns a URL for it
type ArtifactStore interface {
	PutObject(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
}
