package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/satriahrh/konsulta/domain"
	"github.com/satriahrh/konsulta/domain/entities"
)

// ConsultationRepository is an in-memory implementation of repositories.ConsultationRepository
type ConsultationRepository struct {
	mu            sync.RWMutex
	consultations map[string]*entities.Consultation // id -> consultation
	patients      map[string][]string               // patient_id -> consultation ids
}

// NewConsultationRepository creates a new in-memory consultation repository
func NewConsultationRepository() *ConsultationRepository {
	return &ConsultationRepository{
		consultations: make(map[string]*entities.Consultation),
		patients:      make(map[string][]string),
	}
}

// Save implements repositories.ConsultationRepository. Saving an existing id replaces it.
func (m *ConsultationRepository) Save(ctx context.Context, consultation *entities.Consultation) error {
	if consultation == nil {
		return errors.New("consultation cannot be nil")
	}
	if consultation.ID == "" {
		return errors.New("consultation ID cannot be empty")
	}
	if err := consultation.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.consultations[consultation.ID]; !exists {
		m.patients[consultation.PatientID] = append(m.patients[consultation.PatientID], consultation.ID)
	}
	m.consultations[consultation.ID] = clone(consultation)
	return nil
}

// GetByID implements repositories.ConsultationRepository
func (m *ConsultationRepository) GetByID(ctx context.Context, id string) (*entities.Consultation, error) {
	if id == "" {
		return nil, errors.New("consultation ID cannot be empty")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	consultation, exists := m.consultations[id]
	if !exists {
		return nil, domain.ErrConsultationNotFound
	}
	return clone(consultation), nil
}

// ListByPatientID implements repositories.ConsultationRepository, newest first
func (m *ConsultationRepository) ListByPatientID(ctx context.Context, patientID string, limit int) ([]*entities.Consultation, error) {
	if patientID == "" {
		return nil, errors.New("patient ID cannot be empty")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.patients[patientID]
	result := make([]*entities.Consultation, 0, len(ids))
	for _, id := range ids {
		result = append(result, clone(m.consultations[id]))
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// clone returns a copy to prevent external modifications
func clone(c *entities.Consultation) *entities.Consultation {
	out := *c
	out.Bill.LineItems = append([]entities.BillingLineItem(nil), c.Bill.LineItems...)
	out.Suggestions = c.Suggestions.Clone()
	if c.Transcript != nil {
		transcript := *c.Transcript
		out.Transcript = &transcript
	}
	if c.CompletedAt != nil {
		completedAt := *c.CompletedAt
		out.CompletedAt = &completedAt
	}
	return &out
}
