package api

import (
	"github.com/satriahrh/konsulta/domain/entities"
	"github.com/satriahrh/konsulta/domain/repositories"
	"github.com/satriahrh/konsulta/internal/consultation"
)

// MicrophoneConfig announces an already-connected microphone when a
// consultation is opened, so online consultations can record immediately
type MicrophoneConfig struct {
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
	Language   string `json:"language,omitempty"`
}

func (m *MicrophoneConfig) audioConfig() repositories.AudioConfig {
	return repositories.AudioConfig{
		SampleRate: m.SampleRate,
		Encoding:   m.Encoding,
		Language:   m.Language,
	}
}

// OpenConsultationRequest represents the request payload for opening a consultation
type OpenConsultationRequest struct {
	ID            string                    `json:"id,omitempty"`
	AppointmentID string                    `json:"appointment_id" validate:"required"`
	PatientID     string                    `json:"patient_id" validate:"required"`
	Mode          entities.ConsultationMode `json:"mode" validate:"required,oneof=online offline"`
	BaseFee       float64                   `json:"base_fee" validate:"min=0"`
	Microphone    *MicrophoneConfig         `json:"microphone,omitempty"`
}

// BaseFeeRequest replaces the base consultation fee
type BaseFeeRequest struct {
	BaseFee float64 `json:"base_fee"`
}

// LineItemRequest adds an extra fee to the bill
type LineItemRequest struct {
	Description string  `json:"description" validate:"required"`
	Amount      float64 `json:"amount" validate:"gt=0"`
}

// SubmitBillResponse represents the response payload of a successful bill submission
type SubmitBillResponse struct {
	BillingRecordID string                `json:"billing_record_id"`
	Consultation    consultation.Snapshot `json:"consultation"`
}

// RecordListResponse lists stored consultations of a patient
type RecordListResponse struct {
	PatientID string                   `json:"patient_id"`
	Records   []*entities.Consultation `json:"records"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
