package entities

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ConsultationMode distinguishes remote and in-person encounters
type ConsultationMode string

const (
	ConsultationModeOnline  ConsultationMode = "online"
	ConsultationModeOffline ConsultationMode = "offline"
)

// Consultation is the stored record of one completed clinical encounter
type Consultation struct {
	ID              string           `json:"id" bson:"_id"`
	AppointmentID   string           `json:"appointment_id" bson:"appointment_id"`
	PatientID       string           `json:"patient_id" bson:"patient_id"`
	Mode            ConsultationMode `json:"mode" bson:"mode"`
	Bill            ConsultationBill `json:"bill" bson:"bill"`
	Transcript      *Transcript      `json:"transcript,omitempty" bson:"transcript,omitempty"`
	Suggestions     *SuggestionSet   `json:"suggestions,omitempty" bson:"suggestions,omitempty"`
	BillingRecordID string           `json:"billing_record_id" bson:"billing_record_id"`
	AudioURL        string           `json:"audio_url,omitempty" bson:"audio_url,omitempty"`
	DurationSeconds int              `json:"duration_seconds" bson:"duration_seconds"`
	CreatedAt       time.Time        `json:"created_at" bson:"created_at"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
}

// NewConsultation creates a new consultation record for an appointment
func NewConsultation(appointmentID, patientID string, mode ConsultationMode) *Consultation {
	return &Consultation{
		ID:            uuid.New().String(),
		AppointmentID: appointmentID,
		PatientID:     patientID,
		Mode:          mode,
		Bill:          ConsultationBill{LineItems: make([]BillingLineItem, 0)},
		CreatedAt:     time.Now(),
	}
}

// IsOnline reports whether the consultation is a remote one
func (c *Consultation) IsOnline() bool {
	return c.Mode == ConsultationModeOnline
}

// MarkCompleted stamps the billing record and completion time
func (c *Consultation) MarkCompleted(billingRecordID string) {
	now := time.Now()
	c.BillingRecordID = billingRecordID
	c.CompletedAt = &now
}

// Validate validates the consultation data
func (c *Consultation) Validate() error {
	if c.AppointmentID == "" {
		return errors.New("appointment_id is required")
	}
	if c.PatientID == "" {
		return errors.New("patient_id is required")
	}
	if c.Mode != ConsultationModeOnline && c.Mode != ConsultationModeOffline {
		return errors.New("invalid consultation mode")
	}
	if c.Bill.BaseFee < 0 {
		return errors.New("base fee cannot be negative")
	}
	return nil
}
