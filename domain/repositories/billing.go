package repositories

import (
	"context"

	"github.com/satriahrh/konsulta/domain/entities"
)

// BillingSubmission is the payload sent to the billing endpoint
type BillingSubmission struct {
	AppointmentID   string                     `json:"appointmentId"`
	PatientID       string                     `json:"patientId"`
	ConsultationFee float64                    `json:"consultationFee"`
	ExtraFees       []entities.BillingLineItem `json:"extraFees"`
	TotalFee        float64                    `json:"totalFee"`
	Transcript      *string                    `json:"transcript"`
	AISuggestions   *entities.SuggestionSet    `json:"aiSuggestions"`
}

// BillingGateway submits a finished bill and returns the stored record
// identifier. A nil error means the bill was accepted, even when the
// identifier is empty.
type BillingGateway interface {
	SubmitBill(ctx context.Context, submission BillingSubmission, authToken string) (string, error)
}

// TokenSource supplies the clinician's bearer token from the session collaborator
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same token
type StaticToken string

// Token implements TokenSource
func (t StaticToken) Token(ctx context.Context) (string, error) {
	return string(t), nil
}
