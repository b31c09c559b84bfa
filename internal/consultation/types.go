package consultation

import (
	"time"

	"github.com/satriahrh/konsulta/domain/entities"
)

// State represents the progress of a consultation through recording,
// transcription, suggestions and billing
type State string

const (
	StateAwaitingStart      State = "awaiting_start"
	StateRecording          State = "recording"
	StateTranscribing       State = "transcribing"
	StateSuggestionsPending State = "suggestions_pending"
	StateReadyForBilling    State = "ready_for_billing"
	StateBilled             State = "billed"
	StateComplete           State = "complete"
	// StateError is transient: it is always followed by StateReadyForBilling
	StateError State = "error"
)

// Info identifies the consultation an orchestrator is created for
type Info struct {
	ID            string                    `json:"id"`
	AppointmentID string                    `json:"appointment_id"`
	PatientID     string                    `json:"patient_id"`
	Mode          entities.ConsultationMode `json:"mode"`
	BaseFee       float64                   `json:"base_fee"`
}

// NoticeKind classifies non-blocking, clinician-visible messages
type NoticeKind string

const (
	NoticeDeviceUnavailable   NoticeKind = "device_unavailable"
	NoticeRecordingFailed     NoticeKind = "recording_failed"
	NoticeNoAudio             NoticeKind = "no_audio"
	NoticeTranscriptionFailed NoticeKind = "transcription_failed"
	NoticeSuggestionsFailed   NoticeKind = "suggestions_unavailable"
	NoticeBillingFailed       NoticeKind = "billing_failed"
	NoticeRecordNotSaved      NoticeKind = "record_not_saved"
)

// Notice is a human-readable message surfaced to the clinician
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
	At      time.Time  `json:"at"`
}

// Snapshot is an immutable view of an orchestrator
type Snapshot struct {
	Info            Info                      `json:"info"`
	State           State                     `json:"state"`
	Recording       entities.RecordingSession `json:"recording"`
	TimerActive     bool                      `json:"timer_active"`
	Transcript      *entities.Transcript      `json:"transcript,omitempty"`
	Suggestions     *entities.SuggestionSet   `json:"suggestions,omitempty"`
	Bill            entities.ConsultationBill `json:"bill"`
	Notices         []Notice                  `json:"notices"`
	LastError       string                    `json:"last_error,omitempty"`
	BillingRecordID string                    `json:"billing_record_id,omitempty"`
	Closed          bool                      `json:"closed"`
}

// resultKind tags the asynchronous step a result belongs to
type resultKind int

const (
	resultTranscription resultKind = iota
	resultSuggestions
)

func (k resultKind) String() string {
	switch k {
	case resultTranscription:
		return "transcription"
	case resultSuggestions:
		return "suggestions"
	default:
		return "unknown"
	}
}

// stepResult is the outcome of one asynchronous network step. Exactly one of
// the value fields or err is set.
type stepResult struct {
	kind        resultKind
	generation  uint64
	transcript  *entities.Transcript
	suggestions *entities.SuggestionSet
	err         error
}
