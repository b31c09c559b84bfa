package domain

import "errors"

// Consultation failure taxonomy. Reasons are attached with fmt.Errorf("%w: ...")
// so callers can match with errors.Is and still show the reason to the clinician.
var (
	ErrDeviceUnavailable       = errors.New("capture device unavailable")
	ErrAlreadyRecording        = errors.New("already recording")
	ErrTranscriptionFailed     = errors.New("transcription failed")
	ErrSuggestionFailed        = errors.New("suggestions failed")
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrBillingSubmissionFailed = errors.New("billing submission failed")

	ErrInvalidTransition    = errors.New("action not allowed in current state")
	ErrRequestInFlight      = errors.New("another request is still in flight")
	ErrConsultationClosed   = errors.New("consultation is closed")
	ErrConsultationNotFound = errors.New("consultation not found")
)
