package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/satriahrh/konsulta/domain/repositories"
	"github.com/satriahrh/konsulta/internal/consultation"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Supported message types
const (
	MessageTypeMicrophoneReady  MessageType = "microphone_ready"
	MessageTypeMicrophoneLost   MessageType = "microphone_lost"
	MessageTypeMicrophoneStatus MessageType = "microphone_status"
	MessageTypeEvent            MessageType = "event"
	MessageTypePing             MessageType = "ping"
	MessageTypePong             MessageType = "pong"
	MessageTypeError            MessageType = "error"
)

// Error codes sent to the client
const (
	ErrorCodeInvalidMessage = "invalid_message"
	ErrorCodeCaptureFull    = "capture_full"
)

// supportedEncodings lists the container formats a microphone may stream
var supportedEncodings = map[string]bool{
	"LINEAR16":  true,
	"FLAC":      true,
	"MULAW":     true,
	"AMR":       true,
	"AMR_WB":    true,
	"OGG_OPUS":  true,
	"WEBM_OPUS": true,
	"MP3":       true,
	"MP4":       true,
}

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp"`
	MessageID string      `json:"message_id,omitempty"`
}

// MicrophoneMessage announces that the clinician's microphone became
// available or went away. Audio fields are only read for microphone_ready.
type MicrophoneMessage struct {
	BaseMessage
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
	Language   string `json:"language,omitempty"`
}

// AudioConfig returns the capture format announced by the message
func (m *MicrophoneMessage) AudioConfig() repositories.AudioConfig {
	return repositories.AudioConfig{
		SampleRate: m.SampleRate,
		Encoding:   m.Encoding,
		Language:   m.Language,
	}
}

// MicrophoneStatusMessage acknowledges a microphone change
type MicrophoneStatusMessage struct {
	BaseMessage
	Attached bool `json:"attached"`
}

// EventMessage carries one orchestrator event to the client
type EventMessage struct {
	BaseMessage
	Event consultation.Event `json:"event"`
}

// PingMessage represents a ping message for connection health check
type PingMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// MessageValidator provides validation for WebSocket messages
type MessageValidator struct {
	accepts func(encoding string) bool
}

// NewMessageValidator creates a new message validator. accepts narrows the
// supported encodings to what the transcription engine can decode; nil
// accepts every supported encoding.
func NewMessageValidator(accepts func(encoding string) bool) *MessageValidator {
	return &MessageValidator{accepts: accepts}
}

// ValidateMessage validates an incoming message
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(messageBytes, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch base.Type {
	case MessageTypeMicrophoneReady:
		var msg MicrophoneMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid microphone message: %w", err)
		}
		if err := v.ValidateMicrophone(msg.AudioConfig()); err != nil {
			return nil, err
		}
		return &msg, nil

	case MessageTypeMicrophoneLost:
		var msg MicrophoneMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid microphone message: %w", err)
		}
		return &msg, nil

	case MessageTypePing:
		var msg PingMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid ping message: %w", err)
		}
		return &msg, nil

	default:
		return nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}
}

// ValidateMicrophone checks an announced capture format
func (v *MessageValidator) ValidateMicrophone(config repositories.AudioConfig) error {
	if config.SampleRate < 8000 || config.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000")
	}
	if config.Encoding == "" {
		return fmt.Errorf("encoding is required")
	}
	if !supportedEncodings[config.Encoding] {
		return fmt.Errorf("unsupported encoding %q", config.Encoding)
	}
	if v.accepts != nil && !v.accepts(config.Encoding) {
		return fmt.Errorf("encoding %q cannot be transcribed", config.Encoding)
	}
	return nil
}

func now() string {
	return time.Now().Format(time.RFC3339)
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(code, message, details string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: BaseMessage{Type: MessageTypeError, Timestamp: now()},
		Code:        code,
		Message:     message,
		Details:     details,
	}
}

// CreatePongMessage creates a pong response message
func CreatePongMessage(data string) *PongMessage {
	return &PongMessage{
		BaseMessage: BaseMessage{Type: MessageTypePong, Timestamp: now()},
		Data:        data,
	}
}

// CreateMicrophoneStatusMessage acknowledges a microphone change
func CreateMicrophoneStatusMessage(attached bool) *MicrophoneStatusMessage {
	return &MicrophoneStatusMessage{
		BaseMessage: BaseMessage{Type: MessageTypeMicrophoneStatus, Timestamp: now()},
		Attached:    attached,
	}
}

// CreateEventMessage wraps an orchestrator event
func CreateEventMessage(event consultation.Event) *EventMessage {
	return &EventMessage{
		BaseMessage: BaseMessage{Type: MessageTypeEvent, Timestamp: event.Timestamp.Format(time.RFC3339)},
		Event:       event,
	}
}
