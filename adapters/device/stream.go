package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/satriahrh/konsulta/domain"
	"github.com/satriahrh/konsulta/domain/repositories"
)

// DefaultMaxBytes caps the audio buffered for one recording
const DefaultMaxBytes = 64 << 20

var (
	// ErrNotCapturing is returned by Write when no recording holds the device
	ErrNotCapturing = errors.New("no active capture")
	// ErrCaptureFull is returned by Write once the buffer cap is reached
	ErrCaptureFull = errors.New("capture buffer full")
)

// StreamDevice is a capture device fed by audio chunks pushed from a client
// microphone. The client attaches the microphone, then chunks written while a
// handle is held are buffered for that handle.
type StreamDevice struct {
	maxBytes int

	mu       sync.Mutex
	attached bool
	config   repositories.AudioConfig
	active   *streamHandle
}

// NewStreamDevice creates a detached stream device
func NewStreamDevice(maxBytes int) *StreamDevice {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &StreamDevice{maxBytes: maxBytes}
}

// Attach marks the microphone as available with the given audio format
func (d *StreamDevice) Attach(config repositories.AudioConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attached = true
	d.config = config
}

// Detach marks the microphone as gone. Audio already buffered by an active
// handle is kept so the recording can still be finalized.
func (d *StreamDevice) Detach() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attached = false
}

// Attached reports whether a microphone is connected
func (d *StreamDevice) Attached() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attached
}

// Capturing reports whether a handle is currently buffering audio
func (d *StreamDevice) Capturing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active != nil
}

// Write appends a chunk of encoded audio to the active capture
func (d *StreamDevice) Write(chunk []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active == nil {
		return ErrNotCapturing
	}
	if d.active.buf.Len()+len(chunk) > d.maxBytes {
		return ErrCaptureFull
	}
	d.active.buf.Write(chunk)
	return nil
}

// Acquire implements repositories.CaptureDevice
func (d *StreamDevice) Acquire(ctx context.Context) (repositories.CaptureHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.attached {
		return nil, fmt.Errorf("%w: microphone not connected", domain.ErrDeviceUnavailable)
	}
	if d.active != nil {
		return nil, fmt.Errorf("%w: microphone is in use", domain.ErrDeviceUnavailable)
	}

	d.active = &streamHandle{device: d, config: d.config}
	return d.active, nil
}

type streamHandle struct {
	device *StreamDevice
	config repositories.AudioConfig
	buf    bytes.Buffer
	done   bool
}

// Finalize implements repositories.CaptureHandle
func (h *streamHandle) Finalize() ([]byte, repositories.AudioConfig, error) {
	h.device.mu.Lock()
	defer h.device.mu.Unlock()

	if h.done {
		return nil, h.config, errors.New("capture already finalized")
	}
	h.done = true
	data := bytes.Clone(h.buf.Bytes())
	h.buf.Reset()
	if h.device.active == h {
		h.device.active = nil
	}
	return data, h.config, nil
}

// Release implements repositories.CaptureHandle
func (h *streamHandle) Release() error {
	h.device.mu.Lock()
	defer h.device.mu.Unlock()

	h.done = true
	h.buf.Reset()
	if h.device.active == h {
		h.device.active = nil
	}
	return nil
}
