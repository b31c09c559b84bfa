package repositories

import "context"

// CaptureDevice is the source of consultation audio. Acquire fails with
// domain.ErrDeviceUnavailable when permission is denied or no hardware is present.
type CaptureDevice interface {
	Acquire(ctx context.Context) (CaptureHandle, error)
}

// CaptureHandle is an exclusively owned, live capture. It buffers audio until
// Finalize or Release is called.
type CaptureHandle interface {
	// Finalize stops capturing and returns the buffered audio as one encoded
	// blob. An empty slice means nothing was captured.
	Finalize() ([]byte, AudioConfig, error)
	// Release discards buffered audio and frees the device. Safe to call more than once.
	Release() error
}
