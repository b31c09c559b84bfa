package recording

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/satriahrh/konsulta/domain"
	"github.com/satriahrh/konsulta/domain/entities"
	"github.com/satriahrh/konsulta/domain/repositories"
)

// tickInterval is the cadence of the duration counter
const tickInterval = time.Second

// Controller owns the capture device and the recording lifecycle of one consultation.
//
//	Idle --Start--> Recording --Stop--> Stopped --Reset--> Idle
//
// The live capture handle never leaves the controller; Stop hands off an
// immutable AudioBlob instead.
type Controller struct {
	device repositories.CaptureDevice
	clock  clock.Clock
	logger *zap.Logger
	onTick func(seconds int)

	mu        sync.Mutex
	state     entities.RecordingState
	handle    repositories.CaptureHandle
	startedAt time.Time
	duration  int
	stopTick  chan struct{}
}

// Option configures a Controller
type Option func(*Controller)

// WithClock replaces the wall clock, mainly for tests
func WithClock(c clock.Clock) Option {
	return func(ctrl *Controller) {
		ctrl.clock = c
	}
}

// WithTickHandler registers a callback invoked after every duration tick.
// It runs on the ticker goroutine without the controller lock held.
func WithTickHandler(fn func(seconds int)) Option {
	return func(ctrl *Controller) {
		ctrl.onTick = fn
	}
}

// NewController creates a controller for one consultation's capture device
func NewController(device repositories.CaptureDevice, logger *zap.Logger, opts ...Option) *Controller {
	c := &Controller{
		device: device,
		clock:  clock.New(),
		logger: logger,
		state:  entities.RecordingStateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start acquires the capture device and begins recording
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case entities.RecordingStateRecording:
		return domain.ErrAlreadyRecording
	case entities.RecordingStateStopped:
		return fmt.Errorf("%w: reset the finished recording before starting a new one", domain.ErrInvalidTransition)
	}

	handle, err := c.device.Acquire(ctx)
	if err != nil {
		c.logger.Warn("Failed to acquire capture device", zap.Error(err))
		if errors.Is(err, domain.ErrDeviceUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, err)
	}

	c.handle = handle
	c.state = entities.RecordingStateRecording
	c.startedAt = c.clock.Now()
	c.duration = 0
	c.startTicker()

	c.logger.Info("Recording started")
	return nil
}

// Stop finalizes the buffered audio into one blob and releases the device.
// It returns nil without error when not recording or when nothing was captured.
func (c *Controller) Stop() (*entities.AudioBlob, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != entities.RecordingStateRecording {
		return nil, nil
	}

	c.cancelTicker()
	handle := c.handle
	c.handle = nil
	c.state = entities.RecordingStateStopped

	data, config, err := handle.Finalize()
	if relErr := handle.Release(); relErr != nil {
		c.logger.Warn("Failed to release capture device", zap.Error(relErr))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to finalize recording: %w", err)
	}

	c.logger.Info("Recording stopped",
		zap.Int("durationSeconds", c.duration),
		zap.Int("bytes", len(data)))

	if len(data) == 0 {
		return nil, nil
	}

	return &entities.AudioBlob{
		Data:            bytes.Clone(data),
		Encoding:        config.Encoding,
		SampleRate:      config.SampleRate,
		DurationSeconds: c.duration,
	}, nil
}

// Reset returns the controller to Idle from any state, cancelling the ticker,
// discarding buffered audio and releasing the device handle.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelTicker()
	if c.handle != nil {
		if err := c.handle.Release(); err != nil {
			c.logger.Warn("Failed to release capture device on reset", zap.Error(err))
		}
		c.handle = nil
	}
	c.state = entities.RecordingStateIdle
	c.startedAt = time.Time{}
	c.duration = 0
}

// State returns the current recording state
func (c *Controller) State() entities.RecordingState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Duration returns the number of elapsed seconds of the current recording
func (c *Controller) Duration() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duration
}

// Session returns a snapshot of the recording session
func (c *Controller) Session() entities.RecordingSession {
	c.mu.Lock()
	defer c.mu.Unlock()

	session := entities.RecordingSession{
		State:           c.state,
		DurationSeconds: c.duration,
	}
	if !c.startedAt.IsZero() {
		startedAt := c.startedAt
		session.StartedAt = &startedAt
	}
	return session
}

// startTicker must be called with mu held
func (c *Controller) startTicker() {
	stop := make(chan struct{})
	c.stopTick = stop
	ticker := c.clock.Ticker(tickInterval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.mu.Lock()
				if c.stopTick != stop || c.state != entities.RecordingStateRecording {
					c.mu.Unlock()
					return
				}
				c.duration++
				seconds := c.duration
				onTick := c.onTick
				c.mu.Unlock()

				if onTick != nil {
					onTick(seconds)
				}
			}
		}
	}()
}

// cancelTicker must be called with mu held
func (c *Controller) cancelTicker() {
	if c.stopTick != nil {
		close(c.stopTick)
		c.stopTick = nil
	}
}

// Ticking reports whether the duration ticker is active
func (c *Controller) Ticking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopTick != nil
}
