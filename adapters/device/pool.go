package device

import (
	"sync"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/satriahrh/konsulta/domain/repositories"
)

// Pool keeps one stream device per open consultation
type Pool struct {
	maxBytes int
	logger   *zap.Logger

	mu      sync.RWMutex
	devices map[string]*StreamDevice
}

// NewPool creates an empty device pool
func NewPool(maxBytes int, logger *zap.Logger) *Pool {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	logger.Info("Capture device pool ready", zap.String("maxCapture", humanize.IBytes(uint64(maxBytes))))
	return &Pool{
		maxBytes: maxBytes,
		logger:   logger,
		devices:  make(map[string]*StreamDevice),
	}
}

// Device returns the capture device of a consultation, creating it on first use
func (p *Pool) Device(consultationID string) repositories.CaptureDevice {
	return p.stream(consultationID, true)
}

// Stream returns the stream device of a consultation, or nil when none exists
func (p *Pool) Stream(consultationID string) *StreamDevice {
	return p.stream(consultationID, false)
}

func (p *Pool) stream(consultationID string, create bool) *StreamDevice {
	p.mu.RLock()
	d, ok := p.devices[consultationID]
	p.mu.RUnlock()
	if ok || !create {
		return d
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if d, ok := p.devices[consultationID]; ok {
		return d
	}
	d = NewStreamDevice(p.maxBytes)
	p.devices[consultationID] = d
	return d
}

// Attach connects a microphone to a consultation's device
func (p *Pool) Attach(consultationID string, config repositories.AudioConfig) {
	p.stream(consultationID, true).Attach(config)
	p.logger.Debug("Microphone attached",
		zap.String("consultationID", consultationID),
		zap.String("encoding", config.Encoding),
		zap.Int("sampleRate", config.SampleRate))
}

// Detach disconnects the microphone of a consultation, if any
func (p *Pool) Detach(consultationID string) {
	if d := p.Stream(consultationID); d != nil {
		d.Detach()
	}
}

// Write forwards an audio chunk to a consultation's device
func (p *Pool) Write(consultationID string, chunk []byte) error {
	d := p.Stream(consultationID)
	if d == nil {
		return ErrNotCapturing
	}
	return d.Write(chunk)
}

// Remove drops a consultation's device, releasing any buffered audio
func (p *Pool) Remove(consultationID string) {
	p.mu.Lock()
	d, ok := p.devices[consultationID]
	delete(p.devices, consultationID)
	p.mu.Unlock()

	if ok {
		d.Detach()
		p.logger.Debug("Capture device removed", zap.String("consultationID", consultationID))
	}
}

// Len returns the number of devices in the pool
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.devices)
}
