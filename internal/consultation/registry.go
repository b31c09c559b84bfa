package consultation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/konsulta/domain"
	"github.com/satriahrh/konsulta/domain/repositories"
)

// DeviceProvider hands out the capture device bound to a consultation
type DeviceProvider interface {
	Device(consultationID string) repositories.CaptureDevice
	Remove(consultationID string)
}

// Registry tracks the open consultations of this process
type Registry struct {
	devices DeviceProvider
	base    Dependencies
	logger  *zap.Logger

	mu            sync.RWMutex
	consultations map[string]*Orchestrator
}

// NewRegistry creates a registry. base supplies every dependency except
// Device and Tokens, which are bound per consultation.
func NewRegistry(devices DeviceProvider, base Dependencies, logger *zap.Logger) *Registry {
	return &Registry{
		devices:       devices,
		base:          base,
		logger:        logger,
		consultations: make(map[string]*Orchestrator),
	}
}

// Open creates, registers and enters a new consultation
func (r *Registry) Open(ctx context.Context, info Info, tokens repositories.TokenSource) (*Orchestrator, error) {
	deps := r.base
	deps.Tokens = tokens
	deps.Logger = r.logger

	if info.ID == "" {
		info.ID = uuid.New().String()
	}
	deps.Device = r.devices.Device(info.ID)

	o, err := New(info, deps)
	if err != nil {
		r.devices.Remove(info.ID)
		return nil, err
	}

	r.mu.Lock()
	if _, exists := r.consultations[info.ID]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: consultation %s is already open", domain.ErrInvalidTransition, info.ID)
	}
	r.consultations[o.ID()] = o
	r.mu.Unlock()

	if err := o.Enter(ctx); err != nil {
		r.Close(o.ID())
		return nil, err
	}

	r.logger.Info("Consultation opened",
		zap.String("consultationID", o.ID()),
		zap.String("appointmentID", info.AppointmentID))
	return o, nil
}

// Get returns an open consultation
func (r *Registry) Get(id string) (*Orchestrator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.consultations[id]
	if !ok {
		return nil, domain.ErrConsultationNotFound
	}
	return o, nil
}

// Close tears down and forgets a consultation
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	o, ok := r.consultations[id]
	delete(r.consultations, id)
	r.mu.Unlock()

	if !ok {
		return domain.ErrConsultationNotFound
	}

	o.Teardown()
	r.devices.Remove(id)
	r.logger.Info("Consultation closed", zap.String("consultationID", id))
	return nil
}

// CloseAll tears down every open consultation
func (r *Registry) CloseAll() {
	r.mu.Lock()
	open := r.consultations
	r.consultations = make(map[string]*Orchestrator)
	r.mu.Unlock()

	for id, o := range open {
		o.Teardown()
		r.devices.Remove(id)
	}
	r.logger.Info("All consultations closed", zap.Int("count", len(open)))
}

// Len returns the number of open consultations
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.consultations)
}

// Sweep closes consultations that finished more than retention ago, and any
// consultation untouched for longer than maxIdle. It returns the number closed.
func (r *Registry) Sweep(retention, maxIdle time.Duration) int {
	r.mu.RLock()
	var stale []string
	for id, o := range r.consultations {
		state, idle := o.Idle()
		if (state == StateComplete && idle >= retention) || idle >= maxIdle {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	closed := 0
	for _, id := range stale {
		if err := r.Close(id); err == nil {
			closed++
		}
	}
	return closed
}
