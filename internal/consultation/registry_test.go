package consultation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/konsulta/domain"
	"github.com/satriahrh/konsulta/domain/entities"
	"github.com/satriahrh/konsulta/domain/repositories"
	"github.com/satriahrh/konsulta/internal/ai"
)

type fakeDevices struct {
	mu      sync.Mutex
	devices map[string]*fakeDevice
	removed []string
}

func (f *fakeDevices) Device(id string) repositories.CaptureDevice {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.devices == nil {
		f.devices = make(map[string]*fakeDevice)
	}
	d, ok := f.devices[id]
	if !ok {
		d = &fakeDevice{handle: &fakeHandle{data: []byte("audio")}}
		f.devices[id] = d
	}
	return d
}

func (f *fakeDevices) Remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.devices, id)
	f.removed = append(f.removed, id)
}

func newTestRegistry(t *testing.T) (*Registry, *fakeDevices) {
	h := newHarness()
	logger := zaptest.NewLogger(t)
	devices := &fakeDevices{}
	registry := NewRegistry(devices, Dependencies{
		Transcription: ai.NewTranscriptionClient(h.transcriber, logger),
		Suggestions:   ai.NewSuggestionClient(h.engine, logger),
		Billing:       h.gateway,
		Repository:    h.repository,
	}, logger)
	t.Cleanup(registry.CloseAll)
	return registry, devices
}

func TestRegistry_OpenGetClose(t *testing.T) {
	registry, devices := newTestRegistry(t)
	ctx := context.Background()

	o, err := registry.Open(ctx, Info{
		AppointmentID: "appt-1",
		PatientID:     "patient-1",
		Mode:          entities.ConsultationModeOnline,
		BaseFee:       500,
	}, repositories.StaticToken("token"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if o.ID() == "" {
		t.Fatal("Expected generated consultation id")
	}
	if s := o.Snapshot(); s.State != StateRecording {
		t.Errorf("Expected online consultation to be recording, got %s", s.State)
	}

	got, err := registry.Get(o.ID())
	if err != nil || got != o {
		t.Fatalf("Get returned %v, %v", got, err)
	}
	if registry.Len() != 1 {
		t.Errorf("Expected 1 open consultation, got %d", registry.Len())
	}

	if err := registry.Close(o.ID()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !o.Snapshot().Closed {
		t.Error("Closed consultation should be torn down")
	}
	if _, err := registry.Get(o.ID()); !errors.Is(err, domain.ErrConsultationNotFound) {
		t.Errorf("Expected ErrConsultationNotFound, got %v", err)
	}
	if err := registry.Close(o.ID()); !errors.Is(err, domain.ErrConsultationNotFound) {
		t.Errorf("Expected ErrConsultationNotFound on second close, got %v", err)
	}
	if len(devices.removed) != 1 || devices.removed[0] != o.ID() {
		t.Errorf("Expected device to be removed, got %v", devices.removed)
	}
}

func TestRegistry_OpenRejectsDuplicatesAndInvalid(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()
	info := Info{
		ID:            "consult-1",
		AppointmentID: "appt-1",
		PatientID:     "patient-1",
		Mode:          entities.ConsultationModeOffline,
	}

	if _, err := registry.Open(ctx, info, repositories.StaticToken("token")); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := registry.Open(ctx, info, repositories.StaticToken("token")); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("Expected duplicate open to fail, got %v", err)
	}

	invalid := info
	invalid.ID = "consult-2"
	invalid.PatientID = ""
	if _, err := registry.Open(ctx, invalid, repositories.StaticToken("token")); err == nil {
		t.Error("Expected invalid consultation to be rejected")
	}
	if registry.Len() != 1 {
		t.Errorf("Expected 1 open consultation, got %d", registry.Len())
	}
}

func TestRegistry_CloseAll(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	var opened []*Orchestrator
	for i := 0; i < 3; i++ {
		o, err := registry.Open(ctx, Info{
			AppointmentID: "appt",
			PatientID:     "patient",
			Mode:          entities.ConsultationModeOnline,
		}, repositories.StaticToken("token"))
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		opened = append(opened, o)
	}

	registry.CloseAll()

	if registry.Len() != 0 {
		t.Errorf("Expected no open consultations, got %d", registry.Len())
	}
	for _, o := range opened {
		if s := o.Snapshot(); !s.Closed || s.TimerActive {
			t.Errorf("Consultation %s not torn down: %+v", o.ID(), s)
		}
	}
}
