package consultation

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/konsulta/domain/entities"
	"github.com/satriahrh/konsulta/domain/repositories"
	"github.com/satriahrh/konsulta/internal/ai"
)

func newSweptRegistry(t *testing.T) (*Registry, *harness) {
	h := newHarness()
	logger := zaptest.NewLogger(t)
	registry := NewRegistry(&fakeDevices{}, Dependencies{
		Transcription: ai.NewTranscriptionClient(h.transcriber, logger),
		Suggestions:   ai.NewSuggestionClient(h.engine, logger),
		Billing:       h.gateway,
		Clock:         h.clock,
	}, logger)
	t.Cleanup(registry.CloseAll)
	return registry, h
}

func TestRegistry_Sweep(t *testing.T) {
	registry, h := newSweptRegistry(t)
	ctx := context.Background()

	open := func(id string) *Orchestrator {
		o, err := registry.Open(ctx, Info{
			ID:            id,
			AppointmentID: "appt-" + id,
			PatientID:     "patient-1",
			Mode:          entities.ConsultationModeOffline,
			BaseFee:       100,
		}, repositories.StaticToken("token"))
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		return o
	}

	waiting := open("waiting")
	billed := open("billed")
	if err := billed.SkipToBilling(); err != nil {
		t.Fatalf("SkipToBilling failed: %v", err)
	}
	if _, err := billed.SubmitBill(ctx); err != nil {
		t.Fatalf("SubmitBill failed: %v", err)
	}

	h.clock.Add(20 * time.Minute)
	if closed := registry.Sweep(15*time.Minute, 4*time.Hour); closed != 1 {
		t.Fatalf("Expected 1 swept consultation, got %d", closed)
	}
	if _, err := registry.Get("billed"); err == nil {
		t.Error("Completed consultation should be swept after retention")
	}
	if _, err := registry.Get("waiting"); err != nil {
		t.Error("Waiting consultation should stay open")
	}

	h.clock.Add(4 * time.Hour)
	if closed := registry.Sweep(15*time.Minute, 4*time.Hour); closed != 1 {
		t.Fatalf("Expected idle consultation to be swept, got %d", closed)
	}
	if !waiting.Snapshot().Closed {
		t.Error("Idle consultation should be torn down")
	}
}

func TestSweeper_Loop(t *testing.T) {
	registry, h := newSweptRegistry(t)
	ctx := context.Background()

	o, err := registry.Open(ctx, Info{
		AppointmentID: "appt-1",
		PatientID:     "patient-1",
		Mode:          entities.ConsultationModeOffline,
	}, repositories.StaticToken("token"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	sweeper := NewSweeper(registry, SweeperConfig{
		Interval:  time.Minute,
		Retention: time.Minute,
		MaxIdle:   30 * time.Minute,
		Clock:     h.clock,
	}, zaptest.NewLogger(t))
	sweeper.Start()
	defer sweeper.Stop()

	h.clock.Add(30 * time.Minute)
	waitFor(t, func() bool {
		h.clock.Add(time.Minute)
		return o.Snapshot().Closed
	})
	if registry.Len() != 0 {
		t.Errorf("Expected no open consultations, got %d", registry.Len())
	}
}
