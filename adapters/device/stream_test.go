package device

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/konsulta/domain"
	"github.com/satriahrh/konsulta/domain/repositories"
	"github.com/satriahrh/konsulta/internal/consultation"
)

var (
	_ repositories.CaptureDevice  = &StreamDevice{}
	_ repositories.CaptureHandle  = &streamHandle{}
	_ consultation.DeviceProvider = &Pool{}
)

var testConfig = repositories.AudioConfig{SampleRate: 48000, Encoding: "WEBM_OPUS", Language: "en-US"}

func TestStreamDevice_AcquireRequiresMicrophone(t *testing.T) {
	d := NewStreamDevice(0)

	if _, err := d.Acquire(context.Background()); !errors.Is(err, domain.ErrDeviceUnavailable) {
		t.Fatalf("Expected ErrDeviceUnavailable, got %v", err)
	}

	d.Attach(testConfig)
	h, err := d.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if _, err := d.Acquire(context.Background()); !errors.Is(err, domain.ErrDeviceUnavailable) {
		t.Errorf("Expected busy device to be unavailable, got %v", err)
	}

	if err := h.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := d.Acquire(context.Background()); err != nil {
		t.Errorf("Expected device to be reusable after release, got %v", err)
	}
}

func TestStreamDevice_CaptureAndFinalize(t *testing.T) {
	d := NewStreamDevice(0)
	d.Attach(testConfig)

	if err := d.Write([]byte("early")); !errors.Is(err, ErrNotCapturing) {
		t.Errorf("Expected ErrNotCapturing, got %v", err)
	}

	h, err := d.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	for _, chunk := range []string{"one ", "two ", "three"} {
		if err := d.Write([]byte(chunk)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	// microphone lost mid-recording keeps what was captured
	d.Detach()

	data, config, err := h.Finalize()
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if string(data) != "one two three" {
		t.Errorf("Unexpected data %q", data)
	}
	if config != testConfig {
		t.Errorf("Unexpected config %+v", config)
	}
	if d.Capturing() {
		t.Error("Device should be idle after finalize")
	}
	if _, _, err := h.Finalize(); err == nil {
		t.Error("Second finalize should fail")
	}
	if err := h.Release(); err != nil {
		t.Errorf("Release after finalize should succeed: %v", err)
	}
}

func TestStreamDevice_ReleaseDiscardsAudio(t *testing.T) {
	d := NewStreamDevice(0)
	d.Attach(testConfig)

	h, _ := d.Acquire(context.Background())
	_ = d.Write([]byte("secret"))
	if err := h.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	if err := d.Write([]byte("more")); !errors.Is(err, ErrNotCapturing) {
		t.Errorf("Expected ErrNotCapturing after release, got %v", err)
	}
}

func TestStreamDevice_MaxBytes(t *testing.T) {
	d := NewStreamDevice(8)
	d.Attach(testConfig)
	h, _ := d.Acquire(context.Background())

	if err := d.Write([]byte("12345")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := d.Write([]byte("6789")); !errors.Is(err, ErrCaptureFull) {
		t.Errorf("Expected ErrCaptureFull, got %v", err)
	}

	data, _, _ := h.Finalize()
	if string(data) != "12345" {
		t.Errorf("Expected capped data, got %q", data)
	}
}

func TestPool(t *testing.T) {
	p := NewPool(0, zaptest.NewLogger(t))

	if p.Stream("c1") != nil {
		t.Error("Stream should not create devices")
	}
	d := p.Device("c1")
	if d != p.Device("c1") {
		t.Error("Device should return the same instance")
	}
	stream := p.Stream("c1")
	if stream == nil || repositories.CaptureDevice(stream) != d {
		t.Fatal("Stream should return the created device")
	}

	stream.Attach(testConfig)
	p.Remove("c1")
	if stream.Attached() {
		t.Error("Removed device should be detached")
	}
	if p.Len() != 0 {
		t.Errorf("Expected empty pool, got %d", p.Len())
	}
}

func TestPool_AttachDetach(t *testing.T) {
	p := NewPool(0, zaptest.NewLogger(t))

	p.Detach("missing")
	if p.Len() != 0 {
		t.Error("Detach should not create devices")
	}

	p.Attach("c1", testConfig)
	stream := p.Stream("c1")
	if stream == nil || !stream.Attached() {
		t.Fatal("Attach should create an attached device")
	}
	if _, err := stream.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	p.Detach("c1")
	if stream.Attached() {
		t.Error("Device should be detached")
	}
	if !stream.Capturing() {
		t.Error("Detach should keep the active capture")
	}
}

func TestPool_Write(t *testing.T) {
	p := NewPool(0, zaptest.NewLogger(t))

	if err := p.Write("c1", []byte{1}); !errors.Is(err, ErrNotCapturing) {
		t.Errorf("Expected ErrNotCapturing for unknown device, got %v", err)
	}

	p.Attach("c1", testConfig)
	handle, err := p.Device("c1").Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := p.Write("c1", []byte{1, 2, 3}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	data, _, err := handle.Finalize()
	if err != nil || len(data) != 3 {
		t.Errorf("Expected 3 buffered bytes, got %d, %v", len(data), err)
	}
}
