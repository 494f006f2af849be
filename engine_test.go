//go:build !nogpu

package countsort

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// newNoopDevice creates a Device backed by the noop HAL for tests that
// need no real GPU.
func newNoopDevice(t *testing.T) *Device {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	dev, err := NewDevice(openDev.Device, openDev.Queue)
	if err != nil {
		t.Fatalf("NewDevice failed: %v", err)
	}
	t.Cleanup(func() {
		openDev.Device.Destroy()
		instance.Destroy()
	})
	return dev
}

func createTestBuffer(t *testing.T, dev *Device, label string, elements uint64, usage gputypes.BufferUsage) *Buffer {
	t.Helper()
	buf, err := dev.CreateBuffer(&BufferDescriptor{Label: label, Size: elements * 4, Usage: usage})
	if err != nil {
		t.Fatalf("CreateBuffer(%s): %v", label, err)
	}
	t.Cleanup(buf.Destroy)
	return buf
}

func TestNewEngine(t *testing.T) {
	dev := newNoopDevice(t)
	values := createTestBuffer(t, dev, "values", 8192, storage|copySrc)
	counts := createTestBuffer(t, dev, "counts", 8192, storage|copySrc|copyDst)

	s, err := New(dev, values, counts, 128)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Destroy()

	ids := s.SortingIDBuffer()
	if ids == nil {
		t.Fatal("SortingIDBuffer() is nil")
	}
	if ids.Size() != values.Size() {
		t.Errorf("sorting id buffer size = %d, want %d", ids.Size(), values.Size())
	}
	if got := ids.Capabilities(); got != CapabilityStorage|CapabilityCopyOut {
		t.Errorf("sorting id capabilities = %v, want storage|copy-out", got)
	}
	if s.Plan().Levels() != 2 {
		t.Errorf("Levels() = %d, want 2", s.Plan().Levels())
	}
	if len(s.kernels.scan) != 2 || len(s.kernels.propagate) != 1 {
		t.Errorf("scan/propagate pipelines = %d/%d, want 2/1", len(s.kernels.scan), len(s.kernels.propagate))
	}
	if s.CountBuffer() != counts || s.ValueBuffer() != values || s.Device() != dev {
		t.Error("accessors do not return construction inputs")
	}
}

func TestNewEngineSPIRV(t *testing.T) {
	dev := newNoopDevice(t)
	values := createTestBuffer(t, dev, "values", 256, storage)
	counts := createTestBuffer(t, dev, "counts", 64, storage|copyDst)

	s, err := New(dev, values, counts, 64, WithShaderFormat(ShaderFormatSPIRV))
	if err != nil {
		t.Skipf("SPIR-V compilation unavailable: %v", err)
	}
	s.Destroy()
}

func TestNewEngineRejects(t *testing.T) {
	dev := newNoopDevice(t)

	t.Run("count buffer without clear", func(t *testing.T) {
		values := createTestBuffer(t, dev, "values", 16, storage)
		counts := createTestBuffer(t, dev, "counts", 16, storage|copySrc)
		_, err := New(dev, values, counts, 16)
		var mc *MissingCapabilityError
		if !errors.As(err, &mc) || mc.Buffer != countBufferName || mc.Capability != CapabilityClear {
			t.Fatalf("error = %v, want missing clear on count buffer", err)
		}
	})

	t.Run("4096 buckets width 32", func(t *testing.T) {
		values := createTestBuffer(t, dev, "values", 4096, storage|copySrc)
		counts := createTestBuffer(t, dev, "counts", 4096, storage|copySrc|copyDst)
		_, err := New(dev, values, counts, 32)
		var tl *TooManyLevelsError
		if !errors.As(err, &tl) {
			t.Fatalf("error = %v, want *TooManyLevelsError", err)
		}
		if tl.Size != 4096 || tl.WorkgroupSize != 32 || tl.Levels != 3 {
			t.Errorf("got TooManyLevels(%d, %d, %d), want (4096, 32, 3)", tl.Size, tl.WorkgroupSize, tl.Levels)
		}
	})

	t.Run("invalid width", func(t *testing.T) {
		values := createTestBuffer(t, dev, "values", 16, storage)
		counts := createTestBuffer(t, dev, "counts", 16, storage|copyDst)
		if _, err := New(dev, values, counts, 1); !errors.Is(err, ErrInvalidWorkgroupSize) {
			t.Fatalf("error = %v, want ErrInvalidWorkgroupSize", err)
		}
	})

	t.Run("nil device", func(t *testing.T) {
		if _, err := New(nil, nil, nil, 64); !errors.Is(err, ErrNilDevice) {
			t.Fatalf("error = %v, want ErrNilDevice", err)
		}
	})
}

func TestDispatchWorkErrors(t *testing.T) {
	dev := newNoopDevice(t)
	values := createTestBuffer(t, dev, "values", 64, storage)
	counts := createTestBuffer(t, dev, "counts", 64, storage|copyDst)
	other := createTestBuffer(t, dev, "other", 64, storage|copyDst)

	s, err := New(dev, values, counts, 8)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	enc, err := dev.NewEncoder("test")
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	defer enc.DiscardEncoding()

	if err := s.DispatchWork(enc, other); !errors.Is(err, ErrCountBufferMismatch) {
		t.Errorf("foreign count buffer: %v, want ErrCountBufferMismatch", err)
	}
	if err := s.DispatchWork(nil, counts); !errors.Is(err, ErrNilEncoder) {
		t.Errorf("nil encoder: %v, want ErrNilEncoder", err)
	}
	if err := s.DispatchWork(enc, counts); err != nil {
		t.Errorf("DispatchWork: %v", err)
	}

	s.Destroy()
	s.Destroy() // idempotent
	if !s.SortingIDBuffer().IsDestroyed() {
		t.Error("sorting id buffer not destroyed")
	}
	if counts.IsDestroyed() || values.IsDestroyed() {
		t.Error("Destroy released caller-owned buffers")
	}
	if err := s.DispatchWork(enc, counts); !errors.Is(err, ErrEngineDestroyed) {
		t.Errorf("after Destroy: %v, want ErrEngineDestroyed", err)
	}
}

// A wrapped handle of the engine's count buffer is accepted.
func TestDispatchWorkWrappedCountBuffer(t *testing.T) {
	dev := newNoopDevice(t)
	values := createTestBuffer(t, dev, "values", 64, storage)
	counts := createTestBuffer(t, dev, "counts", 64, storage|copyDst)
	s, err := New(dev, values, counts, 8)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Destroy()

	alias := WrapBuffer(counts.Raw(), BufferDescriptor{Label: "alias", Size: counts.Size(), Usage: counts.Usage()})
	if !s.isCountBuffer(alias) {
		t.Error("alias of the count buffer rejected")
	}
	var none hal.Buffer
	if s.isCountBuffer(WrapBuffer(none, BufferDescriptor{})) {
		t.Error("nil-handle buffer accepted")
	}
}
