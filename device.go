// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package countsort

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

const (
	// defaultFenceTimeout is the maximum time Submission.Wait blocks when
	// the context carries no deadline.
	defaultFenceTimeout = 5 * time.Second

	// fencePollInterval bounds each fence wait so context cancellation is
	// observed promptly.
	fencePollInterval = 10 * time.Millisecond
)

// Device is the device and queue the engine records and submits work on.
//
// A Device is either opened standalone with OpenDevice (and owns the
// instance and device), shared from a gpucontext.DeviceProvider, or wraps
// an existing hal.Device with NewDevice. Only standalone devices are
// destroyed by Close.
type Device struct {
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue

	owned        bool
	adapterName  string
	fenceTimeout time.Duration

	closeOnce sync.Once
}

// DeviceOption configures device creation.
type DeviceOption func(*deviceOptions)

type deviceOptions struct {
	backend      gputypes.Backend
	fenceTimeout time.Duration
}

func defaultDeviceOptions() deviceOptions {
	return deviceOptions{
		backend:      gputypes.BackendVulkan,
		fenceTimeout: defaultFenceTimeout,
	}
}

// WithBackend selects the backend OpenDevice uses. The default is Vulkan.
func WithBackend(b gputypes.Backend) DeviceOption {
	return func(o *deviceOptions) {
		o.backend = b
	}
}

// WithFenceTimeout sets how long Submission.Wait blocks when its context has
// no deadline. Non-positive values keep the default.
func WithFenceTimeout(d time.Duration) DeviceOption {
	return func(o *deviceOptions) {
		if d > 0 {
			o.fenceTimeout = d
		}
	}
}

func applyDeviceOptions(opts []DeviceOption) deviceOptions {
	o := defaultDeviceOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// OpenDevice opens a standalone device, preferring discrete or integrated
// GPUs over software adapters. Close releases it.
func OpenDevice(opts ...DeviceOption) (*Device, error) {
	o := applyDeviceOptions(opts)

	backend, ok := hal.GetBackend(o.backend)
	if !ok {
		return nil, fmt.Errorf("%w: backend %v not available", ErrNoAdapter, o.backend)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("countsort: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoAdapter
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("countsort: open device: %w", err)
	}

	slogger().Info("countsort: GPU device opened",
		"adapter", selected.Info.Name,
		"type", selected.Info.DeviceType)

	return &Device{
		instance:     instance,
		device:       openDev.Device,
		queue:        openDev.Queue,
		owned:        true,
		adapterName:  selected.Info.Name,
		fenceTimeout: o.fenceTimeout,
	}, nil
}

// DeviceFromProvider shares the device of an external provider (for
// example a gogpu window). The provider must expose HalDevice() any and
// HalQueue() any returning hal.Device and hal.Queue. Close does not
// destroy a shared device.
func DeviceFromProvider(provider gpucontext.DeviceProvider, opts ...DeviceOption) (*Device, error) {
	if provider == nil {
		return nil, ErrNilDevice
	}
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("countsort: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("countsort: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("countsort: provider HalQueue is not hal.Queue")
	}
	return NewDevice(device, queue, opts...)
}

// NewDevice wraps an existing device and queue. The caller keeps ownership.
func NewDevice(device hal.Device, queue hal.Queue, opts ...DeviceOption) (*Device, error) {
	if device == nil || queue == nil {
		return nil, ErrNilDevice
	}
	o := applyDeviceOptions(opts)
	return &Device{
		device:       device,
		queue:        queue,
		fenceTimeout: o.fenceTimeout,
	}, nil
}

// HalDevice returns the underlying device.
func (d *Device) HalDevice() hal.Device { return d.device }

// HalQueue returns the underlying queue.
func (d *Device) HalQueue() hal.Queue { return d.queue }

// AdapterName returns the adapter name of a standalone device, or "" for
// shared and wrapped devices.
func (d *Device) AdapterName() string { return d.adapterName }

// Close destroys a standalone device and its instance. It is a no-op for
// shared and wrapped devices. Close is idempotent.
func (d *Device) Close() {
	d.closeOnce.Do(func() {
		if !d.owned {
			return
		}
		if d.device != nil {
			d.device.Destroy()
		}
		if d.instance != nil {
			d.instance.Destroy()
		}
		d.device = nil
		d.queue = nil
		d.instance = nil
	})
}

// NewEncoder creates a command encoder that is already recording.
func (d *Device) NewEncoder(label string) (hal.CommandEncoder, error) {
	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("countsort: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return nil, fmt.Errorf("countsort: begin encoding: %w", err)
	}
	return encoder, nil
}

// Submit finishes encoder and submits its commands. The returned
// Submission tracks completion.
func (d *Device) Submit(encoder hal.CommandEncoder) (*Submission, error) {
	if encoder == nil {
		return nil, ErrNilEncoder
	}
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("countsort: end encoding: %w", err)
	}
	fence, err := d.device.CreateFence()
	if err != nil {
		d.device.FreeCommandBuffer(cmdBuf)
		return nil, fmt.Errorf("countsort: create fence: %w", err)
	}
	if err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		d.device.DestroyFence(fence)
		d.device.FreeCommandBuffer(cmdBuf)
		return nil, fmt.Errorf("countsort: submit: %w", err)
	}
	return &Submission{
		device:  d.device,
		cmdBuf:  cmdBuf,
		fence:   fence,
		timeout: d.fenceTimeout,
		done:    make(chan struct{}),
	}, nil
}

// Submission is a submitted command buffer. Wait blocks until the device
// has executed it.
type Submission struct {
	device  hal.Device
	cmdBuf  hal.CommandBuffer
	fence   hal.Fence
	timeout time.Duration

	mu       sync.Mutex
	finished bool
	done     chan struct{}
}

// Wait blocks until the submission completes, ctx is done, or the fence
// timeout elapses. Submitted work cannot be cancelled: after a context
// error the submission is still pending and Wait may be called again.
// Resources are released once completion is observed.
func (s *Submission) Wait(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return nil
	}

	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("countsort: wait for GPU: %w", err)
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("countsort: GPU timeout after %v", s.timeout)
		}
		ok, err := s.device.Wait(s.fence, 1, min(remaining, fencePollInterval))
		if err != nil {
			return fmt.Errorf("countsort: wait for GPU: %w", err)
		}
		if ok {
			break
		}
	}

	s.release()
	return nil
}

// Done is closed once Wait has observed completion.
func (s *Submission) Done() <-chan struct{} {
	return s.done
}

// release frees the fence and command buffer. Callers hold s.mu.
func (s *Submission) release() {
	s.device.DestroyFence(s.fence)
	s.device.FreeCommandBuffer(s.cmdBuf)
	s.fence = nil
	s.cmdBuf = nil
	s.finished = true
	close(s.done)
}
