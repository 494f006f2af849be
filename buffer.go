// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package countsort

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// ErrBufferDestroyed is returned when operating on a destroyed buffer.
var ErrBufferDestroyed = errors.New("countsort: buffer has been destroyed")

// copyBufferAlignment is the WebGPU alignment for buffer copies and clears.
const copyBufferAlignment uint64 = 4

// BufferDescriptor describes a buffer to create.
type BufferDescriptor struct {
	// Label is an optional debug name.
	Label string

	// Size is the buffer size in bytes.
	Size uint64

	// Usage specifies how the buffer will be used.
	Usage gputypes.BufferUsage
}

// Buffer is a device buffer together with the descriptor it was created
// with. The engine reads capabilities and element counts from the
// descriptor, so buffers created elsewhere must be wrapped with WrapBuffer.
//
// Buffer is safe for concurrent use.
type Buffer struct {
	mu sync.RWMutex

	halBuffer hal.Buffer

	// device is the owning device. nil for wrapped buffers, whose
	// lifetime is managed by the caller.
	device hal.Device

	descriptor BufferDescriptor
	destroyed  bool
}

// WrapBuffer wraps a buffer created outside this package. desc must
// describe raw exactly. Destroy on a wrapped buffer only marks it unusable.
func WrapBuffer(raw hal.Buffer, desc BufferDescriptor) *Buffer {
	return &Buffer{halBuffer: raw, descriptor: desc}
}

// newBuffer creates a Buffer owned by device.
func newBuffer(raw hal.Buffer, device hal.Device, desc BufferDescriptor) *Buffer {
	return &Buffer{halBuffer: raw, device: device, descriptor: desc}
}

// Label returns the buffer's debug label.
func (b *Buffer) Label() string {
	return b.descriptor.Label
}

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 {
	return b.descriptor.Size
}

// Len returns the number of u32 elements the buffer holds.
func (b *Buffer) Len() uint32 {
	return uint32(b.descriptor.Size / elementSize) //nolint:gosec // engine buffers are validated to fit
}

// Usage returns the buffer usage flags.
func (b *Buffer) Usage() gputypes.BufferUsage {
	return b.descriptor.Usage
}

// Capabilities returns the engine capabilities granted by the usage flags.
func (b *Buffer) Capabilities() Capability {
	return CapabilitiesOf(b.descriptor.Usage)
}

// IsDestroyed reports whether Destroy has been called.
func (b *Buffer) IsDestroyed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.destroyed
}

// Raw returns the underlying buffer handle, or nil after Destroy.
func (b *Buffer) Raw() hal.Buffer {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.destroyed {
		return nil
	}
	return b.halBuffer
}

// binding returns a whole-buffer bind group entry.
func (b *Buffer) binding(index uint32) gputypes.BindGroupEntry {
	return gputypes.BindGroupEntry{
		Binding: index,
		Resource: gputypes.BufferBinding{
			Buffer: b.Raw().NativeHandle(),
			Offset: 0,
			Size:   0, // 0 = entire buffer
		},
	}
}

// Destroy releases the buffer. It is idempotent.
func (b *Buffer) Destroy() {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return
	}
	b.destroyed = true
	device := b.device
	raw := b.halBuffer
	b.halBuffer = nil
	b.mu.Unlock()

	if device != nil && raw != nil {
		device.DestroyBuffer(raw)
	}
}

// CreateBuffer creates a buffer on the device. The size is rounded up to
// the copy alignment.
func (d *Device) CreateBuffer(desc *BufferDescriptor) (*Buffer, error) {
	if desc == nil {
		return nil, fmt.Errorf("countsort: buffer descriptor is nil")
	}
	if desc.Size == 0 {
		return nil, fmt.Errorf("%w: %q size is 0", ErrInvalidBufferSize, desc.Label)
	}
	if desc.Usage == 0 {
		return nil, fmt.Errorf("countsort: buffer %q usage is empty", desc.Label)
	}

	alignedSize := (desc.Size + copyBufferAlignment - 1) &^ (copyBufferAlignment - 1)
	raw, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  alignedSize,
		Usage: desc.Usage,
	})
	if err != nil {
		return nil, fmt.Errorf("countsort: create buffer %q: %w", desc.Label, err)
	}

	resolved := *desc
	resolved.Size = alignedSize
	slogger().Debug("countsort: buffer created",
		"label", desc.Label,
		"size", alignedSize,
		"capabilities", CapabilitiesOf(desc.Usage).String())
	return newBuffer(raw, d.device, resolved), nil
}

// CreateBufferInit creates a buffer holding data. CopyDst is added to usage
// so the contents can be uploaded through the queue.
func (d *Device) CreateBufferInit(label string, usage gputypes.BufferUsage, data []uint32) (*Buffer, error) {
	buf, err := d.CreateBuffer(&BufferDescriptor{
		Label: label,
		Size:  uint64(len(data)) * elementSize,
		Usage: usage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, err
	}
	if err := d.queue.WriteBuffer(buf.Raw(), 0, encodeUint32s(data)); err != nil {
		buf.Destroy()
		return nil, fmt.Errorf("countsort: write buffer %q: %w", label, err)
	}
	return buf, nil
}

// WriteUint32s uploads data into buf starting at element offset.
func (d *Device) WriteUint32s(buf *Buffer, offset uint32, data []uint32) error {
	if buf == nil {
		return ErrNilBuffer
	}
	raw := buf.Raw()
	if raw == nil {
		return ErrBufferDestroyed
	}
	if !buf.Usage().Contains(gputypes.BufferUsageCopyDst) {
		return &MissingCapabilityError{Capability: CapabilityClear, Buffer: buf.Label()}
	}
	end := uint64(offset) + uint64(len(data))
	if end*elementSize > buf.Size() {
		return fmt.Errorf("%w: writing %d elements at %d overflows %q (%d elements)",
			ErrInvalidBufferSize, len(data), offset, buf.Label(), buf.Len())
	}
	if err := d.queue.WriteBuffer(raw, uint64(offset)*elementSize, encodeUint32s(data)); err != nil {
		return fmt.Errorf("countsort: write buffer %q: %w", buf.Label(), err)
	}
	return nil
}

// encodeUint32s packs values as little-endian bytes, the layout of a WGSL
// array<u32>.
func encodeUint32s(values []uint32) []byte {
	out := make([]byte, len(values)*elementSize)
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*elementSize:], v)
	}
	return out
}

// decodeUint32s unpacks little-endian bytes into values.
func decodeUint32s(data []byte) []uint32 {
	out := make([]uint32, len(data)/elementSize)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(data[i*elementSize:])
	}
	return out
}
