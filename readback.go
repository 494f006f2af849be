// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package countsort

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// ErrBufferAlreadyMapped is returned when a staging buffer is used while a
// readback from it is still pending.
var ErrBufferAlreadyMapped = errors.New("countsort: staging buffer readback is pending")

// BufferMapState is the readback state of a staging buffer.
type BufferMapState int

const (
	// BufferMapStateUnmapped means no readback is in progress.
	BufferMapStateUnmapped BufferMapState = iota
	// BufferMapStatePending means a readback has been requested and has not
	// completed yet.
	BufferMapStatePending
	// BufferMapStateMapped means the last readback completed and its values
	// were delivered.
	BufferMapStateMapped
)

// String returns the string representation of BufferMapState.
func (s BufferMapState) String() string {
	switch s {
	case BufferMapStateUnmapped:
		return "Unmapped"
	case BufferMapStatePending:
		return "Pending"
	case BufferMapStateMapped:
		return "Mapped"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// StagingBuffer is a host-readable buffer used to copy engine outputs back
// to the host. Typical use:
//
//	enc, _ := dev.NewEncoder("sort")
//	_ = sorter.DispatchWork(enc, counts)
//	_ = staging.EncodeRead(enc, sorter.SortingIDBuffer())
//	sub, _ := dev.Submit(enc)
//	rb, _ := staging.MapAsync(ctx, sub)
//	ids, err := rb.Wait(ctx)
type StagingBuffer struct {
	device *Device
	buf    *Buffer

	mu       sync.Mutex
	state    BufferMapState
	readSize uint64
}

// NewStagingBuffer creates a staging buffer holding up to elements u32
// values.
func NewStagingBuffer(device *Device, elements uint32, label string) (*StagingBuffer, error) {
	if device == nil {
		return nil, ErrNilDevice
	}
	buf, err := device.CreateBuffer(&BufferDescriptor{
		Label: label,
		Size:  uint64(elements) * elementSize,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, err
	}
	return &StagingBuffer{device: device, buf: buf}, nil
}

// Buffer returns the underlying staging buffer.
func (sb *StagingBuffer) Buffer() *Buffer { return sb.buf }

// MapState returns the current readback state.
func (sb *StagingBuffer) MapState() BufferMapState {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.state
}

// EncodeRead records a copy of src into the staging buffer. src must carry
// the copy-out capability and fit in the staging buffer.
func (sb *StagingBuffer) EncodeRead(encoder hal.CommandEncoder, src *Buffer) error {
	if encoder == nil {
		return ErrNilEncoder
	}
	if src == nil {
		return ErrNilBuffer
	}
	if err := requireCapability(src, CapabilityCopyOut, src.Label()); err != nil {
		return err
	}
	if src.Size() > sb.buf.Size() {
		return fmt.Errorf("%w: %q (%d bytes) does not fit staging buffer %q (%d bytes)",
			ErrInvalidBufferSize, src.Label(), src.Size(), sb.buf.Label(), sb.buf.Size())
	}
	srcRaw, dstRaw := src.Raw(), sb.buf.Raw()
	if srcRaw == nil || dstRaw == nil {
		return ErrBufferDestroyed
	}

	sb.mu.Lock()
	defer sb.mu.Unlock()
	if sb.state == BufferMapStatePending {
		return ErrBufferAlreadyMapped
	}
	encoder.CopyBufferToBuffer(srcRaw, dstRaw, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: src.Size()},
	})
	sb.readSize = src.Size()
	return nil
}

// MapAsync starts reading the staging buffer once sub completes. The
// returned Readback delivers the values copied by the last EncodeRead.
func (sb *StagingBuffer) MapAsync(ctx context.Context, sub *Submission) (*Readback, error) {
	if sub == nil {
		return nil, fmt.Errorf("countsort: submission is nil")
	}
	sb.mu.Lock()
	if sb.state == BufferMapStatePending {
		sb.mu.Unlock()
		return nil, ErrBufferAlreadyMapped
	}
	sb.state = BufferMapStatePending
	size := sb.readSize
	sb.mu.Unlock()

	return startReadback(func() ([]uint32, error) {
		values, err := sb.read(ctx, sub, size)
		sb.mu.Lock()
		if err != nil {
			sb.state = BufferMapStateUnmapped
		} else {
			sb.state = BufferMapStateMapped
		}
		sb.mu.Unlock()
		return values, err
	}), nil
}

func (sb *StagingBuffer) read(ctx context.Context, sub *Submission, size uint64) ([]uint32, error) {
	if err := sub.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadbackFailed, err)
	}
	raw := sb.buf.Raw()
	if raw == nil {
		return nil, fmt.Errorf("%w: %w", ErrReadbackFailed, ErrBufferDestroyed)
	}
	data := make([]byte, size)
	if err := sb.device.HalQueue().ReadBuffer(raw, 0, data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadbackFailed, err)
	}
	return decodeUint32s(data), nil
}

// Destroy releases the staging buffer.
func (sb *StagingBuffer) Destroy() {
	sb.buf.Destroy()
}

// Readback is a one-shot future for values read back from the device.
type Readback struct {
	done   chan struct{}
	values []uint32
	err    error
}

// startReadback runs load on its own goroutine and completes the returned
// Readback with its result.
func startReadback(load func() ([]uint32, error)) *Readback {
	r := &Readback{done: make(chan struct{})}
	go func() {
		defer close(r.done)
		r.values, r.err = load()
		if r.err != nil {
			slogger().Warn("countsort: readback failed", "err", r.err)
		}
	}()
	return r
}

// Done is closed when the readback has completed.
func (r *Readback) Done() <-chan struct{} { return r.done }

// Wait blocks until the values are available or ctx is done. It may be
// called any number of times; once Done is closed, every call returns the
// same result.
func (r *Readback) Wait(ctx context.Context) ([]uint32, error) {
	select {
	case <-r.done:
		return r.values, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("countsort: readback: %w", ctx.Err())
	}
}
