// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package countsort

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// CountingSort sorts indices of a value buffer by key on the GPU.
//
// Construction validates the buffers, plans the scan levels, allocates the
// sorting-id buffer and compiles every kernel. DispatchWork then records
// one invocation into a caller-owned command encoder:
//
//	clear counts -> count -> scan[0..L-1] -> propagate[L-2..0] -> scatter
//
// Afterwards the count buffer holds bucket start offsets and the
// sorting-id buffer holds value indices grouped by key (order inside a
// bucket is unspecified).
//
// At most one invocation may be in flight per engine; DispatchWork does
// not lock.
type CountingSort struct {
	device *Device
	plan   *Plan

	values     *Buffer
	counts     *Buffer
	sortingIDs *Buffer

	kernels   *kernelSet
	destroyed atomic.Bool
}

// New builds an engine for values (keys in [0, counts.Len())) and counts.
//
// Validation happens before anything is created on the device, in this
// order: the count buffer's clear capability, the value buffer's storage
// capability, the count buffer's storage capability (*MissingCapabilityError),
// buffer sizes (ErrInvalidBufferSize), workgroupSize
// (ErrInvalidWorkgroupSize), the level ceiling (*TooManyLevelsError).
func New(device *Device, values, counts *Buffer, workgroupSize uint32, opts ...Option) (*CountingSort, error) {
	if device == nil {
		return nil, ErrNilDevice
	}
	if err := validateBuffers(values, counts); err != nil {
		return nil, err
	}
	o := applyOptions(opts)
	plan, err := newPlan(values.Len(), counts.Len(), workgroupSize, o)
	if err != nil {
		return nil, err
	}

	ids, err := device.CreateBuffer(&BufferDescriptor{
		Label: o.label + "_sorting_ids",
		Size:  values.Size(),
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("countsort: allocate %s: %w", sortingIDBufferName, err)
	}

	kernels, err := newKernelSet(device.HalDevice(), plan, values, counts, ids)
	if err != nil {
		ids.Destroy()
		return nil, err
	}

	slogger().Info("countsort: engine ready",
		"label", o.label,
		"values", plan.ValueLen(),
		"buckets", plan.CountLen(),
		"workgroup_size", workgroupSize,
		"levels", plan.Levels())

	return &CountingSort{
		device:     device,
		plan:       plan,
		values:     values,
		counts:     counts,
		sortingIDs: ids,
		kernels:    kernels,
	}, nil
}

// DispatchWork records one full invocation into encoder. It never submits
// or waits. counts must be the count buffer the engine was built with.
func (s *CountingSort) DispatchWork(encoder hal.CommandEncoder, counts *Buffer) error {
	if s.destroyed.Load() {
		return ErrEngineDestroyed
	}
	if encoder == nil {
		return ErrNilEncoder
	}
	if !s.isCountBuffer(counts) {
		return ErrCountBufferMismatch
	}
	return s.record(encoderRecorder{encoder: encoder})
}

func (s *CountingSort) isCountBuffer(counts *Buffer) bool {
	if counts == nil {
		return false
	}
	if counts == s.counts {
		return true
	}
	raw := counts.Raw()
	return raw != nil && raw == s.counts.Raw()
}

// Run records one invocation into a fresh encoder, submits it and waits
// for completion.
func (s *CountingSort) Run(ctx context.Context) error {
	if s.destroyed.Load() {
		return ErrEngineDestroyed
	}
	encoder, err := s.device.NewEncoder(s.plan.opts.label)
	if err != nil {
		return err
	}
	if err := s.DispatchWork(encoder, s.counts); err != nil {
		encoder.DiscardEncoding()
		return err
	}
	sub, err := s.device.Submit(encoder)
	if err != nil {
		return err
	}
	return sub.Wait(ctx)
}

// SortingIDBuffer returns the engine-owned sorting-id buffer. It holds
// ValueLen u32 entries and carries storage and copy-out capabilities.
func (s *CountingSort) SortingIDBuffer() *Buffer { return s.sortingIDs }

// CountBuffer returns the count buffer the engine was built with.
func (s *CountingSort) CountBuffer() *Buffer { return s.counts }

// ValueBuffer returns the value buffer the engine was built with.
func (s *CountingSort) ValueBuffer() *Buffer { return s.values }

// Device returns the device the engine records for.
func (s *CountingSort) Device() *Device { return s.device }

// Plan returns the engine's validated geometry.
func (s *CountingSort) Plan() *Plan { return s.plan }

// Destroy releases the kernels and the sorting-id buffer. Caller-owned
// buffers are left alone. Destroy is idempotent.
func (s *CountingSort) Destroy() {
	if s.destroyed.Swap(true) {
		return
	}
	s.kernels.destroy()
	s.sortingIDs.Destroy()
	slogger().Debug("countsort: engine destroyed", "label", s.plan.opts.label)
}
