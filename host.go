package countsort

import (
	"context"
	"errors"
	"fmt"

	"github.com/gogpu/countsort/internal/sortcompute"
)

// HostBuffers are host-memory stand-ins for the engine's buffers.
type HostBuffers struct {
	// Values holds the keys. Read only.
	Values []uint32

	// Counts holds one counter per bucket. Overwritten: after execution it
	// holds bucket start offsets, like the device count buffer.
	Counts []uint32

	// SortingIDs receives the index permutation.
	SortingIDs []uint32
}

// NewHostBuffers allocates counts and sorting ids for values.
func NewHostBuffers(values []uint32, buckets uint32) *HostBuffers {
	return &HostBuffers{
		Values:     values,
		Counts:     make([]uint32, buckets),
		SortingIDs: make([]uint32, len(values)),
	}
}

// ExecuteOnHost runs every step of the plan on the CPU with the same
// work-group geometry the kernels use. Unlike the device path, keys out of
// range are reported (ErrKeyOutOfRange).
func (p *Plan) ExecuteOnHost(ctx context.Context, bufs *HostBuffers) error {
	if bufs == nil {
		return ErrNilBuffer
	}
	if uint64(len(bufs.Values)) != uint64(p.valueLen) {
		return fmt.Errorf("%w: %d values, plan expects %d", ErrInvalidBufferSize, len(bufs.Values), p.valueLen)
	}
	if uint64(len(bufs.Counts)) != uint64(p.countLen) {
		return fmt.Errorf("%w: %d counters, plan expects %d", ErrCountBufferMismatch, len(bufs.Counts), p.countLen)
	}
	if len(bufs.SortingIDs) != len(bufs.Values) {
		return fmt.Errorf("%w: %d sorting ids for %d values", ErrInvalidBufferSize, len(bufs.SortingIDs), len(bufs.Values))
	}

	exec := sortcompute.Executor{Width: p.workgroupSize, Parallelism: p.opts.hostParallelism}
	for _, step := range p.steps {
		var err error
		switch step.Stage {
		case StageClear:
			sortcompute.Clear(bufs.Counts)
		case StageCount:
			err = exec.Count(ctx, bufs.Values, bufs.Counts)
		case StageScan:
			err = exec.Scan(ctx, bufs.Counts, step.Level)
		case StagePropagate:
			err = exec.Propagate(ctx, bufs.Counts, step.Level)
		case StageScatter:
			err = exec.Scatter(ctx, bufs.Values, bufs.Counts, bufs.SortingIDs)
		}
		if err != nil {
			if errors.Is(err, sortcompute.ErrKeyOutOfRange) {
				return fmt.Errorf("%w: %w", ErrKeyOutOfRange, err)
			}
			return fmt.Errorf("countsort: host %s: %w", step, err)
		}
	}
	return nil
}

// ScanOnHost runs only the clear, count, scan and propagate steps, leaving
// the inclusive prefix sum of the histogram in bufs.Counts.
func (p *Plan) ScanOnHost(ctx context.Context, bufs *HostBuffers) error {
	if bufs == nil {
		return ErrNilBuffer
	}
	if uint64(len(bufs.Values)) != uint64(p.valueLen) || uint64(len(bufs.Counts)) != uint64(p.countLen) {
		return fmt.Errorf("%w: host buffers do not match the plan", ErrInvalidBufferSize)
	}
	prefix := &Plan{
		valueLen:      p.valueLen,
		countLen:      p.countLen,
		workgroupSize: p.workgroupSize,
		levels:        p.levels,
		opts:          p.opts,
	}
	for _, step := range p.steps {
		if step.Stage != StageScatter {
			prefix.steps = append(prefix.steps, step)
		}
	}
	return prefix.ExecuteOnHost(ctx, &HostBuffers{
		Values:     bufs.Values,
		Counts:     bufs.Counts,
		SortingIDs: make([]uint32, len(bufs.Values)),
	})
}
