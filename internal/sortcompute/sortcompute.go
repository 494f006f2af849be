// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package sortcompute is a CPU port of the counting-sort kernels
// (count.wgsl, scan.wgsl, sort.wgsl).
//
// Every kernel runs with the same work-group geometry as on the GPU: one
// goroutine per work-group (bounded by Executor.Parallelism), invocations
// of a group run in order, and the Kogge-Stone passes of a group are
// double-buffered to stand in for the work-group barriers. Count and
// Scatter use sync/atomic exactly where the shaders use atomics, so the
// port has the same ordering freedom as the GPU: the bucket contents of a
// Scatter vary between runs.
package sortcompute

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// ErrKeyOutOfRange is returned when a key does not address a bucket.
var ErrKeyOutOfRange = errors.New("sortcompute: key out of bucket range")

// ErrCountUnderflow is returned by Scatter when a bucket counter is
// decremented past zero, i.e. the count buffer does not hold the inclusive
// prefix sum of the values.
var ErrCountUnderflow = errors.New("sortcompute: bucket counter underflow")

// Executor runs kernels with a fixed work-group width.
type Executor struct {
	// Width is the work-group width, at least 2.
	Width uint32

	// Parallelism bounds concurrently running work-groups. Values < 1 run
	// one work-group at a time.
	Parallelism int
}

// LevelStride returns Width^level, the distance in count slots between
// consecutive elements of a scan level.
func (e Executor) LevelStride(level int) uint32 {
	stride := uint32(1)
	for range level {
		stride *= e.Width
	}
	return stride
}

// LevelLength returns the number of elements of a level with the given
// stride over a count buffer of size slots.
func LevelLength(size, stride uint32) uint32 {
	return (size + stride - 1) / stride
}

// Slot returns the count-buffer slot that stores element i of the level
// with the given stride: the last slot of the lower-level group it sums.
func Slot(i, stride, size uint32) uint32 {
	return min((i+1)*stride, size) - 1
}

// groups runs fn once per work-group covering n invocations.
func (e Executor) groups(ctx context.Context, n uint32, fn func(group uint32) error) error {
	if n == 0 {
		return ctx.Err()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(e.Parallelism, 1))
	count := (n-1)/e.Width + 1
	for group := range count {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error { return fn(group) })
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Clear zeroes counts.
func Clear(counts []uint32) {
	clear(counts)
}

// Count adds one to counts[v] for every value v.
func (e Executor) Count(ctx context.Context, values, counts []uint32) error {
	n := uint32(len(values)) //nolint:gosec // callers validate lengths
	buckets := uint32(len(counts))
	return e.groups(ctx, n, func(group uint32) error {
		end := min((group+1)*e.Width, n)
		for i := group * e.Width; i < end; i++ {
			v := values[i]
			if v >= buckets {
				return fmt.Errorf("%w: values[%d] = %d, %d buckets", ErrKeyOutOfRange, i, v, buckets)
			}
			atomic.AddUint32(&counts[v], 1)
		}
		return nil
	})
}

// Scan runs the inclusive work-group scan of one level in place.
func (e Executor) Scan(ctx context.Context, counts []uint32, level int) error {
	size := uint32(len(counts)) //nolint:gosec // callers validate lengths
	stride := e.LevelStride(level)
	n := LevelLength(size, stride)
	w := e.Width
	return e.groups(ctx, n, func(group uint32) error {
		partial := make([]uint32, w)
		next := make([]uint32, w)
		base := group * w
		for lid := range w {
			if i := base + lid; i < n {
				partial[lid] = counts[Slot(i, stride, size)]
			}
		}
		for s := uint32(1); s < w; s <<= 1 {
			for lid := range w {
				next[lid] = partial[lid]
				if lid >= s {
					next[lid] += partial[lid-s]
				}
			}
			partial, next = next, partial
		}
		for lid := range w {
			if i := base + lid; i < n {
				counts[Slot(i, stride, size)] = partial[lid]
			}
		}
		return nil
	})
}

// Propagate adds the scanned total of the preceding work-group to every
// level element outside the first group, skipping group-last elements.
// The level above must already be final.
func (e Executor) Propagate(ctx context.Context, counts []uint32, level int) error {
	size := uint32(len(counts)) //nolint:gosec // callers validate lengths
	stride := e.LevelStride(level)
	n := LevelLength(size, stride)
	w := e.Width
	return e.groups(ctx, n, func(group uint32) error {
		if group == 0 {
			return nil
		}
		carry := counts[Slot(group*w-1, stride, size)]
		end := min((group+1)*w, n)
		for i := group * w; i < end; i++ {
			if (i+1)%w == 0 || i+1 == n {
				continue
			}
			counts[Slot(i, stride, size)] += carry
		}
		return nil
	})
}

// Scatter writes every value index into its bucket range of ids,
// decrementing the bucket counter once per element.
func (e Executor) Scatter(ctx context.Context, values, counts, ids []uint32) error {
	n := uint32(len(values)) //nolint:gosec // callers validate lengths
	buckets := uint32(len(counts))
	return e.groups(ctx, n, func(group uint32) error {
		end := min((group+1)*e.Width, n)
		for i := group * e.Width; i < end; i++ {
			v := values[i]
			if v >= buckets {
				return fmt.Errorf("%w: values[%d] = %d, %d buckets", ErrKeyOutOfRange, i, v, buckets)
			}
			dst := atomic.AddUint32(&counts[v], ^uint32(0))
			if int(dst) >= len(ids) {
				return fmt.Errorf("%w: bucket %d", ErrCountUnderflow, v)
			}
			ids[dst] = i
		}
		return nil
	})
}
