// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package sortcompute

import (
	"context"
	"errors"
	"testing"
)

// inclusivePrefix is the sequential inclusive prefix sum of in.
func inclusivePrefix(in []uint32) []uint32 {
	out := make([]uint32, len(in))
	var sum uint32
	for i, v := range in {
		sum += v
		out[i] = sum
	}
	return out
}

func TestSlot(t *testing.T) {
	tests := []struct {
		i, stride, size uint32
		want            uint32
	}{
		{0, 1, 10, 0},
		{9, 1, 10, 9},
		{0, 4, 10, 3},
		{1, 4, 10, 7},
		{2, 4, 10, 9}, // partial last group clamps to the last slot
		{0, 16, 10, 9},
	}
	for _, tt := range tests {
		if got := Slot(tt.i, tt.stride, tt.size); got != tt.want {
			t.Errorf("Slot(%d, %d, %d) = %d, want %d", tt.i, tt.stride, tt.size, got, tt.want)
		}
	}
}

func TestLevelStrideAndLength(t *testing.T) {
	e := Executor{Width: 8}
	if got := e.LevelStride(0); got != 1 {
		t.Errorf("LevelStride(0) = %d, want 1", got)
	}
	if got := e.LevelStride(2); got != 64 {
		t.Errorf("LevelStride(2) = %d, want 64", got)
	}
	if got := LevelLength(100, 8); got != 13 {
		t.Errorf("LevelLength(100, 8) = %d, want 13", got)
	}
}

// TestScanSingleGroup checks one Kogge-Stone group against a sequential
// prefix sum, including widths that are not powers of two.
func TestScanSingleGroup(t *testing.T) {
	for _, width := range []uint32{2, 3, 4, 7, 8, 32} {
		counts := make([]uint32, width)
		for i := range counts {
			counts[i] = uint32(i*3 + 1)
		}
		want := inclusivePrefix(counts)

		e := Executor{Width: width, Parallelism: 2}
		if err := e.Scan(context.Background(), counts, 0); err != nil {
			t.Fatalf("width %d: Scan: %v", width, err)
		}
		for i := range counts {
			if counts[i] != want[i] {
				t.Fatalf("width %d: counts[%d] = %d, want %d", width, i, counts[i], want[i])
			}
		}
	}
}

// TestScanThenPropagate runs the full hierarchical scan for several
// geometries, including sizes that are not multiples of the width.
func TestScanThenPropagate(t *testing.T) {
	tests := []struct {
		name  string
		width uint32
		size  int
	}{
		{"one level", 8, 5},
		{"exact two levels", 8, 64},
		{"ragged two levels", 8, 61},
		{"three levels", 4, 50},
		{"four levels", 2, 15},
		{"wide", 128, 8192},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counts := make([]uint32, tt.size)
			for i := range counts {
				counts[i] = uint32((i*7)%5 + 1)
			}
			want := inclusivePrefix(counts)

			e := Executor{Width: tt.width, Parallelism: 4}
			ctx := context.Background()
			levels := 1
			for n := uint32(tt.size); n > tt.width; levels++ {
				n = LevelLength(n, tt.width)
			}
			for level := range levels {
				if err := e.Scan(ctx, counts, level); err != nil {
					t.Fatalf("Scan(%d): %v", level, err)
				}
			}
			for level := levels - 2; level >= 0; level-- {
				if err := e.Propagate(ctx, counts, level); err != nil {
					t.Fatalf("Propagate(%d): %v", level, err)
				}
			}
			for i := range counts {
				if counts[i] != want[i] {
					t.Fatalf("counts[%d] = %d, want %d", i, counts[i], want[i])
				}
			}
		})
	}
}

func TestCountAndScatter(t *testing.T) {
	values := []uint32{3, 1, 0, 3, 3, 2, 1, 0, 3, 2, 2}
	counts := make([]uint32, 4)
	e := Executor{Width: 4, Parallelism: 3}
	ctx := context.Background()

	if err := e.Count(ctx, values, counts); err != nil {
		t.Fatalf("Count: %v", err)
	}
	wantHist := []uint32{2, 2, 3, 4}
	for b, want := range wantHist {
		if counts[b] != want {
			t.Errorf("histogram[%d] = %d, want %d", b, counts[b], want)
		}
	}

	prefix := inclusivePrefix(counts)
	copy(counts, prefix)
	ids := make([]uint32, len(values))
	if err := e.Scatter(ctx, values, counts, ids); err != nil {
		t.Fatalf("Scatter: %v", err)
	}

	// Each bucket range holds exactly the indices with that key.
	start := uint32(0)
	for b, end := range prefix {
		for _, id := range ids[start:end] {
			if values[id] != uint32(b) {
				t.Errorf("ids in bucket %d contain index %d with key %d", b, id, values[id])
			}
		}
		start = end
	}
	// Counters end at bucket start offsets.
	wantStarts := []uint32{0, 2, 4, 7}
	for b, want := range wantStarts {
		if counts[b] != want {
			t.Errorf("post-scatter counts[%d] = %d, want %d", b, counts[b], want)
		}
	}
}

func TestCountKeyOutOfRange(t *testing.T) {
	e := Executor{Width: 2}
	err := e.Count(context.Background(), []uint32{0, 5}, make([]uint32, 4))
	if !errors.Is(err, ErrKeyOutOfRange) {
		t.Fatalf("Count error = %v, want ErrKeyOutOfRange", err)
	}
}

func TestScatterUnderflow(t *testing.T) {
	e := Executor{Width: 2}
	// Counts were never scanned: bucket 1 holds 0.
	err := e.Scatter(context.Background(), []uint32{1}, make([]uint32, 2), make([]uint32, 1))
	if !errors.Is(err, ErrCountUnderflow) {
		t.Fatalf("Scatter error = %v, want ErrCountUnderflow", err)
	}
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := Executor{Width: 2, Parallelism: 1}
	err := e.Count(ctx, make([]uint32, 16), make([]uint32, 1))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Count error = %v, want context.Canceled", err)
	}
}

func TestClear(t *testing.T) {
	counts := []uint32{1, 2, 3}
	Clear(counts)
	for i, c := range counts {
		if c != 0 {
			t.Errorf("counts[%d] = %d after Clear", i, c)
		}
	}
}
