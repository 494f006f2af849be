package countsort

import (
	"context"
	"errors"
	"testing"

	"github.com/gogpu/countsort/internal/keys"
	"github.com/gogpu/countsort/internal/reference"
)

// checkSortProperties verifies the outputs of one invocation against the
// sequential reference.
func checkSortProperties(t *testing.T, values, ids, countsAfter []uint32, buckets int) {
	t.Helper()
	prefix, _, wantAfter := reference.CountingSort(values, buckets)

	if !reference.IsPermutation(ids) {
		t.Fatal("sorting ids are not a permutation of the value indices")
	}
	if !reference.IsSortedByID(values, ids) {
		t.Fatal("values read through sorting ids are not sorted")
	}
	if !reference.GroupsByBucket(values, ids, prefix) {
		t.Fatal("sorting ids are not grouped by bucket boundaries")
	}
	for b := range countsAfter {
		if countsAfter[b] != wantAfter[b] {
			t.Fatalf("post-scatter counts[%d] = %d, want bucket start %d", b, countsAfter[b], wantAfter[b])
		}
	}
}

func TestExecuteOnHost(t *testing.T) {
	tests := []struct {
		name    string
		n       int
		buckets uint32
		width   uint32
		levels  int
		dist    keys.Distribution
	}{
		{"8192 keys width 128", 8192, 8192, 128, DefaultMaxScanLevels, keys.Uniform},
		{"single level", 1000, 64, 64, 1, keys.Normal},
		{"ragged buckets", 777, 1000, 32, 2, keys.Exponential},
		{"three levels", 5000, 4096, 32, 3, keys.Uniform},
		{"four levels", 300, 15, 2, 4, keys.Sequential},
		{"one bucket", 50, 1, 2, 1, keys.Constant},
		{"non power of two width", 2000, 900, 30, 2, keys.Normal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, err := keys.Generate(keys.Config{N: tt.n, Buckets: tt.buckets, Distribution: tt.dist, Seed: 3})
			if err != nil {
				t.Fatal(err)
			}
			plan, err := NewPlan(uint32(tt.n), tt.buckets, tt.width, //nolint:gosec // test sizes
				WithMaxScanLevels(tt.levels), WithHostParallelism(4))
			if err != nil {
				t.Fatalf("NewPlan: %v", err)
			}
			bufs := NewHostBuffers(values, tt.buckets)
			// Stale counts must not leak into the result.
			for i := range bufs.Counts {
				bufs.Counts[i] = 0xdead
			}
			if err := plan.ExecuteOnHost(context.Background(), bufs); err != nil {
				t.Fatalf("ExecuteOnHost: %v", err)
			}
			checkSortProperties(t, values, bufs.SortingIDs, bufs.Counts, int(tt.buckets))
		})
	}
}

// TestExecuteOnHostRepeatable runs the same plan twice on the same buffers.
func TestExecuteOnHostRepeatable(t *testing.T) {
	values, _ := keys.Generate(keys.Config{N: 4096, Buckets: 512, Seed: 9})
	plan, err := NewPlan(4096, 512, 64)
	if err != nil {
		t.Fatal(err)
	}
	bufs := NewHostBuffers(values, 512)
	for range 2 {
		if err := plan.ExecuteOnHost(context.Background(), bufs); err != nil {
			t.Fatalf("ExecuteOnHost: %v", err)
		}
		checkSortProperties(t, values, bufs.SortingIDs, bufs.Counts, 512)
	}
}

func TestScanOnHost(t *testing.T) {
	values, _ := keys.Generate(keys.Config{N: 3000, Buckets: 1000, Distribution: keys.Normal, Seed: 5})
	plan, err := NewPlan(3000, 1000, 32)
	if err != nil {
		t.Fatal(err)
	}
	bufs := NewHostBuffers(values, 1000)
	if err := plan.ScanOnHost(context.Background(), bufs); err != nil {
		t.Fatalf("ScanOnHost: %v", err)
	}
	want := reference.Histogram(values, 1000)
	reference.InclusivePrefixSum(want)
	for i := range want {
		if bufs.Counts[i] != want[i] {
			t.Fatalf("counts[%d] = %d, want %d", i, bufs.Counts[i], want[i])
		}
	}
	if bufs.Counts[999] != 3000 {
		t.Errorf("last prefix = %d, want 3000", bufs.Counts[999])
	}
}

func TestExecuteOnHostErrors(t *testing.T) {
	plan, err := NewPlan(4, 4, 2)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	err = plan.ExecuteOnHost(ctx, NewHostBuffers([]uint32{0, 1, 9, 2}, 4))
	if !errors.Is(err, ErrKeyOutOfRange) {
		t.Errorf("out-of-range key: %v, want ErrKeyOutOfRange", err)
	}

	err = plan.ExecuteOnHost(ctx, NewHostBuffers([]uint32{0, 1}, 4))
	if !errors.Is(err, ErrInvalidBufferSize) {
		t.Errorf("short values: %v, want ErrInvalidBufferSize", err)
	}

	err = plan.ExecuteOnHost(ctx, NewHostBuffers([]uint32{0, 1, 2, 3}, 3))
	if !errors.Is(err, ErrCountBufferMismatch) {
		t.Errorf("short counts: %v, want ErrCountBufferMismatch", err)
	}

	if err := plan.ExecuteOnHost(ctx, nil); !errors.Is(err, ErrNilBuffer) {
		t.Errorf("nil buffers: %v, want ErrNilBuffer", err)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	err = plan.ExecuteOnHost(canceled, NewHostBuffers([]uint32{0, 1, 2, 3}, 4))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("canceled context: %v, want context.Canceled", err)
	}
}

func BenchmarkExecuteOnHost(b *testing.B) {
	values, _ := keys.Generate(keys.Config{N: 1 << 16, Buckets: 4096, Seed: 1})
	plan, err := NewPlan(1<<16, 4096, 128)
	if err != nil {
		b.Fatal(err)
	}
	bufs := NewHostBuffers(values, 4096)
	b.ReportAllocs()
	for b.Loop() {
		if err := plan.ExecuteOnHost(context.Background(), bufs); err != nil {
			b.Fatal(err)
		}
	}
}
