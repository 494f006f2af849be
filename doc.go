// Package countsort provides a GPU counting sort for small-range integer
// keys, built on gogpu/wgpu.
//
// # Overview
//
// Given a value buffer of N u32 keys in [0, B) and a count buffer of B u32
// counters, one invocation computes on the device:
//
//   - the histogram of the keys,
//   - its inclusive prefix sum (bucket boundaries),
//   - a permutation of value indices grouped by key (sorting ids).
//
// Count buffers larger than one work-group are scanned with a hierarchical
// scan-then-propagate strategy: every level is scanned in place with a
// Kogge-Stone scan per work-group, then group totals are propagated back
// down. The sort is not stable.
//
// # Quick Start
//
//	dev, err := countsort.OpenDevice()
//	if err != nil {
//	    return err
//	}
//	defer dev.Close()
//
//	values, _ := dev.CreateBufferInit("values", gputypes.BufferUsageStorage, keys)
//	counts, _ := dev.CreateBuffer(&countsort.BufferDescriptor{
//	    Label: "counts",
//	    Size:  uint64(buckets) * 4,
//	    Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc,
//	})
//
//	sorter, err := countsort.New(dev, values, counts, 128)
//	if err != nil {
//	    return err
//	}
//	defer sorter.Destroy()
//
//	enc, _ := dev.NewEncoder("sort")
//	_ = sorter.DispatchWork(enc, counts)
//
// DispatchWork only records; the caller submits (Device.Submit) and reads
// results back (StagingBuffer).
//
// # Host execution
//
// NewPlan validates the same geometry without a device, and
// Plan.ExecuteOnHost runs the kernels' algorithm on the CPU. It serves as a
// fallback when no GPU is available and as the reference in tests.
//
// # Logging
//
// countsort is silent by default. Call SetLogger to receive slog records.
package countsort
