// Package reference holds sequential CPU implementations of the counting
// sort outputs, used to check GPU and host-executor results.
package reference

// Histogram returns the number of occurrences of each key in [0, buckets).
// Keys out of range are ignored.
func Histogram(values []uint32, buckets int) []uint32 {
	counts := make([]uint32, buckets)
	for _, v := range values {
		if int(v) < buckets {
			counts[v]++
		}
	}
	return counts
}

// InclusivePrefixSum replaces counts[i] with counts[0] + ... + counts[i],
// wrapping on overflow.
func InclusivePrefixSum(counts []uint32) {
	for i := 1; i < len(counts); i++ {
		counts[i] += counts[i-1]
	}
}

// SortingIDs derives sorting ids from an inclusive prefix sum the way the
// scatter kernel does, visiting values in index order. It returns the ids
// and the counters after every element has been placed (bucket start
// offsets). prefix is not modified.
func SortingIDs(values, prefix []uint32) (ids, after []uint32) {
	ids = make([]uint32, len(values))
	after = append([]uint32(nil), prefix...)
	for i, v := range values {
		after[v]--
		ids[after[v]] = uint32(i) //nolint:gosec // index fits u32 for engine-sized inputs
	}
	return ids, after
}

// CountingSort returns the prefix sum, sorting ids and post-scatter
// counters of values over buckets keys.
func CountingSort(values []uint32, buckets int) (prefix, ids, after []uint32) {
	prefix = Histogram(values, buckets)
	InclusivePrefixSum(prefix)
	ids, after = SortingIDs(values, prefix)
	return prefix, ids, after
}

// BucketStarts returns the exclusive prefix sum of the histogram of values.
func BucketStarts(values []uint32, buckets int) []uint32 {
	hist := Histogram(values, buckets)
	starts := make([]uint32, buckets)
	var sum uint32
	for i, c := range hist {
		starts[i] = sum
		sum += c
	}
	return starts
}

// IsSortedByID reports whether values read through ids is non-decreasing.
func IsSortedByID(values, ids []uint32) bool {
	for i := 1; i < len(ids); i++ {
		if values[ids[i]] < values[ids[i-1]] {
			return false
		}
	}
	return true
}

// IsPermutation reports whether ids holds every index in [0, len(ids))
// exactly once.
func IsPermutation(ids []uint32) bool {
	seen := make([]bool, len(ids))
	for _, id := range ids {
		if int(id) >= len(ids) || seen[id] {
			return false
		}
		seen[id] = true
	}
	return true
}

// GroupsByBucket reports whether ids[prefix[b-1]:prefix[b]] holds only
// indices whose key is b, for every bucket b.
func GroupsByBucket(values, ids, prefix []uint32) bool {
	start := uint32(0)
	for b, end := range prefix {
		if end < start || int(end) > len(ids) {
			return false
		}
		for _, id := range ids[start:end] {
			if int(id) >= len(values) || values[id] != uint32(b) { //nolint:gosec // bucket index fits u32
				return false
			}
		}
		start = end
	}
	return true
}
