package countsort

// Work-group and level limits.
const (
	// MinWorkgroupSize is the smallest supported work-group width.
	MinWorkgroupSize uint32 = 2

	// MaxWorkgroupSize is the largest supported work-group width. It matches
	// the WebGPU default limit on invocations per work-group.
	MaxWorkgroupSize uint32 = 256

	// MaxScanLevels is the hard ceiling on scan-then-propagate levels.
	MaxScanLevels = 4

	// DefaultMaxScanLevels is the level ceiling used when WithMaxScanLevels
	// is not given. Two levels cover every count buffer of at most
	// workgroupSize² buckets.
	DefaultMaxScanLevels = 2
)

// elementSize is the size in bytes of one buffer element (u32).
const elementSize = 4

// LevelLengths returns the number of elements at each scan level for a count
// buffer of size elements and the given work-group width:
//
//	[size, ceil(size/w), ceil(size/w²), ...]
//
// The sequence ends at the first length that fits in one work-group.
// size must be > 0 and workgroupSize >= MinWorkgroupSize.
func LevelLengths(size, workgroupSize uint32) []uint32 {
	lengths := []uint32{size}
	for n := size; n > workgroupSize; {
		n = ceilDiv(n, workgroupSize)
		lengths = append(lengths, n)
	}
	return lengths
}

// LevelCount returns len(LevelLengths(size, workgroupSize)) without
// allocating.
func LevelCount(size, workgroupSize uint32) int {
	levels := 1
	for n := size; n > workgroupSize; levels++ {
		n = ceilDiv(n, workgroupSize)
	}
	return levels
}

// WorkgroupCount returns the number of work-groups needed to cover n
// invocations with the given width.
func WorkgroupCount(n, workgroupSize uint32) uint32 {
	return ceilDiv(n, workgroupSize)
}

func ceilDiv(n, d uint32) uint32 {
	if n == 0 {
		return 0
	}
	return (n-1)/d + 1
}
