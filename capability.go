package countsort

import (
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
)

// Capability is an abstract buffer capability required by the engine.
// Each capability maps to one WebGPU buffer usage flag.
type Capability uint32

const (
	// CapabilityStorage allows kernels to read and write the buffer
	// (BufferUsageStorage).
	CapabilityStorage Capability = 1 << iota

	// CapabilityClear allows host-issued clear commands (BufferUsageCopyDst).
	CapabilityClear

	// CapabilityCopyOut allows copying the buffer into a staging buffer for
	// host readback (BufferUsageCopySrc).
	CapabilityCopyOut
)

var capabilityNames = []struct {
	c    Capability
	name string
}{
	{CapabilityStorage, "storage"},
	{CapabilityClear, "clear (copy-dst)"},
	{CapabilityCopyOut, "copy-out (copy-src)"},
}

// String returns a readable list of the capabilities set in c.
func (c Capability) String() string {
	if c == 0 {
		return "none"
	}
	var parts []string
	for _, n := range capabilityNames {
		if c&n.c != 0 {
			parts = append(parts, n.name)
			c &^= n.c
		}
	}
	if c != 0 {
		parts = append(parts, fmt.Sprintf("Capability(0x%x)", uint32(c)))
	}
	return strings.Join(parts, "|")
}

// Usage returns the buffer usage flags that grant c.
func (c Capability) Usage() gputypes.BufferUsage {
	var u gputypes.BufferUsage
	if c&CapabilityStorage != 0 {
		u |= gputypes.BufferUsageStorage
	}
	if c&CapabilityClear != 0 {
		u |= gputypes.BufferUsageCopyDst
	}
	if c&CapabilityCopyOut != 0 {
		u |= gputypes.BufferUsageCopySrc
	}
	return u
}

// CapabilitiesOf returns the capabilities granted by a set of usage flags.
func CapabilitiesOf(usage gputypes.BufferUsage) Capability {
	var c Capability
	if usage.Contains(gputypes.BufferUsageStorage) {
		c |= CapabilityStorage
	}
	if usage.Contains(gputypes.BufferUsageCopyDst) {
		c |= CapabilityClear
	}
	if usage.Contains(gputypes.BufferUsageCopySrc) {
		c |= CapabilityCopyOut
	}
	return c
}

// Buffer names used in capability errors.
const (
	valueBufferName     = "value buffer"
	countBufferName     = "count buffer"
	sortingIDBufferName = "sorting id buffer"
)

// requireCapability returns a *MissingCapabilityError naming the first
// capability in want that buf does not have.
func requireCapability(buf *Buffer, want Capability, name string) error {
	have := CapabilitiesOf(buf.Usage())
	for _, n := range capabilityNames {
		if want&n.c != 0 && have&n.c == 0 {
			return &MissingCapabilityError{Capability: n.c, Buffer: name}
		}
	}
	return nil
}

// validateBuffers checks the caller-supplied buffers before anything is
// created on the device. The order of checks is fixed: the count buffer's
// clear capability first, then the value buffer, then the count buffer's
// storage capability.
func validateBuffers(values, counts *Buffer) error {
	if values == nil || counts == nil {
		return ErrNilBuffer
	}
	if err := requireCapability(counts, CapabilityClear, countBufferName); err != nil {
		return err
	}
	if err := requireCapability(values, CapabilityStorage, valueBufferName); err != nil {
		return err
	}
	if err := requireCapability(counts, CapabilityStorage, countBufferName); err != nil {
		return err
	}
	if _, err := elementCount(values.Size(), valueBufferName); err != nil {
		return err
	}
	if _, err := elementCount(counts.Size(), countBufferName); err != nil {
		return err
	}
	return nil
}

// elementCount converts a byte size into a number of u32 elements.
func elementCount(size uint64, name string) (uint32, error) {
	if size == 0 {
		return 0, fmt.Errorf("%w: %s is empty", ErrInvalidBufferSize, name)
	}
	if size%elementSize != 0 {
		return 0, fmt.Errorf("%w: %s size %d is not a multiple of %d", ErrInvalidBufferSize, name, size, elementSize)
	}
	n := size / elementSize
	if n > uint64(^uint32(0)) {
		return 0, fmt.Errorf("%w: %s holds %d elements, more than a u32 index can address", ErrInvalidBufferSize, name, n)
	}
	return uint32(n), nil //nolint:gosec // bounds checked above
}
