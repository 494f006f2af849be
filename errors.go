package countsort

import (
	"errors"
	"fmt"
)

// Sentinel errors. Typed errors returned by the package unwrap to one of these,
// so callers can match with errors.Is.
var (
	// ErrMissingCapability is returned when a buffer lacks a usage the
	// engine needs. The concrete error is a *MissingCapabilityError.
	ErrMissingCapability = errors.New("countsort: buffer is missing a required capability")

	// ErrTooManyLevels is returned when the count buffer needs more
	// hierarchical scan levels than the engine is configured for.
	// The concrete error is a *TooManyLevelsError.
	ErrTooManyLevels = errors.New("countsort: too many scan-then-propagate levels")

	// ErrInvalidBufferSize is returned for empty buffers or sizes that are
	// not a whole number of 32-bit elements.
	ErrInvalidBufferSize = errors.New("countsort: invalid buffer size")

	// ErrInvalidWorkgroupSize is returned when the work-group width is
	// outside [MinWorkgroupSize, MaxWorkgroupSize].
	ErrInvalidWorkgroupSize = errors.New("countsort: invalid workgroup size")

	// ErrCountBufferMismatch is returned by DispatchWork when the count
	// buffer differs from the one the engine was built with.
	ErrCountBufferMismatch = errors.New("countsort: count buffer does not match the engine's count buffer")

	// ErrEngineDestroyed is returned when using an engine after Destroy.
	ErrEngineDestroyed = errors.New("countsort: engine has been destroyed")

	// ErrNilDevice is returned when a nil device is supplied.
	ErrNilDevice = errors.New("countsort: device is nil")

	// ErrNilBuffer is returned when a nil buffer is supplied.
	ErrNilBuffer = errors.New("countsort: buffer is nil")

	// ErrNilEncoder is returned when DispatchWork is given a nil encoder.
	ErrNilEncoder = errors.New("countsort: command encoder is nil")

	// ErrReadbackFailed is returned by Readback.Wait when the device to host
	// copy could not be completed.
	ErrReadbackFailed = errors.New("countsort: buffer readback failed")

	// ErrNoAdapter is returned by OpenDevice when no GPU adapter is found.
	ErrNoAdapter = errors.New("countsort: no GPU adapter found")

	// ErrKeyOutOfRange is returned by the host executor when a key does not
	// address a bucket. The GPU path does not detect this.
	ErrKeyOutOfRange = errors.New("countsort: key out of bucket range")
)

// MissingCapabilityError reports a buffer that lacks a capability the engine
// relies on.
type MissingCapabilityError struct {
	// Capability is the missing capability.
	Capability Capability

	// Buffer names the offending buffer ("value buffer", "count buffer").
	Buffer string
}

func (e *MissingCapabilityError) Error() string {
	return fmt.Sprintf("countsort: missing buffer usage %s for %s", e.Capability, e.Buffer)
}

// Unwrap returns ErrMissingCapability.
func (e *MissingCapabilityError) Unwrap() error { return ErrMissingCapability }

// TooManyLevelsError reports a count buffer that cannot be scanned with the
// configured work-group width within the level ceiling. Callers can retry
// with a larger work-group width or split the workload.
type TooManyLevelsError struct {
	// Size is the count buffer length in elements.
	Size uint32

	// WorkgroupSize is the requested work-group width.
	WorkgroupSize uint32

	// Levels is the number of levels the buffer would need.
	Levels int

	// MaxLevels is the ceiling that was exceeded.
	MaxLevels int
}

func (e *TooManyLevelsError) Error() string {
	return fmt.Sprintf(
		"countsort: unable to handle a buffer of size %d with a workgroup size of %d, "+
			"this requires too many scan and propagate levels (%d levels, max %d)",
		e.Size, e.WorkgroupSize, e.Levels, e.MaxLevels)
}

// Unwrap returns ErrTooManyLevels.
func (e *TooManyLevelsError) Unwrap() error { return ErrTooManyLevels }
