package countsort

import (
	"fmt"
	"runtime"
)

// ShaderFormat selects how kernel programs are handed to the device.
type ShaderFormat int

const (
	// ShaderFormatWGSL passes the generated WGSL text to the device, which
	// compiles it with its own shader compiler.
	ShaderFormatWGSL ShaderFormat = iota

	// ShaderFormatSPIRV compiles the generated WGSL to SPIR-V on the host
	// with naga and passes the binary to the device.
	ShaderFormatSPIRV
)

// String returns the string representation of ShaderFormat.
func (f ShaderFormat) String() string {
	switch f {
	case ShaderFormatWGSL:
		return "WGSL"
	case ShaderFormatSPIRV:
		return "SPIR-V"
	default:
		return fmt.Sprintf("ShaderFormat(%d)", int(f))
	}
}

// Option configures a CountingSort or a Plan during creation.
//
// Example:
//
//	sorter, err := countsort.New(dev, values, counts, 128,
//	    countsort.WithMaxScanLevels(3),
//	    countsort.WithLabel("particles"))
type Option func(*options)

// options holds optional configuration for engine and plan creation.
type options struct {
	maxLevels       int
	shaderFormat    ShaderFormat
	label           string
	hostParallelism int
}

// defaultOptions returns the default engine options.
func defaultOptions() options {
	return options{
		maxLevels:       DefaultMaxScanLevels,
		shaderFormat:    ShaderFormatWGSL,
		label:           "countsort",
		hostParallelism: runtime.GOMAXPROCS(0),
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WithMaxScanLevels sets the ceiling on scan-then-propagate levels.
// Values are clamped to [1, MaxScanLevels]. The default is
// DefaultMaxScanLevels.
func WithMaxScanLevels(n int) Option {
	return func(o *options) {
		o.maxLevels = min(max(n, 1), MaxScanLevels)
	}
}

// WithShaderFormat selects the shader format handed to the device.
func WithShaderFormat(f ShaderFormat) Option {
	return func(o *options) {
		o.shaderFormat = f
	}
}

// WithLabel sets the prefix of every debug label the engine creates
// (pipelines, bind groups, passes, the sorting-id buffer).
func WithLabel(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.label = prefix
		}
	}
}

// WithHostParallelism bounds how many work-groups the host executor runs
// at once. n <= 0 selects runtime.GOMAXPROCS(0).
func WithHostParallelism(n int) Option {
	return func(o *options) {
		if n <= 0 {
			n = runtime.GOMAXPROCS(0)
		}
		o.hostParallelism = n
	}
}
