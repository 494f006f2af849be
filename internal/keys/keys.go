// Package keys generates key sets for exercising the counting sort: dense
// arrays of bucket ids in [0, buckets) drawn from a few distributions.
package keys

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"
)

// Distribution selects how keys are drawn.
type Distribution int

const (
	// Uniform draws every bucket with equal probability.
	Uniform Distribution = iota
	// Normal concentrates keys around the middle bucket.
	Normal
	// Exponential concentrates keys in the low buckets.
	Exponential
	// Constant puts every key in the middle bucket.
	Constant
	// Sequential cycles through the buckets in order.
	Sequential
)

var distributionNames = map[Distribution]string{
	Uniform:     "uniform",
	Normal:      "normal",
	Exponential: "exponential",
	Constant:    "constant",
	Sequential:  "sequential",
}

// String returns the lower-case name of d.
func (d Distribution) String() string {
	if name, ok := distributionNames[d]; ok {
		return name
	}
	return fmt.Sprintf("Distribution(%d)", int(d))
}

// ParseDistribution parses a distribution name as printed by String.
func ParseDistribution(s string) (Distribution, error) {
	for d, name := range distributionNames {
		if strings.EqualFold(s, name) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("keys: unknown distribution %q", s)
}

// ErrNoBuckets is returned when Config.Buckets is zero.
var ErrNoBuckets = errors.New("keys: bucket count must be positive")

// Config describes a key set.
type Config struct {
	// N is the number of keys.
	N int
	// Buckets is the exclusive upper bound of every key.
	Buckets uint32
	// Distribution selects how keys are drawn.
	Distribution Distribution
	// Seed makes generation reproducible.
	Seed uint64
}

// Generate returns cfg.N keys in [0, cfg.Buckets).
func Generate(cfg Config) ([]uint32, error) {
	if cfg.Buckets == 0 {
		return nil, ErrNoBuckets
	}
	if cfg.N < 0 {
		return nil, fmt.Errorf("keys: negative key count %d", cfg.N)
	}
	out := make([]uint32, cfg.N)
	b := float64(cfg.Buckets)
	src := rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)

	var sample func() float64
	switch cfg.Distribution {
	case Uniform:
		sample = distuv.Uniform{Min: 0, Max: b, Src: src}.Rand
	case Normal:
		sample = distuv.Normal{Mu: b / 2, Sigma: math.Max(b/6, 1), Src: src}.Rand
	case Exponential:
		sample = distuv.Exponential{Rate: 8 / b, Src: src}.Rand
	case Constant:
		for i := range out {
			out[i] = cfg.Buckets / 2
		}
		return out, nil
	case Sequential:
		for i := range out {
			out[i] = uint32(i % int(cfg.Buckets)) //nolint:gosec // result < Buckets
		}
		return out, nil
	default:
		return nil, fmt.Errorf("keys: unknown distribution %v", cfg.Distribution)
	}

	for i := range out {
		out[i] = clampKey(sample(), cfg.Buckets)
	}
	return out, nil
}

// clampKey truncates x to a bucket id in [0, buckets).
func clampKey(x float64, buckets uint32) uint32 {
	switch {
	case math.IsNaN(x) || x < 0:
		return 0
	case x >= float64(buckets):
		return buckets - 1
	default:
		return uint32(x)
	}
}
