package countsort

import (
	"fmt"
	"strings"
)

// maxWorkgroupsPerDimension is the WebGPU default limit on work-groups in
// one dispatch dimension.
const maxWorkgroupsPerDimension uint32 = 65535

// Stage identifies one step kind of a counting-sort invocation.
type Stage int

const (
	// StageClear zeroes the count buffer.
	StageClear Stage = iota
	// StageCount builds the histogram.
	StageCount
	// StageScan runs the work-group scan of one level.
	StageScan
	// StagePropagate adds preceding group totals at one level.
	StagePropagate
	// StageScatter writes sorting ids.
	StageScatter
)

// String returns the string representation of Stage.
func (s Stage) String() string {
	switch s {
	case StageClear:
		return "clear"
	case StageCount:
		return "count"
	case StageScan:
		return "scan"
	case StagePropagate:
		return "propagate"
	case StageScatter:
		return "scatter"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// Step is one recorded operation.
type Step struct {
	Stage Stage

	// Level is the scan level of scan and propagate steps, 0 otherwise.
	Level int

	// Workgroups is the number of work-groups dispatched. 0 for StageClear.
	Workgroups uint32
}

// String formats the step as "scan[1] x4".
func (s Step) String() string {
	switch s.Stage {
	case StageClear:
		return s.Stage.String()
	case StageScan, StagePropagate:
		return fmt.Sprintf("%s[%d] x%d", s.Stage, s.Level, s.Workgroups)
	default:
		return fmt.Sprintf("%s x%d", s.Stage, s.Workgroups)
	}
}

// Plan is the validated geometry of one engine: buffer lengths, work-group
// width, per-level lengths and the ordered steps of one invocation.
// A Plan is immutable.
type Plan struct {
	valueLen      uint32
	countLen      uint32
	workgroupSize uint32
	levels        []uint32
	steps         []Step
	opts          options
}

// NewPlan validates the geometry of a sort of valueLen keys into countLen
// buckets and derives its steps. Errors are returned in this order:
// ErrInvalidBufferSize for empty buffers, ErrInvalidWorkgroupSize,
// *TooManyLevelsError, then ErrInvalidBufferSize for any step needing more
// work-groups than one dispatch allows.
func NewPlan(valueLen, countLen, workgroupSize uint32, opts ...Option) (*Plan, error) {
	return newPlan(valueLen, countLen, workgroupSize, applyOptions(opts))
}

func newPlan(valueLen, countLen, workgroupSize uint32, o options) (*Plan, error) {
	if valueLen == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrInvalidBufferSize, valueBufferName)
	}
	if countLen == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrInvalidBufferSize, countBufferName)
	}
	if workgroupSize < MinWorkgroupSize || workgroupSize > MaxWorkgroupSize {
		return nil, fmt.Errorf("%w: %d outside [%d, %d]",
			ErrInvalidWorkgroupSize, workgroupSize, MinWorkgroupSize, MaxWorkgroupSize)
	}
	if levels := LevelCount(countLen, workgroupSize); levels > o.maxLevels {
		return nil, &TooManyLevelsError{
			Size:          countLen,
			WorkgroupSize: workgroupSize,
			Levels:        levels,
			MaxLevels:     o.maxLevels,
		}
	}
	p := &Plan{
		valueLen:      valueLen,
		countLen:      countLen,
		workgroupSize: workgroupSize,
		levels:        LevelLengths(countLen, workgroupSize),
		opts:          o,
	}
	p.steps = p.buildSteps()
	for _, step := range p.steps {
		if step.Workgroups > maxWorkgroupsPerDimension {
			return nil, fmt.Errorf("%w: step %s needs %d work-groups, a dispatch allows %d",
				ErrInvalidBufferSize, step, step.Workgroups, maxWorkgroupsPerDimension)
		}
	}

	slogger().Debug("countsort: plan ready",
		"values", valueLen,
		"buckets", countLen,
		"workgroup_size", workgroupSize,
		"levels", len(p.levels),
		"steps", len(p.steps))
	return p, nil
}

// buildSteps lists clear, count, scans bottom-up, propagates top-down,
// then scatter.
func (p *Plan) buildSteps() []Step {
	valueGroups := WorkgroupCount(p.valueLen, p.workgroupSize)
	steps := make([]Step, 0, 3+2*len(p.levels))
	steps = append(steps,
		Step{Stage: StageClear},
		Step{Stage: StageCount, Workgroups: valueGroups})
	for level, n := range p.levels {
		steps = append(steps, Step{Stage: StageScan, Level: level, Workgroups: WorkgroupCount(n, p.workgroupSize)})
	}
	for level := len(p.levels) - 2; level >= 0; level-- {
		steps = append(steps, Step{
			Stage:      StagePropagate,
			Level:      level,
			Workgroups: WorkgroupCount(p.levels[level], p.workgroupSize),
		})
	}
	return append(steps, Step{Stage: StageScatter, Workgroups: valueGroups})
}

// ValueLen returns the number of keys.
func (p *Plan) ValueLen() uint32 { return p.valueLen }

// CountLen returns the number of buckets.
func (p *Plan) CountLen() uint32 { return p.countLen }

// WorkgroupSize returns the work-group width.
func (p *Plan) WorkgroupSize() uint32 { return p.workgroupSize }

// Levels returns the number of scan-then-propagate levels.
func (p *Plan) Levels() int { return len(p.levels) }

// LevelLengths returns a copy of the per-level element counts.
func (p *Plan) LevelLengths() []uint32 {
	return append([]uint32(nil), p.levels...)
}

// Steps returns a copy of the ordered steps of one invocation.
func (p *Plan) Steps() []Step {
	return append([]Step(nil), p.steps...)
}

// String renders the steps, e.g. "clear, count x64, scan[0] x64, ...".
func (p *Plan) String() string {
	parts := make([]string, len(p.steps))
	for i, s := range p.steps {
		parts[i] = s.String()
	}
	return strings.Join(parts, ", ")
}
