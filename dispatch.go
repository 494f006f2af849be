// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package countsort

import (
	"fmt"

	"github.com/gogpu/wgpu/hal"
)

// passRecorder is the subset of command recording the dispatch
// orchestrator needs.
type passRecorder interface {
	clearBuffer(buffer hal.Buffer, size uint64)
	computePass(label string, pipeline hal.ComputePipeline, group hal.BindGroup, workgroups uint32)
}

// encoderRecorder records into a hal.CommandEncoder. Each dispatch gets its
// own compute pass so storage writes of one step are visible to the next.
type encoderRecorder struct {
	encoder hal.CommandEncoder
}

func (r encoderRecorder) clearBuffer(buffer hal.Buffer, size uint64) {
	r.encoder.ClearBuffer(buffer, 0, size)
}

func (r encoderRecorder) computePass(label string, pipeline hal.ComputePipeline, group hal.BindGroup, workgroups uint32) {
	pass := r.encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: label})
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, group, nil)
	pass.Dispatch(workgroups, 1, 1)
	pass.End()
}

// passLabel returns the debug label of a step's compute pass.
func passLabel(prefix string, step Step) string {
	switch step.Stage {
	case StageScan, StagePropagate:
		return fmt.Sprintf("%s_%s_%d", prefix, step.Stage, step.Level)
	default:
		return fmt.Sprintf("%s_%s", prefix, step.Stage)
	}
}

// record appends every step of the plan to rec, in plan order.
func (s *CountingSort) record(rec passRecorder) error {
	countRaw := s.counts.Raw()
	if countRaw == nil {
		return fmt.Errorf("countsort: %s: %w", countBufferName, ErrBufferDestroyed)
	}

	label := s.plan.opts.label
	for _, step := range s.plan.steps {
		if step.Stage == StageClear {
			rec.clearBuffer(countRaw, s.counts.Size())
			slogger().Debug("countsort: recorded step", "stage", step.Stage.String())
			continue
		}
		if step.Workgroups == 0 {
			continue
		}
		pipeline, group, err := s.kernels.pipelineFor(step)
		if err != nil {
			return err
		}
		rec.computePass(passLabel(label, step), pipeline, group, step.Workgroups)
		slogger().Debug("countsort: recorded step",
			"stage", step.Stage.String(),
			"level", step.Level,
			"workgroups", step.Workgroups)
	}
	return nil
}
