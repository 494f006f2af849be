// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package countsort

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// kernelSet holds the compiled programs of one engine and the bind groups
// that attach them to its buffers. Everything is created once at
// construction.
//
// Binding layouts:
//
//	count:            @binding(0) values (read), @binding(1) counts (read_write)
//	scan / propagate: @binding(0) counts (read_write)
//	sort:             @binding(0) values (read), @binding(1) counts (read_write),
//	                  @binding(2) sorting_ids (read_write)
type kernelSet struct {
	device hal.Device

	modules []hal.ShaderModule

	countLayout hal.BindGroupLayout
	scanLayout  hal.BindGroupLayout
	sortLayout  hal.BindGroupLayout

	countPipelineLayout hal.PipelineLayout
	scanPipelineLayout  hal.PipelineLayout
	sortPipelineLayout  hal.PipelineLayout

	count     hal.ComputePipeline
	scan      []hal.ComputePipeline // one per level
	propagate []hal.ComputePipeline // one per level except the last
	sort      hal.ComputePipeline

	countGroup hal.BindGroup
	scanGroup  hal.BindGroup
	sortGroup  hal.BindGroup
}

func storageRO(binding uint32) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: gputypes.ShaderStageCompute,
		Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage},
	}
}

func storageRW(binding uint32) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: gputypes.ShaderStageCompute,
		Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage},
	}
}

// newKernelSet compiles all programs for plan and binds them to the
// buffers. On failure everything created so far is destroyed.
func newKernelSet(device hal.Device, plan *Plan, values, counts, ids *Buffer) (ks *kernelSet, err error) {
	ks = &kernelSet{device: device}
	defer func() {
		if err != nil {
			ks.destroy()
			ks = nil
		}
	}()

	label := plan.opts.label
	if err = ks.createLayouts(label); err != nil {
		return nil, err
	}

	w := plan.WorkgroupSize()
	format := plan.opts.shaderFormat

	countSrc, err := CountShaderSource(w)
	if err != nil {
		return nil, err
	}
	ks.count, err = ks.createPipeline(label+"_count", countSrc, format, ks.countPipelineLayout, countEntryPoint)
	if err != nil {
		return nil, err
	}

	levels := plan.Levels()
	for level := range levels {
		src, srcErr := ScanShaderSource(w, level)
		if srcErr != nil {
			return nil, srcErr
		}
		name := fmt.Sprintf("%s_scan_%d", label, level)
		module, modErr := ks.createModule(name, src, format)
		if modErr != nil {
			return nil, modErr
		}
		scan, pErr := ks.createComputePipeline(name, module, ks.scanPipelineLayout, scanEntryPoint)
		if pErr != nil {
			return nil, pErr
		}
		ks.scan = append(ks.scan, scan)

		if level < levels-1 {
			name = fmt.Sprintf("%s_propagate_%d", label, level)
			prop, pErr := ks.createComputePipeline(name, module, ks.scanPipelineLayout, propagateEntryPoint)
			if pErr != nil {
				return nil, pErr
			}
			ks.propagate = append(ks.propagate, prop)
		}
	}

	sortSrc, err := SortShaderSource(w)
	if err != nil {
		return nil, err
	}
	ks.sort, err = ks.createPipeline(label+"_sort", sortSrc, format, ks.sortPipelineLayout, sortEntryPoint)
	if err != nil {
		return nil, err
	}

	if err = ks.createBindGroups(label, values, counts, ids); err != nil {
		return nil, err
	}

	slogger().Debug("countsort: kernels created",
		"workgroup_size", w,
		"levels", levels,
		"scan_pipelines", len(ks.scan),
		"propagate_pipelines", len(ks.propagate),
		"shader_format", format.String())
	return ks, nil
}

func (ks *kernelSet) createLayouts(label string) error {
	var err error
	ks.countLayout, err = ks.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   label + "_count_bgl",
		Entries: []gputypes.BindGroupLayoutEntry{storageRO(0), storageRW(1)},
	})
	if err != nil {
		return fmt.Errorf("countsort: create count bind group layout: %w", err)
	}
	ks.scanLayout, err = ks.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   label + "_scan_bgl",
		Entries: []gputypes.BindGroupLayoutEntry{storageRW(0)},
	})
	if err != nil {
		return fmt.Errorf("countsort: create scan bind group layout: %w", err)
	}
	ks.sortLayout, err = ks.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   label + "_sort_bgl",
		Entries: []gputypes.BindGroupLayoutEntry{storageRO(0), storageRW(1), storageRW(2)},
	})
	if err != nil {
		return fmt.Errorf("countsort: create sort bind group layout: %w", err)
	}

	if ks.countPipelineLayout, err = ks.createPipelineLayout(label+"_count_pl", ks.countLayout); err != nil {
		return err
	}
	if ks.scanPipelineLayout, err = ks.createPipelineLayout(label+"_scan_pl", ks.scanLayout); err != nil {
		return err
	}
	if ks.sortPipelineLayout, err = ks.createPipelineLayout(label+"_sort_pl", ks.sortLayout); err != nil {
		return err
	}
	return nil
}

func (ks *kernelSet) createPipelineLayout(label string, bgl hal.BindGroupLayout) (hal.PipelineLayout, error) {
	pl, err := ks.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            label,
		BindGroupLayouts: []hal.BindGroupLayout{bgl},
	})
	if err != nil {
		return nil, fmt.Errorf("countsort: create pipeline layout %s: %w", label, err)
	}
	return pl, nil
}

// createModule creates a shader module from generated WGSL, compiling it
// to SPIR-V first when format asks for it.
func (ks *kernelSet) createModule(name, wgsl string, format ShaderFormat) (hal.ShaderModule, error) {
	var source hal.ShaderSource
	switch format {
	case ShaderFormatSPIRV:
		words, err := compileSPIRV(name, wgsl)
		if err != nil {
			return nil, err
		}
		source = hal.ShaderSource{SPIRV: words}
	default:
		source = hal.ShaderSource{WGSL: wgsl}
	}

	module, err := ks.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  name,
		Source: source,
	})
	if err != nil {
		return nil, fmt.Errorf("countsort: create shader module %s: %w", name, err)
	}
	ks.modules = append(ks.modules, module)
	return module, nil
}

func (ks *kernelSet) createComputePipeline(
	name string,
	module hal.ShaderModule,
	layout hal.PipelineLayout,
	entryPoint string,
) (hal.ComputePipeline, error) {
	pipeline, err := ks.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  name,
		Layout: layout,
		Compute: hal.ComputeState{
			Module:     module,
			EntryPoint: entryPoint,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("countsort: create compute pipeline %s: %w", name, err)
	}
	slogger().Debug("countsort: pipeline created", "name", name, "entry_point", entryPoint)
	return pipeline, nil
}

func (ks *kernelSet) createPipeline(
	name, wgsl string,
	format ShaderFormat,
	layout hal.PipelineLayout,
	entryPoint string,
) (hal.ComputePipeline, error) {
	module, err := ks.createModule(name, wgsl, format)
	if err != nil {
		return nil, err
	}
	return ks.createComputePipeline(name, module, layout, entryPoint)
}

func (ks *kernelSet) createBindGroups(label string, values, counts, ids *Buffer) error {
	var err error
	ks.countGroup, err = ks.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   label + "_count_bg",
		Layout:  ks.countLayout,
		Entries: []gputypes.BindGroupEntry{values.binding(0), counts.binding(1)},
	})
	if err != nil {
		return fmt.Errorf("countsort: create count bind group: %w", err)
	}
	ks.scanGroup, err = ks.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   label + "_scan_bg",
		Layout:  ks.scanLayout,
		Entries: []gputypes.BindGroupEntry{counts.binding(0)},
	})
	if err != nil {
		return fmt.Errorf("countsort: create scan bind group: %w", err)
	}
	ks.sortGroup, err = ks.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   label + "_sort_bg",
		Layout:  ks.sortLayout,
		Entries: []gputypes.BindGroupEntry{values.binding(0), counts.binding(1), ids.binding(2)},
	})
	if err != nil {
		return fmt.Errorf("countsort: create sort bind group: %w", err)
	}
	return nil
}

// pipelineFor returns the pipeline and bind group a dispatch step uses.
func (ks *kernelSet) pipelineFor(step Step) (hal.ComputePipeline, hal.BindGroup, error) {
	switch step.Stage {
	case StageCount:
		return ks.count, ks.countGroup, nil
	case StageScan:
		if step.Level < len(ks.scan) {
			return ks.scan[step.Level], ks.scanGroup, nil
		}
	case StagePropagate:
		if step.Level < len(ks.propagate) {
			return ks.propagate[step.Level], ks.scanGroup, nil
		}
	case StageScatter:
		return ks.sort, ks.sortGroup, nil
	}
	return nil, nil, fmt.Errorf("countsort: no pipeline for step %s", step)
}

// destroy releases every created resource. Nil handles are skipped, so it
// also serves as rollback of a partial construction.
func (ks *kernelSet) destroy() {
	d := ks.device
	for _, bg := range []hal.BindGroup{ks.countGroup, ks.scanGroup, ks.sortGroup} {
		if bg != nil {
			d.DestroyBindGroup(bg)
		}
	}
	ks.countGroup, ks.scanGroup, ks.sortGroup = nil, nil, nil

	pipelines := make([]hal.ComputePipeline, 0, 2+len(ks.scan)+len(ks.propagate))
	pipelines = append(pipelines, ks.count, ks.sort)
	pipelines = append(pipelines, ks.scan...)
	pipelines = append(pipelines, ks.propagate...)
	for _, p := range pipelines {
		if p != nil {
			d.DestroyComputePipeline(p)
		}
	}
	ks.count, ks.sort, ks.scan, ks.propagate = nil, nil, nil, nil

	for _, pl := range []hal.PipelineLayout{ks.countPipelineLayout, ks.scanPipelineLayout, ks.sortPipelineLayout} {
		if pl != nil {
			d.DestroyPipelineLayout(pl)
		}
	}
	ks.countPipelineLayout, ks.scanPipelineLayout, ks.sortPipelineLayout = nil, nil, nil

	for _, bgl := range []hal.BindGroupLayout{ks.countLayout, ks.scanLayout, ks.sortLayout} {
		if bgl != nil {
			d.DestroyBindGroupLayout(bgl)
		}
	}
	ks.countLayout, ks.scanLayout, ks.sortLayout = nil, nil, nil

	for _, m := range ks.modules {
		d.DestroyShaderModule(m)
	}
	ks.modules = nil
}
