package pipeline

import (
	"github.com/spaghettifunk/quartz/engine/core"
	"github.com/spaghettifunk/quartz/engine/renderer/gpu"
)

type ComputeBuilder struct {
	builder[*ComputeBuilder]
}

func NewComputeBuilder(device *gpu.Device, shaderDir string) *ComputeBuilder {
	b := &ComputeBuilder{}
	b.builder = newBuilder(b, device, shaderDir)
	return b
}

func (b *ComputeBuilder) Shaders(names ...string) *ComputeBuilder {
	core.Assert(len(names) > 0, "compute pipeline needs a shader")
	return b.builder.Shaders(names...)
}

func (b *ComputeBuilder) validate() bool {
	if !b.validateShaders("compute") {
		return false
	}
	if len(b.shaders) != 1 || b.shaders[0].Stage != gpu.ShaderStageCompute {
		core.LogError("cannot build compute pipeline: exactly one compute shader is required")
		return false
	}
	return true
}

func (b *ComputeBuilder) Build() gpu.Pipeline {
	defer b.releaseShaders()
	if !b.validate() {
		return gpu.Pipeline{}
	}
	setLayouts, layout, ok := b.buildLayout()
	if !ok {
		return gpu.Pipeline{}
	}
	result := gpu.Pipeline{
		Layout:               layout,
		BindPoint:            gpu.PipelineBindPointCompute,
		DescriptorSetLayouts: setLayouts,
		PushConstantStages:   b.pushConstantStages(),
	}
	result.Handle = b.device.CreateComputePipeline(gpu.ComputePipelineCreateInfo{
		Stage:  b.shaders[0].StageInfo(),
		Layout: layout,
	})
	if !result.Handle.IsValid() {
		b.device.DestroyPipeline(&result)
		return gpu.Pipeline{}
	}
	return result
}
