package pipeline

import (
	"github.com/spaghettifunk/quartz/engine/core"
	"github.com/spaghettifunk/quartz/engine/renderer/gpu"
)

/**
 * @brief Builds a graphics pipeline. Viewport and scissor are always dynamic state.
 */
type GraphicsBuilder struct {
	builder[*GraphicsBuilder]
	info gpu.GraphicsPipelineCreateInfo
}

func NewGraphicsBuilder(device *gpu.Device, shaderDir string) *GraphicsBuilder {
	b := &GraphicsBuilder{
		info: gpu.GraphicsPipelineCreateInfo{
			Topology:         gpu.PrimitiveTopologyTriangleList,
			PolygonMode:      gpu.PolygonModeFill,
			CullMode:         gpu.CullModeNone,
			FrontFace:        gpu.FrontFaceCounterClockwise,
			DepthTest:        false,
			DepthWrite:       true,
			DepthCompare:     gpu.CompareOpLessOrEqual,
			ColorAttachments: 1,
		},
	}
	b.builder = newBuilder(b, device, shaderDir)
	return b
}

func (b *GraphicsBuilder) RenderPass(pass gpu.RenderPassHandle, subpass uint32) *GraphicsBuilder {
	b.info.RenderPass = pass
	b.info.Subpass = subpass
	return b
}

func (b *GraphicsBuilder) PrimitiveTopology(topology gpu.PrimitiveTopology) *GraphicsBuilder {
	b.info.Topology = topology
	return b
}

func (b *GraphicsBuilder) PolygonMode(mode gpu.PolygonMode) *GraphicsBuilder {
	b.info.PolygonMode = mode
	return b
}

func (b *GraphicsBuilder) CullMode(mode gpu.CullMode) *GraphicsBuilder {
	b.info.CullMode = mode
	return b
}

func (b *GraphicsBuilder) FrontFace(face gpu.FrontFace) *GraphicsBuilder {
	b.info.FrontFace = face
	return b
}

func (b *GraphicsBuilder) DepthTest(test, write bool, compare gpu.CompareOp) *GraphicsBuilder {
	b.info.DepthTest = test
	b.info.DepthWrite = write
	b.info.DepthCompare = compare
	return b
}

func (b *GraphicsBuilder) Blend(enable bool) *GraphicsBuilder {
	b.info.BlendEnable = enable
	return b
}

func (b *GraphicsBuilder) ColorAttachments(count uint32) *GraphicsBuilder {
	b.info.ColorAttachments = count
	return b
}

func (b *GraphicsBuilder) validate() bool {
	if !b.validateShaders("graphics") {
		return false
	}
	if !b.info.RenderPass.IsValid() {
		core.LogError("cannot build graphics pipeline: no render pass specified")
		return false
	}
	for _, s := range b.shaders {
		if s.Stage&gpu.ShaderStageAllGraphics == 0 {
			core.LogError("cannot build graphics pipeline: %s shader %s is not a graphics stage", s.Stage, s.Name)
			return false
		}
	}
	if dup := b.duplicateStage(); dup != nil {
		core.LogError("cannot build graphics pipeline: %s stage of shader %s is already present", dup.Stage, dup.Name)
		return false
	}
	return true
}

func (b *GraphicsBuilder) Build() gpu.Pipeline {
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
		BindPoint:            gpu.PipelineBindPointGraphics,
		DescriptorSetLayouts: setLayouts,
		PushConstantStages:   b.pushConstantStages(),
	}

	info := b.info
	info.Stages = b.stages()
	info.Layout = layout
	result.Handle = b.device.CreateGraphicsPipeline(info)
	if !result.Handle.IsValid() {
		b.device.DestroyPipeline(&result)
		return gpu.Pipeline{}
	}
	return result
}
