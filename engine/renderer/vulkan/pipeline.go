package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/quartz/engine/core"
	"github.com/spaghettifunk/quartz/engine/renderer/gpu"
)

// Vulkan only guarantees 128 bytes of push constants, so at most 32 four byte ranges.
const maxPushConstantRanges = 32

func (d *Driver) CreatePipelineLayout(info gpu.PipelineLayoutCreateInfo) (gpu.PipelineLayoutHandle, gpu.Result) {
	if len(info.PushConstants) > maxPushConstantRanges {
		core.LogError("cannot have more than %d push constant ranges. Passed count: %d", maxPushConstantRanges, len(info.PushConstants))
		return 0, gpu.ErrorTooManyObjects
	}
	setLayouts := make([]vk.DescriptorSetLayout, len(info.SetLayouts))
	for i, l := range info.SetLayouts {
		setLayouts[i] = d.setLayouts.get(uint64(l))
	}
	ranges := make([]vk.PushConstantRange, len(info.PushConstants))
	for i, r := range info.PushConstants {
		ranges[i] = vk.PushConstantRange{
			StageFlags: vkShaderStages(r.Stages),
			Offset:     r.Offset,
			Size:       r.Size,
		}
	}

	pipelineLayoutCreateInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(setLayouts)),
		PSetLayouts:            setLayouts,
		PushConstantRangeCount: uint32(len(ranges)),
		PPushConstantRanges:    ranges,
	}

	var layout vk.PipelineLayout
	var res vk.Result
	_ = d.locks.SafeCall(PipelineManagement, func() error {
		res = vk.CreatePipelineLayout(d.device.LogicalDevice, &pipelineLayoutCreateInfo, d.allocator, &layout)
		return nil
	})
	if res != vk.Success {
		return 0, result(res)
	}
	return gpu.PipelineLayoutHandle(d.pipelineLayouts.put(layout)), gpu.Success
}

func (d *Driver) DestroyPipelineLayout(layout gpu.PipelineLayoutHandle) {
	if l, ok := d.pipelineLayouts.take(uint64(layout)); ok {
		_ = d.locks.SafeCall(PipelineManagement, func() error {
			vk.DestroyPipelineLayout(d.device.LogicalDevice, l, d.allocator)
			return nil
		})
	}
}

// CreateGraphicsPipeline builds a pipeline without vertex input. Viewport and scissor are dynamic.
func (d *Driver) CreateGraphicsPipeline(info gpu.GraphicsPipelineCreateInfo) (gpu.PipelineHandle, gpu.Result) {
	// Viewport state
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	// Rasterizer
	rasterizerCreateInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vkPolygonMode(info.PolygonMode),
		LineWidth:               1.0,
		CullMode:                vkCullMode(info.CullMode),
		FrontFace:               vkFrontFace(info.FrontFace),
		DepthBiasEnable:         vk.False,
	}

	// Multisampling.
	multisamplingCreateInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:   vk.False,
		RasterizationSamples:  vk.SampleCount1Bit,
		MinSampleShading:      1.0,
		AlphaToCoverageEnable: vk.False,
		AlphaToOneEnable:      vk.False,
	}

	// Depth and stencil testing.
	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:             vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:   toBool32(info.DepthTest),
		DepthWriteEnable:  toBool32(info.DepthWrite),
		DepthCompareOp:    vkCompareOp(info.DepthCompare),
		StencilTestEnable: vk.False,
	}

	attachmentCount := max(info.ColorAttachments, 1)
	blendAttachments := make([]vk.PipelineColorBlendAttachmentState, attachmentCount)
	for i := range blendAttachments {
		blendAttachments[i] = vk.PipelineColorBlendAttachmentState{
			BlendEnable:         toBool32(info.BlendEnable),
			SrcColorBlendFactor: vk.BlendFactorSrcAlpha,
			DstColorBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
			ColorBlendOp:        vk.BlendOpAdd,
			SrcAlphaBlendFactor: vk.BlendFactorSrcAlpha,
			DstAlphaBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
			AlphaBlendOp:        vk.BlendOpAdd,
			ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
				vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit),
		}
	}

	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: attachmentCount,
		PAttachments:    blendAttachments,
	}

	// Dynamic state
	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicStateCreateInfo := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	// Vertices are generated in the vertex shader.
	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}

	// Input assembly
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vkTopology(info.Topology),
		PrimitiveRestartEnable: vk.False,
	}

	stages := d.shaderStages(info.Stages)
	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizerCreateInfo,
		PMultisampleState:   &multisamplingCreateInfo,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlendStateCreateInfo,
		PDynamicState:       &dynamicStateCreateInfo,
		Layout:              d.pipelineLayouts.get(uint64(info.Layout)),
		RenderPass:          d.renderPasses.get(uint64(info.RenderPass)),
		Subpass:             info.Subpass,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	var res vk.Result
	_ = d.locks.SafeCall(PipelineManagement, func() error {
		res = vk.CreateGraphicsPipelines(d.device.LogicalDevice, vk.NullPipelineCache, 1,
			[]vk.GraphicsPipelineCreateInfo{pipelineCreateInfo}, d.allocator, pipelines)
		return nil
	})
	if res != vk.Success {
		core.LogError("vkCreateGraphicsPipelines failed with %s", ResultString(res))
		return 0, result(res)
	}
	core.LogDebug("Graphics pipeline created!")
	return gpu.PipelineHandle(d.pipelines.put(pipelines[0])), gpu.Success
}

func (d *Driver) CreateComputePipeline(info gpu.ComputePipelineCreateInfo) (gpu.PipelineHandle, gpu.Result) {
	stage := d.shaderStages([]gpu.PipelineShaderStage{info.Stage})[0]
	pipelineCreateInfo := vk.ComputePipelineCreateInfo{
		SType:              vk.StructureTypeComputePipelineCreateInfo,
		Stage:              stage,
		Layout:             d.pipelineLayouts.get(uint64(info.Layout)),
		BasePipelineHandle: vk.NullPipeline,
		BasePipelineIndex:  -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	var res vk.Result
	_ = d.locks.SafeCall(PipelineManagement, func() error {
		res = vk.CreateComputePipelines(d.device.LogicalDevice, vk.NullPipelineCache, 1,
			[]vk.ComputePipelineCreateInfo{pipelineCreateInfo}, d.allocator, pipelines)
		return nil
	})
	if res != vk.Success {
		return 0, result(res)
	}
	return gpu.PipelineHandle(d.pipelines.put(pipelines[0])), gpu.Success
}

func shaderGroupType(t gpu.ShaderGroupType) uint32 {
	switch t {
	case gpu.ShaderGroupTrianglesHitGroup:
		return shaderGroupTypeTrianglesHitGroup
	case gpu.ShaderGroupProceduralHitGroup:
		return shaderGroupTypeProceduralHitGroup
	default:
		return shaderGroupTypeGeneral
	}
}

// CreateRayTracingPipeline clamps the recursion depth to what the device supports.
func (d *Driver) CreateRayTracingPipeline(info gpu.RayTracingPipelineCreateInfo) (gpu.PipelineHandle, gpu.Result) {
	stages := d.shaderStages(info.Stages)
	groups := make([]vk.RayTracingShaderGroupCreateInfoNV, len(info.Groups))
	for i, g := range info.Groups {
		groups[i] = vk.RayTracingShaderGroupCreateInfoNV{
			SType:              structureTypeRayTracingShaderGroupCreateInfo,
			GeneralShader:      g.General,
			ClosestHitShader:   g.ClosestHit,
			AnyHitShader:       g.AnyHit,
			IntersectionShader: g.Intersection,
		}
		assign(&groups[i].Type, shaderGroupType(g.Type))
	}

	depth := info.MaxRecursionDepth
	if limit := d.properties.MaxRecursionDepth; limit > 0 && depth > limit {
		core.LogWarn("recursion depth %d exceeds the device limit %d", depth, limit)
		depth = limit
	}

	pipelineCreateInfo := vk.RayTracingPipelineCreateInfoNV{
		SType:              structureTypeRayTracingPipelineCreateInfo,
		StageCount:         uint32(len(stages)),
		PStages:            stages,
		GroupCount:         uint32(len(groups)),
		PGroups:            groups,
		MaxRecursionDepth:  depth,
		Layout:             d.pipelineLayouts.get(uint64(info.Layout)),
		BasePipelineHandle: vk.NullPipeline,
		BasePipelineIndex:  -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	var res vk.Result
	_ = d.locks.SafeCall(PipelineManagement, func() error {
		res = vk.CreateRayTracingPipelinesNV(d.device.LogicalDevice, vk.NullPipelineCache, 1,
			[]vk.RayTracingPipelineCreateInfoNV{pipelineCreateInfo}, d.allocator, pipelines)
		return nil
	})
	if res != vk.Success {
		core.LogError("vkCreateRayTracingPipelinesNV failed with %s", ResultString(res))
		return 0, result(res)
	}
	core.LogDebug("Ray tracing pipeline created with %d groups.", len(groups))
	return gpu.PipelineHandle(d.pipelines.put(pipelines[0])), gpu.Success
}

func (d *Driver) DestroyPipeline(pipeline gpu.PipelineHandle) {
	if p, ok := d.pipelines.take(uint64(pipeline)); ok {
		_ = d.locks.SafeCall(PipelineManagement, func() error {
			vk.DestroyPipeline(d.device.LogicalDevice, p, d.allocator)
			return nil
		})
	}
}

// ShaderGroupHandles returns groupCount handles packed at the device handle size.
func (d *Driver) ShaderGroupHandles(pipeline gpu.PipelineHandle, firstGroup, groupCount uint32) ([]byte, gpu.Result) {
	size := int(d.properties.ShaderGroupHandleSize) * int(groupCount)
	if size == 0 {
		return nil, gpu.Success
	}
	data := make([]byte, size)
	res := vk.GetRayTracingShaderGroupHandlesNV(d.device.LogicalDevice, d.pipelines.get(uint64(pipeline)),
		firstGroup, groupCount, uint64(size), unsafe.Pointer(&data[0]))
	if res != vk.Success {
		return nil, result(res)
	}
	return data, gpu.Success
}
