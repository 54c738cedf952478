package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/quartz/engine/renderer/gpu"
)

type flagBit struct {
	from, to uint32
}

// convertFlags maps each portable bit onto its native counterpart.
func convertFlags[F ~uint32](flags F, table []flagBit) uint32 {
	var out uint32
	for _, bit := range table {
		if uint32(flags)&bit.from != 0 {
			out |= bit.to
		}
	}
	return out
}

var formats = map[gpu.Format]vk.Format{
	gpu.FormatUndefined:          vk.FormatUndefined,
	gpu.FormatR8Unorm:            vk.FormatR8Unorm,
	gpu.FormatR8G8B8A8Unorm:      vk.FormatR8g8b8a8Unorm,
	gpu.FormatR8G8B8A8SRGB:       vk.FormatR8g8b8a8Srgb,
	gpu.FormatB8G8R8A8Unorm:      vk.FormatB8g8r8a8Unorm,
	gpu.FormatB8G8R8A8SRGB:       vk.FormatB8g8r8a8Srgb,
	gpu.FormatR16G16B16A16SFloat: vk.FormatR16g16b16a16Sfloat,
	gpu.FormatR32SFloat:          vk.FormatR32Sfloat,
	gpu.FormatR32G32B32SFloat:    vk.FormatR32g32b32Sfloat,
	gpu.FormatR32G32B32A32SFloat: vk.FormatR32g32b32a32Sfloat,
	gpu.FormatD16Unorm:           vk.FormatD16Unorm,
	gpu.FormatD32SFloat:          vk.FormatD32Sfloat,
	gpu.FormatS8Uint:             vk.FormatS8Uint,
	gpu.FormatD24UnormS8Uint:     vk.FormatD24UnormS8Uint,
	gpu.FormatD32SFloatS8Uint:    vk.FormatD32SfloatS8Uint,
}

func vkFormat(f gpu.Format) vk.Format {
	return formats[f]
}

// gpuFormat returns FormatUndefined for native formats with no portable name.
func gpuFormat(f vk.Format) gpu.Format {
	for k, v := range formats {
		if v == f {
			return k
		}
	}
	return gpu.FormatUndefined
}

var aspectBits = []flagBit{
	{uint32(gpu.ImageAspectColor), uint32(vk.ImageAspectColorBit)},
	{uint32(gpu.ImageAspectDepth), uint32(vk.ImageAspectDepthBit)},
	{uint32(gpu.ImageAspectStencil), uint32(vk.ImageAspectStencilBit)},
}

func vkImageAspect(a gpu.ImageAspect) vk.ImageAspectFlags {
	return vk.ImageAspectFlags(convertFlags(a, aspectBits))
}

func vkImageType(t gpu.ImageType) vk.ImageType {
	switch t {
	case gpu.ImageType1D:
		return vk.ImageType1d
	case gpu.ImageType3D:
		return vk.ImageType3d
	default:
		return vk.ImageType2d
	}
}

func vkImageViewType(t gpu.ImageViewType) vk.ImageViewType {
	switch t {
	case gpu.ImageViewType1D:
		return vk.ImageViewType1d
	case gpu.ImageViewType3D:
		return vk.ImageViewType3d
	case gpu.ImageViewTypeCube:
		return vk.ImageViewTypeCube
	case gpu.ImageViewType1DArray:
		return vk.ImageViewType1dArray
	case gpu.ImageViewType2DArray:
		return vk.ImageViewType2dArray
	case gpu.ImageViewTypeCubeArray:
		return vk.ImageViewTypeCubeArray
	default:
		return vk.ImageViewType2d
	}
}

var imageUsageBits = []flagBit{
	{uint32(gpu.ImageUsageTransferSrc), uint32(vk.ImageUsageTransferSrcBit)},
	{uint32(gpu.ImageUsageTransferDst), uint32(vk.ImageUsageTransferDstBit)},
	{uint32(gpu.ImageUsageSampled), uint32(vk.ImageUsageSampledBit)},
	{uint32(gpu.ImageUsageStorage), uint32(vk.ImageUsageStorageBit)},
	{uint32(gpu.ImageUsageColorAttachment), uint32(vk.ImageUsageColorAttachmentBit)},
	{uint32(gpu.ImageUsageDepthStencilAttachment), uint32(vk.ImageUsageDepthStencilAttachmentBit)},
}

func vkImageUsage(u gpu.ImageUsage) vk.ImageUsageFlags {
	return vk.ImageUsageFlags(convertFlags(u, imageUsageBits))
}

var bufferUsageBits = []flagBit{
	{uint32(gpu.BufferUsageTransferSrc), uint32(vk.BufferUsageTransferSrcBit)},
	{uint32(gpu.BufferUsageTransferDst), uint32(vk.BufferUsageTransferDstBit)},
	{uint32(gpu.BufferUsageUniform), uint32(vk.BufferUsageUniformBufferBit)},
	{uint32(gpu.BufferUsageStorage), uint32(vk.BufferUsageStorageBufferBit)},
	{uint32(gpu.BufferUsageIndex), uint32(vk.BufferUsageIndexBufferBit)},
	{uint32(gpu.BufferUsageVertex), uint32(vk.BufferUsageVertexBufferBit)},
	{uint32(gpu.BufferUsageRayTracing), bufferUsageRayTracing},
}

func vkBufferUsage(u gpu.BufferUsage) vk.BufferUsageFlags {
	return vk.BufferUsageFlags(convertFlags(u, bufferUsageBits))
}

// memoryProperties returns the required and the preferred property flags for a usage.
func memoryProperties(usage gpu.MemoryUsage) (required, preferred vk.MemoryPropertyFlagBits) {
	switch usage {
	case gpu.MemoryUsageCPUOnly:
		return vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit, 0
	case gpu.MemoryUsageCPUToGPU:
		return vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit, vk.MemoryPropertyDeviceLocalBit
	case gpu.MemoryUsageGPUToCPU:
		return vk.MemoryPropertyHostVisibleBit, vk.MemoryPropertyHostCoherentBit | vk.MemoryPropertyHostCachedBit
	default:
		return vk.MemoryPropertyDeviceLocalBit, 0
	}
}

var shaderStageBits = []flagBit{
	{uint32(gpu.ShaderStageVertex), uint32(vk.ShaderStageVertexBit)},
	{uint32(gpu.ShaderStageTessellationControl), uint32(vk.ShaderStageTessellationControlBit)},
	{uint32(gpu.ShaderStageTessellationEvaluation), uint32(vk.ShaderStageTessellationEvaluationBit)},
	{uint32(gpu.ShaderStageGeometry), uint32(vk.ShaderStageGeometryBit)},
	{uint32(gpu.ShaderStageFragment), uint32(vk.ShaderStageFragmentBit)},
	{uint32(gpu.ShaderStageCompute), uint32(vk.ShaderStageComputeBit)},
	{uint32(gpu.ShaderStageRaygen), shaderStageRaygen},
	{uint32(gpu.ShaderStageAnyHit), shaderStageAnyHit},
	{uint32(gpu.ShaderStageClosestHit), shaderStageClosestHit},
	{uint32(gpu.ShaderStageMiss), shaderStageMiss},
	{uint32(gpu.ShaderStageIntersection), shaderStageIntersection},
	{uint32(gpu.ShaderStageCallable), shaderStageCallable},
}

func vkShaderStages(s gpu.ShaderStage) vk.ShaderStageFlags {
	return vk.ShaderStageFlags(convertFlags(s, shaderStageBits))
}

func vkShaderStage(s gpu.ShaderStage) vk.ShaderStageFlagBits {
	return vk.ShaderStageFlagBits(convertFlags(s, shaderStageBits))
}

func vkDescriptorType(t gpu.DescriptorType) vk.DescriptorType {
	switch t {
	case gpu.DescriptorTypeSampler:
		return vk.DescriptorTypeSampler
	case gpu.DescriptorTypeCombinedImageSampler:
		return vk.DescriptorTypeCombinedImageSampler
	case gpu.DescriptorTypeSampledImage:
		return vk.DescriptorTypeSampledImage
	case gpu.DescriptorTypeStorageImage:
		return vk.DescriptorTypeStorageImage
	case gpu.DescriptorTypeUniformTexelBuffer:
		return vk.DescriptorTypeUniformTexelBuffer
	case gpu.DescriptorTypeStorageTexelBuffer:
		return vk.DescriptorTypeStorageTexelBuffer
	case gpu.DescriptorTypeUniformBuffer:
		return vk.DescriptorTypeUniformBuffer
	case gpu.DescriptorTypeStorageBuffer:
		return vk.DescriptorTypeStorageBuffer
	case gpu.DescriptorTypeUniformBufferDynamic:
		return vk.DescriptorTypeUniformBufferDynamic
	case gpu.DescriptorTypeStorageBufferDynamic:
		return vk.DescriptorTypeStorageBufferDynamic
	case gpu.DescriptorTypeInputAttachment:
		return vk.DescriptorTypeInputAttachment
	default:
		return descriptorTypeAccelerationStructure
	}
}

var bindingFlagBits = []flagBit{
	{uint32(gpu.DescriptorBindingUpdateAfterBind), descriptorBindingUpdateAfterBind},
	{uint32(gpu.DescriptorBindingUpdateUnusedWhilePending), descriptorBindingUpdateUnusedWhilePending},
	{uint32(gpu.DescriptorBindingPartiallyBound), descriptorBindingPartiallyBound},
	{uint32(gpu.DescriptorBindingVariableDescriptorCount), descriptorBindingVariableDescriptorCount},
}

func vkDescriptorBindingFlags(f gpu.DescriptorBindingFlags) vk.DescriptorBindingFlags {
	return vk.DescriptorBindingFlags(convertFlags(f, bindingFlagBits))
}

var descriptorPoolBits = []flagBit{
	{uint32(gpu.DescriptorPoolCreateFreeDescriptorSet), uint32(vk.DescriptorPoolCreateFreeDescriptorSetBit)},
	{uint32(gpu.DescriptorPoolCreateUpdateAfterBind), descriptorPoolCreateUpdateAfterBind},
}

func vkDescriptorPoolFlags(f gpu.DescriptorPoolCreateFlags) vk.DescriptorPoolCreateFlags {
	return vk.DescriptorPoolCreateFlags(convertFlags(f, descriptorPoolBits))
}

var setLayoutBits = []flagBit{
	{uint32(gpu.DescriptorSetLayoutCreateUpdateAfterBindPool), descriptorSetLayoutCreateUpdateAfterBind},
}

func vkDescriptorSetLayoutFlags(f gpu.DescriptorSetLayoutCreateFlags) vk.DescriptorSetLayoutCreateFlags {
	return vk.DescriptorSetLayoutCreateFlags(convertFlags(f, setLayoutBits))
}

var pipelineStageBits = []flagBit{
	{uint32(gpu.PipelineStageTopOfPipe), uint32(vk.PipelineStageTopOfPipeBit)},
	{uint32(gpu.PipelineStageVertexInput), uint32(vk.PipelineStageVertexInputBit)},
	{uint32(gpu.PipelineStageVertexShader), uint32(vk.PipelineStageVertexShaderBit)},
	{uint32(gpu.PipelineStageFragmentShader), uint32(vk.PipelineStageFragmentShaderBit)},
	{uint32(gpu.PipelineStageEarlyFragmentTests), uint32(vk.PipelineStageEarlyFragmentTestsBit)},
	{uint32(gpu.PipelineStageLateFragmentTests), uint32(vk.PipelineStageLateFragmentTestsBit)},
	{uint32(gpu.PipelineStageColorAttachmentOutput), uint32(vk.PipelineStageColorAttachmentOutputBit)},
	{uint32(gpu.PipelineStageComputeShader), uint32(vk.PipelineStageComputeShaderBit)},
	{uint32(gpu.PipelineStageTransfer), uint32(vk.PipelineStageTransferBit)},
	{uint32(gpu.PipelineStageBottomOfPipe), uint32(vk.PipelineStageBottomOfPipeBit)},
	{uint32(gpu.PipelineStageRayTracingShader), pipelineStageRayTracingShader},
	{uint32(gpu.PipelineStageAccelerationStructureBuild), pipelineStageAccelerationStructureBuild},
	{uint32(gpu.PipelineStageHost), uint32(vk.PipelineStageHostBit)},
}

func vkPipelineStages(s gpu.PipelineStage) vk.PipelineStageFlags {
	return vk.PipelineStageFlags(convertFlags(s, pipelineStageBits))
}

func vkPipelineStage(s gpu.PipelineStage) vk.PipelineStageFlagBits {
	return vk.PipelineStageFlagBits(convertFlags(s, pipelineStageBits))
}

var accessBits = []flagBit{
	{uint32(gpu.AccessIndexRead), uint32(vk.AccessIndexReadBit)},
	{uint32(gpu.AccessVertexAttributeRead), uint32(vk.AccessVertexAttributeReadBit)},
	{uint32(gpu.AccessUniformRead), uint32(vk.AccessUniformReadBit)},
	{uint32(gpu.AccessShaderRead), uint32(vk.AccessShaderReadBit)},
	{uint32(gpu.AccessShaderWrite), uint32(vk.AccessShaderWriteBit)},
	{uint32(gpu.AccessColorAttachmentRead), uint32(vk.AccessColorAttachmentReadBit)},
	{uint32(gpu.AccessColorAttachmentWrite), uint32(vk.AccessColorAttachmentWriteBit)},
	{uint32(gpu.AccessDepthStencilAttachmentRead), uint32(vk.AccessDepthStencilAttachmentReadBit)},
	{uint32(gpu.AccessDepthStencilAttachmentWrite), uint32(vk.AccessDepthStencilAttachmentWriteBit)},
	{uint32(gpu.AccessTransferRead), uint32(vk.AccessTransferReadBit)},
	{uint32(gpu.AccessTransferWrite), uint32(vk.AccessTransferWriteBit)},
	{uint32(gpu.AccessHostRead), uint32(vk.AccessHostReadBit)},
	{uint32(gpu.AccessHostWrite), uint32(vk.AccessHostWriteBit)},
	{uint32(gpu.AccessMemoryRead), uint32(vk.AccessMemoryReadBit)},
	{uint32(gpu.AccessMemoryWrite), uint32(vk.AccessMemoryWriteBit)},
	{uint32(gpu.AccessAccelerationStructureRead), accessAccelerationStructureRead},
	{uint32(gpu.AccessAccelerationStructureWrite), accessAccelerationStructureWrite},
}

func vkAccess(a gpu.Access) vk.AccessFlags {
	return vk.AccessFlags(convertFlags(a, accessBits))
}

func vkImageLayout(l gpu.ImageLayout) vk.ImageLayout {
	switch l {
	case gpu.ImageLayoutGeneral:
		return vk.ImageLayoutGeneral
	case gpu.ImageLayoutColorAttachmentOptimal:
		return vk.ImageLayoutColorAttachmentOptimal
	case gpu.ImageLayoutDepthStencilAttachmentOptimal:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case gpu.ImageLayoutDepthStencilReadOnlyOptimal:
		return vk.ImageLayoutDepthStencilReadOnlyOptimal
	case gpu.ImageLayoutShaderReadOnlyOptimal:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case gpu.ImageLayoutTransferSrcOptimal:
		return vk.ImageLayoutTransferSrcOptimal
	case gpu.ImageLayoutTransferDstOptimal:
		return vk.ImageLayoutTransferDstOptimal
	case gpu.ImageLayoutPresentSrc:
		return vk.ImageLayoutPresentSrc
	default:
		return vk.ImageLayoutUndefined
	}
}

func vkFilter(f gpu.Filter) vk.Filter {
	if f == gpu.FilterNearest {
		return vk.FilterNearest
	}
	return vk.FilterLinear
}

func vkAddressMode(m gpu.SamplerAddressMode) vk.SamplerAddressMode {
	switch m {
	case gpu.SamplerAddressMirroredRepeat:
		return vk.SamplerAddressModeMirroredRepeat
	case gpu.SamplerAddressClampToEdge:
		return vk.SamplerAddressModeClampToEdge
	case gpu.SamplerAddressClampToBorder:
		return vk.SamplerAddressModeClampToBorder
	default:
		return vk.SamplerAddressModeRepeat
	}
}

func vkQueryType(t gpu.QueryType) vk.QueryType {
	switch t {
	case gpu.QueryTypeOcclusion:
		return vk.QueryTypeOcclusion
	case gpu.QueryTypePipelineStatistics:
		return vk.QueryTypePipelineStatistics
	default:
		return vk.QueryTypeTimestamp
	}
}

func vkIndexType(t gpu.IndexType) vk.IndexType {
	if t == gpu.IndexTypeUint16 {
		return vk.IndexTypeUint16
	}
	return vk.IndexTypeUint32
}

var buildFlagBits = []flagBit{
	{uint32(gpu.BuildAccelerationStructureAllowUpdate), buildAccelerationStructureAllowUpdate},
	{uint32(gpu.BuildAccelerationStructureAllowCompaction), buildAccelerationStructureAllowCompaction},
	{uint32(gpu.BuildAccelerationStructurePreferFastTrace), buildAccelerationStructurePreferFastTrace},
	{uint32(gpu.BuildAccelerationStructurePreferFastBuild), buildAccelerationStructurePreferFastBuild},
	{uint32(gpu.BuildAccelerationStructureLowMemory), buildAccelerationStructureLowMemory},
}

var geometryFlagBits = []flagBit{
	{uint32(gpu.GeometryOpaque), geometryOpaque},
	{uint32(gpu.GeometryNoDuplicateAnyHitInvocation), geometryNoDuplicateAnyHitInvocation},
}

func vkBindPoint(b gpu.PipelineBindPoint) vk.PipelineBindPoint {
	switch b {
	case gpu.PipelineBindPointCompute:
		return vk.PipelineBindPointCompute
	case gpu.PipelineBindPointRayTracing:
		return pipelineBindPointRayTracing
	default:
		return vk.PipelineBindPointGraphics
	}
}

var commandBufferUsageBits = []flagBit{
	{uint32(gpu.CommandBufferUsageOneTimeSubmit), uint32(vk.CommandBufferUsageOneTimeSubmitBit)},
	{uint32(gpu.CommandBufferUsageRenderPassContinue), uint32(vk.CommandBufferUsageRenderPassContinueBit)},
	{uint32(gpu.CommandBufferUsageSimultaneousUse), uint32(vk.CommandBufferUsageSimultaneousUseBit)},
}

var commandPoolBits = []flagBit{
	{uint32(gpu.CommandPoolCreateTransient), uint32(vk.CommandPoolCreateTransientBit)},
	{uint32(gpu.CommandPoolCreateResetCommandBuffer), uint32(vk.CommandPoolCreateResetCommandBufferBit)},
}

func vkTopology(t gpu.PrimitiveTopology) vk.PrimitiveTopology {
	switch t {
	case gpu.PrimitiveTopologyPointList:
		return vk.PrimitiveTopologyPointList
	case gpu.PrimitiveTopologyLineList:
		return vk.PrimitiveTopologyLineList
	case gpu.PrimitiveTopologyLineStrip:
		return vk.PrimitiveTopologyLineStrip
	case gpu.PrimitiveTopologyTriangleStrip:
		return vk.PrimitiveTopologyTriangleStrip
	case gpu.PrimitiveTopologyTriangleFan:
		return vk.PrimitiveTopologyTriangleFan
	default:
		return vk.PrimitiveTopologyTriangleList
	}
}

func vkPolygonMode(m gpu.PolygonMode) vk.PolygonMode {
	switch m {
	case gpu.PolygonModeLine:
		return vk.PolygonModeLine
	case gpu.PolygonModePoint:
		return vk.PolygonModePoint
	default:
		return vk.PolygonModeFill
	}
}

func vkCullMode(m gpu.CullMode) vk.CullModeFlags {
	var flags vk.CullModeFlagBits
	if m&gpu.CullModeFront != 0 {
		flags |= vk.CullModeFrontBit
	}
	if m&gpu.CullModeBack != 0 {
		flags |= vk.CullModeBackBit
	}
	return vk.CullModeFlags(flags)
}

func vkFrontFace(f gpu.FrontFace) vk.FrontFace {
	if f == gpu.FrontFaceClockwise {
		return vk.FrontFaceClockwise
	}
	return vk.FrontFaceCounterClockwise
}

func vkCompareOp(op gpu.CompareOp) vk.CompareOp {
	switch op {
	case gpu.CompareOpNever:
		return vk.CompareOpNever
	case gpu.CompareOpLess:
		return vk.CompareOpLess
	case gpu.CompareOpEqual:
		return vk.CompareOpEqual
	case gpu.CompareOpLessOrEqual:
		return vk.CompareOpLessOrEqual
	case gpu.CompareOpGreater:
		return vk.CompareOpGreater
	case gpu.CompareOpNotEqual:
		return vk.CompareOpNotEqual
	case gpu.CompareOpGreaterOrEqual:
		return vk.CompareOpGreaterOrEqual
	default:
		return vk.CompareOpAlways
	}
}
