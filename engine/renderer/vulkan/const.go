package vulkan

// Device extensions required by the ray tracing backend.
const (
	extensionRayTracing            = "VK_NV_ray_tracing"
	extensionMemoryRequirements2   = "VK_KHR_get_memory_requirements2"
	extensionSwapchain             = "VK_KHR_swapchain"
	extensionPortabilitySubset     = "VK_KHR_portability_subset"
	extensionPhysicalDeviceProps2  = "VK_KHR_get_physical_device_properties2"
	extensionPortabilityEnumerator = "VK_KHR_portability_enumeration"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

/**
 * @brief Values of the VK_NV_ray_tracing and descriptor indexing enums. They are untyped so
 * they convert to whichever field type the bindings generate for them.
 */
const (
	structureTypePhysicalDeviceFeatures2                 = 1000059000
	structureTypePhysicalDeviceProperties2               = 1000059001
	structureTypeMemoryRequirements2                     = 1000146003
	structureTypeDescriptorSetLayoutBindingFlags         = 1000161000
	structureTypeDescriptorSetVariableDescriptorCount    = 1000161003
	structureTypeRayTracingPipelineCreateInfo            = 1000165000
	structureTypeAccelerationStructureCreateInfo         = 1000165001
	structureTypeGeometry                                = 1000165003
	structureTypeGeometryTriangles                       = 1000165004
	structureTypeGeometryAABB                            = 1000165005
	structureTypeBindAccelerationStructureMemoryInfo     = 1000165006
	structureTypeWriteDescriptorSetAccelerationStructure = 1000165007
	structureTypeAccelerationStructureMemoryRequirements = 1000165008
	structureTypePhysicalDeviceRayTracingProperties      = 1000165009
	structureTypeRayTracingShaderGroupCreateInfo         = 1000165011
	structureTypeAccelerationStructureInfo               = 1000165012

	shaderStageRaygen       = 0x00000100
	shaderStageAnyHit       = 0x00000200
	shaderStageClosestHit   = 0x00000400
	shaderStageMiss         = 0x00000800
	shaderStageIntersection = 0x00001000
	shaderStageCallable     = 0x00002000

	pipelineStageRayTracingShader           = 0x00200000
	pipelineStageAccelerationStructureBuild = 0x02000000

	accessAccelerationStructureRead  = 0x00200000
	accessAccelerationStructureWrite = 0x00400000

	descriptorTypeAccelerationStructure = 1000165000
	pipelineBindPointRayTracing         = 1000165000
	bufferUsageRayTracing               = 0x00000400

	accelerationStructureTypeTopLevel    = 0
	accelerationStructureTypeBottomLevel = 1

	memoryRequirementsTypeObject        = 0
	memoryRequirementsTypeBuildScratch  = 1
	memoryRequirementsTypeUpdateScratch = 2

	geometryTypeTriangles = 0

	shaderGroupTypeGeneral            = 0
	shaderGroupTypeTrianglesHitGroup  = 1
	shaderGroupTypeProceduralHitGroup = 2

	descriptorBindingUpdateAfterBind          = 0x1
	descriptorBindingUpdateUnusedWhilePending = 0x2
	descriptorBindingPartiallyBound           = 0x4
	descriptorBindingVariableDescriptorCount  = 0x8

	descriptorPoolCreateUpdateAfterBind      = 0x2
	descriptorSetLayoutCreateUpdateAfterBind = 0x2

	buildAccelerationStructureAllowUpdate     = 0x1
	buildAccelerationStructureAllowCompaction = 0x2
	buildAccelerationStructurePreferFastTrace = 0x4
	buildAccelerationStructurePreferFastBuild = 0x8
	buildAccelerationStructureLowMemory       = 0x10

	geometryOpaque                      = 0x1
	geometryNoDuplicateAnyHitInvocation = 0x2
)
