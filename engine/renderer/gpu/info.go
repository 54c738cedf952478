package gpu

type BufferCreateInfo struct {
	Size   uint64
	Usage  BufferUsage
	Memory MemoryUsage
	// Map keeps host visible memory mapped for the lifetime of the buffer.
	Map bool
}

type ImageCreateInfo struct {
	Type     ImageType
	Format   Format
	Extent   Extent3D
	Layers   uint32
	Levels   uint32
	Usage    ImageUsage
	Memory   MemoryUsage
	Flags    ImageCreateFlags
	ViewType ImageViewType
	Aspect   ImageAspect
}

/** @brief Triangle geometry consumed by a bottom level acceleration structure. */
type GeometryTriangles struct {
	VertexBuffer BufferHandle
	VertexOffset uint64
	VertexCount  uint32
	VertexStride uint64
	VertexFormat Format
	IndexBuffer  BufferHandle
	IndexOffset  uint64
	IndexCount   uint32
	IndexType    IndexType
	Flags        GeometryFlags
}

type AccelerationStructureCreateInfo struct {
	Type          AccelerationStructureType
	Flags         BuildAccelerationStructureFlags
	InstanceCount uint32
	Geometries    []GeometryTriangles
}

/** @brief Parameters of a single acceleration structure build command. */
type BuildAccelerationStructureInfo struct {
	Info           AccelerationStructureCreateInfo
	InstanceBuffer BufferHandle
	InstanceOffset uint64
	Update         bool
	Destination    AccelerationStructureHandle
	Source         AccelerationStructureHandle
	Scratch        BufferHandle
	ScratchOffset  uint64
}

type DescriptorPoolSize struct {
	Type  DescriptorType
	Count uint32
}

type DescriptorPoolCreateInfo struct {
	Flags   DescriptorPoolCreateFlags
	MaxSets uint32
	Sizes   []DescriptorPoolSize
}

type DescriptorSetLayoutBinding struct {
	Binding           uint32
	Type              DescriptorType
	Count             uint32
	Stages            ShaderStage
	Flags             DescriptorBindingFlags
	ImmutableSamplers []SamplerHandle
}

type DescriptorSetLayoutCreateInfo struct {
	Flags    DescriptorSetLayoutCreateFlags
	Bindings []DescriptorSetLayoutBinding
}

type DescriptorSetAllocateInfo struct {
	Pool    DescriptorPoolHandle
	Layouts []DescriptorSetLayoutHandle
	// Per set variable descriptor counts, empty when no binding has a variable count.
	VariableCounts []uint32
}

type DescriptorBufferInfo struct {
	Buffer BufferHandle
	Offset uint64
	Range  uint64
}

type DescriptorImageInfo struct {
	Sampler SamplerHandle
	View    ImageViewHandle
	Layout  ImageLayout
}

/** @brief A single descriptor write. Exactly one of the payload slices is used, depending on Type. */
type WriteDescriptorSet struct {
	Set                    DescriptorSetHandle
	Binding                uint32
	ArrayElement           uint32
	Type                   DescriptorType
	Buffers                []DescriptorBufferInfo
	Images                 []DescriptorImageInfo
	AccelerationStructures []AccelerationStructureHandle
}

type SamplerCreateInfo struct {
	MagFilter   Filter
	MinFilter   Filter
	AddressMode SamplerAddressMode
	Anisotropy  float32
	MaxLod      float32
}

type QueryPoolCreateInfo struct {
	Type  QueryType
	Count uint32
}

type CommandPoolCreateInfo struct {
	Flags CommandPoolCreateFlags
}

type PushConstantRange struct {
	Stages ShaderStage
	Offset uint32
	Size   uint32
}

type PipelineLayoutCreateInfo struct {
	SetLayouts    []DescriptorSetLayoutHandle
	PushConstants []PushConstantRange
}

type PipelineShaderStage struct {
	Stage  ShaderStage
	Module ShaderModuleHandle
	Entry  string
}

type GraphicsPipelineCreateInfo struct {
	Stages           []PipelineShaderStage
	Layout           PipelineLayoutHandle
	RenderPass       RenderPassHandle
	Subpass          uint32
	Topology         PrimitiveTopology
	PolygonMode      PolygonMode
	CullMode         CullMode
	FrontFace        FrontFace
	DepthTest        bool
	DepthWrite       bool
	DepthCompare     CompareOp
	BlendEnable      bool
	ColorAttachments uint32
}

type ComputePipelineCreateInfo struct {
	Stage  PipelineShaderStage
	Layout PipelineLayoutHandle
}

/** @brief Indices into the stage list of a ray tracing pipeline. Unused slots hold ShaderUnused. */
type ShaderGroup struct {
	Type         ShaderGroupType
	General      uint32
	ClosestHit   uint32
	AnyHit       uint32
	Intersection uint32
}

type RayTracingPipelineCreateInfo struct {
	Stages            []PipelineShaderStage
	Groups            []ShaderGroup
	MaxRecursionDepth uint32
	Layout            PipelineLayoutHandle
}

type RayTracingProperties struct {
	ShaderGroupHandleSize uint32
	MaxRecursionDepth     uint32
	ShaderGroupBaseAlign  uint32
	MaxGeometryCount      uint64
	MaxInstanceCount      uint64
	MaxTriangleCount      uint64
}

type AttachmentDescription struct {
	Format        Format
	Clear         bool
	Store         bool
	InitialLayout ImageLayout
	FinalLayout   ImageLayout
}

type RenderPassCreateInfo struct {
	ColorAttachments []AttachmentDescription
}

type FramebufferCreateInfo struct {
	RenderPass  RenderPassHandle
	Attachments []ImageViewHandle
	Width       uint32
	Height      uint32
}

type SubmitInfo struct {
	CommandBuffers   []CommandBufferHandle
	WaitSemaphores   []SemaphoreHandle
	WaitStages       []PipelineStage
	SignalSemaphores []SemaphoreHandle
}

type BufferCopy struct {
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}

type BufferImageCopy struct {
	BufferOffset uint64
	Aspect       ImageAspect
	MipLevel     uint32
	BaseLayer    uint32
	LayerCount   uint32
	Extent       Extent3D
}

type MemoryBarrier struct {
	SrcAccess Access
	DstAccess Access
}

type BufferMemoryBarrier struct {
	SrcAccess Access
	DstAccess Access
	Buffer    BufferHandle
	Offset    uint64
	Size      uint64
}

type ImageMemoryBarrier struct {
	SrcAccess Access
	DstAccess Access
	OldLayout ImageLayout
	NewLayout ImageLayout
	Image     ImageHandle
	Aspect    ImageAspect
	BaseLevel uint32
	Levels    uint32
	BaseLayer uint32
	Layers    uint32
}

/** @brief A pipeline barrier as handed to the driver. */
type PipelineBarrier struct {
	SrcStage PipelineStage
	DstStage PipelineStage
	Memory   []MemoryBarrier
	Buffers  []BufferMemoryBarrier
	Images   []ImageMemoryBarrier
}

/** @brief Shader binding table regions of a ray dispatch. */
type TraceRaysInfo struct {
	ShaderBindingTable BufferHandle
	RaygenOffset       uint64
	MissOffset         uint64
	MissStride         uint64
	HitOffset          uint64
	HitStride          uint64
	Width              uint32
	Height             uint32
	Depth              uint32
}

type RenderPassBeginInfo struct {
	RenderPass  RenderPassHandle
	Framebuffer FramebufferHandle
	Area        Rect2D
	ClearColor  [4]float32
}
