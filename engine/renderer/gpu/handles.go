package gpu

// Native object handles. Zero is the null handle for every kind.
type (
	BufferHandle                uint64
	ImageHandle                 uint64
	ImageViewHandle             uint64
	MemoryHandle                uint64
	AccelerationStructureHandle uint64
	DescriptorPoolHandle        uint64
	DescriptorSetLayoutHandle   uint64
	DescriptorSetHandle         uint64
	SamplerHandle               uint64
	FenceHandle                 uint64
	EventHandle                 uint64
	CommandPoolHandle           uint64
	CommandBufferHandle         uint64
	QueryPoolHandle             uint64
	ShaderModuleHandle          uint64
	PipelineLayoutHandle        uint64
	PipelineHandle              uint64
	RenderPassHandle            uint64
	FramebufferHandle           uint64
	QueueHandle                 uint64
	SemaphoreHandle             uint64
)

func (h DescriptorPoolHandle) IsValid() bool      { return h != 0 }
func (h DescriptorSetLayoutHandle) IsValid() bool { return h != 0 }
func (h DescriptorSetHandle) IsValid() bool       { return h != 0 }
func (h SamplerHandle) IsValid() bool             { return h != 0 }
func (h FenceHandle) IsValid() bool               { return h != 0 }
func (h EventHandle) IsValid() bool               { return h != 0 }
func (h CommandPoolHandle) IsValid() bool         { return h != 0 }
func (h CommandBufferHandle) IsValid() bool       { return h != 0 }
func (h QueryPoolHandle) IsValid() bool           { return h != 0 }
func (h ShaderModuleHandle) IsValid() bool        { return h != 0 }
func (h PipelineLayoutHandle) IsValid() bool      { return h != 0 }
func (h PipelineHandle) IsValid() bool            { return h != 0 }
func (h RenderPassHandle) IsValid() bool          { return h != 0 }
func (h QueueHandle) IsValid() bool               { return h != 0 }
func (h SemaphoreHandle) IsValid() bool           { return h != 0 }
func (h FramebufferHandle) IsValid() bool         { return h != 0 }

/** @brief A buffer and its backing memory. Mapped is non-nil while host memory is mapped. */
type Buffer struct {
	Handle BufferHandle
	Memory MemoryHandle
	Size   uint64
	Mapped []byte
}

func (b Buffer) IsValid() bool {
	return b.Handle != 0
}

/** @brief An image, its default view and backing memory. */
type Image struct {
	Handle ImageHandle
	View   ImageViewHandle
	Memory MemoryHandle
	Format Format
	Extent Extent3D
	Aspect ImageAspect
	Layers uint32
	Levels uint32
}

func (i Image) IsValid() bool {
	return i.Handle != 0
}

/** @brief An acceleration structure and its backing memory. */
type AccelerationStructure struct {
	Handle AccelerationStructureHandle
	Memory MemoryHandle
	Type   AccelerationStructureType
}

func (a AccelerationStructure) IsValid() bool {
	return a.Handle != 0
}

/** @brief A compiled pipeline with everything needed to bind it. */
type Pipeline struct {
	Handle               PipelineHandle
	Layout               PipelineLayoutHandle
	BindPoint            PipelineBindPoint
	DescriptorSetLayouts []DescriptorSetLayoutHandle
	PushConstantStages   ShaderStage
	// Shader binding table, ray tracing pipelines only.
	ShaderBindingTable Buffer
	HandleSize         uint64
	HitGroupOffset     uint64
	MissGroupOffset    uint64
	NumMissGroups      uint32
}

func (p Pipeline) IsValid() bool {
	return p.Handle != 0
}

type Extent2D struct {
	Width, Height uint32
}

type Extent3D struct {
	Width, Height, Depth uint32
}

type Offset2D struct {
	X, Y int32
}

type Rect2D struct {
	Offset Offset2D
	Extent Extent2D
}

type Viewport struct {
	X, Y, Width, Height, MinDepth, MaxDepth float32
}
