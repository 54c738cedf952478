package gpu

type BufferState int

const (
	BufferStateUndefined BufferState = iota
	BufferStateVertexAttributeRead
	BufferStateIndexRead
	BufferStateUniformRead
	BufferStateShaderRead
	BufferStateShaderReadWrite
	BufferStateCopySource
	BufferStateCopyDest
)

type ImageState int

const (
	ImageStateUndefined ImageState = iota
	ImageStateColorAttachment
	ImageStateDepthStencilAttachment
	ImageStateDepthStencilReadWrite
	ImageStateShaderRead
	ImageStateShaderReadWrite
	ImageStateCopySource
	ImageStateCopyDest
	ImageStatePresentSource
)

// MemoryState covers global barriers around acceleration structure builds.
type MemoryState int

const (
	MemoryStateUndefined MemoryState = iota
	MemoryStateCopyDest
	MemoryStateAccelerationStructureBuildInput
	MemoryStateAccelerationStructureWrite
	MemoryStateAccelerationStructureRead
)

type bufferStateInfo struct {
	stage  PipelineStage
	access Access
}

type imageStateInfo struct {
	stage  PipelineStage
	access Access
	layout ImageLayout
}

var bufferStateTable = [...]bufferStateInfo{
	BufferStateUndefined:            {0, 0},
	BufferStateVertexAttributeRead:  {PipelineStageVertexInput, AccessVertexAttributeRead},
	BufferStateIndexRead:            {PipelineStageVertexInput, AccessIndexRead},
	BufferStateUniformRead:          {PipelineStageAllShaders, AccessUniformRead},
	BufferStateShaderRead:           {PipelineStageAllShaders, AccessShaderRead},
	BufferStateShaderReadWrite:      {PipelineStageAllShaders, AccessShaderRead | AccessShaderWrite},
	BufferStateCopySource:           {PipelineStageTransfer, AccessTransferRead},
	BufferStateCopyDest:             {PipelineStageTransfer, AccessTransferWrite},
}

var imageStateTable = [...]imageStateInfo{
	ImageStateUndefined: {0, 0, ImageLayoutUndefined},
	ImageStateColorAttachment: {
		PipelineStageColorAttachmentOutput,
		AccessColorAttachmentRead | AccessColorAttachmentWrite,
		ImageLayoutColorAttachmentOptimal,
	},
	ImageStateDepthStencilAttachment: {
		PipelineStageEarlyFragmentTests | PipelineStageLateFragmentTests,
		AccessDepthStencilAttachmentRead,
		ImageLayoutDepthStencilReadOnlyOptimal,
	},
	ImageStateDepthStencilReadWrite: {
		PipelineStageEarlyFragmentTests | PipelineStageLateFragmentTests,
		AccessDepthStencilAttachmentRead | AccessDepthStencilAttachmentWrite,
		ImageLayoutDepthStencilAttachmentOptimal,
	},
	ImageStateShaderRead:      {PipelineStageAllShaders, AccessShaderRead, ImageLayoutShaderReadOnlyOptimal},
	ImageStateShaderReadWrite: {PipelineStageAllShaders, AccessShaderRead | AccessShaderWrite, ImageLayoutGeneral},
	ImageStateCopySource:      {PipelineStageTransfer, AccessTransferRead, ImageLayoutTransferSrcOptimal},
	ImageStateCopyDest:        {PipelineStageTransfer, AccessTransferWrite, ImageLayoutTransferDstOptimal},
	ImageStatePresentSource:   {0, AccessMemoryRead, ImageLayoutPresentSrc},
}

var memoryStateTable = [...]bufferStateInfo{
	MemoryStateUndefined:                       {0, 0},
	MemoryStateCopyDest:                        {PipelineStageTransfer, AccessTransferWrite},
	MemoryStateAccelerationStructureBuildInput: {PipelineStageAccelerationStructureBuild, AccessMemoryRead},
	MemoryStateAccelerationStructureWrite: {
		PipelineStageAccelerationStructureBuild,
		AccessAccelerationStructureRead | AccessAccelerationStructureWrite,
	},
	MemoryStateAccelerationStructureRead: {
		PipelineStageRayTracingShader | PipelineStageAccelerationStructureBuild,
		AccessAccelerationStructureRead,
	},
}

func (s BufferState) Stage() PipelineStage { return bufferStateTable[s].stage }
func (s BufferState) Access() Access       { return bufferStateTable[s].access }

func (s ImageState) Stage() PipelineStage { return imageStateTable[s].stage }
func (s ImageState) Access() Access       { return imageStateTable[s].access }
func (s ImageState) Layout() ImageLayout  { return imageStateTable[s].layout }

func (s MemoryState) Stage() PipelineStage { return memoryStateTable[s].stage }
func (s MemoryState) Access() Access       { return memoryStateTable[s].access }

/** @brief Buffer transition between two table states. A zero Size covers the whole buffer. */
type BufferTransition struct {
	Buffer BufferHandle
	From   BufferState
	To     BufferState
	Offset uint64
	Size   uint64
}

/** @brief Image transition between two table states. Zero counts cover every level and layer. */
type ImageTransition struct {
	Image     Image
	From      ImageState
	To        ImageState
	BaseLevel uint32
	Levels    uint32
	BaseLayer uint32
	Layers    uint32
}

type MemoryTransition struct {
	From MemoryState
	To   MemoryState
}

// WholeSize addresses the remainder of a buffer.
const WholeSize uint64 = ^uint64(0)

// ResolveBarrier translates table transitions into one pipeline barrier. Source stages
// that resolve to nothing wait on bottom of pipe, destination stages on top of pipe.
func ResolveBarrier(memory []MemoryTransition, buffers []BufferTransition, images []ImageTransition) PipelineBarrier {
	var barrier PipelineBarrier

	for _, t := range memory {
		barrier.SrcStage |= t.From.Stage()
		barrier.DstStage |= t.To.Stage()
		barrier.Memory = append(barrier.Memory, MemoryBarrier{
			SrcAccess: t.From.Access(),
			DstAccess: t.To.Access(),
		})
	}
	for _, t := range buffers {
		size := t.Size
		if size == 0 {
			size = WholeSize
		}
		barrier.SrcStage |= t.From.Stage()
		barrier.DstStage |= t.To.Stage()
		barrier.Buffers = append(barrier.Buffers, BufferMemoryBarrier{
			SrcAccess: t.From.Access(),
			DstAccess: t.To.Access(),
			Buffer:    t.Buffer,
			Offset:    t.Offset,
			Size:      size,
		})
	}
	for _, t := range images {
		levels, layers := t.Levels, t.Layers
		if levels == 0 {
			levels = max(t.Image.Levels, 1) - t.BaseLevel
		}
		if layers == 0 {
			layers = max(t.Image.Layers, 1) - t.BaseLayer
		}
		aspect := t.Image.Aspect
		if aspect == 0 {
			aspect = t.Image.Format.Aspect()
		}
		barrier.SrcStage |= t.From.Stage()
		barrier.DstStage |= t.To.Stage()
		barrier.Images = append(barrier.Images, ImageMemoryBarrier{
			SrcAccess: t.From.Access(),
			DstAccess: t.To.Access(),
			OldLayout: t.From.Layout(),
			NewLayout: t.To.Layout(),
			Image:     t.Image.Handle,
			Aspect:    aspect,
			BaseLevel: t.BaseLevel,
			Levels:    levels,
			BaseLayer: t.BaseLayer,
			Layers:    layers,
		})
	}

	if barrier.SrcStage == 0 {
		barrier.SrcStage = PipelineStageBottomOfPipe
	}
	if barrier.DstStage == 0 {
		barrier.DstStage = PipelineStageTopOfPipe
	}
	return barrier
}
