package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/quartz/engine/renderer/gpu"
)

// CreateRenderPass builds a single subpass over the given color attachments.
func (d *Driver) CreateRenderPass(info gpu.RenderPassCreateInfo) (gpu.RenderPassHandle, gpu.Result) {
	attachmentDescriptions := make([]vk.AttachmentDescription, len(info.ColorAttachments))
	colorAttachmentReferences := make([]vk.AttachmentReference, len(info.ColorAttachments))
	for i, a := range info.ColorAttachments {
		loadOp := vk.AttachmentLoadOpLoad
		if a.Clear {
			loadOp = vk.AttachmentLoadOpClear
		} else if a.InitialLayout == gpu.ImageLayoutUndefined {
			loadOp = vk.AttachmentLoadOpDontCare
		}
		storeOp := vk.AttachmentStoreOpDontCare
		if a.Store {
			storeOp = vk.AttachmentStoreOpStore
		}
		attachmentDescriptions[i] = vk.AttachmentDescription{
			Format:         vkFormat(a.Format),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         loadOp,
			StoreOp:        storeOp,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vkImageLayout(a.InitialLayout),
			FinalLayout:    vkImageLayout(a.FinalLayout),
		}
		colorAttachmentReferences[i] = vk.AttachmentReference{
			Attachment: uint32(i),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorAttachmentReferences)),
		PColorAttachments:    colorAttachmentReferences,
	}

	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit) | vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
	}

	renderpassCreateInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachmentDescriptions)),
		PAttachments:    attachmentDescriptions,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}

	var renderPass vk.RenderPass
	if res := vk.CreateRenderPass(d.device.LogicalDevice, &renderpassCreateInfo, d.allocator, &renderPass); res != vk.Success {
		return 0, result(res)
	}
	return gpu.RenderPassHandle(d.renderPasses.put(renderPass)), gpu.Success
}

func (d *Driver) DestroyRenderPass(pass gpu.RenderPassHandle) {
	if rp, ok := d.renderPasses.take(uint64(pass)); ok {
		vk.DestroyRenderPass(d.device.LogicalDevice, rp, d.allocator)
	}
}
