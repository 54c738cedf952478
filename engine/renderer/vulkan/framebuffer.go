package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/quartz/engine/core"
	"github.com/spaghettifunk/quartz/engine/renderer/gpu"
)

func (d *Driver) CreateFramebuffer(info gpu.FramebufferCreateInfo) (gpu.FramebufferHandle, gpu.Result) {
	attachments := make([]vk.ImageView, len(info.Attachments))
	for i, view := range info.Attachments {
		attachments[i] = d.views.get(uint64(view))
	}

	framebufferCreateInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      d.renderPasses.get(uint64(info.RenderPass)),
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           info.Width,
		Height:          info.Height,
		Layers:          1,
	}

	var framebuffer vk.Framebuffer
	if res := vk.CreateFramebuffer(d.device.LogicalDevice, &framebufferCreateInfo, d.allocator, &framebuffer); res != vk.Success {
		core.LogError("failed to create framebuffer %dx%d", info.Width, info.Height)
		return 0, result(res)
	}
	return gpu.FramebufferHandle(d.framebuffers.put(framebuffer)), gpu.Success
}

func (d *Driver) DestroyFramebuffer(framebuffer gpu.FramebufferHandle) {
	if fb, ok := d.framebuffers.take(uint64(framebuffer)); ok {
		vk.DestroyFramebuffer(d.device.LogicalDevice, fb, d.allocator)
	}
}
