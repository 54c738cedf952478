package vulkan

import (
	"math"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/quartz/engine/core"
	"github.com/spaghettifunk/quartz/engine/renderer/gpu"
)

type VulkanSwapchainSupportInfo struct {
	Capabilities     vk.SurfaceCapabilities
	FormatCount      uint32
	Formats          []vk.SurfaceFormat
	PresentModeCount uint32
	PresentModes     []vk.PresentMode
}

/**
 * @brief A Driver attached to a window surface. Implements gpu.Presenter.
 */
type PresentingDriver struct {
	*Driver

	swapchain   vk.Swapchain
	imageFormat vk.SurfaceFormat
	extent      vk.Extent2D
	images      []vk.Image
	views       []gpu.ImageViewHandle
	// One more acquire semaphore than images, used round robin.
	acquire     []gpu.SemaphoreHandle
	nextAcquire int
}

func (p *PresentingDriver) SurfaceFormat() gpu.Format {
	return gpuFormat(p.imageFormat.Format)
}

func (p *PresentingDriver) SurfaceExtent() gpu.Extent2D {
	return gpu.Extent2D{Width: p.extent.Width, Height: p.extent.Height}
}

func (p *PresentingDriver) SwapchainViews() []gpu.ImageViewHandle {
	return p.views
}

// AcquireNextImage returns ErrorOutOfDate when the swapchain must be recreated.
func (p *PresentingDriver) AcquireNextImage() (uint32, gpu.SemaphoreHandle, gpu.Result) {
	semaphore := p.acquire[p.nextAcquire]
	p.nextAcquire = (p.nextAcquire + 1) % len(p.acquire)

	var imageIndex uint32
	var res vk.Result
	_ = p.locks.SafeCall(SwapchainManagement, func() error {
		res = vk.AcquireNextImage(p.device.LogicalDevice, p.swapchain, math.MaxUint64, p.semaphores.get(uint64(semaphore)), vk.NullFence, &imageIndex)
		return nil
	})
	if res != vk.Success && res != vk.Suboptimal {
		if res != vk.ErrorOutOfDate {
			core.LogError("Failed to acquire swapchain image: %s", ResultString(res))
		}
		return 0, 0, result(res)
	}
	return imageIndex, semaphore, gpu.Success
}

// Present returns ErrorOutOfDate for a suboptimal swapchain too, so callers recreate it.
func (p *PresentingDriver) Present(imageIndex uint32, wait gpu.SemaphoreHandle) gpu.Result {
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{p.semaphores.get(uint64(wait))},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{p.swapchain},
		PImageIndices:      []uint32{imageIndex},
	}

	var res vk.Result
	_ = p.locks.SafeQueueCall(uint32(p.device.PresentQueueIndex), func() error {
		res = vk.QueuePresent(p.device.PresentQueue, &presentInfo)
		return nil
	})
	switch res {
	case vk.Success:
		return gpu.Success
	case vk.ErrorOutOfDate, vk.Suboptimal:
		return gpu.ErrorOutOfDate
	default:
		core.LogError("Failed to present swap chain image: %s", ResultString(res))
		return result(res)
	}
}

func (p *PresentingDriver) RecreateSwapchain(width, height uint32) gpu.Result {
	if res := vk.DeviceWaitIdle(p.device.LogicalDevice); res != vk.Success {
		return result(res)
	}
	p.destroySwapchain()
	return p.createSwapchain(width, height)
}

// Destroy releases the swapchain before the device.
func (p *PresentingDriver) Destroy() {
	if p.device != nil && p.device.LogicalDevice != nil {
		vk.DeviceWaitIdle(p.device.LogicalDevice)
		p.destroySwapchain()
	}
	p.Driver.Destroy()
}

func (p *PresentingDriver) createSwapchain(width, height uint32) gpu.Result {
	support := &p.device.SwapchainSupport
	if err := DeviceQuerySwapchainSupport(p.device.PhysicalDevice, p.surface, support); err != nil {
		core.LogError("Failed to query swapchain support: %v", err)
		return gpu.ErrorSurfaceLost
	}

	// Choose a swap surface format.
	p.imageFormat = support.Formats[0]
	for _, format := range support.Formats {
		// Preferred formats
		if format.Format == vk.FormatB8g8r8a8Unorm && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			p.imageFormat = format
			break
		}
	}

	presentMode := vk.PresentModeFifo
	for _, mode := range support.PresentModes {
		if mode == vk.PresentModeMailbox {
			presentMode = mode
			break
		}
	}

	// Clamp to the value allowed by the GPU.
	p.extent = clampExtent(vk.Extent2D{Width: width, Height: height}, support.Capabilities)

	imageCount := support.Capabilities.MinImageCount + 1
	if support.Capabilities.MaxImageCount > 0 && imageCount > support.Capabilities.MaxImageCount {
		imageCount = support.Capabilities.MaxImageCount
	}

	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          p.surface,
		MinImageCount:    imageCount,
		ImageFormat:      p.imageFormat.Format,
		ImageColorSpace:  p.imageFormat.ColorSpace,
		ImageExtent:      p.extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     support.Capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
		OldSwapchain:     vk.NullSwapchain,
	}

	// Setup the queue family indices
	if p.device.GraphicsQueueIndex != p.device.PresentQueueIndex {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeConcurrent
		swapchainCreateInfo.QueueFamilyIndexCount = 2
		swapchainCreateInfo.PQueueFamilyIndices = []uint32{
			uint32(p.device.GraphicsQueueIndex),
			uint32(p.device.PresentQueueIndex),
		}
	} else {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	var swapchain vk.Swapchain
	if res := vk.CreateSwapchain(p.device.LogicalDevice, &swapchainCreateInfo, p.allocator, &swapchain); res != vk.Success {
		core.LogError("failed to create swapchain")
		return result(res)
	}
	p.swapchain = swapchain

	// Images
	var count uint32
	if res := vk.GetSwapchainImages(p.device.LogicalDevice, p.swapchain, &count, nil); res != vk.Success {
		core.LogError("failed to get swapchain images")
		return result(res)
	}
	p.images = make([]vk.Image, count)
	if res := vk.GetSwapchainImages(p.device.LogicalDevice, p.swapchain, &count, p.images); res != vk.Success {
		core.LogError("failed to get swapchain images")
		return result(res)
	}

	// Views
	p.views = make([]gpu.ImageViewHandle, 0, count)
	for _, image := range p.images {
		viewInfo := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    image,
			ViewType: vk.ImageViewType2d,
			Format:   p.imageFormat.Format,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		}
		var view vk.ImageView
		if res := vk.CreateImageView(p.device.LogicalDevice, &viewInfo, p.allocator, &view); res != vk.Success {
			core.LogError("failed to create image view")
			return result(res)
		}
		p.views = append(p.views, gpu.ImageViewHandle(p.Driver.views.put(view)))
	}

	p.acquire = make([]gpu.SemaphoreHandle, 0, count+1)
	for i := uint32(0); i <= count; i++ {
		semaphore, r := p.CreateSemaphore()
		if !r.IsSuccess() {
			return r
		}
		p.acquire = append(p.acquire, semaphore)
	}
	p.nextAcquire = 0

	core.LogInfo("Swapchain created successfully: %dx%d, %d images.", p.extent.Width, p.extent.Height, count)
	return gpu.Success
}

func (p *PresentingDriver) destroySwapchain() {
	for _, semaphore := range p.acquire {
		p.DestroySemaphore(semaphore)
	}
	p.acquire = nil

	// Only destroy the views, not the images, since those are owned by the swapchain.
	for _, handle := range p.views {
		if view, ok := p.Driver.views.take(uint64(handle)); ok {
			vk.DestroyImageView(p.device.LogicalDevice, view, p.allocator)
		}
	}
	p.views = nil
	p.images = nil

	if p.swapchain != vk.NullSwapchain {
		vk.DestroySwapchain(p.device.LogicalDevice, p.swapchain, p.allocator)
		p.swapchain = vk.NullSwapchain
	}
}
