package vulkan

import (
	"runtime"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/quartz/engine/core"
)

func (d *Driver) createInstance() error {
	if d.options.Window != nil {
		procAddr := glfw.GetVulkanGetInstanceProcAddress()
		if procAddr == nil {
			return errors.New("GetInstanceProcAddress is nil")
		}
		vk.SetGetInstanceProcAddr(procAddr)
	} else {
		vk.SetDefaultGetInstanceProcAddr()
	}
	if err := vk.Init(); err != nil {
		return errors.Wrap(err, "failed to initialize vk")
	}

	// TODO: custom allocator.
	d.allocator = nil

	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 2, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(d.options.ApplicationName),
		PEngineName:        VulkanSafeString("Quartz"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	requiredExtensions := []string{extensionPhysicalDeviceProps2}
	if d.options.Window != nil {
		requiredExtensions = append(requiredExtensions, d.options.Window.GetRequiredInstanceExtensions()...)
	}
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions, extensionPortabilityEnumerator)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	var requiredLayers []string
	if d.options.Validation {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
		core.LogInfo("Validation layers enabled. Enumerating...")
		if err := checkInstanceLayers([]string{validationLayer}); err != nil {
			return err
		}
		requiredLayers = []string{validationLayer}
	}
	core.LogDebug("Required instance extensions: %v", requiredExtensions)

	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)
	createInfo.EnabledLayerCount = uint32(len(requiredLayers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(requiredLayers)

	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, d.allocator, &instance); res != vk.Success {
		return errors.Wrap(result(res).Err(), "failed in creating the Vulkan Instance")
	}
	d.instance = instance
	if err := vk.InitInstance(d.instance); err != nil {
		return err
	}
	core.LogInfo("Vulkan Instance created.")

	if d.options.Validation {
		core.LogDebug("Creating Vulkan debugger...")
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := vk.Error(vk.CreateDebugReportCallback(d.instance, &debugCreateInfo, d.allocator, &dbg)); err != nil {
			return errors.Wrap(err, "vk.CreateDebugReportCallback failed")
		}
		d.debugCallback = dbg
		core.LogDebug("Vulkan debugger created.")
	}
	return nil
}

func checkInstanceLayers(required []string) error {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return result(res).Err()
	}
	available := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, available); res != vk.Success {
		return result(res).Err()
	}
	for _, name := range required {
		found := false
		for j := range available {
			available[j].Deref()
			if fixedString(available[j].LayerName[:]) == name {
				found = true
				break
			}
		}
		if !found {
			return errors.Newf("required validation layer is missing: %s", name)
		}
	}
	core.LogInfo("All required validation layers are present.")
	return nil
}

func (d *Driver) createSurface() error {
	core.LogDebug("Creating Vulkan surface...")
	surface, err := d.options.Window.CreateWindowSurface(d.instance, nil)
	if err != nil {
		return errors.Wrap(err, "Vulkan surface creation failed")
	}
	d.surface = vk.SurfaceFromPointer(surface)
	core.LogDebug("Vulkan surface created.")
	return nil
}

func (d *Driver) destroyInstance() {
	if d.instance == nil {
		return
	}
	if d.debugCallback != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(d.instance, d.debugCallback, d.allocator)
		d.debugCallback = vk.NullDebugReportCallback
	}
	core.LogDebug("Destroying Vulkan instance...")
	vk.DestroyInstance(d.instance, d.allocator)
	d.instance = nil
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
