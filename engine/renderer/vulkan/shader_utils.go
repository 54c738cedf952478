package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/quartz/engine/core"
	"github.com/spaghettifunk/quartz/engine/renderer/gpu"
)

// CreateShaderModule expects SPIR-V. The code length must be a multiple of four.
func (d *Driver) CreateShaderModule(code []byte) (gpu.ShaderModuleHandle, gpu.Result) {
	if len(code) == 0 || len(code)%4 != 0 {
		core.LogError("invalid SPIR-V code size %d", len(code))
		return 0, gpu.ErrorInvalidShader
	}
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code)),
		PCode:    sliceUint32(code),
	}
	var module vk.ShaderModule
	if res := vk.CreateShaderModule(d.device.LogicalDevice, &createInfo, d.allocator, &module); res != vk.Success {
		return 0, result(res)
	}
	return gpu.ShaderModuleHandle(d.shaderModules.put(module)), gpu.Success
}

func (d *Driver) DestroyShaderModule(module gpu.ShaderModuleHandle) {
	if m, ok := d.shaderModules.take(uint64(module)); ok {
		vk.DestroyShaderModule(d.device.LogicalDevice, m, d.allocator)
	}
}

func (d *Driver) shaderStages(stages []gpu.PipelineShaderStage) []vk.PipelineShaderStageCreateInfo {
	out := make([]vk.PipelineShaderStageCreateInfo, len(stages))
	for i, s := range stages {
		entry := s.Entry
		if entry == "" {
			entry = "main"
		}
		out[i] = vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vkShaderStage(s.Stage),
			Module: d.shaderModules.get(uint64(s.Module)),
			PName:  VulkanSafeString(entry),
		}
	}
	return out
}
