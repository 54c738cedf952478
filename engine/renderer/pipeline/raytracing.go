package pipeline

import (
	"github.com/spaghettifunk/quartz/engine/core"
	"github.com/spaghettifunk/quartz/engine/renderer/gpu"
)

const defaultMaxRecursionDepth = 1

/**
 * @brief Builds a ray tracing pipeline and its shader binding table. Groups are laid out
 * as the raygen shader, then every miss shader, then the hit groups.
 */
type RayTracingBuilder struct {
	builder[*RayTracingBuilder]
	maxRecursionDepth uint32
}

func NewRayTracingBuilder(device *gpu.Device, shaderDir string) *RayTracingBuilder {
	b := &RayTracingBuilder{maxRecursionDepth: defaultMaxRecursionDepth}
	b.builder = newBuilder(b, device, shaderDir)
	return b
}

func (b *RayTracingBuilder) MaxRecursionDepth(depth uint32) *RayTracingBuilder {
	b.maxRecursionDepth = depth
	return b
}

func (b *RayTracingBuilder) validate() bool {
	if !b.validateShaders("ray tracing") {
		return false
	}
	numRaygen := 0
	for _, s := range b.shaders {
		switch s.Stage {
		case gpu.ShaderStageRaygen:
			numRaygen++
		case gpu.ShaderStageMiss, gpu.ShaderStageClosestHit, gpu.ShaderStageAnyHit:
		default:
			core.LogError("cannot build ray tracing pipeline: unsupported %s shader %s", s.Stage, s.Name)
			return false
		}
	}
	if numRaygen != 1 {
		core.LogError("cannot build ray tracing pipeline: exactly one raygen shader is required, got %d", numRaygen)
		return false
	}
	return true
}

// groups returns the shader groups in binding table order and the index of the first hit group.
func (b *RayTracingBuilder) groups() ([]gpu.ShaderGroup, uint32) {
	general := func(index int) gpu.ShaderGroup {
		return gpu.ShaderGroup{
			Type:         gpu.ShaderGroupGeneral,
			General:      uint32(index),
			ClosestHit:   gpu.ShaderUnused,
			AnyHit:       gpu.ShaderUnused,
			Intersection: gpu.ShaderUnused,
		}
	}
	hit := func(closestHit, anyHit uint32) gpu.ShaderGroup {
		return gpu.ShaderGroup{
			Type:         gpu.ShaderGroupTrianglesHitGroup,
			General:      gpu.ShaderUnused,
			ClosestHit:   closestHit,
			AnyHit:       anyHit,
			Intersection: gpu.ShaderUnused,
		}
	}

	var raygen gpu.ShaderGroup
	var miss, hits []gpu.ShaderGroup
	pending := gpu.ShaderUnused
	flush := func() {
		if pending != gpu.ShaderUnused {
			hits = append(hits, hit(pending, gpu.ShaderUnused))
			pending = gpu.ShaderUnused
		}
	}

	for i, s := range b.shaders {
		switch s.Stage {
		case gpu.ShaderStageRaygen:
			raygen = general(i)
		case gpu.ShaderStageMiss:
			flush()
			miss = append(miss, general(i))
		case gpu.ShaderStageClosestHit:
			flush()
			pending = uint32(i)
		case gpu.ShaderStageAnyHit:
			if pending == gpu.ShaderUnused {
				core.LogWarn("any hit shader %s has no matching closest hit shader, ignoring", s.Name)
				continue
			}
			hits = append(hits, hit(pending, uint32(i)))
			pending = gpu.ShaderUnused
		}
	}
	flush()

	groups := make([]gpu.ShaderGroup, 0, 1+len(miss)+len(hits))
	groups = append(groups, raygen)
	groups = append(groups, miss...)
	groups = append(groups, hits...)
	return groups, uint32(1 + len(miss))
}

/**
 * @brief Creates the pipeline and fills a host visible shader binding table with the
 * group handles in group order.
 * @return An invalid pipeline if validation or any creation step failed.
 */
func (b *RayTracingBuilder) Build() gpu.Pipeline {
	defer b.releaseShaders()
	if !b.validate() {
		return gpu.Pipeline{}
	}

	properties := b.device.RayTracingProperties()
	depth := b.maxRecursionDepth
	if depth > properties.MaxRecursionDepth {
		core.LogWarn("max recursion depth %d exceeds the device limit, clamping to %d", depth, properties.MaxRecursionDepth)
		depth = properties.MaxRecursionDepth
	}

	setLayouts, layout, ok := b.buildLayout()
	if !ok {
		return gpu.Pipeline{}
	}
	result := gpu.Pipeline{
		Layout:               layout,
		BindPoint:            gpu.PipelineBindPointRayTracing,
		DescriptorSetLayouts: setLayouts,
		PushConstantStages:   b.pushConstantStages(),
	}

	groups, firstHitGroup := b.groups()
	result.Handle = b.device.CreateRayTracingPipeline(gpu.RayTracingPipelineCreateInfo{
		Stages:            b.stages(),
		Groups:            groups,
		MaxRecursionDepth: depth,
		Layout:            layout,
	})
	if !result.Handle.IsValid() {
		b.device.DestroyPipeline(&result)
		return gpu.Pipeline{}
	}

	handleSize := uint64(properties.ShaderGroupHandleSize)
	handles := b.device.ShaderGroupHandles(result.Handle, 0, uint32(len(groups)))
	if handles == nil {
		b.device.DestroyPipeline(&result)
		return gpu.Pipeline{}
	}
	result.ShaderBindingTable = b.device.CreateHostBuffer(handleSize*uint64(len(groups)), gpu.BufferUsageRayTracing)
	if !result.ShaderBindingTable.IsValid() {
		b.device.DestroyPipeline(&result)
		return gpu.Pipeline{}
	}
	copy(result.ShaderBindingTable.Mapped, handles)

	result.HandleSize = handleSize
	result.MissGroupOffset = handleSize
	result.HitGroupOffset = handleSize * uint64(firstHitGroup)
	result.NumMissGroups = firstHitGroup - 1
	core.LogDebug("created ray tracing pipeline with %d shader groups", len(groups))
	return result
}
