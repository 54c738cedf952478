package pipeline

import (
	"cmp"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/quartz/engine/core"
	"github.com/spaghettifunk/quartz/engine/renderer/gpu"
	"github.com/spaghettifunk/quartz/engine/systems"
)

// BindlessDescriptors is the part of the descriptor manager a pipeline layout has to agree with.
type BindlessDescriptors interface {
	DescriptorPoolCapacity(class systems.ResourceClass) uint32
	BindingFlags() gpu.DescriptorBindingFlags
}

type bindingKey struct {
	set     uint32
	binding uint32
}

type bindingInfo struct {
	count  uint32
	flags  gpu.DescriptorBindingFlags
	stages gpu.ShaderStage
}

/**
 * @brief State and layout assembly shared by every pipeline builder. B is the concrete
 * builder so that setters can be chained. A builder is single use: Build releases the
 * shader modules it loaded.
 */
type builder[B any] struct {
	self      B
	device    *gpu.Device
	shaderDir string

	shaders []*ShaderModule
	loadErr error

	infos          map[bindingKey]bindingInfo
	namedInfos     map[string]bindingInfo
	samplers       map[bindingKey]gpu.SamplerHandle
	namedSamplers  map[string]gpu.SamplerHandle
	defaultSampler gpu.SamplerHandle
}

func newBuilder[B any](self B, device *gpu.Device, shaderDir string) builder[B] {
	return builder[B]{
		self:          self,
		device:        device,
		shaderDir:     shaderDir,
		infos:         make(map[bindingKey]bindingInfo),
		namedInfos:    make(map[string]bindingInfo),
		samplers:      make(map[bindingKey]gpu.SamplerHandle),
		namedSamplers: make(map[string]gpu.SamplerHandle),
	}
}

// Shaders loads the named modules in order. Each builder decides which stages may repeat.
func (b *builder[B]) Shaders(names ...string) B {
	for _, name := range names {
		module, err := LoadShaderModule(b.device, b.shaderDir, name)
		if err != nil {
			core.LogError("failed to load shader %s: %v", name, err)
			b.loadErr = errors.CombineErrors(b.loadErr, err)
			continue
		}
		b.shaders = append(b.shaders, module)
	}
	return b.self
}

// duplicateStage returns the first module whose stage was already claimed by an earlier module.
func (b *builder[B]) duplicateStage() *ShaderModule {
	var seen gpu.ShaderStage
	for _, s := range b.shaders {
		if seen&s.Stage != 0 {
			return s
		}
		seen |= s.Stage
	}
	return nil
}

func (b *builder[B]) DescriptorBindingCount(set, binding, count uint32) B {
	key := bindingKey{set, binding}
	info := b.infos[key]
	info.count = count
	b.infos[key] = info
	return b.self
}

func (b *builder[B]) DescriptorBindingCountByName(name string, count uint32) B {
	info := b.namedInfos[name]
	info.count = count
	b.namedInfos[name] = info
	return b.self
}

func (b *builder[B]) DescriptorBindingFlags(set, binding uint32, flags gpu.DescriptorBindingFlags) B {
	key := bindingKey{set, binding}
	info := b.infos[key]
	info.flags = flags
	b.infos[key] = info
	return b.self
}

func (b *builder[B]) DescriptorBindingFlagsByName(name string, flags gpu.DescriptorBindingFlags) B {
	info := b.namedInfos[name]
	info.flags = flags
	b.namedInfos[name] = info
	return b.self
}

func (b *builder[B]) DescriptorBindingSampler(set, binding uint32, sampler gpu.SamplerHandle) B {
	b.samplers[bindingKey{set, binding}] = sampler
	return b.self
}

func (b *builder[B]) DescriptorBindingSamplerByName(name string, sampler gpu.SamplerHandle) B {
	b.namedSamplers[name] = sampler
	return b.self
}

// DefaultSampler is used by every sampler binding that was not given one explicitly.
func (b *builder[B]) DefaultSampler(sampler gpu.SamplerHandle) B {
	b.defaultSampler = sampler
	return b.self
}

// DescriptorBindingManager declares a binding as the bindless array owned by mgr for class.
func (b *builder[B]) DescriptorBindingManager(set, binding uint32, mgr BindlessDescriptors, class systems.ResourceClass) B {
	b.infos[bindingKey{set, binding}] = bindingInfo{
		count:  mgr.DescriptorPoolCapacity(class),
		flags:  mgr.BindingFlags(),
		stages: gpu.ShaderStageAll,
	}
	return b.self
}

type setLayout struct {
	flags    gpu.DescriptorSetLayoutCreateFlags
	bindings map[uint32]*gpu.DescriptorSetLayoutBinding
	names    map[uint32]string
}

func (b *builder[B]) assembleSets() map[uint32]*setLayout {
	sets := make(map[uint32]*setLayout)
	explicit := make(map[bindingKey]bool)

	for _, shader := range b.shaders {
		for _, decl := range shader.Bindings {
			key := bindingKey{decl.Set, decl.Binding}
			info, hasInfo := b.infos[key]

			set := sets[decl.Set]
			if set == nil {
				set = &setLayout{
					bindings: make(map[uint32]*gpu.DescriptorSetLayoutBinding),
					names:    make(map[uint32]string),
				}
				sets[decl.Set] = set
			}
			binding := set.bindings[decl.Binding]
			if binding == nil {
				binding = &gpu.DescriptorSetLayoutBinding{
					Binding: decl.Binding,
					Type:    decl.Type,
					Count:   decl.Count,
				}
				set.bindings[decl.Binding] = binding
				set.names[decl.Binding] = decl.Name
			} else if binding.Type != decl.Type || (binding.Count != decl.Count && !(hasInfo && info.count > 0)) {
				core.LogWarn("Conflicting descriptor set layout binding (set %d, binding %d) in shader %s", decl.Set, decl.Binding, shader.Name)
				continue
			}

			binding.Stages |= shader.Stage
			if hasInfo {
				binding.Stages |= info.stages
				binding.Flags = info.flags
				if info.count > 0 {
					binding.Count = info.count
				}
			}
			if sampler, ok := b.samplers[key]; ok && binding.Type.UsesSampler() {
				binding.ImmutableSamplers = []gpu.SamplerHandle{sampler}
				explicit[key] = true
			}
		}
	}

	for name, info := range b.namedInfos {
		binding, _ := findByName(sets, name)
		if binding == nil {
			core.LogWarn("Cannot set descriptor binding info: no such descriptor set binding: %s", name)
			continue
		}
		if info.count > 0 {
			binding.Count = info.count
		}
		binding.Stages |= info.stages
		binding.Flags |= info.flags
	}
	for name, sampler := range b.namedSamplers {
		binding, set := findByName(sets, name)
		if binding == nil {
			core.LogWarn("Cannot set descriptor binding sampler: no such descriptor set binding: %s", name)
			continue
		}
		if binding.Type.UsesSampler() {
			binding.ImmutableSamplers = []gpu.SamplerHandle{sampler}
			explicit[bindingKey{set, binding.Binding}] = true
		}
	}

	for index, set := range sets {
		for _, binding := range set.bindings {
			if binding.Flags&gpu.DescriptorBindingUpdateAfterBind != 0 {
				set.flags |= gpu.DescriptorSetLayoutCreateUpdateAfterBindPool
			}
			if !binding.Type.UsesSampler() || binding.Count == 0 {
				continue
			}
			if b.defaultSampler.IsValid() && !explicit[bindingKey{index, binding.Binding}] {
				binding.ImmutableSamplers = []gpu.SamplerHandle{b.defaultSampler}
			}
			if len(binding.ImmutableSamplers) == 1 && binding.Count > 1 {
				sampler := binding.ImmutableSamplers[0]
				binding.ImmutableSamplers = slices.Repeat([]gpu.SamplerHandle{sampler}, int(binding.Count))
			}
		}
	}
	return sets
}

func findByName(sets map[uint32]*setLayout, name string) (*gpu.DescriptorSetLayoutBinding, uint32) {
	for index, set := range sets {
		for binding, n := range set.names {
			if n == name {
				return set.bindings[binding], index
			}
		}
	}
	return nil, 0
}

// pushConstantRanges merges identical ranges declared by several stages.
func (b *builder[B]) pushConstantRanges() []gpu.PushConstantRange {
	merged := make(map[uint64]gpu.PushConstantRange)
	for _, shader := range b.shaders {
		for _, pc := range shader.PushConstants {
			key := uint64(pc.Size)<<32 | uint64(pc.Offset)
			r := merged[key]
			r.Offset = pc.Offset
			r.Size = pc.Size
			r.Stages |= shader.Stage
			merged[key] = r
		}
	}
	ranges := make([]gpu.PushConstantRange, 0, len(merged))
	for _, r := range merged {
		ranges = append(ranges, r)
	}
	slices.SortFunc(ranges, func(a, c gpu.PushConstantRange) int {
		return cmp.Compare(uint64(a.Size)<<32|uint64(a.Offset), uint64(c.Size)<<32|uint64(c.Offset))
	})
	return ranges
}

func (b *builder[B]) pushConstantStages() gpu.ShaderStage {
	var stages gpu.ShaderStage
	for _, shader := range b.shaders {
		if len(shader.PushConstants) > 0 {
			stages |= shader.Stage
		}
	}
	return stages
}

/**
 * @brief Creates one descriptor set layout per set index, gaps included, and the pipeline
 * layout referencing them. Nothing is left behind on failure.
 */
func (b *builder[B]) buildLayout() ([]gpu.DescriptorSetLayoutHandle, gpu.PipelineLayoutHandle, bool) {
	sets := b.assembleSets()

	numSets := uint32(0)
	for index := range sets {
		numSets = max(numSets, index+1)
	}
	layouts := make([]gpu.DescriptorSetLayoutHandle, numSets)
	destroyLayouts := func() {
		for i := range layouts {
			b.device.DestroyDescriptorSetLayout(&layouts[i])
		}
	}

	for index := uint32(0); index < numSets; index++ {
		info := gpu.DescriptorSetLayoutCreateInfo{}
		if set := sets[index]; set != nil {
			info.Flags = set.flags
			for _, binding := range set.bindings {
				if binding.Count == 0 {
					continue
				}
				info.Bindings = append(info.Bindings, *binding)
			}
			slices.SortFunc(info.Bindings, func(a, c gpu.DescriptorSetLayoutBinding) int {
				return cmp.Compare(a.Binding, c.Binding)
			})
		}
		layouts[index] = b.device.CreateDescriptorSetLayout(info)
		if !layouts[index].IsValid() {
			destroyLayouts()
			return nil, 0, false
		}
	}

	layout := b.device.CreatePipelineLayout(gpu.PipelineLayoutCreateInfo{
		SetLayouts:    layouts,
		PushConstants: b.pushConstantRanges(),
	})
	if !layout.IsValid() {
		destroyLayouts()
		return nil, 0, false
	}
	return layouts, layout, true
}

func (b *builder[B]) stages() []gpu.PipelineShaderStage {
	stages := make([]gpu.PipelineShaderStage, len(b.shaders))
	for i, s := range b.shaders {
		stages[i] = s.StageInfo()
	}
	return stages
}

// validateShaders rejects empty builders and builders whose shaders failed to load.
func (b *builder[B]) validateShaders(kind string) bool {
	if b.loadErr != nil {
		core.LogError("cannot build %s pipeline: %v", kind, b.loadErr)
		return false
	}
	if len(b.shaders) == 0 {
		core.LogError("cannot build %s pipeline: no shaders specified", kind)
		return false
	}
	return true
}

func (b *builder[B]) releaseShaders() {
	for _, s := range b.shaders {
		s.Destroy()
	}
	b.shaders = nil
}
