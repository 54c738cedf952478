package pipeline

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/quartz/engine/core"
	"github.com/spaghettifunk/quartz/engine/renderer/gpu"
)

const (
	// ShaderExtension is appended to a shader name to locate its bytecode.
	ShaderExtension = ".spv"
	// ReflectionExtension is appended to the bytecode path to locate its reflection sidecar.
	ReflectionExtension = ".toml"
	// EntryPoint is the function every shader module is entered through.
	EntryPoint = "main"
)

var (
	ErrShaderNotFound       = errors.New("shader bytecode not found")
	ErrInvalidReflection    = errors.New("invalid shader reflection")
	ErrUnknownShaderStage   = errors.New("unknown shader stage")
	ErrUnknownDescriptor    = errors.New("unknown descriptor type")
	ErrShaderModuleCreation = errors.New("failed to create shader module")
)

type reflectedBinding struct {
	Name    string `toml:"name"`
	Binding uint32 `toml:"binding"`
	Type    string `toml:"type"`
	Count   uint32 `toml:"count"`
}

type reflectedDescriptorSet struct {
	Set      uint32             `toml:"set"`
	Bindings []reflectedBinding `toml:"bindings"`
}

type reflectedPushConstant struct {
	Name   string `toml:"name"`
	Offset uint32 `toml:"offset"`
	Size   uint32 `toml:"size"`
}

// reflection is the sidecar written next to each compiled shader.
type reflection struct {
	Stage          string                   `toml:"stage"`
	DescriptorSets []reflectedDescriptorSet `toml:"descriptor_sets"`
	PushConstants  []reflectedPushConstant  `toml:"push_constants"`
}

/** @brief A descriptor binding declared by a shader. A zero count marks a runtime sized array. */
type DescriptorSetBinding struct {
	Name    string
	Set     uint32
	Binding uint32
	Type    gpu.DescriptorType
	Count   uint32
}

/** @brief A push constant block declared by a shader. */
type PushConstant struct {
	Name   string
	Offset uint32
	Size   uint32
}

/**
 * @brief A compiled shader together with the resources it declares.
 */
type ShaderModule struct {
	/** @brief The shader name, without directory or extension. */
	Name string
	/** @brief The path of the SPIR-V bytecode. */
	Path string
	/** @brief The single stage this module is compiled for. */
	Stage gpu.ShaderStage
	/** @brief The internal shader module handle. */
	Handle gpu.ShaderModuleHandle
	/** @brief Every descriptor binding, ordered as declared. */
	Bindings []DescriptorSetBinding
	/** @brief Every push constant block, ordered as declared. */
	PushConstants []PushConstant

	device *gpu.Device
}

// ShaderPath returns the bytecode path of the named shader.
func ShaderPath(shaderDir, name string) string {
	return filepath.Join(shaderDir, name+ShaderExtension)
}

// LoadShaderModule reads <shaderDir>/<name>.spv and its reflection sidecar and creates the module.
func LoadShaderModule(device *gpu.Device, shaderDir, name string) (*ShaderModule, error) {
	path := ShaderPath(shaderDir, name)
	code, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrShaderNotFound, "%s", path)
		}
		return nil, errors.Wrapf(err, "reading shader %s", path)
	}
	sidecar, err := os.ReadFile(path + ReflectionExtension)
	if err != nil {
		return nil, errors.Wrapf(err, "reading shader reflection %s", path+ReflectionExtension)
	}

	module, err := parseReflection(sidecar)
	if err != nil {
		return nil, errors.Wrapf(err, "shader %s", name)
	}
	module.Name = name
	module.Path = path
	module.device = device

	module.Handle = device.CreateShaderModule(code)
	if !module.Handle.IsValid() {
		return nil, errors.Wrapf(ErrShaderModuleCreation, "shader %s", name)
	}
	core.LogDebug("loaded %s shader %s (%d bindings, %d push constants)", module.Stage, name, len(module.Bindings), len(module.PushConstants))
	return module, nil
}

func parseReflection(data []byte) (*ShaderModule, error) {
	var r reflection
	if err := toml.Unmarshal(data, &r); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "parsing reflection"), ErrInvalidReflection)
	}
	stage, ok := gpu.ParseShaderStage(r.Stage)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownShaderStage, "%q", r.Stage)
	}

	module := &ShaderModule{Stage: stage}
	for _, set := range r.DescriptorSets {
		for _, b := range set.Bindings {
			t, ok := gpu.ParseDescriptorType(b.Type)
			if !ok {
				return nil, errors.Wrapf(ErrUnknownDescriptor, "%q for binding %s", b.Type, b.Name)
			}
			module.Bindings = append(module.Bindings, DescriptorSetBinding{
				Name:    b.Name,
				Set:     set.Set,
				Binding: b.Binding,
				Type:    t,
				Count:   b.Count,
			})
		}
	}
	for _, pc := range r.PushConstants {
		if pc.Size == 0 {
			return nil, errors.Wrapf(ErrInvalidReflection, "push constant %s has zero size", pc.Name)
		}
		module.PushConstants = append(module.PushConstants, PushConstant(pc))
	}
	return module, nil
}

func (m *ShaderModule) IsValid() bool {
	return m != nil && m.Handle.IsValid()
}

// StageInfo describes the module as a pipeline stage.
func (m *ShaderModule) StageInfo() gpu.PipelineShaderStage {
	return gpu.PipelineShaderStage{
		Stage:  m.Stage,
		Module: m.Handle,
		Entry:  EntryPoint,
	}
}

// FindBinding looks up a binding by the name it was declared with.
func (m *ShaderModule) FindBinding(name string) (DescriptorSetBinding, bool) {
	for _, b := range m.Bindings {
		if b.Name == name {
			return b, true
		}
	}
	return DescriptorSetBinding{}, false
}

func (m *ShaderModule) Destroy() {
	if m == nil || m.device == nil {
		return
	}
	m.device.DestroyShaderModule(&m.Handle)
}
