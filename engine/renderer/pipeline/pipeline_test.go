package pipeline

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/quartz/engine/renderer/gpu"
	"github.com/spaghettifunk/quartz/engine/renderer/gpu/headless"
	"github.com/spaghettifunk/quartz/engine/systems"
)

const raygenReflection = `
stage = "raygen"

[[descriptor_sets]]
set = 0

[[descriptor_sets.bindings]]
name = "scene"
binding = 0
type = "acceleration_structure"
count = 1

[[descriptor_sets.bindings]]
name = "renderBuffer"
binding = 3
type = "storage_image"
count = 1

[[push_constants]]
name = "frame"
offset = 0
size = 96
`

const missReflection = `
stage = "miss"

[[descriptor_sets]]
set = 0

[[descriptor_sets.bindings]]
name = "emitters"
binding = 5
type = "storage_buffer"
count = 1
`

const closestHitReflection = `
stage = "closesthit"

[[descriptor_sets]]
set = 0

[[descriptor_sets.bindings]]
name = "scene"
binding = 0
type = "acceleration_structure"
count = 1

[[descriptor_sets]]
set = 1

[[descriptor_sets.bindings]]
name = "attributes"
binding = 0
type = "storage_buffer"
count = 0

[[descriptor_sets]]
set = 2

[[descriptor_sets.bindings]]
name = "indices"
binding = 0
type = "storage_buffer"
count = 0

[[push_constants]]
name = "frame"
offset = 0
size = 96
`

const anyHitReflection = `
stage = "anyhit"
`

const computeReflection = `
stage = "compute"

[[descriptor_sets]]
set = 0

[[descriptor_sets.bindings]]
name = "image"
binding = 0
type = "storage_image"
count = 1

[[descriptor_sets.bindings]]
name = "unsized"
binding = 1
type = "storage_buffer"
count = 0
`

func newTestDevice(t *testing.T) (*gpu.Device, *headless.Driver) {
	t.Helper()
	driver := headless.New()
	device := gpu.NewDevice(driver)
	t.Cleanup(func() {
		if n := driver.Stats().DoubleDestroyed; n != 0 {
			t.Errorf("%d objects destroyed twice", n)
		}
	})
	return device, driver
}

func writeShader(t *testing.T, dir, name, reflection string) {
	t.Helper()
	path := filepath.Join(dir, name+ShaderExtension)
	if err := os.WriteFile(path, make([]byte, 64), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path+ReflectionExtension, []byte(reflection), 0o644); err != nil {
		t.Fatal(err)
	}
}

func writeRayTracingShaders(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeShader(t, dir, "pathtrace.rgen", raygenReflection)
	writeShader(t, dir, "pathtrace.rmiss", missReflection)
	writeShader(t, dir, "pathtrace.rchit", closestHitReflection)
	writeShader(t, dir, "pathtrace.rahit", anyHitReflection)
	writeShader(t, dir, "test.comp", computeReflection)
	return dir
}

func TestLoadShaderModule(t *testing.T) {
	device, driver := newTestDevice(t)
	dir := writeRayTracingShaders(t)

	module, err := LoadShaderModule(device, dir, "pathtrace.rchit")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !module.IsValid() || module.Stage != gpu.ShaderStageClosestHit {
		t.Fatalf("module = %+v", module)
	}
	if len(module.Bindings) != 3 || len(module.PushConstants) != 1 {
		t.Fatalf("bindings = %v, push constants = %v", module.Bindings, module.PushConstants)
	}
	indices, ok := module.FindBinding("indices")
	if !ok || indices.Set != 2 || indices.Type != gpu.DescriptorTypeStorageBuffer || indices.Count != 0 {
		t.Fatalf("indices binding = %+v", indices)
	}
	if stage := module.StageInfo(); stage.Entry != EntryPoint || stage.Module != module.Handle {
		t.Fatalf("stage info = %+v", stage)
	}

	module.Destroy()
	module.Destroy()
	if n := driver.Live(headless.KindShaderModule); n != 0 {
		t.Fatalf("%d shader modules alive", n)
	}
}

func TestLoadShaderModuleErrors(t *testing.T) {
	device, _ := newTestDevice(t)
	dir := t.TempDir()
	writeShader(t, dir, "bad_stage", `stage = "tessellation"`)
	writeShader(t, dir, "bad_type", `
stage = "vertex"
[[descriptor_sets]]
set = 0
[[descriptor_sets.bindings]]
name = "x"
binding = 0
type = "texture"
count = 1
`)
	writeShader(t, dir, "bad_toml", `stage = `)

	tests := []struct {
		name string
		want error
	}{
		{"missing", ErrShaderNotFound},
		{"bad_stage", ErrUnknownShaderStage},
		{"bad_type", ErrUnknownDescriptor},
		{"bad_toml", ErrInvalidReflection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadShaderModule(device, dir, tt.name)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRayTracingPipelineBuild(t *testing.T) {
	device, driver := newTestDevice(t)
	dir := writeRayTracingShaders(t)

	descriptors := systems.NewDescriptorManager(device)
	defer descriptors.Destroy()
	if !descriptors.CreateDescriptorPool(systems.ResourceClassAttributeBuffer, 64) ||
		!descriptors.CreateDescriptorPool(systems.ResourceClassIndexBuffer, 32) {
		t.Fatal("failed to create descriptor pools")
	}

	p := NewRayTracingBuilder(device, dir).
		Shaders("pathtrace.rgen", "pathtrace.rmiss", "pathtrace.rchit", "pathtrace.rahit").
		DescriptorBindingManager(gpu.DSAttributeBuffer, 0, descriptors, systems.ResourceClassAttributeBuffer).
		DescriptorBindingManager(gpu.DSIndexBuffer, 0, descriptors, systems.ResourceClassIndexBuffer).
		Build()
	if !p.IsValid() {
		t.Fatal("pipeline is invalid")
	}
	defer device.DestroyPipeline(&p)

	if n := driver.Live(headless.KindShaderModule); n != 0 {
		t.Fatalf("%d shader modules outlived the build", n)
	}

	handleSize := uint64(device.RayTracingProperties().ShaderGroupHandleSize)
	if p.HandleSize != handleSize || p.MissGroupOffset != handleSize || p.HitGroupOffset != 2*handleSize || p.NumMissGroups != 1 {
		t.Fatalf("binding table offsets = %+v", p)
	}

	info, ok := driver.PipelineInfo(p.Handle)
	if !ok {
		t.Fatal("pipeline not found")
	}
	rt := info.(gpu.RayTracingPipelineCreateInfo)
	want := []gpu.ShaderGroup{
		{Type: gpu.ShaderGroupGeneral, General: 0, ClosestHit: gpu.ShaderUnused, AnyHit: gpu.ShaderUnused, Intersection: gpu.ShaderUnused},
		{Type: gpu.ShaderGroupGeneral, General: 1, ClosestHit: gpu.ShaderUnused, AnyHit: gpu.ShaderUnused, Intersection: gpu.ShaderUnused},
		{Type: gpu.ShaderGroupTrianglesHitGroup, General: gpu.ShaderUnused, ClosestHit: 2, AnyHit: 3, Intersection: gpu.ShaderUnused},
	}
	if len(rt.Groups) != len(want) {
		t.Fatalf("groups = %+v", rt.Groups)
	}
	for i := range want {
		if rt.Groups[i] != want[i] {
			t.Errorf("group %d = %+v, want %+v", i, rt.Groups[i], want[i])
		}
	}
	if rt.MaxRecursionDepth != 1 {
		t.Errorf("max recursion depth = %d", rt.MaxRecursionDepth)
	}

	sbt := driver.BufferData(p.ShaderBindingTable.Handle)
	for g := 0; g < len(want); g++ {
		expected := bytes.Repeat([]byte{byte(g + 1)}, int(handleSize))
		if got := sbt[uint64(g)*handleSize : uint64(g+1)*handleSize]; !bytes.Equal(got, expected) {
			t.Errorf("binding table entry %d = %v", g, got)
		}
	}

	if len(p.DescriptorSetLayouts) != 3 {
		t.Fatalf("got %d descriptor set layouts", len(p.DescriptorSetLayouts))
	}
	for _, class := range []systems.ResourceClass{systems.ResourceClassAttributeBuffer, systems.ResourceClassIndexBuffer} {
		set := map[systems.ResourceClass]int{
			systems.ResourceClassAttributeBuffer: gpu.DSAttributeBuffer,
			systems.ResourceClassIndexBuffer:     gpu.DSIndexBuffer,
		}[class]
		got, _ := driver.DescriptorSetLayoutInfo(p.DescriptorSetLayouts[set])
		expected, _ := driver.DescriptorSetLayoutInfo(descriptors.DescriptorSetLayout(class))
		if got.Flags != expected.Flags || len(got.Bindings) != 1 {
			t.Fatalf("%s layout = %+v, want %+v", class, got, expected)
		}
		g, e := got.Bindings[0], expected.Bindings[0]
		if g.Type != e.Type || g.Count != e.Count || g.Stages != e.Stages || g.Flags != e.Flags {
			t.Errorf("%s binding = %+v, want %+v", class, g, e)
		}
	}

	scene, _ := driver.DescriptorSetLayoutInfo(p.DescriptorSetLayouts[0])
	if len(scene.Bindings) != 3 {
		t.Fatalf("scene set bindings = %+v", scene.Bindings)
	}
	if tlas := scene.Bindings[0]; tlas.Stages != gpu.ShaderStageRaygen|gpu.ShaderStageClosestHit {
		t.Errorf("tlas stages = %s", tlas.Stages)
	}

	layout, _ := driver.PipelineLayoutInfo(p.Layout)
	if len(layout.PushConstants) != 1 {
		t.Fatalf("push constants = %+v", layout.PushConstants)
	}
	if pc := layout.PushConstants[0]; pc.Size != 96 || pc.Stages != gpu.ShaderStageRaygen|gpu.ShaderStageClosestHit {
		t.Errorf("push constant range = %+v", pc)
	}

	device.DestroyPipeline(&p)
	for _, kind := range []headless.Kind{headless.KindPipeline, headless.KindPipelineLayout} {
		if n := driver.Live(kind); n != 0 {
			t.Errorf("%d %s objects alive", n, kind)
		}
	}
}

func TestRayTracingGroupOrdering(t *testing.T) {
	device, _ := newTestDevice(t)
	dir := writeRayTracingShaders(t)
	writeShader(t, dir, "shadow.rmiss", missReflection)
	writeShader(t, dir, "shadow.rchit", closestHitReflection)

	tests := []struct {
		name          string
		shaders       []string
		firstHitGroup uint32
		hits          []gpu.ShaderGroup
	}{
		{
			name:          "miss flushes pending closest hit",
			shaders:       []string{"pathtrace.rgen", "pathtrace.rchit", "pathtrace.rmiss", "pathtrace.rahit"},
			firstHitGroup: 2,
			hits: []gpu.ShaderGroup{
				{Type: gpu.ShaderGroupTrianglesHitGroup, General: gpu.ShaderUnused, ClosestHit: 1, AnyHit: gpu.ShaderUnused, Intersection: gpu.ShaderUnused},
			},
		},
		{
			name:          "trailing closest hit",
			shaders:       []string{"pathtrace.rgen", "pathtrace.rmiss", "pathtrace.rchit"},
			firstHitGroup: 2,
			hits: []gpu.ShaderGroup{
				{Type: gpu.ShaderGroupTrianglesHitGroup, General: gpu.ShaderUnused, ClosestHit: 2, AnyHit: gpu.ShaderUnused, Intersection: gpu.ShaderUnused},
			},
		},
		{
			name:          "two miss shaders",
			shaders:       []string{"pathtrace.rgen", "pathtrace.rmiss", "shadow.rmiss", "pathtrace.rchit"},
			firstHitGroup: 3,
			hits: []gpu.ShaderGroup{
				{Type: gpu.ShaderGroupTrianglesHitGroup, General: gpu.ShaderUnused, ClosestHit: 3, AnyHit: gpu.ShaderUnused, Intersection: gpu.ShaderUnused},
			},
		},
		{
			name:          "two hit groups",
			shaders:       []string{"pathtrace.rgen", "pathtrace.rmiss", "pathtrace.rchit", "pathtrace.rahit", "shadow.rchit"},
			firstHitGroup: 2,
			hits: []gpu.ShaderGroup{
				{Type: gpu.ShaderGroupTrianglesHitGroup, General: gpu.ShaderUnused, ClosestHit: 2, AnyHit: 3, Intersection: gpu.ShaderUnused},
				{Type: gpu.ShaderGroupTrianglesHitGroup, General: gpu.ShaderUnused, ClosestHit: 4, AnyHit: gpu.ShaderUnused, Intersection: gpu.ShaderUnused},
			},
		},
		{
			name:          "raygen only",
			shaders:       []string{"pathtrace.rgen"},
			firstHitGroup: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewRayTracingBuilder(device, dir).Shaders(tt.shaders...)
			defer b.releaseShaders()

			groups, firstHit := b.groups()
			if firstHit != tt.firstHitGroup {
				t.Fatalf("first hit group = %d, want %d", firstHit, tt.firstHitGroup)
			}
			if groups[0].Type != gpu.ShaderGroupGeneral || groups[0].General != 0 {
				t.Fatalf("raygen group = %+v", groups[0])
			}
			if len(groups) != int(firstHit)+len(tt.hits) {
				t.Fatalf("got %d groups, want %d", len(groups), int(firstHit)+len(tt.hits))
			}
			for i := 1; i < int(firstHit); i++ {
				if groups[i].Type != gpu.ShaderGroupGeneral {
					t.Errorf("miss group %d = %+v", i, groups[i])
				}
			}
			hits := groups[firstHit:]
			if len(hits) != len(tt.hits) {
				t.Fatalf("hit groups = %+v", hits)
			}
			for i := range hits {
				if hits[i] != tt.hits[i] {
					t.Errorf("hit group %d = %+v, want %+v", i, hits[i], tt.hits[i])
				}
			}
		})
	}
}

func TestRayTracingValidation(t *testing.T) {
	device, driver := newTestDevice(t)
	dir := writeRayTracingShaders(t)
	writeShader(t, dir, "other.rgen", raygenReflection)

	tests := []struct {
		name    string
		shaders []string
	}{
		{"no shaders", nil},
		{"no raygen", []string{"pathtrace.rmiss", "pathtrace.rchit"}},
		{"unsupported stage", []string{"pathtrace.rgen", "test.comp"}},
		{"missing shader", []string{"pathtrace.rgen", "missing.rmiss"}},
		{"two raygen shaders", []string{"pathtrace.rgen", "other.rgen", "pathtrace.rmiss", "pathtrace.rchit"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if p := NewRayTracingBuilder(device, dir).Shaders(tt.shaders...).Build(); p.IsValid() {
				t.Fatal("expected an invalid pipeline")
			}
		})
	}
	for _, kind := range []headless.Kind{headless.KindShaderModule, headless.KindPipelineLayout, headless.KindDescriptorSetLayout} {
		if n := driver.Live(kind); n != 0 {
			t.Errorf("%d %s objects leaked", n, kind)
		}
	}
}

func TestRayTracingRecursionDepthIsClamped(t *testing.T) {
	device, driver := newTestDevice(t)
	dir := writeRayTracingShaders(t)

	p := NewRayTracingBuilder(device, dir).
		Shaders("pathtrace.rgen", "pathtrace.rmiss", "pathtrace.rchit").
		MaxRecursionDepth(1000).
		Build()
	if !p.IsValid() {
		t.Fatal("pipeline is invalid")
	}
	defer device.DestroyPipeline(&p)

	info, _ := driver.PipelineInfo(p.Handle)
	if depth := info.(gpu.RayTracingPipelineCreateInfo).MaxRecursionDepth; depth != device.RayTracingProperties().MaxRecursionDepth {
		t.Fatalf("max recursion depth = %d", depth)
	}
}

func TestRayTracingBuildFailureReleasesLayout(t *testing.T) {
	device, driver := newTestDevice(t)
	dir := writeRayTracingShaders(t)

	driver.FailNext("CreateRayTracingPipeline", gpu.ErrorOutOfDeviceMemory)
	if p := NewRayTracingBuilder(device, dir).Shaders("pathtrace.rgen").Build(); p.IsValid() {
		t.Fatal("expected an invalid pipeline")
	}
	for _, kind := range []headless.Kind{headless.KindPipelineLayout, headless.KindDescriptorSetLayout, headless.KindBuffer} {
		if n := driver.Live(kind); n != 0 {
			t.Errorf("%d %s objects leaked", n, kind)
		}
	}
}

func TestLayoutConflicts(t *testing.T) {
	device, driver := newTestDevice(t)
	dir := t.TempDir()
	writeShader(t, dir, "display.vert", `
stage = "vertex"
[[descriptor_sets]]
set = 0
[[descriptor_sets.bindings]]
name = "params"
binding = 0
type = "uniform_buffer"
count = 1
[[descriptor_sets.bindings]]
name = "lights"
binding = 1
type = "storage_buffer"
count = 1
`)
	writeShader(t, dir, "display.frag", `
stage = "fragment"
[[descriptor_sets]]
set = 0
[[descriptor_sets.bindings]]
name = "params"
binding = 0
type = "storage_buffer"
count = 1
[[descriptor_sets.bindings]]
name = "lights"
binding = 1
type = "storage_buffer"
count = 4
`)
	pass := device.CreateRenderPass(gpu.RenderPassCreateInfo{
		ColorAttachments: []gpu.AttachmentDescription{{Format: gpu.FormatR8G8B8A8Unorm}},
	})
	defer device.DestroyRenderPass(&pass)

	build := func(override bool) gpu.DescriptorSetLayoutCreateInfo {
		b := NewGraphicsBuilder(device, dir).RenderPass(pass, 0).Shaders("display.vert", "display.frag")
		if override {
			b.DescriptorBindingCount(0, 1, 8)
		}
		p := b.Build()
		if !p.IsValid() {
			t.Fatal("pipeline is invalid")
		}
		defer device.DestroyPipeline(&p)
		info, _ := driver.DescriptorSetLayoutInfo(p.DescriptorSetLayouts[0])
		return info
	}

	info := build(false)
	if params := info.Bindings[0]; params.Type != gpu.DescriptorTypeUniformBuffer || params.Stages != gpu.ShaderStageVertex {
		t.Errorf("conflicting type contributed: %+v", params)
	}
	if lights := info.Bindings[1]; lights.Count != 1 || lights.Stages != gpu.ShaderStageVertex {
		t.Errorf("conflicting count contributed: %+v", lights)
	}

	info = build(true)
	if lights := info.Bindings[1]; lights.Count != 8 || lights.Stages != gpu.ShaderStageVertex|gpu.ShaderStageFragment {
		t.Errorf("count override not applied: %+v", lights)
	}
}

func TestSamplers(t *testing.T) {
	device, driver := newTestDevice(t)
	dir := t.TempDir()
	writeShader(t, dir, "display.vert", `stage = "vertex"`)
	writeShader(t, dir, "display.frag", `
stage = "fragment"
[[descriptor_sets]]
set = 0
[[descriptor_sets.bindings]]
name = "display"
binding = 0
type = "combined_image_sampler"
count = 1
[[descriptor_sets.bindings]]
name = "environment"
binding = 1
type = "combined_image_sampler"
count = 2
`)
	pass := device.CreateRenderPass(gpu.RenderPassCreateInfo{
		ColorAttachments: []gpu.AttachmentDescription{{Format: gpu.FormatR8G8B8A8Unorm}},
	})
	defer device.DestroyRenderPass(&pass)
	nearest := device.CreateSampler(gpu.SamplerCreateInfo{})
	defer device.DestroySampler(&nearest)
	linear := device.CreateSampler(gpu.SamplerCreateInfo{MagFilter: gpu.FilterLinear, MinFilter: gpu.FilterLinear})
	defer device.DestroySampler(&linear)

	p := NewGraphicsBuilder(device, dir).
		RenderPass(pass, 0).
		Shaders("display.vert", "display.frag").
		DefaultSampler(nearest).
		DescriptorBindingSamplerByName("environment", linear).
		DescriptorBindingSamplerByName("unknown", linear).
		Build()
	if !p.IsValid() {
		t.Fatal("pipeline is invalid")
	}
	defer device.DestroyPipeline(&p)

	info, _ := driver.DescriptorSetLayoutInfo(p.DescriptorSetLayouts[0])
	display, environment := info.Bindings[0], info.Bindings[1]
	if len(display.ImmutableSamplers) != 1 || display.ImmutableSamplers[0] != nearest {
		t.Errorf("display samplers = %v", display.ImmutableSamplers)
	}
	if len(environment.ImmutableSamplers) != 2 || environment.ImmutableSamplers[0] != linear || environment.ImmutableSamplers[1] != linear {
		t.Errorf("environment samplers = %v", environment.ImmutableSamplers)
	}
}

func TestGraphicsPipelineDefaults(t *testing.T) {
	device, driver := newTestDevice(t)
	dir := t.TempDir()
	writeShader(t, dir, "display.vert", `stage = "vertex"`)
	writeShader(t, dir, "display.frag", `stage = "fragment"`)
	writeShader(t, dir, "test.comp", `stage = "compute"`)
	pass := device.CreateRenderPass(gpu.RenderPassCreateInfo{
		ColorAttachments: []gpu.AttachmentDescription{{Format: gpu.FormatR8G8B8A8Unorm}},
	})
	defer device.DestroyRenderPass(&pass)

	p := NewGraphicsBuilder(device, dir).RenderPass(pass, 0).Shaders("display.vert", "display.frag").Build()
	if !p.IsValid() {
		t.Fatal("pipeline is invalid")
	}
	defer device.DestroyPipeline(&p)
	info, _ := driver.PipelineInfo(p.Handle)
	g := info.(gpu.GraphicsPipelineCreateInfo)
	if g.Topology != gpu.PrimitiveTopologyTriangleList || g.PolygonMode != gpu.PolygonModeFill ||
		g.CullMode != gpu.CullModeNone || g.FrontFace != gpu.FrontFaceCounterClockwise ||
		g.DepthTest || !g.DepthWrite || g.DepthCompare != gpu.CompareOpLessOrEqual || g.BlendEnable {
		t.Errorf("unexpected defaults: %+v", g)
	}
	if len(g.Stages) != 2 || g.RenderPass != pass {
		t.Errorf("stages = %+v, render pass = %d", g.Stages, g.RenderPass)
	}

	if p := NewGraphicsBuilder(device, dir).Shaders("display.vert").Build(); p.IsValid() {
		t.Error("pipeline without render pass must be invalid")
	}
	if p := NewGraphicsBuilder(device, dir).RenderPass(pass, 0).Shaders("display.vert", "test.comp").Build(); p.IsValid() {
		t.Error("pipeline with a compute stage must be invalid")
	}
	if p := NewGraphicsBuilder(device, dir).RenderPass(pass, 0).Shaders("display.vert", "display.frag", "display.frag").Build(); p.IsValid() {
		t.Error("pipeline with two fragment shaders must be invalid")
	}
	if n := driver.Live(headless.KindShaderModule); n != 0 {
		t.Errorf("%d shader modules leaked", n)
	}
}

func TestComputePipeline(t *testing.T) {
	device, driver := newTestDevice(t)
	dir := writeRayTracingShaders(t)

	p := NewComputeBuilder(device, dir).Shaders("test.comp").Build()
	if !p.IsValid() || p.BindPoint != gpu.PipelineBindPointCompute {
		t.Fatalf("pipeline = %+v", p)
	}
	defer device.DestroyPipeline(&p)

	info, _ := driver.DescriptorSetLayoutInfo(p.DescriptorSetLayouts[0])
	if len(info.Bindings) != 1 || info.Bindings[0].Binding != 0 {
		t.Errorf("zero count binding was not skipped: %+v", info.Bindings)
	}

	if p := NewComputeBuilder(device, dir).Shaders("test.comp", "pathtrace.rgen").Build(); p.IsValid() {
		t.Error("compute pipeline with a raygen stage must be invalid")
	}

	defer func() {
		if recover() == nil {
			t.Error("expected an assertion for an empty shader list")
		}
	}()
	NewComputeBuilder(device, dir).Shaders()
}
