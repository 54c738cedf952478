package renderer

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/quartz/engine/config"
	"github.com/spaghettifunk/quartz/engine/core"
	"github.com/spaghettifunk/quartz/engine/math"
	"github.com/spaghettifunk/quartz/engine/renderer/gpu"
	"github.com/spaghettifunk/quartz/engine/renderer/gpu/headless"
	"github.com/spaghettifunk/quartz/engine/renderer/pipeline"
	"github.com/spaghettifunk/quartz/engine/scene"
	"github.com/spaghettifunk/quartz/engine/systems"
)

const sourceShaderDir = "../../shaders"

// copyShaders pairs the real reflection sidecars with placeholder bytecode.
func copyShaders(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{raygenShader, missShader, closestHitShader, vertexShader, fragmentShader} {
		sidecar := pipeline.ShaderPath(sourceShaderDir, name) + pipeline.ReflectionExtension
		data, err := os.ReadFile(sidecar)
		if err != nil {
			t.Fatal(err)
		}
		path := pipeline.ShaderPath(dir, name)
		if err := os.WriteFile(path, make([]byte, 64), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path+pipeline.ReflectionExtension, data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Renderer.ShaderDir = copyShaders(t)
	cfg.Renderer.Width = 8
	cfg.Renderer.Height = 4
	cfg.Renderer.Headless = true
	cfg.Descriptors.AttributeCapacity = 16
	cfg.Descriptors.IndexCapacity = 16
	cfg.Descriptors.TextureCapacity = 16
	cfg.Jobs.Workers = 2
	cfg.Jobs.QueueSize = 16
	return cfg
}

func newTestRenderer(t *testing.T) (*Renderer, *headless.Driver) {
	t.Helper()
	driver := headless.New()
	r := New(testConfig(t), gpu.NewDevice(driver))
	if err := r.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	t.Cleanup(func() {
		if r.IsInitialized() {
			if err := r.Shutdown(); err != nil {
				t.Errorf("shutdown: %v", err)
			}
		}
		if n := driver.Stats().DoubleDestroyed; n != 0 {
			t.Errorf("%d objects destroyed twice", n)
		}
	})
	return r, driver
}

type testScene struct {
	*scene.Scene
	geometry *scene.Geometry
	material *scene.Material
	entity   *scene.Entity
	camera   *scene.Entity
}

func triangle() *scene.Geometry {
	vertex := func(x, y float32) math.Vertex {
		return math.Vertex{Position: math.NewVec3(x, y, 0), Normal: math.NewVec3(0, 0, 1)}
	}
	return &scene.Geometry{
		ID:       core.NewNodeID(),
		Vertices: []math.Vertex{vertex(0, 0), vertex(1, 0), vertex(0, 1)},
		Faces:    [][3]uint32{{0, 1, 2}},
	}
}

func newTriangleScene(t *testing.T) *testScene {
	t.Helper()
	ts := &testScene{Scene: scene.NewScene(), geometry: triangle(), material: scene.NewMaterial()}
	if err := ts.SetGeometry(ts.geometry); err != nil {
		t.Fatal(err)
	}
	if err := ts.SetMaterial(ts.material); err != nil {
		t.Fatal(err)
	}
	ts.entity = scene.NewEntity("triangle")
	ts.entity.Geometry, ts.entity.Material = ts.geometry.ID, ts.material.ID
	if err := ts.AddEntity(ts.entity); err != nil {
		t.Fatal(err)
	}

	ts.camera = scene.NewEntity("camera")
	ts.camera.Lens = scene.NewCameraLens()
	ts.camera.Lens.FieldOfView = 60
	if err := ts.AddEntity(ts.camera); err != nil {
		t.Fatal(err)
	}
	if err := ts.SetActiveCamera(ts.camera.ID); err != nil {
		t.Fatal(err)
	}
	return ts
}

func drawFrames(t *testing.T, r *Renderer, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := r.DrawFrame(); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}
}

func plannedJobs(r *Renderer, dirty scene.DirtySet) []string {
	var names []string
	for _, j := range r.PlanJobs(dirty).Jobs() {
		names = append(names, j.Name)
	}
	return names
}

func hasJob(names []string, prefix string) bool {
	for _, n := range names {
		if strings.HasPrefix(n, prefix) {
			return true
		}
	}
	return false
}

func TestFrameStateString(t *testing.T) {
	if s := FrameStateJobExecution.String(); s != "job_execution" {
		t.Fatalf("String() = %q", s)
	}
	if s := FrameState(42).String(); s != "unknown" {
		t.Fatalf("String() = %q", s)
	}
}

func TestPlanJobs(t *testing.T) {
	r, _ := newTestRenderer(t)
	geometry, texture, material := core.NewNodeID(), core.NewNodeID(), core.NewNodeID()

	all := []string{JobBuildGeometry, JobUploadTexture, JobBuildTLAS, JobUpdateMaterials, JobUpdateInstances, JobUpdateEmitters, JobUpdateRenderParameters}
	tests := []struct {
		name  string
		dirty scene.DirtySet
		want  []string
	}{
		{"none", scene.DirtySet{}, nil},
		{"geometry", scene.DirtySet{Flags: scene.DirtyGeometry, Geometry: []core.NodeID{geometry}},
			[]string{JobBuildGeometry, JobBuildTLAS, JobUpdateInstances}},
		{"entity", scene.DirtySet{Flags: scene.DirtyEntity},
			[]string{JobBuildTLAS, JobUpdateInstances, JobUpdateEmitters}},
		{"transform", scene.DirtySet{Flags: scene.DirtyTransform},
			[]string{JobBuildTLAS, JobUpdateInstances, JobUpdateEmitters}},
		{"texture", scene.DirtySet{Flags: scene.DirtyTexture, Textures: []core.NodeID{texture}},
			[]string{JobUploadTexture, JobUpdateMaterials}},
		{"material", scene.DirtySet{Flags: scene.DirtyMaterial, Materials: []core.NodeID{material}},
			[]string{JobUpdateMaterials, JobUpdateInstances, JobUpdateEmitters}},
		{"lights", scene.DirtySet{Flags: scene.DirtyLights}, []string{JobUpdateEmitters}},
		{"render settings", scene.DirtySet{Flags: scene.DirtyRenderSettings},
			[]string{JobUpdateEmitters, JobUpdateRenderParameters}},
		{"camera", scene.DirtySet{Flags: scene.DirtyCamera}, []string{JobUpdateRenderParameters}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			names := plannedJobs(r, tt.dirty)
			for _, job := range all {
				want := false
				for _, w := range tt.want {
					want = want || w == job
				}
				if got := hasJob(names, job); got != want {
					t.Errorf("job %s planned = %t, want %t (planned: %v)", job, got, want, names)
				}
			}
		})
	}
}

func TestPlanJobsDependencies(t *testing.T) {
	r, _ := newTestRenderer(t)
	g1, g2, tex := core.NewNodeID(), core.NewNodeID(), core.NewNodeID()
	g := r.PlanJobs(scene.DirtySet{
		Flags:    scene.DirtyAll,
		Geometry: []core.NodeID{g1, g2},
		Textures: []core.NodeID{tex},
	})

	depends := func(job, on string) bool {
		j := g.Find(job)
		if j == nil {
			t.Fatalf("job %s not planned", job)
		}
		for _, d := range j.Dependencies() {
			if d.Name == on {
				return true
			}
		}
		return false
	}
	for _, id := range []core.NodeID{g1, g2} {
		if !depends(JobBuildTLAS, jobName(JobBuildGeometry, id)) {
			t.Errorf("TLAS does not wait for geometry %s", id)
		}
	}
	checks := [][2]string{
		{JobUpdateMaterials, jobName(JobUploadTexture, tex)},
		{JobUpdateInstances, JobBuildTLAS},
		{JobUpdateInstances, JobUpdateMaterials},
		{JobUpdateEmitters, JobUpdateInstances},
		{JobUpdateEmitters, JobUpdateMaterials},
	}
	for _, c := range checks {
		if !depends(c[0], c[1]) {
			t.Errorf("%s does not wait for %s", c[0], c[1])
		}
	}
	if deps := g.Find(JobUpdateRenderParameters).Dependencies(); len(deps) != 0 {
		t.Errorf("render parameters wait for %d jobs", len(deps))
	}
}

func TestTextureChangeRefreshesRenderableMaterials(t *testing.T) {
	r, _ := newTestRenderer(t)
	ts := newTriangleScene(t)
	r.sceneManager.GatherEntities(ts.Scene)

	ids := r.dirtyMaterials(scene.DirtySet{Flags: scene.DirtyTexture})
	if len(ids) != 1 || ids[0] != ts.material.ID {
		t.Fatalf("materials = %v", ids)
	}
	ids = r.dirtyMaterials(scene.DirtySet{Flags: scene.DirtyTexture | scene.DirtyMaterial, Materials: []core.NodeID{ts.material.ID}})
	if len(ids) != 1 {
		t.Fatalf("material listed twice: %v", ids)
	}
}

// A triangle and a default material get index 0, and the scene is renderable only once the TLAS and instance buffer exist.
func TestSingleTriangleBecomesRenderable(t *testing.T) {
	r, _ := newTestRenderer(t)
	ts := newTriangleScene(t)
	r.scene = ts.Scene
	ts.UpdateWorldTransforms()
	r.sceneManager.GatherEntities(ts.Scene)

	if err := r.buildGeometry(ts.geometry.ID); err != nil {
		t.Fatalf("build geometry: %v", err)
	}
	if err := r.updateMaterials([]core.NodeID{ts.material.ID}); err != nil {
		t.Fatalf("update materials: %v", err)
	}
	if i := r.sceneManager.LookupGeometryIndex(ts.geometry.ID); i != 0 {
		t.Fatalf("geometry index = %d", i)
	}
	if i := r.sceneManager.LookupMaterialIndex(ts.material.ID); i != 0 {
		t.Fatalf("material index = %d", i)
	}
	if r.sceneManager.IsReadyToRender() {
		t.Fatal("ready before the TLAS was built")
	}

	if err := r.buildTLAS(); err != nil {
		t.Fatalf("build TLAS: %v", err)
	}
	if r.sceneManager.IsReadyToRender() {
		t.Fatal("ready before the instance buffer was uploaded")
	}
	if err := r.updateInstances(); err != nil {
		t.Fatalf("update instances: %v", err)
	}
	if !r.sceneManager.IsReadyToRender() {
		t.Fatal("not ready after TLAS and instances")
	}
	if tlas := r.sceneManager.SceneTLAS(); tlas.InstanceCount != 1 {
		t.Fatalf("TLAS instances = %d", tlas.InstanceCount)
	}
	r.commands.SubmitCommandBuffers(r.device.GraphicsQueue())
}

func TestBuildGeometryErrors(t *testing.T) {
	r, driver := newTestRenderer(t)
	s := scene.NewScene()
	empty := &scene.Geometry{ID: core.NewNodeID()}
	if err := s.SetGeometry(empty); err != nil {
		t.Fatal(err)
	}
	r.scene = s

	if err := r.buildGeometry(empty.ID); !errors.Is(err, ErrEmptyGeometry) {
		t.Fatalf("empty geometry: %v", err)
	}
	if err := r.buildGeometry(core.NewNodeID()); !errors.Is(err, scene.ErrNodeNotFound) {
		t.Fatalf("missing geometry: %v", err)
	}

	g := triangle()
	if err := s.SetGeometry(g); err != nil {
		t.Fatal(err)
	}
	buffers := driver.Live(headless.KindBuffer)
	driver.FailNext("CreateAccelerationStructure", gpu.ErrorOutOfDeviceMemory)
	if err := r.buildGeometry(g.ID); !errors.Is(err, ErrResourceCreation) {
		t.Fatalf("failed BLAS: %v", err)
	}
	if n := driver.Live(headless.KindBuffer); n != buffers {
		t.Fatalf("%d buffers leaked", n-buffers)
	}
	if i := r.sceneManager.LookupGeometryIndex(g.ID); i != gpu.InvalidIndex {
		t.Fatalf("failed geometry registered at %d", i)
	}
}

func TestDrawFrameTracesOnceReady(t *testing.T) {
	r, driver := newTestRenderer(t)
	drawFrames(t, r, 2)
	if n := driver.Stats().TraceRays; n != 0 {
		t.Fatalf("traced %d times without a scene", n)
	}

	ts := newTriangleScene(t)
	r.SetScene(ts.Scene)
	drawFrames(t, r, 3)
	if n := driver.Stats().TraceRays; n != 3 {
		t.Fatalf("trace rays = %d, want 3", n)
	}
	if n := r.FrameNumber(); n != 3 {
		t.Fatalf("frame number = %d", n)
	}
	if r.State() != FrameStateIdle {
		t.Fatalf("state = %s", r.State())
	}
	if n := r.sceneManager.NumEmitters(); n != 1 {
		t.Fatalf("emitters = %d, want the sky only", n)
	}
}

func TestFrameRenderedEvent(t *testing.T) {
	r, _ := newTestRenderer(t)
	r.SetScene(newTriangleScene(t).Scene)

	var frames []uint32
	listener := new(int)
	core.EventRegister(core.EVENT_CODE_FRAME_RENDERED, listener, func(code core.SystemEventCode, sender interface{}, data core.EventContext) bool {
		frames = append(frames, data.Data.U32[0])
		return false
	})
	defer core.EventUnregister(core.EVENT_CODE_FRAME_RENDERED, listener)

	drawFrames(t, r, 2)
	if len(frames) != 2 || frames[0] != 1 || frames[1] != 2 {
		t.Fatalf("frames = %v", frames)
	}
}

// Changing only a material updates materials and instances without touching geometry.
func TestMaterialChangeSkipsGeometry(t *testing.T) {
	r, driver := newTestRenderer(t)
	ts := newTriangleScene(t)
	r.SetScene(ts.Scene)
	drawFrames(t, r, 2)
	builds := driver.Stats().Builds

	if err := ts.UpdateMaterial(ts.material.ID, func(m *scene.Material) { m.Roughness = 0.25 }); err != nil {
		t.Fatal(err)
	}
	dirty := ts.TakeDirty()
	if dirty.Flags != scene.DirtyMaterial {
		t.Fatalf("flags = %s", dirty.Flags)
	}
	names := plannedJobs(r, dirty)
	if !hasJob(names, JobUpdateMaterials) || !hasJob(names, JobUpdateInstances) {
		t.Fatalf("planned %v", names)
	}
	if hasJob(names, JobBuildGeometry) || hasJob(names, JobBuildTLAS) {
		t.Fatalf("planned %v", names)
	}

	if err := ts.UpdateMaterial(ts.material.ID, func(m *scene.Material) { m.Roughness = 0.25 }); err != nil {
		t.Fatal(err)
	}
	drawFrames(t, r, 1)
	if n := driver.Stats().Builds; n != builds {
		t.Fatalf("%d acceleration structure builds after a material change", n-builds)
	}
	if m, _ := r.sceneManager.LookupMaterial(ts.material.ID); m.Roughness != 0.25 {
		t.Fatalf("roughness = %v", m.Roughness)
	}
	if n := r.FrameNumber(); n != 1 {
		t.Fatalf("accumulation not restarted: frame number %d", n)
	}
}

// Removing the active camera falls back to the default camera.
func TestRemovingCameraRestoresDefaults(t *testing.T) {
	r, _ := newTestRenderer(t)
	ts := newTriangleScene(t)
	r.SetScene(ts.Scene)
	drawFrames(t, r, 1)

	var params gpu.RenderParameters
	r.cameras.ApplyRenderParameters(&params)
	if want := math.Tan(math.DegToRad(30)); !approx(params.CameraUpVectorTanHalfFOV[3], want) {
		t.Fatalf("tan(fov/2) = %v, want %v", params.CameraUpVectorTanHalfFOV[3], want)
	}

	if err := ts.RemoveEntity(ts.camera.ID); err != nil {
		t.Fatal(err)
	}
	drawFrames(t, r, 1)
	r.cameras.ApplyRenderParameters(&params)
	if !approx(params.CameraUpVectorTanHalfFOV[3], 1) {
		t.Fatalf("tan(fov/2) = %v, want the 90 degree default", params.CameraUpVectorTanHalfFOV[3])
	}
	if p := params.CameraPositionAspect; p[0] != 0 || p[1] != 0 || p[2] != 0 {
		t.Fatalf("position = %v", p)
	}
}

func approx(a, b float32) bool {
	d := a - b
	return d < 1e-5 && d > -1e-5
}

func TestGrabImage(t *testing.T) {
	r, _ := newTestRenderer(t)
	if _, err := r.GrabImage(); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("grab before rendering: %v", err)
	}
	r.SetScene(newTriangleScene(t).Scene)
	drawFrames(t, r, 1)

	img, err := r.GrabImage()
	if err != nil {
		t.Fatal(err)
	}
	if img.Width != 8 || img.Height != 4 || img.Channels != 4 || img.Format != renderBufferFormat {
		t.Fatalf("image = %dx%d, %d channels, format %d", img.Width, img.Height, img.Channels, img.Format)
	}
	if len(img.Pixels) != 8*4*4*2 {
		t.Fatalf("%d bytes", len(img.Pixels))
	}
	if img.Display.Exposure != 1 {
		t.Fatalf("display = %+v", img.Display)
	}
	if b := img.ToImage().Bounds(); b.Dx() != 8 || b.Dy() != 4 {
		t.Fatalf("bounds = %v", b)
	}
}

func TestImageDataToImage(t *testing.T) {
	pixels := make([]byte, 2*4*2)
	for i, v := range []float32{1, 0.5, 0, 1, 4, 4, 4, 1} {
		binary.LittleEndian.PutUint16(pixels[2*i:], math.Float32ToHalf(v))
	}
	data := &ImageData{Width: 2, Height: 1, Channels: 4, Pixels: pixels}

	tests := []struct {
		name    string
		display gpu.DisplayParameters
		want    [2][3]uint8
	}{
		{"linear", gpu.DisplayParameters{InvGamma: 1, Exposure: 1}, [2][3]uint8{{255, 128, 0}, {255, 255, 255}}},
		{"exposure", gpu.DisplayParameters{InvGamma: 1, Exposure: 0.5}, [2][3]uint8{{128, 64, 0}, {255, 255, 255}}},
		// With a factor of 1 the curve is the identity below white.
		{"tonemap", gpu.DisplayParameters{InvGamma: 1, Exposure: 1, TonemapFactorSq: 1}, [2][3]uint8{{255, 128, 0}, {255, 255, 255}}},
		{"reinhard", gpu.DisplayParameters{InvGamma: 1, Exposure: 1, TonemapFactorSq: 1e9}, [2][3]uint8{{128, 85, 0}, {204, 204, 204}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data.Display = tt.display
			img := data.ToImage()
			for x, want := range tt.want {
				c := img.NRGBAAt(x, 0)
				if got := [3]uint8{c.R, c.G, c.B}; got != want || c.A != 0xff {
					t.Errorf("pixel %d = %v, want %v", x, got, want)
				}
			}
		})
	}
}

func TestStatistics(t *testing.T) {
	r, _ := newTestRenderer(t)
	r.SetScene(newTriangleScene(t).Scene)
	drawFrames(t, r, 4)

	stats := r.Statistics()
	if stats.AccumulatedFrames != 4 {
		t.Fatalf("accumulated frames = %d", stats.AccumulatedFrames)
	}
	// Two timestamp writes per frame, 1000 ticks apart, at a period of 1000ns.
	if !approx(float32(stats.GPUFrameTimeMS), 1) {
		t.Fatalf("GPU frame time = %v ms", stats.GPUFrameTimeMS)
	}
	if stats.CPUFrameTimeMS < 0 || stats.TotalRenderTime <= 0 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestResized(t *testing.T) {
	r, _ := newTestRenderer(t)
	r.SetScene(newTriangleScene(t).Scene)
	drawFrames(t, r, 2)

	if err := r.Resized(16, 8); err != nil {
		t.Fatal(err)
	}
	if e := r.Extent(); e.Width != 16 || e.Height != 8 {
		t.Fatalf("extent = %+v", e)
	}
	if r.FrameNumber() != 0 {
		t.Fatalf("frame number = %d after resize", r.FrameNumber())
	}
	if _, err := r.GrabImage(); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("grab after resize: %v", err)
	}
	drawFrames(t, r, 1)
	img, err := r.GrabImage()
	if err != nil {
		t.Fatal(err)
	}
	if img.Width != 16 || img.Height != 8 {
		t.Fatalf("image = %dx%d", img.Width, img.Height)
	}
	if err := r.Resized(0, 8); err != nil {
		t.Fatalf("zero size: %v", err)
	}
}

func TestShaderChangeReloadsPipelines(t *testing.T) {
	r, driver := newTestRenderer(t)
	drawFrames(t, r, 1)
	before := r.renderPipeline.Handle

	context := core.EventContext{}
	context.Data.S = raygenShader
	core.EventFire(core.EVENT_CODE_SHADER_CHANGED, nil, context)
	drawFrames(t, r, 1)
	if r.renderPipeline.Handle == before || !r.renderPipeline.IsValid() {
		t.Fatal("pipeline not rebuilt")
	}
	if n := driver.Live(headless.KindPipeline); n != 1 {
		t.Fatalf("%d pipelines alive", n)
	}

	// A broken shader keeps the current pipeline.
	if err := os.WriteFile(filepath.Join(r.cfg.Renderer.ShaderDir, raygenShader+pipeline.ShaderExtension+pipeline.ReflectionExtension), []byte(`stage = `), 0o644); err != nil {
		t.Fatal(err)
	}
	current := r.renderPipeline.Handle
	core.EventFire(core.EVENT_CODE_SHADER_CHANGED, nil, context)
	drawFrames(t, r, 1)
	if r.renderPipeline.Handle != current {
		t.Fatal("pipeline replaced by a broken build")
	}
}

func TestSubmitFailureKeepsProgress(t *testing.T) {
	r, driver := newTestRenderer(t)
	r.SetScene(newTriangleScene(t).Scene)
	drawFrames(t, r, 2)

	if err := r.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	driver.FailNext("QueueSubmit", gpu.ErrorDeviceLost)
	if err := r.EndFrame(); !errors.Is(err, ErrSubmission) {
		t.Fatalf("end frame: %v", err)
	}
	if n := r.FrameNumber(); n != 2 {
		t.Fatalf("frame number = %d after a failed submit", n)
	}
	drawFrames(t, r, 1)
	if n := r.FrameNumber(); n != 3 {
		t.Fatalf("frame number = %d", n)
	}
}

func TestInitializeFailureReleasesEverything(t *testing.T) {
	driver := headless.New()
	cfg := testConfig(t)
	cfg.Renderer.ShaderDir = t.TempDir()
	r := New(cfg, gpu.NewDevice(driver))

	if err := r.Initialize(); !errors.Is(err, ErrPipeline) {
		t.Fatalf("initialize: %v", err)
	}
	if r.IsInitialized() {
		t.Fatal("initialized without pipelines")
	}
	for _, kind := range []headless.Kind{headless.KindBuffer, headless.KindImage, headless.KindDescriptorPool, headless.KindSampler, headless.KindCommandPool} {
		if n := driver.Live(kind); n != 0 {
			t.Errorf("%d %s alive", n, kind)
		}
	}
	if err := r.DrawFrame(); !errors.Is(err, core.ErrNotInitialized) {
		t.Fatalf("draw: %v", err)
	}
	if err := r.Shutdown(); !errors.Is(err, core.ErrNotInitialized) {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestShutdownReleasesSceneResources(t *testing.T) {
	driver := headless.New()
	r := New(testConfig(t), gpu.NewDevice(driver))
	if err := r.Initialize(); err != nil {
		t.Fatal(err)
	}
	r.SetScene(newTriangleScene(t).Scene)
	drawFrames(t, r, 3)

	if err := r.Shutdown(); err != nil {
		t.Fatal(err)
	}
	for _, kind := range []headless.Kind{headless.KindBuffer, headless.KindImage, headless.KindAccelerationStructure, headless.KindPipeline, headless.KindFence, headless.KindQueryPool} {
		if n := driver.Live(kind); n != 0 {
			t.Errorf("%d %s alive", n, kind)
		}
	}
	if n := driver.Stats().DoubleDestroyed; n != 0 {
		t.Errorf("%d objects destroyed twice", n)
	}
}

func TestSceneSwapsReleasePreviousScene(t *testing.T) {
	r, driver := newTestRenderer(t)
	swaps := int(r.cfg.Descriptors.AttributeCapacity) + 4

	liveBuffers := 0
	for i := 0; i < swaps; i++ {
		ts := newTriangleScene(t)
		r.SetScene(ts.Scene)
		drawFrames(t, r, 4)

		if n := r.sceneManager.NumGeometry(); n != 1 {
			t.Fatalf("swap %d: %d geometry records", i, n)
		}
		if n := r.sceneManager.NumMaterials(); n != 1 {
			t.Fatalf("swap %d: %d material records", i, n)
		}
		if index := r.sceneManager.LookupGeometryIndex(ts.geometry.ID); index != 0 {
			t.Fatalf("swap %d: geometry index = %d", i, index)
		}
		if n := r.descriptors.NumAllocated(systems.ResourceClassAttributeBuffer); n != 1 {
			t.Fatalf("swap %d: %d attribute descriptors allocated", i, n)
		}
		geometry, _ := r.sceneManager.LookupGeometry(ts.geometry.ID)
		if slot := geometry.AttributesDescriptor.Slot(); slot != 0 {
			t.Fatalf("swap %d: attribute slot = %d", i, slot)
		}

		live := driver.Live(headless.KindBuffer)
		if i == 0 {
			liveBuffers = live
		} else if live != liveBuffers {
			t.Fatalf("swap %d: %d buffers alive, want %d", i, live, liveBuffers)
		}
	}
	if n := driver.Live(headless.KindAccelerationStructure); n != 2 {
		t.Fatalf("%d acceleration structures alive, want one BLAS and the TLAS", n)
	}
}

func TestRemovingLastRenderableStopsTracing(t *testing.T) {
	r, driver := newTestRenderer(t)
	ts := newTriangleScene(t)
	r.SetScene(ts.Scene)
	drawFrames(t, r, 2)
	if !r.sceneManager.IsReadyToRender() {
		t.Fatal("scene is not ready")
	}

	if err := ts.RemoveEntity(ts.entity.ID); err != nil {
		t.Fatal(err)
	}
	traced := driver.Stats().TraceRays
	drawFrames(t, r, int(r.cfg.Renderer.FramesInFlight)+2)

	if n := len(r.sceneManager.Renderables()); n != 0 {
		t.Fatalf("%d renderables", n)
	}
	if r.sceneManager.IsReadyToRender() {
		t.Fatal("still ready without renderables")
	}
	if tlas := r.sceneManager.SceneTLAS(); tlas.IsValid() {
		t.Fatalf("TLAS with %d instances still bound", tlas.InstanceCount)
	}
	if n := driver.Stats().TraceRays; n != traced {
		t.Fatalf("traced %d more frames without renderables", n-traced)
	}
	// Only the BLAS of the geometry node is left.
	if n := driver.Live(headless.KindAccelerationStructure); n != 1 {
		t.Fatalf("%d acceleration structures alive", n)
	}
}

func TestMovingCameraParentUpdatesCamera(t *testing.T) {
	r, _ := newTestRenderer(t)
	ts := newTriangleScene(t)
	rig := scene.NewEntity("rig")
	if err := ts.AddEntity(rig); err != nil {
		t.Fatal(err)
	}
	ts.camera.Parent = rig.ID
	r.SetScene(ts.Scene)
	drawFrames(t, r, 1)

	if err := ts.SetTransform(rig.ID, math.TransformFromPosition(math.NewVec3(5, 0, 0))); err != nil {
		t.Fatal(err)
	}
	drawFrames(t, r, 1)

	var params gpu.RenderParameters
	r.cameras.ApplyRenderParameters(&params)
	if x := params.CameraPositionAspect[0]; !approx(x, 5) {
		t.Fatalf("camera x = %v, want 5", x)
	}
}

func TestGrabImageSubmitFailureKeepsReadback(t *testing.T) {
	r, driver := newTestRenderer(t)
	r.SetScene(newTriangleScene(t).Scene)
	drawFrames(t, r, 4)
	liveBuffers := driver.Live(headless.KindBuffer)
	copies := driver.Stats().Copies

	driver.FailNext("QueueSubmit", gpu.ErrorDeviceLost)
	if _, err := r.GrabImage(); !errors.Is(err, ErrSubmission) {
		t.Fatalf("grab: %v", err)
	}
	if n := r.commands.NumExecutable(); n != 1 {
		t.Fatalf("%d command buffers queued, want the readback", n)
	}

	drawFrames(t, r, 4)
	if n := driver.Stats().Copies - copies; n != 1 {
		t.Fatalf("readback copy ran %d times", n)
	}
	if n := driver.Live(headless.KindBuffer); n != liveBuffers {
		t.Fatalf("%d buffers alive, want %d", n, liveBuffers)
	}
	if _, err := r.GrabImage(); err != nil {
		t.Fatalf("grab after recovery: %v", err)
	}
}

func TestUploadEndFailureDiscardsStaging(t *testing.T) {
	r, driver := newTestRenderer(t)
	events := driver.Live(headless.KindEvent)
	buffers := driver.Live(headless.KindBuffer)

	driver.FailNext("EndCommandBuffer", gpu.ErrorOutOfDeviceMemory)
	if _, err := r.uploadStorageBuffer([]byte{1, 2, 3, 4}, "test"); !errors.Is(err, ErrCommandBuffer) {
		t.Fatalf("upload: %v", err)
	}
	if n := r.staging.NumPending(); n != 0 {
		t.Fatalf("%d staging buffers pending", n)
	}
	if n := driver.Live(headless.KindEvent); n != events {
		t.Fatalf("%d events alive, want %d", n, events)
	}
	if n := driver.Live(headless.KindBuffer); n != buffers {
		t.Fatalf("%d buffers alive, want %d", n, buffers)
	}
}
