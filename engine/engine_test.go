package engine

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/quartz/engine/math"
	"github.com/spaghettifunk/quartz/engine/platform"
	"github.com/spaghettifunk/quartz/engine/renderer/pipeline"
	"github.com/spaghettifunk/quartz/engine/scene"
)

// writeShaders pairs the reflection sidecars with placeholder bytecode.
func writeShaders(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{"pathtrace.rgen", "pathtrace.rmiss", "pathtrace.rchit", "display.vert", "display.frag"} {
		sidecar, err := os.ReadFile(pipeline.ShaderPath("../shaders", name) + pipeline.ReflectionExtension)
		if err != nil {
			t.Fatal(err)
		}
		path := pipeline.ShaderPath(dir, name)
		if err := os.WriteFile(path, make([]byte, 64), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path+pipeline.ReflectionExtension, sidecar, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func testGame(t *testing.T, configPath string) (*Game, *int) {
	t.Helper()
	updates := new(int)
	g := &Game{
		ApplicationConfig: &ApplicationConfig{Name: "quartz test", ConfigPath: configPath},
	}
	g.FnInitialize = func() error {
		floor := scene.NewPlaneGeometry(4, 4, 1, 1, 1, 1)
		material := scene.NewMaterial()
		if err := g.Scene.SetGeometry(floor); err != nil {
			return err
		}
		if err := g.Scene.SetMaterial(material); err != nil {
			return err
		}
		e := scene.NewEntity("floor")
		e.Geometry, e.Material = floor.ID, material.ID
		if err := g.Scene.AddEntity(e); err != nil {
			return err
		}

		camera := scene.NewEntity("camera")
		camera.Transform = math.TransformFromPosition(math.NewVec3(0, 1, 3))
		if err := g.Scene.AddEntity(camera); err != nil {
			return err
		}
		if err := g.Scene.SetCameraLens(camera.ID, scene.NewCameraLens()); err != nil {
			return err
		}
		return g.Scene.SetActiveCamera(camera.ID)
	}
	g.FnUpdate = func(deltaTime float64, input platform.InputState) error {
		*updates++
		return nil
	}
	g.FnOnResize = func(width, height uint32) error {
		return nil
	}
	return g, updates
}

func TestHeadlessRunExportsImage(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "render.png")
	configPath := filepath.Join(dir, "quartz.toml")
	toml := fmt.Sprintf(`
[log]
level = "warn"

[renderer]
driver = "headless"
width = 8
height = 4
shader_dir = %q
watch_shaders = false
frame_count = 3

[output]
path = %q
format = "png"
`, writeShaders(t), output)
	if err := os.WriteFile(configPath, []byte(toml), 0o644); err != nil {
		t.Fatal(err)
	}

	g, updates := testGame(t, configPath)
	e, err := New(g)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Initialize(); err != nil {
		t.Fatal(err)
	}
	if err := e.Run(); err != nil {
		t.Fatal(err)
	}
	if err := e.Shutdown(); err != nil {
		t.Fatal(err)
	}

	if *updates != 3 {
		t.Fatalf("%d updates, want 3", *updates)
	}
	f, err := os.Open(output)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 8 || b.Dy() != 4 {
		t.Fatalf("image is %dx%d", b.Dx(), b.Dy())
	}
}

func TestRunBeforeInitialize(t *testing.T) {
	g, _ := testGame(t, filepath.Join(t.TempDir(), "missing.toml"))
	e, err := New(g)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Run(); err == nil {
		t.Fatal("run without initialize must fail")
	}
}
