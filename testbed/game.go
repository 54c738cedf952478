package testbed

import (
	"os"

	"github.com/spaghettifunk/quartz/engine"
	"github.com/spaghettifunk/quartz/engine/assets"
	"github.com/spaghettifunk/quartz/engine/core"
	"github.com/spaghettifunk/quartz/engine/math"
	"github.com/spaghettifunk/quartz/engine/platform"
	"github.com/spaghettifunk/quartz/engine/renderer/components"
	"github.com/spaghettifunk/quartz/engine/scene"
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	elapsed float64
	width   uint32
	height  uint32

	camera     *scene.Entity
	controller *components.FirstPersonController
}

func NewTestGame(configPath string) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: &engine.ApplicationConfig{
				StartPosX:  100,
				StartPosY:  100,
				Name:       "Quartz Path Tracer",
				ConfigPath: configPath,
			},
			State: &gameState{},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnOnResize = tg.OnResize

	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

// Initialize builds a floor, a back wall, a box and an emissive lamp lit by a distant sun.
func (g *TestGame) Initialize() error {
	core.LogInfo("building testbed scene...")
	s := g.Scene
	state := g.state()

	floorMaterial := scene.NewMaterial()
	floorMaterial.Albedo = math.NewVec3(0.73, 0.73, 0.73)
	if texture := floorTexture(); texture != nil {
		if err := s.SetTexture(texture); err != nil {
			return err
		}
		floorMaterial.AlbedoTexture = texture.ID
	}

	red := scene.NewMaterial()
	red.Albedo = math.NewVec3(0.65, 0.05, 0.05)
	red.Roughness = 0.35

	metal := scene.NewMaterial()
	metal.Albedo = math.NewVec3(0.95, 0.64, 0.54)
	metal.Roughness = 0.2
	metal.Metalness = 1

	light := scene.NewMaterial()
	light.Albedo = math.NewVec3Zero()
	light.Emission = math.NewVec3(1, 0.85, 0.6)
	light.EmissionIntensity = 15

	for _, m := range []*scene.Material{floorMaterial, red, metal, light} {
		if err := s.SetMaterial(m); err != nil {
			return err
		}
	}

	floor := scene.NewPlaneGeometry(10, 10, 4, 4, 4, 4)
	box := scene.NewCubeGeometry(1, 1, 1, 1, 1)
	lamp := scene.NewCubeGeometry(2, 0.05, 2, 1, 1)
	for _, geometry := range []*scene.Geometry{floor, box, lamp} {
		if err := s.SetGeometry(geometry); err != nil {
			return err
		}
	}

	entities := []struct {
		name      string
		geometry  *scene.Geometry
		material  *scene.Material
		transform math.Transform
	}{
		{"floor", floor, floorMaterial, math.NewTransform()},
		{"wall", floor, red, math.TransformFromPositionRotationScale(
			math.NewVec3(0, 5, -5),
			math.NewQuatFromAxisAngle(math.NewVec3(1, 0, 0), math.PI*0.5, true),
			math.NewVec3One())},
		{"box", box, metal, math.TransformFromPositionRotationScale(
			math.NewVec3(0, 0.5, 0),
			math.NewQuatFromAxisAngle(math.NewVec3(0, 1, 0), math.PI*0.15, true),
			math.NewVec3One())},
		{"lamp", lamp, light, math.TransformFromPosition(math.NewVec3(0, 4, 0))},
	}
	for _, desc := range entities {
		e := scene.NewEntity(desc.name)
		e.Geometry = desc.geometry.ID
		e.Material = desc.material.ID
		e.Transform = desc.transform
		if err := s.AddEntity(e); err != nil {
			return err
		}
	}

	sun := scene.NewEntity("sun")
	if err := s.AddEntity(sun); err != nil {
		return err
	}
	sunLight := scene.NewDistantLight(math.NewVec3(-0.4, -1, -0.3))
	sunLight.Intensity = 2
	if err := s.SetDistantLight(sun.ID, sunLight); err != nil {
		return err
	}

	state.controller = components.NewFirstPersonController(math.NewVec3(0, 1.5, 6))
	state.camera = scene.NewEntity("camera")
	state.camera.Transform = state.controller.Transform()
	if err := s.AddEntity(state.camera); err != nil {
		return err
	}
	lens := scene.NewCameraLens()
	lens.FieldOfView = 60
	if err := s.SetCameraLens(state.camera.ID, lens); err != nil {
		return err
	}
	if err := s.SetActiveCamera(state.camera.ID); err != nil {
		return err
	}

	settings := s.RenderSettings()
	settings.SkyColor = math.NewVec3(0.5, 0.7, 1.0)
	settings.SkyIntensity = 0.3
	s.SetRenderSettings(settings)

	core.LogInfo("testbed scene ready: %d entities", len(s.Entities()))
	return nil
}

const floorTexturePath = "assets/textures/floor.png"

// floorTexture returns nil when the image is missing, leaving the floor untextured.
func floorTexture() *scene.Texture {
	if _, err := os.Stat(floorTexturePath); err != nil {
		core.LogWarn("floor texture %s not found, using a plain floor", floorTexturePath)
		return nil
	}
	texture, err := assets.LoadTexture(floorTexturePath, assets.ColorImageParams)
	if err != nil {
		return nil
	}
	return texture
}

// Only camera movement changes the scene, so a still camera keeps the image converging.
func (g *TestGame) Update(deltaTime float64, input platform.InputState) error {
	state := g.state()
	state.elapsed += deltaTime
	if !state.controller.Update(input.Move, input.Look, float32(deltaTime)) {
		return nil
	}
	return g.Scene.SetTransform(state.camera.ID, state.controller.Transform())
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	state := g.state()
	state.width = width
	state.height = height
	if state.camera == nil || height == 0 {
		return nil
	}
	lens := *state.camera.Lens
	lens.AspectRatio = float32(width) / float32(height)
	return g.Scene.SetCameraLens(state.camera.ID, &lens)
}
