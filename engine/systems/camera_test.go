package systems

import (
	"testing"

	"github.com/spaghettifunk/quartz/engine/math"
	"github.com/spaghettifunk/quartz/engine/renderer/gpu"
	"github.com/spaghettifunk/quartz/engine/scene"
)

func approx(a, b float32) bool {
	d := a - b
	return d < 1e-5 && d > -1e-5
}

func TestCameraDefaults(t *testing.T) {
	cm := NewCameraManager()
	cm.UpdateParameters()

	var params gpu.RenderParameters
	cm.ApplyRenderParameters(&params)
	want := gpu.RenderParameters{
		CameraPositionAspect:     [4]float32{0, 0, 0, 1},
		CameraUpVectorTanHalfFOV: [4]float32{0, -1, 0, 1},
		CameraRightVectorLensR:   [4]float32{1, 0, 0, 0},
		CameraForwardVectorLensF: [4]float32{0, 0, -1, 1},
	}
	for i := 0; i < 4; i++ {
		if !approx(params.CameraPositionAspect[i], want.CameraPositionAspect[i]) ||
			!approx(params.CameraUpVectorTanHalfFOV[i], want.CameraUpVectorTanHalfFOV[i]) ||
			!approx(params.CameraRightVectorLensR[i], want.CameraRightVectorLensR[i]) ||
			!approx(params.CameraForwardVectorLensF[i], want.CameraForwardVectorLensF[i]) {
			t.Fatalf("params = %+v", params)
		}
	}

	var display gpu.DisplayParameters
	cm.ApplyDisplayParameters(&display)
	if !approx(display.InvGamma, 1/2.2) || display.Exposure != 1 || display.TonemapFactorSq != 1 {
		t.Fatalf("display = %+v", display)
	}
}

func TestCameraFollowsEntity(t *testing.T) {
	camera := scene.NewEntity("camera")
	camera.Lens = scene.NewCameraLens()
	camera.Lens.FieldOfView = 60
	camera.Lens.Diameter = 0.5
	camera.Lens.FocalDistance = 3
	camera.Lens.AspectRatio = 16.0 / 9.0
	camera.Lens.TonemapFactor = 2
	camera.WorldTransform = math.NewMat4Translation(math.NewVec3(1, 2, 3))

	cm := NewCameraManager()
	cm.SetActiveCamera(camera)
	cm.UpdateParameters()

	var params gpu.RenderParameters
	cm.ApplyRenderParameters(&params)
	if params.CameraPositionAspect != [4]float32{1, 2, 3, 16.0 / 9.0} {
		t.Fatalf("position/aspect = %v", params.CameraPositionAspect)
	}
	if !approx(params.CameraUpVectorTanHalfFOV[3], math.Tan(math.DegToRad(30))) {
		t.Fatalf("tan half fov = %v", params.CameraUpVectorTanHalfFOV[3])
	}
	if params.CameraRightVectorLensR[3] != 0.25 || params.CameraForwardVectorLensF[3] != 3 {
		t.Fatalf("lens = %v %v", params.CameraRightVectorLensR, params.CameraForwardVectorLensF)
	}
	// Translation does not affect directions.
	if params.CameraForwardVectorLensF[2] != -1 {
		t.Fatalf("forward = %v", params.CameraForwardVectorLensF)
	}

	var display gpu.DisplayParameters
	cm.ApplyDisplayParameters(&display)
	if display.TonemapFactorSq != 4 {
		t.Fatalf("tonemap = %v", display.TonemapFactorSq)
	}

	// A disabled camera falls back to the defaults.
	camera.Enabled = false
	cm.UpdateParameters()
	cm.ApplyRenderParameters(&params)
	if params.CameraPositionAspect != [4]float32{0, 0, 0, 1} {
		t.Fatalf("fallback position = %v", params.CameraPositionAspect)
	}
}
