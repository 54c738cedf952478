package systems

import (
	"sync"

	"github.com/spaghettifunk/quartz/engine/math"
	"github.com/spaghettifunk/quartz/engine/renderer/gpu"
	"github.com/spaghettifunk/quartz/engine/scene"
)

// Right handed; up is flipped since screen coordinates grow downwards.
var (
	identityUpVector      = math.NewVec3(0, -1, 0)
	identityRightVector   = math.NewVec3(1, 0, 0)
	identityForwardVector = math.NewVec3(0, 0, -1)
)

const defaultFieldOfView float32 = 90

/**
 * @brief Derives the camera basis and lens parameters pushed to the shaders from the active
 * camera entity, falling back to a default camera at the origin.
 */
type CameraManager struct {
	mu            sync.Mutex
	activeCamera  *scene.Entity
	position      math.Vec3
	upVector      math.Vec3
	rightVector   math.Vec3
	forwardVector math.Vec3
	aspectRatio   float32
	tanHalfFOV    float32
	lensRadius    float32
	focalDistance float32
	invGamma      float32
	exposure      float32
	tonemapFactor float32
}

func NewCameraManager() *CameraManager {
	cm := &CameraManager{}
	cm.Reset()
	return cm
}

func (cm *CameraManager) ActiveCamera() *scene.Entity {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.activeCamera
}

func (cm *CameraManager) SetActiveCamera(camera *scene.Entity) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.activeCamera = camera
}

// Reset restores the default parameters.
func (cm *CameraManager) Reset() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.reset()
}

func (cm *CameraManager) reset() {
	cm.position = math.NewVec3Zero()
	cm.upVector = identityUpVector
	cm.rightVector = identityRightVector
	cm.forwardVector = identityForwardVector
	cm.aspectRatio = 1
	cm.tanHalfFOV = math.Tan(0.5 * math.DegToRad(defaultFieldOfView))
	cm.lensRadius = 0
	cm.focalDistance = 1
	cm.invGamma = 1 / 2.2
	cm.exposure = 1
	cm.tonemapFactor = 1
}

/**
 * @brief Recomputes the parameters from the active camera's world transform and lens.
 * Without an enabled camera the defaults are used.
 */
func (cm *CameraManager) UpdateParameters() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	camera := cm.activeCamera
	if camera == nil || !camera.IsCamera() {
		cm.reset()
		return
	}

	world := camera.WorldTransform
	cm.position = world.Translation()
	cm.upVector = identityUpVector.TransformDirection(world)
	cm.rightVector = identityRightVector.TransformDirection(world)
	cm.forwardVector = identityForwardVector.TransformDirection(world)

	lens := camera.Lens
	cm.aspectRatio = lens.AspectRatio
	cm.tanHalfFOV = math.Tan(0.5 * math.DegToRad(lens.FieldOfView))
	cm.lensRadius = 0.5 * lens.Diameter
	cm.focalDistance = lens.FocalDistance
	cm.invGamma = 1 / lens.Gamma
	cm.exposure = lens.Exposure
	cm.tonemapFactor = lens.TonemapFactor
}

func (cm *CameraManager) ApplyRenderParameters(params *gpu.RenderParameters) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	params.CameraPositionAspect = cm.position.ToVec4(cm.aspectRatio).Array()
	params.CameraUpVectorTanHalfFOV = cm.upVector.ToVec4(cm.tanHalfFOV).Array()
	params.CameraRightVectorLensR = cm.rightVector.ToVec4(cm.lensRadius).Array()
	params.CameraForwardVectorLensF = cm.forwardVector.ToVec4(cm.focalDistance).Array()
}

func (cm *CameraManager) ApplyDisplayParameters(params *gpu.DisplayParameters) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	params.InvGamma = cm.invGamma
	params.Exposure = cm.exposure
	params.TonemapFactorSq = cm.tonemapFactor * cm.tonemapFactor
}
