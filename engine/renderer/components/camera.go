package components

import (
	"github.com/spaghettifunk/quartz/engine/math"
)

const (
	DefaultMoveSpeed float32 = 10
	// Degrees per pixel of cursor movement.
	DefaultLookSpeed float32 = 0.15

	// 89 degrees, keeps the view away from gimbal lock.
	pitchLimit float32 = 1.55334306
)

var (
	worldUp      = math.NewVec3(0, 1, 0)
	localRight   = math.NewVec3(1, 0, 0)
	localForward = math.NewVec3(0, 0, -1)
)

/**
 * @brief Moves a camera entity like a first person shooter: translation in the camera's own
 * frame, yaw around the world up axis and clamped pitch around the camera's right axis.
 * The controller owns position and orientation, the result is applied with Scene.SetTransform.
 */
type FirstPersonController struct {
	MoveSpeed float32
	LookSpeed float32

	position math.Vec3
	// Radians. Yaw turns left for positive values, pitch looks up.
	yaw     float32
	pitch   float32
	isDirty bool
}

func NewFirstPersonController(position math.Vec3) *FirstPersonController {
	c := &FirstPersonController{
		MoveSpeed: DefaultMoveSpeed,
		LookSpeed: DefaultLookSpeed,
	}
	c.Reset()
	c.position = position
	return c
}

func (c *FirstPersonController) Reset() {
	c.position = math.NewVec3Zero()
	c.yaw = 0
	c.pitch = 0
	c.isDirty = true
}

func (c *FirstPersonController) Position() math.Vec3 {
	return c.position
}

func (c *FirstPersonController) SetPosition(position math.Vec3) {
	c.position = position
	c.isDirty = true
}

func (c *FirstPersonController) rotation() math.Quaternion {
	yaw := math.NewQuatFromAxisAngle(worldUp, c.yaw, true)
	pitch := math.NewQuatFromAxisAngle(localRight, c.pitch, true)
	// Pitch is applied first.
	return yaw.Mul(pitch)
}

// Transform returns the camera's local transform.
func (c *FirstPersonController) Transform() math.Transform {
	return math.TransformFromPositionRotationScale(c.position, c.rotation(), math.NewVec3One())
}

func (c *FirstPersonController) Forward() math.Vec3 {
	return localForward.TransformDirection(c.rotation().ToMat4())
}

func (c *FirstPersonController) Right() math.Vec3 {
	return localRight.TransformDirection(c.rotation().ToMat4())
}

func (c *FirstPersonController) MoveForward(amount float32) {
	c.position = c.position.Add(c.Forward().MulScalar(amount))
	c.isDirty = true
}

func (c *FirstPersonController) MoveRight(amount float32) {
	c.position = c.position.Add(c.Right().MulScalar(amount))
	c.isDirty = true
}

func (c *FirstPersonController) MoveUp(amount float32) {
	c.position = c.position.Add(worldUp.MulScalar(amount))
	c.isDirty = true
}

func (c *FirstPersonController) Yaw(amount float32) {
	c.yaw += amount
	c.isDirty = true
}

func (c *FirstPersonController) Pitch(amount float32) {
	c.pitch = math.Clamp(c.pitch+amount, -pitchLimit, pitchLimit)
	c.isDirty = true
}

/**
 * @brief Applies one frame of input.
 * @param move Movement axes in [-1, 1]: x right, y up, z backwards.
 * @param look Cursor movement in pixels since the previous frame.
 * @param deltaTime Frame time in seconds.
 * @return True when the camera moved since the previous call.
 */
func (c *FirstPersonController) Update(move math.Vec3, look math.Vec2, deltaTime float32) bool {
	step := c.MoveSpeed * deltaTime
	if move.X != 0 {
		c.MoveRight(move.X * step)
	}
	if move.Y != 0 {
		c.MoveUp(move.Y * step)
	}
	if move.Z != 0 {
		c.MoveForward(-move.Z * step)
	}
	if look.X != 0 {
		// Cursor to the right turns right.
		c.Yaw(-math.DegToRad(look.X * c.LookSpeed))
	}
	if look.Y != 0 {
		// Screen coordinates grow downwards.
		c.Pitch(-math.DegToRad(look.Y * c.LookSpeed))
	}

	moved := c.isDirty
	c.isDirty = false
	return moved
}
