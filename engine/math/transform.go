package math

/**
 * @brief Position, rotation and scale of a scene node relative to its parent.
 */
type Transform struct {
	Position Vec3
	Rotation Quaternion
	Scale    Vec3
}

func NewTransform() Transform {
	return Transform{
		Rotation: NewQuatIdentity(),
		Scale:    NewVec3One(),
	}
}

func TransformFromPosition(position Vec3) Transform {
	t := NewTransform()
	t.Position = position
	return t
}

func TransformFromPositionRotationScale(position Vec3, rotation Quaternion, scale Vec3) Transform {
	return Transform{Position: position, Rotation: rotation, Scale: scale}
}

/**
 * @brief Returns the local matrix: scale, then rotate, then translate.
 */
func (t Transform) Matrix() Mat4 {
	return NewMat4Scale(t.Scale).Mul(t.Rotation.ToMat4()).Mul(NewMat4Translation(t.Position))
}
