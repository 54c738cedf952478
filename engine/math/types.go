package math

// Vec2 represents a 2D vector
type Vec2 struct {
	X, Y float32
}

// Vec3 represents a 3D vector
type Vec3 struct {
	X, Y, Z float32
}

// Vec4 represents a 4D vector
type Vec4 struct {
	X, Y, Z, W float32
}

/** @brief A quaternion, used to represent rotational orientation. */
type Quaternion Vec4

/**
 * @brief A 4x4 matrix. Rows are basis vectors: Data[row*4+col], points transform as v*M
 * and the translation lives in Data[12..14].
 */
type Mat4 struct {
	Data [16]float32
}

/** @brief A 3x3 matrix stored the same way as Mat4. */
type Mat3 struct {
	Data [9]float32
}

/**
 * @brief A vertex as consumed by the ray tracing shaders.
 */
type Vertex struct {
	Position  Vec3
	Normal    Vec3
	Tangent   Vec3
	Bitangent Vec3
	Texcoord  Vec2
}
