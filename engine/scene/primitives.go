package scene

import (
	"github.com/spaghettifunk/quartz/engine/core"
	"github.com/spaghettifunk/quartz/engine/math"
)

/**
 * @brief Generates a plane on the xz axes facing +y, centered at the origin.
 * @param width The overall width of the plane. Must be non-zero.
 * @param depth The overall depth of the plane. Must be non-zero.
 * @param xSegmentCount The number of segments along the x-axis in the plane. Must be non-zero.
 * @param zSegmentCount The number of segments along the z-axis in the plane. Must be non-zero.
 * @param tileX The number of times the texture should tile across the plane on the x-axis. Must be non-zero.
 * @param tileZ The number of times the texture should tile across the plane on the z-axis. Must be non-zero.
 * @return A geometry ready for Scene.SetGeometry.
 */
func NewPlaneGeometry(width, depth float32, xSegmentCount, zSegmentCount uint32, tileX, tileZ float32) *Geometry {
	if width == 0 {
		core.LogWarn("Width must be nonzero. Defaulting to one.")
		width = 1.0
	}
	if depth == 0 {
		core.LogWarn("Depth must be nonzero. Defaulting to one.")
		depth = 1.0
	}
	if xSegmentCount < 1 {
		core.LogWarn("xSegmentCount must be a positive number. Defaulting to one.")
		xSegmentCount = 1
	}
	if zSegmentCount < 1 {
		core.LogWarn("zSegmentCount must be a positive number. Defaulting to one.")
		zSegmentCount = 1
	}
	if tileX == 0 {
		core.LogWarn("tileX must be nonzero. Defaulting to one.")
		tileX = 1.0
	}
	if tileZ == 0 {
		core.LogWarn("tileZ must be nonzero. Defaulting to one.")
		tileZ = 1.0
	}

	// 4 vertices and 6 indices per segment. Shared vertices are not deduplicated.
	vertices := make([]math.Vertex, xSegmentCount*zSegmentCount*4)
	indices := make([]uint32, xSegmentCount*zSegmentCount*6)

	segWidth := width / float32(xSegmentCount)
	segDepth := depth / float32(zSegmentCount)
	halfWidth := width * 0.5
	halfDepth := depth * 0.5
	up := math.NewVec3(0, 1, 0)
	for z := uint32(0); z < zSegmentCount; z++ {
		for x := uint32(0); x < xSegmentCount; x++ {
			minX := (float32(x) * segWidth) - halfWidth
			minZ := (float32(z) * segDepth) - halfDepth
			maxX := minX + segWidth
			maxZ := minZ + segDepth
			minU := (float32(x) / float32(xSegmentCount)) * tileX
			minV := (float32(z) / float32(zSegmentCount)) * tileZ
			maxU := (float32(x+1) / float32(xSegmentCount)) * tileX
			maxV := (float32(z+1) / float32(zSegmentCount)) * tileZ

			vOffset := ((z * xSegmentCount) + x) * 4
			// Counter-clockwise seen from above.
			vertices[vOffset+0] = math.Vertex{Position: math.NewVec3(minX, 0, maxZ), Normal: up, Texcoord: math.NewVec2(minU, minV)}
			vertices[vOffset+1] = math.Vertex{Position: math.NewVec3(maxX, 0, minZ), Normal: up, Texcoord: math.NewVec2(maxU, maxV)}
			vertices[vOffset+2] = math.Vertex{Position: math.NewVec3(minX, 0, minZ), Normal: up, Texcoord: math.NewVec2(minU, maxV)}
			vertices[vOffset+3] = math.Vertex{Position: math.NewVec3(maxX, 0, maxZ), Normal: up, Texcoord: math.NewVec2(maxU, minV)}

			iOffset := ((z * xSegmentCount) + x) * 6
			quadIndices(indices[iOffset:iOffset+6], vOffset)
		}
	}
	return newGeometry(vertices, indices)
}

// NewCubeGeometry generates a box centered at the origin with 4 vertices per side.
func NewCubeGeometry(width, height, depth, tileX, tileY float32) *Geometry {
	if width == 0 {
		core.LogWarn("Width must be nonzero. Defaulting to one.")
		width = 1.0
	}
	if height == 0 {
		core.LogWarn("Height must be nonzero. Defaulting to one.")
		height = 1.0
	}
	if depth == 0 {
		core.LogWarn("Depth must be nonzero. Defaulting to one.")
		depth = 1
	}
	if tileX == 0 {
		core.LogWarn("tileX must be nonzero. Defaulting to one.")
		tileX = 1.0
	}
	if tileY == 0 {
		core.LogWarn("tileY must be nonzero. Defaulting to one.")
		tileY = 1.0
	}

	minX, maxX := -width*0.5, width*0.5
	minY, maxY := -height*0.5, height*0.5
	minZ, maxZ := -depth*0.5, depth*0.5

	sides := []struct {
		normal  math.Vec3
		corners [4]math.Vec3
	}{
		// Front
		{math.NewVec3(0, 0, 1), [4]math.Vec3{{X: minX, Y: minY, Z: maxZ}, {X: maxX, Y: maxY, Z: maxZ}, {X: minX, Y: maxY, Z: maxZ}, {X: maxX, Y: minY, Z: maxZ}}},
		// Back
		{math.NewVec3(0, 0, -1), [4]math.Vec3{{X: maxX, Y: minY, Z: minZ}, {X: minX, Y: maxY, Z: minZ}, {X: maxX, Y: maxY, Z: minZ}, {X: minX, Y: minY, Z: minZ}}},
		// Left
		{math.NewVec3(-1, 0, 0), [4]math.Vec3{{X: minX, Y: minY, Z: minZ}, {X: minX, Y: maxY, Z: maxZ}, {X: minX, Y: maxY, Z: minZ}, {X: minX, Y: minY, Z: maxZ}}},
		// Right
		{math.NewVec3(1, 0, 0), [4]math.Vec3{{X: maxX, Y: minY, Z: maxZ}, {X: maxX, Y: maxY, Z: minZ}, {X: maxX, Y: maxY, Z: maxZ}, {X: maxX, Y: minY, Z: minZ}}},
		// Bottom
		{math.NewVec3(0, -1, 0), [4]math.Vec3{{X: maxX, Y: minY, Z: maxZ}, {X: minX, Y: minY, Z: minZ}, {X: maxX, Y: minY, Z: minZ}, {X: minX, Y: minY, Z: maxZ}}},
		// Top
		{math.NewVec3(0, 1, 0), [4]math.Vec3{{X: minX, Y: maxY, Z: maxZ}, {X: maxX, Y: maxY, Z: minZ}, {X: minX, Y: maxY, Z: minZ}, {X: maxX, Y: maxY, Z: maxZ}}},
	}
	texcoords := [4]math.Vec2{{X: 0, Y: 0}, {X: tileX, Y: tileY}, {X: 0, Y: tileY}, {X: tileX, Y: 0}}

	vertices := make([]math.Vertex, 0, len(sides)*4)
	indices := make([]uint32, len(sides)*6)
	for i, side := range sides {
		for c, corner := range side.corners {
			vertices = append(vertices, math.Vertex{Position: corner, Normal: side.normal, Texcoord: texcoords[c]})
		}
		quadIndices(indices[i*6:i*6+6], uint32(i*4))
	}
	return newGeometry(vertices, indices)
}

func quadIndices(dst []uint32, offset uint32) {
	dst[0] = offset + 0
	dst[1] = offset + 1
	dst[2] = offset + 2
	dst[3] = offset + 0
	dst[4] = offset + 3
	dst[5] = offset + 1
}

func newGeometry(vertices []math.Vertex, indices []uint32) *Geometry {
	math.GenerateTangents(vertices, indices)
	faces := make([][3]uint32, len(indices)/3)
	for i := range faces {
		faces[i] = [3]uint32{indices[i*3], indices[i*3+1], indices[i*3+2]}
	}
	return &Geometry{
		ID:       core.NewNodeID(),
		Vertices: vertices,
		Faces:    faces,
	}
}
