package math

// GenerateNormals assigns face normals to every vertex referenced by indices.
func GenerateNormals(vertices []Vertex, indices []uint32) {
	for i := 0; i+2 < len(indices); i += 3 {
		i0, i1, i2 := indices[i], indices[i+1], indices[i+2]

		edge1 := vertices[i1].Position.Sub(vertices[i0].Position)
		edge2 := vertices[i2].Position.Sub(vertices[i0].Position)
		normal := edge1.Cross(edge2).Normalized()

		// NOTE: face normals only, no smoothing.
		vertices[i0].Normal = normal
		vertices[i1].Normal = normal
		vertices[i2].Normal = normal
	}
}

// GenerateTangents derives per-face tangents and bitangents from texture coordinates.
func GenerateTangents(vertices []Vertex, indices []uint32) {
	for i := 0; i+2 < len(indices); i += 3 {
		i0, i1, i2 := indices[i], indices[i+1], indices[i+2]

		edge1 := vertices[i1].Position.Sub(vertices[i0].Position)
		edge2 := vertices[i2].Position.Sub(vertices[i0].Position)

		deltaU1 := vertices[i1].Texcoord.X - vertices[i0].Texcoord.X
		deltaV1 := vertices[i1].Texcoord.Y - vertices[i0].Texcoord.Y
		deltaU2 := vertices[i2].Texcoord.X - vertices[i0].Texcoord.X
		deltaV2 := vertices[i2].Texcoord.Y - vertices[i0].Texcoord.Y

		dividend := deltaU1*deltaV2 - deltaU2*deltaV1
		if kabs(dividend) < FLOAT_EPSILON {
			continue
		}
		fc := 1.0 / dividend

		tangent := Vec3{
			X: fc * (deltaV2*edge1.X - deltaV1*edge2.X),
			Y: fc * (deltaV2*edge1.Y - deltaV1*edge2.Y),
			Z: fc * (deltaV2*edge1.Z - deltaV1*edge2.Z),
		}.Normalized()
		bitangent := vertices[i0].Normal.Cross(tangent).Normalized()

		for _, idx := range []uint32{i0, i1, i2} {
			vertices[idx].Tangent = tangent
			vertices[idx].Bitangent = bitangent
		}
	}
}
