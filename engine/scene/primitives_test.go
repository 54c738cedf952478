package scene

import (
	"testing"

	"github.com/spaghettifunk/quartz/engine/math"
)

// Every triangle must wind counter-clockwise around its vertex normal.
func checkWinding(t *testing.T, g *Geometry) {
	t.Helper()
	for i, f := range g.Faces {
		v0, v1, v2 := g.Vertices[f[0]], g.Vertices[f[1]], g.Vertices[f[2]]
		n := v1.Position.Sub(v0.Position).Cross(v2.Position.Sub(v0.Position))
		if n.Dot(v0.Normal) <= 0 {
			t.Fatalf("face %d winds against its normal %v", i, v0.Normal)
		}
	}
}

func TestNewPlaneGeometry(t *testing.T) {
	g := NewPlaneGeometry(4, 2, 2, 3, 1, 1)
	if len(g.Vertices) != 2*3*4 || len(g.Faces) != 2*3*2 {
		t.Fatalf("%d vertices, %d faces", len(g.Vertices), len(g.Faces))
	}
	if g.ID.IsNull() {
		t.Fatal("geometry without id")
	}
	for _, v := range g.Vertices {
		if v.Position.Y != 0 || v.Position.X < -2 || v.Position.X > 2 || v.Position.Z < -1 || v.Position.Z > 1 {
			t.Fatalf("vertex out of bounds: %v", v.Position)
		}
	}
	checkWinding(t, g)
}

func TestNewPlaneGeometryDefaults(t *testing.T) {
	g := NewPlaneGeometry(0, 0, 0, 0, 0, 0)
	if len(g.Vertices) != 4 || len(g.Faces) != 2 {
		t.Fatalf("%d vertices, %d faces", len(g.Vertices), len(g.Faces))
	}
}

func TestNewCubeGeometry(t *testing.T) {
	g := NewCubeGeometry(2, 2, 2, 1, 1)
	if len(g.Vertices) != 24 || len(g.Faces) != 12 {
		t.Fatalf("%d vertices, %d faces", len(g.Vertices), len(g.Faces))
	}
	for _, v := range g.Vertices {
		// Every side lies on the face its normal points to.
		if d := v.Position.Dot(v.Normal); d != 1 {
			t.Fatalf("vertex %v with normal %v", v.Position, v.Normal)
		}
		if v.Tangent.Compare(math.NewVec3Zero(), 0.0001) {
			t.Fatalf("missing tangent on vertex %v", v.Position)
		}
	}
	checkWinding(t, g)
}
