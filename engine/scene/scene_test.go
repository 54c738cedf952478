package scene

import (
	"testing"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/quartz/engine/core"
	"github.com/spaghettifunk/quartz/engine/math"
)

func TestNewSceneStartsDirty(t *testing.T) {
	s := NewScene()
	d := s.TakeDirty()
	if !d.Flags.Has(DirtyRenderSettings) || !d.Flags.Has(DirtyCamera) {
		t.Fatalf("initial flags = %s", d.Flags)
	}
	if again := s.TakeDirty(); !again.IsEmpty() {
		t.Fatalf("flags not cleared: %s", again.Flags)
	}
}

func TestMutationsRaiseFlags(t *testing.T) {
	s := NewScene()
	s.TakeDirty()

	g := &Geometry{ID: core.NewNodeID(), Vertices: make([]math.Vertex, 3), Faces: [][3]uint32{{0, 1, 2}}}
	m := NewMaterial()
	if err := s.SetGeometry(g); err != nil {
		t.Fatal(err)
	}
	if err := s.SetMaterial(m); err != nil {
		t.Fatal(err)
	}
	// Same material twice is reported once.
	if err := s.UpdateMaterial(m.ID, func(m *Material) { m.Roughness = 0.25 }); err != nil {
		t.Fatal(err)
	}
	e := NewEntity("box")
	e.Geometry, e.Material = g.ID, m.ID
	if err := s.AddEntity(e); err != nil {
		t.Fatal(err)
	}

	d := s.TakeDirty()
	for _, f := range []DirtyFlags{DirtyGeometry, DirtyMaterial, DirtyEntity, DirtyTransform} {
		if !d.Flags.Has(f) {
			t.Errorf("missing %s in %s", f, d.Flags)
		}
	}
	if d.Flags.Has(DirtyCamera) || d.Flags.Has(DirtyLights) {
		t.Errorf("unexpected flags %s", d.Flags)
	}
	if len(d.Geometry) != 1 || d.Geometry[0] != g.ID {
		t.Errorf("geometry = %v", d.Geometry)
	}
	if len(d.Materials) != 1 || s.Material(m.ID).Roughness != 0.25 {
		t.Errorf("materials = %v", d.Materials)
	}
}

func TestRemovingActiveCamera(t *testing.T) {
	s := NewScene()
	cam := NewEntity("camera")
	cam.Lens = NewCameraLens()
	if err := s.AddEntity(cam); err != nil {
		t.Fatal(err)
	}
	if err := s.SetActiveCamera(cam.ID); err != nil {
		t.Fatal(err)
	}
	s.TakeDirty()

	if err := s.RemoveEntity(cam.ID); err != nil {
		t.Fatal(err)
	}
	if s.ActiveCamera() != nil {
		t.Fatal("active camera survived removal")
	}
	if d := s.TakeDirty(); !d.Flags.Has(DirtyCamera | DirtyEntity) {
		t.Fatalf("flags = %s", d.Flags)
	}
	if err := s.RemoveEntity(cam.ID); !errors.Is(err, ErrNodeNotFound) {
		t.Fatalf("second remove = %v", err)
	}
}

func TestLightTransformRaisesLights(t *testing.T) {
	s := NewScene()
	sun := NewEntity("sun")
	if err := s.AddEntity(sun); err != nil {
		t.Fatal(err)
	}
	if err := s.SetDistantLight(sun.ID, NewDistantLight(math.NewVec3(0, -1, 0))); err != nil {
		t.Fatal(err)
	}
	s.TakeDirty()
	if err := s.SetTransform(sun.ID, math.TransformFromPosition(math.NewVec3(1, 2, 3))); err != nil {
		t.Fatal(err)
	}
	if d := s.TakeDirty(); !d.Flags.Has(DirtyLights) || !d.Flags.Has(DirtyTransform) {
		t.Fatalf("flags = %s", d.Flags)
	}
	if !s.IsEmissive(s.Entity(sun.ID)) {
		t.Fatal("distant light must be emissive")
	}
}

func TestWorldTransformsFollowParents(t *testing.T) {
	s := NewScene()
	parent := NewEntity("parent")
	parent.Transform = math.TransformFromPosition(math.NewVec3(10, 0, 0))
	child := NewEntity("child")
	child.Parent = parent.ID
	child.Transform = math.TransformFromPosition(math.NewVec3(0, 1, 0))
	if err := s.AddEntity(parent); err != nil {
		t.Fatal(err)
	}
	if err := s.AddEntity(child); err != nil {
		t.Fatal(err)
	}

	s.UpdateWorldTransforms()
	got := s.Entity(child.ID).WorldTransform.Translation()
	if !got.Compare(math.NewVec3(10, 1, 0), 1e-5) {
		t.Fatalf("child world position = %v", got)
	}
}

func TestParentTransformRaisesChildCamera(t *testing.T) {
	s := NewScene()
	rig := NewEntity("rig")
	cam := NewEntity("camera")
	cam.Parent = rig.ID
	cam.Lens = NewCameraLens()
	unrelated := NewEntity("unrelated")
	for _, e := range []*Entity{rig, cam, unrelated} {
		if err := s.AddEntity(e); err != nil {
			t.Fatal(err)
		}
	}
	s.TakeDirty()

	if err := s.SetTransform(rig.ID, math.TransformFromPosition(math.NewVec3(5, 0, 0))); err != nil {
		t.Fatal(err)
	}
	if d := s.TakeDirty(); !d.Flags.Has(DirtyCamera) || !d.Flags.Has(DirtyTransform) {
		t.Fatalf("flags = %s", d.Flags)
	}

	if err := s.SetTransform(unrelated.ID, math.TransformFromPosition(math.NewVec3(1, 0, 0))); err != nil {
		t.Fatal(err)
	}
	if d := s.TakeDirty(); d.Flags.Has(DirtyCamera) {
		t.Fatalf("moving an unrelated entity raised %s", d.Flags)
	}
}

func TestDuplicateAndNullNodes(t *testing.T) {
	s := NewScene()
	e := NewEntity("a")
	if err := s.AddEntity(e); err != nil {
		t.Fatal(err)
	}
	if err := s.AddEntity(e); !errors.Is(err, ErrNodeExists) {
		t.Fatalf("duplicate add = %v", err)
	}
	if err := s.SetMaterial(&Material{}); !errors.Is(err, ErrNullNode) {
		t.Fatalf("null material = %v", err)
	}
	if err := s.SetTexture(&Texture{ID: core.NewNodeID(), Width: 2, Height: 2, Pixels: make([]byte, 3)}); err == nil {
		t.Fatal("short pixel buffer accepted")
	}
	if err := s.SetActiveCamera(core.NewNodeID()); !errors.Is(err, ErrNodeNotFound) {
		t.Fatalf("unknown camera = %v", err)
	}
}

func TestEntitiesKeepInsertionOrder(t *testing.T) {
	s := NewScene()
	var ids []core.NodeID
	for _, name := range []string{"a", "b", "c", "d"} {
		e := NewEntity(name)
		ids = append(ids, e.ID)
		if err := s.AddEntity(e); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.RemoveEntity(ids[1]); err != nil {
		t.Fatal(err)
	}
	got := s.Entities()
	want := []core.NodeID{ids[0], ids[2], ids[3]}
	if len(got) != len(want) {
		t.Fatalf("got %d entities", len(got))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Fatalf("entity %d = %s, want %s", i, got[i].ID, want[i])
		}
	}
}

func TestMarkAllDirty(t *testing.T) {
	s := NewScene()
	g := &Geometry{ID: core.NewNodeID(), Vertices: make([]math.Vertex, 3), Faces: [][3]uint32{{0, 1, 2}}}
	m := NewMaterial()
	tex := &Texture{ID: core.NewNodeID(), Width: 1, Height: 1, Pixels: make([]byte, 4)}
	for _, err := range []error{s.SetGeometry(g), s.SetMaterial(m), s.SetTexture(tex)} {
		if err != nil {
			t.Fatal(err)
		}
	}
	s.TakeDirty()

	s.MarkAllDirty()
	d := s.TakeDirty()
	if d.Flags != DirtyAll {
		t.Fatalf("flags = %s", d.Flags)
	}
	if len(d.Geometry) != 1 || len(d.Materials) != 1 || len(d.Textures) != 1 {
		t.Fatalf("dirty nodes = %+v", d)
	}
	if d.Textures[0] != tex.ID {
		t.Errorf("texture = %s, want %s", d.Textures[0], tex.ID)
	}
}
