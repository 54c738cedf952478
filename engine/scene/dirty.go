package scene

import (
	"strings"

	"github.com/spaghettifunk/quartz/engine/core"
)

type DirtyFlags uint32

const (
	DirtyEntity DirtyFlags = 1 << iota
	DirtyTransform
	DirtyGeometry
	DirtyMaterial
	DirtyTexture
	DirtyCamera
	DirtyLights
	DirtyRenderSettings

	DirtyNone DirtyFlags = 0
	DirtyAll             = DirtyEntity | DirtyTransform | DirtyGeometry | DirtyMaterial | DirtyTexture |
		DirtyCamera | DirtyLights | DirtyRenderSettings
)

var dirtyFlagNames = []string{"entity", "transform", "geometry", "material", "texture", "camera", "lights", "render_settings"}

func (f DirtyFlags) Has(flags DirtyFlags) bool {
	return f&flags != 0
}

func (f DirtyFlags) String() string {
	if f == DirtyNone {
		return "none"
	}
	var names []string
	for i, name := range dirtyFlagNames {
		if f&(1<<i) != 0 {
			names = append(names, name)
		}
	}
	return strings.Join(names, "|")
}

/** @brief Dirty flags of one frame plus the nodes whose payload changed. */
type DirtySet struct {
	Flags     DirtyFlags
	Geometry  []core.NodeID
	Materials []core.NodeID
	Textures  []core.NodeID
}

func (d DirtySet) IsEmpty() bool {
	return d.Flags == DirtyNone
}

// dirtyTracker records changes until they are taken once per frame.
type dirtyTracker struct {
	flags     DirtyFlags
	geometry  orderedIDs
	materials orderedIDs
	textures  orderedIDs
}

type orderedIDs struct {
	ids  []core.NodeID
	seen map[core.NodeID]struct{}
}

func (o *orderedIDs) add(id core.NodeID) {
	if o.seen == nil {
		o.seen = make(map[core.NodeID]struct{})
	}
	if _, ok := o.seen[id]; ok {
		return
	}
	o.seen[id] = struct{}{}
	o.ids = append(o.ids, id)
}

func (o *orderedIDs) take() []core.NodeID {
	ids := o.ids
	o.ids = nil
	o.seen = nil
	return ids
}

func (t *dirtyTracker) take() DirtySet {
	set := DirtySet{
		Flags:     t.flags,
		Geometry:  t.geometry.take(),
		Materials: t.materials.take(),
		Textures:  t.textures.take(),
	}
	t.flags = DirtyNone
	return set
}
