package renderer

import (
	"fmt"

	"github.com/spaghettifunk/quartz/engine/core"
	"github.com/spaghettifunk/quartz/engine/scene"
	"github.com/spaghettifunk/quartz/engine/systems"
)

const (
	JobBuildGeometry          = "BuildGeometry"
	JobBuildTLAS              = "BuildTLAS"
	JobUpdateInstances        = "UpdateInstances"
	JobUpdateMaterials        = "UpdateMaterials"
	JobUploadTexture          = "UploadTexture"
	JobUpdateEmitters         = "UpdateEmitters"
	JobUpdateRenderParameters = "UpdateRenderParameters"
)

func jobName(name string, id core.NodeID) string {
	return fmt.Sprintf("%s(%s)", name, id)
}

/**
 * @brief Turns the dirty state of one frame into a job graph. A job only waits for the jobs
 * whose outputs it reads, so unrelated work runs in parallel.
 * @param dirty The changes taken from the scene this frame.
 * @return An empty graph when nothing changed.
 */
func (r *Renderer) PlanJobs(dirty scene.DirtySet) *systems.JobGraph {
	g := systems.NewJobGraph()
	flags := dirty.Flags

	var geometryJobs []*systems.Job
	for _, id := range dirty.Geometry {
		geometryJobs = append(geometryJobs, g.Add(jobName(JobBuildGeometry, id), func() error {
			return r.buildGeometry(id)
		}))
	}
	var textureJobs []*systems.Job
	for _, id := range dirty.Textures {
		textureJobs = append(textureJobs, g.Add(jobName(JobUploadTexture, id), func() error {
			return r.uploadTexture(id)
		}))
	}

	var tlas *systems.Job
	if flags.Has(scene.DirtyGeometry | scene.DirtyEntity | scene.DirtyTransform) {
		tlas = g.Add(JobBuildTLAS, r.buildTLAS, geometryJobs...)
	}

	var materials *systems.Job
	if flags.Has(scene.DirtyTexture | scene.DirtyMaterial) {
		ids := r.dirtyMaterials(dirty)
		materials = g.Add(JobUpdateMaterials, func() error {
			return r.updateMaterials(ids)
		}, textureJobs...)
	}

	var instances *systems.Job
	if flags.Has(scene.DirtyGeometry | scene.DirtyEntity | scene.DirtyTransform | scene.DirtyMaterial) {
		instances = g.Add(JobUpdateInstances, r.updateInstances, tlas, materials)
	}

	if flags.Has(scene.DirtyEntity | scene.DirtyTransform | scene.DirtyMaterial | scene.DirtyLights | scene.DirtyRenderSettings) {
		g.Add(JobUpdateEmitters, r.updateEmitters, instances, materials)
	}

	if flags.Has(scene.DirtyRenderSettings | scene.DirtyCamera) {
		g.Add(JobUpdateRenderParameters, r.updateRenderParameters)
	}
	return g
}

// dirtyMaterials adds the materials of every renderable when textures changed, since their texture indices may have moved.
func (r *Renderer) dirtyMaterials(dirty scene.DirtySet) []core.NodeID {
	ids := append([]core.NodeID(nil), dirty.Materials...)
	if !dirty.Flags.Has(scene.DirtyTexture) {
		return ids
	}
	seen := make(map[core.NodeID]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	for _, e := range r.sceneManager.Renderables() {
		if e.Material.IsNull() {
			continue
		}
		if _, ok := seen[e.Material]; ok {
			continue
		}
		seen[e.Material] = struct{}{}
		ids = append(ids, e.Material)
	}
	return ids
}
