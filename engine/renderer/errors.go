package renderer

import "github.com/cockroachdb/errors"

var (
	ErrResourceCreation = errors.New("failed to create GPU resource")
	ErrCommandBuffer    = errors.New("failed to record command buffer")
	ErrSubmission       = errors.New("failed to submit frame")
	ErrEmptyUpload      = errors.New("nothing to upload")
	ErrEmptyGeometry    = errors.New("geometry has no triangles")
	ErrNoScene          = errors.New("no scene set")
	ErrPipeline         = errors.New("failed to build pipeline")
	ErrNoFrame          = errors.New("no frame rendered yet")
)
