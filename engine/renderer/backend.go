package renderer

import "github.com/spaghettifunk/quartz/engine/scene"

// RendererBackend is the frame loop contract the engine drives.
type RendererBackend interface {
	Initialize() error
	Shutdown() error
	IsInitialized() bool
	Resized(width, height uint32) error
	SetScene(s *scene.Scene)
	BeginFrame() error
	EndFrame() error
	DrawFrame() error
	GrabImage() (*ImageData, error)
	Statistics() Statistics
}

var _ RendererBackend = (*Renderer)(nil)
