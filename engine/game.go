package engine

import (
	"github.com/spaghettifunk/quartz/engine/platform"
	"github.com/spaghettifunk/quartz/engine/scene"
)

type Game struct {
	ApplicationConfig *ApplicationConfig
	// Set by the engine before FnInitialize. The game populates and animates it.
	Scene        *scene.Scene
	State        interface{}
	FnInitialize Initialize
	FnUpdate     Update
	FnOnResize   OnResize
}

type Initialize func() error
// Input is the zero state when rendering offscreen.
type Update func(deltaTime float64, input platform.InputState) error
type OnResize func(width uint32, height uint32) error
