//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Compiles the shaders and runs the testbed with quartz.toml.
func (Run) Quartz() error {
	if err := buildShaders(); err != nil {
		return err
	}
	fmt.Println("Run quartz...")
	if _, err := executeCmd("go", withArgs("run", ".", "quartz.toml"), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs the testbed with the configuration given in $QUARTZ_CONFIG.
func (Run) Config() error {
	mg.Deps(Build.Shaders)
	path := envOr("QUARTZ_CONFIG", "quartz.toml")
	if _, err := executeCmd("go", withArgs("run", ".", path), withStream()); err != nil {
		return err
	}
	return nil
}
