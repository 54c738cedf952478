//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

const shaderDir = "shaders"

// Shader stages compiled to SPIR-V. The .spv.toml reflection sidecars live next to the sources.
var shaderStages = []string{".rgen", ".rmiss", ".rchit", ".vert", ".frag"}

// Compiles every shader stage in shaders/ to SPIR-V.
func (Build) Shaders() error {
	return buildShaders()
}

// Builds the quartz binary into bin/.
func (Build) Quartz() error {
	mg.Deps(Build.Shaders)
	if _, err := executeCmd("go", withArgs("build", "-o", filepath.Join("bin", "quartz"), "."), withStream()); err != nil {
		return err
	}
	return nil
}

// Tidies the module.
func (Build) Deps() error {
	return goTidy()
}

// Runs every test of the module.
func Test() error {
	if _, err := executeCmd("go", withArgs("test", "./..."), withStream()); err != nil {
		return err
	}
	return nil
}

func buildShaders() error {
	entries, err := os.ReadDir(shaderDir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", shaderDir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !isShaderStage(entry.Name()) {
			continue
		}
		src := filepath.Join(shaderDir, entry.Name())
		// common.glsl is included, never compiled on its own
		if _, err := executeCmd("glslc", withArgs("--target-env=vulkan1.2", "-I", shaderDir, src, "-o", src+".spv"), withStream()); err != nil {
			return err
		}
	}
	return nil
}

func isShaderStage(name string) bool {
	ext := filepath.Ext(name)
	for _, stage := range shaderStages {
		if ext == stage {
			return true
		}
	}
	return false
}
