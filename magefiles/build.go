//go:build mage

package main

import (
	"path/filepath"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

const shaderDir = "assets/shaders"

// Compiles every GLSL stage under assets/shaders to SPIR-V next to its source.
func (Build) Shaders() error {
	return buildShaders()
}

// Builds the testbed binary into bin/.
func (Build) Binary() error {
	mg.Deps(Build.Shaders)
	return runV("go", "build", "-o", "bin/prism", ".")
}

func buildShaders() error {
	var sources []string
	for _, ext := range []string{"vert", "frag"} {
		matches, err := filepath.Glob(filepath.Join(shaderDir, "*."+ext))
		if err != nil {
			return err
		}
		sources = append(sources, matches...)
	}
	for _, src := range sources {
		// lit.vert becomes lit.vert.spv, loaded as shader `lit.vert`.
		out := src + ".spv"
		if err := runV("glslc", src, "-o", out); err != nil {
			return err
		}
	}
	return nil
}
