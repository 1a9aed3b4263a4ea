//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

type Run mg.Namespace

// Compiles the shaders and runs the testbed with assets/prism.toml.
func (Run) Engine() error {
	if err := buildShaders(); err != nil {
		return err
	}
	fmt.Println("Run engine...")
	return runV("go", "run", ".", "-config", "assets/prism.toml")
}

// Runs the unit tests of every package.
func Test() error {
	return runV("go", "test", "./engine/...")
}

// Runs go mod tidy.
func Tidy() error {
	if err := sh.Run("go", "mod", "tidy"); err != nil {
		return fmt.Errorf("failed to run go mod tidy: %w", err)
	}
	return nil
}
