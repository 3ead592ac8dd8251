//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Compiles the demo compute shader to SPIR-V.
func (Build) Shaders() error {
	return buildShaders()
}

// Builds the demo binary.
func (Build) Binary() error {
	if _, err := executeCmd("go", withArgs("build", "-o", "bin/vkbridge", "."), withStream()); err != nil {
		return err
	}
	return nil
}

func buildShaders() error {
	if _, err := executeCmd("glslc", withArgs("shaders/demo.comp", "-o", "shaders/demo.comp.spv"), withStream()); err != nil {
		return err
	}
	return nil
}
