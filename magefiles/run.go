//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Runs the demo against the in-memory backend.
func (Run) Demo() error {
	fmt.Println("Run demo...")
	if _, err := executeCmd("go", withArgs("run", ".", "-config", "vkbridge.toml", "-backend", "null"), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs the demo on a Vulkan device, compiling the compute shader first.
func (Run) Vulkan() error {
	mg.Deps(Build.Shaders)
	fmt.Println("Run demo on Vulkan...")
	if _, err := executeCmd("go", withArgs("run", ".", "-config", "vkbridge.toml", "-backend", "vulkan", "-compute-spv", "shaders/demo.comp.spv"), withStream()); err != nil {
		return err
	}
	return nil
}
