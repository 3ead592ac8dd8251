//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Test mg.Namespace

// Runs every unit test with the race detector.
func (Test) Unit() error {
	if _, err := executeCmd("go", withArgs("test", "-race", "./..."), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs the tests that need no Vulkan driver.
func (Test) Headless() error {
	packages := []string{
		"./engine/core/...",
		"./engine/containers/...",
		"./engine/config/...",
		"./engine/renderer",
		"./engine/renderer/metadata/...",
		"./engine/renderer/nullbackend/...",
	}
	args := append([]string{"test", "-race"}, packages...)
	if _, err := executeCmd("go", withArgs(args...), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs go vet over the module.
func (Test) Vet() error {
	if _, err := executeCmd("go", withArgs("vet", "./..."), withStream()); err != nil {
		return err
	}
	return nil
}
