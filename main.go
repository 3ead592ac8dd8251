/*
Demo driver: builds a few shaders, realizes their layouts and pipelines
through the engine caches, stages some data and prints cache statistics.
*/
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spaghettifunk/vkbridge/engine"
	"github.com/spaghettifunk/vkbridge/engine/config"
	"github.com/spaghettifunk/vkbridge/engine/core"
	"github.com/spaghettifunk/vkbridge/engine/renderer"
	"github.com/spaghettifunk/vkbridge/engine/renderer/metadata"
	"github.com/spaghettifunk/vkbridge/engine/renderer/nullbackend"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML configuration file")
	backendName := flag.String("backend", "null", "device backend: null or vulkan")
	computeSPV := flag.String("compute-spv", "", "SPIR-V binary compiled by the compute pipeline demo")
	wait := flag.Bool("wait", false, "keep running the maintenance loop until interrupted")
	flag.Parse()

	if err := run(*configPath, *backendName, *computeSPV, *wait); err != nil {
		core.LogFatal("%s", err)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func newEngine(cfg *config.Config, backendName string) (*engine.Engine, error) {
	switch backendName {
	case "vulkan":
		return engine.New(cfg)
	case "null":
		return engine.NewWithBackend(cfg, nullbackend.New(renderer.DeviceLimits{
			MaxUniformBuffersDynamic: 8,
			MaxStorageBuffersDynamic: 4,
		}))
	default:
		return nil, errors.Errorf("unknown backend %q", backendName)
	}
}

func run(configPath, backendName, computeSPV string, wait bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	e, err := newEngine(cfg, backendName)
	if err != nil {
		return err
	}
	defer func() {
		if err := e.Shutdown(); err != nil {
			core.LogError("shutdown: %s", err)
		}
	}()

	if configPath != "" {
		if err := e.WatchConfig(configPath); err != nil {
			core.LogWarn("configuration hot reload disabled: %s", err)
		}
	}

	// signal channel to capture system calls
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()
	go func() {
		_ = e.Run(ctx)
	}()

	shaders, err := buildShaders(computeSPV)
	if err != nil {
		return err
	}
	defer func() {
		for _, s := range shaders {
			s.Release()
		}
	}()

	if err := demoPipelines(e, shaders, backendName == "null" || computeSPV != ""); err != nil {
		return err
	}
	if err := demoStaging(e); err != nil {
		return err
	}

	stats := e.Pipelines().Stats()
	core.LogInfo("layouts: %+v", stats.Layouts)
	core.LogInfo("graphics pipelines: %+v", stats.Graphics)
	core.LogInfo("compute pipelines: %+v", stats.Compute)
	core.LogInfo("average build time: %.3f ms", stats.AvgBuildMS)

	if wait {
		core.LogInfo("waiting for interrupt...")
		<-ctx.Done()
	}
	return nil
}

func buildShaders(computeSPV string) ([]*metadata.Shader, error) {
	// SPIR-V magic number only, enough for the null backend.
	code := []uint32{0x07230203}
	computeCode := code
	if computeSPV != "" {
		var err error
		if computeCode, err = readSPIRV(computeSPV); err != nil {
			return nil, err
		}
	}

	vertex, err := metadata.NewShader(metadata.ShaderCreateInfo{
		Name:  "demo.vert",
		Stage: metadata.ShaderStageVertex,
		Code:  code,
		Bindings: []metadata.BindingInfo{
			{DescriptorType: metadata.DescriptorTypeUniformBuffer, ResourceBinding: 0, ViewType: metadata.ImageViewTypeNone, Access: metadata.AccessUniformRead},
		},
		Slots: []metadata.ResourceSlot{
			{Slot: 0, Type: metadata.DescriptorTypeUniformBuffer, View: metadata.ImageViewTypeNone, Access: metadata.AccessUniformRead},
		},
		PushConstOffset: 0,
		PushConstSize:   16,
	})
	if err != nil {
		return nil, err
	}
	fragment, err := metadata.NewShader(metadata.ShaderCreateInfo{
		Name:  "demo.frag",
		Stage: metadata.ShaderStageFragment,
		Code:  code,
		Bindings: []metadata.BindingInfo{
			{DescriptorType: metadata.DescriptorTypeUniformBuffer, ResourceBinding: 0, ViewType: metadata.ImageViewTypeNone, Access: metadata.AccessUniformRead},
			{DescriptorType: metadata.DescriptorTypeSampledImage, ResourceBinding: 1, ViewType: metadata.ImageViewType2D, Access: metadata.AccessShaderRead},
			{DescriptorType: metadata.DescriptorTypeSampler, ResourceBinding: 2, ViewType: metadata.ImageViewTypeNone},
		},
		Slots: []metadata.ResourceSlot{
			{Slot: 0, Type: metadata.DescriptorTypeUniformBuffer, View: metadata.ImageViewTypeNone, Access: metadata.AccessUniformRead},
			{Slot: 1, Type: metadata.DescriptorTypeSampledImage, View: metadata.ImageViewType2D, Access: metadata.AccessShaderRead},
			{Slot: 2, Type: metadata.DescriptorTypeSampler, View: metadata.ImageViewTypeNone},
		},
		PushConstOffset: 16,
		PushConstSize:   16,
	})
	if err != nil {
		vertex.Release()
		return nil, err
	}
	compute, err := metadata.NewShader(metadata.ShaderCreateInfo{
		Name:  "demo.comp",
		Stage: metadata.ShaderStageCompute,
		Code:  computeCode,
		Bindings: []metadata.BindingInfo{
			{DescriptorType: metadata.DescriptorTypeStorageBuffer, ResourceBinding: 0, ViewType: metadata.ImageViewTypeNone, Access: metadata.AccessShaderRead | metadata.AccessShaderWrite},
			{DescriptorType: metadata.DescriptorTypeStorageImage, ResourceBinding: 1, ViewType: metadata.ImageViewType2D, Access: metadata.AccessShaderWrite},
		},
	})
	if err != nil {
		vertex.Release()
		fragment.Release()
		return nil, err
	}
	return []*metadata.Shader{vertex, fragment, compute}, nil
}

func readSPIRV(path string) ([]uint32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data)%4 != 0 {
		return nil, errors.Errorf("%s: SPIR-V size %d is not a multiple of 4", path, len(data))
	}
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	return words, nil
}

func demoPipelines(e *engine.Engine, shaders []*metadata.Shader, compile bool) error {
	vs, fs, cs := shaders[0], shaders[1], shaders[2]
	pipelines := e.Pipelines()

	graphics := renderer.GraphicsPipelineShaders{VS: vs, FS: fs}
	for i := 0; i < 2; i++ {
		p, err := pipelines.CreateGraphicsPipeline(graphics)
		if err != nil {
			return err
		}
		layout := p.Layout()
		core.LogInfo("graphics pipeline %p: set mask %03b, storage descriptors %t", p, layout.SetMask(), p.HasStorageDescriptors())
		for slot := uint32(0); slot < 3; slot++ {
			if m, ok := layout.LookupBinding(slot); ok {
				core.LogInfo("  slot %d -> set %d binding %d (constant %d)", slot, m.Set, m.Binding, m.ConstID)
			}
		}
	}

	compute := renderer.ComputePipelineShaders{CS: cs}
	for i := 0; i < 2; i++ {
		p, err := pipelines.CreateComputePipeline(compute)
		if err != nil {
			return err
		}
		core.LogInfo("compute pipeline %p: set mask %03b, access %#x", p, p.Layout().SetMask(), p.Layout().AccessFlags())
		if compile {
			if _, err := p.Handle(); err != nil {
				return err
			}
		}
	}

	// The single set path used by slot based front-ends.
	mapping := metadata.NewDescriptorSlotMapping()
	for _, s := range shaders[:2] {
		s.DefineResourceSlots(mapping)
	}
	mapping.DefineSlot(metadata.ShaderStageVertex, metadata.ResourceSlot{Slot: 10, Type: metadata.DescriptorTypeUniformBuffer, View: metadata.ImageViewTypeNone, Access: metadata.AccessUniformRead})
	mapping.DefinePushConstRange(metadata.ShaderStageVertex, 0, 32)
	legacy, err := pipelines.CreateSlotPipelineLayout(mapping, metadata.PipelineBindPointGraphics)
	if err != nil {
		return err
	}
	core.LogInfo("slot pipeline layout: %d bindings, %d dynamic", legacy.BindingCount(), legacy.DynamicBindingCount())

	count := pipelines.PipelineCount()
	core.LogInfo("pipelines: %d graphics, %d compute", count.NumGraphicsPipelines, count.NumComputePipelines)
	return nil
}

func demoStaging(e *engine.Engine) error {
	payload := []byte("vertex data")
	for i := 0; i < 4; i++ {
		slice, err := e.AllocStaging(256, uint64(len(payload)))
		if err != nil {
			return err
		}
		copy(slice.Data(), payload)
		core.LogInfo("staging slice %d: offset %d, %d bytes", i, slice.Offset(), slice.Length())
	}
	core.LogInfo("staging pool holds %d buffers", e.StagingBufferCount())
	return nil
}
