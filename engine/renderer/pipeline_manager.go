package renderer

import (
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/spaghettifunk/vkbridge/engine/containers"
	"github.com/spaghettifunk/vkbridge/engine/core"
	"github.com/spaghettifunk/vkbridge/engine/renderer/metadata"
)

type PipelineManagerConfig struct {
	// MaxActiveBindings caps the bindings of a single descriptor set.
	MaxActiveBindings        uint32
	MaxUniformBuffersDynamic uint32
	MaxStorageBuffersDynamic uint32
}

type PipelineCount struct {
	NumGraphicsPipelines uint32
	NumComputePipelines  uint32
}

type PipelineManagerStats struct {
	Layouts     containers.CacheStats
	SlotLayouts containers.CacheStats
	Graphics    containers.CacheStats
	Compute     containers.CacheStats
	// AvgBuildMS is the rolling average time spent building objects on
	// cache misses.
	AvgBuildMS float64
}

type slotLayoutKey struct {
	mapping   *metadata.DescriptorSlotMapping
	bindPoint metadata.PipelineBindPoint
}

func (k slotLayoutKey) Eq(other slotLayoutKey) bool {
	return k.bindPoint == other.bindPoint && k.mapping.Eq(other.mapping)
}

func (k slotLayoutKey) Hash() uint64 {
	h := metadata.HashState(k.mapping.Hash())
	h.Add(uint64(k.bindPoint))
	return h.Sum()
}

type pipelineBackend interface {
	LayoutBackend
	PipelineBackend
}

// PipelineManager deduplicates realized layouts and pipelines for one
// device. Every cache has its own lock; a pipeline miss resolves its
// layout from the layout cache while holding the pipeline cache lock.
type PipelineManager struct {
	backend pipelineBackend
	config  PipelineManagerConfig
	metrics *core.Metrics

	layouts     *containers.ObjectCache[*metadata.BindingLayout, *BindingLayoutObjects]
	slotLayouts *containers.ObjectCache[slotLayoutKey, *PipelineLayout]
	graphics    *containers.ObjectCache[GraphicsPipelineShaders, GraphicsPipeline]
	compute     *containers.ObjectCache[ComputePipelineShaders, ComputePipeline]

	numGraphicsPipelines atomic.Uint32
	numComputePipelines  atomic.Uint32
}

func NewPipelineManager(backend pipelineBackend, config PipelineManagerConfig) *PipelineManager {
	if config.MaxActiveBindings == 0 {
		config.MaxActiveBindings = MaxNumActiveBindings
	}
	return &PipelineManager{
		backend:     backend,
		config:      config,
		metrics:     core.NewMetrics(),
		layouts:     containers.NewObjectCache[*metadata.BindingLayout, *BindingLayoutObjects](),
		slotLayouts: containers.NewObjectCache[slotLayoutKey, *PipelineLayout](),
		graphics:    containers.NewObjectCache[GraphicsPipelineShaders, GraphicsPipeline](),
		compute:     containers.NewObjectCache[ComputePipelineShaders, ComputePipeline](),
	}
}

// CreateGraphicsPipeline returns the pipeline for shaders, or nil when no
// vertex shader is bound.
func (m *PipelineManager) CreateGraphicsPipeline(shaders GraphicsPipelineShaders) (*GraphicsPipeline, error) {
	if shaders.VS == nil {
		return nil, nil
	}

	return m.graphics.GetOrCreate(shaders, func(shaders GraphicsPipelineShaders) (GraphicsPipeline, error) {
		start := time.Now()

		merged := metadata.NewBindingLayout()
		for _, s := range shaders.Stages() {
			merged.Merge(s.Bindings())
		}

		layout, err := m.CreatePipelineLayout(merged)
		if err != nil {
			return GraphicsPipeline{}, errors.Wrapf(err, "graphics pipeline '%s'", shaders.VS.Name)
		}

		m.numGraphicsPipelines.Add(1)
		m.recordBuild("graphics pipeline", start)
		return newGraphicsPipeline(shaders, layout), nil
	})
}

// CreateComputePipeline returns the pipeline for shaders, or nil when no
// compute shader is bound.
func (m *PipelineManager) CreateComputePipeline(shaders ComputePipelineShaders) (*ComputePipeline, error) {
	if shaders.CS == nil {
		return nil, nil
	}

	return m.compute.GetOrCreate(shaders, func(shaders ComputePipelineShaders) (ComputePipeline, error) {
		start := time.Now()

		layout, err := m.CreatePipelineLayout(shaders.CS.Bindings())
		if err != nil {
			return ComputePipeline{}, errors.Wrapf(err, "compute pipeline '%s'", shaders.CS.Name)
		}

		m.numComputePipelines.Add(1)
		m.recordBuild("compute pipeline", start)
		return newComputePipeline(m.backend, shaders, layout), nil
	})
}

// CreatePipelineLayout returns the realized objects for layout. The
// layout must not be modified afterwards since it becomes the cache key.
func (m *PipelineManager) CreatePipelineLayout(layout *metadata.BindingLayout) (*BindingLayoutObjects, error) {
	objects, err := m.layouts.GetOrCreate(layout, func(layout *metadata.BindingLayout) (*BindingLayoutObjects, error) {
		start := time.Now()
		o, err := NewBindingLayoutObjects(m.backend, layout, m.config.MaxActiveBindings)
		if err != nil {
			return nil, err
		}
		m.recordBuild("binding layout", start)
		return o, nil
	})
	if err != nil {
		return nil, err
	}
	return *objects, nil
}

// CreateSlotPipelineLayout promotes uniform buffers of a copy of mapping to
// dynamic ones where the device allows it and returns the single-set
// layout for the result.
func (m *PipelineManager) CreateSlotPipelineLayout(mapping *metadata.DescriptorSlotMapping, bindPoint metadata.PipelineBindPoint) (*PipelineLayout, error) {
	key := slotLayoutKey{mapping: mapping.Clone(), bindPoint: bindPoint}
	key.mapping.MakeDescriptorsDynamic(m.config.MaxUniformBuffersDynamic, m.config.MaxStorageBuffersDynamic)

	layout, err := m.slotLayouts.GetOrCreate(key, func(key slotLayoutKey) (*PipelineLayout, error) {
		start := time.Now()
		l, err := NewPipelineLayout(m.backend, key.mapping, key.bindPoint, m.config.MaxActiveBindings)
		if err != nil {
			return nil, err
		}
		m.recordBuild("slot pipeline layout", start)
		return l, nil
	})
	if err != nil {
		return nil, err
	}
	return *layout, nil
}

func (m *PipelineManager) recordBuild(what string, start time.Time) {
	elapsed := time.Since(start)
	m.metrics.Update(elapsed)
	core.LogDebug("cache miss: built %s in %s", what, elapsed)
}

func (m *PipelineManager) PipelineCount() PipelineCount {
	return PipelineCount{
		NumGraphicsPipelines: m.numGraphicsPipelines.Load(),
		NumComputePipelines:  m.numComputePipelines.Load(),
	}
}

func (m *PipelineManager) Stats() PipelineManagerStats {
	return PipelineManagerStats{
		Layouts:     m.layouts.Stats(),
		SlotLayouts: m.slotLayouts.Stats(),
		Graphics:    m.graphics.Stats(),
		Compute:     m.compute.Stats(),
		AvgBuildMS:  m.metrics.AverageMS(),
	}
}

// Destroy releases every cached object. Pipelines go first since they
// reference layouts. Previously returned pointers become invalid.
func (m *PipelineManager) Destroy() {
	m.compute.Clear(func(_ ComputePipelineShaders, p *ComputePipeline) {
		p.destroy()
	})
	m.graphics.Clear(nil)
	m.layouts.Clear(func(_ *metadata.BindingLayout, o **BindingLayoutObjects) {
		(*o).Destroy()
	})
	m.slotLayouts.Clear(func(_ slotLayoutKey, l **PipelineLayout) {
		(*l).Destroy()
	})
	m.numGraphicsPipelines.Store(0)
	m.numComputePipelines.Store(0)
}
