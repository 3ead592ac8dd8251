package renderer

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/spaghettifunk/vkbridge/engine/core"
	"github.com/spaghettifunk/vkbridge/engine/renderer/metadata"
)

func shaderHash(s *metadata.Shader) uint64 {
	if s == nil {
		return 0
	}
	return uint64(s.ID) + 1
}

// GraphicsPipelineShaders is the set of shaders bound to the graphics
// stages. Any field but VS may be nil. Shaders compare by identity.
type GraphicsPipelineShaders struct {
	VS  *metadata.Shader
	TCS *metadata.Shader
	TES *metadata.Shader
	GS  *metadata.Shader
	FS  *metadata.Shader
}

func (s GraphicsPipelineShaders) Eq(other GraphicsPipelineShaders) bool {
	return s == other
}

func (s GraphicsPipelineShaders) Hash() uint64 {
	var h metadata.HashState
	h.Add(shaderHash(s.VS))
	h.Add(shaderHash(s.TCS))
	h.Add(shaderHash(s.TES))
	h.Add(shaderHash(s.GS))
	h.Add(shaderHash(s.FS))
	return h.Sum()
}

// Stages lists the present shaders in pipeline order.
func (s GraphicsPipelineShaders) Stages() []*metadata.Shader {
	var out []*metadata.Shader
	for _, sh := range []*metadata.Shader{s.VS, s.TCS, s.TES, s.GS, s.FS} {
		if sh != nil {
			out = append(out, sh)
		}
	}
	return out
}

type ComputePipelineShaders struct {
	CS *metadata.Shader
}

func (s ComputePipelineShaders) Eq(other ComputePipelineShaders) bool {
	return s == other
}

func (s ComputePipelineShaders) Hash() uint64 {
	var h metadata.HashState
	h.Add(shaderHash(s.CS))
	return h.Sum()
}

type PipelineFlags uint32

const (
	// PipelineFlagHasStorageDescriptors is set when any binding of the
	// pipeline is written by a shader.
	PipelineFlagHasStorageDescriptors PipelineFlags = 1 << iota
)

func pipelineFlags(layout *BindingLayoutObjects) PipelineFlags {
	var flags PipelineFlags
	if layout.AccessFlags()&metadata.AccessShaderWrite != 0 {
		flags |= PipelineFlagHasStorageDescriptors
	}
	return flags
}

// GraphicsPipeline ties a shader combination to its realized layout.
// Variants for concrete render state are compiled elsewhere.
type GraphicsPipeline struct {
	shaders GraphicsPipelineShaders
	layout  *BindingLayoutObjects
	flags   PipelineFlags
}

func newGraphicsPipeline(shaders GraphicsPipelineShaders, layout *BindingLayoutObjects) GraphicsPipeline {
	return GraphicsPipeline{
		shaders: shaders,
		layout:  layout,
		flags:   pipelineFlags(layout),
	}
}

func (p *GraphicsPipeline) Shaders() GraphicsPipelineShaders {
	return p.shaders
}

func (p *GraphicsPipeline) Layout() *BindingLayoutObjects {
	return p.layout
}

func (p *GraphicsPipeline) Flags() PipelineFlags {
	return p.flags
}

func (p *GraphicsPipeline) HasStorageDescriptors() bool {
	return p.flags&PipelineFlagHasStorageDescriptors != 0
}

// ComputePipeline ties a compute shader to its realized layout. The native
// pipeline is compiled on first use.
type ComputePipeline struct {
	backend PipelineBackend
	shaders ComputePipelineShaders
	layout  *BindingLayoutObjects
	flags   PipelineFlags

	once   *sync.Once
	handle interface{}
	err    error
}

func newComputePipeline(backend PipelineBackend, shaders ComputePipelineShaders, layout *BindingLayoutObjects) ComputePipeline {
	return ComputePipeline{
		backend: backend,
		shaders: shaders,
		layout:  layout,
		flags:   pipelineFlags(layout),
		once:    &sync.Once{},
	}
}

func (p *ComputePipeline) Shaders() ComputePipelineShaders {
	return p.shaders
}

func (p *ComputePipeline) Layout() *BindingLayoutObjects {
	return p.layout
}

func (p *ComputePipeline) Flags() PipelineFlags {
	return p.flags
}

func (p *ComputePipeline) HasStorageDescriptors() bool {
	return p.flags&PipelineFlagHasStorageDescriptors != 0
}

// Handle returns the native pipeline, compiling it on the first call. A
// failed compilation is not retried.
func (p *ComputePipeline) Handle() (interface{}, error) {
	p.once.Do(func() {
		p.handle, p.err = p.compile()
	})
	return p.handle, p.err
}

func (p *ComputePipeline) compile() (interface{}, error) {
	cs := p.shaders.CS
	module, err := p.backend.CreateShaderModule(cs.Code)
	if err != nil {
		core.LogError("failed to create shader module for '%s': %s", cs.Name, err)
		return nil, errors.Wrapf(core.ErrPipelineCreation, "shader module '%s': %v", cs.Name, err)
	}
	defer p.backend.DestroyShaderModule(module)

	pipeline, err := p.backend.CreateComputePipeline(module, p.layout.PipelineLayout())
	if err != nil {
		core.LogError("failed to compile compute pipeline '%s': %s", cs.Name, err)
		return nil, errors.Wrapf(core.ErrPipelineCreation, "compute pipeline '%s': %v", cs.Name, err)
	}
	core.LogDebug("compiled compute pipeline '%s'", cs.Name)
	return pipeline, nil
}

func (p *ComputePipeline) destroy() {
	if p.handle != nil {
		p.backend.DestroyPipeline(p.handle)
		p.handle = nil
	}
}
