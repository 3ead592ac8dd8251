package renderer

import "github.com/spaghettifunk/vkbridge/engine/renderer/metadata"

// UpdateTemplateCreateInfo describes a descriptor update template. When
// PipelineLayout is nil the template targets SetLayout directly, otherwise
// it is created for BindPoint/Set of PipelineLayout.
type UpdateTemplateCreateInfo struct {
	Entries        []metadata.UpdateTemplateEntry
	SetLayout      interface{}
	BindPoint      metadata.PipelineBindPoint
	PipelineLayout interface{}
	Set            uint32
}

// LayoutBackend creates the native objects behind binding layouts. Handles
// are opaque to callers and must be destroyed through the same backend.
type LayoutBackend interface {
	CreateDescriptorSetLayout(bindings []metadata.SetLayoutBinding) (interface{}, error)
	DestroyDescriptorSetLayout(layout interface{})
	CreateDescriptorUpdateTemplate(info UpdateTemplateCreateInfo) (interface{}, error)
	DestroyDescriptorUpdateTemplate(template interface{})
	// CreatePipelineLayout creates a pipeline layout over setLayouts.
	// pushConst is nil when no push constants are used.
	CreatePipelineLayout(setLayouts []interface{}, pushConst *metadata.PushConstantRange) (interface{}, error)
	DestroyPipelineLayout(layout interface{})
}

type PipelineBackend interface {
	CreateShaderModule(code []uint32) (interface{}, error)
	DestroyShaderModule(module interface{})
	CreateComputePipeline(module interface{}, layout interface{}) (interface{}, error)
	DestroyPipeline(pipeline interface{})
}

// HostBuffer is a host visible, persistently mapped buffer.
type HostBuffer interface {
	Size() uint64
	Data() []byte
	// InUse reports whether pending GPU work still reads the buffer.
	InUse() bool
	Release()
}

type BufferBackend interface {
	CreateHostBuffer(size uint64) (HostBuffer, error)
}

type DeviceLimits struct {
	MaxUniformBuffersDynamic uint32
	MaxStorageBuffersDynamic uint32
}

type Backend interface {
	LayoutBackend
	PipelineBackend
	BufferBackend
	Limits() DeviceLimits
	Shutdown() error
}
