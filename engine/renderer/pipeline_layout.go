package renderer

import (
	"github.com/pkg/errors"
	"github.com/spaghettifunk/vkbridge/engine/core"
	"github.com/spaghettifunk/vkbridge/engine/renderer/metadata"
)

// MaxNumActiveBindings is the default binding capacity of a single-set
// pipeline layout.
const MaxNumActiveBindings uint32 = 128

// PipelineLayout is the single descriptor set variant of
// BindingLayoutObjects, built from a DescriptorSlotMapping.
type PipelineLayout struct {
	backend LayoutBackend

	pushConstRange  metadata.PushConstantRange
	bindingSlots    []metadata.DescriptorSlot
	dynamicSlots    []uint32
	descriptorTypes uint32

	descriptorSetLayout interface{}
	pipelineLayout      interface{}
	descriptorTemplate  interface{}
}

func NewPipelineLayout(backend LayoutBackend, mapping *metadata.DescriptorSlotMapping, bindPoint metadata.PipelineBindPoint, maxBindings uint32) (*PipelineLayout, error) {
	bindingCount := mapping.BindingCount()
	if bindingCount > maxBindings {
		return nil, errors.Wrapf(core.ErrTooManyBindings, "pipeline layout has %d bindings, max is %d", bindingCount, maxBindings)
	}

	l := &PipelineLayout{
		backend:        backend,
		pushConstRange: mapping.PushConstRange(),
		bindingSlots:   append([]metadata.DescriptorSlot(nil), mapping.BindingInfos()...),
	}

	bindings := make([]metadata.SetLayoutBinding, bindingCount)
	entries := make([]metadata.UpdateTemplateEntry, bindingCount)

	for i, slot := range l.bindingSlots {
		bindings[i] = metadata.SetLayoutBinding{
			Binding:        uint32(i),
			DescriptorType: slot.Type,
			StageFlags:     slot.Stages,
		}
		entries[i] = metadata.UpdateTemplateEntry{
			DstBinding:     uint32(i),
			DescriptorType: slot.Type,
			Offset:         metadata.DescriptorInfoSize * uint32(i),
			Stride:         0,
		}

		if slot.Type == metadata.DescriptorTypeUniformBufferDynamic {
			l.dynamicSlots = append(l.dynamicSlots, uint32(i))
		}
		l.descriptorTypes |= 1 << slot.Type
	}

	// No set layout is needed without bindings.
	var setLayouts []interface{}
	if bindingCount > 0 {
		setLayout, err := backend.CreateDescriptorSetLayout(bindings)
		if err != nil {
			core.LogError("failed to create descriptor set layout: %s", err)
			return nil, errors.Wrapf(core.ErrLayoutCreation, "descriptor set layout: %v", err)
		}
		l.descriptorSetLayout = setLayout
		setLayouts = []interface{}{setLayout}
	}

	var pushConst *metadata.PushConstantRange
	if l.pushConstRange.Size != 0 {
		r := l.pushConstRange
		pushConst = &r
	}

	pipelineLayout, err := backend.CreatePipelineLayout(setLayouts, pushConst)
	if err != nil {
		l.Destroy()
		core.LogError("failed to create pipeline layout: %s", err)
		return nil, errors.Wrapf(core.ErrLayoutCreation, "pipeline layout: %v", err)
	}
	l.pipelineLayout = pipelineLayout

	if bindingCount > 0 {
		template, err := backend.CreateDescriptorUpdateTemplate(UpdateTemplateCreateInfo{
			Entries:        entries,
			SetLayout:      l.descriptorSetLayout,
			BindPoint:      bindPoint,
			PipelineLayout: l.pipelineLayout,
			Set:            0,
		})
		if err != nil {
			l.Destroy()
			core.LogError("failed to create descriptor update template: %s", err)
			return nil, errors.Wrapf(core.ErrLayoutCreation, "descriptor update template: %v", err)
		}
		l.descriptorTemplate = template
	}

	return l, nil
}

func (l *PipelineLayout) Destroy() {
	if l.descriptorTemplate != nil {
		l.backend.DestroyDescriptorUpdateTemplate(l.descriptorTemplate)
		l.descriptorTemplate = nil
	}
	if l.pipelineLayout != nil {
		l.backend.DestroyPipelineLayout(l.pipelineLayout)
		l.pipelineLayout = nil
	}
	if l.descriptorSetLayout != nil {
		l.backend.DestroyDescriptorSetLayout(l.descriptorSetLayout)
		l.descriptorSetLayout = nil
	}
}

func (l *PipelineLayout) BindingCount() uint32 {
	return uint32(len(l.bindingSlots))
}

func (l *PipelineLayout) Binding(id uint32) metadata.DescriptorSlot {
	return l.bindingSlots[id]
}

func (l *PipelineLayout) Bindings() []metadata.DescriptorSlot {
	return l.bindingSlots
}

func (l *PipelineLayout) PushConstRange() metadata.PushConstantRange {
	return l.pushConstRange
}

func (l *PipelineLayout) DescriptorSetLayout() interface{} {
	return l.descriptorSetLayout
}

func (l *PipelineLayout) PipelineLayout() interface{} {
	return l.pipelineLayout
}

func (l *PipelineLayout) DescriptorTemplate() interface{} {
	return l.descriptorTemplate
}

// DynamicBindingCount returns the number of dynamic uniform buffers.
func (l *PipelineLayout) DynamicBindingCount() uint32 {
	return uint32(len(l.dynamicSlots))
}

// DynamicBinding returns the id-th dynamic uniform buffer binding, in
// binding order.
func (l *PipelineLayout) DynamicBinding(id uint32) metadata.DescriptorSlot {
	return l.bindingSlots[l.dynamicSlots[id]]
}

func (l *PipelineLayout) UsesDescriptorType(t metadata.DescriptorType) bool {
	return l.descriptorTypes&(1<<t) != 0
}

// HasStaticBufferBindings reports whether any uniform buffer was left
// without a dynamic offset.
func (l *PipelineLayout) HasStaticBufferBindings() bool {
	return l.UsesDescriptorType(metadata.DescriptorTypeUniformBuffer)
}

// StorageDescriptorStages returns the stages that write to any binding.
// Storage resources are assumed to be written when present.
func (l *PipelineLayout) StorageDescriptorStages() metadata.ShaderStageFlags {
	var stages metadata.ShaderStageFlags
	for _, slot := range l.bindingSlots {
		if slot.Access&metadata.AccessShaderWrite != 0 {
			stages |= slot.Stages
		}
	}
	return stages
}
