package renderer

import (
	"github.com/pkg/errors"
	"github.com/spaghettifunk/vkbridge/engine/core"
	"github.com/spaghettifunk/vkbridge/engine/renderer/metadata"
)

// BindingLayoutObjects owns the native objects realized from a binding
// layout: one set layout per descriptor set, an update template per
// non-empty set and a pipeline layout over all sets.
type BindingLayoutObjects struct {
	backend LayoutBackend
	layout  *metadata.BindingLayout

	mapping        map[uint32]metadata.BindingMapping
	bindingOffsets [metadata.DescriptorSetCount]uint32
	setLayouts     [metadata.DescriptorSetCount]interface{}
	setTemplates   [metadata.DescriptorSetCount]interface{}
	pipelineLayout interface{}
	setMask        uint32
}

// NewBindingLayoutObjects realizes layout. No set may hold more than
// maxBindings bindings. Objects created before a failure are destroyed
// again.
func NewBindingLayoutObjects(backend LayoutBackend, layout *metadata.BindingLayout, maxBindings uint32) (*BindingLayoutObjects, error) {
	for set := uint32(0); set < metadata.DescriptorSetCount; set++ {
		if count := layout.BindingCount(set); count > maxBindings {
			return nil, errors.Wrapf(core.ErrTooManyBindings, "set %d has %d bindings, max is %d", set, count, maxBindings)
		}
	}

	o := &BindingLayoutObjects{
		backend: backend,
		layout:  layout,
		mapping: make(map[uint32]metadata.BindingMapping),
	}

	constID := uint32(0)
	for set := uint32(0); set < metadata.DescriptorSetCount; set++ {
		o.bindingOffsets[set] = constID

		count := layout.BindingCount(set)
		bindings := make([]metadata.SetLayoutBinding, count)
		entries := make([]metadata.UpdateTemplateEntry, count)

		for j := uint32(0); j < count; j++ {
			b := layout.Binding(set, j)

			bindings[j] = metadata.SetLayoutBinding{
				Binding:        j,
				DescriptorType: b.DescriptorType,
				StageFlags:     b.Stages,
			}
			entries[j] = metadata.UpdateTemplateEntry{
				DstBinding:     j,
				DescriptorType: b.DescriptorType,
				Offset:         metadata.DescriptorInfoSize * j,
				Stride:         metadata.DescriptorInfoSize,
			}

			// first mapping for a resource slot wins
			if _, ok := o.mapping[b.ResourceBinding]; !ok {
				o.mapping[b.ResourceBinding] = metadata.BindingMapping{
					Set:     set,
					Binding: j,
					ConstID: constID,
				}
			}
			constID++
		}

		setLayout, err := backend.CreateDescriptorSetLayout(bindings)
		if err != nil {
			o.Destroy()
			core.LogError("failed to create descriptor set layout for set %d: %s", set, err)
			return nil, errors.Wrapf(core.ErrLayoutCreation, "descriptor set layout %d: %v", set, err)
		}
		o.setLayouts[set] = setLayout

		if count > 0 {
			template, err := backend.CreateDescriptorUpdateTemplate(UpdateTemplateCreateInfo{
				Entries:   entries,
				SetLayout: setLayout,
			})
			if err != nil {
				o.Destroy()
				core.LogError("failed to create descriptor update template for set %d: %s", set, err)
				return nil, errors.Wrapf(core.ErrLayoutCreation, "descriptor update template %d: %v", set, err)
			}
			o.setTemplates[set] = template
			o.setMask |= 1 << set
		}
	}

	var pushConst *metadata.PushConstantRange
	if r := layout.PushConstantRange(); r.StageFlags != 0 && r.Size != 0 {
		pushConst = &r
	}

	pipelineLayout, err := backend.CreatePipelineLayout(o.setLayouts[:], pushConst)
	if err != nil {
		o.Destroy()
		core.LogError("failed to create pipeline layout: %s", err)
		return nil, errors.Wrapf(core.ErrLayoutCreation, "pipeline layout: %v", err)
	}
	o.pipelineLayout = pipelineLayout

	core.LogDebug("realized binding layout: set mask %03b, %d bindings", o.setMask, constID)
	return o, nil
}

// Destroy releases the pipeline layout before the set objects it refers to.
func (o *BindingLayoutObjects) Destroy() {
	if o.pipelineLayout != nil {
		o.backend.DestroyPipelineLayout(o.pipelineLayout)
		o.pipelineLayout = nil
	}
	for set := range o.setLayouts {
		if o.setLayouts[set] != nil {
			o.backend.DestroyDescriptorSetLayout(o.setLayouts[set])
			o.setLayouts[set] = nil
		}
		if o.setTemplates[set] != nil {
			o.backend.DestroyDescriptorUpdateTemplate(o.setTemplates[set])
			o.setTemplates[set] = nil
		}
	}
	o.setMask = 0
}

func (o *BindingLayoutObjects) Layout() *metadata.BindingLayout {
	return o.layout
}

// SetMask has a bit set for every descriptor set with at least one binding.
func (o *BindingLayoutObjects) SetMask() uint32 {
	return o.setMask
}

// FirstBinding returns the constant id of the first binding in set.
func (o *BindingLayoutObjects) FirstBinding(set uint32) uint32 {
	return o.bindingOffsets[set]
}

func (o *BindingLayoutObjects) SetLayout(set uint32) interface{} {
	return o.setLayouts[set]
}

func (o *BindingLayoutObjects) SetUpdateTemplate(set uint32) interface{} {
	return o.setTemplates[set]
}

func (o *BindingLayoutObjects) PipelineLayout() interface{} {
	return o.pipelineLayout
}

// LookupBinding returns where the resource slot was placed.
func (o *BindingLayoutObjects) LookupBinding(slot uint32) (metadata.BindingMapping, bool) {
	m, ok := o.mapping[slot]
	return m, ok
}

// AccessFlags returns the union of the access flags of all bindings.
func (o *BindingLayoutObjects) AccessFlags() metadata.AccessFlags {
	var flags metadata.AccessFlags
	for set := uint32(0); set < metadata.DescriptorSetCount; set++ {
		for _, b := range o.layout.Bindings(set) {
			flags |= b.Access
		}
	}
	return flags
}
