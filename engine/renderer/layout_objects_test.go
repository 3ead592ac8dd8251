package renderer_test

import (
	"errors"
	"testing"

	"github.com/spaghettifunk/vkbridge/engine/core"
	"github.com/spaghettifunk/vkbridge/engine/renderer"
	"github.com/spaghettifunk/vkbridge/engine/renderer/metadata"
	"github.com/spaghettifunk/vkbridge/engine/renderer/nullbackend"
)

func graphicsLayout() *metadata.BindingLayout {
	l := metadata.NewBindingLayout()
	l.AddBinding(metadata.BindingInfo{DescriptorType: metadata.DescriptorTypeUniformBuffer, ResourceBinding: 0, ViewType: metadata.ImageViewTypeNone, Stages: metadata.ShaderStageVertex, Access: metadata.AccessUniformRead})
	l.AddBinding(metadata.BindingInfo{DescriptorType: metadata.DescriptorTypeSampledImage, ResourceBinding: 1, ViewType: metadata.ImageViewType2D, Stages: metadata.ShaderStageFragment, Access: metadata.AccessShaderRead})
	l.AddBinding(metadata.BindingInfo{DescriptorType: metadata.DescriptorTypeUniformBuffer, ResourceBinding: 2, ViewType: metadata.ImageViewTypeNone, Stages: metadata.ShaderStageFragment, Access: metadata.AccessUniformRead})
	l.AddBinding(metadata.BindingInfo{DescriptorType: metadata.DescriptorTypeStorageImage, ResourceBinding: 3, ViewType: metadata.ImageViewType2D, Stages: metadata.ShaderStageFragment, Access: metadata.AccessShaderWrite})
	l.AddPushConstantRange(metadata.PushConstantRange{StageFlags: metadata.ShaderStageVertex, Offset: 0, Size: 64})
	return l
}

func TestBindingLayoutObjectsMapping(t *testing.T) {
	b := nullbackend.New(renderer.DeviceLimits{})
	o, err := renderer.NewBindingLayoutObjects(b, graphicsLayout(), renderer.MaxNumActiveBindings)
	if err != nil {
		t.Fatalf("NewBindingLayoutObjects() error = %v", err)
	}
	defer o.Destroy()

	tests := []struct {
		slot uint32
		want metadata.BindingMapping
	}{
		{1, metadata.BindingMapping{Set: metadata.DescriptorSetFsViews, Binding: 0, ConstID: 0}},
		{3, metadata.BindingMapping{Set: metadata.DescriptorSetFsViews, Binding: 1, ConstID: 1}},
		{2, metadata.BindingMapping{Set: metadata.DescriptorSetFsBuffers, Binding: 0, ConstID: 2}},
		{0, metadata.BindingMapping{Set: metadata.DescriptorSetVsAll, Binding: 0, ConstID: 3}},
	}
	for _, tt := range tests {
		got, ok := o.LookupBinding(tt.slot)
		if !ok || got != tt.want {
			t.Errorf("LookupBinding(%d) = %+v, %v, want %+v", tt.slot, got, ok, tt.want)
		}
	}
	if _, ok := o.LookupBinding(42); ok {
		t.Error("LookupBinding(42) found a slot that was never declared")
	}

	for set, want := range []uint32{0, 2, 3} {
		if got := o.FirstBinding(uint32(set)); got != want {
			t.Errorf("FirstBinding(%d) = %d, want %d", set, got, want)
		}
	}
	if got := o.SetMask(); got != 0b111 {
		t.Errorf("SetMask() = %03b, want 111", got)
	}
	wantAccess := metadata.AccessUniformRead | metadata.AccessShaderRead | metadata.AccessShaderWrite
	if got := o.AccessFlags(); got != wantAccess {
		t.Errorf("AccessFlags() = %#x, want %#x", got, wantAccess)
	}
}

func TestBindingLayoutObjectsNativeDescriptions(t *testing.T) {
	b := nullbackend.New(renderer.DeviceLimits{})
	o, err := renderer.NewBindingLayoutObjects(b, graphicsLayout(), renderer.MaxNumActiveBindings)
	if err != nil {
		t.Fatalf("NewBindingLayoutObjects() error = %v", err)
	}
	defer o.Destroy()

	bindings := b.SetLayoutBindings(o.SetLayout(metadata.DescriptorSetFsViews))
	if len(bindings) != 2 || bindings[1].Binding != 1 || bindings[1].DescriptorType != metadata.DescriptorTypeStorageImage {
		t.Errorf("FsViews set layout bindings = %+v", bindings)
	}

	tmpl := b.UpdateTemplateInfo(o.SetUpdateTemplate(metadata.DescriptorSetFsViews))
	if tmpl.SetLayout != o.SetLayout(metadata.DescriptorSetFsViews) {
		t.Error("update template does not target its set layout")
	}
	for j, e := range tmpl.Entries {
		if e.Offset != uint32(j)*metadata.DescriptorInfoSize || e.Stride != metadata.DescriptorInfoSize {
			t.Errorf("entry %d offset=%d stride=%d", j, e.Offset, e.Stride)
		}
	}

	info := b.PipelineLayoutInfo(o.PipelineLayout())
	if len(info.SetLayouts) != int(metadata.DescriptorSetCount) {
		t.Errorf("pipeline layout references %d set layouts, want %d", len(info.SetLayouts), metadata.DescriptorSetCount)
	}
	want := metadata.PushConstantRange{StageFlags: metadata.ShaderStageVertex, Offset: 0, Size: 64}
	if info.PushConst == nil || *info.PushConst != want {
		t.Errorf("push constant range = %v, want %+v", info.PushConst, want)
	}
}

func TestBindingLayoutObjectsEmptySets(t *testing.T) {
	b := nullbackend.New(renderer.DeviceLimits{})
	l := metadata.NewBindingLayout()
	l.AddBinding(metadata.BindingInfo{DescriptorType: metadata.DescriptorTypeStorageBuffer, ResourceBinding: 5, Stages: metadata.ShaderStageCompute, Access: metadata.AccessShaderWrite})
	// stages without size, and size without stages, are both dropped
	l.AddPushConstantRange(metadata.PushConstantRange{StageFlags: 0, Size: 16})

	o, err := renderer.NewBindingLayoutObjects(b, l, renderer.MaxNumActiveBindings)
	if err != nil {
		t.Fatalf("NewBindingLayoutObjects() error = %v", err)
	}

	if got := o.SetMask(); got != 0b001 {
		t.Errorf("SetMask() = %03b, want 001", got)
	}
	if got := b.Created(nullbackend.KindSetLayout); got != 3 {
		t.Errorf("set layouts created = %d, want 3", got)
	}
	if got := b.Created(nullbackend.KindUpdateTemplate); got != 1 {
		t.Errorf("update templates created = %d, want 1", got)
	}
	if o.SetUpdateTemplate(metadata.DescriptorSetVsAll) != nil {
		t.Error("empty set got an update template")
	}
	if info := b.PipelineLayoutInfo(o.PipelineLayout()); info.PushConst != nil {
		t.Errorf("push constant range attached without stages: %+v", *info.PushConst)
	}

	o.Destroy()
	log := b.DestroyLog()
	if len(log) == 0 || log[0].Kind != nullbackend.KindPipelineLayout {
		t.Errorf("first destroyed object = %v, want the pipeline layout", log)
	}
	if b.Live() != 0 {
		t.Errorf("%d objects alive after Destroy", b.Live())
	}
}

func TestBindingLayoutObjectsFailureReleasesObjects(t *testing.T) {
	tests := []struct {
		name  string
		kind  nullbackend.ObjectKind
		after int
	}{
		{"first set layout", nullbackend.KindSetLayout, 0},
		{"second update template", nullbackend.KindUpdateTemplate, 1},
		{"last set layout", nullbackend.KindSetLayout, 2},
		{"pipeline layout", nullbackend.KindPipelineLayout, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := nullbackend.New(renderer.DeviceLimits{})
			b.FailAfter(tt.kind, tt.after)

			o, err := renderer.NewBindingLayoutObjects(b, graphicsLayout(), renderer.MaxNumActiveBindings)
			if o != nil {
				t.Error("partially built objects returned")
			}
			if !errors.Is(err, core.ErrLayoutCreation) {
				t.Errorf("error = %v, want %v", err, core.ErrLayoutCreation)
			}
			if b.Live() != 0 {
				t.Errorf("%d objects leaked", b.Live())
			}
		})
	}
}

func TestBindingLayoutObjectsTooManyBindings(t *testing.T) {
	b := nullbackend.New(renderer.DeviceLimits{})
	l := metadata.NewBindingLayout()
	for slot := uint32(0); slot < 5; slot++ {
		l.AddBinding(metadata.BindingInfo{DescriptorType: metadata.DescriptorTypeSampler, ResourceBinding: slot, Stages: metadata.ShaderStageFragment})
	}

	if _, err := renderer.NewBindingLayoutObjects(b, l, 4); !errors.Is(err, core.ErrTooManyBindings) {
		t.Errorf("error = %v, want %v", err, core.ErrTooManyBindings)
	}
	if b.Created(nullbackend.KindSetLayout) != 0 {
		t.Error("objects created despite the binding overflow")
	}
}
