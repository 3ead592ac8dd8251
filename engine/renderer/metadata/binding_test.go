package metadata

import (
	"math/rand"
	"testing"
)

func ubo(slot uint32, stages ShaderStageFlags) BindingInfo {
	return BindingInfo{
		DescriptorType:  DescriptorTypeUniformBuffer,
		ResourceBinding: slot,
		ViewType:        ImageViewTypeNone,
		Stages:          stages,
		Access:          AccessUniformRead,
	}
}

func texture(slot uint32, stages ShaderStageFlags) BindingInfo {
	return BindingInfo{
		DescriptorType:  DescriptorTypeSampledImage,
		ResourceBinding: slot,
		ViewType:        ImageViewType2D,
		Stages:          stages,
		Access:          AccessShaderRead,
	}
}

func TestComputeSetIndex(t *testing.T) {
	tests := []struct {
		name    string
		binding BindingInfo
		want    uint32
	}{
		{"compute buffer", ubo(0, ShaderStageCompute), DescriptorSetCsAll},
		{"compute wins over fragment", ubo(0, ShaderStageCompute|ShaderStageFragment), DescriptorSetCsAll},
		{"fragment uniform buffer", ubo(0, ShaderStageFragment), DescriptorSetFsBuffers},
		{"fragment storage buffer", BindingInfo{DescriptorType: DescriptorTypeStorageBuffer, Stages: ShaderStageFragment}, DescriptorSetFsBuffers},
		{"fragment dynamic buffer is a view", BindingInfo{DescriptorType: DescriptorTypeUniformBufferDynamic, Stages: ShaderStageFragment}, DescriptorSetFsViews},
		{"fragment texture", texture(0, ShaderStageFragment), DescriptorSetFsViews},
		{"vertex and fragment texture", texture(0, ShaderStageVertex|ShaderStageFragment), DescriptorSetFsViews},
		{"vertex buffer", ubo(0, ShaderStageVertex), DescriptorSetVsAll},
		{"geometry texture", texture(0, ShaderStageGeometry), DescriptorSetVsAll},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 3; i++ {
				if got := tt.binding.ComputeSetIndex(); got != tt.want {
					t.Errorf("ComputeSetIndex() = %d, want %d", got, tt.want)
				}
			}
		})
	}
}

func TestAddBindingMerges(t *testing.T) {
	l := NewBindingLayout()
	l.AddBinding(ubo(0, ShaderStageVertex))
	l.AddBinding(ubo(0, ShaderStageGeometry))

	if got := l.BindingCount(DescriptorSetVsAll); got != 1 {
		t.Fatalf("BindingCount(VsAll) = %d, want 1", got)
	}
	if got := l.Binding(DescriptorSetVsAll, 0).Stages; got != ShaderStageVertex|ShaderStageGeometry {
		t.Errorf("merged stages = %s", got)
	}

	// A vertex+fragment texture lands in FsViews; a later fragment-only
	// texture with the same identity still merges since both include
	// the fragment stage.
	l.AddBinding(texture(1, ShaderStageVertex|ShaderStageFragment))
	l.AddBinding(texture(1, ShaderStageFragment))
	if got := l.BindingCount(DescriptorSetFsViews); got != 1 {
		t.Errorf("BindingCount(FsViews) = %d, want 1", got)
	}
}

func TestAddBindingKeepsFragmentFlagApart(t *testing.T) {
	l := NewBindingLayout()
	l.AddBinding(BindingInfo{DescriptorType: DescriptorTypeSampledImage, ResourceBinding: 3, Stages: ShaderStageCompute | ShaderStageFragment})
	l.AddBinding(BindingInfo{DescriptorType: DescriptorTypeSampledImage, ResourceBinding: 3, Stages: ShaderStageCompute})

	if got := l.BindingCount(DescriptorSetCsAll); got != 2 {
		t.Errorf("BindingCount(CsAll) = %d, want 2", got)
	}
}

func TestAddBindingNeverDuplicates(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	types := []DescriptorType{DescriptorTypeUniformBuffer, DescriptorTypeStorageBuffer, DescriptorTypeSampledImage, DescriptorTypeSampler}
	stages := []ShaderStageFlags{ShaderStageVertex, ShaderStageGeometry, ShaderStageFragment, ShaderStageVertex | ShaderStageFragment}

	type identity struct {
		t        DescriptorType
		slot     uint32
		view     ImageViewType
		fragment bool
	}

	l := NewBindingLayout()
	for i := 0; i < 500; i++ {
		l.AddBinding(BindingInfo{
			DescriptorType:  types[rng.Intn(len(types))],
			ResourceBinding: uint32(rng.Intn(8)),
			ViewType:        ImageViewType(rng.Intn(2)),
			Stages:          stages[rng.Intn(len(stages))],
		})
	}

	for set := uint32(0); set < DescriptorSetCount; set++ {
		seen := make(map[identity]bool)
		for _, b := range l.Bindings(set) {
			id := identity{b.DescriptorType, b.ResourceBinding, b.ViewType, b.Stages.Has(ShaderStageFragment)}
			if seen[id] {
				t.Errorf("set %d holds %+v twice", set, id)
			}
			seen[id] = true
		}
	}
}

func TestPushConstantRangeMerge(t *testing.T) {
	ranges := []PushConstantRange{
		{StageFlags: ShaderStageVertex, Offset: 0, Size: 16},
		{StageFlags: ShaderStageFragment, Offset: 16, Size: 16},
		{StageFlags: ShaderStageGeometry, Offset: 8, Size: 8},
	}
	orders := [][]int{{0, 1, 2}, {2, 1, 0}, {1, 2, 0}, {2, 0, 1}}
	want := PushConstantRange{
		StageFlags: ShaderStageVertex | ShaderStageFragment | ShaderStageGeometry,
		Offset:     0,
		Size:       32,
	}

	for _, order := range orders {
		l := NewBindingLayout()
		for _, i := range order {
			l.AddPushConstantRange(ranges[i])
		}
		if got := l.PushConstantRange(); got != want {
			t.Errorf("order %v: PushConstantRange() = %+v, want %+v", order, got, want)
		}
	}
}

func TestPushConstantRangeStartsAtZero(t *testing.T) {
	tests := []struct {
		name   string
		ranges []PushConstantRange
		want   PushConstantRange
	}{
		{
			name:   "single range",
			ranges: []PushConstantRange{{StageFlags: ShaderStageFragment, Offset: 16, Size: 16}},
			want:   PushConstantRange{StageFlags: ShaderStageFragment, Offset: 0, Size: 32},
		},
		{
			name: "disjoint ranges",
			ranges: []PushConstantRange{
				{StageFlags: ShaderStageFragment, Offset: 16, Size: 16},
				{StageFlags: ShaderStageFragment, Offset: 48, Size: 4},
			},
			want: PushConstantRange{StageFlags: ShaderStageFragment, Offset: 0, Size: 52},
		},
		{
			name: "empty range only adds stages",
			ranges: []PushConstantRange{
				{StageFlags: ShaderStageVertex, Offset: 8, Size: 8},
				{StageFlags: ShaderStageGeometry, Offset: 64, Size: 0},
			},
			want: PushConstantRange{StageFlags: ShaderStageVertex | ShaderStageGeometry, Offset: 0, Size: 64},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewBindingLayout()
			for _, r := range tt.ranges {
				l.AddPushConstantRange(r)
			}
			if got := l.PushConstantRange(); got != tt.want {
				t.Errorf("PushConstantRange() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMergeCommutesWithoutConflicts(t *testing.T) {
	vs := NewBindingLayout()
	vs.AddBinding(ubo(0, ShaderStageVertex))
	vs.AddBinding(texture(1, ShaderStageVertex))
	vs.AddPushConstantRange(PushConstantRange{StageFlags: ShaderStageVertex, Offset: 0, Size: 16})

	fs := NewBindingLayout()
	fs.AddBinding(texture(2, ShaderStageFragment))
	fs.AddBinding(ubo(3, ShaderStageFragment))
	fs.AddPushConstantRange(PushConstantRange{StageFlags: ShaderStageFragment, Offset: 16, Size: 16})

	ab := NewBindingLayout()
	ab.Merge(vs)
	ab.Merge(fs)

	ba := NewBindingLayout()
	ba.Merge(fs)
	ba.Merge(vs)

	if !ab.Eq(ba) {
		t.Error("merge order changed the layout")
	}
	if ab.Hash() != ba.Hash() {
		t.Errorf("Hash() = %#x vs %#x", ab.Hash(), ba.Hash())
	}
}

// Insertion order within one set is part of the key. Equivalent layouts
// built in a different order are distinct cache entries.
func TestInsertionOrderChangesKey(t *testing.T) {
	a := NewBindingLayout()
	a.AddBinding(ubo(0, ShaderStageVertex))
	a.AddBinding(ubo(1, ShaderStageVertex))

	b := NewBindingLayout()
	b.AddBinding(ubo(1, ShaderStageVertex))
	b.AddBinding(ubo(0, ShaderStageVertex))

	if a.Eq(b) {
		t.Error("layouts with different insertion order compare equal")
	}
	if a.Hash() == b.Hash() {
		t.Error("layouts with different insertion order hash equal")
	}
}

func TestBindingLayoutClone(t *testing.T) {
	a := NewBindingLayout()
	a.AddBinding(ubo(0, ShaderStageVertex))
	c := a.Clone()
	if !a.Eq(c) || a.Hash() != c.Hash() {
		t.Fatal("clone differs from original")
	}
	c.AddBinding(ubo(1, ShaderStageVertex))
	if a.BindingCount(DescriptorSetVsAll) != 1 {
		t.Error("modifying the clone changed the original")
	}
}

func TestHashStateOrder(t *testing.T) {
	var a, b HashState
	a.Add(1)
	a.Add(2)
	b.Add(2)
	b.Add(1)
	if a.Sum() == b.Sum() {
		t.Error("HashState must depend on order")
	}
}
