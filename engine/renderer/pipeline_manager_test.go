package renderer_test

import (
	"errors"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/spaghettifunk/vkbridge/engine/core"
	"github.com/spaghettifunk/vkbridge/engine/renderer"
	"github.com/spaghettifunk/vkbridge/engine/renderer/metadata"
	"github.com/spaghettifunk/vkbridge/engine/renderer/nullbackend"
)

func newShader(t *testing.T, stage metadata.ShaderStageFlags, bindings ...metadata.BindingInfo) *metadata.Shader {
	t.Helper()
	s, err := metadata.NewShader(metadata.ShaderCreateInfo{
		Stage:    stage,
		Code:     []uint32{0x07230203},
		Bindings: bindings,
	})
	if err != nil {
		t.Fatalf("NewShader() error = %v", err)
	}
	t.Cleanup(s.Release)
	return s
}

func TestPipelineManagerGraphicsCache(t *testing.T) {
	b := nullbackend.New(renderer.DeviceLimits{})
	m := renderer.NewPipelineManager(b, renderer.PipelineManagerConfig{})
	defer m.Destroy()

	vs := newShader(t, metadata.ShaderStageVertex, metadata.BindingInfo{DescriptorType: metadata.DescriptorTypeUniformBuffer, ResourceBinding: 0})
	fs := newShader(t, metadata.ShaderStageFragment, metadata.BindingInfo{DescriptorType: metadata.DescriptorTypeUniformBuffer, ResourceBinding: 0})
	fs2 := newShader(t, metadata.ShaderStageFragment, metadata.BindingInfo{DescriptorType: metadata.DescriptorTypeSampledImage, ResourceBinding: 1, ViewType: metadata.ImageViewType2D})

	p1, err := m.CreateGraphicsPipeline(renderer.GraphicsPipelineShaders{VS: vs, FS: fs})
	if err != nil {
		t.Fatalf("CreateGraphicsPipeline() error = %v", err)
	}
	p2, _ := m.CreateGraphicsPipeline(renderer.GraphicsPipelineShaders{VS: vs, FS: fs})
	if p1 != p2 {
		t.Error("equal shader sets returned different pipelines")
	}

	p3, _ := m.CreateGraphicsPipeline(renderer.GraphicsPipelineShaders{VS: vs, FS: fs2})
	if p3 == p1 {
		t.Error("different shader sets returned the same pipeline")
	}
	if got := m.PipelineCount().NumGraphicsPipelines; got != 2 {
		t.Errorf("NumGraphicsPipelines = %d, want 2", got)
	}

	// slot 0 is a vertex buffer and a fragment buffer: two bindings
	l := p1.Layout()
	if l.Layout().BindingCount(metadata.DescriptorSetVsAll) != 1 || l.Layout().BindingCount(metadata.DescriptorSetFsBuffers) != 1 {
		t.Errorf("merged layout partitions wrong")
	}
	if got := b.Created(nullbackend.KindPipelineLayout); got != 2 {
		t.Errorf("pipeline layouts created = %d, want 2", got)
	}

	s := m.Stats()
	if s.Graphics.Hits != 1 || s.Graphics.Constructions != 2 || s.Layouts.Entries != 2 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestPipelineManagerSharesLayouts(t *testing.T) {
	b := nullbackend.New(renderer.DeviceLimits{})
	m := renderer.NewPipelineManager(b, renderer.PipelineManagerConfig{})
	defer m.Destroy()

	ubo := metadata.BindingInfo{DescriptorType: metadata.DescriptorTypeUniformBuffer, ResourceBinding: 0}
	vsA := newShader(t, metadata.ShaderStageVertex, ubo)
	vsB := newShader(t, metadata.ShaderStageVertex, ubo)

	pa, _ := m.CreateGraphicsPipeline(renderer.GraphicsPipelineShaders{VS: vsA})
	pb, _ := m.CreateGraphicsPipeline(renderer.GraphicsPipelineShaders{VS: vsB})
	if pa == pb {
		t.Fatal("distinct shader objects must be distinct pipelines")
	}
	if pa.Layout() != pb.Layout() {
		t.Error("structurally equal layouts were realized twice")
	}
}

func TestPipelineManagerMissingStage(t *testing.T) {
	m := renderer.NewPipelineManager(nullbackend.New(renderer.DeviceLimits{}), renderer.PipelineManagerConfig{})
	defer m.Destroy()

	fs := newShader(t, metadata.ShaderStageFragment)
	if p, err := m.CreateGraphicsPipeline(renderer.GraphicsPipelineShaders{FS: fs}); p != nil || err != nil {
		t.Errorf("CreateGraphicsPipeline(no VS) = %v, %v", p, err)
	}
	if p, err := m.CreateComputePipeline(renderer.ComputePipelineShaders{}); p != nil || err != nil {
		t.Errorf("CreateComputePipeline(no CS) = %v, %v", p, err)
	}
}

func TestPipelineManagerConcurrentMiss(t *testing.T) {
	b := nullbackend.New(renderer.DeviceLimits{})
	m := renderer.NewPipelineManager(b, renderer.PipelineManagerConfig{})
	defer m.Destroy()

	cs := newShader(t, metadata.ShaderStageCompute, metadata.BindingInfo{DescriptorType: metadata.DescriptorTypeStorageBuffer, ResourceBinding: 0, Access: metadata.AccessShaderWrite})

	results := make([]*renderer.ComputePipeline, 16)
	var g errgroup.Group
	for i := range results {
		i := i
		g.Go(func() error {
			p, err := m.CreateComputePipeline(renderer.ComputePipelineShaders{CS: cs})
			results[i] = p
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	for i := range results {
		if results[i] != results[0] {
			t.Errorf("result %d is a different pipeline", i)
		}
	}
	if got := b.Created(nullbackend.KindPipelineLayout); got != 1 {
		t.Errorf("pipeline layouts created = %d, want 1", got)
	}
	if got := m.PipelineCount().NumComputePipelines; got != 1 {
		t.Errorf("NumComputePipelines = %d, want 1", got)
	}
	if !results[0].HasStorageDescriptors() {
		t.Error("HasStorageDescriptors() = false for a written storage buffer")
	}
}

func TestComputePipelineHandle(t *testing.T) {
	b := nullbackend.New(renderer.DeviceLimits{})
	m := renderer.NewPipelineManager(b, renderer.PipelineManagerConfig{})

	cs := newShader(t, metadata.ShaderStageCompute)
	p, err := m.CreateComputePipeline(renderer.ComputePipelineShaders{CS: cs})
	if err != nil {
		t.Fatalf("CreateComputePipeline() error = %v", err)
	}
	if b.Created(nullbackend.KindPipeline) != 0 {
		t.Fatal("pipeline compiled before first use")
	}

	h1, err := p.Handle()
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	h2, _ := p.Handle()
	if h1 != h2 || b.Created(nullbackend.KindPipeline) != 1 {
		t.Error("Handle() compiled more than once")
	}
	if b.Live() == 0 {
		t.Fatal("nothing alive before Destroy")
	}
	// shader module is temporary
	if b.Created(nullbackend.KindShaderModule) != b.Destroyed(nullbackend.KindShaderModule) {
		t.Error("shader module leaked")
	}

	m.Destroy()
	if b.Live() != 0 {
		t.Errorf("%d objects alive after Destroy", b.Live())
	}
}

func TestComputePipelineHandleFailure(t *testing.T) {
	b := nullbackend.New(renderer.DeviceLimits{})
	m := renderer.NewPipelineManager(b, renderer.PipelineManagerConfig{})
	defer m.Destroy()

	b.FailAfter(nullbackend.KindPipeline, 0)
	p, _ := m.CreateComputePipeline(renderer.ComputePipelineShaders{CS: newShader(t, metadata.ShaderStageCompute)})
	if _, err := p.Handle(); !errors.Is(err, core.ErrPipelineCreation) {
		t.Errorf("Handle() error = %v, want %v", err, core.ErrPipelineCreation)
	}
}

func TestPipelineManagerLayoutFailureNotCached(t *testing.T) {
	b := nullbackend.New(renderer.DeviceLimits{})
	m := renderer.NewPipelineManager(b, renderer.PipelineManagerConfig{})
	defer m.Destroy()

	vs := newShader(t, metadata.ShaderStageVertex)
	b.FailAfter(nullbackend.KindPipelineLayout, 0)

	if _, err := m.CreateGraphicsPipeline(renderer.GraphicsPipelineShaders{VS: vs}); !errors.Is(err, core.ErrLayoutCreation) {
		t.Fatalf("error = %v, want %v", err, core.ErrLayoutCreation)
	}
	p, err := m.CreateGraphicsPipeline(renderer.GraphicsPipelineShaders{VS: vs})
	if err != nil || p == nil {
		t.Errorf("retry after failure = %v, %v", p, err)
	}
}

func TestCreateSlotPipelineLayout(t *testing.T) {
	b := nullbackend.New(renderer.DeviceLimits{})
	m := renderer.NewPipelineManager(b, renderer.PipelineManagerConfig{MaxUniformBuffersDynamic: 2})
	defer m.Destroy()

	mapping := slotMapping()
	l1, err := m.CreateSlotPipelineLayout(mapping, metadata.PipelineBindPointGraphics)
	if err != nil {
		t.Fatalf("CreateSlotPipelineLayout() error = %v", err)
	}
	if l1.DynamicBindingCount() != 2 {
		t.Errorf("DynamicBindingCount() = %d, want 2", l1.DynamicBindingCount())
	}
	if mapping.BindingInfos()[0].Type != metadata.DescriptorTypeUniformBuffer {
		t.Error("caller's mapping was modified")
	}

	l2, _ := m.CreateSlotPipelineLayout(slotMapping(), metadata.PipelineBindPointGraphics)
	if l1 != l2 {
		t.Error("equal mappings realized twice")
	}
	l3, _ := m.CreateSlotPipelineLayout(slotMapping(), metadata.PipelineBindPointCompute)
	if l3 == l1 {
		t.Error("bind point must be part of the key")
	}
}
