// Package nullbackend implements renderer.Backend in memory. It counts
// every native object it hands out, records destruction order and can be
// told to fail creations, which makes it suitable for tests and for
// running without a GPU.
package nullbackend

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/spaghettifunk/vkbridge/engine/renderer"
	"github.com/spaghettifunk/vkbridge/engine/renderer/metadata"
)

// ErrInjected is returned by creations failed through FailAfter.
var ErrInjected = errors.New("injected failure")

type ObjectKind int

const (
	KindSetLayout ObjectKind = iota
	KindUpdateTemplate
	KindPipelineLayout
	KindShaderModule
	KindPipeline
	KindBuffer
)

func (k ObjectKind) String() string {
	switch k {
	case KindSetLayout:
		return "set-layout"
	case KindUpdateTemplate:
		return "update-template"
	case KindPipelineLayout:
		return "pipeline-layout"
	case KindShaderModule:
		return "shader-module"
	case KindPipeline:
		return "pipeline"
	case KindBuffer:
		return "buffer"
	}
	return "unknown"
}

// Handle is the opaque handle type of this backend.
type Handle struct {
	Kind ObjectKind
	ID   uint64
}

func (h Handle) String() string {
	return fmt.Sprintf("%s#%d", h.Kind, h.ID)
}

type PipelineLayoutInfo struct {
	SetLayouts []interface{}
	PushConst  *metadata.PushConstantRange
}

type Backend struct {
	mu     sync.Mutex
	nextID uint64
	limits renderer.DeviceLimits

	created    map[ObjectKind]int
	destroyed  map[ObjectKind]int
	live       map[Handle]bool
	destroyLog []Handle
	failAfter  map[ObjectKind]int

	setLayouts      map[Handle][]metadata.SetLayoutBinding
	templates       map[Handle]renderer.UpdateTemplateCreateInfo
	pipelineLayouts map[Handle]PipelineLayoutInfo
}

func New(limits renderer.DeviceLimits) *Backend {
	return &Backend{
		limits:          limits,
		created:         make(map[ObjectKind]int),
		destroyed:       make(map[ObjectKind]int),
		live:            make(map[Handle]bool),
		failAfter:       make(map[ObjectKind]int),
		setLayouts:      make(map[Handle][]metadata.SetLayoutBinding),
		templates:       make(map[Handle]renderer.UpdateTemplateCreateInfo),
		pipelineLayouts: make(map[Handle]PipelineLayoutInfo),
	}
}

// FailAfter makes the creation of kind fail once n more creations of that
// kind have succeeded.
func (b *Backend) FailAfter(kind ObjectKind, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failAfter[kind] = n
}

func (b *Backend) create(kind ObjectKind) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n, ok := b.failAfter[kind]; ok {
		if n == 0 {
			delete(b.failAfter, kind)
			return Handle{}, errors.Wrapf(ErrInjected, "create %s", kind)
		}
		b.failAfter[kind] = n - 1
	}

	b.nextID++
	h := Handle{Kind: kind, ID: b.nextID}
	b.created[kind]++
	b.live[h] = true
	return h, nil
}

func (b *Backend) destroy(handle interface{}) {
	h, ok := handle.(Handle)
	if !ok {
		panic(fmt.Sprintf("nullbackend: foreign handle %v", handle))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.live[h] {
		panic(fmt.Sprintf("nullbackend: %s destroyed twice or never created", h))
	}
	delete(b.live, h)
	b.destroyed[h.Kind]++
	b.destroyLog = append(b.destroyLog, h)
}

func (b *Backend) CreateDescriptorSetLayout(bindings []metadata.SetLayoutBinding) (interface{}, error) {
	h, err := b.create(KindSetLayout)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.setLayouts[h] = append([]metadata.SetLayoutBinding(nil), bindings...)
	b.mu.Unlock()
	return h, nil
}

func (b *Backend) DestroyDescriptorSetLayout(layout interface{}) {
	b.destroy(layout)
}

func (b *Backend) CreateDescriptorUpdateTemplate(info renderer.UpdateTemplateCreateInfo) (interface{}, error) {
	h, err := b.create(KindUpdateTemplate)
	if err != nil {
		return nil, err
	}
	info.Entries = append([]metadata.UpdateTemplateEntry(nil), info.Entries...)
	b.mu.Lock()
	b.templates[h] = info
	b.mu.Unlock()
	return h, nil
}

func (b *Backend) DestroyDescriptorUpdateTemplate(template interface{}) {
	b.destroy(template)
}

func (b *Backend) CreatePipelineLayout(setLayouts []interface{}, pushConst *metadata.PushConstantRange) (interface{}, error) {
	h, err := b.create(KindPipelineLayout)
	if err != nil {
		return nil, err
	}
	info := PipelineLayoutInfo{SetLayouts: append([]interface{}(nil), setLayouts...)}
	if pushConst != nil {
		r := *pushConst
		info.PushConst = &r
	}
	b.mu.Lock()
	b.pipelineLayouts[h] = info
	b.mu.Unlock()
	return h, nil
}

func (b *Backend) DestroyPipelineLayout(layout interface{}) {
	b.destroy(layout)
}

func (b *Backend) CreateShaderModule(code []uint32) (interface{}, error) {
	h, err := b.create(KindShaderModule)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (b *Backend) DestroyShaderModule(module interface{}) {
	b.destroy(module)
}

func (b *Backend) CreateComputePipeline(module interface{}, layout interface{}) (interface{}, error) {
	h, err := b.create(KindPipeline)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (b *Backend) DestroyPipeline(pipeline interface{}) {
	b.destroy(pipeline)
}

func (b *Backend) CreateHostBuffer(size uint64) (renderer.HostBuffer, error) {
	h, err := b.create(KindBuffer)
	if err != nil {
		return nil, err
	}
	return &Buffer{backend: b, handle: h, data: make([]byte, size)}, nil
}

func (b *Backend) Limits() renderer.DeviceLimits {
	return b.limits
}

// Shutdown fails when objects are still alive.
func (b *Backend) Shutdown() error {
	if n := b.Live(); n != 0 {
		return fmt.Errorf("nullbackend: %d objects still alive at shutdown", n)
	}
	return nil
}

func (b *Backend) Created(kind ObjectKind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.created[kind]
}

func (b *Backend) Destroyed(kind ObjectKind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.destroyed[kind]
}

// Live returns the number of objects created and not yet destroyed.
func (b *Backend) Live() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.live)
}

// DestroyLog returns every destroyed handle in destruction order.
func (b *Backend) DestroyLog() []Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Handle(nil), b.destroyLog...)
}

func (b *Backend) SetLayoutBindings(handle interface{}) []metadata.SetLayoutBinding {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.setLayouts[handle.(Handle)]
}

func (b *Backend) UpdateTemplateInfo(handle interface{}) renderer.UpdateTemplateCreateInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.templates[handle.(Handle)]
}

func (b *Backend) PipelineLayoutInfo(handle interface{}) PipelineLayoutInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pipelineLayouts[handle.(Handle)]
}

// Buffer is an in-memory renderer.HostBuffer. Tests flip SetInUse to
// simulate pending GPU reads.
type Buffer struct {
	backend  *Backend
	handle   Handle
	data     []byte
	inUse    atomic.Bool
	released atomic.Bool
}

func (b *Buffer) Size() uint64 {
	return uint64(len(b.data))
}

func (b *Buffer) Data() []byte {
	return b.data
}

func (b *Buffer) InUse() bool {
	return b.inUse.Load()
}

func (b *Buffer) SetInUse(inUse bool) {
	b.inUse.Store(inUse)
}

func (b *Buffer) Release() {
	if b.released.Swap(true) {
		panic(fmt.Sprintf("nullbackend: %s released twice", b.handle))
	}
	b.backend.destroy(b.handle)
}

func (b *Buffer) Released() bool {
	return b.released.Load()
}

func (b *Buffer) Handle() Handle {
	return b.handle
}
