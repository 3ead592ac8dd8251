package renderer

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spaghettifunk/vkbridge/engine/containers"
	"github.com/spaghettifunk/vkbridge/engine/core"
)

const (
	DefaultStagingBufferSize  uint64 = 1 << 25 // 32 MiB
	DefaultStagingBufferCount int    = 2
)

// BufferSlice is a byte range of a host buffer handed out by a staging
// allocator.
type BufferSlice struct {
	buffer    HostBuffer
	offset    uint64
	length    uint64
	dedicated bool
}

func (s BufferSlice) Buffer() HostBuffer {
	return s.buffer
}

func (s BufferSlice) Offset() uint64 {
	return s.offset
}

func (s BufferSlice) Length() uint64 {
	return s.length
}

// Dedicated reports whether the slice owns its buffer. Dedicated buffers
// never go back to a pool; the caller releases them.
func (s BufferSlice) Dedicated() bool {
	return s.dedicated
}

// Data returns the mapped bytes of the slice.
func (s BufferSlice) Data() []byte {
	return s.buffer.Data()[s.offset : s.offset+s.length]
}

// Release frees a dedicated buffer. It is a no-op for pooled slices.
func (s BufferSlice) Release() {
	if s.dedicated && s.buffer != nil {
		s.buffer.Release()
	}
}

func createStagingBuffer(backend BufferBackend, size uint64) (HostBuffer, error) {
	buffer, err := backend.CreateHostBuffer(size)
	if err != nil {
		core.LogError("failed to create staging buffer of %d bytes: %s", size, err)
		return nil, errors.Wrapf(core.ErrBufferCreation, "staging buffer of %d bytes: %v", size, err)
	}
	return buffer, nil
}

// StagingDataAlloc hands out upload memory from a rotation of fixed size
// buffers. Retired buffers wait in a bounded FIFO and are reused once the
// GPU no longer reads them.
//
// It is not safe for concurrent use.
type StagingDataAlloc struct {
	backend     BufferBackend
	bufferSize  uint64
	bufferCount int

	buffer  HostBuffer
	offset  uint64
	buffers *containers.RingQueue[HostBuffer]

	idle *core.Clock
}

func NewStagingDataAlloc(backend BufferBackend, bufferSize uint64, bufferCount int) *StagingDataAlloc {
	if bufferSize == 0 {
		bufferSize = DefaultStagingBufferSize
	}
	if bufferCount <= 0 {
		bufferCount = DefaultStagingBufferCount
	}
	return &StagingDataAlloc{
		backend:     backend,
		bufferSize:  bufferSize,
		bufferCount: bufferCount,
		buffers:     containers.NewRingQueue[HostBuffer](bufferCount),
		idle:        core.NewClock(),
	}
}

// Alloc returns size bytes aligned to align. Requests larger than a pool
// buffer get a dedicated buffer.
func (s *StagingDataAlloc) Alloc(align, size uint64) (BufferSlice, error) {
	s.idle.Start()

	if size > s.bufferSize {
		buffer, err := createStagingBuffer(s.backend, size)
		if err != nil {
			return BufferSlice{}, err
		}
		return BufferSlice{buffer: buffer, offset: 0, length: size, dedicated: true}, nil
	}

	offset := core.AlignUp(s.offset, align)
	if s.buffer == nil || offset+size > s.bufferSize {
		if err := s.rotate(); err != nil {
			return BufferSlice{}, err
		}
		offset = 0
	}

	slice := BufferSlice{buffer: s.buffer, offset: offset, length: size}
	s.offset = offset + size
	return slice, nil
}

func (s *StagingDataAlloc) rotate() error {
	if s.buffer != nil {
		if s.buffers.IsFull() {
			oldest, _ := s.buffers.Dequeue()
			oldest.Release()
		}
		_ = s.buffers.Enqueue(s.buffer)
		s.buffer = nil
	}

	if head, err := s.buffers.Peek(); err == nil && !head.InUse() {
		s.buffer, _ = s.buffers.Dequeue()
		core.LogDebug("staging: reusing idle buffer, %d left in queue", s.buffers.Len())
	} else {
		buffer, err := createStagingBuffer(s.backend, s.bufferSize)
		if err != nil {
			return err
		}
		s.buffer = buffer
		core.LogDebug("staging: created buffer of %d bytes", s.bufferSize)
	}

	s.offset = 0
	return nil
}

// Trim releases every buffer of the pool.
func (s *StagingDataAlloc) Trim() {
	released := 0
	if s.buffer != nil {
		s.buffer.Release()
		s.buffer = nil
		released++
	}
	for !s.buffers.IsEmpty() {
		b, _ := s.buffers.Dequeue()
		b.Release()
		released++
	}
	s.offset = 0
	s.idle.Stop()

	if released > 0 {
		core.LogDebug("staging: trimmed %d buffers", released)
	}
}

// BufferCount returns the number of pooled buffers, current one included.
func (s *StagingDataAlloc) BufferCount() int {
	n := s.buffers.Len()
	if s.buffer != nil {
		n++
	}
	return n
}

// IdleFor returns the time since the last allocation, or zero when the pool
// holds no buffers.
func (s *StagingDataAlloc) IdleFor() time.Duration {
	if !s.idle.Running() {
		return 0
	}
	s.idle.Update()
	return s.idle.Elapsed()
}

// StagingBuffer bump-allocates from a single buffer until Reset. The caller
// guarantees nothing still reads earlier allocations when resetting.
type StagingBuffer struct {
	backend BufferBackend
	buffer  HostBuffer
	offset  uint64
	size    uint64
}

func NewStagingBuffer(backend BufferBackend, size uint64) (*StagingBuffer, error) {
	buffer, err := createStagingBuffer(backend, size)
	if err != nil {
		return nil, err
	}
	return &StagingBuffer{
		backend: backend,
		buffer:  buffer,
		size:    size,
	}, nil
}

// Alloc returns size bytes aligned to align. Requests that do not fit get
// a dedicated buffer.
func (b *StagingBuffer) Alloc(align, size uint64) (BufferSlice, error) {
	alignedSize := core.AlignUp(size, align)
	alignedOffset := core.AlignUp(b.offset, align)

	if alignedOffset+alignedSize > b.size {
		buffer, err := createStagingBuffer(b.backend, size)
		if err != nil {
			return BufferSlice{}, err
		}
		return BufferSlice{buffer: buffer, offset: 0, length: size, dedicated: true}, nil
	}

	b.offset = alignedOffset + alignedSize
	return BufferSlice{buffer: b.buffer, offset: alignedOffset, length: size}, nil
}

func (b *StagingBuffer) Reset() {
	b.offset = 0
}

func (b *StagingBuffer) Destroy() {
	if b.buffer != nil {
		b.buffer.Release()
		b.buffer = nil
	}
}
