package metadata

/**
 * @brief Fixed descriptor set partitions. Compute and graphics layouts are
 * never merged, so the compute set shares index 0 with fragment views.
 */
const (
	DescriptorSetCsAll     uint32 = 0
	DescriptorSetFsViews   uint32 = 0
	DescriptorSetFsBuffers uint32 = 1
	DescriptorSetVsAll     uint32 = 2
	DescriptorSetCount     uint32 = 3
)

/**
 * @brief Describes one resource a shader accesses.
 *
 * DescriptorType, ResourceBinding and ViewType identify the binding;
 * Stages and Access accumulate as bindings are merged.
 */
type BindingInfo struct {
	/** @brief The kind of descriptor. */
	DescriptorType DescriptorType
	/** @brief The resource slot this binding is looked up by. */
	ResourceBinding uint32
	/** @brief Compatible view type, or ImageViewTypeNone. */
	ViewType ImageViewType
	/** @brief Stages using the binding. */
	Stages ShaderStageFlags
	/** @brief How the binding is accessed. */
	Access AccessFlags
}

/**
 * @brief Computes the descriptor set the binding belongs to.
 *
 * Compute resources go to one set. Fragment buffers get their own set
 * since they change much more often than fragment views. Everything used
 * only by pre-rasterization stages shares the last set.
 */
func (b BindingInfo) ComputeSetIndex() uint32 {
	if b.Stages.Has(ShaderStageCompute) {
		return DescriptorSetCsAll
	}
	if b.Stages.Has(ShaderStageFragment) {
		if b.DescriptorType.IsBuffer() {
			return DescriptorSetFsBuffers
		}
		return DescriptorSetFsViews
	}
	return DescriptorSetVsAll
}

// SameResource compares the identity fields only.
func (b BindingInfo) SameResource(other BindingInfo) bool {
	return b.DescriptorType == other.DescriptorType &&
		b.ResourceBinding == other.ResourceBinding &&
		b.ViewType == other.ViewType
}

// CanMerge reports whether other may be folded into b. Bindings that
// disagree on fragment stage usage would land in different sets and are
// kept apart.
func (b BindingInfo) CanMerge(other BindingInfo) bool {
	if (b.Stages & ShaderStageFragment) != (other.Stages & ShaderStageFragment) {
		return false
	}
	return b.SameResource(other)
}

func (b *BindingInfo) Merge(other BindingInfo) {
	b.Stages |= other.Stages
	b.Access |= other.Access
}

func (b BindingInfo) Eq(other BindingInfo) bool {
	return b == other
}

func (b BindingInfo) Hash() uint64 {
	var h HashState
	h.Add(uint64(b.DescriptorType))
	h.Add(uint64(b.ResourceBinding))
	h.Add(uint64(b.ViewType))
	h.Add(uint64(b.Stages))
	h.Add(uint64(b.Access))
	return h.Sum()
}

/** @brief Where a resource slot ended up after realization. */
type BindingMapping struct {
	Set     uint32
	Binding uint32
	ConstID uint32
}

/**
 * @brief Set-partitioned binding layout of a shader or a whole pipeline.
 *
 * Equality and hashing follow insertion order: the same bindings added in
 * a different order produce a different key.
 */
type BindingLayout struct {
	bindings  [DescriptorSetCount][]BindingInfo
	pushConst PushConstantRange
}

func NewBindingLayout() *BindingLayout {
	return &BindingLayout{}
}

func (l *BindingLayout) BindingCount(set uint32) uint32 {
	return uint32(len(l.bindings[set]))
}

func (l *BindingLayout) Binding(set, index uint32) BindingInfo {
	return l.bindings[set][index]
}

// Bindings returns the bindings of one set. The slice must not be modified.
func (l *BindingLayout) Bindings(set uint32) []BindingInfo {
	return l.bindings[set]
}

func (l *BindingLayout) PushConstantRange() PushConstantRange {
	return l.pushConst
}

// AddBinding merges binding into a compatible entry of its set, or
// appends it.
func (l *BindingLayout) AddBinding(binding BindingInfo) {
	set := binding.ComputeSetIndex()

	for i := range l.bindings[set] {
		if l.bindings[set][i].CanMerge(binding) {
			l.bindings[set][i].Merge(binding)
			return
		}
	}
	l.bindings[set] = append(l.bindings[set], binding)
}

// AddPushConstantRange grows the tracked range to the smallest interval
// covering both ranges. The tracked range starts out as {0, 0}, so the
// offset stays 0. Gaps between disjoint ranges are included.
func (l *BindingLayout) AddPushConstantRange(r PushConstantRange) {
	end := max(l.pushConst.End(), r.End())
	l.pushConst.StageFlags |= r.StageFlags
	l.pushConst.Offset = min(l.pushConst.Offset, r.Offset)
	l.pushConst.Size = end - l.pushConst.Offset
}

// Merge adds every binding and the push constant range of other.
func (l *BindingLayout) Merge(other *BindingLayout) {
	for set := range other.bindings {
		for _, b := range other.bindings[set] {
			l.AddBinding(b)
		}
	}
	l.AddPushConstantRange(other.pushConst)
}

func (l *BindingLayout) Clone() *BindingLayout {
	c := &BindingLayout{pushConst: l.pushConst}
	for set := range l.bindings {
		if len(l.bindings[set]) > 0 {
			c.bindings[set] = append([]BindingInfo(nil), l.bindings[set]...)
		}
	}
	return c
}

func (l *BindingLayout) Eq(other *BindingLayout) bool {
	for set := range l.bindings {
		if len(l.bindings[set]) != len(other.bindings[set]) {
			return false
		}
	}
	for set := range l.bindings {
		for i := range l.bindings[set] {
			if !l.bindings[set][i].Eq(other.bindings[set][i]) {
				return false
			}
		}
	}
	return l.pushConst == other.pushConst
}

func (l *BindingLayout) Hash() uint64 {
	var h HashState
	for set := range l.bindings {
		for _, b := range l.bindings[set] {
			h.Add(b.Hash())
		}
	}
	h.Add(uint64(l.pushConst.StageFlags))
	h.Add(uint64(l.pushConst.Offset))
	h.Add(uint64(l.pushConst.Size))
	return h.Sum()
}
