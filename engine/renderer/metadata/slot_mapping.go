package metadata

// InvalidBinding is returned by GetBindingID for unknown slots.
const InvalidBinding uint32 = 0xFFFFFFFF

/**
 * @brief A resource slot as declared by the shader front-end for the
 * single-set layout path.
 */
type ResourceSlot struct {
	Slot   uint32
	Type   DescriptorType
	View   ImageViewType
	Access AccessFlags
}

/**
 * @brief One binding of a single-set layout. Its binding number is its
 * position in the owning DescriptorSlotMapping.
 */
type DescriptorSlot struct {
	Slot   uint32
	Type   DescriptorType
	View   ImageViewType
	Stages ShaderStageFlags
	Access AccessFlags
}

/**
 * @brief Maps resource slots to binding numbers of one flat descriptor set,
 * in first-seen order.
 */
type DescriptorSlotMapping struct {
	descriptorSlots []DescriptorSlot
	pushConstRange  PushConstantRange
}

func NewDescriptorSlotMapping() *DescriptorSlotMapping {
	return &DescriptorSlotMapping{}
}

func (m *DescriptorSlotMapping) BindingCount() uint32 {
	return uint32(len(m.descriptorSlots))
}

// BindingInfos returns the slots in binding order. The slice must not be
// modified.
func (m *DescriptorSlotMapping) BindingInfos() []DescriptorSlot {
	return m.descriptorSlots
}

/** @brief The push constant range; its offset is always zero. */
func (m *DescriptorSlotMapping) PushConstRange() PushConstantRange {
	return m.pushConstRange
}

// DefineSlot registers desc for stage. An already known slot only gains
// the stage and access bits.
func (m *DescriptorSlotMapping) DefineSlot(stage ShaderStageFlags, desc ResourceSlot) {
	if id := m.GetBindingID(desc.Slot); id != InvalidBinding {
		m.descriptorSlots[id].Stages |= stage
		m.descriptorSlots[id].Access |= desc.Access
		return
	}
	m.descriptorSlots = append(m.descriptorSlots, DescriptorSlot{
		Slot:   desc.Slot,
		Type:   desc.Type,
		View:   desc.View,
		Stages: stage,
		Access: desc.Access,
	})
}

func (m *DescriptorSlotMapping) DefinePushConstRange(stage ShaderStageFlags, offset, size uint32) {
	m.pushConstRange.StageFlags |= stage
	m.pushConstRange.Size = max(m.pushConstRange.Size, offset+size)
}

// GetBindingID returns the binding number of slot, or InvalidBinding.
// Shaders use few bindings so a linear scan is fine.
func (m *DescriptorSlotMapping) GetBindingID(slot uint32) uint32 {
	for i := range m.descriptorSlots {
		if m.descriptorSlots[i].Slot == slot {
			return uint32(i)
		}
	}
	return InvalidBinding
}

/**
 * @brief Turns uniform buffers into dynamic uniform buffers when all of
 * them fit into uniformBuffers.
 *
 * storageBuffers is accepted for API symmetry only. Storage buffers are
 * never promoted.
 */
func (m *DescriptorSlotMapping) MakeDescriptorsDynamic(uniformBuffers, storageBuffers uint32) {
	if m.countDescriptors(DescriptorTypeUniformBuffer) <= uniformBuffers {
		m.replaceDescriptors(DescriptorTypeUniformBuffer, DescriptorTypeUniformBufferDynamic)
	}
}

func (m *DescriptorSlotMapping) countDescriptors(t DescriptorType) uint32 {
	count := uint32(0)
	for _, s := range m.descriptorSlots {
		if s.Type == t {
			count++
		}
	}
	return count
}

func (m *DescriptorSlotMapping) replaceDescriptors(oldType, newType DescriptorType) {
	for i := range m.descriptorSlots {
		if m.descriptorSlots[i].Type == oldType {
			m.descriptorSlots[i].Type = newType
		}
	}
}

func (m *DescriptorSlotMapping) Clone() *DescriptorSlotMapping {
	return &DescriptorSlotMapping{
		descriptorSlots: append([]DescriptorSlot(nil), m.descriptorSlots...),
		pushConstRange:  m.pushConstRange,
	}
}

func (m *DescriptorSlotMapping) Eq(other *DescriptorSlotMapping) bool {
	if len(m.descriptorSlots) != len(other.descriptorSlots) {
		return false
	}
	for i := range m.descriptorSlots {
		if m.descriptorSlots[i] != other.descriptorSlots[i] {
			return false
		}
	}
	return m.pushConstRange == other.pushConstRange
}

func (m *DescriptorSlotMapping) Hash() uint64 {
	var h HashState
	for _, s := range m.descriptorSlots {
		h.Add(uint64(s.Slot))
		h.Add(uint64(s.Type))
		h.Add(uint64(s.View))
		h.Add(uint64(s.Stages))
		h.Add(uint64(s.Access))
	}
	h.Add(uint64(m.pushConstRange.StageFlags))
	h.Add(uint64(m.pushConstRange.Size))
	return h.Sum()
}
