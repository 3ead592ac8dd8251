package metadata

// DescriptorState tracks which stages had resources rebound since the
// last descriptor update and the descriptor sets currently bound, per
// bind point. It is owned by a single command recording context.
type DescriptorState struct {
	dirtyBuffers ShaderStageFlags
	dirtyViews   ShaderStageFlags

	sets [2 * DescriptorSetCount]interface{}
}

func (s *DescriptorState) DirtyBuffers(stages ShaderStageFlags) {
	s.dirtyBuffers |= stages
}

func (s *DescriptorState) DirtyViews(stages ShaderStageFlags) {
	s.dirtyViews |= stages
}

func (s *DescriptorState) DirtyStages(stages ShaderStageFlags) {
	s.dirtyBuffers |= stages
	s.dirtyViews |= stages
}

func (s *DescriptorState) ClearStages(stages ShaderStageFlags) {
	s.dirtyBuffers &^= stages
	s.dirtyViews &^= stages
}

func (s *DescriptorState) HasDirtyGraphicsSets() bool {
	return (s.dirtyBuffers|s.dirtyViews)&ShaderStageAllGraphics != 0
}

func (s *DescriptorState) HasDirtyComputeSets() bool {
	return (s.dirtyBuffers|s.dirtyViews)&ShaderStageCompute != 0
}

// DirtyGraphicsSets returns a mask of graphics sets needing an update.
// Rebinding a fragment view also invalidates the fragment buffer set.
func (s *DescriptorState) DirtyGraphicsSets() uint32 {
	result := uint32(0)
	if s.dirtyBuffers&ShaderStageFragment != 0 {
		result |= 1 << DescriptorSetFsBuffers
	}
	if s.dirtyViews&ShaderStageFragment != 0 {
		result |= (1 << DescriptorSetFsViews) | (1 << DescriptorSetFsBuffers)
	}
	if (s.dirtyBuffers|s.dirtyViews)&(ShaderStageAllGraphics&^ShaderStageFragment) != 0 {
		result |= 1 << DescriptorSetVsAll
	}
	return result
}

func (s *DescriptorState) DirtyComputeSets() uint32 {
	result := uint32(0)
	if (s.dirtyBuffers|s.dirtyViews)&ShaderStageCompute != 0 {
		result |= 1 << DescriptorSetCsAll
	}
	return result
}

func (s *DescriptorState) ClearSets() {
	for i := range s.sets {
		s.sets[i] = nil
	}
}

func (s *DescriptorState) Set(bindPoint PipelineBindPoint, index uint32) interface{} {
	return s.sets[uint32(bindPoint)*DescriptorSetCount+index]
}

func (s *DescriptorState) SetSet(bindPoint PipelineBindPoint, index uint32, set interface{}) {
	s.sets[uint32(bindPoint)*DescriptorSetCount+index] = set
}
