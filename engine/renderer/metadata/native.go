package metadata

// DescriptorInfoSize is the byte size of one descriptor info record in the
// data handed to update templates: a buffer info (handle, offset, range)
// is the largest member.
const DescriptorInfoSize uint32 = 24

/**
 * @brief One binding of a native descriptor set layout. Descriptor counts
 * are always 1; arrays are not used.
 */
type SetLayoutBinding struct {
	Binding        uint32
	DescriptorType DescriptorType
	StageFlags     ShaderStageFlags
}

/** @brief One entry of a native descriptor update template. */
type UpdateTemplateEntry struct {
	DstBinding     uint32
	DescriptorType DescriptorType
	Offset         uint32
	Stride         uint32
}
