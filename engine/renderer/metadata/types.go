package metadata

import "strings"

/**
 * @brief The kind of resource a descriptor binds. Values match
 * VkDescriptorType so they can be handed to the native API unchanged.
 */
type DescriptorType uint32

const (
	DescriptorTypeSampler DescriptorType = iota
	DescriptorTypeCombinedImageSampler
	DescriptorTypeSampledImage
	DescriptorTypeStorageImage
	DescriptorTypeUniformTexelBuffer
	DescriptorTypeStorageTexelBuffer
	DescriptorTypeUniformBuffer
	DescriptorTypeStorageBuffer
	DescriptorTypeUniformBufferDynamic
	DescriptorTypeStorageBufferDynamic
	DescriptorTypeInputAttachment
	descriptorTypeCount
)

var descriptorTypeNames = [descriptorTypeCount]string{
	"sampler",
	"combined-image-sampler",
	"sampled-image",
	"storage-image",
	"uniform-texel-buffer",
	"storage-texel-buffer",
	"uniform-buffer",
	"storage-buffer",
	"uniform-buffer-dynamic",
	"storage-buffer-dynamic",
	"input-attachment",
}

func (t DescriptorType) String() string {
	if t < descriptorTypeCount {
		return descriptorTypeNames[t]
	}
	return "unknown"
}

/** @brief Reports whether the descriptor is a plain uniform or storage buffer. */
func (t DescriptorType) IsBuffer() bool {
	return t == DescriptorTypeUniformBuffer || t == DescriptorTypeStorageBuffer
}

/**
 * @brief The image view dimensionality a binding expects. Matches
 * VkImageViewType; buffers and samplers use ImageViewTypeNone.
 */
type ImageViewType uint32

const (
	ImageViewType1D ImageViewType = iota
	ImageViewType2D
	ImageViewType3D
	ImageViewTypeCube
	ImageViewType1DArray
	ImageViewType2DArray
	ImageViewTypeCubeArray

	ImageViewTypeNone ImageViewType = 0x7FFFFFFF
)

/** @brief Shader stage bit mask, matching VkShaderStageFlags. */
type ShaderStageFlags uint32

const (
	ShaderStageVertex      ShaderStageFlags = 0x01
	ShaderStageTessControl ShaderStageFlags = 0x02
	ShaderStageTessEval    ShaderStageFlags = 0x04
	ShaderStageGeometry    ShaderStageFlags = 0x08
	ShaderStageFragment    ShaderStageFlags = 0x10
	ShaderStageCompute     ShaderStageFlags = 0x20
	ShaderStageAllGraphics ShaderStageFlags = 0x1F
)

func (s ShaderStageFlags) Has(other ShaderStageFlags) bool {
	return s&other != 0
}

func (s ShaderStageFlags) String() string {
	if s == 0 {
		return "none"
	}
	names := []struct {
		bit  ShaderStageFlags
		name string
	}{
		{ShaderStageVertex, "vertex"},
		{ShaderStageTessControl, "tess-control"},
		{ShaderStageTessEval, "tess-eval"},
		{ShaderStageGeometry, "geometry"},
		{ShaderStageFragment, "fragment"},
		{ShaderStageCompute, "compute"},
	}
	var parts []string
	for _, n := range names {
		if s&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

/** @brief Memory access mask, matching the VkAccessFlags bits descriptors can produce. */
type AccessFlags uint32

const (
	AccessUniformRead AccessFlags = 0x00000008
	AccessShaderRead  AccessFlags = 0x00000020
	AccessShaderWrite AccessFlags = 0x00000040
)

type PipelineBindPoint uint32

const (
	PipelineBindPointGraphics PipelineBindPoint = 0
	PipelineBindPointCompute  PipelineBindPoint = 1
)

/**
 * @brief A push constant byte range and the stages reading it.
 * A zero Size means no push constants are used.
 */
type PushConstantRange struct {
	StageFlags ShaderStageFlags
	Offset     uint32
	Size       uint32
}

func (r PushConstantRange) End() uint32 {
	return r.Offset + r.Size
}
