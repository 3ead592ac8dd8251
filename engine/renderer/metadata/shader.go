package metadata

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spaghettifunk/vkbridge/engine/core"
)

/**
 * @brief Everything the shader front-end reports about one shader stage.
 */
type ShaderCreateInfo struct {
	/** @brief Debug name. A unique one is generated when empty. */
	Name string
	/** @brief The single stage this shader runs in. */
	Stage ShaderStageFlags
	/** @brief SPIR-V words. */
	Code []uint32
	/** @brief Bindings for the set-partitioned layout path. */
	Bindings []BindingInfo
	/** @brief Resource slots for the single-set layout path. */
	Slots []ResourceSlot
	/** @brief Push constant usage. Size 0 means none. */
	PushConstOffset uint32
	PushConstSize   uint32
}

/**
 * @brief Represents a shader on the frontend. Immutable after creation;
 * pipelines key on the pointer.
 */
type Shader struct {
	/** @brief The shader identifier */
	ID uint32

	Name  string
	Stage ShaderStageFlags
	Code  []uint32

	layout          *BindingLayout
	slots           []ResourceSlot
	pushConstOffset uint32
	pushConstSize   uint32
}

func NewShader(info ShaderCreateInfo) (*Shader, error) {
	switch info.Stage {
	case ShaderStageVertex, ShaderStageTessControl, ShaderStageTessEval,
		ShaderStageGeometry, ShaderStageFragment, ShaderStageCompute:
	default:
		return nil, errors.Errorf("shader must have exactly one stage, got '%s'", info.Stage)
	}

	s := &Shader{
		Name:            info.Name,
		Stage:           info.Stage,
		Code:            info.Code,
		layout:          NewBindingLayout(),
		slots:           append([]ResourceSlot(nil), info.Slots...),
		pushConstOffset: info.PushConstOffset,
		pushConstSize:   info.PushConstSize,
	}
	if s.Name == "" {
		s.Name = fmt.Sprintf("%s-%s", info.Stage, uuid.NewString())
	}

	for _, b := range info.Bindings {
		b.Stages |= info.Stage
		s.layout.AddBinding(b)
	}
	if info.PushConstSize > 0 {
		s.layout.AddPushConstantRange(PushConstantRange{
			StageFlags: info.Stage,
			Offset:     info.PushConstOffset,
			Size:       info.PushConstSize,
		})
	}

	s.ID = core.IdentifierAcquireNewID(s)
	return s, nil
}

/** @brief The shader's own binding layout. Must not be modified. */
func (s *Shader) Bindings() *BindingLayout {
	return s.layout
}

func (s *Shader) Slots() []ResourceSlot {
	return s.slots
}

/**
 * @brief Adds this shader's resource slots and push constants to a
 * single-set slot mapping.
 */
func (s *Shader) DefineResourceSlots(mapping *DescriptorSlotMapping) {
	for _, slot := range s.slots {
		mapping.DefineSlot(s.Stage, slot)
	}
	if s.pushConstSize > 0 {
		mapping.DefinePushConstRange(s.Stage, s.pushConstOffset, s.pushConstSize)
	}
}

/** @brief Gives the shader identifier back. The shader must no longer be used. */
func (s *Shader) Release() {
	if err := core.IdentifierReleaseID(s.ID); err != nil {
		core.LogWarn("shader '%s': %s", s.Name, err)
	}
}
