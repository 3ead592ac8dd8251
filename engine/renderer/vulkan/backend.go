package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkbridge/engine/core"
	"github.com/spaghettifunk/vkbridge/engine/renderer"
	"github.com/spaghettifunk/vkbridge/engine/renderer/metadata"
)

// VulkanBackend creates the native objects behind binding layouts,
// pipelines and staging buffers on a headless device.
type VulkanBackend struct {
	context *VulkanContext
}

func New(appName string, enableValidation bool) (*VulkanBackend, error) {
	context, err := NewVulkanContext(appName, enableValidation)
	if err != nil {
		return nil, err
	}
	return &VulkanBackend{context: context}, nil
}

func (vb *VulkanBackend) Context() *VulkanContext {
	return vb.context
}

func (vb *VulkanBackend) Limits() renderer.DeviceLimits {
	limits := vb.context.Device.Limits
	return renderer.DeviceLimits{
		MaxUniformBuffersDynamic: limits.MaxDescriptorSetUniformBuffersDynamic,
		MaxStorageBuffersDynamic: limits.MaxDescriptorSetStorageBuffersDynamic,
	}
}

func (vb *VulkanBackend) CreateDescriptorSetLayout(bindings []metadata.SetLayoutBinding) (interface{}, error) {
	vkBindings := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, b := range bindings {
		vkBindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  vk.DescriptorType(b.DescriptorType),
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(b.StageFlags),
		}
	}

	createInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(vkBindings)),
		PBindings:    vkBindings,
	}

	var layout vk.DescriptorSetLayout
	if err := vb.context.lockPool.SafeCall(DescriptorManagement, func() error {
		result := vk.CreateDescriptorSetLayout(vb.context.Device.LogicalDevice, &createInfo, vb.context.Allocator, &layout)
		if !VulkanResultIsSuccess(result) {
			return fmt.Errorf("vkCreateDescriptorSetLayout failed with %s", VulkanResultString(result, true))
		}
		return nil
	}); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return layout, nil
}

func (vb *VulkanBackend) DestroyDescriptorSetLayout(layout interface{}) {
	handle, ok := layout.(vk.DescriptorSetLayout)
	if !ok || handle == nil {
		return
	}
	_ = vb.context.lockPool.SafeCall(DescriptorManagement, func() error {
		vk.DestroyDescriptorSetLayout(vb.context.Device.LogicalDevice, handle, vb.context.Allocator)
		return nil
	})
}

func (vb *VulkanBackend) CreateDescriptorUpdateTemplate(info renderer.UpdateTemplateCreateInfo) (interface{}, error) {
	entries := make([]vk.DescriptorUpdateTemplateEntry, len(info.Entries))
	for i, e := range info.Entries {
		entries[i] = vk.DescriptorUpdateTemplateEntry{
			DstBinding:      e.DstBinding,
			DstArrayElement: 0,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorType(e.DescriptorType),
			Offset:          uint64(e.Offset),
			Stride:          uint64(e.Stride),
		}
	}

	setLayout, _ := info.SetLayout.(vk.DescriptorSetLayout)
	pipelineLayout, _ := info.PipelineLayout.(vk.PipelineLayout)

	createInfo := vk.DescriptorUpdateTemplateCreateInfo{
		SType:                      vk.StructureTypeDescriptorUpdateTemplateCreateInfo,
		DescriptorUpdateEntryCount: uint32(len(entries)),
		PDescriptorUpdateEntries:   entries,
		TemplateType:               vk.DescriptorUpdateTemplateTypeDescriptorSet,
		DescriptorSetLayout:        setLayout,
		PipelineBindPoint:          vk.PipelineBindPoint(info.BindPoint),
		PipelineLayout:             pipelineLayout,
		Set:                        info.Set,
	}

	var template vk.DescriptorUpdateTemplate
	if err := vb.context.lockPool.SafeCall(DescriptorManagement, func() error {
		result := vk.CreateDescriptorUpdateTemplate(vb.context.Device.LogicalDevice, &createInfo, vb.context.Allocator, &template)
		if !VulkanResultIsSuccess(result) {
			return fmt.Errorf("vkCreateDescriptorUpdateTemplate failed with %s", VulkanResultString(result, true))
		}
		return nil
	}); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return template, nil
}

func (vb *VulkanBackend) DestroyDescriptorUpdateTemplate(template interface{}) {
	handle, ok := template.(vk.DescriptorUpdateTemplate)
	if !ok || handle == nil {
		return
	}
	_ = vb.context.lockPool.SafeCall(DescriptorManagement, func() error {
		vk.DestroyDescriptorUpdateTemplate(vb.context.Device.LogicalDevice, handle, vb.context.Allocator)
		return nil
	})
}

func (vb *VulkanBackend) CreatePipelineLayout(setLayouts []interface{}, pushConst *metadata.PushConstantRange) (interface{}, error) {
	vkSetLayouts := make([]vk.DescriptorSetLayout, len(setLayouts))
	for i, l := range setLayouts {
		vkSetLayouts[i], _ = l.(vk.DescriptorSetLayout)
	}

	createInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(vkSetLayouts)),
		PSetLayouts:    vkSetLayouts,
	}
	if pushConst != nil {
		createInfo.PushConstantRangeCount = 1
		createInfo.PPushConstantRanges = []vk.PushConstantRange{{
			StageFlags: vk.ShaderStageFlags(pushConst.StageFlags),
			Offset:     pushConst.Offset,
			Size:       pushConst.Size,
		}}
	}

	var layout vk.PipelineLayout
	if err := vb.context.lockPool.SafeCall(PipelineManagement, func() error {
		result := vk.CreatePipelineLayout(vb.context.Device.LogicalDevice, &createInfo, vb.context.Allocator, &layout)
		if !VulkanResultIsSuccess(result) {
			return fmt.Errorf("vkCreatePipelineLayout failed with %s", VulkanResultString(result, true))
		}
		return nil
	}); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return layout, nil
}

func (vb *VulkanBackend) DestroyPipelineLayout(layout interface{}) {
	handle, ok := layout.(vk.PipelineLayout)
	if !ok || handle == nil {
		return
	}
	_ = vb.context.lockPool.SafeCall(PipelineManagement, func() error {
		vk.DestroyPipelineLayout(vb.context.Device.LogicalDevice, handle, vb.context.Allocator)
		return nil
	})
}

func (vb *VulkanBackend) CreateShaderModule(code []uint32) (interface{}, error) {
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code) * 4),
		PCode:    code,
	}

	var module vk.ShaderModule
	if err := vb.context.lockPool.SafeCall(ShaderManagement, func() error {
		result := vk.CreateShaderModule(vb.context.Device.LogicalDevice, &createInfo, vb.context.Allocator, &module)
		if !VulkanResultIsSuccess(result) {
			return fmt.Errorf("vkCreateShaderModule failed with %s", VulkanResultString(result, true))
		}
		return nil
	}); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return module, nil
}

func (vb *VulkanBackend) DestroyShaderModule(module interface{}) {
	handle, ok := module.(vk.ShaderModule)
	if !ok || handle == nil {
		return
	}
	_ = vb.context.lockPool.SafeCall(ShaderManagement, func() error {
		vk.DestroyShaderModule(vb.context.Device.LogicalDevice, handle, vb.context.Allocator)
		return nil
	})
}

func (vb *VulkanBackend) CreateComputePipeline(module interface{}, layout interface{}) (interface{}, error) {
	shaderModule, _ := module.(vk.ShaderModule)
	pipelineLayout, _ := layout.(vk.PipelineLayout)

	pipelineCreateInfo := vk.ComputePipelineCreateInfo{
		SType: vk.StructureTypeComputePipelineCreateInfo,
		Stage: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageComputeBit,
			Module: shaderModule,
			PName:  VulkanSafeString("main"),
		},
		Layout:             pipelineLayout,
		BasePipelineHandle: vk.NullPipeline,
		BasePipelineIndex:  -1,
	}

	pPipelines := make([]vk.Pipeline, 1)
	if err := vb.context.lockPool.SafeCall(PipelineManagement, func() error {
		result := vk.CreateComputePipelines(
			vb.context.Device.LogicalDevice,
			vk.NullPipelineCache,
			1,
			[]vk.ComputePipelineCreateInfo{pipelineCreateInfo},
			vb.context.Allocator,
			pPipelines)

		if !VulkanResultIsSuccess(result) {
			return fmt.Errorf("vkCreateComputePipelines failed with %s", VulkanResultString(result, true))
		}
		return nil
	}); err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	core.LogDebug("Compute pipeline created!")
	return pPipelines[0], nil
}

func (vb *VulkanBackend) DestroyPipeline(pipeline interface{}) {
	handle, ok := pipeline.(vk.Pipeline)
	if !ok || handle == nil {
		return
	}
	_ = vb.context.lockPool.SafeCall(PipelineManagement, func() error {
		vk.DestroyPipeline(vb.context.Device.LogicalDevice, handle, vb.context.Allocator)
		return nil
	})
}

func (vb *VulkanBackend) CreateHostBuffer(size uint64) (renderer.HostBuffer, error) {
	usage := vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit | vk.BufferUsageUniformBufferBit | vk.BufferUsageStorageBufferBit)
	buffer, err := NewVulkanBuffer(vb.context, size, usage)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return buffer, nil
}

// Shutdown waits for the device to go idle and destroys it together with
// the instance. Every object created through the backend must already be
// destroyed.
func (vb *VulkanBackend) Shutdown() error {
	if vb.context == nil {
		return nil
	}
	if vb.context.Device.LogicalDevice != nil {
		if res := vk.DeviceWaitIdle(vb.context.Device.LogicalDevice); !VulkanResultIsSuccess(res) {
			core.LogWarn("vkDeviceWaitIdle failed with %s", VulkanResultString(res, true))
		}
	}
	vb.context.Destroy()
	vb.context = nil
	return nil
}
