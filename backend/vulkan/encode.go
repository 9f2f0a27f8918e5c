// Package vulkan translates planned barriers into Vulkan pipeline stage and access masks
package vulkan

import (
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/gpucore/barrier"
	"github.com/vkngwrapper/gpucore/state"
)

var stageMapping = map[state.PipelineStageFlags]core1_0.PipelineStageFlags{
	state.StageTopOfPipe:          core1_0.PipelineStageTopOfPipe,
	state.StageDrawIndirect:       core1_0.PipelineStageDrawIndirect,
	state.StageVertexInput:        core1_0.PipelineStageVertexInput,
	state.StageVertexShader:       core1_0.PipelineStageVertexShader,
	state.StageHullShader:         core1_0.PipelineStageTessellationControlShader,
	state.StageDomainShader:       core1_0.PipelineStageTessellationEvaluationShader,
	state.StageGeometryShader:     core1_0.PipelineStageGeometryShader,
	state.StagePixelShader:        core1_0.PipelineStageFragmentShader,
	state.StageEarlyFragmentTests: core1_0.PipelineStageEarlyFragmentTests,
	state.StageLateFragmentTests:  core1_0.PipelineStageLateFragmentTests,
	state.StageRenderTarget:       core1_0.PipelineStageColorAttachmentOutput,
	state.StageComputeShader:      core1_0.PipelineStageComputeShader,
	state.StageTransfer:           core1_0.PipelineStageTransfer,
	state.StageBottomOfPipe:       core1_0.PipelineStageBottomOfPipe,
	state.StageHost:               core1_0.PipelineStageHost,
	// Ray tracing stages live in extensions; without them, order against everything
	state.StageRayTracingShader:           core1_0.PipelineStageAllCommands,
	state.StageAccelerationStructureBuild: core1_0.PipelineStageAllCommands,
}

var accessMapping = map[state.AccessFlags]core1_0.AccessFlags{
	state.AccessIndirectCommandRead:        core1_0.AccessIndirectCommandRead,
	state.AccessIndexRead:                  core1_0.AccessIndexRead,
	state.AccessVertexRead:                 core1_0.AccessVertexAttributeRead,
	state.AccessUniformRead:                core1_0.AccessUniformRead,
	state.AccessInputAttachmentRead:        core1_0.AccessInputAttachmentRead,
	state.AccessShaderRead:                 core1_0.AccessShaderRead,
	state.AccessShaderWrite:                core1_0.AccessShaderWrite,
	state.AccessRenderTargetRead:           core1_0.AccessColorAttachmentRead,
	state.AccessRenderTargetWrite:          core1_0.AccessColorAttachmentWrite,
	state.AccessDepthStencilRead:           core1_0.AccessDepthStencilAttachmentRead,
	state.AccessDepthStencilWrite:          core1_0.AccessDepthStencilAttachmentWrite,
	state.AccessCopySrc:                    core1_0.AccessTransferRead,
	state.AccessCopyDst:                    core1_0.AccessTransferWrite,
	state.AccessHostRead:                   core1_0.AccessHostRead,
	state.AccessHostWrite:                  core1_0.AccessHostWrite,
	state.AccessMemoryRead:                 core1_0.AccessMemoryRead,
	state.AccessMemoryWrite:                core1_0.AccessMemoryWrite,
	state.AccessAccelerationStructureRead:  core1_0.AccessMemoryRead,
	state.AccessAccelerationStructureWrite: core1_0.AccessMemoryWrite,
}

// Masks are the stage and access masks of a vkCmdPipelineBarrier call
type Masks struct {
	SrcStageMask  core1_0.PipelineStageFlags
	DstStageMask  core1_0.PipelineStageFlags
	SrcAccessMask core1_0.AccessFlags
	DstAccessMask core1_0.AccessFlags
}

// StageFlags converts backend-agnostic stages to Vulkan stages. An empty source mask becomes
// top-of-pipe, which Vulkan requires in place of zero.
func StageFlags(stages state.PipelineStageFlags) core1_0.PipelineStageFlags {
	var flags core1_0.PipelineStageFlags
	for bit, vkBit := range stageMapping {
		if stages&bit != 0 {
			flags |= vkBit
		}
	}

	if flags == 0 {
		return core1_0.PipelineStageTopOfPipe
	}
	return flags
}

// AccessFlags converts backend-agnostic access types to Vulkan access flags
func AccessFlags(access state.AccessFlags) core1_0.AccessFlags {
	var flags core1_0.AccessFlags
	for bit, vkBit := range accessMapping {
		if access&bit != 0 {
			flags |= vkBit
		}
	}
	return flags
}

// Encode returns the Vulkan masks for a planned barrier. Vulkan has no split barriers, so the
// begin half of a split transition encodes to nothing and ok is false.
func Encode(b barrier.Barrier) (masks Masks, ok bool) {
	if b.Split == barrier.SplitBegin {
		return Masks{}, false
	}

	dstStages := StageFlags(b.DstStages)
	if b.DstStages == 0 {
		dstStages = core1_0.PipelineStageBottomOfPipe
	}

	return Masks{
		SrcStageMask:  StageFlags(b.SrcStages),
		DstStageMask:  dstStages,
		SrcAccessMask: AccessFlags(b.SrcAccess),
		DstAccessMask: AccessFlags(b.DstAccess),
	}, true
}
