package state

// PipelineStageFlags identify the pipeline stages that a barrier waits on or blocks
type PipelineStageFlags int32

const (
	StageTopOfPipe PipelineStageFlags = 1 << iota
	StageDrawIndirect
	StageVertexInput
	StageVertexShader
	StageHullShader
	StageDomainShader
	StageGeometryShader
	StagePixelShader
	StageEarlyFragmentTests
	StageLateFragmentTests
	StageRenderTarget
	StageComputeShader
	StageTransfer
	StageBottomOfPipe
	StageHost

	StageRayTracingShader           PipelineStageFlags = 0x00200000
	StageAccelerationStructureBuild PipelineStageFlags = 0x02000000

	StageUndefined PipelineStageFlags = 0

	// StageAllShaders is every programmable stage of the graphics and compute pipelines
	StageAllShaders = StageVertexShader | StageHullShader | StageDomainShader | StageGeometryShader |
		StagePixelShader | StageComputeShader | StageRayTracingShader
	// StageFragmentTests covers both early and late depth/stencil testing
	StageFragmentTests = StageEarlyFragmentTests | StageLateFragmentTests
)

var pipelineStageMapping = map[PipelineStageFlags]string{
	StageUndefined:                  "StageUndefined",
	StageTopOfPipe:                  "StageTopOfPipe",
	StageDrawIndirect:               "StageDrawIndirect",
	StageVertexInput:                "StageVertexInput",
	StageVertexShader:               "StageVertexShader",
	StageHullShader:                 "StageHullShader",
	StageDomainShader:               "StageDomainShader",
	StageGeometryShader:             "StageGeometryShader",
	StagePixelShader:                "StagePixelShader",
	StageEarlyFragmentTests:         "StageEarlyFragmentTests",
	StageLateFragmentTests:          "StageLateFragmentTests",
	StageRenderTarget:               "StageRenderTarget",
	StageComputeShader:              "StageComputeShader",
	StageTransfer:                   "StageTransfer",
	StageBottomOfPipe:               "StageBottomOfPipe",
	StageHost:                       "StageHost",
	StageRayTracingShader:           "StageRayTracingShader",
	StageAccelerationStructureBuild: "StageAccelerationStructureBuild",
}

func (f PipelineStageFlags) String() string {
	return flagsToString(f, pipelineStageMapping)
}

// AccessFlags identify the kinds of memory access that a barrier makes available or visible
type AccessFlags int32

const (
	AccessIndirectCommandRead AccessFlags = 1 << iota
	AccessIndexRead
	AccessVertexRead
	AccessUniformRead
	AccessInputAttachmentRead
	AccessShaderRead
	AccessShaderWrite
	AccessRenderTargetRead
	AccessRenderTargetWrite
	AccessDepthStencilRead
	AccessDepthStencilWrite
	AccessCopySrc
	AccessCopyDst
	AccessHostRead
	AccessHostWrite
	AccessMemoryRead
	AccessMemoryWrite

	AccessAccelerationStructureRead  AccessFlags = 0x00200000
	AccessAccelerationStructureWrite AccessFlags = 0x00400000

	AccessNone AccessFlags = 0

	// AccessWriteMask is the union of all access types that write memory
	AccessWriteMask = AccessShaderWrite | AccessRenderTargetWrite | AccessDepthStencilWrite |
		AccessCopyDst | AccessHostWrite | AccessMemoryWrite | AccessAccelerationStructureWrite
)

var accessMapping = map[AccessFlags]string{
	AccessNone:                       "AccessNone",
	AccessIndirectCommandRead:        "AccessIndirectCommandRead",
	AccessIndexRead:                  "AccessIndexRead",
	AccessVertexRead:                 "AccessVertexRead",
	AccessUniformRead:                "AccessUniformRead",
	AccessInputAttachmentRead:        "AccessInputAttachmentRead",
	AccessShaderRead:                 "AccessShaderRead",
	AccessShaderWrite:                "AccessShaderWrite",
	AccessRenderTargetRead:           "AccessRenderTargetRead",
	AccessRenderTargetWrite:          "AccessRenderTargetWrite",
	AccessDepthStencilRead:           "AccessDepthStencilRead",
	AccessDepthStencilWrite:          "AccessDepthStencilWrite",
	AccessCopySrc:                    "AccessCopySrc",
	AccessCopyDst:                    "AccessCopyDst",
	AccessHostRead:                   "AccessHostRead",
	AccessHostWrite:                  "AccessHostWrite",
	AccessMemoryRead:                 "AccessMemoryRead",
	AccessMemoryWrite:                "AccessMemoryWrite",
	AccessAccelerationStructureRead:  "AccessAccelerationStructureRead",
	AccessAccelerationStructureWrite: "AccessAccelerationStructureWrite",
}

func (f AccessFlags) String() string {
	return flagsToString(f, accessMapping)
}

// HasWrite returns true if any of the access types in f write memory
func (f AccessFlags) HasWrite() bool {
	return f&AccessWriteMask != 0
}
