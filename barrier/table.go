package barrier

import "github.com/vkngwrapper/gpucore/state"

// StageAccessTable maps a resource state, as used by a particular class of queue, to the
// pipeline stages that touch the resource and the memory accesses they perform
type StageAccessTable interface {
	StageAccess(s state.ResourceState, queue state.QueueType) (state.PipelineStageFlags, state.AccessFlags)
}

type stageAccess struct {
	stages state.PipelineStageFlags
	access state.AccessFlags
	// shaders adds every shader stage the queue can run
	shaders bool
}

var defaultStageAccess = map[state.ResourceState]stageAccess{
	state.Undefined:        {stages: state.StageTopOfPipe, access: state.AccessNone},
	state.VertexBuffer:     {stages: state.StageVertexInput, access: state.AccessVertexRead},
	state.ConstantBuffer:   {access: state.AccessUniformRead, shaders: true},
	state.IndexBuffer:      {stages: state.StageVertexInput, access: state.AccessIndexRead},
	state.RenderTarget:     {stages: state.StageRenderTarget, access: state.AccessRenderTargetRead | state.AccessRenderTargetWrite},
	state.UnorderedAccess:  {access: state.AccessShaderRead | state.AccessShaderWrite, shaders: true},
	state.DepthWrite:       {stages: state.StageFragmentTests, access: state.AccessDepthStencilRead | state.AccessDepthStencilWrite},
	state.DepthRead:        {stages: state.StageFragmentTests, access: state.AccessDepthStencilRead},
	state.ShaderResource:   {access: state.AccessShaderRead, shaders: true},
	state.StreamOut:        {stages: state.StageVertexShader | state.StageGeometryShader, access: state.AccessShaderWrite},
	state.IndirectArgument: {stages: state.StageDrawIndirect, access: state.AccessIndirectCommandRead},
	state.CopyDest:         {stages: state.StageTransfer, access: state.AccessCopyDst},
	state.CopySource:       {stages: state.StageTransfer, access: state.AccessCopySrc},
	state.ResolveDest:      {stages: state.StageTransfer, access: state.AccessCopyDst},
	state.ResolveSource:    {stages: state.StageTransfer, access: state.AccessCopySrc},
	state.InputAttachment:  {stages: state.StagePixelShader, access: state.AccessInputAttachmentRead},
	state.Present:          {stages: state.StageBottomOfPipe, access: state.AccessNone},
	state.BuildASRead:      {stages: state.StageAccelerationStructureBuild, access: state.AccessAccelerationStructureRead},
	state.BuildASWrite:     {stages: state.StageAccelerationStructureBuild, access: state.AccessAccelerationStructureWrite},
	state.RayTracing:       {stages: state.StageRayTracingShader, access: state.AccessAccelerationStructureRead},
}

func shaderStages(queue state.QueueType) state.PipelineStageFlags {
	if queue == state.QueueGraphics {
		return state.StageVertexShader | state.StageHullShader | state.StageDomainShader |
			state.StageGeometryShader | state.StagePixelShader | state.StageComputeShader
	}

	return state.StageComputeShader
}

// DefaultTable is the stage/access mapping shared by every backend with explicit barriers
type DefaultTable struct{}

var _ StageAccessTable = DefaultTable{}

// StageAccess returns the union of the stages and accesses of every bit in s. Unknown maps
// to no stages and no access.
func (DefaultTable) StageAccess(s state.ResourceState, queue state.QueueType) (state.PipelineStageFlags, state.AccessFlags) {
	var stages state.PipelineStageFlags
	var access state.AccessFlags

	s.ForEachBit(func(bit state.ResourceState) {
		entry := defaultStageAccess[bit]
		stages |= entry.stages
		if entry.shaders {
			stages |= shaderStages(queue)
		}
		access |= entry.access
	})

	return stages, access
}
