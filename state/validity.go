package state

import (
	cerrors "github.com/cockroachdb/errors"
)

type stateRequirement struct {
	bind  BindFlags
	kind  ResourceKind // zero means any kind
	queue QueueType
}

var stateRequirements = map[ResourceState]stateRequirement{
	VertexBuffer:     {bind: BindVertexBuffer, kind: KindBuffer, queue: QueueGraphics},
	ConstantBuffer:   {bind: BindUniformBuffer, kind: KindBuffer, queue: QueueCompute},
	IndexBuffer:      {bind: BindIndexBuffer, kind: KindBuffer, queue: QueueGraphics},
	RenderTarget:     {bind: BindRenderTarget, kind: KindTexture, queue: QueueGraphics},
	UnorderedAccess:  {bind: BindUnorderedAccess, queue: QueueCompute},
	DepthWrite:       {bind: BindDepthStencil, kind: KindTexture, queue: QueueGraphics},
	DepthRead:        {bind: BindDepthStencil, kind: KindTexture, queue: QueueGraphics},
	ShaderResource:   {bind: BindShaderResource, queue: QueueCompute},
	StreamOut:        {bind: BindStreamOutput, kind: KindBuffer, queue: QueueGraphics},
	IndirectArgument: {bind: BindIndirectDrawArgs, kind: KindBuffer, queue: QueueCompute},
	CopyDest:         {bind: BindCopyDest, queue: QueueTransfer},
	CopySource:       {bind: BindCopySource, queue: QueueTransfer},
	ResolveDest:      {bind: BindRenderTarget, kind: KindTexture, queue: QueueGraphics},
	ResolveSource:    {bind: BindRenderTarget, kind: KindTexture, queue: QueueGraphics},
	InputAttachment:  {bind: BindInputAttachment, kind: KindTexture, queue: QueueGraphics},
	Present:          {bind: BindRenderTarget, kind: KindTexture, queue: QueueGraphics},
	BuildASRead:      {bind: BindRayTracing, queue: QueueCompute},
	BuildASWrite:     {bind: BindRayTracing, queue: QueueCompute},
	RayTracing:       {bind: BindRayTracing, queue: QueueCompute},
}

// RequiredQueue returns the least capable queue class that can use a resource in state s.
// Unknown and Undefined can be handled by any queue.
func RequiredQueue(s ResourceState) QueueType {
	required := QueueTransfer
	s.ForEachBit(func(bit ResourceState) {
		req, ok := stateRequirements[bit]
		if ok {
			required |= req.queue
		}
	})
	return required
}

// SupportedByQueue returns true if a queue of type queue can transition a resource into,
// or out of, state s
func SupportedByQueue(s ResourceState, queue QueueType) bool {
	return queue.Supports(RequiredQueue(s))
}

// ValidateForResource verifies that s is well-formed and that every bit of it is allowed
// by the resource's bind flags and kind. Unknown and Undefined are always allowed.
func ValidateForResource(s ResourceState, desc *ResourceDesc) error {
	if !s.IsWellFormed() {
		return cerrors.Wrapf(ErrInvalidState, "state %s is not a legal combination", s)
	}

	if !s.IsKnown() {
		return nil
	}

	var err error
	s.ForEachBit(func(bit ResourceState) {
		if err != nil {
			return
		}

		req := stateRequirements[bit]
		if desc.BindFlags&req.bind == 0 {
			err = cerrors.Wrapf(ErrInvalidState, "state %s requires bind flag %s but %s was created with %s", bit, req.bind, desc, desc.BindFlags)
			return
		}

		if req.kind != 0 && req.kind != desc.Kind {
			err = cerrors.Wrapf(ErrInvalidState, "state %s is only valid for a %s but %s is a %s", bit, req.kind, desc, desc.Kind)
		}
	})

	return err
}

// QueueStageMask returns every pipeline stage that a queue of the given type can execute
func QueueStageMask(queue QueueType) PipelineStageFlags {
	switch queue {
	case QueueTransfer:
		return StageTopOfPipe | StageTransfer | StageBottomOfPipe | StageHost
	case QueueCompute:
		return StageTopOfPipe | StageTransfer | StageBottomOfPipe | StageHost |
			StageDrawIndirect | StageComputeShader | StageAccelerationStructureBuild | StageRayTracingShader
	case QueueGraphics:
		return StageTopOfPipe | StageDrawIndirect | StageVertexInput | StageVertexShader |
			StageHullShader | StageDomainShader | StageGeometryShader | StagePixelShader |
			StageFragmentTests | StageRenderTarget | StageComputeShader | StageTransfer |
			StageBottomOfPipe | StageHost | StageRayTracingShader | StageAccelerationStructureBuild
	}

	return StageUndefined
}

// QueueAccessMask returns every access type that a queue of the given type can perform
func QueueAccessMask(queue QueueType) AccessFlags {
	transfer := AccessCopySrc | AccessCopyDst | AccessHostRead | AccessHostWrite | AccessMemoryRead | AccessMemoryWrite

	switch queue {
	case QueueTransfer:
		return transfer
	case QueueCompute:
		return transfer | AccessIndirectCommandRead | AccessUniformRead | AccessShaderRead | AccessShaderWrite |
			AccessAccelerationStructureRead | AccessAccelerationStructureWrite
	case QueueGraphics:
		return transfer | AccessIndirectCommandRead | AccessIndexRead | AccessVertexRead | AccessUniformRead |
			AccessInputAttachmentRead | AccessShaderRead | AccessShaderWrite | AccessRenderTargetRead |
			AccessRenderTargetWrite | AccessDepthStencilRead | AccessDepthStencilWrite |
			AccessAccelerationStructureRead | AccessAccelerationStructureWrite
	}

	return AccessNone
}
