// Package d3d12 translates planned barriers into D3D12_RESOURCE_BARRIER values
package d3d12

import (
	"github.com/vkngwrapper/gpucore/barrier"
	"github.com/vkngwrapper/gpucore/state"
)

// ResourceStates mirrors D3D12_RESOURCE_STATES
type ResourceStates uint32

const (
	ResourceStateCommon                          ResourceStates = 0
	ResourceStateVertexAndConstantBuffer         ResourceStates = 0x1
	ResourceStateIndexBuffer                     ResourceStates = 0x2
	ResourceStateRenderTarget                    ResourceStates = 0x4
	ResourceStateUnorderedAccess                 ResourceStates = 0x8
	ResourceStateDepthWrite                      ResourceStates = 0x10
	ResourceStateDepthRead                       ResourceStates = 0x20
	ResourceStateNonPixelShaderResource          ResourceStates = 0x40
	ResourceStatePixelShaderResource             ResourceStates = 0x80
	ResourceStateStreamOut                       ResourceStates = 0x100
	ResourceStateIndirectArgument                ResourceStates = 0x200
	ResourceStateCopyDest                        ResourceStates = 0x400
	ResourceStateCopySource                      ResourceStates = 0x800
	ResourceStateResolveDest                     ResourceStates = 0x1000
	ResourceStateResolveSource                   ResourceStates = 0x2000
	ResourceStateRaytracingAccelerationStructure ResourceStates = 0x400000
	ResourceStatePresent                         ResourceStates = 0
)

// BarrierType mirrors D3D12_RESOURCE_BARRIER_TYPE
type BarrierType uint32

const (
	BarrierTypeTransition BarrierType = 0
	BarrierTypeAliasing   BarrierType = 1
	BarrierTypeUAV        BarrierType = 2
)

// BarrierFlags mirrors D3D12_RESOURCE_BARRIER_FLAGS
type BarrierFlags uint32

const (
	BarrierFlagNone      BarrierFlags = 0
	BarrierFlagBeginOnly BarrierFlags = 0x1
	BarrierFlagEndOnly   BarrierFlags = 0x2
)

// AllSubresources mirrors D3D12_RESOURCE_BARRIER_ALL_SUBRESOURCES
const AllSubresources uint32 = 0xffffffff

// ResourceBarrier carries the fields of a D3D12_RESOURCE_BARRIER that depend on planning. The
// native resource pointer is filled in by the command-recording layer.
type ResourceBarrier struct {
	Type        BarrierType
	Flags       BarrierFlags
	Resource    state.ResourceID
	Subresource uint32
	StateBefore ResourceStates
	StateAfter  ResourceStates
}

var stateMapping = map[state.ResourceState]ResourceStates{
	state.Undefined:        ResourceStateCommon,
	state.VertexBuffer:     ResourceStateVertexAndConstantBuffer,
	state.ConstantBuffer:   ResourceStateVertexAndConstantBuffer,
	state.IndexBuffer:      ResourceStateIndexBuffer,
	state.RenderTarget:     ResourceStateRenderTarget,
	state.UnorderedAccess:  ResourceStateUnorderedAccess,
	state.DepthWrite:       ResourceStateDepthWrite,
	state.DepthRead:        ResourceStateDepthRead,
	state.ShaderResource:   ResourceStateNonPixelShaderResource | ResourceStatePixelShaderResource,
	state.StreamOut:        ResourceStateStreamOut,
	state.IndirectArgument: ResourceStateIndirectArgument,
	state.CopyDest:         ResourceStateCopyDest,
	state.CopySource:       ResourceStateCopySource,
	state.ResolveDest:      ResourceStateResolveDest,
	state.ResolveSource:    ResourceStateResolveSource,
	state.InputAttachment:  ResourceStatePixelShaderResource,
	state.Present:          ResourceStatePresent,
	state.BuildASRead:      ResourceStateRaytracingAccelerationStructure,
	state.BuildASWrite:     ResourceStateRaytracingAccelerationStructure,
	state.RayTracing:       ResourceStateRaytracingAccelerationStructure,
}

// States converts a resource state to D3D12 resource states. Compute queues cannot use the
// pixel shader resource state, so it is dropped for them.
func States(s state.ResourceState, queue state.QueueType) ResourceStates {
	var states ResourceStates
	s.ForEachBit(func(bit state.ResourceState) {
		states |= stateMapping[bit]
	})

	if queue != state.QueueGraphics {
		states &^= ResourceStatePixelShaderResource
	}
	return states
}

// Encode returns the D3D12 barriers for a planned barrier: one per subresource of a partial
// range, or a single barrier for the whole resource. subresourceCount is the resource's
// total subresource count.
func Encode(b barrier.Barrier, queue state.QueueType, subresourceCount int) []ResourceBarrier {
	if b.IsMemoryBarrier() {
		return []ResourceBarrier{{
			Type:     BarrierTypeUAV,
			Resource: b.Resource,
		}}
	}

	flags := BarrierFlagNone
	switch b.Split {
	case barrier.SplitBegin:
		flags = BarrierFlagBeginOnly
	case barrier.SplitEnd:
		flags = BarrierFlagEndOnly
	}

	template := ResourceBarrier{
		Type:        BarrierTypeTransition,
		Flags:       flags,
		Resource:    b.Resource,
		Subresource: AllSubresources,
		StateBefore: States(b.SrcState, queue),
		StateAfter:  States(b.DstState, queue),
	}

	if b.Subresources.IsWhole(subresourceCount) {
		return []ResourceBarrier{template}
	}

	first, count, err := b.Subresources.Resolve(subresourceCount)
	if err != nil {
		return nil
	}

	barriers := make([]ResourceBarrier, count)
	for i := range barriers {
		barriers[i] = template
		barriers[i].Subresource = uint32(first + i)
	}
	return barriers
}
