package d3d12_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/gpucore/backend/d3d12"
	"github.com/vkngwrapper/gpucore/barrier"
	"github.com/vkngwrapper/gpucore/state"
)

func TestEncode_SplitHalves(t *testing.T) {
	b := barrier.Barrier{
		Resource: 4,
		SrcState: state.RenderTarget,
		DstState: state.ShaderResource,
		Split:    barrier.SplitBegin,
	}

	encoded := d3d12.Encode(b, state.QueueGraphics, 1)
	require.Equal(t, []d3d12.ResourceBarrier{{
		Type:        d3d12.BarrierTypeTransition,
		Flags:       d3d12.BarrierFlagBeginOnly,
		Resource:    4,
		Subresource: d3d12.AllSubresources,
		StateBefore: d3d12.ResourceStateRenderTarget,
		StateAfter:  d3d12.ResourceStateNonPixelShaderResource | d3d12.ResourceStatePixelShaderResource,
	}}, encoded)

	b.Split = barrier.SplitEnd
	encoded = d3d12.Encode(b, state.QueueGraphics, 1)
	require.Equal(t, d3d12.BarrierFlagEndOnly, encoded[0].Flags)
}

func TestEncode_UnorderedAccessBarrier(t *testing.T) {
	encoded := d3d12.Encode(barrier.Barrier{
		Resource: 2,
		SrcState: state.UnorderedAccess,
		DstState: state.UnorderedAccess,
	}, state.QueueCompute, 1)
	require.Equal(t, []d3d12.ResourceBarrier{{Type: d3d12.BarrierTypeUAV, Resource: 2}}, encoded)
}

func TestEncode_PartialRange(t *testing.T) {
	encoded := d3d12.Encode(barrier.Barrier{
		Resource:     1,
		Subresources: state.SubresourceRange{First: 2, Count: 2},
		SrcState:     state.CopyDest,
		DstState:     state.ShaderResource,
	}, state.QueueCompute, 6)

	require.Len(t, encoded, 2)
	require.Equal(t, uint32(2), encoded[0].Subresource)
	require.Equal(t, uint32(3), encoded[1].Subresource)
	require.Equal(t, d3d12.ResourceStateNonPixelShaderResource, encoded[0].StateAfter)
}

func TestStates_GenericRead(t *testing.T) {
	require.Equal(t,
		d3d12.ResourceStateVertexAndConstantBuffer|d3d12.ResourceStateIndexBuffer|
			d3d12.ResourceStateNonPixelShaderResource|d3d12.ResourceStatePixelShaderResource|
			d3d12.ResourceStateIndirectArgument|d3d12.ResourceStateCopySource,
		d3d12.States(state.GenericRead, state.QueueGraphics))
}
