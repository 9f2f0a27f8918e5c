package barrier_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/gpucore/barrier"
	"github.com/vkngwrapper/gpucore/memutils"
	"github.com/vkngwrapper/gpucore/state"
)

// requirePrecondition verifies that fn fails its precondition with target: a panic in debug
// builds, a returned assertion failure otherwise
func requirePrecondition(t *testing.T, target error, fn func() error) {
	t.Helper()

	if memutils.DebugBuild {
		require.Panics(t, func() { _ = fn() })
		return
	}

	err := fn()
	require.ErrorIs(t, err, target)
	require.True(t, memutils.IsPreconditionFailure(err))
}

func newRegistry(t *testing.T, descs ...state.ResourceDesc) *state.Registry {
	registry := state.NewRegistry(nil, 0)
	for _, desc := range descs {
		require.NoError(t, registry.Register(desc))
	}
	return registry
}

func renderTexture(id state.ResourceID) state.ResourceDesc {
	return state.ResourceDesc{
		ID:        id,
		Kind:      state.KindTexture,
		Name:      "render target",
		BindFlags: state.BindRenderTarget | state.BindCopySource,
	}
}

func storageBuffer(id state.ResourceID) state.ResourceDesc {
	return state.ResourceDesc{
		ID:   id,
		Kind: state.KindBuffer,
		BindFlags: state.BindVertexBuffer | state.BindIndexBuffer | state.BindUniformBuffer |
			state.BindShaderResource | state.BindUnorderedAccess | state.BindIndirectDrawArgs |
			state.BindCopySource | state.BindCopyDest,
	}
}

func transition(id state.ResourceID, newState state.ResourceState, queue state.QueueType) barrier.Request {
	return barrier.Request{
		Resource:  id,
		NewState:  newState,
		QueueType: queue,
	}
}

func TestPlanner_RenderTargetThenCopySource(t *testing.T) {
	registry := newRegistry(t, renderTexture(1))
	planner := barrier.NewPlanner(nil, registry, barrier.PlannerOptions{})

	s, err := registry.GetState(1, state.AllSubresources)
	require.NoError(t, err)
	require.Equal(t, state.Undefined, s)

	barriers, err := planner.PlanTransition(transition(1, state.RenderTarget, state.QueueGraphics))
	require.NoError(t, err)
	require.Len(t, barriers, 1)
	require.Equal(t, state.Undefined, barriers[0].SrcState)
	require.Equal(t, state.RenderTarget, barriers[0].DstState)
	require.Equal(t, state.StageTopOfPipe, barriers[0].SrcStages)
	require.Equal(t, state.StageRenderTarget, barriers[0].DstStages)
	require.NotZero(t, barriers[0].DstAccess&state.AccessRenderTargetWrite)

	s, err = registry.GetState(1, state.AllSubresources)
	require.NoError(t, err)
	require.Equal(t, state.RenderTarget, s)

	barriers, err = planner.PlanTransition(transition(1, state.RenderTarget, state.QueueGraphics))
	require.NoError(t, err)
	require.Empty(t, barriers)

	barriers, err = planner.PlanTransition(transition(1, state.CopySource, state.QueueTransfer))
	require.NoError(t, err)
	require.Len(t, barriers, 1)
	require.Equal(t, barrier.Barrier{
		Resource:  1,
		SrcState:  state.RenderTarget,
		DstState:  state.CopySource,
		SrcStages: state.QueueStageMask(state.QueueTransfer),
		DstStages: state.StageTransfer,
		SrcAccess: state.AccessMemoryWrite,
		DstAccess: state.AccessCopySrc,
	}, barriers[0])

	s, err = registry.GetState(1, state.AllSubresources)
	require.NoError(t, err)
	require.Equal(t, state.CopySource, s)
}

func TestPlanner_ReplayEndsInLastState(t *testing.T) {
	registry := newRegistry(t, storageBuffer(1))
	planner := barrier.NewPlanner(nil, registry, barrier.PlannerOptions{})

	candidates := []state.ResourceState{
		state.VertexBuffer, state.IndexBuffer, state.ConstantBuffer, state.ShaderResource,
		state.UnorderedAccess, state.IndirectArgument, state.CopySource, state.CopyDest,
		state.VertexBuffer | state.IndexBuffer, state.GenericRead,
	}

	rng := rand.New(rand.NewSource(42))
	var last state.ResourceState
	for i := 0; i < 500; i++ {
		last = candidates[rng.Intn(len(candidates))]

		_, err := planner.PlanTransition(transition(1, last, state.QueueGraphics))
		require.NoError(t, err)

		s, err := registry.GetState(1, state.AllSubresources)
		require.NoError(t, err)
		require.Equal(t, last, s)
	}
}

func TestPlanner_Idempotence(t *testing.T) {
	registry := newRegistry(t, storageBuffer(1))
	planner := barrier.NewPlanner(nil, registry, barrier.PlannerOptions{})

	for _, s := range []state.ResourceState{state.ShaderResource, state.CopyDest, state.VertexBuffer} {
		request := transition(1, s, state.QueueGraphics)
		request.OldState = s

		barriers, err := planner.PlanTransition(request)
		require.NoError(t, err)
		require.Empty(t, barriers, s.String())
	}
}

func TestPlanner_UnorderedAccessNeedsMemoryBarrier(t *testing.T) {
	registry := newRegistry(t, storageBuffer(1))
	planner := barrier.NewPlanner(nil, registry, barrier.PlannerOptions{})

	_, err := planner.PlanTransition(transition(1, state.UnorderedAccess, state.QueueCompute))
	require.NoError(t, err)

	barriers, err := planner.PlanTransition(transition(1, state.UnorderedAccess, state.QueueCompute))
	require.NoError(t, err)
	require.Len(t, barriers, 1)
	require.True(t, barriers[0].IsMemoryBarrier())
	require.Equal(t, state.StageComputeShader, barriers[0].SrcStages)
	require.Equal(t, state.AccessShaderRead|state.AccessShaderWrite, barriers[0].SrcAccess)
}

func TestPlanner_ReadSubsetNeedsNoBarrier(t *testing.T) {
	registry := newRegistry(t, storageBuffer(1))
	planner := barrier.NewPlanner(nil, registry, barrier.PlannerOptions{})

	_, err := planner.PlanTransition(transition(1, state.VertexBuffer|state.IndexBuffer, state.QueueGraphics))
	require.NoError(t, err)

	barriers, err := planner.PlanTransition(transition(1, state.IndexBuffer, state.QueueGraphics))
	require.NoError(t, err)
	require.Empty(t, barriers)

	s, err := registry.GetState(1, state.AllSubresources)
	require.NoError(t, err)
	require.Equal(t, state.IndexBuffer, s)
}

func TestPlanner_WriteAfterReadOrdering(t *testing.T) {
	registry := newRegistry(t, storageBuffer(1))
	planner := barrier.NewPlanner(nil, registry, barrier.PlannerOptions{})

	_, err := planner.PlanTransition(transition(1, state.ShaderResource, state.QueueGraphics))
	require.NoError(t, err)

	barriers, err := planner.PlanTransition(transition(1, state.CopyDest, state.QueueGraphics))
	require.NoError(t, err)
	require.Len(t, barriers, 1)
	require.Equal(t, state.AccessShaderRead, barriers[0].SrcAccess)
	require.Equal(t, state.AccessCopyDst, barriers[0].DstAccess)
	require.Equal(t, state.StageTransfer, barriers[0].DstStages)
	require.NotZero(t, barriers[0].SrcStages&state.StagePixelShader)
}

func TestPlanner_RejectsStateOutsideQueueClass(t *testing.T) {
	registry := newRegistry(t, renderTexture(1))
	planner := barrier.NewPlanner(nil, registry, barrier.PlannerOptions{})

	requirePrecondition(t, barrier.ErrUnsupportedQueue, func() error {
		_, err := planner.PlanTransition(transition(1, state.RenderTarget, state.QueueTransfer))
		return err
	})

	requirePrecondition(t, barrier.ErrUnsupportedQueue, func() error {
		_, err := planner.PlanTransition(transition(1, state.CopySource, state.QueueUnknown))
		return err
	})

	s, err := registry.GetState(1, state.AllSubresources)
	require.NoError(t, err)
	require.Equal(t, state.Undefined, s)
}

func TestPlanner_RejectsStateOutsideBindFlags(t *testing.T) {
	registry := newRegistry(t, renderTexture(1))
	planner := barrier.NewPlanner(nil, registry, barrier.PlannerOptions{})

	requirePrecondition(t, state.ErrInvalidState, func() error {
		_, err := planner.PlanTransition(transition(1, state.ShaderResource, state.QueueGraphics))
		return err
	})

	requirePrecondition(t, state.ErrInvalidState, func() error {
		_, err := planner.PlanTransition(transition(1, state.Undefined, state.QueueGraphics))
		return err
	})

	requirePrecondition(t, state.ErrResourceNotRegistered, func() error {
		_, err := planner.PlanTransition(transition(2, state.CopySource, state.QueueGraphics))
		return err
	})
}

func TestPlanner_ApplicationOwnedState(t *testing.T) {
	registry := newRegistry(t, storageBuffer(1))
	require.NoError(t, registry.SetState(1, state.AllSubresources, state.Unknown))
	planner := barrier.NewPlanner(nil, registry, barrier.PlannerOptions{})

	requirePrecondition(t, barrier.ErrUnknownCurrentState, func() error {
		_, err := planner.PlanTransition(transition(1, state.CopyDest, state.QueueGraphics))
		return err
	})

	request := transition(1, state.CopyDest, state.QueueGraphics)
	request.OldState = state.ShaderResource
	barriers, err := planner.PlanTransition(request)
	require.NoError(t, err)
	require.Len(t, barriers, 1)
	require.Equal(t, state.ShaderResource, barriers[0].SrcState)

	s, err := registry.GetState(1, state.AllSubresources)
	require.NoError(t, err)
	require.Equal(t, state.CopyDest, s)
}

func TestPlanner_MixedSubresourcesPlanOneBarrierPerRun(t *testing.T) {
	desc := renderTexture(1)
	desc.BindFlags |= state.BindShaderResource
	desc.SubresourceCount = 5
	registry := newRegistry(t, desc)
	planner := barrier.NewPlanner(nil, registry, barrier.PlannerOptions{})

	require.NoError(t, registry.SetState(1, state.AllSubresources, state.ShaderResource))
	require.NoError(t, registry.SetRangeState(1, state.SubresourceRange{First: 1, Count: 2}, state.RenderTarget))

	barriers, err := planner.PlanTransition(transition(1, state.RenderTarget, state.QueueGraphics))
	require.NoError(t, err)
	require.Len(t, barriers, 2)
	require.Equal(t, state.SubresourceRange{First: 0, Count: 1}, barriers[0].Subresources)
	require.Equal(t, state.SubresourceRange{First: 3, Count: 2}, barriers[1].Subresources)
	require.Equal(t, state.ShaderResource, barriers[0].SrcState)
	require.Equal(t, state.ShaderResource, barriers[1].SrcState)

	s, err := registry.GetState(1, state.AllSubresources)
	require.NoError(t, err)
	require.Equal(t, state.RenderTarget, s)
}

func TestDefaultTable_ShaderStagesFollowQueue(t *testing.T) {
	table := barrier.DefaultTable{}

	stages, access := table.StageAccess(state.ShaderResource, state.QueueCompute)
	require.Equal(t, state.StageComputeShader, stages)
	require.Equal(t, state.AccessShaderRead, access)

	stages, _ = table.StageAccess(state.ShaderResource, state.QueueGraphics)
	require.NotZero(t, stages&state.StagePixelShader)

	stages, access = table.StageAccess(state.VertexBuffer|state.IndirectArgument, state.QueueGraphics)
	require.Equal(t, state.StageVertexInput|state.StageDrawIndirect, stages)
	require.Equal(t, state.AccessVertexRead|state.AccessIndirectCommandRead, access)

	stages, access = table.StageAccess(state.Unknown, state.QueueGraphics)
	require.Equal(t, state.StageUndefined, stages)
	require.Equal(t, state.AccessNone, access)
}
