package barrier_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/gpucore/barrier"
	"github.com/vkngwrapper/gpucore/memutils"
	"github.com/vkngwrapper/gpucore/state"
)

func splitRequest(id state.ResourceID, newState state.ResourceState, mode barrier.Mode) barrier.Request {
	return barrier.Request{
		Resource:  id,
		NewState:  newState,
		QueueID:   3,
		QueueType: state.QueueGraphics,
		Mode:      mode,
	}
}

func TestSplitTracker_BeginAndEndHalves(t *testing.T) {
	registry := newRegistry(t, storageBuffer(1))
	planner := barrier.NewPlanner(nil, registry, barrier.PlannerOptions{SupportsSplitBarriers: true})

	barriers, err := planner.PlanTransition(splitRequest(1, state.CopyDest, barrier.ModeBeginSplit))
	require.NoError(t, err)
	require.Len(t, barriers, 1)
	require.Equal(t, barrier.SplitBegin, barriers[0].Split)
	require.True(t, planner.Splits().Pending(1))
	require.Equal(t, 1, planner.Splits().PendingCount())

	// The registry keeps the old state until the split completes
	s, err := registry.GetState(1, state.AllSubresources)
	require.NoError(t, err)
	require.Equal(t, state.Undefined, s)

	barriers, err = planner.PlanTransition(splitRequest(1, state.CopyDest, barrier.ModeEndSplit))
	require.NoError(t, err)
	require.Len(t, barriers, 1)
	require.Equal(t, barrier.SplitEnd, barriers[0].Split)
	require.Equal(t, state.CopyDest, barriers[0].DstState)
	require.False(t, planner.Splits().Pending(1))

	s, err = registry.GetState(1, state.AllSubresources)
	require.NoError(t, err)
	require.Equal(t, state.CopyDest, s)
}

func TestSplitTracker_CoalescedWithoutSplitSupport(t *testing.T) {
	registry := newRegistry(t, storageBuffer(1))
	planner := barrier.NewPlanner(nil, registry, barrier.PlannerOptions{})
	require.False(t, planner.Splits().SupportsSplitBarriers())

	barriers, err := planner.BeginSplit(splitRequest(1, state.ShaderResource, barrier.ModeBeginSplit))
	require.NoError(t, err)
	require.Empty(t, barriers)
	require.True(t, planner.Splits().Pending(1))

	barriers, err = planner.Splits().EndSplit(1, 3)
	require.NoError(t, err)
	require.Len(t, barriers, 1)
	require.Equal(t, barrier.SplitNone, barriers[0].Split)
	require.Equal(t, state.Undefined, barriers[0].SrcState)
	require.Equal(t, state.ShaderResource, barriers[0].DstState)
}

func TestSplitTracker_DoubleBeginFails(t *testing.T) {
	registry := newRegistry(t, storageBuffer(1))
	planner := barrier.NewPlanner(nil, registry, barrier.PlannerOptions{SupportsSplitBarriers: true})

	_, err := planner.PlanTransition(splitRequest(1, state.CopyDest, barrier.ModeBeginSplit))
	require.NoError(t, err)

	requirePrecondition(t, barrier.ErrSplitPending, func() error {
		_, err := planner.PlanTransition(splitRequest(1, state.ShaderResource, barrier.ModeBeginSplit))
		return err
	})
	require.Equal(t, 1, planner.Splits().PendingCount())
}

func TestSplitTracker_ImmediateDuringSplitFails(t *testing.T) {
	registry := newRegistry(t, storageBuffer(1))
	planner := barrier.NewPlanner(nil, registry, barrier.PlannerOptions{SupportsSplitBarriers: true})

	_, err := planner.PlanTransition(splitRequest(1, state.CopyDest, barrier.ModeBeginSplit))
	require.NoError(t, err)

	requirePrecondition(t, barrier.ErrSplitPending, func() error {
		_, err := planner.PlanTransition(splitRequest(1, state.ShaderResource, barrier.ModeImmediate))
		return err
	})
}

func TestSplitTracker_EndWithoutBeginFails(t *testing.T) {
	registry := newRegistry(t, storageBuffer(1))
	planner := barrier.NewPlanner(nil, registry, barrier.PlannerOptions{SupportsSplitBarriers: true})

	requirePrecondition(t, barrier.ErrSplitMismatch, func() error {
		_, err := planner.Splits().EndSplit(1, 3)
		return err
	})

	_, err := planner.PlanTransition(splitRequest(1, state.CopyDest, barrier.ModeBeginSplit))
	require.NoError(t, err)

	requirePrecondition(t, barrier.ErrSplitMismatch, func() error {
		_, err := planner.Splits().EndSplit(1, 4)
		return err
	})
	require.True(t, planner.Splits().Pending(1))
}

func TestSplitTracker_FinishFrameResolvesUnmatched(t *testing.T) {
	registry := newRegistry(t, storageBuffer(1), storageBuffer(2))
	planner := barrier.NewPlanner(nil, registry, barrier.PlannerOptions{})

	_, err := planner.PlanTransition(splitRequest(2, state.CopyDest, barrier.ModeBeginSplit))
	require.NoError(t, err)
	_, err = planner.PlanTransition(splitRequest(1, state.IndirectArgument, barrier.ModeBeginSplit))
	require.NoError(t, err)

	if memutils.DebugBuild {
		require.Panics(t, func() { _, _ = planner.Splits().FinishFrame() })
		return
	}

	barriers, err := planner.Splits().FinishFrame()
	require.NoError(t, err)
	require.Len(t, barriers, 2)
	require.Equal(t, state.ResourceID(1), barriers[0].Resource)
	require.Equal(t, state.ResourceID(2), barriers[1].Resource)
	require.Zero(t, planner.Splits().PendingCount())

	s, err := registry.GetState(2, state.AllSubresources)
	require.NoError(t, err)
	require.Equal(t, state.CopyDest, s)

	barriers, err = planner.Splits().FinishFrame()
	require.NoError(t, err)
	require.Empty(t, barriers)
}

func TestSplitTracker_SharedAcrossPlanners(t *testing.T) {
	registry := newRegistry(t, storageBuffer(1))
	splits := barrier.NewSplitTracker(nil, registry, true)
	first := barrier.NewPlanner(nil, registry, barrier.PlannerOptions{Splits: splits})
	second := barrier.NewPlanner(nil, registry, barrier.PlannerOptions{Splits: splits})
	require.Same(t, splits, second.Splits())

	_, err := first.PlanTransition(splitRequest(1, state.ShaderResource, barrier.ModeBeginSplit))
	require.NoError(t, err)
	require.True(t, second.Splits().Pending(1))

	requirePrecondition(t, barrier.ErrSplitPending, func() error {
		_, err := second.PlanTransition(splitRequest(1, state.CopyDest, barrier.ModeImmediate))
		return err
	})
	requirePrecondition(t, barrier.ErrSplitPending, func() error {
		_, err := second.PlanTransition(splitRequest(1, state.CopyDest, barrier.ModeBeginSplit))
		return err
	})

	s, err := registry.GetState(1, state.AllSubresources)
	require.NoError(t, err)
	require.Equal(t, state.Undefined, s)

	require.Equal(t, 1, first.PendingSplits())
	require.Zero(t, second.PendingSplits())

	// Only the planner that began the split resolves it at frame end
	barriers, err := second.FinishFrame()
	require.NoError(t, err)
	require.Empty(t, barriers)
	require.True(t, splits.Pending(1))

	barriers, err = first.PlanTransition(splitRequest(1, state.ShaderResource, barrier.ModeEndSplit))
	require.NoError(t, err)
	require.Len(t, barriers, 1)
	require.Equal(t, barrier.SplitEnd, barriers[0].Split)

	barriers, err = second.PlanTransition(splitRequest(1, state.CopyDest, barrier.ModeImmediate))
	require.NoError(t, err)
	require.Len(t, barriers, 1)
	require.Equal(t, state.ShaderResource, barriers[0].SrcState)
}
