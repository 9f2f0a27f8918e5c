package barrier

import (
	"context"
	"log/slog"

	cerrors "github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/gpucore/internal/utils"
	"github.com/vkngwrapper/gpucore/memutils"
	"github.com/vkngwrapper/gpucore/state"
	"golang.org/x/exp/slices"
)

type pendingSplit struct {
	owner    *Planner
	request  Request
	barriers []Barrier
}

// SplitTracker pairs the begin and end halves of split transitions. A resource is Stable until
// BeginSplit, SplitPending until the matching EndSplit, and Stable again afterward.
//
// One tracker is shared by every planner that records against the same registry, so a split
// begun on one context blocks transitions of the resource from all of them.
//
// On backends without split barriers the begin is recorded but emits nothing, and the end
// emits the complete transition.
type SplitTracker struct {
	logger         *slog.Logger
	registry       *state.Registry
	supportsSplits bool

	mutex   utils.OptionalMutex
	pending *swiss.Map[state.ResourceID, *pendingSplit]
}

// NewSplitTracker creates a tracker for the resources of registry
func NewSplitTracker(logger *slog.Logger, registry *state.Registry, supportsSplits bool) *SplitTracker {
	return &SplitTracker{
		logger:         utils.LoggerOrDiscard(logger),
		registry:       registry,
		supportsSplits: supportsSplits,
		mutex:          utils.OptionalMutex{UseMutex: true},
		pending:        swiss.NewMap[state.ResourceID, *pendingSplit](16),
	}
}

// SupportsSplitBarriers returns true if begin halves are emitted separately
func (t *SplitTracker) SupportsSplitBarriers() bool {
	return t.supportsSplits
}

// Pending returns true if the resource has a split transition that has begun but not ended
func (t *SplitTracker) Pending(resource state.ResourceID) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return t.pending.Has(resource)
}

// PendingCount returns the number of resources with a split transition in flight
func (t *SplitTracker) PendingCount() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return t.pending.Count()
}

func (t *SplitTracker) pendingCountFor(owner *Planner) int {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	count := 0
	t.pending.Iter(func(_ state.ResourceID, pending *pendingSplit) bool {
		if pending.owner == owner {
			count++
		}
		return false
	})
	return count
}

// begin plans request with planner and records it as pending. The registry keeps the
// resource's current state until the split ends.
func (t *SplitTracker) begin(planner *Planner, request Request) ([]Barrier, error) {
	t.logger.Debug("SplitTracker::BeginSplit", slog.Uint64("Resource", uint64(request.Resource)))

	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.pending.Has(request.Resource) {
		return nil, memutils.PreconditionFailed(cerrors.Wrapf(ErrSplitPending, "resource %d", request.Resource))
	}

	barriers, err := planner.plan(request)
	if err != nil {
		return nil, err
	}

	request.Mode = ModeBeginSplit
	t.pending.Put(request.Resource, &pendingSplit{
		owner:    planner,
		request:  request,
		barriers: barriers,
	})

	if !t.supportsSplits {
		return nil, nil
	}

	return markHalf(barriers, SplitBegin), nil
}

// EndSplit completes the split transition pending on resource. It must be issued by the same
// queue that began it. Ending a resource with nothing pending fails with ErrSplitMismatch.
func (t *SplitTracker) EndSplit(resource state.ResourceID, queue state.QueueID) ([]Barrier, error) {
	t.logger.Debug("SplitTracker::EndSplit", slog.Uint64("Resource", uint64(resource)))

	t.mutex.Lock()
	defer t.mutex.Unlock()

	pending, ok := t.pending.Get(resource)
	if !ok {
		return nil, memutils.PreconditionFailed(cerrors.Wrapf(ErrSplitMismatch, "resource %d has no pending split", resource))
	}

	if pending.request.QueueID != queue {
		return nil, memutils.PreconditionFailed(
			cerrors.Wrapf(ErrSplitMismatch, "resource %d began its split on queue %d but ended it on queue %d", resource, pending.request.QueueID, queue),
		)
	}

	return t.endAfterLock(pending)
}

func (t *SplitTracker) endAfterLock(pending *pendingSplit) ([]Barrier, error) {
	err := t.registry.SetRangeState(pending.request.Resource, pending.request.Subresources, pending.request.NewState)
	if err != nil {
		return nil, err
	}
	t.pending.Delete(pending.request.Resource)

	if !t.supportsSplits {
		return pending.barriers, nil
	}

	return markHalf(pending.barriers, SplitEnd), nil
}

// FinishFrame resolves every split transition that was begun but never ended, returning the
// barriers that complete them. Unmatched begins are a caller error: debug builds fail the
// precondition, release builds log a warning and complete the transitions.
func (t *SplitTracker) FinishFrame() ([]Barrier, error) {
	return t.finishFrame(nil)
}

// finishFrame resolves the unmatched splits begun by owner, or by any planner if owner is nil
func (t *SplitTracker) finishFrame(owner *Planner) ([]Barrier, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	var resources []state.ResourceID
	t.pending.Iter(func(resource state.ResourceID, pending *pendingSplit) bool {
		if owner == nil || pending.owner == owner {
			resources = append(resources, resource)
		}
		return false
	})

	if len(resources) == 0 {
		return nil, nil
	}
	slices.Sort(resources)

	if memutils.DebugBuild {
		return nil, memutils.PreconditionFailed(
			cerrors.Wrapf(ErrSplitMismatch, "%d split transitions were never ended, first on resource %d", len(resources), resources[0]),
		)
	}

	var barriers []Barrier
	for _, resource := range resources {
		pending, _ := t.pending.Get(resource)

		t.logger.LogAttrs(context.Background(), slog.LevelWarn, "[UNMATCHED SPLIT BARRIER] resolving as immediate",
			slog.Uint64("Resource", uint64(resource)),
			slog.String("DstState", pending.request.NewState.String()),
		)

		ended, err := t.endAfterLock(pending)
		if err != nil {
			return barriers, err
		}
		barriers = append(barriers, ended...)
	}

	return barriers, nil
}

func markHalf(barriers []Barrier, half SplitHalf) []Barrier {
	marked := make([]Barrier, len(barriers))
	for i, b := range barriers {
		b.Split = half
		marked[i] = b
	}
	return marked
}
