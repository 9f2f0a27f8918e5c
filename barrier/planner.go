package barrier

import (
	"log/slog"

	cerrors "github.com/cockroachdb/errors"
	"github.com/vkngwrapper/gpucore/internal/utils"
	"github.com/vkngwrapper/gpucore/memutils"
	"github.com/vkngwrapper/gpucore/state"
)

// PlannerOptions configures a Planner
type PlannerOptions struct {
	// Table maps states to stage and access masks. Nil uses DefaultTable.
	Table StageAccessTable
	// SupportsSplitBarriers is true for backends that can record the two halves of a
	// transition separately. It is ignored when Splits is set.
	SupportsSplitBarriers bool
	// Splits is the tracker shared by every planner recording against the same registry.
	// Nil gives the planner a tracker of its own.
	Splits *SplitTracker
}

// Planner decides which barriers a transition request requires and keeps the registry's
// view of each resource up to date. Each recording context owns one Planner; planners of
// different contexts may share a registry subject to the registry's synchronization rules,
// and must then share its SplitTracker too.
type Planner struct {
	logger   *slog.Logger
	registry *state.Registry
	table    StageAccessTable
	splits   *SplitTracker
}

func NewPlanner(logger *slog.Logger, registry *state.Registry, options PlannerOptions) *Planner {
	table := options.Table
	if table == nil {
		table = DefaultTable{}
	}

	splits := options.Splits
	if splits == nil {
		splits = NewSplitTracker(logger, registry, options.SupportsSplitBarriers)
	}

	return &Planner{
		logger:   utils.LoggerOrDiscard(logger),
		registry: registry,
		table:    table,
		splits:   splits,
	}
}

// Splits returns the tracker holding the pending split transitions
func (p *Planner) Splits() *SplitTracker {
	return p.splits
}

// BeginSplit starts a split transition toward request.NewState. The registry keeps the
// resource's current state until EndSplit. Beginning a second split on the same resource,
// from this planner or any other sharing the tracker, fails with ErrSplitPending.
func (p *Planner) BeginSplit(request Request) ([]Barrier, error) {
	return p.splits.begin(p, request)
}

// EndSplit completes the split transition pending on resource
func (p *Planner) EndSplit(resource state.ResourceID, queue state.QueueID) ([]Barrier, error) {
	return p.splits.EndSplit(resource, queue)
}

// PendingSplits returns the number of split transitions begun by this planner that have not
// ended
func (p *Planner) PendingSplits() int {
	return p.splits.pendingCountFor(p)
}

// FinishFrame resolves the split transitions this planner began but never ended. See
// SplitTracker.FinishFrame.
func (p *Planner) FinishFrame() ([]Barrier, error) {
	return p.splits.finishFrame(p)
}

// PlanTransition returns the barriers that must be recorded before the resource can be used in
// request.NewState. An empty result means no barrier is needed. The registry is updated as
// soon as the transition has been planned, not when the GPU executes it.
//
// Split requests are forwarded to the SplitTracker.
func (p *Planner) PlanTransition(request Request) ([]Barrier, error) {
	p.logger.Debug("Planner::PlanTransition",
		slog.Uint64("Resource", uint64(request.Resource)),
		slog.String("NewState", request.NewState.String()),
		slog.String("Mode", request.Mode.String()),
	)

	switch request.Mode {
	case ModeBeginSplit:
		return p.BeginSplit(request)
	case ModeEndSplit:
		return p.EndSplit(request.Resource, request.QueueID)
	case ModeImmediate:
	default:
		return nil, memutils.PreconditionFailed(cerrors.Newf("unknown transition mode %d", int32(request.Mode)))
	}

	if p.splits.Pending(request.Resource) {
		return nil, memutils.PreconditionFailed(cerrors.Wrapf(ErrSplitPending, "resource %d", request.Resource))
	}

	barriers, err := p.plan(request)
	if err != nil {
		return nil, err
	}

	return barriers, p.commit(request)
}

func (p *Planner) commit(request Request) error {
	return p.registry.SetRangeState(request.Resource, request.Subresources, request.NewState)
}

func (p *Planner) validate(request Request, desc *state.ResourceDesc) error {
	if request.QueueType != state.QueueTransfer && request.QueueType != state.QueueCompute && request.QueueType != state.QueueGraphics {
		return memutils.PreconditionFailed(cerrors.Wrapf(ErrUnsupportedQueue, "queue %d has type %s", request.QueueID, request.QueueType))
	}

	if !request.NewState.IsKnown() {
		return memutils.PreconditionFailed(cerrors.Wrapf(state.ErrInvalidState, "%s cannot be transitioned to %s", desc, request.NewState))
	}

	err := state.ValidateForResource(request.NewState, desc)
	if err != nil {
		return memutils.PreconditionFailed(err)
	}

	if !state.SupportedByQueue(request.NewState, request.QueueType) {
		return memutils.PreconditionFailed(cerrors.Wrapf(ErrUnsupportedQueue, "%s cannot enter %s on a %s", desc, request.NewState, request.QueueType))
	}

	if request.OldState != state.Unknown {
		err = state.ValidateForResource(request.OldState, desc)
		if err != nil {
			return memutils.PreconditionFailed(cerrors.Wrap(err, "old state"))
		}
	}

	return nil
}

// currentStates returns the state of every subresource in the request's range, either the
// caller-supplied old state or the registry's
func (p *Planner) currentStates(request Request, desc *state.ResourceDesc) (first int, states []state.ResourceState, err error) {
	first, count, err := request.Subresources.Resolve(desc.SubresourceCount)
	if err != nil {
		return 0, nil, memutils.PreconditionFailed(cerrors.Wrapf(err, "%s", desc))
	}

	if request.OldState != state.Unknown {
		states = make([]state.ResourceState, count)
		for i := range states {
			states[i] = request.OldState
		}
		return first, states, nil
	}

	states, err = p.registry.SubresourceStates(request.Resource, request.Subresources)
	if err != nil {
		return 0, nil, err
	}

	for i, s := range states {
		if s == state.Unknown {
			return 0, nil, memutils.PreconditionFailed(
				cerrors.Wrapf(ErrUnknownCurrentState, "subresource %d of %s is application-owned and no old state was given", first+i, desc),
			)
		}
	}

	return first, states, nil
}

// plan computes the barriers for request without touching the registry
func (p *Planner) plan(request Request) ([]Barrier, error) {
	desc, err := p.registry.Desc(request.Resource)
	if err != nil {
		return nil, err
	}

	err = p.validate(request, &desc)
	if err != nil {
		return nil, err
	}

	first, states, err := p.currentStates(request, &desc)
	if err != nil {
		return nil, err
	}

	var barriers []Barrier
	runStart := 0
	for i := 1; i <= len(states); i++ {
		if i < len(states) && states[i] == states[runStart] {
			continue
		}

		rng := request.Subresources
		if runStart != 0 || i != len(states) {
			rng = state.SubresourceRange{First: first + runStart, Count: i - runStart}
		}

		barrier, needed := p.planRun(request, rng, states[runStart])
		if needed {
			barriers = append(barriers, barrier)
		}
		runStart = i
	}

	return barriers, nil
}

// planRun plans the transition of a range of subresources that all share the state old
func (p *Planner) planRun(request Request, rng state.SubresourceRange, old state.ResourceState) (Barrier, bool) {
	newState := request.NewState

	if old == newState {
		// Consecutive writes through unordered access still need ordering against each other
		if newState != state.UnorderedAccess && newState != state.BuildASWrite {
			return Barrier{}, false
		}
	} else if old != state.Undefined && !old.IsWrite() && old.Contains(newState) {
		return Barrier{}, false
	}

	queueStages := state.QueueStageMask(request.QueueType)
	queueAccess := state.QueueAccessMask(request.QueueType)

	srcStages, srcAccess := p.table.StageAccess(old, request.QueueType)
	dstStages, dstAccess := p.table.StageAccess(newState, request.QueueType)

	// The previous state may have been used on a more capable queue; wait on everything this
	// queue can see instead
	clippedSrcStages := srcStages & queueStages
	if clippedSrcStages == 0 {
		clippedSrcStages = queueStages
	}

	clippedSrcAccess := srcAccess & queueAccess
	if srcAccess.HasWrite() && !clippedSrcAccess.HasWrite() {
		clippedSrcAccess |= state.AccessMemoryWrite
	}

	return Barrier{
		Resource:     request.Resource,
		Subresources: rng,
		Queue:        request.QueueID,
		SrcState:     old,
		DstState:     newState,
		SrcStages:    clippedSrcStages,
		DstStages:    dstStages & queueStages,
		SrcAccess:    clippedSrcAccess,
		DstAccess:    dstAccess & queueAccess,
	}, true
}
