package barrier

import (
	"fmt"

	"github.com/vkngwrapper/gpucore/state"
)

// SplitHalf identifies which half of a split barrier a Barrier is
type SplitHalf int32

const (
	SplitNone SplitHalf = iota
	SplitBegin
	SplitEnd
)

var splitHalfMapping = map[SplitHalf]string{
	SplitNone:  "SplitNone",
	SplitBegin: "SplitBegin",
	SplitEnd:   "SplitEnd",
}

func (h SplitHalf) String() string {
	str, ok := splitHalfMapping[h]
	if !ok {
		return "unknown SplitHalf"
	}

	return str
}

// Barrier is a single backend-agnostic transition to be recorded into a command stream. It is
// computed, handed to the recording layer, and discarded.
type Barrier struct {
	Resource     state.ResourceID
	Subresources state.SubresourceRange
	Queue        state.QueueID

	SrcState state.ResourceState
	DstState state.ResourceState

	SrcStages state.PipelineStageFlags
	DstStages state.PipelineStageFlags
	SrcAccess state.AccessFlags
	DstAccess state.AccessFlags

	Split SplitHalf
}

// IsMemoryBarrier returns true if the barrier orders accesses without changing state, as
// between two unordered-access dispatches writing the same resource
func (b Barrier) IsMemoryBarrier() bool {
	return b.SrcState == b.DstState
}

func (b Barrier) String() string {
	return fmt.Sprintf("resource %d [%d,+%d) %s -> %s (%s:%s -> %s:%s) %s",
		b.Resource, b.Subresources.First, b.Subresources.Count,
		b.SrcState, b.DstState,
		b.SrcStages, b.SrcAccess, b.DstStages, b.DstAccess,
		b.Split)
}
