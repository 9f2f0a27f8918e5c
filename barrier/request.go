package barrier

import "github.com/vkngwrapper/gpucore/state"

// Mode selects between an immediate transition and the two halves of a split transition
type Mode int32

const (
	ModeImmediate Mode = iota
	ModeBeginSplit
	ModeEndSplit
)

var modeMapping = map[Mode]string{
	ModeImmediate:  "ModeImmediate",
	ModeBeginSplit: "ModeBeginSplit",
	ModeEndSplit:   "ModeEndSplit",
}

func (m Mode) String() string {
	str, ok := modeMapping[m]
	if !ok {
		return "unknown Mode"
	}

	return str
}

// Request asks for a resource, or a range of its subresources, to be moved into NewState
// before the next command that uses it
type Request struct {
	Resource     state.ResourceID
	Subresources state.SubresourceRange

	// OldState is the state the caller believes the resource is in. state.Unknown means the
	// current state is read from the registry.
	OldState state.ResourceState
	NewState state.ResourceState

	QueueID   state.QueueID
	QueueType state.QueueType

	Mode Mode
}
