package barrier

import cerrors "github.com/cockroachdb/errors"

var (
	// ErrUnsupportedQueue is returned when a transition names a state the issuing queue
	// cannot use
	ErrUnsupportedQueue = cerrors.New("state is not supported by the issuing queue")
	// ErrSplitPending is returned when a resource with a split transition in flight is
	// transitioned again before the split is ended
	ErrSplitPending = cerrors.New("resource has a pending split transition")
	// ErrSplitMismatch is returned when a split transition is ended without a matching begin
	ErrSplitMismatch = cerrors.New("split transition end without matching begin")
	// ErrUnknownCurrentState is returned when neither the request nor the registry knows the
	// state a resource is currently in
	ErrUnknownCurrentState = cerrors.New("current resource state is unknown")
)
