package state

import cerrors "github.com/cockroachdb/errors"

var (
	// ErrResourceNotRegistered is returned when a resource id is not known to the registry
	ErrResourceNotRegistered = cerrors.New("resource is not registered")
	// ErrAlreadyRegistered is returned when registering a resource id twice
	ErrAlreadyRegistered = cerrors.New("resource is already registered")
	// ErrInvalidState is returned when a state is malformed or not legal for a resource
	ErrInvalidState = cerrors.New("invalid resource state")
	// ErrSubresourceOutOfRange is returned when a subresource index or range exceeds the
	// resource's subresource count
	ErrSubresourceOutOfRange = cerrors.New("subresource out of range")
	// ErrMixedSubresourceStates is returned when a single state is requested for a resource
	// whose subresources are in different states
	ErrMixedSubresourceStates = cerrors.New("subresources are in different states")
)
