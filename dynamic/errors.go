package dynamic

import cerrors "github.com/cockroachdb/errors"

var (
	// ErrOutOfDeviceMemory is returned when the backing heap cannot supply a new chunk. There
	// is no fallback: the frame cannot be recorded.
	ErrOutOfDeviceMemory = cerrors.New("out of device memory")
	// ErrPoolDestroyed is returned by operations on a chunk pool after Destroy
	ErrPoolDestroyed = cerrors.New("chunk pool has been destroyed")
	// ErrChunksInUse is returned when destroying a chunk pool that still has chunks which are
	// in use or waiting on a fence
	ErrChunksInUse = cerrors.New("chunk pool still has chunks in use")
)
