package gpucore

import cerrors "github.com/cockroachdb/errors"

var (
	// ErrDeviceDestroyed is returned by operations on a Device after Destroy
	ErrDeviceDestroyed = cerrors.New("device has been destroyed")
	// ErrContextReleased is returned by operations on a Context after Release
	ErrContextReleased = cerrors.New("context has been released")
)
