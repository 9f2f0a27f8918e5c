package memutils

import cerrors "github.com/cockroachdb/errors"

// Validatable is used by the DebugValidate method to allow it to act upon
// all types with a Validate method
type Validatable interface {
	Validate() error
}

// PreconditionFailed marks err as a caller programming error (an assertion failure in
// cockroachdb/errors terms) and returns it. When built with the debug_gpucore build tag,
// it panics with the error instead, so that misuse is caught at the call site.
//
// Release builds trust the caller: the returned error is the only signal, and the operation
// that detected the violation leaves all tracked state unchanged.
func PreconditionFailed(err error) error {
	err = cerrors.WithAssertionFailure(err)
	debugFail(err)
	return err
}

// IsPreconditionFailure returns true if err, or an error it wraps, was produced by
// PreconditionFailed
func IsPreconditionFailure(err error) bool {
	return cerrors.HasAssertionFailure(err)
}
