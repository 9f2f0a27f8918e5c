package memutils

import "github.com/pkg/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

// ZeroSizeError is the error returned from CheckSize when a size or count that must be positive is not
var ZeroSizeError error = errors.New("size must be greater than zero")
