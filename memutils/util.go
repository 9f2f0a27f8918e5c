package memutils

import (
	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/exp/constraints"
)

type Number interface {
	constraints.Integer
}

func CheckPow2[T Number](number T, name string) error {
	if number <= 0 || number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

// CheckSize verifies that a size, count, or capacity value is positive
func CheckSize[T Number](number T, name string) error {
	if number <= 0 {
		return cerrors.Wrapf(ZeroSizeError, "%s is %d", name, number)
	}
	return nil
}

func AlignUp(value int, alignment uint) int {
	return (value + int(alignment) - 1) & int(^(alignment - 1))
}

func AlignDown(value int, alignment uint) int {
	return value & int(^(alignment - 1))
}

// IsAligned returns true if value is a multiple of the power-of-two alignment
func IsAligned(value int, alignment uint) bool {
	return value&int(alignment-1) == 0
}
