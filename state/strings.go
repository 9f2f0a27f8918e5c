package state

import (
	"fmt"
	"math/bits"
	"strings"
)

type flagType interface {
	~int32
}

// flagsToString renders a bitmask as a pipe-separated list of registered names. Bits without
// a registered name are rendered in hex so nothing is silently dropped.
func flagsToString[T flagType](value T, names map[T]string) string {
	if value == 0 {
		if str, ok := names[0]; ok {
			return str
		}
		return "None"
	}

	var sb strings.Builder
	remaining := uint32(value)
	for remaining != 0 {
		bit := uint32(1) << bits.TrailingZeros32(remaining)
		remaining &^= bit

		if sb.Len() > 0 {
			sb.WriteByte('|')
		}

		str, ok := names[T(bit)]
		if !ok {
			str = fmt.Sprintf("0x%x", bit)
		}
		sb.WriteString(str)
	}

	return sb.String()
}
