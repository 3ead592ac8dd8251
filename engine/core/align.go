package core

import "golang.org/x/exp/constraints"

// AlignUp rounds value up to the next multiple of alignment. An alignment
// of zero or one leaves value untouched. Non power-of-two alignments are
// supported.
func AlignUp[T constraints.Unsigned](value, alignment T) T {
	if alignment <= 1 {
		return value
	}
	return (value + alignment - 1) / alignment * alignment
}
