/*
Package bitint provides the power-of-two helpers used to size transforms and
ring buffers.

Design Principles:
- Zero Allocations: all operations use stack memory only
- Predictable Performance: O(1) constant time operations
- Real-Time Safe: no locks, syscalls, or blocking operations

Usage:

	// Validate a transform size
	ok := bitint.IsPowerOfTwo(fftSize)

	// Round a ring capacity up so cursors can be masked instead of divided
	blocks := bitint.NextPowerOfTwo(48) // 64
	slot := cursor & uint64(blocks-1)

NextPowerOfTwo subtracts one before taking the bit length so an exact power
of two maps to itself:

	size=8:  bits.Len(7) = 3, 1<<3 = 8
	size=9:  bits.Len(8) = 4, 1<<4 = 16
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size.
// Zero and negative sizes return 1.
func NextPowerOfTwo(size int) int {
	if size <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of two.
//
//	Input  Output  Binary
//	8      true    1000 & 0111 = 0000
//	7      false   0111 & 0110 = 0110
//	0      false   Not positive
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// Log2 returns the base-2 logarithm of a power of two, or -1 when n is not one.
func Log2(n int) int {
	if !IsPowerOfTwo(n) {
		return -1
	}
	return bits.TrailingZeros(uint(n))
}
