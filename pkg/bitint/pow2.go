// Package bitint provides power-of-two helpers for buffer and FFT window
// sizing. All operations are constant-time and allocation-free.
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of 2 >= size.
// Non-positive sizes return 1. The size-1 adjustment keeps exact powers
// of two from being doubled: Len(8-1)=3 so 1<<3 = 8, while Len(8)=4
// would yield 16.
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len64(uint64(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of 2. A power of
// two has exactly one bit set, so n&(n-1) clears it to zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}
