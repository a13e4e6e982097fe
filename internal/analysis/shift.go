// SPDX-License-Identifier: MIT
package analysis

// Shift rotates x by len(x)/2 in place so that bin len(x)/2 lands at index 0
// and zero frequency moves to the centre. For even lengths Shift is its own
// inverse.
func Shift[T any](x []T) {
	h := len(x) / 2
	for i := range h {
		x[i], x[i+h] = x[i+h], x[i]
	}
}
