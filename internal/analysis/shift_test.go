// SPDX-License-Identifier: MIT
package analysis

import "testing"

func TestShiftTwiceIsIdentity(t *testing.T) {
	for _, n := range []int{2, 4, 8, 16, 1024} {
		x := make([]float64, n)
		for i := range x {
			x[i] = float64(i*i%97) - 40.5
		}
		orig := append([]float64(nil), x...)

		Shift(x)
		Shift(x)

		for i := range x {
			if x[i] != orig[i] {
				t.Fatalf("n=%d: shift(shift(x))[%d] = %g, want %g", n, i, x[i], orig[i])
			}
		}
	}
}

func TestShiftMovesCentreToFront(t *testing.T) {
	x := []complex128{0, 1, 2, 3, 4, 5, 6, 7}
	Shift(x)
	want := []complex128{4, 5, 6, 7, 0, 1, 2, 3}
	for i := range x {
		if x[i] != want[i] {
			t.Fatalf("Shift = %v, want %v", x, want)
		}
	}
}

func TestShiftEmpty(t *testing.T) {
	var x []float64
	Shift(x) // must not panic
}
