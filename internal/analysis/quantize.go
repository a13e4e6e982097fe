// SPDX-License-Identifier: MIT
package analysis

import "math"

// Quantizer maps a dB spectrum onto 0..255 as gain·(v + offset).
type Quantizer struct {
	OffsetDB float64
	Gain     float64
}

// NewQuantizer returns a Quantizer with the given scaling.
func NewQuantizer(offsetDB, gain float64) *Quantizer {
	return &Quantizer{OffsetDB: offsetDB, Gain: gain}
}

// Quantize writes min(len(dst), len(spectrum)) bytes into dst, clamping to the
// byte range. It returns the smallest and largest scaled values before
// clamping.
func (q *Quantizer) Quantize(dst []byte, spectrum []float64) (lo, hi float64) {
	n := min(len(dst), len(spectrum))
	if n == 0 {
		return 0, 0
	}
	lo, hi = math.Inf(1), math.Inf(-1)
	for i := range n {
		s := q.Gain * (spectrum[i] + q.OffsetDB)
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
		switch {
		case !(s > 0): // also catches NaN
			dst[i] = 0
		case s >= 255:
			dst[i] = 255
		default:
			dst[i] = byte(s)
		}
	}
	return lo, hi
}
