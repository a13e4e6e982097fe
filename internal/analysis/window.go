// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"fmt"
	"strings"

	"github.com/philcrump/limesdr-fft/internal/fft"
	"github.com/philcrump/limesdr-fft/pkg/bitint"
	"gonum.org/v1/gonum/dsp/window"
)

// ErrWindow is returned for an unknown window function name.
var ErrWindow = errors.New("unknown FFT window function")

// WindowFunc defines the type for selecting an FFT window function.
type WindowFunc int

// Enum for available window functions.
const (
	Hann WindowFunc = iota
	Hamming
	Blackman
	BlackmanNuttall
	BartlettHann
	Nuttall
	Lanczos
)

var windowNames = [...]string{
	Hann:            "hann",
	Hamming:         "hamming",
	Blackman:        "blackman",
	BlackmanNuttall: "blackmannuttall",
	BartlettHann:    "bartletthann",
	Nuttall:         "nuttall",
	Lanczos:         "lanczos",
}

func (w WindowFunc) String() string {
	if w < 0 || int(w) >= len(windowNames) {
		return fmt.Sprintf("WindowFunc(%d)", int(w))
	}
	return windowNames[w]
}

// ParseWindowFunc converts a string name (case-insensitive) to a WindowFunc
// enum, returns a known default (Hann) and an error if the name is unknown.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(name) {
	case "hann", "hanning":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "blackman":
		return Blackman, nil
	case "blackmannuttall":
		return BlackmanNuttall, nil
	case "bartletthann":
		return BartlettHann, nil
	case "nuttall":
		return Nuttall, nil
	case "lanczos":
		return Lanczos, nil
	default:
		return Hann, fmt.Errorf("%w: '%s'", ErrWindow, name)
	}
}

// NewWindow builds the n coefficients of the periodic form of the selected
// window, so that for Hann w[i] = 0.5·(1 − cos(2πi/n)). n must be a power of
// two.
//
// The gonum functions produce the symmetric form over their slice length, so
// the table is computed over n+1 points and the last point dropped.
func NewWindow(kind WindowFunc, n int) ([]float64, error) {
	if n < 1 || !bitint.IsPowerOfTwo(n) {
		return nil, fmt.Errorf("%w: window length %d", fft.ErrSize, n)
	}
	if kind < 0 || int(kind) >= len(windowNames) {
		return nil, fmt.Errorf("%w: %d", ErrWindow, int(kind))
	}
	if n == 1 {
		return []float64{1}, nil
	}

	coeffs := make([]float64, n+1)
	applyWindow(coeffs, kind)
	return coeffs[:n:n], nil
}

// applyWindow fills coeffs with the window shape.
func applyWindow(coeffs []float64, kind WindowFunc) {
	// Window funcs multiply in place, so start from ones.
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	switch kind {
	case Hann:
		window.Hann(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case BartlettHann:
		window.BartlettHann(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	}
}
