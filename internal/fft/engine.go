// SPDX-License-Identifier: MIT
package fft

import (
	"errors"
	"fmt"

	"github.com/philcrump/limesdr-fft/pkg/bitint"
	"gonum.org/v1/gonum/dsp/fourier"
)

// ErrSize is returned when the transform size is not a power of two >= 2.
var ErrSize = errors.New("fft: size must be a power of two")

// Engine is a fixed-size forward complex DFT. It owns the transform plan and
// its input/output buffers; nothing is allocated after construction.
//
// The output is not normalized. A unit-amplitude complex exponential sitting
// exactly on bin k produces |X[k]| == n.
type Engine struct {
	n      int
	plan   *fourier.CmplxFFT
	input  []complex128
	output []complex128
}

// NewEngine creates an engine for n-point transforms.
func NewEngine(n int) (*Engine, error) {
	if n < 2 || !bitint.IsPowerOfTwo(n) {
		return nil, fmt.Errorf("%w, got %d", ErrSize, n)
	}
	return &Engine{
		n:      n,
		plan:   fourier.NewCmplxFFT(n),
		input:  make([]complex128, n),
		output: make([]complex128, n),
	}, nil
}

// Size returns the transform length.
func (e *Engine) Size() int {
	return e.n
}

// Input returns the buffer the caller fills before Execute. It is reused for
// every transform.
func (e *Engine) Input() []complex128 {
	return e.input
}

// Execute transforms the input buffer and returns the output bins. The returned
// slice belongs to the engine and is overwritten by the next call.
func (e *Engine) Execute() []complex128 {
	return e.plan.Coefficients(e.output, e.input)
}

// BinFrequency returns the offset from the centre frequency, in Hz, of bin i
// of a spectrum that has been shifted so zero frequency sits at index n/2.
func (e *Engine) BinFrequency(i int, sampleRate float64) float64 {
	if i < 0 || i >= e.n {
		return 0
	}
	return float64(i-e.n/2) * sampleRate / float64(e.n)
}
