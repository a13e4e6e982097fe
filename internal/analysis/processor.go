// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/philcrump/limesdr-fft/internal/fft"
	applog "github.com/philcrump/limesdr-fft/internal/log"
)

const (
	// DefaultDCBias is added to I and Q before windowing to cancel the DC
	// offset of the LimeSDR front end.
	DefaultDCBias = 1.0 / 2048

	// powerFloor keeps log10 finite for empty bins.
	powerFloor = 1e-20
)

// ProcessorConfig holds the construction parameters of a Processor.
type ProcessorConfig struct {
	FFTSize         int
	Window          WindowFunc
	AverageDepth    int
	MaxAverageDepth int
	DCBias          float64
	OffsetDB        float64
	Gain            float64
}

// Processor turns one block of interleaved IQ samples into one quantized
// frame: window, transform, shift, power in dB, rolling average, quantize.
//
// Process must only be called from a single goroutine. SetAverageDepth and the
// accessors are safe to call from any goroutine.
type Processor struct {
	n      int
	window []float64
	bias   float64
	invN2  float64

	engine    *fft.Engine
	averager  *Averager
	quantizer *Quantizer
	spectrum  []float64

	pendingDepth atomic.Int64 // -1 when no change is staged
	depth        atomic.Int64
}

// NewProcessor allocates every buffer the hot path needs.
func NewProcessor(cfg ProcessorConfig) (*Processor, error) {
	engine, err := fft.NewEngine(cfg.FFTSize)
	if err != nil {
		return nil, err
	}
	window, err := NewWindow(cfg.Window, cfg.FFTSize)
	if err != nil {
		return nil, err
	}
	averager, err := NewAverager(cfg.FFTSize, cfg.MaxAverageDepth, cfg.AverageDepth)
	if err != nil {
		return nil, err
	}

	n := cfg.FFTSize
	p := &Processor{
		n:         n,
		window:    window,
		bias:      cfg.DCBias,
		invN2:     1 / (float64(n) * float64(n)),
		engine:    engine,
		averager:  averager,
		quantizer: NewQuantizer(cfg.OffsetDB, cfg.Gain),
		spectrum:  make([]float64, n),
	}
	p.pendingDepth.Store(-1)
	p.depth.Store(int64(cfg.AverageDepth))

	applog.Infof("Analysis: Initializing Processor (Size: %d, Window: %v, Average: %d/%d, Bias: %g)",
		n, cfg.Window, cfg.AverageDepth, cfg.MaxAverageDepth, cfg.DCBias)

	return p, nil
}

// Size returns the transform size N. Blocks passed to Process hold 2N values
// and frames written by it hold N bytes.
func (p *Processor) Size() int {
	return p.n
}

// AverageDepth returns the configured averaging depth, including a change
// that is staged but not yet applied.
func (p *Processor) AverageDepth() int {
	return int(p.depth.Load())
}

// MaxAverageDepth returns the upper bound accepted by SetAverageDepth.
func (p *Processor) MaxAverageDepth() int {
	return p.averager.MaxDepth()
}

// SetAverageDepth stages a new averaging depth. It takes effect at the start
// of the next Process call, which also restarts the history.
func (p *Processor) SetAverageDepth(k int) error {
	if k < 0 || k > p.averager.MaxDepth() {
		return fmt.Errorf("%w: %d not in [0, %d]", ErrAverageDepth, k, p.averager.MaxDepth())
	}
	p.pendingDepth.Store(int64(k))
	p.depth.Store(int64(k))
	return nil
}

// Spectrum returns the unaveraged dB spectrum of the last processed block.
// It belongs to the Processor and is only valid on the Process goroutine.
func (p *Processor) Spectrum() []float64 {
	return p.spectrum
}

// Process consumes block (2N interleaved I/Q values) and writes the quantized
// frame into dst (N bytes). It returns the pre-clamp min and max of the
// scaled values.
func (p *Processor) Process(block []float32, dst []byte) (lo, hi float64) {
	if k := p.pendingDepth.Swap(-1); k >= 0 {
		// Validated by SetAverageDepth.
		_ = p.averager.Reset(int(k))
		applog.Debugf("Analysis: averaging depth now %d", k)
	}

	in := p.engine.Input()
	block = block[:2*p.n]
	for i, w := range p.window {
		re := (float64(block[2*i]) + p.bias) * w
		im := (float64(block[2*i+1]) + p.bias) * w
		in[i] = complex(re, im)
	}

	out := p.engine.Execute()
	Shift(out)

	for i, c := range out {
		re, im := real(c), imag(c)
		power := (re*re + im*im) * p.invN2
		p.spectrum[i] = 10 * math.Log10(power+powerFloor)
	}

	frame := p.averager.Add(p.spectrum)
	return p.quantizer.Quantize(dst, frame)
}
