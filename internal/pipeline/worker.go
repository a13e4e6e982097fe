// SPDX-License-Identifier: MIT

// Package pipeline runs the processing loop: take a block from the sample
// source, turn it into a frame, publish it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/philcrump/limesdr-fft/internal/analysis"
	"github.com/philcrump/limesdr-fft/internal/capture"
	applog "github.com/philcrump/limesdr-fft/internal/log"
	"github.com/philcrump/limesdr-fft/internal/publish"
)

// Source hands out whole sample blocks. capture.Ring implements it.
type Source interface {
	BlockLen() int
	Next(ctx context.Context, dst []float32, timeout time.Duration) (bool, error)
}

// Stats is a snapshot of the worker counters.
type Stats struct {
	Frames   uint64  `json:"frames"`   // blocks processed and published
	Idle     uint64  `json:"idle"`     // waits that timed out with no block
	Sequence uint64  `json:"sequence"` // last published sequence
	LastMin  float64 `json:"last_min"` // pre-clamp scaled minimum of the last frame
	LastMax  float64 `json:"last_max"` // pre-clamp scaled maximum of the last frame
}

// Worker owns the scratch buffers of one pipeline goroutine.
type Worker struct {
	source  Source
	proc    *analysis.Processor
	pub     *publish.Publisher
	timeout time.Duration

	block []float32
	frame []byte

	frames   atomic.Uint64
	idle     atomic.Uint64
	sequence atomic.Uint64
	lastMin  atomic.Uint64 // float64 bits
	lastMax  atomic.Uint64 // float64 bits
}

// NewWorker checks that the source block, processor and publisher sizes agree.
func NewWorker(source Source, proc *analysis.Processor, pub *publish.Publisher, timeout time.Duration) (*Worker, error) {
	n := proc.Size()
	if source.BlockLen() != 2*n {
		return nil, fmt.Errorf("pipeline: source block of %d values does not hold %d IQ samples", source.BlockLen(), n)
	}
	if pub.Capacity() < n {
		return nil, fmt.Errorf("pipeline: publisher capacity %d is smaller than frame size %d", pub.Capacity(), n)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("pipeline: wait timeout must be positive, got %s", timeout)
	}
	return &Worker{
		source:  source,
		proc:    proc,
		pub:     pub,
		timeout: timeout,
		block:   make([]float32, 2*n),
		frame:   make([]byte, n),
	}, nil
}

// Run processes blocks until ctx is done or the source is closed. Frames are
// published in the order their samples were produced.
func (w *Worker) Run(ctx context.Context) error {
	// The hot loop gets its own OS thread.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	applog.Infof("Pipeline: started (N=%d, wait %s)", w.proc.Size(), w.timeout)

	for ctx.Err() == nil {
		ok, err := w.source.Next(ctx, w.block, w.timeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break
			}
			if errors.Is(err, capture.ErrClosed) {
				applog.Infof("Pipeline: source closed")
				break
			}
			return fmt.Errorf("pipeline: source failed: %w", err)
		}
		if !ok {
			w.idle.Add(1)
			continue
		}

		lo, hi := w.proc.Process(w.block, w.frame)
		seq := w.pub.Publish(w.frame)

		w.lastMin.Store(math.Float64bits(lo))
		w.lastMax.Store(math.Float64bits(hi))
		w.sequence.Store(seq)
		w.frames.Add(1)
	}

	applog.Infof("Pipeline: stopped after %d frames", w.frames.Load())
	return nil
}

// Stats returns the current counters. Safe to call from any goroutine.
func (w *Worker) Stats() Stats {
	return Stats{
		Frames:   w.frames.Load(),
		Idle:     w.idle.Load(),
		Sequence: w.sequence.Load(),
		LastMin:  math.Float64frombits(w.lastMin.Load()),
		LastMax:  math.Float64frombits(w.lastMax.Load()),
	}
}
