// SPDX-License-Identifier: MIT
package capture

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	applog "github.com/philcrump/limesdr-fft/internal/log"
)

// ToneSource synthesizes IQ: unit complex carriers at Offsets (Hz from the
// centre) scaled by Amplitude, plus Gaussian noise of standard deviation
// Noise. Output is paced to SampleRate in chunks of FramesPerBuffer.
type ToneSource struct {
	SampleRate      float64
	FramesPerBuffer int
	Offsets         []float64
	Amplitude       float64
	Noise           float64

	// Unpaced writes chunks back to back, for tests.
	Unpaced bool

	phase []float64
	rng   *rand.Rand
	buf   []float32
}

// NewToneSource returns a paced synthetic source.
func NewToneSource(sampleRate float64, framesPerBuffer int, offsets []float64, noise float64) *ToneSource {
	return &ToneSource{
		SampleRate:      sampleRate,
		FramesPerBuffer: framesPerBuffer,
		Offsets:         offsets,
		Amplitude:       0.25,
		Noise:           noise,
	}
}

// Run writes chunks to w until ctx is done.
func (s *ToneSource) Run(ctx context.Context, w Writer) error {
	if s.SampleRate <= 0 || s.FramesPerBuffer <= 0 {
		return fmt.Errorf("capture: tone source needs a positive rate and chunk, got %g/%d",
			s.SampleRate, s.FramesPerBuffer)
	}
	s.phase = make([]float64, len(s.Offsets))
	s.rng = rand.New(rand.NewPCG(0x1f0, 0x2048))
	s.buf = make([]float32, 2*s.FramesPerBuffer)

	applog.Infof("Capture: tone source at %.0f Hz, carriers %v Hz, noise %g",
		s.SampleRate, s.Offsets, s.Noise)

	if s.Unpaced {
		for ctx.Err() == nil {
			if err := w.Write(s.fill()); err != nil {
				return err
			}
		}
		return nil
	}

	period := time.Duration(float64(s.FramesPerBuffer) / s.SampleRate * float64(time.Second))
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.Write(s.fill()); err != nil {
				return err
			}
		}
	}
}

// fill renders the next chunk into the reused buffer.
func (s *ToneSource) fill() []float32 {
	for i := range s.FramesPerBuffer {
		var re, im float64
		for k, f := range s.Offsets {
			sin, cos := math.Sincos(s.phase[k])
			re += cos
			im += sin
			s.phase[k] = math.Mod(s.phase[k]+2*math.Pi*f/s.SampleRate, 2*math.Pi)
		}
		re *= s.Amplitude
		im *= s.Amplitude
		if s.Noise > 0 {
			re += s.rng.NormFloat64() * s.Noise
			im += s.rng.NormFloat64() * s.Noise
		}
		s.buf[2*i] = float32(re)
		s.buf[2*i+1] = float32(im)
	}
	return s.buf
}

// Ensure ToneSource satisfies Producer at compile time.
var _ Producer = (*ToneSource)(nil)
