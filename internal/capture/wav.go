// SPDX-License-Identifier: MIT
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	applog "github.com/philcrump/limesdr-fft/internal/log"
)

// WAVSource replays a stereo PCM WAV recording as IQ: left is I, right is Q.
// Samples are scaled to [-1, 1) by bit depth and paced at the file's rate.
type WAVSource struct {
	Path            string
	Loop            bool
	FramesPerBuffer int

	// Unpaced writes chunks back to back, for tests.
	Unpaced bool

	sampleRate float64
	bitDepth   int
	pcm        *audio.IntBuffer
	out        []float32
}

// NewWAVSource opens path and checks that it is a stereo integer PCM file.
func NewWAVSource(path string, loop bool, framesPerBuffer int) (*WAVSource, error) {
	if framesPerBuffer <= 0 {
		return nil, fmt.Errorf("capture: frames per buffer must be positive, got %d", framesPerBuffer)
	}
	f, dec, err := openWAV(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return &WAVSource{
		Path:            path,
		Loop:            loop,
		FramesPerBuffer: framesPerBuffer,
		sampleRate:      float64(dec.SampleRate),
		bitDepth:        int(dec.BitDepth),
	}, nil
}

// SampleRate returns the rate recorded in the file header.
func (s *WAVSource) SampleRate() float64 {
	return s.sampleRate
}

// Run writes the file to w, rewinding at the end when Loop is set, until ctx
// is done or the file ends.
func (s *WAVSource) Run(ctx context.Context, w Writer) error {
	s.pcm = &audio.IntBuffer{Data: make([]int, 2*s.FramesPerBuffer)}
	s.out = make([]float32, 2*s.FramesPerBuffer)

	f, dec, err := openWAV(s.Path)
	if err != nil {
		return err
	}
	defer func() { f.Close() }()

	applog.Infof("Capture: replaying %s (%.0f Hz, %d bit, loop %v)", s.Path, s.sampleRate, s.bitDepth, s.Loop)

	var tick <-chan time.Time
	if !s.Unpaced {
		period := time.Duration(float64(s.FramesPerBuffer) / s.sampleRate * float64(time.Second))
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		if tick != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return nil
		}

		n, err := dec.PCMBuffer(s.pcm)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("failed to read %s: %w", s.Path, err)
		}
		n -= n % 2
		if n > 0 {
			if err := w.Write(s.convert(s.pcm.Data[:n])); err != nil {
				return err
			}
		}
		if n == len(s.pcm.Data) {
			continue
		}

		// End of data.
		if !s.Loop {
			applog.Infof("Capture: end of %s", s.Path)
			return nil
		}
		f.Close()
		if f, dec, err = openWAV(s.Path); err != nil {
			return err
		}
		applog.Debugf("Capture: rewound %s", s.Path)
	}
}

// convert scales integer PCM to float32 in the reused output buffer.
func (s *WAVSource) convert(pcm []int) []float32 {
	out := s.out[:len(pcm)]
	if s.bitDepth == 8 {
		// 8-bit WAV is unsigned.
		for i, v := range pcm {
			out[i] = float32(v-128) / 128
		}
		return out
	}
	scale := 1 / float32(int64(1)<<(s.bitDepth-1))
	for i, v := range pcm {
		out[i] = float32(v) * scale
	}
	return out
}

// openWAV opens path positioned at the start of its PCM data.
func openWAV(path string) (*os.File, *wav.Decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open WAV file: %w", err)
	}
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return nil, nil, fmt.Errorf("%s is not a valid WAV file", path)
	}
	if dec.NumChans != 2 {
		f.Close()
		return nil, nil, fmt.Errorf("%s has %d channels, IQ replay needs 2", path, dec.NumChans)
	}
	if dec.WavAudioFormat != 1 {
		f.Close()
		return nil, nil, fmt.Errorf("%s is not integer PCM (format %d)", path, dec.WavAudioFormat)
	}
	switch dec.BitDepth {
	case 8, 16, 24, 32:
	default:
		f.Close()
		return nil, nil, fmt.Errorf("%s has unsupported bit depth %d", path, dec.BitDepth)
	}
	if err := dec.FwdToPCM(); err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to find PCM data in %s: %w", path, err)
	}
	return f, dec, nil
}

// Ensure WAVSource satisfies Producer at compile time.
var _ Producer = (*WAVSource)(nil)
