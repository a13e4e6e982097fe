// SPDX-License-Identifier: MIT
package capture

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	applog "github.com/philcrump/limesdr-fft/internal/log"
)

const recordBitDepth = 16

// Recorder tees the IQ stream into a stereo 16-bit WAV file on its way to the
// next Writer. A failed file write stops the recording but never the stream.
type Recorder struct {
	next Writer
	path string

	mu      sync.Mutex
	file    *os.File
	enc     *wav.Encoder
	buf     *audio.IntBuffer
	stopped bool
	frames  uint64
}

// NewRecorder creates path and starts recording samples written through the
// returned Recorder.
func NewRecorder(path string, sampleRate int, next Writer) (*Recorder, error) {
	if next == nil {
		return nil, errors.New("capture: recorder needs a downstream writer")
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording: %w", err)
	}

	r := &Recorder{
		next: next,
		path: path,
		file: file,
		enc:  wav.NewEncoder(file, sampleRate, recordBitDepth, 2, 1),
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: 2, SampleRate: sampleRate},
			SourceBitDepth: recordBitDepth,
		},
	}
	applog.Infof("Capture: recording IQ to %s", path)
	return r, nil
}

// Write forwards samples downstream, then appends them to the file.
func (r *Recorder) Write(samples []float32) error {
	err := r.next.Write(samples)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return err
	}

	if cap(r.buf.Data) < len(samples) {
		r.buf.Data = make([]int, len(samples))
	}
	r.buf.Data = r.buf.Data[:len(samples)]
	for i, v := range samples {
		r.buf.Data[i] = toPCM16(v)
	}
	if werr := r.enc.Write(r.buf); werr != nil {
		applog.Errorf("Capture: recording to %s stopped: %v", r.path, werr)
		r.stopped = true
		return err
	}
	r.frames += uint64(len(samples) / 2)
	return err
}

// Frames returns the number of IQ frames recorded.
func (r *Recorder) Frames() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Close finalizes the WAV header and closes the file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	r.stopped = true

	encErr := r.enc.Close()
	fileErr := r.file.Close()
	r.file = nil
	r.enc = nil
	if encErr != nil {
		return fmt.Errorf("failed to finalize recording: %w", encErr)
	}
	if fileErr != nil {
		return fmt.Errorf("failed to close recording: %w", fileErr)
	}
	applog.Infof("Capture: recording saved to %s (%d frames)", r.path, r.frames)
	return nil
}

// toPCM16 clamps v to [-1, 1] and scales it to a signed 16-bit sample.
func toPCM16(v float32) int {
	switch {
	case v >= 1:
		return 32767
	case v <= -1:
		return -32768
	case v != v: // NaN
		return 0
	}
	return int(v * 32767)
}
