// SPDX-License-Identifier: MIT
package capture

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"
	applog "github.com/philcrump/limesdr-fft/internal/log"
)

// PortAudioSource captures IQ from a stereo soundcard input: left is I,
// right is Q. PortAudio must be initialized by the caller.
type PortAudioSource struct {
	DeviceID        int
	SampleRate      float64
	FramesPerBuffer int
	LowLatency      bool

	dropped atomic.Uint64
	writer  Writer
}

// Run opens the input stream and feeds every callback buffer to w until ctx
// is done.
func (s *PortAudioSource) Run(ctx context.Context, w Writer) error {
	device, err := InputDevice(s.DeviceID)
	if err != nil {
		return err
	}

	latency := device.DefaultHighInputLatency
	if s.LowLatency {
		latency = device.DefaultLowInputLatency
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: 2,
			Device:   device,
			Latency:  latency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // No output device
			Device:   nil,
		},
		FramesPerBuffer: s.FramesPerBuffer,
		SampleRate:      s.SampleRate,
	}

	s.writer = w
	stream, err := portaudio.OpenStream(params, s.processInputStream)
	if err != nil {
		return fmt.Errorf("failed to open input stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start input stream: %w", err)
	}
	applog.Infof("Capture: PortAudio input '%s' at %.0f Hz, %d frames/buffer, latency %s",
		device.Name, s.SampleRate, s.FramesPerBuffer, latency.Round(time.Microsecond))

	<-ctx.Done()

	if err := stream.Stop(); err != nil {
		return fmt.Errorf("failed to stop input stream: %w", err)
	}
	if n := s.dropped.Load(); n > 0 {
		applog.Warnf("Capture: %d PortAudio buffers could not be written", n)
	}
	return nil
}

// processInputStream is the PortAudio callback. It runs on the audio thread
// and only copies into the ring.
func (s *PortAudioSource) processInputStream(in []float32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := s.writer.Write(in); err != nil {
		s.dropped.Add(1)
	}
}

// Ensure PortAudioSource satisfies Producer at compile time.
var _ Producer = (*PortAudioSource)(nil)
