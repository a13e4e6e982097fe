// SPDX-License-Identifier: MIT
package utils

import (
	"cmp"
	"math"
	"sync"
)

// MockSink records frames handed to it instead of transmitting them.
type MockSink struct {
	mu     sync.Mutex
	Seqs   []uint64
	Frames [][]byte
	Err    error // returned from Send when set
	Closed bool
}

// Send stores a copy of the frame for later inspection.
func (m *MockSink) Send(seq uint64, frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Seqs = append(m.Seqs, seq)
	m.Frames = append(m.Frames, append([]byte(nil), frame...))
	return m.Err
}

// Close marks the sink closed.
func (m *MockSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// Count returns the number of frames received so far.
func (m *MockSink) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Frames)
}

// Last returns the most recent sequence and frame, or false if none arrived.
func (m *MockSink) Last() (uint64, []byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Frames) == 0 {
		return 0, nil, false
	}
	return m.Seqs[len(m.Seqs)-1], m.Frames[len(m.Frames)-1], true
}

// GenerateIQTone returns size complex samples as interleaved I/Q float32,
// the sum of unit-spaced complex exponentials at the given offsets (Hz)
// scaled by amplitude.
func GenerateIQTone(size int, sampleRate, amplitude float64, offsets ...float64) []float32 {
	buffer := make([]float32, 2*size)
	for i := range size {
		tm := float64(i) / sampleRate
		var re, im float64
		for _, f := range offsets {
			s, c := math.Sincos(2 * math.Pi * f * tm)
			re += c
			im += s
		}
		buffer[2*i] = float32(re * amplitude)
		buffer[2*i+1] = float32(im * amplitude)
	}
	return buffer
}

// BinForOffset returns the index of a shifted N-point spectrum where a tone
// at offset Hz from the centre lands.
func BinForOffset(offset, sampleRate float64, n int) int {
	return n/2 + int(math.Round(offset*float64(n)/sampleRate))
}

// FindPeakBin returns the index of the largest value in values[startBin:endBin+1].
func FindPeakBin[T cmp.Ordered](values []T, startBin, endBin int) int {
	if len(values) == 0 {
		return 0
	}

	if startBin < 0 {
		startBin = 0
	}

	if endBin >= len(values) {
		endBin = len(values) - 1
	}

	peakBin := startBin
	peakValue := values[startBin]

	for bin := startBin + 1; bin <= endBin; bin++ {
		if values[bin] > peakValue {
			peakValue = values[bin]
			peakBin = bin
		}
	}

	return peakBin
}
