// SPDX-License-Identifier: MIT
package fft

import (
	"errors"
	"math"
	"math/cmplx"
	"testing"
)

const (
	testFFTSize    = 1024
	testSampleRate = 48000
)

func TestNewEngineSize(t *testing.T) {
	tests := []struct {
		n  int
		ok bool
	}{
		{n: 0, ok: false},
		{n: 1, ok: false},
		{n: 2, ok: true},
		{n: 8, ok: true},
		{n: 1000, ok: false},
		{n: 1024, ok: true},
		{n: -4, ok: false},
	}
	for _, tt := range tests {
		e, err := NewEngine(tt.n)
		if tt.ok {
			if err != nil {
				t.Errorf("NewEngine(%d) unexpected error: %v", tt.n, err)
				continue
			}
			if e.Size() != tt.n || len(e.Input()) != tt.n {
				t.Errorf("NewEngine(%d) sized %d/%d", tt.n, e.Size(), len(e.Input()))
			}
		} else if !errors.Is(err, ErrSize) {
			t.Errorf("NewEngine(%d) error = %v, want ErrSize", tt.n, err)
		}
	}
}

func TestExecuteImpulse(t *testing.T) {
	e, err := NewEngine(16)
	if err != nil {
		t.Fatal(err)
	}
	in := e.Input()
	for i := range in {
		in[i] = 0
	}
	in[0] = 1

	for k, c := range e.Execute() {
		if cmplx.Abs(c-1) > 1e-12 {
			t.Errorf("bin %d = %v, want 1", k, c)
		}
	}
}

func TestExecuteToneUnnormalized(t *testing.T) {
	const n = 64
	const bin = 5
	e, err := NewEngine(n)
	if err != nil {
		t.Fatal(err)
	}
	in := e.Input()
	for i := range in {
		in[i] = cmplx.Rect(1, 2*math.Pi*bin*float64(i)/n)
	}

	out := e.Execute()
	if got := cmplx.Abs(out[bin]); math.Abs(got-n) > 1e-9 {
		t.Errorf("|X[%d]| = %g, want %d", bin, got, n)
	}
	for k, c := range out {
		if k != bin && cmplx.Abs(c) > 1e-9 {
			t.Errorf("leakage in bin %d: %g", k, cmplx.Abs(c))
		}
	}
}

func TestBinFrequency(t *testing.T) {
	e, err := NewEngine(testFFTSize)
	if err != nil {
		t.Fatal(err)
	}
	if got := e.BinFrequency(testFFTSize/2, testSampleRate); got != 0 {
		t.Errorf("centre bin = %g Hz, want 0", got)
	}
	if got := e.BinFrequency(0, testSampleRate); got != -testSampleRate/2 {
		t.Errorf("first bin = %g Hz, want %d", got, -testSampleRate/2)
	}
	if got := e.BinFrequency(testFFTSize, testSampleRate); got != 0 {
		t.Errorf("out of range bin = %g, want 0", got)
	}
}

func TestExecuteZeroAllocs(t *testing.T) {
	e, err := NewEngine(testFFTSize)
	if err != nil {
		t.Fatal(err)
	}
	in := e.Input()
	for i := range in {
		in[i] = complex(float64(i%256-128)/128, 0)
	}

	// Warm-up call (potential initial allocations).
	_ = e.Execute()
	allocs := testing.AllocsPerRun(100, func() {
		_ = e.Execute()
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in Execute hot path, got %.1f", allocs)
	}
}

func BenchmarkExecute(b *testing.B) {
	e, err := NewEngine(testFFTSize)
	if err != nil {
		b.Fatal(err)
	}
	in := e.Input()
	for i := range in {
		tm := float64(i) / testSampleRate
		in[i] = cmplx.Rect(0.5, 2*math.Pi*3000*tm) + cmplx.Rect(0.2, -2*math.Pi*12000*tm)
	}

	b.ReportAllocs()

	for b.Loop() {
		_ = e.Execute()
	}
}
