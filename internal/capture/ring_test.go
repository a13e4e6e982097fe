// SPDX-License-Identifier: MIT
package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func seqSamples(start, n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = float32(start + i)
	}
	return s
}

func TestNewRingRoundsBlocks(t *testing.T) {
	r, err := NewRing(8, 5)
	if err != nil {
		t.Fatal(err)
	}
	if r.Blocks() != 8 || r.BlockLen() != 8 {
		t.Errorf("blocks/len = %d/%d, want 8/8", r.Blocks(), r.BlockLen())
	}
	if _, err := NewRing(0, 4); err == nil {
		t.Error("expected error for zero block length")
	}
	if _, err := NewRing(8, 1); err == nil {
		t.Error("expected error for a single block")
	}
}

func TestRingPartialWrites(t *testing.T) {
	r, err := NewRing(4, 4)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	dst := make([]float32, 4)

	// Three values are not a block yet.
	if err := r.Write(seqSamples(0, 3)); err != nil {
		t.Fatal(err)
	}
	if ok, err := r.Next(ctx, dst, time.Millisecond); ok || err != nil {
		t.Fatalf("Next on partial block = %v, %v", ok, err)
	}

	// Completes block 0 and most of block 1.
	if err := r.Write(seqSamples(3, 6)); err != nil {
		t.Fatal(err)
	}
	ok, err := r.Next(ctx, dst, time.Millisecond)
	if !ok || err != nil {
		t.Fatalf("Next = %v, %v", ok, err)
	}
	for i, v := range dst {
		if v != float32(i) {
			t.Fatalf("block 0 = %v", dst)
		}
	}
	if ok, _ := r.Next(ctx, dst, time.Millisecond); ok {
		t.Fatal("block 1 is incomplete but was returned")
	}
	if st := r.Stats(); st.Written != 1 || st.Read != 1 || st.Buffered != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestRingOverrunDropsOldest(t *testing.T) {
	r, err := NewRing(2, 4)
	if err != nil {
		t.Fatal(err)
	}

	// Six blocks into a four block ring.
	if err := r.Write(seqSamples(0, 12)); err != nil {
		t.Fatal(err)
	}
	st := r.Stats()
	if st.Overruns != 2 || st.Buffered != 4 || st.Written != 6 {
		t.Fatalf("stats = %+v, want 2 overruns, 4 buffered", st)
	}

	dst := make([]float32, 2)
	for want := 2; want < 6; want++ {
		ok, err := r.Next(context.Background(), dst, time.Millisecond)
		if !ok || err != nil {
			t.Fatalf("Next = %v, %v", ok, err)
		}
		if dst[0] != float32(2*want) {
			t.Fatalf("got block starting %g, want %d", dst[0], 2*want)
		}
	}
	if st := r.Stats(); st.Read != 4 || st.Buffered != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestRingNextWakesOnWrite(t *testing.T) {
	r, err := NewRing(4, 4)
	if err != nil {
		t.Fatal(err)
	}

	go func() {
		time.Sleep(5 * time.Millisecond)
		_ = r.Write(seqSamples(10, 4))
	}()

	dst := make([]float32, 4)
	ok, err := r.Next(context.Background(), dst, time.Second)
	if !ok || err != nil {
		t.Fatalf("Next = %v, %v", ok, err)
	}
	if dst[0] != 10 {
		t.Errorf("dst = %v", dst)
	}
}

func TestRingNextTimeout(t *testing.T) {
	r, err := NewRing(4, 4)
	if err != nil {
		t.Fatal(err)
	}
	dst := make([]float32, 4)

	start := time.Now()
	ok, err := r.Next(context.Background(), dst, 10*time.Millisecond)
	if ok || err != nil {
		t.Fatalf("Next = %v, %v, want timeout", ok, err)
	}
	if el := time.Since(start); el < 10*time.Millisecond || el > 500*time.Millisecond {
		t.Errorf("timeout took %s", el)
	}

	// The timer is reused across calls.
	for range 3 {
		if ok, err := r.Next(context.Background(), dst, time.Millisecond); ok || err != nil {
			t.Fatalf("repeat Next = %v, %v", ok, err)
		}
	}
}

func TestRingNextCancel(t *testing.T) {
	r, err := NewRing(4, 4)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(5*time.Millisecond, cancel)

	start := time.Now()
	ok, err := r.Next(ctx, make([]float32, 4), time.Minute)
	if ok || !errors.Is(err, context.Canceled) {
		t.Fatalf("Next = %v, %v, want context.Canceled", ok, err)
	}
	if el := time.Since(start); el > time.Second {
		t.Errorf("cancel observed after %s", el)
	}
}

func TestRingClose(t *testing.T) {
	r, err := NewRing(2, 2)
	if err != nil {
		t.Fatal(err)
	}
	_ = r.Write(seqSamples(0, 2))
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second Close = %v", err)
	}
	if err := r.Write(seqSamples(0, 2)); !errors.Is(err, ErrClosed) {
		t.Fatalf("Write after Close = %v", err)
	}

	dst := make([]float32, 2)
	if ok, err := r.Next(context.Background(), dst, time.Second); !ok || err != nil {
		t.Fatalf("buffered block lost on Close: %v, %v", ok, err)
	}
	if ok, err := r.Next(context.Background(), dst, time.Second); ok || !errors.Is(err, ErrClosed) {
		t.Fatalf("Next on drained closed ring = %v, %v", ok, err)
	}
}

func TestRingConcurrentOrder(t *testing.T) {
	const blockLen = 16
	const total = 2000
	r, err := NewRing(blockLen, 4096)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// Odd-sized writes straddle block boundaries.
		next := 0
		for next < total*blockLen {
			n := min(7, total*blockLen-next)
			_ = r.Write(seqSamples(next, n))
			next += n
		}
	}()

	dst := make([]float32, blockLen)
	for b := range total {
		ok, err := r.Next(context.Background(), dst, time.Second)
		if !ok || err != nil {
			t.Fatalf("block %d: Next = %v, %v", b, ok, err)
		}
		for i, v := range dst {
			if v != float32(b*blockLen+i) {
				t.Fatalf("block %d value %d = %g", b, i, v)
			}
		}
	}
	wg.Wait()
}

func BenchmarkRingWriteNext(b *testing.B) {
	r, err := NewRing(2048, 64)
	if err != nil {
		b.Fatal(err)
	}
	block := seqSamples(0, 2048)
	dst := make([]float32, 2048)
	ctx := context.Background()

	b.ReportAllocs()

	for b.Loop() {
		_ = r.Write(block)
		_, _ = r.Next(ctx, dst, time.Millisecond)
	}
}
