// SPDX-License-Identifier: MIT
/*
Package capture implements the shared IQ sample buffer between producers
(soundcard, WAV replay, synthetic tones) and the processing pipeline, plus the
producers themselves.

Thread Safety:
  - Ring storage and cursors are guarded by one mutex
  - Producers never block on the consumer; a full ring drops its oldest block
  - The consumer waits on a ready notification bounded by a timeout
*/
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/philcrump/limesdr-fft/pkg/bitint"
)

// ErrClosed is returned by Ring operations after Close.
var ErrClosed = errors.New("capture: ring closed")

// Writer accepts interleaved I/Q float32 samples from a producer.
type Writer interface {
	Write(samples []float32) error
}

// Producer generates samples into a Writer until ctx is done or its input
// ends.
type Producer interface {
	Run(ctx context.Context, w Writer) error
}

// RingStats is a snapshot of the ring cursors.
type RingStats struct {
	Written  uint64 `json:"written"`  // complete blocks written
	Read     uint64 `json:"read"`     // blocks handed to the consumer
	Overruns uint64 `json:"overruns"` // blocks dropped unread
	Buffered int    `json:"buffered"` // blocks waiting to be read
}

// Ring is a fixed pool of sample blocks. Producers append samples of any
// length; the consumer takes whole blocks in order.
type Ring struct {
	mu       sync.Mutex
	buf      []float32
	blockLen int
	mask     uint64
	blocks   uint64

	head     uint64 // write cursor, complete blocks
	tail     uint64 // read cursor
	partial  int    // values already in block head
	overruns uint64
	closed   bool

	ready chan struct{}
	timer *time.Timer // owned by the consumer
}

// NewRing allocates storage for blocks (rounded up to a power of two) of
// blockLen float32 values each.
func NewRing(blockLen, blocks int) (*Ring, error) {
	if blockLen < 1 {
		return nil, fmt.Errorf("capture: block length must be positive, got %d", blockLen)
	}
	if blocks < 2 {
		return nil, fmt.Errorf("capture: ring needs at least 2 blocks, got %d", blocks)
	}
	blocks = bitint.NextPowerOfTwo(blocks)

	timer := time.NewTimer(time.Hour)
	timer.Stop()

	return &Ring{
		buf:      make([]float32, blocks*blockLen),
		blockLen: blockLen,
		mask:     uint64(blocks - 1),
		blocks:   uint64(blocks),
		ready:    make(chan struct{}, 1),
		timer:    timer,
	}, nil
}

// BlockLen returns the number of float32 values per block.
func (r *Ring) BlockLen() int {
	return r.blockLen
}

// Blocks returns the ring capacity in blocks.
func (r *Ring) Blocks() int {
	return int(r.blocks)
}

// Write appends samples, completing as many blocks as they fill. It never
// waits for the consumer: when every slot holds an unread block the oldest
// one is discarded and counted as an overrun.
func (r *Ring) Write(samples []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	completed := false
	for len(samples) > 0 {
		if r.partial == 0 && r.head-r.tail == r.blocks {
			r.tail++
			r.overruns++
		}
		off := int(r.head&r.mask)*r.blockLen + r.partial
		n := copy(r.buf[off:off+r.blockLen-r.partial], samples)
		samples = samples[n:]
		r.partial += n
		if r.partial == r.blockLen {
			r.partial = 0
			r.head++
			completed = true
		}
	}

	if completed {
		select {
		case r.ready <- struct{}{}:
		default:
		}
	}
	return nil
}

// Next copies the oldest unread block into dst, which must hold BlockLen
// values. When nothing is buffered it waits up to timeout for a producer and
// returns false if none arrives. It returns ctx.Err() as soon as ctx is done
// and ErrClosed once the ring is closed and drained.
//
// Next must only be called from one goroutine.
func (r *Ring) Next(ctx context.Context, dst []float32, timeout time.Duration) (bool, error) {
	armed := false
	defer func() {
		if armed {
			r.timer.Stop()
		}
	}()

	for {
		r.mu.Lock()
		if r.tail < r.head {
			off := int(r.tail&r.mask) * r.blockLen
			copy(dst[:r.blockLen], r.buf[off:off+r.blockLen])
			r.tail++
			r.mu.Unlock()
			return true, nil
		}
		closed := r.closed
		r.mu.Unlock()

		if closed {
			return false, ErrClosed
		}
		if !armed {
			r.timer.Reset(timeout)
			armed = true
		}

		select {
		case <-r.ready:
		case <-r.timer.C:
			armed = false
			return false, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

// Stats returns a snapshot of the ring counters.
func (r *Ring) Stats() RingStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RingStats{
		Written:  r.head,
		Read:     r.tail - r.overruns,
		Overruns: r.overruns,
		Buffered: int(r.head - r.tail),
	}
}

// Close stops accepting samples and wakes a waiting consumer. Blocks already
// buffered can still be read.
func (r *Ring) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	close(r.ready)
	return nil
}
