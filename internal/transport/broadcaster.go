// SPDX-License-Identifier: MIT
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	applog "github.com/philcrump/limesdr-fft/internal/log"
)

// BroadcastStats is a snapshot of the broadcaster counters.
type BroadcastStats struct {
	Broadcasts uint64 `json:"broadcasts"` // frames handed to sinks
	Skipped    uint64 `json:"skipped"`    // published frames never broadcast
	SinkErrors uint64 `json:"sink_errors"`
}

// Broadcaster is the periodic driver between the publisher and the sinks.
type Broadcaster struct {
	src      FrameSource
	interval time.Duration

	mu      sync.Mutex
	sinks   []Sink
	failing []bool

	buf  []byte
	last uint64

	broadcasts atomic.Uint64
	skipped    atomic.Uint64
	sinkErrors atomic.Uint64
}

// NewBroadcaster creates a driver that checks src every interval.
func NewBroadcaster(src FrameSource, interval time.Duration) (*Broadcaster, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("transport: broadcast interval must be positive, got %s", interval)
	}
	applog.Infof("Broadcaster: Initializing (Interval: %s, Frame: %d bytes)", interval, src.Capacity())
	return &Broadcaster{
		src:      src,
		interval: interval,
		buf:      make([]byte, src.Capacity()),
	}, nil
}

// Add registers a sink. Sinks added while running receive the next new frame.
func (b *Broadcaster) Add(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, s)
	b.failing = append(b.failing, false)
}

// Run ticks until ctx is done.
func (b *Broadcaster) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	applog.Infof("Broadcaster: started")
	for {
		select {
		case <-ctx.Done():
			applog.Infof("Broadcaster: stopped after %d broadcasts", b.broadcasts.Load())
			return nil
		case <-ticker.C:
			b.tick()
		}
	}
}

// tick sends the latest frame to every sink if it changed since the last
// tick. It reports whether a frame was sent.
func (b *Broadcaster) tick() bool {
	n, seq, ok := b.src.TryReadInto(b.buf, b.last)
	if !ok {
		return false
	}
	if b.last != 0 && seq > b.last+1 {
		b.skipped.Add(seq - b.last - 1)
	}
	b.last = seq
	frame := b.buf[:n]

	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.sinks {
		err := s.Send(seq, frame)
		switch {
		case err != nil:
			b.sinkErrors.Add(1)
			if !b.failing[i] {
				applog.Warnf("Broadcaster: sink %T failing: %v", s, err)
				b.failing[i] = true
			}
		case b.failing[i]:
			applog.Infof("Broadcaster: sink %T recovered", s)
			b.failing[i] = false
		}
	}
	b.broadcasts.Add(1)
	return true
}

// Stats returns the broadcaster counters.
func (b *Broadcaster) Stats() BroadcastStats {
	return BroadcastStats{
		Broadcasts: b.broadcasts.Load(),
		Skipped:    b.skipped.Load(),
		SinkErrors: b.sinkErrors.Load(),
	}
}

// Close closes every sink. Call after Run has returned.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var errs []error
	for _, s := range b.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	b.sinks = nil
	b.failing = nil
	return errors.Join(errs...)
}
