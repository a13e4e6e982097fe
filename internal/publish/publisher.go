// SPDX-License-Identifier: MIT

// Package publish holds the latest quantized frame for any number of readers.
//
// It is a latest-value-wins cell, not a queue: the single writer overwrites the
// slot in place and bumps a sequence number, readers copy out under a
// momentary lock and compare sequence numbers to decide whether they have
// already seen the frame. A slow reader skips frames; it never sees a torn
// one and never holds up the writer for longer than one copy.
package publish

import "sync"

// Publisher is the single-slot frame cell. Sequence 0 means nothing has been
// published yet.
type Publisher struct {
	mu  sync.Mutex
	buf []byte
	n   int
	seq uint64
}

// New returns a Publisher whose slot holds up to capacity bytes.
func New(capacity int) *Publisher {
	return &Publisher{buf: make([]byte, capacity)}
}

// Capacity returns the slot size in bytes.
func (p *Publisher) Capacity() int {
	return len(p.buf)
}

// Publish copies data into the slot, truncating to the capacity, and returns
// the new sequence number, which is exactly one more than the last.
func (p *Publisher) Publish(data []byte) uint64 {
	p.mu.Lock()
	p.n = copy(p.buf, data)
	p.seq++
	seq := p.seq
	p.mu.Unlock()
	return seq
}

// Sequence returns the sequence number of the current frame.
func (p *Publisher) Sequence() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seq
}

// TryRead returns a copy of the current frame and its sequence when the
// sequence differs from last. ok is false when there is nothing new, which
// includes nothing having been published yet.
func (p *Publisher) TryRead(last uint64) (frame []byte, seq uint64, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seq == last {
		return nil, last, false
	}
	frame = make([]byte, p.n)
	copy(frame, p.buf[:p.n])
	return frame, p.seq, true
}

// TryReadInto is the allocation-free form of TryRead: it copies the frame into
// dst and returns the number of bytes copied, which is less than the frame
// length if dst is short.
func (p *Publisher) TryReadInto(dst []byte, last uint64) (n int, seq uint64, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seq == last {
		return 0, last, false
	}
	n = copy(dst, p.buf[:p.n])
	return n, p.seq, true
}
