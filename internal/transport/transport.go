// SPDX-License-Identifier: MIT

// Package transport moves published frames to viewers. A Broadcaster polls
// the publisher on a ticker and fans each new frame out to its Sinks.
package transport

// Sink receives frames from the Broadcaster. Send is called from the
// broadcast goroutine and must not block on network I/O; frame is only valid
// for the duration of the call.
type Sink interface {
	Send(seq uint64, frame []byte) error
	Close() error
}

// FrameSource is the read side of publish.Publisher.
type FrameSource interface {
	Capacity() int
	TryReadInto(dst []byte, last uint64) (n int, seq uint64, ok bool)
}
