// SPDX-License-Identifier: MIT
package udp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	applog "github.com/philcrump/limesdr-fft/internal/log"
	"github.com/philcrump/limesdr-fft/internal/transport"
)

/*
UDP Packet Structure (BigEndian)

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Sequence Number   | uint32         | 4            | Publisher sequence      |
| Timestamp         | int64          | 8            | Nanoseconds since epoch |
| Bin Count         | uint16         | 2            | Number of bins (N)      |
| Bins              | []uint8        | N            | Quantized spectrum      |
+-----------------------------------------------------------------------------+

Visual Layout:

|<---- 4 Bytes ---->|<------ 8 Bytes ------>|<-- 2 Bytes -->|<------ N Bytes ------>|
+-------------------+-----------------------+---------------+-----------------------+
|  Sequence Number  |       Timestamp       |   Bin Count   |         Bins          |
|      (uint32)     |        (int64)        |    (uint16)   |      (N * uint8)      |
+-------------------+-----------------------+---------------+-----------------------+
*/

// HeaderSize is the length of the fixed packet header.
const HeaderSize = 4 + 8 + 2

// ErrPacket is returned by ParsePacket for malformed datagrams.
var ErrPacket = errors.New("udp: malformed packet")

// Packet is a decoded datagram.
type Packet struct {
	Sequence  uint32
	Timestamp time.Time
	Bins      []byte
}

// Sink sends every broadcast frame as one datagram.
type Sink struct {
	sender *Sender
	packet []byte
	now    func() time.Time
}

// NewSink dials targetAddress and sizes the packet buffer for frames of
// frameLen bins.
func NewSink(targetAddress string, frameLen int) (*Sink, error) {
	if frameLen <= 0 || frameLen > math.MaxUint16 {
		return nil, fmt.Errorf("udp: frame length %d does not fit the packet format", frameLen)
	}
	sender, err := NewSender(targetAddress)
	if err != nil {
		return nil, err
	}
	applog.Infof("UDP Sink: Initializing (Target: %s, Bins: %d)", targetAddress, frameLen)
	return &Sink{
		sender: sender,
		packet: make([]byte, 0, HeaderSize+frameLen),
		now:    time.Now,
	}, nil
}

// Send packs and transmits the frame. The sequence is truncated to 32 bits.
func (s *Sink) Send(seq uint64, frame []byte) error {
	if len(frame) > math.MaxUint16 {
		return fmt.Errorf("udp: frame of %d bins too large", len(frame))
	}
	s.packet = AppendPacket(s.packet[:0], uint32(seq), s.now(), frame)
	if err := s.sender.Send(s.packet); err != nil {
		return err
	}
	applog.Debugf("UDP Sink: Sent packet %d (%d bytes)", seq, len(s.packet))
	return nil
}

// Close closes the underlying sender.
func (s *Sink) Close() error {
	return s.sender.Close()
}

// AppendPacket appends the encoded packet to dst.
func AppendPacket(dst []byte, seq uint32, ts time.Time, bins []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, seq)
	dst = binary.BigEndian.AppendUint64(dst, uint64(ts.UnixNano()))
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(bins)))
	return append(dst, bins...)
}

// ParsePacket decodes a datagram. Bins aliases data.
func ParsePacket(data []byte) (Packet, error) {
	if len(data) < HeaderSize {
		return Packet{}, fmt.Errorf("%w: %d bytes is shorter than the header", ErrPacket, len(data))
	}
	n := int(binary.BigEndian.Uint16(data[12:14]))
	if len(data) != HeaderSize+n {
		return Packet{}, fmt.Errorf("%w: header says %d bins, payload has %d", ErrPacket, n, len(data)-HeaderSize)
	}
	return Packet{
		Sequence:  binary.BigEndian.Uint32(data[0:4]),
		Timestamp: time.Unix(0, int64(binary.BigEndian.Uint64(data[4:12]))),
		Bins:      data[HeaderSize:],
	}, nil
}

// Ensure Sink satisfies transport.Sink at compile time.
var _ transport.Sink = (*Sink)(nil)
