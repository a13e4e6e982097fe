// SPDX-License-Identifier: MIT
package transport

import (
	applog "github.com/philcrump/limesdr-fft/internal/log"
	"go.uber.org/zap"
)

// LogSink logs a one-line summary of every broadcast frame at debug level.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a new LogSink instance.
func NewLogSink() *LogSink {
	applog.Infof("Transport: Using LogSink")
	return &LogSink{logger: applog.With(zap.String("component", "frames"))}
}

// Send logs the frame sequence, length and brightest bin.
func (l *LogSink) Send(seq uint64, frame []byte) error {
	if ce := l.logger.Check(zap.DebugLevel, "frame"); ce != nil {
		peak, peakBin := byte(0), 0
		for i, v := range frame {
			if v > peak {
				peak, peakBin = v, i
			}
		}
		ce.Write(
			zap.Uint64("seq", seq),
			zap.Int("len", len(frame)),
			zap.Int("peak_bin", peakBin),
			zap.Uint8("peak", peak),
		)
	}
	return nil
}

// Close is a no-op for LogSink.
func (l *LogSink) Close() error {
	return nil
}

// Ensure LogSink satisfies the interface at compile time.
var _ Sink = (*LogSink)(nil)
