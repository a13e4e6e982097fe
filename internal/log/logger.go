// SPDX-License-Identifier: MIT
package log

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel defines the severity of a log message.
type LogLevel uint32

// Constants for log levels.
const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	case LevelFatal:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseLevel converts a string (case-insensitive) to a LogLevel.
// Returns LevelInfo and false if the string is not recognized.
func ParseLevel(levelStr string) (LogLevel, bool) {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	default:
		return LevelInfo, false
	}
}

// --- Global Logger State ---

// level is shared by every core built in this package so SetLevel applies to
// loggers handed out by With before the change.
var level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

var (
	base  *zap.Logger
	sugar *zap.SugaredLogger
)

func init() {
	replaceCore(consoleCore(os.Stderr))
}

func consoleCore(w io.Writer) zapcore.Core {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05.000000")
	return zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(zapcore.AddSync(w)), level)
}

// SetOutput sends log output to w. Call it before starting goroutines that
// log; loggers obtained from With keep their previous output.
func SetOutput(w io.Writer) {
	replaceCore(consoleCore(w))
}

// replaceCore swaps the output core. Tests use it to observe log output.
func replaceCore(core zapcore.Core) {
	base = zap.New(core)
	sugar = base.Sugar()
}

// SetLevel sets the global logging level atomically.
func SetLevel(l LogLevel) {
	level.SetLevel(l.zapLevel())
}

// GetLevel gets the current global logging level.
func GetLevel() LogLevel {
	switch level.Level() {
	case zapcore.DebugLevel:
		return LevelDebug
	case zapcore.WarnLevel:
		return LevelWarn
	case zapcore.ErrorLevel:
		return LevelError
	case zapcore.FatalLevel:
		return LevelFatal
	default:
		return LevelInfo
	}
}

// With returns a structured logger carrying the given fields, for components
// that want typed keys (viewer ids, sequence numbers) instead of printf text.
func With(fields ...zap.Field) *zap.Logger {
	return base.With(fields...)
}

// Sync flushes buffered output. Call before exit.
func Sync() {
	_ = base.Sync()
}

// --- Public Logging Functions ---

// Debugf logs a formatted debug message if the level is appropriate.
func Debugf(format string, v ...interface{}) {
	sugar.Debugf(format, v...)
}

// Infof logs a formatted info message if the level is appropriate.
func Infof(format string, v ...interface{}) {
	sugar.Infof(format, v...)
}

// Warnf logs a formatted warning message if the level is appropriate.
func Warnf(format string, v ...interface{}) {
	sugar.Warnf(format, v...)
}

// Errorf logs a formatted error message if the level is appropriate.
func Errorf(format string, v ...interface{}) {
	sugar.Errorf(format, v...)
}

// Fatalf logs a formatted fatal message and exits the application.
func Fatalf(format string, v ...interface{}) {
	sugar.Fatalf(format, v...)
}

// --- Functions without formatting (convenience) ---

// Debug logs a debug message if the level is appropriate.
func Debug(v ...interface{}) {
	sugar.Debug(v...)
}

// Info logs an info message if the level is appropriate.
func Info(v ...interface{}) {
	sugar.Info(v...)
}

// Warn logs a warning message if the level is appropriate.
func Warn(v ...interface{}) {
	sugar.Warn(v...)
}

// Error logs an error message if the level is appropriate.
func Error(v ...interface{}) {
	sugar.Error(v...)
}

// Fatal logs a fatal message and exits the application.
func Fatal(v ...interface{}) {
	sugar.Fatal(v...)
}
