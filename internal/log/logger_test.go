// SPDX-License-Identifier: MIT
package log

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	prevBase, prevLevel := base, GetLevel()
	core, logs := observer.New(level)
	replaceCore(core)
	t.Cleanup(func() {
		base = prevBase
		sugar = prevBase.Sugar()
		SetLevel(prevLevel)
	})
	return logs
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
		ok   bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{"warning", LevelWarn, true},
		{"Error", LevelError, true},
		{"fatal", LevelFatal, true},
		{"chatty", LevelInfo, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSetLevelFiltersOutput(t *testing.T) {
	logs := observe(t)

	SetLevel(LevelWarn)
	Infof("Pipeline: dropped %d", 1)
	Warnf("Pipeline: overrun %d", 2)

	if logs.Len() != 1 {
		t.Fatalf("expected 1 entry at warn level, got %d", logs.Len())
	}
	entry := logs.All()[0]
	if entry.Level != zapcore.WarnLevel || entry.Message != "Pipeline: overrun 2" {
		t.Errorf("unexpected entry %+v", entry)
	}

	SetLevel(LevelDebug)
	if GetLevel() != LevelDebug {
		t.Errorf("GetLevel() = %v, want DEBUG", GetLevel())
	}
	Debug("Pipeline: debug")
	if logs.Len() != 2 {
		t.Errorf("expected debug entry after SetLevel(DEBUG), got %d entries", logs.Len())
	}
}

func TestWithCarriesFields(t *testing.T) {
	logs := observe(t)
	SetLevel(LevelInfo)

	With(zap.String("viewer", "abc")).Info("Hub: viewer connected")

	entries := logs.FilterField(zap.String("viewer", "abc")).All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry with viewer field, got %d", len(entries))
	}
}

func TestSetOutput(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(os.Stderr) })
	SetLevel(LevelInfo)

	Infof("Web: Serving viewer on %s", ":7681")

	if !strings.Contains(buf.String(), "Web: Serving viewer on :7681") {
		t.Errorf("output %q missing message", buf.String())
	}
}
