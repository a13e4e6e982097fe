// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("")
	if err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
	if cfg == nil {
		t.Error("expected default config, got nil")
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("nonexistent.yaml")
	if err == nil {
		t.Errorf("expected error for missing file, got nil")
	}
	if cfg != nil {
		t.Errorf("expected nil config on error, got %+v", cfg)
	}
}

func TestLoadConfig_UnmarshalError(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, ":\n:bad")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Error("expected unmarshal error, got nil or wrong error")
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `
source:
  kind: tone
  ring_blocks: 16
  wait_timeout: 25ms
analysis:
  fft_size: 2048
  window: blackman
  average_depth: 10
  max_average_depth: 100
transport:
  broadcast_interval: 50ms
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Analysis.FFTSize != 2048 {
		t.Errorf("fft_size = %d, want 2048", cfg.Analysis.FFTSize)
	}
	if cfg.Analysis.Window != "blackman" {
		t.Errorf("window = %q, want blackman", cfg.Analysis.Window)
	}
	if cfg.Analysis.AverageDepth != 10 || cfg.Analysis.MaxAverageDepth != 100 {
		t.Errorf("average depth = %d/%d, want 10/100", cfg.Analysis.AverageDepth, cfg.Analysis.MaxAverageDepth)
	}
	if cfg.Source.WaitTimeout != 25*time.Millisecond {
		t.Errorf("wait_timeout = %s, want 25ms", cfg.Source.WaitTimeout)
	}
	if cfg.Transport.BroadcastInterval != 50*time.Millisecond {
		t.Errorf("broadcast_interval = %s, want 50ms", cfg.Transport.BroadcastInterval)
	}
	// Untouched fields keep their defaults.
	if cfg.Analysis.Gain != DefaultGain {
		t.Errorf("gain = %g, want default %g", cfg.Analysis.Gain, DefaultGain)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("ENV_AVERAGE_DEPTH", "42")
	t.Setenv("ENV_BROADCAST_INTERVAL", "250ms")
	t.Setenv("ENV_UDP_ENABLED", "true")
	t.Setenv("ENV_LISTEN", ":9999")

	path := writeTempConfig(t, "analysis:\n  average_depth: 7\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Analysis.AverageDepth != 42 {
		t.Errorf("average_depth = %d, want env value 42", cfg.Analysis.AverageDepth)
	}
	if cfg.Transport.BroadcastInterval != 250*time.Millisecond {
		t.Errorf("broadcast_interval = %s, want 250ms", cfg.Transport.BroadcastInterval)
	}
	if !cfg.Transport.UDPEnabled {
		t.Error("expected udp_enabled from env")
	}
	if cfg.Transport.Listen != ":9999" {
		t.Errorf("listen = %q, want :9999", cfg.Transport.Listen)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"fft size not power of two", func(c *Config) { c.Analysis.FFTSize = 1000 }, false},
		{"fft size too small", func(c *Config) { c.Analysis.FFTSize = 4 }, false},
		{"fft size too large", func(c *Config) { c.Analysis.FFTSize = 65536 }, false},
		{"averaging disabled", func(c *Config) { c.Analysis.AverageDepth = 0 }, true},
		{"depth equals max", func(c *Config) { c.Analysis.AverageDepth = c.Analysis.MaxAverageDepth }, true},
		{"depth above max", func(c *Config) { c.Analysis.AverageDepth = c.Analysis.MaxAverageDepth + 1 }, false},
		{"negative depth", func(c *Config) { c.Analysis.AverageDepth = -1 }, false},
		{"max above limit", func(c *Config) { c.Analysis.MaxAverageDepth = MaxAverageLimit + 1 }, false},
		{"unknown window", func(c *Config) { c.Analysis.Window = "kaiser" }, false},
		{"zero gain", func(c *Config) { c.Analysis.Gain = 0 }, false},
		{"unknown source", func(c *Config) { c.Source.Kind = "rtl" }, false},
		{"wav without file", func(c *Config) { c.Source.Kind = SourceWAV }, false},
		{"wav with file", func(c *Config) { c.Source.Kind = SourceWAV; c.Source.WAVFile = "iq.wav" }, true},
		{"ring too small", func(c *Config) { c.Source.RingBlocks = 1 }, false},
		{"zero wait timeout", func(c *Config) { c.Source.WaitTimeout = 0 }, false},
		{"device below default", func(c *Config) { c.Source.InputDevice = -2 }, false},
		{"broadcast too fast", func(c *Config) { c.Transport.BroadcastInterval = time.Microsecond }, false},
		{"udp without target", func(c *Config) { c.Transport.UDPEnabled = true; c.Transport.UDPTargetAddress = "" }, false},
		{"sqlite archive", func(c *Config) { c.Archive.Driver = ArchiveSQLite }, true},
		{"mysql archive without user", func(c *Config) { c.Archive.Driver = ArchiveMySQL }, false},
		{"unknown archive", func(c *Config) { c.Archive.Driver = "postgres" }, false},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("expected valid config, got %v", err)
			}
			if !tt.ok {
				if err == nil {
					t.Error("expected validation error, got nil")
				} else if !errors.Is(err, ErrInvalid) {
					t.Errorf("expected ErrInvalid, got %v", err)
				}
			}
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := NewConfig()
	cfg.Analysis.AverageDepth = 123
	cfg.Transport.BroadcastInterval = 40 * time.Millisecond
	if err := cfg.Save(path); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !strings.Contains(string(data), "broadcast_interval: 40ms") {
		t.Errorf("expected duration written as string, got:\n%s", data)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Analysis.AverageDepth != 123 {
		t.Errorf("average_depth = %d, want 123", loaded.Analysis.AverageDepth)
	}
}
