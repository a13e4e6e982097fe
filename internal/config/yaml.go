// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/philcrump/limesdr-fft/internal/analysis"
	applog "github.com/philcrump/limesdr-fft/internal/log"
	"github.com/philcrump/limesdr-fft/pkg/bitint"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure returned by Validate.
var ErrInvalid = errors.New("invalid configuration")

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults. After loading defaults or from file, it applies environment variable
// overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		candidates := []string{
			"config.yaml",
			"/etc/limesdr-fft/config.yaml",
		}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		applog.Debugf("Config: loaded %s", path)
	}

	// Environment overrides apply after the file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration as YAML to path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks every field the pipeline depends on at construction time.
// Runtime reconfiguration of the averaging depth is validated separately by
// the analysis processor.
func (c *Config) Validate() error {
	if _, ok := applog.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("%w: log_level %q is not one of debug, info, warn, error", ErrInvalid, c.LogLevel)
	}

	// Source
	switch c.Source.Kind {
	case SourceTone, SourcePortAudio:
	case SourceWAV:
		if c.Source.WAVFile == "" {
			return fmt.Errorf("%w: source.wav_file must be set for the wav source", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: source.kind %q is not one of tone, wav, portaudio", ErrInvalid, c.Source.Kind)
	}
	if c.Source.Kind != SourceWAV && c.Source.SampleRate <= 0 {
		return fmt.Errorf("%w: source.sample_rate must be positive, got %g", ErrInvalid, c.Source.SampleRate)
	}
	if c.Source.InputDevice < MinDeviceID {
		return fmt.Errorf("%w: source.input_device %d is below %d", ErrInvalid, c.Source.InputDevice, MinDeviceID)
	}
	if c.Source.RingBlocks < MinRingBlocks {
		return fmt.Errorf("%w: source.ring_blocks must be at least %d", ErrInvalid, MinRingBlocks)
	}
	if c.Source.WaitTimeout <= 0 {
		return fmt.Errorf("%w: source.wait_timeout must be positive", ErrInvalid)
	}

	// Analysis
	a := c.Analysis
	if !bitint.IsPowerOfTwo(a.FFTSize) || a.FFTSize < MinFFTSize || a.FFTSize > MaxFFTSize {
		return fmt.Errorf("%w: analysis.fft_size %d must be a power of two in [%d, %d]",
			ErrInvalid, a.FFTSize, MinFFTSize, MaxFFTSize)
	}
	if _, err := analysis.ParseWindowFunc(a.Window); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if a.MaxAverageDepth < 0 || a.MaxAverageDepth > MaxAverageLimit {
		return fmt.Errorf("%w: analysis.max_average_depth %d must be in [0, %d]",
			ErrInvalid, a.MaxAverageDepth, MaxAverageLimit)
	}
	if a.AverageDepth < 0 || a.AverageDepth > a.MaxAverageDepth {
		return fmt.Errorf("%w: analysis.average_depth %d must be in [0, %d]",
			ErrInvalid, a.AverageDepth, a.MaxAverageDepth)
	}
	if a.Gain <= 0 {
		return fmt.Errorf("%w: analysis.gain must be positive, got %g", ErrInvalid, a.Gain)
	}

	// Transport
	if c.Transport.BroadcastInterval < MinBroadcastTick {
		return fmt.Errorf("%w: transport.broadcast_interval must be at least %s", ErrInvalid, MinBroadcastTick)
	}
	if c.Transport.UDPEnabled && c.Transport.UDPTargetAddress == "" {
		return fmt.Errorf("%w: transport.udp_target_address must be set when UDP is enabled", ErrInvalid)
	}

	// Archive
	switch c.Archive.Driver {
	case ArchiveNone:
	case ArchiveSQLite:
		if c.Archive.SQLiteFile == "" {
			return fmt.Errorf("%w: archive.sqlite_file must be set for the sqlite archive", ErrInvalid)
		}
	case ArchiveMySQL:
		if c.Archive.MySQLUser == "" || c.Archive.MySQLServer == "" {
			return fmt.Errorf("%w: archive.mysql_user and archive.mysql_server must be set for the mysql archive", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: archive.driver %q is not one of sqlite, mysql", ErrInvalid, c.Archive.Driver)
	}
	if c.Archive.Driver != ArchiveNone && c.Archive.Interval <= 0 {
		return fmt.Errorf("%w: archive.interval must be positive", ErrInvalid)
	}

	return nil
}

// applyEnvOverrides applies ENV_* variables over the loaded configuration.
// Unparseable values are ignored with a warning.
func (cfg *Config) applyEnvOverrides() {
	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Debug = bVal
			applog.Infof("Config: overriding debug from env: %v", bVal)
		} else {
			applog.Warnf("Config: ignoring ENV_DEBUG=%q: %v", val, err)
		}
	}
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		cfg.LogLevel = val
		applog.Infof("Config: overriding log_level from env: %s", val)
	}

	// ENV_SOURCE_{...}

	// ENV_SOURCE_KIND
	if val, ok := os.LookupEnv("ENV_SOURCE_KIND"); ok {
		cfg.Source.Kind = val
		applog.Infof("Config: overriding source.kind from env: %s", val)
	}
	// ENV_SOURCE_WAV_FILE
	if val, ok := os.LookupEnv("ENV_SOURCE_WAV_FILE"); ok {
		cfg.Source.WAVFile = val
		applog.Infof("Config: overriding source.wav_file from env: %s", val)
	}

	// ENV_AVERAGE_DEPTH
	if val, ok := os.LookupEnv("ENV_AVERAGE_DEPTH"); ok {
		if iVal, err := strconv.Atoi(val); err == nil {
			cfg.Analysis.AverageDepth = iVal
			applog.Infof("Config: overriding analysis.average_depth from env: %d", iVal)
		} else {
			applog.Warnf("Config: ignoring ENV_AVERAGE_DEPTH=%q: %v", val, err)
		}
	}

	// ENV_LISTEN
	if val, ok := os.LookupEnv("ENV_LISTEN"); ok {
		cfg.Transport.Listen = val
		applog.Infof("Config: overriding transport.listen from env: %s", val)
	}
	// ENV_BROADCAST_INTERVAL
	if val, ok := os.LookupEnv("ENV_BROADCAST_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			cfg.Transport.BroadcastInterval = dur
			applog.Infof("Config: overriding transport.broadcast_interval from env: %s", dur)
		} else {
			applog.Warnf("Config: ignoring ENV_BROADCAST_INTERVAL=%q: %v", val, err)
		}
	}

	// ENV_UDP_{...}

	// ENV_UDP_ENABLED
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Transport.UDPEnabled = bVal
			applog.Infof("Config: overriding transport.udp_enabled from env: %v", bVal)
		}
	}
	// ENV_UDP_TARGET_ADDRESS
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		cfg.Transport.UDPTargetAddress = val
		applog.Infof("Config: overriding transport.udp_target_address from env: %s", val)
	}
}
