// SPDX-License-Identifier: MIT
package config

import "time"

// Core configuration constants that define the boundaries and defaults for
// the spectrum pipeline.
const (
	// Source defaults
	DefaultSourceKind      = SourceTone
	DefaultSampleRate      = 48000                 // Soundcard IQ rate (Hz)
	DefaultInputDevice     = MinDeviceID           // System default device
	DefaultFramesPerBuffer = 512                   // PortAudio callback size
	DefaultRingBlocks      = 64                    // Blocks buffered between producer and pipeline
	DefaultWaitTimeout     = 10 * time.Millisecond // Pipeline wait bound per poll
	DefaultNoiseLevel      = 0.01                  // Tone source noise amplitude

	// Analysis defaults
	DefaultFFTSize         = 1024
	DefaultWindow          = "hann"
	DefaultAverageDepth    = 500
	DefaultMaxAverageDepth = 5000
	DefaultDCBias          = 1.0 / 2048 // LimeSDR DC offset correction
	DefaultOffsetDB        = 60.0
	DefaultGain            = 8.0

	// Transport defaults
	DefaultListen            = ":7681"
	DefaultHTDocs            = "./htdocs"
	DefaultBroadcastInterval = 100 * time.Millisecond
	DefaultUDPTargetAddress  = "127.0.0.1:9090"

	// Archive defaults
	DefaultArchiveInterval = time.Minute
	DefaultSQLiteFile      = "/tmp/limesdr-fft.sqlite"
	DefaultMySQLServer     = "127.0.0.1:3306"
	DefaultMySQLDBName     = "spectre"

	// Hardware and processing limits
	MinDeviceID      = -1    // -1 represents system default device
	MinFFTSize       = 8     // Smallest useful transform
	MaxFFTSize       = 32768 // UDP frame count is a uint16
	MaxAverageLimit  = 20000 // Upper bound for max_average_depth (arena memory)
	MinRingBlocks    = 2
	MinBroadcastTick = time.Millisecond
)

// Source kinds.
const (
	SourceTone      = "tone"
	SourcePortAudio = "portaudio"
	SourceWAV       = "wav"
)

// Archive drivers.
const (
	ArchiveNone   = ""
	ArchiveSQLite = "sqlite"
	ArchiveMySQL  = "mysql"
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`     // Enable debug logging.
	LogLevel  string          `yaml:"log_level"` // Logging level (debug, info, warn, error).
	Source    SourceConfig    `yaml:"source"`    // Where IQ samples come from.
	Analysis  AnalysisConfig  `yaml:"analysis"`  // Transform, averaging and scaling.
	Transport TransportConfig `yaml:"transport"` // Viewer-facing outputs.
	Archive   ArchiveConfig   `yaml:"archive"`   // Periodic spectrum snapshots.

	// Runtime-only options set by the CLI.
	Command    string `yaml:"-"` // One-off command (devices, config-init) instead of running the pipeline.
	ConfigPath string `yaml:"-"` // File the configuration was loaded from, or the config-init target.
	TUIMode    bool   `yaml:"-"` // Run the terminal monitor beside the pipeline.
}

// SourceConfig selects and tunes the IQ sample producer.
type SourceConfig struct {
	Kind            string        `yaml:"kind"`              // tone, wav or portaudio.
	SampleRate      float64       `yaml:"sample_rate"`       // Samples per second for tone/portaudio.
	InputDevice     int           `yaml:"input_device"`      // PortAudio device index (-1 for default).
	FramesPerBuffer int           `yaml:"frames_per_buffer"` // PortAudio frames per callback.
	LowLatency      bool          `yaml:"low_latency"`       // Request low input latency from PortAudio.
	WAVFile         string        `yaml:"wav_file"`          // Stereo IQ recording to replay.
	Loop            bool          `yaml:"loop"`              // Rewind the WAV file at EOF.
	ToneOffsets     []float64     `yaml:"tone_offsets_hz"`   // Synthetic carriers relative to centre.
	NoiseLevel      float64       `yaml:"noise_level"`       // Synthetic noise amplitude.
	RingBlocks      int           `yaml:"ring_blocks"`       // Blocks buffered in the shared sample ring.
	WaitTimeout     time.Duration `yaml:"wait_timeout"`      // Pipeline wait bound.
	RecordFile      string        `yaml:"record_file"`       // Record raw IQ to this WAV file when set.
}

// AnalysisConfig holds the transform and scaling parameters.
type AnalysisConfig struct {
	FFTSize         int     `yaml:"fft_size"`          // Transform size N (power of two).
	Window          string  `yaml:"window"`            // Window function name.
	AverageDepth    int     `yaml:"average_depth"`     // Rolling average depth K (0 disables).
	MaxAverageDepth int     `yaml:"max_average_depth"` // K_max, sizes the history arena.
	DCBias          float64 `yaml:"dc_bias"`           // Additive bias applied to I and Q before windowing.
	OffsetDB        float64 `yaml:"offset_db"`         // Quantizer offset.
	Gain            float64 `yaml:"gain"`              // Quantizer gain.
}

// TransportConfig holds settings for publishing frames to viewers.
type TransportConfig struct {
	Listen            string        `yaml:"listen"`             // HTTP/websocket listen address.
	HTDocs            string        `yaml:"htdocs"`             // Static viewer directory.
	BroadcastInterval time.Duration `yaml:"broadcast_interval"` // Broadcast tick.
	UDPEnabled        bool          `yaml:"udp_enabled"`        // Also send frames over UDP.
	UDPTargetAddress  string        `yaml:"udp_target_address"` // host:port for UDP frames.
	LogFrames         bool          `yaml:"log_frames"`         // Log every broadcast frame at debug level.
}

// ArchiveConfig holds settings for the spectrum snapshot archive.
type ArchiveConfig struct {
	Driver            string        `yaml:"driver"`              // "", sqlite or mysql.
	Interval          time.Duration `yaml:"interval"`            // Time between snapshots.
	Identifier        string        `yaml:"identifier"`          // Instance id stored with each row (random when empty).
	SQLiteFile        string        `yaml:"sqlite_file"`         // SQLite database path.
	MySQLServer       string        `yaml:"mysql_server"`        // MySQL host:port.
	MySQLUser         string        `yaml:"mysql_user"`          // MySQL user.
	MySQLPasswordFile string        `yaml:"mysql_password_file"` // File holding the MySQL password.
	MySQLDBName       string        `yaml:"mysql_db_name"`       // MySQL database.
}

// NewConfig creates a Config populated with the built-in defaults. It is the
// base that YAML files, environment variables and flags are applied over.
func NewConfig() *Config {
	return &Config{
		Debug:    false,
		LogLevel: "info",
		Source: SourceConfig{
			Kind:            DefaultSourceKind,
			SampleRate:      DefaultSampleRate,
			InputDevice:     DefaultInputDevice,
			FramesPerBuffer: DefaultFramesPerBuffer,
			Loop:            true,
			ToneOffsets:     []float64{-12000, 3000, 15500},
			NoiseLevel:      DefaultNoiseLevel,
			RingBlocks:      DefaultRingBlocks,
			WaitTimeout:     DefaultWaitTimeout,
		},
		Analysis: AnalysisConfig{
			FFTSize:         DefaultFFTSize,
			Window:          DefaultWindow,
			AverageDepth:    DefaultAverageDepth,
			MaxAverageDepth: DefaultMaxAverageDepth,
			DCBias:          DefaultDCBias,
			OffsetDB:        DefaultOffsetDB,
			Gain:            DefaultGain,
		},
		Transport: TransportConfig{
			Listen:            DefaultListen,
			HTDocs:            DefaultHTDocs,
			BroadcastInterval: DefaultBroadcastInterval,
			UDPTargetAddress:  DefaultUDPTargetAddress,
		},
		Archive: ArchiveConfig{
			Interval:    DefaultArchiveInterval,
			SQLiteFile:  DefaultSQLiteFile,
			MySQLServer: DefaultMySQLServer,
			MySQLDBName: DefaultMySQLDBName,
		},
	}
}
