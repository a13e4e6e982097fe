// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"
	"os"

	"github.com/philcrump/limesdr-fft/internal/config"
	"github.com/philcrump/limesdr-fft/pkg/build"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Commands that run instead of the pipeline.
const (
	CommandDevices    = "devices"
	CommandConfigInit = "config-init"
)

// flagValues holds command line overrides. Only flags the user set are
// applied over the loaded configuration.
type flagValues struct {
	configPath   string
	verbose      bool
	tui          bool
	source       string
	device       int
	sampleRate   float64
	wavFile      string
	record       string
	fftSize      int
	window       string
	averageDepth int
	listen       string
	udpTarget    string
	archive      string
}

// ParseArgs parses args (usually os.Args[1:]) and returns the resolved
// configuration. Help and version output return a nil config and nil error.
func ParseArgs(args []string) (*config.Config, error) {
	buildInfo := build.GetBuildInfo()
	var (
		flags   flagValues
		options *config.Config
	)

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         "Real-time IQ spectrum monitor",
		Long:          "Captures IQ samples, computes an averaged power spectrum and streams quantized frames to browser viewers.",
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(flags.configPath)
			if err != nil {
				return err
			}
			if err := applyFlags(cmd.Flags(), &flags, cfg); err != nil {
				return err
			}
			options = cfg
			return nil
		},
	}
	rootCmd.SetVersionTemplate("{{.Name}} " + buildInfo.String() + "\n")

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "List soundcard devices usable as IQ inputs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			options = config.NewConfig()
			options.Command = CommandDevices
			return nil
		},
	}
	rootCmd.AddCommand(devicesCmd)

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration file helpers",
	}
	configInitCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration to path (config.yaml by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			options = config.NewConfig()
			options.Command = CommandConfigInit
			options.ConfigPath = "config.yaml"
			if len(args) == 1 {
				options.ConfigPath = args[0]
			}
			return nil
		},
	}
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "",
		"Path to the YAML configuration file")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false,
		"Show verbose output")

	f := rootCmd.Flags()
	f.BoolVarP(&flags.tui, "tui", "t", false,
		"Show the terminal monitor")
	f.StringVarP(&flags.source, "source", "s", config.DefaultSourceKind,
		"Sample source: tone, wav or portaudio")
	f.IntVarP(&flags.device, "device", "d", config.DefaultInputDevice,
		"Input device ID. Use the 'devices' command to see available devices.")
	f.Float64VarP(&flags.sampleRate, "sample-rate", "r", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	f.StringVarP(&flags.wavFile, "wav", "w", "",
		"Stereo IQ WAV file to replay (implies --source wav)")
	f.StringVar(&flags.record, "record", "",
		"Record the raw IQ stream to this WAV file")
	f.IntVarP(&flags.fftSize, "fft-size", "n", config.DefaultFFTSize,
		"Transform size (power of two)")
	f.StringVar(&flags.window, "window", config.DefaultWindow,
		"Window function")
	f.IntVarP(&flags.averageDepth, "average", "a", config.DefaultAverageDepth,
		"Rolling average depth in frames (0 disables)")
	f.StringVarP(&flags.listen, "listen", "l", config.DefaultListen,
		"HTTP listen address for the viewer")
	f.StringVar(&flags.udpTarget, "udp", "",
		"Also send frames as UDP datagrams to host:port")
	f.StringVar(&flags.archive, "archive", "",
		"Archive spectrum snapshots: sqlite or mysql")

	if args == nil {
		args = []string{} // cobra falls back to os.Args on nil
	}
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	return options, nil
}

// applyFlags copies every flag the user set into cfg and validates the
// result.
func applyFlags(fs *pflag.FlagSet, flags *flagValues, cfg *config.Config) error {
	cfg.ConfigPath = flags.configPath
	if fs.Changed("verbose") && flags.verbose {
		cfg.Debug = true
		cfg.LogLevel = "debug"
	}
	if fs.Changed("tui") {
		cfg.TUIMode = flags.tui
	}
	if fs.Changed("source") {
		cfg.Source.Kind = flags.source
	}
	if fs.Changed("device") {
		cfg.Source.InputDevice = flags.device
	}
	if fs.Changed("sample-rate") {
		cfg.Source.SampleRate = flags.sampleRate
	}
	if fs.Changed("wav") {
		cfg.Source.WAVFile = flags.wavFile
		if !fs.Changed("source") {
			cfg.Source.Kind = config.SourceWAV
		}
	}
	if fs.Changed("record") {
		cfg.Source.RecordFile = flags.record
	}
	if fs.Changed("fft-size") {
		cfg.Analysis.FFTSize = flags.fftSize
	}
	if fs.Changed("window") {
		cfg.Analysis.Window = flags.window
	}
	if fs.Changed("average") {
		cfg.Analysis.AverageDepth = flags.averageDepth
	}
	if fs.Changed("listen") {
		cfg.Transport.Listen = flags.listen
	}
	if fs.Changed("udp") {
		cfg.Transport.UDPEnabled = flags.udpTarget != ""
		cfg.Transport.UDPTargetAddress = flags.udpTarget
	}
	if fs.Changed("archive") {
		cfg.Archive.Driver = flags.archive
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Execute parses os.Args.
func Execute() (*config.Config, error) {
	return ParseArgs(os.Args[1:])
}
