// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/philcrump/limesdr-fft/cmd"
	"github.com/philcrump/limesdr-fft/internal/analysis"
	"github.com/philcrump/limesdr-fft/internal/archive"
	"github.com/philcrump/limesdr-fft/internal/capture"
	"github.com/philcrump/limesdr-fft/internal/config"
	applog "github.com/philcrump/limesdr-fft/internal/log"
	"github.com/philcrump/limesdr-fft/internal/pipeline"
	"github.com/philcrump/limesdr-fft/internal/publish"
	"github.com/philcrump/limesdr-fft/internal/transport"
	"github.com/philcrump/limesdr-fft/internal/transport/udp"
	"github.com/philcrump/limesdr-fft/internal/tui"
	"github.com/philcrump/limesdr-fft/internal/web"
	"github.com/philcrump/limesdr-fft/pkg/build"
)

// tuiLogFile receives log output while the terminal monitor owns the screen.
const tuiLogFile = "limesdr-fft.log"

// main is the entry point for the spectrum monitor.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and load configuration
//   - Execute one-off commands if requested
//   - Build the ring, producer, processor, publisher and outputs
//
// 2. Concurrent Phase (Hot Path):
//   - Producer fills the sample ring
//   - Pipeline worker turns blocks into published frames
//   - Broadcaster, web server, archive and monitor read the publisher
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals
//   - Join every goroutine
//   - Close resources in reverse order
func main() {
	os.Exit(realMain())
}

func realMain() int {
	// ==================== STARTUP PHASE (Cold Path) ====================

	if err := build.Initialize(); err != nil {
		applog.Debugf("Build: %v", err)
	}

	cfg, err := cmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	if cfg == nil {
		return 0 // help or version
	}

	level, _ := applog.ParseLevel(cfg.LogLevel)
	if cfg.Debug {
		level = applog.LevelDebug
	}
	applog.SetLevel(level)
	defer applog.Sync()

	// Handle one-off commands that don't run the pipeline.
	if cfg.Command != "" {
		if err := executeCommand(cfg); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			return 1
		}
		return 0
	}

	if cfg.TUIMode {
		f, err := os.OpenFile(tuiLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			return 1
		}
		defer f.Close()
		applog.SetOutput(f)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		applog.Errorf("%v", err)
		return 1
	}
	return 0
}

// run builds the pipeline, runs it until ctx is done or a component fails,
// then tears it down.
func run(ctx context.Context, cfg *config.Config) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// closers run in reverse order on return.
	var closers []func() error
	defer func() {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			if cerr := closers[i](); cerr != nil {
				errs = append(errs, cerr)
			}
		}
		err = errors.Join(append([]error{err}, errs...)...)
	}()

	n := cfg.Analysis.FFTSize

	ring, err := capture.NewRing(2*n, cfg.Source.RingBlocks)
	if err != nil {
		return err
	}
	closers = append(closers, ring.Close)

	producer, sampleRate, err := newProducer(cfg)
	if err != nil {
		return err
	}
	if cfg.Source.Kind == config.SourcePortAudio {
		closers = append(closers, capture.Terminate)
	}

	var writer capture.Writer = ring
	if cfg.Source.RecordFile != "" {
		rec, err := capture.NewRecorder(cfg.Source.RecordFile, int(math.Round(sampleRate)), ring)
		if err != nil {
			return err
		}
		closers = append(closers, rec.Close)
		writer = rec
	}

	window, err := analysis.ParseWindowFunc(cfg.Analysis.Window)
	if err != nil {
		return err
	}
	proc, err := analysis.NewProcessor(analysis.ProcessorConfig{
		FFTSize:         n,
		Window:          window,
		AverageDepth:    cfg.Analysis.AverageDepth,
		MaxAverageDepth: cfg.Analysis.MaxAverageDepth,
		DCBias:          cfg.Analysis.DCBias,
		OffsetDB:        cfg.Analysis.OffsetDB,
		Gain:            cfg.Analysis.Gain,
	})
	if err != nil {
		return err
	}
	pub := publish.New(n)

	worker, err := pipeline.NewWorker(ring, proc, pub, cfg.Source.WaitTimeout)
	if err != nil {
		return err
	}

	broadcaster, err := transport.NewBroadcaster(pub, cfg.Transport.BroadcastInterval)
	if err != nil {
		return err
	}
	closers = append(closers, broadcaster.Close)

	hub := transport.NewHub(pub)
	broadcaster.Add(hub)
	if cfg.Transport.UDPEnabled {
		sink, err := udp.NewSink(cfg.Transport.UDPTargetAddress, n)
		if err != nil {
			return err
		}
		broadcaster.Add(sink)
	}
	if cfg.Transport.LogFrames {
		broadcaster.Add(transport.NewLogSink())
	}

	var archiver *archive.Archiver
	if cfg.Archive.Driver != config.ArchiveNone {
		db, err := archive.Open(cfg.Archive)
		if err != nil {
			return err
		}
		archiver, err = archive.New(ctx, db, pub, archive.Options{
			Driver:     cfg.Archive.Driver,
			Identifier: cfg.Archive.Identifier,
			FFTSize:    n,
			Interval:   cfg.Archive.Interval,
			Depth:      proc.AverageDepth,
		})
		if err != nil {
			_ = db.Close()
			return err
		}
		closers = append(closers, archiver.Close)
	}

	webOpts := web.Options{
		Listen:    cfg.Transport.Listen,
		HTDocs:    cfg.Transport.HTDocs,
		Averaging: proc,
		Viewers:   hub,
		Sequence:  pub.Sequence,
		Pipeline:  worker.Stats,
		Broadcast: broadcaster.Stats,
		Capture:   ring.Stats,
	}
	if archiver != nil {
		webOpts.Archive = archiver
	}
	server, err := web.NewServer(webOpts)
	if err != nil {
		return err
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	var (
		wg       sync.WaitGroup
		errMu    sync.Mutex
		firstErr error
	)
	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				errMu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("%s: %w", name, err)
				}
				errMu.Unlock()
				cancel()
			}
		}()
	}

	start("producer", func(ctx context.Context) error {
		err := producer.Run(ctx, writer)
		if err == nil && ctx.Err() == nil {
			// Finite input: the last frame stays published.
			applog.Infof("Capture: source finished")
			_ = ring.Close()
		}
		return err
	})
	start("pipeline", worker.Run)
	start("broadcaster", broadcaster.Run)
	start("web", server.Run)
	if archiver != nil {
		start("archive", archiver.Run)
	}
	if cfg.TUIMode {
		start("monitor", func(ctx context.Context) error {
			defer cancel() // quitting the monitor stops the program
			return tui.Run(ctx, tui.Options{
				Frames:    pub,
				Averaging: proc,
				Viewers:   hub.Count,
				Interval:  cfg.Transport.BroadcastInterval,
			})
		})
	}

	// Block until termination signal is received
	<-ctx.Done()

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	applog.Infof("Shutting down...")
	wg.Wait()

	errMu.Lock()
	defer errMu.Unlock()
	return firstErr
}

// newProducer builds the configured sample source and reports its rate.
func newProducer(cfg *config.Config) (capture.Producer, float64, error) {
	src := cfg.Source
	switch src.Kind {
	case config.SourceTone:
		return capture.NewToneSource(src.SampleRate, src.FramesPerBuffer, src.ToneOffsets, src.NoiseLevel), src.SampleRate, nil
	case config.SourceWAV:
		w, err := capture.NewWAVSource(src.WAVFile, src.Loop, src.FramesPerBuffer)
		if err != nil {
			return nil, 0, err
		}
		return w, w.SampleRate(), nil
	case config.SourcePortAudio:
		if err := capture.Initialize(); err != nil {
			return nil, 0, err
		}
		return &capture.PortAudioSource{
			DeviceID:        src.InputDevice,
			SampleRate:      src.SampleRate,
			FramesPerBuffer: src.FramesPerBuffer,
			LowLatency:      src.LowLatency,
		}, src.SampleRate, nil
	default:
		return nil, 0, fmt.Errorf("%w: unknown source kind %q", config.ErrInvalid, src.Kind)
	}
}

// executeCommand handles one-off commands that don't run the pipeline, such
// as listing soundcard devices.
func executeCommand(cfg *config.Config) error {
	switch cfg.Command {
	case cmd.CommandDevices:
		if err := capture.Initialize(); err != nil {
			return err
		}
		defer capture.Terminate()
		return capture.ListDevices(os.Stdout)
	case cmd.CommandConfigInit:
		if _, err := os.Stat(cfg.ConfigPath); err == nil {
			return fmt.Errorf("%s already exists", cfg.ConfigPath)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		if err := cfg.Save(cfg.ConfigPath); err != nil {
			return err
		}
		fmt.Printf("Default configuration written to %s\n", cfg.ConfigPath)
		return nil
	default:
		return fmt.Errorf("unknown command %q", cfg.Command)
	}
}
