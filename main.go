package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/smazurov/vidbuf/cmd"
	"github.com/smazurov/vidbuf/internal/capture"
	"github.com/smazurov/vidbuf/internal/config"
	"github.com/smazurov/vidbuf/internal/events"
	"github.com/smazurov/vidbuf/internal/logging"
	"github.com/smazurov/vidbuf/internal/metrics"
	"github.com/smazurov/vidbuf/internal/systemd"
	"github.com/smazurov/vidbuf/internal/version"
	"github.com/smazurov/vidbuf/pkg/linuxav/v4l2"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"vidbuf.toml"`

	// Capture settings
	Device       string `help:"Video device path, node name or udev id" short:"d" default:"/dev/video0" toml:"capture.device" env:"CAPTURE_DEVICE"`
	Buffers      int    `help:"Buffers to request from the driver" short:"b" default:"4" toml:"capture.buffers" env:"CAPTURE_BUFFERS"`
	MinBuffers   int    `help:"Smallest buffer grant to accept" default:"2" toml:"capture.min_buffers" env:"CAPTURE_MIN_BUFFERS"`
	Limit        int    `help:"Maximum buffers in flight (0 = driver maximum)" default:"0" toml:"capture.limit" env:"CAPTURE_LIMIT"`
	Memory       string `help:"Memory model (mmap, userptr)" default:"mmap" toml:"capture.memory" env:"CAPTURE_MEMORY"`
	Frames       int    `help:"Frames to dequeue (0 = until interrupted)" short:"n" default:"0" toml:"capture.frames" env:"CAPTURE_FRAMES"`
	FrameTimeout string `help:"Per-frame dequeue timeout" default:"2s" toml:"capture.frame_timeout" env:"CAPTURE_FRAME_TIMEOUT"`
	Wait         bool   `help:"Wait for the device node to appear" default:"false" toml:"capture.wait" env:"CAPTURE_WAIT"`

	// Reporting settings
	MetricsAddr    string `help:"Prometheus listen address (empty disables)" default:"" toml:"metrics.addr" env:"METRICS_ADDR"`
	ReportInterval string `help:"Console progress interval" default:"1s" toml:"report.interval" env:"REPORT_INTERVAL"`
	Quiet          bool   `help:"Suppress console progress" short:"q" default:"false" toml:"report.quiet" env:"REPORT_QUIET"`

	// Logging settings
	LoggingLevel   string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingCapture string `help:"Capture logging level" default:"info" toml:"logging.modules.capture" env:"LOGGING_CAPTURE"`
	LoggingLinuxav string `help:"V4L2 bindings logging level" default:"info" toml:"logging.modules.linuxav" env:"LOGGING_LINUXAV"`
	LoggingDevices string `help:"Devices logging level" default:"info" toml:"logging.modules.devices" env:"LOGGING_DEVICES"`
	LoggingMetrics string `help:"Metrics logging level" default:"info" toml:"logging.modules.metrics" env:"LOGGING_METRICS"`
	LoggingConfig  string `help:"Config watcher logging level" default:"info" toml:"logging.modules.config" env:"LOGGING_CONFIG"`
	LoggingSystemd string `help:"Service notification logging level" default:"info" toml:"logging.modules.systemd" env:"LOGGING_SYSTEMD"`
}

func (o *Options) loggingConfig() logging.Config {
	return logging.Config{
		Level:  o.LoggingLevel,
		Format: o.LoggingFormat,
		Modules: map[string]string{
			"capture": o.LoggingCapture,
			"linuxav": o.LoggingLinuxav,
			"devices": o.LoggingDevices,
			"metrics": o.LoggingMetrics,
			"config":  o.LoggingConfig,
			"systemd": o.LoggingSystemd,
		},
	}
}

func (o *Options) captureConfig() (capture.Config, error) {
	memory, err := v4l2.ParseMemoryType(o.Memory)
	if err != nil {
		return capture.Config{}, err
	}
	timeout, err := time.ParseDuration(o.FrameTimeout)
	if err != nil {
		return capture.Config{}, err
	}
	cfg := capture.Config{
		Device:       o.Device,
		Buffers:      o.Buffers,
		MinBuffers:   o.MinBuffers,
		Limit:        o.Limit,
		Memory:       memory,
		Frames:       o.Frames,
		FrameTimeout: timeout,
		Wait:         o.Wait,
	}
	return cfg, cfg.Validate()
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		// Initialize logging system
		logging.Initialize(opts.loggingConfig())
		logger := logging.GetLogger("main")

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})

		hooks.OnStart(func() {
			defer close(done)
			defer cancel()

			captureCfg, err := opts.captureConfig()
			if err != nil {
				logger.Error("Invalid capture options", "error", err)
				os.Exit(1)
			}

			watcher := config.NewWatcher(opts.Config, func(path string) (logging.Config, error) {
				return config.LoadLoggingConfig(path), nil
			}, logging.GetLogger("config"))
			watcher.OnReload(func(cfg logging.Config) {
				for module, level := range cfg.Modules {
					if setErr := logging.SetLevel(module, level); setErr != nil {
						logger.Warn("Ignoring log level", "module", module, "level", level, "error", setErr)
					}
				}
			})
			if watchErr := watcher.Start(ctx); watchErr != nil {
				logger.Debug("Config file not watched", "path", opts.Config, "error", watchErr)
			}

			if opts.MetricsAddr != "" {
				srv, listenErr := metrics.Listen(opts.MetricsAddr, logging.GetLogger("metrics"))
				if listenErr != nil {
					logger.Error("Failed to start metrics server", "addr", opts.MetricsAddr, "error", listenErr)
					os.Exit(1)
				}
				go func() {
					if serveErr := srv.Serve(ctx); serveErr != nil {
						logger.Error("Metrics server failed", "error", serveErr)
					}
				}()
			}

			bus := events.New()
			notifier := systemd.NewNotifier(bus, logging.GetLogger("systemd"))
			defer notifier.Close()
			if !opts.Quiet {
				interval, parseErr := time.ParseDuration(opts.ReportInterval)
				if parseErr != nil {
					interval = time.Second
				}
				reporter := cmd.NewReporter(bus, os.Stdout, interval)
				defer reporter.Close()
			}

			logger.Info("Starting capture", "version", version.String(), "device", captureCfg.Device,
				"buffers", captureCfg.Buffers, "memory", captureCfg.Memory.String())
			stats, runErr := capture.NewRunner(captureCfg, bus).Run(ctx)
			cmd.PrintStats(os.Stdout, stats)
			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				logger.Error("Capture failed", "error", runErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Stopping capture")
			cancel()
			select {
			case <-done:
			case <-time.After(5 * time.Second):
				logger.Warn("Capture did not stop in time")
			}
		})
	})

	cli.Root().Use = "vidbuf"
	cli.Root().Short = "Drive V4L2 buffer pools from user space"
	cli.Root().Version = version.String()

	cli.Root().AddCommand(cmd.CreateProbeCmd())
	cli.Root().AddCommand(cmd.CreateListCmd())
	cli.Root().AddCommand(cmd.CreateVersionCmd())

	// Run the CLI
	cli.Run()
}
