// Command spkd runs a speech driver thread and speaks the lines typed on its
// standard input.
//
//	spkd --driver exec --config /etc/spkd.yaml
//
// See /help at the prompt for console commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/arloliu/go-spk/logger"
	"github.com/arloliu/go-spk/spk"
	"github.com/arloliu/go-spk/spkdriver/execsynth"
	"github.com/arloliu/go-spk/spkdriver/mocksynth"
	"github.com/arloliu/go-spk/spkthread"
)

const finalStopTimeout = 30 * time.Second

type rootOptions struct {
	configPath  string
	driver      string
	logLevel    string
	metricsBind string
}

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "spkd",
		Short:         "Speak text through a speech driver thread",
		SilenceUsage:  true,
		SilenceErrors: false,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}

			return run(cmd.Context(), cfg, in, out)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to the YAML configuration file")
	flags.StringVarP(&opts.driver, "driver", "d", DriverMock, "speech driver: mock or exec")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flags.StringVar(&opts.metricsBind, "metrics-bind", "", "prometheus listen address, e.g. :9464")

	return cmd
}

// loadConfig loads the configuration file and applies explicitly set flags over it.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (Config, error) {
	cfg, err := Load(opts.configPath)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("driver") {
		cfg.Driver.Name = opts.driver
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if flags.Changed("metrics-bind") {
		cfg.Metrics.Bind = opts.metricsBind
	}

	return cfg, validate(cfg)
}

func run(ctx context.Context, cfg Config, in io.Reader, out io.Writer) error {
	level, _ := logger.ParseLevel(cfg.LogLevel)
	l := logger.NewSlogWithOptions(logger.Options{
		Level:       level,
		Development: cfg.Environment == "development",
		Output:      os.Stderr,
	})
	logger.SetLogger(l)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	synth, params, err := newSynthesizer(cfg, l)
	if err != nil {
		return err
	}

	dt, err := spkthread.Start(ctx, synth, params, threadOptions(cfg, l)...)
	if err != nil {
		return fmt.Errorf("start %s driver: %w", cfg.Driver.Name, err)
	}

	con := newConsole(dt, out, l)
	applySettings(ctx, dt, cfg.Speech, l)

	taskMgr := spk.NewTaskManager(ctx, l)
	if err := taskMgr.Start("notifications", func(ctx context.Context) {
		dt.ServeNotifications(ctx, con)
	}); err != nil {
		l.Error("failed to start notification loop", "error", err)
	}

	if cfg.Metrics.Bind != "" {
		reg := prometheus.NewRegistry()
		if err := registerMetrics(reg, dt); err != nil {
			l.Error("failed to register metrics", "error", err)
		} else if err := taskMgr.Start("metrics", func(ctx context.Context) {
			serveMetrics(ctx, cfg.Metrics.Bind, reg, l)
		}); err != nil {
			l.Error("failed to start metrics server", "error", err)
		}
	}

	runErr := con.Run(ctx, in)

	stopCtx, cancel := context.WithTimeout(context.Background(), finalStopTimeout)
	defer cancel()
	stopErr := dt.Stop(stopCtx)

	taskMgr.Stop()
	taskMgr.Wait()

	return errors.Join(runErr, stopErr)
}

// newSynthesizer builds the configured backend and its driver parameters.
func newSynthesizer(cfg Config, l logger.Logger) (spk.Synthesizer, spk.Parameters, error) {
	params, err := spk.ParseParameters(cfg.Driver.Parameters)
	if err != nil {
		return nil, nil, err
	}

	switch cfg.Driver.Name {
	case DriverMock:
		return mocksynth.New(
			mocksynth.WithWordInterval(time.Duration(cfg.Driver.WordIntervalMS)*time.Millisecond),
			mocksynth.WithLogger(l),
		), params, nil

	case DriverExec:
		return execsynth.New(
			execsynth.WithCommand(cfg.Driver.Command),
			execsynth.WithLogger(l),
		), params, nil

	default:
		return nil, nil, fmt.Errorf("unknown driver %q", cfg.Driver.Name)
	}
}
