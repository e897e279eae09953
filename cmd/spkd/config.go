package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arloliu/go-spk/logger"
	"github.com/arloliu/go-spk/spk"
	"github.com/arloliu/go-spk/spkthread"
)

// Supported speech drivers.
const (
	DriverMock = "mock"
	DriverExec = "exec"
)

// Config is the spkd configuration file.
type Config struct {
	LogLevel    string        `yaml:"log_level"`
	Environment string        `yaml:"environment"`
	Driver      DriverConfig  `yaml:"driver"`
	Speech      SpeechConfig  `yaml:"speech"`
	Thread      ThreadConfig  `yaml:"thread"`
	Metrics     MetricsConfig `yaml:"metrics"`
}

type DriverConfig struct {
	Name           string `yaml:"name"` // mock, exec
	Command        string `yaml:"command"`
	Parameters     string `yaml:"parameters"`
	WordIntervalMS int    `yaml:"word_interval_ms"`
}

// SpeechConfig holds the settings applied once the driver thread is ready.
type SpeechConfig struct {
	Volume      int    `yaml:"volume"`
	Rate        int    `yaml:"rate"`
	Pitch       int    `yaml:"pitch"`
	Punctuation string `yaml:"punctuation"`
}

type ThreadConfig struct {
	StartTimeoutMS        int `yaml:"start_timeout_ms"`
	StopTimeoutMS         int `yaml:"stop_timeout_ms"`
	ResponseTimeoutMS     int `yaml:"response_timeout_ms"`
	NotificationQueueSize int `yaml:"notification_queue_size"`
}

type MetricsConfig struct {
	// Bind is the listen address of the prometheus endpoint; empty disables it.
	Bind string `yaml:"bind"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel:    "info",
		Environment: "production",
		Driver: DriverConfig{
			Name:           DriverMock,
			Command:        "espeak-ng --stdin",
			WordIntervalMS: 150,
		},
		Speech: SpeechConfig{
			Volume:      int(spk.SettingDefault),
			Rate:        int(spk.SettingDefault),
			Pitch:       int(spk.SettingDefault),
			Punctuation: spk.PunctuationSome.String(),
		},
		Thread: ThreadConfig{
			StartTimeoutMS:        int(spkthread.DefaultStartTimeout / time.Millisecond),
			StopTimeoutMS:         int(spkthread.DefaultStopTimeout / time.Millisecond),
			ResponseTimeoutMS:     int(spkthread.DefaultResponseTimeout / time.Millisecond),
			NotificationQueueSize: spkthread.DefaultNotificationQueueSize,
		},
	}
}

// Load reads the configuration file at path over the defaults, then applies
// SPKD_* environment overrides and validates the result. An empty path loads
// the defaults only.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}

			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.LogLevel, "SPKD_LOG_LEVEL")
	overrideString(&cfg.Environment, "SPKD_ENVIRONMENT")
	overrideString(&cfg.Driver.Name, "SPKD_DRIVER_NAME")
	overrideString(&cfg.Driver.Command, "SPKD_DRIVER_COMMAND")
	overrideString(&cfg.Driver.Parameters, "SPKD_DRIVER_PARAMETERS")
	overrideInt(&cfg.Driver.WordIntervalMS, "SPKD_DRIVER_WORD_INTERVAL_MS")
	overrideInt(&cfg.Speech.Volume, "SPKD_SPEECH_VOLUME")
	overrideInt(&cfg.Speech.Rate, "SPKD_SPEECH_RATE")
	overrideInt(&cfg.Speech.Pitch, "SPKD_SPEECH_PITCH")
	overrideString(&cfg.Speech.Punctuation, "SPKD_SPEECH_PUNCTUATION")
	overrideInt(&cfg.Thread.StartTimeoutMS, "SPKD_THREAD_START_TIMEOUT_MS")
	overrideInt(&cfg.Thread.StopTimeoutMS, "SPKD_THREAD_STOP_TIMEOUT_MS")
	overrideInt(&cfg.Thread.ResponseTimeoutMS, "SPKD_THREAD_RESPONSE_TIMEOUT_MS")
	overrideInt(&cfg.Thread.NotificationQueueSize, "SPKD_THREAD_NOTIFICATION_QUEUE_SIZE")
	overrideString(&cfg.Metrics.Bind, "SPKD_METRICS_BIND")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if _, err := logger.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}

	switch cfg.Driver.Name {
	case DriverMock:
		if cfg.Driver.WordIntervalMS < 0 {
			return errors.New("driver.word_interval_ms must not be negative")
		}
	case DriverExec:
		params, err := spk.ParseParameters(cfg.Driver.Parameters)
		if err != nil {
			return fmt.Errorf("driver.parameters: %w", err)
		}
		if strings.TrimSpace(params.Lookup("command", cfg.Driver.Command)) == "" {
			return errors.New("driver.command must not be empty for the exec driver")
		}
	default:
		return fmt.Errorf("driver.name must be %q or %q, got %q", DriverMock, DriverExec, cfg.Driver.Name)
	}

	if _, err := spk.ParseParameters(cfg.Driver.Parameters); err != nil {
		return fmt.Errorf("driver.parameters: %w", err)
	}

	for name, v := range map[string]int{
		"speech.volume": cfg.Speech.Volume,
		"speech.rate":   cfg.Speech.Rate,
		"speech.pitch":  cfg.Speech.Pitch,
	} {
		if v < int(spk.SettingMin) || v > int(spk.SettingMax) {
			return fmt.Errorf("%s must be between %d and %d", name, spk.SettingMin, spk.SettingMax)
		}
	}

	if _, err := spk.ParsePunctuation(cfg.Speech.Punctuation); err != nil {
		return fmt.Errorf("speech.punctuation: %w", err)
	}

	for name, v := range map[string]int{
		"thread.start_timeout_ms":    cfg.Thread.StartTimeoutMS,
		"thread.stop_timeout_ms":     cfg.Thread.StopTimeoutMS,
		"thread.response_timeout_ms": cfg.Thread.ResponseTimeoutMS,
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if cfg.Thread.NotificationQueueSize <= 0 {
		return errors.New("thread.notification_queue_size must be positive")
	}

	return nil
}

// threadOptions converts the thread section into driver thread options.
func threadOptions(cfg Config, l logger.Logger) []spkthread.Option {
	return []spkthread.Option{
		spkthread.WithDriverName(cfg.Driver.Name),
		spkthread.WithLogger(l),
		spkthread.WithStartTimeout(time.Duration(cfg.Thread.StartTimeoutMS) * time.Millisecond),
		spkthread.WithStopTimeout(time.Duration(cfg.Thread.StopTimeoutMS) * time.Millisecond),
		spkthread.WithResponseTimeout(time.Duration(cfg.Thread.ResponseTimeoutMS) * time.Millisecond),
		spkthread.WithNotificationQueueSize(cfg.Thread.NotificationQueueSize),
	}
}
