package spkthread

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-spk/logger"
	"github.com/arloliu/go-spk/payload"
	"github.com/arloliu/go-spk/spk"
)

// Default timeouts of a driver thread.
const (
	DefaultStartTimeout    = 15 * time.Second // backend construction handshake
	DefaultStopTimeout     = 5 * time.Second  // wait for the finished state before joining
	DefaultResponseTimeout = 5 * time.Second  // per-command response wait
	DefaultSendTimeout     = 1 * time.Second  // wait for the inbox to accept a command
	DefaultIdleInterval    = 1 * time.Second  // worker idle tick, diagnostics only

	DefaultNotificationQueueSize = 64
	DefaultDriverName            = "speech"
)

// Timeout range limits.
const (
	MinTimeout = 10 * time.Millisecond
	MaxTimeout = 5 * time.Minute

	MinNotificationQueueSize = 1
	MaxNotificationQueueSize = 65536

	MinPayloadSize = payload.HeaderSize + 1
)

// Config holds the configuration of a driver thread.
type Config struct {
	driverName string

	startTimeout    time.Duration
	stopTimeout     time.Duration
	responseTimeout time.Duration
	sendTimeout     time.Duration
	idleInterval    time.Duration

	notificationQueueSize int
	packer                *payload.Packer

	stateHandlers []spk.ThreadStateChangeHandler

	logger logger.Logger
}

// NewConfig creates a driver thread configuration.
//
// opts are functional options applied in order; see With* functions.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		driverName:            DefaultDriverName,
		startTimeout:          DefaultStartTimeout,
		stopTimeout:           DefaultStopTimeout,
		responseTimeout:       DefaultResponseTimeout,
		sendTimeout:           DefaultSendTimeout,
		idleInterval:          DefaultIdleInterval,
		notificationQueueSize: DefaultNotificationQueueSize,
		packer:                &payload.Packer{MaxSize: payload.DefaultMaxSize},
		logger:                logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// DriverName returns the name used in logs and metrics.
func (cfg *Config) DriverName() string { return cfg.driverName }

// StartTimeout returns the backend construction timeout.
func (cfg *Config) StartTimeout() time.Duration { return cfg.startTimeout }

// StopTimeout returns how long Stop waits for the finished state before joining.
func (cfg *Config) StopTimeout() time.Duration { return cfg.stopTimeout }

// ResponseTimeout returns the per-command response timeout.
func (cfg *Config) ResponseTimeout() time.Duration { return cfg.responseTimeout }

// SendTimeout returns how long a command waits for the inbox.
func (cfg *Config) SendTimeout() time.Duration { return cfg.sendTimeout }

// IdleInterval returns the worker's idle tick interval.
func (cfg *Config) IdleInterval() time.Duration { return cfg.idleInterval }

// NotificationQueueSize returns the capacity of the notification outbox.
func (cfg *Config) NotificationQueueSize() int { return cfg.notificationQueueSize }

// MaxPayloadSize returns the largest packed command or notification.
func (cfg *Config) MaxPayloadSize() int { return cfg.packer.MaxSize }

// GetLogger returns the configured logger.
func (cfg *Config) GetLogger() logger.Logger { return cfg.logger }

// Option is a functional option for configuring a Config.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

func checkTimeout(name string, d time.Duration) error {
	if d < MinTimeout || d > MaxTimeout {
		return fmt.Errorf("spkthread: %s timeout %v out of range [%v, %v]", name, d, MinTimeout, MaxTimeout)
	}

	return nil
}

// WithDriverName sets the name used in logs, e.g. "espeak".
func WithDriverName(name string) Option {
	return optFunc(func(cfg *Config) error {
		if name == "" {
			return errors.New("spkthread: driver name must not be empty")
		}
		cfg.driverName = name

		return nil
	})
}

// WithStartTimeout sets how long Start waits for backend construction.
func WithStartTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if err := checkTimeout("start", d); err != nil {
			return err
		}
		cfg.startTimeout = d

		return nil
	})
}

// WithStopTimeout sets how long Stop waits for the finished state.
func WithStopTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if err := checkTimeout("stop", d); err != nil {
			return err
		}
		cfg.stopTimeout = d

		return nil
	})
}

// WithResponseTimeout sets how long a command waits for its response.
func WithResponseTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if err := checkTimeout("response", d); err != nil {
			return err
		}
		cfg.responseTimeout = d

		return nil
	})
}

// WithSendTimeout sets how long a command waits for the inbox to accept it.
func WithSendTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if err := checkTimeout("send", d); err != nil {
			return err
		}
		cfg.sendTimeout = d

		return nil
	})
}

// WithIdleInterval sets the worker idle tick interval.
func WithIdleInterval(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if err := checkTimeout("idle", d); err != nil {
			return err
		}
		cfg.idleInterval = d

		return nil
	})
}

// WithNotificationQueueSize sets the capacity of the notification outbox.
func WithNotificationQueueSize(size int) Option {
	return optFunc(func(cfg *Config) error {
		if size < MinNotificationQueueSize || size > MaxNotificationQueueSize {
			return fmt.Errorf("spkthread: notification queue size %d out of range [%d, %d]",
				size, MinNotificationQueueSize, MaxNotificationQueueSize)
		}
		cfg.notificationQueueSize = size

		return nil
	})
}

// WithMaxPayloadSize bounds the packed size of a single command, header included.
func WithMaxPayloadSize(size int) Option {
	return optFunc(func(cfg *Config) error {
		if size < MinPayloadSize {
			return fmt.Errorf("spkthread: max payload size %d below minimum %d", size, MinPayloadSize)
		}
		cfg.packer = &payload.Packer{MaxSize: size}

		return nil
	})
}

// WithStateChangeHandler registers a handler invoked on every lifecycle transition.
// Handlers run on the driver thread and must not block.
func WithStateChangeHandler(h spk.ThreadStateChangeHandler) Option {
	return optFunc(func(cfg *Config) error {
		if h == nil {
			return errors.New("spkthread: state change handler must not be nil")
		}
		cfg.stateHandlers = append(cfg.stateHandlers, h)

		return nil
	})
}

// WithLogger sets the logger for the driver thread.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("spkthread: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
