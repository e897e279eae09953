package spkthread

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-spk/logger"
	"github.com/arloliu/go-spk/payload"
	"github.com/arloliu/go-spk/spk"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, DefaultDriverName, cfg.DriverName())
	assert.Equal(t, DefaultStartTimeout, cfg.StartTimeout())
	assert.Equal(t, DefaultStopTimeout, cfg.StopTimeout())
	assert.Equal(t, DefaultResponseTimeout, cfg.ResponseTimeout())
	assert.Equal(t, DefaultSendTimeout, cfg.SendTimeout())
	assert.Equal(t, DefaultIdleInterval, cfg.IdleInterval())
	assert.Equal(t, DefaultNotificationQueueSize, cfg.NotificationQueueSize())
	assert.Equal(t, payload.DefaultMaxSize, cfg.MaxPayloadSize())
	assert.NotNil(t, cfg.GetLogger())
}

func TestNewConfig_WithOptions(t *testing.T) {
	l := logger.NewPermissiveMockLogger()
	cfg, err := NewConfig(
		WithDriverName("espeak"),
		WithStartTimeout(2*time.Second),
		WithStopTimeout(3*time.Second),
		WithResponseTimeout(4*time.Second),
		WithSendTimeout(500*time.Millisecond),
		WithIdleInterval(MinTimeout),
		WithNotificationQueueSize(8),
		WithMaxPayloadSize(1024),
		WithStateChangeHandler(func(_, _ spk.ThreadState) {}),
		WithLogger(l),
	)
	require.NoError(t, err)

	assert.Equal(t, "espeak", cfg.DriverName())
	assert.Equal(t, 2*time.Second, cfg.StartTimeout())
	assert.Equal(t, 3*time.Second, cfg.StopTimeout())
	assert.Equal(t, 4*time.Second, cfg.ResponseTimeout())
	assert.Equal(t, 500*time.Millisecond, cfg.SendTimeout())
	assert.Equal(t, MinTimeout, cfg.IdleInterval())
	assert.Equal(t, 8, cfg.NotificationQueueSize())
	assert.Equal(t, 1024, cfg.MaxPayloadSize())
	assert.Len(t, cfg.stateHandlers, 1)
	assert.Same(t, l, cfg.GetLogger())
}

func TestNewConfig_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"empty driver name", WithDriverName("")},
		{"start timeout too short", WithStartTimeout(time.Millisecond)},
		{"stop timeout too long", WithStopTimeout(MaxTimeout + time.Second)},
		{"zero response timeout", WithResponseTimeout(0)},
		{"negative send timeout", WithSendTimeout(-time.Second)},
		{"idle interval too short", WithIdleInterval(MinTimeout - 1)},
		{"empty notification queue", WithNotificationQueueSize(0)},
		{"huge notification queue", WithNotificationQueueSize(MaxNotificationQueueSize + 1)},
		{"payload below header", WithMaxPayloadSize(payload.HeaderSize)},
		{"nil state handler", WithStateChangeHandler(nil)},
		{"nil logger", WithLogger(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := NewConfig(tt.opt)
			require.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}

func TestNewConfig_BoundaryValues(t *testing.T) {
	cfg, err := NewConfig(
		WithStartTimeout(MinTimeout),
		WithStopTimeout(MaxTimeout),
		WithNotificationQueueSize(MinNotificationQueueSize),
		WithMaxPayloadSize(MinPayloadSize),
	)
	require.NoError(t, err)

	assert.Equal(t, MinTimeout, cfg.StartTimeout())
	assert.Equal(t, MaxTimeout, cfg.StopTimeout())
	assert.Equal(t, MinNotificationQueueSize, cfg.NotificationQueueSize())
	assert.Equal(t, MinPayloadSize, cfg.MaxPayloadSize())
}
