package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// syncBuffer is a bytes.Buffer safe for the console and notification writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

func TestRun_MockDriver(t *testing.T) {
	require := require.New(t)

	cfg := Default()
	cfg.LogLevel = "error"
	cfg.Driver.WordIntervalMS = 1

	in := strings.NewReader("/volume 4\n/speaking\n/where\n/quit\n")
	out := &syncBuffer{}

	require.NoError(run(context.Background(), cfg, in, out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Equal([]string{"ok", "speaking false", "track 0"}, lines)
}

func TestRootCmd_Flags(t *testing.T) {
	require := require.New(t)

	path := writeConfig(t, "driver:\n  name: exec\n  command: say\n")

	cmd := newRootCmd(strings.NewReader(""), &bytes.Buffer{})
	require.NoError(cmd.ParseFlags([]string{"--config", path, "--driver", "mock", "--metrics-bind", ":0"}))

	opts := &rootOptions{}
	opts.configPath, _ = cmd.Flags().GetString("config")
	opts.driver, _ = cmd.Flags().GetString("driver")
	opts.metricsBind, _ = cmd.Flags().GetString("metrics-bind")

	cfg, err := loadConfig(cmd, opts)
	require.NoError(err)
	require.Equal(DriverMock, cfg.Driver.Name)
	require.Equal(":0", cfg.Metrics.Bind)
	require.Equal("info", cfg.LogLevel) // flag not set, file value kept
}

func TestRootCmd_InvalidDriver(t *testing.T) {
	cmd := newRootCmd(strings.NewReader(""), &bytes.Buffer{})
	cmd.SetArgs([]string{"--driver", "festival"})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	require.ErrorContains(t, err, "driver.name")
}
