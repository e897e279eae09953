package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "spkd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoad_File(t *testing.T) {
	require := require.New(t)

	path := writeConfig(t, `
log_level: debug
driver:
  name: exec
  command: "espeak-ng --stdin -a {volume}0"
  parameters: "voice=en"
speech:
  volume: 15
  punctuation: all
thread:
  response_timeout_ms: 2500
metrics:
  bind: "127.0.0.1:9464"
`)

	cfg, err := Load(path)
	require.NoError(err)
	require.Equal("debug", cfg.LogLevel)
	require.Equal(DriverExec, cfg.Driver.Name)
	require.Equal("espeak-ng --stdin -a {volume}0", cfg.Driver.Command)
	require.Equal(15, cfg.Speech.Volume)
	require.Equal(10, cfg.Speech.Rate) // default kept
	require.Equal("all", cfg.Speech.Punctuation)
	require.Equal(2500, cfg.Thread.ResponseTimeoutMS)
	require.Equal(5000, cfg.Thread.StopTimeoutMS)
	require.Equal("127.0.0.1:9464", cfg.Metrics.Bind)

	opts := threadOptions(cfg, nil)
	require.Len(opts, 6)
}

func TestLoad_EnvOverrides(t *testing.T) {
	require := require.New(t)

	t.Setenv("SPKD_DRIVER_NAME", "exec")
	t.Setenv("SPKD_DRIVER_COMMAND", "say")
	t.Setenv("SPKD_SPEECH_RATE", "18")
	t.Setenv("SPKD_SPEECH_PITCH", "not-a-number")

	cfg, err := Load("")
	require.NoError(err)
	require.Equal(DriverExec, cfg.Driver.Name)
	require.Equal("say", cfg.Driver.Command)
	require.Equal(18, cfg.Speech.Rate)
	require.Equal(10, cfg.Speech.Pitch)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{"bad yaml", "driver: [", "failed to parse config file"},
		{"unknown driver", "driver:\n  name: festival\n", "driver.name"},
		{"exec without command", "driver:\n  name: exec\n  command: \"\"\n", "driver.command"},
		{"volume range", "speech:\n  volume: 21\n", "speech.volume"},
		{"punctuation", "speech:\n  punctuation: most\n", "speech.punctuation"},
		{"log level", "log_level: loud\n", "log_level"},
		{"timeout", "thread:\n  stop_timeout_ms: 0\n", "thread.stop_timeout_ms"},
		{"parameters", "driver:\n  parameters: \"novalue\"\n", "driver.parameters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.errMsg)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "config file not found")
}

func TestLoad_ExecCommandFromParameters(t *testing.T) {
	path := writeConfig(t, "driver:\n  name: exec\n  command: \"\"\n  parameters: \"command=say\"\n")
	_, err := Load(path)
	require.NoError(t, err)
}
