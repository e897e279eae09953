package main

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-spk/logger"
	"github.com/arloliu/go-spk/spkdriver/mocksynth"
	"github.com/arloliu/go-spk/spkthread"
)

func TestRegisterMetrics(t *testing.T) {
	require := require.New(t)

	l := logger.NewPermissiveMockLogger()
	dt, err := spkthread.Start(context.Background(), mocksynth.New(mocksynth.WithLogger(l)), nil,
		spkthread.WithLogger(l),
		spkthread.WithDriverName("mock"),
		spkthread.WithResponseTimeout(time.Second),
	)
	require.NoError(err)
	defer func() { _ = dt.Stop(context.Background()) }()

	reg := prometheus.NewRegistry()
	require.NoError(registerMetrics(reg, dt))
	require.Error(registerMetrics(reg, dt), "duplicate registration must fail")

	require.True(dt.SetVolume(context.Background(), 3))
	require.True(dt.SetRate(context.Background(), 4))

	families, err := reg.Gather()
	require.NoError(err)

	values := map[string]float64{}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			require.Equal("mock", metric.GetLabel()[0].GetValue())
			switch {
			case metric.GetCounter() != nil:
				values[mf.GetName()] = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				values[mf.GetName()] = metric.GetGauge().GetValue()
			}
		}
	}

	require.Len(values, 9)
	require.Equal(float64(2), values["spkd_commands_sent_total"])
	require.Equal(float64(0), values["spkd_commands_inflight"])
	require.Equal(float64(2), values["spkd_driver_thread_state"]) // ready
}
