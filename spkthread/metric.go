package spkthread

import (
	"sync/atomic"
)

// DriverMetrics contains atomic metrics for a driver thread.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type DriverMetrics struct {
	// CommandSendCount indicates the number of commands accepted by the inbox.
	CommandSendCount atomic.Uint64
	// CommandErrCount indicates the number of commands that failed before dispatch
	// (packing, inbox refusal, thread not ready).
	CommandErrCount atomic.Uint64
	// CommandTimeoutCount indicates the number of commands whose response timed out.
	CommandTimeoutCount atomic.Uint64
	// CommandInflightCount indicates the number of commands waiting for a response.
	CommandInflightCount atomic.Int64
	// LateResponseCount indicates the number of responses posted after their caller gave up.
	LateResponseCount atomic.Uint64

	// NotificationSendCount indicates the number of notifications queued for the main loop.
	NotificationSendCount atomic.Uint64
	// NotificationDropCount indicates the number of notifications dropped because
	// the outbox was full or packing failed.
	NotificationDropCount atomic.Uint64

	// IdleTickCount indicates the number of idle intervals the worker spent without work.
	IdleTickCount atomic.Uint64
}

func (m *DriverMetrics) incCommandSendCount() {
	m.CommandSendCount.Add(1)
}

func (m *DriverMetrics) incCommandErrCount() {
	m.CommandErrCount.Add(1)
}

func (m *DriverMetrics) incCommandTimeoutCount() {
	m.CommandTimeoutCount.Add(1)
}

func (m *DriverMetrics) incCommandInflightCount() {
	m.CommandInflightCount.Add(1)
}

func (m *DriverMetrics) decCommandInflightCount() {
	m.CommandInflightCount.Add(-1)
}

func (m *DriverMetrics) incLateResponseCount() {
	m.LateResponseCount.Add(1)
}

func (m *DriverMetrics) incNotificationSendCount() {
	m.NotificationSendCount.Add(1)
}

func (m *DriverMetrics) incNotificationDropCount() {
	m.NotificationDropCount.Add(1)
}

func (m *DriverMetrics) incIdleTickCount() {
	m.IdleTickCount.Add(1)
}
