package spkthread

import (
	"context"

	"github.com/arloliu/go-spk/spk"
)

// driverNotifier is the spk.Notifier handed to the backend.
type driverNotifier struct {
	dt *DriverThread
}

var _ spk.Notifier = (*driverNotifier)(nil)

func (n *driverNotifier) SpeechLocation(index int) bool {
	ntf, err := spk.NewSpeechLocationNotification(index)
	if err != nil {
		n.dt.metrics.incNotificationDropCount()
		n.dt.logger.Error("failed to create speech location notification", "index", index, "error", err)

		return false
	}

	return n.dt.postNotification(ntf)
}

func (n *driverNotifier) SpeechFinished() bool {
	ntf, err := spk.NewSpeechFinishedNotification()
	if err != nil {
		n.dt.metrics.incNotificationDropCount()
		n.dt.logger.Error("failed to create speech finished notification", "error", err)

		return false
	}

	return n.dt.postNotification(ntf)
}

// postNotification queues ntf for the main loop without blocking. A
// notification that cannot be queued is released and counted as dropped.
func (dt *DriverThread) postNotification(ntf *spk.Notification) bool {
	dt.outboxMu.RLock()
	defer dt.outboxMu.RUnlock()

	if dt.outboxClosed {
		ntf.Release()
		dt.metrics.incNotificationDropCount()

		return false
	}

	select {
	case dt.outbox <- ntf:
		dt.metrics.incNotificationSendCount()
		return true
	default:
		dt.logger.Warn("notification queue full, dropping notification", "kind", ntf.Kind())
		ntf.Release()
		dt.metrics.incNotificationDropCount()

		return false
	}
}

// closeOutbox closes the outbox. Unless a ServeNotifications loop is still
// draining it, notifications left in it are released here.
func (dt *DriverThread) closeOutbox() {
	dt.outboxMu.Lock()
	if dt.outboxClosed {
		dt.outboxMu.Unlock()
		return
	}
	dt.outboxClosed = true
	close(dt.outbox)
	dt.outboxMu.Unlock()

	if dt.serving.Load() == 0 {
		dt.releaseOutbox()
	}
}

// releaseOutbox releases what is left in a closed outbox.
func (dt *DriverThread) releaseOutbox() {
	for ntf := range dt.outbox {
		ntf.Release()
		dt.metrics.incNotificationDropCount()
	}
}

func (dt *DriverThread) isOutboxClosed() bool {
	dt.outboxMu.RLock()
	defer dt.outboxMu.RUnlock()

	return dt.outboxClosed
}

// Notifications returns the outbox of speech progress notifications.
//
// The receiver owns every notification it takes and must release it, usually
// through spk.DispatchNotification. The channel is closed once Stop has
// joined the worker; unless ServeNotifications is running, Stop then
// releases whatever is still queued.
func (dt *DriverThread) Notifications() <-chan *spk.Notification {
	return dt.outbox
}

// ServeNotifications dispatches notifications to h until ctx is done or the
// outbox is closed and drained.
//
// Notifications it leaves behind are released, by ServeNotifications itself
// if the outbox is already closed, otherwise by Stop.
func (dt *DriverThread) ServeNotifications(ctx context.Context, h spk.NotificationHandler) {
	dt.serving.Add(1)
	defer func() {
		if dt.serving.Add(-1) == 0 && dt.isOutboxClosed() {
			dt.releaseOutbox()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case ntf, ok := <-dt.outbox:
			if !ok {
				return
			}

			spk.DispatchNotification(ntf, h, dt.logger)
		}
	}
}
