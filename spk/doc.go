// Package spk defines the speech driver core shared by driver threads, backends
// and the main loop.
//
// It contains the Synthesizer backend contract and its optional capabilities,
// the Command and Notification messages exchanged with a driver thread (each
// backed by a single payload.Block), the driver thread lifecycle states, a
// small goroutine TaskManager, driver Parameters and the sentinel errors of
// the module.
//
// Commands flow from callers to the driver thread and are answered with an
// integer. Notifications flow from the backend to the main loop, where
// DispatchNotification hands them to a NotificationHandler and releases them.
package spk
