// Package spkthread runs a speech synthesizer backend on its own OS thread.
//
// Speech backends are frequently wrappers around C libraries that are not
// thread safe and keep thread-local state. A DriverThread owns one
// spk.Synthesizer and performs every call into it from a single goroutine
// locked with runtime.LockOSThread. The rest of the program communicates with
// that goroutine through two channels:
//
//   - the command inbox: SayText, MuteSpeech, SetVolume and the other
//     operations each pack a spk.Command, queue it, and wait for the worker's
//     integer response. Failures and timeouts are logged and counted and the
//     operation returns its zero value.
//   - the notification outbox: the backend reports speech progress through
//     the spk.Notifier it receives at construction. Notifications are queued
//     without blocking and consumed by the main loop with ServeNotifications
//     or by reading Notifications directly.
//
// Lifecycle:
//
//	dt, err := spkthread.Start(ctx, synth, params,
//	    spkthread.WithDriverName("espeak"),
//	    spkthread.WithResponseTimeout(2*time.Second),
//	)
//	if err != nil {
//	    return err
//	}
//	defer dt.Stop(context.Background())
//
//	go dt.ServeNotifications(ctx, handler)
//
//	dt.SayText(ctx, []byte("hello world"), nil)
package spkthread
