// Package osthread reports the identity of the operating system thread that
// runs the calling goroutine. It is meaningful only while the goroutine is
// locked to its thread with runtime.LockOSThread.
package osthread

// ID returns the kernel thread id of the calling thread, or 0 when the
// platform does not expose one.
func ID() int {
	return currentID()
}
