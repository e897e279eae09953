//go:build linux

package osthread

import "golang.org/x/sys/unix"

func currentID() int {
	return unix.Gettid()
}
