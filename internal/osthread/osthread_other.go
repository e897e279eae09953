//go:build !linux

package osthread

func currentID() int {
	return 0
}
