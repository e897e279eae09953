package pool

import (
	"math/bits"
	"sync"
)

const (
	minBufferShift = 6  // 64 bytes
	maxBufferShift = 16 // 64 KiB
)

// bufferPools[i] holds buffers with capacity 1<<(minBufferShift+i).
var bufferPools [maxBufferShift - minBufferShift + 1]sync.Pool

// GetBuffer returns a byte slice of length size.
//
// Sizes up to 64 KiB are served from size-class pools; larger requests are
// allocated directly and are not recycled by PutBuffer. The content of the
// returned slice is undefined.
func GetBuffer(size int) []byte {
	idx, ok := bufferClass(size)
	if !ok {
		return make([]byte, size)
	}

	if v := bufferPools[idx].Get(); v != nil {
		bp, _ := v.(*[]byte)
		return (*bp)[:size]
	}

	return make([]byte, size, 1<<(minBufferShift+idx))
}

// PutBuffer returns buf to its size-class pool. Buffers that were not obtained
// from GetBuffer, or that exceed the largest size class, are dropped.
//
// buf cannot be accessed after returning to the pool.
func PutBuffer(buf []byte) {
	c := cap(buf)
	if c == 0 || c&(c-1) != 0 {
		return
	}

	idx, ok := bufferClass(c)
	if !ok || 1<<(minBufferShift+idx) != c {
		return
	}

	buf = buf[:c]
	bufferPools[idx].Put(&buf)
}

func bufferClass(size int) (int, bool) {
	if size <= 1<<minBufferShift {
		return 0, true
	}
	if size > 1<<maxBufferShift {
		return 0, false
	}

	shift := bits.Len(uint(size - 1))

	return shift - minBufferShift, true
}
