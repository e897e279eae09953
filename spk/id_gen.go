package spk

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"sync"
	"sync/atomic"
)

// commandIDGenerator hands out command IDs that are unique for the lifetime
// of the process (modulo 2^32 wrap-around).
//
// The first ID is seeded from crypto/rand so IDs from a restarted daemon are
// unlikely to collide with stale IDs still in a log.
type commandIDGenerator struct {
	id atomic.Uint32
}

func newCommandIDGenerator() *commandIDGenerator {
	inst := &commandIDGenerator{}
	var buf [4]byte
	if _, err := io.ReadFull(rand.Reader, buf[:]); err != nil {
		return inst
	}
	inst.id.Store(binary.LittleEndian.Uint32(buf[:]))

	return inst
}

func (g *commandIDGenerator) next() uint32 {
	for {
		// zero is reserved for "no command"
		if id := g.id.Add(1); id != 0 {
			return id
		}
	}
}

var (
	genInst *commandIDGenerator
	genOnce sync.Once
)

// GenerateCommandID returns a non-zero command ID.
func GenerateCommandID() uint32 {
	genOnce.Do(func() {
		genInst = newCommandIDGenerator()
	})

	return genInst.next()
}
