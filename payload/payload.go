// Package payload packs a fixed-size message header and any number of
// variable-length data pieces into one contiguous, independently releasable
// buffer.
//
// A packed Block never aliases caller memory: every Datum is copied into the
// block's trailing region and is afterwards addressed through a View, an
// (offset, length) pair relative to the start of the block. Commands and
// notifications exchanged with a speech driver thread are built on Blocks,
// so a message can cross goroutines without the sender keeping its buffers
// alive.
//
// Layout:
//
//	+-----------------------+--------+--------+-----+
//	| header (HeaderSize)   | datum0 | datum1 | ... |
//	+-----------------------+--------+--------+-----+
//
// The header is zeroed on Pack and is written and read with the typed
// accessors (PutUint8, Uint32At, ...).
package payload

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/arloliu/go-spk/internal/pool"
)

const (
	// HeaderSize is the size of the fixed header at the start of every block.
	HeaderSize = 16

	// DefaultMaxSize is the largest block Pack will build.
	DefaultMaxSize = 1 << 20
)

var (
	// ErrTooLarge indicates that the block would exceed the packer's size limit.
	// It is the packer's allocation failure and is never retried.
	ErrTooLarge = errors.New("payload: block exceeds size limit")

	// ErrReleased indicates that a block was used after Release.
	ErrReleased = errors.New("payload: block already released")
)

// Datum describes one piece of trailing data.
//
// A nil Data slice is an absent datum: it occupies no space and its View
// reports Present() == false. An empty, non-nil slice is present with length 0.
type Datum struct {
	Data []byte
	// Terminated appends a zero byte after Data, which is counted in the
	// packed size but not in the View length.
	Terminated bool
}

// Absent reports whether the datum is skipped by the packer.
func (d Datum) Absent() bool { return d.Data == nil }

func (d Datum) size() int {
	if d.Absent() {
		return 0
	}
	if d.Terminated {
		return len(d.Data) + 1
	}

	return len(d.Data)
}

// View locates a packed datum inside its Block.
type View struct {
	offset  int
	length  int
	size    int
	present bool
}

// Offset returns the position of the datum relative to the start of the block.
func (v View) Offset() int { return v.offset }

// Len returns the length of the data, excluding any terminator.
func (v View) Len() int { return v.length }

// Present reports whether the datum was present when packed.
func (v View) Present() bool { return v.present }

// Packer builds Blocks no larger than MaxSize bytes.
type Packer struct {
	// MaxSize bounds HeaderSize plus all trailing data. Zero means DefaultMaxSize.
	MaxSize int
}

var defaultPacker = &Packer{MaxSize: DefaultMaxSize}

// Pack packs data with the default size limit.
func Pack(data ...Datum) (*Block, error) {
	return defaultPacker.Pack(data...)
}

// Pack computes the trailing size of data, obtains one buffer sized for the
// header plus trailing data, zeroes the header and copies every present datum
// in order, recording its View.
func (p *Packer) Pack(data ...Datum) (*Block, error) {
	limit := p.MaxSize
	if limit <= 0 {
		limit = DefaultMaxSize
	}

	size := HeaderSize
	for _, d := range data {
		size += d.size()
		if size > limit {
			return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
		}
	}

	b := &Block{
		buf:   pool.GetBuffer(size),
		views: make([]View, len(data)),
	}
	clear(b.buf[:HeaderSize])

	offset := HeaderSize
	for i, d := range data {
		if d.Absent() {
			continue
		}

		n := copy(b.buf[offset:], d.Data)
		if d.Terminated {
			b.buf[offset+n] = 0
		}

		b.views[i] = View{offset: offset, length: n, size: d.size(), present: true}
		offset += d.size()
	}

	return b, nil
}

// Block is a packed header plus trailing data held in a single buffer.
//
// A Block is owned by exactly one goroutine at a time and must be released
// exactly once by its final owner.
type Block struct {
	buf      []byte
	views    []View
	released atomic.Bool
}

// Size returns the total packed size, header included.
func (b *Block) Size() int { return len(b.buf) }

// NumViews returns the number of data descriptors the block was packed from.
func (b *Block) NumViews() int { return len(b.views) }

// View returns the i-th view, or an absent View when i is out of range.
func (b *Block) View(i int) View {
	if i < 0 || i >= len(b.views) {
		return View{}
	}

	return b.views[i]
}

// Contains reports whether v lies entirely inside the block's trailing region.
func (b *Block) Contains(v View) bool {
	if !v.present {
		return false
	}

	return v.offset >= HeaderSize && v.offset+v.size <= len(b.buf)
}

// Bytes returns the packed data of v without its terminator.
// It returns nil for absent views and for released blocks.
//
// The returned slice aliases the block and is valid only until Release.
func (b *Block) Bytes(v View) []byte {
	if b.released.Load() || !b.Contains(v) {
		return nil
	}

	return b.buf[v.offset : v.offset+v.length : v.offset+v.length]
}

// Header returns the fixed header region, or nil for a released block.
func (b *Block) Header() []byte {
	if b.released.Load() {
		return nil
	}

	return b.buf[:HeaderSize:HeaderSize]
}

// PutUint8 stores v at header offset off.
func (b *Block) PutUint8(off int, v uint8) { b.buf[off] = v }

// Uint8At loads a byte from header offset off.
func (b *Block) Uint8At(off int) uint8 { return b.buf[off] }

// PutUint32 stores v big-endian at header offset off.
func (b *Block) PutUint32(off int, v uint32) {
	binary.BigEndian.PutUint32(b.buf[off:off+4], v)
}

// Uint32At loads a big-endian uint32 from header offset off.
func (b *Block) Uint32At(off int) uint32 {
	return binary.BigEndian.Uint32(b.buf[off : off+4])
}

// PutInt32 stores v big-endian at header offset off.
func (b *Block) PutInt32(off int, v int32) { b.PutUint32(off, uint32(v)) }

// Int32At loads a big-endian int32 from header offset off.
func (b *Block) Int32At(off int) int32 { return int32(b.Uint32At(off)) }

// Release returns the block's buffer to the pool.
//
// It reports false, and does nothing, if the block was already released.
func (b *Block) Release() bool {
	if !b.released.CompareAndSwap(false, true) {
		return false
	}

	pool.PutBuffer(b.buf)
	b.buf = nil

	return true
}

// Released reports whether Release has been called.
func (b *Block) Released() bool { return b.released.Load() }
