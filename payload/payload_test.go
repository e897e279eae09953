package payload

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPack_TextAndAttributes(t *testing.T) {
	require := require.New(t)

	text := []byte("hello world")
	attrs := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}

	b, err := Pack(Datum{Data: text, Terminated: true}, Datum{Data: attrs})
	require.NoError(err)
	defer b.Release()

	require.GreaterOrEqual(b.Size(), HeaderSize+len(text)+1+len(attrs))
	require.Equal(2, b.NumViews())

	tv := b.View(0)
	av := b.View(1)
	require.True(tv.Present())
	require.True(av.Present())
	require.True(b.Contains(tv))
	require.True(b.Contains(av))
	require.Equal(HeaderSize, tv.Offset())
	require.Equal(HeaderSize+len(text)+1, av.Offset())

	require.Equal(text, b.Bytes(tv))
	require.Equal(attrs, b.Bytes(av))
	require.Equal(byte(0), b.buf[tv.Offset()+tv.Len()], "text must be zero terminated")
}

func TestPack_DoesNotAliasCaller(t *testing.T) {
	require := require.New(t)

	text := []byte("abc")
	b, err := Pack(Datum{Data: text})
	require.NoError(err)
	defer b.Release()

	text[0] = 'x'
	require.Equal([]byte("abc"), b.Bytes(b.View(0)))

	// the returned slice is capped so appends cannot spill into the next datum
	got := b.Bytes(b.View(0))
	require.Equal(len(got), cap(got))
}

func TestPack_AbsentDatumIsSkipped(t *testing.T) {
	require := require.New(t)

	b, err := Pack(Datum{Data: nil}, Datum{Data: []byte("xy")}, Datum{Data: []byte{}})
	require.NoError(err)
	defer b.Release()

	require.Equal(HeaderSize+2, b.Size())

	absent := b.View(0)
	require.False(absent.Present())
	require.False(b.Contains(absent))
	require.Nil(b.Bytes(absent))

	require.Equal(HeaderSize, b.View(1).Offset())

	empty := b.View(2)
	require.True(empty.Present())
	require.Equal(0, empty.Len())
	require.NotNil(b.Bytes(empty))

	require.False(b.View(7).Present())
}

func TestPack_HeaderIsZeroed(t *testing.T) {
	require := require.New(t)

	// dirty a pooled buffer of the same size class first
	dirty, err := Pack(Datum{Data: make([]byte, 20)})
	require.NoError(err)
	for i := range dirty.Header() {
		dirty.PutUint8(i, 0xff)
	}
	require.True(dirty.Release())

	b, err := Pack(Datum{Data: make([]byte, 20)})
	require.NoError(err)
	defer b.Release()

	require.Equal(make([]byte, HeaderSize), b.Header())
}

func TestPack_HeaderAccessors(t *testing.T) {
	require := require.New(t)

	b, err := Pack()
	require.NoError(err)
	defer b.Release()

	require.Equal(HeaderSize, b.Size())

	b.PutUint8(0, 7)
	b.PutUint32(4, 0xdeadbeef)
	b.PutInt32(8, -42)

	require.Equal(uint8(7), b.Uint8At(0))
	require.Equal(uint32(0xdeadbeef), b.Uint32At(4))
	require.Equal(int32(-42), b.Int32At(8))
}

func TestPacker_SizeLimit(t *testing.T) {
	p := &Packer{MaxSize: HeaderSize + 8}

	b, err := p.Pack(Datum{Data: make([]byte, 8)})
	require.NoError(t, err)
	b.Release()

	_, err = p.Pack(Datum{Data: make([]byte, 8), Terminated: true})
	require.ErrorIs(t, err, ErrTooLarge)

	_, err = p.Pack(Datum{Data: make([]byte, 4)}, Datum{Data: make([]byte, 5)})
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestBlock_ReleaseOnce(t *testing.T) {
	require := require.New(t)

	b, err := Pack(Datum{Data: []byte("data")})
	require.NoError(err)

	v := b.View(0)
	require.False(b.Released())
	require.True(b.Release())
	require.True(b.Released())
	require.False(b.Release())

	require.Nil(b.Bytes(v))
	require.Nil(b.Header())
}
