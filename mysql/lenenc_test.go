package mysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLengthEncodedIntRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 250, 251, 252, 65535, 65536, 1<<24 - 1, 1 << 24, 1<<64 - 1}
	for _, n := range cases {
		buf := PutLengthEncodedInt(nil, n)
		assert.Equal(t, LengthEncodedIntSize(n), len(buf))

		got, isNull, used := ReadLengthEncodedInt(buf)
		require.False(t, isNull)
		assert.Equal(t, len(buf), used)
		assert.Equal(t, n, got)
	}
}

func TestReadLengthEncodedIntNullSentinel(t *testing.T) {
	v, isNull, n := ReadLengthEncodedInt([]byte{LenEncNullByte})
	assert.True(t, isNull)
	assert.Equal(t, 1, n)
	assert.Equal(t, uint64(0), v)
}

func TestReadLengthEncodedIntTruncated(t *testing.T) {
	_, _, n := ReadLengthEncodedInt([]byte{LenEnc3ByteByte, 0x01})
	assert.Equal(t, 0, n)
}

func TestLengthEncodedBytesRoundTrip(t *testing.T) {
	for _, s := range [][]byte{{}, []byte("a"), []byte("hello, world"), make([]byte, 400)} {
		buf := PutLengthEncodedBytes(nil, s)
		got, isNull, n, ok := ReadLengthEncodedBytes(buf)
		require.True(t, ok)
		assert.False(t, isNull)
		assert.Equal(t, len(buf), n)
		assert.Equal(t, s, got)
	}
}

func TestLengthEncodedBytesTruncated(t *testing.T) {
	_, _, _, ok := ReadLengthEncodedBytes([]byte{5, 'a', 'b'})
	assert.False(t, ok)
}
