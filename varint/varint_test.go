package varint_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conservify/phylum/varint"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	values := []uint32{0, 1, 127, 128, 129, 16383, 16384, 1 << 20, 1<<32 - 1}
	for _, v := range values {
		buf := varint.Encode(nil, v)
		require.LessOrEqual(t, len(buf), varint.MaxLen)
		require.Equal(t, varint.Len(v), len(buf))

		got, n, ok := varint.Decode(buf)
		require.True(t, ok)
		require.Equal(t, len(buf), n)
		require.Equal(t, v, got)
	}
}

func TestDecodeTruncated(t *testing.T) {
	buf := varint.Encode(nil, 1<<20)
	_, _, ok := varint.Decode(buf[:len(buf)-1])
	require.False(t, ok)
}

func TestDecodeEmpty(t *testing.T) {
	_, _, ok := varint.Decode(nil)
	require.False(t, ok)
}
