package delim_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conservify/phylum/delim"
	"github.com/conservify/phylum/records"
)

func TestAppendRoundTrip(t *testing.T) {
	buf := make([]byte, 256)
	db := delim.New(buf)

	entries := []records.FileEntry{
		{FileID: 1, Name: "a.txt"},
		{FileID: 2, Name: "b.txt"},
		{FileID: 3, Name: "c.txt"},
	}
	for _, e := range entries {
		_, err := db.AppendRecord(e)
		require.NoError(t, err)
	}
	require.NoError(t, db.Terminate())

	var got []records.FileEntry
	for ptr, ok := db.First(); ok; ptr, ok = db.Next(ptr) {
		fe, err := records.DecodeFileEntry(db.RawBody(ptr))
		require.NoError(t, err)
		got = append(got, fe)
	}
	require.Equal(t, entries, got)
}

func TestRoomForRejectsOversizeRecord(t *testing.T) {
	buf := make([]byte, 16)
	db := delim.New(buf)
	big := records.FileAttribute{FileID: 1, Type: 1, Payload: make([]byte, 64)}
	_, err := db.AppendRecord(big)
	require.Error(t, err)
}

func TestTerminatorIdempotence(t *testing.T) {
	buf := make([]byte, 128)
	db := delim.New(buf)
	_, err := db.AppendRecord(records.FileEntry{FileID: 1, Name: "x"})
	require.NoError(t, err)
	posAfterOne := db.Position()
	require.NoError(t, db.Terminate())

	// Tail bytes beyond the terminator are irrelevant to iteration.
	for i := posAfterOne + 1; i < len(buf); i++ {
		buf[i] = 0xAB
	}
	all := db.All()
	require.Len(t, all, 1)
}

func TestConstrainBoundsRawReads(t *testing.T) {
	buf := make([]byte, 32)
	db := delim.New(buf)
	db.SeekTo(4)
	db.Constrain(8)
	dst := make([]byte, 100)
	n := db.ReadBytes(dst)
	require.Equal(t, 8, n)
}

func TestOversizeAppendLeavesBufferEmpty(t *testing.T) {
	buf := make([]byte, 8)
	db := delim.New(buf)
	_, err := db.AppendRecord(records.FileEntry{FileID: 1, Name: "nofit"})
	require.Error(t, err) // FileEntry doesn't fit in 8 bytes at all
	require.Empty(t, db.All())
}
