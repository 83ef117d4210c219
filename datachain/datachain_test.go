package datachain_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conservify/phylum/buffers"
	"github.com/conservify/phylum/chain"
	"github.com/conservify/phylum/datachain"
	"github.com/conservify/phylum/sectormap"
)

func newDataChain(t *testing.T, sectorSize int) *datachain.DataChain {
	t.Helper()
	sm := sectormap.NewMemMap(sectorSize, 32)
	wb := buffers.New(sectorSize, 4)
	alloc, err := chain.NewAllocator(sm)
	require.NoError(t, err)
	dc := datachain.New(sm, wb, alloc, sectormap.SectorID(0), sectormap.SectorID(0))
	require.NoError(t, dc.Format())
	return dc
}

func TestWriteThenReadRoundTripsWithinOneSector(t *testing.T) {
	dc := newDataChain(t, 256)
	defer dc.Close()

	payload := []byte("Hello, world! How are you!")
	n, err := dc.Write(payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	total, err := dc.TotalBytes()
	require.NoError(t, err)
	require.Equal(t, uint64(len(payload)), total)

	require.NoError(t, dc.SeekToStart())
	dst := make([]byte, len(payload))
	got, err := dc.Read(dst)
	require.NoError(t, err)
	require.Equal(t, len(payload), got)
	require.Equal(t, payload, dst)
}

func TestWriteAcrossMultipleSectorsGrowsTail(t *testing.T) {
	dc := newDataChain(t, 32)
	defer dc.Close()

	payload := make([]byte, 200)
	for i := range payload {
		payload[i] = byte(i)
	}
	n, err := dc.Write(payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.NotEqual(t, dc.Head(), dc.Tail())

	total, err := dc.TotalBytes()
	require.NoError(t, err)
	require.Equal(t, uint64(len(payload)), total)

	require.NoError(t, dc.SeekToStart())
	dst := make([]byte, len(payload))
	got, err := dc.Read(dst)
	require.NoError(t, err)
	require.Equal(t, len(payload), got)
	require.Equal(t, payload, dst)
}

func TestAppendableResumeContinuesAtTail(t *testing.T) {
	sm := sectormap.NewMemMap(64, 32)
	wb := buffers.New(64, 4)
	alloc, err := chain.NewAllocator(sm)
	require.NoError(t, err)

	dc := datachain.New(sm, wb, alloc, sectormap.SectorID(0), sectormap.SectorID(0))
	require.NoError(t, dc.Format())
	_, err = dc.Write([]byte("first-chunk"))
	require.NoError(t, err)
	require.NoError(t, dc.Close())

	dc2 := datachain.New(sm, wb, alloc, sectormap.SectorID(0), sectormap.SectorID(0))
	require.NoError(t, dc2.Mount())
	require.NoError(t, dc2.Resume())
	_, err = dc2.Write([]byte("-second-chunk"))
	require.NoError(t, err)

	total, err := dc2.TotalBytes()
	require.NoError(t, err)
	require.Equal(t, uint64(len("first-chunk-second-chunk")), total)

	require.NoError(t, dc2.SeekToStart())
	dst := make([]byte, len("first-chunk-second-chunk"))
	got, err := dc2.Read(dst)
	require.NoError(t, err)
	require.Equal(t, len(dst), got)
	require.Equal(t, "first-chunk-second-chunk", string(dst))
	require.NoError(t, dc2.Close())
}

func TestSeekIsNoOp(t *testing.T) {
	dc := newDataChain(t, 64)
	defer dc.Close()
	off, err := dc.Seek(17)
	require.NoError(t, err)
	require.Equal(t, int64(0), off)
}
