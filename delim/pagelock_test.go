package delim_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conservify/phylum/buffers"
	"github.com/conservify/phylum/delim"
	"github.com/conservify/phylum/records"
	"github.com/conservify/phylum/sectormap"
)

func TestPageLockFlushPersists(t *testing.T) {
	sm := sectormap.NewMemMap(128, 0)
	wb := buffers.New(128, 2)

	pl, err := delim.Overwrite(sm, wb, sectormap.SectorID(0))
	require.NoError(t, err)
	_, err = pl.Buffer().AppendRecord(records.FileEntry{FileID: 1, Name: "a"})
	require.NoError(t, err)
	pl.Dirty()
	require.NoError(t, pl.Flush())
	require.NoError(t, pl.Release())

	pl2, err := delim.Reading(sm, wb, sectormap.SectorID(0))
	require.NoError(t, err)
	ptr, ok := pl2.Buffer().First()
	require.True(t, ok)
	fe, err := records.DecodeFileEntry(pl2.Buffer().RawBody(ptr))
	require.NoError(t, err)
	require.Equal(t, uint32(1), fe.FileID)
	require.NoError(t, pl2.Release())
}

func TestReplaceFlushesThenLoadsNewSector(t *testing.T) {
	sm := sectormap.NewMemMap(128, 0)
	wb := buffers.New(128, 2)

	pl, err := delim.Overwrite(sm, wb, sectormap.SectorID(0))
	require.NoError(t, err)
	_, err = pl.Buffer().AppendRecord(records.FileEntry{FileID: 7, Name: "x"})
	require.NoError(t, err)
	pl.Dirty()

	require.NoError(t, pl.ReplaceOverwrite(sectormap.SectorID(1)))
	_, err = pl.Buffer().AppendRecord(records.FileEntry{FileID: 8, Name: "y"})
	require.NoError(t, err)
	pl.Dirty()
	require.NoError(t, pl.Flush())
	require.NoError(t, pl.Release())

	// Sector 0 was flushed by Replace before moving on.
	pl0, err := delim.Reading(sm, wb, sectormap.SectorID(0))
	require.NoError(t, err)
	ptr, ok := pl0.Buffer().First()
	require.True(t, ok)
	fe, err := records.DecodeFileEntry(pl0.Buffer().RawBody(ptr))
	require.NoError(t, err)
	require.Equal(t, uint32(7), fe.FileID)
	require.NoError(t, pl0.Release())
}

func TestReleaseDirtyWithoutFlushReturnsLogicError(t *testing.T) {
	sm := sectormap.NewMemMap(64, 0)
	wb := buffers.New(64, 1)
	pl, err := delim.Overwrite(sm, wb, sectormap.SectorID(0))
	require.NoError(t, err)
	pl.Dirty()
	err = pl.Release()
	require.Error(t, err)
}
