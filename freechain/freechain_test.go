package freechain_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conservify/phylum/buffers"
	"github.com/conservify/phylum/chain"
	"github.com/conservify/phylum/freechain"
	"github.com/conservify/phylum/sectormap"
)

const sectorSize = 256

func newFixture(t *testing.T) (sectormap.SectorMap, *buffers.WorkingBuffers, *chain.Allocator, *freechain.FreeSectorsChain) {
	t.Helper()
	sm := sectormap.NewMemMap(sectorSize, 0)
	wb := buffers.New(sectorSize, 8)
	alloc, err := chain.NewAllocator(sm)
	require.NoError(t, err)

	fc := freechain.New(sm, wb, alloc, 0, 0)
	require.NoError(t, fc.Format())
	return sm, wb, alloc, fc
}

func TestDequeueEmptyChain(t *testing.T) {
	_, _, _, fc := newFixture(t)
	_, ok, err := fc.Dequeue()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAddChainThenDequeue(t *testing.T) {
	sm, wb, alloc, fc := newFixture(t)

	a, err := alloc.Allocate()
	require.NoError(t, err)
	b, err := alloc.Allocate()
	require.NoError(t, err)
	c, err := alloc.Allocate()
	require.NoError(t, err)

	head, err := freechain.LinkFreedChain(sm, wb, []sectormap.SectorID{a, b, c})
	require.NoError(t, err)
	require.Equal(t, a, head)

	require.NoError(t, fc.AddChain(head))

	got := map[sectormap.SectorID]bool{}
	for i := 0; i < 3; i++ {
		sector, ok, err := fc.Dequeue()
		require.NoError(t, err)
		require.True(t, ok)
		got[sector] = true
	}
	require.Len(t, got, 3)
	require.True(t, got[a] && got[b] && got[c])

	_, ok, err := fc.Dequeue()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAddChainReusesInvalidSlot(t *testing.T) {
	sm, wb, alloc, fc := newFixture(t)

	a, err := alloc.Allocate()
	require.NoError(t, err)
	head, err := freechain.LinkFreedChain(sm, wb, []sectormap.SectorID{a})
	require.NoError(t, err)
	require.NoError(t, fc.AddChain(head))

	sector, ok, err := fc.Dequeue()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, a, sector)

	// The slot is now Invalid; a second AddChain should reuse it rather
	// than appending a fresh record.
	b, err := alloc.Allocate()
	require.NoError(t, err)
	head2, err := freechain.LinkFreedChain(sm, wb, []sectormap.SectorID{b})
	require.NoError(t, err)
	require.NoError(t, fc.AddChain(head2))

	sector2, ok, err := fc.Dequeue()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, b, sector2)
}

func TestAllocatorConsultsReclaimer(t *testing.T) {
	sm := sectormap.NewMemMap(sectorSize, 0)
	wb := buffers.New(sectorSize, 8)
	alloc, err := chain.NewAllocator(sm)
	require.NoError(t, err)

	fc := freechain.New(sm, wb, alloc, 0, 0)
	require.NoError(t, fc.Format())

	freed, err := alloc.Allocate()
	require.NoError(t, err)
	head, err := freechain.LinkFreedChain(sm, wb, []sectormap.SectorID{freed})
	require.NoError(t, err)
	require.NoError(t, fc.AddChain(head))

	alloc.WithReclaimer(fc)
	next, err := alloc.Allocate()
	require.NoError(t, err)
	require.Equal(t, freed, next)
}
