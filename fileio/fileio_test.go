package fileio_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conservify/phylum/buffers"
	"github.com/conservify/phylum/chain"
	"github.com/conservify/phylum/dirchain"
	"github.com/conservify/phylum/fileio"
	"github.com/conservify/phylum/phylumcfg"
	"github.com/conservify/phylum/sectormap"
)

const sectorSize = 256

func newFixture(t *testing.T) (sectormap.SectorMap, *buffers.WorkingBuffers, *chain.Allocator, *dirchain.DirectoryChain) {
	t.Helper()
	sm := sectormap.NewMemMap(sectorSize, 0)
	wb := buffers.New(sectorSize, 8)
	alloc, err := chain.NewAllocator(sm)
	require.NoError(t, err)

	dir := dirchain.New(sm, wb, alloc, 0, 0)
	require.NoError(t, dir.Format())
	return sm, wb, alloc, dir
}

// TestInlineWritesStayInline covers spec.md §8 scenario E4: three
// 26-byte writes flushed individually under S/2 never promote to a data
// chain, each producing its own inline FileData record.
func TestInlineWritesStayInline(t *testing.T) {
	sm, wb, alloc, dir := newFixture(t)

	id, err := dir.Touch("data.txt")
	require.NoError(t, err)

	fa := fileio.New(dir, sm, wb, alloc, id, sectorSize, nil)
	line := "Hello, world! How are you!"
	require.Equal(t, 26, len(line))

	for i := 0; i < 3; i++ {
		_, err := fa.Write([]byte(line))
		require.NoError(t, err)
		require.NoError(t, fa.Flush())
	}
	require.NoError(t, fa.Close())

	n, err := dir.Find("data.txt", nil)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	_, size, chainHead, _, ok := dir.Open()
	require.True(t, ok)
	require.Equal(t, sectormap.Invalid, chainHead)
	require.Equal(t, uint64(26*3), size)
}

// TestPromotionToDataChain covers spec.md §8 scenario E5: once a flush
// pushes scratch usage at or above S/2, the file promotes to a data
// chain that also absorbs every prior inline payload.
func TestPromotionToDataChain(t *testing.T) {
	sm, wb, alloc, dir := newFixture(t)

	id, err := dir.Touch("data.txt")
	require.NoError(t, err)

	fa := fileio.New(dir, sm, wb, alloc, id, sectorSize, nil)
	line := "Hello, world! How are you!"
	for i := 0; i < 3; i++ {
		_, err := fa.Write([]byte(line))
		require.NoError(t, err)
		require.NoError(t, fa.Flush())
	}

	big := strings.Repeat("x", sectorSize/2+8)
	_, err = fa.Write([]byte(big))
	require.NoError(t, err)
	require.NoError(t, fa.Flush())
	require.NoError(t, fa.Close())

	_, err = dir.Find("data.txt", nil)
	require.NoError(t, err)
	_, _, chainHead, chainTail, ok := dir.Open()
	require.True(t, ok)
	require.NotEqual(t, sectormap.Invalid, chainHead)

	dc := datachainTotal(t, sm, wb, alloc, chainHead, chainTail)
	require.Equal(t, uint64(len(line)*3+len(big)), dc)
}

func datachainTotal(t *testing.T, sm sectormap.SectorMap, wb *buffers.WorkingBuffers, alloc *chain.Allocator, head, tail sectormap.SectorID) uint64 {
	t.Helper()
	r, err := fileio.NewReader(nil, sm, wb, alloc, 0, head, tail)
	require.NoError(t, err)
	defer r.Close()
	total := 0
	buf := make([]byte, 64)
	for {
		n, err := r.Read(buf)
		require.NoError(t, err)
		total += n
		if n == 0 {
			break
		}
	}
	return uint64(total)
}

func TestAttributeDirtyTracking(t *testing.T) {
	sm, wb, alloc, dir := newFixture(t)
	id, err := dir.Touch("f.dat")
	require.NoError(t, err)

	cfg := phylumcfg.NewOpenFileConfig(1)
	cfg.SetU32(1, 42)

	fa := fileio.New(dir, sm, wb, alloc, id, sectorSize, cfg)
	require.NoError(t, fa.Close())
	require.Empty(t, cfg.DirtyAttributes())

	cfg2 := phylumcfg.NewOpenFileConfig(1)
	n, err := dir.Find("f.dat", cfg2)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	v, ok := cfg2.U32(1)
	require.True(t, ok)
	require.Equal(t, uint32(42), v)
}
