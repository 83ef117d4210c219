package dirtree_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conservify/phylum/buffers"
	"github.com/conservify/phylum/chain"
	"github.com/conservify/phylum/dirtree"
	"github.com/conservify/phylum/phylumcfg"
	"github.com/conservify/phylum/sectormap"
)

// An order-6 DirectoryTree node record holds 7 FsFileEntry slots (1283
// bytes), so the sectors have to be larger than 256 bytes.
const sectorSize = 2048

func newFixture(t *testing.T) *dirtree.DirectoryTree {
	t.Helper()
	sm := sectormap.NewMemMap(sectorSize, 0)
	wb := buffers.New(sectorSize, 8)
	alloc, err := chain.NewAllocator(sm)
	require.NoError(t, err)

	dt := dirtree.New(sm, wb, alloc, 6)
	head, err := alloc.Allocate()
	require.NoError(t, err)
	_, err = dt.Format(head)
	require.NoError(t, err)
	return dt
}

func TestTouchAndFind(t *testing.T) {
	dt := newFixture(t)

	id, err := dt.Touch("test.logs")
	require.NoError(t, err)
	require.NotZero(t, id)

	_, _, ok, err := dt.Find("test.logs", nil)
	require.NoError(t, err)
	require.True(t, ok)

	_, _, ok, err = dt.Find("nope.logs", nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestUnlinkHidesEntry(t *testing.T) {
	dt := newFixture(t)
	_, err := dt.Touch("gone.txt")
	require.NoError(t, err)

	require.NoError(t, dt.Unlink("gone.txt"))
	_, _, ok, err := dt.Find("gone.txt", nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTouchAfterUnlinkResurrects(t *testing.T) {
	dt := newFixture(t)
	id1, err := dt.Touch("f.txt")
	require.NoError(t, err)
	require.NoError(t, dt.Unlink("f.txt"))

	id2, err := dt.Touch("f.txt")
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	_, entry, ok, err := dt.Find("f.txt", nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, entry.Size)
}

func TestFileDataInline(t *testing.T) {
	dt := newFixture(t)
	id, err := dt.Touch("data.txt")
	require.NoError(t, err)

	require.NoError(t, dt.FileData(id, []byte("hello")))
	require.NoError(t, dt.FileData(id, []byte(" world")))

	var got []byte
	require.NoError(t, dt.Read(id, func(b []byte) error {
		got = append(got, b...)
		return nil
	}))
	require.Equal(t, "hello world", string(got))

	_, entry, ok, err := dt.Find("data.txt", nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(len("hello world")), entry.Size)
}

func TestFileChainRecordsPointer(t *testing.T) {
	dt := newFixture(t)
	id, err := dt.Touch("big.txt")
	require.NoError(t, err)

	require.NoError(t, dt.FileChain(id, 10, 12, 999))
	_, entry, ok, err := dt.Find("big.txt", nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, sectormap.SectorID(10), entry.ChainHead)
	require.Equal(t, sectormap.SectorID(12), entry.ChainTail)
	require.Equal(t, uint64(999), entry.Size)
	require.False(t, entry.Inline)
}

// TestAttributeShadowing covers spec.md §8 invariant 6 against the tree
// backend: the last of n writes to the same (file_id, type) wins.
func TestAttributeShadowing(t *testing.T) {
	dt := newFixture(t)
	id, err := dt.Touch("attrs.txt")
	require.NoError(t, err)

	for _, v := range []uint32{1, 2, 3} {
		cfg := phylumcfg.NewOpenFileConfig(7)
		cfg.SetU32(7, v)
		require.NoError(t, dt.FileAttributes(id, cfg.DirtyAttributes()))
	}

	readCfg := phylumcfg.NewOpenFileConfig(7)
	_, _, ok, err := dt.Find("attrs.txt", readCfg)
	require.NoError(t, err)
	require.True(t, ok)
	v, ok := readCfg.U32(7)
	require.True(t, ok)
	require.Equal(t, uint32(3), v)
}
