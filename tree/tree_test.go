package tree_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conservify/phylum/buffers"
	"github.com/conservify/phylum/chain"
	"github.com/conservify/phylum/sectormap"
	"github.com/conservify/phylum/tree"
)

func newFixture(t *testing.T, order int) (*tree.Tree[uint32, uint32], sectormap.SectorID) {
	t.Helper()
	sm := sectormap.NewMemMap(256, 0)
	wb := buffers.New(256, 8)
	alloc, err := chain.NewAllocator(sm)
	require.NoError(t, err)

	tr := tree.New[uint32, uint32](sm, wb, alloc, order, tree.Uint32Codec, tree.Uint32Codec)
	head, err := alloc.Allocate()
	require.NoError(t, err)
	_, err = tr.Format(head)
	require.NoError(t, err)
	return tr, head
}

// TestAddFindScale covers spec.md §8 scenario E7: order-6 tree, add
// 1..1024, find(1) holds after every insertion, and every key 1..1024
// is findable at the end while 1025 is not.
func TestAddFindScale(t *testing.T) {
	tr, _ := newFixture(t, 6)

	const n = 1024
	for i := uint32(1); i <= n; i++ {
		require.NoError(t, tr.Add(i, i))
		v, ok, err := tr.Find(1)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, uint32(1), v)
	}

	for i := uint32(1); i <= n; i++ {
		v, ok, err := tr.Find(i)
		require.NoError(t, err)
		require.True(t, ok, "key %d should be found", i)
		require.Equal(t, i, v)
	}

	_, ok, err := tr.Find(n + 1)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAddOverwritesExistingKey(t *testing.T) {
	tr, _ := newFixture(t, 6)
	require.NoError(t, tr.Add(5, 50))
	require.NoError(t, tr.Add(5, 500))
	v, ok, err := tr.Find(5)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(500), v)
}

func TestAddOutOfOrderKeys(t *testing.T) {
	tr, _ := newFixture(t, 6)
	keys := []uint32{50, 1, 99, 2, 40, 3, 98, 25, 75}
	for _, k := range keys {
		require.NoError(t, tr.Add(k, k*10))
	}
	for _, k := range keys {
		v, ok, err := tr.Find(k)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, k*10, v)
	}
}

func TestFindLastLessThan(t *testing.T) {
	tr, _ := newFixture(t, 6)
	for _, k := range []uint32{10, 20, 30, 40, 50, 60, 70, 80, 90, 100} {
		require.NoError(t, tr.Add(k, k))
	}

	k, v, ok, err := tr.FindLastLessThan(45)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(40), k)
	require.Equal(t, uint32(40), v)

	_, _, ok, err = tr.FindLastLessThan(10)
	require.NoError(t, err)
	require.False(t, ok)

	k, _, ok, err = tr.FindLastLessThan(1000)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(100), k)
}
