package buffers_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conservify/phylum/buffers"
	"github.com/conservify/phylum/sectormap"
)

func TestAllocateReleaseReuse(t *testing.T) {
	wb := buffers.New(64, 2)

	a := wb.Allocate()
	b := wb.Allocate()
	require.Len(t, a.Bytes, 64)
	require.Equal(t, 2, wb.HighWater())

	require.Panics(t, func() { wb.Allocate() })

	a.Release()
	c := wb.Allocate()
	require.NotNil(t, c)
	require.Equal(t, 2, wb.HighWater())

	b.Release()
	c.Release()
}

func TestReleaseUnknownBufferIgnored(t *testing.T) {
	wb := buffers.New(64, 1)
	a := wb.Allocate()
	a.Release()
	require.NotPanics(t, func() { a.Release() })
}

func TestLendDoesNotConsumeSlot(t *testing.T) {
	wb := buffers.New(64, 1)
	mem := make([]byte, 64)
	lent := buffers.Lend(mem)
	require.NotNil(t, lent)

	// The pool's one real slot is still free.
	a := wb.Allocate()
	require.NotNil(t, a)
	a.Release()
	lent.Release() // no-op, must not panic
}

func TestPagingAcquireSameSectorSharesSlot(t *testing.T) {
	wb := buffers.New(32, 4)
	p := buffers.NewPaging(wb)

	b1 := p.Acquire(sectormap.SectorID(7))
	b2 := p.Acquire(sectormap.SectorID(7))
	require.Same(t, &b1.Bytes[0], &b2.Bytes[0])

	slot, ok := p.Lookup(sectormap.SectorID(7))
	require.True(t, ok)
	require.GreaterOrEqual(t, slot, 0)

	p.Release(b1)
	_, stillResident := p.Lookup(sectormap.SectorID(7))
	require.True(t, stillResident, "one ref remains")

	p.Release(b2)
	_, resident := p.Lookup(sectormap.SectorID(7))
	require.False(t, resident)
}
