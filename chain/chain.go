package chain

import (
	"github.com/conservify/phylum/buffers"
	"github.com/conservify/phylum/delim"
	"github.com/conservify/phylum/phylumerr"
	"github.com/conservify/phylum/sectormap"
	"github.com/conservify/phylum/trace"
)

// Kind is the small capability set DESIGN NOTES §9 substitutes for the
// source's virtual-inheritance SectorChain base: a chain kind knows how
// to read/write its own header record and how to position a buffer's
// cursor past its kind-specific live content.
type Kind interface {
	// WriteHeader writes this chain kind's header record at position 0
	// of pl's buffer (overwriting any existing content there) and marks
	// the lock dirty.
	WriteHeader(pl *delim.PageLock, prev, next sectormap.SectorID) error
	// ReadHeader decodes the header record at position 0, failing with
	// Corrupt if the tag doesn't match this kind.
	ReadHeader(pl *delim.PageLock) (prev, next sectormap.SectorID, err error)
	// SetNext patches only the header's next-sector field in place,
	// preserving any other header fields (e.g. DataSectorHeader.Bytes),
	// and marks the lock dirty.
	SetNext(pl *delim.PageLock, next sectormap.SectorID) error
	// SeekEndOfBuffer positions pl's buffer cursor after this sector's
	// kind-specific live content, ready for the next Append.
	SeekEndOfBuffer(pl *delim.PageLock) error
}

// Chain is the generic doubly-linked list of sectors of spec.md §4.5,
// parameterized over a Kind. It holds only lightweight traversal state;
// every operation is handed the *delim.PageLock the caller currently has
// open, matching the source's convention of passing the active lock
// into each chain method rather than the chain owning one itself.
type Chain[K Kind] struct {
	sm        sectormap.SectorMap
	wb        *buffers.WorkingBuffers
	allocator *Allocator
	kind      K
	head      sectormap.SectorID
	tail      sectormap.SectorID
	current   sectormap.SectorID
	length    int
	tr        *trace.Context
}

// New constructs a Chain naming an existing (head, tail) pair — either
// may be sectormap.Invalid for a chain not yet formatted.
func New[K Kind](sm sectormap.SectorMap, wb *buffers.WorkingBuffers, allocator *Allocator, kind K, head, tail sectormap.SectorID) *Chain[K] {
	return &Chain[K]{sm: sm, wb: wb, allocator: allocator, kind: kind, head: head, tail: tail, current: head}
}

// WithTrace attaches a tracing context.
func (c *Chain[K]) WithTrace(tr *trace.Context) *Chain[K] {
	c.tr = tr
	return c
}

// SectorMap returns the backing SectorMap, for callers (e.g. dirchain)
// that need to open a page-lock of their own against it.
func (c *Chain[K]) SectorMap() sectormap.SectorMap { return c.sm }

// WorkingBuffers returns the backing working-buffer pool.
func (c *Chain[K]) WorkingBuffers() *buffers.WorkingBuffers { return c.wb }

func (c *Chain[K]) Head() sectormap.SectorID    { return c.head }
func (c *Chain[K]) Tail() sectormap.SectorID    { return c.tail }
func (c *Chain[K]) Current() sectormap.SectorID { return c.current }
func (c *Chain[K]) Length() int                 { return c.length }

// Format writes a fresh chain header (pp=np=Invalid) to pl's bound
// sector (the chain's head) and flushes it.
func (c *Chain[K]) Format(pl *delim.PageLock) error {
	if err := c.kind.WriteHeader(pl, sectormap.Invalid, sectormap.Invalid); err != nil {
		return err
	}
	if err := pl.Flush(); err != nil {
		return err
	}
	c.head = pl.Sector()
	c.tail = pl.Sector()
	c.current = pl.Sector()
	c.length = 1
	return nil
}

// Mount locates the chain's head (pl must already be bound to it via
// Reading) and verifies its header record is this chain kind, failing
// with Corrupt otherwise (spec.md §4.5).
func (c *Chain[K]) Mount(pl *delim.PageLock) error {
	prev, _, err := c.kind.ReadHeader(pl)
	if err != nil {
		return err
	}
	if prev != sectormap.Invalid {
		return phylumerr.New(phylumerr.Corrupt, "Chain.Mount", nil)
	}
	c.head = pl.Sector()
	c.current = pl.Sector()
	c.length = 1
	return nil
}

// BackToHead rewinds traversal state, reloading the head sector into pl.
func (c *Chain[K]) BackToHead(pl *delim.PageLock) error {
	if err := pl.Replace(c.head); err != nil {
		return err
	}
	c.current = c.head
	c.length = 1
	return nil
}

// Forward reads pl's current header's next pointer, loads that sector
// into pl, and returns 1. It returns 0 at the end of the chain (next ==
// Invalid) without moving pl, and a negative value (via the error) on
// failure.
func (c *Chain[K]) Forward(pl *delim.PageLock) (int, error) {
	_, next, err := c.kind.ReadHeader(pl)
	if err != nil {
		return -1, err
	}
	if next == sectormap.Invalid {
		return 0, nil
	}
	if err := pl.Replace(next); err != nil {
		return -1, err
	}
	c.current = next
	c.length++
	return 1, nil
}

// SeekEndOfChain repeatedly calls Forward until the chain end, then
// positions pl's buffer cursor past the tail sector's live content.
func (c *Chain[K]) SeekEndOfChain(pl *delim.PageLock) error {
	for {
		n, err := c.Forward(pl)
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
	}
	c.tail = c.current
	return c.kind.SeekEndOfBuffer(pl)
}

// GrowTail allocates a new tail sector and links it to the chain.
//
// Write-ordering rule (spec.md §4.5/§5): the new tail's own header is
// flushed to flash *before* the previous tail's next-pointer is updated
// to reference it, so an unclean shutdown leaves either a fully-linked
// chain or a dangling allocated sector — never a chain pointing at an
// unwritten one. pl must be bound to the chain's current tail on entry;
// on success it is bound to the new tail.
func (c *Chain[K]) GrowTail(pl *delim.PageLock) error {
	newSector, err := c.allocator.Allocate()
	if err != nil {
		return err
	}

	newLock, err := delim.Overwrite(c.sm, c.wb, newSector)
	if err != nil {
		return err
	}
	if err := c.kind.WriteHeader(newLock, c.current, sectormap.Invalid); err != nil {
		_ = newLock.Release()
		return err
	}
	if err := newLock.Flush(); err != nil {
		_ = newLock.Release()
		return err
	}
	if err := newLock.Release(); err != nil {
		return err
	}

	if err := c.kind.SetNext(pl, newSector); err != nil {
		return err
	}
	if err := pl.Flush(); err != nil {
		return err
	}
	if err := pl.Replace(newSector); err != nil {
		return err
	}
	if err := c.kind.SeekEndOfBuffer(pl); err != nil {
		return err
	}

	c.current = newSector
	c.tail = newSector
	c.length++
	return nil
}

// Reading opens a fresh page-lock bound to sector (callers pass the
// chain's head), the usual entry point before calling Mount.
func (c *Chain[K]) Reading(sector sectormap.SectorID) (*delim.PageLock, error) {
	return delim.Reading(c.sm, c.wb, sector)
}
