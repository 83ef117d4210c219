package buffers

import "github.com/conservify/phylum/sectormap"

// Paging is the paging variant spec.md §4.2 describes: it additionally
// tracks (sector, refs) per slot so the same physical buffer can be
// looked up by sector when held by multiple transient borrowers. Its
// Release decrements refs and clears the sector binding when refs reach
// zero; a fresh caller asking for a sector already resident gets the
// same slot and an incremented ref count instead of a fresh Allocate.
type Paging struct {
	*WorkingBuffers

	bySector map[sectormap.SectorID]int // sector -> slot index
	bySlot   map[int]sectormap.SectorID
	refs     []int
}

// NewPaging wraps a WorkingBuffers pool with sector-keyed ref counting.
func NewPaging(wb *WorkingBuffers) *Paging {
	return &Paging{
		WorkingBuffers: wb,
		bySector:       make(map[sectormap.SectorID]int),
		bySlot:         make(map[int]sectormap.SectorID),
		refs:           make([]int, len(wb.slots)),
	}
}

// Acquire returns the buffer bound to sector, allocating and binding a
// fresh slot if none is resident yet. Each Acquire call must be matched
// by exactly one Release.
func (p *Paging) Acquire(sector sectormap.SectorID) *Buffer {
	if slot, ok := p.bySector[sector]; ok {
		p.refs[slot]++
		return &Buffer{Bytes: p.slots[slot], pool: p.WorkingBuffers, slot: slot}
	}
	buf := p.WorkingBuffers.Allocate()
	p.bySector[sector] = buf.slot
	p.bySlot[buf.slot] = sector
	p.refs[buf.slot] = 1
	return buf
}

// Release decrements the ref count for the slot buf is bound to, freeing
// the slot and clearing the sector binding only once refs reaches zero.
func (p *Paging) Release(buf *Buffer) {
	if buf == nil || buf.slot < 0 {
		return
	}
	slot := buf.slot
	p.refs[slot]--
	if p.refs[slot] > 0 {
		return
	}
	if sector, ok := p.bySlot[slot]; ok {
		delete(p.bySector, sector)
		delete(p.bySlot, slot)
	}
	p.WorkingBuffers.release(slot)
}

// Lookup reports whether sector is currently resident in the pool and,
// if so, the slot index it occupies.
func (p *Paging) Lookup(sector sectormap.SectorID) (int, bool) {
	slot, ok := p.bySector[sector]
	return slot, ok
}
