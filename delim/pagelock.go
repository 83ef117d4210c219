package delim

import (
	"github.com/conservify/phylum/buffers"
	"github.com/conservify/phylum/phylumerr"
	"github.com/conservify/phylum/sectormap"
)

// PageLock is the scoped acquisition described in spec.md §4.4: at most
// one page-lock is alive per working buffer at a time. The constructor
// loads the bound sector into the buffer (Reading/Writing) or fills it
// with 0xff, the erased-flash value (Overwrite); Dirty marks the buffer dirty; Flush writes it back and
// clears the flag; Replace swaps in a different sector (flushing first
// if dirty); Release returns the working buffer to its pool and is a
// logic error if the buffer is still dirty and was never flushed.
type PageLock struct {
	sm     sectormap.SectorMap
	buf    *buffers.Buffer
	db     *DelimitedBuffer
	sector sectormap.SectorID
	dirty  bool
}

// Reading loads sector into a freshly borrowed buffer for read access.
func Reading(sm sectormap.SectorMap, wb *buffers.WorkingBuffers, sector sectormap.SectorID) (*PageLock, error) {
	return load(sm, wb, sector)
}

// Writing loads sector for read-modify-write access; identical to
// Reading — the distinction in spec.md §4.4 is the caller's intent, not
// the loaded bytes.
func Writing(sm sectormap.SectorMap, wb *buffers.WorkingBuffers, sector sectormap.SectorID) (*PageLock, error) {
	return load(sm, wb, sector)
}

func load(sm sectormap.SectorMap, wb *buffers.WorkingBuffers, sector sectormap.SectorID) (*PageLock, error) {
	buf := wb.Allocate()
	if err := sm.Read(sector, buf.Bytes); err != nil {
		buf.Release()
		return nil, phylumerr.New(phylumerr.IoError, "PageLock.load", err)
	}
	return &PageLock{sm: sm, buf: buf, db: New(buf.Bytes), sector: sector}, nil
}

// Overwrite binds a freshly borrowed buffer, filled with 0xff, to sector
// without reading it — used when formatting a brand-new sector.
func Overwrite(sm sectormap.SectorMap, wb *buffers.WorkingBuffers, sector sectormap.SectorID) (*PageLock, error) {
	buf := wb.Allocate()
	for i := range buf.Bytes {
		buf.Bytes[i] = 0xff
	}
	return &PageLock{sm: sm, buf: buf, db: New(buf.Bytes), sector: sector, dirty: true}, nil
}

// Buffer returns the DelimitedBuffer view of the locked sector.
func (pl *PageLock) Buffer() *DelimitedBuffer { return pl.db }

// Sector returns the sector currently bound to this lock.
func (pl *PageLock) Sector() sectormap.SectorID { return pl.sector }

// Dirty marks the buffer as holding unflushed changes.
func (pl *PageLock) Dirty() { pl.dirty = true }

// IsDirty reports whether Flush is still owed.
func (pl *PageLock) IsDirty() bool { return pl.dirty }

// Flush writes the buffer back to the SectorMap at the bound sector and
// clears the dirty flag. A no-op if the buffer was already clean.
func (pl *PageLock) Flush() error {
	if !pl.dirty {
		return nil
	}
	if err := pl.sm.Write(pl.sector, pl.buf.Bytes); err != nil {
		return phylumerr.New(phylumerr.IoError, "PageLock.Flush", err)
	}
	pl.dirty = false
	return nil
}

// Replace flushes the current sector if dirty, then loads a different
// sector into the same underlying buffer, rebinding the DelimitedBuffer
// view. Any RecordPtr obtained before Replace is no longer valid against
// the new sector's contents (spec.md §9: tree code must re-resolve node
// pointers with find_node_in_sector after a Replace).
func (pl *PageLock) Replace(sector sectormap.SectorID) error {
	if err := pl.Flush(); err != nil {
		return err
	}
	if err := pl.sm.Read(sector, pl.buf.Bytes); err != nil {
		return phylumerr.New(phylumerr.IoError, "PageLock.Replace", err)
	}
	pl.sector = sector
	pl.db = New(pl.buf.Bytes)
	return nil
}

// ReplaceOverwrite is Replace's Overwrite counterpart: binds sector
// without reading it, filling the buffer with 0xff, and marks it dirty.
func (pl *PageLock) ReplaceOverwrite(sector sectormap.SectorID) error {
	if err := pl.Flush(); err != nil {
		return err
	}
	for i := range pl.buf.Bytes {
		pl.buf.Bytes[i] = 0xff
	}
	pl.sector = sector
	pl.db = New(pl.buf.Bytes)
	pl.dirty = true
	return nil
}

// Release returns the working buffer to its pool. Dropping a dirty lock
// without an explicit Flush is a logic error (spec.md §4.4); in a
// -tags phylum_debug build this panics, otherwise it returns a
// phylumerr.LogicError and still releases the buffer.
func (pl *PageLock) Release() error {
	err := phylumerr.Assert(!pl.dirty, "PageLock.Release", "buffer dropped while dirty; flush before releasing")
	pl.buf.Release()
	return err
}
