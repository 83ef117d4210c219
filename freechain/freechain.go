// Package freechain implements FreeSectorsChain (spec.md §4.10): a
// chain.Chain[Kind] — the spec calls it explicitly "a SectorChain" —
// whose records track reclaimable sector sub-chains and sub-trees, the
// same reuse of the generic chain machinery dirchain and datachain use
// for their own record kinds.
package freechain

import (
	"encoding/binary"

	"github.com/conservify/phylum/buffers"
	"github.com/conservify/phylum/chain"
	"github.com/conservify/phylum/delim"
	"github.com/conservify/phylum/phylumerr"
	"github.com/conservify/phylum/records"
	"github.com/conservify/phylum/sectormap"
	"github.com/conservify/phylum/trace"
)

// Kind implements chain.Kind for FreeSectorsChain sectors.
type Kind struct{}

func (Kind) WriteHeader(pl *delim.PageLock, prev, next sectormap.SectorID) error {
	hdr := records.FreeSectorsHeader{Prev: prev, Next: next}
	if _, err := pl.Buffer().AppendBytes(hdr.Encode()); err != nil {
		return err
	}
	pl.Dirty()
	return nil
}

func (Kind) ReadHeader(pl *delim.PageLock) (prev, next sectormap.SectorID, err error) {
	ptr, ok := pl.Buffer().First()
	if !ok {
		return 0, 0, phylumerr.New(phylumerr.Corrupt, "freechain.ReadHeader", nil)
	}
	hdr, decErr := records.DecodeFreeSectorsHeader(pl.Buffer().RawBody(ptr))
	if decErr != nil {
		return 0, 0, phylumerr.New(phylumerr.Corrupt, "freechain.ReadHeader", decErr)
	}
	return hdr.Prev, hdr.Next, nil
}

func (Kind) SetNext(pl *delim.PageLock, next sectormap.SectorID) error {
	ptr, ok := pl.Buffer().First()
	if !ok {
		return phylumerr.New(phylumerr.Corrupt, "freechain.SetNext", nil)
	}
	body := pl.Buffer().RawBody(ptr)
	hdr, err := records.DecodeFreeSectorsHeader(body)
	if err != nil {
		return phylumerr.New(phylumerr.Corrupt, "freechain.SetNext", err)
	}
	hdr.Next = next
	copy(body, hdr.Encode())
	pl.Dirty()
	return nil
}

func (Kind) SeekEndOfBuffer(pl *delim.PageLock) error {
	pl.Buffer().SeekEndOfBuffer()
	return nil
}

// FreeSectorsChain is spec.md §4.10's FreeSectorsChain.
type FreeSectorsChain struct {
	c  *chain.Chain[Kind]
	sm sectormap.SectorMap
	wb *buffers.WorkingBuffers
	pl *delim.PageLock
	tr *trace.Context
}

// New constructs a FreeSectorsChain over an existing (or not-yet-
// formatted) head/tail sector pair.
func New(sm sectormap.SectorMap, wb *buffers.WorkingBuffers, allocator *chain.Allocator, head, tail sectormap.SectorID) *FreeSectorsChain {
	return &FreeSectorsChain{c: chain.New(sm, wb, allocator, Kind{}, head, tail), sm: sm, wb: wb}
}

// WithTrace attaches a tracing context.
func (f *FreeSectorsChain) WithTrace(tr *trace.Context) *FreeSectorsChain {
	f.tr = tr
	f.c.WithTrace(tr)
	return f
}

// Head returns the chain's head sector.
func (f *FreeSectorsChain) Head() sectormap.SectorID { return f.c.Head() }

// Format writes a fresh chain header and holds the resulting page-lock
// open.
func (f *FreeSectorsChain) Format() error {
	pl, err := delim.Overwrite(f.sm, f.wb, f.c.Head())
	if err != nil {
		return err
	}
	if err := f.c.Format(pl); err != nil {
		_ = pl.Release()
		return err
	}
	f.pl = pl
	return nil
}

// Mount loads the head sector, verifies the header, and holds the
// resulting page-lock open.
func (f *FreeSectorsChain) Mount() error {
	pl, err := f.c.Reading(f.c.Head())
	if err != nil {
		return err
	}
	if err := f.c.Mount(pl); err != nil {
		_ = pl.Release()
		return err
	}
	f.pl = pl
	return nil
}

// Close flushes and releases the held page-lock.
func (f *FreeSectorsChain) Close() error {
	if f.pl == nil {
		return nil
	}
	ferr := f.pl.Flush()
	rerr := f.pl.Release()
	f.pl = nil
	if ferr != nil {
		return ferr
	}
	return rerr
}

func (f *FreeSectorsChain) appendRecord(rec records.FreeSectors) error {
	body := rec.Encode()
	if err := f.c.SeekEndOfChain(f.pl); err != nil {
		return err
	}
	if !f.pl.Buffer().RoomFor(len(body)) {
		if err := f.c.GrowTail(f.pl); err != nil {
			return err
		}
	}
	if _, err := f.pl.Buffer().AppendBytes(body); err != nil {
		return err
	}
	f.pl.Dirty()
	return f.pl.Flush()
}

// addSlot walks existing records looking for one whose Head is Invalid
// to reuse in place (spec.md §4.10: "first slot whose head == INVALID
// is reused"), falling back to appending a fresh record.
func (f *FreeSectorsChain) addSlot(rec records.FreeSectors) error {
	if err := f.c.BackToHead(f.pl); err != nil {
		return err
	}
	for {
		buf := f.pl.Buffer()
		for ptr, ok := buf.First(); ok; ptr, ok = buf.Next(ptr) {
			body := buf.RawBody(ptr)
			if records.Tag(body[0]) != records.TagFreeSectors {
				continue
			}
			fs, err := records.DecodeFreeSectors(body)
			if err != nil {
				return phylumerr.New(phylumerr.Corrupt, "freechain.addSlot", err)
			}
			if fs.Head == sectormap.Invalid {
				copy(body, rec.Encode())
				f.pl.Dirty()
				return f.pl.Flush()
			}
		}
		n, err := f.c.Forward(f.pl)
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
	}
	return f.appendRecord(rec)
}

// AddChain records head as the head of a reclaimable sub-chain of free
// sectors (spec.md §4.10 add_chain). The sub-chain's own next-pointer
// links must already be in place — see LinkFreedChain.
func (f *FreeSectorsChain) AddChain(head sectormap.SectorID) error {
	return f.addSlot(records.FreeSectors{Head: head, TreeSize: 0})
}

// AddTree records root as the root of a free-sectors tree of size nodes
// (spec.md §4.10 add_tree).
func (f *FreeSectorsChain) AddTree(root sectormap.SectorID, size uint32) error {
	return f.addSlot(records.FreeSectors{Head: root, TreeSize: size})
}

// Dequeue returns one previously-freed sector, ok=false if none is
// available (spec.md §4.10 dequeue). Tree-backed slots are recorded by
// AddTree but cannot yet be drained: removing a node from a live B+
// tree isn't among the TreeSector operations spec.md §4.9 names (only
// add/find/find_last_less_then), so a FreeSectors record with
// TreeSize > 0 is skipped rather than guessed at.
func (f *FreeSectorsChain) Dequeue() (sectormap.SectorID, bool, error) {
	if err := f.c.BackToHead(f.pl); err != nil {
		return 0, false, err
	}
	for {
		buf := f.pl.Buffer()
		for ptr, ok := buf.First(); ok; ptr, ok = buf.Next(ptr) {
			body := buf.RawBody(ptr)
			if records.Tag(body[0]) != records.TagFreeSectors {
				continue
			}
			fs, err := records.DecodeFreeSectors(body)
			if err != nil {
				return 0, false, phylumerr.New(phylumerr.Corrupt, "freechain.Dequeue", err)
			}
			if fs.Head == sectormap.Invalid || fs.TreeSize > 0 {
				continue
			}
			sub := subChain{sm: f.sm, wb: f.wb}
			sector, newHead, ok2, err := sub.dequeue(fs.Head)
			if err != nil {
				return 0, false, err
			}
			if !ok2 {
				continue
			}
			if newHead != fs.Head {
				fs.Head = newHead
				copy(body, fs.Encode())
				f.pl.Dirty()
				if err := f.pl.Flush(); err != nil {
					return 0, false, err
				}
			}
			return sector, true, nil
		}
		n, err := f.c.Forward(f.pl)
		if err != nil {
			return 0, false, err
		}
		if n == 0 {
			break
		}
	}
	return 0, false, nil
}

// subChain implements the singly-linked sub-chain of raw free sectors
// spec.md §4.10 describes: each freed sector's first four bytes hold
// the next free sector (Invalid at the tail), a minimal stack-like free
// list rather than a full doubly-linked chain.Chain, since free sectors
// carry no live content worth traversing forward from.
type subChain struct {
	sm sectormap.SectorMap
	wb *buffers.WorkingBuffers
}

func (s subChain) dequeue(head sectormap.SectorID) (sector, newHead sectormap.SectorID, ok bool, err error) {
	if head == sectormap.Invalid {
		return 0, 0, false, nil
	}
	pl, err := delim.Reading(s.sm, s.wb, head)
	if err != nil {
		return 0, 0, false, err
	}
	defer func() { _ = pl.Release() }()
	next := sectormap.SectorID(binary.LittleEndian.Uint32(pl.Buffer().Bytes()[0:4]))
	return head, next, true, nil
}

// LinkFreedChain writes the next-pointer links a subsequent Dequeue
// needs across an already-reclaimed list of sectors and returns the
// resulting sub-chain's head, ready to hand to AddChain.
func LinkFreedChain(sm sectormap.SectorMap, wb *buffers.WorkingBuffers, sectors []sectormap.SectorID) (sectormap.SectorID, error) {
	next := sectormap.Invalid
	for i := len(sectors) - 1; i >= 0; i-- {
		pl, err := delim.Overwrite(sm, wb, sectors[i])
		if err != nil {
			return sectormap.Invalid, err
		}
		binary.LittleEndian.PutUint32(pl.Buffer().Bytes()[0:4], uint32(next))
		pl.Dirty()
		if err := pl.Flush(); err != nil {
			_ = pl.Release()
			return sectormap.Invalid, err
		}
		if err := pl.Release(); err != nil {
			return sectormap.Invalid, err
		}
		next = sectors[i]
	}
	return next, nil
}
