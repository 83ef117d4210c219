// Package dirchain implements DirectoryChain (spec.md §4.6): a
// chain.Chain[Kind] specialized with the directory-sector header tag,
// plus the name/attribute/data-chain bookkeeping records it stores. Its
// linear find() walk is the Go-generic descendant of the teacher's
// WriteFileRangeD64 directory-sector walk
// (internal/diskimage/d64_write.go), which scans a track/sector-linked
// directory chain looking for a matching entry slot by hand.
package dirchain

import (
	"github.com/conservify/phylum/buffers"
	"github.com/conservify/phylum/chain"
	"github.com/conservify/phylum/delim"
	"github.com/conservify/phylum/fileid"
	"github.com/conservify/phylum/phylumcfg"
	"github.com/conservify/phylum/phylumerr"
	"github.com/conservify/phylum/records"
	"github.com/conservify/phylum/sectormap"
	"github.com/conservify/phylum/trace"
)

// Kind implements chain.Kind for directory sectors, whose header is a
// records.DirectorySectorHeader (tag 3) and which carries no
// kind-specific live content of its own past the header — every later
// record in the sector is itself a directory record, so
// SeekEndOfBuffer is exactly DelimitedBuffer.SeekEndOfBuffer.
type Kind struct{}

func (Kind) WriteHeader(pl *delim.PageLock, prev, next sectormap.SectorID) error {
	hdr := records.DirectorySectorHeader{Prev: prev, Next: next}
	if _, err := pl.Buffer().AppendBytes(hdr.Encode()); err != nil {
		return err
	}
	pl.Dirty()
	return nil
}

func (Kind) ReadHeader(pl *delim.PageLock) (prev, next sectormap.SectorID, err error) {
	ptr, ok := pl.Buffer().First()
	if !ok {
		return 0, 0, phylumerr.New(phylumerr.Corrupt, "dirchain.ReadHeader", nil)
	}
	hdr, decErr := records.DecodeDirectorySectorHeader(pl.Buffer().RawBody(ptr))
	if decErr != nil {
		return 0, 0, phylumerr.New(phylumerr.Corrupt, "dirchain.ReadHeader", decErr)
	}
	return hdr.Prev, hdr.Next, nil
}

func (Kind) SetNext(pl *delim.PageLock, next sectormap.SectorID) error {
	ptr, ok := pl.Buffer().First()
	if !ok {
		return phylumerr.New(phylumerr.Corrupt, "dirchain.SetNext", nil)
	}
	body := pl.Buffer().RawBody(ptr)
	hdr, err := records.DecodeDirectorySectorHeader(body)
	if err != nil {
		return phylumerr.New(phylumerr.Corrupt, "dirchain.SetNext", err)
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

// foundFile mirrors spec.md §4.6's internal found_file{id, size, chain,
// cfg}, populated by Find and returned by Open.
type foundFile struct {
	valid     bool
	id        uint32
	size      uint64
	chainHead sectormap.SectorID
	chainTail sectormap.SectorID
}

// DirectoryChain is spec.md §4.6's DirectoryChain: a directory-kind
// chain.Chain plus the held page-lock its touch/find/read operations
// operate against (the source's SectorChain methods all take an
// explicit lock parameter; DirectoryChain instead owns one for its own
// lifetime, matching how the spec's example scenarios open a directory
// once and then issue several operations against it).
type DirectoryChain struct {
	c      *chain.Chain[Kind]
	hasher fileid.Hasher
	pl     *delim.PageLock
	found  foundFile
	tr     *trace.Context
}

// New constructs a DirectoryChain over an existing (or not-yet-formatted)
// head/tail sector pair.
func New(sm sectormap.SectorMap, wb *buffers.WorkingBuffers, allocator *chain.Allocator, head, tail sectormap.SectorID) *DirectoryChain {
	return &DirectoryChain{c: chain.New(sm, wb, allocator, Kind{}, head, tail)}
}

// WithHasher overrides the file_id hash routine (fileid.Default if
// never called).
func (d *DirectoryChain) WithHasher(h fileid.Hasher) *DirectoryChain {
	d.hasher = h
	return d
}

// WithTrace attaches a tracing context.
func (d *DirectoryChain) WithTrace(tr *trace.Context) *DirectoryChain {
	d.tr = tr
	d.c.WithTrace(tr)
	return d
}

// Head returns the chain's head sector.
func (d *DirectoryChain) Head() sectormap.SectorID { return d.c.Head() }

// Format writes a fresh directory-chain header to the head sector and
// holds the resulting page-lock open for subsequent operations.
func (d *DirectoryChain) Format() error {
	pl, err := delim.Overwrite(d.c.SectorMap(), d.c.WorkingBuffers(), d.c.Head())
	if err != nil {
		return err
	}
	if err := d.c.Format(pl); err != nil {
		_ = pl.Release()
		return err
	}
	d.pl = pl
	return nil
}

// Mount loads the head sector, verifies it is a directory-chain header,
// and holds the resulting page-lock open for subsequent operations.
func (d *DirectoryChain) Mount() error {
	pl, err := d.c.Reading(d.c.Head())
	if err != nil {
		return err
	}
	if err := d.c.Mount(pl); err != nil {
		_ = pl.Release()
		return err
	}
	d.pl = pl
	return nil
}

// Close flushes and releases the held page-lock. Calling Close without a
// prior Format/Mount is a no-op.
func (d *DirectoryChain) Close() error {
	if d.pl == nil {
		return nil
	}
	ferr := d.pl.Flush()
	rerr := d.pl.Release()
	d.pl = nil
	if ferr != nil {
		return ferr
	}
	return rerr
}

// prepare seeks to the end of the chain's live content — undoing any
// BackToHead a prior Find/Read left pl positioned by — then grows the
// tail if the required bytes don't fit there (spec.md §4.6 prepare).
func (d *DirectoryChain) prepare(required int) error {
	if err := d.c.SeekEndOfChain(d.pl); err != nil {
		return err
	}
	if d.pl.Buffer().RoomFor(required) {
		return nil
	}
	return d.c.GrowTail(d.pl)
}

// Touch appends a FileEntry{id=crc32(name), name} record and flushes
// (spec.md §4.6).
func (d *DirectoryChain) Touch(name string) (uint32, error) {
	id := fileid.ID(d.hasher, name)
	fe := records.FileEntry{FileID: id, Name: fileid.Truncate(name)}
	body := fe.Encode()
	if err := d.prepare(len(body)); err != nil {
		return 0, err
	}
	if _, err := d.pl.Buffer().AppendBytes(body); err != nil {
		return 0, err
	}
	d.pl.Dirty()
	if err := d.pl.Flush(); err != nil {
		return 0, err
	}
	return id, nil
}

// Find performs the linear walk spec.md §4.6 describes, populating the
// internal found_file and, for every FileAttribute belonging to the
// matched file, copying its payload into cfg (if cfg is non-nil). It
// returns 1 if a FileEntry named name was found, 0 otherwise.
func (d *DirectoryChain) Find(name string, cfg *phylumcfg.OpenFileConfig) (int, error) {
	d.found = foundFile{chainHead: sectormap.Invalid, chainTail: sectormap.Invalid}
	var id uint32
	var haveID bool

	if err := d.c.BackToHead(d.pl); err != nil {
		return 0, err
	}
	for {
		buf := d.pl.Buffer()
		for ptr, ok := buf.First(); ok; ptr, ok = buf.Next(ptr) {
			body := buf.RawBody(ptr)
			switch records.Tag(body[0]) {
			case records.TagFileEntry:
				fe, err := records.DecodeFileEntry(body)
				if err != nil {
					return 0, phylumerr.New(phylumerr.Corrupt, "DirectoryChain.Find", err)
				}
				if fe.Name == name {
					id = fe.FileID
					haveID = true
				}
			case records.TagFileData:
				if !haveID {
					continue
				}
				fd, err := records.DecodeFileData(body)
				if err != nil {
					return 0, phylumerr.New(phylumerr.Corrupt, "DirectoryChain.Find", err)
				}
				if fd.FileID != id {
					continue
				}
				if !fd.Inline {
					d.found.chainHead = fd.Head
					d.found.chainTail = fd.Tail
					d.found.size = 0
				} else if fd.Size > 0 {
					d.found.size += uint64(fd.Size)
				}
			case records.TagFileAttribute:
				if !haveID || cfg == nil {
					continue
				}
				fa, err := records.DecodeFileAttribute(body)
				if err != nil {
					return 0, phylumerr.New(phylumerr.Corrupt, "DirectoryChain.Find", err)
				}
				if fa.FileID == id {
					cfg.ApplyPayload(fa.Type, fa.Payload)
				}
			}
		}
		n, err := d.c.Forward(d.pl)
		if err != nil {
			return 0, err
		}
		if n == 0 {
			break
		}
	}

	if !haveID {
		return 0, nil
	}
	d.found.valid = true
	d.found.id = id
	return 1, nil
}

// Open returns the found_file state Find last populated.
func (d *DirectoryChain) Open() (id uint32, size uint64, chainHead, chainTail sectormap.SectorID, ok bool) {
	return d.found.id, d.found.size, d.found.chainHead, d.found.chainTail, d.found.valid
}

// FileData appends an inline FileData record recording size bytes and
// flushes (spec.md §4.6 file_data).
func (d *DirectoryChain) FileData(id uint32, payload []byte) error {
	rec := records.FileData{FileID: id, Inline: true, Size: uint32(len(payload)), Payload: payload}
	body := rec.Encode()
	if err := d.prepare(len(body)); err != nil {
		return err
	}
	if _, err := d.pl.Buffer().AppendBytes(body); err != nil {
		return err
	}
	d.pl.Dirty()
	return d.pl.Flush()
}

// FileChain appends a FileData record recording a promoted data chain's
// head/tail and flushes (spec.md §4.6 file_chain).
func (d *DirectoryChain) FileChain(id uint32, head, tail sectormap.SectorID) error {
	rec := records.FileData{FileID: id, Inline: false, Head: head, Tail: tail}
	body := rec.Encode()
	if err := d.prepare(len(body)); err != nil {
		return err
	}
	if _, err := d.pl.Buffer().AppendBytes(body); err != nil {
		return err
	}
	d.pl.Dirty()
	return d.pl.Flush()
}

// FileAttributes appends one FileAttribute record per dirty attribute in
// attrs and flushes once at the end (spec.md §4.6 file_attributes).
func (d *DirectoryChain) FileAttributes(id uint32, attrs []phylumcfg.Attribute) error {
	any := false
	for _, a := range attrs {
		rec := records.FileAttribute{FileID: id, Type: a.Type, Payload: a.Payload}
		body := rec.Encode()
		if err := d.prepare(len(body)); err != nil {
			return err
		}
		if _, err := d.pl.Buffer().AppendBytes(body); err != nil {
			return err
		}
		d.pl.Dirty()
		any = true
	}
	if !any {
		return nil
	}
	return d.pl.Flush()
}

// Read walks every FileData record belonging to id with an inline
// payload, invoking fn with each payload in chain order (spec.md §4.6
// read).
func (d *DirectoryChain) Read(id uint32, fn func([]byte) error) error {
	if err := d.c.BackToHead(d.pl); err != nil {
		return err
	}
	for {
		buf := d.pl.Buffer()
		for ptr, ok := buf.First(); ok; ptr, ok = buf.Next(ptr) {
			body := buf.RawBody(ptr)
			if records.Tag(body[0]) != records.TagFileData {
				continue
			}
			fd, err := records.DecodeFileData(body)
			if err != nil {
				return phylumerr.New(phylumerr.Corrupt, "DirectoryChain.Read", err)
			}
			if fd.FileID != id || !fd.Inline {
				continue
			}
			if err := fn(fd.Payload); err != nil {
				return err
			}
		}
		n, err := d.c.Forward(d.pl)
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
	}
	return nil
}
