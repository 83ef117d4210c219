// Package dirtree implements DirectoryTree (spec.md §4.11): the
// tree-backed alternative to dirchain.DirectoryChain, storing one
// records.FsFileEntry value per file_id key in a tree.Tree rather than
// scanning a linear record stream. touch/find/unlink/file_data/
// file_chain/file_attributes/file_trees/read are the same logical
// operations dirchain.DirectoryChain exposes, reimplemented as
// single-value updates against the tree.
package dirtree

import (
	"github.com/conservify/phylum/buffers"
	"github.com/conservify/phylum/chain"
	"github.com/conservify/phylum/delim"
	"github.com/conservify/phylum/dirchain"
	"github.com/conservify/phylum/fileid"
	"github.com/conservify/phylum/phylumcfg"
	"github.com/conservify/phylum/phylumerr"
	"github.com/conservify/phylum/records"
	"github.com/conservify/phylum/sectormap"
	"github.com/conservify/phylum/tree"
)

// Deleted is the FsFileEntry.Flags bit unlink sets (spec.md §4.11:
// "unlink sets the Deleted flag on the value; find treats a deleted
// entry as absent. No physical reclamation occurs here.").
const Deleted uint32 = 1 << 0

// DirectoryTree is spec.md §4.11's DirectoryTree.
type DirectoryTree struct {
	sm        sectormap.SectorMap
	wb        *buffers.WorkingBuffers
	allocator *chain.Allocator
	hasher    fileid.Hasher
	tr        *tree.Tree[uint32, records.FsFileEntry]
}

// New constructs a DirectoryTree of the given order, ready for Format or
// Open.
func New(sm sectormap.SectorMap, wb *buffers.WorkingBuffers, allocator *chain.Allocator, order int) *DirectoryTree {
	return &DirectoryTree{
		sm:        sm,
		wb:        wb,
		allocator: allocator,
		hasher:    fileid.Default,
		tr:        tree.New[uint32, records.FsFileEntry](sm, wb, allocator, order, tree.Uint32Codec, fsFileEntryCodec),
	}
}

// WithHasher overrides the file_id hash routine.
func (d *DirectoryTree) WithHasher(h fileid.Hasher) *DirectoryTree {
	d.hasher = h
	return d
}

// Format writes a fresh empty root node to headSector and returns its
// NodePtr, for a caller (e.g. a superblock) to persist as the tree's
// root.
func (d *DirectoryTree) Format(headSector sectormap.SectorID) (records.NodePtr, error) {
	return d.tr.Format(headSector)
}

// Open binds an already-formatted tree's root, as recorded by an earlier
// Format.
func (d *DirectoryTree) Open(root records.NodePtr) {
	d.tr.Open(root)
}

// Root returns the tree's current root pointer.
func (d *DirectoryTree) Root() records.NodePtr { return d.tr.Root() }

func (d *DirectoryTree) fileID(name string) uint32 {
	return fileid.ID(d.hasher, name)
}

// Touch creates a fresh entry for name if none exists (or the existing
// one was unlinked), otherwise is a no-op returning the existing id —
// dirchain.DirectoryChain.Touch instead always appends a new FileEntry
// record, but a tree value has no append; touch here must preserve a
// live entry's data rather than overwrite it.
func (d *DirectoryTree) Touch(name string) (uint32, error) {
	id := d.fileID(name)
	existing, found, err := d.tr.Find(id)
	if err != nil {
		return 0, err
	}
	if found && existing.Flags&Deleted == 0 {
		return id, nil
	}
	entry := records.FsFileEntry{
		Name:        fileid.Truncate(name),
		ChainHead:   sectormap.Invalid,
		ChainTail:   sectormap.Invalid,
		AttrsPtr:    records.InvalidNodePtr,
		PositionIdx: records.InvalidNodePtr,
		RecordIdx:   records.InvalidNodePtr,
	}
	if err := d.tr.Add(id, entry); err != nil {
		return 0, err
	}
	return id, nil
}

// Find looks up name's live entry, ok=false if absent or deleted
// (spec.md §4.11 find). If cfg is non-nil, any attributes recorded
// against the entry are applied to it.
func (d *DirectoryTree) Find(name string, cfg *phylumcfg.OpenFileConfig) (uint32, records.FsFileEntry, bool, error) {
	id := d.fileID(name)
	entry, found, err := d.tr.Find(id)
	if err != nil {
		return 0, records.FsFileEntry{}, false, err
	}
	if !found || entry.Flags&Deleted != 0 {
		return 0, records.FsFileEntry{}, false, nil
	}
	if cfg != nil && entry.AttrsPtr.Sector != sectormap.Invalid {
		if err := d.readAttributes(entry.AttrsPtr.Sector, cfg); err != nil {
			return 0, records.FsFileEntry{}, false, err
		}
	}
	return id, entry, true, nil
}

// Unlink marks name's entry Deleted without reclaiming its storage
// (spec.md §4.11).
func (d *DirectoryTree) Unlink(name string) error {
	id := d.fileID(name)
	entry, found, err := d.tr.Find(id)
	if err != nil {
		return err
	}
	if !found {
		return phylumerr.New(phylumerr.NotFound, "DirectoryTree.Unlink", nil)
	}
	entry.Flags |= Deleted
	return d.tr.Add(id, entry)
}

// FileData writes payload as the entry's inline content, accumulating
// into the fixed InlineCap-byte buffer (spec.md §4.11 file_data). It
// fails with BufferFull once the inline buffer would overflow — the
// caller should promote to a data chain via FileChain instead, the same
// decision FileAppender.flush makes on the directory-chain side.
func (d *DirectoryTree) FileData(id uint32, payload []byte) error {
	entry, found, err := d.tr.Find(id)
	if err != nil {
		return err
	}
	if !found {
		return phylumerr.New(phylumerr.NotFound, "DirectoryTree.FileData", nil)
	}
	if int(entry.InlineLen)+len(payload) > records.InlineCap {
		return phylumerr.New(phylumerr.BufferFull, "DirectoryTree.FileData", nil)
	}
	copy(entry.InlineData[entry.InlineLen:], payload)
	entry.InlineLen += uint32(len(payload))
	entry.Inline = true
	entry.Size += uint64(len(payload))
	return d.tr.Add(id, entry)
}

// FileChain records a promoted data chain's head/tail and total size,
// clearing any inline content (spec.md §4.11 file_chain).
func (d *DirectoryTree) FileChain(id uint32, head, tail sectormap.SectorID, size uint64) error {
	entry, found, err := d.tr.Find(id)
	if err != nil {
		return err
	}
	if !found {
		return phylumerr.New(phylumerr.NotFound, "DirectoryTree.FileChain", nil)
	}
	entry.Inline = false
	entry.InlineLen = 0
	entry.ChainHead = head
	entry.ChainTail = tail
	entry.Size = size
	return d.tr.Add(id, entry)
}

// FileTrees returns the entry's two index-tree pointers (spec.md §4.11
// file_trees).
func (d *DirectoryTree) FileTrees(id uint32) (position, record records.NodePtr, err error) {
	entry, found, ferr := d.tr.Find(id)
	if ferr != nil {
		return records.NodePtr{}, records.NodePtr{}, ferr
	}
	if !found {
		return records.NodePtr{}, records.NodePtr{}, phylumerr.New(phylumerr.NotFound, "DirectoryTree.FileTrees", nil)
	}
	return entry.PositionIdx, entry.RecordIdx, nil
}

// SetFileTrees updates the entry's two index-tree pointers.
func (d *DirectoryTree) SetFileTrees(id uint32, position, record records.NodePtr) error {
	entry, found, err := d.tr.Find(id)
	if err != nil {
		return err
	}
	if !found {
		return phylumerr.New(phylumerr.NotFound, "DirectoryTree.SetFileTrees", nil)
	}
	entry.PositionIdx = position
	entry.RecordIdx = record
	return d.tr.Add(id, entry)
}

// Read invokes fn with id's inline payload, if any (spec.md §4.11 read).
// A chain-backed file's payload is read through datachain.DataChain
// directly by the caller, which already holds the entry's
// ChainHead/ChainTail from Find.
func (d *DirectoryTree) Read(id uint32, fn func([]byte) error) error {
	entry, found, err := d.tr.Find(id)
	if err != nil {
		return err
	}
	if !found || !entry.Inline || entry.InlineLen == 0 {
		return nil
	}
	return fn(entry.InlineData[:entry.InlineLen])
}

// attrChainKind reuses dirchain's chain-header shape for the small
// per-file attribute chain an AttrsPtr names: structurally identical to
// a directory sector's own pp/np header, just rooted per-file instead of
// per-volume.
type attrChainKind = dirchain.Kind

// FileAttributes appends one FileAttribute record per dirty attribute in
// attrs, allocating the entry's attribute chain on first use (spec.md
// §4.11 file_attributes).
func (d *DirectoryTree) FileAttributes(id uint32, attrs []phylumcfg.Attribute) error {
	if len(attrs) == 0 {
		return nil
	}
	entry, found, err := d.tr.Find(id)
	if err != nil {
		return err
	}
	if !found {
		return phylumerr.New(phylumerr.NotFound, "DirectoryTree.FileAttributes", nil)
	}

	var pl *delim.PageLock
	var c *chain.Chain[attrChainKind]
	if entry.AttrsPtr.Sector == sectormap.Invalid {
		head, aerr := d.allocator.Allocate()
		if aerr != nil {
			return aerr
		}
		pl, err = delim.Overwrite(d.sm, d.wb, head)
		if err != nil {
			return err
		}
		c = chain.New(d.sm, d.wb, d.allocator, attrChainKind{}, head, head)
		if err := c.Format(pl); err != nil {
			_ = pl.Release()
			return err
		}
		entry.AttrsPtr = records.NodePtr{Sector: head, Offset: 0}
	} else {
		c = chain.New(d.sm, d.wb, d.allocator, attrChainKind{}, entry.AttrsPtr.Sector, entry.AttrsPtr.Sector)
		pl, err = c.Reading(entry.AttrsPtr.Sector)
		if err != nil {
			return err
		}
		if err := c.Mount(pl); err != nil {
			_ = pl.Release()
			return err
		}
	}
	defer func() { _ = pl.Release() }()

	if err := c.SeekEndOfChain(pl); err != nil {
		return err
	}
	for _, a := range attrs {
		rec := records.FileAttribute{FileID: id, Type: a.Type, Payload: a.Payload}
		body := rec.Encode()
		if !pl.Buffer().RoomFor(len(body)) {
			if err := c.GrowTail(pl); err != nil {
				return err
			}
		}
		if _, err := pl.Buffer().AppendBytes(body); err != nil {
			return err
		}
		pl.Dirty()
	}
	if err := pl.Flush(); err != nil {
		return err
	}

	return d.tr.Add(id, entry)
}

func (d *DirectoryTree) readAttributes(head sectormap.SectorID, cfg *phylumcfg.OpenFileConfig) error {
	c := chain.New(d.sm, d.wb, d.allocator, attrChainKind{}, head, head)
	pl, err := c.Reading(head)
	if err != nil {
		return err
	}
	defer func() { _ = pl.Release() }()
	if err := c.Mount(pl); err != nil {
		return err
	}

	for {
		buf := pl.Buffer()
		for ptr, ok := buf.First(); ok; ptr, ok = buf.Next(ptr) {
			body := buf.RawBody(ptr)
			if records.Tag(body[0]) != records.TagFileAttribute {
				continue
			}
			fa, derr := records.DecodeFileAttribute(body)
			if derr != nil {
				return phylumerr.New(phylumerr.Corrupt, "DirectoryTree.readAttributes", derr)
			}
			cfg.ApplyPayload(fa.Type, fa.Payload)
		}
		n, err := c.Forward(pl)
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
	}
	return nil
}
