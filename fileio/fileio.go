// Package fileio implements FileAppender and FileReader (spec.md §4.8):
// the byte-stream facade sitting on top of DirectoryChain and DataChain
// that decides, per flush, whether a file's payload stays inline in the
// directory chain or gets promoted into its own DataChain. Mirrors the
// teacher's WriteFileRangeD64 (internal/diskimage/d64_write.go), which
// makes the same small-file/big-file split decision before choosing
// which track/sector chain to write into.
package fileio

import (
	"github.com/conservify/phylum/buffers"
	"github.com/conservify/phylum/chain"
	"github.com/conservify/phylum/datachain"
	"github.com/conservify/phylum/dirchain"
	"github.com/conservify/phylum/phylumcfg"
	"github.com/conservify/phylum/sectormap"
	"github.com/conservify/phylum/trace"
)

// FileAppender is spec.md §4.8's FileAppender: a private scratch buffer
// of S bytes plus a (possibly not-yet-created) DataChain for the file's
// promoted payload.
//
// Back-references (spec.md §9): FileAppender borrows its DirectoryChain
// and shares the same SectorMap/WorkingBuffers/Allocator a DataChain it
// may create would need — passed in by the caller, never owned.
type FileAppender struct {
	dir       *dirchain.DirectoryChain
	sm        sectormap.SectorMap
	wb        *buffers.WorkingBuffers
	allocator *chain.Allocator
	tr        *trace.Context

	fileID uint32
	cfg    *phylumcfg.OpenFileConfig

	scratch    []byte
	scratchPos int

	data      *datachain.DataChain
	dataValid bool
}

// New constructs a FileAppender for fileID, writing through dir, with a
// scratch buffer of scratchSize bytes (spec.md §8 scenarios use
// scratchSize == S, the sector size). cfg may be nil if the caller
// doesn't care about attribute bookkeeping.
func New(dir *dirchain.DirectoryChain, sm sectormap.SectorMap, wb *buffers.WorkingBuffers, allocator *chain.Allocator, fileID uint32, scratchSize int, cfg *phylumcfg.OpenFileConfig) *FileAppender {
	return &FileAppender{
		dir:       dir,
		sm:        sm,
		wb:        wb,
		allocator: allocator,
		fileID:    fileID,
		cfg:       cfg,
		scratch:   make([]byte, scratchSize),
	}
}

// Resume adopts an already-promoted data chain (chainHead != Invalid),
// for reopening a file that was promoted in an earlier session.
func (a *FileAppender) Resume(chainHead, chainTail sectormap.SectorID) error {
	if chainHead == sectormap.Invalid {
		return nil
	}
	a.data = datachain.New(a.sm, a.wb, a.allocator, chainHead, chainTail)
	if a.tr != nil {
		a.data.WithTrace(a.tr)
	}
	if err := a.data.Mount(); err != nil {
		return err
	}
	if err := a.data.Resume(); err != nil {
		return err
	}
	a.dataValid = true
	return nil
}

// WithTrace attaches a tracing context.
func (a *FileAppender) WithTrace(tr *trace.Context) *FileAppender {
	a.tr = tr
	a.dir.WithTrace(tr)
	if a.data != nil {
		a.data.WithTrace(tr)
	}
	return a
}

// Write copies bytes into the scratch buffer, flushing whenever it
// fills, and returns the number of bytes accepted (spec.md §4.8 write).
// A failed flush leaves the scratch buffer unchanged so the caller can
// safely retry (spec.md §7 "user visibility").
func (a *FileAppender) Write(data []byte) (int, error) {
	written := 0
	for len(data) > 0 {
		room := len(a.scratch) - a.scratchPos
		n := copy(a.scratch[a.scratchPos:], data[:minInt(room, len(data))])
		a.scratchPos += n
		written += n
		data = data[n:]
		if a.scratchPos == len(a.scratch) {
			if err := a.Flush(); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Flush implements spec.md §4.8's three-way promotion decision.
func (a *FileAppender) Flush() error {
	if a.scratchPos == 0 {
		return nil
	}
	switch {
	case a.dataValid:
		if _, err := a.data.Write(a.scratch[:a.scratchPos]); err != nil {
			return err
		}
	case a.scratchPos < len(a.scratch)/2:
		if err := a.dir.FileData(a.fileID, append([]byte(nil), a.scratch[:a.scratchPos]...)); err != nil {
			return err
		}
	default:
		if err := a.promote(); err != nil {
			return err
		}
	}
	a.scratchPos = 0
	return nil
}

// promote creates the file's data chain, migrates every prior inline
// FileData payload into it, writes the current scratch bytes, and
// records the new chain in the directory (spec.md §4.8 flush, "promote"
// branch).
func (a *FileAppender) promote() error {
	head, err := a.allocator.Allocate()
	if err != nil {
		return err
	}
	dc := datachain.New(a.sm, a.wb, a.allocator, head, head)
	if a.tr != nil {
		dc.WithTrace(a.tr)
	}
	if err := dc.Format(); err != nil {
		return err
	}

	if err := a.dir.Read(a.fileID, func(payload []byte) error {
		_, werr := dc.Write(payload)
		return werr
	}); err != nil {
		_ = dc.Close()
		return err
	}

	if _, err := dc.Write(a.scratch[:a.scratchPos]); err != nil {
		_ = dc.Close()
		return err
	}

	if err := a.dir.FileChain(a.fileID, dc.Head(), dc.Tail()); err != nil {
		_ = dc.Close()
		return err
	}

	a.data = dc
	a.dataValid = true
	return nil
}

// Close flushes any buffered bytes, then emits dirty attribute records
// and clears their dirty bits (spec.md §4.8 close).
func (a *FileAppender) Close() error {
	if err := a.Flush(); err != nil {
		return err
	}
	if a.cfg != nil {
		dirty := a.cfg.DirtyAttributes()
		if len(dirty) > 0 {
			if err := a.dir.FileAttributes(a.fileID, dirty); err != nil {
				return err
			}
			a.cfg.ClearDirty()
		}
	}
	if a.data != nil {
		return a.data.Close()
	}
	return nil
}

// U32 reads an open-file attribute slot as a 4-byte integer (spec.md
// §4.8 u32(type)).
func (a *FileAppender) U32(attrType byte) (uint32, bool) {
	if a.cfg == nil {
		return 0, false
	}
	return a.cfg.U32(attrType)
}

// SetU32 writes an open-file attribute slot, marking it dirty on change
// (spec.md §4.8 u32(type, value)).
func (a *FileAppender) SetU32(attrType byte, value uint32) {
	if a.cfg == nil {
		return
	}
	a.cfg.SetU32(attrType, value)
}

// FileReader is the read-side counterpart of FileAppender: a sequential
// byte-stream facade over either a file's inline FileData payloads or
// its promoted DataChain, whichever DirectoryChain.Open reports.
type FileReader struct {
	data     *datachain.DataChain
	useChain bool
	inline   []byte
	pos      int
}

// NewReader opens fileID for reading. If chainHead is Invalid the file's
// bytes are the concatenation of its inline FileData payloads, collected
// eagerly via dir.Read; otherwise reads are served from the DataChain.
func NewReader(dir *dirchain.DirectoryChain, sm sectormap.SectorMap, wb *buffers.WorkingBuffers, allocator *chain.Allocator, fileID uint32, chainHead, chainTail sectormap.SectorID) (*FileReader, error) {
	if chainHead == sectormap.Invalid {
		var inline []byte
		if err := dir.Read(fileID, func(payload []byte) error {
			inline = append(inline, payload...)
			return nil
		}); err != nil {
			return nil, err
		}
		return &FileReader{inline: inline}, nil
	}

	dc := datachain.New(sm, wb, allocator, chainHead, chainTail)
	if err := dc.Mount(); err != nil {
		return nil, err
	}
	if err := dc.SeekToStart(); err != nil {
		_ = dc.Close()
		return nil, err
	}
	return &FileReader{data: dc, useChain: true}, nil
}

// Read copies up to len(dst) bytes from the current position, returning
// 0, nil at end of file.
func (r *FileReader) Read(dst []byte) (int, error) {
	if r.useChain {
		return r.data.Read(dst)
	}
	n := copy(dst, r.inline[r.pos:])
	r.pos += n
	return n, nil
}

// Close releases any held page-lock.
func (r *FileReader) Close() error {
	if r.useChain {
		return r.data.Close()
	}
	return nil
}
