// Package phylum ties the lower-level packages into the Volume facade
// spec.md's module map calls for: format/mount a SectorMap, then create,
// open, and stat named files through DirectoryChain + FileAppender/
// FileReader, with the sector allocator wired to FreeSectorsChain for
// reclamation and an optional tree-backed DirectoryTree available for
// callers that want the alternative directory backend (spec.md §4.11).
package phylum

import (
	"github.com/conservify/phylum/buffers"
	"github.com/conservify/phylum/chain"
	"github.com/conservify/phylum/delim"
	"github.com/conservify/phylum/dirchain"
	"github.com/conservify/phylum/dirtree"
	"github.com/conservify/phylum/fileio"
	"github.com/conservify/phylum/freechain"
	"github.com/conservify/phylum/metrics"
	"github.com/conservify/phylum/phylumcfg"
	"github.com/conservify/phylum/phylumerr"
	"github.com/conservify/phylum/records"
	"github.com/conservify/phylum/sectormap"
	"github.com/conservify/phylum/trace"
)

// Fixed sector numbers a fresh volume reserves before the allocator hands
// out its first dynamic sector (spec.md leaves superblock/directory/
// free-chain placement to the implementation; Phylum fixes them at 0/1/2
// the way a real deployment would hard-code its bootstrap layout).
const (
	SuperblockSector    = sectormap.SectorID(0)
	DirectoryHeadSector = sectormap.SectorID(1)
	FreeChainHeadSector = sectormap.SectorID(2)

	superBlockVersion = 1
)

// Volume is the root facade: one mounted (or freshly formatted) Phylum
// file system over a SectorMap.
type Volume struct {
	sm    sectormap.SectorMap
	wb    *buffers.WorkingBuffers
	alloc *chain.Allocator
	free  *freechain.FreeSectorsChain
	dir   *dirchain.DirectoryChain
	cfg   *phylumcfg.Config
	tr    *trace.Context
	mtr   *metrics.Collectors
}

func writeSuperblock(sm sectormap.SectorMap, wb *buffers.WorkingBuffers) error {
	pl, err := delim.Overwrite(sm, wb, SuperblockSector)
	if err != nil {
		return err
	}
	defer func() { _ = pl.Release() }()
	rec := records.SuperBlock{Version: superBlockVersion}
	if _, err := pl.Buffer().AppendRecord(rec); err != nil {
		return err
	}
	pl.Dirty()
	return pl.Flush()
}

func readSuperblock(sm sectormap.SectorMap, wb *buffers.WorkingBuffers) error {
	pl, err := delim.Reading(sm, wb, SuperblockSector)
	if err != nil {
		return err
	}
	defer func() { _ = pl.Release() }()
	ptr, ok := pl.Buffer().First()
	if !ok {
		return phylumerr.New(phylumerr.Corrupt, "Volume.Mount", nil)
	}
	if _, err := records.DecodeSuperBlock(pl.Buffer().RawBody(ptr)); err != nil {
		return phylumerr.New(phylumerr.Corrupt, "Volume.Mount", err)
	}
	return nil
}

// Format initializes a brand-new volume on sm: a superblock, an empty
// directory chain, and an empty free-sectors chain, each at its fixed
// sector. cfg may be nil to take phylumcfg.Default().
func Format(sm sectormap.SectorMap, cfg *phylumcfg.Config) (*Volume, error) {
	if cfg == nil {
		cfg = phylumcfg.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	wb := buffers.New(cfg.SectorSize, cfg.BufferCapacity)

	if err := writeSuperblock(sm, wb); err != nil {
		return nil, err
	}

	// bootstrap never allocates — Chain.Format only writes a header and
	// flushes — it exists solely so dirchain/freechain's constructors have
	// an Allocator to hold, before the real one's counter is seeded past
	// these three reserved sectors. The chains built on it are closed
	// before Format returns; the returned Volume comes from Mount.
	bootstrap, err := chain.NewAllocator(sm)
	if err != nil {
		return nil, err
	}

	dir := dirchain.New(sm, wb, bootstrap, DirectoryHeadSector, DirectoryHeadSector)
	if err := dir.Format(); err != nil {
		return nil, err
	}

	free := freechain.New(sm, wb, bootstrap, FreeChainHeadSector, FreeChainHeadSector)
	if err := free.Format(); err != nil {
		_ = dir.Close()
		return nil, err
	}

	derr := dir.Close()
	ferr := free.Close()
	if derr != nil {
		return nil, derr
	}
	if ferr != nil {
		return nil, ferr
	}
	return Mount(sm, cfg)
}

// Mount opens an already-formatted volume. cfg must describe the same
// tunables the volume was formatted with (sector size in particular —
// there is no on-flash record of it).
func Mount(sm sectormap.SectorMap, cfg *phylumcfg.Config) (*Volume, error) {
	if cfg == nil {
		cfg = phylumcfg.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	wb := buffers.New(cfg.SectorSize, cfg.BufferCapacity)

	if err := readSuperblock(sm, wb); err != nil {
		return nil, err
	}

	alloc, err := chain.NewAllocator(sm)
	if err != nil {
		return nil, err
	}

	dir := dirchain.New(sm, wb, alloc, DirectoryHeadSector, DirectoryHeadSector)
	if err := dir.Mount(); err != nil {
		return nil, err
	}

	free := freechain.New(sm, wb, alloc, FreeChainHeadSector, FreeChainHeadSector)
	if err := free.Mount(); err != nil {
		_ = dir.Close()
		return nil, err
	}
	alloc.WithReclaimer(free)

	return &Volume{sm: sm, wb: wb, alloc: alloc, free: free, dir: dir, cfg: cfg, tr: trace.Background()}, nil
}

// WithTrace attaches a tracing context to the volume and everything it
// already constructed.
func (v *Volume) WithTrace(tr *trace.Context) *Volume {
	v.tr = tr
	v.dir.WithTrace(tr)
	v.free.WithTrace(tr)
	return v
}

// WithMetrics attaches Prometheus collectors to the volume's allocator
// and working-buffer pool.
func (v *Volume) WithMetrics(m *metrics.Collectors) *Volume {
	v.mtr = m
	v.wb.WithMetrics(m)
	v.alloc.WithMetrics(m)
	return v
}

// Close flushes and releases the volume's held page-locks.
func (v *Volume) Close() error {
	ferr := v.free.Close()
	derr := v.dir.Close()
	if ferr != nil {
		return ferr
	}
	return derr
}

// Create touches name in the directory and returns a FileAppender ready
// to receive writes. If name already exists, the touch appends another
// FileEntry with the same id and the file's existing data is kept.
func (v *Volume) Create(name string) (*fileio.FileAppender, error) {
	id, err := v.dir.Touch(name)
	if err != nil {
		return nil, err
	}
	cfg := phylumcfg.NewOpenFileConfig()
	fa := fileio.New(v.dir, v.sm, v.wb, v.alloc, id, v.cfg.SectorSize, cfg)
	if v.tr != nil {
		fa.WithTrace(v.tr)
	}
	return fa, nil
}

// Open looks up name and returns a FileReader over its current content,
// inline or chained.
func (v *Volume) Open(name string) (*fileio.FileReader, error) {
	cfg := phylumcfg.NewOpenFileConfig()
	n, err := v.dir.Find(name, cfg)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, phylumerr.New(phylumerr.NotFound, "Volume.Open", nil)
	}
	id, _, chainHead, chainTail, ok := v.dir.Open()
	if !ok {
		return nil, phylumerr.New(phylumerr.NotFound, "Volume.Open", nil)
	}
	return fileio.NewReader(v.dir, v.sm, v.wb, v.alloc, id, chainHead, chainTail)
}

// Stat reports whether name exists live and its total byte size.
func (v *Volume) Stat(name string) (size uint64, ok bool, err error) {
	n, err := v.dir.Find(name, nil)
	if err != nil {
		return 0, false, err
	}
	if n == 0 {
		return 0, false, nil
	}
	_, sz, _, _, found := v.dir.Open()
	return sz, found, nil
}

// NewDirectoryTree builds a tree-backed DirectoryTree sharing the
// volume's SectorMap, WorkingBuffers, and Allocator — the alternative
// directory backend of spec.md §4.11, available alongside the
// DirectoryChain every volume mounts by default. Each of its node records
// holds order+1 FsFileEntry slots (1283 bytes at order 6), so the volume's
// sector size has to fit one such record; with 256-byte sectors the
// tree's Format fails with BufferFull.
func (v *Volume) NewDirectoryTree(order int) *dirtree.DirectoryTree {
	return dirtree.New(v.sm, v.wb, v.alloc, order)
}

// Allocator exposes the shared sector allocator, for callers building
// their own chains or trees against this volume.
func (v *Volume) Allocator() *chain.Allocator { return v.alloc }

// SectorMap exposes the shared SectorMap.
func (v *Volume) SectorMap() sectormap.SectorMap { return v.sm }

// WorkingBuffers exposes the shared working-buffer pool.
func (v *Volume) WorkingBuffers() *buffers.WorkingBuffers { return v.wb }

// FreeChain exposes the volume's free-sectors chain, for callers that
// want to reclaim sectors outside of the allocator's own consultation
// (e.g. truncation or unlink, not yet a named Volume operation).
func (v *Volume) FreeChain() *freechain.FreeSectorsChain { return v.free }
