package records

import (
	"encoding/binary"

	"github.com/conservify/phylum/sectormap"
)

// TreeSectorHeader is a B+ tree sector's own header (spec.md §4.9
// "Layout per sector"): it carries only the backward link to the
// previous sector the tree allocated, not a forward pointer — node
// records aren't traversed sector-by-sector, they're addressed directly
// by NodePtr, so there is nothing for a "next" field to do.
type TreeSectorHeader struct {
	Prev sectormap.SectorID
}

func (r TreeSectorHeader) Tag() Tag { return TagTreeSectorHeader }

func (r TreeSectorHeader) Encode() []byte {
	b := make([]byte, 5)
	b[0] = byte(TagTreeSectorHeader)
	binary.LittleEndian.PutUint32(b[1:5], uint32(r.Prev))
	return b
}

func DecodeTreeSectorHeader(b []byte) (TreeSectorHeader, error) {
	if len(b) < 5 || Tag(b[0]) != TagTreeSectorHeader {
		return TreeSectorHeader{}, badTag("TreeSectorHeader", TagTreeSectorHeader, safeTag(b))
	}
	return TreeSectorHeader{Prev: sectormap.SectorID(binary.LittleEndian.Uint32(b[1:5]))}, nil
}

// FreeSectorsHeader is the chain header of a FreeSectorsChain sector
// (spec.md §4.10): FreeSectorsChain is explicitly "a SectorChain," so
// each of its sectors begins with the usual pp/np chain header, the
// same shape as DirectorySectorHeader, just under its own tag.
type FreeSectorsHeader struct {
	Prev sectormap.SectorID
	Next sectormap.SectorID
}

func (r FreeSectorsHeader) Tag() Tag { return TagFreeSectorsHeader }

func (r FreeSectorsHeader) Encode() []byte {
	b := make([]byte, 9)
	b[0] = byte(TagFreeSectorsHeader)
	binary.LittleEndian.PutUint32(b[1:5], uint32(r.Prev))
	binary.LittleEndian.PutUint32(b[5:9], uint32(r.Next))
	return b
}

func DecodeFreeSectorsHeader(b []byte) (FreeSectorsHeader, error) {
	if len(b) < 9 || Tag(b[0]) != TagFreeSectorsHeader {
		return FreeSectorsHeader{}, badTag("FreeSectorsHeader", TagFreeSectorsHeader, safeTag(b))
	}
	return FreeSectorsHeader{
		Prev: sectormap.SectorID(binary.LittleEndian.Uint32(b[1:5])),
		Next: sectormap.SectorID(binary.LittleEndian.Uint32(b[5:9])),
	}, nil
}

// FreeSectors is record tag 12: one slot of a FreeSectorsChain (spec.md
// §4.10). If TreeSize == 0, Head is the head of a reclaimable sub-chain
// of free sectors; otherwise Head is the root of a free-sectors tree of
// TreeSize nodes.
type FreeSectors struct {
	Head     sectormap.SectorID
	TreeSize uint32
}

func (r FreeSectors) Tag() Tag { return TagFreeSectors }

func (r FreeSectors) Encode() []byte {
	b := make([]byte, 9)
	b[0] = byte(TagFreeSectors)
	binary.LittleEndian.PutUint32(b[1:5], uint32(r.Head))
	binary.LittleEndian.PutUint32(b[5:9], r.TreeSize)
	return b
}

func DecodeFreeSectors(b []byte) (FreeSectors, error) {
	if len(b) < 9 || Tag(b[0]) != TagFreeSectors {
		return FreeSectors{}, badTag("FreeSectors", TagFreeSectors, safeTag(b))
	}
	return FreeSectors{
		Head:     sectormap.SectorID(binary.LittleEndian.Uint32(b[1:5])),
		TreeSize: binary.LittleEndian.Uint32(b[5:9]),
	}, nil
}
