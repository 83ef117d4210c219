package records

import "github.com/conservify/phylum/sectormap"

// NodePtr identifies a B+ tree node record across the whole tree
// (spec.md §4.9): the sector it lives in, plus its record offset within
// that sector's DelimitedBuffer.
type NodePtr struct {
	Sector sectormap.SectorID
	Offset uint32
}

// InvalidNodePtr is the zero value's "no node" sentinel.
var InvalidNodePtr = NodePtr{Sector: sectormap.Invalid, Offset: 0}

func (p NodePtr) IsValid() bool { return p.Sector != sectormap.Invalid }
