package tree

import (
	"encoding/binary"

	"github.com/conservify/phylum/records"
	"github.com/conservify/phylum/sectormap"
)

// Codec packs a fixed-width in-memory value of type T into (and back
// out of) exactly Size bytes of a node record (spec.md §4.9: a tree
// node is "generic over (Key, Value, Order N)"). Phylum fixes the
// generic parameter with an explicit codec pair rather than a reflection-
// based encoder, so every node record for a given tree has one constant
// byte length regardless of which keys/values it currently holds — the
// same property DelimitedBuffer.RawBody's in-place edits rely on.
type Codec[T any] struct {
	Size   int
	Encode func(T, []byte)
	Decode func([]byte) T
}

// Uint32Codec is the common case for file_id keys and plain uint32
// values (e.g. a DataChain head/tail sector number stored as a tree
// value).
var Uint32Codec = Codec[uint32]{
	Size:   4,
	Encode: func(v uint32, b []byte) { binary.LittleEndian.PutUint32(b, v) },
	Decode: func(b []byte) uint32 { return binary.LittleEndian.Uint32(b) },
}

// Uint64Codec fits a byte-offset position index's keys (spec.md §4.9
// "position/record indices").
var Uint64Codec = Codec[uint64]{
	Size:   8,
	Encode: func(v uint64, b []byte) { binary.LittleEndian.PutUint64(b, v) },
	Decode: func(b []byte) uint64 { return binary.LittleEndian.Uint64(b) },
}

// NodePtrCodec lets a tree's leaf values themselves be NodePtrs (used
// when one tree indexes into nodes of another).
var NodePtrCodec = Codec[records.NodePtr]{
	Size: 8,
	Encode: func(v records.NodePtr, b []byte) {
		binary.LittleEndian.PutUint32(b[0:4], uint32(v.Sector))
		binary.LittleEndian.PutUint32(b[4:8], v.Offset)
	},
	Decode: func(b []byte) records.NodePtr {
		return records.NodePtr{
			Sector: sectormap.SectorID(binary.LittleEndian.Uint32(b[0:4])),
			Offset: binary.LittleEndian.Uint32(b[4:8]),
		}
	},
}

// SectorIDCodec fits a value that is itself just a sector number (e.g.
// a free-sectors tree's values, spec.md §4.10).
var SectorIDCodec = Codec[sectormap.SectorID]{
	Size:   4,
	Encode: func(v sectormap.SectorID, b []byte) { binary.LittleEndian.PutUint32(b, uint32(v)) },
	Decode: func(b []byte) sectormap.SectorID { return sectormap.SectorID(binary.LittleEndian.Uint32(b)) },
}
