package records

import (
	"encoding/binary"
	"fmt"

	"github.com/conservify/phylum/sectormap"
)

// Record is any value that can be stored as a DelimitedBuffer record:
// its encoded form always begins with its Tag byte.
type Record interface {
	Tag() Tag
	Encode() []byte
}

func badTag(op string, want Tag, got byte) error {
	return fmt.Errorf("%s: expected tag %d, got %d", op, want, got)
}

// SuperBlock is record tag 1: just a format version.
type SuperBlock struct {
	Version uint32
}

func (r SuperBlock) Tag() Tag { return TagSuperBlock }

func (r SuperBlock) Encode() []byte {
	b := make([]byte, 5)
	b[0] = byte(TagSuperBlock)
	binary.LittleEndian.PutUint32(b[1:], r.Version)
	return b
}

func DecodeSuperBlock(b []byte) (SuperBlock, error) {
	if len(b) < 5 || Tag(b[0]) != TagSuperBlock {
		return SuperBlock{}, badTag("SuperBlock", TagSuperBlock, safeTag(b))
	}
	return SuperBlock{Version: binary.LittleEndian.Uint32(b[1:5])}, nil
}

// DataSectorHeader is record tag 2: the chain header of a data sector,
// carrying the number of live payload bytes written into this sector.
type DataSectorHeader struct {
	Prev  sectormap.SectorID
	Next  sectormap.SectorID
	Bytes uint32
}

func (r DataSectorHeader) Tag() Tag { return TagDataSectorHeader }

func (r DataSectorHeader) Encode() []byte {
	b := make([]byte, 13)
	b[0] = byte(TagDataSectorHeader)
	binary.LittleEndian.PutUint32(b[1:5], uint32(r.Prev))
	binary.LittleEndian.PutUint32(b[5:9], uint32(r.Next))
	binary.LittleEndian.PutUint32(b[9:13], r.Bytes)
	return b
}

func DecodeDataSectorHeader(b []byte) (DataSectorHeader, error) {
	if len(b) < 13 || Tag(b[0]) != TagDataSectorHeader {
		return DataSectorHeader{}, badTag("DataSectorHeader", TagDataSectorHeader, safeTag(b))
	}
	return DataSectorHeader{
		Prev:  sectormap.SectorID(binary.LittleEndian.Uint32(b[1:5])),
		Next:  sectormap.SectorID(binary.LittleEndian.Uint32(b[5:9])),
		Bytes: binary.LittleEndian.Uint32(b[9:13]),
	}, nil
}

// DirectorySectorHeader is record tag 3: the chain header of a directory
// sector.
type DirectorySectorHeader struct {
	Prev sectormap.SectorID
	Next sectormap.SectorID
}

func (r DirectorySectorHeader) Tag() Tag { return TagDirectorySectorHeader }

func (r DirectorySectorHeader) Encode() []byte {
	b := make([]byte, 9)
	b[0] = byte(TagDirectorySectorHeader)
	binary.LittleEndian.PutUint32(b[1:5], uint32(r.Prev))
	binary.LittleEndian.PutUint32(b[5:9], uint32(r.Next))
	return b
}

func DecodeDirectorySectorHeader(b []byte) (DirectorySectorHeader, error) {
	if len(b) < 9 || Tag(b[0]) != TagDirectorySectorHeader {
		return DirectorySectorHeader{}, badTag("DirectorySectorHeader", TagDirectorySectorHeader, safeTag(b))
	}
	return DirectorySectorHeader{
		Prev: sectormap.SectorID(binary.LittleEndian.Uint32(b[1:5])),
		Next: sectormap.SectorID(binary.LittleEndian.Uint32(b[5:9])),
	}, nil
}

// FileEntry is record tag 4: a name touched into a directory chain.
type FileEntry struct {
	FileID uint32
	Flags  uint32
	Name   string
}

func (r FileEntry) Tag() Tag { return TagFileEntry }

func (r FileEntry) Encode() []byte {
	b := make([]byte, 1+4+4+NameLen)
	b[0] = byte(TagFileEntry)
	binary.LittleEndian.PutUint32(b[1:5], r.FileID)
	binary.LittleEndian.PutUint32(b[5:9], r.Flags)
	name := EncodeName(r.Name)
	copy(b[9:], name[:])
	return b
}

func DecodeFileEntry(b []byte) (FileEntry, error) {
	want := 1 + 4 + 4 + NameLen
	if len(b) < want || Tag(b[0]) != TagFileEntry {
		return FileEntry{}, badTag("FileEntry", TagFileEntry, safeTag(b))
	}
	var name [NameLen]byte
	copy(name[:], b[9:9+NameLen])
	return FileEntry{
		FileID: binary.LittleEndian.Uint32(b[1:5]),
		Flags:  binary.LittleEndian.Uint32(b[5:9]),
		Name:   DecodeName(name),
	}, nil
}

// FileData is record tag 6: either an inline payload chunk — Inline=true,
// Payload holding the bytes themselves, Size == len(Payload) — or a
// pointer to the file's promoted data chain (Inline=false, Head/Tail
// valid). Spec.md §3 invariant 3: multiple inline FileData records for
// the same file_id concatenate in chain order to form the file (until
// promotion); §8 scenario E4 shows the raw bytes living directly inside
// the directory sector's FileData record, not in a separate chain.
type FileData struct {
	FileID  uint32
	Inline  bool
	Size    uint32
	Payload []byte
	Head    sectormap.SectorID
	Tail    sectormap.SectorID
}

func (r FileData) Tag() Tag { return TagFileData }

func (r FileData) Encode() []byte {
	if r.Inline {
		b := make([]byte, 1+4+1+4+len(r.Payload))
		b[0] = byte(TagFileData)
		binary.LittleEndian.PutUint32(b[1:5], r.FileID)
		b[5] = 0
		binary.LittleEndian.PutUint32(b[6:10], uint32(len(r.Payload)))
		copy(b[10:], r.Payload)
		return b
	}
	b := make([]byte, 1+4+1+4+4)
	b[0] = byte(TagFileData)
	binary.LittleEndian.PutUint32(b[1:5], r.FileID)
	b[5] = 1
	binary.LittleEndian.PutUint32(b[6:10], uint32(r.Head))
	binary.LittleEndian.PutUint32(b[10:14], uint32(r.Tail))
	return b
}

func DecodeFileData(b []byte) (FileData, error) {
	if len(b) < 6 || Tag(b[0]) != TagFileData {
		return FileData{}, badTag("FileData", TagFileData, safeTag(b))
	}
	fd := FileData{FileID: binary.LittleEndian.Uint32(b[1:5])}
	if b[5] == 0 {
		if len(b) < 10 {
			return FileData{}, fmt.Errorf("FileData: truncated inline header")
		}
		size := binary.LittleEndian.Uint32(b[6:10])
		if len(b) < 10+int(size) {
			return FileData{}, fmt.Errorf("FileData: truncated payload")
		}
		fd.Inline = true
		fd.Size = size
		fd.Payload = make([]byte, size)
		copy(fd.Payload, b[10:10+size])
	} else {
		if len(b) < 14 {
			return FileData{}, fmt.Errorf("FileData: truncated chain pointer")
		}
		fd.Inline = false
		fd.Head = sectormap.SectorID(binary.LittleEndian.Uint32(b[6:10]))
		fd.Tail = sectormap.SectorID(binary.LittleEndian.Uint32(b[10:14]))
	}
	return fd, nil
}

// FileAttribute is record tag 8: a shadowing attribute write. Later
// records for the same (FileID, Type) win (spec.md §3 invariant 4).
type FileAttribute struct {
	FileID  uint32
	Type    byte
	Payload []byte
}

func (r FileAttribute) Tag() Tag { return TagFileAttribute }

func (r FileAttribute) Encode() []byte {
	b := make([]byte, 1+4+1+1+len(r.Payload))
	b[0] = byte(TagFileAttribute)
	binary.LittleEndian.PutUint32(b[1:5], r.FileID)
	b[5] = r.Type
	b[6] = byte(len(r.Payload))
	copy(b[7:], r.Payload)
	return b
}

func DecodeFileAttribute(b []byte) (FileAttribute, error) {
	if len(b) < 7 || Tag(b[0]) != TagFileAttribute {
		return FileAttribute{}, badTag("FileAttribute", TagFileAttribute, safeTag(b))
	}
	size := int(b[6])
	if len(b) < 7+size {
		return FileAttribute{}, fmt.Errorf("FileAttribute: truncated payload")
	}
	payload := make([]byte, size)
	copy(payload, b[7:7+size])
	return FileAttribute{
		FileID:  binary.LittleEndian.Uint32(b[1:5]),
		Type:    b[5],
		Payload: payload,
	}, nil
}

// InlineCap is the fixed inline-data buffer size spec.md §4.11 gives a
// DirectoryTree value, since a tree node's value slots are fixed-width
// and can't hold a DirectoryChain-style run of variable-length inline
// FileData records.
const InlineCap = 64

// FsFileEntry is record tag 9: the per-file descriptor stored as a
// DirectoryTree value (spec.md §4.11) — name, flags, inline-size,
// inline-data buffer, chain pointer, attribute pointer, and the two
// index-tree pointers. Inline and ChainHead/ChainTail are mutually
// exclusive the same way DirectoryChain's FileData record's own
// Inline flag is: Inline selects InlineData[:InlineLen] as the file's
// payload, otherwise ChainHead/ChainTail name its promoted DataChain.
type FsFileEntry struct {
	Name        string
	Flags       uint32
	Size        uint64
	Inline      bool
	InlineLen   uint32
	InlineData  [InlineCap]byte
	ChainHead   sectormap.SectorID
	ChainTail   sectormap.SectorID
	AttrsPtr    NodePtr
	PositionIdx NodePtr
	RecordIdx   NodePtr
}

const fsFileEntryLen = 1 + NameLen + 4 + 8 + 1 + 4 + InlineCap + 4 + 4 + (4 + 4) + (4 + 4) + (4 + 4)

func (r FsFileEntry) Tag() Tag { return TagFsFileEntry }

func (r FsFileEntry) Encode() []byte {
	b := make([]byte, fsFileEntryLen)
	o := 0
	b[o] = byte(TagFsFileEntry)
	o++
	name := EncodeName(r.Name)
	copy(b[o:], name[:])
	o += NameLen
	binary.LittleEndian.PutUint32(b[o:], r.Flags)
	o += 4
	binary.LittleEndian.PutUint64(b[o:], r.Size)
	o += 8
	if r.Inline {
		b[o] = 1
	}
	o++
	binary.LittleEndian.PutUint32(b[o:], r.InlineLen)
	o += 4
	copy(b[o:], r.InlineData[:])
	o += InlineCap
	binary.LittleEndian.PutUint32(b[o:], uint32(r.ChainHead))
	o += 4
	binary.LittleEndian.PutUint32(b[o:], uint32(r.ChainTail))
	o += 4
	o = putNodePtr(b, o, r.AttrsPtr)
	o = putNodePtr(b, o, r.PositionIdx)
	o = putNodePtr(b, o, r.RecordIdx)
	return b
}

func putNodePtr(b []byte, o int, p NodePtr) int {
	binary.LittleEndian.PutUint32(b[o:], uint32(p.Sector))
	o += 4
	binary.LittleEndian.PutUint32(b[o:], p.Offset)
	o += 4
	return o
}

func getNodePtr(b []byte, o int) (NodePtr, int) {
	p := NodePtr{
		Sector: sectormap.SectorID(binary.LittleEndian.Uint32(b[o:])),
		Offset: binary.LittleEndian.Uint32(b[o+4:]),
	}
	return p, o + 8
}

func DecodeFsFileEntry(b []byte) (FsFileEntry, error) {
	if len(b) < fsFileEntryLen || Tag(b[0]) != TagFsFileEntry {
		return FsFileEntry{}, badTag("FsFileEntry", TagFsFileEntry, safeTag(b))
	}
	o := 1
	var name [NameLen]byte
	copy(name[:], b[o:o+NameLen])
	o += NameLen
	e := FsFileEntry{Name: DecodeName(name)}
	e.Flags = binary.LittleEndian.Uint32(b[o:])
	o += 4
	e.Size = binary.LittleEndian.Uint64(b[o:])
	o += 8
	e.Inline = b[o] != 0
	o++
	e.InlineLen = binary.LittleEndian.Uint32(b[o:])
	o += 4
	copy(e.InlineData[:], b[o:o+InlineCap])
	o += InlineCap
	e.ChainHead = sectormap.SectorID(binary.LittleEndian.Uint32(b[o:]))
	o += 4
	e.ChainTail = sectormap.SectorID(binary.LittleEndian.Uint32(b[o:]))
	o += 4
	e.AttrsPtr, o = getNodePtr(b, o)
	e.PositionIdx, o = getNodePtr(b, o)
	e.RecordIdx, _ = getNodePtr(b, o)
	return e, nil
}

func safeTag(b []byte) byte {
	if len(b) == 0 {
		return 0
	}
	return b[0]
}
