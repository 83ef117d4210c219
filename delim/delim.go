// Package delim implements DelimitedBuffer (spec.md §4.3): the
// in-memory view of one sector as an iterable, varint-length-delimited
// record stream, plus the PageLock (spec.md §4.4) that scopes a
// DelimitedBuffer to a borrowed working buffer bound to one sector.
package delim

import (
	"github.com/conservify/phylum/phylumerr"
	"github.com/conservify/phylum/records"
	"github.com/conservify/phylum/varint"
)

// RecordPtr locates one record within a DelimitedBuffer: Position is the
// offset of the varint length prefix; PrefixLen and BodyLen split the
// record's total encoded size.
type RecordPtr struct {
	Position  int
	PrefixLen int
	BodyLen   int
}

// End returns the offset one past the record's body — where the next
// record's prefix (or the terminator) begins.
func (p RecordPtr) End() int { return p.Position + p.PrefixLen + p.BodyLen }

// BodyStart returns the offset of the record's body, after its prefix.
func (p RecordPtr) BodyStart() int { return p.Position + p.PrefixLen }

// DelimitedBuffer wraps a sector-sized byte slice holding a sequence of
// varint(len) || body records, as described in spec.md §3/§4.3. It does
// not own the backing slice — that belongs to whatever buffers.Buffer or
// PageLock lent it.
type DelimitedBuffer struct {
	buf    []byte
	pos    int
	length int // effective length; <= len(buf)
}

// New wraps buf (normally exactly one sector long) as a fresh
// DelimitedBuffer positioned at the start.
func New(buf []byte) *DelimitedBuffer {
	return &DelimitedBuffer{buf: buf, pos: 0, length: len(buf)}
}

// Bytes returns the full backing slice (sector length), regardless of
// any active Constrain.
func (db *DelimitedBuffer) Bytes() []byte { return db.buf }

// Position returns the current cursor offset.
func (db *DelimitedBuffer) Position() int { return db.pos }

// SeekTo moves the cursor to an absolute offset.
func (db *DelimitedBuffer) SeekTo(pos int) { db.pos = pos }

// Advance moves the cursor forward by n bytes (datachain's WriteHeader
// uses it to step past the one terminator byte it writes after a
// data-sector header).
func (db *DelimitedBuffer) Advance(n int) { db.pos += n }

// Length returns the effective buffer length (sector size unless
// Constrain has narrowed it).
func (db *DelimitedBuffer) Length() int { return db.length }

// Constrain reduces the effective buffer length to the current position
// plus n, for bounded reads inside a data sector (spec.md §4.3/§4.7).
func (db *DelimitedBuffer) Constrain(n int) {
	lim := db.pos + n
	if lim > len(db.buf) {
		lim = len(db.buf)
	}
	db.length = lim
}

// Unconstrain restores the effective length to the full backing slice.
func (db *DelimitedBuffer) Unconstrain() { db.length = len(db.buf) }

// RoomFor reports whether a body of bodyLen bytes fits at the current
// position: position + varint_len(bodyLen) + bodyLen <= effective length
// (spec.md §4.3 invariant).
func (db *DelimitedBuffer) RoomFor(bodyLen int) bool {
	need := varint.Len(uint32(bodyLen)) + bodyLen
	return db.pos+need <= db.length
}

// Remaining returns the number of free bytes between the cursor and the
// effective end of the buffer.
func (db *DelimitedBuffer) Remaining() int {
	if db.pos >= db.length {
		return 0
	}
	return db.length - db.pos
}

// AppendRecord writes rec's tag-prefixed body as a new record at the
// current position and advances past it. It fails with BufferFull if the
// encoded body does not fit (spec.md §4.3).
func (db *DelimitedBuffer) AppendRecord(rec records.Record) (RecordPtr, error) {
	return db.AppendBytes(rec.Encode())
}

// AppendBytes writes an already-encoded record body (tag byte included)
// as a new record.
func (db *DelimitedBuffer) AppendBytes(body []byte) (RecordPtr, error) {
	if !db.RoomFor(len(body)) {
		return RecordPtr{}, phylumerr.New(phylumerr.BufferFull, "DelimitedBuffer.AppendBytes", nil)
	}
	start := db.pos
	var prefix [varint.MaxLen]byte
	encoded := varint.Encode(prefix[:0], uint32(len(body)))
	prefixLen := len(encoded)
	copy(db.buf[start:], encoded)
	copy(db.buf[start+prefixLen:], body)
	db.pos = start + prefixLen + len(body)
	return RecordPtr{Position: start, PrefixLen: prefixLen, BodyLen: len(body)}, nil
}

// Terminate writes a zero-length delimiter at the current position,
// marking the end of live records (spec.md §3). It does not advance the
// cursor, so a subsequent Append overwrites the terminator, as expected.
func (db *DelimitedBuffer) Terminate() error {
	if db.pos >= len(db.buf) {
		return phylumerr.New(phylumerr.BufferFull, "DelimitedBuffer.Terminate", nil)
	}
	db.buf[db.pos] = 0
	return nil
}

// First returns the record at position 0, ok=false if the buffer is
// empty (a terminator sits at position 0).
func (db *DelimitedBuffer) First() (RecordPtr, bool) {
	return db.recordAt(0)
}

// Next returns the record immediately following cur, ok=false at the
// terminator or the end of the effective buffer.
func (db *DelimitedBuffer) Next(cur RecordPtr) (RecordPtr, bool) {
	return db.recordAt(cur.End())
}

func (db *DelimitedBuffer) recordAt(pos int) (RecordPtr, bool) {
	if pos < 0 || pos >= db.length {
		return RecordPtr{}, false
	}
	l, n, ok := varint.Decode(db.buf[pos:db.length])
	if !ok || l == 0 {
		return RecordPtr{}, false
	}
	if pos+n+int(l) > db.length {
		return RecordPtr{}, false
	}
	return RecordPtr{Position: pos, PrefixLen: n, BodyLen: int(l)}, true
}

// RecordAt decodes the record whose length-prefix begins at the given
// absolute offset, independent of the effective (Constrain-bounded)
// Length() — used by the B+ tree to re-resolve a node_ptr offset after
// a Replace swaps a different sector into the buffer (spec.md §9:
// find_node_in_sector).
func (db *DelimitedBuffer) RecordAt(pos int) (RecordPtr, error) {
	if pos < 0 || pos >= len(db.buf) {
		return RecordPtr{}, phylumerr.New(phylumerr.Corrupt, "DelimitedBuffer.RecordAt", nil)
	}
	l, n, ok := varint.Decode(db.buf[pos:])
	if !ok || l == 0 {
		return RecordPtr{}, phylumerr.New(phylumerr.Corrupt, "DelimitedBuffer.RecordAt", nil)
	}
	if pos+n+int(l) > len(db.buf) {
		return RecordPtr{}, phylumerr.New(phylumerr.Corrupt, "DelimitedBuffer.RecordAt", nil)
	}
	return RecordPtr{Position: pos, PrefixLen: n, BodyLen: int(l)}, nil
}

// All walks every live record from position 0 until the terminator or
// the end of the effective buffer (spec.md §4.3's begin()/end()
// iteration).
func (db *DelimitedBuffer) All() []RecordPtr {
	var out []RecordPtr
	ptr, ok := db.First()
	for ok {
		out = append(out, ptr)
		ptr, ok = db.Next(ptr)
	}
	return out
}

// SeekEndOfBuffer walks every live record and positions the cursor right
// after the last one (spec.md §4.3 seek_end()), ready for the next
// Append.
func (db *DelimitedBuffer) SeekEndOfBuffer() {
	all := db.All()
	if len(all) == 0 {
		db.pos = 0
		return
	}
	db.pos = all[len(all)-1].End()
}

// RawBody returns a mutable slice directly into the backing buffer for
// ptr's body bytes, letting a caller decode, mutate, and re-encode a
// fixed-size record in place (spec.md §4.3 as_mutable<T>, used by
// tree-node edits and write_header<T>).
func (db *DelimitedBuffer) RawBody(ptr RecordPtr) []byte {
	return db.buf[ptr.BodyStart() : ptr.BodyStart()+ptr.BodyLen]
}

// WriteBytes copies as much of src as fits before the effective length,
// advancing the cursor by the amount copied. Used for raw (non-record)
// data-chain payload bytes (spec.md §4.7).
func (db *DelimitedBuffer) WriteBytes(src []byte) int {
	n := copy(db.buf[db.pos:db.length], src)
	db.pos += n
	return n
}

// ReadBytes copies into dst from the cursor, bounded by the effective
// length, advancing the cursor by the amount copied.
func (db *DelimitedBuffer) ReadBytes(dst []byte) int {
	if db.pos >= db.length {
		return 0
	}
	n := copy(dst, db.buf[db.pos:db.length])
	db.pos += n
	return n
}
