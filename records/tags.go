// Package records implements the on-flash record layouts of spec.md §3:
// a one-byte tag identifies each record type, fields are little-endian
// and byte-packed with no alignment padding (spec.md §6), and names are
// fixed 64-byte, space-padded ASCII fields with a trailing NUL where it
// fits. This mirrors the teacher's internal/proto.Encoder/Decoder
// (little-endian cursor helpers) generalized from a wire protocol codec
// into a sector record codec.
package records

// Tag identifies a record's type, as the first byte of its body.
type Tag byte

const (
	TagSuperBlock            Tag = 1
	TagDataSectorHeader      Tag = 2
	TagDirectorySectorHeader Tag = 3
	TagFileEntry             Tag = 4
	TagFsDirectoryEntry      Tag = 5
	TagFileData              Tag = 6
	TagTreeNode              Tag = 7
	TagFileAttribute         Tag = 8
	TagFsFileEntry           Tag = 9

	// TagTreeSectorHeader and the records below extend spec.md §3's tag
	// table: the table only assigns tags to the nine record kinds it
	// documents in prose, but §4.9 and §4.10 each describe a record shape
	// (the tree sector's own prev-only header; the FreeSectorsChain's
	// chain header and its FreeSectors{head, tree_size} payload) with no
	// assigned tag. These three tags extend the table; they do not
	// deviate from it.
	TagTreeSectorHeader  Tag = 10
	TagFreeSectorsHeader Tag = 11
	TagFreeSectors       Tag = 12
)

// NameLen is the fixed width of a stored file name field (spec.md §3,
// MAX_NAME).
const NameLen = 64

// EncodeName packs name into a fixed NameLen-byte, space-padded field
// with a trailing NUL where it fits.
func EncodeName(name string) [NameLen]byte {
	var out [NameLen]byte
	for i := range out {
		out[i] = ' '
	}
	b := []byte(name)
	if len(b) > NameLen {
		b = b[:NameLen]
	}
	copy(out[:], b)
	if len(b) < NameLen {
		out[len(b)] = 0
	}
	return out
}

// DecodeName unpacks a fixed name field, trimming the NUL terminator (if
// present) and any trailing padding spaces.
func DecodeName(raw [NameLen]byte) string {
	end := NameLen
	for i, c := range raw {
		if c == 0 {
			end = i
			break
		}
	}
	s := string(raw[:end])
	// Trim trailing pad spaces that preceded the NUL (or ran to the end
	// of the field, for a name exactly NameLen bytes long).
	i := len(s)
	for i > 0 && s[i-1] == ' ' {
		i--
	}
	return s[:i]
}
