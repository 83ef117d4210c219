package dirtree

import (
	"github.com/conservify/phylum/records"
	"github.com/conservify/phylum/tree"
)

// fsFileEntryCodec packs records.FsFileEntry as a fixed-width tree
// value. Its Encode already carries the tag byte DecodeFsFileEntry
// expects, so the codec is a thin pass-through rather than a second
// encoding.
var fsFileEntryCodec = tree.Codec[records.FsFileEntry]{
	Size: len(records.FsFileEntry{}.Encode()),
	Encode: func(v records.FsFileEntry, b []byte) {
		copy(b, v.Encode())
	},
	Decode: func(b []byte) records.FsFileEntry {
		e, _ := records.DecodeFsFileEntry(b)
		return e
	},
}
