package records_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conservify/phylum/records"
	"github.com/conservify/phylum/sectormap"
)

func TestNameRoundTripPadding(t *testing.T) {
	cases := []string{"", "a", "test.logs", string(make([]byte, records.NameLen))}
	for _, name := range cases {
		encoded := records.EncodeName(name)
		got := records.DecodeName(encoded)
		if name == string(make([]byte, records.NameLen)) {
			// all-NUL input decodes to empty string.
			require.Equal(t, "", got)
			continue
		}
		require.Equal(t, name, got)
	}
}

func TestFileEntryRoundTrip(t *testing.T) {
	in := records.FileEntry{FileID: 0xdeadbeef, Flags: 3, Name: "data.txt"}
	out, err := records.DecodeFileEntry(in.Encode())
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestFileDataInlineAndChainRoundTrip(t *testing.T) {
	payload := []byte("Hello, world! How are you!")
	inline := records.FileData{FileID: 1, Inline: true, Size: uint32(len(payload)), Payload: payload}
	out, err := records.DecodeFileData(inline.Encode())
	require.NoError(t, err)
	require.Equal(t, inline, out)

	chained := records.FileData{FileID: 1, Inline: false, Head: 1, Tail: 2}
	out2, err := records.DecodeFileData(chained.Encode())
	require.NoError(t, err)
	require.Equal(t, chained, out2)
}

func TestFileAttributeRoundTrip(t *testing.T) {
	in := records.FileAttribute{FileID: 9, Type: 2, Payload: []byte{1, 2, 3, 4}}
	out, err := records.DecodeFileAttribute(in.Encode())
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestDataSectorHeaderRoundTrip(t *testing.T) {
	in := records.DataSectorHeader{Prev: sectormap.Invalid, Next: 5, Bytes: 254}
	out, err := records.DecodeDataSectorHeader(in.Encode())
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestFsFileEntryRoundTrip(t *testing.T) {
	in := records.FsFileEntry{
		Name:      "readme.md",
		Flags:     1,
		Size:      1024,
		ChainHead: 3,
		ChainTail: 4,
		AttrsPtr:  records.NodePtr{Sector: 10, Offset: 20},
	}
	out, err := records.DecodeFsFileEntry(in.Encode())
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestDecodeRejectsWrongTag(t *testing.T) {
	fe := records.FileEntry{FileID: 1, Name: "x"}.Encode()
	_, err := records.DecodeFileAttribute(fe)
	require.Error(t, err)
}
