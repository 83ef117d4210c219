package fileid_test

import (
	"hash/crc32"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conservify/phylum/fileid"
)

func TestIDMatchesCRC32(t *testing.T) {
	want := crc32.ChecksumIEEE([]byte("test.logs"))
	require.Equal(t, want, fileid.ID(nil, "test.logs"))
}

func TestTruncateIsSilent(t *testing.T) {
	long := strings.Repeat("a", 100)
	truncated := fileid.Truncate(long)
	require.Len(t, truncated, fileid.MaxName)
	require.Equal(t, strings.Repeat("a", fileid.MaxName), truncated)
}

func TestIDUsesTruncatedName(t *testing.T) {
	long := strings.Repeat("a", 100)
	require.Equal(t, fileid.ID(nil, fileid.Truncate(long)), fileid.ID(nil, long))
}
