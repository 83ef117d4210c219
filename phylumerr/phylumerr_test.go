package phylumerr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conservify/phylum/phylumerr"
)

func TestIsMatchesKind(t *testing.T) {
	err := phylumerr.New(phylumerr.NotFound, "DirectoryChain.find", nil)
	require.True(t, errors.Is(err, phylumerr.NotFound))
	require.False(t, errors.Is(err, phylumerr.Corrupt))
}

func TestOfUnwrapsWrappedCause(t *testing.T) {
	cause := errors.New("short read")
	err := phylumerr.New(phylumerr.IoError, "SectorMap.read", cause)

	kind, ok := phylumerr.Of(err)
	require.True(t, ok)
	require.Equal(t, phylumerr.IoError, kind)
	require.ErrorIs(t, err, cause)
}

func TestOfFalseForForeignError(t *testing.T) {
	_, ok := phylumerr.Of(errors.New("plain"))
	require.False(t, ok)
}
