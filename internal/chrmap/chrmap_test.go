package chrmap

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yamrom/smash-paper/internal/reference"
	"github.com/yamrom/smash-paper/internal/xerrors"
)

func loadRef(t *testing.T, fasta string, rcref bool) *reference.Reference {
	t.Helper()
	ref, err := reference.Load(strings.NewReader(fasta), reference.Opts{RCRef: rcref})
	require.NoError(t, err)
	return ref
}

func TestNewAndNameIndexRoundTrip(t *testing.T) {
	ref := loadRef(t, ">chr1\nacgt\n>chr2\ntttt\n", false)
	m := New(ref, false)
	require.Equal(t, 2, m.Len())

	idx, err := m.Index("chr2")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, "chr2", m.Name(idx))
}

func TestIndexUnknownChromosome(t *testing.T) {
	ref := loadRef(t, ">chr1\nacgt\n", false)
	m := New(ref, false)
	_, err := m.Index("chrZ")
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, xerrors.UnknownChromosome))
}

func TestAggressiveFilterDropsUnderscoreAndM(t *testing.T) {
	ref := loadRef(t, ">chr1\nacgt\n>chr1_random\nacgt\n>chrM\nacgt\n", false)
	m := New(ref, true)
	require.Equal(t, 1, m.Len())
	assert.Equal(t, "chr1", m.Name(0))
}

func TestResolveMapsAbsolutePositionBackToSequence(t *testing.T) {
	// "chr1" -> acgt(4)+sep, "chr2" -> tttt(4)
	ref := loadRef(t, ">chr1\nacgt\n>chr2\ntttt\n", false)
	m := New(ref, false)

	name, off, err := m.Resolve(0)
	require.NoError(t, err)
	assert.Equal(t, "chr1", name)
	assert.Equal(t, uint64(0), off)

	name, off, err = m.Resolve(3)
	require.NoError(t, err)
	assert.Equal(t, "chr1", name)
	assert.Equal(t, uint64(3), off)

	name, off, err = m.Resolve(5) // start of chr2, past the separator byte
	require.NoError(t, err)
	assert.Equal(t, "chr2", name)
	assert.Equal(t, uint64(0), off)
}

func TestResolvePastEndOfSequenceIsRangeError(t *testing.T) {
	ref := loadRef(t, ">chr1\nacgt\n", false)
	m := New(ref, false)
	_, _, err := m.Resolve(100)
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, xerrors.RangeError))
}

func TestResolveIndexOnRCRefPairs(t *testing.T) {
	ref := loadRef(t, ">chr1\nacgt\n", true)
	m := New(ref, false)
	require.Equal(t, 2, m.Len())

	idx, off, err := m.ResolveIndex(ref.StartOffset[1])
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, uint64(0), off)
}
