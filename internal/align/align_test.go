package align

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yamrom/smash-paper/internal/chrmap"
	"github.com/yamrom/smash-paper/internal/reference"
	"github.com/yamrom/smash-paper/internal/traverse"
)

func loadRef(t *testing.T, fasta string, rcref bool) *reference.Reference {
	t.Helper()
	ref, err := reference.Load(strings.NewReader(fasta), reference.Opts{RCRef: rcref})
	require.NoError(t, err)
	return ref
}

// Singleton hit from spec.md's worked example: R = "acgtacgtn$", Q = "gta"
// matching exactly at ref_pos=2, so Resolve should report no clipping.
func TestResolveForwardNoRCRef(t *testing.T) {
	ref := loadRef(t, ">a\nacgtacgtn\n", false)
	cm := chrmap.New(ref, false)

	m := traverse.Match{Ref: 2, Query: 0, Len: 3}
	a, err := Resolve(m, 3, cm, false)
	require.NoError(t, err)

	assert.Equal(t, 0, a.SeqIndex)
	assert.Equal(t, int64(2), a.Pos)
	assert.False(t, a.RC)
	assert.Equal(t, uint64(0), a.Prefix)
	assert.Equal(t, uint64(0), a.Suffix)
}

// Reverse-complement symmetry (spec.md §8 item 9): a forward hit at (k, p)
// surfaces on the rc half at the flipped position length[k]-p-|Q|, and
// Resolve must fold it back to (k, p) with RC set.
func TestResolveFoldsRCHalfBackToForwardCoordinates(t *testing.T) {
	ref := loadRef(t, ">chr1\nacgt\n", true)
	cm := chrmap.New(ref, false)
	require.Equal(t, 2, cm.Len())

	// Forward occurrence of the full sequence at (chr1, 0).
	fwd := traverse.Match{Ref: ref.StartOffset[0], Query: 0, Len: 4}
	af, err := Resolve(fwd, 4, cm, true)
	require.NoError(t, err)
	assert.Equal(t, 0, af.SeqIndex)
	assert.Equal(t, int64(0), af.Pos)
	assert.False(t, af.RC)

	// The matching rc-half occurrence folds back onto the same coordinates.
	rc := traverse.Match{Ref: ref.StartOffset[1], Query: 0, Len: 4}
	ar, err := Resolve(rc, 4, cm, true)
	require.NoError(t, err)
	assert.Equal(t, 0, ar.SeqIndex)
	assert.Equal(t, int64(0), ar.Pos)
	assert.True(t, ar.RC)
}

func TestPrepareMatchesBuildsExactCigarAndCountsMatchedBases(t *testing.T) {
	ref := loadRef(t, ">a\nacgtacgtn\n", false)
	cm := chrmap.New(ref, false)

	m := traverse.Match{Ref: 2, Query: 0, Len: 3}
	a, err := Resolve(m, 3, cm, false)
	require.NoError(t, err)

	sorted, primary, n := PrepareMatches([]*Alignment{a}, []byte("gta"), ref.Bases, 0)
	require.Len(t, sorted, 1)
	assert.Same(t, a, primary)
	assert.Equal(t, uint64(1), n)
	assert.Equal(t, "3=", a.Cigar)
	assert.Equal(t, uint64(3), a.NMatchedBases)
	assert.Equal(t, uint64(3), a.NUniqueBases)
}

func TestPrepareMatchesDropsNegativePosition(t *testing.T) {
	a := &Alignment{Pos: -1, RCPos: 0, SeqIndex: 0, Length: 1}
	sorted, primary, n := PrepareMatches([]*Alignment{a}, []byte("a"), []byte("aa"), 0)
	assert.Nil(t, sorted)
	assert.Nil(t, primary)
	assert.Equal(t, uint64(0), n)
}

func TestPrepareMatchesMinBlockDemotesShortPlacements(t *testing.T) {
	a1 := &Alignment{Pos: 0, RCPos: 0, SeqIndex: 0, Length: 1}
	a2 := &Alignment{Pos: 0, RCPos: 1, SeqIndex: 1, Length: 1}
	query := []byte("a")
	ref := []byte("aa")

	_, _, n := PrepareMatches([]*Alignment{a1, a2}, query, ref, 2)
	assert.Equal(t, uint64(0), n)
	assert.Equal(t, uint64(0), a1.NMatches)
	assert.Equal(t, uint64(0), a2.NMatches)
}

func TestSetMateLinksBestMateUnlessMateUnmapped(t *testing.T) {
	mate := &Alignment{SeqIndex: 1}
	reads := []*Alignment{{SeqIndex: 0}, {SeqIndex: 0}}

	SetMate(reads, mate, false)
	for _, r := range reads {
		assert.Same(t, mate, r.BestMate)
	}

	other := []*Alignment{{SeqIndex: 0}}
	SetMate(other, mate, true)
	assert.Nil(t, other[0].BestMate)
}
