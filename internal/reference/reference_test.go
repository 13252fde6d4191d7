package reference

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSingleRecord(t *testing.T) {
	fasta := ">chr1 some description\nACGTacgt\nNNNN\n"
	ref, err := Load(strings.NewReader(fasta), Opts{})
	require.NoError(t, err)

	assert.Equal(t, []string{"chr1"}, ref.Names)
	assert.Equal(t, []uint64{12}, ref.Lengths)
	assert.Equal(t, []uint64{0}, ref.StartOffset)
	assert.Equal(t, "acgtacgtnnnn$", string(ref.Bases))
	assert.Equal(t, uint64(13), ref.N())
	assert.Equal(t, 1, ref.NumSequences())
}

func TestLoadMultipleRecordsSeparatedBySeparatorByte(t *testing.T) {
	fasta := ">a\nACGT\n>b desc\nTTTT\n"
	ref, err := Load(strings.NewReader(fasta), Opts{})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, ref.Names)
	assert.Equal(t, "acgt`tttt$", string(ref.Bases))
	assert.Equal(t, []uint64{0, 5}, ref.StartOffset)
	assert.Equal(t, []uint64{4, 4}, ref.Lengths)
}

func TestLoadNameStopsAtFirstWhitespace(t *testing.T) {
	fasta := ">chr1\textra stuff\nACGT\n"
	ref, err := Load(strings.NewReader(fasta), Opts{})
	require.NoError(t, err)
	assert.Equal(t, "chr1", ref.Names[0])
}

func TestLoadRejectsDataBeforeHeader(t *testing.T) {
	_, err := Load(strings.NewReader("ACGT\n>a\nACGT\n"), Opts{})
	assert.Error(t, err)
}

func TestLoadRejectsEmptyInput(t *testing.T) {
	_, err := Load(strings.NewReader(""), Opts{})
	assert.Error(t, err)
}

func TestReverseComplement(t *testing.T) {
	assert.Equal(t, "acgt", string(ReverseComplement([]byte("acgt"))))
	assert.Equal(t, "ACGT", string(ReverseComplement([]byte("ACGT"))))
	assert.Equal(t, "n", string(ReverseComplement([]byte("n"))))
}

func TestLoadRCRefDoublesSequencesSharingName(t *testing.T) {
	fasta := ">a\nacgt\n"
	ref, err := Load(strings.NewReader(fasta), Opts{RCRef: true})
	require.NoError(t, err)

	require.Equal(t, 2, ref.NumSequences())
	assert.Equal(t, "a", ref.Names[0])
	assert.Equal(t, "a", ref.Names[1])
	assert.Equal(t, ref.Lengths[0], ref.Lengths[1])

	// Indexing by StartOffset[k] yields the k-th sub-sequence: forward then
	// its reverse complement, matching spec.md §4.B's concatenation contract.
	forward := ref.Bases[ref.StartOffset[0] : ref.StartOffset[0]+ref.Lengths[0]]
	rc := ref.Bases[ref.StartOffset[1] : ref.StartOffset[1]+ref.Lengths[1]]
	assert.Equal(t, "acgt", string(forward))
	assert.Equal(t, string(ReverseComplement(forward)), string(rc))
}

func TestLoadRCRefTwoRecordsAllFourSubsequences(t *testing.T) {
	fasta := ">a\nacgt\n>b\ntggc\n"
	ref, err := Load(strings.NewReader(fasta), Opts{RCRef: true})
	require.NoError(t, err)
	require.Equal(t, 4, ref.NumSequences())
	assert.Equal(t, []string{"a", "a", "b", "b"}, ref.Names)
	// Sentinel terminates the whole buffer exactly once, at the very end.
	assert.Equal(t, byte(Sentinel), ref.Bases[len(ref.Bases)-1])
	assert.Equal(t, 1, strings.Count(string(ref.Bases), string(rune(Sentinel))))
}
