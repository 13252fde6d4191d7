package readio

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFastqScannerReadsRecord(t *testing.T) {
	data := "@read1\nACGTacgt\n+\nIIIIIIII\n"
	sc := NewFastqScanner(strings.NewReader(data), Opts{})
	var r Read
	require.True(t, sc.Scan(&r))
	assert.Equal(t, "read1", r.Name)
	assert.Equal(t, MateNone, r.Mate)
	assert.Equal(t, "ACGTacgt", string(r.Original))
	assert.Equal(t, "acgtacgt", string(r.Query))
	assert.Equal(t, "IIIIIIII", string(r.Quals))
	assert.False(t, sc.Scan(&r))
	assert.NoError(t, sc.Err())
}

func TestFastqScannerIlluminaHeaderTranslatesToMateSuffix(t *testing.T) {
	data := "@read1 1:N:0:1\nACGT\n+\nIIII\n@read1 2:N:0:1\nTTTT\n+\nIIII\n"
	sc := NewFastqScanner(strings.NewReader(data), Opts{})
	var r1, r2 Read
	require.True(t, sc.Scan(&r1))
	require.True(t, sc.Scan(&r2))
	assert.Equal(t, "read1", r1.Name)
	assert.Equal(t, MateFirst, r1.Mate)
	assert.Equal(t, "read1", r2.Name)
	assert.Equal(t, MateSecond, r2.Mate)
}

func TestFastqScannerNucleotidesOnlyMasksNonACGT(t *testing.T) {
	data := "@r\nACGTN\n+\nIIIII\n"
	sc := NewFastqScanner(strings.NewReader(data), Opts{NucleotidesOnly: true})
	var r Read
	require.True(t, sc.Scan(&r))
	assert.Equal(t, "acgt~", string(r.Query))
}

func TestFastqScannerRejectsMissingAtPrefix(t *testing.T) {
	sc := NewFastqScanner(strings.NewReader("read1\nACGT\n+\nIIII\n"), Opts{})
	var r Read
	assert.False(t, sc.Scan(&r))
	assert.Error(t, sc.Err())
}

func TestFastqScannerRejectsTruncatedRecord(t *testing.T) {
	sc := NewFastqScanner(strings.NewReader("@r\nACGT\n"), Opts{})
	var r Read
	assert.False(t, sc.Scan(&r))
	assert.Error(t, sc.Err())
}

func TestFastaScannerAccumulatesMultilineSequence(t *testing.T) {
	data := ">read1 description\nACGT\nacgt\n>read2\nTTTT\n"
	sc := NewFastaScanner(strings.NewReader(data), Opts{})
	var r1, r2 Read
	require.True(t, sc.Scan(&r1))
	assert.Equal(t, "read1", r1.Name)
	assert.Equal(t, "ACGTacgt", string(r1.Original))
	assert.Nil(t, r1.Quals)

	require.True(t, sc.Scan(&r2))
	assert.Equal(t, "read2", r2.Name)
	assert.Equal(t, "TTTT", string(r2.Original))

	assert.False(t, sc.Scan(&r2))
	assert.NoError(t, sc.Err())
}

func TestFastaScannerIlluminaHeaderTranslatesToMateSuffix(t *testing.T) {
	data := ">read1 1:N:0:1\nACGT\n>read1 2:N:0:1\nTTTT\n"
	sc := NewFastaScanner(strings.NewReader(data), Opts{})
	var r1, r2 Read
	require.True(t, sc.Scan(&r1))
	require.True(t, sc.Scan(&r2))
	assert.Equal(t, "read1", r1.Name)
	assert.Equal(t, MateFirst, r1.Mate)
	assert.Equal(t, "read1", r2.Name)
	assert.Equal(t, MateSecond, r2.Mate)
}

func TestFastaScannerRejectsMissingHeader(t *testing.T) {
	sc := NewFastaScanner(strings.NewReader("ACGT\n"), Opts{})
	var r Read
	assert.False(t, sc.Scan(&r))
	assert.Error(t, sc.Err())
}

func TestSamScannerDerivesMateFromFlagNotName(t *testing.T) {
	// FLAG 64 = first-in-pair (0x40); FLAG 128 = second-in-pair (0x80).
	data := "read1\t64\tchr1\t10\t60\t4M\t*\t0\t0\tACGT\tIIII\n" +
		"read1\t128\tchr1\t10\t60\t4M\t*\t0\t0\tTTTT\tIIII\n"
	sc := NewSamScanner(strings.NewReader(data), Opts{})

	var r1, r2 Read
	require.True(t, sc.Scan(&r1))
	assert.Equal(t, "read1", r1.Name)
	assert.Equal(t, MateFirst, r1.Mate)
	assert.Equal(t, "ACGT", string(r1.Original))
	assert.Equal(t, "IIII", string(r1.Quals))

	require.True(t, sc.Scan(&r2))
	assert.Equal(t, "read1", r2.Name)
	assert.Equal(t, MateSecond, r2.Mate)
}

func TestSamScannerSkipsHeaderAndBlankLines(t *testing.T) {
	data := "@HD\tVN:1.6\n\nread1\t0\tchr1\t1\t60\t4M\t*\t0\t0\tACGT\tIIII\n"
	sc := NewSamScanner(strings.NewReader(data), Opts{})
	var r Read
	require.True(t, sc.Scan(&r))
	assert.Equal(t, "read1", r.Name)
	assert.Equal(t, MateNone, r.Mate)
}

func TestSamScannerPreservesOptionalFields(t *testing.T) {
	data := "read1\t0\tchr1\t1\t60\t4M\t*\t0\t0\tACGT\tIIII\tXM:i:1\tXU:i:0\n"
	sc := NewSamScanner(strings.NewReader(data), Opts{})
	var r Read
	require.True(t, sc.Scan(&r))
	assert.Equal(t, []string{"XM:i:1", "XU:i:0"}, r.Optional)
}

func TestSamScannerRejectsShortRecords(t *testing.T) {
	sc := NewSamScanner(strings.NewReader("read1\t0\tchr1\n"), Opts{})
	var r Read
	assert.False(t, sc.Scan(&r))
	assert.Error(t, sc.Err())
}

func TestSamScannerRejectsNonNumericFlag(t *testing.T) {
	sc := NewSamScanner(strings.NewReader("read1\tX\tchr1\t1\t60\t4M\t*\t0\t0\tACGT\tIIII\n"), Opts{})
	var r Read
	assert.False(t, sc.Scan(&r))
	assert.Error(t, sc.Err())
}
