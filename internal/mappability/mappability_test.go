package mappability

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yamrom/smash-paper/internal/chrmap"
	"github.com/yamrom/smash-paper/internal/lcp"
	"github.com/yamrom/smash-paper/internal/reference"
	"github.com/yamrom/smash-paper/internal/sa"
	"github.com/yamrom/smash-paper/internal/traverse"
)

func buildIndex(t *testing.T, fasta string) (*traverse.Index[uint32], *chrmap.Map) {
	t.Helper()
	ref, err := reference.Load(strings.NewReader(fasta), reference.Opts{RCRef: true})
	require.NoError(t, err)
	cm := chrmap.New(ref, false)

	res := sa.Build[uint32](ref.Bases)
	l := lcp.Compute[uint32](ref.Bases, res.SA, res.ISA)
	return traverse.New[uint32](ref.Bases, res.SA, res.ISA, l), cm
}

func TestWriteTextEmitsHeaderAndOneRowPerBase(t *testing.T) {
	ix, cm := buildIndex(t, ">chr1\nacgt\n")

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, ix, cm, Text))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.GreaterOrEqual(t, len(lines), 1)
	assert.Equal(t, "chrom\tpos\tlmin\trmin\n", lines[0]+"\n")

	rows := lines[1:]
	assert.Len(t, rows, 4) // cm.Length(0) == 4, forward chromosome only

	for i, row := range rows {
		fields := strings.Split(row, "\t")
		require.Len(t, fields, 4)
		assert.Equal(t, "chr1", fields[0])
		assert.Equal(t, i+1, atoiT(t, fields[1]))
	}
}

func TestWriteBinaryEmitsTwoBytesPerBaseNoHeader(t *testing.T) {
	ix, cm := buildIndex(t, ">chr1\nacgt\n")

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, ix, cm, Binary))
	assert.Equal(t, 8, buf.Len()) // 4 bases * 2 bytes
}

func TestWriteSkipsReverseComplementOrdinals(t *testing.T) {
	ix, cm := buildIndex(t, ">chr1\nacgt\n>chr2\ntggc\n")

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, ix, cm, Text))

	rows := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")[1:]
	names := map[string]bool{}
	for _, row := range rows {
		names[strings.Split(row, "\t")[0]] = true
	}
	assert.Equal(t, map[string]bool{"chr1": true, "chr2": true}, names)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, uint64(255), clamp(300))
	assert.Equal(t, uint64(10), clamp(10))
	assert.Equal(t, uint64(255), clamp(255))
}

func atoiT(t *testing.T, s string) int {
	t.Helper()
	n := 0
	for _, c := range s {
		require.True(t, c >= '0' && c <= '9')
		n = n*10 + int(c-'0')
	}
	return n
}
