package lcp

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yamrom/smash-paper/internal/sa"
)

func commonPrefixLen(s []byte, i, j int) int {
	n := 0
	for i+n < len(s) && j+n < len(s) && s[i+n] == s[j+n] {
		n++
	}
	return n
}

func TestComputeMatchesBruteForce(t *testing.T) {
	s := []byte("acacacac$")
	res := sa.Build[uint32](s)
	arr := Compute[uint32](s, res.SA, res.ISA)

	require.Equal(t, len(s), arr.Len())
	for i := 1; i < len(s); i++ {
		prev := int(res.SA.At(i - 1))
		cur := int(res.SA.At(i))
		want := commonPrefixLen(s, prev, cur)
		assert.Equal(t, uint64(want), arr.At(i), "lcp mismatch at SA rank %d", i)
	}
	assert.Equal(t, uint64(0), arr.At(0))
}

func TestComputeOverflowForLongRepeats(t *testing.T) {
	s := make([]byte, 0, 600)
	for i := 0; i < 300; i++ {
		s = append(s, 'a')
	}
	s = append(s, '$')
	res := sa.Build[uint32](s)
	arr := Compute[uint32](s, res.SA, res.ISA)

	found := false
	for i := 1; i < len(s); i++ {
		if arr.At(i) >= overflow255 {
			found = true
			break
		}
	}
	assert.True(t, found, "expected at least one LCP value to exceed the clamp byte")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := []byte("acgtacgtn$")
	res := sa.Build[uint32](s)
	arr := Compute[uint32](s, res.SA, res.ISA)

	dir := t.TempDir()
	vecPath := filepath.Join(dir, "lcp.vec.bin")
	overflowPath := filepath.Join(dir, "lcp.m.bin")
	require.NoError(t, arr.Save(vecPath, overflowPath))

	loaded, err := Load(vecPath, overflowPath, false)
	require.NoError(t, err)
	defer loaded.Close()

	require.Equal(t, arr.Len(), loaded.Len())
	for i := 0; i < arr.Len(); i++ {
		assert.Equal(t, arr.At(i), loaded.At(i))
	}
}
