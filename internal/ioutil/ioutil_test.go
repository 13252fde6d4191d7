package ioutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yamrom/smash-paper/internal/xerrors"
)

func TestWriteReadFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blob.bin")
	want := []byte("acgtacgtn$")
	require.NoError(t, WriteFile(path, want))
	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestReadFileMissingIsIoError(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, xerrors.IoError))
}

func TestMapRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mapped.bin")
	want := []byte("the quick brown fox")
	require.NoError(t, WriteFile(path, want))

	m, err := Map(path, true)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, want, m.Bytes())
	assert.Equal(t, len(want), m.Len())
	assert.NoError(t, m.Advise(AdviceSequential))
	assert.NoError(t, m.Advise(AdviceWillNeed))
}

func TestMapEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.bin")
	require.NoError(t, WriteFile(path, nil))

	m, err := Map(path, false)
	require.NoError(t, err)
	defer m.Close()
	assert.Equal(t, 0, m.Len())
	assert.NoError(t, m.Close())
}

func TestVectorBuildPushAndSave(t *testing.T) {
	v := NewBuildVector[uint32](0)
	for i := uint32(0); i < 10; i++ {
		v.Push(i * i)
	}
	assert.Equal(t, 10, v.Len())
	for i := 0; i < 10; i++ {
		assert.Equal(t, uint32(i*i), v.At(i))
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "vec.bin")
	require.NoError(t, v.Save(path))

	loaded, err := LoadVector[uint32](path, false)
	require.NoError(t, err)
	defer loaded.Close()
	assert.Equal(t, v.Len(), loaded.Len())
	for i := 0; i < v.Len(); i++ {
		assert.Equal(t, v.At(i), loaded.At(i))
	}
}

func TestVectorSetGrowsAndFillsZero(t *testing.T) {
	v := NewBuildVector[uint64](0)
	v.Set(3, 42)
	assert.Equal(t, 4, v.Len())
	assert.Equal(t, uint64(0), v.At(0))
	assert.Equal(t, uint64(42), v.At(3))
}

func TestVectorResizeTruncatesAndGrows(t *testing.T) {
	v := NewBuildVector[uint32](0)
	v.Resize(5)
	assert.Equal(t, 5, v.Len())
	v.Resize(2)
	assert.Equal(t, 2, v.Len())
}

func TestLoadVectorOnMappedRejectsMutation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vec2.bin")
	v := NewBuildVector[uint32](0)
	v.Push(1)
	v.Push(2)
	require.NoError(t, v.Save(path))

	loaded, err := LoadVector[uint32](path, false)
	require.NoError(t, err)
	defer loaded.Close()

	assert.Panics(t, func() { loaded.Push(3) })
	assert.Panics(t, func() { loaded.Set(0, 9) })
	assert.Panics(t, func() { loaded.Resize(1) })
	assert.Panics(t, func() { loaded.Save(path) })
}

func TestLoadVectorRejectsMisalignedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "odd.bin")
	require.NoError(t, WriteFile(path, []byte{1, 2, 3})) // not a multiple of 8
	_, err := LoadVector[uint64](path, false)
	require.Error(t, err)
}
