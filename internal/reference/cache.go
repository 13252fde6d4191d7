package reference

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang/snappy"

	"github.com/yamrom/smash-paper/internal/ioutil"
	"github.com/yamrom/smash-paper/internal/xerrors"
)

// CacheDir returns the cache directory for a reference FASTA path, matching
// spec.md §4.B ("a directory named after the FASTA input").
func CacheDir(fastaPath string) string {
	return fastaPath + ".bin"
}

func metaPath(dir string, rcref bool) string {
	return filepath.Join(dir, fmt.Sprintf("rc%d.ref", boolInt(rcref)))
}

func seqPath(dir string, rcref bool) string {
	return filepath.Join(dir, fmt.Sprintf("rc%d.ref.seq.bin", boolInt(rcref)))
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Save writes the reference's metadata and concatenated bases to the cache
// directory for fastaPath, recording fastaSize for later version checking
// (spec.md §4.B's CacheMismatch check).
func (r *Reference) Save(fastaPath string, fastaSize uint64) error {
	dir := CacheDir(fastaPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return xerrors.E(xerrors.IoError, "mkdir", dir, err)
	}

	if err := ioutil.WriteFile(seqPath(dir, r.RCRef), r.Bases); err != nil {
		return err
	}

	// The sequence-name table is small relative to the bulk base buffer and
	// is never accessed through the zero-copy mmap path, so it is snappy
	// compressed the way golang/snappy is used elsewhere in the corpus for
	// small auxiliary blobs.
	var nameBlob []byte
	for _, n := range r.Names {
		nameBlob = binary.LittleEndian.AppendUint32(nameBlob, uint32(len(n)))
		nameBlob = append(nameBlob, n...)
	}
	compressedNames := snappy.Encode(nil, nameBlob)

	var meta []byte
	meta = binary.LittleEndian.AppendUint64(meta, fastaSize)
	meta = binary.LittleEndian.AppendUint64(meta, r.N())
	meta = binary.LittleEndian.AppendUint64(meta, uint64(len(r.Names)))
	for i := range r.Names {
		meta = binary.LittleEndian.AppendUint64(meta, r.StartOffset[i])
		meta = binary.LittleEndian.AppendUint64(meta, r.Lengths[i])
	}
	meta = binary.LittleEndian.AppendUint64(meta, uint64(len(nameBlob)))
	meta = binary.LittleEndian.AppendUint64(meta, uint64(len(compressedNames)))
	meta = append(meta, compressedNames...)

	if err := ioutil.WriteFile(metaPath(dir, r.RCRef), meta); err != nil {
		return err
	}
	return nil
}

// Open loads a reference from its cache directory if present and the FASTA
// size still matches; returns (nil, nil) if no cache exists yet so the
// caller can fall back to building one from the FASTA file. A size mismatch
// is a hard CacheMismatch error, never a silent rebuild (spec.md §4.B).
func Open(fastaPath string, rcref bool, fastaSize uint64, readAhead bool) (*Reference, error) {
	dir := CacheDir(fastaPath)
	mp := metaPath(dir, rcref)
	if _, err := os.Stat(mp); err != nil {
		return nil, nil
	}
	meta, err := ioutil.ReadFile(mp)
	if err != nil {
		return nil, err
	}
	if len(meta) < 24 {
		return nil, xerrors.E(xerrors.ParseError, "reference metadata", mp, "truncated header")
	}
	savedSize := binary.LittleEndian.Uint64(meta[0:8])
	if savedSize != fastaSize {
		return nil, xerrors.E(xerrors.CacheMismatch, mp,
			"reference has changed, delete cache to proceed")
	}
	n := binary.LittleEndian.Uint64(meta[8:16])
	numSeq := binary.LittleEndian.Uint64(meta[16:24])

	off := 24
	starts := make([]uint64, numSeq)
	lengths := make([]uint64, numSeq)
	for i := uint64(0); i < numSeq; i++ {
		if off+16 > len(meta) {
			return nil, xerrors.E(xerrors.ParseError, "reference metadata", mp, "truncated sequence table")
		}
		starts[i] = binary.LittleEndian.Uint64(meta[off : off+8])
		lengths[i] = binary.LittleEndian.Uint64(meta[off+8 : off+16])
		off += 16
	}
	if off+16 > len(meta) {
		return nil, xerrors.E(xerrors.ParseError, "reference metadata", mp, "truncated name blob header")
	}
	rawLen := binary.LittleEndian.Uint64(meta[off : off+8])
	compLen := binary.LittleEndian.Uint64(meta[off+8 : off+16])
	off += 16
	if uint64(off)+compLen > uint64(len(meta)) {
		return nil, xerrors.E(xerrors.ParseError, "reference metadata", mp, "truncated name blob")
	}
	nameBlob, err := snappy.Decode(make([]byte, 0, rawLen), meta[off:uint64(off)+compLen])
	if err != nil {
		return nil, xerrors.E(xerrors.ParseError, "reference metadata", mp, err)
	}
	names := make([]string, numSeq)
	p := 0
	for i := range names {
		if p+4 > len(nameBlob) {
			return nil, xerrors.E(xerrors.ParseError, "reference metadata", mp, "truncated name entry")
		}
		l := int(binary.LittleEndian.Uint32(nameBlob[p : p+4]))
		p += 4
		names[i] = string(nameBlob[p : p+l])
		p += l
	}

	mapping, err := ioutil.Map(seqPath(dir, rcref), readAhead)
	if err != nil {
		return nil, err
	}
	if uint64(mapping.Len()) != n {
		mapping.Close()
		return nil, xerrors.E(xerrors.RangeError, "reference bases", seqPath(dir, rcref),
			"mapped length does not match recorded N")
	}

	return &Reference{
		Bases:       mapping.Bytes(),
		Names:       names,
		Lengths:     lengths,
		StartOffset: starts,
		RCRef:       rcref,
	}, nil
}
