// Package chrmap implements the chromosome map (spec.md §4.C): translating
// between a sequence name, an ordinal index, and an absolute offset into the
// concatenated reference buffer built by internal/reference.
//
// The absolute-offset-to-name lookup is grounded on
// encoding/bampair/shard_info.go's ShardInfo, which indexes shard start
// offsets in a github.com/biogo/store/llrb tree and resolves a record's
// position to its owning shard with Floor. Here the "shards" are reference
// sequences and the "record position" is an absolute offset into R.
package chrmap

import (
	"strings"

	"github.com/biogo/store/llrb"

	"github.com/yamrom/smash-paper/internal/reference"
	"github.com/yamrom/smash-paper/internal/xerrors"
)

// offsetKey orders entries by absolute start offset, the same role
// shard_info.go's key plays keyed by (refID, start).
type offsetKey struct {
	start uint64
	index int
}

func (k offsetKey) Compare(c llrb.Comparable) int {
	o := c.(offsetKey)
	switch {
	case k.start < o.start:
		return -1
	case k.start > o.start:
		return 1
	default:
		return 0
	}
}

// Map resolves between sequence names, ordinal indexes, and absolute offsets
// into a reference.Reference's concatenated buffer.
type Map struct {
	names    []string
	lengths  []uint64
	starts   []uint64
	byName   map[string]int
	byOffset llrb.Tree
}

// New builds a Map over ref's sequences. When aggressive is set, sequences
// whose name contains '_' or 'M' are dropped from the map entirely —
// matching chromosomes.h's simple_only filter
// (chromosome.find_first_of("_M") != npos), used to exclude alternate
// contigs and mitochondrial sequences from mappability-style reporting.
func New(ref *reference.Reference, aggressive bool) *Map {
	m := &Map{
		byName:   make(map[string]int, ref.NumSequences()),
		byOffset: llrb.Tree{},
	}
	for i := 0; i < ref.NumSequences(); i++ {
		name := ref.Names[i]
		if aggressive && strings.ContainsAny(name, "_M") {
			continue
		}
		idx := len(m.names)
		m.names = append(m.names, name)
		m.lengths = append(m.lengths, ref.Lengths[i])
		m.starts = append(m.starts, ref.StartOffset[i])
		m.byName[name] = idx
		m.byOffset.Insert(offsetKey{start: ref.StartOffset[i], index: idx})
	}
	return m
}

// Len returns the number of sequences retained in the map.
func (m *Map) Len() int { return len(m.names) }

// Name returns the sequence name for ordinal index i.
func (m *Map) Name(i int) string { return m.names[i] }

// Length returns the sequence length for ordinal index i.
func (m *Map) Length(i int) uint64 { return m.lengths[i] }

// Start returns the absolute start offset for ordinal index i.
func (m *Map) Start(i int) uint64 { return m.starts[i] }

// Index returns the ordinal index for name, or an UnknownChromosome error.
func (m *Map) Index(name string) (int, error) {
	idx, ok := m.byName[name]
	if !ok {
		return 0, xerrors.E(xerrors.UnknownChromosome, name)
	}
	return idx, nil
}

// ResolveIndex maps an absolute offset into R to the ordinal index of the
// sequence it falls in, plus the 0-based offset within that sequence. This
// is the Floor lookup internal/align.Resolve needs to replicate
// Alignment::resolve's upper_bound(ref.startpos, ...) search.
func (m *Map) ResolveIndex(absolute uint64) (index int, offset uint64, err error) {
	c := m.byOffset.Floor(offsetKey{start: absolute})
	if c == nil {
		return 0, 0, xerrors.E(xerrors.RangeError, "chrmap", "offset before first sequence")
	}
	k := c.(offsetKey)
	return k.index, absolute - m.starts[k.index], nil
}

// Resolve maps an absolute offset into R to the (name, 0-based offset within
// that sequence) pair it falls in, the Floor lookup shard_info.go performs
// to translate a SAM record's absolute coordinate back to its owning shard.
func (m *Map) Resolve(absolute uint64) (name string, offset uint64, err error) {
	index, rel, err := m.ResolveIndex(absolute)
	if err != nil {
		return "", 0, err
	}
	if rel >= m.lengths[index] {
		return "", 0, xerrors.E(xerrors.RangeError, "chrmap", "offset past end of sequence", m.names[index])
	}
	return m.names[index], rel, nil
}
