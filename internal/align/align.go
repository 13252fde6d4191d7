// Package align turns the raw matches internal/traverse finds into
// positioned, merged, CIGAR-annotated alignment records (spec.md §4.H).
//
// Grounded on _examples/original_source/query.cpp's Alignment::resolve and
// Aligner::prepare_matches: resolve converts one match_t into chromosome
// coordinates (handling the reverse-complement half of a doubled reference
// by flipping position and prefix/suffix), and prepare_matches sorts
// alignments for merging (to_merge: by rc, then sequence, then position,
// then prefix), concatenates adjacent CIGAR runs belonging to the same
// placement, counts matched/unique bases, and finally re-sorts by query
// position (to_print) to choose a primary alignment and link the rest into
// a prev/next chain.
package align

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yamrom/smash-paper/internal/chrmap"
	"github.com/yamrom/smash-paper/internal/traverse"
)

// Alignment is one placement of a query against the reference, mirroring
// query.h's Alignment struct.
type Alignment struct {
	RCPos int64 // position in (possibly doubled) reference of unflipped query start
	Pos   int64 // position within the chromosome of the query start
	QPos  int64 // position in the query of the first hit
	SeqIndex int
	Prefix   uint64
	Length   uint64
	Suffix   uint64

	NMatches      uint64
	NUniqueBases  uint64
	NMatchedBases uint64

	AlignmentIndex uint64
	Prev           *Alignment
	Next           *Alignment
	BestMate       *Alignment

	Cigar string
	RC    bool
}

// Resolve converts one traverse.Match into chromosome-relative coordinates,
// mirroring Alignment::resolve. rcref must match the setting the reference
// was built with: when true, odd ordinal sequence indexes are the
// reverse-complement half of a doubled record and get folded back onto the
// even (forward) half with flipped prefix/suffix roles.
func Resolve(m traverse.Match, queryLen uint64, cm *chrmap.Map, rcref bool) (*Alignment, error) {
	idx, _, err := cm.ResolveIndex(m.Ref)
	if err != nil {
		return nil, err
	}
	a := &Alignment{
		RCPos:  int64(m.Ref) - int64(m.Query),
		QPos:   int64(m.Query),
		Length: m.Len,
	}
	a.Pos = a.RCPos - int64(cm.Start(idx))
	extra := int64(queryLen) - int64(m.Len) - int64(m.Query)

	if rcref && idx%2 == 1 {
		idx--
		a.Pos = int64(cm.Length(idx)) - a.Pos
		a.Pos -= int64(queryLen)
		a.Prefix = uint64(extra)
		a.Suffix = m.Query
		a.RC = true
	} else {
		a.Prefix = m.Query
		a.Suffix = uint64(extra)
		a.RC = false
	}
	a.SeqIndex = idx
	return a, nil
}

func byMerge(a, b *Alignment) bool {
	if a.RC != b.RC {
		return !a.RC && b.RC
	}
	if a.SeqIndex != b.SeqIndex {
		return a.SeqIndex < b.SeqIndex
	}
	if a.Pos != b.Pos {
		return a.Pos < b.Pos
	}
	return a.Prefix < b.Prefix
}

func byPrint(a, b *Alignment) bool {
	if a.QPos != b.QPos {
		return a.QPos < b.QPos
	}
	return !a.RC && b.RC
}

// PrepareMatches merges adjacent same-placement alignments into single
// CIGAR-annotated records, sets NMatches to 0 on merged placements whose
// NUniqueBases is below minBlock (the -minblock post-merge filter from
// mummer.cpp's usage text; such placements stay in the returned slice, get
// no AlignmentIndex and are formatted as unmapped records), and returns the
// alignments in print order along with the chosen primary.
// query is the (possibly lower-cased) query sequence; ref is the
// concatenated reference buffer used to count matched bases exactly as
// Aligner::prepare_matches does by re-scanning [rcpos, rcpos+len(query)).
func PrepareMatches(alignments []*Alignment, query, ref []byte, minBlock uint64) (sorted []*Alignment, primary *Alignment, nAlignments uint64) {
	// Drop off-chromosome placements with a negative position, mirroring
	// prepare_matches' first pass.
	kept := alignments[:0:0]
	for _, a := range alignments {
		if a.Pos >= 0 {
			kept = append(kept, a)
		}
	}
	alignments = kept
	if len(alignments) == 0 {
		return nil, nil, 0
	}

	merge := append([]*Alignment{}, alignments...)
	sort.Slice(merge, func(i, j int) bool { return byMerge(merge[i], merge[j]) })

	var cigar strings.Builder
	lastEnd := uint64(0)
	for i, a := range merge {
		var next *Alignment
		if i+1 < len(merge) {
			next = merge[i+1]
		}
		a.NMatches++
		a.NUniqueBases += a.Length
		if a.Prefix > lastEnd {
			op := byte('S')
			if lastEnd != 0 {
				op = 'M'
			}
			fmt.Fprintf(&cigar, "%d%c", a.Prefix-lastEnd, op)
		}
		fmt.Fprintf(&cigar, "%d=", a.Length)

		continues := next != nil && next.Pos == a.Pos && next.SeqIndex == a.SeqIndex && next.RC == a.RC
		if !continues {
			if a.Suffix > 0 {
				fmt.Fprintf(&cigar, "%dS", a.Suffix)
			}
			for j := 0; j < len(query); j++ {
				refPos := a.RCPos + int64(j)
				if refPos >= 0 && refPos < int64(len(ref)) && ref[refPos] == query[j] {
					a.NMatchedBases++
				}
			}
			a.Cigar = cigar.String()
			cigar.Reset()
			lastEnd = 0
		} else {
			lastEnd = a.Prefix + a.Length
			next.QPos = min64(a.QPos, next.QPos)
			next.NMatches, a.NMatches = a.NMatches, 0
			next.NUniqueBases, a.NUniqueBases = a.NUniqueBases, 0
			a.NMatchedBases = 0
		}
	}

	// MinBlock: merged placements whose total unique bases fall below the
	// threshold are demoted to unmapped-for-output, same role as a zero
	// n_matches has in Aligner::print_matches' gating check.
	if minBlock > 0 {
		for _, a := range merge {
			if a.NMatches > 0 && a.NUniqueBases < minBlock {
				a.NMatches = 0
			}
		}
	}

	printOrder := append([]*Alignment{}, alignments...)
	sort.Slice(printOrder, func(i, j int) bool { return byPrint(printOrder[i], printOrder[j]) })
	if len(printOrder) > 0 {
		primary = printOrder[0]
	}

	var prev *Alignment
	var n uint64
	for _, a := range printOrder {
		if a.NMatches > 0 {
			a.AlignmentIndex = n
			n++
			if prev != nil {
				a.Prev = prev
				prev.Next = a
			}
			prev = a
		}
	}
	return printOrder, primary, n
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// SetMate links each alignment of a pair to its mate's primary alignment,
// mirroring Aligner::set_mate. When the mate produced no alignments at all
// the caller should still invoke this so the unmapped-mate flag can be set
// by the pipeline layer.
func SetMate(reads []*Alignment, mate *Alignment, mateUnmapped bool) {
	if mateUnmapped {
		return
	}
	for _, a := range reads {
		a.BestMate = mate
	}
}
