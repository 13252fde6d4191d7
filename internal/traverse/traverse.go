// Package traverse implements the three match-enumeration algorithms over a
// built suffix-array index (spec.md §4.G): maximal exact matches (MEM),
// maximal almost-unique matches (MAM, unique in the reference only), and
// maximal unique matches (MUM, unique in both reference and query).
//
// Every algorithm in this file is a direct port of
// _examples/original_source/longSA.cpp's corresponding method — top_down,
// top_down_faster (the Ferragina & Fischer "words" binary search),
// traverse, suffixlink/expand_link (the ISA/LCP suffix-link simulation
// bounded by a 2*depth*logN expansion budget), findMEM/collectMEMs/
// find_Lmaximal, MAM, and MUM's cleanMUMcand-derived dedup pass — kept in
// the same shape and variable roles, translated to Go's explicit returns
// instead of output reference parameters.
package traverse

import (
	"math/bits"
	"sort"

	"v.io/x/lib/vlog"

	"github.com/yamrom/smash-paper/internal/lcp"

	"github.com/yamrom/smash-paper/internal/ioutil"
)

// Kind selects which of the three match families Find enumerates. This is
// the 3-valued mum_t enum from query.h (MUM, MAM, MEM); the CLI surface
// further distinguishes "mumreference" and "mumcand" but both collapse onto
// MAM (see SPEC_FULL.md's resolution of this point).
type Kind int

const (
	MEM Kind = iota
	MAM
	MUM
)

// Match is one maximal match between the query and the reference,
// mirroring longSA.h's match_t.
type Match struct {
	Ref   uint64 // start position in the (possibly doubled) reference
	Query uint64 // start position in the query
	Len   uint64
}

// Index is a built suffix-array/LCP index ready for traversal.
type Index[T ioutil.Uint] struct {
	text []byte
	sa   *ioutil.Vector[T]
	isa  *ioutil.Vector[T]
	lcp  *lcp.Array
	n    uint64
	logN uint64
	nm1  uint64
}

// New wraps a built SA/ISA/LCP triple for traversal over text.
func New[T ioutil.Uint](text []byte, sa, isa *ioutil.Vector[T], l *lcp.Array) *Index[T] {
	n := uint64(sa.Len())
	return &Index[T]{
		text: text,
		sa:   sa,
		isa:  isa,
		lcp:  l,
		n:    n,
		logN: uint64(bits.Len64(n)),
		nm1:  n - 1,
	}
}

func (ix *Index[T]) sac(i uint64) uint64 { return uint64(ix.sa.At(int(i))) }
func (ix *Index[T]) isac(i uint64) uint64 { return uint64(ix.isa.At(int(i))) }
func (ix *Index[T]) lcpAt(i uint64) uint64 { return ix.lcp.At(int(i)) }

// N returns the number of suffixes indexed (the doubled reference length
// when the index was built with rcref set).
func (ix *Index[T]) N() uint64 { return ix.n }

// ISA returns the inverse suffix array at position pos, the rank of the
// suffix starting at pos. Exported for internal/mappability, which needs
// direct ISA/LCP access the match-finding algorithms don't.
func (ix *Index[T]) ISA(pos uint64) uint64 { return ix.isac(pos) }

// LCP returns the longest-common-prefix value at suffix-array rank i.
func (ix *Index[T]) LCP(i uint64) uint64 { return ix.lcpAt(i) }

func (ix *Index[T]) refByte(pos uint64) byte {
	if pos >= uint64(len(ix.text)) {
		return 0
	}
	return ix.text[pos]
}

// interval is longSA.h's interval_t: a matched SA range [start, end] at a
// given depth.
type interval struct {
	depth, start, end uint64
}

func (iv interval) size() uint64 { return iv.end - iv.start + 1 }

func (iv *interval) reset(n uint64) {
	iv.depth, iv.start, iv.end = 0, 0, n-1
}

// bsearchLeft mirrors longSA::bsearch_left.
func (ix *Index[T]) bsearchLeft(c byte, i, l, r uint64) uint64 {
	if c == ix.refByte(ix.sac(l)+i) {
		return l
	}
	for r > l+1 {
		m := (l + r) / 2
		if c <= ix.refByte(ix.sac(m)+i) {
			r = m
		} else {
			l = m
		}
	}
	return r
}

// bsearchRight mirrors longSA::bsearch_right.
func (ix *Index[T]) bsearchRight(c byte, i, l, r uint64) uint64 {
	if c == ix.refByte(ix.sac(r)+i) {
		return r
	}
	for r > l+1 {
		m := (l + r) / 2
		if c < ix.refByte(ix.sac(m)+i) {
			r = m
		} else {
			l = m
		}
	}
	return l
}

// topDown mirrors longSA::top_down: plain binary search, no words trick.
func (ix *Index[T]) topDown(c byte, i uint64, start, end *uint64) bool {
	if c < ix.refByte(ix.sac(*start)+i) {
		return false
	}
	if c > ix.refByte(ix.sac(*end)+i) {
		return false
	}
	l := ix.bsearchLeft(c, i, *start, *end)
	l2 := ix.bsearchRight(c, i, *start, *end)
	*start, *end = l, l2
	return l <= l2
}

// topDownFaster mirrors longSA::top_down_faster, the Ferragina & Fischer
// "words" binary search that resolves the left and right borders together.
func (ix *Index[T]) topDownFaster(c byte, i uint64, start, end *uint64) bool {
	var l, r, m uint64
	r2, l2 := *end, *start
	var vgl int64
	found := false
	cmpFirst := int64(c) - int64(ix.refByte(ix.sac(*start)+i))
	cmpLast := int64(c) - int64(ix.refByte(ix.sac(*end)+i))

	if cmpFirst < 0 {
		l = *start + 1
		l2 = *start
	} else if cmpLast > 0 {
		l = *end + 1
		l2 = *end
	} else {
		l = *start
		r = *end
		if cmpFirst == 0 {
			found = true
			r2 = r
		} else {
			for r > l+1 {
				m = (l + r) / 2
				vgl = int64(c) - int64(ix.refByte(ix.sac(m)+i))
				if vgl <= 0 {
					if !found && vgl == 0 {
						found = true
						l2 = m
						r2 = r
					}
					r = m
				} else {
					l = m
				}
			}
			l = r
		}
		if !found {
			l2 = l - 1
		}
		if cmpLast == 0 {
			l2 = *end
		} else {
			for r2 > l2+1 {
				m = (l2 + r2) / 2
				vgl = int64(c) - int64(ix.refByte(ix.sac(m)+i))
				if vgl < 0 {
					r2 = m
				} else {
					l2 = m
				}
			}
		}
	}
	*start, *end = l, l2
	return l <= l2
}

// traverse mirrors longSA::traverse: extend cur by matching P[prefix+...]
// top-down (via the faster search) until a mismatch or minLen is reached.
func (ix *Index[T]) traverse(p []byte, prefix uint64, cur *interval, minLen uint64) {
	if cur.depth >= minLen {
		return
	}
	for prefix+cur.depth < uint64(len(p)) {
		start, end := cur.start, cur.end
		if !ix.topDownFaster(p[prefix+cur.depth], cur.depth, &start, &end) {
			return
		}
		cur.depth++
		cur.start, cur.end = start, end
		if cur.depth == minLen {
			return
		}
	}
}

// expandLink mirrors longSA::expand_link: grows a suffix-linked interval to
// its full LCP-equal range, giving up if more than 2*depth*logN steps are
// needed (the original's heuristic bound on this simulated suffix link).
func (ix *Index[T]) expandLink(link *interval) bool {
	thresh := 2 * link.depth * ix.logN
	var exp uint64
	start, end := link.start, link.end
	for ix.lcpAt(start) >= link.depth {
		exp++
		if exp >= thresh {
			return false
		}
		start--
	}
	for end < ix.nm1 && ix.lcpAt(end+1) >= link.depth {
		exp++
		if exp >= thresh {
			return false
		}
		end++
	}
	link.start, link.end = start, end
	return true
}

// suffixlink mirrors longSA::suffixlink.
func (ix *Index[T]) suffixlink(m *interval) bool {
	if m.depth <= 1 {
		m.depth = 0
		return false
	}
	m.depth--
	m.start = ix.isac(ix.sac(m.start) + 1)
	m.end = ix.isac(ix.sac(m.end) + 1)
	return ix.expandLink(m)
}

// isLeftMaximal mirrors longSA::is_leftmaximal.
func (ix *Index[T]) isLeftMaximal(p []byte, p1, p2 uint64) bool {
	if p1 == 0 || p2 == 0 {
		return true
	}
	return p[p1-1] != ix.refByte(p2-1)
}

func (ix *Index[T]) findLmaximal(p []byte, prefix, i, length, minLen uint64, out *[]Match) {
	if prefix == 0 || i == 0 {
		if length >= minLen {
			*out = append(*out, Match{Ref: i, Query: prefix, Len: length})
		}
		return
	}
	if p[prefix-1] != ix.refByte(i-1) {
		if length >= minLen {
			*out = append(*out, Match{Ref: i, Query: prefix, Len: length})
		}
	}
}

// collectMEMs mirrors longSA::collectMEMs.
func (ix *Index[T]) collectMEMs(p []byte, prefix uint64, mli interval, xmi interval, minLen uint64, out *[]Match) {
	for i := xmi.start; i <= xmi.end; i++ {
		ix.findLmaximal(p, prefix, ix.sac(i), xmi.depth, minLen, out)
	}
	if mli.start == xmi.start && mli.end == xmi.end {
		return
	}
	for xmi.depth >= mli.depth {
		if xmi.end+1 < ix.n {
			a, b := ix.lcpAt(xmi.start), ix.lcpAt(xmi.end+1)
			if a > b {
				xmi.depth = a
			} else {
				xmi.depth = b
			}
		} else {
			xmi.depth = ix.lcpAt(xmi.start)
		}
		if xmi.depth >= mli.depth {
			for ix.lcpAt(xmi.start) >= xmi.depth {
				xmi.start--
				ix.findLmaximal(p, prefix, ix.sac(xmi.start), xmi.depth, minLen, out)
			}
			for xmi.end+1 < ix.n && ix.lcpAt(xmi.end+1) >= xmi.depth {
				xmi.end++
				ix.findLmaximal(p, prefix, ix.sac(xmi.end), xmi.depth, minLen, out)
			}
		}
	}
}

// FindMEM enumerates all maximal exact matches of length >= minLen between
// the query p and the reference, mirroring longSA::findMEM's sliding prefix
// loop driven by the mli/xmi interval pair and the suffix-link simulation.
func (ix *Index[T]) FindMEM(p []byte, minLen uint64) []Match {
	if minLen < 1 {
		return nil
	}
	var out []Match
	prefix := uint64(0)
	mli := interval{0, 0, ix.n - 1}
	xmi := interval{0, 0, ix.n - 1}

	for prefix < uint64(len(p)) {
		ix.traverse(p, prefix, &mli, minLen)
		if mli.depth > xmi.depth {
			xmi = mli
		}
		if mli.depth <= 1 {
			mli.reset(ix.n)
			xmi.reset(ix.n)
			prefix++
			continue
		}

		if mli.depth >= minLen {
			ix.traverse(p, prefix, &xmi, uint64(len(p)))
			ix.collectMEMs(p, prefix, mli, xmi, minLen, &out)
			prefix++
			if !ix.suffixlink(&mli) {
				mli.reset(ix.n)
				xmi.reset(ix.n)
				continue
			}
			ix.suffixlink(&xmi)
		} else {
			prefix++
			if !ix.suffixlink(&mli) {
				mli.reset(ix.n)
				xmi.reset(ix.n)
				continue
			}
			xmi = mli
		}
	}
	return out
}

// FindMAM enumerates maximal almost-unique matches: left-maximal matches
// that occur exactly once in the reference, regardless of how often they
// occur in the query, mirroring longSA::MAM.
func (ix *Index[T]) FindMAM(p []byte, minLen uint64) []Match {
	var out []Match
	cur := interval{0, 0, ix.n - 1}
	prefix := uint64(0)
	for prefix < uint64(len(p)) {
		ix.traverse(p, prefix, &cur, uint64(len(p)))
		if cur.depth <= 1 {
			cur.depth, cur.start, cur.end = 0, 0, ix.n-1
			prefix++
			continue
		}
		if cur.size() == 1 && cur.depth >= minLen {
			if ix.isLeftMaximal(p, prefix, ix.sac(cur.start)) {
				out = append(out, Match{Ref: ix.sac(cur.start), Query: prefix, Len: cur.depth})
			}
		}
		for {
			cur.depth--
			cur.start = ix.isac(ix.sac(cur.start) + 1)
			cur.end = ix.isac(ix.sac(cur.end) + 1)
			prefix++
			if cur.depth == 0 || !ix.expandLink(&cur) {
				cur.depth, cur.start, cur.end = 0, 0, ix.n-1
				break
			}
			if !(cur.depth > 0 && cur.size() == 1) {
				break
			}
		}
	}
	return out
}

func byRefThenLenDesc(a, b Match) bool {
	if a.Ref == b.Ref {
		return a.Len > b.Len
	}
	return a.Ref < b.Ref
}

// FindMUM enumerates maximal unique matches: matches that are unique in
// both the reference and the query, derived from the MAM candidate set by
// the same overlap-elimination pass as Stephan Kurtz's cleanMUMcand.c
// (mirrored from longSA::MUM).
func (ix *Index[T]) FindMUM(p []byte, minLen uint64) []Match {
	matches := ix.FindMAM(p, minLen)
	sort.Slice(matches, func(i, j int) bool { return byRefThenLenDesc(matches[i], matches[j]) })

	var out []Match
	var dbright uint64
	ignorePrevious := false
	for i := range matches {
		ignoreCurrent := false
		currentRight := matches[i].Ref + matches[i].Len - 1
		if dbright > currentRight {
			ignoreCurrent = true
		} else if dbright == currentRight {
			ignoreCurrent = true
			if i > 0 && !ignorePrevious && matches[i-1].Ref == matches[i].Ref {
				ignorePrevious = true
			}
		} else {
			dbright = currentRight
		}
		if i > 0 && !ignorePrevious {
			out = append(out, matches[i-1])
		}
		ignorePrevious = ignoreCurrent
	}
	if !ignorePrevious && len(matches) > 0 {
		out = append(out, matches[len(matches)-1])
	}
	return out
}

// Find dispatches to the algorithm named by kind.
func (ix *Index[T]) Find(kind Kind, p []byte, minLen uint64) []Match {
	vlog.VI(2).Infof("traverse.Find: kind=%d len(p)=%d minLen=%d", kind, len(p), minLen)
	switch kind {
	case MUM:
		return ix.FindMUM(p, minLen)
	case MAM:
		return ix.FindMAM(p, minLen)
	default:
		return ix.FindMEM(p, minLen)
	}
}
