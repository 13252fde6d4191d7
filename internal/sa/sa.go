// Package sa builds the suffix array and inverse suffix array over the
// concatenated reference buffer (spec.md §4.D).
//
// Grounded on _examples/original_source/longSA.cpp's longSA constructor: the
// byte alphabet is first remapped to a dense integer alphabet (char2int),
// then sorted by calling into the Larsson-Sadakane "LS" suffix sorter
// (suffixsort, an external qsufsort.c not included in the retrieved
// sources). Larsson-Sadakane is itself a prefix-doubling algorithm with an
// auxiliary inverse array reused as scratch space; Build below implements
// that same prefix-doubling scheme directly in Go — doubling the compared
// prefix length each round and deriving new ranks from (rank[i], rank[i+h])
// pairs — which is the textbook form of the same algorithm, generalized
// here to the Uint index-width constraint of internal/ioutil instead of a
// single fixed ANINT width.
package sa

import (
	"sort"

	"github.com/yamrom/smash-paper/internal/ioutil"
)

// Result holds the built suffix array and inverse suffix array, both of
// length N = len(s).
type Result[T ioutil.Uint] struct {
	SA  *ioutil.Vector[T]
	ISA *ioutil.Vector[T]
}

// Build constructs SA and ISA for s. s must already contain the sentinel
// byte the caller wants sorted lowest (internal/reference appends '$'),
// which the rank-remapping below naturally assigns rank 0 only if it is the
// globally smallest byte present — callers rely on internal/reference's
// Sentinel being '$', which sorts below the nucleotide alphabet in plain
// byte order.
func Build[T ioutil.Uint](s []byte) *Result[T] {
	n := len(s)

	// Remap the byte alphabet to dense ranks 0..alphasz-1, preserving byte
	// order, the same role longSA.cpp's char2int table plays.
	var present [256]bool
	for _, c := range s {
		present[c] = true
	}
	var byteRank [256]int32
	next := int32(0)
	for c := 0; c < 256; c++ {
		if present[c] {
			byteRank[c] = next
			next++
		}
	}

	rank := make([]int32, n)
	for i, c := range s {
		rank[i] = byteRank[c]
	}

	sa := make([]int32, n)
	for i := range sa {
		sa[i] = int32(i)
	}

	tmp := make([]int32, n)
	cmpLess := func(h int) func(i, j int32) bool {
		return func(i, j int32) bool {
			if rank[i] != rank[j] {
				return rank[i] < rank[j]
			}
			ri := int32(-1)
			if int(i)+h < n {
				ri = rank[i+int32(h)]
			}
			rj := int32(-1)
			if int(j)+h < n {
				rj = rank[j+int32(h)]
			}
			return ri < rj
		}
	}

	for h := 1; ; h *= 2 {
		less := cmpLess(h)
		sort.Slice(sa, func(i, j int) bool { return less(sa[i], sa[j]) })

		tmp[sa[0]] = 0
		for i := 1; i < n; i++ {
			tmp[sa[i]] = tmp[sa[i-1]]
			if less(sa[i-1], sa[i]) {
				tmp[sa[i]]++
			}
		}
		copy(rank, tmp)

		if int(rank[sa[n-1]]) == n-1 {
			break
		}
		if h > n {
			break
		}
	}

	res := &Result[T]{
		SA:  ioutil.NewBuildVector[T](n),
		ISA: ioutil.NewBuildVector[T](n),
	}
	res.SA.Resize(n)
	res.ISA.Resize(n)
	for i := 0; i < n; i++ {
		res.SA.Set(i, T(sa[i]))
		res.ISA.Set(int(sa[i]), T(i))
	}
	return res
}
