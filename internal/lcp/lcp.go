// Package lcp computes and stores the longest-common-prefix array that
// accompanies the suffix array (spec.md §4.E).
//
// Grounded on _examples/original_source/longSA.cpp's vec_uchar and
// longSA::computeLCP: LCP values are computed by Kasai's algorithm in O(N)
// using SA and ISA, then stored as a byte per position with an overflow side
// table (vec_uchar::M, an array of (index, value) pairs) for the rare
// entries that do not fit in a byte; vec_uchar::init sorts the overflow
// table once after construction so lookups can binary search it.
package lcp

import (
	"encoding/binary"
	"sort"

	"github.com/yamrom/smash-paper/internal/ioutil"
)

// overflow255 is the sentinel byte value meaning "see the side table",
// matching vec_uchar::set's use of numeric_limits<unsigned char>::max().
const overflow255 = 255

// item mirrors vec_uchar::item_t, an (index, value) overflow entry.
type item struct {
	Idx uint64
	Val uint64
}

// Array is the clamped-byte LCP array with its overflow side table.
type Array struct {
	vec      []byte // Build mode
	overflow []item // Build mode, sorted by Idx in Compute

	mapped   *ioutil.Mapping // Load mode: vec bytes
	mOverlay *ioutil.Mapping // Load mode: overflow table bytes
}

// Uint is the index/value width used for SA and ISA; LCP values here are
// always stored in a uint64 side table regardless of that width, since LCP
// values can exceed either width's practical range only in pathological
// repeat-heavy inputs, and the side table is already the overflow path.
type Uint = ioutil.Uint

// Compute builds the LCP array for a suffix array sa / inverse suffix array
// isa pair over the underlying text s, following longSA::computeLCP's
// h-never-decreases-by-more-than-one argument (Kasai et al. 2001).
func Compute[T Uint](s []byte, saVec, isaVec *ioutil.Vector[T]) *Array {
	n := saVec.Len()
	a := &Array{vec: make([]byte, n)}
	h := 0
	for i := 0; i < n; i++ {
		m := int(isaVec.At(i))
		if m == 0 {
			a.set(m, 0)
		} else {
			j := int(saVec.At(m - 1))
			for i+h < n && j+h < n && s[i+h] == s[j+h] {
				h++
			}
			a.set(m, h)
		}
		if h > 0 {
			h--
		}
	}
	sort.Slice(a.overflow, func(i, j int) bool { return a.overflow[i].Idx < a.overflow[j].Idx })
	return a
}

func (a *Array) set(idx, v int) {
	if v >= overflow255 {
		a.vec[idx] = overflow255
		a.overflow = append(a.overflow, item{Idx: uint64(idx), Val: uint64(v)})
	} else {
		a.vec[idx] = byte(v)
	}
}

// At returns the LCP value at idx, resolving through the overflow table
// when the stored byte is the clamp sentinel.
func (a *Array) At(idx int) uint64 {
	var b byte
	if a.mapped != nil {
		b = a.mapped.Bytes()[idx]
	} else {
		b = a.vec[idx]
	}
	if b != overflow255 {
		return uint64(b)
	}
	return a.overflowAt(idx)
}

func (a *Array) overflowAt(idx int) uint64 {
	data := a.overflowItems()
	lo, hi := 0, len(data)
	for lo < hi {
		mid := (lo + hi) / 2
		if data[mid].Idx < uint64(idx) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(data) && data[lo].Idx == uint64(idx) {
		return data[lo].Val
	}
	return overflow255
}

func (a *Array) overflowItems() []item {
	if a.mOverlay == nil {
		return a.overflow
	}
	raw := a.mOverlay.Bytes()
	n := len(raw) / 16
	out := make([]item, n)
	for i := 0; i < n; i++ {
		out[i].Idx = binary.LittleEndian.Uint64(raw[i*16:])
		out[i].Val = binary.LittleEndian.Uint64(raw[i*16+8:])
	}
	return out
}

// Len returns the number of positions covered.
func (a *Array) Len() int {
	if a.mapped != nil {
		return a.mapped.Len()
	}
	return len(a.vec)
}

// Save writes the clamped byte vector and the overflow side table as two
// separate files, matching vec_uchar::save's base+".lcp.vec.bin" /
// base+".lcp.m.bin" split.
func (a *Array) Save(vecPath, overflowPath string) error {
	if err := ioutil.WriteFile(vecPath, a.vec); err != nil {
		return err
	}
	buf := make([]byte, len(a.overflow)*16)
	for i, it := range a.overflow {
		binary.LittleEndian.PutUint64(buf[i*16:], it.Idx)
		binary.LittleEndian.PutUint64(buf[i*16+8:], it.Val)
	}
	return ioutil.WriteFile(overflowPath, buf)
}

// Load memory-maps a previously saved Array, read-only.
func Load(vecPath, overflowPath string, readAhead bool) (*Array, error) {
	vecMap, err := ioutil.Map(vecPath, readAhead)
	if err != nil {
		return nil, err
	}
	mMap, err := ioutil.Map(overflowPath, readAhead)
	if err != nil {
		vecMap.Close()
		return nil, err
	}
	return &Array{mapped: vecMap, mOverlay: mMap}, nil
}

// Close releases mapped resources. No-op in Build mode.
func (a *Array) Close() error {
	if a.mapped != nil {
		if err := a.mapped.Close(); err != nil {
			return err
		}
	}
	if a.mOverlay != nil {
		return a.mOverlay.Close()
	}
	return nil
}
