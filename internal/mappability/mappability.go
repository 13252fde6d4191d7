// Package mappability computes per-position minimum-unique-match-length
// reporting over an already-built index (spec.md §4.K).
//
// Grounded on _examples/original_source/longSA.cpp's show()/
// show_mappability(): min_lengths[i] starts as LCP[i]+1 at every suffix-array
// rank and is propagated backward with a running max, giving the length of
// the shortest substring starting at that suffix that occurs nowhere else in
// the (doubled) reference. The per-chromosome loop then looks up each
// forward position's rank (sapos) and its reverse-complement counterpart's
// rank (rcsapos), zeroes out the two boundary artifacts the original's
// "+ i >= size_" / ">= i" checks catch, and writes one record per base.
//
// Unlike longSA.cpp's show(), which ends with a hard exit(0), Write returns
// normally and reports errors through Go's usual error return — process
// termination is left entirely to the caller (DESIGN.md's component K Open
// Question resolution on decoupling library code from process exit).
package mappability

import (
	"bufio"
	"fmt"
	"io"

	"github.com/yamrom/smash-paper/internal/chrmap"
	"github.com/yamrom/smash-paper/internal/ioutil"
	"github.com/yamrom/smash-paper/internal/traverse"
)

// Format selects Write's output encoding.
type Format int

const (
	// Text writes "chrom\tpos\tlmin\trmin\n" per base, 1-based pos.
	Text Format = iota
	// Binary writes two clamped-to-255 bytes per base: lmin then rmin,
	// mirroring show()'s bin=true branch.
	Binary
)

const clampMax = 255

// minLengths computes longSA.cpp's min_lengths vector: LCP[rank]+1 at every
// rank, propagated backward with a running max so that min_lengths[rank] is
// the length of the shortest left-maximal extension unique to that suffix.
func minLengths[T ioutil.Uint](ix *traverse.Index[T]) []uint64 {
	n := ix.N()
	out := make([]uint64, n)
	for i := uint64(0); i != n; i++ {
		out[i] = ix.LCP(i) + 1
		if i != 0 && out[i-1] < out[i] {
			out[i-1] = out[i]
		}
	}
	return out
}

// Write emits one mappability record per base of every forward chromosome
// in cm (odd, reverse-complement ordinals are skipped — they are derived
// from the forward strand's own record), in the format selected by format.
func Write[T ioutil.Uint](w io.Writer, ix *traverse.Index[T], cm *chrmap.Map, format Format) error {
	lens := minLengths(ix)
	bw := bufio.NewWriter(w)
	if format == Text {
		if _, err := bw.WriteString("chrom\tpos\tlmin\trmin\n"); err != nil {
			return err
		}
	}

	for chrom := 0; chrom < cm.Len(); chrom += 2 {
		name := cm.Name(chrom)
		startpos := cm.Start(chrom)
		size := cm.Length(chrom)
		for i := uint64(0); i != size; i++ {
			pos := i + startpos
			sapos := ix.ISA(pos)
			rcsapos := ix.ISA(startpos + 2*size - i)

			if lens[sapos]+i >= size {
				lens[sapos] = 0
			}
			if lens[rcsapos] >= i {
				lens[rcsapos] = 0
			}

			lmin := clamp(lens[rcsapos])
			rmin := clamp(lens[sapos])

			var err error
			if format == Binary {
				_, err = bw.Write([]byte{byte(lmin), byte(rmin)})
			} else {
				_, err = fmt.Fprintf(bw, "%s\t%d\t%d\t%d\n", name, i+1, lens[rcsapos], lens[sapos])
			}
			if err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

func clamp(v uint64) uint64 {
	if v > clampMax {
		return clampMax
	}
	return v
}
