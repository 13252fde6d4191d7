// Package reference implements the reference loader (spec.md §4.B): parsing
// a FASTA stream into a single concatenated lower-cased buffer with
// separator and sentinel bytes, optional reverse-complement doubling, and
// the versioned on-disk cache of that buffer.
//
// Grounded on _examples/original_source/fasta.cpp's Sequence constructor
// (trim/tolower per line, '`' separator, '$' sentinel, reverse_complement
// appended per record when rcref is set) and on the teacher's
// encoding/fasta package for the streaming-scanner style of parse.
package reference

import (
	"bufio"
	"io"
	"strings"

	kgzip "github.com/klauspost/compress/gzip"

	"github.com/yamrom/smash-paper/internal/xerrors"
)

const (
	// Separator is the byte placed between concatenated sub-sequences. It
	// must not occur in the nucleotide alphabet.
	Separator = '`'
	// Sentinel terminates the whole buffer and must sort strictly less than
	// every other byte used (see suffix sorter rank assignment).
	Sentinel = '$'
)

// Reference is the immutable concatenated buffer R of spec.md §3, plus its
// per-subsequence metadata.
type Reference struct {
	Bases       []byte
	Names       []string
	Lengths     []uint64
	StartOffset []uint64
	RCRef       bool
}

// N is the total length of the concatenated buffer, including separators
// and the final sentinel.
func (r *Reference) N() uint64 { return uint64(len(r.Bases)) }

// NumSequences is the number of entries in Names/Lengths/StartOffset. With
// RCRef enabled this is twice the number of FASTA records.
func (r *Reference) NumSequences() int { return len(r.Names) }

// revCompTable is a 256-entry lookup table for IUPAC complement, built the
// same way util.cpp's reverse_complement switches on each byte — as a flat
// table instead of a branch chain, which is how the teacher's
// biosimd.CleanASCIISeq* functions are structured (table-driven byte
// transforms over a nucleotide alphabet).
var revCompTable = buildRevCompTable()

func buildRevCompTable() [256]byte {
	var t [256]byte
	for i := range t {
		t[i] = byte(i)
	}
	pairs := map[byte]byte{
		'a': 't', 'c': 'g', 'g': 'c', 't': 'a',
		'r': 'y', 'y': 'r', 'm': 'k', 'k': 'm',
		'b': 'v', 'd': 'h', 'h': 'd', 'v': 'b',
		'A': 'T', 'C': 'G', 'G': 'C', 'T': 'A',
		'R': 'Y', 'Y': 'R', 'M': 'K', 'K': 'M',
		'B': 'V', 'D': 'H', 'H': 'D', 'V': 'B',
	}
	for k, v := range pairs {
		t[k] = v
	}
	return t
}

// ReverseComplement returns the reverse complement of seq, matching
// util.cpp's reverse_complement (reverse in place, then complement each
// byte via table lookup, leaving unrecognized bytes and case unchanged).
func ReverseComplement(seq []byte) []byte {
	out := make([]byte, len(seq))
	n := len(seq)
	for i := 0; i < n; i++ {
		out[n-1-i] = revCompTable[seq[i]]
	}
	return out
}

// Opts controls FASTA parsing.
type Opts struct {
	// RCRef appends the reverse complement of each record as a second
	// sub-sequence sharing the record's name (spec.md §4.B).
	RCRef bool
}

// Load parses a FASTA-like stream into a Reference. If name ends in ".gz"
// the reader is expected to already be decompressed by the caller through
// NewGzipReader — Load itself never peeks at the file name.
func Load(r io.Reader, opts Opts) (*Reference, error) {
	ref := &Reference{RCRef: opts.RCRef}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, 1<<30)

	var buf []byte
	var curName string
	var curStart int
	haveRecord := false

	flush := func(isLast bool) {
		length := uint64(len(buf) - curStart)
		ref.Names = append(ref.Names, curName)
		ref.Lengths = append(ref.Lengths, length)
		ref.StartOffset = append(ref.StartOffset, uint64(curStart))
		// fasta.cpp inserts the separator before the reverse complement
		// whenever rcref is set, even for the very last record — only the
		// separator between this record's rc and the *next* record's
		// forward strand is conditioned on !isLast.
		if opts.RCRef || !isLast {
			buf = append(buf, Separator)
		}
		if opts.RCRef {
			forward := buf[curStart : curStart+int(length)]
			rc := ReverseComplement(forward)
			rcStart := len(buf)
			buf = append(buf, rc...)
			ref.Names = append(ref.Names, curName)
			ref.Lengths = append(ref.Lengths, length)
			ref.StartOffset = append(ref.StartOffset, uint64(rcStart))
			if !isLast {
				buf = append(buf, Separator)
			}
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' {
			if haveRecord {
				flush(false)
			}
			name := strings.TrimSpace(line[1:])
			if sp := strings.IndexAny(name, " \t"); sp >= 0 {
				name = name[:sp]
			}
			curName = name
			curStart = len(buf)
			haveRecord = true
			continue
		}
		if !haveRecord {
			return nil, xerrors.E(xerrors.ParseError, "malformed FASTA: sequence data before first header")
		}
		for i := 0; i < len(line); i++ {
			c := line[i]
			if c == ' ' || c == '\t' || c == '\r' {
				continue
			}
			buf = append(buf, toLower(c))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, xerrors.E(xerrors.ParseError, "read FASTA", err)
	}
	if !haveRecord {
		return nil, xerrors.E(xerrors.ParseError, "empty FASTA file")
	}
	flush(true)
	buf = append(buf, Sentinel)
	ref.Bases = buf
	return ref, nil
}

func toLower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

// NewGzipReader wraps r with klauspost/compress's faster drop-in gzip
// reader when gzipped is set, the same substitution role klauspost/compress
// plays across the teacher corpus's read paths.
func NewGzipReader(r io.Reader, gzipped bool) (io.Reader, error) {
	if !gzipped {
		return r, nil
	}
	gz, err := kgzip.NewReader(r)
	if err != nil {
		return nil, xerrors.E(xerrors.ParseError, "gzip", err)
	}
	return gz, nil
}
