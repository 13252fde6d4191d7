// Package readio scans FASTA and FASTQ query streams into the Read records
// the worker pipeline consumes (spec.md §4.I).
//
// The Scanner type is grounded directly on the teacher's
// encoding/fastq.Scanner: a bufio.Scanner wrapped with field validation and
// an Err()-after-Scan()-returns-false protocol. FASTA query scanning reuses
// the same multi-line-sequence accumulation internal/reference.Load uses.
// Mate-suffix detection (":0"/":1" trimmed from the read name) is grounded
// on _examples/original_source/query.cpp's Aligner::reset.
package readio

import (
	"bufio"
	"errors"
	"io"
	"strings"

	"github.com/yamrom/smash-paper/internal/xerrors"
)

var (
	// ErrShort is returned when a truncated FASTQ record is encountered.
	ErrShort = errors.New("short FASTQ record")
	// ErrInvalid is returned when a malformed FASTQ record is encountered.
	ErrInvalid = errors.New("invalid FASTQ record")
)

// MateFlag identifies which half of a pair a Read belongs to, mirroring
// memsam.h's is_first/is_second bits.
type MateFlag int

const (
	MateNone MateFlag = iota
	MateFirst
	MateSecond
)

// Read is one query record, mirroring query.h's Query/NewQuery after
// NewQuery::reset has stripped a trailing mate suffix from the name.
type Read struct {
	Name     string
	Query    []byte // lower-cased bases, possibly '~'-substituted for non-ACGT
	Original []byte // bases as read, case preserved
	Quals    []byte
	Mate     MateFlag
	// Optional carries any trailing tab-separated fields preserved verbatim
	// from alignment-record input (query.cpp's NewQuery::add_optional);
	// empty for FASTA/FASTQ input.
	Optional []string
}

// headerMateName mirrors QueryReader::run's FASTA/FASTQ header scan: the
// name token runs to the first space or tab; if the header continues past
// that separator, a following '1' or '2' (the Illumina-style " 1:N:0:.."/
// " 2:N:0:.." mate marker) is translated into an appended ":0"/":1", the
// same suffix Aligner::reset later strips back off.
func headerMateName(header string) string {
	for i := 0; i < len(header); i++ {
		if header[i] == ' ' || header[i] == '\t' {
			name := header[:i]
			if i+1 < len(header) {
				switch header[i+1] {
				case '1':
					name += ":0"
				case '2':
					name += ":1"
				}
			}
			return name
		}
	}
	return header
}

// stripMateSuffix detects a trailing ":0" or ":1" on name and removes it,
// mirroring Aligner::reset's pos = name.size()-2 check.
func stripMateSuffix(name string) (string, MateFlag) {
	if len(name) < 2 {
		return name, MateNone
	}
	pos := len(name) - 2
	if name[pos] != ':' {
		return name, MateNone
	}
	switch name[pos+1] {
	case '0':
		return name[:pos], MateFirst
	case '1':
		return name[:pos], MateSecond
	default:
		return name, MateNone
	}
}

// NucleotidesOnly controls whether non-ACGT bases in Query are replaced
// with '~' (NewQueryArgs::nucleotides_only).
type Opts struct {
	NucleotidesOnly bool
}

func encodeQuery(original []byte, opts Opts) []byte {
	out := make([]byte, len(original))
	for i, c := range original {
		lc := toLower(c)
		if opts.NucleotidesOnly {
			switch lc {
			case 'a', 't', 'g', 'c':
				out[i] = lc
			default:
				out[i] = '~'
			}
		} else {
			out[i] = lc
		}
	}
	return out
}

func toLower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

// FastqScanner reads 4-line FASTQ records, mirroring
// encoding/fastq.Scanner's structure and error protocol.
type FastqScanner struct {
	b    *bufio.Scanner
	opts Opts
	err  error
}

// NewFastqScanner wraps r (already decompressed, if needed, by the caller).
func NewFastqScanner(r io.Reader, opts Opts) *FastqScanner {
	b := bufio.NewScanner(r)
	b.Buffer(nil, 1<<20)
	return &FastqScanner{b: b, opts: opts}
}

// Scan reads the next record into read. It returns false at EOF or on
// error; callers must check Err() afterward.
func (f *FastqScanner) Scan(read *Read) bool {
	if f.err != nil {
		return false
	}
	if !f.b.Scan() {
		f.err = f.b.Err()
		return false
	}
	idLine := f.b.Bytes()
	if len(idLine) == 0 || idLine[0] != '@' {
		f.err = ErrInvalid
		return false
	}
	name, mate := stripMateSuffix(headerMateName(string(idLine[1:])))

	if !f.scan() {
		return false
	}
	original := append([]byte(nil), f.b.Bytes()...)

	if !f.scan() {
		return false
	}
	plusLine := f.b.Bytes()
	if len(plusLine) == 0 || plusLine[0] != '+' {
		f.err = ErrInvalid
		return false
	}

	if !f.scan() {
		return false
	}
	quals := append([]byte(nil), f.b.Bytes()...)

	read.Name = name
	read.Mate = mate
	read.Original = original
	read.Query = encodeQuery(original, f.opts)
	read.Quals = quals
	return true
}

func (f *FastqScanner) scan() bool {
	if !f.b.Scan() {
		if f.err = f.b.Err(); f.err == nil {
			f.err = ErrShort
		}
		return false
	}
	return true
}

// Err returns the scanning error, if any.
func (f *FastqScanner) Err() error { return f.err }

// FastaScanner reads multi-line FASTA query records (no quality string).
type FastaScanner struct {
	b        *bufio.Scanner
	opts     Opts
	pending  string
	havePend bool
	err      error
}

// NewFastaScanner wraps r.
func NewFastaScanner(r io.Reader, opts Opts) *FastaScanner {
	b := bufio.NewScanner(r)
	b.Buffer(nil, 1<<20)
	return &FastaScanner{b: b, opts: opts}
}

// Scan reads the next record into read, accumulating sequence lines until
// the next '>' header or EOF.
func (f *FastaScanner) Scan(read *Read) bool {
	if f.err != nil {
		return false
	}
	var header string
	if f.havePend {
		header = f.pending
		f.havePend = false
	} else {
		if !f.b.Scan() {
			f.err = f.b.Err()
			return false
		}
		line := f.b.Text()
		if len(line) == 0 || line[0] != '>' {
			f.err = xerrors.E(xerrors.ParseError, "expected '>' header")
			return false
		}
		header = line
	}

	var seq strings.Builder
	for f.b.Scan() {
		line := f.b.Text()
		if len(line) > 0 && line[0] == '>' {
			f.pending = line
			f.havePend = true
			break
		}
		seq.WriteString(strings.TrimSpace(line))
	}
	if err := f.b.Err(); err != nil {
		f.err = err
		return false
	}

	name, mate := stripMateSuffix(headerMateName(strings.TrimSpace(header[1:])))
	original := []byte(seq.String())
	read.Name = name
	read.Mate = mate
	read.Original = original
	read.Query = encodeQuery(original, f.opts)
	read.Quals = nil
	return true
}

// Err returns the scanning error, if any.
func (f *FastaScanner) Err() error { return f.err }

// samFlagFirst and samFlagSecond mirror memsam.h's is_first/is_second bits,
// the subset of the alignment-record FLAG field QueryReader::run inspects
// to pick a ":0"/":1" mate suffix for -samin input.
const (
	samFlagFirst  = 1 << 6
	samFlagSecond = 1 << 7
)

// SamScanner reads alignment-record (tab-separated) input as query records,
// mirroring QueryReader::run's sam_in branch: split the line on tabs,
// derive the mate suffix from the FLAG field rather than the read name, and
// preserve any fields past the fixed 11 as Read.Optional.
type SamScanner struct {
	b    *bufio.Scanner
	opts Opts
	err  error
}

// NewSamScanner wraps r.
func NewSamScanner(r io.Reader, opts Opts) *SamScanner {
	b := bufio.NewScanner(r)
	b.Buffer(nil, 1<<20)
	return &SamScanner{b: b, opts: opts}
}

// Scan reads the next non-header data line into read. Lines beginning with
// '@' (the alignment-record header block) are skipped.
func (s *SamScanner) Scan(read *Read) bool {
	if s.err != nil {
		return false
	}
	var line string
	for {
		if !s.b.Scan() {
			s.err = s.b.Err()
			return false
		}
		line = s.b.Text()
		if line == "" {
			continue
		}
		if line[0] == '@' {
			continue
		}
		break
	}

	fields := strings.Split(line, "\t")
	if len(fields) < 11 {
		s.err = xerrors.E(xerrors.ParseError, "alignment record", "fewer than 11 fields")
		return false
	}
	flagVal, err := parseUint16(fields[1])
	if err != nil {
		s.err = xerrors.E(xerrors.ParseError, "alignment record", "flag", fields[1])
		return false
	}

	name := fields[0]
	switch {
	case flagVal&samFlagFirst != 0:
		name += ":0"
	case flagVal&samFlagSecond != 0:
		name += ":1"
	}
	finalName, mate := stripMateSuffix(name)

	original := []byte(fields[9])
	read.Name = finalName
	read.Mate = mate
	read.Original = original
	read.Query = encodeQuery(original, s.opts)
	read.Quals = []byte(fields[10])
	if len(fields) > 11 {
		read.Optional = append([]string(nil), fields[11:]...)
	} else {
		read.Optional = nil
	}
	return true
}

// Err returns the scanning error, if any.
func (s *SamScanner) Err() error { return s.err }

func parseUint16(s string) (uint16, error) {
	var v uint16
	if s == "" {
		return 0, errors.New("empty field")
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, errors.New("not a number")
		}
		v = v*10 + uint16(c-'0')
	}
	return v, nil
}
