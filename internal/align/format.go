package align

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/grailbio/hts/sam"

	"github.com/yamrom/smash-paper/internal/chrmap"
	"github.com/yamrom/smash-paper/internal/reference"
)

// ReadFlag bits mirror memsam.h's MapFlag enum (the subset that longMUM
// itself sets; duplicate/vendor-quality flags are left to downstream
// tools, matching the original's scope).
type ReadFlag uint16

const (
	FlagPaired       ReadFlag = 1 << 0
	FlagProper       ReadFlag = 1 << 1
	FlagUnmapped     ReadFlag = 1 << 2
	FlagMateUnmapped ReadFlag = 1 << 3
	FlagReversed     ReadFlag = 1 << 4
	FlagMateReversed ReadFlag = 1 << 5
	FlagFirst        ReadFlag = 1 << 6
	FlagSecond       ReadFlag = 1 << 7
	FlagNotPrimary   ReadFlag = 1 << 8
)

// BuildHeader constructs a sam.Header listing one sam.Reference per
// chromosome in cm, the same @SQ-per-sequence shape
// _examples/original_source/fasta.cpp's sam_header emits, built here with
// grailbio/hts/sam's typed Header/Reference instead of hand-formatted text.
// When rcref is set, cm holds a forward/reverse-complement pair per input
// record sharing one name; only the forward (even-ordinal) half gets an
// @SQ line, since chromosome r.SeqIndex values still need to map back to a
// single unique reference for header lookups in Record.
func BuildHeader(cm *chrmap.Map, rcref bool, programName string) (*sam.Header, error) {
	step := 1
	if rcref {
		step = 2
	}
	refs := make([]*sam.Reference, 0, cm.Len())
	for i := 0; i < cm.Len(); i += step {
		ref, err := sam.NewReference(cm.Name(i), "", "", int(cm.Length(i)), nil, nil)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	h, err := sam.NewHeader(nil, refs)
	if err != nil {
		return nil, err
	}
	h.Programs = append(h.Programs, &sam.Program{
		ID:   "longmum",
		Name: programName,
	})
	return h, nil
}

// HeaderText renders h as the plain-text SAM header block (the @HD/@SQ/@PG
// lines sam.Header's own io.WriterTo would emit), for callers that need the
// header as a string to prepend to each worker's output file rather than
// writing it through an *sam.Header-aware encoder (internal/pipeline's
// OutputSorter: spec.md §4.J's "flush to a uniquely-named file... preceded
// by the alignment-record header").
func HeaderText(h *sam.Header) string {
	var b strings.Builder
	b.WriteString("@HD\tVN:1.5\tSO:unsorted\n")
	for _, ref := range h.Refs() {
		fmt.Fprintf(&b, "@SQ\tSN:%s\tLN:%d\n", ref.Name(), ref.Len())
	}
	for _, p := range h.Programs {
		fmt.Fprintf(&b, "@PG\tID:%s\tPN:%s\n", p.ID, p.Name)
	}
	return b.String()
}

func parseCigar(s string) sam.Cigar {
	if s == "" || s == "*" {
		return nil
	}
	var ops sam.Cigar
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= '0' && c <= '9' {
			n = n*10 + int(c-'0')
			continue
		}
		var op sam.CigarOp
		switch c {
		case '=':
			op = sam.CigarEqual
		case 'M':
			op = sam.CigarMatch
		case 'S':
			op = sam.CigarSoftClipped
		}
		ops = append(ops, sam.NewCigarOp(op, n))
		n = 0
	}
	return ops
}

// Record builds a sam.Record for one alignment, mirroring
// Aligner::print_matches' field-by-field construction including the XM/XU/
// XE/XS/NH/HI tags for every mapped placement and the cc/cp/xo/xc +
// CC/CP/XO/XC lowercase/uppercase tag pairs linking to the previous/next
// alignment in the read's chain.
func Record(header *sam.Header, name string, a *Alignment, readFlag ReadFlag, cm *chrmap.Map, rcref bool,
	seq, qual []byte, nAlignments uint64, optional []sam.Aux) (*sam.Record, error) {
	r := &sam.Record{
		Name:  name,
		MapQ:  50,
		Flags: sam.Flags(readFlag),
	}
	if a == nil || a.NMatches == 0 {
		r.Flags |= sam.Unmapped
		r.Ref = nil
		r.Pos = -1
		r.Cigar = nil
	} else {
		if a.RC {
			r.Flags |= sam.Reverse
		}
		if a.AlignmentIndex != 0 {
			r.Flags |= sam.Secondary
		}
		r.Ref = header.Refs()[headerRefIndex(a.SeqIndex, rcref)]
		r.Pos = int(a.Pos)
		r.Cigar = parseCigar(a.Cigar)
	}
	if a != nil && a.BestMate != nil {
		r.MateRef = header.Refs()[headerRefIndex(a.BestMate.SeqIndex, rcref)]
		r.MatePos = int(a.BestMate.Pos)
	}
	if a != nil && a.RC {
		r.Seq = sam.NewSeq(reference.ReverseComplement(seq))
		r.Qual = reverseBytes(qual)
	} else {
		r.Seq = sam.NewSeq(seq)
		r.Qual = qual
	}

	if a != nil && a.NMatches > 0 {
		addAux(r, "XM", int(a.NMatches))
		addAux(r, "XU", int(a.NUniqueBases))
		addAux(r, "XE", int(a.NMatchedBases))
		strand := "+"
		if a.RC {
			strand = "-"
		}
		addAux(r, "XS", strand)
		addAux(r, "NH", int(nAlignments))
		addAux(r, "HI", int(a.AlignmentIndex))
		if a.Prev != nil && a.Prev != a {
			addAux(r, "cc", cm.Name(a.Prev.SeqIndex))
			addAux(r, "cp", int(a.Prev.Pos)+1)
			addAux(r, "xo", linkOrientation(a.Prev, a))
			addAux(r, "xc", a.Prev.Cigar)
		}
		if a.Next != nil && a.Next != a {
			addAux(r, "CC", cm.Name(a.Next.SeqIndex))
			addAux(r, "CP", int(a.Next.Pos)+1)
			addAux(r, "XO", linkOrientation(a.Next, a))
			addAux(r, "XC", a.Next.Cigar)
		}
	} else {
		addAux(r, "XM", 0)
		addAux(r, "NH", 0)
	}
	r.AuxFields = append(r.AuxFields, optional...)
	return r, nil
}

// headerRefIndex converts a chrmap ordinal (which, under rcref, counts
// both the forward and reverse-complement half of every record) into the
// compacted index BuildHeader used for its one-@SQ-line-per-record list.
func headerRefIndex(seqIndex int, rcref bool) int {
	if rcref {
		return seqIndex / 2
	}
	return seqIndex
}

func linkOrientation(other, a *Alignment) string {
	if other.RC == a.RC {
		return "="
	}
	return "!"
}

// ParseOptional decodes the trailing "TAG:TYPE:VALUE" tab fields
// readio.Read.Optional preserves from -samin input back into sam.Aux
// values, so a record re-emitted with -samout -samin round-trips whatever
// tags the upstream alignment-record producer attached (query.cpp's
// NewQuery::add_optional keeps these as an opaque tab-joined string; here
// they are decoded just enough to build typed sam.Aux entries). Fields
// that don't parse as TAG:TYPE:VALUE are skipped rather than failing the
// whole record.
func ParseOptional(fields []string) []sam.Aux {
	var out []sam.Aux
	for _, f := range fields {
		if len(f) < 5 || f[2] != ':' || f[4] != ':' {
			continue
		}
		tag := sam.NewTag(f[0:2])
		typ := f[3]
		val := f[5:]
		var v interface{}
		switch typ {
		case 'i':
			n, err := strconv.Atoi(val)
			if err != nil {
				continue
			}
			v = n
		case 'f':
			fv, err := strconv.ParseFloat(val, 64)
			if err != nil {
				continue
			}
			v = fv
		case 'A':
			if len(val) != 1 {
				continue
			}
			v = val[0]
		default:
			v = val
		}
		aux, err := sam.NewAux(tag, v)
		if err != nil {
			continue
		}
		out = append(out, aux)
	}
	return out
}

func addAux(r *sam.Record, tag string, val interface{}) {
	aux, err := sam.NewAux(sam.NewTag(tag), val)
	if err != nil {
		return
	}
	r.AuxFields = append(r.AuxFields, aux)
}

func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[len(b)-1-i] = c
	}
	return out
}

// FormatPos is a convenience used by tests and textual (non-SAM) output.
func FormatPos(a *Alignment) string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(a.Pos+1, 10))
	return b.String()
}
