// Package xerrors implements the typed error taxonomy used throughout
// longMUM: every failure that crosses a component boundary carries a Kind
// so callers can distinguish "delete the cache and retry" from "this is a
// bug" without string matching.
//
// The design mirrors the original C++ sources' paa::Error, whose
// operator<< appends context onto a growing message one token at a time
// (see error.h); E appends its string arguments the same way, and wraps the
// triggering cause with github.com/pkg/errors so a stack trace survives the
// first wrap.
package xerrors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Kind classifies an Error per spec.md §7.
type Kind int

const (
	// Other is an unclassified error.
	Other Kind = iota
	// CacheMismatch: persisted FASTA size differs from the current file.
	CacheMismatch
	// IoError: open/read/write/close/mmap/munmap failure.
	IoError
	// ParseError: malformed FASTA/FASTQ/alignment-record/cache header.
	ParseError
	// UnknownChromosome: name not present in the chromosome map.
	UnknownChromosome
	// RangeError: internal invariant violation. Always fatal.
	RangeError
	// AllocationError: out of memory for a build-time buffer.
	AllocationError
	// ConfigError: incompatible flag combination.
	ConfigError
)

func (k Kind) String() string {
	switch k {
	case CacheMismatch:
		return "cache mismatch"
	case IoError:
		return "I/O error"
	case ParseError:
		return "parse error"
	case UnknownChromosome:
		return "unknown chromosome"
	case RangeError:
		return "range error"
	case AllocationError:
		return "allocation error"
	case ConfigError:
		return "config error"
	default:
		return "error"
	}
}

// Error is the concrete error type returned across component boundaries.
// Op and Path, when non-empty, identify where the failure occurred, matching
// spec.md §7's "typed error carrying concatenated context".
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
	ctx  []string
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Op != "" {
		fmt.Fprintf(&b, ": %s", e.Op)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " %s", e.Path)
	}
	for _, c := range e.ctx {
		b.WriteByte(' ')
		b.WriteString(c)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether err is an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	return e.Kind == kind
}

// E constructs an *Error. Arguments may include a Kind, an op string, a
// path string, an underlying error, and extra context strings appended (in
// call order) to the message, mirroring paa::Error's streaming operator<<.
func E(args ...interface{}) *Error {
	e := &Error{}
	for _, a := range args {
		switch v := a.(type) {
		case Kind:
			e.Kind = v
		case *Error:
			// Preserve the inner error's kind if the caller hasn't set one.
			if e.Kind == Other {
				e.Kind = v.Kind
			}
			e.Err = v
		case error:
			e.Err = errors.WithStack(v)
		case string:
			if e.Op == "" {
				e.Op = v
			} else if e.Path == "" {
				e.Path = v
			} else {
				e.ctx = append(e.ctx, v)
			}
		default:
			e.ctx = append(e.ctx, fmt.Sprint(v))
		}
	}
	return e
}
