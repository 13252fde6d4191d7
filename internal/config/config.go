// Package config resolves the command-line surface (spec.md §6) into the
// typed Config struct internal/pipeline and cmd/longmum build against. This
// package is pure option resolution — no flag registration — kept separate
// from cmd/longmum the same way the teacher's cmd/bio-fusion/main.go keeps a
// plain options struct distinct from the flag.*Var calls that populate it.
package config

import (
	"strings"

	"github.com/yamrom/smash-paper/internal/traverse"
	"github.com/yamrom/smash-paper/internal/xerrors"
)

// Config is the resolved set of options a longMUM run needs, the
// configuration struct spec.md §6 says command-line parsing is expected to
// produce.
type Config struct {
	// Kind is the match family to enumerate.
	Kind traverse.Kind
	// MatchKindToken is the raw CLI token Kind is resolved from by
	// ResolveKind.
	MatchKindToken string

	MinLen          uint64 // -l, default 20
	NucleotidesOnly bool   // -n
	QThreads        int    // -qthreads
	SamOut          bool   // -samout
	SamIn           bool   // -samin
	Fastq           bool   // -fastq (FASTA query input otherwise)
	NoMap           bool   // -nomap
	RCRef           bool   // -rcref
	Mappability     bool   // -mappability
	Cached          bool   // -cached: map the index without MAP_POPULATE
	NormalMem       bool   // -normalmem: recorded only; the index is always memory-mapped
	MinBlock        uint64 // -minblock
	Verbose         bool   // -verbose

	RefPath   string
	QueryPath string
}

// DefaultMinLen is spec.md §6's default for -l.
const DefaultMinLen = 20

// New returns a Config with the documented CLI defaults; callers fill in
// the rest (RefPath, QueryPath, and whichever flags were set) before
// calling Validate.
func New() Config {
	return Config{
		Kind:           traverse.MEM,
		MatchKindToken: "maxmatch",
		MinLen:         DefaultMinLen,
		QThreads:       1,
	}
}

// ResolveKind maps one of the four CLI match-kind tokens onto
// internal/traverse's 3-valued Kind. "mumreference" and "mumcand" both
// collapse onto MAM, the same routing the original option table uses, where
// mumcand is an alias of mumreference (see SPEC_FULL.md §D.2).
func ResolveKind(token string) (traverse.Kind, error) {
	switch strings.ToLower(token) {
	case "mum":
		return traverse.MUM, nil
	case "mumreference", "mumcand":
		return traverse.MAM, nil
	case "maxmatch":
		return traverse.MEM, nil
	default:
		return 0, xerrors.E(xerrors.ConfigError, "unknown match kind", token)
	}
}

// Validate rejects incompatible flag combinations, mirroring spec.md §7's
// ConfigError examples (mappability without rcref; nomap without an
// alignment-record sink).
func (c Config) Validate() error {
	if c.Mappability && !c.RCRef {
		return xerrors.E(xerrors.ConfigError, "mappability requires rcref")
	}
	if c.NoMap && !c.SamOut {
		return xerrors.E(xerrors.ConfigError, "nomap requires samout")
	}
	if c.SamIn && c.Fastq {
		return xerrors.E(xerrors.ConfigError, "samin and fastq are mutually exclusive query input modes")
	}
	if c.QThreads < 1 {
		return xerrors.E(xerrors.ConfigError, "qthreads must be at least 1")
	}
	if c.RefPath == "" {
		return xerrors.E(xerrors.ConfigError, "reference FASTA path is required")
	}
	return nil
}
