// longmum finds maximal exact, almost-unique, or unique matches between a
// reference FASTA and a stream of query reads, emitting either SAM records
// or a mappability map.
//
// Usage: longmum -ref reference.fa -query reads.fastq -fastq -samout
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"

	"github.com/yamrom/smash-paper/internal/align"
	"github.com/yamrom/smash-paper/internal/cache"
	"github.com/yamrom/smash-paper/internal/chrmap"
	"github.com/yamrom/smash-paper/internal/config"
	"github.com/yamrom/smash-paper/internal/ioutil"
	"github.com/yamrom/smash-paper/internal/mappability"
	"github.com/yamrom/smash-paper/internal/pipeline"
	"github.com/yamrom/smash-paper/internal/readio"
	"github.com/yamrom/smash-paper/internal/reference"
	"github.com/yamrom/smash-paper/internal/traverse"
)

var (
	refPath      = flag.String("ref", "", "Reference FASTA path (required)")
	queryPath    = flag.String("query", "", "Query read path; defaults to stdin")
	matchKind    = flag.String("match", "maxmatch", "Match kind: mum, mumreference, mumcand, or maxmatch")
	minLen       = flag.Uint64("l", config.DefaultMinLen, "Minimum match length")
	minBlock     = flag.Uint64("minblock", 0, "Minimum merged-block unique-base count to report")
	nucOnly      = flag.Bool("n", false, "Treat non-ACGT query bases as mismatches everywhere ('n' -> '~')")
	qThreads     = flag.Int("qthreads", runtime.NumCPU(), "Number of aligner worker goroutines")
	samOut       = flag.Bool("samout", false, "Required by -nomap; output is SAM records with or without this flag")
	samIn        = flag.Bool("samin", false, "Query input is tab-separated alignment records (FASTA/FASTQ otherwise)")
	fastqIn      = flag.Bool("fastq", false, "Query input is FASTQ (FASTA otherwise)")
	noMap        = flag.Bool("nomap", false, "Still emit an unmapped SAM record for reads with no match")
	rcref        = flag.Bool("rcref", false, "Append each reference sequence's reverse complement")
	mapOut       = flag.Bool("mappability", false, "Write a mappability map instead of aligning queries")
	mapBin       = flag.Bool("mappability-bin", false, "Write the mappability map in the 2-byte-per-position binary format")
	cached       = flag.Bool("cached", false, "Skip eager page pre-population (MAP_POPULATE) on index load")
	normalMem    = flag.Bool("normalmem", false, "Has no effect: the index bundle is always memory-mapped")
	gzipped      = flag.Bool("gzip", false, "Reference FASTA is gzip-compressed")
	queryGzipped = flag.Bool("query-gzip", false, "Query input is gzip-compressed")
	verbose      = flag.Bool("verbose", false, "Log progress to stderr")
	aggressive   = flag.Bool("aggressive-chroms", false, "Drop alt/mitochondrial contigs (name contains '_' or 'M') from the chromosome map")
	programName  = flag.String("program-name", "longmum", "@PG PN (program name) recorded in the SAM header; the @PG ID is always longmum")
	outDir       = flag.String("outdir", ".", "Directory each worker's sorted SAM batch files are written into")
)

func main() {
	shutdown := grail.Init()
	defer shutdown()

	cfg := config.New()
	cfg.RefPath = *refPath
	cfg.QueryPath = *queryPath
	cfg.MatchKindToken = *matchKind
	cfg.MinLen = *minLen
	cfg.MinBlock = *minBlock
	cfg.NucleotidesOnly = *nucOnly
	cfg.QThreads = *qThreads
	cfg.SamOut = *samOut
	cfg.SamIn = *samIn
	cfg.Fastq = *fastqIn
	cfg.NoMap = *noMap
	cfg.RCRef = *rcref
	cfg.Mappability = *mapOut
	cfg.Cached = *cached
	cfg.NormalMem = *normalMem
	cfg.Verbose = *verbose

	kind, err := config.ResolveKind(cfg.MatchKindToken)
	if err != nil {
		log.Fatalf("longmum: %v", err)
	}
	cfg.Kind = kind

	if err := cfg.Validate(); err != nil {
		log.Fatalf("longmum: %v", err)
	}

	if err := run(cfg, *gzipped, *queryGzipped, *mapBin, *aggressive, *programName, *outDir); err != nil {
		log.Fatalf("longmum: %v", err)
	}
}

func run(cfg config.Config, gzipped, queryGzipped, mapBin, aggressive bool, programName, outDir string) error {
	ref, err := loadReference(cfg, gzipped)
	if err != nil {
		return err
	}
	cm := chrmap.New(ref, aggressive)

	fastaSize, err := fileSize(cfg.RefPath)
	if err != nil {
		return err
	}
	readAhead := !cfg.Cached

	if ref.N() > uint64(^uint32(0)) {
		return runWidth[uint64](cfg, ref, cm, fastaSize, readAhead, mapBin, queryGzipped, programName, outDir)
	}
	return runWidth[uint32](cfg, ref, cm, fastaSize, readAhead, mapBin, queryGzipped, programName, outDir)
}

func loadReference(cfg config.Config, gzipped bool) (*reference.Reference, error) {
	fastaSize, err := fileSize(cfg.RefPath)
	if err != nil {
		return nil, err
	}
	if ref, err := reference.Open(cfg.RefPath, cfg.RCRef, fastaSize, !cfg.Cached); err != nil {
		return nil, err
	} else if ref != nil {
		if cfg.Verbose {
			log.Printf("longmum: loaded cached reference %s", cfg.RefPath)
		}
		return ref, nil
	}

	f, err := os.Open(cfg.RefPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r, err := reference.NewGzipReader(f, gzipped || strings.HasSuffix(cfg.RefPath, ".gz"))
	if err != nil {
		return nil, err
	}
	ref, err := reference.Load(r, reference.Opts{RCRef: cfg.RCRef})
	if err != nil {
		return nil, err
	}
	if err := ref.Save(cfg.RefPath, fastaSize); err != nil {
		return nil, err
	}
	if cfg.Verbose {
		log.Printf("longmum: built and cached reference %s (%d bases)", cfg.RefPath, ref.N())
	}
	return ref, nil
}

func fileSize(path string) (uint64, error) {
	st, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return uint64(st.Size()), nil
}

// runWidth carries out the whole build-then-query (or build-then-map) flow
// for one suffix-array index width. Both uint32 and uint64 instantiations
// are compiled into the binary; run picks the one ref.N() fits.
func runWidth[T ioutil.Uint](cfg config.Config, ref *reference.Reference, cm *chrmap.Map, fastaSize uint64,
	readAhead, mapBin, queryGzipped bool, programName, outDir string) error {
	idx, err := loadOrBuildIndex[T](cfg, ref, fastaSize, readAhead)
	if err != nil {
		return err
	}
	defer idx.Close()

	tix := traverse.New[T](ref.Bases, idx.SA, idx.ISA, idx.LCP)

	if cfg.Mappability {
		format := mappability.Text
		if mapBin {
			format = mappability.Binary
		}
		return mappability.Write(os.Stdout, tix, cm, format)
	}

	return runQueries[T](cfg, tix, cm, ref, queryGzipped, programName, outDir)
}

func loadOrBuildIndex[T ioutil.Uint](cfg config.Config, ref *reference.Reference, fastaSize uint64, readAhead bool) (*cache.Index[T], error) {
	idx, err := cache.Open[T](cfg.RefPath, cfg.RCRef, fastaSize, readAhead)
	if err != nil {
		return nil, err
	}
	if idx != nil {
		if cfg.Verbose {
			log.Printf("longmum: loaded cached index")
		}
		return idx, nil
	}
	idx = cache.Build[T](ref.Bases)
	if err := idx.Save(cfg.RefPath, cfg.RCRef, fastaSize); err != nil {
		return nil, err
	}
	if cfg.Verbose {
		log.Printf("longmum: built and cached suffix-array/LCP index")
	}
	return idx, nil
}

func runQueries[T ioutil.Uint](cfg config.Config, tix *traverse.Index[T], cm *chrmap.Map, ref *reference.Reference,
	queryGzipped bool, programName, outDir string) error {
	header, err := align.BuildHeader(cm, cfg.RCRef, programName)
	if err != nil {
		return err
	}
	headerText := align.HeaderText(header)

	settings := pipeline.Settings{
		Kind:     cfg.Kind,
		MinLen:   cfg.MinLen,
		MinBlock: cfg.MinBlock,
		SamOut:   cfg.SamOut,
		NoMap:    cfg.NoMap,
		RCRef:    cfg.RCRef,
	}

	pool := pipeline.NewPool[T](cfg.QThreads, tix, cm, ref.Bases, header, headerText, settings, outDir, 1024)
	pool.Start()

	ctx := vcontext.Background()
	in, closeIn, err := openQueryInput(ctx, cfg.QueryPath, queryGzipped)
	if err != nil {
		return err
	}
	defer closeIn()

	opts := readio.Opts{NucleotidesOnly: cfg.NucleotidesOnly}
	pending := map[string]readio.Read{}

	submit := func(r readio.Read) {
		if r.Mate == readio.MateNone {
			pool.Submit(pipeline.Job{Read1: r})
			return
		}
		if other, ok := pending[r.Name]; ok {
			delete(pending, r.Name)
			job := pipeline.Job{Paired: true}
			if r.Mate == readio.MateFirst {
				job.Read1, job.Read2 = r, other
			} else {
				job.Read1, job.Read2 = other, r
			}
			pool.Submit(job)
			return
		}
		pending[r.Name] = r
	}

	switch {
	case cfg.SamIn:
		sc := readio.NewSamScanner(in, opts)
		var r readio.Read
		for sc.Scan(&r) {
			submit(r)
		}
		if sc.Err() != nil {
			return errors.E(sc.Err(), "reading alignment-record query input", cfg.QueryPath)
		}
	case cfg.Fastq:
		sc := readio.NewFastqScanner(in, opts)
		var r readio.Read
		for sc.Scan(&r) {
			submit(r)
		}
		if sc.Err() != nil {
			return errors.E(sc.Err(), "reading FASTQ query input", cfg.QueryPath)
		}
	default:
		sc := readio.NewFastaScanner(in, opts)
		var r readio.Read
		for sc.Scan(&r) {
			submit(r)
		}
		if sc.Err() != nil {
			return errors.E(sc.Err(), "reading FASTA query input", cfg.QueryPath)
		}
	}

	// Any unmatched mate (its pair never appeared in the stream) still gets
	// aligned on its own as an unpaired job: its records carry no pair
	// flags and no mate link.
	for _, r := range pending {
		pool.Submit(pipeline.Job{Read1: r})
	}

	return pool.Close()
}

// openQueryInput opens the query stream through github.com/grailbio/base/file
// the same way cmd/bio-fusion/io.go's newFusionReader does (file.Open(ctx,
// path).Reader(ctx)), transparently gunzipping when queryGzipped is set or
// path ends in .gz, the same klauspost/compress/gzip substitution
// loadReference makes for the reference FASTA. Stdin bypasses file.Open
// entirely, since "-" names no path base/file could resolve.
func openQueryInput(ctx context.Context, path string, queryGzipped bool) (r io.Reader, closeFn func() error, err error) {
	if path == "" || path == "-" {
		return os.Stdin, func() error { return nil }, nil
	}
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, nil, errors.E(err, "opening query input", path)
	}
	rd, err := reference.NewGzipReader(f.Reader(ctx), queryGzipped || strings.HasSuffix(path, ".gz"))
	if err != nil {
		f.Close(ctx)
		return nil, nil, errors.E(err, "reading gzip-compressed query input", path)
	}
	return rd, func() error { return f.Close(ctx) }, nil
}
