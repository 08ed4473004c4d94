package sieve

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/hts/sam"
	"github.com/klauspost/pgzip"

	"github.com/luminabio/sieve/encoding/container"
	"github.com/luminabio/sieve/encoding/fastq"
)

// A Sink is the output triple for one partition tag: a binary container
// sink, an optional sequence-text sink, and an optional tabular-metadata
// sink attached lazily by metadata subsetting.
type Sink struct {
	Tag  string
	path string // binary sink path; text/tabular paths derive from it

	bam *container.Writer

	fastqFile *os.File
	fastqGzip *pgzip.Writer
	fastq     *fastq.Writer

	tsvFile   *os.File
	tsv       *tsv.Writer
	tsvHeader bool // header row already initialized this pass
}

// WriteRecord copies one retained read's record into the partition's binary
// sink.
func (s *Sink) WriteRecord(rec *sam.Record) error {
	return s.bam.Write(rec)
}

// WriteFastq appends one four-line text record to the partition's sequence
// sink. It is a no-op when text output is disabled.
func (s *Sink) WriteFastq(r *fastq.Read) error {
	if s.fastq == nil {
		return nil
	}
	return s.fastq.Write(r)
}

// TSV returns the partition's tabular sink, creating it on first call. The
// column header row is written only when the file on disk is fresh; a file
// left by a prior pass is opened for append and its header is not repeated.
func (s *Sink) TSV(header []string) (*tsv.Writer, error) {
	if s.tsv != nil {
		return s.tsv, nil
	}
	path := strings.TrimSuffix(s.path, ".bam") + ".tsv"
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	s.tsvFile = f
	s.tsv = tsv.NewWriter(f)
	if fi.Size() == 0 && !s.tsvHeader {
		for _, col := range header {
			s.tsv.WriteString(col)
		}
		if err := s.tsv.EndLine(); err != nil {
			return nil, err
		}
		s.tsvHeader = true
	}
	return s.tsv, nil
}

// Registry lazily creates and caches the sink triple per partition tag for
// one container-processing pass. It exclusively owns every handle it creates
// until Close.
type Registry struct {
	ctx    context.Context
	header *sam.Header
	base   string
	opts   Opts

	sinks map[string]*Sink
	order []string // creation order, for deterministic close
}

// NewRegistry returns an empty registry for one pass over the container at
// containerPath, whose top-level attributes (header) are copied into every
// binary sink created.
func NewRegistry(ctx context.Context, containerPath string, header *sam.Header, opts Opts) *Registry {
	base := strings.TrimSuffix(filepath.Base(containerPath), ".bam")
	return &Registry{
		ctx:    ctx,
		header: header,
		base:   base,
		opts:   opts,
		sinks:  make(map[string]*Sink),
	}
}

// GetOrCreate returns the sink triple for tag, creating it on first call.
// Creation is idempotent within one pass: subsequent calls reuse the cached
// handles.
func (g *Registry) GetOrCreate(tag string) (*Sink, error) {
	if s, ok := g.sinks[tag]; ok {
		return s, nil
	}
	dir := filepath.Join(g.opts.OutDir, tag)
	if err := os.MkdirAll(dir, 0777); err != nil {
		return nil, err
	}
	s := &Sink{Tag: tag, path: filepath.Join(dir, g.base+".bam")}
	bamw, err := container.Create(g.ctx, s.path, g.header)
	if err != nil {
		return nil, err
	}
	s.bam = bamw
	if g.opts.FastqOut {
		name := g.base + ".fastq"
		if g.opts.GzipFastq {
			name += ".gz"
		}
		// Append, not truncate: a text sink left on disk by a prior pass
		// accumulates across passes.
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			_ = s.bam.Close(g.ctx)
			return nil, err
		}
		s.fastqFile = f
		if g.opts.GzipFastq {
			s.fastqGzip = pgzip.NewWriter(f)
			s.fastq = fastq.NewWriter(s.fastqGzip)
		} else {
			s.fastq = fastq.NewWriter(f)
		}
	}
	g.sinks[tag] = s
	g.order = append(g.order, tag)
	log.Debug.Printf("%s: created sinks for partition %q", g.base, tag)
	return s, nil
}

// Tags returns the tags for which sinks exist, in creation order.
func (g *Registry) Tags() []string {
	return g.order
}

// Close flushes and closes every sink created during the pass. It must be
// called before the next container's pass begins so that output is readable
// even if a later container fails.
func (g *Registry) Close() error {
	var err errors.Once
	for _, tag := range g.order {
		s := g.sinks[tag]
		err.Set(s.bam.Close(g.ctx))
		if s.fastqGzip != nil {
			err.Set(s.fastqGzip.Close())
		}
		if s.fastqFile != nil {
			err.Set(s.fastqFile.Close())
		}
		if s.tsv != nil {
			err.Set(s.tsv.Flush())
		}
		if s.tsvFile != nil {
			err.Set(s.tsvFile.Close())
		}
	}
	return err.Err()
}
