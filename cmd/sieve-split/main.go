package main

/*
sieve-split filters the reads of binary containers (BAM) against external
alignment verdicts and splits the survivors across per-barcode output
partitions.

For each input container it invokes the external aligner once per reference
set (inclusion and, optionally, exclusion), classifies every read, and writes
one container per partition plus optional FASTQ and per-read metadata sinks.
Excluded reads are logged, one alignment line each, to a single report file
covering the whole batch.

Example:

   sieve-split -ref target.fa -xref human.fa -mapq 20 -barcodes -demux "qcat" \
       -fastq -out split/ -report stripped.paf batch1.bam batch2.bam
*/

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/pkg/errors"

	"github.com/luminabio/sieve/encoding/container"
	"github.com/luminabio/sieve/encoding/fastq"
	"github.com/luminabio/sieve/encoding/paf"
	"github.com/luminabio/sieve/sieve"
)

var (
	refPath      = flag.String("ref", "", "Inclusion reference FASTA. Empty means no-op: every read is included by default")
	xrefPath     = flag.String("xref", "", "Exclusion reference FASTA. Empty means no read is excluded by match")
	mapQ         = flag.Int("mapq", sieve.DefaultOpts.MinMapQ, "Minimum mapping quality for an alignment to count as a match")
	barcodes     = flag.Bool("barcodes", false, "Split retained reads into per-barcode partitions")
	fastqOut     = flag.Bool("fastq", sieve.DefaultOpts.FastqOut, "Also write per-partition FASTQ sinks")
	gzipFastq    = flag.Bool("gzip-fastq", sieve.DefaultOpts.GzipFastq, "Compress FASTQ sinks")
	outDir       = flag.String("out", ".", "Output directory; per-partition subdirectories are created under it")
	reportPath   = flag.String("report", "stripped.paf", "Path of the global excluded-read report")
	metadataPath = flag.String("metadata", "", "Optional per-read metadata table (TSV) to subset per partition")
	alignerCmd   = flag.String("aligner", "minimap2", "External aligner command; must print PAF to stdout")
	alignerArgs  = flag.String("aligner-args", "-x map-ont", "Extra arguments passed to the aligner before the reference and reads")
	demuxCmd     = flag.String("demux", "", "External demultiplexer command; must print a name/barcode TSV to stdout. Required with -barcodes")
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] container.bam...\n", os.Args[0])
	flag.PrintDefaults()
}

// extractFastq dumps the container's called sequences to a temporary FASTQ
// so the external aligner and demultiplexer can consume them.
func extractFastq(ctx context.Context, containerPath, dir string) (string, error) {
	r, err := container.Open(ctx, containerPath)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, strings.TrimSuffix(filepath.Base(containerPath), ".bam")+".fastq")
	out, err := os.Create(path)
	if err != nil {
		_ = r.Close(ctx)
		return "", err
	}
	w := fastq.NewWriter(out)
	var werr error
	for r.Scan() {
		read := fastq.FromSAM(r.Record())
		if werr = w.Write(&read); werr != nil {
			break
		}
	}
	err = r.Close(ctx)
	if werr != nil {
		err = werr
	}
	if e := out.Close(); e != nil && err == nil {
		err = e
	}
	return path, err
}

// runCollaborator invokes an external process synchronously and returns its
// stdout. A non-zero exit is a collaborator failure, fatal for the current
// container.
func runCollaborator(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, errors.Wrapf(err, "%s %s: %s", name, strings.Join(args, " "), stderr.String())
	}
	return stdout.Bytes(), nil
}

// alignVerdicts runs the aligner against one reference set and parses its
// PAF output into a verdict set. A nil return means the reference is the
// no-op sentinel.
func alignVerdicts(ctx context.Context, ref, readsPath string, minMapQ int) (*paf.VerdictSet, error) {
	if ref == "" {
		return nil, nil
	}
	args := append(strings.Fields(*alignerArgs), ref, readsPath)
	out, err := runCollaborator(ctx, *alignerCmd, args...)
	if err != nil {
		return nil, err
	}
	return paf.ReadVerdicts(bytes.NewReader(out), minMapQ)
}

func demuxResolver(ctx context.Context, readsPath string) (*sieve.Resolver, error) {
	if !*barcodes {
		return sieve.NewResolver(), nil
	}
	args := append(strings.Fields(*demuxCmd)[1:], readsPath)
	out, err := runCollaborator(ctx, strings.Fields(*demuxCmd)[0], args...)
	if err != nil {
		return nil, err
	}
	return sieve.ReadResolver(bytes.NewReader(out))
}

func processOne(ctx context.Context, path string, reporter *sieve.Reporter, opts sieve.Opts) (sieve.Stats, error) {
	tmpDir, err := ioutil.TempDir("", "sieve-split")
	if err != nil {
		return sieve.Stats{}, err
	}
	defer os.RemoveAll(tmpDir)

	readsPath, err := extractFastq(ctx, path, tmpDir)
	if err != nil {
		return sieve.Stats{}, errors.Wrapf(err, "extracting reads from %s", path)
	}
	include, err := alignVerdicts(ctx, *refPath, readsPath, opts.MinMapQ)
	if err != nil {
		return sieve.Stats{}, errors.Wrap(err, "inclusion alignment")
	}
	exclude, err := alignVerdicts(ctx, *xrefPath, readsPath, opts.MinMapQ)
	if err != nil {
		return sieve.Stats{}, errors.Wrap(err, "exclusion alignment")
	}
	resolver, err := demuxResolver(ctx, readsPath)
	if err != nil {
		return sieve.Stats{}, errors.Wrap(err, "demultiplexing")
	}

	in := sieve.PassInput{
		Path:     path,
		Include:  include,
		Exclude:  exclude,
		Resolver: resolver,
	}
	if *metadataPath != "" {
		meta, err := os.Open(*metadataPath)
		if err != nil {
			return sieve.Stats{}, err
		}
		defer meta.Close()
		in.Metadata = meta
	}
	return sieve.ProcessContainer(ctx, in, reporter, opts)
}

func main() {
	flag.Usage = usage
	shutdown := grail.Init()
	defer shutdown()
	ctx := vcontext.Background()

	containers := flag.Args()
	if len(containers) == 0 {
		log.Fatalf("no input containers; see -help")
	}
	// Configuration errors abort before any processing.
	for _, ref := range []string{*refPath, *xrefPath} {
		if ref == "" {
			continue
		}
		if _, err := os.Stat(ref); err != nil {
			log.Fatalf("unreadable reference %s: %v", ref, err)
		}
	}
	if *barcodes && *demuxCmd == "" {
		log.Fatalf("-barcodes requires -demux")
	}
	if err := os.MkdirAll(*outDir, 0777); err != nil {
		log.Fatalf("output directory %s: %v", *outDir, err)
	}

	opts := sieve.Opts{
		MinMapQ:   *mapQ,
		FastqOut:  *fastqOut,
		GzipFastq: *gzipFastq,
		OutDir:    *outDir,
	}
	reporter, err := sieve.CreateReporter(ctx, *reportPath)
	if err != nil {
		log.Fatalf("report %s: %v", *reportPath, err)
	}

	var total sieve.Stats
	for _, path := range containers {
		stats, err := processOne(ctx, path, reporter, opts)
		if err != nil {
			_ = reporter.Close(ctx)
			log.Fatalf("%s: %v", path, err)
		}
		total.Total += stats.Total
		total.Retained += stats.Retained
		total.Stripped += stats.Stripped
	}
	if err := reporter.Close(ctx); err != nil {
		log.Fatalf("closing report %s: %v", *reportPath, err)
	}

	color.HiGreen("Retained %d of %d reads across %d containers\n", total.Retained, total.Total, len(containers))
	color.HiMagenta("Stripped %d reads; report written to %s\n", total.Stripped, *reportPath)
}
