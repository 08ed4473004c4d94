package sieve_test

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"

	"github.com/luminabio/sieve/encoding/container"
	"github.com/luminabio/sieve/encoding/paf"
	"github.com/luminabio/sieve/sieve"
)

func alnLine(id, mapq string) string {
	return strings.Join([]string{id, "100", "0", "90", "+", "tgt", "1000", "0", "90", "80", "90", mapq}, "\t")
}

func verdicts(t *testing.T, minMapQ int, lines ...string) *paf.VerdictSet {
	t.Helper()
	v, err := paf.ReadVerdicts(strings.NewReader(strings.Join(lines, "\n")), minMapQ)
	assert.NoError(t, err)
	return v
}

// writeContainer creates a source container with one record per name, all
// with the same toy sequence.
func writeContainer(t *testing.T, ctx context.Context, path string, names ...string) *sam.Header {
	t.Helper()
	header, ref := newHeader(t)
	w, err := container.Create(ctx, path, header)
	assert.NoError(t, err)
	for i, name := range names {
		assert.NoError(t, w.Write(newRecord(t, name, ref, 100*(i+1), "ACGTACGT")))
	}
	assert.NoError(t, w.Close(ctx))
	return header
}

func readNames(t *testing.T, ctx context.Context, path string) []string {
	t.Helper()
	r, err := container.Open(ctx, path)
	assert.NoError(t, err)
	var names []string
	for r.Scan() {
		names = append(names, r.Record().Name)
	}
	assert.NoError(t, r.Close(ctx))
	return names
}

func reportLines(t *testing.T, path string) []string {
	t.Helper()
	body, err := ioutil.ReadFile(path)
	assert.NoError(t, err)
	if len(body) == 0 {
		return nil
	}
	return strings.Split(strings.TrimSuffix(string(body), "\n"), "\n")
}

// Three reads, inclusion threshold 20: one scores 25 (retained), one scores
// 10 (excluded, no match), one absent from the aligner output (excluded, no
// match). Exclusion reference is the null sentinel.
func TestPassThresholdScenario(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := vcontext.Background()

	src := filepath.Join(tmpdir, "batch1.bam")
	writeContainer(t, ctx, src, "readA", "readB", "readC")

	reportPath := filepath.Join(tmpdir, "stripped.paf")
	reporter, err := sieve.CreateReporter(ctx, reportPath)
	assert.NoError(t, err)

	opts := sieve.DefaultOpts
	opts.OutDir = filepath.Join(tmpdir, "out")
	opts.MinMapQ = 20
	stats, err := sieve.ProcessContainer(ctx, sieve.PassInput{
		Path:    src,
		Include: verdicts(t, 20, alnLine("readA", "25"), alnLine("readB", "10")),
	}, reporter, opts)
	assert.NoError(t, err)
	assert.NoError(t, reporter.Close(ctx))

	assert.EQ(t, stats, sieve.Stats{Total: 3, Retained: 1, Stripped: 2})
	assert.EQ(t, readNames(t, ctx, filepath.Join(opts.OutDir, "all", "batch1.bam")), []string{"readA"})

	lines := reportLines(t, reportPath)
	assert.EQ(t, len(lines), 2)
	for _, line := range lines {
		fields := strings.Split(line, "\t")
		assert.EQ(t, len(fields), 12)
		// Both exclusions are no-match placeholders.
		assert.EQ(t, fields[11], "255")
		assert.EQ(t, fields[1], "8") // read length
	}
	assert.EQ(t, strings.Split(lines[0], "\t")[0], "readB")
	assert.EQ(t, strings.Split(lines[1], "\t")[0], "readC")
}

// A read above threshold in both reference sets is excluded, and the report
// carries the real exclusion record rather than a placeholder.
func TestPassExclusionPrecedence(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := vcontext.Background()

	src := filepath.Join(tmpdir, "batch1.bam")
	writeContainer(t, ctx, src, "readA", "readB")

	reportPath := filepath.Join(tmpdir, "stripped.paf")
	reporter, err := sieve.CreateReporter(ctx, reportPath)
	assert.NoError(t, err)

	opts := sieve.DefaultOpts
	opts.OutDir = filepath.Join(tmpdir, "out")
	stats, err := sieve.ProcessContainer(ctx, sieve.PassInput{
		Path:    src,
		Include: verdicts(t, 0, alnLine("readA", "60"), alnLine("readB", "60")),
		Exclude: verdicts(t, 0, alnLine("readB", "45")),
	}, reporter, opts)
	assert.NoError(t, err)
	assert.NoError(t, reporter.Close(ctx))

	assert.EQ(t, stats, sieve.Stats{Total: 2, Retained: 1, Stripped: 1})
	lines := reportLines(t, reportPath)
	assert.EQ(t, len(lines), 1)
	fields := strings.Split(lines[0], "\t")
	assert.EQ(t, fields[0], "readB")
	assert.EQ(t, fields[5], "tgt") // real record, not a placeholder
	assert.EQ(t, fields[11], "45")
}

// Null inclusion reference: every read not excluded is retained.
func TestPassDefaultInclusion(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := vcontext.Background()

	src := filepath.Join(tmpdir, "batch1.bam")
	writeContainer(t, ctx, src, "readA", "readB", "readC")

	reporter, err := sieve.CreateReporter(ctx, filepath.Join(tmpdir, "stripped.paf"))
	assert.NoError(t, err)
	opts := sieve.DefaultOpts
	opts.OutDir = filepath.Join(tmpdir, "out")
	stats, err := sieve.ProcessContainer(ctx, sieve.PassInput{
		Path:    src,
		Exclude: verdicts(t, 0, alnLine("readB", "60")),
	}, reporter, opts)
	assert.NoError(t, err)
	assert.NoError(t, reporter.Close(ctx))

	assert.EQ(t, stats, sieve.Stats{Total: 3, Retained: 2, Stripped: 1})
	assert.EQ(t, readNames(t, ctx, filepath.Join(opts.OutDir, "all", "batch1.bam")),
		[]string{"readA", "readC"})
}

// Partitioning enabled: retained reads split across per-barcode sinks, the
// FASTQ sinks reflect the same retained sets, and the subsetted metadata
// carries no partition column.
func TestPassPartitioned(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := vcontext.Background()

	src := filepath.Join(tmpdir, "batch1.bam")
	writeContainer(t, ctx, src, "readA", "readB", "readC")

	resolver, err := sieve.ReadResolver(strings.NewReader(
		"name\tbarcode\nreadA\tBC01\nreadB\tBC02\nreadC\tBC01\n"))
	assert.NoError(t, err)

	reporter, err := sieve.CreateReporter(ctx, filepath.Join(tmpdir, "stripped.paf"))
	assert.NoError(t, err)
	opts := sieve.DefaultOpts
	opts.OutDir = filepath.Join(tmpdir, "out")
	opts.FastqOut = true
	metadata := "read_id\tchannel\nreadA\t101\nreadB\t202\nreadC\t303\n"
	stats, err := sieve.ProcessContainer(ctx, sieve.PassInput{
		Path:     src,
		Resolver: resolver,
		Metadata: strings.NewReader(metadata),
	}, reporter, opts)
	assert.NoError(t, err)
	assert.NoError(t, reporter.Close(ctx))

	assert.EQ(t, stats, sieve.Stats{Total: 3, Retained: 3, Stripped: 0})
	assert.EQ(t, readNames(t, ctx, filepath.Join(opts.OutDir, "BC01", "batch1.bam")),
		[]string{"readA", "readC"})
	assert.EQ(t, readNames(t, ctx, filepath.Join(opts.OutDir, "BC02", "batch1.bam")),
		[]string{"readB"})

	fq, err := ioutil.ReadFile(filepath.Join(opts.OutDir, "BC01", "batch1.fastq"))
	assert.NoError(t, err)
	assert.EQ(t, strings.Count(string(fq), "@read"), 2)

	tsvBody, err := ioutil.ReadFile(filepath.Join(opts.OutDir, "BC01", "batch1.tsv"))
	assert.NoError(t, err)
	assert.EQ(t, string(tsvBody), "read_id\tchannel\nreadA\t101\nreadC\t303\n")
	tsvBody, err = ioutil.ReadFile(filepath.Join(opts.OutDir, "BC02", "batch1.tsv"))
	assert.NoError(t, err)
	assert.EQ(t, string(tsvBody), "read_id\tchannel\nreadB\t202\n")
}

// A retained read absent from the demultiplexer's mapping is a lookup
// failure, not a silent default.
func TestPassUnresolvedPartition(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := vcontext.Background()

	src := filepath.Join(tmpdir, "batch1.bam")
	writeContainer(t, ctx, src, "readA", "readB")

	resolver, err := sieve.ReadResolver(strings.NewReader("name\tbarcode\nreadA\tBC01\n"))
	assert.NoError(t, err)
	reporter, err := sieve.CreateReporter(ctx, filepath.Join(tmpdir, "stripped.paf"))
	assert.NoError(t, err)
	opts := sieve.DefaultOpts
	opts.OutDir = filepath.Join(tmpdir, "out")
	_, err = sieve.ProcessContainer(ctx, sieve.PassInput{
		Path:     src,
		Resolver: resolver,
	}, reporter, opts)
	assert.True(t, err != nil)
	assert.True(t, strings.Contains(err.Error(), "readB"))
	assert.NoError(t, reporter.Close(ctx))
}

// Metadata rows for non-retained reads are dropped.
func TestPassMetadataSubset(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := vcontext.Background()

	src := filepath.Join(tmpdir, "batch1.bam")
	writeContainer(t, ctx, src, "readA", "readB")

	reporter, err := sieve.CreateReporter(ctx, filepath.Join(tmpdir, "stripped.paf"))
	assert.NoError(t, err)
	opts := sieve.DefaultOpts
	opts.OutDir = filepath.Join(tmpdir, "out")
	metadata := "read_id\tchannel\nreadA\t101\nreadB\t202\nreadZ\t999\n"
	_, err = sieve.ProcessContainer(ctx, sieve.PassInput{
		Path:     src,
		Include:  verdicts(t, 0, alnLine("readA", "60")),
		Metadata: strings.NewReader(metadata),
	}, reporter, opts)
	assert.NoError(t, err)
	assert.NoError(t, reporter.Close(ctx))

	tsvBody, err := ioutil.ReadFile(filepath.Join(opts.OutDir, "all", "batch1.tsv"))
	assert.NoError(t, err)
	assert.EQ(t, string(tsvBody), "read_id\tchannel\nreadA\t101\n")
}

// Two containers sharing one reporter: the report is global and
// append-only.
func TestGlobalReporter(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := vcontext.Background()

	src1 := filepath.Join(tmpdir, "batch1.bam")
	src2 := filepath.Join(tmpdir, "batch2.bam")
	writeContainer(t, ctx, src1, "readA", "readB")
	writeContainer(t, ctx, src2, "readC", "readD")

	reportPath := filepath.Join(tmpdir, "stripped.paf")
	reporter, err := sieve.CreateReporter(ctx, reportPath)
	assert.NoError(t, err)
	opts := sieve.DefaultOpts
	opts.OutDir = filepath.Join(tmpdir, "out")
	for _, src := range []string{src1, src2} {
		_, err := sieve.ProcessContainer(ctx, sieve.PassInput{
			Path:    src,
			Include: verdicts(t, 0, alnLine("readA", "60"), alnLine("readC", "60")),
		}, reporter, opts)
		assert.NoError(t, err)
	}
	assert.EQ(t, reporter.Count(), 2)
	assert.NoError(t, reporter.Close(ctx))
	lines := reportLines(t, reportPath)
	assert.EQ(t, len(lines), 2)
	assert.EQ(t, strings.Split(lines[0], "\t")[0], "readB")
	assert.EQ(t, strings.Split(lines[1], "\t")[0], "readD")
}
