package sieve

import (
	"bufio"
	"context"
	"sync"

	"github.com/grailbio/base/file"

	"github.com/luminabio/sieve/encoding/paf"
)

// Reporter accumulates the single global exclusion report: one alignment
// record line per excluded read, shared across all containers and partitions
// of a batch. Appends are synchronized so that a future cross-container
// parallelization needs no further changes here.
type Reporter struct {
	mu  sync.Mutex
	out file.File
	w   *bufio.Writer
	n   int
}

// CreateReporter creates the report file at path. Existing contents are
// destroyed; the report is the audit trail of one batch.
func CreateReporter(ctx context.Context, path string) (*Reporter, error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return nil, err
	}
	return &Reporter{out: out, w: bufio.NewWriter(out.Writer(ctx))}, nil
}

// Write appends one excluded read's record, real or synthesized, as a
// tab-separated line.
func (r *Reporter) Write(rec paf.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.w.WriteString(rec.String()); err != nil {
		return err
	}
	if err := r.w.WriteByte('\n'); err != nil {
		return err
	}
	r.n++
	return nil
}

// Count returns the number of lines written so far.
func (r *Reporter) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

// Close flushes and closes the report. It must be called exactly once, after
// the last container's pass.
func (r *Reporter) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.w.Flush()
	if e := r.out.Close(ctx); e != nil && err == nil {
		err = e
	}
	return err
}
