// Package container reads and writes the binary read containers this module
// splits: BAM archives holding one record per basecalled read. Readers
// enumerate a container's records in file order; writers create a new
// container carrying a caller-supplied header.
package container

import (
	"context"
	"io"

	"github.com/grailbio/base/file"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"v.io/x/lib/vlog"
)

// Reader iterates over the records of one container.
type Reader struct {
	path string
	in   file.File
	bamr *bam.Reader
	rec  *sam.Record
	err  error
}

// Open opens the container at path for sequential reading.
func Open(ctx context.Context, path string) (*Reader, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	bamr, err := bam.NewReader(in.Reader(ctx), 1)
	if err != nil {
		_ = in.Close(ctx)
		return nil, err
	}
	return &Reader{path: path, in: in, bamr: bamr}, nil
}

// Header returns the container's top-level attributes.
func (r *Reader) Header() *sam.Header {
	return r.bamr.Header()
}

// Scan advances to the next record. It returns false at end of file or on
// error; check Err after the loop.
func (r *Reader) Scan() bool {
	if r.err != nil {
		return false
	}
	r.rec, r.err = r.bamr.Read()
	return r.err == nil
}

// Record returns the record read by the last successful Scan.
func (r *Reader) Record() *sam.Record {
	return r.rec
}

// Err returns the first error encountered, if any. End of file is not an
// error.
func (r *Reader) Err() error {
	if r.err == io.EOF {
		return nil
	}
	return r.err
}

// Close releases the reader. It must be called exactly once.
func (r *Reader) Close(ctx context.Context) error {
	err := r.Err()
	if e := r.bamr.Close(); e != nil && err == nil {
		err = e
	}
	if e := r.in.Close(ctx); e != nil && err == nil {
		err = e
	}
	return err
}

// Writer writes records into a new container.
type Writer struct {
	path string
	out  file.File
	bamw *bam.Writer
	n    int
}

// Create creates a container at path whose attributes are the given header,
// written once at creation. Existing contents of path are destroyed.
func Create(ctx context.Context, path string, header *sam.Header) (*Writer, error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return nil, err
	}
	bamw, err := bam.NewWriter(out.Writer(ctx), header, 1)
	if err != nil {
		_ = out.Close(ctx)
		return nil, err
	}
	return &Writer{path: path, out: out, bamw: bamw}, nil
}

// Write appends one record, unmodified, to the container.
func (w *Writer) Write(rec *sam.Record) error {
	if err := w.bamw.Write(rec); err != nil {
		return err
	}
	w.n++
	return nil
}

// Close flushes and closes the container. It must be called exactly once;
// until then the output is not guaranteed readable.
func (w *Writer) Close(ctx context.Context) error {
	err := w.bamw.Close()
	if e := w.out.Close(ctx); e != nil && err == nil {
		err = e
	}
	vlog.VI(1).Infof("%s: wrote %d records", w.path, w.n)
	return err
}
