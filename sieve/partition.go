package sieve

import (
	"bufio"
	"io"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// DefaultTag is the single partition tag used when partitioning is disabled.
const DefaultTag = "all"

// A Resolver maps read identifiers to partition tags. A disabled resolver
// maps every read to DefaultTag; an enabled one is built from demultiplexer
// output and treats an unknown identifier as a caller error.
type Resolver struct {
	enabled bool
	tags    map[string]string
}

// NewResolver returns the disabled resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// ReadResolver builds an enabled resolver from demultiplexer output: TSV
// with a header row naming at least the "name" and "barcode" columns, in
// either order.
func ReadResolver(r io.Reader) (*Resolver, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1<<16), 1<<22)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, errors.Wrap(err, "reading demultiplex output")
		}
		return nil, errors.New("demultiplex output is empty")
	}
	nameCol, barcodeCol := -1, -1
	for i, col := range strings.Split(scanner.Text(), "\t") {
		switch col {
		case "name":
			nameCol = i
		case "barcode":
			barcodeCol = i
		}
	}
	if nameCol < 0 || barcodeCol < 0 {
		return nil, errors.New("demultiplex output lacks name/barcode columns")
	}
	res := &Resolver{enabled: true, tags: make(map[string]string)}
	lineno := 1
	for scanner.Scan() {
		lineno++
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) <= nameCol || len(fields) <= barcodeCol {
			return nil, errors.Errorf("demultiplex line %d has %d fields", lineno, len(fields))
		}
		res.tags[fields[nameCol]] = fields[barcodeCol]
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading demultiplex output")
	}
	return res, nil
}

// Enabled reports whether partitioning is on.
func (r *Resolver) Enabled() bool { return r.enabled }

// Resolve returns the partition tag for id. When partitioning is enabled a
// read absent from the demultiplexer's mapping is an error, never silently
// defaulted.
func (r *Resolver) Resolve(id string) (string, error) {
	if !r.enabled {
		return DefaultTag, nil
	}
	tag, ok := r.tags[id]
	if !ok {
		return "", errors.Errorf("read %q has no resolved partition tag", id)
	}
	return tag, nil
}

// Tags returns the sorted set of partition tags the resolver can produce.
func (r *Resolver) Tags() []string {
	if !r.enabled {
		return []string{DefaultTag}
	}
	seen := make(map[string]bool)
	var tags []string
	for _, tag := range r.tags {
		if !seen[tag] {
			seen[tag] = true
			tags = append(tags, tag)
		}
	}
	sort.Strings(tags)
	return tags
}
