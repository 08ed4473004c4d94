package sieve

import (
	"bufio"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// readIDColumn locates the read-identifier column in a metadata header row:
// a column literally named read_id if present, otherwise the first column.
func readIDColumn(header []string) int {
	for i, col := range header {
		if col == "read_id" {
			return i
		}
	}
	return 0
}

// SubsetMetadata filters a per-read metadata table to the rows of retained
// reads and appends each row to its partition's tabular sink. The table is
// tab-delimited with a header row; the partition tag a row resolves to
// selects its sink but is not itself written as a column. Rows for reads
// outside the retained set are dropped silently; a retained row that cannot
// resolve a tag is an error.
func SubsetMetadata(table io.Reader, retained map[string]bool, resolver *Resolver, registry *Registry) error {
	scanner := bufio.NewScanner(table)
	scanner.Buffer(make([]byte, 0, 1<<16), 1<<22)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return errors.Wrap(err, "reading metadata table")
		}
		return nil // empty table, nothing to subset
	}
	header := strings.Split(scanner.Text(), "\t")
	idCol := readIDColumn(header)

	// Group rows by tag first so each partition's rows are appended in one
	// run, in table order.
	rowsByTag := make(map[string][]string)
	var tags []string
	lineno := 1
	for scanner.Scan() {
		lineno++
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) <= idCol {
			return errors.Errorf("metadata line %d has %d fields", lineno, len(fields))
		}
		id := fields[idCol]
		if !retained[id] {
			continue
		}
		tag, err := resolver.Resolve(id)
		if err != nil {
			return err
		}
		if _, ok := rowsByTag[tag]; !ok {
			tags = append(tags, tag)
		}
		rowsByTag[tag] = append(rowsByTag[tag], line)
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "reading metadata table")
	}

	for _, tag := range tags {
		sink, err := registry.GetOrCreate(tag)
		if err != nil {
			return errors.Wrapf(err, "partition %q", tag)
		}
		w, err := sink.TSV(header)
		if err != nil {
			return errors.Wrapf(err, "partition %q: tabular sink", tag)
		}
		for _, row := range rowsByTag[tag] {
			for _, field := range strings.Split(row, "\t") {
				w.WriteString(field)
			}
			if err := w.EndLine(); err != nil {
				return errors.Wrapf(err, "partition %q: tabular sink", tag)
			}
		}
	}
	return nil
}
