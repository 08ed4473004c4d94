// Package paf parses and formats PAF-like alignment summary lines, the text
// shape produced by minimap2 and friends: twelve mandatory tab-separated
// fields, of which field 0 is the query (read) name and field 11 is the
// mapping quality used for thresholding. Trailing SAM-style tag fields are
// preserved verbatim but not interpreted.
package paf

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// MaxMapQ is the mapping-quality sentinel used for synthesized no-alignment
// records.
const MaxMapQ = 255

// A Record is one PAF alignment line.
type Record struct {
	QName   string
	QLen    int
	QStart  int
	QEnd    int
	Strand  string
	TName   string
	TLen    int
	TStart  int
	TEnd    int
	Matches int
	AlnLen  int
	MapQ    int
	// Extra holds any fields after the twelve mandatory ones, verbatim.
	Extra []string
}

// Parse parses a single PAF line. Lines with fewer than twelve fields or
// non-integer numeric fields are rejected.
func Parse(line string) (Record, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 12 {
		return Record{}, errors.Errorf("PAF record has %d fields, want at least 12", len(fields))
	}
	var (
		rec Record
		err error
	)
	atoi := func(i int) int {
		if err != nil {
			return 0
		}
		var v int
		if v, err = strconv.Atoi(fields[i]); err != nil {
			err = errors.Wrapf(err, "PAF field %d", i)
		}
		return v
	}
	rec.QName = fields[0]
	rec.QLen = atoi(1)
	rec.QStart = atoi(2)
	rec.QEnd = atoi(3)
	rec.Strand = fields[4]
	rec.TName = fields[5]
	rec.TLen = atoi(6)
	rec.TStart = atoi(7)
	rec.TEnd = atoi(8)
	rec.Matches = atoi(9)
	rec.AlnLen = atoi(10)
	rec.MapQ = atoi(11)
	if err != nil {
		return Record{}, err
	}
	if len(fields) > 12 {
		rec.Extra = fields[12:]
	}
	return rec, nil
}

// String renders the record back into its tab-separated text shape.
func (r Record) String() string {
	fields := make([]string, 0, 12+len(r.Extra))
	fields = append(fields,
		r.QName,
		strconv.Itoa(r.QLen),
		strconv.Itoa(r.QStart),
		strconv.Itoa(r.QEnd),
		r.Strand,
		r.TName,
		strconv.Itoa(r.TLen),
		strconv.Itoa(r.TStart),
		strconv.Itoa(r.TEnd),
		strconv.Itoa(r.Matches),
		strconv.Itoa(r.AlnLen),
		strconv.Itoa(r.MapQ))
	fields = append(fields, r.Extra...)
	return strings.Join(fields, "\t")
}

// Placeholder synthesizes the record reported for a read that produced no
// alignment at all: zero coordinates, unknown strand and target, a
// single-base match length, and the maximum mapping-quality sentinel.
func Placeholder(id string, length int) Record {
	return Record{
		QName:   id,
		QLen:    length,
		Strand:  "*",
		TName:   "*",
		Matches: 1,
		AlnLen:  1,
		MapQ:    MaxMapQ,
	}
}
