package paf

import (
	"bufio"
	"io"

	"github.com/pkg/errors"
)

// A VerdictSet is a set-membership predicate over read identifiers with an
// optional alignment record attached to each member. Sets built from real
// aligner output attach the first qualifying record seen per read; the
// universal set built by AllOf attaches none.
type VerdictSet struct {
	members map[string]Record
}

// ReadVerdicts builds a VerdictSet from raw PAF text. A read identifier is
// inserted only if it is not already present and the line's mapping quality
// is at least minMapQ. Later lines for the same read are ignored regardless
// of score: selection is first-match-wins, not best-match-wins, and callers
// depend on that ordering.
func ReadVerdicts(r io.Reader, minMapQ int) (*VerdictSet, error) {
	v := &VerdictSet{members: make(map[string]Record)}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1<<16), 1<<22)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := scanner.Text()
		if line == "" {
			continue
		}
		rec, err := Parse(line)
		if err != nil {
			return nil, errors.Wrapf(err, "alignment line %d", lineno)
		}
		if rec.MapQ < minMapQ {
			continue
		}
		if _, ok := v.members[rec.QName]; ok {
			continue
		}
		v.members[rec.QName] = rec
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading alignment output")
	}
	return v, nil
}

// AllOf returns the set containing every listed identifier, with no attached
// records. It implements the null-reference sentinel: when no inclusion
// reference is supplied, every read in the container is included by default.
func AllOf(ids []string) *VerdictSet {
	v := &VerdictSet{members: make(map[string]Record, len(ids))}
	for _, id := range ids {
		v.members[id] = Record{}
	}
	return v
}

// Lookup reports whether id is a member and returns its attached record.
func (v *VerdictSet) Lookup(id string) (Record, bool) {
	rec, ok := v.members[id]
	return rec, ok
}

// Len returns the number of members.
func (v *VerdictSet) Len() int { return len(v.members) }
