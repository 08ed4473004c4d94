// Package sieve classifies the reads of a binary container against external
// alignment verdicts and fans retained reads out across per-partition sinks.
// One container is fully classified and routed before the next begins; the
// only state shared across containers is the global exclusion Reporter.
package sieve

import (
	"github.com/luminabio/sieve/encoding/paf"
)

// Disposition is the classification outcome of one read.
type Disposition int

const (
	// Retained reads are copied into their partition's sinks.
	Retained Disposition = iota
	// ExcludedByMatch reads matched the exclusion reference at or above the
	// threshold.
	ExcludedByMatch
	// ExcludedByNoMatch reads matched neither reference set.
	ExcludedByNoMatch
)

func (d Disposition) String() string {
	switch d {
	case Retained:
		return "retained"
	case ExcludedByMatch:
		return "excluded-by-match"
	case ExcludedByNoMatch:
		return "excluded-by-no-match"
	}
	return "invalid"
}

// A Verdict pairs a read's disposition with the alignment record that
// justifies it: the matched exclusion record for ExcludedByMatch, a
// synthesized placeholder for ExcludedByNoMatch, and the zero Record for
// Retained.
type Verdict struct {
	Disposition Disposition
	Record      paf.Record
}

// Classify assigns exactly one disposition to the read with the given
// identifier and length. Exclusion takes precedence over inclusion: a read
// present in both sets is always ExcludedByMatch.
func Classify(id string, length int, include, exclude *paf.VerdictSet) Verdict {
	if rec, ok := exclude.Lookup(id); ok {
		return Verdict{Disposition: ExcludedByMatch, Record: rec}
	}
	if _, ok := include.Lookup(id); ok {
		return Verdict{Disposition: Retained}
	}
	return Verdict{Disposition: ExcludedByNoMatch, Record: paf.Placeholder(id, length)}
}
