package sieve

import (
	"github.com/grailbio/hts/sam"
	"github.com/pkg/errors"

	"github.com/luminabio/sieve/encoding/fastq"
)

// Stats counts one pass's dispositions.
type Stats struct {
	Total    int
	Retained int
	Stripped int
}

// Router performs the per-read copy/append/report action implied by a
// read's verdict and partition tag.
type Router struct {
	registry *Registry
	resolver *Resolver
	reporter *Reporter
	fastqOut bool
	stats    Stats
}

// NewRouter returns a router writing through the given registry and
// reporter.
func NewRouter(registry *Registry, resolver *Resolver, reporter *Reporter, opts Opts) *Router {
	return &Router{
		registry: registry,
		resolver: resolver,
		reporter: reporter,
		fastqOut: opts.FastqOut,
	}
}

// Route applies one read's verdict. Excluded reads produce a report line and
// no sink writes; retained reads are copied into their partition's binary
// sink and, when text output is enabled, appended to its sequence sink. The
// two sink writes for one retained read complete before Route returns, so
// the text sink always reflects the same retained set as the binary copy.
func (ro *Router) Route(rec *sam.Record, v Verdict) error {
	ro.stats.Total++
	if v.Disposition != Retained {
		ro.stats.Stripped++
		return ro.reporter.Write(v.Record)
	}
	tag, err := ro.resolver.Resolve(rec.Name)
	if err != nil {
		return err
	}
	sink, err := ro.registry.GetOrCreate(tag)
	if err != nil {
		return errors.Wrapf(err, "partition %q", tag)
	}
	if err := sink.WriteRecord(rec); err != nil {
		return errors.Wrapf(err, "partition %q: copying read %q", tag, rec.Name)
	}
	if ro.fastqOut {
		r := fastq.FromSAM(rec)
		if err := sink.WriteFastq(&r); err != nil {
			return errors.Wrapf(err, "partition %q: appending read %q", tag, rec.Name)
		}
	}
	ro.stats.Retained++
	return nil
}

// Stats returns the counts accumulated so far.
func (ro *Router) Stats() Stats {
	return ro.stats
}
