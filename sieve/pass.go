package sieve

import (
	"context"
	"io"

	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/sam"
	"github.com/pkg/errors"

	"github.com/luminabio/sieve/encoding/container"
	"github.com/luminabio/sieve/encoding/paf"
)

// PassInput is everything one container's pass consumes. The verdict sets
// and resolver are built once per container and are not mutated by the pass.
type PassInput struct {
	// Path of the source container.
	Path string
	// Include is the inclusion verdict set. nil means the null-reference
	// sentinel: every read in the container is included by default.
	Include *paf.VerdictSet
	// Exclude is the exclusion verdict set. nil means no read is excluded by
	// match.
	Exclude *paf.VerdictSet
	// Resolver maps retained reads to partition tags.
	Resolver *Resolver
	// Metadata optionally supplies the per-read metadata table to subset
	// into per-partition tabular sinks.
	Metadata io.Reader
}

// ProcessContainer runs one full pass: enumerate the container's reads,
// classify each against the verdict sets, subset metadata, and route every
// read. All sinks created during the pass are flushed and closed before
// return, so output stays readable if a later container in the batch fails.
func ProcessContainer(ctx context.Context, in PassInput, reporter *Reporter, opts Opts) (Stats, error) {
	r, err := container.Open(ctx, in.Path)
	if err != nil {
		return Stats{}, errors.Wrapf(err, "opening container %s", in.Path)
	}
	header := r.Header()
	var recs []*sam.Record
	for r.Scan() {
		recs = append(recs, r.Record())
	}
	if err := r.Close(ctx); err != nil {
		return Stats{}, errors.Wrapf(err, "reading container %s", in.Path)
	}

	include := in.Include
	if include == nil {
		// Null reference: everyone is included by default.
		log.Printf("%s: no inclusion reference, retaining all %d reads by default", in.Path, len(recs))
		ids := make([]string, len(recs))
		for i, rec := range recs {
			ids[i] = rec.Name
		}
		include = paf.AllOf(ids)
	}
	exclude := in.Exclude
	if exclude == nil {
		exclude = paf.AllOf(nil)
	}
	resolver := in.Resolver
	if resolver == nil {
		resolver = NewResolver()
	}

	verdicts := make([]Verdict, len(recs))
	retained := make(map[string]bool)
	for i, rec := range recs {
		verdicts[i] = Classify(rec.Name, rec.Seq.Length, include, exclude)
		if verdicts[i].Disposition == Retained {
			retained[rec.Name] = true
		}
	}

	registry := NewRegistry(ctx, in.Path, header, opts)
	router := NewRouter(registry, resolver, reporter, opts)
	err = routePass(in, recs, verdicts, retained, resolver, registry, router)
	if cerr := registry.Close(); cerr != nil && err == nil {
		err = cerr
	}
	stats := router.Stats()
	if err != nil {
		return stats, err
	}
	log.Printf("%s: %d reads, %d retained, %d stripped",
		in.Path, stats.Total, stats.Retained, stats.Stripped)
	return stats, nil
}

func routePass(in PassInput, recs []*sam.Record, verdicts []Verdict, retained map[string]bool,
	resolver *Resolver, registry *Registry, router *Router) error {
	// Bulk metadata subsetting runs before per-read routing.
	if in.Metadata != nil {
		if err := SubsetMetadata(in.Metadata, retained, resolver, registry); err != nil {
			return err
		}
	}
	for i, rec := range recs {
		if err := router.Route(rec, verdicts[i]); err != nil {
			return err
		}
	}
	return nil
}
