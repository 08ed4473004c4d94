package sieve

type Opts struct {
	// MinMapQ is the minimum mapping quality an alignment line must carry to
	// count as a match, for both the inclusion and the exclusion pass.
	MinMapQ int
	// FastqOut enables the per-partition four-line sequence-text sink.
	FastqOut bool
	// GzipFastq compresses the sequence-text sinks. Only meaningful with
	// FastqOut.
	GzipFastq bool
	// OutDir is the root under which per-partition output directories are
	// created.
	OutDir string
}

// DefaultOpts sets the default values to Opts.
var DefaultOpts = Opts{
	MinMapQ:   0,
	FastqOut:  false,
	GzipFastq: false,
	OutDir:    ".",
}
