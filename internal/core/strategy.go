package core

import "context"

// Strategy is one layer of the download fallback chain: specialized
// extractor, direct fetch, generic gallery extractor. Strategies are tried
// in order; the first to produce a file wins.
type Strategy interface {
	// Name identifies the strategy in logs and failure reasons.
	Name() string

	// Wants reports whether the strategy should be attempted for the
	// candidate at all. A strategy that does not want a candidate is
	// skipped without counting as a failure.
	Wants(c Candidate) bool

	// Attempt tries to produce a local file for the candidate inside
	// workDir. It returns the path of the produced file, or "" with a
	// nil error when the strategy ran but produced nothing (the next
	// layer is tried). Errors wrapped in PermanentError abort the whole
	// chain without retry.
	Attempt(ctx context.Context, c Candidate, workDir string) (string, error)
}
