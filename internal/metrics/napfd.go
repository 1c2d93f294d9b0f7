// Package metrics scores an ordered selection of a cycle's test cases.
//
// NAPFD and DefectCoverage are defined only for inputs with at least one
// failure and a non-empty subset respectively; they signal a domain error
// otherwise. Evaluate applies the reporting fallbacks for those degenerate
// cycles on the caller side.
package metrics

import (
	"rltcp/internal/cycle"
	"rltcp/internal/fault"
)

var (
	// ErrNoFailures is returned by NAPFD when the full cycle has no failures.
	ErrNoFailures = fault.New(fault.Domain, "cycle has no failed test cases")
	// ErrEmptySubset is returned by DefectCoverage for an empty subset.
	ErrEmptySubset = fault.New(fault.Domain, "selected subset is empty")
)

// NAPFD computes the Normalized Average Percentage of Faults Detected of
// ordered against the full cycle population:
//
//	p       = failed(ordered) / failed(full)
//	napfd   = p - rankSum/(|full| * |ordered|) + p/(2*|full|)
//
// where rankSum is the sum of the 1-based positions of failures in ordered.
// An empty ordered subset scores 0. The result is not clamped.
func NAPFD(full, ordered []cycle.TestCase) (float64, error) {
	tsFail := cycle.FailedCountIn(full)
	if tsFail == 0 {
		return 0, ErrNoFailures
	}
	subLen := len(ordered)
	if subLen == 0 {
		return 0, nil
	}
	tsLen := float64(len(full))

	rankSum := 0.0
	subFail := 0
	for i, tc := range ordered {
		if tc.Verdict == cycle.Failed {
			rankSum += float64(i + 1)
			subFail++
		}
	}
	p := float64(subFail) / float64(tsFail)
	return p - rankSum/(tsLen*float64(subLen)) + p/(2*tsLen), nil
}

// DefectCoverage is the fraction of the subset that failed.
func DefectCoverage(subset []cycle.TestCase) (float64, error) {
	if len(subset) == 0 {
		return 0, ErrEmptySubset
	}
	return float64(cycle.FailedCountIn(subset)) / float64(len(subset)), nil
}

// Score is the pair of quality numbers reported per ordering.
type Score struct {
	NAPFD          float64 `json:"napfd"`
	DefectCoverage float64 `json:"dc"`
}

// Perfect is reported for a cycle without failures: detection is vacuously complete.
var Perfect = Score{NAPFD: 1, DefectCoverage: 1}

// Evaluate scores ordered against full with the degenerate-input policy:
// no failures in full yields Perfect, an empty subset yields the zero Score.
func Evaluate(full, ordered []cycle.TestCase) (Score, error) {
	if cycle.FailedCountIn(full) == 0 {
		return Perfect, nil
	}
	if len(ordered) == 0 {
		return Score{}, nil
	}
	napfd, err := NAPFD(full, ordered)
	if err != nil {
		return Score{}, err
	}
	dc, err := DefectCoverage(ordered)
	if err != nil {
		return Score{}, err
	}
	return Score{NAPFD: napfd, DefectCoverage: dc}, nil
}
