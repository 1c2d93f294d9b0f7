// Package vectorize turns a cycle's test cases into fixed-length numeric rows
// for a policy.
//
// Row layout for a window of size w:
//
//	[0, w)        failure history, most recent first, padded right / oldest dropped
//	next          complexity metrics (enriched datasets)
//	next          other metrics (enriched datasets)
//	last four     avg_exec_time, age, time_group, duration_group
package vectorize

import (
	"fmt"
	"math"

	"rltcp/internal/cycle"
	"rltcp/internal/fault"
)

// TrailingFeatures is the number of scalar slots after the variable part.
const TrailingFeatures = 4

var (
	// ErrCapacity is returned when the matrix capacity is below the cycle size.
	// Callers size the capacity to the largest cycle of the dataset up front.
	ErrCapacity = fault.New(fault.Config, "max test case count smaller than cycle size")
	// ErrRowWidth is returned when test cases of one cycle produce rows of different lengths.
	ErrRowWidth = fault.New(fault.Config, "test case vectors differ in length")
)

// Options controls the layout.
type Options struct {
	WindowSize int
	// Pad fills missing history slots and padding rows.
	Pad float64
}

// Length returns the vector length for tc.
func Length(tc cycle.TestCase, window int) int {
	return window + TrailingFeatures + len(tc.ComplexityMetrics) + len(tc.OtherMetrics)
}

// ExportTestCase returns the feature vector of one test case.
func ExportTestCase(tc cycle.TestCase, opts Options) []float64 {
	v := make([]float64, Length(tc, opts.WindowSize))
	i := 0
	for ; i < opts.WindowSize; i++ {
		if i < len(tc.FailureHistory) {
			v[i] = float64(tc.FailureHistory[i])
		} else {
			v[i] = opts.Pad
		}
	}
	for _, m := range tc.ComplexityMetrics {
		v[i] = m
		i++
	}
	for _, m := range tc.OtherMetrics {
		v[i] = m
		i++
	}
	v[i] = tc.AvgExecTime
	v[i+1] = float64(tc.Age)
	v[i+2] = float64(tc.TimeGroup)
	v[i+3] = float64(tc.DurationGroup)
	return v
}

// ExportTestCases returns a maxCount x width matrix: one row per test case,
// Pad-filled rows up to maxCount, then every column divided by its maximum
// absolute value. A column that is all zero stays zero.
func ExportTestCases(tcs []cycle.TestCase, maxCount int, opts Options) ([][]float64, error) {
	if maxCount < len(tcs) {
		return nil, fault.Wrap(fault.Config, fmt.Sprintf("capacity %d, cycle has %d", maxCount, len(tcs)), ErrCapacity)
	}
	width := opts.WindowSize + TrailingFeatures
	if len(tcs) > 0 {
		width = Length(tcs[0], opts.WindowSize)
	}

	m := make([][]float64, maxCount)
	for i, tc := range tcs {
		row := ExportTestCase(tc, opts)
		if len(row) != width {
			return nil, fault.Wrap(fault.Config, fmt.Sprintf("row %d has %d features, want %d", i, len(row), width), ErrRowWidth)
		}
		m[i] = row
	}
	for i := len(tcs); i < maxCount; i++ {
		row := make([]float64, width)
		for j := range row {
			row[j] = opts.Pad
		}
		m[i] = row
	}
	NormalizeColumns(m)
	return m, nil
}

// NormalizeColumns divides each column of m in place by its maximum absolute value.
func NormalizeColumns(m [][]float64) {
	if len(m) == 0 {
		return
	}
	for j := range m[0] {
		maxAbs := 0.0
		for i := range m {
			if a := math.Abs(m[i][j]); a > maxAbs {
				maxAbs = a
			}
		}
		if maxAbs == 0 {
			continue
		}
		for i := range m {
			m[i][j] /= maxAbs
		}
	}
}
