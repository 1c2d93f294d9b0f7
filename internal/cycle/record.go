// Package cycle holds the in-memory model of one CI cycle: the test cases
// discovered in it, their historical features, and the optimal-order oracle
// used as the upper bound for prioritization quality.
package cycle

import (
	"fmt"

	"rltcp/internal/fault"
)

// Verdict values.
const (
	Passed = 0
	Failed = 1
)

var (
	// ErrIndexOutOfRange is returned by Delete for a position outside the record.
	ErrIndexOutOfRange = fault.New(fault.Domain, "test case index out of range")
	// ErrVerdict is returned for a verdict other than Passed or Failed.
	ErrVerdict = fault.New(fault.Input, "verdict must be 0 or 1")
)

// CheckVerdict returns ErrVerdict unless v is Passed or Failed.
func CheckVerdict(v int) error {
	if v != Passed && v != Failed {
		return fault.Wrap(fault.Input, fmt.Sprintf("verdict %d", v), ErrVerdict)
	}
	return nil
}

// TestCase is one test execution inside a cycle.
type TestCase struct {
	TestID       string  `json:"test_id"`
	TestSuite    string  `json:"test_suite"`
	AvgExecTime  float64 `json:"avg_exec_time"`
	LastExecTime float64 `json:"last_exec_time"`
	Verdict      int     `json:"verdict"` // 1 = failed, 0 = passed

	// FailureHistory is most-recent-first and excludes this cycle's verdict.
	FailureHistory []int `json:"failure_history"`
	Age            int   `json:"age"`

	DurationGroup int `json:"duration_group"`
	TimeGroup     int `json:"time_group"`
	CycleID       int `json:"cycle_id"`

	// Prob is the score a policy assigned during selection. Never ground truth.
	Prob float64 `json:"prob"`

	// Enriched dataset only.
	ComplexityMetrics []float64 `json:"complexity_metrics,omitempty"`
	OtherMetrics      []float64 `json:"other_metrics,omitempty"`
	ExecTimeHistory   []float64 `json:"exec_time_history,omitempty"`
}

// IsFailed reports whether the verdict is a failure.
func (tc TestCase) IsFailed() bool { return tc.Verdict == Failed }

// Validate checks the verdict and every failure history entry.
func (tc TestCase) Validate() error {
	if err := CheckVerdict(tc.Verdict); err != nil {
		return fmt.Errorf("test %s: %w", tc.TestID, err)
	}
	for i, v := range tc.FailureHistory {
		if err := CheckVerdict(v); err != nil {
			return fmt.Errorf("test %s: history[%d]: %w", tc.TestID, i, err)
		}
	}
	return nil
}

// Clone returns a deep copy of tc.
func (tc TestCase) Clone() TestCase {
	out := tc
	out.FailureHistory = cloneInts(tc.FailureHistory)
	out.ComplexityMetrics = cloneFloats(tc.ComplexityMetrics)
	out.OtherMetrics = cloneFloats(tc.OtherMetrics)
	out.ExecTimeHistory = cloneFloats(tc.ExecTimeHistory)
	return out
}

// Record is one CI cycle. The cycle id is fixed at creation and the test case
// slice is only reachable through copies, so callers cannot alias and mutate it.
type Record struct {
	id        int
	testCases []TestCase
}

// New returns an empty record for cycleID.
func New(cycleID int) *Record {
	return &Record{id: cycleID, testCases: make([]TestCase, 0)}
}

// ID returns the cycle identifier.
func (r *Record) ID() int { return r.id }

// Add appends a test case. Age is derived from the failure history, Prob is
// reset and CycleID is taken from the record. Duplicate TestIDs are accepted:
// upstream data contains duplicate rows and they are kept as-is.
func (r *Record) Add(tc TestCase) {
	tc = tc.Clone()
	if tc.FailureHistory == nil {
		tc.FailureHistory = []int{}
	}
	tc.Age = len(tc.FailureHistory)
	tc.Prob = 0
	tc.CycleID = r.id
	r.testCases = append(r.testCases, tc)
}

// Len returns the number of test cases.
func (r *Record) Len() int { return len(r.testCases) }

// FailedCount returns the number of test cases with a failed verdict.
func (r *Record) FailedCount() int { return FailedCountIn(r.testCases) }

// TestCases returns a deep copy of the test cases in insertion order.
func (r *Record) TestCases() []TestCase { return cloneAll(r.testCases) }

// At returns a copy of the test case at position i.
func (r *Record) At(i int) (TestCase, error) {
	if i < 0 || i >= len(r.testCases) {
		return TestCase{}, fault.Wrap(fault.Domain, fmt.Sprintf("index %d, len %d", i, len(r.testCases)), ErrIndexOutOfRange)
	}
	return r.testCases[i].Clone(), nil
}

// Delete removes the test case at position index.
func (r *Record) Delete(index int) error {
	if index < 0 || index >= len(r.testCases) {
		return fault.Wrap(fault.Domain, fmt.Sprintf("delete index %d, len %d", index, len(r.testCases)), ErrIndexOutOfRange)
	}
	r.testCases = append(r.testCases[:index], r.testCases[index+1:]...)
	return nil
}

// DeleteByID removes every test case whose TestID equals testID and returns
// how many were removed.
func (r *Record) DeleteByID(testID string) int {
	kept := r.testCases[:0]
	removed := 0
	for _, tc := range r.testCases {
		if tc.TestID == testID {
			removed++
			continue
		}
		kept = append(kept, tc)
	}
	r.testCases = kept
	return removed
}

// FailedCountIn counts failed verdicts in an arbitrary subset.
func FailedCountIn(subset []TestCase) int {
	n := 0
	for _, tc := range subset {
		if tc.Verdict == Failed {
			n++
		}
	}
	return n
}

func cloneAll(tcs []TestCase) []TestCase {
	out := make([]TestCase, len(tcs))
	for i, tc := range tcs {
		out[i] = tc.Clone()
	}
	return out
}

func cloneInts(v []int) []int {
	if v == nil {
		return nil
	}
	out := make([]int, len(v))
	copy(out, v)
	return out
}

func cloneFloats(v []float64) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
