package cycle

import "sort"

// OptimalOrder returns the best achievable schedule for the cycle: every
// failed test case before any passed one, cheapest LastExecTime first inside
// each group. Ties keep their insertion order, so the result is deterministic.
// The returned slice is a deep copy.
func (r *Record) OptimalOrder() []TestCase {
	failed := make([]TestCase, 0, len(r.testCases))
	passed := make([]TestCase, 0, len(r.testCases))
	for _, tc := range r.testCases {
		if tc.Verdict == Failed {
			failed = append(failed, tc.Clone())
		} else {
			passed = append(passed, tc.Clone())
		}
	}
	byLastExec := func(s []TestCase) {
		sort.SliceStable(s, func(i, j int) bool { return s[i].LastExecTime < s[j].LastExecTime })
	}
	byLastExec(failed)
	byLastExec(passed)
	return append(failed, passed...)
}

// OptimalSubset returns the failed prefix of OptimalOrder, i.e. the ideal
// selection, together with its total AvgExecTime.
func (r *Record) OptimalSubset() ([]TestCase, float64) {
	order := r.OptimalOrder()
	var total float64
	n := 0
	for _, tc := range order {
		if tc.Verdict != Failed {
			break
		}
		total += tc.AvgExecTime
		n++
	}
	return order[:n], total
}

// OptimalRanks maps each test case position in the record to its 0-based
// position in OptimalOrder.
func (r *Record) OptimalRanks() []int {
	idx := make([]int, len(r.testCases))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ta, tb := r.testCases[idx[a]], r.testCases[idx[b]]
		if ta.Verdict != tb.Verdict {
			return ta.Verdict == Failed
		}
		return ta.LastExecTime < tb.LastExecTime
	})
	ranks := make([]int, len(idx))
	for pos, i := range idx {
		ranks[i] = pos
	}
	return ranks
}
