package dataset

import (
	"rltcp/internal/cycle"
)

// Preprocess groups rows into one record per cycle id from the smallest to
// the largest id present, in order. Ids with no rows yield empty records.
func Preprocess(rows []Row) []*cycle.Record {
	if len(rows) == 0 {
		return nil
	}
	lo, hi := rows[0].Cycle, rows[0].Cycle
	for _, r := range rows {
		lo = min(lo, r.Cycle)
		hi = max(hi, r.Cycle)
	}
	out := make([]*cycle.Record, hi-lo+1)
	for i := range out {
		out[i] = cycle.New(lo + i)
	}
	for _, r := range rows {
		out[r.Cycle-lo].Add(r.TestCase)
	}
	return out
}

// Info summarizes the cycles large enough to train on.
type Info struct {
	Cycles       int     `json:"cycles"`
	TestCases    int     `json:"test_cases"`
	Failed       int     `json:"failed"`
	FailureRate  float64 `json:"failure_rate"`
	FailedCycles int     `json:"failed_cycles"`
	MaxCycleSize int     `json:"max_cycle_size"`
	FirstCycle   int     `json:"first_cycle"`
	LastCycle    int     `json:"last_cycle"`
}

// Summarize counts over cycles with at least minSize test cases. MaxCycleSize
// and the cycle id range cover every cycle.
func Summarize(cycles []*cycle.Record, minSize int) Info {
	var info Info
	for i, c := range cycles {
		if i == 0 {
			info.FirstCycle = c.ID()
		}
		info.LastCycle = c.ID()
		info.MaxCycleSize = max(info.MaxCycleSize, c.Len())
		if c.Len() < minSize {
			continue
		}
		info.Cycles++
		info.TestCases += c.Len()
		f := c.FailedCount()
		info.Failed += f
		if f > 0 {
			info.FailedCycles++
		}
	}
	if info.TestCases > 0 {
		info.FailureRate = float64(info.Failed) / float64(info.TestCases)
	}
	return info
}

// MaxCycleSize returns the largest number of test cases in any cycle.
func MaxCycleSize(cycles []*cycle.Record) int {
	n := 0
	for _, c := range cycles {
		n = max(n, c.Len())
	}
	return n
}
