// Package selection turns a policy's ranked, scored test cases into the
// subset that is actually executed. It never re-sorts: the input order is the
// policy's priority ranking and the output preserves it.
package selection

import (
	"fmt"
	"strings"

	"rltcp/internal/cycle"
	"rltcp/internal/fault"
)

// ErrNonPositiveDuration is returned when a ranked test case has AvgExecTime <= 0.
var ErrNonPositiveDuration = fault.New(fault.Config, "avg_exec_time must be positive")

// Strategy picks the selection rule.
type Strategy string

const (
	// Revenue keeps every test case whose prob/avg_exec_time exceeds the
	// threshold, independently of the others.
	Revenue Strategy = "revenue"
	// TimeBudget keeps the longest prefix whose cumulative avg_exec_time stays
	// within TimeRatio of the ranked list's total time.
	TimeBudget Strategy = "time-budget"
)

// ParseStrategy parses a strategy name; empty selects Revenue.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", Revenue:
		return Revenue, nil
	case TimeBudget, "time", "budget":
		return TimeBudget, nil
	default:
		return "", fault.Newf(fault.Config, "unknown selection strategy %q (available: revenue, time-budget)", s)
	}
}

// Config selects and parameterizes a strategy.
type Config struct {
	Strategy         Strategy `yaml:"strategy" json:"strategy"`
	RevenueThreshold float64  `yaml:"revenue_threshold" json:"revenue_threshold"`
	TimeRatio        float64  `yaml:"time_ratio" json:"time_ratio"`
}

// DefaultConfig is the revenue gate at 0: any test case with a non-zero
// predicted failure probability is selected.
func DefaultConfig() Config {
	return Config{Strategy: Revenue, RevenueThreshold: 0, TimeRatio: 0.6}
}

// Select applies cfg to ranked.
func Select(ranked []cycle.TestCase, cfg Config) ([]cycle.TestCase, error) {
	for i, tc := range ranked {
		if tc.AvgExecTime <= 0 {
			return nil, fault.Wrap(fault.Config,
				fmt.Sprintf("test case %q at rank %d has avg_exec_time %v", tc.TestID, i, tc.AvgExecTime),
				ErrNonPositiveDuration)
		}
	}
	switch cfg.Strategy {
	case "", Revenue:
		return byRevenue(ranked, cfg.RevenueThreshold), nil
	case TimeBudget:
		return byTimeBudget(ranked, cfg.TimeRatio), nil
	default:
		return nil, fault.Newf(fault.Config, "unknown selection strategy %q", cfg.Strategy)
	}
}

// UnitTimeRevenue is the predicted failure probability per unit of execution time.
func UnitTimeRevenue(tc cycle.TestCase) float64 {
	return tc.Prob / tc.AvgExecTime
}

func byRevenue(ranked []cycle.TestCase, threshold float64) []cycle.TestCase {
	out := make([]cycle.TestCase, 0, len(ranked))
	for _, tc := range ranked {
		if UnitTimeRevenue(tc) > threshold {
			out = append(out, tc)
		}
	}
	return out
}

func byTimeBudget(ranked []cycle.TestCase, ratio float64) []cycle.TestCase {
	var total float64
	for _, tc := range ranked {
		total += tc.AvgExecTime
	}
	budget := ratio * total
	out := make([]cycle.TestCase, 0, len(ranked))
	var spent float64
	for _, tc := range ranked {
		if spent+tc.AvgExecTime > budget {
			break
		}
		spent += tc.AvgExecTime
		out = append(out, tc)
	}
	return out
}

// TotalTime sums AvgExecTime over tcs.
func TotalTime(tcs []cycle.TestCase) float64 {
	var t float64
	for _, tc := range tcs {
		t += tc.AvgExecTime
	}
	return t
}
