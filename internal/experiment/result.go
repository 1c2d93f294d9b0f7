package experiment

import (
	"context"
	"math"
	"time"

	"rltcp/internal/config"
	"rltcp/internal/metrics"
)

// RunInfo identifies one experiment run.
type RunInfo struct {
	ID      string
	Started time.Time
	Config  config.Config
}

// CycleResult is the outcome of predicting one cycle with the agent trained
// on the previous eligible cycle.
type CycleResult struct {
	// CycleIndex is the position of the predicted cycle in the dataset;
	// CycleID is its id from the CSV.
	CycleIndex int `json:"cycle_index"`
	CycleID    int `json:"cycle_id"`
	TrainedOn  int `json:"trained_on"`

	ModelName    string        `json:"model_name"`
	Steps        int           `json:"steps"`
	TrainingTime time.Duration `json:"training_time"`
	TestingTime  time.Duration `json:"testing_time"`

	TestCases int `json:"test_cases"`
	Failed    int `json:"failed"`

	Time        float64 `json:"time"`
	OptimalTime float64 `json:"time_optimal"`

	Verdicts        []int    `json:"verdicts"`
	OptimalVerdicts []int    `json:"verdicts_optimal"`
	SelectedIDs     []string `json:"selected"`
	OptimalIDs      []string `json:"selected_optimal"`

	Score   metrics.Score `json:"score"`
	Optimal metrics.Score `json:"optimal"`
}

// Sink receives a run's results as they are produced.
type Sink interface {
	Begin(ctx context.Context, run RunInfo) error
	Record(ctx context.Context, r CycleResult) error
	Close() error
}

// Summary aggregates a run.
type Summary struct {
	RunID   string        `json:"run_id"`
	Results []CycleResult `json:"results"`

	Cycles           int           `json:"cycles"`
	MeanNAPFD        float64       `json:"mean_napfd"`
	MinNAPFD         float64       `json:"min_napfd"`
	MaxNAPFD         float64       `json:"max_napfd"`
	MeanOptimalNAPFD float64       `json:"mean_napfd_optimal"`
	MeanDC           float64       `json:"mean_dc"`
	MeanOptimalDC    float64       `json:"mean_dc_optimal"`
	TrainingTime     time.Duration `json:"training_time"`
	TestingTime      time.Duration `json:"testing_time"`
}

// Summarize aggregates results. Min and max are 0 when there are none.
func Summarize(runID string, results []CycleResult) Summary {
	s := Summary{RunID: runID, Results: results, Cycles: len(results)}
	if len(results) == 0 {
		return s
	}
	s.MinNAPFD, s.MaxNAPFD = math.Inf(1), math.Inf(-1)
	for _, r := range results {
		s.MeanNAPFD += r.Score.NAPFD
		s.MeanOptimalNAPFD += r.Optimal.NAPFD
		s.MeanDC += r.Score.DefectCoverage
		s.MeanOptimalDC += r.Optimal.DefectCoverage
		s.MinNAPFD = min(s.MinNAPFD, r.Score.NAPFD)
		s.MaxNAPFD = max(s.MaxNAPFD, r.Score.NAPFD)
		s.TrainingTime += r.TrainingTime
		s.TestingTime += r.TestingTime
	}
	n := float64(len(results))
	s.MeanNAPFD /= n
	s.MeanOptimalNAPFD /= n
	s.MeanDC /= n
	s.MeanOptimalDC /= n
	return s
}
