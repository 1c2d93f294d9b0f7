package experiment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"rltcp/internal/agent"
	"rltcp/internal/config"
	"rltcp/internal/cycle"
	"rltcp/internal/fault"
	"rltcp/internal/logging"
	"rltcp/internal/metrics"
	"rltcp/internal/vectorize"
)

// makeCycle builds a cycle of n test cases whose first `failed` cases fail.
// Each case's history matches its verdict so the history agent predicts it.
func makeCycle(id, n, failed int) *cycle.Record {
	rec := cycle.New(id)
	for k := 0; k < n; k++ {
		tc := cycle.TestCase{
			TestID:         fmt.Sprintf("c%d-t%d", id, k),
			AvgExecTime:    float64(k + 1),
			LastExecTime:   float64(k + 1),
			FailureHistory: []int{0},
		}
		if k < failed {
			tc.Verdict = cycle.Failed
			tc.FailureHistory = []int{1}
		}
		rec.Add(tc)
	}
	return rec
}

func fixtureCycles() []*cycle.Record {
	return []*cycle.Record{
		makeCycle(10, 6, 1),
		makeCycle(11, 3, 1), // too small
		makeCycle(12, 6, 0), // no failures
		makeCycle(13, 6, 2),
		makeCycle(14, 7, 1),
		makeCycle(15, 6, 1),
		makeCycle(16, 6, 1),
	}
}

func testConfig() config.Config {
	c := config.Default()
	c.DatasetPath = "fixture.csv"
	c.WindowSize = 1
	c.Episodes = 1
	return c
}

type recordingSink struct {
	mu      sync.Mutex
	began   []RunInfo
	results []CycleResult
}

func (s *recordingSink) Begin(_ context.Context, run RunInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.began = append(s.began, run)
	return nil
}

func (s *recordingSink) Record(_ context.Context, r CycleResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
	return nil
}

func (s *recordingSink) Close() error { return nil }

func tickingClock() func() time.Time {
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestGetSteps(t *testing.T) {
	tests := []struct{ n, episodes, want int }{
		{1, 100, 100},
		{8, 10, 320},
		{6, 1, 21},
		{0, 10, 0},
	}
	for _, tt := range tests {
		if got := GetSteps(tt.n, tt.episodes); got != tt.want {
			t.Errorf("GetSteps(%d, %d) = %d, want %d", tt.n, tt.episodes, got, tt.want)
		}
	}
}

func TestRun_CycleProgression(t *testing.T) {
	sink := &recordingSink{}
	r := &Runner{
		Config: testConfig(),
		Cycles: fixtureCycles(),
		Agent:  agent.NewHistory(agent.Options{WindowSize: 1}),
		Sink:   sink,
		Logger: logging.Discard(),
		RunID:  "run-1",
		Now:    tickingClock(),
	}
	sum, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var predicted, trainedOn []int
	for _, res := range sum.Results {
		predicted = append(predicted, res.CycleIndex)
		trainedOn = append(trainedOn, res.TrainedOn)
	}
	if diff := cmp.Diff([]int{3, 4, 5}, predicted); diff != "" {
		t.Errorf("predicted cycles (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 3, 4}, trainedOn); diff != "" {
		t.Errorf("trained on (-want +got):\n%s", diff)
	}
	if len(sink.began) != 1 || sink.began[0].ID != "run-1" {
		t.Errorf("Begin calls = %+v", sink.began)
	}
	if len(sink.results) != 3 {
		t.Fatalf("sink got %d results", len(sink.results))
	}

	first := sum.Results[0]
	if first.CycleID != 13 || first.TestCases != 6 || first.Failed != 2 {
		t.Errorf("first result = %+v", first)
	}
	if first.Steps != 21 || first.TrainingTime != time.Second || first.TestingTime != time.Second {
		t.Errorf("steps=%d train=%v test=%v", first.Steps, first.TrainingTime, first.TestingTime)
	}
	if first.ModelName != "pointwise_linear_fixture_0_0" {
		t.Errorf("ModelName = %q", first.ModelName)
	}
	// The history agent reproduces the verdicts, so only failures are selected.
	if diff := cmp.Diff([]string{"c13-t0", "c13-t1"}, first.SelectedIDs); diff != "" {
		t.Errorf("selected (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(first.OptimalIDs, first.SelectedIDs); diff != "" {
		t.Errorf("selected differs from optimal (-optimal +selected):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 1}, first.Verdicts); diff != "" {
		t.Errorf("verdicts (-want +got):\n%s", diff)
	}
	if math.Abs(first.Score.NAPFD-(1-2.0/12)) > 1e-9 || first.Score.DefectCoverage != 1 {
		t.Errorf("score = %+v", first.Score)
	}
	if first.Score != first.Optimal {
		t.Errorf("score %+v != optimal %+v", first.Score, first.Optimal)
	}
	if first.Time != 3 || first.OptimalTime != 3 {
		t.Errorf("time=%v optimal=%v, want 3", first.Time, first.OptimalTime)
	}
	if sum.Cycles != 3 || sum.MeanDC != 1 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestRun_EndCycle(t *testing.T) {
	c := testConfig()
	c.CycleCount = 5 // end = 4: only cycle 0 trains, its next eligible index 3 hits end-1
	r := &Runner{Config: c, Cycles: fixtureCycles(), Logger: logging.Discard()}
	sum, err := r.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Cycles != 0 {
		t.Errorf("got %d results, want 0", sum.Cycles)
	}
}

func TestRun_ZeroFailureEnriched(t *testing.T) {
	c := testConfig()
	c.DatasetType = "enriched"
	cycles := []*cycle.Record{makeCycle(1, 6, 1), makeCycle(2, 6, 0), makeCycle(3, 6, 1), makeCycle(4, 6, 1)}
	r := &Runner{Config: c, Cycles: cycles, Agent: agent.NewHistory(agent.Options{WindowSize: 1}), Logger: logging.Discard()}
	sum, err := r.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(sum.Results) == 0 || sum.Results[0].CycleIndex != 1 {
		t.Fatalf("results = %+v", sum.Results)
	}
	res := sum.Results[0]
	if res.Score.NAPFD != 1 || res.Score.DefectCoverage != 1 || res.Optimal.NAPFD != 1 {
		t.Errorf("no-failure cycle scores = %+v / %+v, want 1", res.Score, res.Optimal)
	}
}

func TestRun_CapacityTooSmall(t *testing.T) {
	c := testConfig()
	c.MaxTestCases = 5
	r := &Runner{Config: c, Cycles: fixtureCycles(), Logger: logging.Discard()}
	_, err := r.Run(context.Background())
	if !errors.Is(err, vectorize.ErrCapacity) || fault.KindOf(err) != fault.Config {
		t.Errorf("err = %v, want capacity config error", err)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	c := testConfig()
	c.Mode = "treewise"
	r := &Runner{Config: c, Cycles: fixtureCycles(), Logger: logging.Discard()}
	if _, err := r.Run(context.Background()); fault.KindOf(err) != fault.Config {
		t.Errorf("err = %v, want config error", err)
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &Runner{Config: testConfig(), Cycles: fixtureCycles(), Logger: logging.Discard()}
	if _, err := r.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestRun_SaveModels(t *testing.T) {
	c := testConfig()
	c.OutputDir = t.TempDir()
	c.SaveModels = true
	r := &Runner{Config: c, Cycles: fixtureCycles(), Logger: logging.Discard()}
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, i := range []int{0, 3, 4, 5} {
		path := filepath.Join(c.LogDir(), c.ModelName(i)+".json")
		if _, err := os.Stat(path); err != nil {
			t.Errorf("model for cycle %d: %v", i, err)
		}
	}
}

func TestRunBatch(t *testing.T) {
	var jobs []Job
	for _, mode := range []string{"pointwise", "pairwise", "listwise"} {
		c := testConfig()
		c.Mode = mode
		jobs = append(jobs, Job{Config: c, Cycles: fixtureCycles(), RunID: mode})
	}
	sums, err := RunBatch(context.Background(), jobs, 2, logging.Discard())
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if len(sums) != 3 {
		t.Fatalf("got %d summaries", len(sums))
	}
	for i, s := range sums {
		if s.RunID != jobs[i].RunID || s.Cycles != 3 {
			t.Errorf("summary %d = run %q, %d cycles", i, s.RunID, s.Cycles)
		}
	}

	bad := testConfig()
	bad.Algo = "dqn"
	if _, err := RunBatch(context.Background(), append(jobs, Job{Config: bad}), 0, logging.Discard()); fault.KindOf(err) != fault.Config {
		t.Errorf("batch with bad job err = %v", err)
	}
}

func TestSummarize(t *testing.T) {
	got := Summarize("r", []CycleResult{
		{Score: metrics.Score{NAPFD: 0.5, DefectCoverage: 1}},
		{Score: metrics.Score{NAPFD: 0.9, DefectCoverage: 0.5}},
	})
	if math.Abs(got.MeanNAPFD-0.7) > 1e-9 || got.MinNAPFD != 0.5 || got.MaxNAPFD != 0.9 || got.MeanDC != 0.75 {
		t.Errorf("Summarize = %+v", got)
	}
	if empty := Summarize("r", nil); empty.MinNAPFD != 0 || empty.Cycles != 0 {
		t.Errorf("empty Summarize = %+v", empty)
	}
}
