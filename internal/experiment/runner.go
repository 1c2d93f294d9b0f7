// Package experiment drives the train-on-one-cycle, predict-the-next loop
// over a dataset and reports per-cycle scores.
package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"rltcp/internal/agent"
	"rltcp/internal/config"
	"rltcp/internal/cycle"
	"rltcp/internal/dataset"
	"rltcp/internal/env"
	"rltcp/internal/fault"
	"rltcp/internal/logging"
	"rltcp/internal/metrics"
	"rltcp/internal/selection"
	"rltcp/internal/vectorize"
)

// GetSteps is the training budget for a cycle of n test cases:
// episodes * n * (log2(n) + 1).
func GetSteps(n, episodes int) int {
	if n <= 0 {
		return 0
	}
	fn := float64(n)
	return int(float64(episodes) * (fn * (math.Log2(fn) + 1)))
}

// Runner runs one experiment over Cycles.
type Runner struct {
	Config config.Config
	Cycles []*cycle.Record
	// Agent is built from Config when nil.
	Agent agent.Agent
	// Sink is optional; Runner calls Begin and Record but never Close.
	Sink   Sink
	Logger *slog.Logger
	RunID  string
	// Now defaults to time.Now.
	Now func() time.Time
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Run trains and evaluates cycle by cycle in increasing order.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	cfg := r.Config
	log := r.Logger
	if log == nil {
		log = logging.New("experiment")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	mode, _ := env.ParseMode(cfg.Mode)
	typ, _ := dataset.ParseType(cfg.DatasetType)

	settings := env.Settings{WindowSize: cfg.WindowSize, Pad: cfg.Pad, MaxTestCases: cfg.MaxTestCases}
	largest := dataset.MaxCycleSize(r.Cycles)
	if settings.MaxTestCases == 0 {
		settings.MaxTestCases = largest
	} else if settings.MaxTestCases < largest {
		return nil, fault.Wrap(fault.Config,
			fmt.Sprintf("max test cases %d, largest cycle has %d", settings.MaxTestCases, largest), vectorize.ErrCapacity)
	}

	ag := r.Agent
	if ag == nil {
		var err error
		ag, err = agent.New(cfg.Algo, agent.Options{
			Seed: cfg.Seed, WindowSize: cfg.WindowSize, LearningRate: cfg.LearningRate, Sigma: cfg.Sigma,
		})
		if err != nil {
			return nil, err
		}
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed+1))

	if r.Sink != nil {
		if err := r.Sink.Begin(ctx, RunInfo{ID: r.RunID, Started: r.now(), Config: cfg}); err != nil {
			return nil, fmt.Errorf("begin run: %w", err)
		}
	}

	// Every mode needs at least two test cases to order.
	minSize := max(cfg.MinCycleSize, 2)
	eligible := func(c *cycle.Record) bool {
		if c.Len() < minSize {
			return false
		}
		return typ != dataset.Simple || c.FailedCount() > 0
	}

	end := cfg.EndCycle(len(r.Cycles))
	var results []CycleResult
	for i := cfg.StartCycle; i < end-1; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !eligible(r.Cycles[i]) {
			continue
		}
		e, err := env.Create(mode, settings, r.Cycles[i], rng)
		if err != nil {
			return nil, fmt.Errorf("cycle %d: %w", i, err)
		}
		steps := GetSteps(e.Len(), cfg.Episodes)
		log.Info("training agent", slog.Int("cycle", i), slog.Int("steps", steps))
		t0 := r.now()
		if err := ag.Learn(ctx, e, steps); err != nil {
			return nil, fmt.Errorf("train on cycle %d: %w", i, err)
		}
		trainDur := r.now().Sub(t0)
		modelName := cfg.ModelName(i)
		if cfg.SaveModels {
			if err := saveModel(ag, cfg.LogDir(), modelName); err != nil {
				return nil, err
			}
		}

		j := i + 1
		for j < end && !eligible(r.Cycles[j]) {
			j++
		}
		if j >= end-1 {
			break
		}

		res, err := r.predict(ag, mode, settings, rng, j)
		if err != nil {
			return nil, fmt.Errorf("predict cycle %d: %w", j, err)
		}
		res.TrainedOn = i
		res.ModelName = modelName
		res.Steps = steps
		res.TrainingTime = trainDur
		log.Info("testing agent",
			slog.Int("cycle", j),
			slog.Float64("napfd", res.Score.NAPFD),
			slog.Float64("napfd_optimal", res.Optimal.NAPFD),
			slog.Float64("dc", res.Score.DefectCoverage),
			slog.Float64("dc_optimal", res.Optimal.DefectCoverage),
			slog.Int("test_cases", res.TestCases),
			slog.Int("failed", res.Failed),
			slog.Int("selected", len(res.SelectedIDs)),
			slog.Duration("training", res.TrainingTime),
			slog.Duration("testing", res.TestingTime))
		if r.Sink != nil {
			if err := r.Sink.Record(ctx, *res); err != nil {
				return nil, fmt.Errorf("record cycle %d: %w", j, err)
			}
		}
		results = append(results, *res)
	}
	s := Summarize(r.RunID, results)
	return &s, nil
}

func (r *Runner) predict(ag agent.Agent, mode env.Mode, settings env.Settings, rng *rand.Rand, j int) (*CycleResult, error) {
	target := r.Cycles[j]
	e, err := env.Create(mode, settings, target, rng)
	if err != nil {
		return nil, err
	}
	t0 := r.now()
	ranked, err := e.Rank(ag.Score)
	if err != nil {
		return nil, err
	}
	testDur := r.now().Sub(t0)

	selected, err := selection.Select(ranked, r.Config.Selection)
	if err != nil {
		return nil, err
	}
	optimal, optimalTime := target.OptimalSubset()
	full := target.TestCases()
	score, err := metrics.Evaluate(full, selected)
	if err != nil {
		return nil, err
	}
	best, err := metrics.Evaluate(full, optimal)
	if err != nil {
		return nil, err
	}
	return &CycleResult{
		CycleIndex:      j,
		CycleID:         target.ID(),
		TestingTime:     testDur,
		TestCases:       target.Len(),
		Failed:          target.FailedCount(),
		Time:            selection.TotalTime(selected),
		OptimalTime:     optimalTime,
		Verdicts:        verdicts(selected),
		OptimalVerdicts: verdicts(optimal),
		SelectedIDs:     testIDs(selected),
		OptimalIDs:      testIDs(optimal),
		Score:           score,
		Optimal:         best,
	}, nil
}

func saveModel(ag agent.Agent, dir, name string) error {
	cp, ok := ag.(agent.Checkpointer)
	if !ok {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	f, err := os.Create(filepath.Join(dir, name+".json"))
	if err != nil {
		return fmt.Errorf("create model file: %w", err)
	}
	if err := cp.Save(f); err != nil {
		f.Close()
		return fmt.Errorf("save model %s: %w", name, err)
	}
	return f.Close()
}

func verdicts(tcs []cycle.TestCase) []int {
	out := make([]int, len(tcs))
	for i, tc := range tcs {
		out[i] = tc.Verdict
	}
	return out
}

func testIDs(tcs []cycle.TestCase) []string {
	out := make([]string, len(tcs))
	for i, tc := range tcs {
		out[i] = tc.TestID
	}
	return out
}

// Job is one experiment of a batch.
type Job struct {
	Config config.Config
	Cycles []*cycle.Record
	Sink   Sink
	RunID  string
}

// RunBatch runs independent jobs with at most parallel in flight (0 means
// unlimited). Summaries are returned in job order; the first error cancels
// the rest.
func RunBatch(ctx context.Context, jobs []Job, parallel int, log *slog.Logger) ([]*Summary, error) {
	if log == nil {
		log = logging.New("experiment")
	}
	g, ctx := errgroup.WithContext(ctx)
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	out := make([]*Summary, len(jobs))
	for i, job := range jobs {
		g.Go(func() error {
			r := &Runner{
				Config: job.Config,
				Cycles: job.Cycles,
				Sink:   job.Sink,
				RunID:  job.RunID,
				Logger: log.With(slog.String("mode", job.Config.Mode), slog.String("algo", job.Config.Algo)),
			}
			s, err := r.Run(ctx)
			if err != nil {
				return fmt.Errorf("%s/%s: %w", job.Config.Mode, job.Config.Algo, err)
			}
			out[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
