package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"rltcp/internal/config"
	"rltcp/internal/cycle"
	"rltcp/internal/dataset"
	"rltcp/internal/experiment"
	"rltcp/internal/fault"
	"rltcp/internal/format"
	"rltcp/internal/logging"
	"rltcp/internal/report"
	"rltcp/internal/selection"
	"rltcp/internal/store"
)

type runFlags struct {
	configPath string
	dbPath     string
	noStore    bool
	parallel   int
	format     string
	metrics    string

	mode, algo       string
	episodes, window int
	datasetPath      string
	datasetType      string
	first, count     int
	maxTestCases     int
	minCycleSize     int
	output           string
	notes            string
	strategy         string
	timeRatio        float64
	revenueThreshold float64
	seed             uint64
	saveModels       bool
}

func newRunCmd() *cobra.Command {
	cmd, _ := runCommand()
	return cmd
}

// runCommand returns the run command and the flag values it binds.
func runCommand() (*cobra.Command, *runFlags) {
	fl := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Train and evaluate agents over a dataset",
		Long: `Run trains the agent on each eligible cycle and ranks the next one, printing
NAPFD and defect coverage per cycle next to the optimal ordering.

-m and -a accept comma-separated lists; every mode/algorithm pair runs as an
independent experiment, up to --parallel at a time.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExperiments(cmd, fl)
		},
	}
	f := cmd.Flags()
	f.StringVar(&fl.configPath, "config", "", "YAML or JSON experiment config; flags override it")
	f.StringVar(&fl.dbPath, "db", store.DefaultDBPath, "Results DB path")
	f.BoolVar(&fl.noStore, "no-store", false, "Do not persist results to the DB")
	f.IntVar(&fl.parallel, "parallel", 1, "Experiments run concurrently (0 = all)")
	f.StringVar(&fl.format, "format", "table", "Table format (table, markdown, csv)")
	f.StringVar(&fl.metrics, "metrics", "", "Prometheus textfile path (default <output>/metrics.prom; \"-\" disables)")

	def := config.Default()
	f.StringVarP(&fl.mode, "mode", "m", def.Mode, "Environment mode(s): pointwise, pairwise, listwise")
	f.StringVarP(&fl.algo, "algo", "a", def.Algo, "Agent algorithm(s): linear, history, random")
	f.IntVarP(&fl.episodes, "episodes", "e", def.Episodes, "Training episodes per cycle")
	f.IntVarP(&fl.window, "window", "w", def.WindowSize, "Failure history window size")
	f.StringVarP(&fl.datasetPath, "train-data", "t", "", "Dataset CSV path")
	f.StringVarP(&fl.datasetType, "dataset-type", "d", def.DatasetType, "Dataset type (simple, enriched)")
	f.IntVarP(&fl.first, "first-cycle", "f", def.StartCycle, "First cycle index")
	f.IntVarP(&fl.count, "cycle-count", "c", def.CycleCount, "Number of cycles to process")
	f.IntVarP(&fl.maxTestCases, "max-test-cases", "l", def.MaxTestCases, "Feature matrix capacity (0 = largest cycle)")
	f.IntVar(&fl.minCycleSize, "min-cycle-size", def.MinCycleSize, "Skip cycles with fewer test cases")
	f.StringVarP(&fl.output, "output", "o", def.OutputDir, "Output directory for logs and models")
	f.StringVarP(&fl.notes, "notes", "n", "", "Free-form notes stored with the run")
	f.StringVarP(&fl.strategy, "strategy", "s", string(def.Selection.Strategy), "Selection strategy (revenue, time-budget)")
	f.Float64Var(&fl.timeRatio, "time-ratio", def.Selection.TimeRatio, "Time budget share for the time-budget strategy")
	f.Float64Var(&fl.revenueThreshold, "revenue-threshold", def.Selection.RevenueThreshold, "Minimum prob/duration for the revenue strategy")
	f.Uint64Var(&fl.seed, "seed", def.Seed, "Random seed")
	f.BoolVar(&fl.saveModels, "save-models", false, "Write a checkpoint after each training cycle")
	return cmd, fl
}

// buildConfig loads --config, if any, and applies every flag the user set.
func buildConfig(cmd *cobra.Command, fl *runFlags) (config.Config, error) {
	cfg := config.Default()
	if fl.configPath != "" {
		var err error
		if cfg, err = config.LoadFromPath(fl.configPath); err != nil {
			return cfg, err
		}
	}
	set := cmd.Flags().Changed
	if set("mode") {
		cfg.Mode = fl.mode
	}
	if set("algo") {
		cfg.Algo = fl.algo
	}
	if set("episodes") {
		cfg.Episodes = fl.episodes
	}
	if set("window") {
		cfg.WindowSize = fl.window
	}
	if set("train-data") {
		cfg.DatasetPath = fl.datasetPath
	}
	if set("dataset-type") {
		cfg.DatasetType = fl.datasetType
	}
	if set("first-cycle") {
		cfg.StartCycle = fl.first
	}
	if set("cycle-count") {
		cfg.CycleCount = fl.count
	}
	if set("max-test-cases") {
		cfg.MaxTestCases = fl.maxTestCases
	}
	if set("min-cycle-size") {
		cfg.MinCycleSize = fl.minCycleSize
	}
	if set("output") {
		cfg.OutputDir = fl.output
	}
	if set("notes") {
		cfg.Notes = fl.notes
	}
	if set("strategy") {
		s, err := selection.ParseStrategy(fl.strategy)
		if err != nil {
			return cfg, err
		}
		cfg.Selection.Strategy = s
	}
	if set("time-ratio") {
		cfg.Selection.TimeRatio = fl.timeRatio
	}
	if set("revenue-threshold") {
		cfg.Selection.RevenueThreshold = fl.revenueThreshold
	}
	if set("seed") {
		cfg.Seed = fl.seed
	}
	if set("save-models") {
		cfg.SaveModels = fl.saveModels
	}
	return cfg, nil
}

// expandJobs returns one config per mode/algorithm pair of cfg's comma lists.
func expandJobs(cfg config.Config) ([]config.Config, error) {
	var out []config.Config
	for _, m := range splitList(cfg.Mode) {
		for _, a := range splitList(cfg.Algo) {
			c := cfg
			c.Mode, c.Algo = m, a
			if err := c.Validate(); err != nil {
				return nil, err
			}
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil, fault.New(fault.Config, "no mode/algorithm given")
	}
	return out, nil
}

func runExperiments(cmd *cobra.Command, fl *runFlags) error {
	log := logging.New("run")
	mode, err := format.ParseMode(fl.format)
	if err != nil {
		return err
	}
	base, err := buildConfig(cmd, fl)
	if err != nil {
		return err
	}
	cfgs, err := expandJobs(base)
	if err != nil {
		return err
	}
	cycles, err := loadCycles(base.DatasetPath, base.DatasetType)
	if err != nil {
		return err
	}
	info := dataset.Summarize(cycles, base.MinCycleSize)
	log.Info("dataset loaded",
		"path", base.DatasetPath, "cycles", len(cycles), "eligible", info.Cycles,
		"test_cases", info.TestCases, "failure_rate", info.FailureRate, "experiments", len(cfgs))

	var st store.Store
	if !fl.noStore {
		sq, err := store.Open(fl.dbPath)
		if err != nil {
			return err
		}
		defer sq.Close()
		st = sq
	}

	out := &lockedWriter{w: cmd.OutOrStdout()}
	prom := report.NewMetrics()
	jobs := make([]experiment.Job, len(cfgs))
	for i, c := range cfgs {
		sinks := report.Multi{
			&report.Console{W: out, Mode: mode},
			&report.TextLog{},
			prom.Sink(),
		}
		if st != nil {
			sinks = append(sinks, &report.StoreSink{Store: st})
		}
		jobs[i] = experiment.Job{Config: c, Cycles: cycles, Sink: sinks, RunID: store.NewRunID()}
	}

	sums, runErr := experiment.RunBatch(cmd.Context(), jobs, fl.parallel, log)
	var closeErrs []error
	for _, j := range jobs {
		closeErrs = append(closeErrs, j.Sink.Close())
	}
	if runErr != nil {
		return runErr
	}
	if err := errors.Join(closeErrs...); err != nil {
		return err
	}

	if len(jobs) > 1 {
		fmt.Fprintln(out, report.SummaryTable(jobs, sums, mode))
	}
	if path := metricsPath(fl.metrics, base.OutputDir); path != "" {
		if err := prom.WriteTextfile(path); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
		log.Info("metrics written", "path", path)
	}
	return nil
}

func metricsPath(flag, outputDir string) string {
	switch flag {
	case "-":
		return ""
	case "":
		return filepath.Join(outputDir, "metrics.prom")
	default:
		return flag
	}
}

func loadCycles(path, typ string) ([]*cycle.Record, error) {
	t, err := dataset.ParseType(typ)
	if err != nil {
		return nil, err
	}
	rows, err := dataset.Load(path, t)
	if err != nil {
		return nil, err
	}
	return dataset.Preprocess(rows), nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// lockedWriter serializes writes from concurrent consoles.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
