package report

import (
	"context"
	"fmt"
	"io"
	"sync"

	"rltcp/internal/experiment"
	"rltcp/internal/format"
)

// Console collects results and renders them as a table on Close.
type Console struct {
	W    io.Writer
	Mode format.Mode

	mu      sync.Mutex
	run     experiment.RunInfo
	results []experiment.CycleResult
}

func (c *Console) Begin(_ context.Context, run experiment.RunInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.run = run
	c.results = nil
	return nil
}

func (c *Console) Record(_ context.Context, r experiment.CycleResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, r)
	return nil
}

func (c *Console) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cfg := c.run.Config
	title := fmt.Sprintf("%s / %s on %s (run %s)", cfg.Mode, cfg.Algo, cfg.Name(), c.run.ID)
	_, err := io.WriteString(c.W, ResultsTable(title, c.results, c.Mode)+"\n")
	return err
}

// ResultsTable renders one row per predicted cycle with a mean footer.
func ResultsTable(title string, results []experiment.CycleResult, mode format.Mode) string {
	tb := format.NewTable(mode)
	tb.Title(title)
	tb.Header("Cycle", "Tests", "Failed", "Selected", "NAPFD", "NAPFD*", "DC", "DC*", "Train", "Test")
	for _, r := range results {
		tb.Row(r.CycleID, r.TestCases, r.Failed, len(r.SelectedIDs),
			format.FmtScore(r.Score.NAPFD), format.FmtScore(r.Optimal.NAPFD),
			format.FmtScore(r.Score.DefectCoverage), format.FmtScore(r.Optimal.DefectCoverage),
			format.FmtDuration(r.TrainingTime), format.FmtDuration(r.TestingTime))
	}
	s := experiment.Summarize("", results)
	tb.Footer("MEAN", "", "", "",
		format.FmtScore(s.MeanNAPFD), format.FmtScore(s.MeanOptimalNAPFD),
		format.FmtScore(s.MeanDC), format.FmtScore(s.MeanOptimalDC),
		format.FmtDuration(s.TrainingTime), format.FmtDuration(s.TestingTime))
	cols := make([]format.ColumnConfig, 0, 9)
	for i := 2; i <= 10; i++ {
		cols = append(cols, format.ColumnConfig{Number: i, Align: format.AlignRight})
	}
	tb.Columns(cols...)
	return tb.String()
}

// SummaryTable renders one row per job of a batch.
func SummaryTable(jobs []experiment.Job, sums []*experiment.Summary, mode format.Mode) string {
	tb := format.NewTable(mode)
	tb.Header("Run", "Mode", "Algo", "Cycles", "Mean NAPFD", "Min", "Max", "Mean NAPFD*", "Mean DC")
	for i, s := range sums {
		if s == nil || i >= len(jobs) {
			continue
		}
		cfg := jobs[i].Config
		tb.Row(format.Truncate(s.RunID, 8), cfg.Mode, cfg.Algo, s.Cycles,
			format.FmtScore(s.MeanNAPFD), format.FmtScore(s.MinNAPFD), format.FmtScore(s.MaxNAPFD),
			format.FmtScore(s.MeanOptimalNAPFD), format.FmtScore(s.MeanDC))
	}
	return tb.String()
}
