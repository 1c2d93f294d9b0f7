package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"rltcp/internal/experiment"
	"rltcp/internal/format"
)

// LogHeader is the first line written to every text log.
const LogHeader = "timestamp,mode,algo,model_name,episodes,steps,cycle_id,training_time,testing_time," +
	"winsize,test_cases_count,failed_test_cases_count,time_optimal,time,verdict_list," +
	"verdict_optimal_list,select_test_case_id,optimal_select_test_case_id,napfd,napfd_optimal,dc,dc_optimal"

// SortedCasesFile is the per-run file listing the selected test ids per cycle.
const SortedCasesFile = "sorted_test_case.csv"

const logTimeLayout = "02/01/2006 15:04:05"

// TextLog appends one comma-separated line per cycle to the experiment's log
// file and the selected ids to sorted_test_case.csv, both under the run's
// LogDir. Times are in milliseconds.
type TextLog struct {
	// Now defaults to time.Now.
	Now func() time.Time

	mu     sync.Mutex
	run    experiment.RunInfo
	log    *os.File
	sorted *os.File
}

func (t *TextLog) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

func (t *TextLog) Begin(_ context.Context, run experiment.RunInfo) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	dir := run.Config.LogDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	var err error
	if t.log, err = os.OpenFile(filepath.Join(dir, run.Config.LogFilename()), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err != nil {
		return fmt.Errorf("open text log: %w", err)
	}
	if t.sorted, err = os.OpenFile(filepath.Join(dir, SortedCasesFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err != nil {
		t.log.Close()
		return fmt.Errorf("open %s: %w", SortedCasesFile, err)
	}
	t.run = run
	// Header only on a new file; later runs append below it.
	info, err := t.log.Stat()
	if err != nil {
		return fmt.Errorf("stat text log: %w", err)
	}
	if info.Size() > 0 {
		return nil
	}
	_, err = fmt.Fprintln(t.log, LogHeader)
	return err
}

func (t *TextLog) Record(_ context.Context, r experiment.CycleResult) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.log == nil {
		return errors.New("text log not started")
	}
	cfg := t.run.Config
	ts := t.now().Format(logTimeLayout)
	prefix := strings.Join([]string{
		ts, cfg.Mode, cfg.Algo, r.ModelName,
		fmt.Sprint(cfg.Episodes), fmt.Sprint(r.Steps), fmt.Sprint(r.CycleIndex),
		fmt.Sprint(format.Millis(r.TrainingTime)), fmt.Sprint(format.Millis(r.TestingTime)),
		fmt.Sprint(cfg.WindowSize),
	}, ",")
	line := strings.Join([]string{
		prefix,
		fmt.Sprint(r.TestCases), fmt.Sprint(r.Failed),
		fmt.Sprint(r.OptimalTime), fmt.Sprint(r.Time),
		format.JoinVerdicts(r.Verdicts), format.JoinVerdicts(r.OptimalVerdicts),
		format.JoinIDs(r.SelectedIDs), format.JoinIDs(r.OptimalIDs),
		fmt.Sprint(r.Score.NAPFD), fmt.Sprint(r.Optimal.NAPFD),
		fmt.Sprint(r.Score.DefectCoverage), fmt.Sprint(r.Optimal.DefectCoverage),
	}, ",")
	if _, err := fmt.Fprintln(t.log, line); err != nil {
		return fmt.Errorf("write text log: %w", err)
	}
	sorted := strings.Join([]string{prefix, fmt.Sprint(r.Score.DefectCoverage), format.JoinIDs(r.SelectedIDs)}, ",")
	if _, err := fmt.Fprintln(t.sorted, sorted); err != nil {
		return fmt.Errorf("write %s: %w", SortedCasesFile, err)
	}
	return nil
}

func (t *TextLog) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var errs []error
	if t.log != nil {
		errs = append(errs, t.log.Close())
		t.log = nil
	}
	if t.sorted != nil {
		errs = append(errs, t.sorted.Close())
		t.sorted = nil
	}
	return errors.Join(errs...)
}
