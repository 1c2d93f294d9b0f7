package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"rltcp/internal/experiment"
	"rltcp/internal/format"
	"rltcp/internal/metrics"
	"rltcp/internal/store"
)

// StoreSink persists a run and its cycle results. Close marks the run
// finished; it does not close the store.
type StoreSink struct {
	Store store.Store
	// Now defaults to time.Now.
	Now func() time.Time

	runID string
}

func (s *StoreSink) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *StoreSink) Begin(_ context.Context, run experiment.RunInfo) error {
	cfg, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("encode run config: %w", err)
	}
	r := &store.Run{
		ID:         run.ID,
		Mode:       run.Config.Mode,
		Algo:       run.Config.Algo,
		Dataset:    run.Config.Name(),
		Episodes:   run.Config.Episodes,
		WindowSize: run.Config.WindowSize,
		Notes:      run.Config.Notes,
		Config:     string(cfg),
		StartedAt:  run.Started,
	}
	if err := s.Store.CreateRun(r); err != nil {
		return err
	}
	s.runID = r.ID
	return nil
}

func (s *StoreSink) Record(_ context.Context, r experiment.CycleResult) error {
	return s.Store.SaveResult(ToStoreResult(s.runID, r))
}

func (s *StoreSink) Close() error {
	if s.runID == "" {
		return nil
	}
	return s.Store.FinishRun(s.runID, s.now())
}

// ToStoreResult converts a cycle result to its stored form.
func ToStoreResult(runID string, r experiment.CycleResult) *store.Result {
	return &store.Result{
		RunID:        runID,
		CycleIndex:   r.CycleIndex,
		CycleID:      r.CycleID,
		TrainedOn:    r.TrainedOn,
		ModelName:    r.ModelName,
		Steps:        r.Steps,
		TrainingMS:   format.Millis(r.TrainingTime),
		TestingMS:    format.Millis(r.TestingTime),
		TestCases:    r.TestCases,
		Failed:       r.Failed,
		Time:         r.Time,
		OptimalTime:  r.OptimalTime,
		NAPFD:        r.Score.NAPFD,
		NAPFDOptimal: r.Optimal.NAPFD,
		DC:           r.Score.DefectCoverage,
		DCOptimal:    r.Optimal.DefectCoverage,
		Verdicts:     r.Verdicts,
		Selected:     r.SelectedIDs,
		OptimalIDs:   r.OptimalIDs,
	}
}

// FromStoreResult is the inverse of ToStoreResult. Optimal verdicts are not
// stored and come back empty.
func FromStoreResult(r *store.Result) experiment.CycleResult {
	return experiment.CycleResult{
		CycleIndex:   r.CycleIndex,
		CycleID:      r.CycleID,
		TrainedOn:    r.TrainedOn,
		ModelName:    r.ModelName,
		Steps:        r.Steps,
		TrainingTime: time.Duration(r.TrainingMS * float64(time.Millisecond)),
		TestingTime:  time.Duration(r.TestingMS * float64(time.Millisecond)),
		TestCases:    r.TestCases,
		Failed:       r.Failed,
		Time:         r.Time,
		OptimalTime:  r.OptimalTime,
		Verdicts:     r.Verdicts,
		SelectedIDs:  r.Selected,
		OptimalIDs:   r.OptimalIDs,
		Score:        metrics.Score{NAPFD: r.NAPFD, DefectCoverage: r.DC},
		Optimal:      metrics.Score{NAPFD: r.NAPFDOptimal, DefectCoverage: r.DCOptimal},
	}
}
