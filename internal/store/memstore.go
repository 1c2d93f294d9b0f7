package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"rltcp/internal/fault"
)

// MemStore implements Store in memory.
type MemStore struct {
	mu      sync.Mutex
	runs    map[string]*Run
	results map[string][]*Result
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{runs: make(map[string]*Run), results: make(map[string][]*Result)}
}

func (s *MemStore) CreateRun(run *Run) error {
	if run == nil {
		return errors.New("run is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if run.ID == "" {
		run.ID = NewRunID()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if _, ok := s.runs[run.ID]; ok {
		return fault.Newf(fault.Input, "run %s already exists", run.ID)
	}
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *MemStore) FinishRun(id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return fault.Wrap(fault.Input, "run "+id, ErrNotFound)
	}
	r.FinishedAt = at
	return nil
}

func (s *MemStore) GetRun(id string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, fault.Wrap(fault.Input, "run "+id, ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (s *MemStore) ListRuns() ([]*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Run, 0, len(s.runs))
	for _, r := range s.runs {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemStore) SaveResult(res *Result) error {
	if res == nil {
		return errors.New("result is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[res.RunID]; !ok {
		return fault.Wrap(fault.Input, "run "+res.RunID, ErrNotFound)
	}
	for _, r := range s.results[res.RunID] {
		if r.CycleIndex == res.CycleIndex {
			return fault.Newf(fault.Input, "run %s already has cycle %d", res.RunID, res.CycleIndex)
		}
	}
	cp := *res
	cp.Verdicts = append([]int{}, res.Verdicts...)
	cp.Selected = append([]string{}, res.Selected...)
	cp.OptimalIDs = append([]string{}, res.OptimalIDs...)
	s.results[res.RunID] = append(s.results[res.RunID], &cp)
	return nil
}

func (s *MemStore) ListResults(runID string) ([]*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Result
	for _, r := range s.results[runID] {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CycleIndex < out[j].CycleIndex })
	return out, nil
}

func (s *MemStore) Close() error { return nil }
