// Package mcp exposes the oracle, metrics, selection and experiment runner as
// Model Context Protocol tools.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"rltcp/internal/config"
	"rltcp/internal/cycle"
	"rltcp/internal/dataset"
	"rltcp/internal/experiment"
	"rltcp/internal/logging"
	"rltcp/internal/metrics"
	"rltcp/internal/selection"
	"rltcp/internal/store"
)

// Server wraps the MCP SDK server and the current experiment session.
type Server struct {
	MCPServer *sdkmcp.Server
	// Store backs list_runs and get_run and persists experiment sessions.
	// Optional.
	Store  store.Store
	Logger *slog.Logger

	// startMu serializes start_experiment so the check for a running session
	// and the install of the new one cannot interleave.
	startMu sync.Mutex
	mu      sync.Mutex
	session *Session
}

// NewServer creates an MCP server with all tools registered.
func NewServer(st store.Store, version string) *Server {
	s := &Server{Store: st, Logger: logging.New("mcp")}
	s.MCPServer = sdkmcp.NewServer(
		&sdkmcp.Implementation{Name: "rltcp", Version: version},
		nil,
	)
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "optimal_order",
		Description: "Order a cycle's test cases optimally: failed first, each group by ascending last execution time. Returns the order and its NAPFD.",
	}, s.handleOptimalOrder)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "score_ordering",
		Description: "Score an ordering (or subset) of a cycle's test cases with NAPFD and defect coverage, next to the optimal score.",
	}, s.handleScoreOrdering)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "select_tests",
		Description: "Apply a selection strategy (revenue or time-budget) to a ranked list of test cases with predicted probabilities.",
	}, s.handleSelectTests)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "start_experiment",
		Description: "Start an experiment on a dataset CSV in the background. Returns a session ID; poll get_events and call get_report.",
	}, s.handleStartExperiment)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_events",
		Description: "Read progress events of the experiment session, optionally since a given index.",
	}, s.handleGetEvents)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_report",
		Description: "Wait for the experiment session to finish and return its summary.",
	}, s.handleGetReport)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "list_runs",
		Description: "List stored experiment runs, newest first.",
	}, s.handleListRuns)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_run",
		Description: "Get a stored run and its per-cycle results.",
	}, s.handleGetRun)
}

// --- Tool input/output types ---

type testCaseInput struct {
	ID           string  `json:"id" jsonschema:"test case id"`
	Duration     float64 `json:"duration" jsonschema:"average execution time, must be positive"`
	LastExecTime float64 `json:"last_exec_time,omitempty" jsonschema:"execution time in this cycle, used to order the optimal groups"`
	Verdict      int     `json:"verdict,omitempty" jsonschema:"1 failed, 0 passed"`
	Prob         float64 `json:"prob,omitempty" jsonschema:"predicted failure probability, used by select_tests"`
}

func toTestCases(in []testCaseInput) ([]cycle.TestCase, error) {
	out := make([]cycle.TestCase, len(in))
	for i, t := range in {
		out[i] = cycle.TestCase{
			TestID:       t.ID,
			AvgExecTime:  t.Duration,
			LastExecTime: t.LastExecTime,
			Verdict:      t.Verdict,
			Prob:         t.Prob,
		}
		if err := out[i].Validate(); err != nil {
			return nil, fmt.Errorf("tests[%d]: %w", i, err)
		}
	}
	return out, nil
}

func toRecord(tcs []cycle.TestCase) *cycle.Record {
	rec := cycle.New(0)
	for _, tc := range tcs {
		rec.Add(tc)
	}
	return rec
}

// resolveOrder maps order onto full. Each entry takes the first test case with
// that id not already taken, so duplicate ids in full stay distinct and an id
// can appear in order at most as often as it appears in full.
func resolveOrder(full []cycle.TestCase, order []string) ([]cycle.TestCase, error) {
	byID := make(map[string][]int, len(full))
	for i, tc := range full {
		byID[tc.TestID] = append(byID[tc.TestID], i)
	}
	out := make([]cycle.TestCase, 0, len(order))
	for _, id := range order {
		idx, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("order references unknown test %q", id)
		}
		if len(idx) == 0 {
			return nil, fmt.Errorf("order repeats test %q more often than it occurs", id)
		}
		out = append(out, full[idx[0]])
		byID[id] = idx[1:]
	}
	return out, nil
}

func ids(tcs []cycle.TestCase) []string {
	out := make([]string, len(tcs))
	for i, tc := range tcs {
		out[i] = tc.TestID
	}
	return out
}

type optimalOrderInput struct {
	Tests []testCaseInput `json:"tests" jsonschema:"test cases of one cycle"`
}

type optimalOrderOutput struct {
	Order    []string      `json:"order"`
	Selected []string      `json:"selected"`
	Time     float64       `json:"selected_time"`
	Score    metrics.Score `json:"score"`
}

type scoreOrderingInput struct {
	Tests []testCaseInput `json:"tests" jsonschema:"all test cases of the cycle"`
	Order []string        `json:"order" jsonschema:"test ids in execution order; may be a subset, each test at most once"`
}

type scoreOrderingOutput struct {
	Score   metrics.Score `json:"score"`
	Optimal metrics.Score `json:"optimal"`
}

type selectTestsInput struct {
	Tests            []testCaseInput `json:"tests" jsonschema:"test cases in ranked order"`
	Strategy         string          `json:"strategy,omitempty" jsonschema:"revenue (default) or time-budget"`
	RevenueThreshold float64         `json:"revenue_threshold,omitempty" jsonschema:"minimum prob/duration for the revenue strategy"`
	TimeRatio        *float64        `json:"time_ratio,omitempty" jsonschema:"share of total time for the time-budget strategy (default 0.6 when omitted)"`
}

type selectTestsOutput struct {
	Selected []string `json:"selected"`
	Time     float64  `json:"time"`
	Total    float64  `json:"total_time"`
}

type startExperimentInput struct {
	Dataset     string `json:"dataset" jsonschema:"path to the dataset CSV"`
	DatasetType string `json:"dataset_type,omitempty" jsonschema:"simple (default) or enriched"`
	Config      string `json:"config,omitempty" jsonschema:"optional YAML or JSON experiment config applied before the other fields"`
	Mode        string `json:"mode,omitempty" jsonschema:"pointwise, pairwise or listwise"`
	Algo        string `json:"algo,omitempty" jsonschema:"agent algorithm (linear, history, random)"`
	Episodes    int    `json:"episodes,omitempty" jsonschema:"training episodes per cycle"`
	WindowSize  int    `json:"window_size,omitempty" jsonschema:"failure history window"`
	StartCycle  int    `json:"start_cycle,omitempty" jsonschema:"first cycle index"`
	CycleCount  int    `json:"cycle_count,omitempty" jsonschema:"number of cycles to process"`
	Seed        uint64 `json:"seed,omitempty" jsonschema:"random seed"`
	OutputDir   string `json:"output_dir,omitempty" jsonschema:"directory for saved models"`
	Force       bool   `json:"force,omitempty" jsonschema:"cancel any running session and start fresh"`
}

type startExperimentOutput struct {
	SessionID string `json:"session_id"`
	Cycles    int    `json:"cycles"`
	Mode      string `json:"mode"`
	Algo      string `json:"algo"`
	Status    string `json:"status"`
}

type sessionInput struct {
	SessionID string `json:"session_id" jsonschema:"session ID from start_experiment"`
}

type getEventsInput struct {
	SessionID string `json:"session_id" jsonschema:"session ID from start_experiment"`
	Since     int    `json:"since,omitempty" jsonschema:"return events from this index onward (0-based)"`
}

type getEventsOutput struct {
	Status string  `json:"status"`
	Events []Event `json:"events"`
	Total  int     `json:"total"`
}

type getReportOutput struct {
	Status  string              `json:"status"`
	Summary *experiment.Summary `json:"summary,omitempty"`
	Error   string              `json:"error,omitempty"`
}

type listRunsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of runs (0 = all)"`
}

// runView is store.Run with RFC 3339 timestamps.
type runView struct {
	ID         string `json:"id"`
	Mode       string `json:"mode"`
	Algo       string `json:"algo"`
	Dataset    string `json:"dataset"`
	Episodes   int    `json:"episodes"`
	WindowSize int    `json:"window_size"`
	Notes      string `json:"notes,omitempty"`
	Config     string `json:"config"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
}

func viewRun(r *store.Run) runView {
	v := runView{
		ID:         r.ID,
		Mode:       r.Mode,
		Algo:       r.Algo,
		Dataset:    r.Dataset,
		Episodes:   r.Episodes,
		WindowSize: r.WindowSize,
		Notes:      r.Notes,
		Config:     r.Config,
		StartedAt:  r.StartedAt.UTC().Format(time.RFC3339),
	}
	if !r.FinishedAt.IsZero() {
		v.FinishedAt = r.FinishedAt.UTC().Format(time.RFC3339)
	}
	return v
}

type listRunsOutput struct {
	Runs []runView `json:"runs"`
}

type getRunInput struct {
	RunID string `json:"run_id" jsonschema:"run ID"`
}

type getRunOutput struct {
	Run     runView         `json:"run"`
	Results []*store.Result `json:"results"`
}

// --- Tool handlers ---

func (s *Server) handleOptimalOrder(_ context.Context, _ *sdkmcp.CallToolRequest, input optimalOrderInput) (*sdkmcp.CallToolResult, optimalOrderOutput, error) {
	tcs, err := toTestCases(input.Tests)
	if err != nil {
		return nil, optimalOrderOutput{}, err
	}
	rec := toRecord(tcs)
	subset, t := rec.OptimalSubset()
	score, err := metrics.Evaluate(rec.TestCases(), subset)
	if err != nil {
		return nil, optimalOrderOutput{}, err
	}
	return nil, optimalOrderOutput{
		Order:    ids(rec.OptimalOrder()),
		Selected: ids(subset),
		Time:     t,
		Score:    score,
	}, nil
}

func (s *Server) handleScoreOrdering(_ context.Context, _ *sdkmcp.CallToolRequest, input scoreOrderingInput) (*sdkmcp.CallToolResult, scoreOrderingOutput, error) {
	full, err := toTestCases(input.Tests)
	if err != nil {
		return nil, scoreOrderingOutput{}, err
	}
	ordered, err := resolveOrder(full, input.Order)
	if err != nil {
		return nil, scoreOrderingOutput{}, err
	}
	score, err := metrics.Evaluate(full, ordered)
	if err != nil {
		return nil, scoreOrderingOutput{}, err
	}
	optimal, _ := toRecord(full).OptimalSubset()
	best, err := metrics.Evaluate(full, optimal)
	if err != nil {
		return nil, scoreOrderingOutput{}, err
	}
	return nil, scoreOrderingOutput{Score: score, Optimal: best}, nil
}

func (s *Server) handleSelectTests(_ context.Context, _ *sdkmcp.CallToolRequest, input selectTestsInput) (*sdkmcp.CallToolResult, selectTestsOutput, error) {
	strategy, err := selection.ParseStrategy(input.Strategy)
	if err != nil {
		return nil, selectTestsOutput{}, err
	}
	cfg := selection.DefaultConfig()
	cfg.Strategy = strategy
	cfg.RevenueThreshold = input.RevenueThreshold
	if input.TimeRatio != nil {
		if r := *input.TimeRatio; r < 0 || r > 1 {
			return nil, selectTestsOutput{}, fmt.Errorf("time_ratio %v outside [0, 1]", r)
		}
		cfg.TimeRatio = *input.TimeRatio
	}
	ranked, err := toTestCases(input.Tests)
	if err != nil {
		return nil, selectTestsOutput{}, err
	}
	selected, err := selection.Select(ranked, cfg)
	if err != nil {
		return nil, selectTestsOutput{}, err
	}
	return nil, selectTestsOutput{
		Selected: ids(selected),
		Time:     selection.TotalTime(selected),
		Total:    selection.TotalTime(ranked),
	}, nil
}

func (s *Server) handleStartExperiment(_ context.Context, _ *sdkmcp.CallToolRequest, input startExperimentInput) (*sdkmcp.CallToolResult, startExperimentOutput, error) {
	cfg, err := experimentConfig(input)
	if err != nil {
		return nil, startExperimentOutput{}, err
	}
	typ, err := dataset.ParseType(cfg.DatasetType)
	if err != nil {
		return nil, startExperimentOutput{}, err
	}

	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.mu.Lock()
	if s.session != nil {
		select {
		case <-s.session.Done():
			s.Logger.Info("replacing finished session", slog.String("old_id", s.session.ID))
		default:
			if !input.Force {
				id := s.session.ID
				s.mu.Unlock()
				return nil, startExperimentOutput{}, fmt.Errorf("an experiment session is already running (id=%s)", id)
			}
			s.Logger.Warn("force-replacing active session", slog.String("old_id", s.session.ID))
			s.session.Cancel()
		}
		s.session = nil
	}
	s.mu.Unlock()

	rows, err := dataset.Load(cfg.DatasetPath, typ)
	if err != nil {
		return nil, startExperimentOutput{}, err
	}
	cycles := dataset.Preprocess(rows)

	sess, err := NewSession(cfg, cycles, s.Store, s.Logger)
	if err != nil {
		return nil, startExperimentOutput{}, fmt.Errorf("start experiment: %w", err)
	}
	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()

	return nil, startExperimentOutput{
		SessionID: sess.ID,
		Cycles:    sess.Cycles,
		Mode:      cfg.Mode,
		Algo:      cfg.Algo,
		Status:    string(StateRunning),
	}, nil
}

func experimentConfig(in startExperimentInput) (config.Config, error) {
	cfg := config.Default()
	if in.Config != "" {
		var err error
		if cfg, err = config.LoadFromPath(in.Config); err != nil {
			return config.Config{}, err
		}
	}
	if in.Dataset != "" {
		cfg.DatasetPath = in.Dataset
	}
	if cfg.DatasetPath == "" {
		return config.Config{}, errors.New("dataset is required")
	}
	if in.DatasetType != "" {
		cfg.DatasetType = in.DatasetType
	}
	if in.Mode != "" {
		cfg.Mode = in.Mode
	}
	if in.Algo != "" {
		cfg.Algo = in.Algo
	}
	if in.Episodes > 0 {
		cfg.Episodes = in.Episodes
	}
	if in.WindowSize > 0 {
		cfg.WindowSize = in.WindowSize
	}
	if in.StartCycle > 0 {
		cfg.StartCycle = in.StartCycle
	}
	if in.CycleCount > 0 {
		cfg.CycleCount = in.CycleCount
	}
	if in.Seed > 0 {
		cfg.Seed = in.Seed
	}
	if in.OutputDir != "" {
		cfg.OutputDir = in.OutputDir
	}
	return cfg, cfg.Validate()
}

func (s *Server) handleGetEvents(_ context.Context, _ *sdkmcp.CallToolRequest, input getEventsInput) (*sdkmcp.CallToolResult, getEventsOutput, error) {
	sess, err := s.getSession(input.SessionID)
	if err != nil {
		return nil, getEventsOutput{}, err
	}
	return nil, getEventsOutput{
		Status: string(sess.GetState()),
		Events: sess.Bus.Since(input.Since),
		Total:  sess.Bus.Len(),
	}, nil
}

func (s *Server) handleGetReport(ctx context.Context, _ *sdkmcp.CallToolRequest, input sessionInput) (*sdkmcp.CallToolResult, getReportOutput, error) {
	sess, err := s.getSession(input.SessionID)
	if err != nil {
		return nil, getReportOutput{}, err
	}
	select {
	case <-sess.Done():
	case <-ctx.Done():
		return nil, getReportOutput{}, ctx.Err()
	}
	if sessErr := sess.Err(); sessErr != nil {
		return nil, getReportOutput{Status: string(StateError), Error: sessErr.Error()}, nil
	}
	return nil, getReportOutput{Status: string(StateDone), Summary: sess.Summary()}, nil
}

func (s *Server) handleListRuns(_ context.Context, _ *sdkmcp.CallToolRequest, input listRunsInput) (*sdkmcp.CallToolResult, listRunsOutput, error) {
	if s.Store == nil {
		return nil, listRunsOutput{}, errors.New("no results store configured")
	}
	runs, err := s.Store.ListRuns()
	if err != nil {
		return nil, listRunsOutput{}, err
	}
	if input.Limit > 0 && len(runs) > input.Limit {
		runs = runs[:input.Limit]
	}
	out := listRunsOutput{Runs: make([]runView, 0, len(runs))}
	for _, r := range runs {
		out.Runs = append(out.Runs, viewRun(r))
	}
	return nil, out, nil
}

func (s *Server) handleGetRun(_ context.Context, _ *sdkmcp.CallToolRequest, input getRunInput) (*sdkmcp.CallToolResult, getRunOutput, error) {
	if s.Store == nil {
		return nil, getRunOutput{}, errors.New("no results store configured")
	}
	run, err := s.Store.GetRun(input.RunID)
	if err != nil {
		return nil, getRunOutput{}, err
	}
	results, err := s.Store.ListResults(input.RunID)
	if err != nil {
		return nil, getRunOutput{}, err
	}
	return nil, getRunOutput{Run: viewRun(run), Results: results}, nil
}

// SessionID returns the current session's ID, or "" if none.
func (s *Server) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		return s.session.ID
	}
	return ""
}

// Shutdown cancels any active session.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		s.session.Cancel()
		s.session = nil
	}
}

func (s *Server) getSession(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, errors.New("no active session (call start_experiment first)")
	}
	if s.session.ID != id {
		return nil, fmt.Errorf("session_id mismatch: have %s, got %s", s.session.ID, id)
	}
	return s.session, nil
}
