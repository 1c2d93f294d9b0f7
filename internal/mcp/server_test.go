package mcp_test

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	mcpserver "rltcp/internal/mcp"
	"rltcp/internal/store"
)

func newTestServer(t *testing.T, st store.Store) *mcpserver.Server {
	t.Helper()
	srv := mcpserver.NewServer(st, "test")
	t.Cleanup(srv.Shutdown)
	return srv
}

func connectInMemory(t *testing.T, ctx context.Context, srv *mcpserver.Server) *sdkmcp.ClientSession {
	t.Helper()
	t1, t2 := sdkmcp.NewInMemoryTransports()
	serverSession, err := srv.MCPServer.Connect(ctx, t1, nil)
	if err != nil {
		t.Fatalf("server.Connect: %v", err)
	}
	t.Cleanup(func() { serverSession.Close() })

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, t2, nil)
	if err != nil {
		t.Fatalf("client.Connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

// callTool calls name and decodes its JSON text content into out. It returns
// the tool error text, or "" on success.
func callTool(t *testing.T, ctx context.Context, session *sdkmcp.ClientSession, name string, args map[string]any, out any) string {
	t.Helper()
	res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	for _, c := range res.Content {
		tc, ok := c.(*sdkmcp.TextContent)
		if !ok {
			continue
		}
		if res.IsError {
			return tc.Text
		}
		if out != nil {
			if err := json.Unmarshal([]byte(tc.Text), out); err != nil {
				t.Fatalf("unmarshal %s result: %v (text: %s)", name, err, tc.Text)
			}
		}
		return ""
	}
	if res.IsError {
		return "error without text"
	}
	t.Fatalf("no text content in %s result", name)
	return ""
}

func mustCall(t *testing.T, ctx context.Context, session *sdkmcp.ClientSession, name string, args map[string]any, out any) {
	t.Helper()
	if msg := callTool(t, ctx, session, name, args, out); msg != "" {
		t.Fatalf("CallTool(%s) returned error: %s", name, msg)
	}
}

// fourTests: b and d fail; optimal order is d, b, c, a.
var fourTests = []map[string]any{
	{"id": "a", "duration": 1, "last_exec_time": 3, "prob": 0},
	{"id": "b", "duration": 2, "last_exec_time": 5, "verdict": 1, "prob": 0.5},
	{"id": "c", "duration": 3, "last_exec_time": 1, "prob": 0},
	{"id": "d", "duration": 4, "last_exec_time": 2, "verdict": 1, "prob": 0},
}

type score struct {
	NAPFD float64 `json:"napfd"`
	DC    float64 `json:"dc"`
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestListTools(t *testing.T) {
	ctx := context.Background()
	session := connectInMemory(t, ctx, newTestServer(t, nil))
	res, err := session.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	for _, want := range []string{"optimal_order", "score_ordering", "select_tests", "start_experiment", "get_events", "get_report", "list_runs", "get_run"} {
		if !strings.Contains(strings.Join(names, ","), want) {
			t.Errorf("tool %q not registered (have %v)", want, names)
		}
	}
}

func TestOptimalOrder(t *testing.T) {
	ctx := context.Background()
	session := connectInMemory(t, ctx, newTestServer(t, nil))

	var out struct {
		Order    []string `json:"order"`
		Selected []string `json:"selected"`
		Time     float64  `json:"selected_time"`
		Score    score    `json:"score"`
	}
	mustCall(t, ctx, session, "optimal_order", map[string]any{"tests": fourTests}, &out)

	if diff := cmp.Diff([]string{"d", "b", "c", "a"}, out.Order); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"d", "b"}, out.Selected); diff != "" {
		t.Errorf("selected mismatch (-want +got):\n%s", diff)
	}
	if out.Time != 6 {
		t.Errorf("selected_time = %v, want 6", out.Time)
	}
	if !near(out.Score.NAPFD, 0.75) || out.Score.DC != 1 {
		t.Errorf("score = %+v, want napfd 0.75 dc 1", out.Score)
	}
}

func TestScoreOrdering(t *testing.T) {
	ctx := context.Background()
	session := connectInMemory(t, ctx, newTestServer(t, nil))

	var out struct {
		Score   score `json:"score"`
		Optimal score `json:"optimal"`
	}
	mustCall(t, ctx, session, "score_ordering", map[string]any{"tests": fourTests, "order": []string{"a", "b"}}, &out)
	if !near(out.Score.NAPFD, 0.3125) || !near(out.Score.DC, 0.5) {
		t.Errorf("score = %+v, want napfd 0.3125 dc 0.5", out.Score)
	}
	if !near(out.Optimal.NAPFD, 0.75) {
		t.Errorf("optimal = %+v", out.Optimal)
	}

	msg := callTool(t, ctx, session, "score_ordering", map[string]any{"tests": fourTests, "order": []string{"zz"}}, nil)
	if !strings.Contains(msg, "unknown test") {
		t.Errorf("unknown id error = %q", msg)
	}
}

func TestSelectTests(t *testing.T) {
	ctx := context.Background()
	session := connectInMemory(t, ctx, newTestServer(t, nil))

	tests := []struct {
		name string
		args map[string]any
		want []string
		time float64
	}{
		{"revenue default", map[string]any{"tests": fourTests}, []string{"b"}, 2},
		{"time budget", map[string]any{"tests": fourTests, "strategy": "time-budget", "time_ratio": 0.5}, []string{"a", "b"}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out struct {
				Selected []string `json:"selected"`
				Time     float64  `json:"time"`
				Total    float64  `json:"total_time"`
			}
			mustCall(t, ctx, session, "select_tests", tt.args, &out)
			if diff := cmp.Diff(tt.want, out.Selected); diff != "" {
				t.Errorf("selected mismatch (-want +got):\n%s", diff)
			}
			if out.Time != tt.time || out.Total != 10 {
				t.Errorf("time = %v total = %v", out.Time, out.Total)
			}
		})
	}

	msg := callTool(t, ctx, session, "select_tests", map[string]any{"tests": fourTests, "strategy": "greedy"}, nil)
	if !strings.Contains(msg, "unknown selection strategy") {
		t.Errorf("bad strategy error = %q", msg)
	}
}

func TestScoreOrdering_IDs(t *testing.T) {
	ctx := context.Background()
	session := connectInMemory(t, ctx, newTestServer(t, nil))

	dupTests := []map[string]any{
		{"id": "x", "duration": 1, "verdict": 1},
		{"id": "x", "duration": 1},
		{"id": "y", "duration": 1},
	}
	tests := []struct {
		name    string
		tests   []map[string]any
		order   []string
		errText string
		napfd   float64
		dc      float64
	}{
		{"single id", fourTests, []string{"b"}, "", 0.5 - 1.0/4 + 0.5/8, 1},
		{"repeated id", fourTests, []string{"b", "b", "b"}, "order repeats test", 0, 0},
		{"duplicate id takes first occurrence", dupTests, []string{"x"}, "", 1 - 1.0/3 + 1.0/6, 1},
		{"duplicate id used twice", dupTests, []string{"x", "x"}, "", 1, 0.5},
		{"duplicate id used too often", dupTests, []string{"x", "x", "x"}, "order repeats test", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out struct {
				Score   score `json:"score"`
				Optimal score `json:"optimal"`
			}
			msg := callTool(t, ctx, session, "score_ordering", map[string]any{"tests": tt.tests, "order": tt.order}, &out)
			if tt.errText != "" {
				if !strings.Contains(msg, tt.errText) {
					t.Errorf("error = %q, want %q", msg, tt.errText)
				}
				return
			}
			if msg != "" {
				t.Fatalf("score_ordering: %s", msg)
			}
			if !near(out.Score.NAPFD, tt.napfd) || !near(out.Score.DC, tt.dc) {
				t.Errorf("score = %+v, want napfd %v dc %v", out.Score, tt.napfd, tt.dc)
			}
		})
	}
}

func TestTools_RejectBadVerdicts(t *testing.T) {
	ctx := context.Background()
	session := connectInMemory(t, ctx, newTestServer(t, nil))

	bad := []map[string]any{
		{"id": "a", "duration": 1, "verdict": 2},
		{"id": "b", "duration": 1, "verdict": 1},
	}
	calls := []struct {
		tool string
		args map[string]any
	}{
		{"optimal_order", map[string]any{"tests": bad}},
		{"score_ordering", map[string]any{"tests": bad, "order": []string{"a"}}},
		{"select_tests", map[string]any{"tests": bad}},
	}
	for _, c := range calls {
		msg := callTool(t, ctx, session, c.tool, c.args, nil)
		if !strings.Contains(msg, "verdict must be 0 or 1") {
			t.Errorf("%s error = %q", c.tool, msg)
		}
	}
}

func TestSelectTests_ZeroTimeRatio(t *testing.T) {
	ctx := context.Background()
	session := connectInMemory(t, ctx, newTestServer(t, nil))

	var out struct {
		Selected []string `json:"selected"`
		Time     float64  `json:"time"`
	}
	mustCall(t, ctx, session, "select_tests", map[string]any{"tests": fourTests, "strategy": "time-budget", "time_ratio": 0}, &out)
	if len(out.Selected) != 0 || out.Time != 0 {
		t.Errorf("zero budget selected %v (time %v)", out.Selected, out.Time)
	}

	msg := callTool(t, ctx, session, "select_tests", map[string]any{"tests": fourTests, "strategy": "time-budget", "time_ratio": 1.5}, nil)
	if !strings.Contains(msg, "outside [0, 1]") {
		t.Errorf("ratio error = %q", msg)
	}
}

// writeDataset writes cycles 1..n with six test cases each; two fail per cycle.
func writeDataset(t *testing.T, n int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("Id,Name,Duration,CalcPrio,LastRun,NumRan,NumErrors,Verdict,Cycle,LastResults,DurationGroup,TimeGroup\n")
	id := 0
	for c := 1; c <= n; c++ {
		for k := 0; k < 6; k++ {
			id++
			verdict, hist := 0, "[0]"
			if k < 2 {
				verdict, hist = 1, "[1]"
			}
			fmt.Fprintf(&b, "%d,t%d,%d,0,2016-01-01,1,0,%d,%d,\"%s\",1,1\n", id, k, k+1, verdict, c, hist)
		}
	}
	path := filepath.Join(t.TempDir(), "tiny.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExperimentSession(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	st := store.NewMemStore()
	srv := newTestServer(t, st)
	session := connectInMemory(t, ctx, srv)

	var started struct {
		SessionID string `json:"session_id"`
		Cycles    int    `json:"cycles"`
		Status    string `json:"status"`
	}
	mustCall(t, ctx, session, "start_experiment", map[string]any{
		"dataset":    writeDataset(t, 5),
		"algo":       "history",
		"episodes":   1,
		"output_dir": t.TempDir(),
	}, &started)
	if started.SessionID == "" || started.Cycles != 5 || started.Status != "running" {
		t.Fatalf("start = %+v", started)
	}
	if srv.SessionID() != started.SessionID {
		t.Errorf("server session = %q, want %q", srv.SessionID(), started.SessionID)
	}

	var rep struct {
		Status  string `json:"status"`
		Summary struct {
			Cycles    int     `json:"cycles"`
			MeanNAPFD float64 `json:"mean_napfd"`
		} `json:"summary"`
		Error string `json:"error"`
	}
	mustCall(t, ctx, session, "get_report", map[string]any{"session_id": started.SessionID}, &rep)
	if rep.Status != "done" {
		t.Fatalf("report status = %q (%s)", rep.Status, rep.Error)
	}
	if rep.Summary.Cycles != 3 {
		t.Errorf("cycles = %d, want 3", rep.Summary.Cycles)
	}
	// History predicts every failure first.
	if rep.Summary.MeanNAPFD <= 0.5 {
		t.Errorf("mean napfd = %v, want > 0.5", rep.Summary.MeanNAPFD)
	}

	var ev struct {
		Status string `json:"status"`
		Events []struct {
			Event string `json:"event"`
		} `json:"events"`
		Total int `json:"total"`
	}
	mustCall(t, ctx, session, "get_events", map[string]any{"session_id": started.SessionID}, &ev)
	var names []string
	for _, e := range ev.Events {
		names = append(names, e.Event)
	}
	want := []string{"session_started", "cycle_done", "cycle_done", "cycle_done", "session_done"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	if ev.Total != 5 || ev.Status != "done" {
		t.Errorf("status %q total %d", ev.Status, ev.Total)
	}

	var since struct {
		Events []struct {
			Event string `json:"event"`
		} `json:"events"`
	}
	mustCall(t, ctx, session, "get_events", map[string]any{"session_id": started.SessionID, "since": 4}, &since)
	if len(since.Events) != 1 || since.Events[0].Event != "session_done" {
		t.Errorf("since 4 = %+v", since.Events)
	}

	var runs struct {
		Runs []struct {
			ID         string `json:"id"`
			Algo       string `json:"algo"`
			FinishedAt string `json:"finished_at"`
		} `json:"runs"`
	}
	mustCall(t, ctx, session, "list_runs", map[string]any{}, &runs)
	if len(runs.Runs) != 1 || runs.Runs[0].ID != started.SessionID || runs.Runs[0].Algo != "history" {
		t.Fatalf("runs = %+v", runs.Runs)
	}
	if runs.Runs[0].FinishedAt == "" {
		t.Error("run not marked finished")
	}

	var run struct {
		Results []struct {
			CycleIndex int `json:"cycle_index"`
		} `json:"results"`
	}
	mustCall(t, ctx, session, "get_run", map[string]any{"run_id": started.SessionID}, &run)
	var idx []int
	for _, r := range run.Results {
		idx = append(idx, r.CycleIndex)
	}
	if diff := cmp.Diff([]int{1, 2, 3}, idx); diff != "" {
		t.Errorf("result cycles mismatch (-want +got):\n%s", diff)
	}
}

func TestSessionErrors(t *testing.T) {
	ctx := context.Background()
	session := connectInMemory(t, ctx, newTestServer(t, nil))

	if msg := callTool(t, ctx, session, "get_events", map[string]any{"session_id": "nope"}, nil); !strings.Contains(msg, "no active session") {
		t.Errorf("get_events without session = %q", msg)
	}
	if msg := callTool(t, ctx, session, "start_experiment", map[string]any{"dataset": ""}, nil); !strings.Contains(msg, "dataset is required") {
		t.Errorf("missing dataset = %q", msg)
	}
	if msg := callTool(t, ctx, session, "start_experiment", map[string]any{"dataset": "x.csv", "mode": "sideways"}, nil); msg == "" {
		t.Error("expected error for unknown mode")
	}
	if msg := callTool(t, ctx, session, "list_runs", map[string]any{}, nil); !strings.Contains(msg, "no results store") {
		t.Errorf("list_runs without store = %q", msg)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	ctx := context.Background()
	session := connectInMemory(t, ctx, newTestServer(t, store.NewMemStore()))
	if msg := callTool(t, ctx, session, "get_run", map[string]any{"run_id": "missing"}, nil); !strings.Contains(msg, "not found") {
		t.Errorf("get_run missing = %q", msg)
	}
}
