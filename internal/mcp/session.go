package mcp

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"rltcp/internal/config"
	"rltcp/internal/cycle"
	"rltcp/internal/experiment"
	"rltcp/internal/report"
	"rltcp/internal/store"
)

// SessionState tracks the lifecycle of an experiment session.
type SessionState string

const (
	StateRunning SessionState = "running"
	StateDone    SessionState = "done"
	StateError   SessionState = "error"
)

// Event is one entry of a session's progress log.
type Event struct {
	Timestamp string            `json:"ts"`
	Event     string            `json:"event"`
	Cycle     int               `json:"cycle,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// EventBus is a thread-safe, append-only event log.
type EventBus struct {
	mu     sync.Mutex
	events []Event
}

func (b *EventBus) Emit(event string, cycle int, meta map[string]string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Event:     event,
		Cycle:     cycle,
		Meta:      meta,
	})
}

// Since returns the events from index idx onward. Negative idx is clamped to 0.
func (b *EventBus) Since(idx int) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx = max(idx, 0)
	if idx >= len(b.events) {
		return nil
	}
	out := make([]Event, len(b.events)-idx)
	copy(out, b.events[idx:])
	return out
}

func (b *EventBus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Session is one experiment run started through MCP. The runner goroutine
// owns the run; tool calls observe it through the bus and Summary.
type Session struct {
	ID     string
	Config config.Config
	Cycles int
	Bus    *EventBus

	state   SessionState
	summary *experiment.Summary
	err     error
	doneCh  chan struct{}
	cancel  context.CancelFunc

	mu sync.Mutex
}

// NewSession starts the experiment in a goroutine and returns immediately.
// Results are persisted to st when it is non-nil.
func NewSession(cfg config.Config, cycles []*cycle.Record, st store.Store, log *slog.Logger) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sess := &Session{
		ID:     store.NewRunID(),
		Config: cfg,
		Cycles: len(cycles),
		Bus:    &EventBus{},
		state:  StateRunning,
		doneCh: make(chan struct{}),
	}
	sinks := report.Multi{&busSink{bus: sess.Bus}}
	if st != nil {
		sinks = append(sinks, &report.StoreSink{Store: st})
	}
	runCtx, cancel := context.WithCancel(context.Background())
	sess.cancel = cancel

	sess.Bus.Emit("session_started", 0, map[string]string{
		"mode":    cfg.Mode,
		"algo":    cfg.Algo,
		"dataset": cfg.Name(),
		"cycles":  strconv.Itoa(len(cycles)),
	})
	r := &experiment.Runner{
		Config: cfg,
		Cycles: cycles,
		Sink:   sinks,
		RunID:  sess.ID,
		Logger: log.With(slog.String("session", sess.ID)),
	}
	go sess.run(runCtx, r, sinks, log)
	return sess, nil
}

func (s *Session) run(ctx context.Context, r *experiment.Runner, sinks report.Multi, log *slog.Logger) {
	defer close(s.doneCh)
	defer s.cancel()

	sum, err := r.Run(ctx)
	if cerr := sinks.Close(); err == nil {
		err = cerr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateError
		s.err = err
		s.Bus.Emit("session_error", 0, map[string]string{"error": err.Error()})
		log.Error("experiment failed", slog.String("session", s.ID), slog.Any("error", err))
		return
	}
	s.state = StateDone
	s.summary = sum
	s.Bus.Emit("session_done", 0, map[string]string{
		"cycles":     strconv.Itoa(sum.Cycles),
		"mean_napfd": strconv.FormatFloat(sum.MeanNAPFD, 'f', 4, 64),
	})
	log.Info("experiment complete", slog.String("session", s.ID), slog.Int("cycles", sum.Cycles))
}

// GetState returns the current state.
func (s *Session) GetState() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Summary returns the run summary, or nil until the run is done.
func (s *Session) Summary() *experiment.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary
}

// Err returns the run error, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done closes when the run finishes.
func (s *Session) Done() <-chan struct{} { return s.doneCh }

// Cancel stops the runner goroutine.
func (s *Session) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
}

// busSink turns cycle results into progress events.
type busSink struct {
	bus *EventBus
}

func (b *busSink) Begin(context.Context, experiment.RunInfo) error { return nil }

func (b *busSink) Record(_ context.Context, r experiment.CycleResult) error {
	b.bus.Emit("cycle_done", r.CycleIndex, map[string]string{
		"cycle_id":      strconv.Itoa(r.CycleID),
		"trained_on":    strconv.Itoa(r.TrainedOn),
		"napfd":         strconv.FormatFloat(r.Score.NAPFD, 'f', 4, 64),
		"napfd_optimal": strconv.FormatFloat(r.Optimal.NAPFD, 'f', 4, 64),
		"selected":      strconv.Itoa(len(r.SelectedIDs)),
	})
	return nil
}

func (b *busSink) Close() error { return nil }
