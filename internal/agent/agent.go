// Package agent holds the learning policies that score feature rows. An agent
// is trained against an env.Environment and then used as its ScoreFunc.
package agent

import (
	"context"
	"io"
	"sort"
	"strings"

	"rltcp/internal/env"
	"rltcp/internal/fault"
)

// Agent is a trainable scoring policy.
type Agent interface {
	Name() string
	// Learn interacts with e for the given number of steps.
	Learn(ctx context.Context, e env.Environment, steps int) error
	// Score returns one score in [0,1] per observation row.
	Score(obs env.Observation) ([]float64, error)
}

// Checkpointer is implemented by agents whose learned state can be persisted.
type Checkpointer interface {
	Save(w io.Writer) error
	Load(r io.Reader) error
}

// Options configure agent construction.
type Options struct {
	Seed uint64
	// WindowSize is the history window of the rows the agent will see.
	WindowSize   int
	LearningRate float64
	// Sigma is the exploration noise of the linear agent.
	Sigma float64
}

// DefaultOptions returns the options used when a caller sets none.
func DefaultOptions() Options {
	return Options{Seed: 1, WindowSize: 10, LearningRate: 0.05, Sigma: 0.3}
}

type constructor func(Options) Agent

var algorithms = map[string]constructor{
	"linear":  func(o Options) Agent { return NewLinear(o) },
	"history": func(o Options) Agent { return NewHistory(o) },
	"random":  func(o Options) Agent { return NewRandom(o) },
}

// Algorithms lists the available algorithm names.
func Algorithms() []string {
	out := make([]string, 0, len(algorithms))
	for k := range algorithms {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New constructs the agent for algo.
func New(algo string, opts Options) (Agent, error) {
	c, ok := algorithms[strings.ToLower(strings.TrimSpace(algo))]
	if !ok {
		return nil, fault.Newf(fault.Config, "unknown algorithm %q (available: %s)", algo, strings.Join(Algorithms(), ", "))
	}
	return c(opts), nil
}

func checkCtx(ctx context.Context, step int) error {
	if step%128 != 0 {
		return nil
	}
	return ctx.Err()
}
