package agent

import (
	"context"
	"math/rand/v2"
	"sync"

	"rltcp/internal/env"
)

// History scores a row by its recency-weighted failure history: a failure in
// the most recent slot weighs most, each older slot half as much as the one
// before. Normalized history slots above zero count as failures, so the
// feature pad must not be positive (config validation enforces this). It does
// not learn.
type History struct {
	window int
}

func NewHistory(o Options) *History {
	if o.WindowSize <= 0 {
		o.WindowSize = DefaultOptions().WindowSize
	}
	return &History{window: o.WindowSize}
}

func (a *History) Name() string { return "history" }

func (a *History) Learn(ctx context.Context, _ env.Environment, _ int) error { return ctx.Err() }

func (a *History) Score(obs env.Observation) ([]float64, error) {
	out := make([]float64, len(obs.Rows))
	for i, row := range obs.Rows {
		var num, den float64
		w := 1.0
		for k := 0; k < a.window && k < len(row); k++ {
			if row[k] > 0 {
				num += w
			}
			den += w
			w /= 2
		}
		if den > 0 {
			out[i] = num / den
		}
	}
	return out, nil
}

// Random scores rows uniformly at random.
type Random struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandom(o Options) *Random {
	return &Random{rng: rand.New(rand.NewPCG(o.Seed, o.Seed+1))}
}

func (a *Random) Name() string { return "random" }

func (a *Random) Learn(ctx context.Context, _ env.Environment, _ int) error { return ctx.Err() }

func (a *Random) Score(obs env.Observation) ([]float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]float64, len(obs.Rows))
	for i := range out {
		out[i] = a.rng.Float64()
	}
	return out, nil
}
