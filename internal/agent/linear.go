package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"sync"

	"rltcp/internal/env"
	"rltcp/internal/fault"
)

// ErrDimension is returned when rows do not match the learned weight vector.
var ErrDimension = fault.New(fault.Input, "feature row width does not match the model")

// Linear is a logistic scorer trained with REINFORCE. Exploration adds
// Gaussian noise to each row's logit; the update follows the noise direction
// weighted by the reward's advantage over a moving baseline.
type Linear struct {
	mu       sync.Mutex
	weights  []float64
	bias     float64
	baseline float64
	lr       float64
	sigma    float64
	rng      *rand.Rand
}

// NewLinear returns an untrained linear agent; weights are sized on first use.
func NewLinear(o Options) *Linear {
	d := DefaultOptions()
	if o.LearningRate <= 0 {
		o.LearningRate = d.LearningRate
	}
	if o.Sigma <= 0 {
		o.Sigma = d.Sigma
	}
	return &Linear{lr: o.LearningRate, sigma: o.Sigma, rng: rand.New(rand.NewPCG(o.Seed, o.Seed^0x9e3779b97f4a7c15))}
}

func (a *Linear) Name() string { return "linear" }

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

func (a *Linear) logit(row []float64) (float64, error) {
	if a.weights == nil {
		a.weights = make([]float64, len(row))
	}
	if len(row) != len(a.weights) {
		return 0, fault.Wrap(fault.Input, fmt.Sprintf("row has %d features, model has %d", len(row), len(a.weights)), ErrDimension)
	}
	z := a.bias
	for i, x := range row {
		z += a.weights[i] * x
	}
	return z, nil
}

func (a *Linear) Score(obs env.Observation) ([]float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]float64, len(obs.Rows))
	for i, row := range obs.Rows {
		z, err := a.logit(row)
		if err != nil {
			return nil, err
		}
		out[i] = sigmoid(z)
	}
	return out, nil
}

func (a *Linear) Learn(ctx context.Context, e env.Environment, steps int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	obs := e.Reset()
	for t := 0; t < steps; t++ {
		if err := checkCtx(ctx, t); err != nil {
			return err
		}
		noise := make([]float64, len(obs.Rows))
		scores := make([]float64, len(obs.Rows))
		for i, row := range obs.Rows {
			z, err := a.logit(row)
			if err != nil {
				return err
			}
			noise[i] = a.sigma * a.rng.NormFloat64()
			scores[i] = sigmoid(z + noise[i])
		}
		next, reward, done, err := e.Step(scores)
		if err != nil {
			return fmt.Errorf("step %d: %w", t, err)
		}
		adv := reward - a.baseline
		a.baseline += 0.05 * (reward - a.baseline)
		for i, row := range obs.Rows {
			g := a.lr * adv * noise[i] / (a.sigma * a.sigma)
			for k, x := range row {
				a.weights[k] += g * x
			}
			a.bias += g
		}
		obs = next
		if done {
			obs = e.Reset()
		}
	}
	return nil
}

type linearState struct {
	Weights  []float64 `json:"weights"`
	Bias     float64   `json:"bias"`
	Baseline float64   `json:"baseline"`
}

// Save writes the learned parameters as JSON.
func (a *Linear) Save(w io.Writer) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return json.NewEncoder(w).Encode(linearState{Weights: a.weights, Bias: a.bias, Baseline: a.baseline})
}

// Load replaces the learned parameters with a saved state.
func (a *Linear) Load(r io.Reader) error {
	var s linearState
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return fault.Wrap(fault.Input, "decode linear model", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.weights, a.bias, a.baseline = s.Weights, s.Bias, s.Baseline
	return nil
}
