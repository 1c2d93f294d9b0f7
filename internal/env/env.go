// Package env provides the training environments a policy interacts with for
// one cycle. The three ordering strategies are a closed set of modes built
// through a single constructor; each exposes the same reset/step/rank contract
// over the cycle's normalized feature rows.
package env

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"sync"

	"rltcp/internal/cycle"
	"rltcp/internal/fault"
	"rltcp/internal/vectorize"
)

// Mode is the ordering formalization.
type Mode int

const (
	Pointwise Mode = iota
	Pairwise
	Listwise
)

var modeNames = map[Mode]string{
	Pointwise: "pointwise",
	Pairwise:  "pairwise",
	Listwise:  "listwise",
}

func (m Mode) String() string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	if n, ok := modeNames[m]; ok {
		return n
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode parses a mode name case-insensitively.
func ParseMode(s string) (Mode, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	for m, n := range modeNames {
		if n == want {
			return m, nil
		}
	}
	return 0, fault.Newf(fault.Config, "invalid mode %q (available: pointwise, pairwise, listwise)", s)
}

// Observation is what the policy sees at one step: one or more feature rows.
type Observation struct {
	Rows [][]float64
}

// ScoreFunc returns one score per observation row; higher means the test case
// should run earlier. Scores are read as failure probabilities in [0,1].
type ScoreFunc func(Observation) ([]float64, error)

// Environment is one cycle exposed to a policy.
type Environment interface {
	Mode() Mode
	// Len is the number of test cases in the cycle.
	Len() int
	// Reset starts a new episode and returns its first observation.
	Reset() Observation
	// Step applies one score per row of the current observation.
	Step(scores []float64) (next Observation, reward float64, done bool, err error)
	// Rank orders the cycle's test cases with score and returns copies with Prob set,
	// highest priority first.
	Rank(score ScoreFunc) ([]cycle.TestCase, error)
}

// Settings are the vectorization parameters shared by every mode.
type Settings struct {
	WindowSize int
	Pad        float64
	// MaxTestCases is the matrix capacity; 0 uses the cycle size.
	MaxTestCases int
}

// Factory builds an environment of one mode.
type Factory func(s Settings, rec *cycle.Record, rng *rand.Rand) (Environment, error)

var (
	// ErrEmptyCycle is returned when a cycle has too few test cases for a mode.
	ErrEmptyCycle = fault.New(fault.Domain, "cycle has too few test cases for this mode")
	// ErrScores is returned when a policy returns the wrong number of scores.
	ErrScores = fault.New(fault.Domain, "score count does not match observation rows")
)

var (
	factoriesMu sync.RWMutex
	factories   = map[Mode]Factory{
		Pointwise: newPointwise,
		Pairwise:  newPairwise,
		Listwise:  newListwise,
	}
)

// Register installs or replaces the factory for m. name, when non-empty,
// becomes parseable by ParseMode.
func Register(m Mode, name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[m] = f
	if name != "" {
		modeNames[m] = strings.ToLower(name)
	}
}

// Create builds the environment for mode over rec.
func Create(mode Mode, s Settings, rec *cycle.Record, rng *rand.Rand) (Environment, error) {
	factoriesMu.RLock()
	f, ok := factories[mode]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fault.Newf(fault.Config, "no environment for %s", mode)
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(1, 2))
	}
	return f(s, rec, rng)
}

// base is the per-cycle state every mode shares.
type base struct {
	tcs   []cycle.TestCase
	rows  [][]float64
	ranks []int
	rng   *rand.Rand
}

func newBase(s Settings, rec *cycle.Record, rng *rand.Rand, minLen int) (*base, error) {
	if rec.Len() < minLen {
		return nil, fault.Wrap(fault.Domain, fmt.Sprintf("cycle %d has %d test cases, need %d", rec.ID(), rec.Len(), minLen), ErrEmptyCycle)
	}
	tcs := rec.TestCases()
	capacity := s.MaxTestCases
	if capacity == 0 {
		capacity = len(tcs)
	}
	m, err := vectorize.ExportTestCases(tcs, capacity, vectorize.Options{WindowSize: s.WindowSize, Pad: s.Pad})
	if err != nil {
		return nil, fmt.Errorf("vectorize cycle %d: %w", rec.ID(), err)
	}
	return &base{tcs: tcs, rows: m[:len(tcs)], ranks: rec.OptimalRanks(), rng: rng}, nil
}

func (b *base) Len() int { return len(b.tcs) }

func (b *base) obs(idx ...int) Observation {
	rows := make([][]float64, len(idx))
	for i, k := range idx {
		rows[i] = b.rows[k]
	}
	return Observation{Rows: rows}
}

// scoreRows calls score with the rows at idx and checks the result length.
func (b *base) scoreRows(score ScoreFunc, idx ...int) ([]float64, error) {
	s, err := score(b.obs(idx...))
	if err != nil {
		return nil, err
	}
	if len(s) != len(idx) {
		return nil, fault.Wrap(fault.Domain, fmt.Sprintf("got %d scores for %d rows", len(s), len(idx)), ErrScores)
	}
	return s, nil
}

func checkScores(scores []float64, n int) error {
	if len(scores) != n {
		return fault.Wrap(fault.Domain, fmt.Sprintf("got %d scores for %d rows", len(scores), n), ErrScores)
	}
	return nil
}

// clamp01 maps a score into [0,1]; NaN becomes 0.
func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
