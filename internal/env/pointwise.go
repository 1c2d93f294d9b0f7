package env

import (
	"math"
	"math/rand/v2"
	"sort"

	"rltcp/internal/cycle"
)

// pointwise shows one test case per step. The reward is how close the score is
// to the test case's optimal priority, 1 at the head of the oracle order
// falling linearly towards 0 at the tail.
type pointwise struct {
	*base
	perm   []int
	cursor int
}

func newPointwise(s Settings, rec *cycle.Record, rng *rand.Rand) (Environment, error) {
	b, err := newBase(s, rec, rng, 1)
	if err != nil {
		return nil, err
	}
	return &pointwise{base: b}, nil
}

func (e *pointwise) Mode() Mode { return Pointwise }

func (e *pointwise) Reset() Observation {
	e.perm = e.rng.Perm(len(e.tcs))
	e.cursor = 0
	return e.obs(e.perm[0])
}

// target is the ideal score for the test case at record position i.
func (e *pointwise) target(i int) float64 {
	n := len(e.tcs)
	if n == 1 {
		return 1
	}
	return 1 - float64(e.ranks[i])/float64(n-1)
}

func (e *pointwise) Step(scores []float64) (Observation, float64, bool, error) {
	if e.perm == nil {
		e.Reset()
	}
	if err := checkScores(scores, 1); err != nil {
		return Observation{}, 0, false, err
	}
	i := e.perm[e.cursor]
	reward := 1 - math.Abs(clamp01(scores[0])-e.target(i))
	e.cursor++
	if e.cursor == len(e.perm) {
		e.perm = nil
		return Observation{}, reward, true, nil
	}
	return e.obs(e.perm[e.cursor]), reward, false, nil
}

func (e *pointwise) Rank(score ScoreFunc) ([]cycle.TestCase, error) {
	out := make([]cycle.TestCase, len(e.tcs))
	for i := range e.tcs {
		s, err := e.scoreRows(score, i)
		if err != nil {
			return nil, err
		}
		out[i] = e.tcs[i].Clone()
		out[i].Prob = clamp01(s[0])
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Prob > out[b].Prob })
	return out, nil
}
