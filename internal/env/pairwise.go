package env

import (
	"math/rand/v2"
	"sort"

	"rltcp/internal/cycle"
)

// pairwise shows two test cases per step. The policy prefers the first when
// its score is at least the second's; the reward is 1 when that preference
// agrees with the oracle and 0 otherwise. An episode is Len() comparisons.
type pairwise struct {
	*base
	a, b  int
	steps int
	live  bool
}

func newPairwise(s Settings, rec *cycle.Record, rng *rand.Rand) (Environment, error) {
	b, err := newBase(s, rec, rng, 2)
	if err != nil {
		return nil, err
	}
	return &pairwise{base: b}, nil
}

func (e *pairwise) Mode() Mode { return Pairwise }

func (e *pairwise) draw() Observation {
	n := len(e.tcs)
	e.a = e.rng.IntN(n)
	e.b = e.rng.IntN(n - 1)
	if e.b >= e.a {
		e.b++
	}
	return e.obs(e.a, e.b)
}

func (e *pairwise) Reset() Observation {
	e.steps = 0
	e.live = true
	return e.draw()
}

func (e *pairwise) Step(scores []float64) (Observation, float64, bool, error) {
	if !e.live {
		e.Reset()
	}
	if err := checkScores(scores, 2); err != nil {
		return Observation{}, 0, false, err
	}
	preferA := clamp01(scores[0]) >= clamp01(scores[1])
	var reward float64
	if preferA == (e.ranks[e.a] < e.ranks[e.b]) {
		reward = 1
	}
	e.steps++
	if e.steps >= len(e.tcs) {
		e.live = false
		return Observation{}, reward, true, nil
	}
	return e.draw(), reward, false, nil
}

// Rank runs a round robin over every pair. Prob is the test case's win rate,
// a tie counting half for each side.
func (e *pairwise) Rank(score ScoreFunc) ([]cycle.TestCase, error) {
	n := len(e.tcs)
	wins := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			s, err := e.scoreRows(score, i, j)
			if err != nil {
				return nil, err
			}
			si, sj := clamp01(s[0]), clamp01(s[1])
			switch {
			case si > sj:
				wins[i]++
			case sj > si:
				wins[j]++
			default:
				wins[i] += 0.5
				wins[j] += 0.5
			}
		}
	}
	out := make([]cycle.TestCase, n)
	for i := range e.tcs {
		out[i] = e.tcs[i].Clone()
		out[i].Prob = wins[i] / float64(n-1)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Prob > out[b].Prob })
	return out, nil
}
