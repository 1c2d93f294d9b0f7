package env

import (
	"math/rand/v2"

	"rltcp/internal/cycle"
)

// listwise shows every remaining test case at each step; the highest score is
// placed next. The reward is 1 for picking the remaining test case the oracle
// would run first, falling linearly with its rank among the remaining ones.
type listwise struct {
	*base
	remaining []int
}

func newListwise(s Settings, rec *cycle.Record, rng *rand.Rand) (Environment, error) {
	b, err := newBase(s, rec, rng, 1)
	if err != nil {
		return nil, err
	}
	return &listwise{base: b}, nil
}

func (e *listwise) Mode() Mode { return Listwise }

func (e *listwise) Reset() Observation {
	e.remaining = e.rng.Perm(len(e.tcs))
	return e.obs(e.remaining...)
}

func argmax(scores []float64) int {
	best := 0
	for i := 1; i < len(scores); i++ {
		if clamp01(scores[i]) > clamp01(scores[best]) {
			best = i
		}
	}
	return best
}

func (e *listwise) Step(scores []float64) (Observation, float64, bool, error) {
	if len(e.remaining) == 0 {
		e.Reset()
	}
	if err := checkScores(scores, len(e.remaining)); err != nil {
		return Observation{}, 0, false, err
	}
	k := argmax(scores)
	picked := e.remaining[k]
	better := 0
	for _, i := range e.remaining {
		if e.ranks[i] < e.ranks[picked] {
			better++
		}
	}
	reward := 1 - float64(better)/float64(len(e.remaining))
	e.remaining = append(e.remaining[:k], e.remaining[k+1:]...)
	if len(e.remaining) == 0 {
		return Observation{}, reward, true, nil
	}
	return e.obs(e.remaining...), reward, false, nil
}

// Rank places test cases one at a time, each pick scored against the cases
// still remaining. Prob is the winning score at the time of the pick.
func (e *listwise) Rank(score ScoreFunc) ([]cycle.TestCase, error) {
	remaining := make([]int, len(e.tcs))
	for i := range remaining {
		remaining[i] = i
	}
	out := make([]cycle.TestCase, 0, len(e.tcs))
	for len(remaining) > 0 {
		s, err := e.scoreRows(score, remaining...)
		if err != nil {
			return nil, err
		}
		k := argmax(s)
		tc := e.tcs[remaining[k]].Clone()
		tc.Prob = clamp01(s[k])
		out = append(out, tc)
		remaining = append(remaining[:k], remaining[k+1:]...)
	}
	return out, nil
}
