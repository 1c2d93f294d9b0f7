package cycle

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"rltcp/internal/fault"
)

// fiveCase builds a cycle with failures at original positions 3 and 5.
func fiveCase() *Record {
	r := New(7)
	r.Add(TestCase{TestID: "t1", AvgExecTime: 3, LastExecTime: 3})
	r.Add(TestCase{TestID: "t2", AvgExecTime: 1, LastExecTime: 1})
	r.Add(TestCase{TestID: "t3", AvgExecTime: 5, LastExecTime: 5, Verdict: Failed})
	r.Add(TestCase{TestID: "t4", AvgExecTime: 2, LastExecTime: 2})
	r.Add(TestCase{TestID: "t5", AvgExecTime: 4, LastExecTime: 4, Verdict: Failed})
	return r
}

func ids(tcs []TestCase) []string {
	out := make([]string, len(tcs))
	for i, tc := range tcs {
		out[i] = tc.TestID
	}
	return out
}

func TestAdd_DerivesFields(t *testing.T) {
	r := New(3)
	r.Add(TestCase{TestID: "a", FailureHistory: []int{1, 0, 1}, Prob: 0.9, CycleID: 99})
	r.Add(TestCase{TestID: "b"})

	a, err := r.At(0)
	if err != nil {
		t.Fatalf("At(0): %v", err)
	}
	if a.Age != 3 || a.Prob != 0 || a.CycleID != 3 {
		t.Errorf("a: age=%d prob=%v cycle=%d", a.Age, a.Prob, a.CycleID)
	}
	b, _ := r.At(1)
	if b.FailureHistory == nil || len(b.FailureHistory) != 0 || b.Age != 0 {
		t.Errorf("b: history=%v age=%d", b.FailureHistory, b.Age)
	}
}

func TestAdd_AcceptsDuplicateIDs(t *testing.T) {
	r := New(1)
	r.Add(TestCase{TestID: "dup"})
	r.Add(TestCase{TestID: "dup"})
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
}

func TestRecord_NoAliasing(t *testing.T) {
	hist := []int{1, 1}
	r := New(1)
	r.Add(TestCase{TestID: "a", FailureHistory: hist})
	hist[0] = 0

	tcs := r.TestCases()
	tcs[0].Verdict = Failed
	tcs[0].FailureHistory[1] = 0

	got, _ := r.At(0)
	if diff := cmp.Diff([]int{1, 1}, got.FailureHistory); diff != "" {
		t.Errorf("history mutated through alias (-want +got):\n%s", diff)
	}
	if got.Verdict != Passed {
		t.Error("verdict mutated through TestCases() copy")
	}
}

func TestRecords_DoNotShareState(t *testing.T) {
	a, b := New(1), New(2)
	a.Add(TestCase{TestID: "x"})
	if b.Len() != 0 {
		t.Errorf("second record sees %d test cases", b.Len())
	}
}

func TestFailedCount(t *testing.T) {
	r := fiveCase()
	if got := r.FailedCount(); got != 2 {
		t.Errorf("FailedCount() = %d, want 2", got)
	}
	all := r.TestCases()
	if got := FailedCountIn(all[:3]); got != 1 {
		t.Errorf("FailedCountIn(first 3) = %d, want 1", got)
	}
	if got := FailedCountIn(nil); got != 0 {
		t.Errorf("FailedCountIn(nil) = %d, want 0", got)
	}
}

func TestDelete_ByPosition(t *testing.T) {
	r := fiveCase()
	if err := r.Delete(2); err != nil {
		t.Fatalf("Delete(2): %v", err)
	}
	if diff := cmp.Diff([]string{"t1", "t2", "t4", "t5"}, ids(r.TestCases())); diff != "" {
		t.Errorf("after Delete(2) (-want +got):\n%s", diff)
	}

	for _, idx := range []int{-1, 4, 100} {
		err := r.Delete(idx)
		if !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("Delete(%d) err = %v, want ErrIndexOutOfRange", idx, err)
		}
		if fault.KindOf(err) != fault.Domain {
			t.Errorf("Delete(%d) kind = %q", idx, fault.KindOf(err))
		}
	}
	if r.Len() != 4 {
		t.Errorf("failed deletes changed Len() to %d", r.Len())
	}
}

func TestDeleteByID(t *testing.T) {
	r := New(1)
	r.Add(TestCase{TestID: "a"})
	r.Add(TestCase{TestID: "b"})
	r.Add(TestCase{TestID: "a"})
	if n := r.DeleteByID("a"); n != 2 {
		t.Errorf("DeleteByID removed %d, want 2", n)
	}
	if diff := cmp.Diff([]string{"b"}, ids(r.TestCases())); diff != "" {
		t.Errorf("remaining (-want +got):\n%s", diff)
	}
	if n := r.DeleteByID("zzz"); n != 0 {
		t.Errorf("DeleteByID(missing) = %d", n)
	}
}

func TestOptimalOrder(t *testing.T) {
	r := fiveCase()
	got := ids(r.OptimalOrder())
	want := []string{"t5", "t3", "t2", "t4", "t1"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("OptimalOrder (-want +got):\n%s", diff)
	}
}

func TestOptimalOrder_StableTies(t *testing.T) {
	r := New(1)
	r.Add(TestCase{TestID: "p1", LastExecTime: 2})
	r.Add(TestCase{TestID: "f1", LastExecTime: 2, Verdict: Failed})
	r.Add(TestCase{TestID: "p2", LastExecTime: 2})
	r.Add(TestCase{TestID: "f2", LastExecTime: 2, Verdict: Failed})
	r.Add(TestCase{TestID: "f3", LastExecTime: 1, Verdict: Failed})

	want := []string{"f3", "f1", "f2", "p1", "p2"}
	for i := 0; i < 3; i++ {
		if diff := cmp.Diff(want, ids(r.OptimalOrder())); diff != "" {
			t.Fatalf("call %d (-want +got):\n%s", i, diff)
		}
	}
}

func TestOptimalOrder_Properties(t *testing.T) {
	r := fiveCase()
	order := r.OptimalOrder()
	seenPass := false
	for i, tc := range order {
		if tc.Verdict == Passed {
			seenPass = true
		} else if seenPass {
			t.Fatalf("failed test %s after a passed one", tc.TestID)
		}
		if i > 0 && order[i-1].Verdict == tc.Verdict && order[i-1].LastExecTime > tc.LastExecTime {
			t.Errorf("partition not ascending at %d", i)
		}
	}
	order[0].TestID = "mutated"
	if r.OptimalOrder()[0].TestID == "mutated" {
		t.Error("OptimalOrder shares storage with the record")
	}
}

func TestOptimalSubset(t *testing.T) {
	sub, total := fiveCase().OptimalSubset()
	if diff := cmp.Diff([]string{"t5", "t3"}, ids(sub)); diff != "" {
		t.Errorf("OptimalSubset (-want +got):\n%s", diff)
	}
	if total != 9 {
		t.Errorf("total = %v, want 9", total)
	}

	allPass := New(1)
	allPass.Add(TestCase{TestID: "a", AvgExecTime: 1})
	sub, total = allPass.OptimalSubset()
	if len(sub) != 0 || total != 0 {
		t.Errorf("all-pass subset = %v, %v", sub, total)
	}
}

func TestOptimalRanks(t *testing.T) {
	got := fiveCase().OptimalRanks()
	want := []int{4, 2, 1, 3, 0}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("OptimalRanks (-want +got):\n%s", diff)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		tc   TestCase
		ok   bool
	}{
		{"passed", TestCase{TestID: "a", Verdict: Passed, FailureHistory: []int{1, 0}}, true},
		{"failed", TestCase{TestID: "a", Verdict: Failed}, true},
		{"verdict two", TestCase{TestID: "a", Verdict: 2}, false},
		{"negative verdict", TestCase{TestID: "a", Verdict: -1}, false},
		{"history entry", TestCase{TestID: "a", FailureHistory: []int{0, 5}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tc.Validate()
			if tt.ok {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrVerdict) || fault.KindOf(err) != fault.Input {
				t.Errorf("Validate err = %v, want input ErrVerdict", err)
			}
		})
	}
}
