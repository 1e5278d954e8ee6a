package inflight

import (
	"sync"
	"testing"
)

func TestTracker_LatestWins(t *testing.T) {
	tr := NewTracker()
	first := tr.Issue("optimize")
	second := tr.Issue("optimize")

	var applied []string
	// the newer response arrives first
	if !tr.Commit("optimize", second, func() { applied = append(applied, "second") }) {
		t.Error("Commit(second) = false, want true")
	}
	// the older one arrives late and is dropped
	if tr.Commit("optimize", first, func() { applied = append(applied, "first") }) {
		t.Error("Commit(first) = true, want false")
	}
	if len(applied) != 1 || applied[0] != "second" {
		t.Errorf("applied = %v, want [second]", applied)
	}
}

func TestTracker_OlderDroppedEvenIfFirst(t *testing.T) {
	tr := NewTracker()
	first := tr.Issue("backtest")
	tr.Issue("backtest")
	if tr.Current("backtest", first) {
		t.Error("Current(first) = true after a newer issue")
	}
	if tr.Commit("backtest", first, func() {}) {
		t.Error("Commit(first) = true, want false")
	}
}

func TestTracker_FormsIndependent(t *testing.T) {
	tr := NewTracker()
	a := tr.Issue("funds")
	b := tr.Issue("fund")
	if !tr.Current("funds", a) || !tr.Current("fund", b) {
		t.Error("token of one form invalidated by another form")
	}
}

func TestTracker_ConcurrentIssue(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok := tr.Issue("optimize")
			tr.Commit("optimize", tok, func() {})
		}()
	}
	wg.Wait()
	last := tr.Issue("optimize")
	if !tr.Current("optimize", last) {
		t.Error("Current(last) = false")
	}
}
