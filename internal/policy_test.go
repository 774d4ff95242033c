package schedcore

import "testing"

func TestChangeSchedValidation(t *testing.T) {
	sp := NewSchedulerPolicy(DefaultPolicyConfig())

	if rc := ChangeSched(sp, "rr", true, 50); rc != -2 {
		t.Fatalf("bad algorithm: want rc -2, got %d", rc)
	}
	if rc := ChangeSched(sp, "sjf", true, -1); rc != -3 {
		t.Fatalf("a below range: want rc -3, got %d", rc)
	}
	if rc := ChangeSched(sp, "sjf", true, 101); rc != -3 {
		t.Fatalf("a above range: want rc -3, got %d", rc)
	}
	if rc := ChangeSched(sp, "cfs", false, 0); rc != 0 {
		t.Fatalf("valid reconfiguration: want rc 0, got %d", rc)
	}
	if sp.algorithm != AlgoCFS || sp.isPreemptive || sp.a != 0 {
		t.Fatalf("policy state not applied: %+v", sp)
	}
}

// TestChangeSchedIgnoresARangeUnderCFS exercises the scoping of the
// smoothing-factor check: it only binds when switching to (or staying
// on) SJF, since CFS has no use for a at all.
func TestChangeSchedIgnoresARangeUnderCFS(t *testing.T) {
	sp := NewSchedulerPolicy(DefaultPolicyConfig())

	if rc := ChangeSched(sp, "cfs", true, 999); rc != 0 {
		t.Fatalf("CFS with out-of-range a: want rc 0, got %d", rc)
	}
	if sp.algorithm != AlgoCFS || sp.a != 999 {
		t.Fatalf("policy state not applied: %+v", sp)
	}
}

func TestChangeSchedRearrangesHeap(t *testing.T) {
	sp := NewSchedulerPolicy(DefaultPolicyConfig())
	data := []struct{ burst, exe int }{
		{1, 90}, {2, 80}, {3, 70}, {4, 5},
	}
	for i, d := range data {
		p := procWithKey(i, d.burst, d.exe)
		sp.heap = append(sp.heap, p)
		sp.heapifyUp(len(sp.heap) - 1)
	}
	if got := sp.key(sp.heap[0]); got != 1 {
		t.Fatalf("pre-switch root: want key 1 (sjf), got %d", got)
	}

	if rc := ChangeSched(sp, "cfs", true, 50); rc != 0 {
		t.Fatalf("ChangeSched: want rc 0, got %d", rc)
	}
	assertHeapOrder(t, sp)
	if got := sp.key(sp.heap[0]); got != 5 {
		t.Fatalf("post-switch root: want key 5 (cfs), got %d", got)
	}
}

func TestChangeSchedSameAlgorithmUpdatesParams(t *testing.T) {
	sp := NewSchedulerPolicy(DefaultPolicyConfig())
	sp.heap = []*Proc{procWithKey(0, 5, 0), procWithKey(1, 10, 0)}

	before := sp.stats.Reconfigs
	if rc := ChangeSched(sp, "sjf", true, 75); rc != 0 {
		t.Fatalf("ChangeSched: want rc 0, got %d", rc)
	}
	if sp.stats.Reconfigs != before+1 {
		t.Fatalf("Reconfigs counter did not advance")
	}
	if sp.a != 75 {
		t.Fatalf("a: want 75, got %d", sp.a)
	}
}
