package schedcore

import (
	"testing"
	"time"
)

func newTestProcTable() *ProcTable {
	return NewProcTable(NewSchedulerPolicy(DefaultPolicyConfig()))
}

func TestPutGetOrdersByKey(t *testing.T) {
	pt := newTestProcTable()
	bursts := []int{50, 10, 80}
	procs := make([]*Proc, len(bursts))
	for i, b := range bursts {
		p := pt.NewProc(nil)
		p.CpuBurstAprox = b
		procs[i] = p
		pt.Put(p)
	}

	got := pt.Get()
	if got.CpuBurstAprox != 10 {
		t.Fatalf("Get(): want smallest burst 10, got %d", got.CpuBurstAprox)
	}
	if got.State() != ProcRunning {
		t.Fatalf("Get(): want state RUNNING, got %s", got.State())
	}
}

func TestGetOnEmptyQueueReturnsNil(t *testing.T) {
	pt := newTestProcTable()
	if p := pt.Get(); p != nil {
		t.Fatalf("Get() on empty queue: want nil, got %+v", p)
	}
}

// TestPutSmoothingAppliesOnlyWhenRunning exercises the resolved ambiguity:
// the smoothed estimate only moves when the process being put was
// RUNNING (just finished a burst), not when a never-run process is first
// enqueued.
func TestPutSmoothingAppliesOnlyWhenRunning(t *testing.T) {
	pt := newTestProcTable()
	pt.Policy.a = 50

	p := pt.NewProc(nil)
	p.CpuBurstAprox = 100
	pt.Put(p) // state is USED here, not RUNNING: no smoothing

	if p.CpuBurstAprox != 100 {
		t.Fatalf("first put: CpuBurstAprox changed from 100 to %d", p.CpuBurstAprox)
	}

	got := pt.Get()
	if got != p {
		t.Fatalf("Get(): want the only queued proc back")
	}

	got.CpuBurst = 20
	pt.Put(got) // state is RUNNING here: smoothing applies

	want := (50*20 + 50*100) / 100
	if got.CpuBurstAprox != want {
		t.Fatalf("smoothed estimate: want %d, got %d", want, got.CpuBurstAprox)
	}
}

// TestPutAccumulatesExeTimeOnlyWhenRunning exercises the CFS key
// companion to TestPutSmoothingAppliesOnlyWhenRunning: exe_time only
// grows on the re-enqueue that follows an actual RUNNING burst, and
// resets to zero on any other path (sleep/wakeup, fresh enqueue).
func TestPutAccumulatesExeTimeOnlyWhenRunning(t *testing.T) {
	pt := newTestProcTable()

	p := pt.NewProc(nil)
	pt.Put(p) // state is USED here: exe_time stays zero
	if p.ExeTime != 0 {
		t.Fatalf("first put: ExeTime = %d, want 0", p.ExeTime)
	}

	got := pt.Get()
	got.CpuBurst = 7
	pt.Put(got) // state is RUNNING here: exe_time accumulates
	if got.ExeTime != 7 {
		t.Fatalf("ExeTime after one burst: want 7, got %d", got.ExeTime)
	}

	got = pt.Get()
	got.CpuBurst = 3
	pt.Put(got)
	if got.ExeTime != 10 {
		t.Fatalf("ExeTime after two bursts: want 10, got %d", got.ExeTime)
	}

	// A sleep/wakeup cycle is a non-running re-enqueue: it resets ExeTime
	// to zero.
	got = pt.Get()
	done := make(chan struct{})
	go func() {
		pt.Sleep(got, "io")
		close(done)
	}()
	for i := 0; i < 100 && got.State() != ProcSleeping; i++ {
		time.Sleep(time.Millisecond)
	}
	pt.Wakeup("io")
	<-done
	if got.ExeTime != 0 {
		t.Fatalf("ExeTime after sleep/wakeup: want 0, got %d", got.ExeTime)
	}
}

func TestYieldCPURequeuesAndCountsYield(t *testing.T) {
	pt := newTestProcTable()
	p := pt.NewProc(nil)
	pt.Put(p)
	running := pt.Get()

	before := pt.Policy.Stats().Yields
	pt.YieldCPU(running)

	if pt.Policy.Stats().Yields != before+1 {
		t.Fatalf("Yields stat did not advance")
	}
	if pt.Policy.HeapLen() != 1 {
		t.Fatalf("YieldCPU did not requeue: heap len = %d", pt.Policy.HeapLen())
	}
}

func TestSleepWakeup(t *testing.T) {
	pt := newTestProcTable()
	p := pt.NewProc(nil)

	done := make(chan struct{})
	go func() {
		pt.Sleep(p, "disk-block-1")
		close(done)
	}()

	// Give the goroutine a chance to block.
	for i := 0; i < 100 && p.State() != ProcSleeping; i++ {
		time.Sleep(time.Millisecond)
	}
	if p.State() != ProcSleeping {
		t.Fatalf("process did not reach SLEEPING state")
	}

	pt.Wakeup("disk-block-1")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Sleep did not return after Wakeup")
	}
	if p.State() != ProcRunnable {
		t.Fatalf("state after wakeup: want RUNNABLE, got %s", p.State())
	}
}

func TestWakeupIgnoresOtherChannels(t *testing.T) {
	pt := newTestProcTable()
	p := pt.NewProc(nil)

	done := make(chan struct{})
	go func() {
		pt.Sleep(p, "chan-a")
		close(done)
	}()
	for i := 0; i < 100 && p.State() != ProcSleeping; i++ {
		time.Sleep(time.Millisecond)
	}

	pt.Wakeup("chan-b")

	select {
	case <-done:
		t.Fatal("Sleep returned after a wakeup on a different channel")
	case <-time.After(20 * time.Millisecond):
	}

	pt.Wakeup("chan-a")
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Sleep did not return after the matching Wakeup")
	}
}

func TestKillWakesSleeper(t *testing.T) {
	pt := newTestProcTable()
	p := pt.NewProc(nil)

	done := make(chan struct{})
	go func() {
		pt.Sleep(p, "chan-a")
		close(done)
	}()
	for i := 0; i < 100 && p.State() != ProcSleeping; i++ {
		time.Sleep(time.Millisecond)
	}

	if err := pt.Kill(p.Pid); err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Kill did not wake the sleeper")
	}
	if !p.Killed {
		t.Fatalf("Killed flag not set")
	}
}

func TestKillUnknownPid(t *testing.T) {
	pt := newTestProcTable()
	if err := pt.Kill(999); err != ErrNoSuchProc {
		t.Fatalf("Kill(unknown pid): want ErrNoSuchProc, got %v", err)
	}
}

func TestExitWaitReapsChild(t *testing.T) {
	pt := newTestProcTable()
	parent := pt.NewProc(nil)
	child := pt.NewProc(nil)
	child.Parent = parent

	type result struct {
		pid, xstate int
		err         error
	}
	resCh := make(chan result, 1)
	go func() {
		pid, xstate, err := pt.Wait(parent)
		resCh <- result{pid, xstate, err}
	}()

	time.Sleep(10 * time.Millisecond)
	pt.Exit(child, 7)

	select {
	case res := <-resCh:
		if res.err != nil {
			t.Fatalf("Wait: unexpected error %v", res.err)
		}
		if res.pid != child.Pid || res.xstate != 7 {
			t.Fatalf("Wait: want (%d, 7), got (%d, %d)", child.Pid, res.pid, res.xstate)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Exit")
	}

	if _, ok := pt.Lookup(child.Pid); ok {
		t.Fatalf("child still present in the process table after being reaped")
	}
}

func TestWaitWithNoChildrenReturnsErrNotParent(t *testing.T) {
	pt := newTestProcTable()
	p := pt.NewProc(nil)
	if _, _, err := pt.Wait(p); err != ErrNotParent {
		t.Fatalf("Wait with no children: want ErrNotParent, got %v", err)
	}
}

// TestWaitReturnsErrNotParentWhenKilled exercises the other half of
// Wait's -1 contract: a killed parent gets ErrNotParent even if it has a
// live (non-zombie) child, since it will never run again to collect it.
func TestWaitReturnsErrNotParentWhenKilled(t *testing.T) {
	pt := newTestProcTable()
	parent := pt.NewProc(nil)
	child := pt.NewProc(nil)
	child.Parent = parent

	parent.lock.Lock()
	parent.Killed = true
	parent.lock.Unlock()

	if _, _, err := pt.Wait(parent); err != ErrNotParent {
		t.Fatalf("Wait on killed parent: want ErrNotParent, got %v", err)
	}
}

func TestExitReparentsOrphansToInit(t *testing.T) {
	pt := newTestProcTable()
	init := pt.NewProc(nil)
	pt.SetInit(init)

	parent := pt.NewProc(nil)
	child := pt.NewProc(nil)
	child.Parent = parent

	pt.Exit(parent, 0)

	child.lock.Lock()
	gotParent := child.Parent
	child.lock.Unlock()
	if gotParent != init {
		t.Fatalf("child not reparented to init after parent exited")
	}
}
