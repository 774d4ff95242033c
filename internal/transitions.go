// State-transition API: put, get, yield_cpu, sleep, wakeup, exit, kill,
// wait.

package schedcore

// putLocked enqueues p onto the run queue under the currently active
// policy. The caller must already hold p.lock; Put and putLocked are kept
// split so callers that already hold the lock never need a
// lock-reentrancy probe.
//
// The smoothed burst estimate is only updated when p is being
// rescheduled after actually running a burst (p.state == ProcRunning at
// the moment of the call) -- a freshly created process has no cpu_burst
// sample yet. exe_time accumulates across that same running path and is
// reset to zero on every other path (first enqueue, waking from sleep,
// fresh after fork), matching the invariant that it is zero whenever a
// process transitions through SLEEPING or is freshly allocated.
func (pt *ProcTable) putLocked(p *Proc) {
	wasRunning := p.state == ProcRunning
	p.state = ProcRunnable

	pt.Policy.lock.Lock()
	if wasRunning {
		a := pt.Policy.a
		p.CpuBurstAprox = (a*p.CpuBurst + (100-a)*p.CpuBurstAprox) / 100
		p.ExeTime += p.CpuBurst
	} else {
		p.ExeTime = 0
	}
	p.PutTimestamp = pt.Policy.globalTicks
	p.CpuID = -1
	pt.Policy.heap = append(pt.Policy.heap, p)
	pt.Policy.heapifyUp(len(pt.Policy.heap) - 1)
	pt.Policy.stats.Puts++
	pt.Policy.lock.Unlock()
}

// Put enqueues p, acquiring its lock itself.
func (pt *ProcTable) Put(p *Proc) {
	p.lock.Lock()
	defer p.lock.Unlock()
	pt.putLocked(p)
}

// Get pops the process with the smallest key under the active policy and
// marks it RUNNING with a fresh (zero) CpuBurst. It returns nil if the run
// queue is empty. For CFS, it also computes this run's dynamic timeslice.
func (pt *ProcTable) Get() *Proc {
	pt.Policy.lock.Lock()
	n := len(pt.Policy.heap)
	if n == 0 {
		pt.Policy.lock.Unlock()
		return nil
	}

	p := pt.Policy.heap[0]
	pt.Policy.heap[0] = pt.Policy.heap[n-1]
	pt.Policy.heap[n-1] = nil
	pt.Policy.heap = pt.Policy.heap[:n-1]
	if len(pt.Policy.heap) > 0 {
		pt.Policy.heapifyDownFrom(0)
	}
	pt.Policy.stats.Gets++

	algo := pt.Policy.algorithm
	remaining := len(pt.Policy.heap)
	globalTicks := pt.Policy.globalTicks
	pt.Policy.lock.Unlock()

	p.lock.Lock()
	p.state = ProcRunning
	p.CpuBurst = 0
	if algo == AlgoCFS {
		ts := (globalTicks - p.PutTimestamp) / (remaining + 1)
		if ts < 1 {
			ts = 1
		}
		p.Timeslice = ts
	} else {
		p.Timeslice = 0
	}
	p.lock.Unlock()

	return p
}

// YieldCPU is the voluntary counterpart to preemption: a RUNNING process
// gives up the CPU without having blocked. It goes back on the run queue
// through the same putLocked path as a preempted process.
func (pt *ProcTable) YieldCPU(p *Proc) {
	p.lock.Lock()
	defer p.lock.Unlock()

	pt.Policy.lock.Lock()
	pt.Policy.stats.Yields++
	pt.Policy.lock.Unlock()

	pt.putLocked(p)
}

// Preempt requeues a RUNNING process whose timeslice expired without it
// voluntarily yielding. Distinct from YieldCPU only in which stat it
// bumps, so reporting can tell forced preemptions from cooperative ones.
func (pt *ProcTable) Preempt(p *Proc) {
	p.lock.Lock()
	defer p.lock.Unlock()

	pt.Policy.lock.Lock()
	pt.Policy.stats.Preemptions++
	pt.Policy.lock.Unlock()

	pt.putLocked(p)
}

// Sleep blocks the calling process on chanKey until a matching Wakeup (or
// Kill) makes it runnable again and puts it back on the run queue. It
// loops on the condition variable to guard against spurious wakeups and
// wakeups meant for a different channel.
func (pt *ProcTable) Sleep(p *Proc, chanKey any) {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.chanKey = chanKey
	p.state = ProcSleeping
	for p.state == ProcSleeping {
		p.cond.Wait()
	}
}

// Wakeup moves every process sleeping on chanKey back onto the run
// queue. It is safe to call with no sleepers waiting on chanKey.
func (pt *ProcTable) Wakeup(chanKey any) {
	pt.mapLock.Lock()
	procs := make([]*Proc, 0, len(pt.procs))
	for _, p := range pt.procs {
		procs = append(procs, p)
	}
	pt.mapLock.Unlock()

	for _, p := range procs {
		p.lock.Lock()
		if p.state == ProcSleeping && p.chanKey == chanKey {
			pt.putLocked(p)
			p.cond.Broadcast()
		}
		p.lock.Unlock()
	}
}

// Kill marks p for death. A sleeping process is made runnable immediately
// so it can notice Killed and call Exit on its own behalf; Non-goals
// exclude forcibly unwinding a running process.
func (pt *ProcTable) Kill(pid int) error {
	p, ok := pt.Lookup(pid)
	if !ok {
		return ErrNoSuchProc
	}

	p.lock.Lock()
	p.Killed = true
	if p.state == ProcSleeping {
		pt.putLocked(p)
		p.cond.Broadcast()
	}
	p.lock.Unlock()

	return nil
}

// Exit zombifies p, reparents its children to init and wakes up p's
// parent if it is waiting. waitLock is acquired first, matching
// wait_lock -> proc.lock -> SchedulerPolicy.lock.
func (pt *ProcTable) Exit(p *Proc, xstate int) {
	pt.waitLock.Lock()
	defer pt.waitLock.Unlock()

	for _, c := range pt.children(p) {
		c.lock.Lock()
		c.Parent = pt.Init
		c.lock.Unlock()
	}

	p.lock.Lock()
	if p.state == ProcZombie {
		p.lock.Unlock()
		Abort("schedcore: Exit called twice on pid %d", p.Pid)
	}
	p.state = ProcZombie
	p.Xstate = xstate
	parent := p.Parent
	p.lock.Unlock()

	if parent != nil {
		pt.Wakeup(parent)
	}
}

// Wait blocks the calling process (parent) until one of its children
// becomes a zombie, then reaps it and returns its pid and exit status.
// It returns ErrNotParent immediately if parent currently has no live
// children at all, or if parent has been killed.
func (pt *ProcTable) Wait(parent *Proc) (pid int, xstate int, err error) {
	for {
		parent.lock.Lock()
		killed := parent.Killed
		parent.lock.Unlock()
		if killed {
			return 0, 0, ErrNotParent
		}

		pt.waitLock.Lock()
		kids := pt.children(parent)
		if len(kids) == 0 {
			pt.waitLock.Unlock()
			return 0, 0, ErrNotParent
		}

		var zombie *Proc
		for _, c := range kids {
			c.lock.Lock()
			if c.state == ProcZombie {
				zombie = c
			}
			c.lock.Unlock()
			if zombie != nil {
				break
			}
		}

		if zombie != nil {
			zombie.lock.Lock()
			pid, xstate = zombie.Pid, zombie.Xstate
			zombie.lock.Unlock()
			pt.remove(pid)
			pt.waitLock.Unlock()
			return pid, xstate, nil
		}

		pt.waitLock.Unlock()
		pt.Sleep(parent, parent)
	}
}
