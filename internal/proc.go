// Process control block.

package schedcore

import "sync"

type ProcState int

const (
	ProcUnused ProcState = iota
	ProcUsed
	ProcSleeping
	ProcRunnable
	ProcRunning
	ProcZombie
)

func (s ProcState) String() string {
	switch s {
	case ProcUnused:
		return "UNUSED"
	case ProcUsed:
		return "USED"
	case ProcSleeping:
		return "SLEEPING"
	case ProcRunnable:
		return "RUNNABLE"
	case ProcRunning:
		return "RUNNING"
	case ProcZombie:
		return "ZOMBIE"
	default:
		return "INVALID"
	}
}

// Entry is the process body. It runs inside a CPU's dispatch loop and
// cooperates with the scheduler by calling YieldCPU/Sleep/Exit at the
// points where a real process would trap into the kernel. rc is closed
// when the current run quantum is over (preemptive policies only); Entry
// is expected to check it and return promptly, it is not forcibly killed.
type Entry func(p *Proc, rc <-chan struct{})

// Proc is the process control block. Every field below lock is only
// valid while holding lock, except where noted.
type Proc struct {
	Pid int

	lock  sync.Mutex
	cond  *sync.Cond
	state ProcState

	// CpuBurst is the length, in ticks, of the burst the process just
	// finished running. CpuBurstAprox is the exponentially smoothed
	// estimate used by the SJF key function.
	CpuBurst      int
	CpuBurstAprox int

	// ExeTime accumulates ticks actually run, the CFS key. PutTimestamp
	// is the global tick count at the moment the process was last
	// enqueued, used to compute a dynamic Timeslice for CFS.
	ExeTime      int
	PutTimestamp int
	Timeslice    int

	Killed bool
	Xstate int
	Parent *Proc

	// CpuID is the last/current CPU this process ran on. Diagnostic
	// only, not part of any scheduling invariant.
	CpuID int

	entry Entry

	// chanKey is the wait channel the process is sleeping on, an
	// opaque comparable value agreed upon by caller and waker (mirrors
	// xv6's use of a kernel address as the wait channel).
	chanKey any
}

// NewProc allocates a USED process with the given pid and entry body. The
// caller is responsible for enqueuing it via Put.
func NewProc(pid int, entry Entry) *Proc {
	p := &Proc{
		Pid:   pid,
		state: ProcUsed,
		entry: entry,
	}
	p.cond = sync.NewCond(&p.lock)
	return p
}

// State returns the current state under lock.
func (p *Proc) State() ProcState {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.state
}
