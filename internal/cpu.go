// Per-CPU dispatch loop and the timer routine driving burst accounting
// and preemption.

package schedcore

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// CPU_IDLE_POLL_INTERVAL is how long an idle CPU waits before checking the
// run queue again when it found nothing to run.
const CPU_IDLE_POLL_INTERVAL = 2 * time.Millisecond

// CPU is one of the kernel's dispatch loops. It repeatedly pulls the next
// process off the run queue, runs its Entry, and decides what to do with
// it based on the state Entry left it in -- the same "run, then requeue
// based on the result" shape as a periodic task dispatcher.
type CPU struct {
	ID  int
	log *logrus.Entry

	pt *ProcTable

	mu            sync.Mutex
	current       *Proc
	cancelCurrent context.CancelFunc
}

func NewCPU(id int, pt *ProcTable) *CPU {
	return &CPU{
		ID:  id,
		log: NewCompLogger("cpu").WithField("cpu_id", id),
		pt:  pt,
	}
}

// Loop runs until ctx is cancelled. Callers typically invoke it as
// `go cpu.Loop(ctx, wg)` once per CPU, wg.Add(1) having been called
// beforehand.
func (c *CPU) Loop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	c.log.Info("cpu loop starting")
	defer c.log.Info("cpu loop stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		p := c.pt.Get()
		if p == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(CPU_IDLE_POLL_INTERVAL):
			}
			continue
		}

		p.CpuID = c.ID
		c.runOnce(ctx, p)
	}
}

// runOnce runs p's Entry, tracking it as the CPU's current process so
// tick can find it, then requeues it if Entry left it RUNNING; a process
// Entry left SLEEPING, RUNNABLE or ZOMBIE is not touched here (a zombie is
// reaped by its parent's Wait). Entry is not given a timeout directly -- the run
// context is only ever cancelled by tick, on the timer routine's say-so.
func (c *CPU) runOnce(ctx context.Context, p *Proc) {
	runCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.current = p
	c.cancelCurrent = cancel
	c.mu.Unlock()

	p.entry(p, runCtx.Done())

	c.mu.Lock()
	c.current = nil
	c.cancelCurrent = nil
	c.mu.Unlock()
	cancel()

	p.lock.Lock()
	state := p.state
	p.lock.Unlock()

	if state == ProcRunning {
		// Entry returned without calling YieldCPU/Sleep/Exit: either tick
		// forced it off (preemption) or Entry simply fell through after a
		// burst. Either way it is still runnable.
		c.pt.Preempt(p)
	}
}

// tick is this CPU's share of one timer interrupt: advance the current
// process's cpu_burst and, if the active policy's preemption condition now
// holds, cancel its run context so it notices rc closed and returns. A
// no-op if the CPU is idle.
func (c *CPU) tick() {
	c.mu.Lock()
	p, cancel := c.current, c.cancelCurrent
	c.mu.Unlock()
	if p == nil {
		return
	}

	p.lock.Lock()
	p.CpuBurst++
	cpuBurst, timeslice := p.CpuBurst, p.Timeslice
	p.lock.Unlock()

	algo := c.pt.Policy.Algorithm()
	isPreemptive := c.pt.Policy.IsPreemptive()

	if (timeslice != 0 && cpuBurst == timeslice) || (algo == AlgoSJF && isPreemptive) {
		cancel()
	}
}

// RunTimer advances the kernel's global tick count and drives every CPU's
// tick once per interval until ctx is cancelled. Exactly one of these
// should run per kernel instance, standing in for the timer interrupt.
func RunTimer(ctx context.Context, pt *ProcTable, cpus []*CPU, interval time.Duration, wg *sync.WaitGroup) {
	defer wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pt.Policy.Tick()
			for _, c := range cpus {
				c.tick()
			}
		}
	}
}
