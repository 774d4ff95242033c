// Package priosched is the public face of the scheduler for callers of
// this module. It wires a process table, a switchable scheduling policy
// and a fixed set of per-CPU dispatch loops into a runnable Kernel.
package priosched

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	schedcore "github.com/kern-sched/priosched/internal"
)

// Re-exported types, so callers never need to import the internal
// package directly.
type (
	Proc           = schedcore.Proc
	ProcState      = schedcore.ProcState
	Entry          = schedcore.Entry
	KernelConfig   = schedcore.KernelConfig
	PolicyConfig   = schedcore.PolicyConfig
	LoggerConfig   = schedcore.LoggerConfig
	Algorithm      = schedcore.Algorithm
	SchedulerStats = schedcore.SchedulerStats
)

const (
	ProcUnused   = schedcore.ProcUnused
	ProcUsed     = schedcore.ProcUsed
	ProcSleeping = schedcore.ProcSleeping
	ProcRunnable = schedcore.ProcRunnable
	ProcRunning  = schedcore.ProcRunning
	ProcZombie   = schedcore.ProcZombie

	AlgoSJF = schedcore.AlgoSJF
	AlgoCFS = schedcore.AlgoCFS
)

var (
	ErrNoSuchProc         = schedcore.ErrNoSuchProc
	ErrNotParent          = schedcore.ErrNotParent
	ErrBadAlgorithm       = schedcore.ErrBadAlgorithm
	ErrBadSmoothingFactor = schedcore.ErrBadSmoothingFactor
)

func DefaultKernelConfig() *KernelConfig { return schedcore.DefaultKernelConfig() }

// LoadConfig loads a KernelConfig from a YAML file.
func LoadConfig(cfgFile string) (*KernelConfig, error) {
	return schedcore.LoadConfig(cfgFile, nil)
}

// SetLogger applies a LoggerConfig to the package-wide root logger,
// typically called once at startup before Boot.
func SetLogger(cfg *LoggerConfig) error { return schedcore.SetLogger(cfg) }

func GetRootLogger() any { return schedcore.GetRootLogger() }

func NewCompLogger(comp string) *logrus.Entry { return schedcore.NewCompLogger(comp) }

// GetMyCpuTime samples this process's own accumulated user+system CPU
// time, in seconds. cmd/kernelsim logs it next to the scheduler stats
// once all demo workloads have exited.
func GetMyCpuTime() (float64, error) { return schedcore.GetMyCpuTime() }

// FormatFlagUsage reformats a flag usage string to the package's default
// wrap width, discarding the source's own line breaks and indentation.
func FormatFlagUsage(usage string) string { return schedcore.FormatFlagUsage(usage) }

// Kernel owns the process table, the scheduling policy and the set of
// CPUs dispatching against it.
type Kernel struct {
	cfg *KernelConfig

	pt   *schedcore.ProcTable
	cpus []*schedcore.CPU

	log *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	tickInterval time.Duration
}

// NewKernel builds a Kernel from cfg (DefaultKernelConfig() if nil). It
// does not start any goroutines; call Boot for that.
func NewKernel(cfg *KernelConfig) *Kernel {
	if cfg == nil {
		cfg = DefaultKernelConfig()
	} else {
		cfg = schedcore.CloneKernelConfig(cfg)
	}
	policy := schedcore.NewSchedulerPolicy(cfg.PolicyConfig)
	return &Kernel{
		cfg: cfg,
		pt:  schedcore.NewProcTable(policy),
		log: schedcore.NewCompLogger("kernel"),
	}
}

// tickRateHz resolves the host's clock tick rate, falling back to a
// reasonable software default if the platform call is unavailable.
func tickRateHz() int64 {
	hz, err := schedcore.GetSysClktck()
	if err != nil || hz <= 0 {
		return 100
	}
	return hz
}

// Boot starts the timer routine and numCPUs dispatch loops (numCPUs <= 0
// means use every available CPU). Any count is capped at 4x the host's own
// CPU count to keep a misconfigured kernel from spawning an unreasonable
// number of dispatch goroutines.
func (k *Kernel) Boot(numCPUs int) error {
	if numCPUs <= 0 {
		numCPUs = schedcore.GetAvailableCPUCount()
	}
	if max := runtime.NumCPU() * 4; numCPUs > max {
		numCPUs = max
	}

	if bootTime, err := schedcore.GetOsBootTime(); err == nil {
		k.log.WithField("os_boot_time", bootTime).Info("booting kernel")
	} else {
		k.log.WithError(err).Warn("could not determine OS boot time")
	}

	k.tickInterval = time.Second / time.Duration(tickRateHz())
	k.ctx, k.cancel = context.WithCancel(context.Background())

	k.cpus = make([]*schedcore.CPU, numCPUs)
	for i := 0; i < numCPUs; i++ {
		cpu := schedcore.NewCPU(i, k.pt)
		k.cpus[i] = cpu
		k.wg.Add(1)
		go cpu.Loop(k.ctx, &k.wg)
	}

	k.wg.Add(1)
	go schedcore.RunTimer(k.ctx, k.pt, k.cpus, k.tickInterval, &k.wg)

	k.log.WithField("num_cpus", numCPUs).Info("kernel booted")
	return nil
}

// Userinit creates the very first process, registers it as the
// reparenting target for future orphans, and enqueues it -- state is
// only ever changed through Put, never poked directly.
func (k *Kernel) Userinit(entry Entry) *Proc {
	p := k.pt.NewProc(entry)
	k.pt.SetInit(p)
	k.pt.Put(p)
	return p
}

// NewProc allocates a process without scheduling it.
func (k *Kernel) NewProc(entry Entry) *Proc { return k.pt.NewProc(entry) }

// Put enqueues p onto the run queue.
func (k *Kernel) Put(p *Proc) { k.pt.Put(p) }

// Wait blocks the calling process (parent) for one of its children to
// exit.
func (k *Kernel) Wait(parent *Proc) (pid int, xstate int, err error) {
	return k.pt.Wait(parent)
}

// Kill marks pid for death.
func (k *Kernel) Kill(pid int) error { return k.pt.Kill(pid) }

// YieldCPU voluntarily gives up the CPU, typically called from within an
// Entry at a natural stopping point mid-burst.
func (k *Kernel) YieldCPU(p *Proc) { k.pt.YieldCPU(p) }

// Sleep blocks the calling process on chanKey until a matching Wakeup or
// Kill. Called from within an Entry.
func (k *Kernel) Sleep(p *Proc, chanKey any) { k.pt.Sleep(p, chanKey) }

// Wakeup makes every process sleeping on chanKey runnable again.
func (k *Kernel) Wakeup(chanKey any) { k.pt.Wakeup(chanKey) }

// Exit zombifies p, reparenting its children to init and waking its
// parent if it is waiting. Called from within an Entry as its last act.
func (k *Kernel) Exit(p *Proc, xstate int) { k.pt.Exit(p, xstate) }

// ChangeSched is the reconfiguration entry point: algorithm must be
// "sjf" or "cfs", a is the SJF smoothing factor in [0, 100]. Returns 0 on
// success, -2 for an unknown algorithm, -3 for a out of range.
func (k *Kernel) ChangeSched(algorithm string, isPreemptive bool, a int) int {
	return schedcore.ChangeSched(k.pt.Policy, algorithm, isPreemptive, a)
}

// ChangeSchedErr is the Go-idiomatic counterpart to ChangeSched, returning
// ErrBadAlgorithm/ErrBadSmoothingFactor instead of a negative return code.
func (k *Kernel) ChangeSchedErr(algorithm string, isPreemptive bool, a int) error {
	return schedcore.ChangeSchedErr(k.pt.Policy, algorithm, isPreemptive, a)
}

// Stats returns a snapshot of the running scheduler counters.
func (k *Kernel) Stats() SchedulerStats { return k.pt.Policy.Stats() }

// ChangeSchedReport calls ChangeSched and renders the chsched CLI report
// for the request in one step.
func (k *Kernel) ChangeSchedReport(algorithm string, isPreemptive bool, a int) string {
	rc := k.ChangeSched(algorithm, isPreemptive, a)
	return schedcore.FormatChangeSchedReport(algorithm, isPreemptive, a, rc)
}

// Shutdown cancels every CPU loop and the timer routine, waiting up to
// maxWait for them to join (a negative maxWait waits indefinitely, zero
// does not wait at all).
func (k *Kernel) Shutdown(maxWait time.Duration) error {
	if k.cancel == nil {
		return nil
	}
	k.cancel()

	if maxWait == 0 {
		return nil
	}

	done := make(chan struct{})
	go func() {
		k.wg.Wait()
		close(done)
	}()

	if maxWait < 0 {
		<-done
		return nil
	}

	select {
	case <-done:
		return nil
	case <-time.After(maxWait):
		return fmt.Errorf("priosched: shutdown timed out after %s", maxWait)
	}
}
