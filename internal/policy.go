// Scheduler policy state: the run queue heap and the switchable algorithm
// that gives it its ordering.

package schedcore

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

type Algorithm int

const (
	AlgoSJF Algorithm = iota
	AlgoCFS
)

func (a Algorithm) String() string {
	switch a {
	case AlgoSJF:
		return "sjf"
	case AlgoCFS:
		return "cfs"
	default:
		return "unknown"
	}
}

func ParseAlgorithm(name string) (Algorithm, bool) {
	switch name {
	case "sjf":
		return AlgoSJF, true
	case "cfs":
		return AlgoCFS, true
	default:
		return Algorithm(-1), false
	}
}

const (
	POLICY_CONFIG_ALGORITHM_DEFAULT      = "sjf"
	POLICY_CONFIG_IS_PREEMPTIVE_DEFAULT  = true
	POLICY_CONFIG_SMOOTHING_FACTOR_DEFAULT = 50
)

type PolicyConfig struct {
	Algorithm      string `yaml:"algorithm"`
	IsPreemptive   bool   `yaml:"is_preemptive"`
	SmoothingFactor int   `yaml:"smoothing_factor"`
}

func DefaultPolicyConfig() *PolicyConfig {
	return &PolicyConfig{
		Algorithm:       POLICY_CONFIG_ALGORITHM_DEFAULT,
		IsPreemptive:    POLICY_CONFIG_IS_PREEMPTIVE_DEFAULT,
		SmoothingFactor: POLICY_CONFIG_SMOOTHING_FACTOR_DEFAULT,
	}
}

// SchedulerStats are plain running counters, read by the cmd/kernelsim
// demo binary for reporting; they are not exported as timeseries.
type SchedulerStats struct {
	Puts        uint64
	Gets        uint64
	Preemptions uint64
	Yields      uint64
	Reconfigs   uint64
}

// SchedulerPolicy is the shared run-queue record: the heap, its size, the
// active algorithm and its parameters, and its own lock, guarding all of
// the above. Acquired last in the wait_lock -> proc.lock -> policy.lock
// order.
type SchedulerPolicy struct {
	lock sync.Mutex

	heap []*Proc

	algorithm    Algorithm
	isPreemptive bool
	a            int // smoothing factor, 0..100

	globalTicks int

	log   *logrus.Entry
	stats SchedulerStats
}

func NewSchedulerPolicy(cfg *PolicyConfig) *SchedulerPolicy {
	if cfg == nil {
		cfg = DefaultPolicyConfig()
	}
	algo, ok := ParseAlgorithm(cfg.Algorithm)
	if !ok {
		algo = AlgoSJF
	}
	return &SchedulerPolicy{
		heap:         make([]*Proc, 0, 64),
		algorithm:    algo,
		isPreemptive: cfg.IsPreemptive,
		a:            cfg.SmoothingFactor,
		log:          NewCompLogger("policy"),
	}
}

// key returns the ordering key for p under the currently active algorithm.
// Caller must hold sp.lock.
func (sp *SchedulerPolicy) key(p *Proc) int {
	if sp.algorithm == AlgoCFS {
		return p.ExeTime
	}
	return p.CpuBurstAprox
}

// heapifyUp restores heap order upward from index curr. Caller must hold
// sp.lock.
func (sp *SchedulerPolicy) heapifyUp(curr int) {
	for curr > 0 {
		parent := (curr - 1) / 2
		if sp.key(sp.heap[curr]) >= sp.key(sp.heap[parent]) {
			break
		}
		sp.heap[curr], sp.heap[parent] = sp.heap[parent], sp.heap[curr]
		curr = parent
	}
}

// heapifyDownFrom restores heap order downward from index curr, using the
// active key function uniformly for both children. Caller must hold
// sp.lock.
func (sp *SchedulerPolicy) heapifyDownFrom(curr int) {
	n := len(sp.heap)
	for {
		left, right := 2*curr+1, 2*curr+2
		smallest := curr
		if left < n && sp.key(sp.heap[left]) < sp.key(sp.heap[smallest]) {
			smallest = left
		}
		if right < n && sp.key(sp.heap[right]) < sp.key(sp.heap[smallest]) {
			smallest = right
		}
		if smallest == curr {
			break
		}
		sp.heap[curr], sp.heap[smallest] = sp.heap[smallest], sp.heap[curr]
		curr = smallest
	}
}

// rearrange rebuilds heap order from scratch. Used after a policy switch,
// since the key function itself changed meaning. Caller must hold
// sp.lock.
func (sp *SchedulerPolicy) rearrange() {
	for i := len(sp.heap)/2 - 1; i >= 0; i-- {
		sp.heapifyDownFrom(i)
	}
}

// ChangeSched reconfigures the policy at runtime. Returns 0 on success,
// -2 for an unrecognized algorithm name, -3 for a smoothing factor out of
// [0, 100] -- the latter check only applies when algorithm is SJF, the
// only one that reads `a`.
func ChangeSched(sp *SchedulerPolicy, algorithm string, isPreemptive bool, a int) int {
	algo, ok := ParseAlgorithm(algorithm)
	if !ok {
		return -2
	}
	if algo == AlgoSJF && (a < 0 || a > 100) {
		return -3
	}

	sp.lock.Lock()
	defer sp.lock.Unlock()

	changed := sp.algorithm != algo
	sp.algorithm = algo
	sp.isPreemptive = isPreemptive
	sp.a = a
	sp.stats.Reconfigs++

	if changed {
		sp.rearrange()
	}

	sp.log.WithFields(logrus.Fields{
		"algorithm":     algo,
		"is_preemptive": isPreemptive,
		"a":             a,
	}).Info("scheduler reconfigured")

	return 0
}

// ChangeSchedErr is the Go-idiomatic counterpart to ChangeSched, for
// callers that prefer a sentinel error over a return code.
func ChangeSchedErr(sp *SchedulerPolicy, algorithm string, isPreemptive bool, a int) error {
	switch ChangeSched(sp, algorithm, isPreemptive, a) {
	case -2:
		return ErrBadAlgorithm
	case -3:
		return ErrBadSmoothingFactor
	default:
		return nil
	}
}

// FormatChangeSchedReport renders the chsched CLI report: the algorithm
// name in upper case, is_preemptive/a only for SJF, and the return code
// on the final line. It reports the requested values, not sp's resulting
// state, so a rejected request (rc != 0) still echoes what was asked,
// except that any algorithm name other than "sjf" is reported as CFS.
func FormatChangeSchedReport(algorithm string, isPreemptive bool, a int, rc int) string {
	var b strings.Builder
	if algo, ok := ParseAlgorithm(algorithm); ok && algo == AlgoSJF {
		fmt.Fprintf(&b, "algorithm: SJF\n")
		preempt := 0
		if isPreemptive {
			preempt = 1
		}
		fmt.Fprintf(&b, "is_preemptive: %d\n", preempt)
		fmt.Fprintf(&b, "a: %d\n", a)
	} else {
		fmt.Fprintf(&b, "algorithm: CFS\n")
	}
	fmt.Fprintf(&b, "return code: %d", rc)
	return b.String()
}

// Tick advances the global tick count by one and returns the new value.
// Called once per timer interrupt (see RunTimer).
func (sp *SchedulerPolicy) Tick() int {
	sp.lock.Lock()
	defer sp.lock.Unlock()
	sp.globalTicks++
	return sp.globalTicks
}

// GlobalTicks returns the current tick count.
func (sp *SchedulerPolicy) GlobalTicks() int {
	sp.lock.Lock()
	defer sp.lock.Unlock()
	return sp.globalTicks
}

// Algorithm returns the active scheduling algorithm.
func (sp *SchedulerPolicy) Algorithm() Algorithm {
	sp.lock.Lock()
	defer sp.lock.Unlock()
	return sp.algorithm
}

// IsPreemptive reports whether SJF preempts the running process on every
// timer tick. It has no effect under CFS, which always preempts at
// timeslice expiry.
func (sp *SchedulerPolicy) IsPreemptive() bool {
	sp.lock.Lock()
	defer sp.lock.Unlock()
	return sp.isPreemptive
}

// HeapLen returns the number of runnable processes currently queued.
func (sp *SchedulerPolicy) HeapLen() int {
	sp.lock.Lock()
	defer sp.lock.Unlock()
	return len(sp.heap)
}

// Stats returns a copy of the running counters.
func (sp *SchedulerPolicy) Stats() SchedulerStats {
	sp.lock.Lock()
	defer sp.lock.Unlock()
	return sp.stats
}
