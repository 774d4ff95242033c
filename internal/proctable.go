// Process table: pid allocation and the wait/wakeup bookkeeping that sits
// above individual process locks.

package schedcore

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// ProcTable owns every live Proc plus the scheduler policy they are
// scheduled under. waitLock is the outermost lock in the
// wait_lock -> proc.lock -> SchedulerPolicy.lock order; it serializes
// Wait/Exit against each other so a child cannot be reparented and
// zombified while a parent is scanning for it.
type ProcTable struct {
	waitLock sync.Mutex

	pidLock sync.Mutex
	nextPid int

	mapLock sync.Mutex
	procs   map[int]*Proc

	Policy *SchedulerPolicy

	// Init is the reparenting target for orphaned children, mirroring
	// xv6's initproc. Nil until SetInit is called.
	Init *Proc

	log *logrus.Entry
}

// SetInit designates p as the reparenting target for orphans.
func (pt *ProcTable) SetInit(p *Proc) {
	pt.Init = p
}

func NewProcTable(policy *SchedulerPolicy) *ProcTable {
	return &ProcTable{
		nextPid: 1,
		procs:   make(map[int]*Proc),
		Policy:  policy,
		log:     NewCompLogger("proctable"),
	}
}

func (pt *ProcTable) allocPid() int {
	pt.pidLock.Lock()
	defer pt.pidLock.Unlock()
	pid := pt.nextPid
	pt.nextPid++
	return pid
}

// NewProc allocates a pid, builds a USED Proc around entry and registers
// it in the table. The caller still must Put it to make it runnable.
func (pt *ProcTable) NewProc(entry Entry) *Proc {
	p := NewProc(pt.allocPid(), entry)
	pt.mapLock.Lock()
	pt.procs[p.Pid] = p
	pt.mapLock.Unlock()
	return p
}

func (pt *ProcTable) Lookup(pid int) (*Proc, bool) {
	pt.mapLock.Lock()
	defer pt.mapLock.Unlock()
	p, ok := pt.procs[pid]
	return p, ok
}

func (pt *ProcTable) remove(pid int) {
	pt.mapLock.Lock()
	delete(pt.procs, pid)
	pt.mapLock.Unlock()
}

// children returns every live Proc whose Parent is parent. Caller must
// hold waitLock.
func (pt *ProcTable) children(parent *Proc) []*Proc {
	pt.mapLock.Lock()
	defer pt.mapLock.Unlock()
	var out []*Proc
	for _, p := range pt.procs {
		if p.Parent == parent {
			out = append(out, p)
		}
	}
	return out
}
