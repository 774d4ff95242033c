// kernelsim boots a priosched.Kernel with a handful of synthetic
// processes and runs until interrupted, mirroring a real init system's
// boot-then-wait shape.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bgp59/logrusx"

	"github.com/kern-sched/priosched"
)

var (
	configFileArg = flag.String(
		"config",
		"",
		priosched.FormatFlagUsage(
			`Path to a kernel_config YAML file; omitted settings keep their defaults`,
		),
	)
	numCPUsArg = flag.Int(
		"num-cpus",
		0,
		priosched.FormatFlagUsage(
			`Number of CPUs to boot (0: use every available CPU)`,
		),
	)
	numProcsArg = flag.Int(
		"num-procs",
		8,
		priosched.FormatFlagUsage(
			`Number of synthetic workload processes to spawn at boot`,
		),
	)
)

func init() {
	logrusx.EnableLoggerArgs()
}

var simLog = priosched.NewCompLogger("kernelsim")

func main() {
	os.Exit(run())
}

func run() int {
	flag.Parse()

	cfg := priosched.DefaultKernelConfig()
	if *configFileArg != "" {
		var err error
		cfg, err = priosched.LoadConfig(*configFileArg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error loading config file: %v\n", err)
			return 1
		}
	}
	logrusx.ApplySetLoggerArgs(cfg.LoggerConfig)
	if err := priosched.SetLogger(cfg.LoggerConfig); err != nil {
		fmt.Fprintf(os.Stderr, "error setting the logger: %v\n", err)
		return 1
	}

	k := priosched.NewKernel(cfg)
	if err := k.Boot(*numCPUsArg); err != nil {
		simLog.Fatal(err)
	}

	k.Userinit(initEntry(k, *numProcsArg))

	shutdownTimer := time.NewTimer(time.Hour)
	shutdownTimer.Stop()
	defer shutdownTimer.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	if cfg.ShutdownMaxWait == 0 {
		simLog.Fatalf("%s signal received, force exit", sig)
	}
	simLog.Warnf("%s signal received, shutting down", sig)

	go func() {
		shutdownTimer.Reset(cfg.ShutdownMaxWait)
		<-shutdownTimer.C
		simLog.Fatalf("shutdown timed out after %s, force exit", cfg.ShutdownMaxWait)
	}()

	if err := k.Shutdown(cfg.ShutdownMaxWait); err != nil {
		simLog.Warn(err)
	}

	return 0
}

// initEntry is pid 1's body: it spawns numProcs synthetic workloads, then
// reaps every child as it exits, logging the scheduler stats once all
// children are gone.
func initEntry(k *priosched.Kernel, numProcs int) priosched.Entry {
	return func(p *priosched.Proc, rc <-chan struct{}) {
		for i := 0; i < numProcs; i++ {
			child := k.NewProc(workloadEntry(k))
			k.Put(child)
		}

		remaining := numProcs
		for remaining > 0 {
			select {
			case <-rc:
				return
			default:
			}
			pid, xstate, err := k.Wait(p)
			if err != nil {
				break
			}
			simLog.Infof("reaped pid %d, xstate %d", pid, xstate)
			remaining--
		}

		if cpuTime, err := priosched.GetMyCpuTime(); err == nil {
			simLog.Infof("all workloads done: %+v, real cpu time %.3fs", k.Stats(), cpuTime)
		} else {
			simLog.Infof("all workloads done: %+v", k.Stats())
		}
	}
}

// workloadEntry simulates a process alternating between CPU bursts and
// voluntary yields, blocking on a synthetic resource every other burst,
// then exiting. cpu_burst itself is accounted by the timer routine while
// this runs; the Entry only decides when a burst is over.
func workloadEntry(k *priosched.Kernel) priosched.Entry {
	burstCount := 3 + rand.Intn(5)
	return func(p *priosched.Proc, rc <-chan struct{}) {
		for i := 0; i < burstCount; i++ {
			select {
			case <-rc:
				return
			case <-time.After(time.Duration(5+rand.Intn(20)) * time.Millisecond):
			}

			if p.Killed {
				k.Exit(p, -1)
				return
			}
			if i%2 == 0 {
				k.YieldCPU(p)
			} else {
				// Stand in for an external event (disk, network) that
				// will eventually wake this process back up.
				go func() {
					time.Sleep(time.Duration(5+rand.Intn(10)) * time.Millisecond)
					k.Wakeup(p)
				}()
				k.Sleep(p, p)
			}
		}
		k.Exit(p, 0)
	}
}
