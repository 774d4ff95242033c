// chsched is a thin CLI around the kernel's runtime reconfiguration entry
// point, change_sched. It boots a kernel with a handful of demo
// processes competing for CPU time, applies the requested algorithm
// switch, and prints the report.
package main

import (
	"flag"
	"fmt"
	"os"
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
	algorithmArg = flag.String(
		"algorithm",
		"sjf",
		priosched.FormatFlagUsage(`Scheduling algorithm: "sjf" or "cfs"`),
	)
	isPreemptiveArg = flag.Bool(
		"preemptive",
		true,
		priosched.FormatFlagUsage(
			`Whether SJF preempts the running process on every timer tick (ignored for cfs, which always preempts at timeslice expiry)`,
		),
	)
	smoothingFactorArg = flag.Int(
		"a",
		50,
		priosched.FormatFlagUsage(
			`SJF exponential smoothing factor, 0..100 (ignored for cfs)`,
		),
	)
	numCPUsArg = flag.Int(
		"num-cpus",
		0,
		priosched.FormatFlagUsage(
			`Number of CPUs to boot (0: use every available CPU)`,
		),
	)
)

func init() {
	logrusx.EnableLoggerArgs()
}

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
		fmt.Fprintf(os.Stderr, "error booting kernel: %v\n", err)
		return 1
	}

	k.Userinit(demoBurstEntry(25))
	for i := 0; i < 3; i++ {
		p := k.NewProc(demoBurstEntry(10 * (i + 1)))
		k.Put(p)
	}

	// Give the demo processes a moment to start competing before the
	// reconfiguration is applied, so the report reflects a live policy.
	time.Sleep(5 * time.Millisecond)

	fmt.Println(k.ChangeSchedReport(*algorithmArg, *isPreemptiveArg, *smoothingFactorArg))

	if err := k.Shutdown(cfg.ShutdownMaxWait); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	return 0
}

// demoBurstEntry returns an Entry that waits out three simulated bursts of
// burstTicks milliseconds each; it never yields voluntarily, so only a
// preemption (rc closed by the timer routine) takes it off the CPU early.
func demoBurstEntry(burstTicks int) priosched.Entry {
	return func(p *priosched.Proc, rc <-chan struct{}) {
		for burst := 0; burst < 3; burst++ {
			select {
			case <-rc:
				return
			case <-time.After(time.Duration(burstTicks) * time.Millisecond):
			}
		}
	}
}
