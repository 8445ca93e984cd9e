// Copyright 2025 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/google/subcommands"

	"github.com/kernhal/kernhal/pkg/arch/loongarch"
	"github.com/kernhal/kernhal/pkg/arch/riscv"
	"github.com/kernhal/kernhal/pkg/config"
	"github.com/kernhal/kernhal/pkg/irq"
	"github.com/kernhal/kernhal/pkg/log"
	"github.com/kernhal/kernhal/pkg/sim"
	"github.com/kernhal/kernhal/pkg/sync"
	"github.com/kernhal/kernhal/pkg/user"
)

// Entry point and stack of the scripted program.
const (
	traceIP = 0x1_0000
	traceSP = 0x7fff_f000
)

// Run implements subcommands.Command for the "run" command.
type Run struct {
	preempt bool
	out     io.Writer
}

// Name implements subcommands.Command.Name.
func (*Run) Name() string {
	return "run"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Run) Synopsis() string {
	return "run a scripted trap trace through the user-mode dispatcher of every CPU."
}

// Usage implements subcommands.Command.Usage.
func (*Run) Usage() string {
	return `run [flags] <trace> - run a trace on every CPU of the machine.

The trace is a TOML or YAML file with a list of steps. Each step has a trap
(syscall, fp-syscall, timer, irq, page-fault or breakpoint) and, depending
on the trap, a syscall number, a faulting addr or the device lines to raise.
The return reasons and trap counters of each CPU are printed, and the
machine is stopped through its exit device.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (r *Run) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&r.preempt, "preempt", false, "return to the kernel after every timer tick.")
}

// cpuResult is what one CPU did with the trace.
type cpuResult struct {
	reasons []string
	stats   stats
}

// stats are the counters shared by both backends.
type stats struct {
	UserEntries, Syscalls, Exceptions, FPUActivations, TimerTicks, ExternalIRQs, KernelEvents uint64
}

// Execute implements subcommands.Command.Execute.
func (r *Run) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	t, err := loadTrace(f.Arg(0))
	if err != nil {
		return failure("loading trace: %v", err)
	}
	p := platformArg(args)
	m, err := newMachine(p)
	if err != nil {
		return failure("building machine: %v", err)
	}
	defer m.Close()

	results, err := r.run(ctx, m, t)
	ok := err == nil
	exit := m.shutdown(ok)
	if !ok {
		return failure("%v", err)
	}

	out := stdout(r.out)
	for cpu, res := range results {
		for _, reason := range res.reasons {
			fmt.Fprintf(out, "cpu %d: %s\n", cpu, reason)
		}
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "CPU\tENTRIES\tSYSCALLS\tEXCEPTIONS\tFPU\tTIMER\tIRQS\tEVENTS\n")
	for cpu, res := range results {
		s := res.stats
		fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n", cpu, s.UserEntries, s.Syscalls, s.Exceptions, s.FPUActivations, s.TimerTicks, s.ExternalIRQs, s.KernelEvents)
	}
	w.Flush()
	fmt.Fprintf(out, "exit: offset %#x value %#x\n", exit.Offset, exit.Value)
	return subcommands.ExitSuccess
}

// run executes t on every CPU of m concurrently.
func (r *Run) run(ctx context.Context, m *machine, t *trace) ([]cpuResult, error) {
	if err := catch(func() {
		if err := m.ctrl.Init(); err != nil {
			panic(err)
		}
	}); err != nil {
		return nil, err
	}

	// Every line named by the trace gets a callback that logs the
	// dispatch.
	lines := irq.NewLines(m.ctrl.NumSources())
	for _, s := range t.Steps {
		for _, n := range s.Lines {
			n := n
			l, err := lines.AllocSpecific(n)
			if err != nil {
				// Already allocated by an earlier step.
				continue
			}
			l.OnActive(func(f irq.Frame) {
				log.Infof("line %d fired at pc %#x", n, f.InstructionPointer())
			})
			if err := catch(func() {
				m.ctrl.SetPriority(n, 1)
				m.ctrl.Enable(n)
			}); err != nil {
				return nil, err
			}
		}
	}

	var mu sync.Mutex
	results := make([]cpuResult, m.p.CPUs)
	err := sim.RunHarts(ctx, m.p.CPUs, func(ctx context.Context, cpu int) error {
		var res cpuResult
		err := catch(func() {
			switch m.p.Arch {
			case config.ArchRISCV:
				res = r.runRISCV(ctx, m, t, lines, cpu)
			case config.ArchLoongArch:
				res = r.runLoongArch(ctx, m, t, lines, cpu)
			}
		})
		if err != nil {
			return err
		}
		mu.Lock()
		results[cpu] = res
		mu.Unlock()
		return ctx.Err()
	})
	return results, err
}

// ticker returns a timer callback and a kernel-event predicate that reports
// a tick once, if preempt is set.
func (r *Run) ticker() (func(), func() bool) {
	var ticked bool
	tick := func() { ticked = true }
	event := func() bool {
		t := ticked
		ticked = false
		return r.preempt && t
	}
	return tick, event
}

func describe(reason user.ReturnReason, nr uintptr, trap fmt.Stringer, addr uint64) string {
	switch reason {
	case user.UserSyscall:
		return fmt.Sprintf("%v %d", reason, nr)
	case user.UserException:
		return fmt.Sprintf("%v %v addr %#x", reason, trap, addr)
	default:
		return reason.String()
	}
}

func (r *Run) runRISCV(ctx context.Context, m *machine, t *trace, lines *irq.Lines, id int) cpuResult {
	h := sim.NewRISCVHart(t.riscvSteps(m.raise)...)
	tick, event := r.ticker()
	cpu, err := riscv.NewCPU(riscv.Config{ID: id, Hart: h, Controller: m.ctrl, Lines: lines, Timer: tick})
	if err != nil {
		panic(err)
	}
	uc := riscv.NewUserContext(traceIP, traceSP)
	var res cpuResult
	for h.Remaining() > 0 && ctx.Err() == nil {
		reason := uc.Execute(cpu, event)
		res.reasons = append(res.reasons, describe(reason, uc.SyscallNum(), uc.LastTrap(), uc.TrapInformation().PageFaultAddr))
	}
	s := cpu.Stats()
	res.stats = stats{s.UserEntries, s.Syscalls, s.Exceptions, s.FPUActivations, s.TimerTicks, s.ExternalIRQs, s.KernelEvents}
	return res
}

func (r *Run) runLoongArch(ctx context.Context, m *machine, t *trace, lines *irq.Lines, id int) cpuResult {
	h := sim.NewLoongArchHart(t.loongArchSteps(m.raise)...)
	tick, event := r.ticker()
	cpu, err := loongarch.NewCPU(loongarch.Config{ID: id, Hart: h, Controller: m.ctrl, Lines: lines, Timer: tick})
	if err != nil {
		panic(err)
	}
	uc := loongarch.NewUserContext(traceIP, traceSP)
	var res cpuResult
	for h.Remaining() > 0 && ctx.Err() == nil {
		reason := uc.Execute(cpu, event)
		res.reasons = append(res.reasons, describe(reason, uc.SyscallNum(), uc.LastTrap(), uc.TrapInformation().PageFaultAddr))
	}
	s := cpu.Stats()
	res.stats = stats{s.UserEntries, s.Syscalls, s.Exceptions, s.FPUActivations, s.TimerTicks, s.ExternalIRQs, s.KernelEvents}
	return res
}
