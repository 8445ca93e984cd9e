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

package riscv_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kernhal/kernhal/pkg/arch/riscv"
	"github.com/kernhal/kernhal/pkg/irq"
	"github.com/kernhal/kernhal/pkg/sim"
	"github.com/kernhal/kernhal/pkg/sync"
	"github.com/kernhal/kernhal/pkg/user"
)

const (
	testIP = 0x1_0000
	testSP = 0x3f_ffff_f000
)

var ecall = sim.RISCVStep{Exception: riscv.ExcUserEnvCall}

func newCPU(t *testing.T, c riscv.Config) *riscv.CPU {
	t.Helper()
	cpu, err := riscv.NewCPU(c)
	if err != nil {
		t.Fatalf("NewCPU: %v", err)
	}
	return cpu
}

func mustPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("%s: did not panic", name)
		}
	}()
	fn()
}

func TestEcall(t *testing.T) {
	h := sim.NewRISCVHart(sim.RISCVStep{
		Exception: riscv.ExcUserEnvCall,
		Run: func(regs *riscv.RawRegs, _ *riscv.FpuState) {
			regs.General.Set(riscv.A7, 93)
			for i := 0; i < 6; i++ {
				regs.General.SetArg(i, uint64(100+i))
			}
		},
	}, ecall)
	cpu := newCPU(t, riscv.Config{Hart: h})
	c := riscv.NewUserContext(testIP, testSP)

	if got := c.Execute(cpu, nil); got != user.UserSyscall {
		t.Fatalf("Execute = %v, want %v", got, user.UserSyscall)
	}
	if got, want := c.InstructionPointer(), uintptr(testIP+4); got != want {
		t.Errorf("InstructionPointer = %#x, want %#x", got, want)
	}
	if got := c.SyscallNum(); got != 93 {
		t.Errorf("SyscallNum = %d, want 93", got)
	}
	var want user.SyscallArguments
	for i := range want {
		want[i].Value = uintptr(100 + i)
	}
	if diff := cmp.Diff(want, c.SyscallArgs()); diff != "" {
		t.Errorf("SyscallArgs mismatch (-want +got):\n%s", diff)
	}
	c.SetSyscallRet(^uintptr(0))
	if v, _ := c.Reg("x10"); v != ^uint64(0) {
		t.Errorf("a0 = %#x after SetSyscallRet(-1)", v)
	}
	if !h.InterruptsEnabled() {
		t.Errorf("interrupts masked after Execute")
	}

	if got := c.Execute(cpu, nil); got != user.UserSyscall {
		t.Fatalf("second Execute = %v, want %v", got, user.UserSyscall)
	}
	if got, want := c.InstructionPointer(), uintptr(testIP+8); got != want {
		t.Errorf("InstructionPointer after two ecalls = %#x, want %#x", got, want)
	}
}

func TestFPUFirstUse(t *testing.T) {
	h := sim.NewRISCVHart(sim.RISCVStep{
		Exception: riscv.ExcUserEnvCall,
		UsesFPU:   true,
		Run: func(_ *riscv.RawRegs, fp *riscv.FpuState) {
			fp.F[1] = 0x3ff0_0000_0000_0000
			fp.FCSR = 0x1
		},
	}, ecall)
	cpu := newCPU(t, riscv.Config{Hart: h})
	c := riscv.NewUserContext(testIP, testSP)

	if got := c.Execute(cpu, nil); got != user.UserSyscall {
		t.Fatalf("Execute = %v, want %v", got, user.UserSyscall)
	}
	if got := c.FS(); got != riscv.FSClean {
		t.Errorf("FS after save = %v, want %v", got, riscv.FSClean)
	}
	want := riscv.FpuState{FCSR: 0x1}
	want.F[1] = 0x3ff0_0000_0000_0000
	if diff := cmp.Diff(want, *c.FpuState()); diff != "" {
		t.Errorf("saved FPU state mismatch (-want +got):\n%s", diff)
	}

	// A clean unit is restored but not saved again.
	if got := c.Execute(cpu, nil); got != user.UserSyscall {
		t.Fatalf("second Execute = %v, want %v", got, user.UserSyscall)
	}
	wantEntries := []sim.RISCVEntry{
		{SEPC: testIP, FS: riscv.FSOff},
		{SEPC: testIP, FS: riscv.FSInitial},
		{SEPC: testIP + 4, FS: riscv.FSClean},
	}
	if diff := cmp.Diff(wantEntries, h.Entries()); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
	if got := h.FPSaves(); got != 1 {
		t.Errorf("FPSaves = %d, want 1", got)
	}
	if got := cpu.Stats().FPUActivations; got != 1 {
		t.Errorf("FPUActivations = %d, want 1", got)
	}
}

func TestIllegalInstruction(t *testing.T) {
	t.Run("not floating point", func(t *testing.T) {
		h := sim.NewRISCVHart(sim.RISCVStep{Exception: riscv.ExcIllegalInstruction, STval: 0xffff_ffff})
		cpu := newCPU(t, riscv.Config{Hart: h})
		c := riscv.NewUserContext(testIP, testSP)
		if got := c.Execute(cpu, nil); got != user.UserException {
			t.Fatalf("Execute = %v, want %v", got, user.UserException)
		}
		want := riscv.CpuExceptionInfo{
			Code:               riscv.ExcIllegalInstruction,
			PageFaultAddr:      testIP,
			IllegalInstruction: 0xffff_ffff,
		}
		if diff := cmp.Diff(want, *c.TrapInformation()); diff != "" {
			t.Errorf("TrapInformation mismatch (-want +got):\n%s", diff)
		}
		if c.FS() != riscv.FSOff {
			t.Errorf("FS = %v, want Off", c.FS())
		}
	})

	t.Run("floating point with unit on", func(t *testing.T) {
		h := sim.NewRISCVHart(
			sim.RISCVStep{Exception: riscv.ExcUserEnvCall, UsesFPU: true},
			sim.RISCVStep{Exception: riscv.ExcIllegalInstruction, STval: sim.FLDInstruction},
		)
		cpu := newCPU(t, riscv.Config{Hart: h})
		c := riscv.NewUserContext(testIP, testSP)
		if got := c.Execute(cpu, nil); got != user.UserSyscall {
			t.Fatalf("Execute = %v, want %v", got, user.UserSyscall)
		}
		if got := c.Execute(cpu, nil); got != user.UserException {
			t.Fatalf("Execute = %v, want %v", got, user.UserException)
		}
		if got := c.TrapInformation().IllegalInstruction; got != sim.FLDInstruction {
			t.Errorf("IllegalInstruction = %#x, want %#x", got, sim.FLDInstruction)
		}
	})
}

func TestMemoryFaults(t *testing.T) {
	for _, e := range []riscv.Exception{
		riscv.ExcInstructionPageFault,
		riscv.ExcLoadPageFault,
		riscv.ExcStorePageFault,
		riscv.ExcInstructionFault,
		riscv.ExcLoadFault,
		riscv.ExcStoreFault,
	} {
		t.Run(e.String(), func(t *testing.T) {
			const addr = 0x2_0000_0008
			h := sim.NewRISCVHart(sim.RISCVStep{Exception: e, STval: addr})
			cpu := newCPU(t, riscv.Config{Hart: h})
			c := riscv.NewUserContext(testIP, testSP)

			if got := c.Execute(cpu, nil); got != user.UserException {
				t.Fatalf("Execute = %v, want %v", got, user.UserException)
			}
			if diff := cmp.Diff([]sim.RISCVFence{{VA: addr}}, h.Fences()); diff != "" {
				t.Errorf("fences mismatch (-want +got):\n%s", diff)
			}
			want := riscv.CpuExceptionInfo{Code: e, PageFaultAddr: addr}
			if diff := cmp.Diff(want, *c.TrapInformation()); diff != "" {
				t.Errorf("TrapInformation mismatch (-want +got):\n%s", diff)
			}
			if got := c.InstructionPointer(); got != testIP {
				t.Errorf("InstructionPointer = %#x, want %#x", got, testIP)
			}
		})
	}
}

func TestOtherUserExceptions(t *testing.T) {
	for _, e := range []riscv.Exception{
		riscv.ExcInstructionMisaligned,
		riscv.ExcLoadMisaligned,
		riscv.ExcStoreMisaligned,
		riscv.ExcBreakpoint,
	} {
		h := sim.NewRISCVHart(sim.RISCVStep{Exception: e, STval: 0x1_0003})
		cpu := newCPU(t, riscv.Config{Hart: h})
		c := riscv.NewUserContext(testIP, testSP)
		if got := c.Execute(cpu, nil); got != user.UserException {
			t.Errorf("%v: Execute = %v, want %v", e, got, user.UserException)
			continue
		}
		want := riscv.CpuExceptionInfo{Code: e, PageFaultAddr: 0x1_0003}
		if diff := cmp.Diff(want, *c.TrapInformation()); diff != "" {
			t.Errorf("%v: TrapInformation mismatch (-want +got):\n%s", e, diff)
		}
		if len(h.Fences()) != 0 {
			t.Errorf("%v: unexpected fences %v", e, h.Fences())
		}
	}
}

func TestTimerThenKernelEvent(t *testing.T) {
	timer := sim.RISCVStep{Interrupt: riscv.IntTimer}
	h := sim.NewRISCVHart(timer, timer, ecall)
	ticks := 0
	cpu := newCPU(t, riscv.Config{Hart: h, Timer: func() { ticks++ }})
	c := riscv.NewUserContext(testIP, testSP)

	pending := true
	if got := c.Execute(cpu, func() bool { return pending }); got != user.KernelEvent {
		t.Fatalf("Execute = %v, want %v", got, user.KernelEvent)
	}
	pending = false
	if got := c.Execute(cpu, func() bool { return pending }); got != user.UserSyscall {
		t.Fatalf("Execute = %v, want %v", got, user.UserSyscall)
	}
	want := riscv.Stats{
		UserEntries:  3,
		Syscalls:     1,
		TimerTicks:   2,
		KernelEvents: 1,
	}
	if diff := cmp.Diff(want, cpu.Stats()); diff != "" {
		t.Errorf("Stats mismatch (-want +got):\n%s", diff)
	}
	if ticks != 2 || h.TimerAcks() != 2 {
		t.Errorf("ticks = %d, acks = %d, want 2, 2", ticks, h.TimerAcks())
	}
}

func TestExternalInterruptClaimLoop(t *testing.T) {
	p := sim.NewPLIC(64, 1)
	ctrl, err := riscv.NewPLIC(p.Region(), 64, 1)
	if err != nil {
		t.Fatalf("NewPLIC: %v", err)
	}
	if err := ctrl.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	for n, prio := range map[int]uint32{5: 1, 9: 2} {
		ctrl.SetPriority(n, prio)
		ctrl.Enable(n)
	}

	lines := irq.NewLines(ctrl.NumSources())
	var got []int
	for _, n := range []int{5, 9} {
		n := n
		l, err := lines.AllocSpecific(n)
		if err != nil {
			t.Fatalf("AllocSpecific(%d): %v", n, err)
		}
		l.OnActive(func(f irq.Frame) {
			if !f.FromUser() {
				t.Errorf("line %d: frame not from user", n)
			}
			got = append(got, n)
		})
	}

	h := sim.NewRISCVHart(sim.RISCVStep{
		Interrupt: riscv.IntExternal,
		Before: func() {
			p.Raise(5)
			p.Raise(9)
		},
	}, ecall)
	cpu := newCPU(t, riscv.Config{Hart: h, Controller: ctrl, Lines: lines})
	c := riscv.NewUserContext(testIP, testSP)

	if r := c.Execute(cpu, nil); r != user.UserSyscall {
		t.Fatalf("Execute = %v, want %v", r, user.UserSyscall)
	}
	if diff := cmp.Diff([]int{9, 5}, got); diff != "" {
		t.Errorf("dispatch order mismatch (-want +got):\n%s", diff)
	}
	// Both sources were completed, so they can be raised again.
	if !p.Raise(5) || !p.Raise(9) {
		t.Errorf("source still in flight after the claim loop")
	}
}

func TestFatalUserTraps(t *testing.T) {
	for _, tc := range []struct {
		name string
		step sim.RISCVStep
	}{
		{"supervisor ecall", sim.RISCVStep{Exception: riscv.ExcSupervisorEnvCall}},
		{"reserved exception", sim.RISCVStep{Cause: 10}},
		{"software interrupt", sim.RISCVStep{Interrupt: riscv.IntSoftware}},
		{"machine timer", sim.RISCVStep{Cause: 1<<63 | 7}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := sim.NewRISCVHart(tc.step)
			cpu := newCPU(t, riscv.Config{Hart: h})
			c := riscv.NewUserContext(testIP, testSP)
			mustPanic(t, "Execute", func() { c.Execute(cpu, nil) })
			if !h.InterruptsEnabled() {
				t.Errorf("interrupts masked after panic")
			}
		})
	}
}

func TestForkCopiesState(t *testing.T) {
	c := riscv.NewUserContext(testIP, testSP)
	c.SetTLSPointer(0x7000)
	c.FpuState().F[3] = 9
	n := c.Fork()
	n.SetTLSPointer(0x8000)
	n.FpuState().F[3] = 10
	if c.TLSPointer() != 0x7000 || c.FpuState().F[3] != 9 {
		t.Errorf("fork aliases its parent: tp %#x, f3 %d", c.TLSPointer(), c.FpuState().F[3])
	}
	f := n.AsTrapFrame()
	if f.InstructionPointer() != testIP || f.StackPointer() != testSP || !f.FromUser() {
		t.Errorf("frame = ip %#x sp %#x user %t", f.InstructionPointer(), f.StackPointer(), f.FromUser())
	}
}

var (
	faultHandlerOnce sync.Once
	faultHook        func(*riscv.CpuExceptionInfo) error
)

func setFaultHook(t *testing.T, fn func(*riscv.CpuExceptionInfo) error) {
	faultHandlerOnce.Do(func() {
		riscv.InjectUserPageFaultHandler(func(info *riscv.CpuExceptionInfo) error {
			return faultHook(info)
		})
	})
	faultHook = fn
	t.Cleanup(func() { faultHook = nil })
}

func TestKernelTrap(t *testing.T) {
	var faults []riscv.CpuExceptionInfo
	setFaultHook(t, func(info *riscv.CpuExceptionInfo) error {
		faults = append(faults, *info)
		if info.PageFaultAddr == 0xdead_0000 {
			return errors.New("no mapping")
		}
		return nil
	})
	h := sim.NewRISCVHart()
	cpu := newCPU(t, riscv.Config{Hart: h})
	f := &riscv.TrapFrame{SStatus: 1 << 8, SEPC: 0xffff_ffc0_8020_0000}

	h.TakeTrap(sim.RISCVStep{Exception: riscv.ExcLoadPageFault, STval: 0x4000})
	cpu.HandleKernelTrap(f)
	if diff := cmp.Diff([]riscv.CpuExceptionInfo{{Code: riscv.ExcLoadPageFault, PageFaultAddr: 0x4000}}, faults); diff != "" {
		t.Errorf("handler calls mismatch (-want +got):\n%s", diff)
	}

	h.TakeTrap(sim.RISCVStep{Exception: riscv.ExcIllegalInstruction, STval: sim.FLDInstruction})
	cpu.HandleKernelTrap(f)
	if got := f.SStatus.FS(); got != riscv.FSInitial {
		t.Errorf("kernel FS after illegal instruction = %v, want %v", got, riscv.FSInitial)
	}
	if f.FromUser() {
		t.Errorf("kernel frame reports user mode")
	}

	h.TakeTrap(sim.RISCVStep{Exception: riscv.ExcIllegalInstruction})
	mustPanic(t, "illegal instruction with FPU on", func() { cpu.HandleKernelTrap(f) })

	h.TakeTrap(sim.RISCVStep{Exception: riscv.ExcStorePageFault, STval: 0xdead_0000})
	mustPanic(t, "failed user fault", func() { cpu.HandleKernelTrap(f) })

	h.TakeTrap(sim.RISCVStep{Exception: riscv.ExcLoadPageFault, STval: 0xffff_ffc0_0000_0000})
	mustPanic(t, "kernel address fault", func() { cpu.HandleKernelTrap(f) })

	h.TakeTrap(sim.RISCVStep{Exception: riscv.ExcBreakpoint})
	mustPanic(t, "breakpoint", func() { cpu.HandleKernelTrap(f) })
}

func TestKernelInterrupted(t *testing.T) {
	h := sim.NewRISCVHart()
	var (
		cpu  *riscv.CPU
		seen []bool
	)
	cpu = newCPU(t, riscv.Config{Hart: h, Timer: func() {
		seen = append(seen, cpu.IsKernelInterrupted())
	}})

	h.TakeTrap(sim.RISCVStep{Interrupt: riscv.IntTimer})
	cpu.HandleKernelTrap(&riscv.TrapFrame{})
	if diff := cmp.Diff([]bool{true}, seen); diff != "" {
		t.Errorf("IsKernelInterrupted in handler mismatch (-want +got):\n%s", diff)
	}
	if cpu.IsKernelInterrupted() {
		t.Errorf("IsKernelInterrupted after handler = true")
	}
}
