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

package loongarch_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kernhal/kernhal/pkg/arch/loongarch"
	"github.com/kernhal/kernhal/pkg/irq"
	"github.com/kernhal/kernhal/pkg/sim"
	"github.com/kernhal/kernhal/pkg/sync"
	"github.com/kernhal/kernhal/pkg/user"
)

const (
	testIP = 0x1000
	testSP = 0x7ffff000
)

var syscall = sim.LoongArchStep{Exception: loongarch.ExcSyscall}

func newCPU(t *testing.T, c loongarch.Config) *loongarch.CPU {
	t.Helper()
	cpu, err := loongarch.NewCPU(c)
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

func TestSyscallAdvancesPC(t *testing.T) {
	h := sim.NewLoongArchHart(syscall, syscall)
	cpu := newCPU(t, loongarch.Config{Hart: h})
	c := loongarch.NewUserContext(testIP, testSP)

	if got := c.Execute(cpu, nil); got != user.UserSyscall {
		t.Fatalf("Execute = %v, want %v", got, user.UserSyscall)
	}
	if got, want := c.InstructionPointer(), uintptr(testIP+4); got != want {
		t.Errorf("InstructionPointer = %#x, want %#x", got, want)
	}
	if got := c.StackPointer(); got != testSP {
		t.Errorf("StackPointer = %#x, want %#x", got, testSP)
	}
	if !h.InterruptsEnabled() {
		t.Errorf("interrupts masked after Execute")
	}

	if got := c.Execute(cpu, nil); got != user.UserSyscall {
		t.Fatalf("second Execute = %v, want %v", got, user.UserSyscall)
	}
	if got, want := c.InstructionPointer(), uintptr(testIP+8); got != want {
		t.Errorf("InstructionPointer after two syscalls = %#x, want %#x", got, want)
	}
	if got, want := cpu.Stats().Syscalls, uint64(2); got != want {
		t.Errorf("Syscalls = %d, want %d", got, want)
	}
}

func TestSyscallABI(t *testing.T) {
	h := sim.NewLoongArchHart(sim.LoongArchStep{
		Exception: loongarch.ExcSyscall,
		Run: func(regs *loongarch.RawRegs, _ *loongarch.FpuState) {
			regs.General.Set(loongarch.A7, 64)
			for i := 0; i < 6; i++ {
				regs.General.SetArg(i, uint64(10+i))
			}
		},
	})
	cpu := newCPU(t, loongarch.Config{Hart: h})
	c := loongarch.NewUserContext(testIP, testSP)
	c.SetTLSPointer(0x7000_0000)

	if got := c.Execute(cpu, nil); got != user.UserSyscall {
		t.Fatalf("Execute = %v, want %v", got, user.UserSyscall)
	}
	if got := c.SyscallNum(); got != 64 {
		t.Errorf("SyscallNum = %d, want 64", got)
	}
	var want user.SyscallArguments
	for i := range want {
		want[i].Value = uintptr(10 + i)
	}
	if diff := cmp.Diff(want, c.SyscallArgs()); diff != "" {
		t.Errorf("SyscallArgs mismatch (-want +got):\n%s", diff)
	}

	c.SetSyscallRet(42)
	if got := c.SyscallRet(); got != 42 {
		t.Errorf("SyscallRet = %d, want 42", got)
	}
	if v, ok := c.Reg("a0"); !ok || v != 42 {
		t.Errorf("Reg(a0) = %d, %t, want 42, true", v, ok)
	}
	if v, _ := c.Reg("tp"); v != 0x7000_0000 || c.TLSPointer() != 0x7000_0000 {
		t.Errorf("thread pointer = %#x, want 0x70000000", v)
	}
}

func TestFPUUnavailableIsHidden(t *testing.T) {
	h := sim.NewLoongArchHart(sim.LoongArchStep{
		Exception: loongarch.ExcSyscall,
		UsesFPU:   true,
		Run: func(_ *loongarch.RawRegs, fp *loongarch.FpuState) {
			fp.F[0] = 0x4000_0000_0000_0000
		},
	}, syscall)
	cpu := newCPU(t, loongarch.Config{Hart: h})
	c := loongarch.NewUserContext(testIP, testSP)

	if got := c.Execute(cpu, nil); got != user.UserSyscall {
		t.Fatalf("Execute = %v, want %v", got, user.UserSyscall)
	}
	want := []sim.LoongArchEntry{
		{ERA: testIP, EUEN: 0},
		{ERA: testIP, EUEN: 1},
	}
	if diff := cmp.Diff(want, h.Entries()); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
	if !c.FpuState().Live() {
		t.Errorf("FPU state not live after first use")
	}
	if got := c.FpuState().F[0]; got != 0x4000_0000_0000_0000 {
		t.Errorf("saved f0 = %#x, want 0x4000000000000000", got)
	}

	// The unit stays enabled.
	if got := c.Execute(cpu, nil); got != user.UserSyscall {
		t.Fatalf("second Execute = %v, want %v", got, user.UserSyscall)
	}
	if got := cpu.Stats().FPUActivations; got != 1 {
		t.Errorf("FPUActivations = %d, want 1", got)
	}
}

func TestPageFaultFlushesTLB(t *testing.T) {
	for _, e := range []loongarch.Exception{
		loongarch.ExcLoadPageFault,
		loongarch.ExcStorePageFault,
		loongarch.ExcFetchPageFault,
		loongarch.ExcPageModifyFault,
		loongarch.ExcPageNonReadableFault,
		loongarch.ExcPageNonExecutableFault,
		loongarch.ExcPagePrivilegeIllegal,
	} {
		t.Run(e.String(), func(t *testing.T) {
			const addr = 0x4000_1234
			h := sim.NewLoongArchHart(sim.LoongArchStep{Exception: e, BADV: addr})
			cpu := newCPU(t, loongarch.Config{Hart: h})
			c := loongarch.NewUserContext(testIP, testSP)

			if got := c.Execute(cpu, nil); got != user.UserException {
				t.Fatalf("Execute = %v, want %v", got, user.UserException)
			}
			wantOps := []sim.LoongArchTLBOp{{Op: loongarch.InvTLBAddr, VA: addr}}
			if diff := cmp.Diff(wantOps, h.TLBOps()); diff != "" {
				t.Errorf("TLB ops mismatch (-want +got):\n%s", diff)
			}
			wantInfo := loongarch.CpuExceptionInfo{Code: e, PageFaultAddr: addr}
			if diff := cmp.Diff(wantInfo, *c.TrapInformation()); diff != "" {
				t.Errorf("TrapInformation mismatch (-want +got):\n%s", diff)
			}
			if got := c.InstructionPointer(); got != testIP {
				t.Errorf("InstructionPointer = %#x, want %#x", got, testIP)
			}
			if !h.InterruptsEnabled() {
				t.Errorf("interrupts masked after Execute")
			}
		})
	}
}

func TestInstructionFaults(t *testing.T) {
	for _, tc := range []struct {
		name string
		step sim.LoongArchStep
		want loongarch.CpuExceptionInfo
	}{
		{
			name: "not exist",
			step: sim.LoongArchStep{Exception: loongarch.ExcInstructionNotExist, BADI: 0x002a_0000},
			want: loongarch.CpuExceptionInfo{Code: loongarch.ExcInstructionNotExist, IllegalInstruction: 0x002a_0000},
		},
		{
			name: "unaligned",
			step: sim.LoongArchStep{Exception: loongarch.ExcAddressNotAligned, BADV: 0x4001, BADI: 0x2880_0000},
			want: loongarch.CpuExceptionInfo{Code: loongarch.ExcAddressNotAligned, PageFaultAddr: 0x4001, IllegalInstruction: 0x2880_0000},
		},
		{
			name: "address error",
			step: sim.LoongArchStep{Exception: loongarch.ExcAddressError, Subcode: 1, BADV: 0xffff_0000_0000_0000},
			want: loongarch.CpuExceptionInfo{Code: loongarch.ExcAddressError, ErrorCode: 1, PageFaultAddr: 0xffff_0000_0000_0000},
		},
		{
			name: "breakpoint",
			step: sim.LoongArchStep{Exception: loongarch.ExcBreakpoint, BADI: 0x002a_0000},
			want: loongarch.CpuExceptionInfo{Code: loongarch.ExcBreakpoint, IllegalInstruction: 0x002a_0000},
		},
		{
			name: "privileged",
			step: sim.LoongArchStep{Exception: loongarch.ExcInstructionPrivilegeIllegal, BADI: 0x0648_3800},
			want: loongarch.CpuExceptionInfo{Code: loongarch.ExcInstructionPrivilegeIllegal, IllegalInstruction: 0x0648_3800},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := sim.NewLoongArchHart(tc.step)
			cpu := newCPU(t, loongarch.Config{Hart: h})
			c := loongarch.NewUserContext(testIP, testSP)
			if got := c.Execute(cpu, nil); got != user.UserException {
				t.Fatalf("Execute = %v, want %v", got, user.UserException)
			}
			if diff := cmp.Diff(tc.want, *c.TrapInformation()); diff != "" {
				t.Errorf("TrapInformation mismatch (-want +got):\n%s", diff)
			}
			if ops := h.TLBOps(); len(ops) != 0 {
				t.Errorf("unexpected TLB ops %v", ops)
			}
		})
	}
}

func TestKernelEventAfterTimer(t *testing.T) {
	timer := sim.LoongArchStep{Interrupts: 1 << loongarch.IntTimer}
	h := sim.NewLoongArchHart(timer, timer, syscall)
	ticks := 0
	cpu := newCPU(t, loongarch.Config{Hart: h, Timer: func() { ticks++ }})
	c := loongarch.NewUserContext(testIP, testSP)

	if got := c.Execute(cpu, func() bool { return true }); got != user.KernelEvent {
		t.Fatalf("Execute = %v, want %v", got, user.KernelEvent)
	}
	if ticks != 1 || h.TimerAcks() != 1 {
		t.Errorf("ticks = %d, acks = %d, want 1, 1", ticks, h.TimerAcks())
	}
	if !h.InterruptsEnabled() {
		t.Errorf("interrupts masked after Execute")
	}

	// Without pending kernel work the thread keeps running.
	if got := c.Execute(cpu, func() bool { return false }); got != user.UserSyscall {
		t.Fatalf("Execute = %v, want %v", got, user.UserSyscall)
	}
	want := loongarch.Stats{
		UserEntries:  3,
		Syscalls:     1,
		TimerTicks:   2,
		KernelEvents: 1,
	}
	if diff := cmp.Diff(want, cpu.Stats()); diff != "" {
		t.Errorf("Stats mismatch (-want +got):\n%s", diff)
	}
}

func TestExternalInterrupt(t *testing.T) {
	eio, err := sim.NewEIOINTC(1)
	if err != nil {
		t.Fatalf("NewEIOINTC: %v", err)
	}
	t.Cleanup(func() { eio.Close() })
	pic, err := sim.NewPCHPIC(eio)
	if err != nil {
		t.Fatalf("NewPCHPIC: %v", err)
	}
	t.Cleanup(func() { pic.Close() })

	ctrl := loongarch.NewIrqCtrl(loongarch.NewEIOINTC(eio.Cores()), loongarch.NewPCHPIC(pic.Region()))
	if err := ctrl.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	ctrl.Enable(5)
	ctrl.Enable(9)

	lines := irq.NewLines(ctrl.NumSources())
	var got []int
	for _, n := range []int{5, 9} {
		n := n
		l, err := lines.AllocSpecific(n)
		if err != nil {
			t.Fatalf("AllocSpecific(%d): %v", n, err)
		}
		l.OnActive(func(f irq.Frame) {
			if !f.FromUser() || f.InstructionPointer() != testIP {
				t.Errorf("line %d: frame from user %t at %#x", n, f.FromUser(), f.InstructionPointer())
			}
			got = append(got, n)
		})
	}

	h := sim.NewLoongArchHart(sim.LoongArchStep{
		Interrupts: 1 << loongarch.IntHWI0,
		Before: func() {
			pic.Raise(5)
			pic.Raise(9)
		},
	}, syscall)
	cpu := newCPU(t, loongarch.Config{Hart: h, Controller: ctrl, Lines: lines})
	c := loongarch.NewUserContext(testIP, testSP)

	if r := c.Execute(cpu, nil); r != user.UserSyscall {
		t.Fatalf("Execute = %v, want %v", r, user.UserSyscall)
	}
	if diff := cmp.Diff([]int{9, 5}, got); diff != "" {
		t.Errorf("dispatch order mismatch (-want +got):\n%s", diff)
	}
	if p := eio.Pending(0); p != [4]uint64{} {
		t.Errorf("status words after completion = %#x, want zero", p)
	}
	if n := cpu.Stats().ExternalIRQs; n != 2 {
		t.Errorf("ExternalIRQs = %d, want 2", n)
	}
}

func TestFatalTraps(t *testing.T) {
	for _, tc := range []struct {
		name string
		step sim.LoongArchStep
	}{
		{"machine error", sim.LoongArchStep{MachineError: true}},
		{"unknown exception", sim.LoongArchStep{Exception: 0x30}},
		{"tlb refill", sim.LoongArchStep{Exception: loongarch.ExcTLBRefill}},
		{"ipi", sim.LoongArchStep{Interrupts: 1 << loongarch.IntIPI}},
		{"software interrupt", sim.LoongArchStep{Interrupts: 1 << loongarch.IntSWI0}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := sim.NewLoongArchHart(tc.step)
			cpu := newCPU(t, loongarch.Config{Hart: h})
			c := loongarch.NewUserContext(testIP, testSP)
			mustPanic(t, "Execute", func() { c.Execute(cpu, nil) })
			if !h.InterruptsEnabled() {
				t.Errorf("interrupts masked after panic")
			}
		})
	}
}

func TestNewCPUChecksAddressWidth(t *testing.T) {
	h := sim.NewLoongArchHart()
	h.SetCPUCFG1(loongarch.MakeCPUCFG1(40, 48))
	if _, err := loongarch.NewCPU(loongarch.Config{Hart: h}); err == nil {
		t.Errorf("NewCPU accepted a 40-bit physical address space")
	}
	if _, err := loongarch.NewCPU(loongarch.Config{}); err == nil {
		t.Errorf("NewCPU accepted a nil hart")
	}
}

func TestAsTrapFrame(t *testing.T) {
	c := loongarch.NewUserContext(testIP, testSP)
	c.GeneralRegs().Set(loongarch.S0, 7)
	f := c.AsTrapFrame()
	if f.InstructionPointer() != testIP || f.StackPointer() != testSP || !f.FromUser() {
		t.Errorf("frame = ip %#x sp %#x user %t", f.InstructionPointer(), f.StackPointer(), f.FromUser())
	}
	if got := f.General.Get(loongarch.S0); got != 7 {
		t.Errorf("frame s0 = %d, want 7", got)
	}

	// The frame is a copy.
	f.ERA = 0
	if c.InstructionPointer() != testIP {
		t.Errorf("frame aliases the context")
	}
}

var (
	faultHandlerOnce sync.Once
	faultHook        func(*loongarch.CpuExceptionInfo) error
)

// setFaultHook routes the process-wide user page fault handler to fn for
// the duration of the test.
func setFaultHook(t *testing.T, fn func(*loongarch.CpuExceptionInfo) error) {
	faultHandlerOnce.Do(func() {
		loongarch.InjectUserPageFaultHandler(func(info *loongarch.CpuExceptionInfo) error {
			return faultHook(info)
		})
	})
	faultHook = fn
	t.Cleanup(func() { faultHook = nil })
}

func TestKernelTrapUserPageFault(t *testing.T) {
	var got []loongarch.CpuExceptionInfo
	setFaultHook(t, func(info *loongarch.CpuExceptionInfo) error {
		got = append(got, *info)
		return nil
	})
	h := sim.NewLoongArchHart()
	cpu := newCPU(t, loongarch.Config{Hart: h})
	f := &loongarch.TrapFrame{ERA: 0x9000_0000_0020_0000}

	h.TakeTrap(sim.LoongArchStep{Exception: loongarch.ExcStorePageFault, BADV: 0x1_2000})
	cpu.HandleKernelTrap(f)
	want := []loongarch.CpuExceptionInfo{{Code: loongarch.ExcStorePageFault, PageFaultAddr: 0x1_2000}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("handler calls mismatch (-want +got):\n%s", diff)
	}

	if loongarch.InjectUserPageFaultHandler(func(*loongarch.CpuExceptionInfo) error { return nil }) {
		t.Errorf("second handler was installed")
	}
}

func TestKernelTrapFatal(t *testing.T) {
	setFaultHook(t, func(*loongarch.CpuExceptionInfo) error {
		return errors.New("no mapping")
	})
	h := sim.NewLoongArchHart()
	cpu := newCPU(t, loongarch.Config{Hart: h})
	f := &loongarch.TrapFrame{ERA: 0x9000_0000_0020_0000}

	h.TakeTrap(sim.LoongArchStep{Exception: loongarch.ExcLoadPageFault, BADV: 0x1_2000})
	mustPanic(t, "failed user fault", func() { cpu.HandleKernelTrap(f) })

	h.TakeTrap(sim.LoongArchStep{Exception: loongarch.ExcLoadPageFault, BADV: 0x9000_0000_0000_0000})
	mustPanic(t, "kernel address fault", func() { cpu.HandleKernelTrap(f) })

	h.TakeTrap(sim.LoongArchStep{Exception: loongarch.ExcInstructionNotExist})
	mustPanic(t, "kernel illegal instruction", func() { cpu.HandleKernelTrap(f) })

	h.TakeTrap(sim.LoongArchStep{MachineError: true})
	mustPanic(t, "machine error", func() { cpu.HandleKernelTrap(f) })
}

func TestKernelInterrupted(t *testing.T) {
	h := sim.NewLoongArchHart()
	var (
		cpu  *loongarch.CPU
		seen []bool
	)
	cpu = newCPU(t, loongarch.Config{Hart: h, Timer: func() {
		seen = append(seen, cpu.IsKernelInterrupted())
	}})

	h.TakeTrap(sim.LoongArchStep{Interrupts: 1 << loongarch.IntTimer})
	cpu.HandleKernelTrap(&loongarch.TrapFrame{})
	if diff := cmp.Diff([]bool{true}, seen); diff != "" {
		t.Errorf("IsKernelInterrupted in handler mismatch (-want +got):\n%s", diff)
	}
	if cpu.IsKernelInterrupted() {
		t.Errorf("IsKernelInterrupted after handler = true")
	}
}
