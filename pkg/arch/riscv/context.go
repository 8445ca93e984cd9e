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

package riscv

import (
	"fmt"

	"github.com/kernhal/kernhal/pkg/hostarch"
	"github.com/kernhal/kernhal/pkg/user"
)

// CpuExceptionInfo describes the last exception surfaced to the caller of
// Execute.
type CpuExceptionInfo struct {
	Code Exception

	// PageFaultAddr is stval for memory faults, and sepc for illegal
	// instructions.
	PageFaultAddr uint64

	// ErrorCode is always zero; scause carries no subcode.
	ErrorCode uint64

	// IllegalInstruction is the instruction bits reported in stval for
	// illegal instruction traps.
	IllegalInstruction uint64
}

// UserContext is the state of one user thread.
type UserContext struct {
	raw  RawRegs
	fpu  FpuState
	info CpuExceptionInfo
	trap Trap
}

// NewUserContext returns a context that enters user mode at ip with stack
// sp, with the FPU off.
func NewUserContext(ip, sp uintptr) *UserContext {
	c := &UserContext{}
	c.raw.SStatus = SStatusUser
	c.raw.SEPC = uint64(ip)
	c.raw.General.Set(SP, uint64(sp))
	return c
}

// Fork returns a copy of c for a new thread.
func (c *UserContext) Fork() *UserContext {
	n := *c
	return &n
}

// Execute runs the thread until it makes a syscall, raises an exception that
// must be handled by the caller, or hasKernelEvent reports pending kernel
// work after a trap that was handled here.
//
// Execute must be called on cpu's hart. It returns with interrupts enabled.
func (c *UserContext) Execute(cpu *CPU, hasKernelEvent func() bool) user.ReturnReason {
	h := cpu.hart
	defer h.SetInterrupts(true)

	for {
		cpu.userEntries.Add(1)
		c.fpu.Restore(h, c.raw.SStatus.FS())
		h.EnterUser(&c.raw)
		c.fpu.Save(h, &c.raw.SStatus)

		regs := h.TrapRegs()
		c.trap = DecodeSCause(regs.SCause)
		if r, done := cpu.handleUserTrap(c, regs); done {
			return r
		}
		if hasKernelEvent != nil && hasKernelEvent() {
			cpu.kernelEvents.Add(1)
			return user.KernelEvent
		}
	}
}

func (cpu *CPU) handleUserTrap(c *UserContext, regs TrapRegs) (r user.ReturnReason, done bool) {
	t := c.trap
	switch t.Kind {
	case TrapException:
	case TrapInterrupt:
		f := c.AsTrapFrame()
		cpu.handleInterrupt(t.Interrupt, &f)
		return 0, false
	default:
		panic(fmt.Sprintf("hart %d: unknown trap, scause %#x, stval %#x, sepc %#x", cpu.id, regs.SCause, regs.STval, c.raw.SEPC))
	}

	e := t.Exception
	switch {
	case e == ExcUserEnvCall:
		c.raw.SEPC += 4
		cpu.syscalls.Add(1)
		return user.UserSyscall, true

	case e.IsPageFault(), e.IsAccessFault():
		FlushAddr(cpu.hart, hostarch.Addr(regs.STval))
		c.info = CpuExceptionInfo{
			Code:          e,
			PageFaultAddr: regs.STval,
		}
		cpu.exceptions.Add(1)
		return user.UserException, true

	case e == ExcIllegalInstruction:
		if c.raw.SStatus.FS() == FSOff && IsFloatingPoint(uint32(regs.STval)) {
			c.raw.SStatus = c.raw.SStatus.WithFS(FSInitial)
			c.fpu = FpuState{}
			cpu.fpuActivations.Add(1)
			return 0, false
		}
		c.info = CpuExceptionInfo{
			Code:               e,
			PageFaultAddr:      c.raw.SEPC,
			IllegalInstruction: regs.STval,
		}
		faultLog.Warningf("hart %d: illegal instruction %#08x at sepc %#x", cpu.id, regs.STval, c.raw.SEPC)
		cpu.exceptions.Add(1)
		return user.UserException, true

	case e == ExcInstructionMisaligned,
		e == ExcLoadMisaligned,
		e == ExcStoreMisaligned,
		e == ExcBreakpoint:
		c.info = CpuExceptionInfo{
			Code:          e,
			PageFaultAddr: regs.STval,
		}
		faultLog.Warningf("hart %d: user exception %v at sepc %#x, stval %#x", cpu.id, e, c.raw.SEPC, regs.STval)
		cpu.exceptions.Add(1)
		return user.UserException, true

	default:
		panic(fmt.Sprintf("hart %d: unexpected exception %v from user mode, stval %#x, sepc %#x", cpu.id, e, regs.STval, c.raw.SEPC))
	}
}

// TrapInformation returns the exception recorded by the last Execute that
// returned user.UserException.
func (c *UserContext) TrapInformation() *CpuExceptionInfo {
	return &c.info
}

// LastTrap returns the cause of the most recent trap.
func (c *UserContext) LastTrap() Trap {
	return c.trap
}

// AsTrapFrame returns a copy of the user registers.
func (c *UserContext) AsTrapFrame() TrapFrame {
	return TrapFrame{
		General: c.raw.General,
		SStatus: c.raw.SStatus,
		SEPC:    c.raw.SEPC,
	}
}

// GeneralRegs returns the general-purpose registers.
func (c *UserContext) GeneralRegs() *GeneralRegs {
	return &c.raw.General
}

// FpuState returns the floating-point state.
func (c *UserContext) FpuState() *FpuState {
	return &c.fpu
}

// FS returns the floating-point unit status of the thread.
func (c *UserContext) FS() FS {
	return c.raw.SStatus.FS()
}

// Reg returns the register with the given name.
func (c *UserContext) Reg(name string) (uint64, bool) {
	r, ok := RegByName(name)
	if !ok {
		return 0, false
	}
	return c.raw.General.Get(r), true
}

// SetReg sets the register with the given name.
func (c *UserContext) SetReg(name string, v uint64) bool {
	r, ok := RegByName(name)
	if ok {
		c.raw.General.Set(r, v)
	}
	return ok
}

// InstructionPointer implements user.Context.InstructionPointer.
func (c *UserContext) InstructionPointer() uintptr {
	return uintptr(c.raw.SEPC)
}

// SetInstructionPointer implements user.Context.SetInstructionPointer.
func (c *UserContext) SetInstructionPointer(ip uintptr) {
	c.raw.SEPC = uint64(ip)
}

// StackPointer implements user.Context.StackPointer.
func (c *UserContext) StackPointer() uintptr {
	return uintptr(c.raw.General.Get(SP))
}

// SetStackPointer implements user.Context.SetStackPointer.
func (c *UserContext) SetStackPointer(sp uintptr) {
	c.raw.General.Set(SP, uint64(sp))
}

// SyscallNum implements user.Context.SyscallNum.
func (c *UserContext) SyscallNum() uintptr {
	return uintptr(c.raw.General.Get(A7))
}

// SyscallArgs implements user.Context.SyscallArgs.
func (c *UserContext) SyscallArgs() user.SyscallArguments {
	var args user.SyscallArguments
	for i := range args {
		args[i].Value = uintptr(c.raw.General.Arg(i))
	}
	return args
}

// SyscallRet implements user.Context.SyscallRet.
func (c *UserContext) SyscallRet() uintptr {
	return uintptr(c.raw.General.Get(A0))
}

// SetSyscallRet implements user.Context.SetSyscallRet.
func (c *UserContext) SetSyscallRet(v uintptr) {
	c.raw.General.Set(A0, uint64(v))
}

// TLSPointer implements user.Context.TLSPointer.
func (c *UserContext) TLSPointer() uintptr {
	return uintptr(c.raw.General.Get(TP))
}

// SetTLSPointer implements user.Context.SetTLSPointer.
func (c *UserContext) SetTLSPointer(tls uintptr) {
	c.raw.General.Set(TP, uint64(tls))
}

// ActivateTLSPointer implements user.Context.ActivateTLSPointer.
func (c *UserContext) ActivateTLSPointer() {}

var _ user.Context = (*UserContext)(nil)
