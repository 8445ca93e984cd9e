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

package loongarch

import (
	"fmt"

	"github.com/kernhal/kernhal/pkg/hostarch"
	"github.com/kernhal/kernhal/pkg/user"
)

// CpuExceptionInfo describes the last exception surfaced to the caller of
// Execute.
type CpuExceptionInfo struct {
	// Code is the exception code.
	Code Exception

	// ErrorCode is the exception subcode (ESTAT.EsubCode).
	ErrorCode uint64

	// PageFaultAddr is the faulting address (BADV) for memory faults and
	// address errors.
	PageFaultAddr uint64

	// IllegalInstruction is the faulting instruction (BADI) for
	// instruction faults.
	IllegalInstruction uint32
}

// UserContext is the state of one user thread.
type UserContext struct {
	raw  RawRegs
	fpu  FpuState
	info CpuExceptionInfo
	trap Trap
}

// NewUserContext returns a context that enters user mode at ip with stack
// sp. The FPU starts disabled and is enabled on first use.
func NewUserContext(ip, sp uintptr) *UserContext {
	c := &UserContext{}
	c.raw.PRMD = PRMDUser
	c.raw.ERA = uint64(ip)
	c.raw.General.Set(SP, uint64(sp))
	return c
}

// Fork returns a copy of c for a new thread.
func (c *UserContext) Fork() *UserContext {
	n := *c
	n.fpu = c.fpu.Fork()
	return &n
}

// Execute runs the thread until it makes a syscall, raises an exception that
// must be handled by the caller, or hasKernelEvent reports pending kernel
// work after a trap that was handled here.
//
// Execute must be called on cpu's core. It returns with local interrupts
// enabled.
func (c *UserContext) Execute(cpu *CPU, hasKernelEvent func() bool) user.ReturnReason {
	h := cpu.hart
	defer h.SetInterrupts(true)

	for {
		cpu.userEntries.Add(1)
		c.fpu.Restore(h)
		h.EnterUser(&c.raw)
		c.fpu.Save(h)

		// Interrupts are masked from here until the next entry or return.
		regs := h.TrapRegs()
		c.trap = DecodeESTAT(regs, h.InterruptLines())
		if r, done := cpu.handleUserTrap(c, regs); done {
			return r
		}
		if hasKernelEvent != nil && hasKernelEvent() {
			cpu.kernelEvents.Add(1)
			return user.KernelEvent
		}
	}
}

// handleUserTrap handles c.trap. It returns true if Execute must return r.
func (cpu *CPU) handleUserTrap(c *UserContext, regs TrapRegs) (r user.ReturnReason, done bool) {
	t := c.trap
	switch t.Kind {
	case TrapException:
	case TrapInterrupt:
		f := c.AsTrapFrame()
		cpu.handleInterrupt(t.Interrupt, &f)
		return 0, false
	case TrapMachineError:
		panic(fmt.Sprintf("cpu %d: machine error, badv %#x, badi %#x, era %#x", cpu.id, regs.BADV, regs.BADI, c.raw.ERA))
	default:
		panic(fmt.Sprintf("cpu %d: unknown trap, estat %#x, badv %#x, badi %#x, era %#x", cpu.id, regs.ESTAT, regs.BADV, regs.BADI, c.raw.ERA))
	}

	e := t.Exception
	switch {
	case e == ExcSyscall:
		c.raw.ERA += 4
		cpu.syscalls.Add(1)
		return user.UserSyscall, true

	case e.IsPageFault():
		// The walker may have cached the entry that faulted; drop it
		// before the handler repairs the mapping.
		FlushAddr(cpu.hart, hostarch.Addr(regs.BADV))
		c.info = CpuExceptionInfo{
			Code:          e,
			ErrorCode:     uint64(t.Subcode),
			PageFaultAddr: regs.BADV,
		}
		cpu.exceptions.Add(1)
		return user.UserException, true

	case e == ExcFloatingPointUnavailable:
		c.enableFPU()
		cpu.fpuActivations.Add(1)
		return 0, false

	case e == ExcAddressError,
		e == ExcAddressNotAligned,
		e == ExcBoundsCheckFault,
		e == ExcBreakpoint,
		e == ExcInstructionNotExist,
		e == ExcInstructionPrivilegeIllegal,
		e == ExcFloatingPointError,
		e == ExcWatchpoint,
		e == ExcSIMDUnavailable,
		e == ExcASIMDUnavailable,
		e == ExcBinaryTranslationUnavailable:
		c.info = CpuExceptionInfo{
			Code:               e,
			ErrorCode:          uint64(t.Subcode),
			PageFaultAddr:      regs.BADV,
			IllegalInstruction: uint32(regs.BADI),
		}
		faultLog.Warningf("cpu %d: user exception %v at era %#x, badv %#x, badi %#08x", cpu.id, t, c.raw.ERA, regs.BADV, regs.BADI)
		cpu.exceptions.Add(1)
		return user.UserException, true

	default:
		panic(fmt.Sprintf("cpu %d: unexpected exception %v from user mode, badv %#x, era %#x", cpu.id, t, regs.BADV, c.raw.ERA))
	}
}

// enableFPU turns the FPU on for the thread. A thread that never used it
// starts from zeroed registers.
func (c *UserContext) enableFPU() {
	c.raw.EUEN |= euenFPE
	if !c.fpu.Live() {
		c.fpu.activate()
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
		PRMD:    c.raw.PRMD,
		ERA:     c.raw.ERA,
		EUEN:    c.raw.EUEN,
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

// Reg returns the register with the given ABI name.
func (c *UserContext) Reg(name string) (uint64, bool) {
	r, ok := RegByName(name)
	if !ok {
		return 0, false
	}
	return c.raw.General.Get(r), true
}

// SetReg sets the register with the given ABI name.
func (c *UserContext) SetReg(name string, v uint64) bool {
	r, ok := RegByName(name)
	if ok {
		c.raw.General.Set(r, v)
	}
	return ok
}

// InstructionPointer implements user.Context.InstructionPointer.
func (c *UserContext) InstructionPointer() uintptr {
	return uintptr(c.raw.ERA)
}

// SetInstructionPointer implements user.Context.SetInstructionPointer.
func (c *UserContext) SetInstructionPointer(ip uintptr) {
	c.raw.ERA = uint64(ip)
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

// ActivateTLSPointer implements user.Context.ActivateTLSPointer. The thread
// pointer is a general register, restored on entry.
func (c *UserContext) ActivateTLSPointer() {}

var _ user.Context = (*UserContext)(nil)
