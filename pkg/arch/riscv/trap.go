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

	"github.com/kernhal/kernhal/pkg/irq"
	"github.com/kernhal/kernhal/pkg/sync"
)

// TrapFrame is the register state saved on a trap from kernel mode, and the
// view of user registers given to interrupt callbacks.
type TrapFrame struct {
	General GeneralRegs
	SStatus SStatus
	SEPC    uint64
}

// InstructionPointer implements irq.Frame.InstructionPointer.
func (f *TrapFrame) InstructionPointer() uintptr {
	return uintptr(f.SEPC)
}

// StackPointer implements irq.Frame.StackPointer.
func (f *TrapFrame) StackPointer() uintptr {
	return uintptr(f.General.Get(SP))
}

// FromUser implements irq.Frame.FromUser.
func (f *TrapFrame) FromUser() bool {
	return f.SStatus.FromUser()
}

var _ irq.Frame = (*TrapFrame)(nil)

// PageFaultHandler resolves a kernel-mode fault on a user address.
type PageFaultHandler func(*CpuExceptionInfo) error

var userPageFaultHandler sync.Lazy[PageFaultHandler]

// InjectUserPageFaultHandler installs the handler for kernel-mode faults on
// user addresses. Only the first call has an effect.
func InjectUserPageFaultHandler(h PageFaultHandler) bool {
	return userPageFaultHandler.Install(h, nil)
}

// HandleKernelTrap handles a trap taken in kernel mode with registers f.
//
// The kernel itself may use the FPU: an illegal instruction trap with the
// unit off turns it on in f and retries.
func (c *CPU) HandleKernelTrap(f *TrapFrame) {
	regs := c.hart.TrapRegs()
	t := DecodeSCause(regs.SCause)
	switch t.Kind {
	case TrapInterrupt:
		c.kernelInterrupted.Store(true)
		defer c.kernelInterrupted.Store(false)
		c.handleInterrupt(t.Interrupt, f)

	case TrapException:
		e := t.Exception
		switch {
		case e == ExcIllegalInstruction && f.SStatus.FS() == FSOff:
			f.SStatus = f.SStatus.WithFS(FSInitial)

		case e.IsPageFault() && regs.STval < MaxUserspaceVaddr:
			h, ok := userPageFaultHandler.Load()
			if !ok {
				panic(fmt.Sprintf("hart %d: kernel fault on user address %#x at sepc %#x with no handler", c.id, regs.STval, f.SEPC))
			}
			info := &CpuExceptionInfo{
				Code:          e,
				PageFaultAddr: regs.STval,
			}
			if err := h(info); err != nil {
				panic(fmt.Sprintf("hart %d: kernel fault on user address %#x at sepc %#x: %v", c.id, regs.STval, f.SEPC, err))
			}

		default:
			panic(fmt.Sprintf("hart %d: kernel exception %v at sepc %#x, stval %#x", c.id, e, f.SEPC, regs.STval))
		}

	default:
		panic(fmt.Sprintf("hart %d: unknown kernel trap, scause %#x, sepc %#x", c.id, regs.SCause, f.SEPC))
	}
}
