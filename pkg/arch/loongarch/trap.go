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

	"github.com/kernhal/kernhal/pkg/irq"
	"github.com/kernhal/kernhal/pkg/sync"
)

// TrapFrame is the register state saved on a trap from kernel mode, and the
// view of user registers given to interrupt callbacks.
type TrapFrame struct {
	General GeneralRegs
	PRMD    uint64
	ERA     uint64
	EUEN    uint64
}

// InstructionPointer implements irq.Frame.InstructionPointer.
func (f *TrapFrame) InstructionPointer() uintptr {
	return uintptr(f.ERA)
}

// StackPointer implements irq.Frame.StackPointer.
func (f *TrapFrame) StackPointer() uintptr {
	return uintptr(f.General.Get(SP))
}

// FromUser implements irq.Frame.FromUser.
func (f *TrapFrame) FromUser() bool {
	return f.PRMD&prmdPPLVMask == 3
}

var _ irq.Frame = (*TrapFrame)(nil)

// PageFaultHandler resolves a kernel-mode fault on a user address, as
// taken while copying to or from user memory.
type PageFaultHandler func(*CpuExceptionInfo) error

var userPageFaultHandler sync.Lazy[PageFaultHandler]

// InjectUserPageFaultHandler installs the handler for kernel-mode faults on
// user addresses. Only the first call has an effect.
func InjectUserPageFaultHandler(h PageFaultHandler) bool {
	return userPageFaultHandler.Install(h, nil)
}

// HandleKernelTrap handles a trap taken in kernel mode with registers f.
//
// Interrupts are dispatched with IsKernelInterrupted reporting true. Page
// faults below MaxUserspaceVaddr go to the injected handler; a handler
// failure, like every other kernel exception, is fatal.
func (c *CPU) HandleKernelTrap(f *TrapFrame) {
	regs := c.hart.TrapRegs()
	t := DecodeESTAT(regs, c.hart.InterruptLines())
	switch t.Kind {
	case TrapInterrupt:
		c.kernelInterrupted.Store(true)
		defer c.kernelInterrupted.Store(false)
		c.handleInterrupt(t.Interrupt, f)

	case TrapException:
		if !t.Exception.IsPageFault() || regs.BADV >= MaxUserspaceVaddr {
			panic(fmt.Sprintf("cpu %d: kernel exception %v at era %#x, badv %#x, badi %#x", c.id, t, f.ERA, regs.BADV, regs.BADI))
		}
		h, ok := userPageFaultHandler.Load()
		if !ok {
			panic(fmt.Sprintf("cpu %d: kernel fault on user address %#x at era %#x with no handler", c.id, regs.BADV, f.ERA))
		}
		info := &CpuExceptionInfo{
			Code:          t.Exception,
			ErrorCode:     uint64(t.Subcode),
			PageFaultAddr: regs.BADV,
		}
		if err := h(info); err != nil {
			panic(fmt.Sprintf("cpu %d: kernel fault on user address %#x at era %#x: %v", c.id, regs.BADV, f.ERA, err))
		}

	case TrapMachineError:
		panic(fmt.Sprintf("cpu %d: machine error in kernel, era %#x, badv %#x", c.id, f.ERA, regs.BADV))

	default:
		panic(fmt.Sprintf("cpu %d: unknown kernel trap, estat %#x, era %#x", c.id, regs.ESTAT, f.ERA))
	}
}
