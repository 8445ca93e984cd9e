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

package sim

import (
	"fmt"

	"github.com/kernhal/kernhal/pkg/arch/riscv"
	"github.com/kernhal/kernhal/pkg/sync"
)

// FLDInstruction is the encoding of fld f0, 0(a0), reported in stval when a
// scripted step touches the FPU while it is off.
const FLDInstruction = 0x0005_3007

// RISCVStep is one trap in a scripted user program.
type RISCVStep struct {
	// Exception is the exception raised. It is ignored if Interrupt is
	// set.
	Exception riscv.Exception

	// Interrupt, if nonzero, makes the trap an interrupt.
	Interrupt riscv.Interrupt

	// Cause, if nonzero, is latched verbatim as scause.
	Cause uint64

	// STval is latched with the trap.
	STval uint64

	// UsesFPU marks a step that writes floating-point registers. If the
	// thread has the FPU off, the hart raises an illegal instruction trap
	// for FLDInstruction instead, and the step runs on the next entry.
	// Otherwise FS becomes Dirty.
	UsesFPU bool

	// Run, if set, is what the user program does before trapping.
	Run func(regs *riscv.RawRegs, fp *riscv.FpuState)

	// Before, if set, is called as the trap is taken.
	Before func()
}

// RISCVFence is a recorded sfence.vma.
type RISCVFence struct {
	VA  uint64
	All bool
}

// RISCVEntry records the state a user entry was made with.
type RISCVEntry struct {
	SEPC uint64
	FS   riscv.FS
}

// RISCVHart is a scripted RISC-V hart implementing riscv.Hart.
type RISCVHart struct {
	mu sync.Mutex

	steps   []RISCVStep
	trap    riscv.TrapRegs
	ie      bool
	fp      riscv.FpuState
	fences  []RISCVFence
	entries []RISCVEntry
	acks    int
	saves   int
}

// NewRISCVHart returns a hart that will take the given traps in order.
func NewRISCVHart(steps ...RISCVStep) *RISCVHart {
	return &RISCVHart{steps: steps, ie: true}
}

// Push appends steps to the script.
func (h *RISCVHart) Push(steps ...RISCVStep) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.steps = append(h.steps, steps...)
}

// Remaining returns the number of steps not yet run.
func (h *RISCVHart) Remaining() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.steps)
}

func (h *RISCVHart) latch(s RISCVStep) {
	switch {
	case s.Cause != 0:
		h.trap = riscv.TrapRegs{SCause: s.Cause, STval: s.STval}
	case s.Interrupt != 0:
		h.trap = riscv.TrapRegs{SCause: riscv.MakeInterruptCause(s.Interrupt)}
	default:
		h.trap = riscv.TrapRegs{SCause: riscv.MakeExceptionCause(s.Exception), STval: s.STval}
	}
}

// EnterUser implements riscv.Hart.EnterUser. It panics if the script is
// exhausted.
func (h *RISCVHart) EnterUser(regs *riscv.RawRegs) {
	h.mu.Lock()
	if len(h.steps) == 0 {
		h.mu.Unlock()
		panic(fmt.Sprintf("scripted hart: user entry at sepc %#x with no steps left", regs.SEPC))
	}
	h.entries = append(h.entries, RISCVEntry{SEPC: regs.SEPC, FS: regs.SStatus.FS()})
	s := h.steps[0]
	if s.UsesFPU && regs.SStatus.FS() == riscv.FSOff {
		h.latch(RISCVStep{Exception: riscv.ExcIllegalInstruction, STval: FLDInstruction})
		h.ie = false
		h.mu.Unlock()
		return
	}
	h.steps = h.steps[1:]
	if s.Run != nil {
		s.Run(regs, &h.fp)
	}
	if s.UsesFPU {
		regs.SStatus = regs.SStatus.WithFS(riscv.FSDirty)
	}
	h.latch(s)
	h.ie = false
	h.mu.Unlock()

	if s.Before != nil {
		s.Before()
	}
}

// TakeTrap latches the cause of s as if it had been raised in kernel mode.
func (h *RISCVHart) TakeTrap(s RISCVStep) {
	h.mu.Lock()
	h.latch(s)
	h.ie = false
	h.mu.Unlock()
	if s.Before != nil {
		s.Before()
	}
}

// TrapRegs implements riscv.Hart.TrapRegs.
func (h *RISCVHart) TrapRegs() riscv.TrapRegs {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.trap
}

// SetInterrupts implements riscv.Hart.SetInterrupts.
func (h *RISCVHart) SetInterrupts(enabled bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ie = enabled
}

// InterruptsEnabled returns sstatus.SIE.
func (h *RISCVHart) InterruptsEnabled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ie
}

// AckTimer implements riscv.Hart.AckTimer.
func (h *RISCVHart) AckTimer() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.acks++
}

// TimerAcks returns the number of timer acknowledgements.
func (h *RISCVHart) TimerAcks() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.acks
}

// SFenceVMA implements riscv.TLB.SFenceVMA.
func (h *RISCVHart) SFenceVMA(va uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fences = append(h.fences, RISCVFence{VA: va})
}

// SFenceVMAAll implements riscv.TLB.SFenceVMAAll.
func (h *RISCVHart) SFenceVMAAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fences = append(h.fences, RISCVFence{All: true})
}

// Fences returns the recorded sfence.vma instructions.
func (h *RISCVHart) Fences() []RISCVFence {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]RISCVFence(nil), h.fences...)
}

// Entries returns the recorded user entries.
func (h *RISCVHart) Entries() []RISCVEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]RISCVEntry(nil), h.entries...)
}

// FPSaves returns the number of floating-point register saves.
func (h *RISCVHart) FPSaves() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.saves
}

// SaveFP implements riscv.FPU.SaveFP.
func (h *RISCVHart) SaveFP(s *riscv.FpuState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.saves++
	*s = h.fp
}

// RestoreFP implements riscv.FPU.RestoreFP.
func (h *RISCVHart) RestoreFP(s *riscv.FpuState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fp = *s
}

var _ riscv.Hart = (*RISCVHart)(nil)
