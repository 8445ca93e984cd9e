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

	"github.com/kernhal/kernhal/pkg/arch/loongarch"
	"github.com/kernhal/kernhal/pkg/sync"
)

// LoongArchStep is one trap in a scripted user program.
type LoongArchStep struct {
	// Exception is the exception raised. It is ignored if Interrupt is
	// set.
	Exception loongarch.Exception
	Subcode   uint16

	// Interrupts are the ESTAT.IS bits pending at the trap. If nonzero,
	// the trap is an interrupt.
	Interrupts uint64

	// MachineError makes the trap a machine error.
	MachineError bool

	// BADV and BADI are latched with the trap.
	BADV uint64
	BADI uint64

	// UsesFPU marks a step that executes floating-point instructions. If
	// the thread has the FPU disabled, the hart raises a floating-point
	// unavailable exception instead, and the step runs on the next entry.
	UsesFPU bool

	// Run, if set, is what the user program does before trapping. fp is
	// the hardware floating-point register file.
	Run func(regs *loongarch.RawRegs, fp *loongarch.FpuState)

	// Before, if set, is called as the trap is taken, before the kernel
	// sees it. It is used to raise device interrupts.
	Before func()
}

// LoongArchTLBOp is a recorded INVTLB.
type LoongArchTLBOp struct {
	Op   loongarch.InvTLBOp
	ASID uint16
	VA   uint64
}

// LoongArchEntry records the state a user entry was made with.
type LoongArchEntry struct {
	ERA  uint64
	EUEN uint64
}

// LoongArchHart is a scripted LoongArch core implementing loongarch.Hart.
type LoongArchHart struct {
	mu sync.Mutex

	steps   []LoongArchStep
	trap    loongarch.TrapRegs
	lie     uint64
	ie      bool
	cpucfg1 uint32
	fp      loongarch.FpuState
	tlb     []LoongArchTLBOp
	entries []LoongArchEntry
	acks    int
}

// NewLoongArchHart returns a hart that will take the given traps in order.
// It reports 48-bit addresses and has every interrupt line enabled.
func NewLoongArchHart(steps ...LoongArchStep) *LoongArchHart {
	return &LoongArchHart{
		steps:   steps,
		lie:     0x1fff,
		ie:      true,
		cpucfg1: loongarch.MakeCPUCFG1(loongarch.AddressBits, loongarch.AddressBits),
	}
}

// Push appends steps to the script.
func (h *LoongArchHart) Push(steps ...LoongArchStep) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.steps = append(h.steps, steps...)
}

// Remaining returns the number of steps not yet run.
func (h *LoongArchHart) Remaining() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.steps)
}

func (h *LoongArchHart) latch(s LoongArchStep) {
	switch {
	case s.MachineError:
		h.trap = loongarch.TrapRegs{MERR: true, BADV: s.BADV, BADI: s.BADI}
	case s.Interrupts != 0:
		h.trap = loongarch.TrapRegs{ESTAT: loongarch.MakeESTAT(loongarch.ExcInterrupt, 0, s.Interrupts)}
	default:
		h.trap = loongarch.TrapRegs{
			ESTAT: loongarch.MakeESTAT(s.Exception, s.Subcode, 0),
			BADV:  s.BADV,
			BADI:  s.BADI,
		}
	}
}

// EnterUser implements loongarch.Hart.EnterUser. It panics if the script
// is exhausted.
func (h *LoongArchHart) EnterUser(regs *loongarch.RawRegs) {
	h.mu.Lock()
	if len(h.steps) == 0 {
		h.mu.Unlock()
		panic(fmt.Sprintf("scripted hart: user entry at era %#x with no steps left", regs.ERA))
	}
	h.entries = append(h.entries, LoongArchEntry{ERA: regs.ERA, EUEN: regs.EUEN})
	s := h.steps[0]
	if s.UsesFPU && regs.EUEN&1 == 0 {
		h.latch(LoongArchStep{Exception: loongarch.ExcFloatingPointUnavailable})
		h.ie = false
		h.mu.Unlock()
		return
	}
	h.steps = h.steps[1:]
	if s.Run != nil {
		s.Run(regs, &h.fp)
	}
	h.latch(s)
	h.ie = false
	h.mu.Unlock()

	if s.Before != nil {
		s.Before()
	}
}

// TakeTrap latches the cause of s as if it had been raised in kernel mode.
func (h *LoongArchHart) TakeTrap(s LoongArchStep) {
	h.mu.Lock()
	h.latch(s)
	h.ie = false
	h.mu.Unlock()
	if s.Before != nil {
		s.Before()
	}
}

// TrapRegs implements loongarch.Hart.TrapRegs.
func (h *LoongArchHart) TrapRegs() loongarch.TrapRegs {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.trap
}

// InterruptLines implements loongarch.Hart.InterruptLines.
func (h *LoongArchHart) InterruptLines() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lie
}

// SetInterruptLines sets ECFG.LIE.
func (h *LoongArchHart) SetInterruptLines(lie uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lie = lie
}

// SetInterrupts implements loongarch.Hart.SetInterrupts.
func (h *LoongArchHart) SetInterrupts(enabled bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ie = enabled
}

// InterruptsEnabled returns CRMD.IE.
func (h *LoongArchHart) InterruptsEnabled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ie
}

// AckTimer implements loongarch.Hart.AckTimer.
func (h *LoongArchHart) AckTimer() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.acks++
	h.trap.ESTAT &^= 1 << loongarch.IntTimer
}

// TimerAcks returns the number of timer acknowledgements.
func (h *LoongArchHart) TimerAcks() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.acks
}

// CPUCFG implements loongarch.Hart.CPUCFG.
func (h *LoongArchHart) CPUCFG(word uint32) uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if word == 1 {
		return h.cpucfg1
	}
	return 0
}

// SetCPUCFG1 overrides CPUCFG word 1.
func (h *LoongArchHart) SetCPUCFG1(v uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cpucfg1 = v
}

// InvTLB implements loongarch.TLB.InvTLB.
func (h *LoongArchHart) InvTLB(op loongarch.InvTLBOp, asid uint16, va uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tlb = append(h.tlb, LoongArchTLBOp{Op: op, ASID: asid, VA: va})
}

// TLBOps returns the recorded TLB operations.
func (h *LoongArchHart) TLBOps() []LoongArchTLBOp {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]LoongArchTLBOp(nil), h.tlb...)
}

// Entries returns the recorded user entries.
func (h *LoongArchHart) Entries() []LoongArchEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]LoongArchEntry(nil), h.entries...)
}

// SaveFP implements loongarch.FPU.SaveFP.
func (h *LoongArchHart) SaveFP(s *loongarch.FpuState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s.F, s.FCC, s.FCSR = h.fp.F, h.fp.FCC, h.fp.FCSR
}

// RestoreFP implements loongarch.FPU.RestoreFP.
func (h *LoongArchHart) RestoreFP(s *loongarch.FpuState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fp.F, h.fp.FCC, h.fp.FCSR = s.F, s.FCC, s.FCSR
}

var _ loongarch.Hart = (*LoongArchHart)(nil)
