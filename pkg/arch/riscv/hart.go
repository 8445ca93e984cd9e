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

// Hart is the per-core hardware used by the dispatcher. A kernel build backs
// it with CSR accesses and the trap return path; tests back it with a
// scripted model.
type Hart interface {
	FPU
	TLB

	// EnterUser restores regs, returns to user mode (sret) and comes back
	// at the next trap with regs holding the user state at that point.
	// The hardware sets the FS field of regs.SStatus to Dirty if the
	// thread wrote a floating-point register. Interrupts are masked on
	// return, as on trap entry.
	EnterUser(regs *RawRegs)

	// TrapRegs reads scause and stval.
	TrapRegs() TrapRegs

	// SetInterrupts sets sstatus.SIE.
	SetInterrupts(enabled bool)

	// AckTimer clears a pending timer interrupt by moving the next
	// deadline out.
	AckTimer()
}
