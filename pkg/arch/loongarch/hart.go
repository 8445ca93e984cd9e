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

// Hart is the privileged instruction and CSR surface of one LoongArch core.
//
// A kernel build implements it in assembly; tests and tools use the models
// in pkg/sim.
type Hart interface {
	FPU
	TLB

	// EnterUser restores regs, returns to user mode (ertn) and comes back
	// at the next trap with regs holding the user state at that point.
	// Local interrupts are masked on return, as on trap entry.
	EnterUser(regs *RawRegs)

	// TrapRegs reads the cause registers latched by the last trap.
	TrapRegs() TrapRegs

	// InterruptLines returns ECFG.LIE, the locally enabled sources.
	InterruptLines() uint64

	// SetInterrupts sets CRMD.IE.
	SetInterrupts(enabled bool)

	// AckTimer clears a pending timer interrupt (TICLR.CLR).
	AckTimer()

	// CPUCFG reads a processor configuration word.
	CPUCFG(word uint32) uint32
}

// CPUCFG word 1 fields.
const (
	cpucfg1PALENShift = 4
	cpucfg1VALENShift = 12
	cpucfg1LENMask    = 0xff
)

// DecodeCPUCFG1 extracts the physical and virtual address widths from CPUCFG
// word 1.
func DecodeCPUCFG1(cfg1 uint32) (palen, valen uint) {
	palen = uint((cfg1>>cpucfg1PALENShift)&cpucfg1LENMask) + 1
	valen = uint((cfg1>>cpucfg1VALENShift)&cpucfg1LENMask) + 1
	return palen, valen
}

// MakeCPUCFG1 builds a CPUCFG word 1 reporting the given address widths.
func MakeCPUCFG1(palen, valen uint) uint32 {
	return uint32(palen-1)<<cpucfg1PALENShift | uint32(valen-1)<<cpucfg1VALENShift
}
