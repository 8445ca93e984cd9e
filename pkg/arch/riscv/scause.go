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

import "fmt"

const scauseInterrupt = 1 << 63

// Exception is a synchronous trap cause.
type Exception uint8

// Exception codes.
const (
	ExcInstructionMisaligned Exception = 0
	ExcInstructionFault      Exception = 1
	ExcIllegalInstruction    Exception = 2
	ExcBreakpoint            Exception = 3
	ExcLoadMisaligned        Exception = 4
	ExcLoadFault             Exception = 5
	ExcStoreMisaligned       Exception = 6
	ExcStoreFault            Exception = 7
	ExcUserEnvCall           Exception = 8
	ExcSupervisorEnvCall     Exception = 9
	ExcInstructionPageFault  Exception = 12
	ExcLoadPageFault         Exception = 13
	ExcStorePageFault        Exception = 15
)

var exceptionNames = map[Exception]string{
	ExcInstructionMisaligned: "InstructionMisaligned",
	ExcInstructionFault:      "InstructionFault",
	ExcIllegalInstruction:    "IllegalInstruction",
	ExcBreakpoint:            "Breakpoint",
	ExcLoadMisaligned:        "LoadMisaligned",
	ExcLoadFault:             "LoadFault",
	ExcStoreMisaligned:       "StoreMisaligned",
	ExcStoreFault:            "StoreFault",
	ExcUserEnvCall:           "UserEnvCall",
	ExcSupervisorEnvCall:     "SupervisorEnvCall",
	ExcInstructionPageFault:  "InstructionPageFault",
	ExcLoadPageFault:         "LoadPageFault",
	ExcStorePageFault:        "StorePageFault",
}

// String implements fmt.Stringer.String.
func (e Exception) String() string {
	if n, ok := exceptionNames[e]; ok {
		return n
	}
	return fmt.Sprintf("Exception(%d)", uint8(e))
}

// IsPageFault returns true for faults raised by the page table walker.
func (e Exception) IsPageFault() bool {
	return e == ExcInstructionPageFault || e == ExcLoadPageFault || e == ExcStorePageFault
}

// IsAccessFault returns true for physical memory protection faults.
func (e Exception) IsAccessFault() bool {
	return e == ExcInstructionFault || e == ExcLoadFault || e == ExcStoreFault
}

// Interrupt is an asynchronous trap cause.
type Interrupt uint8

// Supervisor interrupts.
const (
	IntSoftware Interrupt = 1
	IntTimer    Interrupt = 5
	IntExternal Interrupt = 9
)

// String implements fmt.Stringer.String.
func (i Interrupt) String() string {
	switch i {
	case IntSoftware:
		return "SupervisorSoft"
	case IntTimer:
		return "SupervisorTimer"
	case IntExternal:
		return "SupervisorExternal"
	default:
		return fmt.Sprintf("Interrupt(%d)", uint8(i))
	}
}

// TrapKind classifies a trap.
type TrapKind int

// Trap kinds.
const (
	TrapUnknown TrapKind = iota
	TrapException
	TrapInterrupt
)

// Trap is a decoded scause.
type Trap struct {
	Kind      TrapKind
	Exception Exception
	Interrupt Interrupt
}

// String implements fmt.Stringer.String.
func (t Trap) String() string {
	switch t.Kind {
	case TrapException:
		return t.Exception.String()
	case TrapInterrupt:
		return t.Interrupt.String()
	default:
		return "Unknown"
	}
}

// TrapRegs is the cause state latched by a trap.
type TrapRegs struct {
	SCause uint64
	STval  uint64
}

// DecodeSCause decodes a trap cause.
func DecodeSCause(scause uint64) Trap {
	code := scause &^ scauseInterrupt
	if scause&scauseInterrupt != 0 {
		switch i := Interrupt(code); i {
		case IntSoftware, IntTimer, IntExternal:
			return Trap{Kind: TrapInterrupt, Interrupt: i}
		}
		return Trap{Kind: TrapUnknown}
	}
	if code > 0xff {
		return Trap{Kind: TrapUnknown}
	}
	e := Exception(code)
	if _, ok := exceptionNames[e]; !ok {
		return Trap{Kind: TrapUnknown, Exception: e}
	}
	return Trap{Kind: TrapException, Exception: e}
}

// MakeExceptionCause returns the scause value for e.
func MakeExceptionCause(e Exception) uint64 {
	return uint64(e)
}

// MakeInterruptCause returns the scause value for i.
func MakeInterruptCause(i Interrupt) uint64 {
	return scauseInterrupt | uint64(i)
}

// Major opcodes of floating-point instructions.
const (
	opLoadFP  = 0x07
	opStoreFP = 0x27
	opMAdd    = 0x43
	opMSub    = 0x47
	opNMSub   = 0x4b
	opNMAdd   = 0x4f
	opFP      = 0x53
	opSystem  = 0x73

	csrFFlags = 0x001
	csrFCSR   = 0x003
)

// IsFloatingPoint returns true if insn, as reported in stval for an illegal
// instruction trap, uses the floating-point unit.
func IsFloatingPoint(insn uint32) bool {
	if insn&0x3 != 0x3 {
		// Compressed: C.FLD and C.FSD in quadrant 0, C.FLDSP and
		// C.FSDSP in quadrant 2.
		quadrant := insn & 0x3
		funct3 := (insn >> 13) & 0x7
		return (quadrant == 0 || quadrant == 2) && (funct3 == 1 || funct3 == 5)
	}
	switch insn & 0x7f {
	case opLoadFP, opStoreFP, opMAdd, opMSub, opNMSub, opNMAdd, opFP:
		return true
	case opSystem:
		funct3 := (insn >> 12) & 0x7
		csr := insn >> 20
		return funct3 != 0 && funct3 != 4 && csr >= csrFFlags && csr <= csrFCSR
	}
	return false
}
