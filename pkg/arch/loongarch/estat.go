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

import "fmt"

// ESTAT fields.
const (
	estatISMask       = 0x1fff
	estatEcodeShift   = 16
	estatEcodeMask    = 0x3f
	estatSubcodeShift = 22
	estatSubcodeMask  = 0x1ff
)

// Exception is an exception code (ESTAT.Ecode).
type Exception uint8

// Exception codes.
const (
	ExcInterrupt                    Exception = 0x0
	ExcLoadPageFault                Exception = 0x1  // PIL
	ExcStorePageFault               Exception = 0x2  // PIS
	ExcFetchPageFault               Exception = 0x3  // PIF
	ExcPageModifyFault              Exception = 0x4  // PME
	ExcPageNonReadableFault         Exception = 0x5  // PNR
	ExcPageNonExecutableFault       Exception = 0x6  // PNX
	ExcPagePrivilegeIllegal         Exception = 0x7  // PPI
	ExcAddressError                 Exception = 0x8  // ADE, subcode selects fetch or memory
	ExcAddressNotAligned            Exception = 0x9  // ALE
	ExcBoundsCheckFault             Exception = 0xa  // BCE
	ExcSyscall                      Exception = 0xb  // SYS
	ExcBreakpoint                   Exception = 0xc  // BRK
	ExcInstructionNotExist          Exception = 0xd  // INE
	ExcInstructionPrivilegeIllegal  Exception = 0xe  // IPE
	ExcFloatingPointUnavailable     Exception = 0xf  // FPD
	ExcSIMDUnavailable              Exception = 0x10 // SXD
	ExcASIMDUnavailable             Exception = 0x11 // ASXD
	ExcFloatingPointError           Exception = 0x12 // FPE
	ExcWatchpoint                   Exception = 0x13 // WPE
	ExcBinaryTranslationUnavailable Exception = 0x14 // BTD
	ExcBinaryTranslationError       Exception = 0x15 // BTE
	ExcGuestPrivilegeSensitive      Exception = 0x16 // GSPR
	ExcHypercall                    Exception = 0x17 // HVC
	ExcGuestCSRChange               Exception = 0x18 // GCM
	ExcTLBRefill                    Exception = 0x3f // TLBR
)

var exceptionNames = map[Exception]string{
	ExcInterrupt:                    "Interrupt",
	ExcLoadPageFault:                "LoadPageFault",
	ExcStorePageFault:               "StorePageFault",
	ExcFetchPageFault:               "FetchPageFault",
	ExcPageModifyFault:              "PageModifyFault",
	ExcPageNonReadableFault:         "PageNonReadableFault",
	ExcPageNonExecutableFault:       "PageNonExecutableFault",
	ExcPagePrivilegeIllegal:         "PagePrivilegeIllegal",
	ExcAddressError:                 "AddressError",
	ExcAddressNotAligned:            "AddressNotAligned",
	ExcBoundsCheckFault:             "BoundsCheckFault",
	ExcSyscall:                      "Syscall",
	ExcBreakpoint:                   "Breakpoint",
	ExcInstructionNotExist:          "InstructionNotExist",
	ExcInstructionPrivilegeIllegal:  "InstructionPrivilegeIllegal",
	ExcFloatingPointUnavailable:     "FloatingPointUnavailable",
	ExcSIMDUnavailable:              "SIMDUnavailable",
	ExcASIMDUnavailable:             "ASIMDUnavailable",
	ExcFloatingPointError:           "FloatingPointError",
	ExcWatchpoint:                   "Watchpoint",
	ExcBinaryTranslationUnavailable: "BinaryTranslationUnavailable",
	ExcBinaryTranslationError:       "BinaryTranslationError",
	ExcGuestPrivilegeSensitive:      "GuestPrivilegeSensitive",
	ExcHypercall:                    "Hypercall",
	ExcGuestCSRChange:               "GuestCSRChange",
	ExcTLBRefill:                    "TLBRefill",
}

// String implements fmt.Stringer.String.
func (e Exception) String() string {
	if n, ok := exceptionNames[e]; ok {
		return n
	}
	return fmt.Sprintf("Exception(%#x)", uint8(e))
}

// IsPageFault returns true for the memory-access faults raised by the page
// table walker.
func (e Exception) IsPageFault() bool {
	return e >= ExcLoadPageFault && e <= ExcPagePrivilegeIllegal
}

// Interrupt is an interrupt source, numbered by its ESTAT.IS bit.
type Interrupt uint8

// Interrupt sources.
const (
	IntSWI0 Interrupt = iota
	IntSWI1
	IntHWI0
	IntHWI1
	IntHWI2
	IntHWI3
	IntHWI4
	IntHWI5
	IntHWI6
	IntHWI7
	IntPMI
	IntTimer
	IntIPI
)

// String implements fmt.Stringer.String.
func (i Interrupt) String() string {
	switch {
	case i <= IntSWI1:
		return fmt.Sprintf("SWI%d", i)
	case i <= IntHWI7:
		return fmt.Sprintf("HWI%d", i-IntHWI0)
	case i == IntPMI:
		return "PMI"
	case i == IntTimer:
		return "Timer"
	case i == IntIPI:
		return "IPI"
	default:
		return fmt.Sprintf("Interrupt(%d)", uint8(i))
	}
}

// IsExternal returns true for the hardware lines driven by the interrupt
// controller.
func (i Interrupt) IsExternal() bool {
	return i >= IntHWI0 && i <= IntHWI7
}

// TrapKind classifies a trap.
type TrapKind int

// Trap kinds.
const (
	TrapUnknown TrapKind = iota
	TrapException
	TrapInterrupt
	TrapMachineError
)

// Trap is a decoded trap cause.
type Trap struct {
	Kind      TrapKind
	Exception Exception
	Subcode   uint16
	Interrupt Interrupt
}

// String implements fmt.Stringer.String.
func (t Trap) String() string {
	switch t.Kind {
	case TrapException:
		if t.Subcode != 0 {
			return fmt.Sprintf("%v/%d", t.Exception, t.Subcode)
		}
		return t.Exception.String()
	case TrapInterrupt:
		return t.Interrupt.String()
	case TrapMachineError:
		return "MachineError"
	default:
		return "Unknown"
	}
}

// TrapRegs is the raw cause state read after a trap.
type TrapRegs struct {
	ESTAT uint64
	BADV  uint64
	BADI  uint64

	// MERR is set if the trap was a machine error, reported by the
	// machine error controller rather than ESTAT.
	MERR bool
}

// DecodeESTAT decodes a trap cause. For interrupts, the highest numbered
// pending source wins, matching the hardware priority; enabled masks the
// pending bits (ECFG.LIE).
func DecodeESTAT(r TrapRegs, enabled uint64) Trap {
	if r.MERR {
		return Trap{Kind: TrapMachineError}
	}
	ecode := Exception((r.ESTAT >> estatEcodeShift) & estatEcodeMask)
	sub := uint16((r.ESTAT >> estatSubcodeShift) & estatSubcodeMask)
	if ecode != ExcInterrupt {
		if _, ok := exceptionNames[ecode]; !ok {
			return Trap{Kind: TrapUnknown, Exception: ecode, Subcode: sub}
		}
		return Trap{Kind: TrapException, Exception: ecode, Subcode: sub}
	}
	pending := r.ESTAT & estatISMask & enabled
	for i := IntIPI; ; i-- {
		if pending&(1<<i) != 0 {
			return Trap{Kind: TrapInterrupt, Interrupt: i}
		}
		if i == IntSWI0 {
			break
		}
	}
	return Trap{Kind: TrapUnknown}
}

// MakeESTAT builds an ESTAT value, as the hardware would latch it.
func MakeESTAT(e Exception, subcode uint16, pending uint64) uint64 {
	return uint64(e)<<estatEcodeShift | uint64(subcode)<<estatSubcodeShift | pending&estatISMask
}
