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

// Reg is a general-purpose register, numbered as in the instruction
// encoding (x0 to x31).
type Reg int

// Registers by ABI name.
const (
	Zero Reg = iota
	RA
	SP
	GP
	TP
	T0
	T1
	T2
	S0
	S1
	A0
	A1
	A2
	A3
	A4
	A5
	A6
	A7
	S2
	S3
	S4
	S5
	S6
	S7
	S8
	S9
	S10
	S11
	T3
	T4
	T5
	T6

	// NumRegs is the number of general-purpose registers.
	NumRegs

	// FP is the frame pointer, an alias of S0.
	FP = S0
)

var regNames = [NumRegs]string{
	"zero", "ra", "sp", "gp", "tp",
	"t0", "t1", "t2",
	"s0", "s1",
	"a0", "a1", "a2", "a3", "a4", "a5", "a6", "a7",
	"s2", "s3", "s4", "s5", "s6", "s7", "s8", "s9", "s10", "s11",
	"t3", "t4", "t5", "t6",
}

var regByName = func() map[string]Reg {
	m := make(map[string]Reg, 2*NumRegs+1)
	for i, n := range regNames {
		m[n] = Reg(i)
		m[fmt.Sprintf("x%d", i)] = Reg(i)
	}
	m["fp"] = FP
	return m
}()

// String implements fmt.Stringer.String.
func (r Reg) String() string {
	if r < 0 || r >= NumRegs {
		return fmt.Sprintf("x%d?", int(r))
	}
	return regNames[r]
}

// RegByName returns the register with the given ABI or numeric (x5) name.
func RegByName(name string) (Reg, bool) {
	r, ok := regByName[name]
	return r, ok
}

// GeneralRegs holds x0 to x31. Slot 0 always reads as zero.
type GeneralRegs [NumRegs]uint64

// Get returns the value of r.
func (g *GeneralRegs) Get(r Reg) uint64 {
	if r == Zero {
		return 0
	}
	return g[r]
}

// Set sets r. Writes to the zero register are discarded.
func (g *GeneralRegs) Set(r Reg, v uint64) {
	if r == Zero {
		return
	}
	g[r] = v
}

// Arg returns argument register a<i>.
func (g *GeneralRegs) Arg(i int) uint64 {
	return g[A0+Reg(i)]
}

// SetArg sets argument register a<i>.
func (g *GeneralRegs) SetArg(i int, v uint64) {
	g[A0+Reg(i)] = v
}

// FS is the floating-point unit status in sstatus.
type FS uint8

// FPU states.
const (
	FSOff FS = iota
	FSInitial
	FSClean
	FSDirty
)

// String implements fmt.Stringer.String.
func (fs FS) String() string {
	switch fs {
	case FSOff:
		return "Off"
	case FSInitial:
		return "Initial"
	case FSClean:
		return "Clean"
	case FSDirty:
		return "Dirty"
	default:
		return fmt.Sprintf("FS(%d)", uint8(fs))
	}
}

// sstatus fields.
const (
	sstatusSIE     = 1 << 1
	sstatusSPIE    = 1 << 5
	sstatusSPP     = 1 << 8
	sstatusFSShift = 13
	sstatusFSMask  = 0x3 << sstatusFSShift
	sstatusSD      = 1 << 63

	// SStatusUser is the sstatus value for entering user mode with
	// interrupts enabled and the FPU off.
	SStatusUser = sstatusSPIE
)

// SStatus is a value of the sstatus CSR.
type SStatus uint64

// FS returns the floating-point unit status.
func (s SStatus) FS() FS {
	return FS((s & sstatusFSMask) >> sstatusFSShift)
}

// WithFS returns s with the floating-point status replaced.
func (s SStatus) WithFS(fs FS) SStatus {
	s = s&^sstatusFSMask | SStatus(fs)<<sstatusFSShift
	if fs == FSDirty {
		s |= sstatusSD
	} else {
		s &^= sstatusSD
	}
	return s
}

// FromUser returns true if the trap was taken from user mode.
func (s SStatus) FromUser() bool {
	return s&sstatusSPP == 0
}

// RawRegs is the user state saved and restored across a trap.
type RawRegs struct {
	General GeneralRegs
	SStatus SStatus
	SEPC    uint64
}
