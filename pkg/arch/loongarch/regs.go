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

// Reg names a general-purpose register by its architectural number.
type Reg int

// LP64 ABI register numbers.
const (
	Zero Reg = iota
	RA
	TP
	SP
	A0
	A1
	A2
	A3
	A4
	A5
	A6
	A7
	T0
	T1
	T2
	T3
	T4
	T5
	T6
	T7
	T8
	R21
	FP
	S0
	S1
	S2
	S3
	S4
	S5
	S6
	S7
	S8

	// NumRegs is the number of general-purpose registers.
	NumRegs
)

// regNames is indexed by Reg. It is the only table mapping ABI names to
// register slots.
var regNames = [NumRegs]string{
	"zero", "ra", "tp", "sp",
	"a0", "a1", "a2", "a3", "a4", "a5", "a6", "a7",
	"t0", "t1", "t2", "t3", "t4", "t5", "t6", "t7", "t8",
	"r21", "fp",
	"s0", "s1", "s2", "s3", "s4", "s5", "s6", "s7", "s8",
}

var regByName = func() map[string]Reg {
	m := make(map[string]Reg, NumRegs+1)
	for i, n := range regNames {
		m[n] = Reg(i)
	}
	// u0 is the older name for r21.
	m["u0"] = R21
	return m
}()

// String implements fmt.Stringer.String.
func (r Reg) String() string {
	if r < 0 || r >= NumRegs {
		return fmt.Sprintf("r%d?", int(r))
	}
	return regNames[r]
}

// RegByName returns the register with the given ABI name.
func RegByName(name string) (Reg, bool) {
	r, ok := regByName[name]
	return r, ok
}

// GeneralRegs are the 32 general-purpose registers, indexed by Reg.
type GeneralRegs [NumRegs]uint64

// Get returns the value of r. The zero register always reads as zero.
func (g *GeneralRegs) Get(r Reg) uint64 {
	if r == Zero {
		return 0
	}
	return g[r]
}

// Set sets r to v. Writes to the zero register are discarded.
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

// RawRegs is the state saved and restored around user execution.
type RawRegs struct {
	General GeneralRegs

	// PRMD is the pre-exception mode register; PPLV is 3 for user mode.
	PRMD uint64

	// ERA is the exception return address.
	ERA uint64

	// EUEN enables the extended units; bit 0 is the FPU.
	EUEN uint64
}

// PRMD and EUEN bits.
const (
	prmdPPLVMask = 0x3
	prmdPIE      = 1 << 2

	// PRMDUser is the PRMD value for entering user mode with interrupts
	// enabled.
	PRMDUser = prmdPPLVMask | prmdPIE

	euenFPE = 1 << 0
)

// FromUser returns true if the state was captured in user mode.
func (r *RawRegs) FromUser() bool {
	return r.PRMD&prmdPPLVMask == 3
}
