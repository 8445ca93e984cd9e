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
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecodeSCause(t *testing.T) {
	for _, tc := range []struct {
		scause uint64
		want   Trap
	}{
		{8, Trap{Kind: TrapException, Exception: ExcUserEnvCall}},
		{15, Trap{Kind: TrapException, Exception: ExcStorePageFault}},
		{0, Trap{Kind: TrapException, Exception: ExcInstructionMisaligned}},
		{10, Trap{Kind: TrapUnknown, Exception: 10}},
		{1 << 20, Trap{Kind: TrapUnknown}},
		{1<<63 | 5, Trap{Kind: TrapInterrupt, Interrupt: IntTimer}},
		{1<<63 | 9, Trap{Kind: TrapInterrupt, Interrupt: IntExternal}},
		{1<<63 | 1, Trap{Kind: TrapInterrupt, Interrupt: IntSoftware}},
		{1<<63 | 11, Trap{Kind: TrapUnknown}},
	} {
		if diff := cmp.Diff(tc.want, DecodeSCause(tc.scause)); diff != "" {
			t.Errorf("DecodeSCause(%#x) mismatch (-want +got):\n%s", tc.scause, diff)
		}
	}
	if got := MakeInterruptCause(IntExternal); got != 1<<63|9 {
		t.Errorf("MakeInterruptCause(External) = %#x", got)
	}
}

func TestIsFloatingPoint(t *testing.T) {
	for _, tc := range []struct {
		name string
		insn uint32
		want bool
	}{
		{"fld", 0x0005_3007, true},
		{"fsd", 0x00a5_3027, true},
		{"fadd.d", 0x02b5_0553, true},
		{"fmadd.s", 0x0000_0043, true},
		{"frcsr", 0x0030_2573, true},
		{"fsflags", 0x0015_1073, true},
		{"c.fld", 0x2108, true},
		{"c.fsdsp", 0xa002, true},
		{"nop", 0x0000_0013, false},
		{"rdtime", 0xc010_2573, false},
		{"ecall", 0x0000_0073, false},
		{"c.ld", 0x6108, false},
		{"c.li", 0x4505, false},
		{"zero", 0, false},
	} {
		if got := IsFloatingPoint(tc.insn); got != tc.want {
			t.Errorf("IsFloatingPoint(%s %#x) = %t, want %t", tc.name, tc.insn, got, tc.want)
		}
	}
}

func TestSStatusFS(t *testing.T) {
	s := SStatus(SStatusUser)
	if s.FS() != FSOff || !s.FromUser() {
		t.Fatalf("user sstatus: FS %v, from user %t", s.FS(), s.FromUser())
	}
	s = s.WithFS(FSDirty)
	if s != 0x8000_0000_0000_6020 {
		t.Errorf("dirty sstatus = %#x", uint64(s))
	}
	s = s.WithFS(FSClean)
	if s != 0x4020 || s.FS() != FSClean {
		t.Errorf("clean sstatus = %#x", uint64(s))
	}
}

type fpuRecorder struct {
	hw    FpuState
	saves int
}

func (r *fpuRecorder) SaveFP(s *FpuState) {
	r.saves++
	*s = r.hw
}

func (r *fpuRecorder) RestoreFP(s *FpuState) {
	r.hw = *s
}

func TestFpuStateSwitch(t *testing.T) {
	var (
		rec fpuRecorder
		s   FpuState
	)
	s.F[2] = 5

	rec.hw.F[2] = 99
	s.Restore(&rec, FSOff)
	if rec.hw.F[2] != 99 {
		t.Errorf("restore with FS Off touched the registers")
	}
	s.Restore(&rec, FSInitial)
	if rec.hw != (FpuState{}) {
		t.Errorf("restore with FS Initial = %+v, want zero", rec.hw)
	}
	s.Restore(&rec, FSClean)
	if rec.hw.F[2] != 5 {
		t.Errorf("restore with FS Clean did not load the thread state")
	}

	st := SStatus(0).WithFS(FSClean)
	s.Save(&rec, &st)
	if rec.saves != 0 {
		t.Errorf("clean state saved")
	}
	rec.hw.F[2] = 6
	st = st.WithFS(FSDirty)
	s.Save(&rec, &st)
	if rec.saves != 1 || s.F[2] != 6 || st.FS() != FSClean {
		t.Errorf("dirty save: saves %d, f2 %d, FS %v", rec.saves, s.F[2], st.FS())
	}
}

func TestRegNames(t *testing.T) {
	for name, want := range map[string]Reg{
		"zero": Zero,
		"ra":   RA,
		"fp":   S0,
		"s0":   S0,
		"x8":   S0,
		"a0":   A0,
		"s11":  S11,
		"t6":   T6,
		"x31":  T6,
	} {
		if got, ok := RegByName(name); !ok || got != want {
			t.Errorf("RegByName(%q) = %v, %t, want %v", name, got, ok, want)
		}
	}
	if _, ok := RegByName("x32"); ok {
		t.Errorf("RegByName(x32) succeeded")
	}
	if got := T3.String(); got != "t3" {
		t.Errorf("T3 = %q", got)
	}

	var g GeneralRegs
	g.Set(Zero, 1)
	g.Set(A1, 2)
	if g.Get(Zero) != 0 || g.Arg(1) != 2 {
		t.Errorf("zero = %d, a1 = %d", g.Get(Zero), g.Arg(1))
	}
}
