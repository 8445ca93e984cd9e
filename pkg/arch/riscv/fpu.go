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

// FPU is the floating-point register port of a hart.
type FPU interface {
	// SaveFP stores the hardware registers into s.
	SaveFP(s *FpuState)

	// RestoreFP loads s into the hardware registers.
	RestoreFP(s *FpuState)
}

// FpuState is the floating-point state of a thread. Whether it is live is
// tracked by the FS field of the thread's sstatus, not here.
type FpuState struct {
	// F holds f0-f31.
	F [32]uint64

	// FCSR holds fflags and frm.
	FCSR uint32
}

// Save stores the hardware registers into s if the thread wrote them since
// the last save, and marks the unit clean.
func (s *FpuState) Save(f FPU, sstatus *SStatus) {
	if sstatus.FS() != FSDirty {
		return
	}
	f.SaveFP(s)
	*sstatus = sstatus.WithFS(FSClean)
}

// Restore loads the thread's registers before entering user mode. A unit in
// the Initial state gets zeroed registers; one that is Off is left alone.
func (s *FpuState) Restore(f FPU, fs FS) {
	switch fs {
	case FSOff:
	case FSInitial:
		f.RestoreFP(&FpuState{})
	default:
		f.RestoreFP(s)
	}
}
