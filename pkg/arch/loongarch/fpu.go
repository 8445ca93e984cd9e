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

// FPU is the floating point register file of a hart.
type FPU interface {
	// SaveFP stores the hardware registers into s.
	SaveFP(s *FpuState)

	// RestoreFP loads s into the hardware registers.
	RestoreFP(s *FpuState)
}

// FpuState is the floating point state of a thread.
//
// LoongArch has no hardware dirty tracking, so the state is live only once
// the thread has taken its first floating-point-disabled fault, which turns
// the unit on in EUEN. Until then the registers are never touched.
type FpuState struct {
	// F holds f0-f31.
	F [32]uint64

	// FCC holds the condition flags fcc0-fcc7, one per byte.
	FCC uint64

	// FCSR is fcsr0.
	FCSR uint32

	// live is set once the thread has enabled the unit.
	live bool
}

// Live returns true if the thread has used the FPU.
func (s *FpuState) Live() bool {
	return s.live
}

// activate resets the state to the architectural initial value and marks
// it live.
func (s *FpuState) activate() {
	*s = FpuState{live: true}
}

// Save saves the hardware state into s if the thread uses the FPU.
func (s *FpuState) Save(f FPU) {
	if s.live {
		f.SaveFP(s)
	}
}

// Restore loads s into the hardware if the thread uses the FPU.
func (s *FpuState) Restore(f FPU) {
	if s.live {
		f.RestoreFP(s)
	}
}

// Fork returns a copy of s.
func (s *FpuState) Fork() FpuState {
	return *s
}
