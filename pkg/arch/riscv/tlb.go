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

import "github.com/kernhal/kernhal/pkg/hostarch"

// TLB is the TLB maintenance port of a hart.
type TLB interface {
	// SFenceVMA executes sfence.vma va, zero.
	SFenceVMA(va uint64)

	// SFenceVMAAll executes sfence.vma zero, zero.
	SFenceVMAAll()
}

// FlushAddr invalidates the entries translating va on the current hart.
func FlushAddr(t TLB, va hostarch.Addr) {
	t.SFenceVMA(uint64(va))
}

// FlushAddrRange invalidates every page overlapping r.
func FlushAddrRange(t TLB, r hostarch.AddrRange) {
	if !r.WellFormed() || r.Length() == 0 {
		return
	}
	r = r.RoundOut()
	for va := r.Start; va < r.End; va += hostarch.PageSize {
		FlushAddr(t, va)
	}
}

// FlushAll invalidates the TLB of the current hart. sfence.vma cannot
// spare global entries, so includingGlobal only documents the caller's
// intent.
func FlushAll(t TLB, includingGlobal bool) {
	t.SFenceVMAAll()
}
