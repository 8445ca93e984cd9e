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

import (
	"fmt"

	"github.com/kernhal/kernhal/pkg/hostarch"
)

// InvTLBOp is the op field of the INVTLB instruction.
type InvTLBOp uint8

// INVTLB operations.
const (
	// InvTLBAll invalidates every entry.
	InvTLBAll InvTLBOp = 0x0
	// InvTLBAllAlias is the same as InvTLBAll.
	InvTLBAllAlias InvTLBOp = 0x1
	// InvTLBGlobal invalidates entries with G=1.
	InvTLBGlobal InvTLBOp = 0x2
	// InvTLBNonGlobal invalidates entries with G=0.
	InvTLBNonGlobal InvTLBOp = 0x3
	// InvTLBNonGlobalASID invalidates entries with G=0 and a matching ASID.
	InvTLBNonGlobalASID InvTLBOp = 0x4
	// InvTLBNonGlobalASIDAddr invalidates entries with G=0, a matching
	// ASID and a matching address.
	InvTLBNonGlobalASIDAddr InvTLBOp = 0x5
	// InvTLBAddr invalidates entries with a matching address that are
	// global or have a matching ASID.
	InvTLBAddr InvTLBOp = 0x6
)

// String implements fmt.Stringer.String.
func (op InvTLBOp) String() string {
	return fmt.Sprintf("invtlb %#x", uint8(op))
}

// TLB is the TLB maintenance port of a hart.
type TLB interface {
	// InvTLB executes INVTLB op, asid, va.
	InvTLB(op InvTLBOp, asid uint16, va uint64)
}

// FlushAddr invalidates the entries translating va on the current core.
func FlushAddr(t TLB, va hostarch.Addr) {
	t.InvTLB(InvTLBAddr, 0, uint64(va))
}

// FlushAddrRange invalidates every page overlapping r. Each page is flushed
// once, from the page containing r.Start up to the page containing the last
// byte of r.
func FlushAddrRange(t TLB, r hostarch.AddrRange) {
	if !r.WellFormed() || r.Length() == 0 {
		return
	}
	r = r.RoundOut()
	for va := r.Start; va < r.End; va += hostarch.PageSize {
		FlushAddr(t, va)
	}
}

// FlushAll invalidates the TLB of the current core. Global entries are kept
// unless includingGlobal is set.
func FlushAll(t TLB, includingGlobal bool) {
	if includingGlobal {
		t.InvTLB(InvTLBAll, 0, 0)
	} else {
		t.InvTLB(InvTLBNonGlobal, 0, 0)
	}
}
