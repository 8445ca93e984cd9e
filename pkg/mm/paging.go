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

package mm

import (
	"github.com/kernhal/kernhal/pkg/hostarch"
)

// PagingConsts describes the shape of a page-table tree.
type PagingConsts struct {
	// BaseSize is the size of a level-1 page.
	BaseSize uint64

	// NrLevels is the number of levels; the root is level NrLevels.
	NrLevels int

	// AddressWidth is the number of significant virtual address bits.
	AddressWidth uint

	// PTESize is the size of one entry in bytes.
	PTESize uint64

	// VASignExt is true if virtual addresses are sign-extended from
	// AddressWidth.
	VASignExt bool
}

// Sv48 is the paging shape shared by RISC-V Sv48 and LoongArch64 4-level
// paging with 4K pages.
var Sv48 = PagingConsts{
	BaseSize:     hostarch.PageSize,
	NrLevels:     4,
	AddressWidth: 48,
	PTESize:      8,
	VASignExt:    true,
}

// EntriesPerNode returns the number of entries in one table page.
func (c PagingConsts) EntriesPerNode() int {
	return int(c.BaseSize / c.PTESize)
}

func (c PagingConsts) indexBits() uint {
	n := uint(0)
	for e := c.EntriesPerNode(); e > 1; e >>= 1 {
		n++
	}
	return n
}

func (c PagingConsts) baseShift() uint {
	n := uint(0)
	for s := c.BaseSize; s > 1; s >>= 1 {
		n++
	}
	return n
}

// LevelShift returns the binary log of the span of one entry at level.
func (c PagingConsts) LevelShift(level int) uint {
	return c.baseShift() + uint(level-1)*c.indexBits()
}

// PageSize returns the span of one entry at level.
func (c PagingConsts) PageSize(level int) uint64 {
	return 1 << c.LevelShift(level)
}

// Index returns the table index for va at level.
func (c PagingConsts) Index(va hostarch.Addr, level int) int {
	return int(uint64(va)>>c.LevelShift(level)) & (c.EntriesPerNode() - 1)
}

// IsCanonical returns true if va is representable: either it fits in
// AddressWidth bits or, with sign extension, its upper bits copy bit
// AddressWidth-1.
func (c PagingConsts) IsCanonical(va hostarch.Addr) bool {
	top := uint64(va) >> (c.AddressWidth - 1)
	if !c.VASignExt {
		return uint64(va)>>c.AddressWidth == 0
	}
	return top == 0 || top == (1<<(64-c.AddressWidth+1))-1
}
