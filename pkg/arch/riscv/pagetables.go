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
	"fmt"

	"github.com/kernhal/kernhal/pkg/hostarch"
	"github.com/kernhal/kernhal/pkg/mm"
)

// Sv48 page table entry bits.
const (
	pteValid    = 1 << 0
	pteRead     = 1 << 1
	pteWrite    = 1 << 2
	pteExecute  = 1 << 3
	pteUser     = 1 << 4
	pteGlobal   = 1 << 5
	pteAccessed = 1 << 6
	pteDirty    = 1 << 7
	pteRSW1     = 1 << 8
	pteRSW2     = 1 << 9
	ptePPNShift = 10
	ptePPNMask  = 0x003f_ffff_ffff_fc00
	ptePBMTMask = 0x3 << 61

	// PhysicalAddressBits is the physical address width Sv48 entries can
	// hold.
	PhysicalAddressBits = 56
)

// Page-based memory types (Svpbmt).
const (
	pbmtPMA = 0 << 61
	pbmtNC  = 1 << 61
	pbmtIO  = 2 << 61
)

// Paging is the shape of the Sv48 page table tree.
var Paging = mm.Sv48

// PTE is an Sv48 page table entry.
type PTE uint64

// NewPage encodes a leaf at level mapping physical with the given
// properties. physical must be aligned to the page size of level.
func NewPage(physical hostarch.Addr, level int, prop mm.PageProperty) PTE {
	if level < 1 || level > Paging.NrLevels {
		panic(fmt.Sprintf("riscv: leaf at level %d", level))
	}
	checkPhysical(physical, Paging.PageSize(level))
	e := PTE(uint64(physical)>>hostarch.PageShift<<ptePPNShift) | pteValid
	e.SetProp(prop)
	return e
}

// NewPT encodes a pointer to the next level table at physical.
func NewPT(physical hostarch.Addr) PTE {
	checkPhysical(physical, hostarch.PageSize)
	return PTE(uint64(physical)>>hostarch.PageShift<<ptePPNShift) | pteValid
}

func checkPhysical(physical hostarch.Addr, align uint64) {
	if uint64(physical)%align != 0 || uint64(physical)>>PhysicalAddressBits != 0 {
		panic(fmt.Sprintf("riscv: physical address %v is unaligned or beyond %d bits", physical, PhysicalAddressBits))
	}
}

// IsPresent implements mm.PageTableEntry.IsPresent.
func (e PTE) IsPresent() bool {
	return e&pteValid != 0
}

// Paddr implements mm.PageTableEntry.Paddr.
func (e PTE) Paddr() hostarch.Addr {
	return hostarch.Addr((uint64(e) & ptePPNMask) >> ptePPNShift << hostarch.PageShift)
}

// Raw implements mm.PageTableEntry.Raw.
func (e PTE) Raw() uint64 {
	return uint64(e)
}

// IsLast implements mm.PageTableEntry.IsLast. An entry with any of R, W or
// X set is a leaf at every level.
func (e PTE) IsLast(level int) bool {
	return level == 1 || e&(pteRead|pteWrite|pteExecute) != 0
}

// Prop implements mm.PageTableEntry.Prop.
func (e PTE) Prop() mm.PageProperty {
	var p mm.PageProperty
	for _, b := range flagBits {
		if e&b.pte != 0 {
			p.Flags |= b.flag
		}
	}
	if e&pteUser != 0 {
		p.Priv |= mm.User
	}
	if e&pteGlobal != 0 {
		p.Priv |= mm.Global
	}
	switch e & ptePBMTMask {
	case pbmtPMA:
		p.Cache = mm.Writeback
	case pbmtNC:
		p.Cache = mm.WriteCombining
	default:
		p.Cache = mm.Uncacheable
	}
	return p
}

var flagBits = []struct {
	pte  PTE
	flag mm.PageFlags
}{
	{pteRead, mm.R},
	{pteWrite, mm.W},
	{pteExecute, mm.X},
	{pteAccessed, mm.Accessed},
	{pteDirty, mm.Dirty},
	{pteRSW1, mm.Avail1},
	{pteRSW2, mm.Avail2},
}

// SetProp replaces the properties of e, keeping the address and valid bit.
func (e *PTE) SetProp(prop mm.PageProperty) {
	v := *e & (ptePPNMask | pteValid)
	for _, b := range flagBits {
		if prop.Flags&b.flag != 0 {
			v |= b.pte
		}
	}
	if prop.Priv&mm.User != 0 {
		v |= pteUser
	}
	if prop.Priv&mm.Global != 0 {
		v |= pteGlobal
	}
	switch prop.Cache {
	case mm.Writeback:
		v |= pbmtPMA
	case mm.WriteCombining:
		v |= pbmtNC
	case mm.Uncacheable:
		v |= pbmtIO
	default:
		panic(fmt.Sprintf("riscv: cache policy %v not supported", prop.Cache))
	}
	*e = v
}

// String implements fmt.Stringer.String.
func (e PTE) String() string {
	if !e.IsPresent() {
		return fmt.Sprintf("PTE(%#x, not present)", uint64(e))
	}
	return fmt.Sprintf("PTE(%#x, %v %v)", uint64(e), e.Paddr(), e.Prop())
}

// Encode returns the raw base-page entry mapping physical with prop.
func Encode(physical hostarch.Addr, prop mm.PageProperty) uint64 {
	return uint64(NewPage(physical, 1, prop))
}

// Decode splits a raw entry into its address and properties.
func Decode(raw uint64) (physical hostarch.Addr, prop mm.PageProperty, present bool) {
	e := PTE(raw)
	if !e.IsPresent() {
		return 0, mm.PageProperty{}, false
	}
	return e.Paddr(), e.Prop(), true
}

// Codec encodes Sv48 entries for a generic page table walker.
type Codec struct{}

// Consts returns the tree shape.
func (Codec) Consts() mm.PagingConsts {
	return Paging
}

// NewPage encodes a leaf.
func (Codec) NewPage(physical hostarch.Addr, level int, prop mm.PageProperty) uint64 {
	return uint64(NewPage(physical, level, prop))
}

// NewPT encodes a table pointer.
func (Codec) NewPT(physical hostarch.Addr) uint64 {
	return uint64(NewPT(physical))
}

// Entry wraps raw.
func (Codec) Entry(raw uint64) mm.PageTableEntry {
	return PTE(raw)
}
