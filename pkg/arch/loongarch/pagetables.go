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
	"github.com/kernhal/kernhal/pkg/mm"
)

// Page table entry bits. This is the base-page format; the huge-page format
// moves G to bit 12 and is never produced here.
const (
	pteValid      = 1 << 0
	pteDirty      = 1 << 1
	ptePLVShift   = 2
	ptePLVMask    = 0x3 << ptePLVShift
	pteMATShift   = 4
	pteMATMask    = 0x3 << pteMATShift
	pteGlobal     = 1 << 6
	ptePresent    = 1 << 7
	pteWrite      = 1 << 8
	pteAvail1     = 1 << 9
	pteAvail2     = 1 << 10
	pteNoRead     = 1 << 61
	pteNoExecute  = 1 << 62
	pteRestrictPL = 1 << 63

	// PhysicalAddressMask selects the page frame bits.
	PhysicalAddressMask = 0x0000_ffff_ffff_f000
)

// Memory access types (MAT).
const (
	matStronglyUncached = 0
	matCoherentCached   = 1
	matWeaklyUncached   = 2
)

// Paging is the shape of the page table tree: four levels of 4K tables
// covering a 48-bit address space.
var Paging = mm.Sv48

// PTE is a LoongArch64 page table entry.
type PTE uint64

// NewPage encodes a leaf mapping physical with the given properties.
//
// Only base-page leaves are encoded; level is accepted for interface
// compatibility and must be 1. physical must be page aligned and within the
// physical address width. Cache policies other than Writeback, Uncacheable
// and WriteCombining are not expressible.
func NewPage(physical hostarch.Addr, level int, prop mm.PageProperty) PTE {
	if level != 1 {
		panic(fmt.Sprintf("loongarch: huge page leaf at level %d not supported", level))
	}
	checkPhysical(physical)
	e := PTE(uint64(physical)) | pteValid
	e.SetProp(prop)
	return e
}

// NewPT encodes a pointer to the next level table at physical.
func NewPT(physical hostarch.Addr) PTE {
	checkPhysical(physical)
	return PTE(uint64(physical))
}

func checkPhysical(physical hostarch.Addr) {
	if uint64(physical)&^PhysicalAddressMask != 0 {
		panic(fmt.Sprintf("loongarch: physical address %v is unaligned or beyond %d bits", physical, AddressBits))
	}
}

// IsPresent implements mm.PageTableEntry.IsPresent.
func (e PTE) IsPresent() bool {
	return e&pteValid != 0
}

// Paddr implements mm.PageTableEntry.Paddr.
func (e PTE) Paddr() hostarch.Addr {
	return hostarch.Addr(e & PhysicalAddressMask)
}

// Raw implements mm.PageTableEntry.Raw.
func (e PTE) Raw() uint64 {
	return uint64(e)
}

// IsLast implements mm.PageTableEntry.IsLast. Table pointers carry no
// permission bits, so any of them marks a leaf.
func (e PTE) IsLast(level int) bool {
	return level == 1 || e&(pteNoRead|pteWrite|pteNoExecute) != 0
}

// Prop implements mm.PageTableEntry.Prop.
func (e PTE) Prop() mm.PageProperty {
	var p mm.PageProperty
	if e&pteNoRead == 0 {
		p.Flags |= mm.R
	}
	if e&pteWrite != 0 {
		p.Flags |= mm.W
	}
	if e&pteNoExecute == 0 {
		p.Flags |= mm.X
	}
	if e&ptePresent != 0 {
		p.Flags |= mm.Accessed
	}
	if e&pteDirty != 0 {
		p.Flags |= mm.Dirty
	}
	if e&pteAvail1 != 0 {
		p.Flags |= mm.Avail1
	}
	if e&pteAvail2 != 0 {
		p.Flags |= mm.Avail2
	}
	if (e&ptePLVMask)>>ptePLVShift == 3 {
		p.Priv |= mm.User
	}
	if e&pteGlobal != 0 {
		p.Priv |= mm.Global
	}
	switch (e & pteMATMask) >> pteMATShift {
	case matCoherentCached:
		p.Cache = mm.Writeback
	case matWeaklyUncached:
		p.Cache = mm.WriteCombining
	default:
		p.Cache = mm.Uncacheable
	}
	return p
}

// SetProp replaces the properties of e, keeping the address and valid bit.
func (e *PTE) SetProp(prop mm.PageProperty) {
	v := *e & (PhysicalAddressMask | pteValid)

	f := prop.Flags
	if f&mm.R == 0 {
		v |= pteNoRead
	}
	if f&mm.W != 0 {
		v |= pteWrite
	}
	if f&mm.X == 0 {
		v |= pteNoExecute
	}
	if f&mm.Accessed != 0 {
		v |= ptePresent
	}
	if f&mm.Dirty != 0 {
		v |= pteDirty
	}
	if f&mm.Avail1 != 0 {
		v |= pteAvail1
	}
	if f&mm.Avail2 != 0 {
		v |= pteAvail2
	}
	if prop.Priv&mm.User != 0 {
		v |= ptePLVMask
	}
	if prop.Priv&mm.Global != 0 {
		v |= pteGlobal
	}
	switch prop.Cache {
	case mm.Writeback:
		v |= matCoherentCached << pteMATShift
	case mm.Uncacheable:
		v |= matStronglyUncached << pteMATShift
	case mm.WriteCombining:
		v |= matWeaklyUncached << pteMATShift
	default:
		panic(fmt.Sprintf("loongarch: cache policy %v not supported", prop.Cache))
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

// Codec encodes LoongArch64 entries for a generic page table walker.
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
