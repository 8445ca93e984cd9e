// Copyright 2018 The gVisor Authors.
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

// Package pagetables provides a generic implementation of pagetables.
//
// The tree shape comes from mm.PagingConsts and every entry is produced and
// interpreted by an architecture Codec, so the same walker drives both the
// LoongArch and RISC-V formats. Only base pages are installed; leaves found
// at higher levels (as reported by the codec's IsLast) are honored by
// Lookup and replaced by Map.
package pagetables

import (
	"fmt"

	"github.com/kernhal/kernhal/pkg/hostarch"
	"github.com/kernhal/kernhal/pkg/mm"
	"github.com/kernhal/kernhal/pkg/sync"
)

// Codec encodes and interprets the entries of one architecture.
type Codec interface {
	// Consts returns the shape of the tree.
	Consts() mm.PagingConsts

	// NewPage encodes a leaf.
	NewPage(paddr hostarch.Addr, level int, prop mm.PageProperty) uint64

	// NewPT encodes a pointer to the next level table.
	NewPT(paddr hostarch.Addr) uint64

	// Entry wraps a raw entry.
	Entry(raw uint64) mm.PageTableEntry
}

// PTEs is one table page.
type PTEs [hostarch.PageSize / 8]uint64

// Node is a single node within a set of page tables.
type Node struct {
	ptes PTEs

	// physical is the translated address of these entries.
	//
	// This is filled in at creation time.
	physical hostarch.Addr
}

// PTEs returns the entries of n.
func (n *Node) PTEs() *PTEs {
	return &n.ptes
}

// Translator translates to physical addresses.
type Translator interface {
	// TranslateToPhysical translates the given pointer object into a
	// "physical" address. We do not require that it translates back, the
	// reverse mapping is maintained internally.
	TranslateToPhysical(*PTEs) hostarch.Addr
}

// PageTables is a set of page tables.
type PageTables struct {
	mu sync.Mutex

	// root is the pagetable root.
	root *Node

	// codec encodes entries.
	codec Codec

	// consts is codec.Consts(), cached.
	consts mm.PagingConsts

	// translator is the translator passed at creation.
	translator Translator

	// allNodes is a set of nodes indexed by translator address.
	allNodes map[hostarch.Addr]*Node
}

// New returns new PageTables.
func New(c Codec, t Translator) *PageTables {
	p := &PageTables{
		codec:      c,
		consts:     c.Consts(),
		translator: t,
		allNodes:   make(map[hostarch.Addr]*Node),
	}
	if p.consts.EntriesPerNode() != len(PTEs{}) {
		panic(fmt.Sprintf("pagetables: %d entries per node unsupported", p.consts.EntriesPerNode()))
	}
	p.root = p.allocNode()
	return p
}

// RootPhysical returns the physical address of the root table, as loaded
// into the page-table base register.
func (p *PageTables) RootPhysical() hostarch.Addr {
	return p.root.physical
}

// allocNode allocates a new page.
func (p *PageTables) allocNode() *Node {
	n := new(Node)
	n.physical = p.translator.TranslateToPhysical(n.PTEs())
	if n.physical == 0 || !n.physical.IsPageAligned() {
		panic(fmt.Sprintf("pagetables: translator returned unusable address %v", n.physical))
	}
	p.allNodes[n.physical] = n
	return n
}

// walk returns the level-1 table and index for va, allocating intermediate
// tables if alloc is set. If a leaf is found above level 1, it is returned
// with its level and nil node. replaced is true if Map had to discard a
// higher-level leaf.
func (p *PageTables) walk(va hostarch.Addr, alloc bool) (n *Node, index int, leafLevel int, replaced bool) {
	n = p.root
	for level := p.consts.NrLevels; level > 1; level-- {
		index = p.consts.Index(va, level)
		raw := n.ptes[index]
		if raw != 0 {
			e := p.codec.Entry(raw)
			if !e.IsLast(level) {
				child, ok := p.allNodes[e.Paddr()]
				if !ok {
					panic(fmt.Sprintf("pagetables: entry %#x at level %d points to unknown table", raw, level))
				}
				n = child
				continue
			}
			if !alloc {
				return n, index, level, false
			}
			replaced = true
		} else if !alloc {
			return nil, 0, 0, false
		}
		child := p.allocNode()
		n.ptes[index] = p.codec.NewPT(child.physical)
		n = child
	}
	return n, p.consts.Index(va, 1), 1, replaced
}

// Map installs base-page mappings of [addr, addr+length) to physical.
//
// True is returned iff there was a previous mapping in the range.
//
// Precondition: addr, length and physical must be page aligned and addr must
// be canonical.
func (p *PageTables) Map(addr hostarch.Addr, length uint64, prop mm.PageProperty, physical hostarch.Addr) bool {
	if !addr.IsPageAligned() || !physical.IsPageAligned() || length%hostarch.PageSize != 0 {
		panic(fmt.Sprintf("pagetables.Map: unaligned arguments %v+%#x -> %v", addr, length, physical))
	}
	end, ok := addr.AddLength(length)
	if !ok {
		panic("pagetables.Map: overflow")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	prev := false
	for va := addr; va < end; va += hostarch.PageSize {
		n, index, _, replaced := p.walk(va, true)
		prev = prev || replaced || n.ptes[index] != 0
		n.ptes[index] = p.codec.NewPage(physical+(va-addr), 1, prop)
	}
	return prev
}

// Unmap unmaps the given range. The caller must flush the TLB for the range
// afterwards.
//
// True is returned iff there was a previous mapping in the range.
func (p *PageTables) Unmap(addr hostarch.Addr, length uint64) bool {
	end, ok := addr.AddLength(length)
	if !ok {
		end = ^hostarch.Addr(0)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	count := 0
	for va := addr.RoundDown(); va < end; {
		n, index, level, _ := p.walk(va, false)
		step := hostarch.Addr(hostarch.PageSize)
		if n != nil {
			step = hostarch.Addr(p.consts.PageSize(level))
			if n.ptes[index] != 0 {
				n.ptes[index] = 0
				count++
			}
		}
		next := (va &^ (step - 1)) + step
		if next <= va {
			break
		}
		va = next
	}
	return count > 0
}

// Lookup returns the physical address and properties for the given virtual
// address.
func (p *PageTables) Lookup(addr hostarch.Addr) (physical hostarch.Addr, prop mm.PageProperty, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n, index, level, _ := p.walk(addr, false)
	if n == nil {
		return 0, mm.PageProperty{}, false
	}
	e := p.codec.Entry(n.ptes[index])
	if !e.IsPresent() {
		return 0, mm.PageProperty{}, false
	}
	off := uint64(addr) & (p.consts.PageSize(level) - 1)
	return e.Paddr() + hostarch.Addr(off), e.Prop(), true
}

// Mapping is one leaf visited by Range.
type Mapping struct {
	Addr     hostarch.Addr
	Length   uint64
	Physical hostarch.Addr
	Prop     mm.PageProperty
}

// Range calls fn for every present leaf, in address order.
func (p *PageTables) Range(fn func(Mapping)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rangeNode(p.root, p.consts.NrLevels, 0, fn)
}

func (p *PageTables) rangeNode(n *Node, level int, base hostarch.Addr, fn func(Mapping)) {
	shift := p.consts.LevelShift(level)
	for i, raw := range n.ptes {
		if raw == 0 {
			continue
		}
		va := base | hostarch.Addr(uint64(i)<<shift)
		if level == p.consts.NrLevels && p.consts.VASignExt && va&(1<<(p.consts.AddressWidth-1)) != 0 {
			va |= ^hostarch.Addr(0) << p.consts.AddressWidth
		}
		e := p.codec.Entry(raw)
		if e.IsLast(level) {
			if e.IsPresent() {
				fn(Mapping{Addr: va, Length: p.consts.PageSize(level), Physical: e.Paddr(), Prop: e.Prop()})
			}
			continue
		}
		p.rangeNode(p.allNodes[e.Paddr()], level-1, va, fn)
	}
}

// LinearTranslator hands out consecutive page frames starting at a base
// address. It stands in for a frame allocator.
type LinearTranslator struct {
	mu   sync.Mutex
	next hostarch.Addr
}

// NewLinearTranslator returns a LinearTranslator starting at base.
func NewLinearTranslator(base hostarch.Addr) *LinearTranslator {
	return &LinearTranslator{next: base.RoundDown()}
}

// TranslateToPhysical implements Translator.TranslateToPhysical.
func (l *LinearTranslator) TranslateToPhysical(*PTEs) hostarch.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.next
	l.next += hostarch.PageSize
	return a
}
