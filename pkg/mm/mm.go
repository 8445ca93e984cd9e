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

// Package mm defines the architecture-neutral vocabulary used to describe a
// mapping. Every page-table codec translates PageProperty to and from its
// hardware entry format.
package mm

import (
	"fmt"
	"strings"

	"github.com/kernhal/kernhal/pkg/hostarch"
)

// PageFlags are the generic per-mapping flags.
type PageFlags uint8

const (
	// R allows reads.
	R PageFlags = 1 << iota
	// W allows writes.
	W
	// X allows instruction fetch.
	X
	// Accessed is set once the mapping has been used.
	Accessed
	// Dirty is set once the mapping has been written.
	Dirty
	// Avail1 is available for software use.
	Avail1
	// Avail2 is available for software use.
	Avail2
)

// Common permission combinations.
const (
	RW  = R | W
	RX  = R | X
	RWX = R | W | X
)

var pageFlagNames = []struct {
	f    PageFlags
	name string
}{
	{R, "R"}, {W, "W"}, {X, "X"}, {Accessed, "A"}, {Dirty, "D"}, {Avail1, "AVAIL1"}, {Avail2, "AVAIL2"},
}

// String implements fmt.Stringer.String.
func (f PageFlags) String() string {
	var parts []string
	for _, n := range pageFlagNames {
		if f&n.f != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, "|")
}

// AccessType returns the permission subset of f.
func (f PageFlags) AccessType() hostarch.AccessType {
	return hostarch.AccessType{
		Read:    f&R != 0,
		Write:   f&W != 0,
		Execute: f&X != 0,
	}
}

// PrivFlags are flags only the kernel may alter.
type PrivFlags uint8

const (
	// User makes the mapping accessible from user mode.
	User PrivFlags = 1 << iota
	// Global keeps the mapping in the TLB across address-space switches.
	Global
)

// String implements fmt.Stringer.String.
func (f PrivFlags) String() string {
	switch f {
	case 0:
		return "-"
	case User:
		return "USER"
	case Global:
		return "GLOBAL"
	case User | Global:
		return "USER|GLOBAL"
	default:
		return fmt.Sprintf("PrivFlags(%#x)", uint8(f))
	}
}

// CachePolicy specifies CPU memory access behavior.
type CachePolicy uint8

const (
	// Writeback is normal cacheable memory. It must be the zero value.
	Writeback CachePolicy = iota

	// Uncacheable is strongly ordered, uncached memory, as used for device
	// registers.
	Uncacheable

	// WriteCombining is uncached memory whose writes may be merged.
	WriteCombining

	// WriteProtected is cached for reads only.
	WriteProtected

	// Writethrough is cached with writes propagated immediately.
	Writethrough

	// NumCachePolicies is the number of cache policies.
	NumCachePolicies
)

// String implements fmt.Stringer.String.
func (c CachePolicy) String() string {
	switch c {
	case Writeback:
		return "Writeback"
	case Uncacheable:
		return "Uncacheable"
	case WriteCombining:
		return "WriteCombining"
	case WriteProtected:
		return "WriteProtected"
	case Writethrough:
		return "Writethrough"
	default:
		return fmt.Sprintf("%d", c)
	}
}

// ShortString returns a two-character string compactly representing the
// CachePolicy.
func (c CachePolicy) ShortString() string {
	switch c {
	case Writeback:
		return "WB"
	case Uncacheable:
		return "UC"
	case WriteCombining:
		return "WC"
	case WriteProtected:
		return "WP"
	case Writethrough:
		return "WT"
	default:
		return fmt.Sprintf("%02d", c)
	}
}

// PageProperty describes a mapping independently of any hardware format.
type PageProperty struct {
	Flags PageFlags
	Priv  PrivFlags
	Cache CachePolicy
}

// String implements fmt.Stringer.String.
func (p PageProperty) String() string {
	return fmt.Sprintf("{%v %v %s}", p.Flags, p.Priv, p.Cache.ShortString())
}

// PageTableEntry is the view of one hardware entry shared by all codecs.
type PageTableEntry interface {
	// IsPresent returns true if the entry maps a page.
	IsPresent() bool

	// Paddr returns the physical address held by the entry.
	Paddr() hostarch.Addr

	// Prop decodes the entry's generic properties.
	Prop() PageProperty

	// IsLast returns true if the entry, found at the given level, is a leaf.
	IsLast(level int) bool

	// Raw returns the packed entry.
	Raw() uint64
}
