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

package sim

import (
	"fmt"

	"github.com/kernhal/kernhal/pkg/mmio"
	"github.com/kernhal/kernhal/pkg/sync"
)

// PLIC register layout.
const (
	plicPriorityBase  = 0x0
	plicPendingBase   = 0x1000
	plicEnableBase    = 0x2000
	plicEnableStride  = 0x80
	plicContextBase   = 0x200000
	plicContextStride = 0x1000
	plicClaimOffset   = 4
)

// PLIC models a RISC-V platform-level interrupt controller with two
// contexts (M and S mode) per hart.
//
// Claim picks the enabled pending source of highest priority above the
// context's threshold; ties go to the lowest source number. A claimed
// source is not pending again until it is completed. Only 32-bit accesses
// are supported.
type PLIC struct {
	mu        sync.Mutex
	sources   int
	contexts  int
	priority  []uint32
	pending   []uint32
	inflight  []uint32
	enable    [][]uint32
	threshold []uint32
}

// NewPLIC returns a controller with the given number of sources (including
// the reserved source 0) for harts harts.
func NewPLIC(sources, harts int) *PLIC {
	if sources <= 1 || sources > 1024 || harts <= 0 {
		panic(fmt.Sprintf("plic: %d sources, %d harts", sources, harts))
	}
	words := (sources + 31) / 32
	p := &PLIC{
		sources:   sources,
		contexts:  2 * harts,
		priority:  make([]uint32, sources),
		pending:   make([]uint32, words),
		inflight:  make([]uint32, words),
		enable:    make([][]uint32, 2*harts),
		threshold: make([]uint32, 2*harts),
	}
	for i := range p.enable {
		p.enable[i] = make([]uint32, words)
	}
	return p
}

// Region returns the register window.
func (p *PLIC) Region() mmio.Region {
	return region{dev: p}
}

// Raise asserts source n. It returns false if n is already pending or being
// handled.
func (p *PLIC) Raise(n int) bool {
	if n <= 0 || n >= p.sources {
		panic(fmt.Sprintf("plic: raise of source %d", n))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	w, bit := n/32, uint32(1)<<(n%32)
	if (p.pending[w]|p.inflight[w])&bit != 0 {
		return false
	}
	p.pending[w] |= bit
	return true
}

// claim selects and acknowledges the best source for ctx, or returns 0.
//
// Preconditions: p.mu is locked.
func (p *PLIC) claim(ctx int) uint32 {
	best, bestPrio := 0, p.threshold[ctx]
	for n := 1; n < p.sources; n++ {
		w, bit := n/32, uint32(1)<<(n%32)
		if p.pending[w]&p.enable[ctx][w]&bit == 0 {
			continue
		}
		if p.priority[n] > bestPrio {
			best, bestPrio = n, p.priority[n]
		}
	}
	if best != 0 {
		w, bit := best/32, uint32(1)<<(best%32)
		p.pending[w] &^= bit
		p.inflight[w] |= bit
	}
	return uint32(best)
}

func (p *PLIC) size() uint64 {
	return plicContextBase + uint64(p.contexts)*plicContextStride
}

func (p *PLIC) load(off, width uint64) uint64 {
	if width != 4 {
		panic(fmt.Sprintf("plic: %d-byte read at %#x", width, off))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case off < plicPendingBase:
		if n := int(off-plicPriorityBase) / 4; n < p.sources {
			return uint64(p.priority[n])
		}
	case off < plicEnableBase:
		if w := int(off-plicPendingBase) / 4; w < len(p.pending) {
			return uint64(p.pending[w])
		}
	case off < plicContextBase:
		ctx, w := int(off-plicEnableBase)/plicEnableStride, int(off-plicEnableBase)%plicEnableStride/4
		if ctx < p.contexts && w < len(p.pending) {
			return uint64(p.enable[ctx][w])
		}
	default:
		ctx, reg := int(off-plicContextBase)/plicContextStride, (off-plicContextBase)%plicContextStride
		switch reg {
		case 0:
			return uint64(p.threshold[ctx])
		case plicClaimOffset:
			return uint64(p.claim(ctx))
		}
	}
	return 0
}

func (p *PLIC) store(off, width, v uint64) {
	if width != 4 {
		panic(fmt.Sprintf("plic: %d-byte write at %#x", width, off))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case off < plicPendingBase:
		if n := int(off-plicPriorityBase) / 4; n > 0 && n < p.sources {
			p.priority[n] = uint32(v) & 7
		}
	case off < plicEnableBase:
		// Pending bits are read-only.
	case off < plicContextBase:
		ctx, w := int(off-plicEnableBase)/plicEnableStride, int(off-plicEnableBase)%plicEnableStride/4
		if ctx < p.contexts && w < len(p.pending) {
			en := uint32(v)
			if w == 0 {
				// Source 0 does not exist.
				en &^= 1
			}
			p.enable[ctx][w] = en
		}
	default:
		ctx, reg := int(off-plicContextBase)/plicContextStride, (off-plicContextBase)%plicContextStride
		switch reg {
		case 0:
			p.threshold[ctx] = uint32(v) & 7
		case plicClaimOffset:
			if n := int(v); n > 0 && n < p.sources {
				p.inflight[n/32] &^= 1 << (n % 32)
			}
		}
	}
}
