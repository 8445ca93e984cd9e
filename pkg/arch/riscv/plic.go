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

	"github.com/kernhal/kernhal/pkg/irq"
	"github.com/kernhal/kernhal/pkg/mmio"
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

	// PLICBase is the physical address of the PLIC on QEMU virt.
	PLICBase = 0x0c00_0000

	// MaxPLICSources is the architectural limit on sources, including
	// the reserved source 0.
	MaxPLICSources = 1024
)

// PLIC drives a platform-level interrupt controller. Each hart has a
// machine-mode and a supervisor-mode context; this driver only programs
// the supervisor contexts. All registers are 32 bits wide.
type PLIC struct {
	regs    mmio.Regs
	sources int
	harts   int
}

// PLICSize returns the size of the register window covering harts harts.
func PLICSize(harts int) uint64 {
	return plicContextBase + uint64(2*harts)*plicContextStride
}

// NewPLIC returns a driver for the PLIC registers in r, with the given
// number of sources (source 0 included) and harts.
func NewPLIC(r mmio.Region, sources, harts int) (*PLIC, error) {
	if sources < 2 || sources > MaxPLICSources {
		return nil, fmt.Errorf("plic: %d sources, want [2, %d]", sources, MaxPLICSources)
	}
	if harts <= 0 {
		return nil, fmt.Errorf("plic: %d harts", harts)
	}
	if r.Size() < PLICSize(harts) {
		return nil, fmt.Errorf("plic: window of %#x bytes too small for %d harts", r.Size(), harts)
	}
	return &PLIC{
		regs:    mmio.Regs{Region: r, Name: "plic"},
		sources: sources,
		harts:   harts,
	}, nil
}

// ContextID returns the context number of a hart's machine or supervisor
// mode.
func ContextID(hart int, supervisor bool) int {
	if supervisor {
		return 2*hart + 1
	}
	return 2 * hart
}

func (p *PLIC) context(hart int) int {
	if hart < 0 || hart >= p.harts {
		panic(fmt.Sprintf("plic: hart %d out of range [0, %d)", hart, p.harts))
	}
	return ContextID(hart, true)
}

func enableWord(ctx, n int) (off uint64, bit uint32) {
	return plicEnableBase + uint64(ctx)*plicEnableStride + uint64(n/32)*4, 1 << (n % 32)
}

func thresholdReg(ctx int) uint64 {
	return plicContextBase + uint64(ctx)*plicContextStride
}

// Init implements irq.Controller.Init. Every supervisor context is given a
// zero threshold and all sources masked.
func (p *PLIC) Init() error {
	words := (p.sources + 31) / 32
	for h := 0; h < p.harts; h++ {
		ctx := p.context(h)
		p.regs.Store32(thresholdReg(ctx), 0)
		for w := 0; w < words; w++ {
			off, _ := enableWord(ctx, w*32)
			p.regs.Store32(off, 0)
		}
	}
	return nil
}

// EnableOn unmasks source n for one hart.
func (p *PLIC) EnableOn(hart, n int) {
	if irq.OutOfRange("plic", "enable", n, p.sources) {
		return
	}
	off, bit := enableWord(p.context(hart), n)
	p.regs.Store32(off, p.regs.Load32(off)|bit)
}

// DisableOn masks source n for one hart.
func (p *PLIC) DisableOn(hart, n int) {
	if irq.OutOfRange("plic", "disable", n, p.sources) {
		return
	}
	off, bit := enableWord(p.context(hart), n)
	p.regs.Store32(off, p.regs.Load32(off)&^bit)
}

// Enable implements irq.Controller.Enable. The source is unmasked on every
// hart; the first to claim it handles it.
func (p *PLIC) Enable(n int) {
	for h := 0; h < p.harts; h++ {
		p.EnableOn(h, n)
	}
}

// Disable implements irq.Controller.Disable.
func (p *PLIC) Disable(n int) {
	for h := 0; h < p.harts; h++ {
		p.DisableOn(h, n)
	}
}

// IsEnabled returns true if source n is unmasked for hart.
func (p *PLIC) IsEnabled(hart, n int) bool {
	if irq.OutOfRange("plic", "is-enabled", n, p.sources) {
		return false
	}
	off, bit := enableWord(p.context(hart), n)
	return p.regs.Load32(off)&bit != 0
}

// IsPending returns true if source n is waiting to be claimed.
func (p *PLIC) IsPending(n int) bool {
	if irq.OutOfRange("plic", "is-pending", n, p.sources) {
		return false
	}
	return p.regs.Load32(plicPendingBase+uint64(n/32)*4)&(1<<(n%32)) != 0
}

// SetPriority implements irq.Controller.SetPriority.
func (p *PLIC) SetPriority(n int, priority uint32) {
	irq.CheckPriority("plic priority", priority)
	if irq.OutOfRange("plic", "set-priority", n, p.sources) {
		return
	}
	p.regs.Store32(plicPriorityBase+uint64(n)*4, priority)
}

// Priority returns the priority of source n.
func (p *PLIC) Priority(n int) uint32 {
	if irq.OutOfRange("plic", "priority", n, p.sources) {
		return 0
	}
	return p.regs.Load32(plicPriorityBase + uint64(n)*4)
}

// SetThreshold implements irq.Controller.SetThreshold.
func (p *PLIC) SetThreshold(cpu int, threshold uint32) {
	irq.CheckPriority("plic threshold", threshold)
	p.regs.Store32(thresholdReg(p.context(cpu)), threshold)
}

// Threshold returns the threshold of hart's supervisor context.
func (p *PLIC) Threshold(hart int) uint32 {
	return p.regs.Load32(thresholdReg(p.context(hart)))
}

// Claim implements irq.Controller.Claim.
func (p *PLIC) Claim(cpu int) (int, bool) {
	n := p.regs.Load32(thresholdReg(p.context(cpu)) + plicClaimOffset)
	if n == 0 {
		return 0, false
	}
	return int(n), true
}

// Complete implements irq.Controller.Complete.
func (p *PLIC) Complete(cpu int, n int) {
	if irq.OutOfRange("plic", "complete", n, p.sources) {
		return
	}
	p.regs.Store32(thresholdReg(p.context(cpu))+plicClaimOffset, uint32(n))
}

// NumSources implements irq.Controller.NumSources.
func (p *PLIC) NumSources() int {
	return p.sources
}

var _ irq.Controller = (*PLIC)(nil)
