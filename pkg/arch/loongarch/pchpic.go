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
	"github.com/kernhal/kernhal/pkg/irq"
	"github.com/kernhal/kernhal/pkg/mmio"
)

// PCH-PIC registers.
const (
	pchPICIntMask     = 0x020
	pchPICIntEdge     = 0x060
	pchPICHTMSIVector = 0x200
	pchPICIntPolarity = 0x3e0

	// PCHPICBase is the physical address of the controller on QEMU virt.
	PCHPICBase = 0x1000_0000

	// PCHPICSize is the size of the register window.
	PCHPICSize = 0x400

	// PCHPICSources is the number of input lines.
	PCHPICSources = 64
)

// PCHPIC drives the platform interrupt controller, which forwards device
// lines to the EIOINTC as message vectors.
type PCHPIC struct {
	regs mmio.Regs
}

// NewPCHPIC returns a driver for the controller at r.
func NewPCHPIC(r mmio.Region) *PCHPIC {
	return &PCHPIC{regs: mmio.Regs{Region: r, Name: "pch-pic"}}
}

// Init makes every line level triggered and active high.
func (p *PCHPIC) Init() {
	for half := uint64(0); half < 2; half++ {
		p.regs.Store32(pchPICIntPolarity+half*4, 0)
		p.regs.Store32(pchPICIntEdge+half*4, 0)
	}
}

// maskReg returns the 32-bit mask register and bit for line n.
func maskReg(n int) (uint64, uint32) {
	return pchPICIntMask + uint64(n/32)*4, 1 << (n % 32)
}

// Unmask routes line n to vector n and unmasks it.
func (p *PCHPIC) Unmask(n int) {
	if irq.OutOfRange("pch-pic", "unmask", n, PCHPICSources) {
		return
	}
	off, bit := maskReg(n)
	p.regs.Store32(off, p.regs.Load32(off)&^bit)
	p.regs.Store8(pchPICHTMSIVector+uint64(n), uint8(n))
}

// Mask masks line n.
func (p *PCHPIC) Mask(n int) {
	if irq.OutOfRange("pch-pic", "mask", n, PCHPICSources) {
		return
	}
	off, bit := maskReg(n)
	p.regs.Store32(off, p.regs.Load32(off)|bit)
}

// IsMasked returns true if line n is masked.
func (p *PCHPIC) IsMasked(n int) bool {
	if irq.OutOfRange("pch-pic", "is masked", n, PCHPICSources) {
		return true
	}
	off, bit := maskReg(n)
	return p.regs.Load32(off)&bit != 0
}
