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
	"math/bits"

	"github.com/kernhal/kernhal/pkg/irq"
	"github.com/kernhal/kernhal/pkg/mmio"
)

// EIOINTC registers, in the IOCSR space.
const (
	iocsrMiscFunc      = 0x420
	miscFuncExtIOIEn   = 1 << 49
	extIOIEnBase       = 0x1600
	extIOIBounceBase   = 0x1680
	extIOISRBase       = 0x1700
	percoreExtIOISR    = 0x1800
	extIOIMapBase      = 0x14c0
	extIOIMapCoreBase  = 0x1c00
	extIOINodeTypeBase = 0x14a0

	// EIOINTCSources is the number of extended interrupt sources.
	EIOINTCSources = 256

	eiointcWords    = EIOINTCSources / 64
	eiointcPins     = 8
	eiointcMaxCores = 4
)

// EIOINTC drives the extended I/O interrupt controller.
//
// Each core reaches its own status registers through its own IOCSR space,
// so the driver holds one window per core. Configuration goes through the
// boot core's window.
type EIOINTC struct {
	cores []mmio.Regs
}

// NewEIOINTC returns a driver for the controller. iocsr holds the IOCSR
// space of each core, indexed by CPU number.
func NewEIOINTC(iocsr []mmio.Region) *EIOINTC {
	e := &EIOINTC{cores: make([]mmio.Regs, len(iocsr))}
	for i, r := range iocsr {
		e.cores[i] = mmio.Regs{Region: r, Name: fmt.Sprintf("eiointc/cpu%d", i)}
	}
	return e
}

func (e *EIOINTC) boot() mmio.Regs {
	return e.cores[0]
}

// Init enables the controller and routes every source to all cores.
// Source n is delivered on pin HWI(n/32).
func (e *EIOINTC) Init() error {
	n := len(e.cores)
	if n == 0 || n > eiointcMaxCores {
		return fmt.Errorf("eiointc: %d cores, want 1 to %d", n, eiointcMaxCores)
	}
	r := e.boot()
	r.Store64(iocsrMiscFunc, r.Load64(iocsrMiscFunc)|miscFuncExtIOIEn)
	for i := uint64(0); i < eiointcPins; i++ {
		r.Store8(extIOIMapBase+i, uint8(i))
	}
	for i := uint64(0); i < EIOINTCSources; i++ {
		r.Store8(extIOIMapCoreBase+i, uint8(1<<n-1))
	}
	// Route through node 0.
	r.Store16(extIOINodeTypeBase, 0x01)
	return nil
}

func eiointcBit(n int) (off uint64, bit uint64) {
	return uint64(n/64) * 8, 1 << (n % 64)
}

// Enable unmasks n and lets it rotate between cores.
func (e *EIOINTC) Enable(n int) {
	if irq.OutOfRange("eiointc", "enable", n, EIOINTCSources) {
		return
	}
	r := e.boot()
	off, bit := eiointcBit(n)
	r.Store64(extIOIEnBase+off, r.Load64(extIOIEnBase+off)|bit)
	r.Store64(extIOIBounceBase+off, r.Load64(extIOIBounceBase+off)|bit)
}

// Disable masks n.
func (e *EIOINTC) Disable(n int) {
	if irq.OutOfRange("eiointc", "disable", n, EIOINTCSources) {
		return
	}
	r := e.boot()
	off, bit := eiointcBit(n)
	r.Store64(extIOIEnBase+off, r.Load64(extIOIEnBase+off)&^bit)
}

// IsEnabled returns true if n is unmasked.
func (e *EIOINTC) IsEnabled(n int) bool {
	if irq.OutOfRange("eiointc", "is enabled", n, EIOINTCSources) {
		return false
	}
	off, bit := eiointcBit(n)
	return e.boot().Load64(extIOIEnBase+off)&bit != 0
}

func (e *EIOINTC) core(cpu int) (mmio.Regs, bool) {
	if cpu < 0 || cpu >= len(e.cores) {
		return mmio.Regs{}, false
	}
	return e.cores[cpu], true
}

// Claim returns the highest numbered source pending on cpu. Status words
// are scanned from the top, and each word from its most significant bit.
func (e *EIOINTC) Claim(cpu int) (int, bool) {
	r, ok := e.core(cpu)
	if !ok {
		panic(fmt.Sprintf("eiointc: claim on unknown cpu %d", cpu))
	}
	for w := eiointcWords - 1; w >= 0; w-- {
		if v := r.Load64(percoreExtIOISR + uint64(w)*8); v != 0 {
			return w*64 + 63 - bits.LeadingZeros64(v), true
		}
	}
	return 0, false
}

// Complete acknowledges n on cpu by clearing its status bit.
func (e *EIOINTC) Complete(cpu int, n int) {
	if irq.OutOfRange("eiointc", "complete", n, EIOINTCSources) {
		return
	}
	r, ok := e.core(cpu)
	if !ok {
		panic(fmt.Sprintf("eiointc: complete on unknown cpu %d", cpu))
	}
	off, bit := eiointcBit(n)
	r.Store64(percoreExtIOISR+off, bit)
}

// NumSources returns the number of sources.
func (e *EIOINTC) NumSources() int {
	return EIOINTCSources
}
