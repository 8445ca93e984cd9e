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

// EIOINTC register offsets in the IOCSR space.
const (
	iocsrMiscFunc    = 0x420
	miscFuncExtIOIEn = 1 << 49
	eioEnBase        = 0x1600
	eioBounceBase    = 0x1680
	eioSRBase        = 0x1700
	eioPercoreSR     = 0x1800
	eioMapCoreBase   = 0x1c00
	eioSources       = 256
	eioWords         = eioSources / 64

	// IOCSRSize is the size of the modelled IOCSR space.
	IOCSRSize = 0x2000
)

// EIOINTC models the LoongArch extended I/O interrupt controller and the
// IOCSR space it lives in.
//
// Registers without side effects are plain storage. Raise delivers a
// source to a core chosen from its MAP_CORE mask, rotating among the
// masked cores if bounce is enabled for it. Each core reads its own status
// words at 0x1800 and acknowledges by writing ones to them.
type EIOINTC struct {
	mu      sync.Mutex
	regs    *mmio.IoMem
	percore [][eioWords]uint64
	next    [eioSources]int
}

// NewEIOINTC returns a controller for the given number of cores.
func NewEIOINTC(cores int) (*EIOINTC, error) {
	if cores <= 0 {
		return nil, fmt.Errorf("eiointc: %d cores", cores)
	}
	m, err := mmio.NewIoMem(IOCSRSize)
	if err != nil {
		return nil, fmt.Errorf("eiointc: %w", err)
	}
	return &EIOINTC{regs: m, percore: make([][eioWords]uint64, cores)}, nil
}

// Close releases the register file.
func (e *EIOINTC) Close() error {
	return e.regs.Close()
}

// Core returns the IOCSR space as seen by cpu.
func (e *EIOINTC) Core(cpu int) mmio.Region {
	if cpu < 0 || cpu >= len(e.percore) {
		panic(fmt.Sprintf("eiointc: no cpu %d", cpu))
	}
	return region{dev: &eioCore{e: e, cpu: cpu}}
}

// Cores returns the IOCSR spaces of all cores, indexed by CPU number.
func (e *EIOINTC) Cores() []mmio.Region {
	rs := make([]mmio.Region, len(e.percore))
	for i := range rs {
		rs[i] = e.Core(i)
	}
	return rs
}

// Raise asserts source n. It returns the core the source was delivered to,
// or false if the controller or the source is disabled.
func (e *EIOINTC) Raise(n int) (int, bool) {
	if n < 0 || n >= eioSources {
		panic(fmt.Sprintf("eiointc: raise of source %d", n))
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if backingLoad(e.regs, iocsrMiscFunc, 8)&miscFuncExtIOIEn == 0 {
		return 0, false
	}
	word, bit := uint64(n/64)*8, uint64(1)<<(n%64)
	if backingLoad(e.regs, eioEnBase+word, 8)&bit == 0 {
		return 0, false
	}
	mask := backingLoad(e.regs, eioMapCoreBase+uint64(n), 1)
	bounce := backingLoad(e.regs, eioBounceBase+word, 8)&bit != 0
	cpu, ok := e.pickCore(n, mask, bounce)
	if !ok {
		return 0, false
	}
	e.percore[cpu][n/64] |= bit
	backingStore(e.regs, eioSRBase+word, 8, backingLoad(e.regs, eioSRBase+word, 8)|bit)
	return cpu, true
}

// pickCore selects a target from a core mask.
//
// Preconditions: e.mu is locked.
func (e *EIOINTC) pickCore(n int, mask uint64, bounce bool) (int, bool) {
	cores := len(e.percore)
	start := 0
	if bounce {
		start = e.next[n]
	}
	for i := 0; i < cores; i++ {
		cpu := (start + i) % cores
		if mask&(1<<cpu) != 0 {
			if bounce {
				e.next[n] = (cpu + 1) % cores
			}
			return cpu, true
		}
	}
	return 0, false
}

// Pending returns the status words of cpu.
func (e *EIOINTC) Pending(cpu int) [4]uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.percore[cpu]
}

// eioCore is the IOCSR space seen by one core.
type eioCore struct {
	e   *EIOINTC
	cpu int
}

func (c *eioCore) size() uint64 {
	return IOCSRSize
}

func isPercore(off uint64) bool {
	return off >= eioPercoreSR && off < eioPercoreSR+eioWords*8
}

func (c *eioCore) load(off, width uint64) uint64 {
	c.e.mu.Lock()
	defer c.e.mu.Unlock()
	if !isPercore(off) {
		return backingLoad(c.e.regs, off, width)
	}
	rel := off - eioPercoreSR
	return c.e.percore[c.cpu][rel/8] >> ((rel % 8) * 8) & widthMask(width)
}

func (c *eioCore) store(off, width, v uint64) {
	c.e.mu.Lock()
	defer c.e.mu.Unlock()
	if !isPercore(off) {
		backingStore(c.e.regs, off, width, v)
		return
	}
	// Write one to clear, in the core's status and the global status.
	rel := off - eioPercoreSR
	clr := (v & widthMask(width)) << ((rel % 8) * 8)
	w := rel / 8
	c.e.percore[c.cpu][w] &^= clr
	sr := eioSRBase + w*8
	backingStore(c.e.regs, sr, 8, backingLoad(c.e.regs, sr, 8)&^clr)
}
