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

// PCH-PIC register offsets.
const (
	pchIntMask     = 0x020
	pchHTMSIVector = 0x200
	pchLines       = 64

	// PCHPICSize is the size of the PCH-PIC register window.
	PCHPICSize = 0x400
)

// PCHPIC models the LoongArch platform interrupt controller. An unmasked
// line is forwarded to the EIOINTC as the vector in its HTMSI_VECTOR byte.
// All lines start masked.
type PCHPIC struct {
	mu   sync.Mutex
	regs *mmio.IoMem
	out  *EIOINTC
}

// NewPCHPIC returns a controller forwarding to out.
func NewPCHPIC(out *EIOINTC) (*PCHPIC, error) {
	m, err := mmio.NewIoMem(PCHPICSize)
	if err != nil {
		return nil, fmt.Errorf("pch-pic: %w", err)
	}
	backingStore(m, pchIntMask, 8, ^uint64(0))
	return &PCHPIC{regs: m, out: out}, nil
}

// Close releases the register file.
func (p *PCHPIC) Close() error {
	return p.regs.Close()
}

// Region returns the register window.
func (p *PCHPIC) Region() mmio.Region {
	return region{dev: p}
}

// Raise asserts line n. It returns the core the resulting vector was
// delivered to, or false if the line is masked or the vector was dropped.
func (p *PCHPIC) Raise(n int) (int, bool) {
	if n < 0 || n >= pchLines {
		panic(fmt.Sprintf("pch-pic: raise of line %d", n))
	}
	p.mu.Lock()
	masked := backingLoad(p.regs, pchIntMask, 8)&(1<<n) != 0
	vector := int(backingLoad(p.regs, pchHTMSIVector+uint64(n), 1))
	p.mu.Unlock()
	if masked {
		return 0, false
	}
	return p.out.Raise(vector)
}

func (p *PCHPIC) size() uint64 {
	return PCHPICSize
}

func (p *PCHPIC) load(off, width uint64) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return backingLoad(p.regs, off, width)
}

func (p *PCHPIC) store(off, width, v uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	backingStore(p.regs, off, width, v)
}
