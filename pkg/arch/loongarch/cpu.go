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

// Package loongarch implements user execution, page table entries, TLB
// maintenance and interrupt controllers for LoongArch64.
package loongarch

import (
	"fmt"
	"time"

	"github.com/kernhal/kernhal/pkg/atomicbitops"
	"github.com/kernhal/kernhal/pkg/irq"
	"github.com/kernhal/kernhal/pkg/log"
)

// Address space layout.
const (
	// AddressBits is the physical and virtual address width this package
	// supports.
	AddressBits = 48

	// MaxUserspaceVaddr is the end of the user half of the address space.
	MaxUserspaceVaddr = 1 << (AddressBits - 1)
)

// Config configures a CPU.
type Config struct {
	// ID is the logical CPU number, used to select controller banks.
	ID int

	// Hart is the core to drive.
	Hart Hart

	// Controller handles external interrupts. If nil, the machine's active
	// controller (irq.Active) is used.
	Controller irq.Controller

	// Lines holds the callbacks for external interrupts. It must be set if
	// external interrupts are enabled.
	Lines *irq.Lines

	// Timer is called on every timer interrupt.
	Timer func()
}

// Stats are per-CPU trap counters.
type Stats struct {
	UserEntries    uint64
	Syscalls       uint64
	Exceptions     uint64
	FPUActivations uint64
	TimerTicks     uint64
	ExternalIRQs   uint64
	KernelEvents   uint64
}

// CPU is the per-core state of the trap dispatcher.
type CPU struct {
	id    int
	hart  Hart
	ctrl  irq.Controller
	lines *irq.Lines
	timer func()

	// kernelInterrupted is set while an interrupt taken in kernel mode is
	// being handled.
	kernelInterrupted atomicbitops.Bool

	userEntries    atomicbitops.Uint64
	syscalls       atomicbitops.Uint64
	exceptions     atomicbitops.Uint64
	fpuActivations atomicbitops.Uint64
	timerTicks     atomicbitops.Uint64
	externalIRQs   atomicbitops.Uint64
	kernelEvents   atomicbitops.Uint64
}

// faultLog reports user faults. A faulting program can produce them in a
// tight loop.
var faultLog = log.BasicRateLimitedLogger(100 * time.Millisecond)

// NewCPU validates the hart and returns a CPU driving it.
func NewCPU(c Config) (*CPU, error) {
	if c.Hart == nil {
		return nil, fmt.Errorf("cpu %d: no hart", c.ID)
	}
	palen, valen := DecodeCPUCFG1(c.Hart.CPUCFG(1))
	if palen != AddressBits || valen != AddressBits {
		return nil, fmt.Errorf("cpu %d: PALEN %d, VALEN %d; only %d-bit addresses are supported", c.ID, palen, valen, AddressBits)
	}
	return &CPU{
		id:    c.ID,
		hart:  c.Hart,
		ctrl:  c.Controller,
		lines: c.Lines,
		timer: c.Timer,
	}, nil
}

// ID returns the logical CPU number.
func (c *CPU) ID() int {
	return c.id
}

// Hart returns the core driven by c.
func (c *CPU) Hart() Hart {
	return c.hart
}

// Stats returns a snapshot of the trap counters.
func (c *CPU) Stats() Stats {
	return Stats{
		UserEntries:    c.userEntries.Load(),
		Syscalls:       c.syscalls.Load(),
		Exceptions:     c.exceptions.Load(),
		FPUActivations: c.fpuActivations.Load(),
		TimerTicks:     c.timerTicks.Load(),
		ExternalIRQs:   c.externalIRQs.Load(),
		KernelEvents:   c.kernelEvents.Load(),
	}
}

// IsKernelInterrupted returns true if called while handling an interrupt
// that arrived in kernel mode.
func (c *CPU) IsKernelInterrupted() bool {
	return c.kernelInterrupted.Load()
}

func (c *CPU) controller() irq.Controller {
	if c.ctrl == nil {
		c.ctrl = irq.MustActive()
	}
	return c.ctrl
}

// handleTimer acknowledges and dispatches a timer interrupt.
func (c *CPU) handleTimer() {
	c.hart.AckTimer()
	c.timerTicks.Add(1)
	if c.timer != nil {
		c.timer()
	}
}

// handleExternal claims and dispatches interrupts until none is pending.
func (c *CPU) handleExternal(f irq.Frame) {
	ctrl := c.controller()
	for {
		n, ok := ctrl.Claim(c.id)
		if !ok {
			return
		}
		c.externalIRQs.Add(1)
		if c.lines != nil {
			c.lines.Dispatch(f, n)
		}
		ctrl.Complete(c.id, n)
	}
}

// handleInterrupt dispatches an interrupt. Sources this kernel never
// enables are fatal.
func (c *CPU) handleInterrupt(i Interrupt, f irq.Frame) {
	switch {
	case i == IntTimer:
		c.handleTimer()
	case i.IsExternal():
		c.handleExternal(f)
	default:
		panic(fmt.Sprintf("cpu %d: unexpected interrupt %v at pc %#x", c.id, i, f.InstructionPointer()))
	}
}
