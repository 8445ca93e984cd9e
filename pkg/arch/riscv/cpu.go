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

// Package riscv drives RISC-V 64 (Sv48) harts: the user-mode dispatcher,
// the page table entry codec with sfence.vma based TLB maintenance, and the
// PLIC interrupt controller.
package riscv

import (
	"fmt"
	"time"

	"github.com/kernhal/kernhal/pkg/atomicbitops"
	"github.com/kernhal/kernhal/pkg/irq"
	"github.com/kernhal/kernhal/pkg/log"
)

const (
	// AddressBits is the virtual address width of Sv48.
	AddressBits = 48

	// MaxUserspaceVaddr is the end of the user half of the address space.
	MaxUserspaceVaddr = 1 << (AddressBits - 1)
)

// Config configures a CPU.
type Config struct {
	// ID is the hart number, used to select PLIC contexts.
	ID int

	// Hart is the core to drive.
	Hart Hart

	// Controller handles external interrupts. If nil, the machine's active
	// controller is used.
	Controller irq.Controller

	// Lines holds the callbacks for external interrupts.
	Lines *irq.Lines

	// Timer is called on every timer interrupt.
	Timer func()
}

// Stats are event counters for one CPU.
type Stats struct {
	UserEntries    uint64
	Syscalls       uint64
	Exceptions     uint64
	FPUActivations uint64
	TimerTicks     uint64
	ExternalIRQs   uint64
	KernelEvents   uint64
}

// CPU is the dispatcher state of one hart.
type CPU struct {
	id    int
	hart  Hart
	ctrl  irq.Controller
	lines *irq.Lines
	timer func()

	kernelInterrupted atomicbitops.Bool

	userEntries    atomicbitops.Uint64
	syscalls       atomicbitops.Uint64
	exceptions     atomicbitops.Uint64
	fpuActivations atomicbitops.Uint64
	timerTicks     atomicbitops.Uint64
	externalIRQs   atomicbitops.Uint64
	kernelEvents   atomicbitops.Uint64
}

var faultLog = log.BasicRateLimitedLogger(100 * time.Millisecond)

// NewCPU returns the dispatcher for c.Hart.
func NewCPU(c Config) (*CPU, error) {
	if c.Hart == nil {
		return nil, fmt.Errorf("hart %d: no hart", c.ID)
	}
	if c.ID < 0 {
		return nil, fmt.Errorf("hart %d: negative id", c.ID)
	}
	return &CPU{
		id:    c.ID,
		hart:  c.Hart,
		ctrl:  c.Controller,
		lines: c.Lines,
		timer: c.Timer,
	}, nil
}

// ID returns the hart number.
func (c *CPU) ID() int {
	return c.id
}

// Hart returns the underlying hart.
func (c *CPU) Hart() Hart {
	return c.hart
}

// Stats returns a snapshot of the counters.
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

// IsKernelInterrupted returns true while an interrupt taken in kernel mode
// is being handled.
func (c *CPU) IsKernelInterrupted() bool {
	return c.kernelInterrupted.Load()
}

func (c *CPU) controller() irq.Controller {
	if c.ctrl == nil {
		c.ctrl = irq.MustActive()
	}
	return c.ctrl
}

// handleInterrupt services i. External interrupts are claimed until the
// PLIC has nothing left for this hart.
func (c *CPU) handleInterrupt(i Interrupt, f irq.Frame) {
	switch i {
	case IntTimer:
		c.hart.AckTimer()
		c.timerTicks.Add(1)
		if c.timer != nil {
			c.timer()
		}
	case IntExternal:
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
	default:
		panic(fmt.Sprintf("hart %d: unexpected interrupt %v at pc %#x", c.id, i, f.InstructionPointer()))
	}
}
