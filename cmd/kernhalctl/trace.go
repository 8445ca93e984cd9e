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

package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/kernhal/kernhal/pkg/arch/loongarch"
	"github.com/kernhal/kernhal/pkg/arch/riscv"
	"github.com/kernhal/kernhal/pkg/config"
	"github.com/kernhal/kernhal/pkg/sim"
)

// Trap kinds of a trace step.
const (
	trapSyscall    = "syscall"
	trapFPSyscall  = "fp-syscall"
	trapTimer      = "timer"
	trapIRQ        = "irq"
	trapPageFault  = "page-fault"
	trapBreakpoint = "breakpoint"
)

// trace is a scripted user program: the traps it takes, in order. Every
// CPU of the machine runs the whole trace.
type trace struct {
	Steps []step `toml:"steps" yaml:"steps"`
}

// step is one trap.
type step struct {
	// Trap is the kind of trap.
	Trap string `toml:"trap" yaml:"trap"`

	// Syscall is the system call number for syscall traps.
	Syscall uint64 `toml:"syscall" yaml:"syscall"`

	// Addr is the faulting address of page faults and breakpoints.
	Addr uint64 `toml:"addr" yaml:"addr"`

	// Lines are the device lines raised by an irq trap.
	Lines []int `toml:"lines" yaml:"lines"`
}

func (s step) validate() error {
	switch s.Trap {
	case trapSyscall, trapFPSyscall, trapTimer, trapPageFault, trapBreakpoint:
		return nil
	case trapIRQ:
		if len(s.Lines) == 0 {
			return fmt.Errorf("irq step without lines")
		}
		return nil
	default:
		return fmt.Errorf("unknown trap %q", s.Trap)
	}
}

// loadTrace reads a trace in TOML or YAML.
func loadTrace(path string) (*trace, error) {
	f, err := config.FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseTrace(data, f)
}

func parseTrace(data []byte, f config.Format) (*trace, error) {
	var t trace
	switch f {
	case config.FormatTOML:
		md, err := toml.Decode(string(data), &t)
		if err != nil {
			return nil, err
		}
		if undec := md.Undecoded(); len(undec) > 0 {
			return nil, fmt.Errorf("unknown key %q", undec[0].String())
		}
	case config.FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&t); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown format %q", f)
	}
	if len(t.Steps) == 0 {
		return nil, fmt.Errorf("empty trace")
	}
	for i, s := range t.Steps {
		if err := s.validate(); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}
	// Interrupts are handled without leaving the dispatcher, so the
	// program must end with a trap that returns to the kernel.
	if last := t.Steps[len(t.Steps)-1].Trap; last == trapTimer || last == trapIRQ {
		return nil, fmt.Errorf("trace ends with a %s step", last)
	}
	return &t, nil
}

// riscvSteps translates t for a RISC-V hart. raise asserts device lines.
func (t *trace) riscvSteps(raise func(int)) []sim.RISCVStep {
	steps := make([]sim.RISCVStep, 0, len(t.Steps))
	for _, s := range t.Steps {
		var rs sim.RISCVStep
		switch s.Trap {
		case trapSyscall, trapFPSyscall:
			nr := s.Syscall
			rs = sim.RISCVStep{
				Exception: riscv.ExcUserEnvCall,
				UsesFPU:   s.Trap == trapFPSyscall,
				Run: func(regs *riscv.RawRegs, _ *riscv.FpuState) {
					regs.General.Set(riscv.A7, nr)
				},
			}
		case trapTimer:
			rs = sim.RISCVStep{Interrupt: riscv.IntTimer}
		case trapIRQ:
			rs = sim.RISCVStep{Interrupt: riscv.IntExternal, Before: raiseAll(raise, s.Lines)}
		case trapPageFault:
			rs = sim.RISCVStep{Exception: riscv.ExcLoadPageFault, STval: s.Addr}
		case trapBreakpoint:
			rs = sim.RISCVStep{Exception: riscv.ExcBreakpoint, STval: s.Addr}
		}
		steps = append(steps, rs)
	}
	return steps
}

// loongArchSteps translates t for a LoongArch core.
func (t *trace) loongArchSteps(raise func(int)) []sim.LoongArchStep {
	steps := make([]sim.LoongArchStep, 0, len(t.Steps))
	for _, s := range t.Steps {
		var ls sim.LoongArchStep
		switch s.Trap {
		case trapSyscall, trapFPSyscall:
			nr := s.Syscall
			ls = sim.LoongArchStep{
				Exception: loongarch.ExcSyscall,
				UsesFPU:   s.Trap == trapFPSyscall,
				Run: func(regs *loongarch.RawRegs, _ *loongarch.FpuState) {
					regs.General.Set(loongarch.A7, nr)
				},
			}
		case trapTimer:
			ls = sim.LoongArchStep{Interrupts: 1 << loongarch.IntTimer}
		case trapIRQ:
			var pins uint64
			for _, n := range s.Lines {
				// The EIOINTC signals source n on HWI(n/32).
				pins |= 1 << (int(loongarch.IntHWI0) + n/32)
			}
			ls = sim.LoongArchStep{Interrupts: pins, Before: raiseAll(raise, s.Lines)}
		case trapPageFault:
			ls = sim.LoongArchStep{Exception: loongarch.ExcLoadPageFault, BADV: s.Addr}
		case trapBreakpoint:
			ls = sim.LoongArchStep{Exception: loongarch.ExcBreakpoint, BADV: s.Addr}
		}
		steps = append(steps, ls)
	}
	return steps
}

func raiseAll(raise func(int), lines []int) func() {
	return func() {
		for _, n := range lines {
			raise(n)
		}
	}
}
