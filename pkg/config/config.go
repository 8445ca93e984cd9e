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

// Package config describes a machine for the simulator and tools: its
// architecture, cores, interrupt controller and exit device windows, and
// logging.
package config

import (
	"fmt"
	"time"

	"github.com/kernhal/kernhal/pkg/arch/loongarch"
	"github.com/kernhal/kernhal/pkg/arch/riscv"
	"github.com/kernhal/kernhal/pkg/hostarch"
)

// Arch names a backend.
type Arch string

// Supported backends.
const (
	ArchLoongArch Arch = "loongarch"
	ArchRISCV     Arch = "riscv"
)

// Window is a physical register window.
type Window struct {
	Base uint64 `toml:"base" yaml:"base"`
	Size uint64 `toml:"size" yaml:"size"`
}

// End returns the first address past w.
func (w Window) End() uint64 {
	return w.Base + w.Size
}

// Overlaps returns true if w and o share an address.
func (w Window) Overlaps(o Window) bool {
	return w.Base < o.End() && o.Base < w.End()
}

// Platform is the description of one machine.
type Platform struct {
	// Arch selects the backend.
	Arch Arch `toml:"arch" yaml:"arch"`

	// CPUs is the number of cores.
	CPUs int `toml:"cpus" yaml:"cpus"`

	// Sources is the number of interrupt sources of the controller. For
	// the PLIC this includes the reserved source 0.
	Sources int `toml:"sources" yaml:"sources"`

	// Controller is the MMIO window of the PLIC or the PCH-PIC. The
	// EIOINTC lives in the per-core IOCSR space and has no window here.
	Controller Window `toml:"controller" yaml:"controller"`

	// Exit is the window of the QEMU exit device.
	Exit Window `toml:"exit" yaml:"exit"`

	// TimerInterval is the period of the timer interrupt.
	TimerInterval time.Duration `toml:"timer_interval" yaml:"timer_interval"`

	// Log configures logging.
	Log Log `toml:"log" yaml:"log"`
}

// Log configures logging.
type Log struct {
	// Level is one of warning, info and debug.
	Level string `toml:"level" yaml:"level"`

	// Format is text (glog style) or json.
	Format string `toml:"format" yaml:"format"`

	// File is a path pattern for the log file. %ARCH% and %TIMESTAMP% are
	// substituted. Empty means standard error.
	File string `toml:"file" yaml:"file"`
}

// maxLoongArchCPUs is the number of cores the EIOINTC can route to.
const maxLoongArchCPUs = 4

// Default returns the QEMU virt machine for arch.
func Default(arch Arch) (*Platform, error) {
	p := &Platform{
		Arch:          arch,
		CPUs:          1,
		TimerInterval: 10 * time.Millisecond,
		Log:           Log{Level: "info", Format: "text"},
	}
	switch arch {
	case ArchLoongArch:
		p.Sources = loongarch.PCHPICSources
		p.Controller = Window{Base: loongarch.PCHPICBase, Size: loongarch.PCHPICSize}
		p.Exit = Window{Base: loongarch.QemuExitBase, Size: hostarch.PageSize}
	case ArchRISCV:
		p.Sources = 96
		p.Controller = Window{Base: riscv.PLICBase, Size: riscv.PLICSize(p.CPUs)}
		p.Exit = Window{Base: riscv.QemuExitBase, Size: riscv.QemuExitSize}
	default:
		return nil, fmt.Errorf("unknown arch %q", arch)
	}
	return p, nil
}

// fill sets the unset fields of p from the defaults of its arch.
func (p *Platform) fill() error {
	d, err := Default(p.Arch)
	if err != nil {
		return err
	}
	if p.CPUs == 0 {
		p.CPUs = d.CPUs
	}
	if p.Sources == 0 {
		p.Sources = d.Sources
	}
	if p.Controller == (Window{}) {
		p.Controller = d.Controller
		if p.Arch == ArchRISCV {
			p.Controller.Size = riscv.PLICSize(p.CPUs)
		}
	}
	if p.Exit == (Window{}) {
		p.Exit = d.Exit
	}
	if p.TimerInterval == 0 {
		p.TimerInterval = d.TimerInterval
	}
	if p.Log.Level == "" {
		p.Log.Level = d.Log.Level
	}
	if p.Log.Format == "" {
		p.Log.Format = d.Log.Format
	}
	return nil
}

func (w Window) validate(what string, minSize uint64) error {
	if !hostarch.Addr(w.Base).IsPageAligned() {
		return fmt.Errorf("%s window base %#x is not page aligned", what, w.Base)
	}
	if w.Size < minSize {
		return fmt.Errorf("%s window size %#x, need at least %#x", what, w.Size, minSize)
	}
	if w.End() < w.Base {
		return fmt.Errorf("%s window %#x+%#x overflows", what, w.Base, w.Size)
	}
	return nil
}

// Validate checks that p describes a machine the backends can drive.
func (p *Platform) Validate() error {
	var maxCPUs, minSources, maxSources int
	var ctrlSize, exitSize uint64
	switch p.Arch {
	case ArchLoongArch:
		maxCPUs, minSources, maxSources = maxLoongArchCPUs, 1, loongarch.PCHPICSources
		ctrlSize, exitSize = loongarch.PCHPICSize, loongarch.QemuExitOffset+1
	case ArchRISCV:
		maxCPUs, minSources, maxSources = 1<<14, 2, riscv.MaxPLICSources
		ctrlSize, exitSize = riscv.PLICSize(p.CPUs), 4
	default:
		return fmt.Errorf("unknown arch %q", p.Arch)
	}
	if p.CPUs < 1 || p.CPUs > maxCPUs {
		return fmt.Errorf("%d cpus, want [1, %d] for %s", p.CPUs, maxCPUs, p.Arch)
	}
	if p.Sources < minSources || p.Sources > maxSources {
		return fmt.Errorf("%d interrupt sources, want [%d, %d] for %s", p.Sources, minSources, maxSources, p.Arch)
	}
	if err := p.Controller.validate("controller", ctrlSize); err != nil {
		return err
	}
	if err := p.Exit.validate("exit", exitSize); err != nil {
		return err
	}
	if p.Controller.Overlaps(p.Exit) {
		return fmt.Errorf("controller window %#x+%#x overlaps exit window %#x+%#x", p.Controller.Base, p.Controller.Size, p.Exit.Base, p.Exit.Size)
	}
	if p.TimerInterval < 0 {
		return fmt.Errorf("negative timer interval %v", p.TimerInterval)
	}
	return p.Log.validate()
}
