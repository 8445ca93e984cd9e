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
	"fmt"

	"github.com/kernhal/kernhal/pkg/arch/loongarch"
	"github.com/kernhal/kernhal/pkg/arch/riscv"
	"github.com/kernhal/kernhal/pkg/cleanup"
	"github.com/kernhal/kernhal/pkg/config"
	"github.com/kernhal/kernhal/pkg/hostarch"
	"github.com/kernhal/kernhal/pkg/irq"
	"github.com/kernhal/kernhal/pkg/log"
	"github.com/kernhal/kernhal/pkg/mmio"
	"github.com/kernhal/kernhal/pkg/sim"
)

// machine is a platform built from the software models, with the drivers
// attached through a physical address bus.
type machine struct {
	p    *config.Platform
	bus  *mmio.Bus
	ctrl irq.Controller
	exit *sim.ExitDevice

	// raise asserts a device line.
	raise func(n int)

	// exitWindow is the driver's view of the exit device.
	exitWindow mmio.Region

	// teardown releases the register files.
	teardown func()
}

// newMachine builds the machine described by p. The controller is not
// initialized.
func newMachine(p *config.Platform) (*machine, error) {
	m := &machine{p: p, bus: mmio.NewBus()}
	cu := cleanup.Make(nil)
	defer cu.Clean()

	var err error
	switch p.Arch {
	case config.ArchRISCV:
		err = m.buildRISCV()
	case config.ArchLoongArch:
		err = m.buildLoongArch(&cu)
	default:
		err = fmt.Errorf("unknown arch %q", p.Arch)
	}
	if err != nil {
		return nil, err
	}

	m.exit = sim.NewExitDevice(p.Exit.Size)
	if err := m.bus.Attach("qemu-exit", hostarch.Addr(p.Exit.Base), m.exit.Region()); err != nil {
		return nil, err
	}
	if m.exitWindow, err = m.bus.Window(hostarch.Addr(p.Exit.Base), p.Exit.Size); err != nil {
		return nil, err
	}
	log.Debugf("devices: %v", m.bus.Devices())
	m.teardown = cu.Release()
	return m, nil
}

func (m *machine) buildRISCV() error {
	plic := sim.NewPLIC(m.p.Sources, m.p.CPUs)
	base := hostarch.Addr(m.p.Controller.Base)
	if err := m.bus.Attach("plic", base, plic.Region()); err != nil {
		return err
	}
	w, err := m.bus.Window(base, riscv.PLICSize(m.p.CPUs))
	if err != nil {
		return err
	}
	ctrl, err := riscv.NewPLIC(w, m.p.Sources, m.p.CPUs)
	if err != nil {
		return err
	}
	m.ctrl = ctrl
	m.raise = func(n int) {
		if !plic.Raise(n) {
			log.Debugf("plic: source %d already pending", n)
		}
	}
	return nil
}

func (m *machine) buildLoongArch(cu *cleanup.Cleanup) error {
	eio, err := sim.NewEIOINTC(m.p.CPUs)
	if err != nil {
		return err
	}
	cu.Add(func() { eio.Close() })
	pic, err := sim.NewPCHPIC(eio)
	if err != nil {
		return err
	}
	cu.Add(func() { pic.Close() })

	base := hostarch.Addr(m.p.Controller.Base)
	if err := m.bus.Attach("pch-pic", base, pic.Region()); err != nil {
		return err
	}
	w, err := m.bus.Window(base, loongarch.PCHPICSize)
	if err != nil {
		return err
	}
	m.ctrl = loongarch.NewIrqCtrl(loongarch.NewEIOINTC(eio.Cores()), loongarch.NewPCHPIC(w))
	m.raise = func(n int) {
		if cpu, ok := pic.Raise(n); ok {
			log.Debugf("pch-pic: line %d delivered to cpu %d", n, cpu)
		} else {
			log.Debugf("pch-pic: line %d dropped", n)
		}
	}
	return nil
}

// shutdown writes the exit device and returns what it latched.
func (m *machine) shutdown(success bool) sim.ExitWrite {
	switch m.p.Arch {
	case config.ArchRISCV:
		code := riscv.QemuExitSuccess
		if !success {
			code = riscv.QemuExitFailed
		}
		riscv.ExitQemu(m.exitWindow, code)
	case config.ArchLoongArch:
		code := loongarch.QemuExitSuccess
		if !success {
			code = loongarch.QemuExitFailed
		}
		loongarch.ExitQemu(m.exitWindow, code)
	}
	w, _ := m.exit.Exited()
	return w
}

// Close releases the register files.
func (m *machine) Close() error {
	if m.teardown != nil {
		m.teardown()
		m.teardown = nil
	}
	return nil
}
