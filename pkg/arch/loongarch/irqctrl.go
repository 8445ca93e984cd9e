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
	"github.com/kernhal/kernhal/pkg/log"
)

// IrqCtrl is the interrupt controller of a LoongArch virt machine: device
// lines enter the PCH-PIC and are delivered to cores by the EIOINTC.
//
// Neither chip has priorities. A nonzero priority enables a source and
// zero disables it; thresholds are not supported.
type IrqCtrl struct {
	eio *EIOINTC
	pic *PCHPIC
}

// NewIrqCtrl returns the composite controller.
func NewIrqCtrl(eio *EIOINTC, pic *PCHPIC) *IrqCtrl {
	return &IrqCtrl{eio: eio, pic: pic}
}

// Init implements irq.Controller.Init.
func (c *IrqCtrl) Init() error {
	if err := c.eio.Init(); err != nil {
		return err
	}
	c.pic.Init()
	return nil
}

// Enable implements irq.Controller.Enable.
func (c *IrqCtrl) Enable(n int) {
	if irq.OutOfRange("irqctrl", "enable", n, PCHPICSources) {
		return
	}
	c.eio.Enable(n)
	c.pic.Unmask(n)
}

// Disable implements irq.Controller.Disable.
func (c *IrqCtrl) Disable(n int) {
	if irq.OutOfRange("irqctrl", "disable", n, PCHPICSources) {
		return
	}
	c.eio.Disable(n)
	c.pic.Mask(n)
}

// SetPriority implements irq.Controller.SetPriority.
func (c *IrqCtrl) SetPriority(n int, priority uint32) {
	irq.CheckPriority("priority", priority)
	if priority == 0 {
		c.Disable(n)
	} else {
		c.Enable(n)
	}
}

// SetThreshold implements irq.Controller.SetThreshold.
func (c *IrqCtrl) SetThreshold(cpu int, threshold uint32) {
	irq.CheckPriority("threshold", threshold)
	if threshold != 0 {
		log.Warningf("irqctrl: cpu %d: threshold %d not supported, ignored", cpu, threshold)
	}
}

// Claim implements irq.Controller.Claim.
func (c *IrqCtrl) Claim(cpu int) (int, bool) {
	return c.eio.Claim(cpu)
}

// Complete implements irq.Controller.Complete.
func (c *IrqCtrl) Complete(cpu int, n int) {
	c.eio.Complete(cpu, n)
}

// NumSources implements irq.Controller.NumSources.
func (c *IrqCtrl) NumSources() int {
	return PCHPICSources
}

var _ irq.Controller = (*IrqCtrl)(nil)
