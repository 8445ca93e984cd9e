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
	"github.com/kernhal/kernhal/pkg/mmio"
	"github.com/kernhal/kernhal/pkg/sync"
)

// ExitWrite is a write observed by an ExitDevice.
type ExitWrite struct {
	Offset uint64
	Value  uint64
}

// ExitDevice models a QEMU exit port: it records the first write and
// ignores the rest, as the machine has stopped.
type ExitDevice struct {
	mu     sync.Mutex
	window uint64
	write  ExitWrite
	exited bool
}

// NewExitDevice returns an exit device with a window of the given size.
func NewExitDevice(size uint64) *ExitDevice {
	return &ExitDevice{window: size}
}

// Region returns the register window.
func (d *ExitDevice) Region() mmio.Region {
	return region{dev: d}
}

// Exited returns the write that stopped the machine, if any.
func (d *ExitDevice) Exited() (ExitWrite, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.write, d.exited
}

func (d *ExitDevice) size() uint64 {
	return d.window
}

func (d *ExitDevice) load(off, width uint64) uint64 {
	return 0
}

func (d *ExitDevice) store(off, width, v uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.exited {
		d.write = ExitWrite{Offset: off, Value: v}
		d.exited = true
	}
}
