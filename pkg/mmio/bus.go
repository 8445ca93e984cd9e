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

package mmio

import (
	"fmt"

	"github.com/google/btree"

	"github.com/kernhal/kernhal/pkg/hostarch"
	"github.com/kernhal/kernhal/pkg/sync"
)

// window is a device attached to a Bus at [base, base+size).
type window struct {
	base hostarch.Addr
	size uint64
	name string
	dev  Region
}

func (w *window) end() hostarch.Addr {
	return w.base + hostarch.Addr(w.size)
}

// Bus maps physical addresses to devices.
type Bus struct {
	mu      sync.RWMutex
	windows *btree.BTreeG[*window]
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{
		windows: btree.NewG(4, func(a, b *window) bool { return a.base < b.base }),
	}
}

// containing returns the window containing addr, if any.
//
// Preconditions: b.mu is locked.
func (b *Bus) containing(addr hostarch.Addr) *window {
	var found *window
	b.windows.DescendLessOrEqual(&window{base: addr}, func(w *window) bool {
		if addr < w.end() {
			found = w
		}
		return false
	})
	return found
}

// Attach places dev at base. The window must not overlap another device.
func (b *Bus) Attach(name string, base hostarch.Addr, dev Region) error {
	size := dev.Size()
	if _, ok := base.AddLength(size); !ok || size == 0 {
		return fmt.Errorf("device %q: bad window %v+%#x", name, base, size)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	nw := &window{base: base, size: size, name: name, dev: dev}
	if w := b.containing(base); w != nil {
		return fmt.Errorf("device %q at %v overlaps %q at %v", name, base, w.name, w.base)
	}
	var clash *window
	b.windows.AscendGreaterOrEqual(&window{base: base}, func(w *window) bool {
		if w.base < nw.end() {
			clash = w
		}
		return false
	})
	if clash != nil {
		return fmt.Errorf("device %q at %v overlaps %q at %v", name, base, clash.name, clash.base)
	}
	b.windows.ReplaceOrInsert(nw)
	return nil
}

// Detach removes the device attached at base.
func (b *Bus) Detach(base hostarch.Addr) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.windows.Delete(&window{base: base})
	return ok
}

// Window returns a Region for [base, base+size), which must lie within a
// single attached device.
func (b *Bus) Window(base hostarch.Addr, size uint64) (Region, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	w := b.containing(base)
	if w == nil {
		return nil, fmt.Errorf("%w: no device at %v", ErrOutOfRange, base)
	}
	off := uint64(base - w.base)
	if size > w.size-off {
		return nil, fmt.Errorf("%w: %v+%#x exceeds device %q", ErrOutOfRange, base, size, w.name)
	}
	return &view{dev: w.dev, off: off, size: size}, nil
}

// Devices returns the attached device names in address order.
func (b *Bus) Devices() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var names []string
	b.windows.Ascend(func(w *window) bool {
		names = append(names, fmt.Sprintf("%s@%v", w.name, w.base))
		return true
	})
	return names
}

// view is a sub-window of a device.
type view struct {
	dev  Region
	off  uint64
	size uint64
}

func (v *view) Size() uint64 { return v.size }

func (v *view) Read8(off uint64) (uint8, error) {
	if err := CheckAccess(off, 1, v.size); err != nil {
		return 0, err
	}
	return v.dev.Read8(v.off + off)
}

func (v *view) Read16(off uint64) (uint16, error) {
	if err := CheckAccess(off, 2, v.size); err != nil {
		return 0, err
	}
	return v.dev.Read16(v.off + off)
}

func (v *view) Read32(off uint64) (uint32, error) {
	if err := CheckAccess(off, 4, v.size); err != nil {
		return 0, err
	}
	return v.dev.Read32(v.off + off)
}

func (v *view) Read64(off uint64) (uint64, error) {
	if err := CheckAccess(off, 8, v.size); err != nil {
		return 0, err
	}
	return v.dev.Read64(v.off + off)
}

func (v *view) Write8(off uint64, x uint8) error {
	if err := CheckAccess(off, 1, v.size); err != nil {
		return err
	}
	return v.dev.Write8(v.off+off, x)
}

func (v *view) Write16(off uint64, x uint16) error {
	if err := CheckAccess(off, 2, v.size); err != nil {
		return err
	}
	return v.dev.Write16(v.off+off, x)
}

func (v *view) Write32(off uint64, x uint32) error {
	if err := CheckAccess(off, 4, v.size); err != nil {
		return err
	}
	return v.dev.Write32(v.off+off, x)
}

func (v *view) Write64(off uint64, x uint64) error {
	if err := CheckAccess(off, 8, v.size); err != nil {
		return err
	}
	return v.dev.Write64(v.off+off, x)
}
