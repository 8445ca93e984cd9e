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

// Package sim provides register-level software models of harts and
// interrupt controllers.
//
// The models implement the same ports a kernel build implements over real
// hardware (loongarch.Hart, riscv.Hart, mmio.Region), so that dispatchers
// and drivers can be exercised and inspected without a machine.
package sim

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/kernhal/kernhal/pkg/mmio"
)

// device is a register file with side effects. Accesses have been checked
// against the window size and width alignment; width is 1, 2, 4 or 8.
type device interface {
	size() uint64
	load(off, width uint64) uint64
	store(off, width, v uint64)
}

// region adapts a device to mmio.Region.
type region struct {
	dev device
}

func (r region) check(off, width uint64) error {
	return mmio.CheckAccess(off, width, r.dev.size())
}

// Size implements mmio.Region.Size.
func (r region) Size() uint64 {
	return r.dev.size()
}

// Read8 implements mmio.Region.Read8.
func (r region) Read8(off uint64) (uint8, error) {
	if err := r.check(off, 1); err != nil {
		return 0, err
	}
	return uint8(r.dev.load(off, 1)), nil
}

// Read16 implements mmio.Region.Read16.
func (r region) Read16(off uint64) (uint16, error) {
	if err := r.check(off, 2); err != nil {
		return 0, err
	}
	return uint16(r.dev.load(off, 2)), nil
}

// Read32 implements mmio.Region.Read32.
func (r region) Read32(off uint64) (uint32, error) {
	if err := r.check(off, 4); err != nil {
		return 0, err
	}
	return uint32(r.dev.load(off, 4)), nil
}

// Read64 implements mmio.Region.Read64.
func (r region) Read64(off uint64) (uint64, error) {
	if err := r.check(off, 8); err != nil {
		return 0, err
	}
	return r.dev.load(off, 8), nil
}

// Write8 implements mmio.Region.Write8.
func (r region) Write8(off uint64, v uint8) error {
	if err := r.check(off, 1); err != nil {
		return err
	}
	r.dev.store(off, 1, uint64(v))
	return nil
}

// Write16 implements mmio.Region.Write16.
func (r region) Write16(off uint64, v uint16) error {
	if err := r.check(off, 2); err != nil {
		return err
	}
	r.dev.store(off, 2, uint64(v))
	return nil
}

// Write32 implements mmio.Region.Write32.
func (r region) Write32(off uint64, v uint32) error {
	if err := r.check(off, 4); err != nil {
		return err
	}
	r.dev.store(off, 4, uint64(v))
	return nil
}

// Write64 implements mmio.Region.Write64.
func (r region) Write64(off uint64, v uint64) error {
	if err := r.check(off, 8); err != nil {
		return err
	}
	r.dev.store(off, 8, v)
	return nil
}

// widthMask returns the value mask for an access of width bytes.
func widthMask(width uint64) uint64 {
	if width >= 8 {
		return ^uint64(0)
	}
	return 1<<(width*8) - 1
}

// backingLoad reads width bytes from a plain register file, which must not fail
// for checked accesses.
func backingLoad(m *mmio.IoMem, off, width uint64) uint64 {
	var (
		v   uint64
		err error
	)
	switch width {
	case 1:
		var b uint8
		b, err = m.Read8(off)
		v = uint64(b)
	case 2:
		var h uint16
		h, err = m.Read16(off)
		v = uint64(h)
	case 4:
		var w uint32
		w, err = m.Read32(off)
		v = uint64(w)
	default:
		v, err = m.Read64(off)
	}
	if err != nil {
		panic(fmt.Sprintf("register file read %d bytes at %#x: %v", width, off, err))
	}
	return v
}

func backingStore(m *mmio.IoMem, off, width, v uint64) {
	var err error
	switch width {
	case 1:
		err = m.Write8(off, uint8(v))
	case 2:
		err = m.Write16(off, uint16(v))
	case 4:
		err = m.Write32(off, uint32(v))
	default:
		err = m.Write64(off, v)
	}
	if err != nil {
		panic(fmt.Sprintf("register file write %d bytes at %#x: %v", width, off, err))
	}
}

// RunHarts runs fn for cpus 0 to n-1 concurrently, one goroutine per
// simulated core, and returns the first error. The context passed to fn is
// cancelled once any of them fails.
func RunHarts(ctx context.Context, n int, fn func(ctx context.Context, cpu int) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for cpu := 0; cpu < n; cpu++ {
		cpu := cpu
		g.Go(func() error {
			if err := fn(ctx, cpu); err != nil {
				return fmt.Errorf("cpu %d: %w", cpu, err)
			}
			return nil
		})
	}
	return g.Wait()
}
