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

// Package mmio provides access to device register windows.
//
// A Region is a window of registers addressed by byte offset. Drivers hold
// Regions for the controllers they program; a kernel build backs them with
// the physical mapping of the device, the simulator backs them with device
// models attached to a Bus.
package mmio

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfRange is returned for accesses that do not fit in a region.
	ErrOutOfRange = errors.New("access outside register window")

	// ErrUnaligned is returned for accesses not aligned to their width.
	ErrUnaligned = errors.New("unaligned register access")
)

// Region is a window of device registers. All accesses are little-endian and
// must be naturally aligned.
type Region interface {
	// Size returns the size of the window in bytes.
	Size() uint64

	Read8(off uint64) (uint8, error)
	Read16(off uint64) (uint16, error)
	Read32(off uint64) (uint32, error)
	Read64(off uint64) (uint64, error)

	Write8(off uint64, v uint8) error
	Write16(off uint64, v uint16) error
	Write32(off uint64, v uint32) error
	Write64(off uint64, v uint64) error
}

// CheckAccess validates an access of width bytes at off in a window of the
// given size.
func CheckAccess(off, width, size uint64) error {
	if off%width != 0 {
		return fmt.Errorf("%w: %d bytes at %#x", ErrUnaligned, width, off)
	}
	if off >= size || size-off < width {
		return fmt.Errorf("%w: %d bytes at %#x, window size %#x", ErrOutOfRange, width, off, size)
	}
	return nil
}

// Regs wraps a Region for drivers. Accesses that fail are fatal: a driver
// touching registers outside its window is a kernel bug.
type Regs struct {
	Region
	// Name is used in panic messages.
	Name string
}

func (r Regs) must(err error, op string, off uint64) {
	if err != nil {
		panic(fmt.Sprintf("%s: %s at %#x: %v", r.Name, op, off, err))
	}
}

// Load8 reads a byte register.
func (r Regs) Load8(off uint64) uint8 {
	v, err := r.Read8(off)
	r.must(err, "read8", off)
	return v
}

// Load16 reads a 16-bit register.
func (r Regs) Load16(off uint64) uint16 {
	v, err := r.Read16(off)
	r.must(err, "read16", off)
	return v
}

// Load32 reads a 32-bit register.
func (r Regs) Load32(off uint64) uint32 {
	v, err := r.Read32(off)
	r.must(err, "read32", off)
	return v
}

// Load64 reads a 64-bit register.
func (r Regs) Load64(off uint64) uint64 {
	v, err := r.Read64(off)
	r.must(err, "read64", off)
	return v
}

// Store8 writes a byte register.
func (r Regs) Store8(off uint64, v uint8) {
	r.must(r.Write8(off, v), "write8", off)
}

// Store16 writes a 16-bit register.
func (r Regs) Store16(off uint64, v uint16) {
	r.must(r.Write16(off, v), "write16", off)
}

// Store32 writes a 32-bit register.
func (r Regs) Store32(off uint64, v uint32) {
	r.must(r.Write32(off, v), "write32", off)
}

// Store64 writes a 64-bit register.
func (r Regs) Store64(off uint64, v uint64) {
	r.must(r.Write64(off, v), "write64", off)
}
