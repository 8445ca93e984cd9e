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
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/kernhal/kernhal/pkg/hostarch"
	"github.com/kernhal/kernhal/pkg/sync"
)

// IoMem is a plain register file: reads return what was last written. It is
// backed by an anonymous, page-aligned host mapping so that it has the
// alignment of a real device window.
type IoMem struct {
	mu   sync.RWMutex
	data []byte
}

// NewIoMem maps a zeroed register file of at least size bytes. The size is
// rounded up to a whole number of pages.
func NewIoMem(size uint64) (*IoMem, error) {
	if size == 0 {
		return nil, fmt.Errorf("zero-sized register window")
	}
	length, ok := hostarch.Addr(size).RoundUp()
	if !ok {
		return nil, fmt.Errorf("register window size %#x too large", size)
	}
	data, err := unix.Mmap(-1, 0, int(length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("mapping %#x bytes: %w", length, err)
	}
	return &IoMem{data: data[:size]}, nil
}

// Close unmaps the register file.
func (m *IoMem) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data[:cap(m.data)])
	m.data = nil
	return err
}

// Size implements Region.Size.
func (m *IoMem) Size() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.data))
}

func (m *IoMem) read(off, width uint64) ([]byte, error) {
	if err := CheckAccess(off, width, uint64(len(m.data))); err != nil {
		return nil, err
	}
	return m.data[off : off+width], nil
}

// Read8 implements Region.Read8.
func (m *IoMem) Read8(off uint64) (uint8, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, err := m.read(off, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Read16 implements Region.Read16.
func (m *IoMem) Read16(off uint64) (uint16, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, err := m.read(off, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// Read32 implements Region.Read32.
func (m *IoMem) Read32(off uint64) (uint32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, err := m.read(off, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Read64 implements Region.Read64.
func (m *IoMem) Read64(off uint64) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, err := m.read(off, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// Write8 implements Region.Write8.
func (m *IoMem) Write8(off uint64, v uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.read(off, 1)
	if err != nil {
		return err
	}
	b[0] = v
	return nil
}

// Write16 implements Region.Write16.
func (m *IoMem) Write16(off uint64, v uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.read(off, 2)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(b, v)
	return nil
}

// Write32 implements Region.Write32.
func (m *IoMem) Write32(off uint64, v uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.read(off, 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, v)
	return nil
}

// Write64 implements Region.Write64.
func (m *IoMem) Write64(off uint64, v uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.read(off, 8)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(b, v)
	return nil
}
