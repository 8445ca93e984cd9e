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

package irq

import (
	"errors"
	"fmt"

	"github.com/kernhal/kernhal/pkg/bitmap"
	"github.com/kernhal/kernhal/pkg/sync"
)

var (
	// ErrLineInUse is returned when a specific line is already allocated.
	ErrLineInUse = errors.New("interrupt line already allocated")

	// ErrNoFreeLine is returned when every line is allocated.
	ErrNoFreeLine = errors.New("no free interrupt line")
)

// Frame is the register state of the code an interrupt arrived on.
type Frame interface {
	// InstructionPointer returns the interrupted program counter.
	InstructionPointer() uintptr

	// StackPointer returns the interrupted stack pointer.
	StackPointer() uintptr

	// FromUser returns true if the interrupt arrived in user mode.
	FromUser() bool
}

// Callback handles one interrupt.
type Callback func(Frame)

type callback struct {
	id uint64
	fn Callback
}

// Lines is the registry of interrupt lines and their callbacks.
//
// Callbacks are registered at runtime and invoked concurrently by every CPU
// that claims an interrupt.
type Lines struct {
	mu        sync.RWMutex
	allocated bitmap.Bitmap
	callbacks map[int][]callback
	nextID    uint64
}

// NewLines returns a registry for n lines.
func NewLines(n int) *Lines {
	return &Lines{
		allocated: bitmap.New(uint32(n)),
		callbacks: make(map[int][]callback),
	}
}

// Line is an allocated interrupt line.
type Line struct {
	lines *Lines
	num   int
}

// Num returns the line number.
func (l *Line) Num() int {
	return l.num
}

// Alloc allocates the lowest free line.
func (ls *Lines) Alloc() (*Line, error) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	n, err := ls.allocated.FirstZero(0)
	if err != nil {
		return nil, ErrNoFreeLine
	}
	ls.allocated.Add(n)
	return &Line{lines: ls, num: int(n)}, nil
}

// AllocSpecific allocates line n.
func (ls *Lines) AllocSpecific(n int) (*Line, error) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if n < 0 || uint32(n) >= ls.allocated.Size() {
		return nil, fmt.Errorf("line %d out of range [0, %d)", n, ls.allocated.Size())
	}
	if ls.allocated.Contains(uint32(n)) {
		return nil, fmt.Errorf("line %d: %w", n, ErrLineInUse)
	}
	ls.allocated.Add(uint32(n))
	return &Line{lines: ls, num: n}, nil
}

// Handle identifies a registered callback.
type Handle struct {
	line int
	id   uint64
}

// OnActive registers fn to run whenever the line fires. Callbacks run in
// registration order.
func (l *Line) OnActive(fn Callback) Handle {
	ls := l.lines
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.nextID++
	ls.callbacks[l.num] = append(ls.callbacks[l.num], callback{id: ls.nextID, fn: fn})
	return Handle{line: l.num, id: ls.nextID}
}

// Unregister removes the callback identified by h.
func (ls *Lines) Unregister(h Handle) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	cbs := ls.callbacks[h.line]
	for i, cb := range cbs {
		if cb.id == h.id {
			ls.callbacks[h.line] = append(cbs[:i:i], cbs[i+1:]...)
			return
		}
	}
}

// Release frees the line and drops its callbacks.
func (l *Line) Release() {
	ls := l.lines
	ls.mu.Lock()
	defer ls.mu.Unlock()
	delete(ls.callbacks, l.num)
	ls.allocated.Remove(uint32(l.num))
}

// Dispatch runs the callbacks registered on line n and returns how many ran.
// Callbacks run without the registry lock held.
func (ls *Lines) Dispatch(f Frame, n int) int {
	ls.mu.RLock()
	cbs := ls.callbacks[n]
	ls.mu.RUnlock()

	// Registration never mutates a published slice in place, except to
	// append past its length, so cbs is stable.
	for _, cb := range cbs {
		cb.fn(f)
	}
	if len(cbs) == 0 {
		rangeLog.Warningf("interrupt %d has no handler", n)
	}
	return len(cbs)
}
