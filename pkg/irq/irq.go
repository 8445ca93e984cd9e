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

// Package irq defines the interrupt-controller capability set, the
// process-wide active controller and the registry of interrupt lines and
// their callbacks.
package irq

import (
	"fmt"
	"time"

	"github.com/kernhal/kernhal/pkg/log"
	"github.com/kernhal/kernhal/pkg/sync"
)

// MaxPriority is the highest priority or threshold any controller accepts.
const MaxPriority = 7

// Controller is the capability set every interrupt controller provides.
//
// Configuration methods (Init, Enable, Disable, SetPriority, SetThreshold)
// are meant to run on the boot CPU before other CPUs start. Claim and
// Complete operate on the calling CPU's bank and need no locking.
//
// Interrupt numbers outside [0, NumSources()) are logged and ignored.
// Priorities and thresholds above MaxPriority are fatal.
type Controller interface {
	// Init configures routing and default state. It is idempotent.
	Init() error

	// Enable unmasks irq.
	Enable(irq int)

	// Disable masks irq.
	Disable(irq int)

	// SetPriority sets the priority of irq. Zero disables the source.
	SetPriority(irq int, priority uint32)

	// SetThreshold sets the priority a source must exceed to interrupt cpu.
	SetThreshold(cpu int, threshold uint32)

	// Claim returns the highest-ranked pending interrupt for cpu and
	// acknowledges it. ok is false if nothing is pending.
	Claim(cpu int) (irq int, ok bool)

	// Complete signals the end of handling of a claimed irq on cpu.
	Complete(cpu int, irq int)

	// NumSources returns the number of interrupt sources.
	NumSources() int
}

// CheckPriority panics if p exceeds MaxPriority.
func CheckPriority(what string, p uint32) {
	if p > MaxPriority {
		panic(fmt.Sprintf("%s %d out of range [0, %d]", what, p, MaxPriority))
	}
}

// rangeLog reports out-of-range interrupt numbers. A misbehaving device can
// produce them at interrupt rate.
var rangeLog = log.BasicRateLimitedLogger(time.Second)

// OutOfRange returns true, after logging a warning, if irq is not a valid
// source number for a controller with n sources.
func OutOfRange(controller, op string, irq, n int) bool {
	if irq >= 0 && irq < n {
		return false
	}
	rangeLog.Warningf("%s: %s: interrupt %d out of range [0, %d), ignored", controller, op, irq, n)
	return true
}

// active is the controller installed for this machine.
var active sync.Lazy[Controller]

// SetController installs c as the machine's interrupt controller. Only the
// first call has an effect; it returns false if a controller was already
// installed. c.Init runs on the first call to Active.
func SetController(c Controller) bool {
	return active.Install(c, Controller.Init)
}

// Active returns the installed controller, initializing it on first use.
func Active() (Controller, error) {
	c, err := active.Get()
	if err != nil {
		return nil, fmt.Errorf("interrupt controller: %w", err)
	}
	return c, nil
}

// MustActive is like Active, but panics on error. It is used on trap paths
// where no controller means a misconfigured kernel.
func MustActive() Controller {
	c, err := Active()
	if err != nil {
		panic(err)
	}
	return c
}
