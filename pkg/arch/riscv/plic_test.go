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

package riscv_test

import (
	"testing"

	"github.com/kernhal/kernhal/pkg/arch/riscv"
	"github.com/kernhal/kernhal/pkg/sim"
)

func newPLIC(t *testing.T, sources, harts int) (*sim.PLIC, *riscv.PLIC) {
	t.Helper()
	p := sim.NewPLIC(sources, harts)
	d, err := riscv.NewPLIC(p.Region(), sources, harts)
	if err != nil {
		t.Fatalf("NewPLIC: %v", err)
	}
	if err := d.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return p, d
}

func TestPLICClaimComplete(t *testing.T) {
	p, d := newPLIC(t, 64, 1)
	d.SetPriority(37, 1)
	d.SetThreshold(0, 0)
	d.Enable(37)

	if !p.Raise(37) {
		t.Fatalf("Raise(37) = false")
	}
	if !d.IsPending(37) {
		t.Errorf("IsPending(37) = false after raise")
	}
	if n, ok := d.Claim(0); !ok || n != 37 {
		t.Fatalf("Claim = %d, %t, want 37, true", n, ok)
	}
	if d.IsPending(37) {
		t.Errorf("IsPending(37) = true after claim")
	}
	if p.Raise(37) {
		t.Errorf("source 37 re-pended before completion")
	}
	d.Complete(0, 37)
	if n, ok := d.Claim(0); ok {
		t.Errorf("Claim after completion = %d, want none", n)
	}
	if !p.Raise(37) {
		t.Errorf("source 37 not raisable after completion")
	}
}

func TestPLICPriorityAndThreshold(t *testing.T) {
	p, d := newPLIC(t, 64, 1)
	for _, n := range []int{3, 4, 40} {
		d.Enable(n)
	}
	d.SetPriority(3, 2)
	d.SetPriority(4, 2)
	d.SetPriority(40, 5)
	d.SetThreshold(0, 2)
	for _, n := range []int{3, 4, 40} {
		p.Raise(n)
	}

	// Only 40 exceeds the threshold.
	if n, ok := d.Claim(0); !ok || n != 40 {
		t.Fatalf("Claim = %d, %t, want 40, true", n, ok)
	}
	d.Complete(0, 40)
	if n, ok := d.Claim(0); ok {
		t.Fatalf("Claim = %d, want none at threshold 2", n)
	}

	// Equal priorities go to the lower source.
	d.SetThreshold(0, 1)
	if got := d.Threshold(0); got != 1 {
		t.Errorf("Threshold(0) = %d, want 1", got)
	}
	for _, want := range []int{3, 4} {
		n, ok := d.Claim(0)
		if !ok || n != want {
			t.Fatalf("Claim = %d, %t, want %d, true", n, ok, want)
		}
		d.Complete(0, n)
	}

	if got := d.Priority(40); got != 5 {
		t.Errorf("Priority(40) = %d, want 5", got)
	}
	mustPanic(t, "priority 8", func() { d.SetPriority(3, 8) })
	mustPanic(t, "threshold 8", func() { d.SetThreshold(0, 8) })
}

func TestPLICSupervisorContexts(t *testing.T) {
	for _, tc := range []struct {
		hart       int
		supervisor bool
		want       int
	}{
		{0, false, 0},
		{0, true, 1},
		{1, false, 2},
		{1, true, 3},
		{3, true, 7},
	} {
		if got := riscv.ContextID(tc.hart, tc.supervisor); got != tc.want {
			t.Errorf("ContextID(%d, %t) = %d, want %d", tc.hart, tc.supervisor, got, tc.want)
		}
	}

	p, d := newPLIC(t, 32, 2)
	d.SetPriority(7, 1)
	d.EnableOn(1, 7)
	if d.IsEnabled(0, 7) || !d.IsEnabled(1, 7) {
		t.Errorf("IsEnabled = %t, %t, want false, true", d.IsEnabled(0, 7), d.IsEnabled(1, 7))
	}
	p.Raise(7)
	if n, ok := d.Claim(0); ok {
		t.Errorf("hart 0 claimed %d without enabling it", n)
	}
	if n, ok := d.Claim(1); !ok || n != 7 {
		t.Errorf("hart 1 Claim = %d, %t, want 7, true", n, ok)
	}
	d.Complete(1, 7)

	d.DisableOn(1, 7)
	if d.IsEnabled(1, 7) {
		t.Errorf("IsEnabled(1, 7) after DisableOn")
	}
}

func TestPLICInitIsIdempotent(t *testing.T) {
	_, d := newPLIC(t, 64, 2)
	d.Enable(12)
	d.SetThreshold(1, 3)
	for i := 0; i < 2; i++ {
		if err := d.Init(); err != nil {
			t.Fatalf("Init: %v", err)
		}
		for h := 0; h < 2; h++ {
			if d.IsEnabled(h, 12) || d.Threshold(h) != 0 {
				t.Errorf("after Init %d: hart %d enabled %t, threshold %d", i, h, d.IsEnabled(h, 12), d.Threshold(h))
			}
		}
	}
}

func TestPLICOutOfRange(t *testing.T) {
	_, d := newPLIC(t, 64, 1)
	d.Enable(64)
	d.Disable(-1)
	d.SetPriority(1000, 1)
	d.Complete(0, 64)
	if d.IsEnabled(0, 64) || d.IsPending(64) || d.Priority(64) != 0 {
		t.Errorf("out of range source reported state")
	}
	mustPanic(t, "claim on hart 1", func() { d.Claim(1) })
}

func TestNewPLICRejects(t *testing.T) {
	p := sim.NewPLIC(64, 1)
	for _, tc := range []struct {
		name           string
		sources, harts int
	}{
		{"one source", 1, 1},
		{"too many sources", riscv.MaxPLICSources + 1, 1},
		{"no harts", 64, 0},
		{"window too small", 64, 2},
	} {
		if _, err := riscv.NewPLIC(p.Region(), tc.sources, tc.harts); err == nil {
			t.Errorf("%s: NewPLIC succeeded", tc.name)
		}
	}
}

func TestExitQemu(t *testing.T) {
	for _, tc := range []struct {
		code riscv.QemuExitCode
		want uint64
	}{
		{riscv.QemuExitSuccess, 0x5555},
		{riscv.QemuExitFailed, 0x20_3333},
	} {
		d := sim.NewExitDevice(riscv.QemuExitSize)
		riscv.ExitQemu(d.Region(), tc.code)
		got, ok := d.Exited()
		if !ok || got != (sim.ExitWrite{Offset: 0, Value: tc.want}) {
			t.Errorf("ExitQemu(%#x) wrote %+v, %t, want value %#x", tc.code, got, ok, tc.want)
		}
	}
}
