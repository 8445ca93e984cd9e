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

package mm

import (
	"testing"

	"github.com/kernhal/kernhal/pkg/hostarch"
)

func TestSv48Shape(t *testing.T) {
	c := Sv48
	if got := c.EntriesPerNode(); got != 512 {
		t.Errorf("EntriesPerNode() = %d, want 512", got)
	}
	for _, tc := range []struct {
		level int
		size  uint64
	}{
		{1, 4 << 10},
		{2, 2 << 20},
		{3, 1 << 30},
		{4, 512 << 30},
	} {
		if got := c.PageSize(tc.level); got != tc.size {
			t.Errorf("PageSize(%d) = %#x, want %#x", tc.level, got, tc.size)
		}
	}

	va := hostarch.Addr(0x0000_7f12_3456_7000)
	want := []int{0x167, 0x1a2, 0x048, 0x0fe}
	for level := 1; level <= 4; level++ {
		if got := c.Index(va, level); got != want[level-1] {
			t.Errorf("Index(%v, %d) = %#x, want %#x", va, level, got, want[level-1])
		}
	}
}

func TestIsCanonical(t *testing.T) {
	for _, tc := range []struct {
		va   hostarch.Addr
		want bool
	}{
		{0, true},
		{0x0000_7fff_ffff_f000, true},
		{0x0000_8000_0000_0000, false},
		{0xffff_8000_0000_0000, true},
		{0xfff0_0000_0000_0000, false},
	} {
		if got := Sv48.IsCanonical(tc.va); got != tc.want {
			t.Errorf("IsCanonical(%v) = %t, want %t", tc.va, got, tc.want)
		}
	}
}

func TestFlagStrings(t *testing.T) {
	p := PageProperty{Flags: RW | Accessed, Priv: User, Cache: Uncacheable}
	if got, want := p.String(), "{R|W|A USER UC}"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if got := (RX).AccessType().String(); got != "r-x" {
		t.Errorf("RX.AccessType() = %q, want r-x", got)
	}
}
