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

package pagetables_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kernhal/kernhal/pkg/arch/loongarch"
	"github.com/kernhal/kernhal/pkg/arch/riscv"
	"github.com/kernhal/kernhal/pkg/hostarch"
	"github.com/kernhal/kernhal/pkg/mm"
	"github.com/kernhal/kernhal/pkg/pagetables"
)

const pteSize = hostarch.PageSize

var codecs = map[string]pagetables.Codec{
	"loongarch": loongarch.Codec{},
	"riscv":     riscv.Codec{},
}

// recordingTranslator allocates frames linearly and remembers which table
// page each frame holds, in allocation order.
type recordingTranslator struct {
	*pagetables.LinearTranslator
	tables []*pagetables.PTEs
}

func (r *recordingTranslator) TranslateToPhysical(ptes *pagetables.PTEs) hostarch.Addr {
	r.tables = append(r.tables, ptes)
	return r.LinearTranslator.TranslateToPhysical(ptes)
}

func checkMappings(t *testing.T, pt *pagetables.PageTables, want []pagetables.Mapping) {
	t.Helper()
	var got []pagetables.Mapping
	pt.Range(func(m pagetables.Mapping) {
		got = append(got, m)
	})
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mappings mismatch (-want +got):\n%s", diff)
	}
}

var userRW = mm.PageProperty{Flags: mm.RW | mm.Accessed | mm.Dirty, Priv: mm.User}

func TestMapUnmap(t *testing.T) {
	for name, c := range codecs {
		t.Run(name, func(t *testing.T) {
			pt := pagetables.New(c, pagetables.NewLinearTranslator(0x100_0000))
			if pt.Map(0x40_0000, 3*pteSize, userRW, 0x8000_0000) {
				t.Errorf("Map into empty tables reported a previous mapping")
			}
			checkMappings(t, pt, []pagetables.Mapping{
				{0x40_0000, pteSize, 0x8000_0000, userRW},
				{0x40_1000, pteSize, 0x8000_1000, userRW},
				{0x40_2000, pteSize, 0x8000_2000, userRW},
			})

			pa, prop, ok := pt.Lookup(0x40_1234)
			if !ok || pa != 0x8000_1234 || prop != userRW {
				t.Errorf("Lookup = %v, %v, %t", pa, prop, ok)
			}

			// Knock out the middle.
			if !pt.Unmap(0x40_1000, pteSize) {
				t.Errorf("Unmap of a mapped page returned false")
			}
			checkMappings(t, pt, []pagetables.Mapping{
				{0x40_0000, pteSize, 0x8000_0000, userRW},
				{0x40_2000, pteSize, 0x8000_2000, userRW},
			})
			if _, _, ok := pt.Lookup(0x40_1000); ok {
				t.Errorf("Lookup of unmapped page succeeded")
			}
			if pt.Unmap(0x40_1000, pteSize) {
				t.Errorf("second Unmap returned true")
			}
			if !pt.Map(0x40_2000, pteSize, userRW, 0x9000_0000) {
				t.Errorf("remap did not report the previous mapping")
			}
		})
	}
}

func TestKernelHalf(t *testing.T) {
	const va = hostarch.Addr(0xffff_8000_0020_0000)
	kernel := mm.PageProperty{Flags: mm.RX, Priv: mm.Global}
	for name, c := range codecs {
		t.Run(name, func(t *testing.T) {
			pt := pagetables.New(c, pagetables.NewLinearTranslator(0x100_0000))
			pt.Map(va, 2*pteSize, kernel, 0x20_0000)
			checkMappings(t, pt, []pagetables.Mapping{
				{va, pteSize, 0x20_0000, kernel},
				{va + pteSize, pteSize, 0x20_1000, kernel},
			})
			if pt.RootPhysical() != 0x100_0000 {
				t.Errorf("RootPhysical = %v, want the first frame", pt.RootPhysical())
			}
		})
	}
}

func TestHugeLeaf(t *testing.T) {
	rt := &recordingTranslator{LinearTranslator: pagetables.NewLinearTranslator(0x100_0000)}
	pt := pagetables.New(riscv.Codec{}, rt)
	pt.Map(0x4000_0000, pteSize, userRW, 0x8000_0000)

	// Tables are allocated root first, so the third is the level 2 table
	// covering 0x4000_0000.
	huge := mm.PageProperty{Flags: mm.RW, Priv: mm.User}
	rt.tables[2][1] = uint64(riscv.NewPage(0x9000_0000, 2, huge))

	pa, _, ok := pt.Lookup(0x4020_1234)
	if !ok || pa != 0x9000_1234 {
		t.Errorf("Lookup in 2M leaf = %v, %t, want 0x90001234", pa, ok)
	}
	checkMappings(t, pt, []pagetables.Mapping{
		{0x4000_0000, pteSize, 0x8000_0000, userRW},
		{0x4020_0000, hostarch.HugePageSize, 0x9000_0000, huge},
	})

	// Mapping a base page inside the leaf replaces it.
	if !pt.Map(0x4020_0000, pteSize, userRW, 0xa000_0000) {
		t.Errorf("Map over a 2M leaf did not report it")
	}
	checkMappings(t, pt, []pagetables.Mapping{
		{0x4000_0000, pteSize, 0x8000_0000, userRW},
		{0x4020_0000, pteSize, 0xa000_0000, userRW},
	})
}

func TestMapRejectsUnaligned(t *testing.T) {
	pt := pagetables.New(riscv.Codec{}, pagetables.NewLinearTranslator(0x100_0000))
	defer func() {
		if recover() == nil {
			t.Errorf("Map of an unaligned address did not panic")
		}
	}()
	pt.Map(0x40_0010, pteSize, userRW, 0x8000_0000)
}
