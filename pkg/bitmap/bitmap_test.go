// Copyright 2021 The gVisor Authors.
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

package bitmap

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestAddRemove(t *testing.T) {
	b := New(130)
	if got := b.Size(); got != 130 {
		t.Fatalf("Size() = %d, want 130", got)
	}
	for _, i := range []uint32{0, 63, 64, 129, 64} {
		b.Add(i)
	}
	if got, want := b.GetNumOnes(), uint32(4); got != want {
		t.Errorf("GetNumOnes() = %d, want %d", got, want)
	}
	if diff := cmp.Diff([]uint32{0, 63, 64, 129}, b.ToSlice()); diff != "" {
		t.Errorf("ToSlice() mismatch (-want +got):\n%s", diff)
	}
	b.Remove(63)
	b.Remove(63)
	b.Remove(500)
	if b.Contains(63) || !b.Contains(64) || b.Contains(500) {
		t.Errorf("Contains() inconsistent after Remove: %v", b.ToSlice())
	}
	if got := b.GetNumOnes(); got != 3 {
		t.Errorf("GetNumOnes() = %d, want 3", got)
	}
}

func TestFirstZero(t *testing.T) {
	b := New(70)
	for i := uint32(0); i < 66; i++ {
		b.Add(i)
	}
	for _, tc := range []struct {
		start   uint32
		want    uint32
		wantErr error
	}{
		{start: 0, want: 66},
		{start: 67, want: 67},
		{start: 70, want: MaxBitEntryLimit, wantErr: ErrOutOfRange},
	} {
		got, err := b.FirstZero(tc.start)
		if got != tc.want || err != tc.wantErr {
			t.Errorf("FirstZero(%d) = %d, %v; want %d, %v", tc.start, got, err, tc.want, tc.wantErr)
		}
	}

	full := New(64)
	for i := uint32(0); i < 64; i++ {
		full.Add(i)
	}
	if _, err := full.FirstZero(0); err != ErrNoneFound {
		t.Errorf("FirstZero on full bitmap err = %v, want %v", err, ErrNoneFound)
	}

	// Padding bits past Size must never be handed out.
	partial := New(3)
	partial.Add(0)
	partial.Add(1)
	partial.Add(2)
	if got, err := partial.FirstZero(0); err != ErrNoneFound {
		t.Errorf("FirstZero on full 3-bit bitmap = %d, %v; want %v", got, err, ErrNoneFound)
	}
}

func TestFirstOneAndMaximum(t *testing.T) {
	b := New(256)
	if _, ok := b.Maximum(); ok {
		t.Errorf("Maximum() on empty bitmap reported ok")
	}
	b.Add(5)
	b.Add(200)
	if got, err := b.FirstOne(6); got != 200 || err != nil {
		t.Errorf("FirstOne(6) = %d, %v; want 200, nil", got, err)
	}
	if got, ok := b.Maximum(); got != 200 || !ok {
		t.Errorf("Maximum() = %d, %t; want 200, true", got, ok)
	}
	if _, err := b.FirstOne(201); err != ErrNoneFound {
		t.Errorf("FirstOne(201) err = %v, want %v", err, ErrNoneFound)
	}
}
