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

package user

import "testing"

func TestReturnReasonString(t *testing.T) {
	for r, want := range map[ReturnReason]string{
		UserSyscall:     "UserSyscall",
		UserException:   "UserException",
		KernelEvent:     "KernelEvent",
		ReturnReason(9): "ReturnReason(9)",
	} {
		if got := r.String(); got != want {
			t.Errorf("ReturnReason(%d).String() = %q, want %q", int(r), got, want)
		}
	}
}

func TestSyscallArgument(t *testing.T) {
	a := SyscallArgument{Value: ^uintptr(0)}
	if got := a.Int(); got != -1 {
		t.Errorf("Int() = %d, want -1", got)
	}
	if got := a.Uint(); got != 0xffffffff {
		t.Errorf("Uint() = %#x, want 0xffffffff", got)
	}
	if got := a.Int64(); got != -1 {
		t.Errorf("Int64() = %d, want -1", got)
	}
}
