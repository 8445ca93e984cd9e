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

// Package user defines the architecture-neutral view of a user thread's
// machine state and the outcomes of running it.
package user

import "fmt"

// ReturnReason is the reason a dispatcher handed control back to the
// kernel.
type ReturnReason int

const (
	// UserSyscall means the thread issued a system call. The program
	// counter already points past the syscall instruction.
	UserSyscall ReturnReason = iota

	// UserException means the thread raised an exception the kernel must
	// handle; the details are in the context's trap information.
	UserException

	// KernelEvent means the kernel-event predicate asked for control after
	// a trap that was handled internally.
	KernelEvent
)

// String implements fmt.Stringer.String.
func (r ReturnReason) String() string {
	switch r {
	case UserSyscall:
		return "UserSyscall"
	case UserException:
		return "UserException"
	case KernelEvent:
		return "KernelEvent"
	default:
		return fmt.Sprintf("ReturnReason(%d)", int(r))
	}
}

// SyscallArgument is an argument supplied to a syscall implementation.
type SyscallArgument struct {
	// Prefer to use accessor methods instead of 'Value' directly.
	Value uintptr
}

// SyscallArguments represents the set of arguments passed to a syscall.
type SyscallArguments [6]SyscallArgument

// Pointer returns the uintptr representation of a pointer argument.
func (a SyscallArgument) Pointer() uintptr {
	return a.Value
}

// Int returns the int32 representation of a 32-bit signed integer argument.
func (a SyscallArgument) Int() int32 {
	return int32(a.Value)
}

// Uint returns the uint32 representation of a 32-bit unsigned integer argument.
func (a SyscallArgument) Uint() uint32 {
	return uint32(a.Value)
}

// Int64 returns the int64 representation of a 64-bit signed integer argument.
func (a SyscallArgument) Int64() int64 {
	return int64(a.Value)
}

// Uint64 returns the uint64 representation of a 64-bit unsigned integer argument.
func (a SyscallArgument) Uint64() uint64 {
	return uint64(a.Value)
}

// Context provides architecture-neutral access to a user thread's registers.
// It is implemented by each backend's UserContext.
type Context interface {
	// InstructionPointer returns the address the thread resumes at.
	InstructionPointer() uintptr

	// SetInstructionPointer sets the address the thread resumes at.
	SetInstructionPointer(ip uintptr)

	// StackPointer returns the stack pointer.
	StackPointer() uintptr

	// SetStackPointer sets the stack pointer.
	SetStackPointer(sp uintptr)

	// SyscallNum returns the number of the syscall being made.
	SyscallNum() uintptr

	// SyscallArgs returns the syscall arguments in order.
	SyscallArgs() SyscallArguments

	// SyscallRet returns the syscall return value register.
	SyscallRet() uintptr

	// SetSyscallRet sets the syscall return value register.
	SetSyscallRet(v uintptr)

	// TLSPointer returns the thread pointer.
	TLSPointer() uintptr

	// SetTLSPointer sets the thread pointer.
	SetTLSPointer(tls uintptr)

	// ActivateTLSPointer makes the thread pointer effective on the current
	// CPU. On architectures that keep it in a general register this is a
	// no-op.
	ActivateTLSPointer()
}
