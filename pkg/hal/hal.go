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

// Package hal is the architecture-neutral face of the backends in
// pkg/arch.
//
// A kernel build gets exactly one backend, chosen by GOARCH: the CPU,
// UserContext, TrapFrame and page-table entry types below are aliases of
// the loongarch types on loong64 and of the riscv types on riscv64. Tools
// that handle both architectures at once use CodecFor.
package hal

import (
	"fmt"

	"github.com/kernhal/kernhal/pkg/arch/loongarch"
	"github.com/kernhal/kernhal/pkg/arch/riscv"
	"github.com/kernhal/kernhal/pkg/hostarch"
	"github.com/kernhal/kernhal/pkg/pagetables"
	"github.com/kernhal/kernhal/pkg/user"
)

// ReturnReason is why a dispatcher handed control back to the kernel.
type ReturnReason = user.ReturnReason

// Return reasons.
const (
	UserSyscall   = user.UserSyscall
	UserException = user.UserException
	KernelEvent   = user.KernelEvent
)

// Context is the architecture-neutral view of a user thread.
type Context = user.Context

// Architecture names accepted by CodecFor.
const (
	LoongArch = "loongarch"
	RISCV     = "riscv"
)

var codecs = map[string]pagetables.Codec{
	LoongArch: loongarch.Codec{},
	RISCV:     riscv.Codec{},
}

// CodecFor returns the page-table entry codec of the named architecture.
func CodecFor(arch string) (pagetables.Codec, error) {
	c, ok := codecs[arch]
	if !ok {
		return nil, fmt.Errorf("unknown architecture %q, want %s or %s", arch, LoongArch, RISCV)
	}
	return c, nil
}

// NewPageTables returns empty page tables encoded for the named
// architecture.
func NewPageTables(arch string, t pagetables.Translator) (*pagetables.PageTables, error) {
	c, err := CodecFor(arch)
	if err != nil {
		return nil, err
	}
	return pagetables.New(c, t), nil
}

// NewSimPageTables returns page tables whose nodes are given physical
// addresses from base upward, for use without a machine.
func NewSimPageTables(arch string, base hostarch.Addr) (*pagetables.PageTables, error) {
	return NewPageTables(arch, pagetables.NewLinearTranslator(base))
}
