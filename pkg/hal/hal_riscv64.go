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

//go:build riscv64

package hal

import (
	"github.com/kernhal/kernhal/pkg/arch/riscv"
	"github.com/kernhal/kernhal/pkg/hostarch"
	"github.com/kernhal/kernhal/pkg/mm"
	"github.com/kernhal/kernhal/pkg/pagetables"
)

// Arch is the architecture of this build.
const Arch = RISCV

// Backend types.
type (
	CPU              = riscv.CPU
	Config           = riscv.Config
	Hart             = riscv.Hart
	UserContext      = riscv.UserContext
	TrapFrame        = riscv.TrapFrame
	CpuExceptionInfo = riscv.CpuExceptionInfo
	PageFaultHandler = riscv.PageFaultHandler
	PTE              = riscv.PTE
	TLB              = riscv.TLB
)

// Paging is the page-table geometry of this build.
var Paging = riscv.Paging

// NewCPU returns the dispatcher state of one core.
func NewCPU(c Config) (*CPU, error) {
	return riscv.NewCPU(c)
}

// NewUserContext returns a user thread about to run at ip with stack sp.
func NewUserContext(ip, sp uintptr) *UserContext {
	return riscv.NewUserContext(ip, sp)
}

// InjectUserPageFaultHandler sets the handler for user page faults taken
// in kernel mode. It may be called once.
func InjectUserPageFaultHandler(h PageFaultHandler) bool {
	return riscv.InjectUserPageFaultHandler(h)
}

// Encode returns the page-table entry mapping physical with prop.
func Encode(physical hostarch.Addr, prop mm.PageProperty) uint64 {
	return riscv.Encode(physical, prop)
}

// Decode is the inverse of Encode.
func Decode(raw uint64) (hostarch.Addr, mm.PageProperty, bool) {
	return riscv.Decode(raw)
}

// Codec returns the page-table codec of this build.
func Codec() pagetables.Codec {
	return riscv.Codec{}
}

// FlushAddr invalidates the translation of the page containing va.
func FlushAddr(t TLB, va hostarch.Addr) {
	riscv.FlushAddr(t, va)
}

// FlushAddrRange invalidates every page overlapping r.
func FlushAddrRange(t TLB, r hostarch.AddrRange) {
	riscv.FlushAddrRange(t, r)
}

// FlushAll invalidates the whole TLB, sparing global entries unless
// includingGlobal is set.
func FlushAll(t TLB, includingGlobal bool) {
	riscv.FlushAll(t, includingGlobal)
}
