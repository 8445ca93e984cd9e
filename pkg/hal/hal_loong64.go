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

//go:build loong64

package hal

import (
	"github.com/kernhal/kernhal/pkg/arch/loongarch"
	"github.com/kernhal/kernhal/pkg/hostarch"
	"github.com/kernhal/kernhal/pkg/mm"
	"github.com/kernhal/kernhal/pkg/pagetables"
)

// Arch is the architecture of this build.
const Arch = LoongArch

// Backend types.
type (
	CPU              = loongarch.CPU
	Config           = loongarch.Config
	Hart             = loongarch.Hart
	UserContext      = loongarch.UserContext
	TrapFrame        = loongarch.TrapFrame
	CpuExceptionInfo = loongarch.CpuExceptionInfo
	PageFaultHandler = loongarch.PageFaultHandler
	PTE              = loongarch.PTE
	TLB              = loongarch.TLB
)

// Paging is the page-table geometry of this build.
var Paging = loongarch.Paging

// NewCPU returns the dispatcher state of one core.
func NewCPU(c Config) (*CPU, error) {
	return loongarch.NewCPU(c)
}

// NewUserContext returns a user thread about to run at ip with stack sp.
func NewUserContext(ip, sp uintptr) *UserContext {
	return loongarch.NewUserContext(ip, sp)
}

// InjectUserPageFaultHandler sets the handler for user page faults taken
// in kernel mode. It may be called once.
func InjectUserPageFaultHandler(h PageFaultHandler) bool {
	return loongarch.InjectUserPageFaultHandler(h)
}

// Encode returns the page-table entry mapping physical with prop.
func Encode(physical hostarch.Addr, prop mm.PageProperty) uint64 {
	return loongarch.Encode(physical, prop)
}

// Decode is the inverse of Encode.
func Decode(raw uint64) (hostarch.Addr, mm.PageProperty, bool) {
	return loongarch.Decode(raw)
}

// Codec returns the page-table codec of this build.
func Codec() pagetables.Codec {
	return loongarch.Codec{}
}

// FlushAddr invalidates the translation of the page containing va.
func FlushAddr(t TLB, va hostarch.Addr) {
	loongarch.FlushAddr(t, va)
}

// FlushAddrRange invalidates every page overlapping r.
func FlushAddrRange(t TLB, r hostarch.AddrRange) {
	loongarch.FlushAddrRange(t, r)
}

// FlushAll invalidates the whole TLB, sparing global entries unless
// includingGlobal is set.
func FlushAll(t TLB, includingGlobal bool) {
	loongarch.FlushAll(t, includingGlobal)
}
